// Package calllog reconciles finished call sessions into durable call-log
// records and keeps the console's view of them fresh while backend
// analysis jobs are still running.
package calllog

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/code-100-precent/EchoDesk/internal/models"
	"github.com/code-100-precent/EchoDesk/pkg/backend"
	"github.com/code-100-precent/EchoDesk/pkg/callsession"
	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PersistError marks a failed call-log submission. It is soft: the surface
// reports it once as a warning and never retries, because resubmitting a
// duration-sensitive record after further delay would corrupt the timing.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("call ended but log could not be saved: %v", e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Backend is the slice of the CRM client the reconciler needs.
type Backend interface {
	LogCall(ctx context.Context, draft backend.CallLogDraft) (*models.CallLogRecord, error)
	ListCallLogs(ctx context.Context, leadID string, limit int) ([]models.CallLogRecord, error)
}

// Config 通话记录协调器配置
type Config struct {
	LeadID        string
	Limit         int           // 拉取条数，默认 50
	PollInterval  time.Duration // 分析轮询间隔，默认 5s
	PendingWindow time.Duration // 只轮询该时长内的记录，默认 10min
	Warn          func(msg string) // 软告警回调（状态行）
}

// Reconciler persists one CallLogRecord per completed session and runs the
// bounded background poll while analysis fields are pending.
type Reconciler struct {
	mu         sync.Mutex
	backend    Backend
	db         *gorm.DB // local mirror, optional
	cfg        Config
	now        func() time.Time
	records    []models.CallLogRecord
	timer      *time.Timer
	refreshing bool
	closed     bool
}

// NewReconciler 创建通话记录协调器。db 可以为 nil（不维护本地镜像）。
func NewReconciler(b Backend, db *gorm.DB, cfg Config) *Reconciler {
	if cfg.Limit == 0 {
		cfg.Limit = 50
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PendingWindow == 0 {
		cfg.PendingWindow = 10 * time.Minute
	}
	if cfg.Warn == nil {
		cfg.Warn = func(msg string) { logger.Warn(msg) }
	}
	return &Reconciler{
		backend: b,
		db:      db,
		cfg:     cfg,
		now:     time.Now,
	}
}

// RecordCompletion submits the call-log draft for a finished session. A
// session that never connected has no start time and is skipped entirely:
// calls that rang but never connected leave no log entry.
func (r *Reconciler) RecordCompletion(ctx context.Context, snap callsession.Snapshot, status callsession.CallStatus) error {
	if snap.StartedAt.IsZero() {
		return nil
	}

	endedAt := r.now()
	duration := int64(math.Round(endedAt.Sub(snap.StartedAt).Seconds()))
	if duration < 0 {
		duration = 0
	}

	draft := backend.CallLogDraft{
		LeadID:          r.cfg.LeadID,
		Direction:       string(snap.Direction),
		Status:          string(status),
		Channel:         "voice",
		StartedAt:       snap.StartedAt,
		EndedAt:         endedAt,
		DurationSeconds: duration,
		Provider:        models.ProviderSoftphone,
	}
	if snap.Direction == callsession.CallDirectionInbound {
		draft.FromNumber = snap.Number
	} else {
		draft.ToNumber = snap.Number
	}
	if snap.ProviderCallID != "" {
		id := snap.ProviderCallID
		draft.ProviderCallID = &id
	}

	if _, err := r.backend.LogCall(ctx, draft); err != nil {
		metrics.CallLogPersistFailures.Inc()
		r.cfg.Warn("Call ended but the log could not be saved")
		return &PersistError{Err: err}
	}

	metrics.CallsLogged.WithLabelValues(string(status)).Inc()

	// Background refresh so the finished call shows up without the
	// operator asking for it.
	go func() {
		if err := r.Refresh(context.Background()); err != nil {
			logger.Warn("post-submission call log refresh failed", zap.Error(err))
		}
	}()

	return nil
}

// Refresh fetches the lead's call logs, mirrors them locally and re-decides
// whether the analysis poll needs to run. Concurrent refreshes collapse
// into one; the poll timer is replaced on completion, never stacked.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.refreshing || r.closed {
		r.mu.Unlock()
		return nil
	}
	r.refreshing = true
	r.mu.Unlock()

	records, err := r.backend.ListCallLogs(ctx, r.cfg.LeadID, r.cfg.Limit)

	r.mu.Lock()
	r.refreshing = false
	if err != nil {
		r.reschedulePollLocked()
		r.mu.Unlock()
		return fmt.Errorf("refresh call logs: %w", err)
	}
	r.records = records
	r.reschedulePollLocked()
	db := r.db
	r.mu.Unlock()

	if db != nil {
		if err := models.UpsertCallLogs(db, records); err != nil {
			logger.Warn("mirroring call logs failed", zap.Error(err))
		}
	}
	return nil
}

// reschedulePollLocked replaces the poll timer according to the current records.
func (r *Reconciler) reschedulePollLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.closed || !needsPolling(r.records, r.now(), r.cfg.PendingWindow) {
		return
	}
	r.timer = time.AfterFunc(r.cfg.PollInterval, func() {
		metrics.AnalysisPollTicks.Inc()
		if err := r.Refresh(context.Background()); err != nil {
			logger.Warn("analysis poll refresh failed", zap.Error(err))
		}
	})
}

// needsPolling reports whether any record justifies the background poll:
// young enough to still change, with an analysis field pending (or
// effectively pending for AI-dialer defaults).
func needsPolling(records []models.CallLogRecord, now time.Time, window time.Duration) bool {
	for i := range records {
		rec := &records[i]
		age := now.Sub(recordTime(rec))
		if age >= window {
			continue
		}
		if rec.AnalysisPending() {
			return true
		}
	}
	return false
}

// recordTime picks the best timestamp for the polling age check.
func recordTime(rec *models.CallLogRecord) time.Time {
	if !rec.StartedAt.IsZero() {
		return rec.StartedAt
	}
	return rec.CreatedAt
}

// Records returns a copy of the last fetched call-log list.
func (r *Reconciler) Records() []models.CallLogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.CallLogRecord, len(r.records))
	copy(out, r.records)
	return out
}

// PollingActive reports whether the analysis poll timer is scheduled.
func (r *Reconciler) PollingActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Stop cancels the poll timer. The reconciler accepts no work afterwards.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
