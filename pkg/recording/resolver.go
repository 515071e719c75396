// Package recording resolves playable recordings for finished calls. Each
// call-log record resolves independently: directly playable URLs win
// immediately, otherwise the provider proxy is fetched and the payload is
// parked in local storage behind a stable URL.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/EchoDesk/internal/models"
	"github.com/code-100-precent/EchoDesk/pkg/backend"
	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/metrics"
	stores "github.com/code-100-precent/EchoDesk/pkg/storage"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/youpy/go-wav"
	"go.uber.org/zap"
)

// ErrRecordingUnavailable means the call never produced a recording: the
// record carries neither a session identifier nor a recording pointer.
// A normal silent end-state, not a failure.
var ErrRecordingUnavailable = errors.New("no recording available for this call")

// FetchError means a recording was expected but could not be retrieved.
type FetchError struct {
	CallLogID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch recording for call log %s: %v", e.CallLogID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// State 录音解析状态
type State int

const (
	StateUnresolved State = iota
	StateLoading
	StateReady
	StateUnavailable
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Resolution is the per-record outcome. URL is set only in StateReady;
// Err carries ErrRecordingUnavailable or a *FetchError for the terminal
// failure states, never both for one attempt.
type Resolution struct {
	CallLogID  string        `json:"callLogId"`
	State      State         `json:"-"`
	StateName  string        `json:"state"`
	URL        string        `json:"url,omitempty"`
	Duration   time.Duration `json:"-"`
	SampleRate int           `json:"sampleRate,omitempty"`
	Err        error         `json:"-"`
}

// ProxyFetcher is the slice of the backend client the resolver needs.
type ProxyFetcher interface {
	GetRecording(ctx context.Context, callLogID string) (*backend.RecordingPayload, error)
}

const resolvedCacheTTL = time.Hour

// Resolver drives the per-record state machine. Selecting a new record
// cancels any in-flight resolution for the previous one so a slow fetch
// can never overwrite a newer selection. Re-polling the record currently
// being fetched leaves that fetch alone.
type Resolver struct {
	mu       sync.Mutex
	backend  ProxyFetcher
	store    stores.Store
	resolved *gocache.Cache
	states   map[string]*Resolution

	// generation advances whenever a fetch is superseded; a fetch commits
	// its outcome only if its generation is still current.
	generation uint64
	current    string
	cancel     context.CancelFunc
}

// NewResolver 创建录音解析器
func NewResolver(fetcher ProxyFetcher, store stores.Store, cacheTTL time.Duration) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = resolvedCacheTTL
	}
	return &Resolver{
		backend:  fetcher,
		store:    store,
		resolved: gocache.New(cacheTTL, 2*cacheTTL),
		states:   map[string]*Resolution{},
	}
}

// Resolve starts (or short-circuits) resolution for the given record and
// returns the immediately known state. A Loading result means a fetch is
// in flight; poll again for the terminal state. Callers do not control the
// fetch lifetime: it runs detached and is cancelled only when a different
// record is selected or the resolver stops.
func (r *Resolver) Resolve(rec *models.CallLogRecord) Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The client polls this record until it turns terminal; those polls
	// must not restart the fetch already in flight for it.
	if r.cancel != nil && r.current == rec.ID {
		if res, ok := r.states[rec.ID]; ok && res.State == StateLoading {
			return *res
		}
	}

	r.generation++
	gen := r.generation
	if r.cancel != nil {
		// A previous record's fetch may still be running; its outcome
		// is stale now either way.
		r.cancel()
		r.cancel = nil
	}
	r.current = rec.ID

	if cached, ok := r.resolved.Get(rec.ID); ok {
		res := cached.(Resolution)
		r.states[rec.ID] = &res
		return res
	}

	if url := directURL(rec); url != "" {
		res := r.commitLocked(rec.ID, Resolution{State: StateReady, URL: url})
		metrics.RecordingResolutions.WithLabelValues("ready").Inc()
		return res
	}

	if rec.RecordingSID == nil && rec.AIRecordingURL == nil {
		res := r.commitLocked(rec.ID, Resolution{State: StateUnavailable, Err: ErrRecordingUnavailable})
		metrics.RecordingResolutions.WithLabelValues("unavailable").Inc()
		return res
	}

	loading := r.commitLocked(rec.ID, Resolution{State: StateLoading})

	fetchCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.fetch(fetchCtx, gen, rec.ID)

	return loading
}

// Lookup returns the last known resolution for a record.
func (r *Resolver) Lookup(callLogID string) (Resolution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.states[callLogID]
	if !ok {
		return Resolution{CallLogID: callLogID, State: StateUnresolved, StateName: StateUnresolved.String()}, false
	}
	return *res, true
}

// Stop cancels any in-flight resolution.
func (r *Resolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Resolver) fetch(ctx context.Context, gen uint64, callLogID string) {
	payload, err := r.backend.GetRecording(ctx, callLogID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.finish(gen, callLogID, Resolution{
			State: StateFailed,
			Err:   &FetchError{CallLogID: callLogID, Err: err},
		}, false)
		metrics.RecordingResolutions.WithLabelValues("failed").Inc()
		return
	}

	if payload.URL != "" {
		r.finish(gen, callLogID, Resolution{State: StateReady, URL: payload.URL}, true)
		metrics.RecordingResolutions.WithLabelValues("ready").Inc()
		return
	}

	key := storeKey(callLogID, payload.ContentType)
	if err := r.store.Write(key, bytes.NewReader(payload.Data)); err != nil {
		r.finish(gen, callLogID, Resolution{
			State: StateFailed,
			Err:   &FetchError{CallLogID: callLogID, Err: err},
		}, false)
		metrics.RecordingResolutions.WithLabelValues("failed").Inc()
		return
	}

	res := Resolution{State: StateReady, URL: r.store.PublicURL(key)}
	res.Duration, res.SampleRate = probeWAV(payload.Data)
	r.finish(gen, callLogID, res, true)
	metrics.RecordingResolutions.WithLabelValues("ready").Inc()
}

// finish commits a fetch outcome unless a newer Resolve superseded it.
func (r *Resolver) finish(gen uint64, callLogID string, res Resolution, cacheIt bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		logger.Debug("丢弃过期的录音解析结果",
			zap.String("callLogId", callLogID),
			zap.String("state", res.State.String()))
		return
	}
	r.cancel = nil
	committed := r.commitLocked(callLogID, res)
	if cacheIt {
		r.resolved.Set(callLogID, committed, gocache.DefaultExpiration)
	}
}

func (r *Resolver) commitLocked(callLogID string, res Resolution) Resolution {
	res.CallLogID = callLogID
	res.StateName = res.State.String()
	r.states[callLogID] = &res
	return res
}

// directURL returns a URL the player can use without any fetch: an
// absolute URL or an inline data: payload on the record.
func directURL(rec *models.CallLogRecord) string {
	if rec.ResolveProvider() != models.ProviderAIDialer || rec.AIRecordingURL == nil {
		return ""
	}
	u := *rec.AIRecordingURL
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "data:") {
		return u
	}
	return ""
}

func storeKey(callLogID, contentType string) string {
	ext := ".wav"
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return callLogID + "-" + uuid.NewString() + ext
}

// probeWAV reads duration and sample rate from a WAV payload. Non-WAV or
// malformed payloads are still playable via the stored URL, so failures
// here only zero the metadata.
func probeWAV(data []byte) (time.Duration, int) {
	w := wav.NewReader(bytes.NewReader(data))
	format, err := w.Format()
	if err != nil {
		return 0, 0
	}
	d, err := w.Duration()
	if err != nil {
		return 0, int(format.SampleRate)
	}
	return d, int(format.SampleRate)
}
