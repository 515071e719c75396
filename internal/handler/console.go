// Package handlers exposes the operator console surface over HTTP: call
// control, live meter state, the per-lead call history, and recording
// resolution.
package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/code-100-precent/EchoDesk/pkg/audiometer"
	"github.com/code-100-precent/EchoDesk/pkg/backend"
	"github.com/code-100-precent/EchoDesk/pkg/calllog"
	"github.com/code-100-precent/EchoDesk/pkg/callsession"
	"github.com/code-100-precent/EchoDesk/pkg/config"
	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/recording"
	"github.com/code-100-precent/EchoDesk/pkg/response"
	"github.com/code-100-precent/EchoDesk/pkg/signaling"
	stores "github.com/code-100-precent/EchoDesk/pkg/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handlers struct {
	db       *gorm.DB
	machine  *callsession.Machine
	manager  *signaling.Manager
	meter    *audiometer.Meter
	resolver *recording.Resolver
	backend  *backend.Client
	store    stores.Store

	mu         sync.Mutex
	leadID     string
	reconciler *calllog.Reconciler
}

func NewHandlers(db *gorm.DB, machine *callsession.Machine, manager *signaling.Manager,
	meter *audiometer.Meter, resolver *recording.Resolver, client *backend.Client, store stores.Store) *Handlers {
	return &Handlers{
		db:       db,
		machine:  machine,
		manager:  manager,
		meter:    meter,
		resolver: resolver,
		backend:  client,
		store:    store,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/healthz", h.HealthCheck)
	engine.GET("/recordings/*key", h.ServeRecording)

	r := engine.Group(config.GlobalConfig.APIPrefix)

	r.GET("/state", h.State)
	r.GET("/ws", h.StateWebSocket)

	calls := r.Group("/calls")
	{
		calls.POST("", h.PlaceCall)
		calls.POST("/answer", h.AnswerIncoming)
		calls.POST("/decline", h.DeclineIncoming)
		calls.POST("/hangup", h.HangUp)
	}

	leads := r.Group("/leads/:leadId")
	{
		leads.POST("/open", h.OpenLead)
		leads.GET("/call-logs", h.ListCallLogs)
		leads.POST("/ai-calls", h.InitiateAICall)
	}

	r.POST("/call-logs/refresh", h.RefreshCallLogs)
	r.GET("/call-logs/:id/recording", h.OpenRecording)
}

// ActiveReconciler returns the reconciler for the currently opened lead,
// or nil when no lead surface is open.
func (h *Handlers) ActiveReconciler() *calllog.Reconciler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reconciler
}

// OpenLead mounts the call surface for a lead: registers the signaling
// device, starts the microphone meter and begins reconciling that lead's
// call history. Opening a different lead replaces the previous session.
func (h *Handlers) OpenLead(c *gin.Context) {
	leadID := c.Param("leadId")
	if leadID == "" {
		response.Fail(c, "参数错误", "leadId is required")
		return
	}

	h.mu.Lock()
	if h.reconciler != nil && h.leadID != leadID {
		h.reconciler.Stop()
		h.reconciler = nil
	}
	if h.reconciler == nil {
		h.leadID = leadID
		h.reconciler = calllog.NewReconciler(h.backend, h.db, calllog.Config{
			LeadID:        leadID,
			Limit:         config.GlobalConfig.CallLogLimit,
			PollInterval:  config.GlobalConfig.AnalysisPollInterval,
			PendingWindow: config.GlobalConfig.AnalysisPendingWindow,
			Warn:          h.machine.SetStatusMessage,
		})
	}
	rec := h.reconciler
	h.mu.Unlock()

	if _, err := h.manager.EnsureReady(c.Request.Context()); err != nil {
		// The status line already explains the failure; the surface
		// still opens so the history remains browsable.
		logger.Warn("signaling device not ready", zap.String("leadId", leadID), zap.Error(err))
	}

	if !h.meter.Denied() {
		if err := h.meter.Start(); err != nil {
			logger.Warn("audio meter failed to start", zap.Error(err))
		}
	}

	go func() {
		if err := rec.Refresh(context.Background()); err != nil {
			logger.Warn("initial call log refresh failed", zap.String("leadId", leadID), zap.Error(err))
		}
	}()

	response.Success(c, "lead surface opened", gin.H{"leadId": leadID})
}

// Teardown closes the surface in order: meter, signaling, reconciler,
// resolver. Best effort: each step runs regardless of earlier failures.
func (h *Handlers) Teardown() {
	h.meter.Stop()
	h.manager.Teardown()

	h.mu.Lock()
	rec := h.reconciler
	h.reconciler = nil
	h.mu.Unlock()
	if rec != nil {
		rec.Stop()
	}

	h.resolver.Stop()
}

// HealthCheck health check endpoint
func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		response.FailWithStatus(c, http.StatusServiceUnavailable, "unhealthy", "database connection failed")
		return
	}
	if err := sqlDB.Ping(); err != nil {
		response.FailWithStatus(c, http.StatusServiceUnavailable, "unhealthy", "database ping failed")
		return
	}
	response.Success(c, "healthy", nil)
}
