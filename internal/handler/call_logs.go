package handlers

import (
	"context"

	"github.com/code-100-precent/EchoDesk/internal/models"
	"github.com/code-100-precent/EchoDesk/pkg/config"
	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// ListCallLogs returns the ordered call history for a lead. The opened
// lead answers from the reconciler's in-memory list; any other lead is
// served from the local mirror.
func (h *Handlers) ListCallLogs(c *gin.Context) {
	leadID := c.Param("leadId")
	limit := cast.ToInt(c.Query("limit"))
	if limit <= 0 {
		limit = config.GlobalConfig.CallLogLimit
	}

	h.mu.Lock()
	rec := h.reconciler
	active := h.leadID == leadID && rec != nil
	h.mu.Unlock()

	if active {
		records := rec.Records()
		if len(records) > limit {
			records = records[:limit]
		}
		response.Success(c, "call logs", gin.H{
			"leadId":  leadID,
			"records": records,
			"polling": rec.PollingActive(),
		})
		return
	}

	records, err := models.GetCallLogsByLeadID(h.db, leadID, limit)
	if err != nil {
		response.Fail(c, "查询通话记录失败", err.Error())
		return
	}
	response.Success(c, "call logs", gin.H{
		"leadId":  leadID,
		"records": records,
		"polling": false,
	})
}

// RefreshCallLogs re-fetches the opened lead's history on demand.
func (h *Handlers) RefreshCallLogs(c *gin.Context) {
	rec := h.ActiveReconciler()
	if rec == nil {
		response.Fail(c, "没有打开的线索", "open a lead surface first")
		return
	}
	if err := rec.Refresh(c.Request.Context()); err != nil {
		response.Fail(c, "刷新通话记录失败", err.Error())
		return
	}
	response.Success(c, "refreshed", gin.H{"records": rec.Records()})
}

// InitiateAICall asks the backend to place an AI-dialer call to the lead.
// Fire and forget: the resulting record shows up through the normal
// call-log refresh, so a background refresh is kicked right away.
func (h *Handlers) InitiateAICall(c *gin.Context) {
	leadID := c.Param("leadId")

	callID, err := h.backend.InitiateAICall(c.Request.Context(), leadID)
	if err != nil {
		response.Fail(c, "AI外呼发起失败", err.Error())
		return
	}

	if rec := h.ActiveReconciler(); rec != nil {
		go func() {
			if err := rec.Refresh(context.Background()); err != nil {
				logger.Warn("call log refresh after ai call failed", zap.Error(err))
			}
		}()
	}

	response.Success(c, "ai call initiated", gin.H{"callId": callID})
}
