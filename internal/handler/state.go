package handlers

import (
	"net/http"
	"time"

	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var stateUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// statePushInterval paces the websocket state feed roughly at the meter's
// own refresh rate; pushing faster would only repeat identical frames.
const statePushInterval = 100 * time.Millisecond

func (h *Handlers) stateSnapshot() gin.H {
	snap := h.machine.Snapshot()
	return gin.H{
		"phase":          snap.Phase.String(),
		"number":         snap.Number,
		"direction":      snap.Direction,
		"providerCallId": snap.ProviderCallID,
		"statusMessage":  h.machine.StatusMessage(),
		"volumeLevel":    h.meter.VolumeLevel(),
		"waveform":       h.meter.Waveform(),
		"meterRunning":   h.meter.Running(),
		"meterDenied":    h.meter.Denied(),
	}
}

// State returns the current call phase, status line and meter levels.
func (h *Handlers) State(c *gin.Context) {
	response.Success(c, "console state", h.stateSnapshot())
}

// StateWebSocket 推送实时状态（电话阶段 + 音量波形）
func (h *Handlers) StateWebSocket(c *gin.Context) {
	conn, err := stateUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("state websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statePushInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(h.stateSnapshot()); err != nil {
			return
		}
	}
}
