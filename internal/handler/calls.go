package handlers

import (
	"errors"

	"github.com/code-100-precent/EchoDesk/pkg/response"
	"github.com/code-100-precent/EchoDesk/pkg/signaling"
	"github.com/gin-gonic/gin"
)

// PlaceCallRequest 发起外呼请求
type PlaceCallRequest struct {
	Number string `json:"number" binding:"required"`
}

// PlaceCall dials an outbound call to a normalized E.164 number.
func (h *Handlers) PlaceCall(c *gin.Context) {
	var req PlaceCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "参数错误", err.Error())
		return
	}

	if err := h.manager.PlaceCall(c.Request.Context(), req.Number); err != nil {
		var invalid *signaling.InvalidNumberError
		switch {
		case errors.As(err, &invalid):
			response.Fail(c, "无效的电话号码", invalid.Number)
		case errors.Is(err, signaling.ErrNotConfigured):
			response.Fail(c, "未配置软电话服务", "contact your administrator")
		default:
			response.Fail(c, "呼叫失败", err.Error())
		}
		return
	}

	response.Success(c, "calling", h.stateSnapshot())
}

// AnswerIncoming answers the ringing incoming call, if any.
func (h *Handlers) AnswerIncoming(c *gin.Context) {
	if err := h.manager.AnswerIncoming(c.Request.Context()); err != nil {
		response.Fail(c, "接听失败", err.Error())
		return
	}
	response.Success(c, "answered", h.stateSnapshot())
}

// DeclineIncoming rejects the ringing incoming call, if any.
func (h *Handlers) DeclineIncoming(c *gin.Context) {
	if err := h.manager.DeclineIncoming(c.Request.Context()); err != nil {
		response.Fail(c, "拒接失败", err.Error())
		return
	}
	response.Success(c, "declined", h.stateSnapshot())
}

// HangUp ends the active call. Always succeeds from the caller's point of
// view: the surface returns to idle even if the provider-side disconnect
// fails.
func (h *Handlers) HangUp(c *gin.Context) {
	h.manager.HangUp()
	response.Success(c, "hung up", h.stateSnapshot())
}
