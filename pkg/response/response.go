// Package response 统一的HTTP响应格式
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body 统一响应结构
type Body struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Detail  interface{} `json:"detail,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Body{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Fail 失败响应（业务错误统一返回400）
func Fail(c *gin.Context, message string, detail interface{}) {
	c.JSON(http.StatusBadRequest, Body{
		Success: false,
		Message: message,
		Detail:  detail,
	})
}

// FailWithStatus 指定状态码的失败响应
func FailWithStatus(c *gin.Context, status int, message string, detail interface{}) {
	c.JSON(status, Body{
		Success: false,
		Message: message,
		Detail:  detail,
	})
}
