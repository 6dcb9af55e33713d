// Package response 提供统一的 HTTP 响应格式
// 所有 API 都使用相同的响应结构，便于前端处理
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
// code: 业务状态码（0 表示成功）
// message: 提示信息
// data: 响应数据
type Response struct {
	Code    int         `json:"code"`           // 业务状态码
	Message string      `json:"message"`        // 提示信息
	Data    interface{} `json:"data,omitempty"` // 响应数据，可选
}

// 业务状态码定义
const (
	CodeSuccess       = 0    // 成功
	CodeBadRequest    = 1000 // 请求参数错误
	CodeUnauthorized  = 1001 // 未授权
	CodeForbidden     = 1002 // 禁止访问
	CodeNotFound      = 1003 // 资源不存在
	CodeInternalError = 1004 // 服务器内部错误
	CodeUserExists    = 1101 // 用户已存在
	CodeUserNotFound  = 1102 // 用户不存在
	CodePasswordWrong = 1103 // 密码错误
	CodeQuotaExceeded = 1201 // 对话额度已用完
	CodeAIKeyInvalid  = 1202 // AI 服务密钥无效
	CodeAIUnavailable = 1203 // AI 服务暂不可用
	CodeSendInFlight  = 1204 // 已有请求处理中
	CodeRateLimited   = 1205 // 发送过于频繁
)

// Success 返回成功响应
// 参数:
//   - c: Gin 上下文
//   - data: 响应数据，可以是任意类型
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 返回成功响应（带自定义消息）
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 返回错误响应
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - message: 错误信息
func Error(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    httpCode,
		Message: message,
	})
}

// ErrorWithCode 返回错误响应（带业务状态码）
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - bizCode: 业务状态码
//   - message: 错误信息
func ErrorWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// BadRequest 返回 400 错误（请求参数错误）
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodeBadRequest,
		Message: message,
	})
}

// Unauthorized 返回 401 错误（未授权）
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    CodeUnauthorized,
		Message: message,
	})
}

// Forbidden 返回 403 错误（禁止访问）
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Code:    CodeForbidden,
		Message: message,
	})
}

// NotFound 返回 404 错误（资源不存在）
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeNotFound,
		Message: message,
	})
}

// InternalError 返回 500 错误（服务器内部错误）
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Code:    CodeInternalError,
		Message: message,
	})
}

// UserExists 返回用户已存在错误
func UserExists(c *gin.Context) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodeUserExists,
		Message: "用户名已存在",
	})
}

// UserNotFound 返回用户不存在错误
func UserNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeUserNotFound,
		Message: "用户不存在",
	})
}

// PasswordWrong 返回密码错误
func PasswordWrong(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    CodePasswordWrong,
		Message: "密码错误",
	})
}

// QuotaExceeded 返回对话额度已用完错误
// 附带升级引导链接，前端据此展示升级入口
func QuotaExceeded(c *gin.Context) {
	c.JSON(http.StatusPaymentRequired, Response{
		Code:    CodeQuotaExceeded,
		Message: "今日对话额度已用完，升级套餐可继续对话",
		Data:    gin.H{"upgrade_url": "/pricing"},
	})
}

// AIKeyInvalid 返回 AI 服务密钥无效错误
// 属于运维问题，用户侧不可操作
func AIKeyInvalid(c *gin.Context) {
	c.JSON(http.StatusBadGateway, Response{
		Code:    CodeAIKeyInvalid,
		Message: "AI 服务配置异常，请稍后再试",
	})
}

// AIUnavailable 返回 AI 服务暂不可用错误
func AIUnavailable(c *gin.Context) {
	c.JSON(http.StatusBadGateway, Response{
		Code:    CodeAIUnavailable,
		Message: "AI 服务暂时不可用，请稍后重试",
	})
}

// SendInFlight 返回已有请求处理中错误
func SendInFlight(c *gin.Context) {
	c.JSON(http.StatusConflict, Response{
		Code:    CodeSendInFlight,
		Message: "上一条消息还在处理中",
	})
}

// RateLimited 返回发送过于频繁错误
func RateLimited(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, Response{
		Code:    CodeRateLimited,
		Message: "发送过于频繁，请稍后再试",
	})
}

// Created 返回 201 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "创建成功",
		Data:    data,
	})
}

// NoContent 返回 204 无内容响应（用于删除操作）
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
