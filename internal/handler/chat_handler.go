// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"humanly-server/internal/chat"
	"humanly-server/internal/middleware"
	"humanly-server/internal/service"
	"humanly-server/pkg/response"
)

// ChatHandler 对话请求处理器
// 处理发送消息、重试、新对话、历史和用量
type ChatHandler struct {
	coachService *service.CoachService
}

// NewChatHandler 创建 ChatHandler 实例
func NewChatHandler(coachService *service.CoachService) *ChatHandler {
	return &ChatHandler{
		coachService: coachService,
	}
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"` // 消息内容
}

// SendMessageResponse 发送消息响应
type SendMessageResponse struct {
	Message chat.Message   `json:"message"` // 助手的最终回复
	Usage   chat.UsageInfo `json:"usage"`   // 本回合后的用量视图
}

// SendMessage 发送一条用户消息
// 流式增量通过 WebSocket 推送，此接口返回最终回复
// @Summary 发送消息
// @Description 发送用户消息并等待 AI 回复
// @Tags 对话
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body SendMessageRequest true "消息内容"
// @Success 200 {object} response.Response{data=SendMessageResponse}
// @Router /api/v1/chat/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	message, usage, err := h.coachService.SendMessage(c.Request.Context(), userID, req.Content)
	if err != nil {
		h.writeChatError(c, err)
		return
	}

	response.Success(c, SendMessageResponse{Message: message, Usage: usage})
}

// RetryMessage 重试上一条消息
// @Summary 重试上一条消息
// @Description 移除失败的助手回复并重新请求 AI
// @Tags 对话
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=chat.Message}
// @Router /api/v1/chat/retry [post]
func (h *ChatHandler) RetryMessage(c *gin.Context) {
	userID := middleware.GetUserID(c)

	message, err := h.coachService.RetryLastMessage(c.Request.Context(), userID)
	if err != nil {
		h.writeChatError(c, err)
		return
	}

	response.Success(c, message)
}

// NewChat 开启新对话
// @Summary 开启新对话
// @Description 清空当前会话的消息列表，远端历史保留
// @Tags 对话
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/chat/new [post]
func (h *ChatHandler) NewChat(c *gin.Context) {
	userID := middleware.GetUserID(c)

	if err := h.coachService.StartNewChat(c.Request.Context(), userID); err != nil {
		response.InternalError(c, "开启新对话失败")
		return
	}

	response.SuccessWithMessage(c, "已开启新对话", nil)
}

// HistoryResponse 历史消息响应
type HistoryResponse struct {
	Messages  []chat.Message `json:"messages"`             // 可见消息列表
	LastError string         `json:"last_error,omitempty"` // 最近一次对话错误的提示文案
}

// GetHistory 获取当前会话的消息列表
// @Summary 获取历史消息
// @Description 返回当前会话的可见消息，首次调用时从数据库或快照加载
// @Tags 对话
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=HistoryResponse}
// @Router /api/v1/chat/history [get]
func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID := middleware.GetUserID(c)

	messages, lastError, err := h.coachService.History(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "获取历史消息失败")
		return
	}

	response.Success(c, HistoryResponse{Messages: messages, LastError: lastError})
}

// PurgeHistory 永久删除全部对话历史
// @Summary 删除全部历史
// @Description 删除数据库记录和本地快照，不可恢复
// @Tags 对话
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/chat/history [delete]
func (h *ChatHandler) PurgeHistory(c *gin.Context) {
	userID := middleware.GetUserID(c)

	if err := h.coachService.PurgeHistory(c.Request.Context(), userID); err != nil {
		response.InternalError(c, "删除历史失败")
		return
	}

	response.SuccessWithMessage(c, "历史已删除", nil)
}

// GetUsage 获取当日用量
// @Summary 获取当日用量
// @Tags 对话
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=chat.UsageInfo}
// @Router /api/v1/usage [get]
func (h *ChatHandler) GetUsage(c *gin.Context) {
	userID := middleware.GetUserID(c)

	usage, err := h.coachService.Usage(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "获取用量失败")
		return
	}

	response.Success(c, usage)
}

// writeChatError 把对话业务错误映射为 HTTP 响应
func (h *ChatHandler) writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		response.BadRequest(c, "消息内容不能为空")
	case errors.Is(err, chat.ErrInFlight):
		response.SendInFlight(c)
	case errors.Is(err, chat.ErrQuotaExceeded):
		response.QuotaExceeded(c)
	case errors.Is(err, chat.ErrAIKeyInvalid):
		response.AIKeyInvalid(c)
	case errors.Is(err, chat.ErrAIUnavailable):
		response.AIUnavailable(c)
	case errors.Is(err, chat.ErrNothingToRetry):
		response.BadRequest(c, "没有可重试的消息")
	default:
		response.InternalError(c, "对话服务异常")
	}
}
