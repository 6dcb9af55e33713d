// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"
	"humanly-server/internal/middleware"
	"humanly-server/internal/service"
	"humanly-server/pkg/response"
)

// UserHandler 用户请求处理器
// 处理用户信息、教练档案、打卡和成就相关的请求
type UserHandler struct {
	userService   *service.UserService
	streakService *service.StreakService
}

// NewUserHandler 创建 UserHandler 实例
func NewUserHandler(userService *service.UserService, streakService *service.StreakService) *UserHandler {
	return &UserHandler{
		userService:   userService,
		streakService: streakService,
	}
}

// GetMe 获取当前用户信息
// @Summary 获取当前用户信息
// @Description 返回用户基本信息和教练档案
// @Tags 用户
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=model.User}
// @Router /api/v1/users/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := middleware.GetUserID(c)

	user, err := h.userService.GetMe(c.Request.Context(), userID)
	if err != nil {
		if err == service.ErrUserNotFound {
			response.UserNotFound(c)
			return
		}
		response.InternalError(c, "获取用户信息失败")
		return
	}

	response.Success(c, user)
}

// UpdateProfile 更新教练档案
// @Summary 更新教练档案
// @Description 更新原型、教练模式或订阅档位，变更会在下一次对话时生效
// @Tags 用户
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.UpdateProfileRequest true "档案变更"
// @Success 200 {object} response.Response{data=model.Profile}
// @Router /api/v1/users/me [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	profile, err := h.userService.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		if err == service.ErrProfileNotFound {
			response.NotFound(c, "用户档案不存在")
			return
		}
		response.InternalError(c, "更新档案失败")
		return
	}

	response.SuccessWithMessage(c, "档案已更新", profile)
}

// CompleteOnboarding 完成引导问卷
// @Summary 完成引导问卷
// @Description 提交问卷结果，完成后导航守卫放行到主界面
// @Tags 用户
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.OnboardingRequest true "问卷结果"
// @Success 200 {object} response.Response{data=model.Profile}
// @Router /api/v1/users/me/onboarding [post]
func (h *UserHandler) CompleteOnboarding(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	profile, err := h.userService.CompleteOnboarding(c.Request.Context(), userID, &req)
	if err != nil {
		if err == service.ErrProfileNotFound {
			response.NotFound(c, "用户档案不存在")
			return
		}
		response.InternalError(c, "提交问卷失败")
		return
	}

	response.SuccessWithMessage(c, "引导完成", profile)
}

// GetStreak 获取连续打卡记录
// @Summary 获取连续打卡记录
// @Tags 用户
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=model.Streak}
// @Router /api/v1/streak [get]
func (h *UserHandler) GetStreak(c *gin.Context) {
	userID := middleware.GetUserID(c)

	streak, err := h.streakService.GetStreak(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "获取打卡记录失败")
		return
	}

	response.Success(c, streak)
}

// ListAchievements 获取已解锁的成就
// @Summary 获取已解锁的成就
// @Tags 用户
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=[]model.Achievement}
// @Router /api/v1/achievements [get]
func (h *UserHandler) ListAchievements(c *gin.Context) {
	userID := middleware.GetUserID(c)

	achievements, err := h.streakService.ListAchievements(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "获取成就失败")
		return
	}

	response.Success(c, achievements)
}
