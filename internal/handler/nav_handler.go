// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"
	"humanly-server/internal/guard"
	"humanly-server/internal/middleware"
	"humanly-server/internal/repository"
	"humanly-server/internal/service"
	"humanly-server/pkg/response"
)

// NavHandler 导航决策处理器
// 前端每次路由变化时调用，由服务端统一决定是否跳转
type NavHandler struct {
	guard        *guard.Guard
	profileRepo  *repository.ProfileRepository
	coachService *service.CoachService
}

// NewNavHandler 创建 NavHandler 实例
func NewNavHandler(g *guard.Guard, profileRepo *repository.ProfileRepository, coachService *service.CoachService) *NavHandler {
	return &NavHandler{
		guard:        g,
		profileRepo:  profileRepo,
		coachService: coachService,
	}
}

// NavResponse 导航决策响应
type NavResponse struct {
	State    string `json:"state"`            // 会话所处阶段
	Navigate bool   `json:"navigate"`         // 是否需要跳转
	Target   string `json:"target,omitempty"` // 跳转目标路径
	Welcome  bool   `json:"welcome"`          // 是否展示欢迎提示
}

// Evaluate 评估当前路径的导航决策
// @Summary 导航决策
// @Description 根据认证与引导状态决定是否跳转，每次状态迁移最多下发一次跳转
// @Tags 导航
// @Security Bearer
// @Produce json
// @Param path query string true "当前路径"
// @Success 200 {object} response.Response{data=NavResponse}
// @Router /api/v1/nav [get]
func (h *NavHandler) Evaluate(c *gin.Context) {
	userID := middleware.GetUserID(c)

	path := c.Query("path")
	if path == "" {
		response.BadRequest(c, "缺少 path 参数")
		return
	}

	// 路由挂在认证中间件之后，能走到这里的都是已认证用户
	input := guard.Input{
		Authenticated: true,
		Path:          path,
	}

	profile, err := h.profileRepo.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		// 档案暂时取不到时不做跳转决策，等下一次评估
		input.ProfileLoading = true
	} else if profile != nil {
		input.Onboarded = profile.Onboarded
	}

	decision := h.guard.Evaluate(userID, input)

	// 欢迎提示只在登录成功标记存在时出现，消费后不再触发
	welcome := decision.Welcome
	if welcome {
		welcome = h.coachService.SessionState(userID).ConsumeLoginSuccess(c.Request.Context())
	}

	response.Success(c, NavResponse{
		State:    string(decision.State),
		Navigate: decision.Navigate,
		Target:   decision.Target,
		Welcome:  welcome,
	})
}
