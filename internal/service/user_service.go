package service

import (
	"context"
	"errors"

	"humanly-server/internal/model"
	"humanly-server/internal/repository"
)

// ErrProfileNotFound 档案不存在
var ErrProfileNotFound = errors.New("用户档案不存在")

// UserService 用户服务
// 处理用户信息和教练档案相关的业务逻辑
type UserService struct {
	userRepo    *repository.UserRepository
	profileRepo *repository.ProfileRepository
	coach       *CoachService // 档案变更后需要让已缓存的对话会话失效
}

// NewUserService 创建 UserService 实例
func NewUserService(
	userRepo *repository.UserRepository,
	profileRepo *repository.ProfileRepository,
	coach *CoachService,
) *UserService {
	return &UserService{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		coach:       coach,
	}
}

// GetMe 获取当前用户信息（含档案）
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - *model.User: 用户信息
//   - error: 查询错误
func (s *UserService) GetMe(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Profile = profile
	return user, nil
}

// UpdateProfileRequest 更新档案请求
// 所有字段可选，只更新传入的字段
type UpdateProfileRequest struct {
	Archetype        *string `json:"archetype"`                                                    // 情商原型
	CoachingMode     *string `json:"coaching_mode"`                                                // 教练模式
	SubscriptionTier *string `json:"subscription_tier" binding:"omitempty,oneof=free basic premium"` // 订阅档位
}

// UpdateProfile 更新教练档案
// 档案变更会影响系统提示词和上下文窗口，因此更新后结束缓存中的对话会话，
// 下一次请求时按新档案重建
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - req: 更新请求
//
// 返回:
//   - *model.Profile: 更新后的档案
//   - error: 操作错误
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) (*model.Profile, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	if req.Archetype != nil {
		profile.Archetype = req.Archetype
	}
	if req.CoachingMode != nil {
		profile.CoachingMode = req.CoachingMode
	}
	if req.SubscriptionTier != nil {
		profile.SubscriptionTier = *req.SubscriptionTier
	}

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, err
	}

	s.coach.InvalidateSession(ctx, userID)
	return profile, nil
}

// OnboardingRequest 引导问卷提交请求
type OnboardingRequest struct {
	Archetype    string `json:"archetype" binding:"required,max=50"`     // 问卷得出的情商原型
	CoachingMode string `json:"coaching_mode" binding:"required,max=50"` // 选择的教练模式
}

// CompleteOnboarding 完成引导问卷
// 写入原型和教练模式，并将 Onboarded 置为 true
// 导航守卫在此之后会放行到主界面
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - req: 问卷结果
//
// 返回:
//   - *model.Profile: 更新后的档案
//   - error: 操作错误
func (s *UserService) CompleteOnboarding(ctx context.Context, userID int64, req *OnboardingRequest) (*model.Profile, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	profile.Archetype = &req.Archetype
	profile.CoachingMode = &req.CoachingMode
	profile.Onboarded = true

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, err
	}

	s.coach.InvalidateSession(ctx, userID)
	return profile, nil
}
