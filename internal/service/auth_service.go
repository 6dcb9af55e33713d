// Package service 提供业务逻辑层的实现
// 服务层封装具体的业务逻辑，协调 Repository 和 Cache
package service

import (
	"context"
	"errors"
	"time"

	"humanly-server/internal/cache"
	"humanly-server/internal/model"
	"humanly-server/internal/repository"
	"humanly-server/pkg/jwt"
	"humanly-server/pkg/util"
)

// 定义业务错误
var (
	ErrUserExists    = errors.New("用户名已存在")
	ErrEmailExists   = errors.New("邮箱已被注册")
	ErrUserNotFound  = errors.New("用户不存在")
	ErrPasswordWrong = errors.New("密码错误")
	ErrUserDisabled  = errors.New("账号已被禁用")
)

// AuthService 认证服务
// 处理用户注册、登录、登出
type AuthService struct {
	userRepo    *repository.UserRepository    // 用户数据访问层
	profileRepo *repository.ProfileRepository // 档案数据访问层
	cache       *cache.RedisCache             // Redis 缓存
	jwtService  *jwt.JWTService               // JWT 服务
	coach       *CoachService                 // 对话服务（登录/登出时维护会话状态）
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	userRepo *repository.UserRepository,
	profileRepo *repository.ProfileRepository,
	cache *cache.RedisCache,
	jwtService *jwt.JWTService,
	coach *CoachService,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		cache:       cache,
		jwtService:  jwtService,
		coach:       coach,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"` // 用户名
	Password string `json:"password" binding:"required,min=6"`        // 密码
	Email    string `json:"email" binding:"omitempty,email"`          // 邮箱（可选）
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Register 用户注册
// 注册成功后立即创建空白档案，引导问卷完成前 Onboarded 为 false
// 参数:
//   - ctx: 上下文
//   - req: 注册请求
//
// 返回:
//   - *RegisterResponse: 注册成功返回用户信息
//   - error: 注册失败返回错误（用户名/邮箱已存在等）
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	// 1. 检查用户名是否已存在
	exists, err := s.userRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	// 2. 如果提供了邮箱，检查邮箱是否已存在
	if req.Email != "" {
		exists, err = s.userRepo.ExistsByEmail(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrEmailExists
		}
	}

	// 3. 对密码进行哈希
	// 使用 bcrypt 算法，自动添加盐值
	passwordHash, err := util.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	// 4. 创建用户
	user := &model.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
		Status:       1, // 正常状态
	}
	if req.Email != "" {
		user.Email = &req.Email
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	// 5. 创建空白档案
	profile := &model.Profile{
		UserID:           user.ID,
		SubscriptionTier: model.TierFree,
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return nil, err
	}

	return &RegisterResponse{
		UserID:   user.ID,
		Username: user.Username,
	}, nil
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // 用户名
	Password string `json:"password" binding:"required"` // 密码
}

// LoginResponse 登录响应
type LoginResponse struct {
	AccessToken  string      `json:"access_token"`  // 访问令牌
	RefreshToken string      `json:"refresh_token"` // 刷新令牌
	ExpiresIn    int64       `json:"expires_in"`    // 过期时间（秒）
	User         *model.User `json:"user"`          // 用户信息
}

// Login 用户登录
// 登录成功后建立新的对话会话：生成会话标识、清理旧的对话标记、
// 写入登录成功标记供导航守卫触发欢迎提示
// 参数:
//   - ctx: 上下文
//   - req: 登录请求
//
// 返回:
//   - *LoginResponse: 登录成功返回 Token 和用户信息
//   - error: 登录失败返回错误（用户不存在/密码错误）
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	// 1. 根据用户名查找用户
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	// 2. 验证密码
	if !util.CheckPassword(req.Password, user.PasswordHash) {
		return nil, ErrPasswordWrong
	}

	// 3. 检查用户状态
	if user.Status != 1 {
		return nil, ErrUserDisabled
	}

	// 4. 生成 Access Token
	accessToken, err := s.jwtService.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	// 5. 生成 Refresh Token
	refreshToken, err := s.jwtService.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	// 6. 建立新的对话会话
	s.coach.BeginSession(ctx, user.ID)

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtService.GetAccessExpire().Seconds()),
		User:         user,
	}, nil
}

// Logout 用户登出
// 将 Token 加入黑名单，结束对话会话并请求下次登录时展示全新对话
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - tokenHash: Token 的哈希值
//   - expireAt: Token 的过期时间
//
// 返回:
//   - error: 操作错误
func (s *AuthService) Logout(ctx context.Context, userID int64, tokenHash string, expireAt time.Time) error {
	// 将 Token 加入 Redis 黑名单，TTL 设为 Token 的剩余有效期
	if err := s.cache.BlacklistToken(ctx, tokenHash, expireAt); err != nil {
		return err
	}

	s.coach.EndSession(ctx, userID)
	return nil
}

// RefreshTokenResponse 刷新 Token 响应
type RefreshTokenResponse struct {
	AccessToken string `json:"access_token"` // 新的访问令牌
	ExpiresIn   int64  `json:"expires_in"`   // 过期时间（秒）
}

// RefreshToken 刷新 Access Token
// 参数:
//   - ctx: 上下文
//   - refreshToken: Refresh Token
//
// 返回:
//   - *RefreshTokenResponse: 新的 Access Token
//   - error: 刷新失败返回错误
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*RefreshTokenResponse, error) {
	// 1. 验证 Refresh Token
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	// 2. 检查用户是否仍然存在且正常
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Status != 1 {
		return nil, ErrUserDisabled
	}

	// 3. 生成新的 Access Token
	accessToken, err := s.jwtService.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	return &RefreshTokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.jwtService.GetAccessExpire().Seconds()),
	}, nil
}
