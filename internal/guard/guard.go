// Package guard 实现认证驱动的导航守卫
// 客户端每次认证/档案状态变化时调用导航接口，由这里统一裁决是否跳转
// 全部跳转决策收敛到这一个状态机，客户端各组件只读结果，不再各自发起跳转
package guard

import (
	"sync"
	"time"
)

// State 守卫状态
type State string

const (
	// StateNeedsLogin 未登录，需要去登录页
	StateNeedsLogin State = "needs-login"

	// StateNeedsOnboarding 已登录但未完成引导问卷
	StateNeedsOnboarding State = "needs-onboarding"

	// StateReady 就绪，无需任何跳转
	StateReady State = "ready"
)

// 目标路径常量
const (
	PathLogin      = "/login"
	PathOnboarding = "/onboarding"
	PathDashboard  = "/dashboard"
)

// authPages 认证相关页面
// 已登录且已完成引导的用户停留在这些页面时会被送回主页
var authPages = map[string]bool{
	"/login":  true,
	"/signup": true,
	"/auth":   true,
}

// exemptPages 豁免页面
// 密码重置流程不受任何跳转规则约束
var exemptPages = map[string]bool{
	"/reset-password":  true,
	"/update-password": true,
}

// Input 一次裁决的输入
type Input struct {
	Authenticated  bool   // 是否已登录
	Onboarded      bool   // 是否已完成引导问卷
	ProfileLoading bool   // 档案是否仍在加载（登录刚完成、档案未就绪）
	Path           string // 客户端当前路径
}

// Decision 裁决结果
type Decision struct {
	State    State  `json:"state"`              // 当前状态
	Navigate bool   `json:"navigate"`           // 是否需要跳转
	Target   string `json:"target,omitempty"`   // 跳转目标
	Welcome  bool   `json:"welcome,omitempty"`  // 是否展示欢迎提示
}

// Guard 导航守卫
// 每个状态迁移最多下发一次跳转：裁决后进入冷却期，
// 冷却期内重复的裁决请求只返回状态、不再下发跳转，以此抑制跳转循环
type Guard struct {
	cooldown time.Duration
	now      func() time.Time // 可注入时钟，方便测试

	mu      sync.Mutex
	lastNav map[int64]time.Time // userID -> 上次下发跳转的时间
}

// New 创建 Guard 实例
// 参数:
//   - cooldown: 跳转冷却时间
func New(cooldown time.Duration) *Guard {
	return &Guard{
		cooldown: cooldown,
		now:      time.Now,
		lastNav:  make(map[int64]time.Time),
	}
}

// SetClock 注入时钟（测试用）
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// Evaluate 对当前认证状态做一次裁决
// 规则（按优先级）:
//  1. 豁免页面 → 不跳转
//  2. 档案加载中 → 压制全部跳转，避免引导状态未知时误判
//  3. 已登录 ∧ 未引导 ∧ 不在引导页 → 跳引导页
//  4. 已登录 ∧ 已引导 ∧ 在认证页 → 跳主页，附带欢迎提示
//  5. 未登录 ∧ 不在认证页 ∧ 不在公开首页 → 跳登录页
//
// 参数:
//   - userID: 用户ID（未登录时为 0）
//   - in: 裁决输入
//
// 返回:
//   - Decision: 裁决结果
func (g *Guard) Evaluate(userID int64, in Input) Decision {
	state := g.classify(in)

	// 豁免页面不受任何规则约束
	if exemptPages[in.Path] {
		return Decision{State: state}
	}

	// 档案未就绪时不做任何跳转，防止"未引导"的误报
	if in.ProfileLoading {
		return Decision{State: state}
	}

	decision := Decision{State: state}
	switch {
	case in.Authenticated && !in.Onboarded && in.Path != PathOnboarding:
		decision.Navigate = true
		decision.Target = PathOnboarding

	case in.Authenticated && in.Onboarded && authPages[in.Path]:
		decision.Navigate = true
		decision.Target = PathDashboard
		decision.Welcome = true

	case !in.Authenticated && !authPages[in.Path] && in.Path != "/":
		decision.Navigate = true
		decision.Target = PathLogin
	}

	if !decision.Navigate {
		return decision
	}

	// 冷却期内不再重复下发跳转
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.lastNav[userID]; ok && now.Sub(last) < g.cooldown {
		decision.Navigate = false
		decision.Target = ""
		decision.Welcome = false
		return decision
	}
	g.lastNav[userID] = now
	return decision
}

// classify 计算当前状态
func (g *Guard) classify(in Input) State {
	switch {
	case !in.Authenticated:
		return StateNeedsLogin
	case !in.Onboarded && !in.ProfileLoading:
		return StateNeedsOnboarding
	default:
		return StateReady
	}
}
