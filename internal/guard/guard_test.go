package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixedClock 可手动推进的测试时钟
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard() (*Guard, *fixedClock) {
	clock := &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := New(100 * time.Millisecond)
	g.SetClock(clock.now)
	return g, clock
}

func TestEvaluateNeedsOnboarding(t *testing.T) {
	g, _ := newTestGuard()

	d := g.Evaluate(1, Input{Authenticated: true, Onboarded: false, Path: "/dashboard"})
	require.Equal(t, StateNeedsOnboarding, d.State)
	require.True(t, d.Navigate)
	require.Equal(t, PathOnboarding, d.Target)

	// 已经在引导页则不跳转
	d = g.Evaluate(2, Input{Authenticated: true, Onboarded: false, Path: PathOnboarding})
	require.Equal(t, StateNeedsOnboarding, d.State)
	require.False(t, d.Navigate)
}

func TestEvaluateAuthPageRedirectsHome(t *testing.T) {
	g, _ := newTestGuard()

	for _, path := range []string{"/login", "/signup", "/auth"} {
		d := g.Evaluate(1, Input{Authenticated: true, Onboarded: true, Path: path})
		require.Equal(t, StateReady, d.State)
		require.True(t, d.Navigate, "path=%s", path)
		require.Equal(t, PathDashboard, d.Target)
		require.True(t, d.Welcome)

		g, _ = newTestGuard() // 每个路径独立验证，避开冷却
	}
}

func TestEvaluateUnauthenticated(t *testing.T) {
	g, _ := newTestGuard()

	d := g.Evaluate(0, Input{Authenticated: false, Path: "/dashboard"})
	require.Equal(t, StateNeedsLogin, d.State)
	require.True(t, d.Navigate)
	require.Equal(t, PathLogin, d.Target)

	// 公开首页和认证页不强制跳转
	g, _ = newTestGuard()
	d = g.Evaluate(0, Input{Authenticated: false, Path: "/"})
	require.False(t, d.Navigate)
	d = g.Evaluate(0, Input{Authenticated: false, Path: "/login"})
	require.False(t, d.Navigate)
}

func TestEvaluateExemptPages(t *testing.T) {
	g, _ := newTestGuard()

	// 密码重置流程不受任何规则约束
	for _, path := range []string{"/reset-password", "/update-password"} {
		d := g.Evaluate(0, Input{Authenticated: false, Path: path})
		require.False(t, d.Navigate, "path=%s", path)

		d = g.Evaluate(1, Input{Authenticated: true, Onboarded: false, Path: path})
		require.False(t, d.Navigate, "path=%s", path)
	}
}

func TestEvaluateProfileLoadingSuppressesAll(t *testing.T) {
	g, _ := newTestGuard()

	// 档案未就绪时不能把用户误判为未引导
	d := g.Evaluate(1, Input{Authenticated: true, Onboarded: false, ProfileLoading: true, Path: "/dashboard"})
	require.Equal(t, StateReady, d.State)
	require.False(t, d.Navigate)
}

func TestEvaluateCooldownSuppressesRepeats(t *testing.T) {
	g, clock := newTestGuard()
	in := Input{Authenticated: true, Onboarded: false, Path: "/dashboard"}

	// 第一次裁决下发跳转
	d := g.Evaluate(1, in)
	require.True(t, d.Navigate)

	// 冷却期内的重复裁决只返回状态
	clock.advance(30 * time.Millisecond)
	d = g.Evaluate(1, in)
	require.Equal(t, StateNeedsOnboarding, d.State)
	require.False(t, d.Navigate)
	require.Empty(t, d.Target)

	// 冷却结束后恢复下发
	clock.advance(200 * time.Millisecond)
	d = g.Evaluate(1, in)
	require.True(t, d.Navigate)
}

func TestEvaluateCooldownIsPerUser(t *testing.T) {
	g, _ := newTestGuard()
	in := Input{Authenticated: true, Onboarded: false, Path: "/dashboard"}

	require.True(t, g.Evaluate(1, in).Navigate)
	// 其他用户不受 user 1 的冷却影响
	require.True(t, g.Evaluate(2, in).Navigate)
	// user 1 自己还在冷却期
	require.False(t, g.Evaluate(1, in).Navigate)
}
