package vos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf("%s:%d", e.Name(), e.PID))
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newTestSession(t *testing.T, key string) (*Registry, *eventLog) {
	t.Helper()

	log := &eventLog{}
	reg := NewRegistry(nil)
	_, err := reg.NewSession(key, device.Null{}, SessionOpts{OnEvent: log.record})
	require.NoError(t, err)
	return reg, log
}

func TestNewSession(t *testing.T) {
	reg, _ := newTestSession(t, "s")

	_, err := reg.NewSession("s", nil, SessionOpts{})
	assert.ErrorIs(t, err, ErrSessionExists)

	_, err = reg.Session("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, []string{"s"}, reg.Sessions())
}

func TestNewProcess(t *testing.T) {
	reg, events := newTestSession(t, "s")

	leader, err := reg.NewProcess("s", ProcOpts{Leading: true, Src: "echo"})
	require.NoError(t, err)
	assert.Equal(t, 0, leader.PID)
	assert.Equal(t, map[int]string{0: device.KeyNull, 1: device.KeyNull, 2: device.KeyNull}, leader.FD)

	child, err := reg.NewProcess("s", ProcOpts{Parent: leader})
	require.NoError(t, err)
	assert.Equal(t, 1, child.PID)
	assert.Equal(t, 0, child.PPID)
	assert.Equal(t, 0, child.PGID)

	job, err := reg.NewProcess("s", ProcOpts{Parent: child, NewGroup: true})
	require.NoError(t, err)
	assert.Equal(t, 2, job.PGID)

	again, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)
	assert.Same(t, leader, again)

	reg.Finish(job, 3)
	assert.Equal(t, 3, job.ExitCode())
	assert.Len(t, reg.Processes("s", nil), 2)

	pgid := 0
	assert.Len(t, reg.Processes("s", &pgid), 2)

	reg.Finish(leader, 0)
	assert.NotNil(t, reg.Leader("s"))

	assert.Equal(t, []string{
		"interactive-started:0",
		"process-leader-started:2",
		"interactive-started:0",
		"process-leader-ended:2",
		"interactive-ended:0",
	}, events.list())
}

func TestVariableScopes(t *testing.T) {
	reg, _ := newTestSession(t, "s")
	_, err := reg.NewSession("other", nil, SessionOpts{})
	require.NoError(t, err)

	leader, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)
	require.NoError(t, reg.SetVar(leader, "x", "home"))

	fn, err := reg.NewProcess("s", ProcOpts{Parent: leader, LocalVar: map[string]any{"y": "fn"}})
	require.NoError(t, err)
	reg.DeclareLocal(fn, "x", nil)
	require.NoError(t, reg.SetVar(fn, "x", 1.0))

	v, ok := reg.Var(fn, "x")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, _ = reg.Var(leader, "x")
	assert.Equal(t, "home", v, "locals must not leak into the caller")

	nested, err := reg.NewProcess("s", ProcOpts{Parent: fn})
	require.NoError(t, err)
	require.NoError(t, reg.SetVar(nested, "y", "nested"))

	v, _ = reg.Var(nested, "y")
	assert.Equal(t, "nested", v)
	v, _ = reg.Var(fn, "y")
	assert.Equal(t, "fn", v, "inherited writes are never written back")

	sibling, err := reg.NewProcess("s", ProcOpts{Parent: leader})
	require.NoError(t, err)
	v, _ = reg.Var(sibling, "x")
	assert.Equal(t, "home", v)

	stranger, err := reg.NewProcess("other", ProcOpts{Leading: true})
	require.NoError(t, err)
	_, ok = reg.Var(stranger, "x")
	assert.False(t, ok, "sessions do not share variables")

	assert.Equal(t, map[string]Scope{
		"x":      ScopeLocal,
		"y":      ScopeLocal,
		"PWD":    ScopeHome,
		"OLDPWD": ScopeHome,
	}, reg.Visible(fn))

	assert.True(t, reg.UnsetVar(fn, "x"))
	v, _ = reg.Var(fn, "x")
	assert.Equal(t, "home", v)
}

func TestFreshCwd(t *testing.T) {
	reg, _ := newTestSession(t, "s")
	leader, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)

	sub, err := reg.NewProcess("s", ProcOpts{Parent: leader, FreshCwd: true})
	require.NoError(t, err)
	require.NoError(t, reg.SetVar(sub, "PWD", "/lib"))

	v, _ := reg.Var(leader, "PWD")
	assert.Equal(t, "/home", v)
}

func TestKillAll_runsCleanupsOnce(t *testing.T) {
	reg, _ := newTestSession(t, "s")
	leader, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)

	var mu sync.Mutex
	calls := map[int]int{}
	procs := []*Process{leader}
	for i := 0; i < 3; i++ {
		p, err := reg.NewProcess("s", ProcOpts{Parent: leader, NewGroup: i == 2})
		require.NoError(t, err)
		procs = append(procs, p)
	}
	for _, p := range procs {
		p := p
		p.AddCleanup(func(bool) {
			mu.Lock()
			defer mu.Unlock()
			calls[p.PID]++
		})
	}

	require.NoError(t, reg.KillAll("s", KillOpts{}))
	require.NoError(t, reg.KillAll("s", KillOpts{}))
	for _, p := range procs {
		reg.Finish(p, ExitKilled)
	}

	for _, p := range procs {
		assert.Equal(t, Killed, p.Status())
		assert.Equal(t, 1, calls[p.PID], "pid %d", p.PID)

		kill, ok := AsKill(context.Cause(p.Context()))
		require.True(t, ok)
		assert.Equal(t, ExitKilled, kill.Code)
	}
}

func TestKill_groupReverseOrder(t *testing.T) {
	reg, _ := newTestSession(t, "s")
	leader, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)

	job, err := reg.NewProcess("s", ProcOpts{Parent: leader, NewGroup: true})
	require.NoError(t, err)
	a, err := reg.NewProcess("s", ProcOpts{Parent: job})
	require.NoError(t, err)
	b, err := reg.NewProcess("s", ProcOpts{Parent: job})
	require.NoError(t, err)

	var order []int
	for _, p := range []*Process{job, a, b} {
		p := p
		p.AddCleanup(func(interrupt bool) {
			assert.True(t, interrupt)
			order = append(order, p.PID)
		})
	}

	require.NoError(t, reg.Kill("s", []*Process{job}, KillOpts{SIGINT: true}))
	assert.Equal(t, []int{b.PID, a.PID, job.PID}, order)
	assert.Equal(t, Running, leader.Status())

	kill, ok := AsKill(context.Cause(a.Context()))
	require.True(t, ok)
	assert.Equal(t, ExitInterrupt, kill.Code)
	assert.Equal(t, SIGINT, kill.Signal)
}

func TestStopCont(t *testing.T) {
	reg, events := newTestSession(t, "s")
	leader, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)
	job, err := reg.NewProcess("s", ProcOpts{Parent: leader, NewGroup: true})
	require.NoError(t, err)

	var persistent, once, globals int
	job.OnSuspend(func(global bool) bool {
		persistent++
		if global {
			globals++
		}
		return false
	})
	job.OnSuspend(func(bool) bool {
		once++
		return true
	})

	resumed := make(chan error)
	require.NoError(t, reg.Kill("s", []*Process{job}, KillOpts{STOP: true}))
	assert.Equal(t, Suspended, job.Status())
	go func() { resumed <- job.AwaitRunning(job.Context()) }()

	select {
	case <-job.Stopped():
	default:
		t.Fatal("stopped channel should be closed while suspended")
	}

	select {
	case <-resumed:
		t.Fatal("AwaitRunning returned while suspended")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, reg.Kill("s", []*Process{job}, KillOpts{CONT: true}))
	require.NoError(t, <-resumed)
	assert.Equal(t, Running, job.Status())

	require.NoError(t, reg.Kill("s", []*Process{job}, KillOpts{STOP: true, Global: true}))
	require.NoError(t, reg.Kill("s", []*Process{job}, KillOpts{CONT: true}))

	assert.Equal(t, 2, persistent, "falsy hooks are retained")
	assert.Equal(t, 1, once, "truthy hooks are consumed")
	assert.Equal(t, 1, globals)
	assert.Contains(t, events.list(), "process-leader-paused:1")
	assert.Contains(t, events.list(), "process-leader-resumed:1")
}

func TestStopCont_idempotent(t *testing.T) {
	reg, _ := newTestSession(t, "s")
	leader, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)
	p, err := reg.NewProcess("s", ProcOpts{Parent: leader})
	require.NoError(t, err)
	require.NoError(t, reg.SetVar(p, "x", 1.0))

	require.NoError(t, reg.Kill("s", []*Process{leader}, KillOpts{STOP: true}))
	require.NoError(t, reg.Kill("s", []*Process{leader}, KillOpts{CONT: true}))

	for _, proc := range []*Process{leader, p} {
		assert.Equal(t, Running, proc.Status())
		assert.NoError(t, proc.Context().Err())
	}
	v, _ := reg.Var(p, "x")
	assert.Equal(t, 1.0, v)
}

func TestStopCont_leaderHooksEndWithLine(t *testing.T) {
	reg, _ := newTestSession(t, "s")
	leader, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)

	var suspends, resumes int
	leader.OnSuspend(func(bool) bool { suspends++; return false })
	leader.OnResume(func(bool) bool { resumes++; return false })
	reg.Finish(leader, ExitOK)

	next, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)
	require.Equal(t, leader.PID, next.PID)

	require.NoError(t, reg.Kill("s", []*Process{next}, KillOpts{STOP: true}))
	require.NoError(t, reg.Kill("s", []*Process{next}, KillOpts{CONT: true}))

	assert.Zero(t, suspends)
	assert.Zero(t, resumes)
}

func TestKill_wakesSuspended(t *testing.T) {
	reg, _ := newTestSession(t, "s")
	p, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)

	require.NoError(t, reg.Kill("s", []*Process{p}, KillOpts{STOP: true}))
	done := make(chan error)
	go func() { done <- p.AwaitRunning(p.Context()) }()

	require.NoError(t, reg.Kill("s", []*Process{p}, KillOpts{}))
	_, ok := AsKill(<-done)
	assert.True(t, ok)
}

func TestCloseSession(t *testing.T) {
	reg := NewRegistry(nil)
	tty := device.NewTerminal("tty", &noopWriter{}, device.TerminalOpts{})
	_, err := reg.NewSession("s", tty, SessionOpts{})
	require.NoError(t, err)
	p, err := reg.NewProcess("s", ProcOpts{Leading: true})
	require.NoError(t, err)

	require.NoError(t, reg.CloseSession("s"))
	assert.True(t, p.Killed())
	_, ok := reg.Device("tty")
	assert.False(t, ok)
	assert.ErrorIs(t, reg.CloseSession("s"), ErrSessionNotFound)
}

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }

func TestHistory(t *testing.T) {
	reg, _ := newTestSession(t, "s")

	for _, line := range []string{"a", "a", "b", "c", "c", "d"} {
		reg.AppendHistory("s", line, 3)
	}
	assert.Equal(t, []string{"b", "c", "d"}, reg.History("s"))

	reg.ClearHistory("s")
	assert.Empty(t, reg.History("s"))
}

func TestLinks(t *testing.T) {
	reg, _ := newTestSession(t, "s")
	clicked := 0
	require.NoError(t, reg.AddLink("s", "[yes]", func() { clicked++ }))

	assert.True(t, reg.ClickLink("s", "[yes]"))
	reg.RemoveLink("s", "[yes]")
	assert.False(t, reg.ClickLink("s", "[yes]"))
	assert.Equal(t, 1, clicked)
}

func TestLastExit(t *testing.T) {
	reg, _ := newTestSession(t, "s")
	reg.SetLastExit("s", false, 1)
	reg.SetLastExit("s", true, 2)

	assert.Equal(t, 1, reg.LastExit("s", false))
	assert.Equal(t, 2, reg.LastExit("s", true))
}

func TestErrors(t *testing.T) {
	assert.Equal(t, 0, ExitCodeOf(nil))
	assert.Equal(t, 4, ExitCodeOf(fmt.Errorf("wrapped: %w", Errorf(4, "bad"))))
	assert.Equal(t, 2, ExitCodeOf(errors.New("boom")))

	ret := &KillError{Code: 3, Depth: 1}
	assert.Equal(t, 3, ExitCodeOf(ret))

	next, absorbed := ret.Hop()
	assert.True(t, absorbed)
	assert.Equal(t, 0, next.Depth)
	assert.Equal(t, 1, ret.Depth, "Hop must not modify the receiver")

	deep := &KillError{Depth: 2}
	next, absorbed = deep.Hop()
	assert.False(t, absorbed)
	_, absorbed = next.Hop()
	assert.True(t, absorbed)

	_, absorbed = (&KillError{Depth: Unlimited}).Hop()
	assert.False(t, absorbed)
}
