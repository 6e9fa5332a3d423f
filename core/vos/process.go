package vos

import (
	"context"
	"fmt"
	"time"

	"github.com/josephlewis42/npcsh/core/vars"
)

// Status is the scheduling state of a process.
type Status int

const (
	Running Status = iota
	Suspended
	Killed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Killed:
		return "killed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Hook is called when a process is suspended or resumed. global is set when
// the whole session is paused rather than a single job. Returning true
// unregisters the hook.
type Hook func(global bool) (done bool)

// Cleanup runs once when a process is killed or finishes, interrupt is set
// for SIGINT kills.
type Cleanup func(interrupt bool)

// Process is an in-process job. Identity and the fd table are fixed after
// creation, everything else is guarded by the owning Registry.
type Process struct {
	PID        int
	PPID       int
	PGID       int
	SessionKey string
	Src        string
	// FD maps descriptors to device keys.
	FD          map[int]string
	Positionals []string
	Background  bool
	Started     time.Time

	// Guarded by Registry.mu.
	LocalVar   map[string]any
	InheritVar map[string]any
	PTags      map[string]any

	// Guarded by Registry.mu.
	status     Status
	exitCode   int
	cleanups   []Cleanup
	onSuspends []Hook
	onResumes  []Hook
	ctx        context.Context
	cancel     context.CancelCauseFunc
	// running is closed while the process may run.
	running chan struct{}
	// stopped is closed while the process is suspended.
	stopped chan struct{}
	reg     *Registry
}

// IsGroupLeader reports whether the process leads its process group.
func (p *Process) IsGroupLeader() bool {
	return p.PID == p.PGID
}

// Context is cancelled with a *KillError cause when the process is killed.
func (p *Process) Context() context.Context {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return p.ctx
}

// Status returns the current status.
func (p *Process) Status() Status {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return p.status
}

// ExitCode returns the exit code recorded by Finish.
func (p *Process) ExitCode() int {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return p.exitCode
}

// Killed reports whether the process was killed.
func (p *Process) Killed() bool {
	return p.Status() == Killed
}

// AddCleanup registers fn to run once on kill or finish. If the process is
// already dead fn runs immediately.
func (p *Process) AddCleanup(fn Cleanup) {
	p.reg.mu.Lock()
	if p.status == Killed {
		p.reg.mu.Unlock()
		fn(false)
		return
	}
	p.cleanups = append(p.cleanups, fn)
	p.reg.mu.Unlock()
}

// OnSuspend registers a suspend hook.
func (p *Process) OnSuspend(h Hook) {
	p.reg.mu.Lock()
	defer p.reg.mu.Unlock()
	p.onSuspends = append(p.onSuspends, h)
}

// OnResume registers a resume hook.
func (p *Process) OnResume(h Hook) {
	p.reg.mu.Lock()
	defer p.reg.mu.Unlock()
	p.onResumes = append(p.onResumes, h)
}

// Stopped returns a channel closed while the process is suspended.
func (p *Process) Stopped() <-chan struct{} {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return p.stopped
}

// AwaitRunning blocks while the process is suspended.
func (p *Process) AwaitRunning(ctx context.Context) error {
	p.reg.mu.RLock()
	running := p.running
	p.reg.mu.RUnlock()

	select {
	case <-running:
		if ctx.Err() == nil {
			return nil
		}
	case <-ctx.Done():
	}
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

// KillError builds the error used to cancel this process.
func (p *Process) KillError(sig Signal) *KillError {
	code := ExitKilled
	switch sig {
	case SIGINT:
		code = ExitInterrupt
	case SIGPIPE:
		code = ExitPipe
	}
	return &KillError{
		Signal:     sig,
		PID:        p.PID,
		SessionKey: p.SessionKey,
		Code:       code,
		Depth:      Unlimited,
	}
}

// must hold reg.mu
func (p *Process) revive() {
	p.ctx, p.cancel = context.WithCancelCause(context.Background())
	p.status = Running
	p.running = make(chan struct{})
	close(p.running)
	p.stopped = make(chan struct{})
	p.cleanups = nil
	p.onSuspends = nil
	p.onResumes = nil
}

// must hold reg.mu
func (p *Process) suspend() bool {
	if p.status != Running {
		return false
	}
	p.status = Suspended
	p.running = make(chan struct{})
	close(p.stopped)
	return true
}

// must hold reg.mu
func (p *Process) resume() bool {
	if p.status != Suspended {
		return false
	}
	p.status = Running
	close(p.running)
	p.stopped = make(chan struct{})
	return true
}

// must hold reg.mu, returns the cleanups to run.
func (p *Process) kill(cause *KillError) []Cleanup {
	if p.status == Suspended {
		close(p.running)
		p.stopped = make(chan struct{})
	}
	p.status = Killed
	p.cancel(cause)
	out := p.cleanups
	p.cleanups = nil
	return out
}

// must hold reg.mu
func (p *Process) takeCleanups() []Cleanup {
	out := p.cleanups
	p.cleanups = nil
	return out
}

// Tags returns a copy of the process tags.
func (p *Process) Tags() map[string]any {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	return vars.CloneMap(p.PTags)
}

// HasTag reports whether the tag key renders as value.
func (p *Process) HasTag(key, value string) bool {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	v, ok := p.PTags[key]
	return ok && vars.String(v) == value
}

// runHooks calls hooks outside the lock and returns the ones to retain.
func runHooks(hooks []Hook, global bool) []Hook {
	var keep []Hook
	for _, h := range hooks {
		if !h(global) {
			keep = append(keep, h)
		}
	}
	return keep
}
