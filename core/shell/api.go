package shell

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// ErrPaused aborts operations run with ThrowOnPause when the process is
// suspended.
var ErrPaused = &vos.ShellError{Msg: "npcsh: operation aborted: process paused", Code: vos.ExitFailure}

// Call is a single builtin invocation.
type Call struct {
	*API

	Name string
	Args []string
	// Decls holds the operands of declaration commands.
	Decls []Decl

	code int
}

// SetExitCode sets the exit code reported once the builtin's output is
// drained.
func (c *Call) SetExitCode(code int) {
	c.code = code
}

// API is what builtins and host code see of the running process.
type API struct {
	f *frame
}

func (a *API) Process() *vos.Process     { return a.f.proc }
func (a *API) Context() context.Context  { return a.f.ctx }
func (a *API) Interpreter() *Interpreter { return a.f.in }
func (a *API) Registry() *vos.Registry   { return a.f.in.reg }
func (a *API) SessionKey() string        { return a.f.proc.SessionKey }
func (a *API) Root() *Root               { return a.f.root }
func (a *API) Logger() *slog.Logger      { return a.f.log }

// FD returns a copy of the descriptor table.
func (a *API) FD() map[int]string {
	return a.f.fdCopy()
}

// LastExit returns $?.
func (a *API) LastExit() int {
	return a.f.exit
}

// Read reads from fd 0 once the process may run.
func (a *API) Read(opts device.ReadOpts) (device.ReadResult, error) {
	return a.f.read(a.f.ctx, 0, opts)
}

// ReadContext is Read bounded by ctx, which must derive from Context.
func (a *API) ReadContext(ctx context.Context, opts device.ReadOpts) (device.ReadResult, error) {
	return a.f.read(ctx, 0, opts)
}

// Write writes v to fd 1.
func (a *API) Write(v any) error {
	return a.f.write(1, v)
}

// Interactive reports whether fd 1 is the session terminal.
func (a *API) Interactive() bool {
	return a.f.fd[1] != "" && a.f.fd[1] == a.f.ttyKey()
}

// WriteErr writes v to fd 2.
func (a *API) WriteErr(v any) error {
	return a.f.write(2, v)
}

// Var reads a variable or special parameter.
func (a *API) Var(name string) (any, bool) {
	return a.f.lookupParam(name)
}

func (a *API) SetVar(name string, v any) error {
	return a.f.in.reg.SetVar(a.f.proc, name, v)
}

func (a *API) UnsetVar(name string) bool {
	return a.f.in.reg.UnsetVar(a.f.proc, name)
}

func (a *API) DeclareLocal(name string, v any) {
	a.f.in.reg.DeclareLocal(a.f.proc, name, v)
}

// Visible lists the variables the process can see.
func (a *API) Visible() map[string]vos.Scope {
	return a.f.in.reg.Visible(a.f.proc)
}

// Cwd returns the current directory of the variable tree.
func (a *API) Cwd() string {
	v, _ := a.f.in.reg.Var(a.f.proc, vars.KeyPWD)
	if s, ok := v.(string); ok && strings.HasPrefix(s, "/") {
		return s
	}
	return "/home"
}

func (a *API) resolve(path string) []string {
	return vars.Resolve(vars.Split(a.Cwd()), path)
}

// scoped reports whether a relative path starts at a local or inherited
// variable instead of the current directory.
func (a *API) scoped(path string) (string, []string, bool) {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasPrefix(path, "~") || strings.HasPrefix(path, ".") {
		return "", nil, false
	}
	segs := vars.Split(path)
	if len(segs) == 0 {
		return "", nil, false
	}
	switch a.Visible()[segs[0]] {
	case vos.ScopeLocal, vos.ScopeInherit:
		return segs[0], segs[1:], true
	}
	return "", nil, false
}

// Lookup reads the value at path.
func (a *API) Lookup(path string) (any, error) {
	if name, rest, ok := a.scoped(path); ok {
		v, _ := a.f.in.reg.Var(a.f.proc, name)
		out, err := vars.Lookup(v, rest)
		return vars.Clone(out), err
	}
	return a.f.root.Lookup(a.resolve(path))
}

// Assign stores v at path, creating intermediate maps.
func (a *API) Assign(path string, v any) error {
	name, rest, ok := a.scoped(path)
	if !ok {
		return a.f.root.Assign(a.resolve(path), v)
	}
	if len(rest) == 0 {
		return a.SetVar(name, v)
	}
	return a.f.in.reg.UpdateScope(a.f.proc, name, func(scope map[string]any) error {
		tmp := map[string]any{name: scope[name]}
		if err := vars.Set(tmp, append([]string{name}, rest...), v); err != nil {
			return err
		}
		scope[name] = tmp[name]
		return nil
	})
}

// Remove deletes the value at path.
func (a *API) Remove(path string) error {
	name, rest, ok := a.scoped(path)
	if !ok {
		return a.f.root.Remove(a.resolve(path))
	}
	if len(rest) == 0 {
		a.UnsetVar(name)
		return nil
	}
	return a.f.in.reg.UpdateScope(a.f.proc, name, func(scope map[string]any) error {
		tmp := map[string]any{name: scope[name]}
		if err := vars.Delete(tmp, append([]string{name}, rest...)); err != nil {
			return err
		}
		scope[name] = tmp[name]
		return nil
	})
}

// Chdir changes the current directory to path, which must name a map or
// an array.
func (a *API) Chdir(path string) error {
	segs := a.resolve(path)
	v, err := a.f.root.Lookup(segs)
	if err != nil {
		return vos.Errorf(vos.ExitFailure, "cd: %s: no such directory", path)
	}
	if !vars.IsDir(v) {
		return vos.Errorf(vos.ExitFailure, "cd: %s: not a directory", path)
	}
	if err := a.SetVar(vars.KeyOldPWD, a.Cwd()); err != nil {
		return err
	}
	return a.SetVar(vars.KeyPWD, vars.Join(segs))
}

// Invoke calls the host function stored at path. ctx must derive from
// Context.
func (a *API) Invoke(ctx context.Context, path string, args []any) (any, error) {
	v, err := a.Lookup(path)
	if err != nil {
		return nil, err
	}
	fn, ok := v.(vars.Invocable)
	if !ok {
		return nil, fmt.Errorf("%s: not a function", path)
	}
	return fn(ctx, args)
}

func (a *API) AddCleanup(fn vos.Cleanup) { a.f.proc.AddCleanup(fn) }
func (a *API) OnSuspend(h vos.Hook)      { a.f.proc.OnSuspend(h) }
func (a *API) OnResume(h vos.Hook)       { a.f.proc.OnResume(h) }

// AwaitRunning blocks while the process is suspended.
func (a *API) AwaitRunning() error {
	return a.f.checkpoint()
}

// Sleep waits for d of running time; time spent suspended does not count.
func (a *API) Sleep(d time.Duration) error {
	for d > 0 {
		if err := a.AwaitRunning(); err != nil {
			return err
		}
		started := time.Now()
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
			return nil
		case <-a.f.proc.Stopped():
			timer.Stop()
			d -= time.Since(started)
		case <-a.f.ctx.Done():
			timer.Stop()
			return a.AwaitRunning()
		}
	}
	return nil
}

// Poll yields 1, 2, 3, ... once per poll interval until the consumer stops
// or the process is killed.
func (a *API) Poll() iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for n := 1; ; n++ {
			if err := a.Sleep(a.f.in.cfg.PollInterval); err != nil {
				yield(0, err)
				return
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

// ThrowOnPause runs fn with a context that is cancelled when the process is
// suspended, in which case ErrPaused is returned.
func (a *API) ThrowOnPause(fn func(ctx context.Context) error) error {
	if err := a.AwaitRunning(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancelCause(a.f.ctx)
	defer cancel(nil)

	stopped := a.f.proc.Stopped()
	go func() {
		select {
		case <-stopped:
			cancel(ErrPaused)
		case <-ctx.Done():
		}
	}()

	err := fn(ctx)
	if errors.Is(context.Cause(ctx), ErrPaused) {
		return ErrPaused
	}
	return err
}

// EagerReadLoop hands every value read from fd 0 to handle. The next read
// is already pending while handle runs; when it completes first the
// in-flight handler is cancelled and the new value handled instead. At end
// of input the last handler runs to completion.
func (a *API) EagerReadLoop(handle func(ctx context.Context, v any) error) error {
	type result struct {
		res device.ReadResult
		err error
	}
	loopCtx, stop := context.WithCancel(a.f.ctx)
	defer stop()
	reads := make(chan result, 1)
	readNext := func() {
		go func() {
			res, err := a.ReadContext(loopCtx, device.ReadOpts{})
			reads <- result{res, err}
		}()
	}

	var (
		cancel context.CancelFunc = func() {}
		done   chan error
	)
	defer func() { cancel() }()

	readNext()
	for {
		select {
		case r := <-reads:
			if r.err != nil {
				return r.err
			}
			if r.res.EOF {
				if done == nil {
					return nil
				}
				return ignoreCanceled(<-done)
			}
			if done != nil {
				cancel()
				if err := ignoreCanceled(<-done); err != nil {
					return err
				}
			}
			var ctx context.Context
			ctx, cancel = context.WithCancel(a.f.ctx)
			done = make(chan error, 1)
			go func(v any) { done <- handle(ctx, v) }(r.res.Data)
			readNext()

		case err := <-done:
			done = nil
			if err = ignoreCanceled(err); err != nil {
				return err
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Source runs src in the calling process, like the shell's "." command.
func (a *API) Source(src string) error {
	file, status, err := Parse(src)
	if status != ParseComplete {
		return vos.Errorf(vos.ExitError, "npcsh: source: %v", err)
	}
	return a.f.stmts(file.Stmts)
}

// Spawn runs src in a child process. The parent and descriptor table
// default to the caller's.
func (a *API) Spawn(src string, opts SpawnOpts) (int, error) {
	return a.SpawnContext(a.f.ctx, src, opts)
}

// SpawnContext is Spawn with a context deriving from Context, ending it
// kills the child.
func (a *API) SpawnContext(ctx context.Context, src string, opts SpawnOpts) (int, error) {
	file, status, err := Parse(src)
	if status != ParseComplete {
		return vos.ExitError, vos.Errorf(vos.ExitError, "npcsh: %v", err)
	}
	if opts.Parent == nil {
		opts.Parent = a.f.proc
	}
	if opts.FD == nil {
		opts.FD = a.f.fdCopy()
	}
	if opts.Src == "" {
		opts.Src = src
	}
	return a.f.in.Spawn(ctx, a.SessionKey(), file.Stmts, opts)
}

// Root is the tree a process resolves paths in: /home holds the session
// variables, /etc the function sources, /lib the host functions, /api facts
// about the process and /args its arguments.
type Root struct {
	reg  *vos.Registry
	proc *vos.Process
	lib  map[string]any
	api  map[string]any
	args []any
}

func newRoot(reg *vos.Registry, p *vos.Process) *Root {
	args := []any{}
	if len(p.Positionals) > 1 {
		for _, arg := range p.Positionals[1:] {
			args = append(args, arg)
		}
	}
	return &Root{
		reg:  reg,
		proc: p,
		lib:  reg.Lib(),
		api: map[string]any{
			"pid":        float64(p.PID),
			"ppid":       float64(p.PPID),
			"pgid":       float64(p.PGID),
			"session":    p.SessionKey,
			"background": p.Background,
			"src":        p.Src,
		},
		args: args,
	}
}

func (r *Root) home() map[string]any {
	var out map[string]any
	r.reg.ViewHome(r.proc.SessionKey, func(home map[string]any) error {
		out = vars.CloneMap(home)
		return nil
	})
	return out
}

func (r *Root) etc() map[string]any {
	out := make(map[string]any)
	for _, fn := range r.reg.Funcs(r.proc.SessionKey) {
		out[fn.Name] = fn.Src
	}
	return out
}

// Lookup reads absolute segments.
func (r *Root) Lookup(segs []string) (any, error) {
	if len(segs) == 0 {
		return map[string]any{
			"home": r.home(),
			"etc":  r.etc(),
			"lib":  r.lib,
			"api":  r.api,
			"args": r.args,
		}, nil
	}

	var (
		out any
		err error
	)
	switch segs[0] {
	case "home":
		err = r.reg.ViewHome(r.proc.SessionKey, func(home map[string]any) error {
			v, err := vars.Lookup(home, segs[1:])
			out = vars.Clone(v)
			return err
		})
	case "etc":
		out, err = vars.Lookup(r.etc(), segs[1:])
	case "lib":
		out, err = vars.Lookup(r.lib, segs[1:])
	case "api":
		out, err = vars.Lookup(r.api, segs[1:])
	case "args":
		out, err = vars.Lookup(r.args, segs[1:])
	default:
		return nil, &vars.NotFoundError{Path: vars.Join(segs[:1])}
	}

	// Errors below a mount name paths relative to it.
	var notFound *vars.NotFoundError
	if errors.As(err, &notFound) {
		return nil, &vars.NotFoundError{Path: "/" + segs[0] + notFound.Path}
	}
	return out, err
}

// Assign writes below /home, the only writable part of the tree.
func (r *Root) Assign(segs []string, v any) error {
	if len(segs) < 2 || segs[0] != "home" {
		return vos.Errorf(vos.ExitFailure, "%s: read-only", vars.Join(segs))
	}
	return r.reg.UpdateHome(r.proc.SessionKey, func(home map[string]any) error {
		if err := vars.Set(home, segs[1:], v); err != nil {
			return vos.Errorf(vos.ExitFailure, "%s: %v", vars.Join(segs), err)
		}
		return nil
	})
}

// Remove deletes below /home.
func (r *Root) Remove(segs []string) error {
	if len(segs) < 2 || segs[0] != "home" {
		return vos.Errorf(vos.ExitFailure, "%s: read-only", vars.Join(segs))
	}
	return r.reg.UpdateHome(r.proc.SessionKey, func(home map[string]any) error {
		if err := vars.Delete(home, segs[1:]); err != nil {
			return vos.Errorf(vos.ExitFailure, "%s: %v", vars.Join(segs), err)
		}
		return nil
	})
}
