package shell

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
	"mvdan.cc/sh/v3/syntax"
)

// Config tunes the interpreter.
type Config struct {
	// FIFOSize is the capacity of pipeline FIFOs, <= 0 means unbounded.
	FIFOSize int `json:"fifo_size"`
	// MinLoopIteration is the shortest time one loop iteration may take.
	MinLoopIteration time.Duration `json:"min_loop_iteration"`
	// PipelineKillGrace is how long surviving pipeline stages are left
	// running after a sibling failed.
	PipelineKillGrace time.Duration `json:"pipeline_kill_grace"`
	// PollInterval is the period of API.Poll.
	PollInterval time.Duration `json:"poll_interval"`
	// WordsPerSecond paces /dev/voice, <= 0 speaks as fast as the speaker.
	WordsPerSecond float64 `json:"words_per_second"`
	// Speaker backs /dev/voice, text is printed to stderr when nil.
	Speaker device.Speaker `json:"-"`
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		FIFOSize:          64,
		MinLoopIteration:  5 * time.Millisecond,
		PipelineKillGrace: 10 * time.Millisecond,
		PollInterval:      time.Second,
		WordsPerSecond:    3,
	}
}

// Builtin is a command implemented in Go. It yields the values the command
// writes to its standard output.
type Builtin func(c *Call) iter.Seq2[any, error]

// Interpreter evaluates parsed programs as processes of a Registry.
type Interpreter struct {
	reg      *vos.Registry
	builtins map[string]Builtin
	cfg      Config
	log      *slog.Logger
	seq      atomic.Int64
}

// New creates an interpreter over reg. The null and voice devices are
// registered as a side effect.
func New(reg *vos.Registry, builtins map[string]Builtin, cfg Config, log *slog.Logger) *Interpreter {
	if log == nil {
		log = slog.Default()
	}
	if builtins == nil {
		builtins = make(map[string]Builtin)
	}
	reg.AddDevice(device.Null{})
	speaker := cfg.Speaker
	if speaker == nil {
		speaker = device.NewWriterSpeaker(os.Stderr)
	}
	reg.AddDevice(device.NewVoice(speaker, cfg.WordsPerSecond))
	return &Interpreter{
		reg:      reg,
		builtins: builtins,
		cfg:      cfg,
		log:      log,
	}
}

// Registry returns the registry processes live in.
func (in *Interpreter) Registry() *vos.Registry {
	return in.reg
}

// Config returns the interpreter settings.
func (in *Interpreter) Config() Config {
	return in.cfg
}

// Mount exposes a host value under /lib.
func (in *Interpreter) Mount(name string, v any) {
	in.reg.Mount(name, v)
}

// Builtin looks up a builtin by name.
func (in *Interpreter) Builtin(name string) (Builtin, bool) {
	b, ok := in.builtins[name]
	return b, ok
}

// BuiltinNames lists the builtins in sorted order.
func (in *Interpreter) BuiltinNames() []string {
	out := make([]string, 0, len(in.builtins))
	for name := range in.builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (in *Interpreter) newKey(kind string) string {
	return fmt.Sprintf("/dev/%s/%d", kind, in.seq.Add(1))
}

// SpawnOpts describe how to run a program.
type SpawnOpts struct {
	// Parent supplies the ppid, pgid and inherited variables.
	Parent *vos.Process
	// Leading runs in the reused session leader.
	Leading bool
	// Internal spawns do not record the session's last exit code.
	Internal bool
	// Background jobs record into the background exit slot.
	Background bool
	// NewGroup makes the process lead its own process group.
	NewGroup bool
	// FreshCwd gives the process its own PWD/OLDPWD pair.
	FreshCwd    bool
	LocalVar    map[string]any
	Positionals []string
	// Cleanups are registered on the process before it runs.
	Cleanups []vos.Cleanup
	// FD overrides the descriptor table, the session terminal by default.
	FD    map[int]string
	Src   string
	PTags map[string]any
}

// Spawn creates a process for stmts and runs it to completion. Ending ctx
// kills the process. The returned error is a *vos.KillError that was not
// absorbed by the process.
func (in *Interpreter) Spawn(ctx context.Context, sessionKey string, stmts []*syntax.Stmt, opts SpawnOpts) (int, error) {
	p, err := in.start(sessionKey, opts)
	if err != nil {
		return vos.ExitError, err
	}
	return in.run(ctx, p, stmts, opts)
}

func (in *Interpreter) start(sessionKey string, opts SpawnOpts) (*vos.Process, error) {
	return in.reg.NewProcess(sessionKey, vos.ProcOpts{
		Parent:      opts.Parent,
		Leading:     opts.Leading,
		NewGroup:    opts.NewGroup,
		FreshCwd:    opts.FreshCwd,
		Background:  opts.Background,
		Src:         opts.Src,
		FD:          opts.FD,
		Positionals: opts.Positionals,
		LocalVar:    opts.LocalVar,
		PTags:       opts.PTags,
	})
}

func (in *Interpreter) run(ctx context.Context, p *vos.Process, stmts []*syntax.Stmt, opts SpawnOpts) (int, error) {
	code, err := in.runStage(ctx, p, stmts, opts)
	var failed *stageError
	if errors.As(err, &failed) {
		err = nil
	}
	return code, err
}

// stageError reports that a process ended on an unexpected error. The error
// was already logged and shown, only pipelines act on it.
type stageError struct {
	pid int
	err error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("process %d failed: %v", e.pid, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

// runStage is run, except unexpected errors come back as *stageError.
func (in *Interpreter) runStage(ctx context.Context, p *vos.Process, stmts []*syntax.Stmt, opts SpawnOpts) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		in.reg.Kill(p.SessionKey, []*vos.Process{p}, vos.KillOpts{})
	})
	defer stop()

	for _, fn := range opts.Cleanups {
		p.AddCleanup(fn)
	}

	f := newFrame(in, p)
	err := f.stmts(stmts)
	code := f.exit

	var ctl *loopCtl
	if kill, ok := vos.AsKill(err); ok {
		code = kill.Code
		next, absorbed := kill.Hop()
		if absorbed {
			err = nil
		} else {
			err = next
		}
	} else if errors.As(err, &ctl) {
		err = nil
	} else if err != nil {
		f.log.Error("command failed", "err", err)
		f.printErr("npcsh: internal error")
		code = vos.ExitError
		err = &stageError{pid: p.PID, err: err}
	}

	in.reg.Finish(p, code)
	if !opts.Internal && (opts.Leading || opts.Background) {
		in.reg.SetLastExit(p.SessionKey, opts.Background, code)
	}
	return code, err
}

// topLevel absorbs whatever a job left unhandled: a kill takes down the whole
// process group and its code becomes the job's exit code.
func (in *Interpreter) topLevel(p *vos.Process, bg bool, code int, err error) int {
	if err == nil {
		return code
	}
	kill, ok := vos.AsKill(err)
	if !ok {
		in.log.Error("job failed", "session", p.SessionKey, "pid", p.PID, "err", err)
		in.reg.SetLastExit(p.SessionKey, bg, vos.ExitError)
		return vos.ExitError
	}

	pgid := p.PGID
	members := in.reg.Processes(p.SessionKey, &pgid)
	in.reg.Kill(p.SessionKey, append(members, p), vos.KillOpts{Group: true})
	in.reg.SetLastExit(p.SessionKey, bg, kill.Code)
	in.log.Debug("job killed", "session", p.SessionKey, "pgid", pgid, "signal", kill.Signal.String(), "code", kill.Code)
	return kill.Code
}

// RunLeading runs a parsed line in the session leader and returns its exit
// code.
func (in *Interpreter) RunLeading(ctx context.Context, sessionKey string, file *syntax.File, src string) int {
	opts := SpawnOpts{Leading: true, Src: src}
	p, err := in.start(sessionKey, opts)
	if err != nil {
		in.log.Error("spawn failed", "session", sessionKey, "err", err)
		return vos.ExitError
	}
	code, err := in.run(ctx, p, file.Stmts, opts)
	return in.topLevel(p, false, code, err)
}

// RunLeadingSource parses and runs src in the session leader.
func (in *Interpreter) RunLeadingSource(ctx context.Context, sessionKey, src string) (int, error) {
	file, status, err := Parse(src)
	if status != ParseComplete {
		return vos.ExitError, err
	}
	return in.RunLeading(ctx, sessionKey, file, src), nil
}

// EnsureLeader creates the session leader if nothing ran yet.
func (in *Interpreter) EnsureLeader(sessionKey string) error {
	if in.reg.Leader(sessionKey) != nil {
		return nil
	}
	p, err := in.start(sessionKey, SpawnOpts{Leading: true})
	if err != nil {
		return err
	}
	in.reg.Finish(p, vos.ExitOK)
	return nil
}

// Interrupt sends SIGINT to the foreground process group.
func (in *Interpreter) Interrupt(sessionKey string) {
	leader := in.reg.Leader(sessionKey)
	if leader == nil || leader.Killed() {
		return
	}
	in.reg.Kill(sessionKey, []*vos.Process{leader}, vos.KillOpts{SIGINT: true})
}

// SetInteractivePaused suspends or resumes the foreground process group,
// telling hooks the whole session is paused.
func (in *Interpreter) SetInteractivePaused(sessionKey string, paused bool) {
	leader := in.reg.Leader(sessionKey)
	if leader == nil {
		return
	}
	in.reg.Kill(sessionKey, []*vos.Process{leader}, vos.KillOpts{STOP: paused, CONT: !paused, Global: true})
}

// LastValue returns the value most recently shown on the session terminal.
func (in *Interpreter) LastValue(sessionKey string) any {
	var out any
	in.reg.ViewHome(sessionKey, func(home map[string]any) error {
		out = vars.Clone(home[vars.KeyLast])
		return nil
	})
	return out
}
