package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
	"mvdan.cc/sh/v3/pattern"
	"mvdan.cc/sh/v3/syntax"
)

// loopCtl unwinds to the enclosing loop for break and continue.
type loopCtl struct {
	brk   bool
	depth int
}

func (l *loopCtl) Error() string {
	if l.brk {
		return "break outside of a loop"
	}
	return "continue outside of a loop"
}

// Break returns the error a builtin raises to leave n enclosing loops.
func Break(n int) error {
	return &loopCtl{brk: true, depth: max(n, 1)}
}

// Continue returns the error a builtin raises to resume the n-th enclosing
// loop.
func Continue(n int) error {
	return &loopCtl{depth: max(n, 1)}
}

// frame is the evaluation state of one process.
type frame struct {
	in   *Interpreter
	proc *vos.Process
	ctx  context.Context
	log  *slog.Logger
	root *Root

	// fd is the descriptor table, rebound by redirections.
	fd map[int]string
	// exit is $?.
	exit int
}

func newFrame(in *Interpreter, p *vos.Process) *frame {
	fd := make(map[int]string, len(p.FD))
	for k, v := range p.FD {
		fd[k] = v
	}
	f := &frame{
		in:   in,
		proc: p,
		ctx:  p.Context(),
		log:  in.log.With("session", p.SessionKey, "pid", p.PID),
		fd:   fd,
	}
	f.root = newRoot(in.reg, p)
	return f
}

func (f *frame) stmts(stmts []*syntax.Stmt) error {
	for _, st := range stmts {
		if err := f.executeStatement(st); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint blocks while the process is suspended and fails once it was
// killed.
func (f *frame) checkpoint() error {
	return f.proc.AwaitRunning(f.ctx)
}

func (f *frame) executeStatement(st *syntax.Stmt) error {
	if err := f.checkpoint(); err != nil {
		return err
	}
	if st.Background {
		return f.background(st)
	}

	restore, err := f.redirect(st.Redirs)
	if err == nil {
		err = f.executeCommand(st.Cmd)
	}
	restore()

	if err := f.boundary(err); err != nil {
		return err
	}
	if st.Negated {
		if f.exit == 0 {
			f.exit = 1
		} else {
			f.exit = 0
		}
	}
	return nil
}

// boundary turns recoverable errors into the statement's exit code.
func (f *frame) boundary(err error) error {
	var shellErr *vos.ShellError
	if errors.As(err, &shellErr) {
		f.exit = shellErr.Code
		f.printErr(shellErr.Msg)
		return nil
	}
	return err
}

func (f *frame) executeCommand(cmd syntax.Command) error {
	switch cmd := cmd.(type) {
	case nil:
		f.exit = 0

	case *syntax.CallExpr:
		return f.call(cmd)

	case *syntax.BinaryCmd:
		switch cmd.Op {
		case syntax.AndStmt, syntax.OrStmt:
			if err := f.executeStatement(cmd.X); err != nil {
				return err
			}
			if (f.exit == 0) == (cmd.Op == syntax.AndStmt) {
				return f.executeStatement(cmd.Y)
			}
		case syntax.Pipe, syntax.PipeAll:
			return f.pipeline(cmd)
		default:
			return f.syntaxError(cmd)
		}

	case *syntax.Block:
		return f.stmts(cmd.Stmts)

	case *syntax.Subshell:
		code, err := f.in.Spawn(f.ctx, f.proc.SessionKey, cmd.Stmts, SpawnOpts{
			Parent:      f.proc,
			Internal:    true,
			FreshCwd:    true,
			FD:          f.fdCopy(),
			Positionals: f.proc.Positionals,
			Src:         printNode(cmd),
		})
		f.exit = code
		return err

	case *syntax.IfClause:
		return f.ifClause(cmd)

	case *syntax.WhileClause:
		return f.loop(func() (bool, error) {
			if err := f.stmts(cmd.Cond); err != nil {
				return false, err
			}
			return (f.exit == 0) != cmd.Until, nil
		}, cmd.Do)

	case *syntax.ForClause:
		return f.forClause(cmd)

	case *syntax.CaseClause:
		return f.caseClause(cmd)

	case *syntax.FuncDecl:
		err := f.in.reg.DefineFunc(f.proc.SessionKey, &vos.Func{
			Name: cmd.Name.Value,
			Body: cmd.Body,
			Src:  printNode(cmd),
		})
		if err != nil {
			return err
		}
		f.exit = 0

	case *syntax.DeclClause:
		return f.declClause(cmd)

	case *syntax.ArithmCmd:
		n, err := f.arithm(cmd.X)
		if err != nil {
			return err
		}
		f.exit = 0
		if n == 0 {
			f.exit = 1
		}

	case *syntax.LetClause:
		n := 0
		for _, expr := range cmd.Exprs {
			var err error
			if n, err = f.arithm(expr); err != nil {
				return err
			}
		}
		f.exit = 0
		if n == 0 {
			f.exit = 1
		}

	default:
		return f.syntaxError(cmd)
	}
	return nil
}

func (f *frame) syntaxError(node syntax.Node) error {
	f.log.Debug("unsupported syntax", "node", fmt.Sprintf("%T", node))
	return vos.Errorf(vos.ExitError, "npcsh: unsupported syntax near %s", node.Pos())
}

func (f *frame) ifClause(ic *syntax.IfClause) error {
	for ; ic != nil; ic = ic.Else {
		if len(ic.Cond) == 0 {
			return f.stmts(ic.Then)
		}
		if err := f.stmts(ic.Cond); err != nil {
			return err
		}
		if f.exit == 0 {
			return f.stmts(ic.Then)
		}
	}
	f.exit = 0
	return nil
}

// loop runs body while next reports true. Every iteration takes at least
// MinLoopIteration and ends with a kill check.
func (f *frame) loop(next func() (bool, error), body []*syntax.Stmt) error {
	code := 0
	for {
		started := time.Now()
		ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		err = f.stmts(body)
		code = f.exit
		var ctl *loopCtl
		if errors.As(err, &ctl) {
			if ctl.depth > 1 {
				return &loopCtl{brk: ctl.brk, depth: ctl.depth - 1}
			}
			if ctl.brk {
				break
			}
		} else if err != nil {
			return err
		}

		if err := f.pace(started); err != nil {
			return err
		}
	}
	f.exit = code
	return nil
}

func (f *frame) pace(started time.Time) error {
	if wait := f.in.cfg.MinLoopIteration - time.Since(started); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-f.ctx.Done():
		}
	}
	return f.checkpoint()
}

func (f *frame) forClause(fc *syntax.ForClause) error {
	iter, ok := fc.Loop.(*syntax.WordIter)
	if !ok || fc.Select {
		return f.syntaxError(fc)
	}

	var items []string
	if iter.InPos.IsValid() {
		var err error
		if items, err = f.fields(iter.Items...); err != nil {
			return err
		}
	} else if len(f.proc.Positionals) > 1 {
		items = f.proc.Positionals[1:]
	}

	i := 0
	return f.loop(func() (bool, error) {
		if i >= len(items) {
			return false, nil
		}
		err := f.in.reg.SetVar(f.proc, iter.Name.Value, items[i])
		i++
		return true, err
	}, fc.Do)
}

func (f *frame) caseClause(cc *syntax.CaseClause) error {
	word, err := f.literal(cc.Word)
	if err != nil {
		return err
	}

	f.exit = 0
	for i := 0; i < len(cc.Items); i++ {
		item := cc.Items[i]
		matched := false
		for _, pat := range item.Patterns {
			ok, err := f.matchPattern(pat, word)
			if err != nil {
				return err
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		for {
			if err := f.stmts(item.Stmts); err != nil {
				return err
			}
			if item.Op != syntax.Fallthrough || i+1 >= len(cc.Items) {
				return nil
			}
			i++
			item = cc.Items[i]
		}
	}
	return nil
}

func (f *frame) matchPattern(pat *syntax.Word, word string) (bool, error) {
	src, err := f.pattern(pat)
	if err != nil {
		return false, err
	}
	expr, err := pattern.Regexp(src, pattern.EntireString)
	if err != nil {
		return false, vos.Errorf(vos.ExitError, "npcsh: bad pattern %q: %v", src, err)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false, vos.Errorf(vos.ExitError, "npcsh: bad pattern %q: %v", src, err)
	}
	return re.MatchString(word), nil
}

func (f *frame) declClause(dc *syntax.DeclClause) error {
	call := &Call{API: &API{f: f}, Name: dc.Variant.Value}
	for _, as := range dc.Args {
		if as.Naked && as.Name == nil {
			// Options such as -f arrive as naked values.
			arg, err := f.literal(as.Value)
			if err != nil {
				return err
			}
			call.Args = append(call.Args, arg)
			continue
		}
		decl := Decl{Name: as.Name.Value}
		if !as.Naked {
			v, err := f.assignment(as)
			if err != nil {
				return err
			}
			decl.Value, decl.HasValue = v, true
		}
		call.Decls = append(call.Decls, decl)
	}

	fn, ok := f.in.builtins[call.Name]
	if !ok {
		return vos.Errorf(vos.ExitNotFound, "npcsh: %s: command not found", call.Name)
	}
	return f.runBuiltin(fn, call)
}

func (f *frame) arithm(expr syntax.ArithmExpr) (int, error) {
	n, err := arithm(f, expr)
	if err != nil {
		var kill *vos.KillError
		if errors.As(err, &kill) {
			return 0, err
		}
		return 0, vos.Errorf(vos.ExitFailure, "npcsh: arithmetic: %v", err)
	}
	return n, nil
}

// fdCopy returns a copy of the descriptor table for a child process.
func (f *frame) fdCopy() map[int]string {
	out := make(map[int]string, len(f.fd))
	for k, v := range f.fd {
		out[k] = v
	}
	return out
}

func (f *frame) device(fd int) (device.Device, error) {
	key, ok := f.fd[fd]
	if !ok {
		return nil, vos.Errorf(vos.ExitFailure, "npcsh: %d: bad file descriptor", fd)
	}
	dev, ok := f.in.reg.Device(key)
	if !ok {
		return nil, vos.Errorf(vos.ExitFailure, "npcsh: %s: no such device", key)
	}
	return dev, nil
}

// write sends v to the device bound to fd. Writing into a pipe whose reader
// went away ends the process like SIGPIPE. Values shown on the terminal
// become $_.
func (f *frame) write(fd int, v any) error {
	dev, err := f.device(fd)
	if err != nil {
		return err
	}
	if err := dev.WriteData(f.ctx, v); err != nil {
		if errors.Is(err, device.ErrReaderClosed) {
			kill := f.proc.KillError(vos.SIGPIPE)
			kill.Depth = 1
			return kill
		}
		return err
	}
	if fd == 1 && dev.Key() == f.ttyKey() {
		f.in.reg.UpdateHome(f.proc.SessionKey, func(home map[string]any) error {
			home[vars.KeyLast] = vars.Clone(v)
			return nil
		})
	}
	return nil
}

func (f *frame) ttyKey() string {
	s, err := f.in.reg.Session(f.proc.SessionKey)
	if err != nil {
		return ""
	}
	return s.TTYKey
}

// read takes the next value from fd once the process may run.
func (f *frame) read(ctx context.Context, fd int, opts device.ReadOpts) (device.ReadResult, error) {
	if err := f.proc.AwaitRunning(ctx); err != nil {
		return device.ReadResult{}, err
	}
	dev, err := f.device(fd)
	if err != nil {
		return device.ReadResult{}, err
	}
	return dev.ReadData(ctx, opts)
}

// printErr writes a diagnostic line to fd 2, dropping failures.
func (f *frame) printErr(msg string) {
	if msg == "" {
		return
	}
	if err := f.write(2, msg+"\n"); err != nil {
		f.log.Debug("stderr write failed", "err", err, "msg", msg)
	}
}

func (f *frame) special(name string) (any, bool) {
	pos := f.proc.Positionals
	switch name {
	case "?":
		return strconv.Itoa(f.exit), true
	case "$":
		return strconv.Itoa(f.proc.PID), true
	case "#":
		return strconv.Itoa(max(len(pos)-1, 0)), true
	case "@", "*":
		if len(pos) < 2 {
			return "", true
		}
		return joinFields(pos[1:]), true
	case "PPID":
		return strconv.Itoa(f.proc.PPID), true
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 0 {
		if n < len(pos) {
			return pos[n], true
		}
		return nil, false
	}
	return nil, false
}
