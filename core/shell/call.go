package shell

import (
	"github.com/josephlewis42/npcsh/core/vos"
	"mvdan.cc/sh/v3/syntax"
)

// Decl is one operand of a declaration builtin such as declare or local.
type Decl struct {
	Name     string
	Value    any
	HasValue bool
}

func (f *frame) call(ce *syntax.CallExpr) error {
	if len(ce.Args) == 0 {
		f.exit = 0
		for _, as := range ce.Assigns {
			v, err := f.assignment(as)
			if err != nil {
				return err
			}
			if err := f.in.reg.SetVar(f.proc, as.Name.Value, v); err != nil {
				return err
			}
		}
		return nil
	}

	var locals map[string]any
	for _, as := range ce.Assigns {
		v, err := f.assignment(as)
		if err != nil {
			return err
		}
		if locals == nil {
			locals = make(map[string]any)
		}
		locals[as.Name.Value] = v
	}

	fields, err := f.fields(ce.Args...)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		f.exit = 0
		return nil
	}
	name := fields[0]

	if fn, ok := f.in.reg.Func(f.proc.SessionKey, name); ok {
		return f.callFunc(fn, fields, locals)
	}

	if b, ok := f.in.builtins[name]; ok {
		if len(locals) > 0 {
			restore := f.in.reg.SwapLocals(f.proc, locals)
			defer restore()
		}
		return f.runBuiltin(b, &Call{API: &API{f: f}, Name: name, Args: fields[1:]})
	}

	return vos.Errorf(vos.ExitNotFound, "npcsh: %s: command not found", name)
}

// callFunc runs a function body in a child process with the call's words as
// positionals.
func (f *frame) callFunc(fn *vos.Func, fields []string, locals map[string]any) error {
	code, err := f.in.Spawn(f.ctx, f.proc.SessionKey, []*syntax.Stmt{fn.Body}, SpawnOpts{
		Parent:      f.proc,
		Internal:    true,
		LocalVar:    locals,
		Positionals: fields,
		FD:          f.fdCopy(),
		Src:         joinFields(fields),
	})
	f.exit = code
	return err
}

// runBuiltin pulls the builtin's output and writes it to fd 1.
func (f *frame) runBuiltin(b Builtin, c *Call) error {
	for v, err := range b(c) {
		if err != nil {
			return err
		}
		if err := f.write(1, v); err != nil {
			return err
		}
	}
	f.exit = c.code
	return nil
}
