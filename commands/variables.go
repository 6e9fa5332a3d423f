package commands

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// visibleVars returns the values of the variables the call can see, limited
// to names if any are given.
func visibleVars(c *shell.Call, keep func(name string, scope vos.Scope) bool) map[string]any {
	out := make(map[string]any)
	for name, scope := range c.Visible() {
		if keep != nil && !keep(name, scope) {
			continue
		}
		if v, ok := c.Var(name); ok {
			out[name] = v
		}
	}
	return out
}

// Declare implements declare and its aliases. Assignments arrive as
// declarations, options as arguments.
func Declare(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   c.Name + " [-fp] [NAME[=VALUE]]...",
		Short: "Set variable values or display them.",
	}

	functions := cmd.Flags().Bool('f', "act on function definitions")
	show := cmd.Flags().Bool('p', "display each NAME and its value")

	return cmd.Run(c, func(yield func(any) bool) error {
		names := make(map[string]bool)
		for _, d := range c.Decls {
			names[d.Name] = true
		}
		selected := func(name string, _ vos.Scope) bool {
			return len(names) == 0 || names[name]
		}

		if *functions {
			for _, fn := range c.Registry().Funcs(c.SessionKey()) {
				if selected(fn.Name, vos.ScopeHome) && !yield(fn.Src) {
					return nil
				}
			}
			return nil
		}

		if len(c.Decls) == 0 || *show {
			yield(visibleVars(c, selected))
			return nil
		}

		for _, d := range c.Decls {
			v := d.Value
			if !d.HasValue {
				if _, ok := c.Var(d.Name); ok {
					continue
				}
				v = ""
			}
			if err := c.SetVar(d.Name, v); err != nil {
				return programError(c, err)
			}
		}
		return nil
	})
}

var _ shell.Builtin = Declare

// Local declares variables that belong to the calling function and are
// inherited by the processes it starts.
func Local(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "local [NAME[=VALUE]]...",
		Short: "Define function local variables.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		if c.Process().PID == 0 {
			return vos.Errorf(vos.ExitFailure, "local: can only be used in a function")
		}

		if len(c.Decls) == 0 {
			yield(visibleVars(c, func(_ string, scope vos.Scope) bool {
				return scope == vos.ScopeLocal
			}))
			return nil
		}

		for _, d := range c.Decls {
			v := d.Value
			if !d.HasValue {
				v = ""
			}
			c.DeclareLocal(d.Name, v)
		}
		return nil
	})
}

var _ shell.Builtin = Local

// Set stores a value at a path of the variable tree. The value is parsed as
// JSON when possible.
func Set(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "set [PATH VALUE...]",
		Short: "Store a value in the variable tree, or list all variables.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		switch len(args) {
		case 0:
			yield(visibleVars(c, nil))
			return nil
		case 1:
			return programError(c, errMissingOperand("VALUE"))
		}

		v := vars.Parse(strings.Join(args[1:], " "))
		return programError(c, c.Assign(args[0], v))
	})
}

var _ shell.Builtin = Set

// Unset removes variables, nested values or functions.
func Unset(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "unset [-fv] NAME...",
		Short: "Remove variables or functions.",
	}

	functions := cmd.Flags().Bool('f', "treat each NAME as a function")
	cmd.Flags().Bool('v', "treat each NAME as a variable")

	return cmd.Run(c, func(yield func(any) bool) error {
		for _, name := range cmd.Flags().Args() {
			switch {
			case *functions:
				c.Registry().UnsetFunc(c.SessionKey(), name)
			case strings.ContainsAny(name, "./"):
				if _, err := c.Lookup(name); err != nil {
					continue
				}
				if err := c.Remove(name); err != nil {
					return programError(c, err)
				}
			default:
				c.UnsetVar(name)
			}
		}
		return nil
	})
}

var _ shell.Builtin = Unset

// Env prints the variables the call can see as NAME=value lines.
func Env(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "env",
		Short: "Print the variables visible to the current process.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		env := visibleVars(c, nil)
		names := make([]string, 0, len(env))
		for name := range env {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if !yield(fmt.Sprintf("%s=%s", name, vars.String(env[name]))) {
				return nil
			}
		}
		return nil
	})
}

var _ shell.Builtin = Env

func init() {
	mustAddBuiltin(Declare, "declare", "typeset", "export", "readonly")
	mustAddBuiltin(Local, "local")
	mustAddBuiltin(Set, "set")
	mustAddBuiltin(Unset, "unset")
	mustAddBuiltin(Env, "env")
}
