package commands

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// kind names the type of a value for long listings.
func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "map"
	case []any, []string:
		return "array"
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "bool"
	case vars.Invocable:
		return "func"
	}
	return fmt.Sprintf("%T", v)
}

// Ls lists the entries of maps and arrays in the variable tree.
func Ls(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "ls [-l] [PATH]...",
		Short: "List the entries of the variable tree.",
	}

	opts := cmd.Flags()
	long := opts.Bool('l', "show the type of each entry")
	var colors ColorPrinter
	colors.Init(opts, c)

	return cmd.Run(c, func(yield func(any) bool) error {
		paths := opts.Args()
		if len(paths) == 0 {
			paths = []string{"."}
		}

		anyFailed := false
		for _, path := range paths {
			v, err := c.Lookup(path)
			if err != nil {
				if err := c.WriteErr(fmt.Sprintf("ls: cannot access %q: %v\n", path, err)); err != nil {
					return err
				}
				anyFailed = true
				continue
			}

			if !vars.IsDir(v) {
				if !yield(entry(path, v, *long, &colors)) {
					return nil
				}
				continue
			}

			for _, key := range vars.Keys(v) {
				child, _ := vars.Lookup(v, []string{key})
				if !yield(entry(key, child, *long, &colors)) {
					return nil
				}
			}
		}

		if anyFailed {
			c.SetExitCode(vos.ExitError)
		}
		return nil
	})
}

func entry(name string, v any, long bool, colors *ColorPrinter) string {
	if vars.IsDir(v) {
		name = colors.Sprintf(ColorBoldBlue, "%s/", name)
	}
	if long {
		return fmt.Sprintf("%-6s %s", kind(v), name)
	}
	return name
}

var _ shell.Builtin = Ls

// Rm removes values from the variable tree.
func Rm(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "rm [OPTION...] PATH...",
		Short: "Remove values from the variable tree.",
	}

	recursive := cmd.Flags().BoolLong("recursive", 'r', "remove maps and arrays and their contents recursively")
	force := cmd.Flags().BoolLong("force", 'f', "ignore missing paths")

	return cmd.Run(c, func(yield func(any) bool) error {
		anyFailed := false
		fail := func(format string, a ...any) error {
			anyFailed = true
			return c.WriteErr(fmt.Sprintf(format, a...))
		}

		for _, path := range cmd.Flags().Args() {
			v, err := c.Lookup(path)
			switch {
			case errors.Is(err, vars.ErrNotFound):
				if !*force {
					err = fail("rm: can't remove %q: no such value\n", path)
				} else {
					err = nil
				}
			case err != nil:
				err = fail("rm: can't look up %q: %v\n", path, err)
			case vars.IsDir(v) && !*recursive:
				err = fail("rm: can't remove %q: is a directory\n", path)
			default:
				if rmErr := c.Remove(path); rmErr != nil {
					err = fail("rm: can't remove %q: %v\n", path, rmErr)
				}
			}
			if err != nil {
				return err
			}
		}

		if anyFailed {
			c.SetExitCode(vos.ExitFailure)
		}
		return nil
	})
}

var _ shell.Builtin = Rm

// Get writes the values stored at each path, keeping their structure.
func Get(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "get PATH...",
		Short: "Write the values stored in the variable tree.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		paths := cmd.Flags().Args()
		if len(paths) == 0 {
			return programError(c, errMissingOperand("PATH"))
		}
		for _, path := range paths {
			v, err := c.Lookup(path)
			if err != nil {
				return programError(c, err)
			}
			if !yield(v) {
				return nil
			}
		}
		return nil
	})
}

var _ shell.Builtin = Get

// CallFunc invokes a host function mounted in the tree. Arguments are parsed
// as JSON when possible.
func CallFunc(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "call PATH [ARG]...",
		Short: "Invoke a host function and write its result.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		if len(args) == 0 {
			return programError(c, errMissingOperand("PATH"))
		}

		params := make([]any, 0, len(args)-1)
		for _, arg := range args[1:] {
			params = append(params, vars.Parse(arg))
		}

		var out any
		err := c.ThrowOnPause(func(ctx context.Context) error {
			var err error
			out, err = c.Invoke(ctx, args[0], params)
			return err
		})
		if err != nil {
			return programError(c, err)
		}
		if out != nil {
			yield(out)
		}
		return nil
	})
}

var _ shell.Builtin = CallFunc

// Cd changes the current directory of the variable tree.
func Cd(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "cd [PATH|-]",
		Short: "Change the current directory of the variable tree.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		switch len(args) {
		case 0:
			args = append(args, "~")
		case 1:
		default:
			return vos.Errorf(vos.ExitFailure, "cd: too many arguments")
		}

		target := args[0]
		if target == "-" {
			prev, _ := c.Var(vars.KeyOldPWD)
			target = vars.String(prev)
			if target == "" {
				return vos.Errorf(vos.ExitFailure, "cd: OLDPWD not set")
			}
		}
		return c.Chdir(target)
	})
}

var _ shell.Builtin = Cd

// Pwd writes the current directory.
func Pwd(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "pwd",
		Short: "Print the name of the current directory.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		yield(c.Cwd())
		return nil
	})
}

var _ shell.Builtin = Pwd

func init() {
	mustAddBuiltin(Ls, "ls")
	mustAddBuiltin(Rm, "rm")
	mustAddBuiltin(Get, "get")
	mustAddBuiltin(CallFunc, "call")
	mustAddBuiltin(Cd, "cd")
	mustAddBuiltin(Pwd, "pwd")
}
