package commands

import (
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// Return leaves the current function.
func Return(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:       "return [N]",
		Short:     "Return from a function with exit status N, or the last command's status.",
		NeverBail: true,
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		code, err := countArg(c, cmd.Flags().Args(), c.LastExit())
		if err != nil {
			return err
		}
		return &vos.KillError{
			Signal:     vos.SIGKILL,
			PID:        c.Process().PID,
			SessionKey: c.SessionKey(),
			Code:       code,
			Depth:      1,
		}
	})
}

var _ shell.Builtin = Return

// Exit ends the current job.
func Exit(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:       "exit [N]",
		Short:     "Exit the current job with status N, or the last command's status.",
		NeverBail: true,
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		code, err := countArg(c, cmd.Flags().Args(), c.LastExit())
		if err != nil {
			return err
		}
		return &vos.KillError{
			Signal:     vos.SIGKILL,
			PID:        c.Process().PID,
			SessionKey: c.SessionKey(),
			Code:       code,
			Depth:      vos.Unlimited,
		}
	})
}

var _ shell.Builtin = Exit

// Break leaves the N innermost loops.
func Break(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "break [N]",
		Short: "Exit from the N innermost for, while or until loops.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		n, err := countArg(c, cmd.Flags().Args(), 1)
		if err != nil {
			return err
		}
		return shell.Break(n)
	})
}

var _ shell.Builtin = Break

// Continue resumes the N-th innermost loop.
func Continue(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "continue [N]",
		Short: "Resume the next iteration of the N-th enclosing loop.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		n, err := countArg(c, cmd.Flags().Args(), 1)
		if err != nil {
			return err
		}
		return shell.Continue(n)
	})
}

var _ shell.Builtin = Continue

// Source runs a script stored in the variable tree in the calling process.
func Source(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   c.Name + " PATH | -c CODE",
		Short: "Execute commands from a variable in the current shell.",
	}

	code := cmd.Flags().String('c', "", "run CODE instead of the script at PATH")

	return cmd.Run(c, func(yield func(any) bool) error {
		if cmd.Flags().IsSet('c') {
			return c.Source(*code)
		}

		args := cmd.Flags().Args()
		if len(args) == 0 {
			return vos.Errorf(vos.ExitError, "%s: filename argument required", c.Name)
		}
		v, err := c.Lookup(args[0])
		if err != nil {
			return vos.Errorf(vos.ExitFailure, "%s: %s: %v", c.Name, args[0], err)
		}
		src, ok := v.(string)
		if !ok {
			return vos.Errorf(vos.ExitFailure, "%s: %s: not a script", c.Name, args[0])
		}
		return c.Source(src)
	})
}

var _ shell.Builtin = Source

var errTestSyntax = errors.New("syntax error")

// Test evaluates a conditional expression. Options are its operands, so it
// parses its own arguments.
func Test(c *shell.Call) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		args := c.Args
		if c.Name == "[" {
			if len(args) == 0 || args[len(args)-1] != "]" {
				yield(nil, vos.Errorf(vos.ExitError, "[: missing ']'"))
				return
			}
			args = args[:len(args)-1]
		}

		ok, err := evalTest(c, args)
		switch {
		case err != nil:
			yield(nil, vos.Errorf(vos.ExitError, "%s: %v", c.Name, err))
		case ok:
			c.SetExitCode(vos.ExitOK)
		default:
			c.SetExitCode(vos.ExitFailure)
		}
	}
}

var _ shell.Builtin = Test

func evalTest(c *shell.Call, args []string) (bool, error) {
	switch len(args) {
	case 0:
		return false, nil
	case 1:
		return args[0] != "", nil
	case 2:
		switch args[0] {
		case "!":
			ok, err := evalTest(c, args[1:])
			return !ok, err
		case "-z":
			return args[1] == "", nil
		case "-n":
			return args[1] != "", nil
		case "-v":
			_, err := c.Lookup(args[1])
			return err == nil, nil
		}
		return false, fmt.Errorf("%s: unary operator expected", args[0])
	case 3:
		if args[0] == "!" {
			ok, err := evalTest(c, args[1:])
			return !ok, err
		}
		return compare(args[0], args[1], args[2])
	case 4:
		if args[0] == "!" {
			ok, err := evalTest(c, args[1:])
			return !ok, err
		}
	}
	return false, errTestSyntax
}

func compare(lhs, op, rhs string) (bool, error) {
	switch op {
	case "=", "==":
		return lhs == rhs, nil
	case "!=":
		return lhs != rhs, nil
	case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
	default:
		return false, fmt.Errorf("%s: binary operator expected", op)
	}

	l, err := testNumber(lhs)
	if err != nil {
		return false, err
	}
	r, err := testNumber(rhs)
	if err != nil {
		return false, err
	}

	switch op {
	case "-eq":
		return l == r, nil
	case "-ne":
		return l != r, nil
	case "-lt":
		return l < r, nil
	case "-le":
		return l <= r, nil
	case "-gt":
		return l > r, nil
	default: // -ge
		return l >= r, nil
	}
}

func testNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(vars.String(vars.Parse(s)), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: integer expression expected", s)
	}
	return n, nil
}

func init() {
	mustAddBuiltin(Return, "return")
	mustAddBuiltin(Exit, "exit")
	mustAddBuiltin(Break, "break")
	mustAddBuiltin(Continue, "continue")
	mustAddBuiltin(Source, "source", ".")
	mustAddBuiltin(Test, "test", "[")
}
