package commands

import (
	"fmt"
	"iter"
	"strings"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vos"
)

// History displays or clears the session's command history.
func History(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "history [-c]",
		Short: "Display the history list with line numbers.",
	}

	clear := cmd.Flags().Bool('c', "clear the history by deleting all entries")

	return cmd.Run(c, func(yield func(any) bool) error {
		if *clear {
			c.Registry().ClearHistory(c.SessionKey())
			return nil
		}

		for i, line := range c.Registry().History(c.SessionKey()) {
			if !yield(fmt.Sprintf("% 5d  %s", i+1, line)) {
				return nil
			}
		}
		return nil
	})
}

var _ shell.Builtin = History

// Help lists the builtins, or shows the help of one.
func Help(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "help [NAME]",
		Short: "Display information about builtin commands.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		if len(args) == 0 {
			var b strings.Builder
			fmt.Fprintln(&b, "These shell commands are defined internally.  Type `help' to see this list.")
			fmt.Fprintln(&b, "Type `help name' to find out more about the function `name'.")
			fmt.Fprintln(&b)
			fmt.Fprintln(&b, "Builtins:")
			fmt.Fprintln(&b)
			fmt.Fprintln(&b, strings.Join(c.Interpreter().BuiltinNames(), "\n"))
			yield(b.String())
			return nil
		}

		for _, name := range args {
			b, ok := c.Interpreter().Builtin(name)
			if !ok {
				return vos.Errorf(vos.ExitFailure, "help: no help topics match `%s'", name)
			}
			sub := &shell.Call{API: c.API, Name: name, Args: []string{"--help"}}
			for v, err := range b(sub) {
				if err != nil {
					return err
				}
				if !yield(v) {
					return nil
				}
			}
		}
		return nil
	})
}

var _ shell.Builtin = Help

func init() {
	mustAddBuiltin(History, "history")
	mustAddBuiltin(Help, "help")
}
