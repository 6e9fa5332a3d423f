package commands

import (
	"iter"

	"github.com/josephlewis42/npcsh/core/shell"
)

// No-op commands.
type NoOpCommand struct {
	Name     string
	Use      string
	Short    string
	Stdout   string
	ExitCode int
}

// Convert the no-op command description to a functioning builtin.
func (n *NoOpCommand) ToBuiltin() shell.Builtin {
	return func(c *shell.Call) iter.Seq2[any, error] {
		cmd := &SimpleCommand{
			Use:   n.Use,
			Short: n.Short,
			// Never bail, even if args are bad.
			NeverBail: true,
		}

		return cmd.Run(c, func(yield func(any) bool) error {
			if n.Stdout != "" {
				yield(n.Stdout)
			}
			c.SetExitCode(n.ExitCode)
			return nil
		})
	}
}

var noOpBuiltins = []NoOpCommand{
	{
		Name:  ":",
		Use:   ": [ARG]...",
		Short: "Do nothing, successfully.",
	},
	{
		Name:  "true",
		Use:   "true",
		Short: "Return a successful result.",
	},
	{
		Name:     "false",
		Use:      "false",
		Short:    "Return an unsuccessful result.",
		ExitCode: 1,
	},
}

func init() {
	for i := range noOpBuiltins {
		cmd := noOpBuiltins[i]
		mustAddBuiltin(cmd.ToBuiltin(), cmd.Name)
	}
}
