package commands

import (
	"iter"

	"github.com/josephlewis42/npcsh/core/shell"
)

// Cat copies values from the given paths, or from standard input, to
// standard output.
func Cat(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "cat [PATH]...",
		Short: "Concatenate values to standard output.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		return cmd.RunEachPathOrStdin(c, cmd.Flags().Args(), func(_ string, v any) bool {
			return yield(v)
		})
	})
}

var _ shell.Builtin = Cat

func init() {
	mustAddBuiltin(Cat, "cat")
}
