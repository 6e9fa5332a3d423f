package commands

import (
	"iter"

	"github.com/josephlewis42/npcsh/core/shell"
)

// clearScreen homes the cursor and erases the display, assuming VT100
// compatibility.
const clearScreen = "\033[H\033[2J"

// Clear implements the UNIX clear command.
func Clear(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   c.Name,
		Short: "Clear the terminal screen.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		if c.Interactive() {
			yield(clearScreen)
		}
		return nil
	})
}

var _ shell.Builtin = Clear

func init() {
	mustAddBuiltin(Clear, "clear", "reset")
}
