package commands

import (
	"fmt"
	"iter"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vos"
)

// Which reports how each name would be run.
func Which(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   c.Name + " [NAME...]",
		Short: "Describe how each name would be interpreted as a command.",
		// Never bail, even if args are bad.
		NeverBail: true,
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		anyMissing := false
		for _, name := range cmd.Flags().Args() {
			var line string
			if fn, ok := c.Registry().Func(c.SessionKey(), name); ok {
				if c.Name == "which" {
					line = fmt.Sprintf("%s: shell function", fn.Name)
				} else {
					line = fmt.Sprintf("%s is a function\n%s", fn.Name, fn.Src)
				}
			} else if _, ok := c.Interpreter().Builtin(name); ok {
				line = fmt.Sprintf("%s: shell builtin", name)
				if c.Name == "type" {
					line = fmt.Sprintf("%s is a shell builtin", name)
				}
			} else if v, err := c.Lookup("/lib/" + name); err == nil {
				line = fmt.Sprintf("/lib/%s: %s", name, kind(v))
			} else {
				anyMissing = true
				if err := c.WriteErr(fmt.Sprintf("%s: %s: not found\n", c.Name, name)); err != nil {
					return err
				}
				continue
			}
			if !yield(line) {
				return nil
			}
		}

		if anyMissing {
			c.SetExitCode(vos.ExitFailure)
		}
		return nil
	})
}

var _ shell.Builtin = Which

func init() {
	mustAddBuiltin(Which, "which", "type")
}
