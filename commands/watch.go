package commands

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
)

// Watch runs a script for every value read from standard input, $1 holding
// the value. A value arriving while the script still runs cancels that run.
func Watch(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "watch SCRIPT",
		Short: "Run SCRIPT for each value read, newer values cancel older runs.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		switch len(args) {
		case 0:
			return programError(c, errMissingOperand("SCRIPT"))
		case 1:
		default:
			return programError(c, fmt.Errorf("too many arguments"))
		}
		script := args[0]
		if _, status, err := shell.Parse(script); status != shell.ParseComplete {
			return programError(c, err)
		}

		var (
			mu   sync.Mutex
			last int
		)
		err := c.EagerReadLoop(func(ctx context.Context, v any) error {
			fd := c.FD()
			fd[0] = device.KeyNull
			code, err := c.SpawnContext(ctx, script, shell.SpawnOpts{
				Internal:    true,
				FD:          fd,
				Positionals: []string{c.Name, vars.String(v)},
			})
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return err
			}
			mu.Lock()
			last = code
			mu.Unlock()
			return nil
		})
		if err != nil {
			return programError(c, err)
		}

		mu.Lock()
		c.SetExitCode(last)
		mu.Unlock()
		return nil
	})
}

var _ shell.Builtin = Watch

func init() {
	mustAddBuiltin(Watch, "watch")
}
