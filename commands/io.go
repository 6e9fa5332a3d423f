package commands

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

const defaultReadVar = "REPLY"

// Read reads one value from standard input into variables.
func Read(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "read [-r] [NAME]...",
		Short: "Read a value from standard input into variables.",
	}

	raw := cmd.Flags().Bool('r', "do not treat backslashes as escape characters")

	return cmd.Run(c, func(yield func(any) bool) error {
		names := cmd.Flags().Args()
		if len(names) == 0 {
			names = []string{defaultReadVar}
		}

		res, err := c.Read(device.ReadOpts{})
		if err != nil {
			return err
		}
		if !res.HasData {
			c.SetExitCode(vos.ExitFailure)
			return nil
		}

		v := res.Data
		if s, ok := v.(string); ok {
			s = strings.TrimSuffix(s, "\n")
			if !*raw {
				s = unescapeRead(s)
			}
			v = s
		}

		if len(names) == 1 {
			return programError(c, c.Assign(names[0], v))
		}

		fields := splitFields(vars.String(v), len(names))
		for i, name := range names {
			var field string
			if i < len(fields) {
				field = fields[i]
			}
			if err := c.Assign(name, field); err != nil {
				return programError(c, err)
			}
		}
		return nil
	})
}

var _ shell.Builtin = Read

// unescapeRead drops backslashes, keeping the character each one escapes.
func unescapeRead(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// splitFields splits s on whitespace into at most n fields, the last one
// keeping the remainder of the line.
func splitFields(s string, n int) []string {
	var out []string
	rest := strings.TrimLeft(s, " \t\n")
	for len(out) < n-1 && rest != "" {
		end := strings.IndexAny(rest, " \t\n")
		if end < 0 {
			break
		}
		out = append(out, rest[:end])
		rest = strings.TrimLeft(rest[end:], " \t\n")
	}
	if rest != "" {
		out = append(out, strings.TrimRight(rest, " \t\n"))
	}
	return out
}

// Choice asks the user to pick one of its arguments, either by clicking it
// or by typing its number or text, and writes the choice.
func Choice(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "choice [-p PROMPT] OPTION...",
		Short: "Ask the user to pick one of the options.",
	}

	prompt := cmd.Flags().String('p', "", "text shown before the options")

	return cmd.Run(c, func(yield func(any) bool) error {
		options := cmd.Flags().Args()
		if len(options) == 0 {
			return programError(c, errMissingOperand("OPTION"))
		}

		if *prompt != "" {
			if err := c.WriteErr(*prompt); err != nil {
				return err
			}
		}

		clicks := make(chan int, len(options))
		for i, opt := range options {
			link := fmt.Sprintf("[%d] %s", i+1, opt)
			if err := c.Registry().AddLink(c.SessionKey(), link, func() {
				select {
				case clicks <- i:
				default:
				}
			}); err != nil {
				return err
			}
			defer c.Registry().RemoveLink(c.SessionKey(), link)

			if err := c.WriteErr(link); err != nil {
				return err
			}
		}

		ctx, cancel := context.WithCancel(c.Context())
		defer cancel()

		type result struct {
			res device.ReadResult
			err error
		}
		for {
			reads := make(chan result, 1)
			go func() {
				res, err := c.ReadContext(ctx, device.ReadOpts{})
				reads <- result{res, err}
			}()

			select {
			case i := <-clicks:
				yield(options[i])
				return nil

			case r := <-reads:
				if r.err != nil {
					return r.err
				}
				if r.res.EOF {
					c.SetExitCode(vos.ExitFailure)
					return nil
				}
				if i, ok := matchChoice(options, vars.String(r.res.Data)); ok {
					yield(options[i])
					return nil
				}
				if err := c.WriteErr(fmt.Sprintf("choice: pick a number from 1 to %d", len(options))); err != nil {
					return err
				}

			case <-ctx.Done():
				return c.AwaitRunning()
			}
		}
	})
}

var _ shell.Builtin = Choice

// matchChoice finds the option picked by a typed line: its 1-based number
// or its text, ignoring case.
func matchChoice(options []string, line string) (int, bool) {
	line = strings.TrimSpace(line)
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(options) {
		return n - 1, true
	}
	for i, opt := range options {
		if strings.EqualFold(opt, line) {
			return i, true
		}
	}
	return 0, false
}

func init() {
	mustAddBuiltin(Read, "read")
	mustAddBuiltin(Choice, "choice")
}
