package commands

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// Grep filters values by a regular expression. String values are matched
// line by line, anything else by its JSON form and passed through whole.
//
// https://pubs.opengroup.org/onlinepubs/9699919799.2018edition/
func Grep(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "grep [-inv] PATTERN [PATH]...",
		Short: "Search values for text matching a pattern.",
	}

	invert := cmd.Flags().Bool('v', "Select lines not matching any of the specified patterns.")
	ignoreCase := cmd.Flags().Bool('i', "Perform pattern matching in searches without regard to case.")
	showLineNumbers := cmd.Flags().Bool('n', "Show line numbers.")

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		if len(args) == 0 {
			return programError(c, errors.New("missing argument PATTERN"))
		}

		pattern := args[0]
		if *ignoreCase {
			pattern = "(?i)" + pattern
		}
		regex, err := regexp.Compile(pattern)
		if err != nil {
			return vos.Errorf(vos.ExitError, "grep: %v", err)
		}

		paths := args[1:]
		showName := len(paths) > 1
		matched := false
		lineNo := 0
		err = cmd.RunEachPathOrStdin(c, paths, func(name string, v any) bool {
			s, isString := v.(string)
			if !isString {
				lineNo++
				if regex.MatchString(vars.String(v)) != *invert {
					matched = true
					return yield(v)
				}
				return true
			}

			for _, line := range strings.Split(strings.TrimSuffix(s, "\n"), "\n") {
				lineNo++
				if regex.MatchString(line) == *invert {
					continue
				}
				matched = true

				if showName {
					line = fmt.Sprintf("%s:%s", name, line)
				}
				if *showLineNumbers {
					line = fmt.Sprintf("%d:%s", lineNo, line)
				}
				if !yield(line) {
					return false
				}
			}
			return true
		})
		if err != nil {
			return err
		}

		if !matched {
			c.SetExitCode(vos.ExitFailure)
		}
		return nil
	})
}

var _ shell.Builtin = Grep

func init() {
	mustAddBuiltin(Grep, "grep")
}
