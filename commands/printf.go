package commands

import (
	"iter"
	"strings"

	"github.com/josephlewis42/npcsh/core/shell"
	"mvdan.cc/sh/v3/expand"
)

// Printf formats its arguments like the POSIX printf utility. The format is
// reused until every argument was consumed.
//
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/printf.html
func Printf(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "printf FORMAT [ARGUMENT]...",
		Short: "Format and print data.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		if len(args) == 0 {
			return programError(c, errMissingOperand("FORMAT"))
		}

		format, args := args[0], args[1:]
		var out strings.Builder
		for {
			s, consumed, err := expand.Format(nil, format, args)
			if err != nil {
				return programError(c, err)
			}
			out.WriteString(s)
			if consumed == 0 || consumed >= len(args) {
				break
			}
			args = args[consumed:]
		}

		yield(out.String())
		return nil
	})
}

var _ shell.Builtin = Printf

func init() {
	mustAddBuiltin(Printf, "printf")
}
