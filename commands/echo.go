package commands

import (
	"iter"
	"regexp"
	"strconv"
	"strings"

	"github.com/josephlewis42/npcsh/core/shell"
)

var (
	unescapeOctal   = regexp.MustCompile(`\\0[0-8][0-8]?[0-8]?`)
	unescapeHex     = regexp.MustCompile(`\\x[0-9a-fA-F][0-9a-fA-F]?`)
	unescapeReplace = strings.NewReplacer(
		`\n`, "\n", // newline
		`\r`, "\r", // carriage return
		`\t`, "\t", // horizontal tab
		`\\`, `\`, // backslash literal
		`\b`, "\b", // backspace
		`\a`, "\a", // alert
		`\f`, "\f", // form feed
		`\v`, "\v", // vertical tab
	)
)

func unescape(s string) string {
	s = unescapeReplace.Replace(s)
	s = unescapeOctal.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseInt(arg[2:], 8, 8)
		if err != nil {
			return arg
		}
		return string(rune(out))
	})
	s = unescapeHex.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseInt(arg[2:], 16, 8)
		if err != nil {
			return arg
		}
		return string(rune(out))
	})
	return s
}

// Echo writes its arguments as a single string value.
func Echo(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "echo [-en] [ARG] ...",
		Short: "Display a line of text.",
	}

	opt := cmd.Flags()
	escaped := opt.Bool('e', "interpret backslash escapes")
	noNewline := opt.Bool('n', "skip the value when there is nothing to display")

	return cmd.Run(c, func(yield func(any) bool) error {
		args := opt.Args()
		if *escaped {
			for i, arg := range args {
				args[i] = unescape(arg)
			}
		}

		out := strings.Join(args, " ")
		if out == "" && *noNewline {
			return nil
		}
		yield(out)
		return nil
	})
}

var _ shell.Builtin = Echo

func init() {
	mustAddBuiltin(Echo, "echo")
}
