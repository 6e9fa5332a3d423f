package commands

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vos"
	getopt "github.com/pborman/getopt/v2"
)

// AllBuiltins holds every registered builtin by name.
var AllBuiltins = make(map[string]shell.Builtin)

// mustAddBuiltin registers fn under each of names.
func mustAddBuiltin(fn shell.Builtin, names ...string) {
	for _, name := range names {
		if _, ok := AllBuiltins[name]; ok {
			panic(fmt.Sprintf("duplicate builtin %q", name))
		}
		AllBuiltins[name] = fn
	}
}

// BuiltinNames lists the registered builtins in sorted order.
func BuiltinNames() []string {
	out := make([]string, 0, len(AllBuiltins))
	for name := range AllBuiltins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a one line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool
	// NeverBail skips reporting bad flags and always runs the callback.
	NeverBail bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

func (s *SimpleCommand) help() string {
	var b strings.Builder
	s.PrintHelp(&b)
	return b.String()
}

// Run parses the call's arguments and, if that was successful, runs the
// callback. Values passed to yield become the command's output; yield
// returns false once nobody reads them anymore. An error returned by the
// callback ends the command: shell errors are reported on stderr with their
// exit code, kills unwind further.
func (s *SimpleCommand) Run(c *shell.Call, callback func(yield func(any) bool) error) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		opts := s.Flags()

		// Add help flag if not overridden.
		if s.ShowHelp == nil {
			s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
		}

		err := opts.Getopt(append([]string{c.Name}, c.Args...), nil)
		if err != nil {
			c.Logger().Debug("invalid invocation", "cmd", c.Name, "err", err)
		}

		if err != nil && !s.NeverBail {
			if err := c.WriteErr(fmt.Sprintf("error: %s\n", err)); err != nil {
				yield(nil, err)
				return
			}
			c.SetExitCode(vos.ExitFailure)
			yield(s.help(), nil)
			return
		}

		if *s.ShowHelp {
			yield(s.help(), nil)
			return
		}

		stopped := false
		err = callback(func(v any) bool {
			if !yield(v, nil) {
				stopped = true
			}
			return !stopped
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

// RunEachPathOrStdin calls fn with every value stored at paths, arrays
// spread into their items, or with every value read from stdin if there are
// no paths. Missing paths are reported and fail the command. fn returns
// false to stop early.
func (s *SimpleCommand) RunEachPathOrStdin(c *shell.Call, paths []string, fn func(name string, v any) bool) error {
	if len(paths) == 0 {
		for {
			res, err := c.Read(device.ReadOpts{})
			if err != nil {
				return err
			}
			if res.EOF {
				return nil
			}
			if res.HasData && !fn("", res.Data) {
				return nil
			}
		}
	}

	anyFailed := false
	for _, path := range paths {
		v, err := c.Lookup(path)
		if err != nil {
			anyFailed = true
			if err := c.WriteErr(fmt.Sprintf("%s: %s: %v\n", c.Name, path, err)); err != nil {
				return err
			}
			continue
		}
		for _, item := range spread(v) {
			if !fn(path, item) {
				return nil
			}
		}
	}

	if anyFailed {
		c.SetExitCode(vos.ExitFailure)
	}
	return nil
}

func spread(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	return []any{v}
}

// programError turns err into a failure reported as "name: err". Kills and
// errors that already carry an exit code pass through.
func programError(c *shell.Call, err error) error {
	if err == nil {
		return nil
	}
	var shellErr *vos.ShellError
	if errors.As(err, &shellErr) {
		return err
	}
	if _, ok := vos.AsKill(err); ok {
		return err
	}
	return vos.Errorf(vos.ExitFailure, "%s: %v", c.Name, err)
}

type errMissingOperand string

func (e errMissingOperand) Error() string {
	return "missing operand " + string(e)
}

// countArg parses an optional positive count such as the N of "break N".
func countArg(c *shell.Call, args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, vos.Errorf(vos.ExitError, "%s: %s: numeric argument required", c.Name, args[0])
	}
	return n, nil
}

const (
	colorAlways = "always"
	colorAuto   = "auto"
	colorNever  = "never"
)

var (
	ColorBoldBlue  = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen = color.New(color.FgGreen, color.Bold)
	ColorBoldCyan  = color.New(color.FgCyan, color.Bold)
	ColorBoldRed   = color.New(color.FgRed, color.Bold)
)

type ColorPrinter struct {
	value *string
	call  *shell.Call
}

// Init sets up the flag and the call to determine the color output.
func (c *ColorPrinter) Init(flags *getopt.Set, call *shell.Call) {
	c.call = call
	c.value = flags.EnumLong(
		"color",
		rune(0), // No short flag.
		[]string{colorAlways, colorAuto, colorNever},
		colorAuto,
		"colorize the output (always|auto|never)")
}

func (c *ColorPrinter) ShouldColor() bool {
	switch {
	case *c.value == colorNever:
		return false
	case *c.value == colorAlways:
		return true
	default:
		return c.call.Interactive()
	}
}

func (c *ColorPrinter) Sprintf(printer *color.Color, format string, a ...interface{}) string {
	if !c.ShouldColor() {
		return fmt.Sprintf(format, a...)
	}
	// The package wide switch follows the server's stdout, not the session.
	p := *printer
	p.EnableColor()
	return p.Sprintf(format, a...)
}
