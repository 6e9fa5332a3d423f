package commands

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// parentPath strips the last segment of p. It reports false when p has a
// single relative segment.
func parentPath(p string) (string, bool) {
	p = strings.TrimRight(p, "/")
	i := strings.LastIndexAny(p, "/.")
	switch {
	case i < 0:
		return "", false
	case i == 0:
		return "/", true
	}
	return p[:i], true
}

func parentExists(c *shell.Call, path string) bool {
	parent, ok := parentPath(path)
	if !ok {
		return true
	}
	_, err := c.Lookup(parent)
	return err == nil
}

// Mkdir creates empty maps in the variable tree.
//
// https://pubs.opengroup.org/onlinepubs/9699919799.2018edition/utilities/mkdir.html
func Mkdir(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "mkdir [OPTION...] PATH...",
		Short: "Create maps if they don't exist.",
	}

	makeParents := cmd.Flags().BoolLong("parents", 'p', "make parents if needed, no error if existing")
	verbose := cmd.Flags().BoolLong("verbose", 'v', "print line for every created map")

	return cmd.Run(c, func(yield func(any) bool) error {
		paths := cmd.Flags().Args()
		if len(paths) == 0 {
			return programError(c, errMissingOperand("PATH"))
		}

		anyFailed := false
		for _, path := range paths {
			_, lookupErr := c.Lookup(path)

			var reason string
			switch {
			case lookupErr == nil:
				if *makeParents {
					continue
				}
				reason = "value exists"
			case !errors.Is(lookupErr, vars.ErrNotFound):
				reason = lookupErr.Error()
			case !*makeParents && !parentExists(c, path):
				reason = "no such map"
			default:
				if err := c.Assign(path, map[string]any{}); err != nil {
					reason = err.Error()
					break
				}
				if *verbose && !yield(fmt.Sprintf("mkdir: created %q", path)) {
					return nil
				}
				continue
			}

			anyFailed = true
			if err := c.WriteErr(fmt.Sprintf("mkdir: cannot create %q: %s\n", path, reason)); err != nil {
				return err
			}
		}

		if anyFailed {
			c.SetExitCode(vos.ExitFailure)
		}
		return nil
	})
}

var _ shell.Builtin = Mkdir

// Touch creates empty string values that don't exist yet.
func Touch(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "touch [OPTION...] PATH...",
		Short: "Create empty values if they don't exist.",
	}

	noCreate := cmd.Flags().BoolLong("no-create", 'c', "don't create values")

	return cmd.Run(c, func(yield func(any) bool) error {
		anyFailed := false
		for _, path := range cmd.Flags().Args() {
			_, err := c.Lookup(path)
			switch {
			case err == nil, *noCreate && errors.Is(err, vars.ErrNotFound):
				continue
			case errors.Is(err, vars.ErrNotFound):
				err = c.Assign(path, "")
			}
			if err != nil {
				anyFailed = true
				if werr := c.WriteErr(fmt.Sprintf("touch: cannot touch %q: %s\n", path, err)); werr != nil {
					return werr
				}
			}
		}

		if anyFailed {
			c.SetExitCode(vos.ExitFailure)
		}
		return nil
	})
}

var _ shell.Builtin = Touch

func init() {
	mustAddBuiltin(Mkdir, "mkdir")
	mustAddBuiltin(Touch, "touch")
}
