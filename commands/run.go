package commands

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// errOutputClosed stops a script whose output is no longer read.
var errOutputClosed = errors.New("output closed")

// Run executes a Starlark script against the process. The script sees its
// arguments as args and talks to the shell through read, write, get, set and
// call.
func Run(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "run [-f PATH | CODE] [ARG]...",
		Short: "Run a Starlark script.",
	}

	file := cmd.Flags().String('f', "", "run the script stored at PATH")

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		name := "<command-line>"
		var src string
		switch {
		case cmd.Flags().IsSet('f'):
			v, err := c.Lookup(*file)
			if err != nil {
				return programError(c, fmt.Errorf("%s: %v", *file, err))
			}
			s, ok := v.(string)
			if !ok {
				return programError(c, fmt.Errorf("%s: not a script", *file))
			}
			name, src = *file, s
		case len(args) == 0:
			return programError(c, errMissingOperand("CODE"))
		default:
			src, args = args[0], args[1:]
		}

		thread := &starlark.Thread{
			Name: c.Name,
			Print: func(_ *starlark.Thread, msg string) {
				_ = c.Write(msg)
			},
		}
		stop := context.AfterFunc(c.Context(), func() {
			thread.Cancel("killed")
		})
		defer stop()

		var outputClosed bool
		env := scriptEnv(c, args, func(v any) error {
			if !yield(v) {
				outputClosed = true
				thread.Cancel(errOutputClosed.Error())
				return errOutputClosed
			}
			return nil
		})

		opts := &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
		}
		_, err := starlark.ExecFileOptions(opts, thread, name, src, env)
		switch {
		case err == nil, outputClosed:
			return nil
		case c.Context().Err() != nil:
			return c.AwaitRunning()
		}

		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return vos.Errorf(vos.ExitFailure, "%s: %s", c.Name, evalErr.Backtrace())
		}
		return programError(c, err)
	})
}

var _ shell.Builtin = Run

// scriptEnv builds the globals a script starts with.
func scriptEnv(c *shell.Call, args []string, write func(any) error) starlark.StringDict {
	argv := make([]starlark.Value, len(args))
	for i, arg := range args {
		argv[i] = starlark.String(arg)
	}

	return starlark.StringDict{
		"args": starlark.NewList(argv),

		"read": starlark.NewBuiltin("read", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			res, err := c.Read(device.ReadOpts{})
			if err != nil {
				return nil, err
			}
			if !res.HasData {
				return starlark.None, nil
			}
			return toStarlark(res.Data), nil
		}),

		"write": starlark.NewBuiltin("write", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var v starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &v); err != nil {
				return nil, err
			}
			out, err := fromStarlark(v)
			if err != nil {
				return nil, err
			}
			return starlark.None, write(out)
		}),

		"get": starlark.NewBuiltin("get", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var path string
			var def starlark.Value = starlark.None
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "default?", &def); err != nil {
				return nil, err
			}
			v, err := c.Lookup(path)
			if errors.Is(err, vars.ErrNotFound) {
				return def, nil
			}
			if err != nil {
				return nil, err
			}
			return toStarlark(v), nil
		}),

		"set": starlark.NewBuiltin("set", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var path string
			var v starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "value", &v); err != nil {
				return nil, err
			}
			out, err := fromStarlark(v)
			if err != nil {
				return nil, err
			}
			return starlark.None, c.Assign(path, out)
		}),

		"call": starlark.NewBuiltin("call", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("%s: missing argument for path", b.Name())
			}
			path, ok := starlark.AsString(args[0])
			if !ok {
				return nil, fmt.Errorf("%s: path must be a string, got %s", b.Name(), args[0].Type())
			}
			params := make([]any, 0, len(args)-1)
			for _, arg := range args[1:] {
				v, err := fromStarlark(arg)
				if err != nil {
					return nil, err
				}
				params = append(params, v)
			}

			var out any
			err := c.ThrowOnPause(func(ctx context.Context) error {
				var err error
				out, err = c.Invoke(ctx, path, params)
				return err
			})
			if err != nil {
				return nil, err
			}
			return toStarlark(out), nil
		}),
	}
}

// toStarlark converts a shell value into a Starlark value.
func toStarlark(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		if v == float64(int64(v)) {
			return starlark.MakeInt64(int64(v))
		}
		return starlark.Float(v)
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = toStarlark(e)
		}
		return starlark.NewList(elems)
	case map[string]any:
		d := starlark.NewDict(len(v))
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			d.SetKey(starlark.String(k), toStarlark(v[k]))
		}
		return d
	}
	return starlark.String(vars.String(v))
}

// fromStarlark converts a Starlark value into a shell value. Numbers become
// float64 like JSON numbers do.
func fromStarlark(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Int:
		n, ok := v.Int64()
		if !ok {
			return nil, fmt.Errorf("int %s out of range", v)
		}
		return float64(n), nil
	case starlark.Float:
		return float64(v), nil
	case *starlark.List:
		out := make([]any, v.Len())
		for i := range out {
			item, err := fromStarlark(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case starlark.Tuple:
		out := make([]any, len(v))
		for i, e := range v {
			item, err := fromStarlark(e)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, kv := range v.Items() {
			k, ok := starlark.AsString(kv[0])
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", kv[0])
			}
			item, err := fromStarlark(kv[1])
			if err != nil {
				return nil, err
			}
			out[k] = item
		}
		return out, nil
	}
	return nil, fmt.Errorf("can't convert %s to a shell value", v.Type())
}

func init() {
	mustAddBuiltin(Run, "run")
}
