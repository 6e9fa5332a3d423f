package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.starlark.net/starlark"
)

func TestRun(t *testing.T) {
	cases := map[string]struct {
		script string
		out    string
		code   int
	}{
		"write": {
			script: "run 'write(1 + 2)'",
			out:    "3\n",
		},
		"args": {
			script: "run 'write(args)' a b",
			out:    "[\n  \"a\",\n  \"b\"\n]\n",
		},
		"set and get": {
			script: `run 'set("x", {"a": [1, 2]}); write(get("x.a")[1])'; get x.a.0`,
			out:    "2\n1\n",
		},
		"get default": {
			script: `run 'write(get("nope", "fallback"))'`,
			out:    "fallback\n",
		},
		"read": {
			script: `printf 'a\n' | run 'v = read(); write(v.upper()); write(read())'`,
			out:    "A\n\n",
		},
		"print": {
			script: `run 'print("hi")'`,
			out:    "hi\n",
		},
		"script from tree": {
			script: `set prog 'write(len(args))'; run -f prog x y z`,
			out:    "3\n",
		},
		"missing code": {
			script: "run",
			out:    "run: missing operand CODE\n",
			code:   1,
		},
		"output closed": {
			script: `run 'for i in range(1000000): write(i)' | read; echo $REPLY`,
			out:    "0\n",
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			out, code := runScript(t, tc.script)

			assert.Equal(t, tc.out, out)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestRun_error(t *testing.T) {
	out, code := runScript(t, `run 'fail("boom")'`)

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "boom")
}

func TestFromStarlark(t *testing.T) {
	d := starlark.NewDict(1)
	assert.NoError(t, d.SetKey(starlark.String("k"), starlark.Tuple{starlark.MakeInt(1), starlark.None}))

	got, err := fromStarlark(d)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"k": []any{1.0, nil}}, got)

	bad := starlark.NewDict(1)
	assert.NoError(t, bad.SetKey(starlark.MakeInt(1), starlark.True))
	_, err = fromStarlark(bad)
	assert.Error(t, err)
}
