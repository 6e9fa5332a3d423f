package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariables(t *testing.T) {
	cases := map[string]struct {
		script string
		out    string
		code   int
	}{
		"assign": {
			script: "x=5; echo $x",
			out:    "5\n",
		},
		"set nested": {
			script: `set cfg '{"a": {"b": 2}}'; get cfg.a.b`,
			out:    "2\n",
		},
		"set missing value": {
			script: "set x",
			out:    "set: missing operand VALUE\n",
			code:   1,
		},
		"set into path": {
			script: `set cfg '{"a": 1}'; set cfg.b hello there; get cfg.b`,
			out:    "hello there\n",
		},
		"local outside function": {
			script: "local x=1",
			out:    "local: can only be used in a function\n",
			code:   1,
		},
		"local isolation": {
			script: `f() { local y=2; echo $y; }; f; echo "[$y]"`,
			out:    "2\n[]\n",
		},
		"unset": {
			script: `x=1; unset x; echo "[$x]"`,
			out:    "[]\n",
		},
		"unset path": {
			script: `set cfg '{"a": 1, "b": 2}'; unset cfg.a; ls cfg`,
			out:    "b\n",
		},
		"unset missing path": {
			script: "unset nope.a",
		},
		"env": {
			script: "a=1; b=two; env",
			out:    "a=1\nb=two\n",
		},
		"declare keeps existing": {
			script: "x=1; declare x; echo $x",
			out:    "1\n",
		},
		"declare assigns": {
			script: "declare x=3; echo $x",
			out:    "3\n",
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

func TestDeclare_functions(t *testing.T) {
	out, code := runScript(t, "f() { echo hi; }; declare -f f")

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "echo hi")
}
