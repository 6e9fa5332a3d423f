package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlow(t *testing.T) {
	cases := map[string]struct {
		script string
		out    string
		code   int
	}{
		"return": {
			script: "f() { return 3; echo no; }; f; echo $?",
			out:    "3\n",
		},
		"return last status": {
			script: "f() { false; return; }; f; echo $?",
			out:    "1\n",
		},
		"return bad count": {
			script: "f() { return x; }; f",
			out:    "return: x: numeric argument required\n",
			code:   2,
		},
		"exit": {
			script: "exit 4; echo no",
			code:   4,
		},
		"continue": {
			script: "for i in 1 2 3; do if [ $i = 2 ]; then continue; fi; echo $i; done",
			out:    "1\n3\n",
		},
		"break": {
			script: "for i in 1 2 3; do echo $i; break; done",
			out:    "1\n",
		},
		"break nested": {
			script: "for i in 1 2; do for j in a b; do echo $i$j; break 2; done; done",
			out:    "1a\n",
		},
		"source": {
			script: "set script 'echo sourced; y=1'; source script; echo $y",
			out:    "sourced\n1\n",
		},
		"source code": {
			script: ". -c 'echo hi'",
			out:    "hi\n",
		},
		"source not a script": {
			script: "set n 1; source n",
			out:    "source: n: not a script\n",
			code:   1,
		},
		"source missing": {
			script: "source",
			out:    "source: filename argument required\n",
			code:   2,
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

func TestTest(t *testing.T) {
	cases := map[string]int{
		`test`:               1,
		`test x`:             0,
		`test ""`:            1,
		`test -z ""`:         0,
		`test -n ""`:         1,
		`test ! -z x`:        0,
		`[ a = a ]`:          0,
		`[ a == b ]`:         1,
		`[ a != b ]`:         0,
		`[ 1 -lt 2 ]`:        0,
		`[ 2 -le 2 ]`:        0,
		`[ 3 -gt 4 ]`:        1,
		`[ 1.5 -ge 1 ]`:      0,
		`[ 1 -eq 1 ]`:        0,
		`[ 1 -ne 1 ]`:        1,
		`[ ! 1 -ne 1 ]`:      0,
		`[ 1 -lt x ]`:        2,
		`[ 1 -zz 2 ]`:        2,
		`[ 1 = 1`:            2,
		`set a 1; test -v a`: 0,
		`test -v nope`:       1,
		`test -q x`:          2,
	}

	for script, code := range cases {
		t.Run(script, func(t *testing.T) {
			_, got := runScript(t, script)

			assert.Equal(t, code, got)
		})
	}
}
