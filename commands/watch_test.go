package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatch(t *testing.T) {
	cases := map[string]struct {
		script string
		out    string
		code   int
	}{
		"every value": {
			script: "{ echo a; sleep 0.05; echo b; } | watch 'echo got $1'",
			out:    "got a\ngot b\n",
		},
		"newer value cancels": {
			script: "{ echo slow; sleep 0.05; echo fast; } | watch 'sleep 0.2; echo done $1'",
			out:    "done fast\n",
		},
		"last exit code": {
			script: "echo x | watch false",
			code:   1,
		},
		"no input": {
			script: "watch 'echo never' < /dev/null",
		},
		"missing": {
			script: "watch",
			out:    "watch: missing operand SCRIPT\n",
			code:   1,
		},
		"bad script": {
			script: "watch 'if'",
			code:   1,
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			start := time.Now()
			out, code := runScript(t, tc.script)

			if tn != "bad script" {
				assert.Equal(t, tc.out, out)
			}
			assert.Equal(t, tc.code, code)
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}
