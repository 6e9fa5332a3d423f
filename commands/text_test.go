package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	cases := map[string]struct {
		script string
		out    string
		code   int
	}{
		"printf": {
			script: "printf '%s-' a b c",
			out:    "a-b-c-\n",
		},
		"printf reuses format": {
			script: `printf '%d+%d\n' 1 2 3 4`,
			out:    "1+2\n3+4\n",
		},
		"printf missing format": {
			script: "printf",
			out:    "printf: missing operand FORMAT\n",
			code:   1,
		},
		"cat paths": {
			script: `set list '["x", "y"]'; set z 1; cat list z`,
			out:    "x\ny\n1\n",
		},
		"cat stdin": {
			script: "echo hi | cat",
			out:    "hi\n",
		},
		"cat missing": {
			script: "cat nope",
			out:    "cat: nope: /home/nope: not found\n",
			code:   1,
		},
		"grep": {
			script: `printf 'apple\nbanana\ncherry\n' | grep an`,
			out:    "banana\n",
		},
		"grep line numbers": {
			script: `printf 'apple\nbanana\ncherry\n' | grep -n a`,
			out:    "1:apple\n2:banana\n",
		},
		"grep inverted ignoring case": {
			script: `printf 'Apple\nbanana\n' | grep -vi APPLE`,
			out:    "banana\n",
		},
		"grep no match": {
			script: "echo x | grep y",
			code:   1,
		},
		"grep names": {
			script: `set a '["one", "two"]'; set b '["three"]'; grep o a b`,
			out:    "a:one\na:two\n",
		},
		"grep structured": {
			script: `set list '[{"n": "a"}, {"n": "b"}]'; grep '"b"' list`,
			out:    "{\n  \"n\": \"b\"\n}\n",
		},
		"grep bad pattern": {
			script: "echo x | grep '('",
			out:    "grep: error parsing regexp: missing closing ): `(`\n",
			code:   2,
		},
		"grep missing pattern": {
			script: "grep",
			out:    "grep: missing argument PATTERN\n",
			code:   1,
		},
		"wc chars": {
			script: "echo héllo | wc -m -c",
			out:    "7 6\n",
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
