package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnescape(t *testing.T) {
	cases := map[string]string{
		"plain":    "plain",
		`tab\tend`: "tab\tend",
		`a\r\nb`:   "a\r\nb",
		`\a\b\f\v`: "\a\b\f\v",
		`keep\\n`:  `keep\n`,
		`\q`:       `\q`,

		// Octal takes up to three digits after the zero.
		`\0`:     `\0`,
		`\012x`:  "\nx",
		`\0101`:  "A",
		`\01012`: "A2",
		`\08`:    `\08`,
		`\0377`:  `\0377`,

		// Hex takes up to two digits.
		`\x41\x62`: "Ab",
		`\x7e`:     "~",
		`\x414`:    "A4",
		`\xFF`:     `\xFF`,
		`\xg`:      `\xg`,
	}

	for escaped, want := range cases {
		t.Run(escaped, func(t *testing.T) {
			assert.Equal(t, want, unescape(escaped))
		})
	}
}

func TestEcho_values(t *testing.T) {
	cases := map[string]struct {
		script string
		out    string
	}{
		"one value": {
			script: "echo a b c | wc -l",
			out:    "1\n",
		},
		"empty still writes": {
			script: "echo | wc -l",
			out:    "1\n",
		},
		"n skips empty": {
			script: "echo -n",
		},
		"n keeps text": {
			script: "echo -n x",
			out:    "x\n",
		},
		"escapes off by default": {
			script: `echo 'a\tb'`,
			out:    "a\\tb\n",
		},
		"escaped value": {
			script: `x=$(echo -e 'a\x41'); echo ${#x}`,
			out:    "2\n",
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			out, code := runScript(t, tc.script)
			assert.Equal(t, tc.out, out)
			assert.Equal(t, 0, code)
		})
	}
}
