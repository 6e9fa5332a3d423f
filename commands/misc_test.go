package commands

import (
	"testing"

	"github.com/josephlewis42/npcsh/core/shell/shelltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory(t *testing.T) {
	for script, want := range map[string]string{
		"history":             "    1  echo a\n    2  ls\n",
		"history -c; history": "",
	} {
		t.Run(script, func(t *testing.T) {
			cmd := shelltest.Command(AllBuiltins, script)
			cmd.Setup = func(s *shelltest.Session) error {
				s.Registry.AppendHistory(shelltest.SessionKey, "echo a", 0)
				s.Registry.AppendHistory(shelltest.SessionKey, "ls", 0)
				return nil
			}
			out, err := cmd.CombinedOutput()
			require.NoError(t, err)

			assert.Equal(t, want, string(out))
		})
	}
}

func TestHelp(t *testing.T) {
	out, code := runScript(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Builtins:\n")
	assert.Contains(t, out, "\necho\n")

	out, _ = runScript(t, "help echo")
	want, _ := runScript(t, "echo --help")
	assert.Equal(t, want, out)

	out, code = runScript(t, "help nope")
	assert.Equal(t, "help: no help topics match `nope'\n", out)
	assert.Equal(t, 1, code)
}

func TestWhich(t *testing.T) {
	out, code := runScript(t, "f() { :; }; which f echo nope")
	assert.Equal(t, "f: shell function\necho: shell builtin\nwhich: nope: not found\n", out)
	assert.Equal(t, 1, code)

	out, code = runScript(t, "type echo")
	assert.Equal(t, "echo is a shell builtin\n", out)
	assert.Equal(t, 0, code)
}

func TestClear(t *testing.T) {
	out, _ := runScript(t, "clear")
	assert.Equal(t, clearScreen+"\n", out)

	out, _ = runScript(t, "clear | cat")
	assert.Empty(t, out)
}

func TestNoOp(t *testing.T) {
	for script, code := range map[string]int{
		":":           0,
		": a b --bad": 0,
		"true":        0,
		"false":       1,
		"! false":     0,
	} {
		_, got := runScript(t, script)
		assert.Equal(t, code, got, script)
	}
}
