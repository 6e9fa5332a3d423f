package frontend

import (
	"strings"

	"github.com/josephlewis42/npcsh/core/vars"
)

// ExpandPrompt replaces the escapes of prompt with values from home:
//
//	\u  the USER variable
//	\w  the current directory, /home abbreviated as ~
//	\$  a dollar sign
func ExpandPrompt(prompt string, home map[string]any) string {
	if !strings.Contains(prompt, `\`) {
		return prompt
	}

	pwd := vars.String(home[vars.KeyPWD])
	switch {
	case pwd == "/home":
		pwd = "~"
	case strings.HasPrefix(pwd, "/home/"):
		pwd = "~" + strings.TrimPrefix(pwd, "/home")
	}

	return strings.NewReplacer(
		`\u`, vars.String(home["USER"]),
		`\w`, pwd,
		`\$`, "$",
	).Replace(prompt)
}
