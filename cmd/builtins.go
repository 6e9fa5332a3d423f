package cmd

import (
	"fmt"

	"github.com/josephlewis42/npcsh/commands"
	"github.com/spf13/cobra"
)

var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "List the shell's builtin commands.",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range commands.BuiltinNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
