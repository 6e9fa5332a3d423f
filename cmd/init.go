package cmd

import (
	"github.com/josephlewis42/npcsh/core/config"
	"github.com/spf13/cobra"
)

// initCmd intializes the configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the server configuration in the config directory.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		_, err := config.Initialize(cfgPath, terminalLogger(cmd))
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
