package cmd

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/josephlewis42/npcsh/core/config"
	"github.com/josephlewis42/npcsh/core/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	verbose bool
)

func loadConfig(log *slog.Logger) (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Error("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// terminalLogger logs to the command's stderr.
func terminalLogger(cmd *cobra.Command) *slog.Logger {
	return logger.New(logger.Options{Terminal: cmd.ErrOrStderr()})
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "npcsh",
	Short: "Scriptable job control shell",
	Long:  `An embeddable shell whose file system is a tree of variables.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.Level.Set(slog.LevelDebug)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
}
