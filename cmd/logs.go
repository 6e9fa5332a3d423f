package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/josephlewis42/npcsh/core/config"
	"github.com/josephlewis42/npcsh/core/ttylog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var idleTimeLimit time.Duration

var logsCmd = &cobra.Command{
	Use:     "logs",
	Aliases: []string{"log"},
	Short:   "Explore the recorded sessions.",
}

var lsCommand = &cobra.Command{
	Use:   "ls",
	Short: "List the recorded sessions.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		configuration, err := loadConfig(terminalLogger(cmd))
		if err != nil {
			return err
		}

		infos, err := afero.ReadDir(configuration.Fs(), config.LogsDirName)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if strings.TrimPrefix(filepath.Ext(info.Name()), ".") != ttylog.AsciicastFileExt {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", info.Name(), info.Size())
		}
		return nil
	},
}

// playCommand replays a recording with its original timing.
var playCommand = &cobra.Command{
	Use:   "play RECORDING",
	Short: "Replay a recorded session in the terminal.",
	Long: `Plays a recorded session back to the current terminal. RECORDING is a
path, or the name of a file in the session log directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		fd, err := openRecording(cmd, args[0])
		if err != nil {
			return err
		}
		defer fd.Close()

		sink := ttylog.NewClientOutput(cmd.OutOrStdout())
		sink = ttylog.NewRealTimePlayback(idleTimeLimit, sink)
		return ttylog.Replay(ttylog.NewAsciicastLogSource(fd), sink)
	},
}

var catCommand = &cobra.Command{
	Use:   "cat RECORDING",
	Short: "Print the full output of a recorded session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		fd, err := openRecording(cmd, args[0])
		if err != nil {
			return err
		}
		defer fd.Close()

		sink := ttylog.NewClientOutput(cmd.OutOrStdout())
		return ttylog.Replay(ttylog.NewAsciicastLogSource(fd), sink)
	},
}

// openRecording opens name as a path, falling back to the session log
// directory.
func openRecording(cmd *cobra.Command, name string) (io.ReadCloser, error) {
	fd, err := os.Open(name)
	if err == nil || strings.ContainsRune(name, filepath.Separator) {
		return fd, err
	}

	configuration, cfgErr := loadConfig(terminalLogger(cmd))
	if cfgErr != nil {
		return nil, err
	}
	return configuration.OpenSessionLog(name)
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(lsCommand)
	logsCmd.AddCommand(playCommand)
	logsCmd.AddCommand(catCommand)

	// cat doesn't allow idle time
	playCommand.Flags().DurationVarP(&idleTimeLimit, "idle-time-limit", "i", 3*time.Second, "Maximum time output can be idle. (e.g. 3s, 2m, 100ms)")
}
