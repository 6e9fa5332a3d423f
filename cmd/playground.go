package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/josephlewis42/npcsh/core"
	"github.com/josephlewis42/npcsh/core/config"
	"github.com/josephlewis42/npcsh/core/logger"
	"github.com/josephlewis42/npcsh/core/ttylog"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var playgroundUser string

// playgroundCmd runs a shell session on the local terminal
var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Run a shell session locally without starting a server.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		dir, err := os.MkdirTemp("", "playground")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		playgroundLogger := terminalLogger(cmd).With("component", "playground")
		cfg, err := config.Initialize(dir, playgroundLogger)
		if err != nil {
			return err
		}

		logFd, err := cfg.OpenAppLog()
		if err != nil {
			return err
		}
		defer logFd.Close()

		fmt.Fprintf(cmd.ErrOrStderr(), "Logging to: file://%s\n", dir)
		fmt.Fprintf(cmd.ErrOrStderr(), "See logs with: tail -f %s\n", filepath.Join(dir, config.AppLogName))
		fmt.Fprintln(cmd.ErrOrStderr(), strings.Repeat("=", 80))

		server, err := core.NewServer(cfg, logger.New(logger.Options{AppLog: logFd}))
		if err != nil {
			return err
		}
		defer server.Close()

		stdinFd := int(os.Stdin.Fd())
		isTerminal := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())

		console := core.Console{
			User:  playgroundUser,
			In:    os.Stdin,
			Out:   os.Stdout,
			IsPTY: isTerminal,
			Width: func() int {
				width, _, err := term.GetSize(int(os.Stdout.Fd()))
				if err != nil {
					return 80
				}
				return width
			},
		}

		if isTerminal {
			var state *term.State
			console.MakeRaw = func() (err error) {
				state, err = term.MakeRaw(stdinFd)
				return err
			}
			console.ExitRaw = func() error {
				if state == nil {
					return nil
				}
				return term.Restore(stdinFd, state)
			}
		}

		name := fmt.Sprintf("%s.%s", playgroundUser, ttylog.AsciicastFileExt)
		if recording, err := cfg.CreateSessionLog(name); err == nil {
			defer recording.Close()
			console.Recording = ttylog.NewAsciicastLogSink(recording, ttylog.AsciicastHeader{Title: "playground"})
		}

		exitCode := server.Attach(cmd.Context(), console)
		fmt.Fprintf(cmd.ErrOrStderr(), "Exit code: %d\n", exitCode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playgroundCmd)
	playgroundCmd.Flags().StringVarP(&playgroundUser, "user", "u", "guest", "user to log in as")
}
