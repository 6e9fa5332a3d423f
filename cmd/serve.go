package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/josephlewis42/npcsh/core"
	"github.com/josephlewis42/npcsh/core/logger"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve shell sessions over SSH.",
	RunE: func(cmd *cobra.Command, args []string) error {
		os.Stdin.Close()
		cmd.SilenceUsage = true

		configuration, err := loadConfig(terminalLogger(cmd))
		if err != nil {
			return err
		}

		appLog, err := configuration.OpenAppLog()
		if err != nil {
			return err
		}
		defer appLog.Close()

		log := logger.New(logger.Options{
			Terminal: cmd.ErrOrStderr(),
			AppLog:   appLog,
		})
		log.Info("initializing server")

		server, err := core.NewServer(configuration, log)
		if err != nil {
			return err
		}

		errs := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
				errs <- err
			}
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-sigs:
			log.Info("terminating", "signal", sig.String())
		case err := <-errs:
			server.Close()
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error("server shutdown failed", "err", err)
			return err
		}
		log.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
