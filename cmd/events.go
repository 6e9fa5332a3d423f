package cmd

import (
	"fmt"

	"github.com/josephlewis42/npcsh/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var eventsSession string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the application event log.",
}

// readEvents feeds the application log to handler, limited to --session.
func readEvents(cmd *cobra.Command, handler func(logger.Entry)) error {
	config, err := loadConfig(terminalLogger(cmd))
	if err != nil {
		return err
	}

	fd, err := config.ReadAppLog()
	if err != nil {
		return err
	}
	defer fd.Close()

	return logger.ReadJSONLinesLog(fd, logger.ForSession(eventsSession, handler))
}

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Summarize the logged events as YAML.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		report := logger.NewReport()
		if err := readEvents(cmd, report.Update); err != nil {
			return err
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var linesCommand = &cobra.Command{
	Use:   "lines",
	Short: "Print the lines sessions ran, oldest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		w := cmd.OutOrStdout()
		return readEvents(cmd, func(le logger.Entry) {
			if le.Msg() != logger.MsgRunLine {
				return
			}
			if eventsSession != "" {
				fmt.Fprintln(w, le.Line())
				return
			}
			fmt.Fprintf(w, "%s: %s\n", le.Session(), le.Line())
		})
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.PersistentFlags().StringVarP(&eventsSession, "session", "s", "", "only read events of this session")
	eventsCmd.AddCommand(reportCommand)
	eventsCmd.AddCommand(linesCommand)
}
