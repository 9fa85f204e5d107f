package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-bundle-host/internal/shutdown"
	"github.com/sirosfoundation/go-bundle-host/pkg/config"
)

var (
	stopPort    int
	stopKey     string
	stopTimeout time.Duration
	stopStatus  bool
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the host",
	Long: `Send the stop command to the host's loopback stop port and wait for
the acknowledgement. With --status only ask whether the host is alive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if stopPort <= 0 {
			return fmt.Errorf("--port must be a positive number")
		}

		client := shutdown.NewClient(stopPort, stopKey, stopTimeout)
		send := client.Stop
		if stopStatus {
			send = client.Status
		}

		res, err := send(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, line := range res.Lines {
			fmt.Fprintf(out, "Received %q\n", line)
		}
		switch {
		case res.Acknowledged:
			fmt.Fprintln(out, "Server reports itself as Stopped")
		case res.TimedOut:
			fmt.Fprintln(out, "Timed out waiting for stop confirmation")
		case len(res.Lines) == 0:
			fmt.Fprintln(out, "No reply (wrong key?)")
		}
		return nil
	},
}

func init() {
	stopCmd.Flags().IntVarP(&stopPort, "port", "p", 0, "Stop port of the host")
	stopCmd.Flags().StringVarP(&stopKey, "key", "k", config.DefaultStopKey, "Shared stop key")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", config.DefaultStopTimeout*time.Second, "How long to wait for the acknowledgement")
	stopCmd.Flags().BoolVar(&stopStatus, "status", false, "Only check that the host is alive")
	rootCmd.AddCommand(stopCmd)
}
