package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-bundle-host/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show host status",
	Long:  `Show the lifecycle state and mounted modules of a running host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Get("/admin/status")
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, data)
		}

		var resp server.StatusResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		fmt.Fprintf(out, "Status:    %s\n", resp.Status)
		fmt.Fprintf(out, "State:     %s\n", resp.State)
		fmt.Fprintf(out, "Instance:  %s\n", resp.InstanceID)
		fmt.Fprintf(out, "Modules:   %s\n", strings.Join(resp.Modules, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
