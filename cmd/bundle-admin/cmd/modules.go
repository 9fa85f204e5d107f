package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-bundle-host/internal/lifecycle"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List deployed modules",
	Long:  `List the deployed modules with their context paths and isolation layers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Get("/admin/modules")
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, data)
		}

		var inv lifecycle.Inventory
		if err := json.Unmarshal(data, &inv); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		fmt.Fprintf(out, "Artifact: %s (base path %s, bundle: %t)\n", inv.Artifact, inv.BasePath, inv.Bundle)
		if inv.Frontend.BaseURL != "" {
			fmt.Fprintf(out, "Front-end: %s (API %s)\n", inv.Frontend.BaseURL, inv.Frontend.APIURL)
		}
		fmt.Fprintln(out)

		if len(inv.Modules) == 0 {
			fmt.Fprintln(out, "No modules deployed.")
			return nil
		}

		headers := []string{"MODULE", "CONTEXT PATH", "LAYERS", "RESOURCES"}
		rows := make([][]string, len(inv.Modules))
		for i, m := range inv.Modules {
			rows[i] = []string{m.Kind, m.ContextPath, strings.Join(m.Layers, " > "), strings.Join(m.Environment, ",")}
		}
		printTable(out, headers, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}
