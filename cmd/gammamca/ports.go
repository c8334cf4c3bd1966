package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func (a *app) portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := a.listPorts()
			if err != nil {
				return fmt.Errorf("list serial ports: %w", err)
			}
			if len(ports) == 0 {
				cmd.Println("no serial ports found")
				return nil
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header([]string{"#", "Port"})
			var rows [][]string
			for i, p := range ports {
				rows = append(rows, []string{fmt.Sprint(i + 1), p})
			}
			if err := table.Bulk(rows); err != nil {
				return err
			}
			return table.Render()
		},
	}
}
