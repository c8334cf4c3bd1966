package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/gamma.mca/internal/serialport"
)

func (a *app) sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send COMMAND...",
		Short: "Send a command line to the instrument.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("port")
			port, err := serialport.OpenWith(a.open, path, a.cfg.PortOptions())
			if err != nil {
				return err
			}
			defer port.Close()

			command := strings.TrimSpace(strings.Join(args, " "))
			if err := port.SendCommand(command); err != nil {
				return err
			}
			cmd.Printf("> %s\n", command)
			return nil
		},
	}
	cmd.Flags().String("port", "", "serial device path (required)")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}
