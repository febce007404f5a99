package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and per-space row counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		st, err := client.Status()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(st)
		}
		fmt.Printf("weft daemon %s (backend: %s, uptime: %ds)\n", st.Version, st.Backend, st.UptimeSecs)
		if st.Space != "" {
			fmt.Printf("space:      %s\n", st.Space)
		}
		fmt.Printf("principals: %d\n", st.Principals)
		fmt.Printf("records:    %d\n", st.Records)
		fmt.Printf("tuples:     %d\n", st.Tuples)
		if st.KV != "" {
			fmt.Printf("redis:      %s\n", st.KV)
		}
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check daemon connectivity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		version, err := client.Ping()
		if err != nil {
			return err
		}
		fmt.Printf("pong (version %s)\n", version)
		return nil
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the daemon to shut down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Shutdown(); err != nil {
			return err
		}
		fmt.Println("shutdown requested")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(shutdownCmd)
}
