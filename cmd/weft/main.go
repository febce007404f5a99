// weft is the relationship-tuple authorization daemon and its client CLI.
//
// `weft serve` runs the daemon over a unix socket; the other subcommands
// dial that socket and issue single requests.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/telemetry"
)

// Version and Build are stamped at build time via -ldflags.
var (
	Version = "0.1.0"
	Build   = "dev"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "weft - relationship-tuple authorization daemon",
	Long: `weft stores principals, resource grants, and relation tuples, and answers
reachability checks over the tuple graph. Run the daemon with "weft serve";
every other subcommand talks to it over the unix socket.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("weft version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		if err := config.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		return telemetry.Init(cmd.Context(), "weft", Version)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().String(config.KeySocketPath, "/tmp/weft.sock", "unix socket path of the daemon")
	rootCmd.PersistentFlags().String(config.KeySpaceID, "", "space (tenant partition) to operate in")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit raw JSON responses")
	rootCmd.Flags().Bool("version", false, "print version and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
