package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/graph"
	"github.com/weftlabs/weft/internal/kv"
	"github.com/weftlabs/weft/internal/rpc"
	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/storage/memory"
	"github.com/weftlabs/weft/internal/storage/mysql"
	"github.com/weftlabs/weft/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the weft daemon",
	Long: `Opens the configured storage backend and serves requests over the unix
socket until interrupted or asked to shut down over the wire.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String(config.KeyBackend, "mysql", "storage backend: mysql or memory")
	serveCmd.Flags().String(config.KeyDSN, "", "mysql DSN (required for the mysql backend)")
	serveCmd.Flags().String(config.KeyRedisURL, "", "optional redis URL for the presence heartbeat")
	serveCmd.Flags().Duration(config.KeyOpTimeout, rpc.DefaultRequestTimeout, "per-request storage timeout")
	serveCmd.Flags().Duration(config.KeyAcquireTimeout, mysql.DefaultAcquireTimeout, "storage connection guard timeout")
	serveCmd.Flags().Int(config.KeyCostLimit, graph.DefaultCostLimit, "default check cost budget")
	rootCmd.AddCommand(serveCmd)
}

func openBackend(ctx context.Context) (storage.Storage, string, error) {
	backend := config.GetString(config.KeyBackend)
	switch backend {
	case "memory":
		s, err := memory.New()
		return s, backend, err
	case "mysql":
		dsn := config.GetString(config.KeyDSN)
		if dsn == "" {
			return nil, "", fmt.Errorf("mysql backend requires --dsn or WEFT_DSN")
		}
		s, err := mysql.Open(ctx, &mysql.Config{
			DSN:            dsn,
			AcquireTimeout: config.GetDuration(config.KeyAcquireTimeout),
		})
		return s, backend, err
	default:
		return nil, "", fmt.Errorf("unknown backend %q (want mysql or memory)", backend)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, backend, err := openBackend(ctx)
	if err != nil {
		return fmt.Errorf("opening %s backend: %w", config.GetString(config.KeyBackend), err)
	}
	store = telemetry.WrapStorage(store)
	defer store.Close()

	rpc.ServerVersion = Version
	evaluator := graph.NewEvaluator(store, config.GetInt(config.KeyCostLimit))
	sockPath := config.GetString(config.KeySocketPath)
	srv := rpc.NewServer(store, evaluator, backend, sockPath)
	srv.SetRequestTimeout(config.GetDuration(config.KeyOpTimeout))

	if redisURL := config.GetString(config.KeyRedisURL); redisURL != "" {
		hb, err := kv.Connect(redisURL)
		if err != nil {
			return fmt.Errorf("redis heartbeat: %w", err)
		}
		defer hb.Close()
		hb.Start(ctx)
		srv.SetKVStatusFn(hb.Status)
	}

	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "weft daemon %s listening on %s (backend: %s)\n", Version, sockPath, backend)

	select {
	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "weft daemon: signal received, shutting down\n")
	case <-srv.ShutdownRequested():
		fmt.Fprintf(os.Stderr, "weft daemon: shutdown requested over rpc\n")
	}

	return srv.Stop()
}
