package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klubi/inkwell/internal/apiserver"
	"github.com/klubi/inkwell/internal/config"
	"github.com/klubi/inkwell/internal/fallback"
	"github.com/klubi/inkwell/internal/storage"
	"github.com/klubi/inkwell/internal/store"
	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		host       string
		dataDir    string
		storeType  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Inkwell storage server",
		Long:  "Open the durable store, migrate legacy data, hydrate the cache and serve the API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. Build configuration with CLI overrides.
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Store.DataDir = dataDir
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Type = storeType
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// 2. Create logger.
			logger, err := cfg.NewLogger()
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			// 3. Ensure data directory exists and open the synchronous stores.
			if err := os.MkdirAll(cfg.Store.DataDir, 0755); err != nil {
				return fmt.Errorf("creating data directory %s: %w", cfg.Store.DataDir, err)
			}

			fb, err := fallback.Open(cfg.FallbackPath(), cfg.Fallback.QuotaBytes)
			if err != nil {
				return fmt.Errorf("opening fallback store at %s: %w", cfg.FallbackPath(), err)
			}

			legacy := fb
			if cfg.LegacyPath() != cfg.FallbackPath() {
				legacy, err = fallback.Open(cfg.LegacyPath(), 0)
				if err != nil {
					return fmt.Errorf("opening legacy store at %s: %w", cfg.LegacyPath(), err)
				}
			}

			// 4. Create the storage service. The durable store is opened by
			// the service itself so that a failure becomes fallback mode.
			policy := storage.MigrateBestEffortOnce
			if !cfg.Migration.MarkCompleteOnFailure {
				policy = storage.MigrateRetryOnFailure
			}
			svc := storage.New(storage.Options{
				Open: func(ctx context.Context) (store.Backend, error) {
					return store.Open(cfg.Store.Type, cfg.StorePath(), cfg.Store.OpenTimeout)
				},
				Fallback:        fb,
				Legacy:          legacy,
				Logger:          logger,
				SlowOpThreshold: cfg.Queue.SlowOpThreshold,
				MigrationPolicy: policy,
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Subscribe before Start so the boot events are not missed.
			events, unsubscribe := svc.Subscribe()
			defer unsubscribe()
			go warnOnEvents(ctx, os.Stderr, events)
			svc.Start(ctx)

			// 5. Create and start API server.
			addr := cfg.ServerAddress()
			apiSrv := apiserver.NewServer(addr, svc, logger)

			// Print startup banner.
			banner := color.New(color.FgCyan, color.Bold)
			banner.Println("Inkwell Storage Server")
			fmt.Printf("   API Server: http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Printf("   Store:      %s (%s)\n", cfg.Store.Type, cfg.StorePath())
			fmt.Printf("   Fallback:   %s\n", cfg.FallbackPath())
			fmt.Println()

			// Start API server in a goroutine.
			errCh := make(chan error, 1)
			go func() {
				if err := apiSrv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// 6. Wait for interrupt signal for graceful shutdown.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			var serveErr error
			select {
			case sig := <-sigCh:
				logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			case serveErr = <-errCh:
				logger.Error("API server error", zap.Error(serveErr))
			}

			// Graceful shutdown with a 10-second deadline.
			fmt.Println()
			logger.Info("shutting down gracefully...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			// Stop taking requests first, then flush pending writes.
			if err := apiSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("API server shutdown error", zap.Error(err))
			}
			if err := svc.Close(shutdownCtx); err != nil {
				logger.Error("storage shutdown error", zap.Error(err))
			}

			cancel()

			logger.Info("Inkwell server stopped")
			return serveErr
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default: $INKWELL_CONFIG or ./inkwell.yaml)")
	cmd.Flags().IntVar(&port, "port", 7117, "API server port")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "API server host")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.inkwell/data)")
	cmd.Flags().StringVar(&storeType, "store", "", "Durable store type: bolt|sqlite|memory|none")

	return cmd
}

// warnOnEvents prints the user-facing warnings to w until events closes.
func warnOnEvents(ctx context.Context, w io.Writer, events <-chan v1.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Type {
			case v1.EventQuotaExceeded:
				color.New(color.FgYellow, color.Bold).Fprintf(w, "! %s\n", evt.Message)
			case v1.EventFallback:
				color.New(color.FgYellow).Fprintf(w, "! durable store unavailable, using fallback store: %s\n", evt.Message)
			case v1.EventReady:
				color.New(color.FgGreen).Fprintln(w, "storage ready")
			}
		}
	}
}
