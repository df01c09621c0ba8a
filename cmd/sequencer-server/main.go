// Command sequencer-server is the main server process that accepts identity
// commitments, mirrors them on the ledger, and serves inclusion proofs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bren2010/signup-sequencer/db"
	"github.com/Bren2010/signup-sequencer/ledger"
	"github.com/Bren2010/signup-sequencer/ledger/ethereum"
	"github.com/Bren2010/signup-sequencer/ledger/local"
	"github.com/Bren2010/signup-sequencer/sequencer"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "sequencer-server",
		Short:        "Identity commitment sequencer",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return errors.New("no config file provided, see --help")
			}
			return run(cmd.Context(), configFile)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&configFile, "config", "", "Location of config file.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Crit("Server failed", "err", err)
	}
}

func run(ctx context.Context, configFile string) error {
	// Load config from disk.
	config, err := ReadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, config.logLevel, true)))

	// Replay the ledger.
	gw, closeLedger, err := openLedger(ctx, config.LedgerConfig)
	if err != nil {
		return err
	}
	defer closeLedger()

	seq, err := sequencer.New(ctx, config.sequencerConfig(), gw)
	if err != nil {
		return fmt.Errorf("failed to initialize sequencer: %w", err)
	}
	registerMetrics(prometheus.DefaultRegisterer)

	// Setup the API server.
	h := &Handler{config: config.APIConfig, backend: seq, confirmWait: 5 * time.Second}
	srv := &http.Server{
		Addr:      config.ServerAddr,
		Handler:   NewRouter(h),
		TLSConfig: config.tlsConfig,

		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	servers := []*http.Server{srv}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return seq.Run(ctx) })
	g.Go(func() error {
		log.Info("Starting API server", "addr", srv.Addr, "tls", config.tlsConfig != nil)
		if config.tlsConfig == nil {
			return serve(srv.ListenAndServe())
		}
		return serve(srv.ListenAndServeTLS("", ""))
	})
	if config.MetricsAddr != "" {
		msrv := metricsServer(config.MetricsAddr, prometheus.DefaultGatherer)
		servers = append(servers, msrv)
		g.Go(func() error {
			log.Info("Starting metrics server", "addr", msrv.Addr)
			return serve(msrv.ListenAndServe())
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				log.Warn("Failed to shut down server", "addr", s.Addr, "err", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func serve(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// openLedger connects to the configured ledger. The returned function
// releases any resources held by it.
func openLedger(ctx context.Context, lc *LedgerConfig) (ledger.Gateway, func(), error) {
	switch lc.Kind {
	case "ethereum":
		gw, err := ethereum.Dial(ctx, lc.Ethereum.gatewayConfig(), lc.Ethereum.signingKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to ledger: %w", err)
		}
		return gw, func() {}, nil

	case "local":
		store, err := db.NewLDBLedgerStore(lc.Local.File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open local ledger: %w", err)
		}
		log.Warn("Using local ledger, insertions are not published", "file", lc.Local.File)
		return local.New(store), func() {
			if err := store.Close(); err != nil {
				log.Warn("Failed to close local ledger", "err", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown ledger kind: %v", lc.Kind)
	}
}
