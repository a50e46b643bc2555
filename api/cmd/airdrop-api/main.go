package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/airdrop/airdrop/pkg/claimant"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
	"github.com/malbeclabs/airdrop/airdrop/pkg/distributor"
	"github.com/malbeclabs/airdrop/airdrop/pkg/price"
	"github.com/malbeclabs/airdrop/airdrop/pkg/token"
	"github.com/malbeclabs/airdrop/api/config"
	"github.com/malbeclabs/airdrop/api/handlers"
	"github.com/malbeclabs/airdrop/api/metrics"
	"github.com/malbeclabs/airdrop/api/server"
	"github.com/malbeclabs/airdrop/utils/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	envFileFlag := flag.String("env-file", ".env", "dotenv file to load when present")
	listenAddrFlag := flag.String("listen-addr", "", "address to serve the API on (or set LISTEN_ADDR env var)")
	metricsAddrFlag := flag.String("metrics-addr", "", "separate address for prometheus metrics; /metrics is always served on the API address (or set METRICS_ADDR env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "maximum time to wait for in-flight requests during graceful shutdown")
	flag.Parse()

	log := logger.New(*verboseFlag)

	if err := config.LoadDotenv(*envFileFlag); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv(os.Getenv)
	if err != nil {
		return err
	}
	if *listenAddrFlag != "" {
		cfg.ListenAddr = *listenAddrFlag
	}
	if *metricsAddrFlag != "" {
		cfg.MetricsAddr = *metricsAddrFlag
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Release:     version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized", "environment", cfg.SentryEnvironment)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	if cfg.MetricsAddr != "" {
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clock := clockwork.NewRealClock()
	rpcClient := rpc.New(cfg.SolanaRPCURL)

	reader, err := distributor.NewReader(distributor.ReaderConfig{
		Logger:    log,
		RPC:       rpcClient,
		ProgramID: cfg.ProgramID,
	})
	if err != nil {
		return fmt.Errorf("failed to create distributor reader: %w", err)
	}
	allocations, err := claimant.New(claimant.Config{
		Logger:  log,
		BaseURL: cfg.EligibilityURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create eligibility client: %w", err)
	}
	tokens, err := token.NewResolver(token.ResolverConfig{
		Logger: log,
		RPC:    rpcClient,
	})
	if err != nil {
		return fmt.Errorf("failed to create token resolver: %w", err)
	}
	prices, err := price.NewFeed(price.FeedConfig{
		Logger:     log,
		HermesURL:  cfg.HermesURL,
		JupiterURL: cfg.JupiterURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create price feed: %w", err)
	}

	svc, err := claims.New(claims.Config{
		Logger:         log,
		Clock:          clock,
		Distributors:   reader,
		ClaimStates:    reader,
		Allocations:    allocations,
		DistributorTTL: cfg.DistributorTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create claims service: %w", err)
	}
	directory, err := claims.NewDirectory(claims.DirectoryConfig{
		Logger:          log,
		Clock:           clock,
		Distributors:    reader,
		Filter:          distributor.Filter{Mint: cfg.MintFilter, Admin: cfg.AdminFilter},
		RefreshInterval: cfg.DirectoryRefresh,
		Tokens:          tokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var limit rate.Limit
	if cfg.RateLimitPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RateLimitPerMinute))
	}
	h, err := handlers.New(handlers.Config{
		Logger:         log,
		Clock:          clock,
		Claims:         svc,
		Directory:      directory,
		Tokens:         tokens,
		Prices:         prices,
		Build:          handlers.BuildInfo{Version: version, Commit: commit, Date: date},
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      limit,
		RateBurst:      cfg.RateBurst,
		SentryEnabled:  cfg.SentryDSN != "",
	})
	if err != nil {
		return fmt.Errorf("failed to create handlers: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		ListenAddr:      cfg.ListenAddr,
		Handler:         h.Router(),
		ShutdownTimeout: *shutdownTimeoutFlag,
		Background:      []server.Starter{directory, h},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("airdrop api starting", "program", cfg.ProgramID, "version", version)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info("airdrop api stopped")
	return nil
}
