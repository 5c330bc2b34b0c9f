package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/mysql-mcp/internal/database"
	"github.com/malbeclabs/mysql-mcp/internal/logger"
	"github.com/malbeclabs/mysql-mcp/internal/metrics"
	"github.com/malbeclabs/mysql-mcp/internal/server"
	sqltools "github.com/malbeclabs/mysql-mcp/internal/tools/sql"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultTransport      = server.TransportStdio
	defaultListenAddr     = "127.0.0.1:8010"
	defaultMetricsAddr    = ""
	defaultEnvFile        = ".env"
	defaultMaxConcurrency = 16
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	transportFlag := flag.String("transport", defaultTransport, "MCP transport (stdio, http)")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP server listen address when --transport=http")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics (empty to disable)")
	envFileFlag := flag.String("env-file", defaultEnvFile, "Path to a .env file with DB_* settings, loaded if present")
	maxConcurrencyFlag := flag.Int("max-concurrency", defaultMaxConcurrency, "maximum number of concurrent tool calls")
	waitForDBFlag := flag.Duration("wait-for-db", 0, "wait up to this long for the database to answer before serving (0 to disable)")
	flag.Parse()

	// Variables already set in the environment take precedence.
	if err := godotenv.Load(*envFileFlag); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", *envFileFlag, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logger.New(os.Stderr, *verboseFlag)

	var metricsServerErrCh = make(chan error, 1)
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsServer := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			if err := metricsServer.Serve(listener); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
				return
			}
		}()
	}

	dbCfg, err := database.ConfigFromEnv(os.LookupEnv)
	if err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}
	log.Info("database configured", "config", dbCfg.Redacted())

	dialer, err := database.NewMySQLDialer(log, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to create database dialer: %w", err)
	}

	if *waitForDBFlag > 0 {
		if err := database.WaitReady(ctx, log, dialer, *waitForDBFlag); err != nil {
			return err
		}
	}

	dispatcher, err := sqltools.NewDispatcher(sqltools.Config{
		Logger:         log,
		Dialer:         dialer,
		Clock:          clockwork.NewRealClock(),
		MaxConcurrency: *maxConcurrencyFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer dispatcher.Close()

	srv, err := server.New(server.Config{
		Logger:     log,
		Dialer:     dialer,
		Dispatcher: dispatcher,
		Version:    version,
		Transport:  *transportFlag,
		ListenAddr: *listenAddrFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return <-serverErrCh
	case err := <-serverErrCh:
		return err
	case err := <-metricsServerErrCh:
		return err
	}
}
