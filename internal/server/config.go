package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/mysql-mcp/internal/database"
	sqltools "github.com/malbeclabs/mysql-mcp/internal/tools/sql"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	defaultListenAddr        = "127.0.0.1:8010"
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

type Config struct {
	Logger     *slog.Logger
	Dialer     database.Dialer
	Dispatcher *sqltools.Dispatcher

	Version           string
	Transport         string
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Dialer == nil {
		return fmt.Errorf("dialer is required")
	}
	if c.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}
	switch c.Transport {
	case "":
		c.Transport = TransportStdio
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unsupported transport %q (want %s or %s)", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
