package database

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

const (
	EnvHost     = "DB_HOST"
	EnvPort     = "DB_PORT"
	EnvUser     = "DB_USER"
	EnvPassword = "DB_PASSWORD"
	EnvDatabase = "DB_DATABASE"

	DefaultHost     = "localhost"
	DefaultPort     = 3306
	DefaultUser     = "root"
	DefaultPassword = "password"
	DefaultDatabase = "mcp_database"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// ConfigFromEnv reads the DB_* variables through lookup (usually
// os.LookupEnv). Unset and empty values both fall back to the defaults, so an
// empty DB_PASSWORD still resolves to DefaultPassword.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if v, ok := lookup(EnvHost); ok {
		cfg.Host = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Port = port
	}
	if v, ok := lookup(EnvUser); ok {
		cfg.User = v
	}
	if v, ok := lookup(EnvPassword); ok {
		cfg.Password = v
	}
	if v, ok := lookup(EnvDatabase); ok {
		cfg.Database = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.Password == "" {
		c.Password = DefaultPassword
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MySQL returns the driver configuration. parseTime is enabled so DATE and
// DATETIME columns scan as time.Time.
func (c Config) MySQL() *mysql.Config {
	m := mysql.NewConfig()
	m.User = c.User
	m.Passwd = c.Password
	m.Net = "tcp"
	m.Addr = c.Addr()
	m.DBName = c.Database
	m.ParseTime = true
	return m
}

// Redacted returns the DSN with the password masked, for logging.
func (c Config) Redacted() string {
	m := c.MySQL()
	m.Passwd = "REDACTED"
	return m.FormatDSN()
}
