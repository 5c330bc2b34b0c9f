package databasetesting

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/malbeclabs/mysql-mcp/internal/database"
)

type MySQLConfig struct {
	Database       string
	Username       string
	Password       string
	ContainerImage string
}

func (cfg *MySQLConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = database.DefaultDatabase
	}
	if cfg.Username == "" {
		cfg.Username = "mcp"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "mysql:8.4"
	}
	return nil
}

// NewMySQL starts a MySQL container for the lifetime of the test and returns
// the connection settings for it. Skipped with -short.
func NewMySQL(t testing.TB, cfg *MySQLConfig) database.Config {
	if testing.Short() {
		t.Skip("skipping mysql container test in short mode")
	}
	ctx := t.Context()

	if cfg == nil {
		cfg = &MySQLConfig{}
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("failed to validate mysql config: %v", err)
	}

	container, err := tcmysql.Run(ctx,
		cfg.ContainerImage,
		tcmysql.WithDatabase(cfg.Database),
		tcmysql.WithUsername(cfg.Username),
		tcmysql.WithPassword(cfg.Password),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	return database.Config{
		Host:     host,
		Port:     port.Int(),
		User:     cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	}
}
