package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestMySQLMCP_Database_ConfigFromEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		want    Config
		wantErr string
	}{
		{
			name: "defaults when unset",
			env:  map[string]string{},
			want: Config{Host: "localhost", Port: 3306, User: "root", Password: "password", Database: "mcp_database"},
		},
		{
			name: "defaults when empty",
			env: map[string]string{
				EnvHost:     "",
				EnvPort:     "",
				EnvPassword: "",
			},
			want: Config{Host: "localhost", Port: 3306, User: "root", Password: "password", Database: "mcp_database"},
		},
		{
			name: "overrides",
			env: map[string]string{
				EnvHost:     "db.internal",
				EnvPort:     "3307",
				EnvUser:     "app",
				EnvPassword: "s3cret",
				EnvDatabase: "inventory",
			},
			want: Config{Host: "db.internal", Port: 3307, User: "app", Password: "s3cret", Database: "inventory"},
		},
		{
			name:    "non numeric port",
			env:     map[string]string{EnvPort: "mysql"},
			wantErr: `invalid DB_PORT "mysql"`,
		},
		{
			name:    "port out of range",
			env:     map[string]string{EnvPort: "70000"},
			wantErr: "port 70000 out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := ConfigFromEnv(lookupFrom(tt.env))
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg)
		})
	}
}

func TestMySQLMCP_Database_Config_MySQL(t *testing.T) {
	t.Parallel()

	cfg := Config{Host: "db.internal", Port: 3307, User: "app", Password: "s3cret", Database: "inventory"}

	m := cfg.MySQL()
	require.Equal(t, "tcp", m.Net)
	require.Equal(t, "db.internal:3307", m.Addr)
	require.Equal(t, "app", m.User)
	require.Equal(t, "s3cret", m.Passwd)
	require.Equal(t, "inventory", m.DBName)
	require.True(t, m.ParseTime)

	redacted := cfg.Redacted()
	require.NotContains(t, redacted, "s3cret")
	require.Contains(t, redacted, "app:REDACTED@tcp(db.internal:3307)/inventory")
}

func TestMySQLMCP_Database_Config_AddrIPv6(t *testing.T) {
	t.Parallel()

	cfg := Config{Host: "::1", Port: 3306}
	require.Equal(t, "[::1]:3306", cfg.Addr())
}
