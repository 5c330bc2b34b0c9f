package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/mysql-mcp/internal/database"
	databasetesting "github.com/malbeclabs/mysql-mcp/internal/database/testing"
	sqltools "github.com/malbeclabs/mysql-mcp/internal/tools/sql"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, dialer database.Dialer, transport string) *Server {
	t.Helper()
	dispatcher, err := sqltools.NewDispatcher(sqltools.Config{
		Logger: testLogger(t),
		Dialer: dialer,
	})
	require.NoError(t, err)
	t.Cleanup(dispatcher.Close)

	s, err := New(Config{
		Logger:     testLogger(t),
		Dialer:     dialer,
		Dispatcher: dispatcher,
		Version:    "test",
		Transport:  transport,
	})
	require.NoError(t, err)
	return s
}

func connectInMemory(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := t.Context()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "unexpected content type %T", res.Content[0])
	return text.Text
}

func TestMySQLMCP_Server_Config_Validate(t *testing.T) {
	t.Parallel()

	dialer := &databasetesting.FailingDialer{}
	dispatcher, err := sqltools.NewDispatcher(sqltools.Config{Logger: testLogger(t), Dialer: dialer})
	require.NoError(t, err)
	t.Cleanup(dispatcher.Close)

	t.Run("requires dispatcher", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger(t), Dialer: dialer}
		require.EqualError(t, cfg.Validate(), "dispatcher is required")
	})

	t.Run("rejects unknown transport", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger(t), Dialer: dialer, Dispatcher: dispatcher, Transport: "sse"}
		require.ErrorContains(t, cfg.Validate(), `unsupported transport "sse"`)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger(t), Dialer: dialer, Dispatcher: dispatcher}
		require.NoError(t, cfg.Validate())
		require.Equal(t, TransportStdio, cfg.Transport)
		require.Equal(t, defaultListenAddr, cfg.ListenAddr)
		require.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
	})
}

func TestMySQLMCP_Server_ListTools(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &databasetesting.FailingDialer{}, TransportStdio)
	session := connectInMemory(t, s)

	res, err := session.ListTools(t.Context(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		schema, ok := tool.InputSchema.(map[string]any)
		require.True(t, ok, "tool %s schema type %T", tool.Name, tool.InputSchema)
		require.Equal(t, "object", schema["type"])
	}
	require.ElementsMatch(t, []string{
		sqltools.ToolQuery,
		sqltools.ToolListTables,
		sqltools.ToolDescribeTable,
		sqltools.ToolInsert,
		sqltools.ToolUpdate,
		sqltools.ToolDelete,
		sqltools.ToolConnectDB,
	}, names)
}

func TestMySQLMCP_Server_CallTool(t *testing.T) {
	t.Parallel()

	t.Run("query", func(t *testing.T) {
		t.Parallel()
		dialer := databasetesting.NewDuckDialer(t)
		dialer.Exec(t, `CREATE TABLE users (id INTEGER, name VARCHAR)`)
		dialer.Exec(t, `INSERT INTO users VALUES (1, 'alice')`)
		session := connectInMemory(t, newTestServer(t, dialer, TransportStdio))

		res, err := session.CallTool(t.Context(), &mcp.CallToolParams{
			Name:      sqltools.ToolQuery,
			Arguments: map[string]any{"sql": "SELECT id, name FROM users"},
		})
		require.NoError(t, err)
		require.False(t, res.IsError)
		require.JSONEq(t, `[{"id":1,"name":"alice"}]`, callText(t, res))
	})

	t.Run("connection failure is a tool error", func(t *testing.T) {
		t.Parallel()
		session := connectInMemory(t, newTestServer(t, &databasetesting.FailingDialer{}, TransportStdio))

		res, err := session.CallTool(t.Context(), &mcp.CallToolParams{
			Name:      sqltools.ToolListTables,
			Arguments: map[string]any{},
		})
		require.NoError(t, err)
		require.True(t, res.IsError)
		require.Contains(t, callText(t, res), "Error: failed to connect to database")
	})

	t.Run("unknown tool is a tool error", func(t *testing.T) {
		t.Parallel()
		dialer := databasetesting.NewDuckDialer(t)
		session := connectInMemory(t, newTestServer(t, dialer, TransportStdio))

		res, err := session.CallTool(t.Context(), &mcp.CallToolParams{
			Name:      "drop_everything",
			Arguments: map[string]any{},
		})
		require.NoError(t, err)
		require.True(t, res.IsError)
		require.Equal(t, "Error: Unknown tool: drop_everything", callText(t, res))
		require.Equal(t, int64(0), dialer.Dialed())
	})

	t.Run("connect_db", func(t *testing.T) {
		t.Parallel()
		session := connectInMemory(t, newTestServer(t, databasetesting.NewDuckDialer(t), TransportStdio))

		res, err := session.CallTool(t.Context(), &mcp.CallToolParams{
			Name:      sqltools.ToolConnectDB,
			Arguments: map[string]any{},
		})
		require.NoError(t, err)
		require.False(t, res.IsError)
		require.Equal(t, "Successfully connected to the database.", callText(t, res))
	})
}

func TestMySQLMCP_Server_HealthEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("healthz", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &databasetesting.FailingDialer{}, TransportHTTP)

		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "ok\n", rr.Body.String())
	})

	t.Run("readyz database down", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &databasetesting.FailingDialer{}, TransportHTTP)

		rr := httptest.NewRecorder()
		s.readyzHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.Equal(t, "database not ready\n", rr.Body.String())
	})

	t.Run("readyz database up", func(t *testing.T) {
		t.Parallel()
		dialer := databasetesting.NewDuckDialer(t)
		s := newTestServer(t, dialer, TransportHTTP)

		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, dialer.Dialed(), dialer.Closed())
	})
}

func TestMySQLMCP_Server_StreamableHTTP(t *testing.T) {
	t.Parallel()

	dialer := databasetesting.NewDuckDialer(t)
	dialer.Exec(t, `CREATE TABLE items (id INTEGER)`)
	s := newTestServer(t, dialer, TransportHTTP)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(t.Context(), &mcp.StreamableClientTransport{
		Endpoint:   ts.URL,
		HTTPClient: ts.Client(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	tools, err := session.ListTools(t.Context(), &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, tools.Tools, len(sqltools.Tools()))

	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      sqltools.ToolListTables,
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, callText(t, res))
	require.Contains(t, callText(t, res), "items")

	res, err = session.CallTool(t.Context(), &mcp.CallToolParams{Name: "x"})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Equal(t, "Error: Unknown tool: x", callText(t, res))
}
