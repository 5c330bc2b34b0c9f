package sqltools

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ToolQuery         = "query"
	ToolListTables    = "list_tables"
	ToolDescribeTable = "describe_table"
	ToolInsert        = "insert"
	ToolUpdate        = "update"
	ToolDelete        = "delete"
	ToolConnectDB     = "connect_db"
)

type QueryRequest struct {
	SQL    string   `json:"sql" jsonschema:"SQL query to execute"`
	Params []string `json:"params,omitempty" jsonschema:"Query parameters for prepared statements"`
}

type ListTablesRequest struct{}

type DescribeTableRequest struct {
	TableName string `json:"tableName" jsonschema:"Name of the table to describe"`
}

type InsertRequest struct {
	TableName string         `json:"tableName" jsonschema:"Name of the table"`
	Data      map[string]any `json:"data" jsonschema:"Key-value pairs representing column names and values"`
}

type UpdateRequest struct {
	TableName string         `json:"tableName" jsonschema:"Name of the table"`
	Data      map[string]any `json:"data" jsonschema:"Key-value pairs to update"`
	Condition string         `json:"condition" jsonschema:"WHERE clause condition (e.g. id = 1)"`
}

type DeleteRequest struct {
	TableName string `json:"tableName" jsonschema:"Name of the table"`
	Condition string `json:"condition" jsonschema:"WHERE clause condition"`
}

type ConnectRequest struct{}

var registry = []*mcp.Tool{
	{
		Name:        ToolQuery,
		Description: "Execute a SQL query on the MySQL database",
		InputSchema: mustSchemaFor[QueryRequest](),
	},
	{
		Name:        ToolListTables,
		Description: "List all tables in the database",
		InputSchema: mustSchemaFor[ListTablesRequest](),
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	},
	{
		Name:        ToolDescribeTable,
		Description: "Get the structure/schema of a table",
		InputSchema: mustSchemaFor[DescribeTableRequest](),
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	},
	{
		Name:        ToolInsert,
		Description: "Insert a single row into a table",
		InputSchema: mustSchemaFor[InsertRequest](),
		Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(false)},
	},
	{
		Name:        ToolUpdate,
		Description: "Update rows in a table",
		InputSchema: mustSchemaFor[UpdateRequest](),
		Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
	},
	{
		Name:        ToolDelete,
		Description: "Delete rows from a table based on a condition",
		InputSchema: mustSchemaFor[DeleteRequest](),
		Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
	},
	{
		Name:        ToolConnectDB,
		Description: "Connect to the MySQL database. This tool does not require any input parameters.",
		InputSchema: mustSchemaFor[ConnectRequest](),
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	},
}

// Tools returns the tool catalog in registration order.
func Tools() []*mcp.Tool {
	tools := make([]*mcp.Tool, len(registry))
	for i, t := range registry {
		tool := *t
		tools[i] = &tool
	}
	return tools
}

func IsTool(name string) bool {
	for _, t := range registry {
		if t.Name == name {
			return true
		}
	}
	return false
}

func mustSchemaFor[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("failed to create input schema for %T: %v", *new(T), err))
	}
	return schema
}

func boolPtr(b bool) *bool { return &b }
