// Package mcp provides an implementation of dbclient.SchemaClient that
// talks to a remote MCP tool server over streamable HTTP.
//
// The server is expected to expose the standard schema tools of the data
// platform: list_databases, list_tables, get_table_schema, health_check.
// Each tool returns a single JSON text content block.
package mcp

import (
	"context"
	"encoding/json"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
)

// Tool names exposed by the schema server.
const (
	toolListDatabases  = "list_databases"
	toolListTables     = "list_tables"
	toolGetTableSchema = "get_table_schema"
	toolHealthCheck    = "health_check"
)

const defaultHealthTimeout = 5 * time.Second

// Config holds the settings for one MCP schema server connection.
type Config struct {
	// Endpoint is the base URL of the streamable-HTTP MCP server.
	// Example: "http://localhost:8000/mcp"
	Endpoint string

	// ClientName and ClientVersion identify this client during the
	// MCP initialize handshake.
	ClientName    string
	ClientVersion string
}

// DefaultConfig returns a Config for the given endpoint.
func DefaultConfig(endpoint string) *Config {
	return &Config{
		Endpoint:      endpoint,
		ClientName:    "bi-data-access",
		ClientVersion: "1.0.0",
	}
}

// Client implements dbclient.SchemaClient over an MCP session.
type Client struct {
	mc *mcpclient.Client
}

// Connect establishes an MCP session against cfg.Endpoint and performs the
// initialize handshake before returning.
func Connect(ctx context.Context, cfg *Config) (*Client, error) {
	mc, err := mcpclient.NewStreamableHttpClient(cfg.Endpoint)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create mcp client", err)
	}

	if err := mc.Start(ctx); err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to start mcp transport", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    cfg.ClientName,
		Version: cfg.ClientVersion,
	}

	if _, err := mc.Initialize(ctx, initReq); err != nil {
		_ = mc.Close()
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "mcp initialize handshake failed", err)
	}

	return &Client{mc: mc}, nil
}

// NewFactory returns a dbclient.Factory that opens a fresh MCP session per
// pooled connection.
func NewFactory(cfg *Config) dbclient.Factory {
	return func(ctx context.Context) (dbclient.SchemaClient, error) {
		return Connect(ctx, cfg)
	}
}

// --- dbclient.SchemaClient implementation ---

// ListDatabases calls the list_databases tool.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	var out struct {
		Databases []string `json:"databases"`
	}
	if err := c.callTool(ctx, toolListDatabases, nil, &out); err != nil {
		return nil, err
	}
	return out.Databases, nil
}

// ListTables calls the list_tables tool for one database.
func (c *Client) ListTables(ctx context.Context, database string) ([]string, error) {
	var out struct {
		Tables []string `json:"tables"`
	}
	args := map[string]any{"database": database}
	if err := c.callTool(ctx, toolListTables, args, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

// GetTableSchema calls the get_table_schema tool for one table.
func (c *Client) GetTableSchema(ctx context.Context, database, table string) (*dbclient.TableSchema, error) {
	var out dbclient.TableSchema
	args := map[string]any{"database": database, "table": table}
	if err := c.callTool(ctx, toolGetTableSchema, args, &out); err != nil {
		return nil, err
	}
	out.Database = database
	out.Name = table
	return &out, nil
}

// HealthCheck calls the health_check tool with a short deadline.
// Any transport or tool error counts as unhealthy.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultHealthTimeout)
		defer cancel()
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := c.callTool(ctx, toolHealthCheck, nil, &out); err != nil {
		return false
	}
	return out.Status == "" || out.Status == "ok" || out.Status == "healthy"
}

// Close terminates the MCP session.
func (c *Client) Close(_ context.Context) error {
	if err := c.mc.Close(); err != nil {
		return errs.Wrap(errs.ErrKindUnknown, "failed to close mcp session", err)
	}
	return nil
}

// callTool invokes one tool and decodes its first JSON text content block
// into out. A result flagged IsError becomes an ErrKindQueryFailed.
func (c *Client) callTool(ctx context.Context, name string, args map[string]any, out any) error {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.mc.CallTool(ctx, req)
	if err != nil {
		return mapError(name, err)
	}
	if res.IsError {
		return errs.New(errs.ErrKindQueryFailed, "tool "+name+" returned an error: "+firstText(res))
	}

	text := firstText(res)
	if text == "" {
		return errs.New(errs.ErrKindQueryFailed, "tool "+name+" returned no text content")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "tool "+name+" returned malformed JSON", err)
	}
	return nil
}

func firstText(res *mcpgo.CallToolResult) string {
	for _, content := range res.Content {
		if tc, ok := content.(mcpgo.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
