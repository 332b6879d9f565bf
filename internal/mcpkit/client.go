// Package mcpkit connects the notes and calendar capabilities to
// external MCP servers launched over stdio.
package mcpkit

import (
	"context"
	"fmt"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig describes one MCP server process.
type ServerConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// ToolInfo describes a tool exposed by a server.
type ToolInfo struct {
	ServerName  string `json:"server_name"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Client wraps one MCP server connection.
type Client struct {
	config  ServerConfig
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// NewClient creates a client for the given server. Connect must be
// called before any tool call.
func NewClient(config ServerConfig) *Client {
	return &Client{config: config}
}

// Connect launches the server process and performs the MCP handshake.
func (c *Client) Connect(ctx context.Context) error {
	impl := &mcpsdk.Implementation{
		Name:    "maru",
		Version: "0.1.0",
	}
	c.client = mcpsdk.NewClient(impl, nil)

	cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
	session, err := c.client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("mcp connect to %s: %w", c.config.Name, err)
	}
	c.session = session
	return nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.config.Name
}

// ListTools returns the tools the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if c.session == nil {
		return nil, fmt.Errorf("mcp client %s not connected", c.config.Name)
	}

	var tools []ToolInfo
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp list tools: %w", err)
		}
		tools = append(tools, ToolInfo{
			ServerName:  c.config.Name,
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return tools, nil
}

// CallTool invokes a tool and returns the concatenated text content of
// the result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("mcp client %s not connected", c.config.Name)
	}

	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcp call tool %s: %w", name, err)
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool %s returned error", name)
	}

	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	return text, nil
}

// Close shuts the session down. The server process exits with its stdio.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
