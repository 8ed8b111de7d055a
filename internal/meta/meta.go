// Package meta holds build metadata shared by the command and the MCP server.
package meta

// Version is overridden at build time with
// -ldflags "-X github.com/rickchristie/mysql-mcp/internal/meta.Version=v1.2.3".
var Version = "dev"

// Name is the server name reported to MCP clients.
const Name = "gomysqlmcp"
