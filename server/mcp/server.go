// Package mcp 通过 MCP 协议暴露模糊测试的控制面：
// 生成语句、查询状态、追加演化轮次。
package mcp

import (
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kasuganosora/sqlfuzz/pkg/config"
	"github.com/kasuganosora/sqlfuzz/service/fuzz"
)

// Server is the MCP protocol server
type Server struct {
	runner *fuzz.Runner
	cfg    *config.MCPConfig
}

// NewServer creates a new MCP server
func NewServer(runner *fuzz.Runner, cfg *config.MCPConfig) *Server {
	return &Server{
		runner: runner,
		cfg:    cfg,
	}
}

// Start starts the MCP server (blocking)
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	deps := &ToolDeps{
		Runner: s.runner,
	}

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer(
		s.cfg.Name,
		s.cfg.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	// Register tools
	generateTool := mcp.NewTool("generate",
		mcp.WithDescription("Generate SQL statements from the current best grammar weights without executing them."),
		mcp.WithNumber("count", mcp.Description("Number of statements to generate (default 10)")),
		mcp.WithNumber("seed", mcp.Description("Base random seed for reproducible output (default 0)")),
	)

	statusTool := mcp.NewTool("status",
		mcp.WithDescription("Report the current fuzzing run: run ID, completed rounds, population size and best score."),
	)

	evolveTool := mcp.NewTool("evolve",
		mcp.WithDescription("Run additional evolution rounds against the target database."),
		mcp.WithNumber("rounds", mcp.Description("Number of rounds to run (default 1)")),
	)

	mcpSrv.AddTool(generateTool, deps.HandleGenerate)
	mcpSrv.AddTool(statusTool, deps.HandleStatus)
	mcpSrv.AddTool(evolveTool, deps.HandleEvolve)

	httpServer := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	)

	log.Printf("[MCP] 启动 MCP 服务器: %s", addr)
	return httpServer.Start(addr)
}
