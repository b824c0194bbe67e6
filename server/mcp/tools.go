package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kasuganosora/sqlfuzz/service/fuzz"
)

// ToolDeps holds shared dependencies for MCP tool handlers
type ToolDeps struct {
	Runner *fuzz.Runner
}

// HandleGenerate generates statements from the current best weights
func (d *ToolDeps) HandleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count := request.GetInt("count", 10)
	seed := request.GetInt("seed", 0)

	if count < 1 || count > 1000 {
		return mcp.NewToolResultError("count must be between 1 and 1000"), nil
	}

	stmts, err := d.Runner.GenerateBatch(count, int64(seed))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generate failed: %v", err)), nil
	}

	var sb strings.Builder
	for _, s := range stmts {
		sb.WriteString(s)
		sb.WriteString(";\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleStatus reports the current run state
func (d *ToolDeps) HandleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := d.Runner.Status()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// HandleEvolve runs additional evolution rounds
func (d *ToolDeps) HandleEvolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rounds := request.GetInt("rounds", 1)
	if rounds < 1 || rounds > 100 {
		return mcp.NewToolResultError("rounds must be between 1 and 100"), nil
	}

	if err := d.Runner.RunRounds(ctx, rounds); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evolve failed: %v", err)), nil
	}

	snap := d.Runner.Status()
	return mcp.NewToolResultText(fmt.Sprintf(
		"completed %d rounds, run %s now at round %d, best score %.2f",
		rounds, snap.RunID, snap.Round, snap.BestScore)), nil
}
