package mcp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"bountypool-backend/core/bounty"
	"bountypool-backend/handlers"
	"bountypool-backend/services"
)

// MCPServer exposes the bounty service as MCP tools.
type MCPServer struct {
	mcpServer *server.MCPServer
	svc       *services.BountyService
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(svc *services.BountyService) *MCPServer {
	mcpServer := server.NewMCPServer(
		"Bountypool MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{mcpServer: mcpServer, svc: svc}
	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get the current record of a bounty task"),
		mcp.WithString("handle", mcp.Required(), mcp.Description("Hex handle of the task record slot")),
	), s.handleGetTask)

	s.mcpServer.AddTool(mcp.NewTool("vote_tally",
		mcp.WithDescription("Count votes per candidate for a task. Informational; does not select a winner"),
		mcp.WithString("handle", mcp.Required(), mcp.Description("Hex handle of the task record slot")),
	), s.handleTally)

	s.mcpServer.AddTool(mcp.NewTool("decode_instruction",
		mcp.WithDescription("Decode hex instruction data into its operation and arguments"),
		mcp.WithString("data", mcp.Required(), mcp.Description("Hex encoded instruction bytes")),
	), s.handleDecode)

	s.mcpServer.AddTool(mcp.NewTool("get_balance",
		mcp.WithDescription("Get the balance of an account"),
		mcp.WithString("account", mcp.Required(), mcp.Description("Hex account identity")),
	), s.handleBalance)

	s.mcpServer.AddTool(mcp.NewTool("invoke",
		mcp.WithDescription("Apply a signed instruction envelope"),
		mcp.WithString("program_data", mcp.Required(), mcp.Description("Hex encoded instruction bytes")),
		mcp.WithArray("accounts", mcp.Required(), mcp.Description("Hex account handles in positional order")),
		mcp.WithObject("signatures", mcp.Description("Map of signing account to hex BIP-340 signature")),
	), s.handleInvoke)
}

func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	handle, errResult := requireIdentity(request, "handle")
	if errResult != nil {
		return errResult, nil
	}
	rec, err := s.svc.GetTask(ctx, handle)
	if err != nil {
		return toolError("get task", err), nil
	}
	return jsonResult(rec.View())
}

func (s *MCPServer) handleTally(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	handle, errResult := requireIdentity(request, "handle")
	if errResult != nil {
		return errResult, nil
	}
	tally, err := s.svc.Tally(ctx, handle)
	if err != nil {
		return toolError("tally", err), nil
	}
	return jsonResult(map[string]interface{}{"handle": handle, "tally": tally})
}

func (s *MCPServer) handleDecode(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return mcp.NewToolResultError("data is not hex"), nil
	}
	view, err := services.DecodeInstruction(data)
	if err != nil {
		return toolError("decode", err), nil
	}
	return jsonResult(view)
}

func (s *MCPServer) handleBalance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account, errResult := requireIdentity(request, "account")
	if errResult != nil {
		return errResult, nil
	}
	bal, err := s.svc.Balance(ctx, account)
	if err != nil {
		return toolError("balance", err), nil
	}
	return jsonResult(map[string]interface{}{"account": account, "balance": bal})
}

func (s *MCPServer) handleInvoke(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var req handlers.InvokeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}
	env, err := req.Envelope()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Invoke(ctx, env)
	if err != nil {
		return toolError("invoke", err), nil
	}
	return jsonResult(map[string]interface{}{
		"status": "ok",
		"op":     res.Op.String(),
		"handle": res.Task,
		"task":   res.Record.View(),
	})
}

func requireIdentity(request mcp.CallToolRequest, name string) (bounty.Identity, *mcp.CallToolResult) {
	raw, err := request.RequireString(name)
	if err != nil {
		return bounty.Identity{}, mcp.NewToolResultError(err.Error())
	}
	id, err := bounty.ParseIdentity(raw)
	if err != nil {
		return bounty.Identity{}, mcp.NewToolResultError(fmt.Sprintf("%s: %v", name, err))
	}
	return id, nil
}

// toolError reports the failure with its stable code so agents can branch on it.
func toolError(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed [%s]: %v", action, bounty.Code(err), err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}
