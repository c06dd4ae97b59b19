package mcp

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mark3labs/mcp-go/mcp"

	"bountypool-backend/core/bounty"
	"bountypool-backend/handlers"
	"bountypool-backend/services"
	"bountypool-backend/storage/ledger"
)

var program = bounty.MustParseIdentity("d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0")

func newServer(t *testing.T) (*MCPServer, *services.BountyService) {
	t.Helper()
	svc := services.NewBountyService(
		ledger.NewMemoryStore(ledger.NewManualClock(100)),
		bounty.NewProcessor(program, bounty.StrictRules()),
		services.WithFaucet(true),
	)
	return NewMCPServer(svc), svc
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}
	return text.Text
}

func TestInvokeAndQueryTools(t *testing.T) {
	ctx := context.Background()
	s, _ := newServer(t)

	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{7}, 32))
	mgr := services.PartyIdentity(priv)
	task, pot := services.NewTaskHandle(), services.NewTaskHandle()

	env := &services.Envelope{
		ProgramData: bounty.EncodeInstruction(bounty.CreateTask{AuditProgramRef: "audit", StakeAmount: 3, Deadline: 500, StakePot: pot}),
		Accounts:    []bounty.Identity{mgr, task, bounty.SystemProgramID},
	}
	if err := env.Sign(program, priv); err != nil {
		t.Fatal(err)
	}
	req := handlers.NewInvokeRequest(env)
	sigs := make(map[string]interface{}, len(req.Signatures))
	for k, v := range req.Signatures {
		sigs[k] = v
	}
	accounts := make([]interface{}, len(req.Accounts))
	for i, a := range req.Accounts {
		accounts[i] = a
	}

	res, err := s.handleInvoke(ctx, call("invoke", map[string]interface{}{
		"program_data": req.ProgramData,
		"accounts":     accounts,
		"signatures":   sigs,
	}))
	if err != nil || res.IsError {
		t.Fatalf("invoke: %v %s", err, resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), `"op": "create_task"`) {
		t.Fatalf("invoke result %s", resultText(t, res))
	}

	res, _ = s.handleGetTask(ctx, call("get_task", map[string]interface{}{"handle": task.String()}))
	if res.IsError || !strings.Contains(resultText(t, res), `"audit_program_ref": "audit"`) {
		t.Fatalf("get_task: %s", resultText(t, res))
	}

	res, _ = s.handleTally(ctx, call("vote_tally", map[string]interface{}{"handle": task.String()}))
	if res.IsError || !strings.Contains(resultText(t, res), `"tally": []`) {
		t.Fatalf("vote_tally: %s", resultText(t, res))
	}

	res, _ = s.handleBalance(ctx, call("get_balance", map[string]interface{}{"account": pot.String()}))
	if res.IsError || !strings.Contains(resultText(t, res), `"balance": 0`) {
		t.Fatalf("get_balance: %s", resultText(t, res))
	}
}

func TestToolErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := newServer(t)

	tests := []struct {
		name string
		fn   func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args map[string]interface{}
		want string
	}{
		{"missing handle", s.handleGetTask, map[string]interface{}{}, "handle"},
		{"bad handle", s.handleGetTask, map[string]interface{}{"handle": "zz"}, "handle"},
		{"unknown task", s.handleGetTask, map[string]interface{}{"handle": services.NewTaskHandle().String()}, "[StoreError]"},
		{"undecodable", s.handleDecode, map[string]interface{}{"data": "09"}, "[DecodeError]"},
		{"unsigned payout", s.handleInvoke, map[string]interface{}{
			"program_data": hex.EncodeToString(bounty.EncodeInstruction(bounty.Payout{})),
			"accounts":     []interface{}{},
		}, "[UnsupportedOperation]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.fn(ctx, call(tt.name, tt.args))
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !res.IsError || !strings.Contains(resultText(t, res), tt.want) {
				t.Fatalf("result %s", resultText(t, res))
			}
		})
	}
}

func TestDecodeTool(t *testing.T) {
	s, _ := newServer(t)
	data := hex.EncodeToString(bounty.EncodeInstruction(bounty.SetTaskToVoting{Deadline: 77}))
	res, _ := s.handleDecode(context.Background(), call("decode_instruction", map[string]interface{}{"data": data}))
	if res.IsError || !strings.Contains(resultText(t, res), `"deadline": 77`) {
		t.Fatalf("decode: %s", resultText(t, res))
	}
}
