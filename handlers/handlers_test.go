package handlers

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/prometheus/client_golang/prometheus"

	"bountypool-backend/core/bounty"
	"bountypool-backend/services"
	auth "bountypool-backend/storage/auth"
	"bountypool-backend/storage/ledger"
)

var program = bounty.MustParseIdentity("c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0")

const operatorKey = "operator-key"

type party struct {
	priv *btcec.PrivateKey
	id   bounty.Identity
}

func newParty(seed byte) party {
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	return party{priv: priv, id: services.PartyIdentity(priv)}
}

type apiFixture struct {
	t     *testing.T
	srv   http.Handler
	clock *ledger.ManualClock
	keys  *auth.MemoryKeyStore
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	clock := ledger.NewManualClock(100)
	reg := prometheus.NewRegistry()
	svc := services.NewBountyService(
		ledger.NewMemoryStore(clock),
		bounty.NewProcessor(program, bounty.StrictRules()),
		services.WithMetrics(services.NewMetrics(reg)),
		services.WithFaucet(true),
	)
	keys := auth.NewMemoryKeyStore()
	keys.Seed(operatorKey, "test", "seed")
	srv := NewRouter(svc, RouterConfig{Keys: keys, Issuer: keys, Gatherer: reg})
	return &apiFixture{t: t, srv: srv, clock: clock, keys: keys}
}

func (f *apiFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", operatorKey)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) invoke(ins bounty.Instruction, accounts []bounty.Identity, signers ...party) *httptest.ResponseRecorder {
	f.t.Helper()
	env := &services.Envelope{ProgramData: bounty.EncodeInstruction(ins), Accounts: accounts}
	for _, p := range signers {
		if err := env.Sign(program, p.priv); err != nil {
			f.t.Fatal(err)
		}
	}
	return f.do(http.MethodPost, "/api/bounty/invoke", NewInvokeRequest(env))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestInvokeLifecycleOverHTTP(t *testing.T) {
	f := newAPI(t)
	mgr, alice, bob := newParty(1), newParty(2), newParty(3)
	task, pot := services.NewTaskHandle(), services.NewTaskHandle()

	for _, p := range []party{alice, bob} {
		if rec := f.do(http.MethodPost, "/api/bounty/accounts/"+p.id.String()+"/fund", map[string]uint64{"amount": 30}); rec.Code != http.StatusOK {
			t.Fatalf("fund: %d %s", rec.Code, rec.Body)
		}
	}

	create := bounty.CreateTask{AuditProgramRef: "audit", StakeAmount: 10, Deadline: 200, StakePot: pot}
	rec := f.invoke(create, []bounty.Identity{mgr.id, task, bounty.SystemProgramID}, mgr)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var created InvokeResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Op != "create_task" || created.Handle != task || created.Task.Status.Phase != bounty.PhaseAcceptingSubmissions {
		t.Fatalf("unexpected create response %+v", created)
	}

	for _, p := range []party{alice, bob} {
		if rec := f.invoke(bounty.SubmitTask{Payload: "w"}, []bounty.Identity{task, p.id, pot, bounty.ClockSysvarID}, p); rec.Code != http.StatusOK {
			t.Fatalf("submit: %d %s", rec.Code, rec.Body)
		}
	}

	// A vote while submissions are open is a phase conflict.
	rec = f.invoke(bounty.Vote{}, []bounty.Identity{task, alice.id, bob.id, bounty.ClockSysvarID}, alice)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Code != "PhaseMismatch" {
		t.Fatalf("early vote: %d", rec.Code)
	}

	if rec := f.invoke(bounty.SetTaskToVoting{Deadline: 300}, []bounty.Identity{task, mgr.id, bounty.ClockSysvarID}, mgr); rec.Code != http.StatusOK {
		t.Fatalf("voting: %d %s", rec.Code, rec.Body)
	}
	if rec := f.invoke(bounty.Vote{}, []bounty.Identity{task, alice.id, bob.id, bounty.ClockSysvarID}, alice); rec.Code != http.StatusOK {
		t.Fatalf("vote: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(http.MethodGet, "/api/bounty/tasks/"+task.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get task: %d", rec.Code)
	}
	var view bounty.TaskView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.TotalStakeAmount != 20 || view.Votes[alice.id.String()] != bob.id {
		t.Fatalf("unexpected view %+v", view)
	}

	rec = f.do(http.MethodGet, "/api/bounty/tasks/"+task.String()+"/tally", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"votes":1`)) {
		t.Fatalf("tally: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(http.MethodGet, "/api/bounty/accounts/"+pot.String()+"/balance", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"balance":20`)) {
		t.Fatalf("pot balance: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(http.MethodGet, "/api/bounty/tasks/"+task.String()+"/pot-qr?size=128", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("pot qr: %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/bounty/events?type=submission", nil)
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"total":2`)) {
		t.Fatalf("events: %s", rec.Body)
	}

	rec = f.do(http.MethodGet, "/metrics", nil)
	if !bytes.Contains(rec.Body.Bytes(), []byte(`bountypool_invocations_total{code="PhaseMismatch",op="vote"} 1`)) {
		t.Fatalf("metrics missing phase mismatch counter:\n%s", rec.Body)
	}
}

func TestInvokeErrorStatuses(t *testing.T) {
	f := newAPI(t)
	mgr, outsider := newParty(1), newParty(5)
	task, pot := services.NewTaskHandle(), services.NewTaskHandle()
	create := bounty.CreateTask{AuditProgramRef: "audit", StakeAmount: 10, Deadline: 200, StakePot: pot}
	if rec := f.invoke(create, []bounty.Identity{mgr.id, task, bounty.SystemProgramID}, mgr); rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}

	tests := []struct {
		name   string
		ins    bounty.Instruction
		accts  []bounty.Identity
		signer party
		status int
		code   string
	}{
		{"duplicate slot", create, []bounty.Identity{mgr.id, task, bounty.SystemProgramID}, mgr, http.StatusConflict, "StoreError"},
		{"unfunded submit", bounty.SubmitTask{Payload: "x"}, []bounty.Identity{task, outsider.id, pot, bounty.ClockSysvarID}, outsider, http.StatusPaymentRequired, "TransferFailure"},
		{"wrong pot", bounty.SubmitTask{Payload: "x"}, []bounty.Identity{task, outsider.id, outsider.id, bounty.ClockSysvarID}, outsider, http.StatusConflict, "StakePotMismatch"},
		{"not manager", bounty.SetTaskToVoting{Deadline: 300}, []bounty.Identity{task, outsider.id, bounty.ClockSysvarID}, outsider, http.StatusForbidden, "Unauthorized"},
		{"past deadline", bounty.SetTaskToVoting{Deadline: 50}, []bounty.Identity{task, mgr.id, bounty.ClockSysvarID}, mgr, http.StatusConflict, "NotFutureDeadline"},
		{"missing accounts", bounty.Vote{}, []bounty.Identity{task, mgr.id}, mgr, http.StatusBadRequest, "InvalidAccounts"},
		{"payout", bounty.Payout{}, []bounty.Identity{task, mgr.id}, mgr, http.StatusNotImplemented, "UnsupportedOperation"},
		{"withdraw", bounty.WithdrawSubmission{}, []bounty.Identity{task, mgr.id}, mgr, http.StatusNotImplemented, "UnsupportedOperation"},
		{"unknown slot", bounty.SubmitTask{Payload: "x"}, []bounty.Identity{services.NewTaskHandle(), outsider.id, pot, bounty.ClockSysvarID}, outsider, http.StatusNotFound, "NotFound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.invoke(tt.ins, tt.accts, tt.signer)
			if rec.Code != tt.status {
				t.Fatalf("status %d want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if got := decodeError(t, rec).Code; got != tt.code {
				t.Fatalf("code %q want %q", got, tt.code)
			}
		})
	}
}

func TestInvokeMalformedRequests(t *testing.T) {
	f := newAPI(t)
	tests := []struct {
		name string
		body interface{}
	}{
		{"bad hex data", InvokeRequest{ProgramData: "zz"}},
		{"bad account", InvokeRequest{ProgramData: "04", Accounts: []string{"abc"}}},
		{"unknown op", InvokeRequest{ProgramData: "09"}},
		{"unknown field", map[string]string{"program": "04"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/bounty/invoke", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d: %s", rec.Code, rec.Body)
			}
			if got := decodeError(t, rec).Code; got != "DecodeError" {
				t.Fatalf("code %q", got)
			}
		})
	}
}

func TestWritesRequireAPIKey(t *testing.T) {
	f := newAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/bounty/invoke", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz without key: %d", rec.Code)
	}
}

func TestDecodeEndpoint(t *testing.T) {
	f := newAPI(t)
	data := hex.EncodeToString(bounty.EncodeInstruction(bounty.SubmitTask{Payload: "hello"}))
	rec := f.do(http.MethodPost, "/api/bounty/instructions/decode", map[string]string{"data": data})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"op":"submit_task"`)) || !bytes.Contains(rec.Body.Bytes(), []byte(`"payload":"hello"`)) {
		t.Fatalf("body %s", rec.Body)
	}
}

func TestKeyIssueAndRevoke(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodPost, "/api/bounty/keys", map[string]string{"label": "ci"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue: %d %s", rec.Code, rec.Body)
	}
	var issued auth.OperatorKey
	if err := json.NewDecoder(rec.Body).Decode(&issued); err != nil {
		t.Fatal(err)
	}
	if !f.keys.Validate(context.Background(), issued.Key) {
		t.Fatal("issued key not valid")
	}
	if rec := f.do(http.MethodPost, "/api/bounty/keys/revoke", map[string]string{"key": issued.Key}); rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/bounty/keys/revoke", map[string]string{"key": issued.Key}); rec.Code != http.StatusNotFound {
		t.Fatalf("second revoke: %d", rec.Code)
	}
}

func TestBadPathIdentity(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodGet, "/api/bounty/tasks/not-hex", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}
