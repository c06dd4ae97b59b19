package handlers

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bountypool-backend/core/bounty"
	"bountypool-backend/services"
)

const maxBodyBytes = 1 << 20

// BaseHandler provides common functionality for all handlers
type BaseHandler struct{}

// sendJSON sends a JSON response
func (h *BaseHandler) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("failed to encode response: %v", err)
		}
	}
}

// sendError writes {"error", "code"} with the status mapped from err.
func (h *BaseHandler) sendError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	h.sendJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// parseJSON parses JSON from request
func (h *BaseHandler) parseJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &requestError{msg: "invalid json: " + err.Error()}
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// BountyHandler serves the bounty API.
type BountyHandler struct {
	BaseHandler
	svc *services.BountyService
}

// NewBountyHandler creates a handler over svc.
func NewBountyHandler(svc *services.BountyService) *BountyHandler {
	return &BountyHandler{svc: svc}
}

// Register mounts the API routes on mux. gatherer backs /metrics; nil
// uses the default registry.
func (h *BountyHandler) Register(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.HandleFunc("POST /api/bounty/invoke", h.HandleInvoke)
	mux.HandleFunc("GET /api/bounty/tasks/{handle}", h.HandleGetTask)
	mux.HandleFunc("GET /api/bounty/tasks/{handle}/tally", h.HandleTally)
	mux.HandleFunc("GET /api/bounty/tasks/{handle}/pot-qr", h.HandlePotQR)
	mux.HandleFunc("GET /api/bounty/accounts/{id}/balance", h.HandleBalance)
	mux.HandleFunc("POST /api/bounty/accounts/{id}/fund", h.HandleFund)
	mux.HandleFunc("POST /api/bounty/instructions/decode", h.HandleDecode)
	mux.HandleFunc("GET /api/bounty/events", h.HandleEvents)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// InvokeRequest is a hex-encoded signed envelope.
type InvokeRequest struct {
	ProgramData string            `json:"program_data"`
	Accounts    []string          `json:"accounts"`
	Signatures  map[string]string `json:"signatures"`
}

// InvokeResponse reports the applied operation and the resulting record.
type InvokeResponse struct {
	Status string           `json:"status"`
	Op     string           `json:"op"`
	Handle bounty.Identity  `json:"handle"`
	Task   *bounty.TaskView `json:"task"`
}

// Envelope converts the request into a services envelope.
func (req InvokeRequest) Envelope() (*services.Envelope, error) {
	data, err := hex.DecodeString(req.ProgramData)
	if err != nil {
		return nil, &requestError{msg: "program_data is not hex"}
	}
	env := &services.Envelope{ProgramData: data, Signatures: make(map[bounty.Identity][]byte, len(req.Signatures))}
	for _, raw := range req.Accounts {
		id, err := bounty.ParseIdentity(raw)
		if err != nil {
			return nil, &requestError{msg: "account " + strconv.Quote(raw) + ": " + err.Error()}
		}
		env.Accounts = append(env.Accounts, id)
	}
	for k, v := range req.Signatures {
		id, err := bounty.ParseIdentity(k)
		if err != nil {
			return nil, &requestError{msg: "signature key " + strconv.Quote(k) + ": " + err.Error()}
		}
		sig, err := hex.DecodeString(v)
		if err != nil {
			return nil, &requestError{msg: "signature for " + k + " is not hex"}
		}
		env.Signatures[id] = sig
	}
	return env, nil
}

// HandleInvoke applies a signed instruction.
func (h *BountyHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, err)
		return
	}
	env, err := req.Envelope()
	if err != nil {
		h.sendError(w, err)
		return
	}
	res, err := h.svc.Invoke(r.Context(), env)
	if err != nil {
		h.sendError(w, err)
		return
	}
	view := res.Record.View()
	h.sendJSON(w, http.StatusOK, InvokeResponse{Status: "ok", Op: res.Op.String(), Handle: res.Task, Task: &view})
}

// HandleGetTask returns the record view for a task slot.
func (h *BountyHandler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.pathIdentity(w, r, "handle")
	if !ok {
		return
	}
	rec, err := h.svc.GetTask(r.Context(), handle)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, rec.View())
}

// HandleTally returns vote counts per candidate.
func (h *BountyHandler) HandleTally(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.pathIdentity(w, r, "handle")
	if !ok {
		return
	}
	tally, err := h.svc.Tally(r.Context(), handle)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"handle": handle, "tally": tally})
}

// HandlePotQR renders the stake pot payment QR code.
func (h *BountyHandler) HandlePotQR(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.pathIdentity(w, r, "handle")
	if !ok {
		return
	}
	size := 256
	if raw := r.URL.Query().Get("size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 64 || v > 1024 {
			h.sendError(w, &requestError{msg: "size must be between 64 and 1024"})
			return
		}
		size = v
	}
	png, err := h.svc.PotQRCode(r.Context(), handle, size)
	if err != nil {
		h.sendError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// HandleBalance returns an account balance.
func (h *BountyHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathIdentity(w, r, "id")
	if !ok {
		return
	}
	bal, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"account": id, "balance": bal})
}

// HandleFund credits an account through the dev faucet.
func (h *BountyHandler) HandleFund(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathIdentity(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Amount uint64 `json:"amount"`
	}
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, err)
		return
	}
	bal, err := h.svc.Fund(r.Context(), id, body.Amount)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"account": id, "balance": bal})
}

// HandleDecode decodes hex instruction data for inspection.
func (h *BountyHandler) HandleDecode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data string `json:"data"`
	}
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, err)
		return
	}
	raw, err := hex.DecodeString(body.Data)
	if err != nil {
		h.sendError(w, &requestError{msg: "data is not hex"})
		return
	}
	view, err := services.DecodeInstruction(raw)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, view)
}

// HandleEvents lists recent events, optionally filtered by ?type= and ?limit=.
func (h *BountyHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	events := h.svc.Events().Recent(r.URL.Query().Get("type"), limit)
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"events": events, "total": len(events)})
}

// HandleHealth handles health check requests
func (h *BountyHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"program_id": h.svc.ProgramID(),
		"timestamp":  time.Now().Unix(),
	})
}

func (h *BountyHandler) pathIdentity(w http.ResponseWriter, r *http.Request, name string) (bounty.Identity, bool) {
	id, err := bounty.ParseIdentity(r.PathValue(name))
	if err != nil {
		h.sendError(w, &requestError{msg: name + ": " + err.Error()})
		return bounty.Identity{}, false
	}
	return id, true
}

// NewInvokeRequest encodes a signed envelope for the invoke endpoint.
func NewInvokeRequest(env *services.Envelope) InvokeRequest {
	req := InvokeRequest{
		ProgramData: hex.EncodeToString(env.ProgramData),
		Accounts:    make([]string, len(env.Accounts)),
		Signatures:  make(map[string]string, len(env.Signatures)),
	}
	for i, a := range env.Accounts {
		req.Accounts[i] = a.String()
	}
	for k, v := range env.Signatures {
		req.Signatures[k.String()] = hex.EncodeToString(v)
	}
	return req
}
