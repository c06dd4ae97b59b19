package handlers

import (
	"net/http"
	"strings"

	auth "bountypool-backend/storage/auth"
)

// KeyHandler issues and revokes operator API keys. Its routes sit behind
// the API key middleware, so only an existing operator can mint another.
type KeyHandler struct {
	BaseHandler
	issuer auth.KeyIssuer
}

// NewKeyHandler builds a KeyHandler.
func NewKeyHandler(issuer auth.KeyIssuer) *KeyHandler {
	return &KeyHandler{issuer: issuer}
}

// Register mounts the key routes on mux.
func (h *KeyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/bounty/keys", h.HandleIssue)
	mux.HandleFunc("POST /api/bounty/keys/revoke", h.HandleRevoke)
}

// HandleIssue creates a key.
// Request: {"label":"ci"}
// Response: {"key":"...","label":"ci","source":"issued","created_at":"..."}
func (h *KeyHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Label string `json:"label"`
	}
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, err)
		return
	}
	rec, err := h.issuer.Issue(r.Context(), strings.TrimSpace(body.Label), "issued")
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, rec)
}

// HandleRevoke deletes a key.
// Request: {"key":"..."}
func (h *KeyHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, err)
		return
	}
	if strings.TrimSpace(body.Key) == "" {
		h.sendError(w, &requestError{msg: "key required"})
		return
	}
	if err := h.issuer.Revoke(r.Context(), body.Key); err != nil {
		h.sendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
