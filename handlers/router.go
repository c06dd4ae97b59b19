package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bountypool-backend/middleware"
	"bountypool-backend/services"
	auth "bountypool-backend/storage/auth"
)

// RouterConfig selects the optional pieces of the HTTP surface.
type RouterConfig struct {
	// Keys guards every write route when set.
	Keys      auth.KeyValidator
	Issuer    auth.KeyIssuer
	Gatherer  prometheus.Gatherer
	RateLimit int // requests per minute per client, 0 disables
}

// NewRouter builds the full middleware-wrapped handler.
func NewRouter(svc *services.BountyService, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	NewBountyHandler(svc).Register(mux, cfg.Gatherer)
	if cfg.Issuer != nil {
		NewKeyHandler(cfg.Issuer).Register(mux)
	}

	mws := []func(http.Handler) http.Handler{
		middleware.Recovery,
		middleware.Logging,
		middleware.SecurityHeaders,
		middleware.CORS,
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, time.Minute))
	}
	if cfg.Keys != nil {
		mws = append(mws, middleware.APIAuth(cfg.Keys, middleware.WritesOnly))
	}
	return middleware.Chain(mux, mws...)
}
