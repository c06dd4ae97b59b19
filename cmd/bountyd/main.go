package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bountypool-backend/config"
	"bountypool-backend/container"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c, err := container.NewContainer(ctx, cfg, reg)
	if err != nil {
		log.Fatalf("failed to init service: %v", err)
	}
	defer c.Close()

	if c.Keys == nil {
		log.Printf("WARNING: BOUNTY_API_KEY not set; write endpoints are open")
	}
	if cfg.Faucet {
		log.Printf("WARNING: faucet enabled; anyone with write access can mint balances")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Router(reg, 600),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("bountyd listening on :%s (store=%s)", cfg.Port, cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
