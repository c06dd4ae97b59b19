package container

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"bountypool-backend/config"
	"bountypool-backend/core/bounty"
)

func TestNewContainerSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDriver = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "bounty.db")
	cfg.Faucet = true
	cfg.APIKey = "op-key"

	reg := prometheus.NewRegistry()
	c, err := NewContainer(context.Background(), cfg, reg)
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	defer c.Close()

	want, _ := cfg.Program()
	if c.Service.ProgramID() != want {
		t.Fatal("program id not taken from config")
	}
	if c.Keys == nil || !c.Keys.Validate(context.Background(), "op-key") {
		t.Fatal("operator key not seeded")
	}

	var acct bounty.Identity
	acct[0] = 6
	srv := c.Router(reg, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/bounty/accounts/"+acct.String()+"/fund", bytes.NewBufferString(`{"amount":9}`))
	req.Header.Set("X-API-Key", "op-key")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"balance":9`)) {
		t.Fatalf("fund: %d %s", rec.Code, rec.Body)
	}
}

func TestNewContainerRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDriver = "etcd"
	if _, err := NewContainer(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}
