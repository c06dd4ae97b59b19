package ledger

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrations(t *testing.T) {
	for _, dir := range []string{"migrations/postgres", "migrations/sqlite"} {
		files, err := fs.Glob(migrations, dir+"/*.sql")
		if err != nil || len(files) == 0 {
			t.Fatalf("%s: no migrations embedded (%v)", dir, err)
		}
		for _, name := range files {
			raw, err := fs.ReadFile(migrations, name)
			if err != nil {
				t.Fatalf("read %s: %v", name, err)
			}
			body := string(raw)
			if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
				t.Fatalf("%s lacks goose up/down markers", name)
			}
		}
	}

	raw, err := fs.ReadFile(migrations, "migrations/postgres/00002_create_operator_keys.sql")
	if err != nil {
		t.Fatalf("operator key migration: %v", err)
	}
	if !strings.Contains(string(raw), "CREATE TABLE IF NOT EXISTS bounty_operator_keys") {
		t.Fatal("operator key table missing from migrations")
	}
}
