package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/movienight/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Database.Path = filepath.Join(t.TempDir(), "movienight.db")
	cfg.Cache.InMemory = true
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewApp_ServesHealth(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy server, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}

func TestNewApp_DatabaseLock(t *testing.T) {
	cfg := testConfig(t)
	first, err := newApp(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	if _, err := newApp(context.Background(), cfg, discardLogger()); err == nil || !strings.Contains(err.Error(), "in use") {
		t.Fatalf("expected the second instance to be refused, got %v", err)
	}

	if err := first.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	again, err := newApp(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("expected the lock to be released, got %v", err)
	}
	_ = again.close()
}

func TestMigrateCommands(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "movienight.yaml")
	yaml := "database:\n  path: " + filepath.Join(dir, "movienight.db") + "\nlog:\n  format: json\n  level: error\n"
	if err := os.WriteFile(configPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := newRootCommand()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--config", configPath}, args...))
		if err := cmd.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}

	if out := run("migrate", "status"); !strings.Contains(out, "pending") {
		t.Fatalf("expected pending migrations before up, got:\n%s", out)
	}
	if out := run("migrate", "up"); !strings.Contains(out, "up to date") {
		t.Fatalf("unexpected up output:\n%s", out)
	}
	out := run("migrate", "status")
	if !strings.Contains(out, "applied") || strings.Contains(out, "pending") {
		t.Fatalf("expected every migration applied, got:\n%s", out)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Version", "State"}, [][]string{{"001", "applied"}, {"002"}})
	for _, want := range []string{"VERSION", "STATE", "001", "applied", "002"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table:\n%s", want, out)
		}
	}
	if renderTable(nil, nil) != "" {
		t.Fatalf("expected empty table without headers")
	}
}
