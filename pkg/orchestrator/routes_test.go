package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRoutes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adapters.yaml")
	content := `
adapters:
  chat: http://adapter-chat:8100/
  web-crawl: http://adapter-crawler:8100
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	routes, err := LoadRoutes(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	base, ok := routes.Resolve("chat")
	if !ok {
		t.Fatal("chat route missing")
	}
	if base != "http://adapter-chat:8100" {
		t.Fatalf("trailing slash not trimmed: %q", base)
	}

	if _, ok := routes.Resolve("crm"); ok {
		t.Fatal("unmapped type resolved unexpectedly")
	}
}

func TestLoadRoutesRejectsEmptyTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adapters.yaml")
	if err := os.WriteFile(path, []byte("adapters: {}\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := LoadRoutes(path); err == nil {
		t.Fatal("expected error for empty adapter table")
	}
}

func TestLoadRoutesMissingFile(t *testing.T) {
	if _, err := LoadRoutes(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
