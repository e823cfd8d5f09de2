package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback 8080, got %q (%v)", p, err)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "90")
	d, err := Duration("TEST_DUR", 0)
	if err != nil || d != 90*time.Second {
		t.Fatalf("expected 90s, got %s (%v)", d, err)
	}
	t.Setenv("TEST_DUR", "48h")
	d, err = Duration("TEST_DUR", 0)
	if err != nil || d != 48*time.Hour {
		t.Fatalf("expected 48h, got %s (%v)", d, err)
	}
	t.Setenv("TEST_DUR", "soon")
	if _, err := Duration("TEST_DUR", 0); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("DOTENV_A=from-file\nDOTENV_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DOTENV_A", "from-env")
	t.Setenv("DOTENV_B", "")
	os.Unsetenv("DOTENV_B")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("DOTENV_A"); got != "from-env" {
		t.Fatalf("expected process env to win, got %q", got)
	}
	if got := os.Getenv("DOTENV_B"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	os.Unsetenv("DOTENV_B")
}
