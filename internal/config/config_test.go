package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "LEADFLOW_STORE", "LEADFLOW_NOTIFY_EMAIL", "MINIO_USE_SSL", "LEADFLOW_ATTACHMENT_MAX_BYTES"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Store != StorePostgres {
		t.Errorf("Store = %q", cfg.Store)
	}
	if cfg.NotifyEmail != nil {
		t.Errorf("NotifyEmail = %v", cfg.NotifyEmail)
	}
	if cfg.AttachmentMaxBytes != 10<<20 {
		t.Errorf("AttachmentMaxBytes = %d", cfg.AttachmentMaxBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEADFLOW_STORE", "memory")
	t.Setenv("LEADFLOW_NOTIFY_EMAIL", "a@x.com, b@x.com,,")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("LEADFLOW_ATTACHMENT_MAX_BYTES", "not-a-number")
	t.Setenv("LEADFLOW_ENV", "Development")

	cfg := Load()
	if cfg.Store != StoreMemory {
		t.Errorf("Store = %q", cfg.Store)
	}
	if len(cfg.NotifyEmail) != 2 || cfg.NotifyEmail[1] != "b@x.com" {
		t.Errorf("NotifyEmail = %v", cfg.NotifyEmail)
	}
	if !cfg.MinioUseSSL {
		t.Error("expected MinioUseSSL")
	}
	if cfg.AttachmentMaxBytes != 10<<20 {
		t.Errorf("invalid int should fall back, got %d", cfg.AttachmentMaxBytes)
	}
	if !cfg.Development() {
		t.Error("expected development mode")
	}
}

func TestLoadDotenvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	if err := os.WriteFile(file, []byte("LEADFLOW_TEST_DOTENV_A=from-file\nLEADFLOW_TEST_DOTENV_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("LEADFLOW_TEST_DOTENV_A", "from-env")
	t.Setenv("LEADFLOW_TEST_DOTENV_B", "")
	os.Unsetenv("LEADFLOW_TEST_DOTENV_B")

	if err := LoadDotenv(file, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if got := os.Getenv("LEADFLOW_TEST_DOTENV_A"); got != "from-env" {
		t.Errorf("existing value overridden: %q", got)
	}
	if got := os.Getenv("LEADFLOW_TEST_DOTENV_B"); got != "from-file" {
		t.Errorf("value not loaded: %q", got)
	}
}
