package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Download.PollInterval != 37*time.Second {
		t.Errorf("expected 37s poll interval, got %v", cfg.Download.PollInterval)
	}
	if cfg.Download.QuotaBytes != 200<<30 {
		t.Errorf("expected 200GiB quota, got %d", cfg.Download.QuotaBytes)
	}
	if cfg.Download.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Download.MaxRetries)
	}
	if cfg.Download.IgnorePattern != `.*7\.w4bit\.fits` {
		t.Errorf("unexpected ignore pattern %q", cfg.Download.IgnorePattern)
	}
	if cfg.FTP.Addr() != "localhost:31001" {
		t.Errorf("unexpected ftp addr %q", cfg.FTP.Addr())
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "surveyor.yaml")
	content := `
download:
  quota: 10GB
  max_restores: 4
pool:
  max_attempts: 5
  uploader: ftp
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SURVEYOR_DOWNLOAD_MAX_RESTORES", "7")
	t.Setenv("SURVEYOR_QUEUE_JOB_PREFIX", "palfa")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Download.QuotaBytes != 10_000_000_000 {
		t.Errorf("expected 10GB quota, got %d", cfg.Download.QuotaBytes)
	}
	if cfg.Download.MaxRestores != 7 {
		t.Errorf("env should override file: got %d", cfg.Download.MaxRestores)
	}
	if cfg.Pool.MaxAttempts != 5 {
		t.Errorf("expected 5 max attempts, got %d", cfg.Pool.MaxAttempts)
	}
	if cfg.Queue.JobPrefix != "palfa" {
		t.Errorf("expected job prefix palfa, got %q", cfg.Queue.JobPrefix)
	}
}

func TestLoad_InvalidQuota(t *testing.T) {
	t.Setenv("SURVEYOR_DOWNLOAD_QUOTA", "lots")

	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid quota")
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	cfg.Download.MaxRestores = 0
	cfg.Pool.Uploader = "s3"

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "max_restores") || !strings.Contains(err.Error(), "uploader") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}
