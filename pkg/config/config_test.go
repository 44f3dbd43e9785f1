package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"github.com/pippin-db/pippin/internal/testutil"
)

func TestLoadSandboxDefault(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0o700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	data := []byte("repo:\n  path: ./data\n  name: sandboxrepo\n  cache_entries: 64\nsnapshot:\n  every_commits: 10\nlogging:\n  level: debug\n")
	if err := sb.WriteFile("config/default.yaml", data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Repo.Name != "sandboxrepo" {
		t.Fatalf("Repo.Name = %q, want %q", cfg.Repo.Name, "sandboxrepo")
	}
	if cfg.Repo.CacheEntries != 64 {
		t.Fatalf("Repo.CacheEntries = %d, want 64", cfg.Repo.CacheEntries)
	}
	if cfg.Snapshot.EveryCommits != 10 {
		t.Fatalf("Snapshot.EveryCommits = %d, want 10", cfg.Snapshot.EveryCommits)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoadSandboxEnvOverride(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0o700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	base := []byte("repo:\n  name: base\nsnapshot:\n  every_commits: 1\n")
	if err := sb.WriteFile("config/default.yaml", base, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	override := []byte("repo:\n  name: production\n")
	if err := sb.WriteFile("config/production.yaml", override, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	cfg, err := Load("production")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Repo.Name != "production" {
		t.Fatalf("Repo.Name = %q, want %q (env override)", cfg.Repo.Name, "production")
	}
	if cfg.Snapshot.EveryCommits != 1 {
		t.Fatalf("Snapshot.EveryCommits = %d, want base value 1 to survive the merge", cfg.Snapshot.EveryCommits)
	}
}
