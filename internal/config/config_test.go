package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.DBPath != ".artifacts/builds.db" {
		t.Errorf("db-path = %s", cfg.DBPath)
	}
	if cfg.ArchiveDir != "." {
		t.Errorf("archive-dir = %s", cfg.ArchiveDir)
	}
	if cfg.BootSize != "300M" {
		t.Errorf("boot-size = %s", cfg.BootSize)
	}
	if cfg.DownloadHeadroom != "2G" {
		t.Errorf("download-headroom = %s", cfg.DownloadHeadroom)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("ALARMIMG_DB_PATH", "/var/lib/alarmimg/builds.db")
	t.Setenv("ALARMIMG_BOOT_SIZE", "512M")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DBPath != "/var/lib/alarmimg/builds.db" {
		t.Errorf("db-path = %s, env override ignored", cfg.DBPath)
	}
	if cfg.BootSize != "512M" {
		t.Errorf("boot-size = %s, env override ignored", cfg.BootSize)
	}
}

func TestLoadConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	content := []byte(`
mirrors:
  nearby: https://mirror.example/archlinuxarm/os/ArchLinuxARM-aarch64-latest.tar.gz
tool-hints:
  qemu-img: nix-env -iA nixpkgs.qemu
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Mirrors["nearby"] == "" {
		t.Errorf("mirrors not read from config file: %v", cfg.Mirrors)
	}
	if cfg.ToolHints["qemu-img"] != "nix-env -iA nixpkgs.qemu" {
		t.Errorf("tool-hints not read from config file: %v", cfg.ToolHints)
	}
}

func TestValidateFailures(t *testing.T) {
	base := func() *Config {
		return &Config{
			DBPath:           ".artifacts/builds.db",
			FSMDBPath:        ".artifacts/fsm",
			ArchiveDir:       ".",
			WorkDir:          "/tmp/alarmimg",
			S3Region:         "us-east-1",
			BootSize:         "300M",
			DownloadHeadroom: "2G",
			PopulateHeadroom: "4G",
			HTTPRetryMax:     4,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db-path", func(c *Config) { c.DBPath = "" }},
		{"empty fsm-db-path", func(c *Config) { c.FSMDBPath = "" }},
		{"empty archive-dir", func(c *Config) { c.ArchiveDir = "" }},
		{"bad boot-size", func(c *Config) { c.BootSize = "threehundred" }},
		{"bad download-headroom", func(c *Config) { c.DownloadHeadroom = "2GB" }},
		{"bad populate-headroom", func(c *Config) { c.PopulateHeadroom = "-4G" }},
		{"negative retry max", func(c *Config) { c.HTTPRetryMax = -1 }},
	}
	for _, tt := range tests {
		cfg := base()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}
