package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAppConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gitcats.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Runner.WorkRoot != os.TempDir() {
		t.Fatalf("work root = %q", cfg.Runner.WorkRoot)
	}
	if cfg.Redis.Addr != "" || cfg.Redis.MarkerTTL != 0 {
		t.Fatalf("redis must stay disabled: %+v", cfg.Redis)
	}
}

func TestLoadAppConfig(t *testing.T) {
	path := writeAppConfig(t, `logger:
  level: WARNING
  format: json
environment:
  create: mamba create -y -n {env} {spec}
runner:
  shell: /bin/bash
  outputLines: 20
  defaultTimeout: 2.5
  workRoot: /var/tmp
redis:
  addr: 127.0.0.1:6379
  db: 3
  markerTTL: 1h
report:
  path: out/report.json
`)
	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logger.Level != "WARNING" || cfg.Logger.Format != "json" {
		t.Fatalf("logger = %+v", cfg.Logger)
	}
	if cfg.Environment.Create != "mamba create -y -n {env} {spec}" || cfg.Environment.Remove != "" {
		t.Fatalf("environment = %+v", cfg.Environment)
	}
	if time.Duration(cfg.Runner.DefaultTimeout) != 2500*time.Millisecond {
		t.Fatalf("default timeout = %v", time.Duration(cfg.Runner.DefaultTimeout))
	}
	eng := cfg.Runner.toEngineConfig()
	if eng.Shell != "/bin/bash" || eng.OutputLines != 20 {
		t.Fatalf("engine config = %+v", eng)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" || cfg.Redis.DB != 3 || cfg.Redis.PoolSize != 2 {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if time.Duration(cfg.Redis.MarkerTTL) != time.Hour {
		t.Fatalf("marker ttl = %v", time.Duration(cfg.Redis.MarkerTTL))
	}
	if cfg.Report.Path != "out/report.json" {
		t.Fatalf("report path = %q", cfg.Report.Path)
	}
}

func TestLoadAppConfigErrors(t *testing.T) {
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
	if _, err := loadAppConfig(writeAppConfig(t, "runner:\n  defaultTimeout: soon\n")); err == nil {
		t.Fatal("expected timeout error")
	}
	if _, err := loadAppConfig(writeAppConfig(t, "runner: [\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-participant", "alice", "-skip-depends", "-loglevel", "debug", "-timeout", "3"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.participant != "alice" || !opts.skipDepends || opts.logLevel != "debug" || opts.configDir != "." || opts.timeout != "3" {
		t.Fatalf("options = %+v", opts)
	}
	if _, err := parseFlags(nil); err == nil {
		t.Fatal("expected missing participant error")
	}
}

func TestRunConfigErrorExitsTwo(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "languages.yml"), []byte("languages: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	logPath := filepath.Join(t.TempDir(), "gitcats.log")
	app := writeAppConfig(t, "logger:\n  outputPath: "+logPath+"\n")
	if code := run([]string{"-participant", "alice", "-config-dir", dir, "-app-config", app}); code != exitFatal {
		t.Fatalf("exit code = %d", code)
	}
}
