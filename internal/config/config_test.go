package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.RuntimeName != "axasr" {
		t.Errorf("runtime name = %q, want axasr", cfg.RuntimeName)
	}
	if cfg.ASR.Mode != "npu" {
		t.Errorf("asr mode = %q, want npu", cfg.ASR.Mode)
	}
	if cfg.ASR.SampleRate != 16000 || cfg.ASR.Channels != 1 {
		t.Errorf("audio defaults = %d Hz / %d ch, want 16000 / 1", cfg.ASR.SampleRate, cfg.ASR.Channels)
	}
	if err := validate(cfg); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axasr.yaml")
	data := `
runtime_name: edge-box
http:
  port: 9090
asr:
  mode: mock
  language: en
transcripts:
  enabled: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RuntimeName != "edge-box" {
		t.Errorf("runtime name = %q, want edge-box", cfg.RuntimeName)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("http port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.ASR.Mode != "mock" || cfg.ASR.Language != "en" {
		t.Errorf("asr config = %+v", cfg.ASR)
	}
	if cfg.Transcripts.Enabled {
		t.Error("transcripts should be disabled")
	}
	// Untouched keys keep their defaults.
	if cfg.ASR.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want default 16000", cfg.ASR.SampleRate)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AXASR_RUNTIME_NAME", "from-env")
	t.Setenv("AXASR_HTTP_PORT", "8181")
	t.Setenv("AXASR_ASR_MODE", "mock")
	t.Setenv("AXASR_ASR_LANGUAGE", "de")
	t.Setenv("AXASR_BUS_EMBEDDED", "false")
	t.Setenv("AXASR_BUS_SERVERS", "nats://a:4222, nats://b:4222")
	t.Setenv("AXASR_TRANSCRIPTS_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RuntimeName != "from-env" {
		t.Errorf("runtime name = %q, want from-env", cfg.RuntimeName)
	}
	if cfg.HTTP.Port != 8181 {
		t.Errorf("http port = %d, want 8181", cfg.HTTP.Port)
	}
	if cfg.ASR.Mode != "mock" || cfg.ASR.Language != "de" {
		t.Errorf("asr config = %+v", cfg.ASR)
	}
	if cfg.Bus.Embedded {
		t.Error("bus.embedded should be overridden to false")
	}
	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Servers[1] != "nats://b:4222" {
		t.Errorf("bus servers = %v", cfg.Bus.Servers)
	}
	if cfg.Transcripts.RetentionDays != 7 {
		t.Errorf("retention days = %d, want 7", cfg.Transcripts.RetentionDays)
	}
}

func TestEnvOverrideIgnoresInvalidValues(t *testing.T) {
	t.Setenv("AXASR_HTTP_PORT", "not-a-number")
	t.Setenv("AXASR_BUS_EMBEDDED", "not-a-bool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTP.Port != Default().HTTP.Port {
		t.Errorf("http port = %d, want default", cfg.HTTP.Port)
	}
	if !cfg.Bus.Embedded {
		t.Error("bus.embedded should keep its default")
	}
}

func TestValidate(t *testing.T) {
	base := Default()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty runtime name", func(c *Config) { c.RuntimeName = "" }},
		{"bad http port", func(c *Config) { c.HTTP.Port = 0 }},
		{"bad bus port", func(c *Config) { c.Bus.Port = -1 }},
		{"external bus without servers", func(c *Config) { c.Bus.Embedded = false; c.Bus.Servers = nil }},
		{"unknown asr mode", func(c *Config) { c.ASR.Mode = "gpu" }},
		{"npu mode without model", func(c *Config) { c.ASR.ModelType = "" }},
		{"exec mode without command", func(c *Config) { c.ASR.Mode = "exec"; c.ASR.Command = "" }},
		{"zero sample rate", func(c *Config) { c.ASR.SampleRate = 0 }},
		{"stereo input", func(c *Config) { c.ASR.Channels = 2 }},
		{"enabled store without path", func(c *Config) { c.Transcripts.Path = "" }},
		{"negative retention", func(c *Config) { c.Transcripts.RetentionDays = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
