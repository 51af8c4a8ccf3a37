package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MaxUploadBytes != 10*1024*1024 {
		t.Fatalf("unexpected upload limit %d", cfg.MaxUploadBytes)
	}
	if cfg.Backend != "mock" {
		t.Fatalf("unexpected backend %q", cfg.Backend)
	}
	if cfg.BasicConfig.ServerAddress != DefaultServerAddress {
		t.Fatalf("unexpected address %q", cfg.BasicConfig.ServerAddress)
	}
	if got := cfg.BasicConfig.ReplyDelay().Milliseconds(); got != DefaultReplyDelayMS {
		t.Fatalf("unexpected reply delay %d", got)
	}
	if !filepath.IsAbs(cfg.BasicConfig.FileBaseDir) {
		t.Fatalf("file base dir should be absolute: %s", cfg.BasicConfig.FileBaseDir)
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("redis should be disabled by default")
	}
}

func TestLoadParsesHumanUploadSize(t *testing.T) {
	path := writeConfig(t, `{"basic_config": {"max_upload_size": "2MiB"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MaxUploadBytes != 2*1024*1024 {
		t.Fatalf("unexpected upload limit %d", cfg.MaxUploadBytes)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad size":         `{"basic_config": {"max_upload_size": "lots"}}`,
		"negative delay":   `{"basic_config": {"reply_delay_ms": -1}}`,
		"unknown backend":  `{"backend": "oracle"}`,
		"missing provider": `{"backend": "openai"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadProviderKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	path := writeConfig(t, `{"backend": "openai", "providers": {"openai": {"model": "gpt-4o-mini"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.Providers["openai"].APIKey; got != "from-env" {
		t.Fatalf("expected env api key, got %q", got)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}
