package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.DebounceWindow != 12*time.Second {
		t.Fatalf("DebounceWindow = %v; want 12s", cfg.DebounceWindow)
	}
	if cfg.BufferTTL != 72*time.Second {
		t.Fatalf("BufferTTL = %v; want window+60s", cfg.BufferTTL)
	}
	if !cfg.PauseOnComplete {
		t.Fatal("PauseOnComplete must default to true")
	}
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Fatalf("LLM.Provider = %q", cfg.LLM.Provider)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
}

func TestLoad_WindowOverridesDefaultTTL(t *testing.T) {
	t.Setenv("DEBOUNCE_WINDOW", "5s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DebounceWindow != 5*time.Second || cfg.BufferTTL != 65*time.Second {
		t.Fatalf("window=%v ttl=%v", cfg.DebounceWindow, cfg.BufferTTL)
	}
}

func TestLoad_RejectsTTLNotExceedingWindow(t *testing.T) {
	t.Setenv("DEBOUNCE_WINDOW", "30s")
	t.Setenv("BUFFER_TTL", "30s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when BUFFER_TTL <= DEBOUNCE_WINDOW")
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "acme")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoad_RejectsBadLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad log level")
	}
}

func TestLoad_NormalizesWarning(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warning")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q; want warn", cfg.LogLevel)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "/"},
		{"api", "/api"},
		{"/api/", "/api"},
		{"/", "/"},
	}
	for _, tc := range cases {
		if got := normalizeBasePath(tc.in); got != tc.want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
