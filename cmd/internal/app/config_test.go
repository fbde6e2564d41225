package app

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("log defaults: level=%q format=%q", cfg.LogLevel, cfg.LogFormat)
	}
	// The HTTP write timeout must exceed the long-poll ceiling, otherwise the
	// server cuts every poll off mid-wait.
	if cfg.WriteTimeout <= 25*time.Second {
		t.Fatalf("WriteTimeout=%v must exceed the poll ceiling", cfg.WriteTimeout)
	}
	if cfg.SendQueueSize <= 0 {
		t.Fatalf("SendQueueSize=%d", cfg.SendQueueSize)
	}
	if cfg.LivenessWindow <= cfg.SweepInterval {
		t.Fatalf("liveness window %v should exceed sweep interval %v", cfg.LivenessWindow, cfg.SweepInterval)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RIPPLE_HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("RIPPLE_LOG_LEVEL", "debug")
	t.Setenv("RIPPLE_SEND_QUEUE", "64")
	t.Setenv("RIPPLE_LIVENESS_WINDOW", "90s")
	t.Setenv("RIPPLE_READINESS_REQUIRE_DB", "true")
	t.Setenv("RIPPLE_STATIC_TOKENS", "tok=alice")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9090" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel=%q", cfg.LogLevel)
	}
	if cfg.SendQueueSize != 64 {
		t.Fatalf("SendQueueSize=%d", cfg.SendQueueSize)
	}
	if cfg.LivenessWindow != 90*time.Second {
		t.Fatalf("LivenessWindow=%v", cfg.LivenessWindow)
	}
	if !cfg.ReadinessRequireDB {
		t.Fatal("ReadinessRequireDB not applied")
	}
	if cfg.StaticTokens != "tok=alice" {
		t.Fatalf("StaticTokens=%q", cfg.StaticTokens)
	}
}

func TestParseStaticTokens(t *testing.T) {
	got := parseStaticTokens(" tok1=alice, tok2=bob ,bad,=nouser,notoken= ")

	if len(got) != 2 || got["tok1"] != "alice" || got["tok2"] != "bob" {
		t.Fatalf("parsed=%v want tok1/tok2 only", got)
	}
	if got := parseStaticTokens(""); len(got) != 0 {
		t.Fatalf("empty input parsed to %v", got)
	}
}
