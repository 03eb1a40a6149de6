package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "REDIS_URL", "DATABASE_URL", "SQLITE_PATH", "LLM_BACKEND", "ENV"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.StoreBackend != StoreMemory {
		t.Fatalf("expected memory backend, got %q", cfg.StoreBackend)
	}
	if cfg.ReadReceiptLimit != 10 || cfg.ReadReceiptWindow != time.Second {
		t.Fatalf("unexpected read receipt limits %d/%s", cfg.ReadReceiptLimit, cfg.ReadReceiptWindow)
	}
	if cfg.GenerationTimeout != 30*time.Second || cfg.AgentHistorySize != 5 {
		t.Fatalf("unexpected agent defaults %s/%d", cfg.GenerationTimeout, cfg.AgentHistorySize)
	}
	if cfg.LLMBackend != LLMMock || !cfg.IsDevelopment() || cfg.AuthEnabled() {
		t.Fatal("unexpected development defaults")
	}
}

func TestLoadInfersBackendAndParses(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("READ_RECEIPT_WINDOW", "2500")
	t.Setenv("AGENT_RESPONSE_DELAY", "250ms")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.0/8, 127.0.0.1 ,")
	t.Setenv("AUTH_USER", "team")
	t.Setenv("AUTH_PASSWORD", "secret")

	cfg := Load()
	if cfg.StoreBackend != StoreRedis {
		t.Fatalf("expected redis, got %q", cfg.StoreBackend)
	}
	if cfg.ReadReceiptWindow != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s, got %s", cfg.ReadReceiptWindow)
	}
	if cfg.AgentResponseDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.AgentResponseDelay)
	}
	if len(cfg.RateLimitWhitelist) != 2 || cfg.RateLimitWhitelist[1] != "127.0.0.1" {
		t.Fatalf("unexpected whitelist %v", cfg.RateLimitWhitelist)
	}
	if !cfg.AuthEnabled() {
		t.Fatal("expected auth enabled")
	}
}

func TestLoadProductionRequiresPersistentStore(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LLM_BACKEND", "vertex")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for memory store in production")
		}
	}()
	Load()
}
