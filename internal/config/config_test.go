package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":             "postgres://localhost/keranjang",
		"REDIS_URL":                "redis://localhost:6379",
		"JWT_SECRET":               "secret",
		"PORT":                     "",
		"CART_SESSION_TTL":         "",
		"PRICING_STALENESS_WINDOW": "",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("session ttl default = %s", cfg.SessionTTL)
	}
	if cfg.StalenessWindow != 5*time.Minute {
		t.Fatalf("staleness default = %s", cfg.StalenessWindow)
	}
	if cfg.HTTPAddr() != ":8080" {
		t.Fatalf("addr = %s", cfg.HTTPAddr())
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL": "",
		"REDIS_URL":    "redis://localhost:6379",
		"JWT_SECRET":   "secret",
	})
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":             "postgres://localhost/keranjang",
		"REDIS_URL":                "redis://localhost:6379",
		"JWT_SECRET":               "secret",
		"CART_SESSION_TTL":         "45m",
		"PRICING_STALENESS_WINDOW": "90s",
		"VOUCHER_APPLY_PER_MINUTE": "3",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionTTL != 45*time.Minute {
		t.Fatalf("session ttl = %s", cfg.SessionTTL)
	}
	if cfg.StalenessWindow != 90*time.Second {
		t.Fatalf("staleness = %s", cfg.StalenessWindow)
	}
	if cfg.VoucherApplyPerMinute != 3 {
		t.Fatalf("voucher limit = %d", cfg.VoucherApplyPerMinute)
	}
}
