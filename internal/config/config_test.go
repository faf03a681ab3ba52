package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerAddr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.ServerAddr)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("expected 15m access TTL, got %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 10*24*time.Hour {
		t.Errorf("expected 240h refresh TTL, got %v", cfg.RefreshTokenTTL)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("expected bcrypt cost 12, got %d", cfg.BcryptCost)
	}
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		t.Error("token secrets must never be empty")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		t.Error("access and refresh secrets must differ by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("REFRESH_TOKEN_TTL", "72h")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")

	cfg := Load()

	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Errorf("expected 5m, got %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 72*time.Hour {
		t.Errorf("expected 72h, got %v", cfg.RefreshTokenTTL)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("expected cost 10, got %d", cfg.BcryptCost)
	}
	if cfg.AccessTokenSecret != "access-secret" {
		t.Errorf("secret override not applied")
	}
}

func TestLoadCORSOrigins(t *testing.T) {
	cfg := Load()
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("expected default wildcard origin, got %v", cfg.CORSOrigins)
	}

	t.Setenv("CORS_ORIGIN", "https://app.example.com, https://admin.example.com")
	cfg = Load()
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.example.com" {
		t.Errorf("expected two trimmed origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "not-a-duration")
	t.Setenv("BCRYPT_COST", "99")

	cfg := Load()

	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("bad duration should fall back to default, got %v", cfg.AccessTokenTTL)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("out-of-range cost should fall back to default, got %d", cfg.BcryptCost)
	}
}
