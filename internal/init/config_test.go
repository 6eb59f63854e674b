package config

import (
	"net/http"
	"testing"
	"time"
)

func TestInit_EnvOverrides(t *testing.T) {
	t.Setenv("MODE", "web")
	t.Setenv("BACKEND_URL", "http://api.local:8080/")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("ACCESS_TOKEN_TTL", "not-a-duration")
	t.Setenv("COOKIE_SAMESITE", "Strict")
	t.Setenv("SINGLE_USE_REFRESH", "true")

	cfg := Init()
	if Get() != cfg {
		t.Fatal("Get must return the loaded config")
	}

	if cfg.Mode != "web" {
		t.Errorf("Mode = %q, want web", cfg.Mode)
	}
	if cfg.BackendURL != "http://api.local:8080" {
		t.Errorf("BackendURL = %q, trailing slash must be trimmed", cfg.BackendURL)
	}
	if cfg.GatewayTimeout != 3*time.Second {
		t.Errorf("GatewayTimeout = %v, want 3s", cfg.GatewayTimeout)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Errorf("AccessTokenTTL = %v, invalid values fall back to 1h", cfg.AccessTokenTTL)
	}
	if cfg.CookieSameSite != http.SameSiteStrictMode {
		t.Errorf("CookieSameSite = %v, want Strict", cfg.CookieSameSite)
	}
	if !cfg.SingleUseRefresh {
		t.Error("SingleUseRefresh should be enabled")
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 168h default", cfg.RefreshTokenTTL)
	}
}

func TestParseSameSite(t *testing.T) {
	cases := map[string]http.SameSite{
		"strict": http.SameSiteStrictMode,
		" none ": http.SameSiteNoneMode,
		"lax":    http.SameSiteLaxMode,
		"":       http.SameSiteLaxMode,
		"bogus":  http.SameSiteLaxMode,
	}
	for in, want := range cases {
		if got := parseSameSite(in); got != want {
			t.Errorf("parseSameSite(%q) = %v, want %v", in, got, want)
		}
	}
}
