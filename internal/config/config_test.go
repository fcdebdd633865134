package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address: %s", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "gridstone.db" {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.TokenTTL != 60*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.ViewerScope != "all" {
		t.Fatalf("unexpected viewer scope: %s", cfg.ViewerScope)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected error without signing secret")
	}
}

func TestLoadRejectsUnknownViewerScope(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("records.viewer_scope", "everyone")

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for unknown viewer scope")
	}
}

func TestLoadAcceptsOwnViewerScope(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("records.viewer_scope", "own")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ViewerScope != "own" {
		t.Fatalf("unexpected viewer scope: %s", cfg.ViewerScope)
	}
}

func TestLoadOverrides(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("http.address", "127.0.0.1:9999")
	configViper.Set("auth.token_ttl_minutes", 15)

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9999" {
		t.Fatalf("unexpected http address: %s", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 15*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
}
