package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/provider"
)

const fullProviders = `
timeout: 3s
apple:
  app_id: com.example.game
google_play:
  client_id: play-client
  client_secret: ${TEST_PLAY_SECRET}
  application_id: "123456"
facebook:
  app_id: "987"
steam:
  app_id: "480"
  api_key: ${TEST_STEAM_KEY}
cognito:
  region: us-east-1
  user_pool_id: us-east-1_abc
`

func TestParseProvidersBuildsRegistry(t *testing.T) {
	t.Setenv("TEST_PLAY_SECRET", "play-secret")
	t.Setenv("TEST_STEAM_KEY", "steam-key")

	pf, err := parseProviders([]byte(fullProviders))
	if err != nil {
		t.Fatalf("parseProviders failed: %v", err)
	}
	if pf.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %v", pf.Timeout)
	}
	if pf.Steam.APIKey != "steam-key" {
		t.Fatalf("env expansion not applied: %q", pf.Steam.APIKey)
	}

	reg, err := pf.registry()
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}
	want := []provider.Provider{provider.Apple, provider.Cognito, provider.Facebook, provider.GooglePlay, provider.Steam}
	if got := reg.Names(); !slices.Equal(got, want) {
		t.Fatalf("unexpected providers %v, want %v", got, want)
	}
}

func TestProvidersMissingSecretFails(t *testing.T) {
	t.Setenv("TEST_STEAM_KEY", "")

	pf, err := parseProviders([]byte("steam:\n  app_id: \"480\"\n  api_key: ${TEST_STEAM_KEY}\n"))
	if err != nil {
		t.Fatalf("parseProviders failed: %v", err)
	}
	if _, err := pf.registry(); err == nil {
		t.Fatal("expected error for steam without api key")
	}
}

func TestEmptyProvidersFile(t *testing.T) {
	pf, err := parseProviders(nil)
	if err != nil {
		t.Fatalf("parseProviders failed: %v", err)
	}
	if pf.Timeout != 5*time.Second {
		t.Fatalf("expected default timeout, got %v", pf.Timeout)
	}
	reg, err := pf.registry()
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}
	if len(reg.Names()) != 0 {
		t.Fatalf("expected no providers, got %v", reg.Names())
	}

	var nilFile *providersFile
	if reg, err := nilFile.registry(); err != nil || len(reg.Names()) != 0 {
		t.Fatalf("nil providers file must yield an empty registry, got %v %v", reg, err)
	}
}

func TestLoadProvidersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	if err := os.WriteFile(path, []byte("facebook:\n  app_id: \"42\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	pf, err := loadProvidersFile(path)
	if err != nil {
		t.Fatalf("loadProvidersFile failed: %v", err)
	}
	if pf.Facebook == nil || pf.Facebook.AppID != "42" {
		t.Fatalf("unexpected facebook section %+v", pf.Facebook)
	}

	if _, err := loadProvidersFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("apple: [unterminated"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadProvidersFile(bad); err == nil {
		t.Fatal("expected parse error")
	}
}
