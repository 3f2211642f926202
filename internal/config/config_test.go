package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SESSION_SECRET", "test-secret"); err != nil {
		t.Fatalf("Failed to set SESSION_SECRET: %v", err)
	}
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	if err := os.Setenv("SESSION_TOKEN_TTL", "30m"); err != nil {
		t.Fatalf("Failed to set SESSION_TOKEN_TTL: %v", err)
	}
	if err := os.Setenv("SUPPORTED_CHAIN_IDS", "1, 10,8453"); err != nil {
		t.Fatalf("Failed to set SUPPORTED_CHAIN_IDS: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SESSION_SECRET")
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
		_ = os.Unsetenv("SESSION_TOKEN_TTL")
		_ = os.Unsetenv("SUPPORTED_CHAIN_IDS")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Session.TokenTTL != 30*time.Minute {
		t.Errorf("Session.TokenTTL = %v, want %v", cfg.Session.TokenTTL, 30*time.Minute)
	}

	wantChains := []int{1, 10, 8453}
	if len(cfg.SIWE.SupportedChainIDs) != len(wantChains) {
		t.Fatalf("SIWE.SupportedChainIDs = %v, want %v", cfg.SIWE.SupportedChainIDs, wantChains)
	}
	for i, id := range wantChains {
		if cfg.SIWE.SupportedChainIDs[i] != id {
			t.Errorf("SIWE.SupportedChainIDs[%d] = %v, want %v", i, cfg.SIWE.SupportedChainIDs[i], id)
		}
	}
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	_ = os.Unsetenv("SESSION_SECRET")

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() expected error when SESSION_SECRET is unset")
	}
}

func TestGetEnvAsIntSlice(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue []int
		want         []int
	}{
		{
			name:         "parses comma separated values",
			envValue:     "1,8453",
			defaultValue: []int{1},
			want:         []int{1, 8453},
		},
		{
			name:         "returns default when unset",
			envValue:     "",
			defaultValue: []int{1},
			want:         []int{1},
		},
		{
			name:         "returns default on invalid entry",
			envValue:     "1,abc",
			defaultValue: []int{1},
			want:         []int{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv("TEST_CHAIN_IDS", tt.envValue); err != nil {
					t.Fatalf("Failed to set TEST_CHAIN_IDS: %v", err)
				}
				defer func() { _ = os.Unsetenv("TEST_CHAIN_IDS") }()
			}

			got := getEnvAsIntSlice("TEST_CHAIN_IDS", tt.defaultValue)
			if len(got) != len(tt.want) {
				t.Fatalf("getEnvAsIntSlice() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("getEnvAsIntSlice()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
