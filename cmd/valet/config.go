package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Config holds all valet configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath        string            `json:"db_path"`
	RedisAddr     string            `json:"redis_addr"`
	LogLevel      string            `json:"log_level"`
	AnthropicKey  string            `json:"anthropic_api_key"`
	ContactsURL   string            `json:"contacts_url"`
	SweepSchedule string            `json:"sweep_schedule"`
	// VaultPassphrase unlocks the encrypted bridge credential vault.
	// Bridge header values of the form "vault:KEY" resolve through it.
	VaultPassphrase string `json:"vault_passphrase"`
	VaultSalt       string `json:"vault_salt"`
	// Bridges maps a step type to the operation service that executes it,
	// e.g. {"email": "http://localhost:4310/email"}.
	Bridges map[string]string `json:"bridges"`
	// BridgeHeaders are sent on every bridge request (service tokens).
	BridgeHeaders map[string]string `json:"bridge_headers"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(valetDir(), "valet.db"),
		LogLevel: "info",
	}
}

func valetDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".valet"
	}
	return filepath.Join(home, ".valet")
}

func settingsPath() string {
	return filepath.Join(valetDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("VALET_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("VALET_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("VALET_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicKey = v
	}
	if v := os.Getenv("VALET_CONTACTS_URL"); v != "" {
		cfg.ContactsURL = v
	}
	if v := os.Getenv("VALET_SWEEP_SCHEDULE"); v != "" {
		cfg.SweepSchedule = v
	}
	if v := os.Getenv("VALET_VAULT_PASSPHRASE"); v != "" {
		cfg.VaultPassphrase = v
	}
	if v := os.Getenv("VALET_VAULT_SALT"); v != "" {
		cfg.VaultSalt = v
	}
	// VALET_BRIDGE_EMAIL=http://... style overrides, one per step type.
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "VALET_BRIDGE_") || value == "" {
			continue
		}
		if cfg.Bridges == nil {
			cfg.Bridges = make(map[string]string)
		}
		stepType := strings.ToLower(strings.TrimPrefix(name, "VALET_BRIDGE_"))
		cfg.Bridges[stepType] = value
	}

	return cfg
}
