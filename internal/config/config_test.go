package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LEDGER_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Credit.DailyLimit != 150 || cfg.Credit.PrincipalLimit != 400 {
		t.Errorf("credit limits = %v/%v, want 150/400", cfg.Credit.DailyLimit, cfg.Credit.PrincipalLimit)
	}
	if cfg.Ledger.IDPrefix != "DEBT-" {
		t.Errorf("IDPrefix = %q, want DEBT-", cfg.Ledger.IDPrefix)
	}
	if cfg.Rates.Timeout != 5*time.Second {
		t.Errorf("Rates.Timeout = %v, want 5s", cfg.Rates.Timeout)
	}
	if cfg.Rates.LookbackDays != 5 {
		t.Errorf("LookbackDays = %d, want 5", cfg.Rates.LookbackDays)
	}
	if cfg.Sheets.DebtsTab != "Debts" {
		t.Errorf("DebtsTab = %q, want Debts", cfg.Sheets.DebtsTab)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[credit]
daily_limit = 146
principal_limit = 391

[ledger]
local_currency = "VES"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEDGER_CONFIG", path)
	t.Setenv("LEDGER_CREDIT_PRINCIPAL_LIMIT", "500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Credit.DailyLimit != 146 {
		t.Errorf("DailyLimit = %v, want 146 from file", cfg.Credit.DailyLimit)
	}
	if cfg.Credit.PrincipalLimit != 500 {
		t.Errorf("PrincipalLimit = %v, want 500 from env", cfg.Credit.PrincipalLimit)
	}
	if cfg.Ledger.LocalCurrency != "VES" {
		t.Errorf("LocalCurrency = %q, want VES", cfg.Ledger.LocalCurrency)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("LEDGER_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"negative limit", func(c *Config) { c.Credit.DailyLimit = -1 }, true},
		{"empty prefix", func(c *Config) { c.Ledger.IDPrefix = "" }, true},
		{"negative lookback", func(c *Config) { c.Rates.LookbackDays = -2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{Ledger: LedgerConfig{IDPrefix: "DEBT-"}}
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGeminiAPIKey(t *testing.T) {
	t.Setenv("MY_KEY", "from-env")
	c := Config{Gemini: GeminiConfig{APIKeyEnv: "MY_KEY"}}
	if got := c.GeminiAPIKey(); got != "from-env" {
		t.Errorf("GeminiAPIKey() = %q, want from-env", got)
	}
	c.Gemini.APIKey = "explicit"
	if got := c.GeminiAPIKey(); got != "explicit" {
		t.Errorf("GeminiAPIKey() = %q, want explicit", got)
	}
}
