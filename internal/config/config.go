// Package config loads the ledger configuration from a TOML file and LEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Sheets   SheetsConfig   `mapstructure:"sheets"`
	Credit   CreditConfig   `mapstructure:"credit"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Rates    RatesConfig    `mapstructure:"rates"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Notion   NotionConfig   `mapstructure:"notion"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// SheetsConfig locates the spreadsheet and its two worksheets.
type SheetsConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	DebtsTab        string `mapstructure:"debts_tab"`
	TransactionsTab string `mapstructure:"transactions_tab"`
}

// CreditConfig holds the revolving limits. They are point-in-time values.
type CreditConfig struct {
	DailyLimit     float64 `mapstructure:"daily_limit"`
	PrincipalLimit float64 `mapstructure:"principal_limit"`
}

// LedgerConfig holds ID and currency conventions.
type LedgerConfig struct {
	IDPrefix      string `mapstructure:"id_prefix"`
	LocalCurrency string `mapstructure:"local_currency"`
	LocalLocation string `mapstructure:"local_location"`
}

// RatesConfig configures the exchange-rate provider.
type RatesConfig struct {
	CurrentURL    string        `mapstructure:"current_url"`
	HistoricalURL string        `mapstructure:"historical_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	LookbackDays  int           `mapstructure:"lookback_days"`
	ManualRate    float64       `mapstructure:"manual_rate"`
}

// RedisConfig enables the shared last-known rate cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// GeminiConfig holds classifier settings.
type GeminiConfig struct {
	APIKeyEnv string `mapstructure:"api_key_env"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
}

// BigQueryConfig holds the analytics mirror target.
type BigQueryConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Dataset   string `mapstructure:"dataset"`
}

// GCSConfig holds the backup bucket.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// NotionConfig holds the reporting database.
type NotionConfig struct {
	TokenEnv   string `mapstructure:"token_env"`
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`

	// TransactionsDatabaseID receives the exported transaction log; empty disables it.
	TransactionsDatabaseID string `mapstructure:"transactions_database_id"`
	SyncDays               int    `mapstructure:"sync_days"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	Workers     int    `mapstructure:"workers"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and env. Env var overrides use prefix LEDGER_,
// e.g. LEDGER_CREDIT_DAILY_LIMIT=160.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	cfgPath := os.Getenv("LEDGER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "finance-ledger"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicit LEDGER_CONFIG must exist; the default location is optional
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("Load: reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("Load: unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sheets.credentials_file", "")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.debts_tab", "Debts")
	v.SetDefault("sheets.transactions_tab", "Transactions")

	v.SetDefault("credit.daily_limit", 150.0)
	v.SetDefault("credit.principal_limit", 400.0)

	v.SetDefault("ledger.id_prefix", "DEBT-")
	v.SetDefault("ledger.local_currency", "Bs")
	v.SetDefault("ledger.local_location", "Venezuela")

	v.SetDefault("rates.current_url", "https://api.exchangerate-api.com/v4/latest/USD")
	v.SetDefault("rates.historical_url", "https://api.dolarvzla.com/public/exchange-rate/list")
	v.SetDefault("rates.timeout", "5s")
	v.SetDefault("rates.lookback_days", 5)
	v.SetDefault("rates.manual_rate", 0.0)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "finance-ledger:rate:last")
	v.SetDefault("redis.ttl", "72h")

	v.SetDefault("gemini.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")

	v.SetDefault("bigquery.project_id", "")
	v.SetDefault("bigquery.dataset", "finance_ledger")

	v.SetDefault("gcs.bucket", "")

	v.SetDefault("notion.token_env", "NOTION_TOKEN")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.transactions_database_id", "")
	v.SetDefault("notion.sync_days", 30)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.workers", 2)
	v.SetDefault("server.max_attempts", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	if c.Credit.DailyLimit < 0 || c.Credit.PrincipalLimit < 0 {
		return fmt.Errorf("Validate: credit limits must not be negative")
	}
	if c.Ledger.IDPrefix == "" {
		return fmt.Errorf("Validate: ledger.id_prefix is empty")
	}
	if c.Rates.LookbackDays < 0 {
		return fmt.Errorf("Validate: rates.lookback_days must not be negative")
	}
	return nil
}

// GeminiAPIKey returns the explicit key, else the one named by api_key_env.
func (c Config) GeminiAPIKey() string {
	if c.Gemini.APIKey != "" {
		return c.Gemini.APIKey
	}
	return os.Getenv(c.Gemini.APIKeyEnv)
}

// NotionToken returns the explicit token, else the one named by token_env.
func (c Config) NotionToken() string {
	if c.Notion.Token != "" {
		return c.Notion.Token
	}
	return os.Getenv(c.Notion.TokenEnv)
}
