package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Env        string
	Port       string
	DB         DBConfig
	Auth       AuthConfig
	Payment    PaymentConfig
	Settlement SettlementConfig
	Mail       MailConfig
	Assistant  AssistantConfig
}

type DBConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns a lib/pq connection string.
func (c DBConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Name, c.SSLMode)
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	return dsn
}

type AuthConfig struct {
	JWTSecret      string
	AdminJWTSecret string
	TokenTTL       time.Duration
}

type PaymentConfig struct {
	AccessToken    string
	LocationID     string
	Environment    string
	BaseURL        string
	MaxAmountMinor int64
	Timeout        time.Duration
}

type SettlementConfig struct {
	ClaimTTL           time.Duration
	TransferFeePercent decimal.Decimal
	OrderCurrency      string
}

type MailConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	OpsAddress   string
	RateCurrency string
}

type AssistantConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("SERVER_PORT", "8080")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "remit")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("TOKEN_TTL", "24h")

	v.SetDefault("PAYMENT_ENVIRONMENT", "sandbox")
	v.SetDefault("PAYMENT_MAX_AMOUNT_MINOR", int64(100000000))
	v.SetDefault("PAYMENT_TIMEOUT", "30s")

	v.SetDefault("SETTLEMENT_CLAIM_TTL", "10m")
	v.SetDefault("TRANSFER_FEE_PERCENT", "0")
	v.SetDefault("ORDER_DEFAULT_CURRENCY", "CAD")

	v.SetDefault("MAIL_PORT", 587)
	v.SetDefault("MAIL_FROM", "no-reply@remit.local")
	v.SetDefault("MAIL_RATE_CURRENCY", "BIF")

	v.SetDefault("ASSISTANT_MODEL", "gpt-4o-mini")
	v.SetDefault("ASSISTANT_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("ASSISTANT_MAX_TOKENS", 500)
}

// Load reads .env (when present) and the process environment.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	feePercent, err := decimal.NewFromString(strings.TrimSpace(v.GetString("TRANSFER_FEE_PERCENT")))
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSFER_FEE_PERCENT: %w", err)
	}
	if feePercent.IsNegative() {
		return nil, fmt.Errorf("TRANSFER_FEE_PERCENT must not be negative")
	}

	cfg := &Config{
		Env:  v.GetString("APP_ENV"),
		Port: v.GetString("SERVER_PORT"),
		DB: DBConfig{
			Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Auth: AuthConfig{
			JWTSecret:      v.GetString("JWT_SECRET"),
			AdminJWTSecret: v.GetString("ADMIN_JWT_SECRET"),
			TokenTTL:       v.GetDuration("TOKEN_TTL"),
		},
		Payment: PaymentConfig{
			AccessToken:    v.GetString("PAYMENT_ACCESS_TOKEN"),
			LocationID:     v.GetString("PAYMENT_LOCATION_ID"),
			Environment:    v.GetString("PAYMENT_ENVIRONMENT"),
			BaseURL:        v.GetString("PAYMENT_BASE_URL"),
			MaxAmountMinor: v.GetInt64("PAYMENT_MAX_AMOUNT_MINOR"),
			Timeout:        v.GetDuration("PAYMENT_TIMEOUT"),
		},
		Settlement: SettlementConfig{
			ClaimTTL:           v.GetDuration("SETTLEMENT_CLAIM_TTL"),
			TransferFeePercent: feePercent,
			OrderCurrency:      strings.ToUpper(v.GetString("ORDER_DEFAULT_CURRENCY")),
		},
		Mail: MailConfig{
			Host:         v.GetString("MAIL_HOST"),
			Port:         v.GetInt("MAIL_PORT"),
			Username:     v.GetString("MAIL_USERNAME"),
			Password:     v.GetString("MAIL_PASSWORD"),
			From:         v.GetString("MAIL_FROM"),
			OpsAddress:   v.GetString("MAIL_OPS_ADDRESS"),
			RateCurrency: strings.ToUpper(v.GetString("MAIL_RATE_CURRENCY")),
		},
		Assistant: AssistantConfig{
			APIKey:    v.GetString("ASSISTANT_API_KEY"),
			Model:     v.GetString("ASSISTANT_MODEL"),
			BaseURL:   v.GetString("ASSISTANT_BASE_URL"),
			MaxTokens: v.GetInt("ASSISTANT_MAX_TOKENS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required")
	}
	if c.Auth.AdminJWTSecret == c.Auth.JWTSecret {
		return fmt.Errorf("ADMIN_JWT_SECRET must differ from JWT_SECRET")
	}
	if c.DB.Driver != "postgres" && c.DB.Driver != "memory" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.Payment.MaxAmountMinor <= 0 {
		return fmt.Errorf("PAYMENT_MAX_AMOUNT_MINOR must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
