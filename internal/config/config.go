// Package config loads process configuration and the static rule tables the
// command engine runs on.
package config

import "time"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Bot      BotConfig      `yaml:"bot"`
	Auth     AuthConfig     `yaml:"auth"`
	Telegram TelegramConfig `yaml:"telegram"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	AI       AIConfig       `yaml:"ai"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"   env:"SERVER_MAX_BODY_BYTES"   env-default:"1048576"`
	RateLimit       float64       `yaml:"rate_limit"       env:"SERVER_RATE_LIMIT"       env-default:"5"`
	RateBurst       int           `yaml:"rate_burst"       env:"SERVER_RATE_BURST"       env-default:"10"`
}

// DatabaseConfig holds store settings.
type DatabaseConfig struct {
	Store           string        `yaml:"store"              env:"SITELEDGER_STORE"            env-default:"postgres"`
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"   env:"DATABASE_MIGRATE_ON_START"   env-default:"true"`
}

// BotConfig holds conversational defaults.
type BotConfig struct {
	ProductName     string `yaml:"product_name"     env:"BOT_PRODUCT_NAME"     env-default:"SiteLedger"`
	DefaultCurrency string `yaml:"default_currency" env:"BOT_DEFAULT_CURRENCY" env-default:"IDR"`
	DefaultLanguage string `yaml:"default_language" env:"BOT_DEFAULT_LANGUAGE" env-default:"en"`
	RulesPath       string `yaml:"rules_path"       env:"BOT_RULES_PATH"`
}

// AuthConfig protects the admin API.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"          env:"AUTH_JWT_SECRET"`
	JWTIssuer         string        `yaml:"jwt_issuer"          env:"AUTH_JWT_ISSUER"          env-default:"siteledger"`
	TokenTTL          time.Duration `yaml:"token_ttl"           env:"AUTH_TOKEN_TTL"           env-default:"24h"`
	AdminUsername     string        `yaml:"admin_username"      env:"AUTH_ADMIN_USERNAME"      env-default:"admin"`
	AdminPasswordHash string        `yaml:"admin_password_hash" env:"AUTH_ADMIN_PASSWORD_HASH"`
}

// Enabled reports whether the admin API can issue tokens.
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
}

// TelegramConfig configures the optional Telegram transport. Without
// Webhook the bot long-polls.
type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"      env:"TELEGRAM_BOT_TOKEN"`
	Webhook       bool   `yaml:"webhook"        env:"TELEGRAM_WEBHOOK"        env-default:"false"`
	WebhookSecret string `yaml:"webhook_secret" env:"TELEGRAM_WEBHOOK_SECRET"`
}

// WhatsAppConfig configures the optional whatsmeow device client.
type WhatsAppConfig struct {
	Enabled  bool   `yaml:"enabled"   env:"WHATSAPP_ENABLED"   env-default:"false"`
	DeviceDB string `yaml:"device_db" env:"WHATSAPP_DEVICE_DB" env-default:"devices/whatsapp.db"`
}

// AIConfig configures the optional fallback for unrecognized messages.
type AIConfig struct {
	GeminiAPIKey string        `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	Model        string        `yaml:"model"          env:"AI_MODEL"       env-default:"gemini-2.5-flash"`
	Timeout      time.Duration `yaml:"timeout"        env:"AI_TIMEOUT"     env-default:"8s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
