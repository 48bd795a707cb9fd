package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1..65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		errs = append(errs, errors.New("server.rate_limit and server.rate_burst must be positive"))
	}

	switch c.Database.Store {
	case StorePostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres store"))
		}
		if c.Database.MinConns > c.Database.MaxConns {
			errs = append(errs, errors.New("database.min_conns exceeds max_conns"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("database.store must be %q or %q, got %q", StorePostgres, StoreMemory, c.Database.Store))
	}

	if strings.TrimSpace(c.Bot.ProductName) == "" {
		errs = append(errs, errors.New("bot.product_name is required"))
	}
	if len(c.Bot.DefaultCurrency) != 3 {
		errs = append(errs, fmt.Errorf("bot.default_currency must be a 3-letter code, got %q", c.Bot.DefaultCurrency))
	}
	switch c.Bot.DefaultLanguage {
	case "en", "id":
	default:
		errs = append(errs, fmt.Errorf("bot.default_language must be en or id, got %q", c.Bot.DefaultLanguage))
	}

	if c.Auth.AdminPasswordHash != "" && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when an admin password hash is set"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}

	if c.Telegram.Webhook && c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token is required for the telegram webhook"))
	}
	if c.WhatsApp.Enabled && c.WhatsApp.DeviceDB == "" {
		errs = append(errs, errors.New("whatsapp.device_db is required when whatsapp is enabled"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
