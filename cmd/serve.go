package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"siteledger/internal/config"
	"siteledger/internal/infrastructure"
	"siteledger/internal/interfaces"
	httpapi "siteledger/internal/interfaces/http"
	"siteledger/internal/repository"
	"siteledger/internal/usecases"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and the configured chat transports",
	RunE:  runServe,
}

// storage is what serve needs from the selected store.
type storage interface {
	interfaces.Store
	interfaces.UsageStore
}

func openStore(ctx context.Context) (storage, func(), error) {
	if cfg.Database.Store == config.StoreMemory {
		logger.Warn("using the in-memory store; data is lost on exit")
		return repository.NewMemoryStore(), func() {}, nil
	}

	if cfg.Database.MigrateOnStart {
		if err := infrastructure.Migrate(ctx, cfg.Database.DSN, logger); err != nil {
			return nil, nil, err
		}
	}
	pool, err := infrastructure.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresStore(pool), pool.Close, nil
}

func loadRules() (*config.Rules, error) {
	if cfg.Bot.RulesPath != "" {
		return config.LoadRules(cfg.Bot.RulesPath, cfg.Bot.ProductName)
	}
	return config.DefaultRules(cfg.Bot.ProductName), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rules, err := loadRules()
	if err != nil {
		return err
	}

	var opts []usecases.MessageServiceOption
	if cfg.AI.GeminiAPIKey != "" {
		gemini, err := infrastructure.NewGeminiClient(ctx, cfg.AI)
		if err != nil {
			return err
		}
		opts = append(opts, usecases.WithAIClient(gemini))
		logger.Info("ai fallback enabled", zap.String("model", cfg.AI.Model))
	}
	engine := usecases.NewMessageService(store, rules, cfg.Bot, logger, opts...)

	deps := httpapi.Deps{
		Engine:         engine,
		Auth:           usecases.NewAuthUsecase(cfg.Auth),
		Audit:          store,
		Usage:          store,
		Limiter:        infrastructure.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
		TelegramSecret: cfg.Telegram.WebhookSecret,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Logger:         logger,
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Telegram.BotToken != "" {
		tg, err := infrastructure.NewTelegramClient(cfg.Telegram.BotToken, logger)
		if err != nil {
			return err
		}
		if cfg.Telegram.Webhook {
			deps.Telegram = tg
		} else {
			g.Go(func() error { return tg.Poll(ctx, engine.ProcessMessage) })
		}
		logger.Info("telegram enabled", zap.String("bot", tg.BotName()), zap.Bool("webhook", cfg.Telegram.Webhook))
	}

	if cfg.WhatsApp.Enabled {
		wa, err := infrastructure.NewWhatsAppClient(ctx, cfg.WhatsApp.DeviceDB, logger)
		if err != nil {
			return err
		}
		deps.WhatsApp = wa
		g.Go(func() error { return wa.Run(ctx, engine.ProcessMessage) })
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	httpapi.SetupRoutes(router, deps)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
