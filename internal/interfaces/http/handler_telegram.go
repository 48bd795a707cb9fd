package http

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"siteledger/internal/interfaces"
)

const headerTelegramSecret = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler runs a Telegram update through the engine and replies in chat.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update, handle interfaces.InboundHandler)
}

// TelegramHandler receives Bot API webhook calls.
type TelegramHandler struct {
	updates UpdateHandler
	engine  MessageProcessor
	secret  string
	logger  *zap.Logger
}

func NewTelegramHandler(updates UpdateHandler, engine MessageProcessor, secret string, logger *zap.Logger) *TelegramHandler {
	return &TelegramHandler{
		updates: updates,
		engine:  engine,
		secret:  secret,
		logger:  logger.With(zap.String("component", "telegram_webhook")),
	}
}

// HandleWebhook answers 200 for every well-authenticated call, including
// updates it cannot parse, so Telegram does not redeliver them.
func (h *TelegramHandler) HandleWebhook(c *gin.Context) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(headerTelegramSecret)), []byte(h.secret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret token"})
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn("undecodable telegram update", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	h.updates.HandleUpdate(c.Request.Context(), update, h.engine.ProcessMessage)
	c.Status(http.StatusOK)
}
