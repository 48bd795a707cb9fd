package http

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"siteledger/internal/entities"
	"siteledger/internal/interfaces"
)

// MessageProcessor is the command engine as seen by the transports.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, msg entities.InboundMessage) (entities.Response, error)
}

// Deps carries everything the routes need. Nil Telegram or WhatsApp
// disables their routes.
type Deps struct {
	Engine         MessageProcessor
	Auth           Authenticator
	Audit          interfaces.AuditStore
	Usage          interfaces.UsageStore
	Limiter        Limiter
	Telegram       UpdateHandler
	TelegramSecret string
	WhatsApp       QRSource
	MaxBodyBytes   int64
	Logger         *zap.Logger
}

type Handler struct {
	engine MessageProcessor
	logger *zap.Logger
	now    func() time.Time
}

func NewHandler(engine MessageProcessor, logger *zap.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger.With(zap.String("component", "webhook")),
		now:    time.Now,
	}
}

func SetupRoutes(r *gin.Engine, deps Deps) {
	mw := NewMiddleware(deps.Auth, deps.Limiter, deps.Logger)
	h := NewHandler(deps.Engine, deps.Logger)
	admin := NewAdminHandler(deps.Auth, deps.Audit, deps.Usage, deps.WhatsApp)

	r.Use(mw.RequestID())
	r.Use(mw.AccessLog())
	r.Use(mw.Recovery())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(deps.MaxBodyBytes))

	r.GET("/healthz", admin.Health)

	// Transport webhooks
	r.POST("/webhook/whatsapp", mw.WebhookRecovery(ackTwiML), h.HandleWhatsAppWebhook)
	if deps.Telegram != nil {
		tg := NewTelegramHandler(deps.Telegram, deps.Engine, deps.TelegramSecret, deps.Logger)
		r.POST("/webhook/telegram", mw.WebhookRecovery(ackEmpty), tg.HandleWebhook)
	}

	// Public Auth Routes
	authGroup := r.Group("/api/auth")
	authGroup.Use(mw.RateLimit())
	{
		authGroup.POST("/login", admin.Login)
	}

	// Protected admin routes
	api := r.Group("/api")
	api.Use(mw.AuthRequired())
	api.Use(mw.RateLimit())
	{
		api.GET("/messages/:external_id", admin.GetMessage)
		api.GET("/usage", admin.GetUsage)
		api.GET("/whatsapp/qr", admin.GetWhatsAppQR)
	}
}

// twimlResponse is the Twilio Messaging reply envelope. No messages renders
// an empty <Response>, which tells Twilio not to answer.
type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// HandleWhatsAppWebhook accepts a Twilio-style form post. It always answers
// 200 so the transport does not retry business failures.
func (h *Handler) HandleWhatsAppWebhook(c *gin.Context) {
	externalID := c.PostForm("MessageSid")
	if externalID == "" {
		externalID = c.PostForm("SmsMessageSid")
	}
	from := c.PostForm("From")
	log := h.logger.With(zap.String("message_id", externalID), zap.String("request_id", c.GetString(ctxRequestID)))

	if !ValidExternalID(externalID) || !ValidAddress(from) {
		log.Warn("webhook payload rejected", zap.String("from", from))
		h.writeTwiML(c, "")
		return
	}

	numMedia, _ := strconv.Atoi(c.PostForm("NumMedia"))
	var attachments []string
	for i := 0; i < numMedia && i < MaxAttachments; i++ {
		if url := c.PostForm(fmt.Sprintf("MediaUrl%d", i)); url != "" {
			attachments = append(attachments, url)
		}
	}

	msg := entities.InboundMessage{
		ExternalID:  externalID,
		From:        from,
		DisplayName: CleanText(c.PostForm("ProfileName"), MaxDisplayNameLength),
		Content:     CleanText(c.PostForm("Body"), MaxBodyLength),
		Attachments: attachments,
		Platform:    "whatsapp",
		ReceivedAt:  h.now().UTC(),
	}

	resp, err := h.engine.ProcessMessage(c.Request.Context(), msg)
	if err != nil {
		log.Error("process message failed", zap.Error(err))
	}
	h.writeTwiML(c, resp.Content)
}

const contentTypeXML = "application/xml; charset=utf-8"

func (h *Handler) writeTwiML(c *gin.Context, content string) {
	var env twimlResponse
	if content != "" {
		env.Messages = []string{content}
	}
	out, err := xml.Marshal(env)
	if err != nil {
		h.logger.Error("encode twiml failed", zap.Error(err))
		ackTwiML(c)
		return
	}
	c.Data(http.StatusOK, contentTypeXML, append([]byte(xml.Header), out...))
}

// ackTwiML answers with an empty <Response>.
func ackTwiML(c *gin.Context) {
	c.Data(http.StatusOK, contentTypeXML, []byte(xml.Header+"<Response></Response>"))
}

func ackEmpty(c *gin.Context) {
	c.Status(http.StatusOK)
}
