package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"siteledger/internal/entities"
	"siteledger/internal/interfaces"
	"siteledger/internal/usecases"
)

// Authenticator issues and checks admin tokens.
type Authenticator interface {
	TokenVerifier
	Login(username, password string) (string, time.Time, error)
}

// QRSource exposes the WhatsApp device pairing state.
type QRSource interface {
	IsLoggedIn() bool
	QRPNG() ([]byte, error)
}

const maxUsageDays = 90

type AdminHandler struct {
	auth  Authenticator
	audit interfaces.AuditStore
	usage interfaces.UsageStore
	qr    QRSource
	now   func() time.Time
}

func NewAdminHandler(auth Authenticator, audit interfaces.AuditStore, usage interfaces.UsageStore, qr QRSource) *AdminHandler {
	return &AdminHandler{
		auth:  auth,
		audit: audit,
		usage: usage,
		qr:    qr,
		now:   time.Now,
	}
}

func (h *AdminHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Login exchanges the admin credentials for a bearer token.
func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, expires, err := h.auth.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, usecases.ErrAuthDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin login is not configured"})
		return
	case err != nil:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expires.UTC()})
}

// GetMessage returns an audited inbound message and the reply sent for it.
func (h *AdminHandler) GetMessage(c *gin.Context) {
	externalID := c.Param("external_id")
	if !ValidExternalID(externalID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id"})
		return
	}

	ctx := c.Request.Context()
	inbound, err := h.audit.FindInbound(ctx, externalID)
	if errors.Is(err, entities.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch message"})
		return
	}

	reply, err := h.audit.FindReply(ctx, inbound.ID)
	if err != nil && !errors.Is(err, entities.ErrNotFound) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reply"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"inbound": inbound, "reply": reply})
}

// GetUsage reports daily message volume for the last ?days= days (default 7).
func (h *AdminHandler) GetUsage(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > maxUsageDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be 1..90"})
		return
	}

	now := h.now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
	usage, err := h.usage.DailyUsage(c.Request.Context(), since)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch usage"})
		return
	}

	var received, sent, failed int
	for _, u := range usage {
		received += u.Received
		sent += u.Sent
		failed += u.Failed
	}
	c.JSON(http.StatusOK, gin.H{
		"since":    since,
		"received": received,
		"sent":     sent,
		"failed":   failed,
		"days":     usage,
	})
}

// GetWhatsAppQR returns the device pairing QR code as PNG.
func (h *AdminHandler) GetWhatsAppQR(c *gin.Context) {
	if h.qr == nil {
		c.String(http.StatusServiceUnavailable, "WhatsApp not configured")
		return
	}
	if h.qr.IsLoggedIn() {
		c.String(http.StatusOK, "Already logged in")
		return
	}

	png, err := h.qr.QRPNG()
	if errors.Is(err, entities.ErrNoQR) {
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
