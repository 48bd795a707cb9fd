package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"siteledger/internal/entities"
	"siteledger/internal/interfaces"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var _ interfaces.Messenger = (*WhatsAppClient)(nil)

// WhatsAppClient is a linked-device WhatsApp transport. Device keys live in
// a local SQLite file.
type WhatsAppClient struct {
	Client *whatsmeow.Client
	logger *zap.Logger

	qrCode string
	qrLock sync.RWMutex
}

func NewWhatsAppClient(ctx context.Context, dbPath string, logger *zap.Logger) (*WhatsAppClient, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create device directory: %w", err)
		}
	}

	logger = logger.With(zap.String("component", "whatsapp"))
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", zapWALogger{logger.Sugar().Named("db")})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return &WhatsAppClient{
		Client: whatsmeow.NewClient(deviceStore, zapWALogger{logger.Sugar().Named("client")}),
		logger: logger,
	}, nil
}

// Run connects, feeds every incoming chat message to handle and answers it,
// then disconnects when ctx is done.
func (w *WhatsAppClient) Run(ctx context.Context, handle interfaces.InboundHandler) error {
	w.Client.AddEventHandler(func(evt interface{}) {
		if m, ok := evt.(*events.Message); ok {
			w.handleMessage(ctx, m, handle)
		}
	})

	if err := w.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Client.Disconnect()
	w.logger.Info("whatsapp disconnected")
	return nil
}

// Connect starts the session. A device that was never paired publishes
// pairing codes through QR until it is scanned.
func (w *WhatsAppClient) Connect(ctx context.Context) error {
	if w.Client.Store.ID != nil {
		if err := w.Client.Connect(); err != nil {
			return fmt.Errorf("whatsapp connect: %w", err)
		}
		w.logger.Info("whatsapp connected", zap.String("phone", w.Client.Store.ID.User))
		return nil
	}

	qrChan, err := w.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp qr channel: %w", err)
	}
	if err := w.Client.Connect(); err != nil {
		return fmt.Errorf("whatsapp connect: %w", err)
	}

	go func() {
		for evt := range qrChan {
			if evt.Event == "code" {
				w.qrLock.Lock()
				w.qrCode = evt.Code
				w.qrLock.Unlock()
				w.logger.Info("whatsapp pairing code ready")
				continue
			}
			w.qrLock.Lock()
			w.qrCode = ""
			w.qrLock.Unlock()
			w.logger.Info("whatsapp login event", zap.String("event", evt.Event))
		}
	}()
	return nil
}

// IsLoggedIn reports whether the device has been paired.
func (w *WhatsAppClient) IsLoggedIn() bool {
	return w.Client.Store.ID != nil
}

// QRPNG renders the pending pairing code.
func (w *WhatsAppClient) QRPNG() ([]byte, error) {
	w.qrLock.RLock()
	code := w.qrCode
	w.qrLock.RUnlock()

	if code == "" {
		return nil, entities.ErrNoQR
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// SendMessage sends resp as plain text to a "+<number>" address. Choices
// are already numbered inside the text.
func (w *WhatsAppClient) SendMessage(ctx context.Context, to string, resp entities.Response) error {
	if resp.Empty() {
		return nil
	}
	jid, err := types.ParseJID(strings.TrimPrefix(to, "+") + "@" + types.DefaultUserServer)
	if err != nil {
		return fmt.Errorf("%w: whatsapp number %q", entities.ErrInvalidInput, to)
	}

	_, err = w.Client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(resp.Content),
	})
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	return nil
}

func (w *WhatsAppClient) handleMessage(ctx context.Context, evt *events.Message, handle interfaces.InboundHandler) {
	msg, ok := EventToInbound(evt)
	if !ok {
		return
	}
	resp, err := handle(ctx, msg)
	if err != nil {
		w.logger.Error("process message failed", zap.String("message_id", msg.ExternalID), zap.Error(err))
		return
	}
	if err := w.SendMessage(ctx, msg.From, resp); err != nil {
		w.logger.Error("send reply failed", zap.String("message_id", msg.ExternalID), zap.Error(err))
	}
}

// EventToInbound maps a whatsmeow message event onto an inbound message.
// Own messages, group chats and status broadcasts are skipped.
func EventToInbound(evt *events.Message) (entities.InboundMessage, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup || evt.Info.Chat.Server == types.BroadcastServer {
		return entities.InboundMessage{}, false
	}

	msg := entities.InboundMessage{
		ExternalID:  "wa:" + evt.Info.ID,
		From:        "+" + evt.Info.Sender.User,
		DisplayName: evt.Info.PushName,
		Platform:    "whatsapp",
		ReceivedAt:  evt.Info.Timestamp.UTC(),
	}

	m := evt.Message
	switch {
	case m.GetConversation() != "":
		msg.Content = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		msg.Content = m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		img := m.GetImageMessage()
		msg.Content = img.GetCaption()
		msg.Attachments = []string{img.GetURL()}
	case m.GetDocumentMessage() != nil:
		doc := m.GetDocumentMessage()
		msg.Content = doc.GetCaption()
		msg.Attachments = []string{doc.GetURL()}
	default:
		return entities.InboundMessage{}, false
	}
	return msg, true
}

// zapWALogger routes whatsmeow's logging through zap.
type zapWALogger struct {
	s *zap.SugaredLogger
}

func (l zapWALogger) Warnf(msg string, args ...interface{})  { l.s.Warnf(msg, args...) }
func (l zapWALogger) Errorf(msg string, args ...interface{}) { l.s.Errorf(msg, args...) }
func (l zapWALogger) Infof(msg string, args ...interface{})  { l.s.Infof(msg, args...) }
func (l zapWALogger) Debugf(msg string, args ...interface{}) { l.s.Debugf(msg, args...) }
func (l zapWALogger) Sub(module string) waLog.Logger         { return zapWALogger{l.s.Named(module)} }
