package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"siteledger/internal/entities"
	"siteledger/internal/interfaces"
)

// TelegramAddressPrefix marks contact addresses that belong to a Telegram chat.
const TelegramAddressPrefix = "tg:"

var _ interfaces.Messenger = (*TelegramClient)(nil)

// TelegramClient sends replies through the Bot API and, when no webhook is
// configured, long-polls for updates.
type TelegramClient struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewTelegramClient(token string, logger *zap.Logger) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramClient{
		bot:    bot,
		logger: logger.With(zap.String("component", "telegram"), zap.String("bot", bot.Self.UserName)),
	}, nil
}

// BotName returns the bot's username.
func (t *TelegramClient) BotName() string {
	return t.bot.Self.UserName
}

// SendMessage delivers resp to the chat behind a "tg:<chat id>" address.
// Choices become an inline keyboard. Markdown that Telegram refuses to
// parse is resent as plain text.
func (t *TelegramClient) SendMessage(ctx context.Context, to string, resp entities.Response) error {
	if resp.Empty() {
		return nil
	}
	chatID, err := ParseTelegramAddress(to)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, resp.Content)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if len(resp.Choices) > 0 {
		msg.ReplyMarkup = ChoiceKeyboard(resp.Choices)
	}

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("markdown send failed, retrying as plain text", zap.Int64("chat_id", chatID), zap.Error(err))
		msg.ParseMode = ""
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// AnswerCallback clears the loading indicator on a pressed inline button.
func (t *TelegramClient) AnswerCallback(callbackID string) {
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		t.logger.Debug("answer callback failed", zap.Error(err))
	}
}

// FileURL resolves a Telegram file id to a downloadable URL.
func (t *TelegramClient) FileURL(fileID string) string {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		t.logger.Debug("resolve file url failed", zap.String("file_id", fileID), zap.Error(err))
		return fileID
	}
	return url
}

// Poll long-polls the Bot API until ctx is done, handing each update to
// handle and sending its reply back to the chat.
func (t *TelegramClient) Poll(ctx context.Context, handle interfaces.InboundHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	t.logger.Info("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.HandleUpdate(ctx, update, handle)
		}
	}
}

// HandleUpdate converts one update, runs it through handle and replies.
func (t *TelegramClient) HandleUpdate(ctx context.Context, update tgbotapi.Update, handle interfaces.InboundHandler) {
	msg, ok := UpdateToInbound(update)
	if !ok {
		return
	}
	if update.CallbackQuery != nil {
		t.AnswerCallback(update.CallbackQuery.ID)
	}
	for i, a := range msg.Attachments {
		msg.Attachments[i] = t.FileURL(a)
	}

	resp, err := handle(ctx, msg)
	if err != nil {
		t.logger.Error("process update failed", zap.String("message_id", msg.ExternalID), zap.Error(err))
		return
	}
	if err := t.SendMessage(ctx, msg.From, resp); err != nil {
		t.logger.Error("send reply failed", zap.String("message_id", msg.ExternalID), zap.Error(err))
	}
}

// UpdateToInbound maps a Telegram update onto an inbound message. Inline
// button presses arrive as their callback data. Updates carrying neither a
// message nor a callback are ignored.
func UpdateToInbound(update tgbotapi.Update) (entities.InboundMessage, bool) {
	msg := entities.InboundMessage{
		ExternalID: "tg:" + strconv.Itoa(update.UpdateID),
		Platform:   "telegram",
		ReceivedAt: time.Now().UTC(),
	}

	switch {
	case update.Message != nil:
		m := update.Message
		msg.From = TelegramAddress(m.Chat.ID)
		msg.DisplayName = displayName(m.From)
		msg.Content = m.Text
		if len(m.Photo) > 0 {
			// sizes are ordered ascending; the last one is the original
			msg.Attachments = []string{m.Photo[len(m.Photo)-1].FileID}
			msg.Content = m.Caption
		}
		if m.Document != nil {
			msg.Attachments = append(msg.Attachments, m.Document.FileID)
			msg.Content = m.Caption
		}
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		cb := update.CallbackQuery
		msg.From = TelegramAddress(cb.Message.Chat.ID)
		msg.DisplayName = displayName(cb.From)
		msg.Content = cb.Data
	default:
		return entities.InboundMessage{}, false
	}
	return msg, true
}

// TelegramAddress builds the contact address for a chat.
func TelegramAddress(chatID int64) string {
	return TelegramAddressPrefix + strconv.FormatInt(chatID, 10)
}

// ParseTelegramAddress extracts the chat id from a "tg:<chat id>" address.
func ParseTelegramAddress(addr string) (int64, error) {
	raw, ok := strings.CutPrefix(addr, TelegramAddressPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a telegram address", entities.ErrInvalidInput, addr)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: telegram chat id %q", entities.ErrInvalidInput, raw)
	}
	return id, nil
}

// ChoiceKeyboard lays choices out two per row. Each button answers with its
// 1-based position, which the onboarding flow accepts like a typed number.
func ChoiceKeyboard(choices []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for i, choice := range choices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(choice, strconv.Itoa(i+1)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}
