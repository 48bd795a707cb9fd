package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"siteledger/internal/config"
	"siteledger/internal/entities"
	"siteledger/internal/interfaces"
)

// intentOnboarding is recorded in the audit log for dialogue turns.
const intentOnboarding = "onboarding"

// MessageService is the command engine: one call per inbound delivery.
// Priority: 1. Redelivery replay → 2. Active dialogue or start trigger →
// 3. Classified command → 4. AI fallback → 5. Static help.
type MessageService struct {
	store      interfaces.Store
	classifier *IntentClassifier
	onboarding *Onboarding
	dispatcher *CommandDispatcher
	replies    *ReplyComposer
	ai         interfaces.AIClient
	defaults   entities.ContactDefaults
	logger     *zap.Logger
	now        func() time.Time
}

// MessageServiceOption customizes a MessageService.
type MessageServiceOption func(*MessageService)

// WithAIClient enables the AI fallback for unrecognized messages.
func WithAIClient(ai interfaces.AIClient) MessageServiceOption {
	return func(s *MessageService) { s.ai = ai }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MessageServiceOption {
	return func(s *MessageService) { s.now = now }
}

// NewMessageService wires the engine from the store and the rules.
func NewMessageService(store interfaces.Store, rules *config.Rules, bot config.BotConfig, logger *zap.Logger, opts ...MessageServiceOption) *MessageService {
	onboarding := NewOnboarding(rules)
	s := &MessageService{
		store:      store,
		classifier: NewIntentClassifier(rules),
		onboarding: onboarding,
		dispatcher: NewCommandDispatcher(store, rules, logger),
		replies:    NewReplyComposer(bot.ProductName, onboarding.ProjectTypeNames()),
		defaults:   entities.ContactDefaults{Currency: bot.DefaultCurrency, Language: bot.DefaultLanguage},
		logger:     logger.With(zap.String("component", "engine")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classifier exposes the engine's classifier for offline use.
func (s *MessageService) Classifier() *IntentClassifier {
	return s.classifier
}

// turn is the outcome of processing one message.
type turn struct {
	reply   string
	choices []string
	intent  string
	errText string
}

// ProcessMessage handles one delivery and returns the reply to send. Business
// failures never surface as errors; they are turned into apology replies and
// recorded in the audit entry. The returned error is only for logging by the
// transport, which must still answer the upstream with success.
func (s *MessageService) ProcessMessage(ctx context.Context, msg entities.InboundMessage) (entities.Response, error) {
	msg.From = entities.NormalizeAddress(msg.From)
	if msg.ExternalID == "" || msg.From == "" {
		return entities.Response{}, fmt.Errorf("%w: message id and sender are required", entities.ErrInvalidInput)
	}
	log := s.logger.With(zap.String("message_id", msg.ExternalID), zap.String("contact", msg.From))

	entry, created, err := s.store.CreateInbound(ctx, entities.NewInboundEntry(msg))
	if err != nil {
		log.Error("audit inbound failed", zap.Error(err))
		return entities.Response{Content: s.replies.Apology(s.defaults.Language)}, fmt.Errorf("audit inbound: %w", err)
	}
	if !created {
		return s.replay(ctx, log, entry)
	}

	t := s.process(ctx, log, msg)
	if t.errText != "" {
		log.Warn("message processed with error", zap.String("intent", t.intent), zap.String("error", t.errText))
	} else {
		log.Info("message processed", zap.String("intent", t.intent))
	}

	if err := s.store.MarkProcessed(ctx, entities.AuditResult{ID: entry.ID, Intent: t.intent, Error: t.errText}); err != nil {
		log.Error("audit mark processed failed", zap.Error(err))
	}
	if t.reply != "" {
		if err := s.store.CreateOutbound(ctx, entities.NewOutboundEntry(*entry, t.reply)); err != nil {
			log.Error("audit outbound failed", zap.Error(err))
		}
	}
	return entities.Response{Content: t.reply, Choices: t.choices}, nil
}

// replay answers a redelivery with the reply recorded for the first one. An
// empty reply means the first delivery is still being processed.
func (s *MessageService) replay(ctx context.Context, log *zap.Logger, entry *entities.AuditEntry) (entities.Response, error) {
	reply, err := s.store.FindReply(ctx, entry.ID)
	switch {
	case err == nil:
		log.Info("duplicate delivery replayed")
		return entities.Response{Content: reply.Body, Replayed: true}, nil
	case errors.Is(err, entities.ErrNotFound):
		log.Info("duplicate delivery while first is in flight")
		return entities.Response{Replayed: true}, nil
	}
	log.Error("audit replay lookup failed", zap.Error(err))
	return entities.Response{Replayed: true}, fmt.Errorf("find reply: %w", err)
}

// process runs the dialogue or command path, retrying once when a concurrent
// delivery from the same contact changed the dialogue state first.
func (s *MessageService) process(ctx context.Context, log *zap.Logger, msg entities.InboundMessage) turn {
	var (
		t   turn
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		t, err = s.attempt(ctx, log, msg)
		if !errors.Is(err, entities.ErrStateConflict) {
			return t
		}
		log.Warn("dialogue state conflict", zap.Int("attempt", attempt+1))
	}
	return turn{
		reply:   s.replies.StateConflict(s.defaults.Language),
		intent:  intentOnboarding,
		errText: err.Error(),
	}
}

// attempt returns entities.ErrStateConflict only when the turn should be
// retried from a fresh read.
func (s *MessageService) attempt(ctx context.Context, log *zap.Logger, msg entities.InboundMessage) (turn, error) {
	contact, err := s.store.GetOrCreateContact(ctx, msg.From, msg.DisplayName, s.defaults)
	if err != nil {
		return turn{reply: s.replies.Apology(s.defaults.Language), errText: fmt.Sprintf("load contact: %v", err)}, nil
	}

	if s.onboarding.Handles(contact.State, msg.Content) {
		return s.advance(ctx, log, contact, msg)
	}
	return s.command(ctx, log, contact, msg), nil
}

func (s *MessageService) advance(ctx context.Context, log *zap.Logger, contact *entities.Contact, msg entities.InboundMessage) (turn, error) {
	lang := contact.Language
	t := turn{intent: intentOnboarding}

	step, err := s.onboarding.Advance(contact.State, contact.Fields, msg.Content)
	if err != nil {
		var verr *entities.ValidationError
		if errors.As(err, &verr) && len(verr.Errors) > 0 {
			t.reply = s.replies.Invalid(lang, verr.Errors[0].Field)
		} else {
			t.reply = s.replies.Apology(lang)
		}
		t.errText = err.Error()
		return t, nil
	}

	updates := s.dialogueUpdates(contact, step)

	var project *entities.Project
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if step.Project != nil {
			req := *step.Project
			req.OwnerID = contact.ID
			p, err := s.store.CreateProject(ctx, req)
			if err != nil {
				return fmt.Errorf("create project: %w", err)
			}
			project = p
		}
		for _, upd := range updates {
			if err := s.store.UpdateDialogue(ctx, upd); err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, entities.ErrStateConflict):
		return turn{}, err
	case err != nil && step.Project != nil:
		t.reply = s.replies.ProjectFailed(lang)
		t.errText = err.Error()
		return t, nil
	case err != nil:
		t.reply = s.replies.Apology(lang)
		t.errText = fmt.Sprintf("update dialogue: %v", err)
		return t, nil
	}

	log.Debug("dialogue advanced",
		zap.String("state", contact.State.String()),
		zap.String("next", step.Next.String()),
	)
	t.reply = s.replies.Prompt(lang, contact.Currency, step, project)
	if step.Prompt == PromptWelcome || step.Prompt == PromptProjectType {
		t.choices = s.replies.Choices()
	}
	return t, nil
}

// dialogueUpdates is one conditional write per state the step enters, each
// expecting the version left by the previous one.
func (s *MessageService) dialogueUpdates(contact *entities.Contact, step Step) []entities.DialogueUpdate {
	path := step.Path()
	updates := make([]entities.DialogueUpdate, 0, len(path))
	for i, state := range path {
		upd := entities.DialogueUpdate{
			ContactID:       contact.ID,
			ExpectedVersion: contact.Version + int64(i),
			State:           state,
			Fields:          step.Fields,
		}
		if state == entities.StateCompleted {
			now := s.now().UTC()
			upd.Fields = entities.OnboardingFields{}
			upd.CompletedAt = &now
		}
		updates = append(updates, upd)
	}
	return updates
}

func (s *MessageService) command(ctx context.Context, log *zap.Logger, contact *entities.Contact, msg entities.InboundMessage) turn {
	cls := s.classifier.Classify(msg.Content, Hints{HasAttachment: msg.HasAttachment(), Lang: contact.Language})
	lang := contact.Language
	if cls.Lang != "" {
		lang = cls.Lang
	}
	t := turn{intent: cls.Intent.String()}

	res := s.dispatcher.Dispatch(ctx, contact, cls, msg.Attachments)
	if res.Kind == OutcomePersistenceFailed && res.Err != nil {
		t.errText = res.Err.Error()
	}

	if res.Kind == OutcomeHelp {
		t.reply = s.fallback(ctx, log, lang, cls.Text)
		return t
	}
	t.reply = s.replies.Result(lang, contact.Currency, res)
	return t
}

// fallback asks the AI client, if any, and otherwise returns static help.
func (s *MessageService) fallback(ctx context.Context, log *zap.Logger, lang, text string) string {
	if s.ai == nil || strings.TrimSpace(text) == "" {
		return s.replies.Help(lang)
	}
	answer, err := s.ai.GenerateResponse(ctx, s.aiPrompt(lang, text))
	if err != nil {
		log.Warn("ai fallback failed", zap.Error(err))
		return s.replies.Help(lang)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return s.replies.Help(lang)
	}
	return answer
}

func (s *MessageService) aiPrompt(lang, text string) string {
	language := "English"
	if lang == "id" {
		language = "Indonesian"
	}
	return fmt.Sprintf(
		"You are %s, a chat assistant that helps construction contractors track site expenses, tasks and budgets. "+
			"Reply in %s in at most three short sentences. If the user seems to want to log something, show the "+
			"exact command format, for example \"spent 50k on cement\", \"task: inspect foundation\" or \"set budget 200jt\".\n\n"+
			"User message: %s",
		s.replies.productName, language, text,
	)
}
