package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"siteledger/internal/entities"
	"siteledger/internal/repository"
)

type engineHarness struct {
	t     *testing.T
	store *repository.MemoryStore
	svc   *MessageService
	seq   int
}

func newHarness(t *testing.T, opts ...MessageServiceOption) *engineHarness {
	store := repository.NewMemoryStore()
	return &engineHarness{
		t:     t,
		store: store,
		svc:   NewMessageService(store, testRules, testBot(), zap.NewNop(), opts...),
	}
}

func (h *engineHarness) send(from, text string, attachments ...string) entities.Response {
	h.t.Helper()
	h.seq++
	resp, err := h.svc.ProcessMessage(context.Background(), entities.InboundMessage{
		ExternalID:  fmt.Sprintf("SM%04d", h.seq),
		From:        from,
		Content:     text,
		Attachments: attachments,
	})
	require.NoError(h.t, err)
	return resp
}

// onboard runs the whole dialogue for from with the given budget answer.
func (h *engineHarness) onboard(from, budget string) {
	h.t.Helper()
	for _, text := range []string{"hey siteledger start", "2", "Bandung", "next month", budget, "yes"} {
		h.send(from, text)
	}
}

func (h *engineHarness) contact(addr string) entities.Contact {
	h.t.Helper()
	c, ok := h.store.Contact(addr)
	require.True(h.t, ok, "contact %s", addr)
	return c
}

func TestMessageService_StartDialogue(t *testing.T) {
	h := newHarness(t)

	resp := h.send("+628111", "hey SiteLedger start")
	assert.Contains(t, resp.Content, "Welcome to SiteLedger")
	assert.Equal(t, []string{"Residential house", "Renovation", "Commercial building", "Road or infrastructure", "Other"}, resp.Choices)

	// The welcome is written first and the dialogue then rests on the type question.
	c := h.contact("+628111")
	assert.Equal(t, entities.StateAwaitingProjectType, c.State)
	assert.Equal(t, int64(2), c.Version)
	assert.Empty(t, h.store.Projects(c.ID))
}

func TestMessageService_ConfirmCreatesProject(t *testing.T) {
	h := newHarness(t)

	h.send("+628111", "start")
	assert.Equal(t, entities.StateAwaitingProjectType, h.contact("+628111").State)
	h.send("+628111", "2")
	assert.Equal(t, entities.StateAwaitingLocation, h.contact("+628111").State)
	h.send("+628111", "Bandung")
	h.send("+628111", "next month")
	resp := h.send("+628111", "1jt")
	assert.Contains(t, resp.Content, "IDR 1,000,000")
	assert.Equal(t, entities.StateConfirmation, h.contact("+628111").State)

	resp = h.send("+628111", "yes")
	assert.Contains(t, resp.Content, "Project created:* Renovation - Bandung")

	c := h.contact("+628111")
	assert.Equal(t, entities.StateCompleted, c.State)
	assert.True(t, c.Fields.IsEmpty())
	assert.NotNil(t, c.CompletedAt)

	projects := h.store.Projects(c.ID)
	require.Len(t, projects, 1)
	assert.Equal(t, "Renovation - Bandung", projects[0].Name)
	require.NotNil(t, projects[0].Budget)
	assert.Equal(t, int64(1_000_000), *projects[0].Budget)
}

func TestMessageService_Commands(t *testing.T) {
	h := newHarness(t)
	h.onboard("+628111", "1000000")

	resp := h.send("+628111", "spent 50000 on cement")
	assert.Contains(t, resp.Content, "IDR 50,000 for cement (Materials)")
	assert.Contains(t, resp.Content, "Remaining budget: IDR 950,000")

	resp = h.send("+628111", "task: inspect foundation")
	assert.Contains(t, resp.Content, "inspect foundation (priority: medium)")
	assert.Contains(t, resp.Content, "Pending tasks: 1")

	resp = h.send("+628111", "set budget 2000000")
	assert.Contains(t, resp.Content, "Budget set to IDR 2,000,000")
	assert.Contains(t, resp.Content, "Spent so far: IDR 50,000")
	assert.Contains(t, resp.Content, "Remaining budget: IDR 1,950,000")

	resp = h.send("+628111", "summary")
	assert.Contains(t, resp.Content, "1. Materials: IDR 50,000")

	c := h.contact("+628111")
	tasks := h.store.Tasks(c.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, "inspect foundation", tasks[0].Title)
	assert.Equal(t, entities.PriorityMedium, tasks[0].Priority)
}

func TestMessageService_StartKeywordInsideCommand(t *testing.T) {
	h := newHarness(t)
	h.onboard("+628111", "1000000")

	resp := h.send("+628111", "setup scaffolding rental 500k")
	assert.NotContains(t, resp.Content, "Welcome to SiteLedger")
	assert.Contains(t, resp.Content, "IDR 500,000")

	c := h.contact("+628111")
	assert.Equal(t, entities.StateCompleted, c.State)
	expenses := h.store.Expenses(h.store.Projects(c.ID)[0].ID)
	require.Len(t, expenses, 1)
	assert.Equal(t, int64(500_000), expenses[0].Amount)

	resp = h.send("+628111", "start")
	assert.Contains(t, resp.Content, "Welcome to SiteLedger")
}

func TestMessageService_EditRestartsAtProjectType(t *testing.T) {
	h := newHarness(t)
	for _, text := range []string{"start", "1", "Depok", "skip", "skip"} {
		h.send("+628111", text)
	}
	require.Equal(t, entities.StateConfirmation, h.contact("+628111").State)

	resp := h.send("+628111", "edit")
	assert.Contains(t, resp.Content, "1. Residential house")
	c := h.contact("+628111")
	assert.Equal(t, entities.StateAwaitingProjectType, c.State)
	assert.True(t, c.Fields.IsEmpty())

	h.send("+628111", "2")
	c = h.contact("+628111")
	assert.Equal(t, entities.StateAwaitingLocation, c.State)
	require.NotNil(t, c.Fields.ProjectType)
	assert.Equal(t, "Renovation", *c.Fields.ProjectType)
}

func TestMessageService_UnknownGetsHelp(t *testing.T) {
	h := newHarness(t)

	resp := h.send("+628111", "hello")
	assert.Contains(t, resp.Content, "spent 50k on cement")

	c := h.contact("+628111")
	assert.Equal(t, entities.StateNone, c.State)
	assert.Empty(t, h.store.Projects(c.ID))

	entries := h.store.AuditEntries()
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Intent)
	assert.Equal(t, "unknown", *entries[0].Intent)
	assert.True(t, entries[0].Processed)
	assert.Equal(t, entities.DirectionOutbound, entries[1].Direction)
}

func TestMessageService_CommandWithoutProject(t *testing.T) {
	h := newHarness(t)

	resp := h.send("+628111", "spent 50000 on cement")
	assert.Contains(t, resp.Content, "don't have an active project")
}

func TestMessageService_IndonesianReply(t *testing.T) {
	h := newHarness(t)
	h.onboard("+628111", "lewati")

	resp := h.send("+628111", "keluar 250rb untuk semen")
	assert.Contains(t, resp.Content, "Pengeluaran dicatat:* IDR 250,000 untuk semen (Materials)")
}

func TestMessageService_ImageReceipt(t *testing.T) {
	h := newHarness(t)
	h.onboard("+628111", "1jt")

	resp := h.send("+628111", "paid 200k for sand", "https://example.com/r.jpg")
	assert.Contains(t, resp.Content, "Photo saved")

	c := h.contact("+628111")
	projects := h.store.Projects(c.ID)
	require.Len(t, projects, 1)
	images := h.store.Images(projects[0].ID)
	require.Len(t, images, 1)
	require.NotNil(t, images[0].ExpenseID)
	assert.Len(t, h.store.Expenses(projects[0].ID), 1)
}

func TestMessageService_DuplicateDeliveryReplays(t *testing.T) {
	h := newHarness(t)
	h.onboard("+628111", "1jt")

	msg := entities.InboundMessage{ExternalID: "SM-dup", From: "whatsapp:+628111", Content: "spent 50000 on cement"}
	first, err := h.svc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	second, err := h.svc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Content, second.Content)

	c := h.contact("+628111")
	assert.Len(t, h.store.Expenses(h.store.Projects(c.ID)[0].ID), 1)
}

func TestMessageService_ConcurrentDuplicates(t *testing.T) {
	h := newHarness(t)
	h.onboard("+628111", "1jt")
	msg := entities.InboundMessage{ExternalID: "SM-race", From: "+628111", Content: "spent 50000 on cement"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.ProcessMessage(context.Background(), msg)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c := h.contact("+628111")
	assert.Len(t, h.store.Expenses(h.store.Projects(c.ID)[0].ID), 1)
}

func TestMessageService_RequiresIDAndSender(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ProcessMessage(context.Background(), entities.InboundMessage{From: "+628111", Content: "hi"})
	assert.ErrorIs(t, err, entities.ErrInvalidInput)
	_, err = h.svc.ProcessMessage(context.Background(), entities.InboundMessage{ExternalID: "x", From: " ", Content: "hi"})
	assert.ErrorIs(t, err, entities.ErrInvalidInput)
}

// conflictingStore fails the first n dialogue writes with a state conflict.
type conflictingStore struct {
	*repository.MemoryStore
	mu        sync.Mutex
	conflicts int
}

func (s *conflictingStore) UpdateDialogue(ctx context.Context, upd entities.DialogueUpdate) error {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return entities.ErrStateConflict
	}
	s.mu.Unlock()
	return s.MemoryStore.UpdateDialogue(ctx, upd)
}

func TestMessageService_StateConflictRetriesOnce(t *testing.T) {
	mem := repository.NewMemoryStore()
	store := &conflictingStore{MemoryStore: mem, conflicts: 1}
	svc := NewMessageService(store, testRules, testBot(), zap.NewNop())

	resp, err := svc.ProcessMessage(context.Background(), entities.InboundMessage{ExternalID: "a", From: "+628111", Content: "start"})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "Welcome to SiteLedger")
	c, _ := mem.Contact("+628111")
	assert.Equal(t, entities.StateAwaitingProjectType, c.State)

	store.conflicts = 2
	resp, err = svc.ProcessMessage(context.Background(), entities.InboundMessage{ExternalID: "b", From: "+628111", Content: "2"})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "messages crossed")
	c, _ = mem.Contact("+628111")
	assert.Equal(t, entities.StateAwaitingProjectType, c.State)
	assert.Nil(t, c.Fields.ProjectType)

	var inbound *entities.AuditEntry
	for _, e := range mem.AuditEntries() {
		if e.ExternalID == "b" {
			e := e
			inbound = &e
		}
	}
	require.NotNil(t, inbound)
	require.NotNil(t, inbound.Error)
	assert.Contains(t, *inbound.Error, "changed concurrently")
}

// failingProjects rejects project creation.
type failingProjects struct {
	*repository.MemoryStore
}

func (failingProjects) CreateProject(context.Context, entities.NewProject) (*entities.Project, error) {
	return nil, errors.New("disk full")
}

func TestMessageService_ProjectFailureKeepsConfirmation(t *testing.T) {
	mem := repository.NewMemoryStore()
	svc := NewMessageService(failingProjects{mem}, testRules, testBot(), zap.NewNop())

	for i, text := range []string{"start", "1", "Depok", "skip", "skip", "yes"} {
		resp, err := svc.ProcessMessage(context.Background(), entities.InboundMessage{
			ExternalID: fmt.Sprintf("m%d", i), From: "+628111", Content: text,
		})
		require.NoError(t, err)
		if text == "yes" {
			assert.Contains(t, resp.Content, "couldn't create the project")
		}
	}

	c, ok := mem.Contact("+628111")
	require.True(t, ok)
	assert.Equal(t, entities.StateConfirmation, c.State)
	require.NotNil(t, c.Fields.Location)
	assert.Equal(t, "Depok", *c.Fields.Location)
}

type stubAI struct {
	answer string
	err    error
	prompt string
}

func (s *stubAI) GenerateResponse(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

func TestMessageService_AIFallback(t *testing.T) {
	t.Run("answer is used", func(t *testing.T) {
		ai := &stubAI{answer: "  Try \"spent 50k on cement\".  "}
		h := newHarness(t, WithAIClient(ai))

		resp := h.send("+628111", "how do I record cement?")
		assert.Equal(t, "Try \"spent 50k on cement\".", resp.Content)
		assert.Contains(t, ai.prompt, "how do I record cement?")
		assert.Contains(t, ai.prompt, "SiteLedger")
	})

	t.Run("error falls back to help", func(t *testing.T) {
		ai := &stubAI{err: errors.New("quota exceeded")}
		h := newHarness(t, WithAIClient(ai))

		resp := h.send("+628111", "what's up")
		assert.Contains(t, resp.Content, "spent 50k on cement")
	})

	t.Run("not called for commands", func(t *testing.T) {
		ai := &stubAI{answer: "nope"}
		h := newHarness(t, WithAIClient(ai))

		h.send("+628111", "spent 50000 on cement")
		assert.Empty(t, ai.prompt)
	})
}
