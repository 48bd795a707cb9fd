package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"siteledger/internal/entities"
	"siteledger/internal/interfaces"
)

// MemoryStore is an in-process interfaces.Store for tests and local runs
// without Postgres. RunInTx holds the store lock for the whole callback and
// restores a snapshot when the callback fails.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	now    func() time.Time

	contacts      map[string]*entities.Contact
	projects      []entities.Project
	expenses      []entities.Expense
	tasks         []entities.Task
	images        []entities.Image
	budgetChanges []entities.BudgetChange
	audit         []entities.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts: make(map[string]*entities.Contact),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ interfaces.Store      = (*MemoryStore)(nil)
	_ interfaces.UsageStore = (*MemoryStore)(nil)
)

type memTxKey struct{}

// lock takes the store lock unless ctx is already inside RunInTx.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

type memSnapshot struct {
	nextID        int64
	contacts      map[string]entities.Contact
	projects      []entities.Project
	expenses      []entities.Expense
	tasks         []entities.Task
	images        []entities.Image
	budgetChanges []entities.BudgetChange
	audit         []entities.AuditEntry
}

func (s *MemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		nextID:        s.nextID,
		contacts:      make(map[string]entities.Contact, len(s.contacts)),
		projects:      append([]entities.Project(nil), s.projects...),
		expenses:      append([]entities.Expense(nil), s.expenses...),
		tasks:         append([]entities.Task(nil), s.tasks...),
		images:        append([]entities.Image(nil), s.images...),
		budgetChanges: append([]entities.BudgetChange(nil), s.budgetChanges...),
		audit:         append([]entities.AuditEntry(nil), s.audit...),
	}
	for k, c := range s.contacts {
		snap.contacts[k] = *c
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.nextID = snap.nextID
	s.contacts = make(map[string]*entities.Contact, len(snap.contacts))
	for k, c := range snap.contacts {
		c := c
		s.contacts[k] = &c
	}
	s.projects = snap.projects
	s.expenses = snap.expenses
	s.tasks = snap.tasks
	s.images = snap.images
	s.budgetChanges = snap.budgetChanges
	s.audit = snap.audit
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) GetOrCreateContact(ctx context.Context, address, displayName string, defaults entities.ContactDefaults) (*entities.Contact, error) {
	defer s.lock(ctx)()

	c, ok := s.contacts[address]
	if !ok {
		c = &entities.Contact{
			ID:        s.id(),
			Address:   address,
			Currency:  defaults.Currency,
			Language:  defaults.Language,
			CreatedAt: s.now(),
		}
		s.contacts[address] = c
	}
	if displayName != "" {
		c.DisplayName = displayName
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) UpdateDialogue(ctx context.Context, upd entities.DialogueUpdate) error {
	if !upd.State.Valid() {
		return entities.NewValidationError("dialogue_state", "unknown state")
	}
	if err := upd.Fields.Validate(); err != nil {
		return err
	}
	defer s.lock(ctx)()

	for _, c := range s.contacts {
		if c.ID != upd.ContactID {
			continue
		}
		if c.Version != upd.ExpectedVersion {
			return fmt.Errorf("contact %d at version %d: %w", upd.ContactID, upd.ExpectedVersion, entities.ErrStateConflict)
		}
		c.State = upd.State
		c.Fields = upd.Fields
		c.Version++
		if upd.CompletedAt != nil {
			t := *upd.CompletedAt
			c.CompletedAt = &t
		}
		return nil
	}
	return fmt.Errorf("contact %d at version %d: %w", upd.ContactID, upd.ExpectedVersion, entities.ErrStateConflict)
}

// Contact returns a copy of the stored contact, for tests.
func (s *MemoryStore) Contact(address string) (entities.Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[address]
	if !ok {
		return entities.Contact{}, false
	}
	return *c, true
}

func (s *MemoryStore) ActiveProject(ctx context.Context, contactID int64) (*entities.Project, error) {
	defer s.lock(ctx)()
	for i := len(s.projects) - 1; i >= 0; i-- {
		if s.projects[i].OwnerID == contactID {
			p := s.projects[i]
			return &p, nil
		}
	}
	return nil, entities.ErrNoActiveProject
}

// LockProject only re-reads; RunInTx already serializes the store.
func (s *MemoryStore) LockProject(ctx context.Context, projectID int64) (*entities.Project, error) {
	defer s.lock(ctx)()
	for _, p := range s.projects {
		if p.ID == projectID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("project %d: %w", projectID, entities.ErrNotFound)
}

func (s *MemoryStore) CreateProject(ctx context.Context, np entities.NewProject) (*entities.Project, error) {
	if np.Budget != nil && *np.Budget <= 0 {
		return nil, entities.NewValidationError("budget", "must be positive")
	}
	defer s.lock(ctx)()
	p := entities.Project{
		ID:          s.id(),
		OwnerID:     np.OwnerID,
		Name:        np.Name,
		Description: np.Description,
		Budget:      np.Budget,
		CreatedAt:   s.now(),
	}
	s.projects = append(s.projects, p)
	return &p, nil
}

func (s *MemoryStore) SetProjectBudget(ctx context.Context, projectID, budget int64) error {
	defer s.lock(ctx)()
	for i := range s.projects {
		if s.projects[i].ID == projectID {
			b := budget
			s.projects[i].Budget = &b
			return nil
		}
	}
	return fmt.Errorf("project %d: %w", projectID, entities.ErrNotFound)
}

func (s *MemoryStore) CreateBudgetChange(ctx context.Context, c entities.BudgetChange) error {
	defer s.lock(ctx)()
	s.budgetChanges = append(s.budgetChanges, c)
	return nil
}

// Projects returns every project owned by contactID, oldest first.
func (s *MemoryStore) Projects(contactID int64) []entities.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Project
	for _, p := range s.projects {
		if p.OwnerID == contactID {
			out = append(out, p)
		}
	}
	return out
}

func (s *MemoryStore) CreateExpense(ctx context.Context, e entities.Expense) (*entities.Expense, error) {
	if e.Amount <= 0 {
		return nil, entities.NewValidationError("amount", "must be positive")
	}
	defer s.lock(ctx)()
	e.ID = s.id()
	e.CreatedAt = s.now()
	s.expenses = append(s.expenses, e)
	return &e, nil
}

// Expenses returns the expenses logged against projectID.
func (s *MemoryStore) Expenses(projectID int64) []entities.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Expense
	for _, e := range s.expenses {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) CreateTask(ctx context.Context, t entities.Task) (*entities.Task, error) {
	defer s.lock(ctx)()
	t.ID = s.id()
	t.CreatedAt = s.now()
	s.tasks = append(s.tasks, t)
	return &t, nil
}

// Tasks returns the tasks created by contactID.
func (s *MemoryStore) Tasks(contactID int64) []entities.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Task
	for _, t := range s.tasks {
		if t.ContactID == contactID {
			out = append(out, t)
		}
	}
	return out
}

func (s *MemoryStore) CreateImage(ctx context.Context, img entities.Image) (*entities.Image, error) {
	defer s.lock(ctx)()
	img.ID = s.id()
	img.CreatedAt = s.now()
	s.images = append(s.images, img)
	return &img, nil
}

// Images returns the images attached to projectID.
func (s *MemoryStore) Images(projectID int64) []entities.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Image
	for _, img := range s.images {
		if img.ProjectID == projectID {
			out = append(out, img)
		}
	}
	return out
}

func (s *MemoryStore) CountPendingTasks(ctx context.Context, contactID int64) (int, error) {
	defer s.lock(ctx)()
	n := 0
	for _, t := range s.tasks {
		if t.ContactID == contactID && t.Status == entities.TaskStatusPending {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SpendingSummary(ctx context.Context, projectID int64) (*entities.SpendingSummary, error) {
	defer s.lock(ctx)()
	totals := make(map[string]int64)
	summary := &entities.SpendingSummary{}
	for _, e := range s.expenses {
		if e.ProjectID != projectID {
			continue
		}
		totals[e.Category] += e.Amount
		summary.Total += e.Amount
		summary.Count++
	}
	for cat, total := range totals {
		summary.ByCategory = append(summary.ByCategory, entities.CategoryTotal{Category: cat, Total: total})
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		a, b := summary.ByCategory[i], summary.ByCategory[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Category < b.Category
	})
	return summary, nil
}

func (s *MemoryStore) CreateInbound(ctx context.Context, e entities.AuditEntry) (*entities.AuditEntry, bool, error) {
	if e.ExternalID == "" {
		return nil, false, entities.NewValidationError("external_id", "required")
	}
	defer s.lock(ctx)()
	for _, existing := range s.audit {
		if existing.Direction == entities.DirectionInbound && existing.ExternalID == e.ExternalID {
			out := existing
			return &out, false, nil
		}
	}
	e.Direction = entities.DirectionInbound
	s.audit = append(s.audit, e)
	return &e, true, nil
}

func (s *MemoryStore) FindInbound(ctx context.Context, externalID string) (*entities.AuditEntry, error) {
	defer s.lock(ctx)()
	for _, e := range s.audit {
		if e.Direction == entities.DirectionInbound && e.ExternalID == externalID {
			out := e
			return &out, nil
		}
	}
	return nil, fmt.Errorf("inbound message %s: %w", externalID, entities.ErrNotFound)
}

func (s *MemoryStore) FindReply(ctx context.Context, inboundID uuid.UUID) (*entities.AuditEntry, error) {
	defer s.lock(ctx)()
	for _, e := range s.audit {
		if e.ReplyTo != nil && *e.ReplyTo == inboundID {
			out := e
			return &out, nil
		}
	}
	return nil, fmt.Errorf("reply to %s: %w", inboundID, entities.ErrNotFound)
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, r entities.AuditResult) error {
	defer s.lock(ctx)()
	for i := range s.audit {
		if s.audit[i].ID != r.ID {
			continue
		}
		now := s.now()
		s.audit[i].Processed = true
		s.audit[i].ProcessedAt = &now
		s.audit[i].Intent = nil
		s.audit[i].Error = nil
		if r.Intent != "" {
			intent := r.Intent
			s.audit[i].Intent = &intent
		}
		if r.Error != "" {
			msg := r.Error
			s.audit[i].Error = &msg
		}
		return nil
	}
	return fmt.Errorf("audit entry %s: %w", r.ID, entities.ErrNotFound)
}

func (s *MemoryStore) CreateOutbound(ctx context.Context, e entities.AuditEntry) error {
	if e.ReplyTo == nil {
		return fmt.Errorf("%w: outbound audit entry needs reply_to", entities.ErrInvalidInput)
	}
	defer s.lock(ctx)()
	e.Direction = entities.DirectionOutbound
	e.ExternalID = ""
	s.audit = append(s.audit, e)
	return nil
}

func (s *MemoryStore) DailyUsage(ctx context.Context, since time.Time) ([]entities.DailyUsage, error) {
	defer s.lock(ctx)()
	byDay := make(map[time.Time]*entities.DailyUsage)
	for _, e := range s.audit {
		if e.ReceivedAt.Before(since) {
			continue
		}
		t := e.ReceivedAt.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		u, ok := byDay[day]
		if !ok {
			u = &entities.DailyUsage{Day: day}
			byDay[day] = u
		}
		if e.Direction == entities.DirectionOutbound {
			u.Sent++
			continue
		}
		u.Received++
		if e.Error != nil {
			u.Failed++
		}
	}

	out := make([]entities.DailyUsage, 0, len(byDay))
	for _, u := range byDay {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// AuditEntries returns a copy of the audit log, for tests.
func (s *MemoryStore) AuditEntries() []entities.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.AuditEntry(nil), s.audit...)
}
