package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"siteledger/internal/entities"
)

// AIClient answers messages the classifier could not place.
type AIClient interface {
	GenerateResponse(ctx context.Context, prompt string) (string, error)
}

// InboundHandler is what a transport feeds every received message to.
type InboundHandler func(ctx context.Context, msg entities.InboundMessage) (entities.Response, error)

// Messenger pushes a reply to a transport that does not answer inline.
type Messenger interface {
	SendMessage(ctx context.Context, to string, resp entities.Response) error
}

// ContactStore persists contacts and their dialogue state.
type ContactStore interface {
	GetOrCreateContact(ctx context.Context, address, displayName string, defaults entities.ContactDefaults) (*entities.Contact, error)
	// UpdateDialogue writes only if the stored version still equals
	// upd.ExpectedVersion; otherwise it returns entities.ErrStateConflict.
	UpdateDialogue(ctx context.Context, upd entities.DialogueUpdate) error
}

// ProjectStore persists projects and budget changes.
type ProjectStore interface {
	// ActiveProject returns the contact's newest project or
	// entities.ErrNoActiveProject.
	ActiveProject(ctx context.Context, contactID int64) (*entities.Project, error)
	// LockProject re-reads the project and holds it until the surrounding
	// transaction ends.
	LockProject(ctx context.Context, projectID int64) (*entities.Project, error)
	CreateProject(ctx context.Context, p entities.NewProject) (*entities.Project, error)
	SetProjectBudget(ctx context.Context, projectID, budget int64) error
	CreateBudgetChange(ctx context.Context, change entities.BudgetChange) error
}

// LedgerStore persists the one-shot command records.
type LedgerStore interface {
	CreateExpense(ctx context.Context, e entities.Expense) (*entities.Expense, error)
	CreateTask(ctx context.Context, t entities.Task) (*entities.Task, error)
	CreateImage(ctx context.Context, img entities.Image) (*entities.Image, error)
	CountPendingTasks(ctx context.Context, contactID int64) (int, error)
	SpendingSummary(ctx context.Context, projectID int64) (*entities.SpendingSummary, error)
}

// AuditStore is the idempotency and audit log.
type AuditStore interface {
	// CreateInbound inserts e unless an entry with the same external id
	// exists, in which case the existing entry is returned with created=false.
	CreateInbound(ctx context.Context, e entities.AuditEntry) (entry *entities.AuditEntry, created bool, err error)
	FindInbound(ctx context.Context, externalID string) (*entities.AuditEntry, error)
	FindReply(ctx context.Context, inboundID uuid.UUID) (*entities.AuditEntry, error)
	MarkProcessed(ctx context.Context, r entities.AuditResult) error
	CreateOutbound(ctx context.Context, e entities.AuditEntry) error
}

// UsageStore reports message volume from the audit log.
type UsageStore interface {
	// DailyUsage returns one row per day with traffic since the given time,
	// oldest first.
	DailyUsage(ctx context.Context, since time.Time) ([]entities.DailyUsage, error)
}

// TxRunner runs fn in one transaction carried by the context.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is everything the engine needs from persistence.
type Store interface {
	ContactStore
	ProjectStore
	LedgerStore
	AuditStore
	TxRunner
}
