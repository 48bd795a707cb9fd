package repository

import "siteledger/internal/interfaces"

// PostgresStore bundles the repositories behind interfaces.Store.
type PostgresStore struct {
	*ContactRepository
	*ProjectRepository
	*LedgerRepository
	*AuditRepository
	*UsageRepository
	*TxManager
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{
		ContactRepository: NewContactRepository(db),
		ProjectRepository: NewProjectRepository(db),
		LedgerRepository:  NewLedgerRepository(db),
		AuditRepository:   NewAuditRepository(db),
		UsageRepository:   NewUsageRepository(db),
		TxManager:         NewTxManager(db),
	}
}

var (
	_ interfaces.Store      = (*PostgresStore)(nil)
	_ interfaces.UsageStore = (*PostgresStore)(nil)
)
