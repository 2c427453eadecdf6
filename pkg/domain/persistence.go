package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateFailureMode(FailureMode) (FailureMode, error)
	UpdateFailureMode(id string, mutator func(*FailureMode) error) (FailureMode, error)
	// DeleteFailureMode removes the row together with its audit records.
	DeleteFailureMode(id string) error
	FindFailureMode(id string) (FailureMode, bool)
	CreateDocument(Document) (Document, error)
	DeleteDocument(id string) error
	FindDocument(id string) (Document, bool)
	AppendAudit(AuditRecord) (AuditRecord, error)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListFailureModes() []FailureMode
	FindFailureMode(id string) (FailureMode, bool)
	ListDocuments() []Document
	FindDocument(id string) (Document, bool)
	ListAuditRecords(entityID string) []AuditRecord
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetFailureMode(id string) (FailureMode, bool)
	ListFailureModes() []FailureMode
	GetDocument(id string) (Document, bool)
	ListDocuments() []Document
	ListAuditRecords(entityID string) []AuditRecord
}
