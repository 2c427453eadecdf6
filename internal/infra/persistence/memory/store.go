// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// FailureMode aliases domain.FailureMode for in-memory persistence operations.
	FailureMode = domain.FailureMode
	// Document aliases domain.Document.
	Document = domain.Document
	// AuditRecord aliases domain.AuditRecord.
	AuditRecord = domain.AuditRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	failureModes map[string]FailureMode
	documents    map[string]Document
	audit        map[string]AuditRecord
	auditSeq     int64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	FailureModes map[string]FailureMode `json:"failure_modes"`
	Documents    map[string]Document    `json:"documents"`
	Audit        map[string]AuditRecord `json:"audit"`
}

func newMemoryState() memoryState {
	return memoryState{
		failureModes: make(map[string]FailureMode),
		documents:    make(map[string]Document),
		audit:        make(map[string]AuditRecord),
	}
}

func (s memoryState) clone() memoryState {
	cp := newMemoryState()
	for k, v := range s.failureModes {
		cp.failureModes[k] = v.Clone()
	}
	for k, v := range s.documents {
		cp.documents[k] = v.Clone()
	}
	for k, v := range s.audit {
		cp.audit[k] = v
	}
	cp.auditSeq = s.auditSeq
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cp := state.clone()
	return Snapshot{
		FailureModes: cp.failureModes,
		Documents:    cp.documents,
		Audit:        cp.audit,
	}
}

// memoryStateFromSnapshot hydrates state, re-deriving every row so that
// snapshots written by older versions never carry stale scores.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.FailureModes {
		row := v.Clone()
		row.ID = k
		row.ApplyDerived()
		state.failureModes[k] = row
	}
	for k, v := range s.Documents {
		doc := v.Clone()
		doc.ID = k
		state.documents[k] = doc
	}
	for k, v := range s.Audit {
		if _, ok := state.failureModes[v.EntityID]; !ok && v.Entity == domain.EntityFailureMode {
			continue
		}
		state.audit[k] = v
		if v.Seq > state.auditSeq {
			state.auditSeq = v.Seq
		}
	}
	return state
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListFailureModes returns all rows ordered by creation time then ID.
func (v transactionView) ListFailureModes() []FailureMode {
	out := make([]FailureMode, 0, len(v.state.failureModes))
	for _, row := range v.state.failureModes {
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindFailureMode retrieves a row by ID from the snapshot.
func (v transactionView) FindFailureMode(id string) (FailureMode, bool) {
	row, ok := v.state.failureModes[id]
	if !ok {
		return FailureMode{}, false
	}
	return row.Clone(), true
}

// ListDocuments returns all documents ordered by creation time then ID.
func (v transactionView) ListDocuments() []Document {
	out := make([]Document, 0, len(v.state.documents))
	for _, doc := range v.state.documents {
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindDocument retrieves a document by ID from the snapshot.
func (v transactionView) FindDocument(id string) (Document, bool) {
	doc, ok := v.state.documents[id]
	if !ok {
		return Document{}, false
	}
	return doc.Clone(), true
}

// ListAuditRecords returns the audit trail of one entity in append order.
// Records without a sequence number predate it and sort first by time.
func (v transactionView) ListAuditRecords(entityID string) []AuditRecord {
	var out []AuditRecord
	for _, rec := range v.state.audit {
		if rec.EntityID == entityID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetFailureMode returns a committed row by ID.
func (s *Store) GetFailureMode(id string) (FailureMode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindFailureMode(id)
}

// ListFailureModes returns all committed rows.
func (s *Store) ListFailureModes() []FailureMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListFailureModes()
}

// GetDocument returns committed document metadata by ID.
func (s *Store) GetDocument(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindDocument(id)
}

// ListDocuments returns all committed documents.
func (s *Store) ListDocuments() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListDocuments()
}

// ListAuditRecords returns the committed audit trail of one entity.
func (s *Store) ListAuditRecords(entityID string) []AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAuditRecords(entityID)
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindFailureMode exposes row lookup within the transaction scope.
func (tx *transaction) FindFailureMode(id string) (FailureMode, bool) {
	return newTransactionView(&tx.state).FindFailureMode(id)
}

// FindDocument exposes document lookup within the transaction scope.
func (tx *transaction) FindDocument(id string) (Document, bool) {
	return newTransactionView(&tx.state).FindDocument(id)
}

// CreateFailureMode stores a new row, starting it in status open and deriving
// its scores.
func (tx *transaction) CreateFailureMode(row FailureMode) (FailureMode, error) {
	if row.ID == "" {
		row.ID = tx.store.newID()
	}
	if _, exists := tx.state.failureModes[row.ID]; exists {
		return FailureMode{}, fmt.Errorf("failure mode %q already exists", row.ID)
	}
	if row.AnalysisID == "" {
		return FailureMode{}, fmt.Errorf("failure mode requires an analysis id")
	}
	if row.ActionStatus == "" {
		row.ActionStatus = domain.ActionOpen
	}
	row.ApplyDerived()
	row.CreatedAt = tx.now
	row.UpdatedAt = tx.now
	tx.state.failureModes[row.ID] = row.Clone()
	tx.recordChange(Change{Entity: domain.EntityFailureMode, Action: domain.ActionCreate, After: row.Clone()})
	return row.Clone(), nil
}

// UpdateFailureMode mutates an existing row and re-derives its scores.
func (tx *transaction) UpdateFailureMode(id string, mutator func(*FailureMode) error) (FailureMode, error) {
	current, ok := tx.state.failureModes[id]
	if !ok {
		return FailureMode{}, fmt.Errorf("failure mode %q not found", id)
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return FailureMode{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if current.ActionStatus == "" {
		current.ActionStatus = domain.ActionOpen
	}
	current.ApplyDerived()
	current.UpdatedAt = tx.now
	tx.state.failureModes[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityFailureMode, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteFailureMode removes a row and its audit trail. Documents that pointed
// at the row are detached rather than deleted.
func (tx *transaction) DeleteFailureMode(id string) error {
	current, ok := tx.state.failureModes[id]
	if !ok {
		return fmt.Errorf("failure mode %q not found", id)
	}
	delete(tx.state.failureModes, id)
	for key, rec := range tx.state.audit {
		if rec.Entity == domain.EntityFailureMode && rec.EntityID == id {
			delete(tx.state.audit, key)
		}
	}
	for docID, doc := range tx.state.documents {
		if doc.FailureModeID != nil && *doc.FailureModeID == id {
			doc.FailureModeID = nil
			tx.state.documents[docID] = doc
		}
	}
	tx.recordChange(Change{Entity: domain.EntityFailureMode, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// CreateDocument stores document metadata.
func (tx *transaction) CreateDocument(doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = tx.store.newID()
	}
	if _, exists := tx.state.documents[doc.ID]; exists {
		return Document{}, fmt.Errorf("document %q already exists", doc.ID)
	}
	if doc.CID == "" || doc.BlobKey == "" {
		return Document{}, fmt.Errorf("document requires content id and blob key")
	}
	doc.CreatedAt = tx.now
	tx.state.documents[doc.ID] = doc.Clone()
	tx.recordChange(Change{Entity: domain.EntityDocument, Action: domain.ActionCreate, After: doc.Clone()})
	return doc.Clone(), nil
}

// DeleteDocument removes document metadata.
func (tx *transaction) DeleteDocument(id string) error {
	current, ok := tx.state.documents[id]
	if !ok {
		return fmt.Errorf("document %q not found", id)
	}
	delete(tx.state.documents, id)
	tx.recordChange(Change{Entity: domain.EntityDocument, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// AppendAudit stores an audit record and stamps its store-wide sequence
// number. Records are immutable once written.
func (tx *transaction) AppendAudit(rec AuditRecord) (AuditRecord, error) {
	if rec.EntityID == "" {
		return AuditRecord{}, fmt.Errorf("audit record requires an entity id")
	}
	if rec.ID == "" {
		rec.ID = tx.store.newID()
	}
	if _, exists := tx.state.audit[rec.ID]; exists {
		return AuditRecord{}, fmt.Errorf("audit record %q already exists", rec.ID)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = tx.now
	}
	tx.state.auditSeq++
	rec.Seq = tx.state.auditSeq
	tx.state.audit[rec.ID] = rec
	return rec, nil
}
