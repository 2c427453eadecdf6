package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Ajanth06/medsafe-udi-sub000/internal/blob"
	"github.com/Ajanth06/medsafe-udi-sub000/internal/infra/persistence/memory"
	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

const (
	defaultURLTTL = 15 * time.Minute
	defaultLocale = domain.LocaleGerman
)

// Service operation names used for tracing, metrics and audit entries.
const (
	OpCreateFailureMode   = "create_failure_mode"
	OpUpdateFailureMode   = "update_failure_mode"
	OpDeleteFailureMode   = "delete_failure_mode"
	OpGetFailureMode      = "get_failure_mode"
	OpListFailureModes    = "list_failure_modes"
	OpListAudit           = "list_audit"
	OpEvaluateFailureMode = "evaluate_failure_mode"
	OpListOverdue         = "list_overdue"
	OpUploadDocument      = "upload_document"
	OpDeleteDocument      = "delete_document"
	OpGetDocument         = "get_document"
	OpListDocuments       = "list_documents"
	OpDocumentURL         = "document_url"
)

type operationMeta struct {
	entity EntityType
	action Action
}

// auditedOperations lists the mutating operations passed to the AuditRecorder.
var auditedOperations = map[string]operationMeta{
	OpCreateFailureMode: {entity: EntityFailureMode, action: ActionCreate},
	OpUpdateFailureMode: {entity: EntityFailureMode, action: ActionUpdate},
	OpDeleteFailureMode: {entity: EntityFailureMode, action: ActionDelete},
	OpUploadDocument:    {entity: EntityDocument, action: ActionCreate},
	OpDeleteDocument:    {entity: EntityDocument, action: ActionDelete},
}

var (
	// ErrActorRequired is returned by mutating operations called without an actor.
	ErrActorRequired = errors.New("actor is required")
	// ErrBlobStoreUnavailable is returned by document operations when no blob store is configured.
	ErrBlobStoreUnavailable = errors.New("document storage is not configured")
)

// Service exposes transactional FMEA record operations with audit trail,
// document storage and observability hooks.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	blobs   blob.Store
	urlTTL  time.Duration
	locale  string

	blobMu sync.Mutex
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if clocked, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		clocked.SetNowFunc(cfg.clock.Now)
	}
	return &Service{
		store:   store,
		clock:   cfg.clock,
		logger:  cfg.logger,
		audit:   cfg.audit,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
		blobs:   cfg.blobs,
		urlTTL:  cfg.urlTTL,
		locale:  cfg.locale,
	}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Locale returns the locale used for evaluation labels.
func (s *Service) Locale() string {
	return s.locale
}

// Today returns the current date according to the service clock.
func (s *Service) Today() Date {
	return domain.DateOf(s.clock.Now())
}

// CreateFailureMode validates and persists a new row together with its
// insert audit record. An empty action status starts the row as open.
func (s *Service) CreateFailureMode(ctx context.Context, actor string, row FailureMode) (FailureMode, Result, error) {
	var (
		created FailureMode
		res     Result
	)
	err := s.observe(ctx, OpCreateFailureMode, actor, func(ctx context.Context) (string, error) {
		changedBy, err := requireActor(actor)
		if err != nil {
			return "", err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateFailureMode(row)
			if err != nil {
				return err
			}
			_, err = tx.AppendAudit(AuditRecord{
				Entity:    EntityFailureMode,
				EntityID:  created.ID,
				Action:    ActionCreate,
				ChangedBy: changedBy,
				Diff:      domain.BuildAuditDiff(nil, created),
			})
			return err
		})
		return created.ID, err
	})
	if err != nil {
		return FailureMode{}, res, err
	}
	return created, res, nil
}

// UpdateFailureMode applies mutator to an existing row, re-validates it and
// appends an update audit record with the field-level diff.
func (s *Service) UpdateFailureMode(ctx context.Context, actor, id string, mutator func(*FailureMode) error) (FailureMode, Result, error) {
	var (
		updated FailureMode
		res     Result
	)
	err := s.observe(ctx, OpUpdateFailureMode, actor, func(ctx context.Context) (string, error) {
		changedBy, err := requireActor(actor)
		if err != nil {
			return id, err
		}
		if mutator == nil {
			return id, fmt.Errorf("update failure mode %s: mutator is required", id)
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindFailureMode(id)
			if !ok {
				return ErrNotFound{Entity: EntityFailureMode, ID: id}
			}
			var err error
			updated, err = tx.UpdateFailureMode(id, mutator)
			if err != nil {
				return err
			}
			_, err = tx.AppendAudit(AuditRecord{
				Entity:    EntityFailureMode,
				EntityID:  id,
				Action:    ActionUpdate,
				ChangedBy: changedBy,
				Diff:      domain.BuildAuditDiff(&before, updated),
			})
			return err
		})
		return id, err
	})
	if err != nil {
		return FailureMode{}, res, err
	}
	return updated, res, nil
}

// DeleteFailureMode removes a row and its audit trail.
func (s *Service) DeleteFailureMode(ctx context.Context, actor, id string) (Result, error) {
	var res Result
	err := s.observe(ctx, OpDeleteFailureMode, actor, func(ctx context.Context) (string, error) {
		if _, err := requireActor(actor); err != nil {
			return id, err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindFailureMode(id); !ok {
				return ErrNotFound{Entity: EntityFailureMode, ID: id}
			}
			return tx.DeleteFailureMode(id)
		})
		return id, err
	})
	return res, err
}

// GetFailureMode returns a persisted row.
func (s *Service) GetFailureMode(ctx context.Context, id string) (FailureMode, error) {
	var row FailureMode
	err := s.observe(ctx, OpGetFailureMode, "", func(context.Context) (string, error) {
		var ok bool
		row, ok = s.store.GetFailureMode(id)
		if !ok {
			return id, ErrNotFound{Entity: EntityFailureMode, ID: id}
		}
		return id, nil
	})
	return row, err
}

// ListFailureModes returns the rows of one analysis, or all rows when
// analysisID is empty, ordered by creation time.
func (s *Service) ListFailureModes(ctx context.Context, analysisID string) ([]FailureMode, error) {
	var rows []FailureMode
	err := s.observe(ctx, OpListFailureModes, "", func(ctx context.Context) (string, error) {
		return analysisID, s.store.View(ctx, func(view TransactionView) error {
			rows = filterFailureModes(view.ListFailureModes(), func(row FailureMode) bool {
				return analysisID == "" || row.AnalysisID == analysisID
			})
			return nil
		})
	})
	return rows, err
}

// ListAudit returns the audit trail of a row, oldest first.
func (s *Service) ListAudit(ctx context.Context, id string) ([]AuditRecord, error) {
	var records []AuditRecord
	err := s.observe(ctx, OpListAudit, "", func(ctx context.Context) (string, error) {
		return id, s.store.View(ctx, func(view TransactionView) error {
			if _, ok := view.FindFailureMode(id); !ok {
				return ErrNotFound{Entity: EntityFailureMode, ID: id}
			}
			records = view.ListAuditRecords(id)
			return nil
		})
	})
	return records, err
}

// ListOverdue returns rows whose due date lies before today and whose action
// is not closed.
func (s *Service) ListOverdue(ctx context.Context, today Date) ([]FailureMode, error) {
	var rows []FailureMode
	err := s.observe(ctx, OpListOverdue, "", func(ctx context.Context) (string, error) {
		return "", s.store.View(ctx, func(view TransactionView) error {
			rows = filterFailureModes(view.ListFailureModes(), func(row FailureMode) bool {
				return row.IsOverdue(today)
			})
			return nil
		})
	})
	return rows, err
}

// Evaluation is the preview of a row: derived scores, display labels and
// the field errors that would block persisting it.
type Evaluation struct {
	Row         FailureMode      `json:"row"`
	Derived     Derived          `json:"derived"`
	Labels      Labels           `json:"labels"`
	StatusLabel string           `json:"action_status_label,omitempty"`
	Errors      ValidationErrors `json:"errors"`
	Valid       bool             `json:"valid"`
}

// Evaluate derives and validates row without persisting it.
func Evaluate(row FailureMode, locale string) Evaluation {
	row = row.Clone()
	derived := row.ApplyDerived()
	errs := domain.ValidateRow(row)
	if errs == nil {
		errs = ValidationErrors{}
	}
	return Evaluation{
		Row:         row,
		Derived:     derived,
		Labels:      domain.LabelsFor(derived, locale),
		StatusLabel: row.ActionStatus.Label(locale),
		Errors:      errs,
		Valid:       len(errs) == 0,
	}
}

// EvaluateFailureMode previews row in the service locale.
func (s *Service) EvaluateFailureMode(ctx context.Context, row FailureMode) Evaluation {
	var eval Evaluation
	_ = s.observe(ctx, OpEvaluateFailureMode, "", func(context.Context) (string, error) {
		eval = Evaluate(row, s.locale)
		return row.ID, nil
	})
	return eval
}

func filterFailureModes(rows []FailureMode, keep func(FailureMode) bool) []FailureMode {
	out := make([]FailureMode, 0, len(rows))
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

func requireActor(actor string) (string, error) {
	trimmed := strings.TrimSpace(actor)
	if trimmed == "" {
		return "", ErrActorRequired
	}
	return trimmed, nil
}

// observe wraps fn with a trace span, a metrics observation, failure logging
// and, for mutating operations, an audit entry. fn returns the affected
// entity id.
func (s *Service) observe(ctx context.Context, op, actor string, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	entityID, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logFailure(ctx, op, entityID, err)
		s.recordAuditError(ctx, op, actor, entityID, duration, err)
		return err
	}
	s.recordAuditSuccess(ctx, op, actor, entityID, duration)
	return nil
}

func (s *Service) logFailure(ctx context.Context, op, entityID string, err error) {
	var (
		violation RuleViolationError
		invalid   ValidationErrors
		notFound  ErrNotFound
	)
	switch {
	case errors.As(err, &violation):
		fields := violation.Result.FieldErrors().Fields()
		s.logger.Warn("operation blocked by rules",
			"operation", op,
			"entity_id", entityID,
			"violations", len(violation.Result.Violations),
			"fields", fields,
		)
		if observer, ok := s.metrics.(ValidationObserver); ok && len(fields) > 0 {
			observer.ObserveValidationFailures(ctx, fields)
		}
	case errors.As(err, &invalid):
		s.logger.Warn("operation rejected by validation", "operation", op, "fields", invalid.Fields())
	case errors.As(err, &notFound), errors.Is(err, ErrActorRequired):
		s.logger.Debug("operation rejected", "operation", op, "entity_id", entityID, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
	}
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, actor, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, actor, entityID, duration, AuditStatusSuccess, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, actor, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, actor, entityID, duration, AuditStatusError, err)
}

func (s *Service) recordAudit(ctx context.Context, op, actor, entityID string, duration time.Duration, status AuditStatus, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     strings.TrimSpace(actor),
		Status:    status,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
