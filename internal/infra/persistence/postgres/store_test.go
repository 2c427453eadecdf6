package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/Ajanth06/medsafe-udi-sub000/internal/infra/persistence/postgres/testutil"
	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

func score(v float64) *float64 { return &v }

func openStub(t *testing.T) (*testutil.StubConn, func()) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	return conn, restore
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()

	if _, err := NewStore(context.Background(), "", domain.NewRulesEngine()); err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got execs: %v", conn.Execs)
	}
}

func TestRunInTransactionPersistsAndReloads(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()
	ctx := context.Background()

	store, err := NewStore(ctx, "ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var rowID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		row, err := tx.CreateFailureMode(domain.FailureMode{
			AnalysisID: "a-1",
			Severity:   score(9),
			Occurrence: score(9),
			Detection:  score(9),
		})
		rowID = row.ID
		return err
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if got := len(conn.Buckets); got != len(postgresBuckets) {
		t.Fatalf("expected %d bucket rows, got %d", len(postgresBuckets), got)
	}

	reloaded, err := NewStore(ctx, "ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	row, ok := reloaded.GetFailureMode(rowID)
	if !ok || row.RPN != 729 || row.Acceptability != domain.AcceptabilityNotAcceptable {
		t.Fatalf("expected reloaded row, got %+v", row)
	}
}

func TestRunInTransactionStopsOnUserError(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()
	store, err := NewStore(context.Background(), "ignored", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	boom := errors.New("boom")
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected user error, got %v", err)
	}
	if len(conn.Buckets) != 0 {
		t.Fatalf("expected no persisted buckets after failure")
	}
}

func TestRunInTransactionSurfacesPersistErrors(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()
	store, err := NewStore(context.Background(), "ignored", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	conn.FailBegin = true
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return nil }); err == nil {
		t.Fatalf("expected begin error")
	}
	conn.FailBegin = false

	conn.FailUpsert = true
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return nil }); err == nil {
		t.Fatalf("expected upsert error")
	}
	conn.FailUpsert = false

	conn.FailCommit = true
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return nil }); err == nil {
		t.Fatalf("expected commit error")
	}
	if len(conn.Buckets) != 0 {
		t.Fatalf("failed commits must not publish buckets, got %v", conn.Buckets)
	}
}

func TestNewStoreErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("open fail") })
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatalf("expected open error")
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatalf("expected ping error")
	}
	restore()

	db, conn = testutil.NewStubDB()
	conn.Buckets["failure_modes"] = []byte("{broken")
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestStoreDBExposesHandle(t *testing.T) {
	_, restore := openStub(t)
	defer restore()
	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() == nil {
		t.Fatalf("expected db handle")
	}
}
