package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Ajanth06/medsafe-udi-sub000/internal/blob"
	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

func newDocumentService(t *testing.T) (*Service, blob.Store) {
	t.Helper()
	store := blob.NewMemory()
	return NewInMemoryService(NewDefaultRulesEngine(), WithBlobStore(store), WithSignedURLTTL(5*time.Minute)), store
}

func TestContentIDAndBlobKey(t *testing.T) {
	cid := ContentID([]byte("abc"))
	const digest = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if cid != "sha256:"+digest {
		t.Fatalf("unexpected cid %s", cid)
	}
	if key := BlobKeyForCID(cid); key != "documents/"+digest {
		t.Fatalf("unexpected key %s", key)
	}
}

func TestUploadDocumentDeduplicatesContent(t *testing.T) {
	ctx := context.Background()
	svc, store := newDocumentService(t)

	first, _, err := svc.UploadDocument(ctx, testActor, DocumentUpload{Title: " IFU v1 ", UDI: "(01)04012345678901", ContentType: "application/pdf"}, strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if first.Title != "IFU v1" || first.SizeBytes != 9 || first.UploadedBy != testActor {
		t.Fatalf("unexpected document: %+v", first)
	}
	if first.CID != ContentID([]byte("pdf-bytes")) || first.BlobKey != BlobKeyForCID(first.CID) {
		t.Fatalf("unexpected content addressing: %+v", first)
	}

	second, _, err := svc.UploadDocument(ctx, testActor, DocumentUpload{Title: "IFU copy"}, strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if second.ID == first.ID || second.BlobKey != first.BlobKey {
		t.Fatalf("expected distinct documents sharing one blob: %+v %+v", first, second)
	}
	infos, err := store.List(ctx, "documents/")
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected one stored blob, got %d", len(infos))
	}

	if _, err := svc.DeleteDocument(ctx, testActor, first.ID); err != nil {
		t.Fatalf("delete first: %v", err)
	}
	if _, err := store.Head(ctx, first.BlobKey); err != nil {
		t.Fatalf("blob must stay while referenced: %v", err)
	}
	if _, err := svc.DeleteDocument(ctx, testActor, second.ID); err != nil {
		t.Fatalf("delete second: %v", err)
	}
	if _, err := store.Head(ctx, first.BlobKey); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected blob removed once unreferenced, got %v", err)
	}
}

func TestUploadDocumentValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDocumentService(t)
	blank := " "
	_, _, err := svc.UploadDocument(ctx, testActor, DocumentUpload{FailureModeID: &blank}, strings.NewReader("x"))
	var errs ValidationErrors
	if !errors.As(err, &errs) || !errs.Has("title") || !errs.Has("failure_mode_id") {
		t.Fatalf("expected title and failure mode errors, got %v", err)
	}
	if _, _, err := svc.UploadDocument(ctx, "", DocumentUpload{Title: "t"}, strings.NewReader("x")); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("expected actor required, got %v", err)
	}
	noBlobs := NewInMemoryService(NewDefaultRulesEngine())
	if _, _, err := noBlobs.UploadDocument(ctx, testActor, DocumentUpload{Title: "t"}, strings.NewReader("x")); !errors.Is(err, ErrBlobStoreUnavailable) {
		t.Fatalf("expected blob store unavailable, got %v", err)
	}
	if _, err := noBlobs.DocumentURL(ctx, "any", 0); !errors.Is(err, ErrBlobStoreUnavailable) {
		t.Fatalf("expected blob store unavailable, got %v", err)
	}
}

func TestUploadDocumentLinkedToMissingRowIsBlocked(t *testing.T) {
	ctx := context.Background()
	svc, store := newDocumentService(t)
	missing := "no-such-row"
	_, res, err := svc.UploadDocument(ctx, testActor, DocumentUpload{Title: "Report", FailureModeID: &missing}, strings.NewReader("report"))
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Rule != documentReferenceRuleName {
		t.Fatalf("unexpected violations: %+v", res.Violations)
	}
	if _, err := store.Head(ctx, BlobKeyForCID(ContentID([]byte("report")))); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("blob written for a rejected upload must be released, got %v", err)
	}
}

func TestDocumentsFollowFailureModeLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDocumentService(t)
	row, _, err := svc.CreateFailureMode(ctx, testActor, reviewRow())
	if err != nil {
		t.Fatalf("create row: %v", err)
	}
	doc, _, err := svc.UploadDocument(ctx, testActor, DocumentUpload{Title: "Test report", FailureModeID: &row.ID}, strings.NewReader("evidence"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, _, err := svc.UploadDocument(ctx, testActor, DocumentUpload{Title: "Unlinked"}, strings.NewReader("other")); err != nil {
		t.Fatalf("upload unlinked: %v", err)
	}

	linked, err := svc.ListDocuments(ctx, row.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(linked) != 1 || linked[0].ID != doc.ID {
		t.Fatalf("unexpected linked documents: %+v", linked)
	}
	all, _ := svc.ListDocuments(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected two documents, got %d", len(all))
	}

	if _, err := svc.DeleteFailureMode(ctx, testActor, row.ID); err != nil {
		t.Fatalf("delete row: %v", err)
	}
	got, err := svc.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.FailureModeID != nil {
		t.Fatalf("expected document detached from deleted row")
	}
}

func TestDocumentURL(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDocumentService(t)
	doc, _, err := svc.UploadDocument(ctx, testActor, DocumentUpload{Title: "IFU"}, strings.NewReader("ifu"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	url, err := svc.DocumentURL(ctx, doc.ID, 0)
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if !strings.Contains(url, doc.BlobKey) {
		t.Fatalf("expected url to reference blob key, got %s", url)
	}
	var notFound ErrNotFound
	if _, err := svc.DocumentURL(ctx, "missing", time.Minute); !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetDocument(ctx, "missing"); !errors.As(err, &notFound) || notFound.Entity != domain.EntityDocument {
		t.Fatalf("expected document not found, got %v", err)
	}
	if _, err := svc.DeleteDocument(ctx, testActor, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

// headHookStore runs onHead before delegating Head to the wrapped store.
type headHookStore struct {
	blob.Store
	onHead func(key string)
}

func (s *headHookStore) Head(ctx context.Context, key string) (blob.Info, error) {
	if s.onHead != nil {
		s.onHead(key)
	}
	return s.Store.Head(ctx, key)
}

func TestDeleteDocumentKeepsBlobClaimedByConcurrentUpload(t *testing.T) {
	ctx := context.Background()
	backing := blob.NewMemory()
	hooked := &headHookStore{Store: backing}
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithBlobStore(hooked))

	first, _, err := svc.UploadDocument(ctx, testActor, DocumentUpload{Title: "Risk file v1"}, strings.NewReader("shared"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	deleted := make(chan error, 1)
	hooked.onHead = func(string) {
		hooked.onHead = nil
		go func() {
			_, err := svc.DeleteDocument(ctx, testActor, first.ID)
			deleted <- err
		}()
		select {
		case err := <-deleted:
			deleted <- err
		case <-time.After(50 * time.Millisecond):
		}
	}
	second, _, err := svc.UploadDocument(ctx, testActor, DocumentUpload{Title: "Risk file v1 copy"}, strings.NewReader("shared"))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if err := <-deleted; err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.GetDocument(ctx, first.ID); err == nil {
		t.Fatalf("expected first document to be gone")
	}
	if _, err := backing.Head(ctx, second.BlobKey); err != nil {
		t.Fatalf("blob referenced by %s must survive the delete: %v", second.ID, err)
	}
}
