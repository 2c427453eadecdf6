package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Ajanth06/medsafe-udi-sub000/internal/blob"
	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

// MaxDocumentSize bounds the content accepted by UploadDocument.
const MaxDocumentSize = 32 << 20

const (
	cidPrefix         = "sha256:"
	documentKeyPrefix = "documents/"
)

// DocumentUpload carries the metadata submitted with document content.
type DocumentUpload struct {
	Title         string
	UDI           string
	FailureModeID *string
	ContentType   string
}

// ContentID returns the content identifier of data: "sha256:" followed by
// the lowercase hex digest.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return cidPrefix + hex.EncodeToString(sum[:])
}

// BlobKeyForCID maps a content identifier to its blob key.
func BlobKeyForCID(cid string) string {
	return documentKeyPrefix + strings.TrimPrefix(cid, cidPrefix)
}

// UploadDocument stores content under its content identifier and records the
// document metadata. Identical content shares one blob.
func (s *Service) UploadDocument(ctx context.Context, actor string, upload DocumentUpload, r io.Reader) (Document, Result, error) {
	var (
		created Document
		res     Result
	)
	err := s.observe(ctx, OpUploadDocument, actor, func(ctx context.Context) (string, error) {
		uploadedBy, err := requireActor(actor)
		if err != nil {
			return "", err
		}
		if s.blobs == nil {
			return "", ErrBlobStoreUnavailable
		}
		if errs := validateUpload(upload); len(errs) > 0 {
			return "", errs
		}
		data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
		if err != nil {
			return "", fmt.Errorf("read document content: %w", err)
		}
		if len(data) > MaxDocumentSize {
			return "", domain.ValidationErrors{{Field: "file", Code: domain.CodeOutOfRange, Message: "document exceeds the maximum size"}}
		}
		cid := ContentID(data)
		key := BlobKeyForCID(cid)
		s.blobMu.Lock()
		defer s.blobMu.Unlock()
		stored, err := s.ensureBlob(ctx, key, upload.ContentType, data)
		if err != nil {
			return "", err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateDocument(Document{
				Title:         strings.TrimSpace(upload.Title),
				UDI:           strings.TrimSpace(upload.UDI),
				FailureModeID: upload.FailureModeID,
				CID:           cid,
				BlobKey:       key,
				ContentType:   upload.ContentType,
				SizeBytes:     int64(len(data)),
				UploadedBy:    uploadedBy,
			})
			return err
		})
		if err != nil && stored {
			s.releaseBlobLocked(ctx, key)
		}
		return created.ID, err
	})
	if err != nil {
		return Document{}, res, err
	}
	return created, res, nil
}

func validateUpload(upload DocumentUpload) domain.ValidationErrors {
	var errs domain.ValidationErrors
	if strings.TrimSpace(upload.Title) == "" {
		errs = append(errs, domain.FieldError{Field: "title", Code: domain.CodeRequired, Message: "title is required"})
	}
	if upload.FailureModeID != nil && strings.TrimSpace(*upload.FailureModeID) == "" {
		errs = append(errs, domain.FieldError{Field: "failure_mode_id", Code: domain.CodeRequired, Message: "failure mode id must not be blank"})
	}
	return errs
}

// ensureBlob writes data under key unless it already exists. It reports
// whether this call created the blob.
func (s *Service) ensureBlob(ctx context.Context, key, contentType string, data []byte) (bool, error) {
	_, err := s.blobs.Head(ctx, key)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, blob.ErrNotFound):
		return false, fmt.Errorf("head blob %s: %w", key, err)
	}
	_, err = s.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: contentType})
	if errors.Is(err, blob.ErrExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("put blob %s: %w", key, err)
	}
	return true, nil
}

// releaseBlob deletes key when no document references it anymore. The
// reference check and the delete run under blobMu, which uploads hold from
// ensureBlob until their document is committed.
func (s *Service) releaseBlob(ctx context.Context, key string) {
	s.blobMu.Lock()
	defer s.blobMu.Unlock()
	s.releaseBlobLocked(ctx, key)
}

func (s *Service) releaseBlobLocked(ctx context.Context, key string) {
	if s.blobReferenced(key) {
		return
	}
	if _, err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("delete unreferenced blob", "key", key, "error", err)
	}
}

func (s *Service) blobReferenced(key string) bool {
	for _, doc := range s.store.ListDocuments() {
		if doc.BlobKey == key {
			return true
		}
	}
	return false
}

// GetDocument returns document metadata.
func (s *Service) GetDocument(ctx context.Context, id string) (Document, error) {
	var doc Document
	err := s.observe(ctx, OpGetDocument, "", func(context.Context) (string, error) {
		var ok bool
		doc, ok = s.store.GetDocument(id)
		if !ok {
			return id, ErrNotFound{Entity: EntityDocument, ID: id}
		}
		return id, nil
	})
	return doc, err
}

// ListDocuments returns documents linked to failureModeID, or all documents
// when it is empty.
func (s *Service) ListDocuments(ctx context.Context, failureModeID string) ([]Document, error) {
	var docs []Document
	err := s.observe(ctx, OpListDocuments, "", func(ctx context.Context) (string, error) {
		return failureModeID, s.store.View(ctx, func(view TransactionView) error {
			all := view.ListDocuments()
			docs = make([]Document, 0, len(all))
			for _, doc := range all {
				if failureModeID == "" || (doc.FailureModeID != nil && *doc.FailureModeID == failureModeID) {
					docs = append(docs, doc)
				}
			}
			return nil
		})
	})
	return docs, err
}

// DocumentURL returns a time-limited download URL for a document. A
// non-positive ttl falls back to the configured default.
func (s *Service) DocumentURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	var url string
	err := s.observe(ctx, OpDocumentURL, "", func(ctx context.Context) (string, error) {
		if s.blobs == nil {
			return id, ErrBlobStoreUnavailable
		}
		doc, ok := s.store.GetDocument(id)
		if !ok {
			return id, ErrNotFound{Entity: EntityDocument, ID: id}
		}
		if ttl <= 0 {
			ttl = s.urlTTL
		}
		var err error
		url, err = s.blobs.PresignURL(ctx, doc.BlobKey, blob.SignedURLOptions{Method: "GET", Expiry: ttl})
		if err != nil {
			return id, fmt.Errorf("presign document %s: %w", id, err)
		}
		return id, nil
	})
	return url, err
}

// DeleteDocument removes document metadata and deletes the blob once no
// other document references it.
func (s *Service) DeleteDocument(ctx context.Context, actor, id string) (Result, error) {
	var res Result
	err := s.observe(ctx, OpDeleteDocument, actor, func(ctx context.Context) (string, error) {
		if _, err := requireActor(actor); err != nil {
			return id, err
		}
		var (
			key string
			err error
		)
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			doc, ok := tx.FindDocument(id)
			if !ok {
				return ErrNotFound{Entity: EntityDocument, ID: id}
			}
			key = doc.BlobKey
			return tx.DeleteDocument(id)
		})
		if err != nil {
			return id, err
		}
		if s.blobs != nil {
			s.releaseBlob(ctx, key)
		}
		return id, nil
	})
	return res, err
}
