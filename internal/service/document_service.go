package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/edustack/tutord/internal/filestore"
	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
	"github.com/edustack/tutord/internal/vectorindex"
)

const (
	maxTitleLen   = 500
	maxContentLen = 2 << 20

	defaultListLimit = 50
	maxListLimit     = 200
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, ownerID, docID string) (*model.Document, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error)
	Delete(ctx context.Context, ownerID, docID string) error
}

type ChunkStore interface {
	DeleteByDocument(ctx context.Context, documentID string) error
	ListByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error)
}

type IngestQueue interface {
	Enqueue(ctx context.Context, kind string, payload interface{}, dedupeKey string) (*model.Job, error)
}

type DocumentService struct {
	docs   DocumentStore
	chunks ChunkStore
	queue  IngestQueue
	index  vectorindex.Index
	files  filestore.Store
}

func NewDocumentService(docs DocumentStore, chunks ChunkStore, queue IngestQueue, index vectorindex.Index, files filestore.Store) *DocumentService {
	return &DocumentService{docs: docs, chunks: chunks, queue: queue, index: index, files: files}
}

// Submit registers study material and queues its ingestion. Exactly one
// of content and locator must be set. When a file store is configured,
// inline content is persisted there and the document carries only the
// locator. The returned document is in status pending; ingestion happens
// in the worker.
func (s *DocumentService) Submit(ctx context.Context, ownerID, title, content, locator string) (*model.Document, error) {
	ownerID = strings.TrimSpace(ownerID)
	title = strings.TrimSpace(title)
	locator = strings.TrimSpace(locator)
	if ownerID == "" {
		return nil, apperr.New(apperr.KindInvalid, "owner is required")
	}
	if len(title) > maxTitleLen {
		return nil, apperr.New(apperr.KindInvalid, "title is too long")
	}
	hasContent := strings.TrimSpace(content) != ""
	if hasContent == (locator != "") {
		return nil, apperr.New(apperr.KindInvalid, "exactly one of content and locator is required")
	}
	if len(content) > maxContentLen {
		return nil, apperr.New(apperr.KindInvalid, "content is too large")
	}

	docID := newID()
	if hasContent && s.files != nil {
		key := docID + ".md"
		reader := filestore.NopCloser(strings.NewReader(content))
		if err := s.files.Save(ctx, key, reader, int64(len(content))); err != nil {
			return nil, apperr.Wrap(apperr.KindTransient, err, "store document material")
		}
		locator = key
		content = ""
	}

	now := time.Now().Unix()
	doc := &model.Document{
		ID:      docID,
		OwnerID: ownerID,
		Title:   title,
		Content: content,
		Locator: locator,
		Status:  model.DocumentStatusPending,
		Ctime:   now,
		Mtime:   now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.enqueueIngest(ctx, doc.ID); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("document submitted",
		zap.String("document_id", doc.ID), zap.String("owner_id", ownerID))
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, ownerID, docID string) (*model.Document, error) {
	if ownerID == "" || docID == "" {
		return nil, apperr.New(apperr.KindInvalid, "owner and document id are required")
	}
	return s.docs.GetByID(ctx, ownerID, docID)
}

func (s *DocumentService) List(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error) {
	if ownerID == "" {
		return nil, apperr.New(apperr.KindInvalid, "owner is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.docs.ListByOwner(ctx, ownerID, limit, offset)
}

// ListChunks returns an owned document's chunks in ordinal order.
func (s *DocumentService) ListChunks(ctx context.Context, ownerID, docID string) ([]*model.Chunk, error) {
	if _, err := s.Get(ctx, ownerID, docID); err != nil {
		return nil, err
	}
	return s.chunks.ListByDocument(ctx, docID)
}

// Reingest queues another ingestion round for an owned document. The
// dedupe key keeps at most one active ingest job per document.
func (s *DocumentService) Reingest(ctx context.Context, ownerID, docID string) error {
	doc, err := s.Get(ctx, ownerID, docID)
	if err != nil {
		return err
	}
	return s.enqueueIngest(ctx, doc.ID)
}

// Delete removes a document with its chunks and index entries. Index
// entries go first so retrieval never cites a chunk that has no row.
func (s *DocumentService) Delete(ctx context.Context, ownerID, docID string) error {
	if _, err := s.Get(ctx, ownerID, docID); err != nil {
		return err
	}
	if err := s.index.DeleteByDocument(ctx, docID); err != nil {
		return err
	}
	if err := s.chunks.DeleteByDocument(ctx, docID); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, ownerID, docID); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("document deleted",
		zap.String("document_id", docID), zap.String("owner_id", ownerID))
	return nil
}

func (s *DocumentService) enqueueIngest(ctx context.Context, docID string) error {
	_, err := s.queue.Enqueue(ctx, model.JobKindIngestDocument,
		model.IngestPayload{DocumentID: docID}, "ingest:"+docID)
	return err
}
