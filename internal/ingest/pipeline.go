package ingest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/edustack/tutord/internal/chunker"
	"github.com/edustack/tutord/internal/filestore"
	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
	"github.com/edustack/tutord/internal/vectorindex"
)

type DocumentStore interface {
	GetAny(ctx context.Context, docID string) (*model.Document, error)
	SetStatus(ctx context.Context, docID string, from []model.DocumentStatus, to model.DocumentStatus, errorDetail string) error
	MarkReady(ctx context.Context, docID string, chunkCount int, modelName string) error
}

type ChunkStore interface {
	ReplaceForDocument(ctx context.Context, documentID string, chunks []*model.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// Pipeline turns one document into indexed chunks. It is the only
// writer of document status. Transient failures leave the document in
// ingesting and bubble up so the job is retried; permanent failures
// settle the document in failed with nothing left in the index.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder Embedder
	docs     DocumentStore
	chunks   ChunkStore
	index    vectorindex.Index
	files    filestore.Store
}

func NewPipeline(ck *chunker.Chunker, emb Embedder, docs DocumentStore, chunks ChunkStore, index vectorindex.Index, files filestore.Store) (*Pipeline, error) {
	if ck == nil || emb == nil || docs == nil || chunks == nil || index == nil {
		return nil, apperr.New(apperr.KindConfiguration, "ingest: all of chunker/embedder/stores/index are required")
	}
	return &Pipeline{chunker: ck, embedder: emb, docs: docs, chunks: chunks, index: index, files: files}, nil
}

func (p *Pipeline) Kind() string {
	return model.JobKindIngestDocument
}

func (p *Pipeline) Process(ctx context.Context, payload json.RawMessage) error {
	var req model.IngestPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return apperr.Wrap(apperr.KindInvalid, err, "decode ingest payload")
	}
	if req.DocumentID == "" {
		return apperr.New(apperr.KindInvalid, "ingest payload has no document_id")
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", req.DocumentID))

	doc, err := p.docs.GetAny(ctx, req.DocumentID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			logger.Info("document gone before ingestion, dropping job")
		}
		return err
	}
	anyStatus := []model.DocumentStatus{
		model.DocumentStatusPending, model.DocumentStatusIngesting,
		model.DocumentStatusReady, model.DocumentStatusFailed,
	}
	if err := p.docs.SetStatus(ctx, doc.ID, anyStatus, model.DocumentStatusIngesting, ""); err != nil {
		return err
	}

	content, err := p.loadContent(ctx, doc)
	if err != nil {
		return p.retryOrSettle(ctx, logger, doc.ID, err)
	}

	spans := p.chunker.Chunk(content)
	if len(spans) == 0 {
		err := apperr.New(apperr.KindEmptyDocument, "document produced no chunks")
		return p.settleFailure(ctx, logger, doc.ID, err)
	}

	texts := make([]string, 0, len(spans))
	for _, span := range spans {
		texts = append(texts, span.Text)
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return p.retryOrSettle(ctx, logger, doc.ID, err)
	}

	now := time.Now().Unix()
	chunks := make([]*model.Chunk, 0, len(spans))
	entries := make([]vectorindex.Entry, 0, len(spans))
	for i, span := range spans {
		chunk := &model.Chunk{
			ID:            newID(),
			DocumentID:    doc.ID,
			OwnerID:       doc.OwnerID,
			Ordinal:       span.Ordinal,
			Content:       span.Text,
			TokenCount:    span.TokenCount,
			OverlapTokens: span.OverlapTokens,
			Ctime:         now,
		}
		chunks = append(chunks, chunk)
		entries = append(entries, vectorindex.Entry{
			ChunkID:    chunk.ID,
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			Content:    span.Text,
			ModelName:  p.embedder.ModelName(),
			Vector:     vectors[i],
			DocMtime:   now,
		})
	}

	// stale entries from a previous round go first so re-ingestion
	// never leaves orphans behind renamed chunk ids
	if err := p.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return p.retryOrSettle(ctx, logger, doc.ID, err)
	}
	if err := p.index.Upsert(ctx, entries); err != nil {
		return p.retryOrSettle(ctx, logger, doc.ID, err)
	}
	if err := p.chunks.ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
		return p.retryOrSettle(ctx, logger, doc.ID, err)
	}
	if err := p.docs.MarkReady(ctx, doc.ID, len(chunks), p.embedder.ModelName()); err != nil {
		return p.retryOrSettle(ctx, logger, doc.ID, err)
	}
	logger.Info("document ingested", zap.Int("chunks", len(chunks)))
	return nil
}

func (p *Pipeline) loadContent(ctx context.Context, doc *model.Document) (string, error) {
	if doc.Content != "" {
		return doc.Content, nil
	}
	if doc.Locator == "" {
		return "", nil
	}
	if p.files == nil {
		return "", apperr.New(apperr.KindConfiguration, "document has a locator but no file store is configured")
	}
	rc, err := p.files.Open(ctx, doc.Locator)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, err, "open document material")
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, err, "read document material")
	}
	return string(data), nil
}

// retryOrSettle lets transient failures bubble up for a nack while a
// permanent failure at any step, including the index and chunk writes,
// settles the document in failed with nothing left behind.
func (p *Pipeline) retryOrSettle(ctx context.Context, logger *zap.Logger, docID string, err error) error {
	if apperr.IsRetryable(err) {
		logger.Warn("ingestion step failed, document left ingesting for retry", zap.Error(err))
		return err
	}
	return p.settleFailure(ctx, logger, docID, err)
}

// settleFailure marks the document failed and clears anything already
// indexed for it, so a failed document contributes nothing to retrieval.
func (p *Pipeline) settleFailure(ctx context.Context, logger *zap.Logger, docID string, cause error) error {
	if err := p.index.DeleteByDocument(ctx, docID); err != nil {
		logger.Error("clear index entries for failed document", zap.Error(err))
	}
	if err := p.chunks.DeleteByDocument(ctx, docID); err != nil {
		logger.Error("clear chunks for failed document", zap.Error(err))
	}
	detail := cause.Error()
	if ae, ok := cause.(*apperr.Error); ok {
		detail = ae.Message()
	}
	if err := p.docs.SetStatus(ctx, docID, nil, model.DocumentStatusFailed, detail); err != nil {
		logger.Error("mark document failed", zap.Error(err))
	}
	logger.Warn("document ingestion failed", zap.Error(cause))
	return cause
}

func newID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
