package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edustack/tutord/internal/chunker"
	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
	"github.com/edustack/tutord/internal/vectorindex"
)

type fakeDocStore struct {
	docs         map[string]*model.Document
	markReadyErr error
}

func (f *fakeDocStore) GetAny(ctx context.Context, docID string) (*model.Document, error) {
	doc, ok := f.docs[docID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "document not found")
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocStore) SetStatus(ctx context.Context, docID string, from []model.DocumentStatus, to model.DocumentStatus, errorDetail string) error {
	doc, ok := f.docs[docID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	doc.Status = to
	doc.ErrorDetail = errorDetail
	return nil
}

func (f *fakeDocStore) MarkReady(ctx context.Context, docID string, chunkCount int, modelName string) error {
	if f.markReadyErr != nil {
		return f.markReadyErr
	}
	doc, ok := f.docs[docID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	doc.Status = model.DocumentStatusReady
	doc.ErrorDetail = ""
	doc.ChunkCount = chunkCount
	doc.ModelName = modelName
	return nil
}

type fakeChunkStore struct {
	byDocument map[string][]*model.Chunk
	replaceErr error
}

func (f *fakeChunkStore) ReplaceForDocument(ctx context.Context, documentID string, chunks []*model.Chunk) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.byDocument[documentID] = chunks
	return nil
}

func (f *fakeChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	delete(f.byDocument, documentID)
	return nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) ModelName() string { return "test-model" }

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i + 1), 0, 0}
	}
	return vectors, nil
}

type fixture struct {
	pipeline *Pipeline
	docs     *fakeDocStore
	chunks   *fakeChunkStore
	embedder *fakeEmbedder
	index    *vectorindex.MemoryIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ck, err := chunker.New(chunker.Config{MaxTokens: 50, OverlapTokens: 5})
	require.NoError(t, err)
	docs := &fakeDocStore{docs: map[string]*model.Document{}}
	chunks := &fakeChunkStore{byDocument: map[string][]*model.Chunk{}}
	emb := &fakeEmbedder{}
	index, err := vectorindex.NewMemory(3)
	require.NoError(t, err)
	pipeline, err := NewPipeline(ck, emb, docs, chunks, index, nil)
	require.NoError(t, err)
	return &fixture{pipeline: pipeline, docs: docs, chunks: chunks, embedder: emb, index: index}
}

func payloadFor(t *testing.T, docID string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(model.IngestPayload{DocumentID: docID})
	require.NoError(t, err)
	return data
}

func addDocument(f *fixture, id, content string) {
	f.docs.docs[id] = &model.Document{
		ID:      id,
		OwnerID: "alice",
		Title:   "notes",
		Content: content,
		Status:  model.DocumentStatusPending,
	}
}

func TestProcess_HappyPath(t *testing.T) {
	f := newFixture(t)
	addDocument(f, "d1", "Osmosis moves water across a membrane. Diffusion spreads solutes along a gradient.")

	err := f.pipeline.Process(context.Background(), payloadFor(t, "d1"))
	require.NoError(t, err)

	doc := f.docs.docs["d1"]
	require.Equal(t, model.DocumentStatusReady, doc.Status)
	require.Equal(t, "test-model", doc.ModelName)
	require.Greater(t, doc.ChunkCount, 0)
	require.Len(t, f.chunks.byDocument["d1"], doc.ChunkCount)
	require.Equal(t, doc.ChunkCount, f.index.Len())
}

func TestProcess_EmptyDocumentFailsPermanently(t *testing.T) {
	f := newFixture(t)
	addDocument(f, "d1", "   \n  ")

	err := f.pipeline.Process(context.Background(), payloadFor(t, "d1"))
	require.Equal(t, apperr.KindEmptyDocument, apperr.KindOf(err))
	require.Equal(t, model.DocumentStatusFailed, f.docs.docs["d1"].Status)
	require.NotEmpty(t, f.docs.docs["d1"].ErrorDetail)
	require.Equal(t, 0, f.index.Len())
	require.Equal(t, 0, f.embedder.calls)
}

func TestProcess_ModelErrorClearsIndex(t *testing.T) {
	f := newFixture(t)
	addDocument(f, "d1", "Osmosis moves water across a membrane.")

	// first round succeeds and populates the index
	require.NoError(t, f.pipeline.Process(context.Background(), payloadFor(t, "d1")))
	require.Greater(t, f.index.Len(), 0)

	// re-ingestion hits a permanent model failure
	f.embedder.err = apperr.New(apperr.KindModel, "input rejected")
	err := f.pipeline.Process(context.Background(), payloadFor(t, "d1"))
	require.Equal(t, apperr.KindModel, apperr.KindOf(err))
	require.Equal(t, model.DocumentStatusFailed, f.docs.docs["d1"].Status)
	require.Equal(t, 0, f.index.Len())
	require.Empty(t, f.chunks.byDocument["d1"])
}

func TestProcess_TransientErrorLeavesIngesting(t *testing.T) {
	f := newFixture(t)
	addDocument(f, "d1", "Osmosis moves water across a membrane.")
	f.embedder.err = apperr.New(apperr.KindTransient, "provider timeout")

	err := f.pipeline.Process(context.Background(), payloadFor(t, "d1"))
	require.True(t, apperr.IsRetryable(err))
	require.Equal(t, model.DocumentStatusIngesting, f.docs.docs["d1"].Status)
	require.Equal(t, 0, f.index.Len())
	require.Empty(t, f.chunks.byDocument["d1"])
}

func TestProcess_BadPayload(t *testing.T) {
	f := newFixture(t)

	err := f.pipeline.Process(context.Background(), json.RawMessage(`{`))
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	err = f.pipeline.Process(context.Background(), json.RawMessage(`{}`))
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	err = f.pipeline.Process(context.Background(), payloadFor(t, "missing"))
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestProcess_MarkReadyNotFoundCleansUp(t *testing.T) {
	f := newFixture(t)
	addDocument(f, "d1", "Osmosis moves water across a membrane.")

	// the document is deleted while the job runs; the finishing write
	// fails permanently and must not leave entries or chunks behind
	f.docs.markReadyErr = apperr.New(apperr.KindNotFound, "document not found")
	err := f.pipeline.Process(context.Background(), payloadFor(t, "d1"))
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.Equal(t, 0, f.index.Len())
	require.Empty(t, f.chunks.byDocument["d1"])
	require.Equal(t, model.DocumentStatusFailed, f.docs.docs["d1"].Status)
}

func TestProcess_TransientChunkWriteLeavesIngesting(t *testing.T) {
	f := newFixture(t)
	addDocument(f, "d1", "Osmosis moves water across a membrane.")

	f.chunks.replaceErr = apperr.New(apperr.KindTransient, "db connection reset")
	err := f.pipeline.Process(context.Background(), payloadFor(t, "d1"))
	require.True(t, apperr.IsRetryable(err))
	require.Equal(t, model.DocumentStatusIngesting, f.docs.docs["d1"].Status)
}

func TestProcess_LocatorWithoutStoreFails(t *testing.T) {
	f := newFixture(t)
	f.docs.docs["d1"] = &model.Document{
		ID:      "d1",
		OwnerID: "alice",
		Locator: "notes.txt",
		Status:  model.DocumentStatusPending,
	}

	err := f.pipeline.Process(context.Background(), payloadFor(t, "d1"))
	require.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	require.Equal(t, model.DocumentStatusFailed, f.docs.docs["d1"].Status)
}
