package service

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edustack/tutord/internal/filestore"
	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
	"github.com/edustack/tutord/internal/vectorindex"
)

type fakeDocStore struct {
	docs map[string]*model.Document
}

func (f *fakeDocStore) Create(ctx context.Context, doc *model.Document) error {
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeDocStore) GetByID(ctx context.Context, ownerID, docID string) (*model.Document, error) {
	doc, ok := f.docs[docID]
	if !ok || doc.OwnerID != ownerID {
		return nil, apperr.New(apperr.KindNotFound, "document not found")
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error) {
	var docs []*model.Document
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			copied := *doc
			docs = append(docs, &copied)
		}
	}
	return docs, nil
}

func (f *fakeDocStore) Delete(ctx context.Context, ownerID, docID string) error {
	doc, ok := f.docs[docID]
	if !ok || doc.OwnerID != ownerID {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	delete(f.docs, docID)
	return nil
}

type fakeChunkStore struct {
	byDocument map[string][]*model.Chunk
}

func (f *fakeChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	delete(f.byDocument, documentID)
	return nil
}

func (f *fakeChunkStore) ListByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	return f.byDocument[documentID], nil
}

type fakeQueue struct {
	kinds      []string
	dedupeKeys []string
}

func (f *fakeQueue) Enqueue(ctx context.Context, kind string, payload interface{}, dedupeKey string) (*model.Job, error) {
	f.kinds = append(f.kinds, kind)
	f.dedupeKeys = append(f.dedupeKeys, dedupeKey)
	return &model.Job{ID: "j1", Kind: kind}, nil
}

type fakeFileStore struct {
	saved map[string]string
}

func (f *fakeFileStore) Save(ctx context.Context, key string, r filestore.ReadSeekCloser, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.saved[key] = string(data)
	return nil
}

func (f *fakeFileStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, apperr.New(apperr.KindNotFound, "no such key")
}

type serviceFixture struct {
	service *DocumentService
	docs    *fakeDocStore
	chunks  *fakeChunkStore
	queue   *fakeQueue
	files   *fakeFileStore
}

func newServiceFixture(t *testing.T, withFiles bool) *serviceFixture {
	t.Helper()
	docs := &fakeDocStore{docs: map[string]*model.Document{}}
	chunks := &fakeChunkStore{byDocument: map[string][]*model.Chunk{}}
	queue := &fakeQueue{}
	index, err := vectorindex.NewMemory(3)
	require.NoError(t, err)
	var files filestore.Store
	var fakeFiles *fakeFileStore
	if withFiles {
		fakeFiles = &fakeFileStore{saved: map[string]string{}}
		files = fakeFiles
	}
	return &serviceFixture{
		service: NewDocumentService(docs, chunks, queue, index, files),
		docs:    docs,
		chunks:  chunks,
		queue:   queue,
		files:   fakeFiles,
	}
}

func TestSubmit_OffloadsContentToFileStore(t *testing.T) {
	f := newServiceFixture(t, true)

	doc, err := f.service.Submit(context.Background(), "alice", "notes", "Osmosis moves water.", "")
	require.NoError(t, err)
	require.Equal(t, doc.ID+".md", doc.Locator)
	require.Empty(t, doc.Content)
	require.Equal(t, "Osmosis moves water.", f.files.saved[doc.Locator])
	require.Equal(t, []string{model.JobKindIngestDocument}, f.queue.kinds)
	require.Equal(t, []string{"ingest:" + doc.ID}, f.queue.dedupeKeys)
}

func TestSubmit_InlineWithoutFileStore(t *testing.T) {
	f := newServiceFixture(t, false)

	doc, err := f.service.Submit(context.Background(), "alice", "notes", "Osmosis moves water.", "")
	require.NoError(t, err)
	require.Empty(t, doc.Locator)
	require.Equal(t, "Osmosis moves water.", doc.Content)
	require.Equal(t, model.DocumentStatusPending, doc.Status)
}

func TestSubmit_ContentXorLocator(t *testing.T) {
	f := newServiceFixture(t, false)

	_, err := f.service.Submit(context.Background(), "alice", "notes", "", "")
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = f.service.Submit(context.Background(), "alice", "notes", "text", "key.md")
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestListChunks_ChecksOwnership(t *testing.T) {
	f := newServiceFixture(t, false)
	f.docs.docs["d1"] = &model.Document{ID: "d1", OwnerID: "alice", Status: model.DocumentStatusReady}
	f.chunks.byDocument["d1"] = []*model.Chunk{
		{ID: "c1", DocumentID: "d1", Ordinal: 0, Content: "Osmosis moves water."},
	}

	chunks, err := f.service.ListChunks(context.Background(), "alice", "d1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	_, err = f.service.ListChunks(context.Background(), "bob", "d1")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDelete_CascadesChunks(t *testing.T) {
	f := newServiceFixture(t, false)
	f.docs.docs["d1"] = &model.Document{ID: "d1", OwnerID: "alice", Status: model.DocumentStatusReady}
	f.chunks.byDocument["d1"] = []*model.Chunk{{ID: "c1", DocumentID: "d1"}}

	require.NoError(t, f.service.Delete(context.Background(), "alice", "d1"))
	require.Empty(t, f.docs.docs)
	require.Empty(t, f.chunks.byDocument)
}
