package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edustack/tutord/internal/ai"
	"github.com/edustack/tutord/internal/pkg/apperr"
)

type fakeProvider struct {
	dim        int
	err        error
	calls      int
	batchSizes []int
	taskTypes  []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return "", nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string, dimension int) ([][]float32, error) {
	f.calls++
	f.batchSizes = append(f.batchSizes, len(texts))
	f.taskTypes = append(f.taskTypes, taskType)
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, f.dim)
		vectors[i][0] = float32(i + 1)
	}
	return vectors, nil
}

func newTestEmbedder(t *testing.T, provider *fakeProvider, batchSize int) *Embedder {
	t.Helper()
	emb, err := New(provider, Config{Model: "test-model", Dimension: 3, BatchSize: batchSize})
	require.NoError(t, err)
	return emb
}

func TestNew_RejectsBadConfig(t *testing.T) {
	provider := &fakeProvider{dim: 3}
	_, err := New(nil, Config{Model: "m", Dimension: 3, BatchSize: 1})
	require.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	_, err = New(provider, Config{Dimension: 3, BatchSize: 1})
	require.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	_, err = New(provider, Config{Model: "m", BatchSize: 1})
	require.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	_, err = New(provider, Config{Model: "m", Dimension: 3})
	require.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestEmbedDocuments_Batches(t *testing.T) {
	provider := &fakeProvider{dim: 3}
	emb := newTestEmbedder(t, provider, 2)

	vectors, err := emb.EmbedDocuments(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	require.Equal(t, 3, provider.calls)
	require.Equal(t, []int{2, 2, 1}, provider.batchSizes)
	for _, taskType := range provider.taskTypes {
		require.Equal(t, ai.TaskRetrievalDocument, taskType)
	}
}

func TestEmbedDocuments_EmptyInput(t *testing.T) {
	provider := &fakeProvider{dim: 3}
	emb := newTestEmbedder(t, provider, 2)
	vectors, err := emb.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vectors)
	require.Equal(t, 0, provider.calls)
}

func TestEmbedDocuments_DimensionMismatch(t *testing.T) {
	provider := &fakeProvider{dim: 5}
	emb := newTestEmbedder(t, provider, 2)
	_, err := emb.EmbedDocuments(context.Background(), []string{"a"})
	require.Equal(t, apperr.KindModel, apperr.KindOf(err))
}

func TestEmbedQuery_CachesRepeatQuestions(t *testing.T) {
	provider := &fakeProvider{dim: 3}
	emb := newTestEmbedder(t, provider, 2)
	ctx := context.Background()

	first, err := emb.EmbedQuery(ctx, "what is osmosis")
	require.NoError(t, err)
	second, err := emb.EmbedQuery(ctx, "what is osmosis")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, provider.calls)
	require.Equal(t, []string{ai.TaskRetrievalQuery}, provider.taskTypes)

	_, err = emb.EmbedQuery(ctx, "a different question")
	require.NoError(t, err)
	require.Equal(t, 2, provider.calls)
}

func TestClassify(t *testing.T) {
	provider := &fakeProvider{dim: 3}
	emb := newTestEmbedder(t, provider, 2)
	ctx := context.Background()

	provider.err = errors.New("connection reset")
	_, err := emb.EmbedDocuments(ctx, []string{"a"})
	require.Equal(t, apperr.KindTransient, apperr.KindOf(err))

	provider.err = ai.ErrUnavailable
	_, err = emb.EmbedDocuments(ctx, []string{"a"})
	require.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))

	provider.err = apperr.New(apperr.KindModel, "bad input")
	_, err = emb.EmbedDocuments(ctx, []string{"a"})
	require.Equal(t, apperr.KindModel, apperr.KindOf(err))
}
