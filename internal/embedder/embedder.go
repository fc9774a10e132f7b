package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/edustack/tutord/internal/ai"
	"github.com/edustack/tutord/internal/pkg/apperr"
)

const (
	defaultQueryCacheSize = 512
	defaultQueryCacheTTL  = 10 * time.Minute
)

type Config struct {
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

// Embedder binds a provider to a fixed model, dimension and batch size.
// Every vector it returns has exactly Dimension components.
type Embedder struct {
	provider ai.IProvider
	cfg      Config
	cache    *expirable.LRU[string, []float32]
}

func New(provider ai.IProvider, cfg Config) (*Embedder, error) {
	if provider == nil {
		return nil, apperr.New(apperr.KindConfiguration, "embedder: provider is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, apperr.New(apperr.KindConfiguration, "embedder: model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "embedder: dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.BatchSize <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "embedder: batch_size must be positive, got %d", cfg.BatchSize)
	}
	return &Embedder{
		provider: provider,
		cfg:      cfg,
		cache:    expirable.NewLRU[string, []float32](defaultQueryCacheSize, nil, defaultQueryCacheTTL),
	}, nil
}

func (e *Embedder) ModelName() string {
	return e.cfg.Model
}

func (e *Embedder) Dimension() int {
	return e.cfg.Dimension
}

// EmbedDocuments embeds texts in submission order, splitting the input
// into batches no larger than the configured bound.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embed(ctx, texts[start:end], ai.TaskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string. Identical queries within the
// cache TTL reuse the cached vector instead of calling the provider.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}
	vectors, err := e.embed(ctx, []string{text}, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, vectors[0])
	return vectors[0], nil
}

func (e *Embedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	vectors, err := e.provider.EmbedBatch(ctx, e.cfg.Model, texts, taskType, e.cfg.Dimension)
	if err != nil {
		return nil, e.classify(err)
	}
	for i, vec := range vectors {
		if len(vec) != e.cfg.Dimension {
			return nil, apperr.Newf(apperr.KindModel, "embedding %d has dimension %d, want %d", i, len(vec), e.cfg.Dimension)
		}
	}
	return vectors, nil
}

func (e *Embedder) classify(err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	switch {
	case errors.Is(err, ai.ErrUnavailable):
		return apperr.Wrap(apperr.KindConfiguration, err, "embedding provider unavailable")
	case ai.IsRetryable(err):
		return apperr.Wrap(apperr.KindTransient, err, "embedding request failed")
	default:
		return apperr.Wrap(apperr.KindModel, err, "embedding request rejected")
	}
}

func (e *Embedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", e.cfg.Model, e.cfg.Dimension, text)))
	return hex.EncodeToString(sum[:])
}
