package retrieve

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/edustack/tutord/internal/ai"
	"github.com/edustack/tutord/internal/chunker"
	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
	"github.com/edustack/tutord/internal/vectorindex"
)

// NoMaterialAnswer is returned verbatim when nothing relevant is
// indexed for the owner. The generator is not consulted in that case.
const NoMaterialAnswer = "I don't have any study material relevant to this question yet. Upload the related documents and ask again."

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

type TraceStore interface {
	Create(ctx context.Context, trace *model.AnswerTrace) error
}

type Config struct {
	DefaultTopK       int
	MaxTopK           int
	MaxContextTokens  int
	MinScore          float32
	GenerationTimeout time.Duration
}

type Answer struct {
	Text       string
	Citations  []model.Citation
	NoMaterial bool
}

// Orchestrator runs the synchronous ask path: embed the question, rank
// the owner's indexed chunks, build a grounded prompt and generate.
type Orchestrator struct {
	embedder  QueryEmbedder
	index     vectorindex.Index
	generator ai.IGenerator
	traces    TraceStore
	cfg       Config
}

func NewOrchestrator(embedder QueryEmbedder, index vectorindex.Index, generator ai.IGenerator, traces TraceStore, cfg Config) (*Orchestrator, error) {
	if embedder == nil || index == nil || generator == nil {
		return nil, apperr.New(apperr.KindConfiguration, "retrieve: embedder, index and generator are required")
	}
	if cfg.DefaultTopK <= 0 || cfg.MaxTopK < cfg.DefaultTopK {
		return nil, apperr.New(apperr.KindConfiguration, "retrieve: top_k bounds are invalid")
	}
	if cfg.MaxContextTokens <= 0 {
		return nil, apperr.New(apperr.KindConfiguration, "retrieve: max context tokens must be positive")
	}
	return &Orchestrator{embedder: embedder, index: index, generator: generator, traces: traces, cfg: cfg}, nil
}

func (o *Orchestrator) Answer(ctx context.Context, ownerID, question string, topK int) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.New(apperr.KindInvalidQuery, "question is empty")
	}
	if ownerID == "" {
		return nil, apperr.New(apperr.KindInvalidQuery, "owner is required")
	}
	if topK <= 0 {
		topK = o.cfg.DefaultTopK
	}
	if topK > o.cfg.MaxTopK {
		topK = o.cfg.MaxTopK
	}
	logger := logutil.GetLogger(ctx).With(zap.String("owner_id", ownerID))

	vector, err := o.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	// scoping to the active embedding model keeps rankings from ever
	// mixing vectors of different models; documents embedded under an
	// older model stay out until re-ingested
	matches, err := o.index.Query(ctx, vectorindex.Query{
		OwnerID:   ownerID,
		ModelName: o.embedder.ModelName(),
		Vector:    vector,
		TopK:      topK,
	})
	if err != nil {
		return nil, err
	}
	matches = o.filterByScore(matches)

	if len(matches) == 0 {
		answer := &Answer{Text: NoMaterialAnswer, NoMaterial: true}
		o.saveTrace(ctx, logger, ownerID, question, answer)
		return answer, nil
	}

	used := o.fitContext(matches)
	prompt := buildPrompt(question, used)

	genCtx := ctx
	if o.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, o.cfg.GenerationTimeout)
		defer cancel()
	}
	text, err := o.generator.Generate(genCtx, prompt)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGenerationUnavailable, err, "generation failed")
	}

	answer := &Answer{Text: text, Citations: citations(used)}
	o.saveTrace(ctx, logger, ownerID, question, answer)
	return answer, nil
}

func (o *Orchestrator) filterByScore(matches []vectorindex.Match) []vectorindex.Match {
	if o.cfg.MinScore <= 0 {
		return matches
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= o.cfg.MinScore {
			kept = append(kept, m)
		}
	}
	return kept
}

// fitContext keeps the best-ranked matches whose combined size stays
// within the context budget. Matches arrive ranked, so trimming from
// the tail always drops the least similar material first.
func (o *Orchestrator) fitContext(matches []vectorindex.Match) []vectorindex.Match {
	budget := o.cfg.MaxContextTokens
	var used []vectorindex.Match
	for _, m := range matches {
		tokens := chunker.CountTokens(m.Content)
		if len(used) > 0 && tokens > budget {
			break
		}
		used = append(used, m)
		budget -= tokens
		if budget <= 0 {
			break
		}
	}
	return used
}

func buildPrompt(question string, matches []vectorindex.Match) string {
	var sb strings.Builder
	sb.WriteString("You are a study tutor. Answer the question using only the study material below. ")
	sb.WriteString("If the material does not cover the question, say so instead of guessing.\n\n")
	sb.WriteString("Study material:\n")
	for i, m := range matches {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, strings.TrimSpace(m.Content))
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

func citations(matches []vectorindex.Match) []model.Citation {
	out := make([]model.Citation, 0, len(matches))
	for _, m := range matches {
		out = append(out, model.Citation{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Score:      m.Score,
		})
	}
	return out
}

// saveTrace is best effort; losing an audit row must not fail the ask.
func (o *Orchestrator) saveTrace(ctx context.Context, logger *zap.Logger, ownerID, question string, answer *Answer) {
	if o.traces == nil {
		return
	}
	trace := &model.AnswerTrace{
		ID:        newID(),
		OwnerID:   ownerID,
		Question:  question,
		Answer:    answer.Text,
		Citations: answer.Citations,
		Ctime:     time.Now().Unix(),
	}
	if err := o.traces.Create(ctx, trace); err != nil {
		logger.Error("save answer trace", zap.Error(err))
	}
}

func newID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
