package chunker

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/edustack/tutord/internal/pkg/apperr"
)

type Config struct {
	MaxTokens     int
	OverlapTokens int
	MinTokens     int
}

// Span is one chunk of document text. Ordinal is the position within the
// document; OverlapTokens records how many leading tokens were carried
// over from the previous span.
type Span struct {
	Text          string
	Ordinal       int
	TokenCount    int
	OverlapTokens int
}

// Chunker splits document text into bounded, overlapping spans. Chunking
// is deterministic: the same text and config always produce the same
// ordered sequence, which re-ingestion relies on.
type Chunker struct {
	cfg Config
}

func New(cfg Config) (*Chunker, error) {
	if cfg.MaxTokens <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "chunker: max_tokens must be positive, got %d", cfg.MaxTokens)
	}
	if cfg.OverlapTokens < 0 || cfg.OverlapTokens >= cfg.MaxTokens {
		return nil, apperr.Newf(apperr.KindConfiguration, "chunker: overlap_tokens must be in [0, max_tokens), got %d", cfg.OverlapTokens)
	}
	if cfg.MinTokens < 0 || cfg.MinTokens > cfg.MaxTokens {
		return nil, apperr.Newf(apperr.KindConfiguration, "chunker: min_tokens must be in [0, max_tokens], got %d", cfg.MinTokens)
	}
	return &Chunker{cfg: cfg}, nil
}

func (c *Chunker) Chunk(text string) []Span {
	segments := c.splitOversized(segment(text))
	if len(segments) == 0 {
		return nil
	}

	var spans []Span
	var parts []string
	tokens := 0
	carried := 0

	flush := func() {
		if len(parts) == 0 {
			return
		}
		spans = append(spans, Span{
			Text:          strings.Join(parts, " "),
			Ordinal:       len(spans),
			TokenCount:    tokens,
			OverlapTokens: carried,
		})
		parts = nil
		tokens = 0
		carried = 0
	}

	for _, seg := range segments {
		segTokens := CountTokens(seg)
		if tokens > 0 && tokens+segTokens > c.cfg.MaxTokens {
			prev := strings.Join(parts, " ")
			flush()
			seed := overlapTail(prev, c.cfg.OverlapTokens)
			if seed != "" {
				seedTokens := CountTokens(seed)
				// drop the seed rather than overflow the span bound
				if seedTokens+segTokens <= c.cfg.MaxTokens {
					parts = []string{seed}
					tokens = seedTokens
					carried = seedTokens
				}
			}
		}
		parts = append(parts, seg)
		tokens += segTokens
	}
	flush()

	// a trailing runt carries too little context on its own
	if len(spans) > 1 {
		last := spans[len(spans)-1]
		if last.TokenCount < c.cfg.MinTokens {
			prev := &spans[len(spans)-2]
			prev.Text = prev.Text + " " + last.Text
			prev.TokenCount = CountTokens(prev.Text)
			spans = spans[:len(spans)-1]
		}
	}
	return spans
}

// segment parses text as markdown and returns block-level pieces in
// document order. Plain text comes back as its paragraphs.
func segment(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	md := goldmark.New()
	source := []byte(text)
	reader := gmtext.NewReader(source)
	doc := md.Parser().Parse(reader)

	var segments []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			lang := string(n.Language(source))
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(source))
			}
			if strings.TrimSpace(code.String()) == "" {
				continue
			}
			segments = append(segments, "```"+lang+"\n"+code.String()+"```")
		default:
			txt := extractText(node, source)
			if txt == "" {
				continue
			}
			segments = append(segments, txt)
		}
	}
	return segments
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			sb.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

var sentenceRe = regexp.MustCompile(`[^.!?]*[.!?]+(?:\s|$)|[^.!?]+$`)

// splitOversized sentence-splits segments exceeding the span bound, then
// word-splits any single sentence that still exceeds it.
func (c *Chunker) splitOversized(segments []string) []string {
	var out []string
	for _, seg := range segments {
		if CountTokens(seg) <= c.cfg.MaxTokens {
			out = append(out, seg)
			continue
		}
		for _, sentence := range sentenceRe.FindAllString(seg, -1) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			if CountTokens(sentence) <= c.cfg.MaxTokens {
				out = append(out, sentence)
				continue
			}
			out = append(out, c.splitWords(sentence)...)
		}
	}
	return out
}

func (c *Chunker) splitWords(sentence string) []string {
	var out []string
	var parts []string
	tokens := 0
	for _, word := range strings.Fields(sentence) {
		wordTokens := CountTokens(word)
		if tokens > 0 && tokens+wordTokens > c.cfg.MaxTokens {
			out = append(out, strings.Join(parts, " "))
			parts = nil
			tokens = 0
		}
		parts = append(parts, word)
		tokens += wordTokens
	}
	if len(parts) > 0 {
		out = append(out, strings.Join(parts, " "))
	}
	return out
}

// overlapTail returns trailing words of text worth at most budget tokens.
func overlapTail(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	words := strings.Fields(text)
	tokens := 0
	start := len(words)
	for i := len(words) - 1; i >= 0; i-- {
		wordTokens := CountTokens(words[i])
		if tokens+wordTokens > budget {
			break
		}
		tokens += wordTokens
		start = i
	}
	if start == len(words) {
		return ""
	}
	return strings.Join(words[start:], " ")
}

// CountTokens estimates the token count of text: roughly one token per
// four latin characters, one per CJK rune.
func CountTokens(text string) int {
	ascii := 0
	count := 0
	for _, r := range text {
		if r >= 0x2E80 {
			count++
		} else {
			ascii++
		}
	}
	count += (ascii + 3) / 4
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
