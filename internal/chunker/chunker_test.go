package chunker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edustack/tutord/internal/pkg/apperr"
)

func TestNew_RejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero max", Config{MaxTokens: 0}},
		{"negative overlap", Config{MaxTokens: 10, OverlapTokens: -1}},
		{"overlap not below max", Config{MaxTokens: 10, OverlapTokens: 10}},
		{"min above max", Config{MaxTokens: 10, OverlapTokens: 2, MinTokens: 11}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			require.Error(t, err)
			require.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
		})
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	c, err := New(Config{MaxTokens: 100, OverlapTokens: 10})
	require.NoError(t, err)
	require.Nil(t, c.Chunk(""))
	require.Nil(t, c.Chunk("   \n\t  "))
}

func TestChunk_SmallTextSingleSpan(t *testing.T) {
	c, err := New(Config{MaxTokens: 100, OverlapTokens: 10})
	require.NoError(t, err)
	spans := c.Chunk("Mitochondria produce ATP.")
	require.Len(t, spans, 1)
	require.Equal(t, 0, spans[0].Ordinal)
	require.Equal(t, 0, spans[0].OverlapTokens)
	require.Equal(t, "Mitochondria produce ATP.", spans[0].Text)
}

func TestChunk_SplitsWithOverlap(t *testing.T) {
	c, err := New(Config{MaxTokens: 10, OverlapTokens: 2})
	require.NoError(t, err)
	text := "Photosynthesis converts light into chemical energy. Plants use chlorophyll."
	spans := c.Chunk(text)
	require.Len(t, spans, 3)
	require.Equal(t, "Photosynthesis converts light into", spans[0].Text)
	require.Equal(t, "into chemical energy.", spans[1].Text)
	require.Equal(t, "energy. Plants use chlorophyll.", spans[2].Text)
	require.Equal(t, []int{0, 1, 2}, []int{spans[0].Ordinal, spans[1].Ordinal, spans[2].Ordinal})
	require.Equal(t, 0, spans[0].OverlapTokens)
	require.Equal(t, 1, spans[1].OverlapTokens)
	require.Equal(t, 2, spans[2].OverlapTokens)
	for _, span := range spans {
		require.LessOrEqual(t, span.TokenCount, 10)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c, err := New(Config{MaxTokens: 12, OverlapTokens: 3})
	require.NoError(t, err)
	text := "The cell cycle has four phases. Interphase covers growth and DNA replication. " +
		"Mitosis divides the nucleus. Cytokinesis splits the cytoplasm into two cells."
	first := c.Chunk(text)
	second := c.Chunk(text)
	require.Equal(t, first, second)
	require.Greater(t, len(first), 1)
}

func TestChunk_MergesTrailingRunt(t *testing.T) {
	c, err := New(Config{MaxTokens: 10, OverlapTokens: 0, MinTokens: 5})
	require.NoError(t, err)
	// packs into two spans, the second below min_tokens
	spans := c.Chunk("Enzymes catalyze many biochemical reactions. End.")
	require.Len(t, spans, 1)
	require.Equal(t, "Enzymes catalyze many biochemical reactions. End.", spans[0].Text)
}

func TestSegment_MarkdownBlocks(t *testing.T) {
	text := "# Osmosis\n\nWater moves across membranes.\n\n```py\nprint(1)\n```\n"
	segments := segment(text)
	require.Len(t, segments, 3)
	require.Equal(t, "Osmosis", segments[0])
	require.Equal(t, "Water moves across membranes.", segments[1])
	require.Contains(t, segments[2], "```py")
	require.Contains(t, segments[2], "print(1)")
}

func TestCountTokens(t *testing.T) {
	require.Equal(t, 0, CountTokens(""))
	require.Equal(t, 1, CountTokens("a"))
	require.Equal(t, 1, CountTokens("word"))
	require.Equal(t, 3, CountTokens("hello world"))
	// CJK runes count one token apiece
	require.Equal(t, 2, CountTokens("光合"))
}
