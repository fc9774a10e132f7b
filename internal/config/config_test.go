package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `{
	"port": 8080,
	"database": {"host": "localhost", "port": 5432, "user": "tutord", "dbname": "tutord"},
	"ai": {
		"provider": "gemini",
		"data": {"api_key": "k"},
		"generation_model": "gemini-2.0-flash",
		"embedding_model": "text-embedding-004",
		"embedding_dimension": 768
	}
}`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 32, cfg.AI.EmbeddingBatchSize)
	require.Equal(t, 400, cfg.Ingest.ChunkTokens)
	require.Equal(t, 50, *cfg.Ingest.OverlapTokens)
	require.Equal(t, 20, *cfg.Ingest.MinTokens)
	require.Equal(t, 5, cfg.Retrieval.DefaultTopK)
	require.Equal(t, 2000, cfg.Retrieval.MaxContextTokens)
	require.Equal(t, 600, cfg.Queue.VisibilityTimeoutSeconds)
	require.Equal(t, 3, cfg.Queue.MaxAttempts)
	require.Equal(t, 5, cfg.Worker.Concurrency)
	require.Equal(t, "pgvector", cfg.VectorIndex.Type)
	require.Equal(t, "info", cfg.LogConfig.Level)
}

func TestLoad_MissingRequirements(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no port", `{"database": {"host": "h", "dbname": "d"}, "ai": {"provider": "gemini", "generation_model": "g", "embedding_model": "e", "embedding_dimension": 768}}`},
		{"no database", `{"port": 8080, "ai": {"provider": "gemini", "generation_model": "g", "embedding_model": "e", "embedding_dimension": 768}}`},
		{"no provider", `{"port": 8080, "database": {"host": "h", "dbname": "d"}, "ai": {"generation_model": "g", "embedding_model": "e", "embedding_dimension": 768}}`},
		{"no dimension", `{"port": 8080, "database": {"host": "h", "dbname": "d"}, "ai": {"provider": "gemini", "generation_model": "g", "embedding_model": "e"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestLoad_RejectsOverlapAtOrAboveChunkSize(t *testing.T) {
	body := `{
		"port": 8080,
		"database": {"dsn": "postgres://x"},
		"ai": {"provider": "gemini", "generation_model": "g", "embedding_model": "e", "embedding_dimension": 768},
		"ingest": {"chunk_tokens": 100, "overlap_tokens": 100}
	}`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
}

func TestLoad_KeepsExplicitZeroOverlap(t *testing.T) {
	body := `{
		"port": 8080,
		"database": {"dsn": "postgres://x"},
		"ai": {"provider": "gemini", "generation_model": "g", "embedding_model": "e", "embedding_dimension": 768},
		"ingest": {"chunk_tokens": 100, "overlap_tokens": 0, "min_tokens": 0}
	}`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.Equal(t, 0, *cfg.Ingest.OverlapTokens)
	require.Equal(t, 0, *cfg.Ingest.MinTokens)
}

func TestLoad_RejectsUnknownVectorIndex(t *testing.T) {
	body := `{
		"port": 8080,
		"database": {"dsn": "postgres://x"},
		"ai": {"provider": "gemini", "generation_model": "g", "embedding_model": "e", "embedding_dimension": 768},
		"vector_index": {"type": "faiss"}
	}`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
}
