package vectorindex

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/edustack/tutord/internal/pkg/apperr"
)

// PGIndex stores entries in the index_entries table using the pgvector
// extension. Upserts for one document happen in a single transaction so
// a partially indexed document is never visible to queries.
type PGIndex struct {
	db        *sqlx.DB
	dimension int
}

func NewPG(db *sqlx.DB, dimension int) (*PGIndex, error) {
	if db == nil {
		return nil, apperr.New(apperr.KindConfiguration, "vectorindex: db is required")
	}
	if dimension <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "vectorindex: dimension must be positive, got %d", dimension)
	}
	return &PGIndex{db: db, dimension: dimension}, nil
}

func (idx *PGIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, entry := range entries {
		if len(entry.Vector) != idx.dimension {
			return apperr.Newf(apperr.KindInvalid, "vectorindex: entry %s has dimension %d, want %d",
				entry.ChunkID, len(entry.Vector), idx.dimension)
		}
	}
	tx, err := idx.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, err, "begin index upsert")
	}
	defer tx.Rollback()
	const query = `
INSERT INTO index_entries (chunk_id, document_id, owner_id, content, model_name, embedding, doc_mtime)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (chunk_id) DO UPDATE SET
    document_id = EXCLUDED.document_id,
    owner_id    = EXCLUDED.owner_id,
    content     = EXCLUDED.content,
    model_name  = EXCLUDED.model_name,
    embedding   = EXCLUDED.embedding,
    doc_mtime   = EXCLUDED.doc_mtime`
	for _, entry := range entries {
		vec := pgvector.NewVector(Normalize(entry.Vector))
		if _, err := tx.ExecContext(ctx, query,
			entry.ChunkID, entry.DocumentID, entry.OwnerID, entry.Content,
			entry.ModelName, vec, entry.DocMtime); err != nil {
			return apperr.Wrap(apperr.KindTransient, err, "upsert index entry")
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindTransient, err, "commit index upsert")
	}
	return nil
}

func (idx *PGIndex) Query(ctx context.Context, q Query) ([]Match, error) {
	if len(q.Vector) != idx.dimension {
		return nil, apperr.Newf(apperr.KindInvalidQuery, "query vector has dimension %d, want %d",
			len(q.Vector), idx.dimension)
	}
	if q.TopK <= 0 {
		return nil, apperr.Newf(apperr.KindInvalidQuery, "top_k must be positive, got %d", q.TopK)
	}
	vec := pgvector.NewVector(Normalize(q.Vector))
	const query = `
SELECT chunk_id, document_id, owner_id, content, model_name, doc_mtime,
       1 - (embedding <=> $1) AS score
FROM index_entries
WHERE owner_id = $2 AND model_name = $3
ORDER BY embedding <=> $1, doc_mtime DESC
LIMIT $4`
	rows, err := idx.db.QueryContext(ctx, query, vec, q.OwnerID, q.ModelName, q.TopK)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, err, "query index")
	}
	defer rows.Close()
	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.OwnerID, &m.Content,
			&m.ModelName, &m.DocMtime, &m.Score); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "scan index match")
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, err, "iterate index matches")
	}
	return matches, nil
}

func (idx *PGIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := idx.db.ExecContext(ctx,
		"DELETE FROM index_entries WHERE document_id = $1", documentID); err != nil {
		return apperr.Wrap(apperr.KindTransient, err, "delete index entries")
	}
	return nil
}

func (idx *PGIndex) Ping(ctx context.Context) error {
	var one int
	if err := idx.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return err
	}
	return nil
}

var _ Index = (*PGIndex)(nil)
