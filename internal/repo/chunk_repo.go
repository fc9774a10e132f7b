package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/dbutil"
)

var chunkFields = []string{
	"id", "document_id", "owner_id", "ordinal", "content",
	"token_count", "overlap_tokens", "ctime",
}

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceForDocument swaps a document's chunk set in one transaction,
// so readers never observe a mix of old and new chunks.
func (r *ChunkRepo) ReplaceForDocument(ctx context.Context, documentID string, chunks []*model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.deleteByDocument(ctx, tx, documentID); err != nil {
		return err
	}
	if len(chunks) > 0 {
		rows := make([]map[string]interface{}, 0, len(chunks))
		for _, chunk := range chunks {
			rows = append(rows, map[string]interface{}{
				"id":             chunk.ID,
				"document_id":    chunk.DocumentID,
				"owner_id":       chunk.OwnerID,
				"ordinal":        chunk.Ordinal,
				"content":        chunk.Content,
				"token_count":    chunk.TokenCount,
				"overlap_tokens": chunk.OverlapTokens,
				"ctime":          chunk.Ctime,
			})
		}
		sqlStr, args, err := builder.BuildInsert("chunks", rows)
		if err != nil {
			return err
		}
		query, args := dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	return r.deleteByDocument(ctx, nil, documentID)
}

func (r *ChunkRepo) deleteByDocument(ctx context.Context, tx *sql.Tx, documentID string) error {
	sqlStr, args, err := builder.BuildDelete("chunks", map[string]interface{}{"document_id": documentID})
	if err != nil {
		return err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	return err
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	where := map[string]interface{}{
		"document_id": documentID,
		"_orderby":    "ordinal asc",
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []*model.Chunk
	for rows.Next() {
		var chunk model.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.OwnerID, &chunk.Ordinal,
			&chunk.Content, &chunk.TokenCount, &chunk.OverlapTokens, &chunk.Ctime); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}
