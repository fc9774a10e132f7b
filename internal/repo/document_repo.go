package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
	"github.com/edustack/tutord/internal/pkg/dbutil"
)

var documentFields = []string{
	"id", "owner_id", "title", "content", "locator", "status",
	"error_detail", "chunk_count", "model_name", "ctime", "mtime",
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":           doc.ID,
		"owner_id":     doc.OwnerID,
		"title":        doc.Title,
		"content":      doc.Content,
		"locator":      doc.Locator,
		"status":       string(doc.Status),
		"error_detail": doc.ErrorDetail,
		"chunk_count":  doc.ChunkCount,
		"model_name":   doc.ModelName,
		"ctime":        doc.Ctime,
		"mtime":        doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *DocumentRepo) GetByID(ctx context.Context, ownerID, docID string) (*model.Document, error) {
	return r.getOne(ctx, map[string]interface{}{"id": docID, "owner_id": ownerID})
}

// GetAny looks a document up by id alone. The worker has no owner in
// hand when it processes a job.
func (r *DocumentRepo) GetAny(ctx context.Context, docID string) (*model.Document, error) {
	return r.getOne(ctx, map[string]interface{}{"id": docID})
}

func (r *DocumentRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, apperr.New(apperr.KindNotFound, "document not found")
	}
	doc, err := scanDocument(rows)
	if err != nil {
		return nil, err
	}
	return doc, rows.Err()
}

func (r *DocumentRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error) {
	where := map[string]interface{}{
		"owner_id": ownerID,
		"_orderby": "mtime desc",
		"_limit":   []uint{uint(offset), uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetStatus moves a document between statuses. When from is non-empty
// the update only applies if the current status is one of them, which
// keeps concurrent ingest attempts from clobbering each other.
func (r *DocumentRepo) SetStatus(ctx context.Context, docID string, from []model.DocumentStatus, to model.DocumentStatus, errorDetail string) error {
	where := map[string]interface{}{"id": docID}
	if len(from) > 0 {
		states := make([]interface{}, 0, len(from))
		for _, s := range from {
			states = append(states, string(s))
		}
		where["status in"] = states
	}
	update := map[string]interface{}{
		"status":       string(to),
		"error_detail": errorDetail,
		"mtime":        time.Now().Unix(),
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.New(apperr.KindNotFound, "document not found or status changed")
	}
	return nil
}

// MarkReady records a successful ingestion round.
func (r *DocumentRepo) MarkReady(ctx context.Context, docID string, chunkCount int, modelName string) error {
	update := map[string]interface{}{
		"status":       string(model.DocumentStatusReady),
		"error_detail": "",
		"chunk_count":  chunkCount,
		"model_name":   modelName,
		"mtime":        time.Now().Unix(),
	}
	sqlStr, args, err := builder.BuildUpdate("documents", map[string]interface{}{"id": docID}, update)
	if err != nil {
		return err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, ownerID, docID string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{
		"id":       docID,
		"owner_id": ownerID,
	})
	if err != nil {
		return err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	return nil
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	var status string
	if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Content, &doc.Locator,
		&status, &doc.ErrorDetail, &doc.ChunkCount, &doc.ModelName, &doc.Ctime, &doc.Mtime); err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatus(status)
	return &doc, nil
}
