package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/dbutil"
)

type TraceRepo struct {
	db *sql.DB
}

func NewTraceRepo(db *sql.DB) *TraceRepo {
	return &TraceRepo{db: db}
}

func (r *TraceRepo) Create(ctx context.Context, trace *model.AnswerTrace) error {
	citations, err := json.Marshal(trace.Citations)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":             trace.ID,
		"owner_id":       trace.OwnerID,
		"question":       trace.Question,
		"answer":         trace.Answer,
		"citations_json": string(citations),
		"ctime":          trace.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("answer_traces", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *TraceRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.AnswerTrace, error) {
	where := map[string]interface{}{
		"owner_id": ownerID,
		"_orderby": "ctime desc",
		"_limit":   []uint{0, uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("answer_traces", where,
		[]string{"id", "owner_id", "question", "answer", "citations_json", "ctime"})
	if err != nil {
		return nil, err
	}
	query, args := dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var traces []*model.AnswerTrace
	for rows.Next() {
		var trace model.AnswerTrace
		var citations string
		if err := rows.Scan(&trace.ID, &trace.OwnerID, &trace.Question, &trace.Answer,
			&citations, &trace.Ctime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(citations), &trace.Citations); err != nil {
			return nil, err
		}
		traces = append(traces, &trace)
	}
	return traces, rows.Err()
}

// DeleteBefore trims traces older than the cutoff, returning how many
// rows went away.
func (r *TraceRepo) DeleteBefore(ctx context.Context, cutoff int64) (int, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM answer_traces WHERE ctime < $1", cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
