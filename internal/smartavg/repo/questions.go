// Package repo provides the Postgres implementation of the engine's
// ingest and persistence ports (C2 reads, C9 persister)
package repo

import (
	"context"

	perr "smartavg/internal/platform/errors"
	"smartavg/internal/repokit"
	"smartavg/internal/smartavg/domain"
)

// PG binds domain.IngestRepo and domain.PersistRepo to a single Postgres
// connection pool or transaction
type PG struct {
	q  repokit.Queryer
	tx repokit.TxRunner
}

// NewIngestRepo binds domain.IngestRepo to q
func NewIngestRepo(q repokit.Queryer) domain.IngestRepo { return &PG{q: repokit.RequireQueryer(q)} }

// NewPersistRepo binds domain.PersistRepo to tx; MergeChunk runs each chunk
// inside its own transaction
func NewPersistRepo(tx repokit.TxRunner) domain.PersistRepo { return &PG{tx: tx} }

// LoadQuestions returns the global question registry, deriving each
// question's [w_min, w_max] scale from the observed response weights
func (r *PG) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := r.q.Query(ctx, `
		SELECT resp.question_id, q.question_text, MIN(resp.weight), MAX(resp.weight)
		FROM responses resp
		JOIN questions q ON q.question_id = resp.question_id
		GROUP BY resp.question_id, q.question_text
	`)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "query questions")
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.QuestionID, &q.QuestionText, &q.WMin, &q.WMax); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "scan question")
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeIngestion, "iterate questions")
	}
	return out, nil
}
