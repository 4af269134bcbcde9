package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/pkg/dbutil"
)

type EvidenceRepo struct {
	db *sql.DB
}

func NewEvidenceRepo(db *sql.DB) *EvidenceRepo {
	return &EvidenceRepo{db: db}
}

var evidenceFields = []string{"candidate_id", "session_id", "signal_id", "chunk_id", "query_text", "vector_rank", "vector_score", "keyword_rank", "keyword_score", "fused_score"}

func (r *EvidenceRepo) InsertBatch(ctx context.Context, candidates []*model.EvidenceCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(candidates))
	for _, c := range candidates {
		data = append(data, map[string]interface{}{
			"candidate_id":  c.CandidateID,
			"session_id":    c.SessionID,
			"signal_id":     c.SignalID,
			"chunk_id":      c.ChunkID,
			"query_text":    c.QueryText,
			"vector_rank":   c.VectorRank,
			"vector_score":  c.VectorScore,
			"keyword_rank":  c.KeywordRank,
			"keyword_score": c.KeywordScore,
			"fused_score":   c.FusedScore,
		})
	}
	sqlStr, args, err := builder.BuildInsert("evidence_candidates", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EvidenceRepo) ListBySessions(ctx context.Context, sessionIDs []string) ([]model.EvidenceCandidate, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{"session_id in": sessionIDs}
	sqlStr, args, err := builder.BuildSelect("evidence_candidates", where, evidenceFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.EvidenceCandidate
	for rows.Next() {
		var item model.EvidenceCandidate
		if err := rows.Scan(&item.CandidateID, &item.SessionID, &item.SignalID, &item.ChunkID,
			&item.QueryText, &item.VectorRank, &item.VectorScore, &item.KeywordRank, &item.KeywordScore, &item.FusedScore); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *EvidenceRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	where := map[string]interface{}{"session_id": sessionID}
	sqlStr, args, err := builder.BuildSelect("evidence_candidates", where, []string{"count(*)"})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var count int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *EvidenceRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	where := map[string]interface{}{"session_id": sessionID}
	sqlStr, args, err := builder.BuildDelete("evidence_candidates", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
