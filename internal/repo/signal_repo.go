package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/pkg/dbutil"
)

type SignalRepo struct {
	db *sql.DB
}

func NewSignalRepo(db *sql.DB) *SignalRepo {
	return &SignalRepo{db: db}
}

var signalFields = []string{"signal_id", "session_id", "audio_chunk_id", "chunk_index", "signal_type", "content", "search_queries", "t0_sec", "t1_sec", "importance"}

func (r *SignalRepo) InsertBatch(ctx context.Context, signals []*model.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(signals))
	for _, sig := range signals {
		queries, err := json.Marshal(sig.SearchQueries)
		if err != nil {
			return err
		}
		data = append(data, map[string]interface{}{
			"signal_id":      sig.SignalID,
			"session_id":     sig.SessionID,
			"audio_chunk_id": sig.AudioChunkID,
			"chunk_index":    sig.ChunkIndex,
			"signal_type":    sig.SignalType,
			"content":        sig.Content,
			"search_queries": queries,
			"t0_sec":         sig.T0Sec,
			"t1_sec":         sig.T1Sec,
			"importance":     sig.Importance,
		})
	}
	sqlStr, args, err := builder.BuildInsert("signals", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListBySessions returns the signal timeline of the given sessions,
// ordered by chunk index then start time.
func (r *SignalRepo) ListBySessions(ctx context.Context, sessionIDs []string) ([]model.Signal, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"session_id in": sessionIDs,
		"_orderby":      "chunk_index asc, t0_sec asc",
	}
	sqlStr, args, err := builder.BuildSelect("signals", where, signalFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Signal
	for rows.Next() {
		var item model.Signal
		var queries []byte
		if err := rows.Scan(&item.SignalID, &item.SessionID, &item.AudioChunkID, &item.ChunkIndex,
			&item.SignalType, &item.Content, &queries, &item.T0Sec, &item.T1Sec, &item.Importance); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(queries, &item.SearchQueries); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *SignalRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Signal, error) {
	return r.ListBySessions(ctx, []string{sessionID})
}
