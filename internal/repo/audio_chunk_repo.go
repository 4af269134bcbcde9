package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/pkg/dbutil"
	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
)

type AudioChunkRepo struct {
	db *sql.DB
}

func NewAudioChunkRepo(db *sql.DB) *AudioChunkRepo {
	return &AudioChunkRepo{db: db}
}

var audioChunkFields = []string{"chunk_id", "session_id", "chunk_index", "start_offset_sec", "duration_sec", "status", "error_message"}

func (r *AudioChunkRepo) InsertBatch(ctx context.Context, chunks []*model.AudioChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		data = append(data, map[string]interface{}{
			"chunk_id":         chunk.ChunkID,
			"session_id":       chunk.SessionID,
			"chunk_index":      chunk.ChunkIndex,
			"start_offset_sec": chunk.StartOffsetSec,
			"duration_sec":     chunk.DurationSec,
			"status":           chunk.Status,
			"error_message":    chunk.ErrorMessage,
		})
	}
	sqlStr, args, err := builder.BuildInsert("audio_chunks", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *AudioChunkRepo) Get(ctx context.Context, chunkID string) (*model.AudioChunk, error) {
	where := map[string]interface{}{"chunk_id": chunkID}
	sqlStr, args, err := builder.BuildSelect("audio_chunks", where, audioChunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var item model.AudioChunk
	if err := row.Scan(&item.ChunkID, &item.SessionID, &item.ChunkIndex,
		&item.StartOffsetSec, &item.DurationSec, &item.Status, &item.ErrorMessage); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *AudioChunkRepo) SetStatus(ctx context.Context, chunkID, status, errorMessage string) error {
	update := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	}
	where := map[string]interface{}{"chunk_id": chunkID}
	sqlStr, args, err := builder.BuildUpdate("audio_chunks", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *AudioChunkRepo) ListBySession(ctx context.Context, sessionID string) ([]model.AudioChunk, error) {
	where := map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "chunk_index asc",
	}
	sqlStr, args, err := builder.BuildSelect("audio_chunks", where, audioChunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.AudioChunk
	for rows.Next() {
		var item model.AudioChunk
		if err := rows.Scan(&item.ChunkID, &item.SessionID, &item.ChunkIndex,
			&item.StartOffsetSec, &item.DurationSec, &item.Status, &item.ErrorMessage); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *AudioChunkRepo) CountByStatus(ctx context.Context, sessionID, status string) (int, error) {
	where := map[string]interface{}{
		"session_id": sessionID,
		"status":     status,
	}
	sqlStr, args, err := builder.BuildSelect("audio_chunks", where, []string{"count(*)"})
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
