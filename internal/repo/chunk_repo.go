package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/pkg/dbutil"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch writes one batch of chunks in a single statement. Callers
// split large chunk lists into bounded batches before calling.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		data = append(data, map[string]interface{}{
			"chunk_id":     chunk.ChunkID,
			"source_id":    chunk.SourceID,
			"content_text": chunk.ContentText,
			"page_start":   chunk.PageStart,
			"page_end":     chunk.PageEnd,
			"anchor_path":  chunk.AnchorPath,
			"token_count":  chunk.TokenCount,
			"embedding":    pgvector.NewVector(chunk.Embedding),
		})
	}
	sqlStr, args, err := builder.BuildInsert("chunks", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) GetByIDs(ctx context.Context, chunkIDs []string) ([]model.Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{"chunk_id in": chunkIDs}
	fields := []string{"chunk_id", "source_id", "content_text", "page_start", "page_end", "anchor_path", "token_count"}
	sqlStr, args, err := builder.BuildSelect("chunks", where, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Chunk
	for rows.Next() {
		var item model.Chunk
		if err := rows.Scan(&item.ChunkID, &item.SourceID, &item.ContentText,
			&item.PageStart, &item.PageEnd, &item.AnchorPath, &item.TokenCount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *ChunkRepo) DeleteBySource(ctx context.Context, sourceID string) error {
	where := map[string]interface{}{"source_id": sourceID}
	sqlStr, args, err := builder.BuildDelete("chunks", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
