package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/pkg/dbutil"
	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
)

type SourceRepo struct {
	db *sql.DB
}

func NewSourceRepo(db *sql.DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) Create(ctx context.Context, source *model.Source) error {
	now := time.Now().Unix()
	if source.Ctime == 0 {
		source.Ctime = now
	}
	if source.Mtime == 0 {
		source.Mtime = now
	}
	data := []map[string]interface{}{{
		"source_id":     source.SourceID,
		"subject_id":    source.SubjectID,
		"title":         source.Title,
		"blob_url":      source.BlobURL,
		"ingest_status": source.IngestStatus,
		"page_count":    source.PageCount,
		"error_message": source.ErrorMessage,
		"ctime":         source.Ctime,
		"mtime":         source.Mtime,
	}}
	sqlStr, args, err := builder.BuildInsert("sources", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return apperr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *SourceRepo) Get(ctx context.Context, sourceID string) (*model.Source, error) {
	where := map[string]interface{}{"source_id": sourceID}
	fields := []string{"source_id", "subject_id", "title", "blob_url", "ingest_status", "page_count", "error_message", "ctime", "mtime"}
	sqlStr, args, err := builder.BuildSelect("sources", where, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var item model.Source
	if err := row.Scan(&item.SourceID, &item.SubjectID, &item.Title, &item.BlobURL,
		&item.IngestStatus, &item.PageCount, &item.ErrorMessage, &item.Ctime, &item.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *SourceRepo) SetStatus(ctx context.Context, sourceID, status, errorMessage string) error {
	update := map[string]interface{}{
		"ingest_status": status,
		"error_message": errorMessage,
		"mtime":         time.Now().Unix(),
	}
	where := map[string]interface{}{"source_id": sourceID}
	sqlStr, args, err := builder.BuildUpdate("sources", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *SourceRepo) SetPageCount(ctx context.Context, sourceID string, pageCount int) error {
	update := map[string]interface{}{
		"page_count": pageCount,
		"mtime":      time.Now().Unix(),
	}
	where := map[string]interface{}{"source_id": sourceID}
	sqlStr, args, err := builder.BuildUpdate("sources", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *SourceRepo) ListByStatus(ctx context.Context, status string, limit uint) ([]model.Source, error) {
	where := map[string]interface{}{
		"ingest_status": status,
		"_orderby":      "ctime asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	fields := []string{"source_id", "subject_id", "title", "blob_url", "ingest_status", "page_count", "error_message", "ctime", "mtime"}
	sqlStr, args, err := builder.BuildSelect("sources", where, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Source
	for rows.Next() {
		var item model.Source
		if err := rows.Scan(&item.SourceID, &item.SubjectID, &item.Title, &item.BlobURL,
			&item.IngestStatus, &item.PageCount, &item.ErrorMessage, &item.Ctime, &item.Mtime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
