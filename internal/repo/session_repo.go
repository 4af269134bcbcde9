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

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

var sessionFields = []string{"session_id", "subject_id", "subject_name", "exam_window", "audio_url", "status", "ctime", "mtime"}

func scanSession(scan func(dest ...interface{}) error) (*model.Session, error) {
	var item model.Session
	if err := scan(&item.SessionID, &item.SubjectID, &item.SubjectName, &item.ExamWindow,
		&item.AudioURL, &item.Status, &item.Ctime, &item.Mtime); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *SessionRepo) Create(ctx context.Context, session *model.Session) error {
	now := time.Now().Unix()
	if session.Ctime == 0 {
		session.Ctime = now
	}
	if session.Mtime == 0 {
		session.Mtime = now
	}
	data := []map[string]interface{}{{
		"session_id":   session.SessionID,
		"subject_id":   session.SubjectID,
		"subject_name": session.SubjectName,
		"exam_window":  session.ExamWindow,
		"audio_url":    session.AudioURL,
		"status":       session.Status,
		"ctime":        session.Ctime,
		"mtime":        session.Mtime,
	}}
	sqlStr, args, err := builder.BuildInsert("sessions", data)
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

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	where := map[string]interface{}{"session_id": sessionID}
	sqlStr, args, err := builder.BuildSelect("sessions", where, sessionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	item, err := scanSession(r.db.QueryRowContext(ctx, sqlStr, args...).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *SessionRepo) GetByIDs(ctx context.Context, sessionIDs []string) ([]model.Session, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{"session_id in": sessionIDs}
	sqlStr, args, err := builder.BuildSelect("sessions", where, sessionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Session
	for rows.Next() {
		item, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *SessionRepo) SetStatus(ctx context.Context, sessionID, status string) error {
	update := map[string]interface{}{
		"status": status,
		"mtime":  time.Now().Unix(),
	}
	where := map[string]interface{}{"session_id": sessionID}
	sqlStr, args, err := builder.BuildUpdate("sessions", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *SessionRepo) SetStatusAll(ctx context.Context, sessionIDs []string, status string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	update := map[string]interface{}{
		"status": status,
		"mtime":  time.Now().Unix(),
	}
	where := map[string]interface{}{"session_id in": sessionIDs}
	sqlStr, args, err := builder.BuildUpdate("sessions", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *SessionRepo) ListByStatus(ctx context.Context, status string, limit uint) ([]model.Session, error) {
	where := map[string]interface{}{
		"status":   status,
		"_orderby": "ctime asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	sqlStr, args, err := builder.BuildSelect("sessions", where, sessionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Session
	for rows.Next() {
		item, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
