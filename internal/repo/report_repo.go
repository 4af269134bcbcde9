package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/pkg/dbutil"
)

type ReportRepo struct {
	db *sql.DB
}

func NewReportRepo(db *sql.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// Replace deletes any existing report for the session and stores the new
// one in the same transaction. Last write wins; there is no report history.
func (r *ReportRepo) Replace(ctx context.Context, report *model.SessionReport) error {
	body, err := json.Marshal(report.Report)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	delStr, delArgs, err := builder.BuildDelete("session_reports", map[string]interface{}{
		"session_id": report.SessionID,
	})
	if err != nil {
		return err
	}
	delStr, delArgs = dbutil.Finalize(delStr, delArgs)
	if _, err := tx.ExecContext(ctx, delStr, delArgs...); err != nil {
		return err
	}

	insStr, insArgs, err := builder.BuildInsert("session_reports", []map[string]interface{}{{
		"report_id":   report.ReportID,
		"session_id":  report.SessionID,
		"report_json": body,
		"ctime":       time.Now().Unix(),
	}})
	if err != nil {
		return err
	}
	insStr, insArgs = dbutil.Finalize(insStr, insArgs)
	if _, err := tx.ExecContext(ctx, insStr, insArgs...); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ReportRepo) GetBySession(ctx context.Context, sessionID string) (*model.SessionReport, error) {
	where := map[string]interface{}{"session_id": sessionID}
	sqlStr, args, err := builder.BuildSelect("session_reports", where, []string{"report_id", "session_id", "report_json", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var item model.SessionReport
	var body []byte
	if err := row.Scan(&item.ReportID, &item.SessionID, &body, &item.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(body, &item.Report); err != nil {
		return nil, err
	}
	return &item, nil
}
