package repo

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"

	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
)

// RunLockRepo guards against two concurrent runs of the same phase for
// the same entity using postgres advisory locks. The lock lives on a
// dedicated connection and is released when that connection is returned.
type RunLockRepo struct {
	db *sql.DB
}

func NewRunLockRepo(db *sql.DB) *RunLockRepo {
	return &RunLockRepo{db: db}
}

// Acquire takes a (phase, entity) advisory lock. It returns ErrLocked
// without blocking when another run already holds it. The returned
// release func must be called on every path.
func (r *RunLockRepo) Acquire(ctx context.Context, phase, entityID string) (func(), error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	classID, objID := lockKeys(phase, entityID)
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1, $2)`, classID, objID).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !acquired {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: phase %s entity %s", apperr.ErrLocked, phase, entityID)
	}
	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1, $2)`, classID, objID)
		_ = conn.Close()
	}
	return release, nil
}

func lockKeys(phase, entityID string) (int32, int32) {
	return hash32(phase), hash32(entityID)
}

func hash32(s string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int32(h.Sum32())
}
