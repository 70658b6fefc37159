package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/dagrun/dagrun/pkg/api"
	"github.com/dagrun/dagrun/pkg/scheduler"
)

// SQLiteRecorder is a Recorder backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRecorder struct {
	db *sql.DB
}

var _ scheduler.Recorder = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder initializes the required schema in the given database
// and returns a new SQLiteRecorder.
func NewSQLiteRecorder(db *sql.DB) (*SQLiteRecorder, error) {
	r := &SQLiteRecorder{db: db}
	if err := r.initSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRecorder) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			started_at_ns INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS runs_workflow ON runs (workflow, started_at_ns);`,
	)
	return err
}

func (r *SQLiteRecorder) Record(ctx context.Context, rec scheduler.RunRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow, status, error, started_at_ns, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Workflow,
		string(rec.Status),
		rec.Error,
		rec.StartedAt.UnixNano(),
		int64(rec.Duration),
	)
	return err
}

func (r *SQLiteRecorder) ListRuns(ctx context.Context, workflow string) ([]scheduler.RunRecord, error) {
	query := `
		SELECT id, workflow, status, error, started_at_ns, duration_ns
		FROM runs`
	args := []any{}
	if workflow != "" {
		query += ` WHERE workflow = ?`
		args = append(args, workflow)
	}
	query += ` ORDER BY started_at_ns DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheduler.RunRecord
	for rows.Next() {
		var (
			rec       scheduler.RunRecord
			status    string
			startedNs int64
			durNs     int64
		)
		if err := rows.Scan(&rec.ID, &rec.Workflow, &status, &rec.Error, &startedNs, &durNs); err != nil {
			return nil, err
		}
		rec.Status = api.Status(status)
		rec.StartedAt = time.Unix(0, startedNs)
		rec.Duration = time.Duration(durNs)
		out = append(out, rec)
	}
	return out, rows.Err()
}
