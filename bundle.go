package dagrun

import (
	"database/sql"

	"github.com/dagrun/dagrun/internal/history"
	"github.com/dagrun/dagrun/pkg/scheduler"
)

// NewSQLiteScheduler constructs a Scheduler whose run history is persisted
// in the provided SQLite database. The runs table is created on first use.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:dagrun.db?_journal=WAL")
//	sched, err := dagrun.NewSQLiteScheduler(db)
//	// schedule workflows on sched, then sched.Start()
//
// Extra options are applied after the recorder, so a later WithRecorder
// wins if the caller really wants a different backend.
func NewSQLiteScheduler(db *sql.DB, opts ...SchedulerOption) (*Scheduler, error) {
	rec, err := history.NewSQLiteRecorder(db)
	if err != nil {
		return nil, err
	}

	all := append([]SchedulerOption{scheduler.WithRecorder(rec)}, opts...)
	return scheduler.New(all...), nil
}
