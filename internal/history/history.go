// Package history provides Recorder backends for the scheduler's run
// audit trail: in-memory, SQLite, and Redis.
package history

import (
	"context"
	"sync"

	"github.com/dagrun/dagrun/pkg/scheduler"
)

// MemoryRecorder is a goroutine-safe Recorder backed by a slice.
// It is non-durable and intended for tests and small deployments.
type MemoryRecorder struct {
	mu   sync.Mutex
	runs []scheduler.RunRecord
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

var _ scheduler.Recorder = (*MemoryRecorder)(nil)

func (m *MemoryRecorder) Record(ctx context.Context, rec scheduler.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return nil
}

func (m *MemoryRecorder) ListRuns(ctx context.Context, workflow string) ([]scheduler.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Most recent first.
	var out []scheduler.RunRecord
	for i := len(m.runs) - 1; i >= 0; i-- {
		if workflow != "" && m.runs[i].Workflow != workflow {
			continue
		}
		out = append(out, m.runs[i])
	}
	return out, nil
}
