package history

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dagrun/dagrun/pkg/api"
	"github.com/dagrun/dagrun/pkg/scheduler"
)

// RedisRecorder is a Recorder backed by Redis. It uses a simple key
// structure:
//
//	<prefix>run:<id>            => gob-encoded redisRunPayload
//	<prefix>idx:all             => LIST of run IDs, most recent first
//	<prefix>idx:wf:<workflow>   => LIST of run IDs for a given workflow
//
// The index lists are best-effort: a run whose payload key has expired or
// been deleted is skipped when listing.
type RedisRecorder struct {
	client *redis.Client
	prefix string
}

var _ scheduler.Recorder = (*RedisRecorder)(nil)

type redisRunPayload struct {
	ID         string
	Workflow   string
	Status     string
	Error      string
	StartedAt  time.Time
	DurationNs int64
}

// NewRedisRecorder creates a RedisRecorder.
// prefix is optional but recommended (e.g. "dagrun:").
func NewRedisRecorder(client *redis.Client, prefix string) *RedisRecorder {
	if prefix == "" {
		prefix = "dagrun:"
	}
	return &RedisRecorder{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisRecorder) keyRun(id string) string {
	return r.prefix + "run:" + id
}

func (r *RedisRecorder) keyAll() string {
	return r.prefix + "idx:all"
}

func (r *RedisRecorder) keyWorkflow(name string) string {
	return r.prefix + "idx:wf:" + name
}

func encodeRunPayload(rec scheduler.RunRecord) ([]byte, error) {
	payload := redisRunPayload{
		ID:         rec.ID,
		Workflow:   rec.Workflow,
		Status:     string(rec.Status),
		Error:      rec.Error,
		StartedAt:  rec.StartedAt,
		DurationNs: int64(rec.Duration),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRunPayload(data []byte) (scheduler.RunRecord, error) {
	var payload redisRunPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return scheduler.RunRecord{}, err
	}
	return scheduler.RunRecord{
		ID:        payload.ID,
		Workflow:  payload.Workflow,
		Status:    api.Status(payload.Status),
		Error:     payload.Error,
		StartedAt: payload.StartedAt,
		Duration:  time.Duration(payload.DurationNs),
	}, nil
}

func (r *RedisRecorder) Record(ctx context.Context, rec scheduler.RunRecord) error {
	data, err := encodeRunPayload(rec)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.keyRun(rec.ID), data, 0)
	pipe.LPush(ctx, r.keyAll(), rec.ID)
	pipe.LPush(ctx, r.keyWorkflow(rec.Workflow), rec.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRecorder) ListRuns(ctx context.Context, workflow string) ([]scheduler.RunRecord, error) {
	key := r.keyAll()
	if workflow != "" {
		key = r.keyWorkflow(workflow)
	}

	ids, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var out []scheduler.RunRecord
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.keyRun(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rec, err := decodeRunPayload(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
