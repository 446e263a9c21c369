package jobstore

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"

	"github.com/gridwatch/fused/internal/config"
)

// RedisStore shares job state across API replicas. Values are JSON-encoded
// statuses under a single key per job, expiring after the configured TTL.
type RedisStore struct {
	client rueidis.Client
	cfg    *config.RedisEnvConfig
}

func NewRedisStore(cfg *config.RedisEnvConfig) (*RedisStore, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)},
		Password:    cfg.RedisPassword,
		SelectDB:    cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client, cfg: cfg}, nil
}

func (r *RedisStore) Close() { r.client.Close() }

func jobKey(id string) string { return "fused:job:" + id }

func (r *RedisStore) Init(ctx context.Context, s Status) error {
	return r.put(ctx, s)
}

// Update is read-modify-write without a lock. Only the job's own goroutine
// mutates a running job, so the race window does not matter in practice.
func (r *RedisStore) Update(ctx context.Context, id string, mutate func(*Status)) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(s)
	return r.put(ctx, *s)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Status, error) {
	resp := r.client.Do(ctx, r.client.B().Get().Key(jobKey(id)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, &ErrNotFound{ID: id}
		}
		return nil, err
	}
	raw, err := resp.ToString()
	if err != nil {
		return nil, err
	}
	s := &Status{}
	if err := sonic.UnmarshalString(raw, s); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return s, nil
}

func (r *RedisStore) put(ctx context.Context, s Status) error {
	raw, err := sonic.MarshalString(s)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", s.JobID, err)
	}
	cmd := r.client.B().Set().Key(jobKey(s.JobID)).Value(raw).Ex(r.cfg.JobTTL).Build()
	return r.client.Do(ctx, cmd).Error()
}
