package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eve-arbitrage/internal/logger"

	"github.com/redis/go-redis/v9"
)

const (
	redisBatchKey   = "arb:batch:%s"
	redisIndexKey   = "arb:batches" // zset run_id -> created_at (ms)
	redisHeadersKey = "arb:headers" // hash run_id -> header json
)

// Redis stores each batch as one JSON value. The value, its header and its
// index entry are written in a single MULTI/EXEC.
type Redis struct {
	client  *redis.Client
	history int
	now     func() time.Time
}

var _ Store = (*Redis)(nil)

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db, history int) (*Redis, error) {
	if history <= 0 {
		history = 1
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	logger.Success("STORE", fmt.Sprintf("Connected to redis %s (db %d)", addr, db))
	return &Redis{client: client, history: history, now: time.Now}, nil
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) PutBatch(ctx context.Context, b *ResultBatch) error {
	if err := validate(b); err != nil {
		return err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	header, err := json.Marshal(b.Header())
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, fmt.Sprintf(redisBatchKey, b.RunID), data, 0)
		pipe.HSetNX(ctx, redisHeadersKey, b.RunID, header)
		pipe.ZAddNX(ctx, redisIndexKey, redis.Z{Score: float64(b.CreatedAt.UnixMilli()), Member: b.RunID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store batch %s: %w", b.RunID, err)
	}
	return r.prune(ctx)
}

// prune drops everything past the newest history entries.
func (r *Redis) prune(ctx context.Context) error {
	stale, err := r.client.ZRevRange(ctx, redisIndexKey, int64(r.history), -1).Result()
	if err != nil {
		return fmt.Errorf("list stale batches: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members := make([]interface{}, len(stale))
		for i, id := range stale {
			pipe.Del(ctx, fmt.Sprintf(redisBatchKey, id))
			members[i] = id
		}
		pipe.HDel(ctx, redisHeadersKey, stale...)
		pipe.ZRem(ctx, redisIndexKey, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("prune batches: %w", err)
	}
	logger.Debug("STORE", fmt.Sprintf("Pruned %d batches", len(stale)))
	return nil
}

// GetLatestBatch reads the newest index entry and its value. A batch is one
// value, so it is never torn; if a concurrent publish pruned the entry between
// the two reads, the index is read again.
func (r *Redis) GetLatestBatch(ctx context.Context, maxAge time.Duration) (*ResultBatch, error) {
	for attempt := 0; attempt < 3; attempt++ {
		ids, err := r.client.ZRevRange(ctx, redisIndexKey, 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("query latest batch: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		data, err := r.client.Get(ctx, fmt.Sprintf(redisBatchKey, ids[0])).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var b ResultBatch
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal batch: %w", err)
		}
		if !fresh(&b, maxAge, r.now()) {
			return nil, nil
		}
		return &b, nil
	}
	return nil, nil
}

func (r *Redis) History(ctx context.Context, limit int) ([]Header, error) {
	if limit <= 0 {
		limit = r.history
	}
	ids, err := r.client.ZRevRange(ctx, redisIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	out := []Header{}
	if len(ids) == 0 {
		return out, nil
	}
	raw, err := r.client.HMGet(ctx, redisHeadersKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("query headers: %w", err)
	}
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue // pruned between the two reads
		}
		var h Header
		if err := json.Unmarshal([]byte(s), &h); err != nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}
