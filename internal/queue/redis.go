package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/scenario"
)

const enqueueBatchSize = 500

// Redis backs a framework through a Redis list plus two counter keys the
// workers increment. The connection is lazy; the first Reset fails fast
// when the server is unreachable.
type Redis struct {
	client *redis.Client
	opts   *redis.Options
	prefix string

	queueKey     string
	completedKey string
	failedKey    string
}

// NewRedis builds a backend from a redis:// URL. prefix namespaces the
// framework's keys; it defaults to "bench".
func NewRedis(rawURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if prefix == "" {
		prefix = "bench"
	}
	return &Redis{
		client:       redis.NewClient(opts),
		opts:         opts,
		prefix:       prefix,
		queueKey:     prefix + ":queue",
		completedKey: prefix + ":stats:completed",
		failedKey:    prefix + ":stats:failed",
	}, nil
}

func (r *Redis) Name() string { return "redis" }

// Enqueue pushes envelopes in pipelined batches.
func (r *Redis) Enqueue(ctx context.Context, specs []scenario.TaskSpec) ([]benchmark.TaskHandle, error) {
	envs, handles := buildEnvelopes(specs)

	for start := 0; start < len(envs); start += enqueueBatchSize {
		end := min(start+enqueueBatchSize, len(envs))

		pipe := r.client.Pipeline()
		for _, env := range envs[start:end] {
			payload, err := json.Marshal(env)
			if err != nil {
				return nil, fmt.Errorf("marshal task: %w", err)
			}
			pipe.LPush(ctx, r.queueKey, payload)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("enqueue batch at %d: %w", start, err)
		}
	}

	return handles, nil
}

// Counts reads the workers' completion counters. Missing keys read as 0.
func (r *Redis) Counts(ctx context.Context) (int, int, error) {
	completed, err := r.counter(ctx, r.completedKey)
	if err != nil {
		return 0, 0, err
	}
	failed, err := r.counter(ctx, r.failedKey)
	if err != nil {
		return 0, 0, err
	}
	return completed, failed, nil
}

func (r *Redis) counter(ctx context.Context, key string) (int, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds %q: %w", key, val, err)
	}
	return n, nil
}

// Reset deletes the queue and counter keys.
func (r *Redis) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.queueKey, r.completedKey, r.failedKey).Err(); err != nil {
		return fmt.Errorf("reset redis queue: %w", err)
	}
	return nil
}

// Depth reports how many envelopes currently sit in the queue.
func (r *Redis) Depth(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return int(n), nil
}

// CheckIsolation rejects a sibling backend that would share this one's
// keyspace: same server, same logical DB, same prefix.
func (r *Redis) CheckIsolation(other *Redis) error {
	if r.opts.Addr == other.opts.Addr && r.opts.DB == other.opts.DB && r.prefix == other.prefix {
		return fmt.Errorf("queue isolation: both frameworks use redis %s db %d prefix %q",
			r.opts.Addr, r.opts.DB, r.prefix)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
