package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketTTL keeps buckets a little longer than the longest health window operators use
const bucketTTL = 8 * 24 * time.Hour

// RedisStore keeps each bucket in a hash: metrics:{integration_id}:{bucket_unix}
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis metric store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisBucketKey(integrationID string, start time.Time) string {
	return fmt.Sprintf("metrics:%s:%d", integrationID, start.Unix())
}

// Increment applies a sample with HINCRBY inside MULTI/EXEC
func (r *RedisStore) Increment(ctx context.Context, s Sample) error {
	var delta Bucket
	delta.Apply(s)
	key := redisBucketKey(s.IntegrationID, BucketStart(s.At))

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, n := range bucketFields(delta) {
			if n != 0 {
				pipe.HIncrBy(ctx, key, field, n)
			}
		}
		pipe.HSetNX(ctx, key, "tenant_id", s.TenantID)
		pipe.Expire(ctx, key, bucketTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("incrementing metric bucket: %w", err)
	}
	return nil
}

// Range reads every hourly bucket between from and to
func (r *RedisStore) Range(ctx context.Context, integrationID string, from, to time.Time) ([]Bucket, error) {
	var starts []time.Time
	for t := BucketStart(from); !t.After(to); t = t.Add(BucketSize) {
		if !t.Before(from) {
			starts = append(starts, t)
		}
	}
	if len(starts) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(starts))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, start := range starts {
			cmds[i] = pipe.HGetAll(ctx, redisBucketKey(integrationID, start))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading metric buckets: %w", err)
	}

	var buckets []Bucket
	for i, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			continue
		}
		b := Bucket{IntegrationID: integrationID, TenantID: data["tenant_id"], Start: starts[i]}
		n := func(field string) int64 {
			v, _ := strconv.ParseInt(data[field], 10, 64)
			return v
		}
		b.Received = n("received")
		b.Processed = n("processed")
		b.Failed = n("failed")
		b.Retried = n("retried")
		b.Duplicate = n("duplicate")
		b.ProcessingTimeMs = n("processing_time_ms")
		b.Errors = ErrorCounts{
			Unauthorized: n("err_unauthorized"),
			NotFound:     n("err_not_found"),
			ServerError:  n("err_server"),
			Timeout:      n("err_timeout"),
			Other:        n("err_other"),
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

// bucketFields names the counters of a bucket as stored
func bucketFields(b Bucket) map[string]int64 {
	return map[string]int64{
		"received":           b.Received,
		"processed":          b.Processed,
		"failed":             b.Failed,
		"retried":            b.Retried,
		"duplicate":          b.Duplicate,
		"processing_time_ms": b.ProcessingTimeMs,
		"err_unauthorized":   b.Errors.Unauthorized,
		"err_not_found":      b.Errors.NotFound,
		"err_server":         b.Errors.ServerError,
		"err_timeout":        b.Errors.Timeout,
		"err_other":          b.Errors.Other,
	}
}
