package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dilneiss/CSRFProtector/core"
	"github.com/dilneiss/CSRFProtector/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// DefaultRedisKeyPrefix namespaces token records in a shared Redis database
const DefaultRedisKeyPrefix = "csrf:"

const (
	backendRedis   = "redis"
	redisScanCount = 200
)

// RedisOptions holds the connection settings of a RedisStore
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// RedisStore keeps msgpack-encoded token records in Redis.
// Every record is written with the token lifetime as its TTL, so Redis
// evicts expired records on its own.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisStore connects a RedisStore with the given options
func NewRedisStore(opts RedisOptions, ttl time.Duration, logger *zap.SugaredLogger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	return NewRedisStoreFromClient(client, opts.KeyPrefix, ttl, logger)
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration, logger *zap.SugaredLogger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Ping tests the Redis connection
func (rs *RedisStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

func (rs *RedisStore) key(sessionID, accessKey, tokenName string) string {
	return rs.prefix + recordKey(sessionID, accessKey, tokenName)
}

// Put stores rec with the configured TTL
func (rs *RedisStore) Put(ctx context.Context, sessionID string, rec core.TokenRecord) error {
	if !validKey(sessionID, rec.AccessKey, rec.TokenName) {
		return ErrInvalidKey
	}

	data, err := msgpack.Marshal(&rec)
	if err != nil {
		metrics.StoreErrors.WithLabelValues(backendRedis, "marshal").Inc()
		return fmt.Errorf("failed to encode token record: %w", err)
	}

	if err := rs.client.Set(ctx, rs.key(sessionID, rec.AccessKey, rec.TokenName), data, rs.ttl).Err(); err != nil {
		rs.logger.Errorf("Failed to store token record: %v", err)
		metrics.StoreErrors.WithLabelValues(backendRedis, "put").Inc()
		return fmt.Errorf("failed to store token record: %w", err)
	}
	return nil
}

// Get returns the record at the key or core.ErrTokenNotFound
func (rs *RedisStore) Get(ctx context.Context, sessionID, accessKey, tokenName string) (*core.TokenRecord, error) {
	data, err := rs.client.Get(ctx, rs.key(sessionID, accessKey, tokenName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrTokenNotFound
		}
		metrics.StoreErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}
	return decodeRecord(data)
}

// Delete removes the record at the key if present
func (rs *RedisStore) Delete(ctx context.Context, sessionID, accessKey, tokenName string) error {
	if err := rs.client.Del(ctx, rs.key(sessionID, accessKey, tokenName)).Err(); err != nil {
		metrics.StoreErrors.WithLabelValues(backendRedis, "delete").Inc()
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	return nil
}

// Consume deletes the record inside a WATCH/MULTI transaction when accept
// approves it. A concurrent writer aborts the transaction and the call
// reports false.
func (rs *RedisStore) Consume(ctx context.Context, sessionID, accessKey, tokenName string, accept func(core.TokenRecord) bool) (bool, error) {
	key := rs.key(sessionID, accessKey, tokenName)
	consumed := false

	err := rs.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		rec, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if !accept(*rec) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		consumed = true
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		rs.logger.Debugw("Token consume lost a concurrent race", "session_id", sessionID)
		return false, nil
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues(backendRedis, "consume").Inc()
		return false, fmt.Errorf("failed to consume token record: %w", err)
	}
	return consumed, nil
}

// Sweep scans the key prefix and removes records issued before olderThan.
// Records written with a TTL are normally gone before a sweep sees them.
func (rs *RedisStore) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoff := olderThan.Unix()
	var removed int64

	iter := rs.client.Scan(ctx, 0, rs.prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := rs.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			metrics.StoreErrors.WithLabelValues(backendRedis, "sweep").Inc()
			return removed, fmt.Errorf("failed to read %s during sweep: %w", key, err)
		}

		rec, err := decodeRecord(data)
		if err != nil {
			rs.logger.Warnw("Removing undecodable token record", "key", key, "error", err)
		} else if rec.IssuedAt >= cutoff {
			continue
		}

		n, err := rs.client.Del(ctx, key).Result()
		if err != nil {
			metrics.StoreErrors.WithLabelValues(backendRedis, "sweep").Inc()
			return removed, fmt.Errorf("failed to delete %s during sweep: %w", key, err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		metrics.StoreErrors.WithLabelValues(backendRedis, "sweep").Inc()
		return removed, fmt.Errorf("failed to scan token records: %w", err)
	}

	if removed > 0 {
		metrics.StoreSwept.WithLabelValues(backendRedis).Add(float64(removed))
	}
	return removed, nil
}

// Close closes the Redis connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func decodeRecord(data []byte) (*core.TokenRecord, error) {
	var rec core.TokenRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		metrics.StoreErrors.WithLabelValues(backendRedis, "unmarshal").Inc()
		return nil, fmt.Errorf("failed to decode token record: %w", err)
	}
	return &rec, nil
}
