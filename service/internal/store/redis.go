package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldData    = "data"
	fieldVersion = "version"

	// DeadlinesKey is the sorted set of pending deadlines, scored by unix
	// milliseconds.
	DeadlinesKey = "deadlines"
)

// Redis stores each record as a hash {data, version}. Conditional writes use
// WATCH/MULTI so a concurrent writer aborts the transaction.
type Redis struct {
	rdb redis.UniversalClient
}

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *Redis) Get(ctx context.Context, key string) (Record, error) {
	vals, err := r.rdb.HMGet(ctx, key, fieldData, fieldVersion).Result()
	if err != nil {
		return Record{}, wrap("get", key, err)
	}
	data, ok1 := vals[0].(string)
	ver, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return Record{}, ErrNotFound
	}
	version, err := strconv.ParseInt(ver, 10, 64)
	if err != nil {
		return Record{}, wrap("get", key, err)
	}
	return Record{Key: key, Version: version, Data: []byte(data)}, nil
}

func (r *Redis) Create(ctx context.Context, key string, data []byte) (Record, error) {
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fieldData, data, fieldVersion, 1)
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return Record{}, ErrExists
	case errors.Is(err, ErrExists):
		return Record{}, err
	case err != nil:
		return Record{}, wrap("create", key, err)
	}
	return Record{Key: key, Version: 1, Data: data}, nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, key string, version int64, data []byte) (Record, error) {
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, fieldVersion).Int64()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if cur != version {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fieldData, data, fieldVersion, version+1)
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return Record{}, ErrConflict
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
		return Record{}, err
	case err != nil:
		return Record{}, wrap("cas", key, err)
	}
	return Record{Key: key, Version: version + 1, Data: data}, nil
}

// RedisDeadlines keeps the deadline index in a sorted set.
type RedisDeadlines struct {
	rdb redis.UniversalClient
	key string
}

// NewRedisDeadlines uses DeadlinesKey on rdb.
func NewRedisDeadlines(rdb redis.UniversalClient) *RedisDeadlines {
	return &RedisDeadlines{rdb: rdb, key: DeadlinesKey}
}

func (d *RedisDeadlines) Put(ctx context.Context, gameID string, at time.Time) error {
	z := redis.Z{Score: float64(at.UnixMilli()), Member: gameID}
	if err := d.rdb.ZAdd(ctx, d.key, z).Err(); err != nil {
		return wrap("zadd", d.key, err)
	}
	return nil
}

func (d *RedisDeadlines) Remove(ctx context.Context, gameID string) error {
	if err := d.rdb.ZRem(ctx, d.key, gameID).Err(); err != nil {
		return wrap("zrem", d.key, err)
	}
	return nil
}

func (d *RedisDeadlines) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	by := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}
	if limit > 0 {
		by.Count = int64(limit)
	}
	ids, err := d.rdb.ZRangeByScore(ctx, d.key, by).Result()
	if err != nil {
		return nil, wrap("zrangebyscore", d.key, err)
	}
	return ids, nil
}
