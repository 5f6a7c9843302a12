// Package cache publishes committed game transitions to the historian queue.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// GameActionsKey is the Redis list the historian consumes.
const GameActionsKey = "historian:game_actions"

// GameActionRecord is one committed transition as the historian stores it.
type GameActionRecord struct {
	GameID        string         `json:"gameId"`
	ActionIndex   int64          `json:"actionIndex"` // record version after the write
	ActorUserID   string         `json:"actorUserId,omitempty"`
	ActionType    string         `json:"actionType"`
	ActionPayload map[string]any `json:"actionPayload"`
	Timestamp     int64          `json:"timestamp"` // unix millis
}

// Publisher accepts action records.
type Publisher interface {
	PublishGameAction(ctx context.Context, rec GameActionRecord) error
}

// RedisPublisher appends records to GameActionsKey.
type RedisPublisher struct {
	rdb redis.UniversalClient
	key string
}

// NewRedisPublisher publishes to GameActionsKey on rdb.
func NewRedisPublisher(rdb redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, key: GameActionsKey}
}

func (p *RedisPublisher) PublishGameAction(ctx context.Context, rec GameActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action record: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.key, data).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", p.key, err)
	}
	return nil
}

// Nop drops every record. It is used when Redis is not configured.
type Nop struct{}

func (Nop) PublishGameAction(context.Context, GameActionRecord) error { return nil }

// Recorder keeps records in memory.
type Recorder struct {
	mu      sync.Mutex
	records []GameActionRecord
}

func (r *Recorder) PublishGameAction(_ context.Context, rec GameActionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// Records returns a copy of everything published so far.
func (r *Recorder) Records() []GameActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GameActionRecord(nil), r.records...)
}
