// Package store holds versioned byte records behind a compare-and-swap
// contract. Every game mutation is a read, a pure computation and a
// conditional write; a writer that lost the race gets ErrConflict and must
// start again from a fresh read.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrExists   = errors.New("store: record already exists")
	ErrConflict = errors.New("store: version conflict")
)

// Record is one stored value. Version starts at 1 and grows by one with every
// successful write.
type Record struct {
	Key     string
	Version int64
	Data    []byte
}

// Store is the record store capability the game service depends on.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	Create(ctx context.Context, key string, data []byte) (Record, error)
	// CompareAndSwap replaces the record only if its version is still
	// version.
	CompareAndSwap(ctx context.Context, key string, version int64, data []byte) (Record, error)
}

// Deadlines indexes games by the time their pending deadline expires. It is
// the queue behind the scheduled trigger that calls advanceTurnState.
type Deadlines interface {
	Put(ctx context.Context, gameID string, at time.Time) error
	Remove(ctx context.Context, gameID string) error
	// Due returns up to limit game ids whose deadline is at or before now,
	// earliest first.
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Record keys.
func GameKey(id string) string { return "game:" + id }
func PlayerKey(id string) string { return "player:" + id }
func BotKey(gameID, botID string) string { return "bot:" + gameID + ":" + botID }
func PinKey(pin string) string { return "pin:" + pin }

// Put writes data under key whatever its current version, creating the
// record if needed. It is for records with a single writer, such as player
// and bot records; game records always go through CompareAndSwap.
func Put(ctx context.Context, s Store, key string, data []byte) (Record, error) {
	for {
		cur, err := s.Get(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			rec, err := s.Create(ctx, key, data)
			if errors.Is(err, ErrExists) {
				continue
			}
			return rec, err
		case err != nil:
			return Record{}, err
		}
		rec, err := s.CompareAndSwap(ctx, key, cur.Version, data)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return rec, err
	}
}

func wrap(op, key string, err error) error {
	return fmt.Errorf("store %s %s: %w", op, key, err)
}
