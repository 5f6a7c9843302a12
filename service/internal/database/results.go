// Package database archives finished games in Postgres.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the game_results table.
const Schema = `
CREATE TABLE IF NOT EXISTS game_results (
	game_id           TEXT PRIMARY KEY,
	winner_id         TEXT NOT NULL,
	elimination_order JSONB NOT NULL,
	final_state       JSONB NOT NULL,
	turns             INTEGER NOT NULL,
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ NOT NULL
);
`

const sqlStoreResult = `
INSERT INTO game_results (game_id, winner_id, elimination_order, final_state, turns, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (game_id) DO NOTHING`

// FinalHand is one player's cards at the end of a game.
type FinalHand struct {
	Username string   `json:"username"`
	Coins    int      `json:"coins"`
	Cards    []string `json:"cards"`
	Revealed []bool   `json:"revealed"`
	IsBot    bool     `json:"isBot,omitempty"`
}

// GameResult is the archived outcome of a finished game.
type GameResult struct {
	GameID           string
	WinnerID         string
	EliminationOrder []string
	Players          map[string]FinalHand
	Turns            int
	StartedAt        *time.Time
	CompletedAt      time.Time
}

// Executor is the subset of *pgxpool.Pool the archive uses.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Results writes GameResults. Rewriting the same game is a no-op.
type Results struct {
	db Executor
}

// NewResults wraps db.
func NewResults(db Executor) *Results {
	return &Results{db: db}
}

// Migrate applies Schema.
func (r *Results) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate game_results: %w", err)
	}
	return nil
}

// StoreFinalGameState archives res.
func (r *Results) StoreFinalGameState(ctx context.Context, res GameResult) error {
	order, err := json.Marshal(res.EliminationOrder)
	if err != nil {
		return fmt.Errorf("marshal elimination order: %w", err)
	}
	state, err := json.Marshal(res.Players)
	if err != nil {
		return fmt.Errorf("marshal final state: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlStoreResult,
		res.GameID, res.WinnerID, order, state, res.Turns, res.StartedAt, res.CompletedAt)
	if err != nil {
		return fmt.Errorf("store result for game %s: %w", res.GameID, err)
	}
	return nil
}
