package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExec struct {
	calls []execCall
	err   error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql, args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestStoreFinalGameState(t *testing.T) {
	db := &fakeExec{}
	r := NewResults(db)
	done := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	res := GameResult{
		GameID:           "g1",
		WinnerID:         "p1",
		EliminationOrder: []string{"p2", "p0"},
		Players: map[string]FinalHand{
			"p1": {Username: "ann", Coins: 4, Cards: []string{"DUKE", "CAPTAIN"}, Revealed: []bool{false, true}},
		},
		Turns:       17,
		CompletedAt: done,
	}
	require.NoError(t, r.StoreFinalGameState(context.Background(), res))
	require.Len(t, db.calls, 1)

	args := db.calls[0].args
	assert.Equal(t, sqlStoreResult, db.calls[0].sql)
	assert.Equal(t, "g1", args[0])
	assert.Equal(t, "p1", args[1])
	assert.JSONEq(t, `["p2","p0"]`, string(args[2].([]byte)))
	var hands map[string]FinalHand
	require.NoError(t, json.Unmarshal(args[3].([]byte), &hands))
	assert.Equal(t, res.Players, hands)
	assert.Equal(t, 17, args[4])
	assert.Equal(t, done, args[6])
}

func TestStoreFinalGameStateError(t *testing.T) {
	db := &fakeExec{err: errors.New("connection reset")}
	err := NewResults(db).StoreFinalGameState(context.Background(), GameResult{GameID: "g9"})
	assert.ErrorContains(t, err, "g9")
	assert.ErrorIs(t, err, db.err)
}

func TestMigrate(t *testing.T) {
	db := &fakeExec{}
	require.NoError(t, NewResults(db).Migrate(context.Background()))
	assert.Equal(t, Schema, db.calls[0].sql)
}
