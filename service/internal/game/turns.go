package game

import (
	"context"
	"errors"
	"time"

	engine "github.com/jason-s-yu/influence/engine"
)

// DeclareAction opens a turn for the current player.
func (s *Service) DeclareAction(ctx context.Context, gameID string, a engine.Action) (engine.Game, error) {
	return s.mutate(ctx, gameID, "declare", a.PlayerID, func(g *engine.Game, now time.Time) error {
		return g.DeclareAction(a, now)
	})
}

// SubmitResponse records an accept, block or challenge. Membership in the
// phase's responded set is checked inside the same write that records the
// response, so two copies of one response cannot both land.
func (s *Service) SubmitResponse(ctx context.Context, gameID, playerID string, r engine.Response) (engine.Game, error) {
	return s.mutate(ctx, gameID, "respond", playerID, func(g *engine.Game, now time.Time) error {
		return g.SubmitResponse(playerID, r, now)
	})
}

// SelectCard answers a defense or influence loss with one card.
func (s *Service) SelectCard(ctx context.Context, gameID, playerID, cardID string) (engine.Game, error) {
	return s.mutate(ctx, gameID, "select_card", playerID, func(g *engine.Game, now time.Time) error {
		return g.SelectCard(playerID, cardID, now)
	})
}

// SubmitExchangeReturn puts two cards back after an exchange.
func (s *Service) SubmitExchangeReturn(ctx context.Context, gameID, playerID string, cardIDs []string) (engine.Game, error) {
	return s.mutate(ctx, gameID, "exchange_return", playerID, func(g *engine.Game, now time.Time) error {
		return g.SubmitExchangeReturn(playerID, cardIDs, now)
	})
}

// AdvanceTurnState escalates the pending deadline once it has passed. With a
// non-nil expect it only acts while the game still shows that watch tuple.
// It reports whether anything was written. Only trusted callers use it.
func (s *Service) AdvanceTurnState(ctx context.Context, gameID string, expect *engine.Watch) (bool, error) {
	_, err := s.mutate(ctx, gameID, "advance", "", func(g *engine.Game, now time.Time) error {
		advanced, err := g.AdvanceTurnState(expect, now)
		if err != nil {
			return err
		}
		if !advanced {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Game loads the full, unprojected record. It is for trusted callers; player
// facing reads go through View.
func (s *Service) Game(ctx context.Context, gameID string) (engine.Game, error) {
	_, g, err := s.load(ctx, gameID)
	return g, err
}

// View loads the game as viewerID may see it.
func (s *Service) View(ctx context.Context, gameID, viewerID string) (engine.Game, error) {
	_, g, err := s.load(ctx, gameID)
	if err != nil {
		return engine.Game{}, err
	}
	return g.ViewFor(viewerID), nil
}

// Watch returns the deadline tuple currently armed on the game.
func (s *Service) Watch(ctx context.Context, gameID string) (engine.Watch, bool, error) {
	_, g, err := s.load(ctx, gameID)
	if err != nil {
		return engine.Watch{}, false, err
	}
	w, ok := g.Watch()
	return w, ok, nil
}
