// Package bot plays the seats marked IsBot. It watches the commit feed and
// folds every commit into the beliefs of each bot seated in that game.
// Whenever a game waits on a bot it decides from the bot's own projection
// and submits through the same service calls a human client uses.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	engine "github.com/jason-s-yu/influence/engine"
	"github.com/jason-s-yu/influence/engine/agent"
	"github.com/jason-s-yu/influence/service/internal/game"
	"github.com/jason-s-yu/influence/service/internal/store"
	"github.com/sirupsen/logrus"
)

// maxSteps bounds how many inputs one bot submits before yielding.
const maxSteps = 8

// Service is the part of game.Service a bot needs.
type Service interface {
	View(ctx context.Context, gameID, viewerID string) (engine.Game, error)
	DeclareAction(ctx context.Context, gameID string, a engine.Action) (engine.Game, error)
	SubmitResponse(ctx context.Context, gameID, playerID string, r engine.Response) (engine.Game, error)
	SelectCard(ctx context.Context, gameID, playerID, cardID string) (engine.Game, error)
	SubmitExchangeReturn(ctx context.Context, gameID, playerID string, cardIDs []string) (engine.Game, error)
}

type seat struct{ gameID, botID string }

// Runner drives every bot seat in the process.
type Runner struct {
	svc   Service
	store store.Store
	log   *logrus.Entry
	delay time.Duration

	mu      sync.Mutex
	running map[seat]bool // value: another commit arrived meanwhile
	wg      sync.WaitGroup

	// beliefsMu serialises read-modify-write of persisted beliefs.
	beliefsMu sync.Mutex
}

// New builds a Runner. delay is slept before each decision.
func New(svc Service, s store.Store, delay time.Duration, log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		svc:     svc,
		store:   s,
		log:     log.WithField("component", "bot"),
		delay:   delay,
		running: make(map[seat]bool),
	}
}

// Run reacts to feed until ctx is done or feed closes, then waits for bots
// still acting.
func (r *Runner) Run(ctx context.Context, feed <-chan game.Commit) error {
	defer r.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-feed:
			if !ok {
				return nil
			}
			r.Notify(ctx, c.Game)
		}
	}
}

// Notify has every bot seated in g observe it, then starts a turn for every
// bot g is waiting on. Feed each commit exactly once and in order: a later
// turn replaces the public record of an earlier one.
func (r *Runner) Notify(ctx context.Context, g engine.Game) {
	for i := range g.Players {
		p := &g.Players[i]
		if !p.IsBot {
			continue
		}
		if err := r.observe(ctx, &g, p.ID); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"game": g.ID, "bot": p.ID}).Warn("bot failed to observe commit")
		}
	}
	for _, id := range g.AwaitingInput() {
		if p := g.Player(id); p != nil && p.IsBot {
			r.kick(ctx, seat{g.ID, id})
		}
	}
}

// observe folds botID's projection of the committed g into its beliefs.
func (r *Runner) observe(ctx context.Context, g *engine.Game, botID string) error {
	r.beliefsMu.Lock()
	defer r.beliefsMu.Unlock()
	b, err := r.Beliefs(ctx, g.ID, botID)
	if err != nil {
		return err
	}
	view := g.ViewFor(botID)
	b.Observe(&view)
	return r.saveBeliefs(ctx, b)
}

func (r *Runner) kick(ctx context.Context, s seat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[s]; busy {
		r.running[s] = true
		return
	}
	r.running[s] = false
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			r.Play(ctx, s.gameID, s.botID)
			r.mu.Lock()
			again := r.running[s]
			if !again {
				delete(r.running, s)
			} else {
				r.running[s] = false
			}
			r.mu.Unlock()
			if !again {
				return
			}
		}
	}()
}

// Play submits inputs for botID until the game stops waiting on it. It
// returns how many inputs landed.
func (r *Runner) Play(ctx context.Context, gameID, botID string) int {
	log := r.log.WithFields(logrus.Fields{"game": gameID, "bot": botID})
	landed := 0
	for range maxSteps {
		if r.delay > 0 {
			select {
			case <-ctx.Done():
				return landed
			case <-time.After(r.delay):
			}
		}
		ok, err := r.step(ctx, gameID, botID, log)
		switch {
		case err == nil && !ok:
			return landed
		case err == nil:
			landed++
		case engine.IsValidation(err), errors.Is(err, game.ErrTransient):
			// The game moved under us; decide again from a fresh view.
			log.WithError(err).Debug("bot input not applied")
		default:
			log.WithError(err).Error("bot failed to act")
			return landed
		}
	}
	return landed
}

func (r *Runner) step(ctx context.Context, gameID, botID string, log *logrus.Entry) (bool, error) {
	d, ok, err := r.decide(ctx, gameID, botID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	log.WithFields(logrus.Fields{"kind": d.Kind, "reason": d.Reason}).Debug("bot decided")
	return true, r.submit(ctx, gameID, botID, d)
}

func (r *Runner) decide(ctx context.Context, gameID, botID string) (agent.Decision, bool, error) {
	r.beliefsMu.Lock()
	defer r.beliefsMu.Unlock()
	view, err := r.svc.View(ctx, gameID, botID)
	if err != nil {
		return agent.Decision{}, false, err
	}
	b, err := r.Beliefs(ctx, gameID, botID)
	if err != nil {
		return agent.Decision{}, false, err
	}
	d, ok, err := b.Decide(&view)
	if err != nil {
		return agent.Decision{}, false, err
	}
	if err := r.saveBeliefs(ctx, b); err != nil {
		return agent.Decision{}, false, err
	}
	return d, ok, nil
}

func (r *Runner) submit(ctx context.Context, gameID, botID string, d agent.Decision) error {
	var err error
	switch d.Kind {
	case agent.DecideDeclare:
		_, err = r.svc.DeclareAction(ctx, gameID, d.Action)
	case agent.DecideRespond:
		_, err = r.svc.SubmitResponse(ctx, gameID, botID, d.Response)
	case agent.DecideSelectCard:
		_, err = r.svc.SelectCard(ctx, gameID, botID, d.CardID)
	case agent.DecideExchangeReturn:
		_, err = r.svc.SubmitExchangeReturn(ctx, gameID, botID, d.CardIDs)
	default:
		err = fmt.Errorf("unknown decision kind %q", d.Kind)
	}
	return err
}

// Beliefs loads the persisted beliefs of botID, or a fresh uniform state
// seeded from the seat when none were saved yet.
func (r *Runner) Beliefs(ctx context.Context, gameID, botID string) (*agent.Beliefs, error) {
	rec, err := r.store.Get(ctx, store.BotKey(gameID, botID))
	if errors.Is(err, store.ErrNotFound) {
		return agent.NewBeliefs(gameID, botID, xxhash.Sum64String(gameID+":"+botID)), nil
	}
	if err != nil {
		return nil, err
	}
	var b agent.Beliefs
	if err := json.Unmarshal(rec.Data, &b); err != nil {
		return nil, fmt.Errorf("decode beliefs %s/%s: %w", gameID, botID, err)
	}
	return &b, nil
}

func (r *Runner) saveBeliefs(ctx context.Context, b *agent.Beliefs) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode beliefs %s/%s: %w", b.GameID, b.BotID, err)
	}
	if _, err := store.Put(ctx, r.store, store.BotKey(b.GameID, b.BotID), data); err != nil {
		return fmt.Errorf("save beliefs %s/%s: %w", b.GameID, b.BotID, err)
	}
	return nil
}
