// Package timeout forces progress on games whose deadline has passed. It is
// just another writer: every escalation goes through the same
// compare-and-swap path as player input and only acts when the game still
// shows the deadline that armed it.
package timeout

import (
	"context"
	"errors"
	"sync"
	"time"

	engine "github.com/jason-s-yu/influence/engine"
	"github.com/jason-s-yu/influence/service/internal/game"
	"github.com/jason-s-yu/influence/service/internal/store"
	"github.com/sirupsen/logrus"
)

// sweepBatch bounds how many due games one sweep advances.
const sweepBatch = 100

// Advancer is the escalation entry point, normally *game.Service. Watch
// lets the sweep rewrite index entries that no longer match the game.
type Advancer interface {
	AdvanceTurnState(ctx context.Context, gameID string, expect *engine.Watch) (bool, error)
	Watch(ctx context.Context, gameID string) (engine.Watch, bool, error)
}

type armed struct {
	watch engine.Watch
	timer *time.Timer
}

// Escalator keeps one timer per game, armed from the commit feed, and a
// periodic sweep of the deadline index for anything a timer missed.
type Escalator struct {
	adv       Advancer
	deadlines store.Deadlines
	log       *logrus.Entry
	now       func() time.Time

	mu     sync.Mutex
	timers map[string]armed
	wg     sync.WaitGroup
}

// New builds an Escalator. deadlines may be nil, which disables Sweep.
func New(adv Advancer, deadlines store.Deadlines, log *logrus.Entry) *Escalator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Escalator{
		adv:       adv,
		deadlines: deadlines,
		log:       log.WithField("component", "escalator"),
		now:       time.Now,
		timers:    make(map[string]armed),
	}
}

// Run arms and disarms timers from feed until ctx is done or feed closes.
// Outstanding timers are stopped before it returns.
func (e *Escalator) Run(ctx context.Context, feed <-chan game.Commit) error {
	defer e.stopAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-feed:
			if !ok {
				return nil
			}
			if c.Armed {
				e.Arm(ctx, c.Watch)
			} else {
				e.Disarm(c.Game.ID)
			}
		}
	}
}

// Arm schedules an escalation for w, replacing any timer the game already
// has. Re-arming the same tuple keeps the existing timer.
func (e *Escalator) Arm(ctx context.Context, w engine.Watch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.timers[w.GameID]; ok {
		if cur.watch == w {
			return
		}
		e.stop(cur)
	}
	wait := max(w.Deadline().Sub(e.now()), 0)
	e.wg.Add(1)
	e.timers[w.GameID] = armed{
		watch: w,
		timer: time.AfterFunc(wait, func() {
			defer e.wg.Done()
			e.fire(ctx, w)
		}),
	}
}

// stop cancels a pending timer. A timer that already fired accounts for
// itself in wg.
func (e *Escalator) stop(a armed) {
	if a.timer.Stop() {
		e.wg.Done()
	}
}

// Disarm stops the game's timer, if any.
func (e *Escalator) Disarm(gameID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.timers[gameID]; ok {
		e.stop(cur)
		delete(e.timers, gameID)
	}
}

// Armed returns the tuple currently armed for gameID.
func (e *Escalator) Armed(gameID string) (engine.Watch, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.timers[gameID]
	return cur.watch, ok
}

func (e *Escalator) fire(ctx context.Context, w engine.Watch) {
	e.mu.Lock()
	if cur, ok := e.timers[w.GameID]; ok && cur.watch == w {
		delete(e.timers, w.GameID)
	}
	e.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	log := e.log.WithFields(logrus.Fields{
		"game":  w.GameID,
		"turn":  w.TurnNumber,
		"step":  w.Step,
		"phase": w.Phase,
	})
	advanced, err := e.adv.AdvanceTurnState(ctx, w.GameID, &w)
	switch {
	case err != nil:
		log.WithError(err).Warn("escalation failed, leaving it to the sweep")
	case advanced:
		log.Info("deadline passed, turn advanced")
	default:
		log.Debug("deadline superseded")
	}
}

func (e *Escalator) stopAll() {
	e.mu.Lock()
	for id, cur := range e.timers {
		e.stop(cur)
		delete(e.timers, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Sweep advances every game the deadline index reports due at now. It
// returns how many games moved. An entry whose game did not move is
// rewritten from the stored record, so stale entries cannot fill the batch.
func (e *Escalator) Sweep(ctx context.Context) (int, error) {
	if e.deadlines == nil {
		return 0, nil
	}
	ids, err := e.deadlines.Due(ctx, e.now(), sweepBatch)
	if err != nil {
		return 0, err
	}
	n, repaired := 0, 0
	for _, id := range ids {
		log := e.log.WithField("game", id)
		advanced, err := e.adv.AdvanceTurnState(ctx, id, nil)
		if err != nil && !errors.Is(err, game.ErrNotFound) {
			log.WithError(err).Warn("sweep escalation failed")
			continue
		}
		if advanced {
			n++
			continue
		}
		if err := e.repair(ctx, id); err != nil {
			log.WithError(err).Warn("deadline index repair failed")
			continue
		}
		repaired++
	}
	if n > 0 || repaired > 0 {
		e.log.WithFields(logrus.Fields{"advanced": n, "repaired": repaired}).Info("sweep finished")
	}
	return n, nil
}

// repair points the index entry for gameID at the deadline the record
// actually carries, or drops it when nothing is pending.
func (e *Escalator) repair(ctx context.Context, gameID string) error {
	w, ok, err := e.adv.Watch(ctx, gameID)
	if errors.Is(err, game.ErrNotFound) {
		ok, err = false, nil
	}
	if err != nil {
		return err
	}
	if !ok {
		return e.deadlines.Remove(ctx, gameID)
	}
	return e.deadlines.Put(ctx, gameID, w.Deadline())
}

// RunSweeper calls Sweep every interval until ctx is done.
func (e *Escalator) RunSweeper(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.log.WithError(err).Warn("deadline sweep failed")
			}
		}
	}
}
