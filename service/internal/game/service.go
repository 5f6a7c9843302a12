// Package game is the atomic commit layer around the engine. Every operation
// reads the game record, applies one pure engine transition and writes the
// result back with compare-and-swap, retrying from a fresh read when another
// writer got there first. No game state is held in process between requests.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	engine "github.com/jason-s-yu/influence/engine"
	"github.com/jason-s-yu/influence/service/internal/cache"
	"github.com/jason-s-yu/influence/service/internal/database"
	"github.com/jason-s-yu/influence/service/internal/store"
	"github.com/jason-s-yu/influence/service/internal/timeouts"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTransient is returned when every compare-and-swap attempt lost. The
	// caller may resubmit.
	ErrTransient = errors.New("game: too much contention, try again")
	ErrNotFound  = errors.New("game: not found")
)

// errUnchanged aborts a mutation without writing.
var errUnchanged = errors.New("unchanged")

// DefaultMaxCASAttempts bounds the read-compute-write loop.
const DefaultMaxCASAttempts = 8

// Archiver stores the outcome of finished games.
type Archiver interface {
	StoreFinalGameState(ctx context.Context, res database.GameResult) error
}

// Options configures a Service. Store is required; everything else has a
// usable zero value.
type Options struct {
	Store          store.Store
	Deadlines      store.Deadlines
	Historian      cache.Publisher
	Archive        Archiver
	Log            *logrus.Entry
	Rules          engine.Rules // defaults for new games
	MaxCASAttempts int
	Now            func() time.Time
}

// Commit is published after every successful write.
type Commit struct {
	Op      string
	ActorID string
	Version int64
	Game    engine.Game // full record, not a projection
	Watch   engine.Watch
	Armed   bool // Watch is set
}

// Service implements the inbound operations on top of a record store.
type Service struct {
	store     store.Store
	deadlines store.Deadlines
	historian cache.Publisher
	archive   Archiver
	log       *logrus.Entry
	rules     engine.Rules
	attempts  int
	now       func() time.Time

	mu   sync.Mutex
	subs map[int]chan Commit
	next int
}

// New builds a Service from opts.
func New(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		deadlines: opts.Deadlines,
		historian: opts.Historian,
		archive:   opts.Archive,
		log:       opts.Log,
		rules:     opts.Rules,
		attempts:  opts.MaxCASAttempts,
		now:       opts.Now,
		subs:      make(map[int]chan Commit),
	}
	if s.historian == nil {
		s.historian = cache.Nop{}
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("component", "game")
	if s.rules == (engine.Rules{}) {
		s.rules = engine.DefaultRules()
	}
	if s.attempts <= 0 {
		s.attempts = DefaultMaxCASAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Subscribe returns a feed of commits. The channel is buffered with buf
// slots; commits that do not fit are dropped for that subscriber, which is
// safe for the escalator because the deadline index is swept independently.
func (s *Service) Subscribe(buf int) (<-chan Commit, func()) {
	ch := make(chan Commit, buf)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) publish(c Commit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- c:
		default:
			s.log.WithFields(logrus.Fields{"game": c.Game.ID, "subscriber": id}).Warn("commit feed full, dropping")
		}
	}
}

// ---------------------------------------------------------------------------
// Read / compute / write
// ---------------------------------------------------------------------------

func (s *Service) load(ctx context.Context, gameID string) (store.Record, engine.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.StoreCall)
	defer cancel()
	rec, err := s.store.Get(ctx, store.GameKey(gameID))
	if errors.Is(err, store.ErrNotFound) {
		return store.Record{}, engine.Game{}, fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	if err != nil {
		return store.Record{}, engine.Game{}, err
	}
	var g engine.Game
	if err := json.Unmarshal(rec.Data, &g); err != nil {
		return store.Record{}, engine.Game{}, fmt.Errorf("%w: decode game %s: %v", engine.ErrInvariant, gameID, err)
	}
	return rec, g, nil
}

// mutate runs fn against a fresh copy of the game until its write lands.
// fn must be a pure function of the game and now; it runs again on every
// retry.
func (s *Service) mutate(ctx context.Context, gameID, op, actorID string, fn func(g *engine.Game, now time.Time) error) (engine.Game, error) {
	log := s.log.WithFields(logrus.Fields{"game": gameID, "op": op})
	if actorID != "" {
		log = log.WithField("player", actorID)
	}
	for attempt := 1; attempt <= s.attempts; attempt++ {
		rec, g, err := s.load(ctx, gameID)
		if err != nil {
			return engine.Game{}, err
		}
		now := s.now()
		if err := fn(&g, now); err != nil {
			switch {
			case errors.Is(err, errUnchanged):
				return g, err
			case engine.IsInvariant(err):
				log.WithError(err).Error("invariant violated, operation aborted")
			default:
				log.WithError(err).Debug("rejected")
			}
			return engine.Game{}, err
		}
		data, err := json.Marshal(g)
		if err != nil {
			return engine.Game{}, fmt.Errorf("encode game %s: %w", gameID, err)
		}

		wctx, cancel := context.WithTimeout(ctx, timeouts.StoreCall)
		next, err := s.store.CompareAndSwap(wctx, rec.Key, rec.Version, data)
		cancel()
		if errors.Is(err, store.ErrConflict) {
			log.WithField("attempt", attempt).Debug("version conflict, retrying")
			continue
		}
		if err != nil {
			return engine.Game{}, err
		}
		s.committed(ctx, op, actorID, next.Version, g)
		return g, nil
	}
	log.WithField("attempts", s.attempts).Warn("giving up after repeated conflicts")
	return engine.Game{}, ErrTransient
}

// committed fans a successful write out to the deadline index, the
// historian, the archive and feed subscribers. Failures here are logged; the
// write itself already happened.
func (s *Service) committed(ctx context.Context, op, actorID string, version int64, g engine.Game) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Publish)
	defer cancel()
	log := s.log.WithFields(logrus.Fields{"game": g.ID, "op": op, "version": version})

	w, armed := g.Watch()
	if s.deadlines != nil {
		var err error
		if armed {
			err = s.deadlines.Put(ctx, g.ID, w.Deadline())
		} else {
			err = s.deadlines.Remove(ctx, g.ID)
		}
		if err != nil {
			log.WithError(err).Warn("deadline index update failed")
		}
	}

	rec := cache.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   version,
		ActorUserID:   actorID,
		ActionType:    op,
		ActionPayload: actionPayload(g),
		Timestamp:     g.UpdatedAt.UnixMilli(),
	}
	if err := s.historian.PublishGameAction(ctx, rec); err != nil {
		log.WithError(err).Error("failed publishing action to historian")
	}

	if g.Status == engine.StatusCompleted && s.archive != nil {
		if err := s.archive.StoreFinalGameState(ctx, finalResult(g)); err != nil {
			log.WithError(err).Error("failed archiving final state")
		} else {
			log.WithField("winner", g.WinnerID).Info("game archived")
		}
	}

	s.publish(Commit{Op: op, ActorID: actorID, Version: version, Game: g, Watch: w, Armed: armed})
}

func actionPayload(g engine.Game) map[string]any {
	p := map[string]any{
		"status": g.Status,
		"turn":   g.TurnNumber,
	}
	t := g.CurrentTurn
	if t == nil {
		t = g.LastTurn
	}
	if t != nil {
		p["phase"] = t.Phase
		p["phaseLog"] = t.PhaseLog
		p["action"] = t.Action.Type
		if t.Action.TargetPlayerID != "" {
			p["target"] = t.Action.TargetPlayerID
		}
		if len(t.TimedOut) > 0 {
			p["timedOut"] = t.TimedOut
		}
	}
	if g.WinnerID != "" {
		p["winner"] = g.WinnerID
	}
	return p
}

func finalResult(g engine.Game) database.GameResult {
	res := database.GameResult{
		GameID:           g.ID,
		WinnerID:         g.WinnerID,
		EliminationOrder: g.EliminationOrder,
		Players:          make(map[string]database.FinalHand, len(g.Players)),
		Turns:            g.TurnNumber,
		StartedAt:        g.StartedAt,
		CompletedAt:      g.UpdatedAt,
	}
	if g.CompletedAt != nil {
		res.CompletedAt = *g.CompletedAt
	}
	for _, p := range g.Players {
		h := database.FinalHand{Username: p.Username, Coins: p.Coins, IsBot: p.IsBot}
		for _, c := range p.Influence {
			h.Cards = append(h.Cards, string(c.Type))
			h.Revealed = append(h.Revealed, c.IsRevealed)
		}
		res.Players[p.ID] = h
	}
	return res
}
