package game

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	engine "github.com/jason-s-yu/influence/engine"
	"github.com/jason-s-yu/influence/service/internal/store"
	"github.com/sirupsen/logrus"
)

// pinAttempts bounds the search for an unused join PIN.
const pinAttempts = 20

// ErrNoPin is returned when no free PIN was found.
var ErrNoPin = errors.New("game: could not allocate a join pin")

// PlayerRecord is the per-player record: identity and current game.
type PlayerRecord struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	IsBot         bool   `json:"isBot,omitempty"`
	CurrentGameID string `json:"currentGameId,omitempty"`
}

// CreateGame creates a WAITING game hosted by hostID. Zero fields of rules
// take the service defaults.
func (s *Service) CreateGame(ctx context.Context, hostID, username string, rules engine.Rules) (engine.Game, error) {
	if hostID == "" {
		return engine.Game{}, fmt.Errorf("%w: player id is required", engine.ErrValidation)
	}
	if rules.MaxPlayers == 0 {
		rules.MaxPlayers = s.rules.MaxPlayers
	}
	if rules.ResponseTimeoutSec == 0 {
		rules.ResponseTimeoutSec = s.rules.ResponseTimeoutSec
	}
	if rules.MaxPlayers < engine.MinPlayers || rules.MaxPlayers > engine.MaxPlayers {
		return engine.Game{}, fmt.Errorf("%w: max players must be %d to %d", engine.ErrValidation, engine.MinPlayers, engine.MaxPlayers)
	}
	if rules.ResponseTimeoutSec < 0 {
		return engine.Game{}, fmt.Errorf("%w: response timeout must not be negative", engine.ErrValidation)
	}

	id := uuid.New()
	gameID := id.String()
	pin, err := s.allocatePin(ctx, gameID)
	if err != nil {
		return engine.Game{}, err
	}
	now := s.now()
	seed := binary.BigEndian.Uint64(id[:8]) ^ uint64(now.UnixNano())
	g := engine.NewGame(gameID, pin, engine.Player{ID: hostID, Username: username}, rules, seed, now)

	data, err := json.Marshal(g)
	if err != nil {
		return engine.Game{}, fmt.Errorf("encode game %s: %w", gameID, err)
	}
	rec, err := s.store.Create(ctx, store.GameKey(gameID), data)
	if err != nil {
		return engine.Game{}, err
	}
	if err := s.savePlayer(ctx, PlayerRecord{ID: hostID, Username: username, CurrentGameID: gameID}); err != nil {
		return engine.Game{}, err
	}
	s.log.WithFields(logrus.Fields{"game": gameID, "pin": pin, "player": hostID}).Info("game created")
	s.committed(ctx, "create", hostID, rec.Version, g)
	return g, nil
}

func (s *Service) allocatePin(ctx context.Context, gameID string) (string, error) {
	for range pinAttempts {
		pin := fmt.Sprintf("%06d", rand.IntN(1_000_000))
		_, err := s.store.Create(ctx, store.PinKey(pin), []byte(gameID))
		if errors.Is(err, store.ErrExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return pin, nil
	}
	return "", ErrNoPin
}

// JoinGame seats playerID in the WAITING game with the given PIN.
func (s *Service) JoinGame(ctx context.Context, pin, playerID, username string) (engine.Game, error) {
	if playerID == "" {
		return engine.Game{}, fmt.Errorf("%w: player id is required", engine.ErrValidation)
	}
	rec, err := s.store.Get(ctx, store.PinKey(pin))
	if errors.Is(err, store.ErrNotFound) {
		return engine.Game{}, fmt.Errorf("%w: no game with pin %s", ErrNotFound, pin)
	}
	if err != nil {
		return engine.Game{}, err
	}
	gameID := string(rec.Data)
	g, err := s.mutate(ctx, gameID, "join", playerID, func(g *engine.Game, now time.Time) error {
		if err := g.AddPlayer(engine.Player{ID: playerID, Username: username}); err != nil {
			return err
		}
		g.UpdatedAt = now
		return nil
	})
	if err != nil {
		return engine.Game{}, err
	}
	if err := s.savePlayer(ctx, PlayerRecord{ID: playerID, Username: username, CurrentGameID: gameID}); err != nil {
		return engine.Game{}, err
	}
	return g, nil
}

// AddBot seats a new bot. Only the host may add bots.
func (s *Service) AddBot(ctx context.Context, gameID, requesterID string) (engine.Player, error) {
	bot := engine.Player{ID: "bot-" + uuid.NewString(), IsBot: true}
	g, err := s.mutate(ctx, gameID, "add_bot", requesterID, func(g *engine.Game, now time.Time) error {
		if requesterID != g.HostID {
			return engine.ErrNotHost
		}
		bot.Username = fmt.Sprintf("Bot %d", len(g.Players))
		if err := g.AddPlayer(bot); err != nil {
			return err
		}
		g.UpdatedAt = now
		return nil
	})
	if err != nil {
		return engine.Player{}, err
	}
	seat := *g.Player(bot.ID)
	if err := s.savePlayer(ctx, PlayerRecord{ID: seat.ID, Username: seat.Username, IsBot: true, CurrentGameID: gameID}); err != nil {
		return engine.Player{}, err
	}
	return seat, nil
}

// StartGame deals the cards and begins the first turn.
func (s *Service) StartGame(ctx context.Context, gameID, requesterID string) (engine.Game, error) {
	g, err := s.mutate(ctx, gameID, "start", requesterID, func(g *engine.Game, now time.Time) error {
		return g.Start(requesterID, now)
	})
	if err != nil {
		return engine.Game{}, err
	}
	s.log.WithFields(logrus.Fields{"game": gameID, "players": len(g.Players)}).Info("game started")
	return g, nil
}

// GetPlayer loads a player record.
func (s *Service) GetPlayer(ctx context.Context, playerID string) (PlayerRecord, error) {
	rec, err := s.store.Get(ctx, store.PlayerKey(playerID))
	if errors.Is(err, store.ErrNotFound) {
		return PlayerRecord{}, fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if err != nil {
		return PlayerRecord{}, err
	}
	var p PlayerRecord
	if err := json.Unmarshal(rec.Data, &p); err != nil {
		return PlayerRecord{}, fmt.Errorf("decode player %s: %w", playerID, err)
	}
	return p, nil
}

func (s *Service) savePlayer(ctx context.Context, p PlayerRecord) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode player %s: %w", p.ID, err)
	}
	if _, err := store.Put(ctx, s.store, store.PlayerKey(p.ID), data); err != nil {
		return fmt.Errorf("save player %s: %w", p.ID, err)
	}
	return nil
}
