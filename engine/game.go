// Package engine implements the rules of a hidden-role bluffing card game.
//
// Game is a self-contained value: the deck, every hand, the in-flight turn
// and the RNG word all live in one record, so a transition computed twice from
// the same record produces the same result. Callers persist the record and
// supply the clock; the engine never blocks and never reads global state.
package engine

import (
	"fmt"
	"time"
)

// Player is one seat at the table.
type Player struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Coins         int    `json:"coins"`
	Influence     []Card `json:"influence"`
	IsBot         bool   `json:"isBot,omitempty"`
	CurrentGameID string `json:"currentGameId"`
}

// Unrevealed returns the number of cards the player still hides.
func (p *Player) Unrevealed() int {
	n := 0
	for _, c := range p.Influence {
		if !c.IsRevealed {
			n++
		}
	}
	return n
}

// IsEliminated reports whether every card the player holds is revealed.
func (p *Player) IsEliminated() bool { return p.Unrevealed() == 0 }

// HasCard reports whether the player holds an unrevealed card of role.
func (p *Player) HasCard(role Role) bool {
	_, ok := p.cardFor(role)
	return ok
}

// cardFor returns the index of the first unrevealed card of role.
func (p *Player) cardFor(role Role) (int, bool) {
	for i, c := range p.Influence {
		if !c.IsRevealed && c.Type == role {
			return i, true
		}
	}
	return -1, false
}

// cardIndex returns the index of the card with the given id.
func (p *Player) cardIndex(cardID string) int {
	for i, c := range p.Influence {
		if c.ID == cardID {
			return i
		}
	}
	return -1
}

// firstUnrevealed returns the id of the first hidden card in hand order.
func (p *Player) firstUnrevealed() string {
	for _, c := range p.Influence {
		if !c.IsRevealed {
			return c.ID
		}
	}
	return ""
}

// Game is the full shared record of one table.
type Game struct {
	ID                 string     `json:"id"`
	Pin                string     `json:"pin"`
	Status             GameStatus `json:"status"`
	HostID             string     `json:"hostId"`
	Rules              Rules      `json:"rules"`
	Players            []Player   `json:"players"`
	Deck               Deck       `json:"deck"`
	CurrentPlayerIndex int        `json:"currentPlayerIndex"`
	CurrentTurn        *TurnState `json:"currentTurn"`
	LastTurn           *TurnState `json:"lastTurn,omitempty"`
	TurnNumber         int        `json:"turnNumber"`
	DeclareBy          *time.Time `json:"declareBy"`
	WinnerID           string     `json:"winnerId,omitempty"`
	EliminationOrder   []string   `json:"eliminationOrder"`
	RNG                RNG        `json:"rng,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

// ---------------------------------------------------------------------------
// xorshift64 RNG
// ---------------------------------------------------------------------------

// RNG is a persisted xorshift64 word. Every shuffle and draw advances it, so
// the record alone determines the next random outcome.
type RNG uint64

// NewRNG seeds an RNG. xorshift can't start at 0.
func NewRNG(seed uint64) RNG {
	if seed == 0 {
		seed = 1
	}
	return RNG(seed)
}

// Next advances the generator and returns the new word.
func (r *RNG) Next() uint64 {
	x := uint64(*r)
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*r = RNG(x)
	return x
}

// Intn returns a number in [0, n).
func (r *RNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Next() % uint64(n))
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// NewGame creates a WAITING game with the host seated.
func NewGame(id, pin string, host Player, rules Rules, seed uint64, now time.Time) Game {
	host.CurrentGameID = id
	host.Influence = nil
	host.Coins = 0
	return Game{
		ID:               id,
		Pin:              pin,
		Status:           StatusWaiting,
		HostID:           host.ID,
		Rules:            rules,
		Players:          []Player{host},
		EliminationOrder: []string{},
		RNG:              NewRNG(seed),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// AddPlayer seats a player in a WAITING game.
func (g *Game) AddPlayer(p Player) error {
	if g.Status != StatusWaiting {
		return ErrGameNotWaiting
	}
	if g.Player(p.ID) != nil {
		return ErrAlreadyJoined
	}
	if len(g.Players) >= g.Rules.maxPlayers() {
		return ErrGameFull
	}
	p.CurrentGameID = g.ID
	p.Influence = nil
	p.Coins = 0
	g.Players = append(g.Players, p)
	return nil
}

// Start builds and shuffles the deck, deals every hand and picks the first
// player. Only the host may start, and only with MinPlayers or more seated.
func (g *Game) Start(requesterID string, now time.Time) error {
	if g.Status != StatusWaiting {
		return ErrGameNotWaiting
	}
	if requesterID != g.HostID {
		return ErrNotHost
	}
	if len(g.Players) < MinPlayers {
		return ErrTooFewPlayers
	}
	next := g.Clone()
	next.Deck = NewDeck(&next.RNG)
	for i := range next.Players {
		hand, err := next.Deck.Deal(HandSize)
		if err != nil {
			return err
		}
		next.Players[i].Influence = hand
		next.Players[i].Coins = StartingCoins
	}
	next.CurrentPlayerIndex = next.RNG.Intn(len(next.Players))
	next.Status = StatusInProgress
	started := now
	next.StartedAt = &started
	next.UpdatedAt = now
	next.armDeclareDeadline(now)
	if err := next.CheckInvariants(); err != nil {
		return err
	}
	*g = next
	return nil
}

// ---------------------------------------------------------------------------
// Query methods
// ---------------------------------------------------------------------------

// Player returns the seat with the given id, or nil.
func (g *Game) Player(id string) *Player {
	for i := range g.Players {
		if g.Players[i].ID == id {
			return &g.Players[i]
		}
	}
	return nil
}

// CurrentPlayer returns the player whose turn it is.
func (g *Game) CurrentPlayer() *Player {
	if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.Players) {
		return nil
	}
	return &g.Players[g.CurrentPlayerIndex]
}

// ActivePlayers returns the ids of players that still hold influence, in seat
// order.
func (g *Game) ActivePlayers() []string {
	ids := make([]string, 0, len(g.Players))
	for i := range g.Players {
		if !g.Players[i].IsEliminated() {
			ids = append(ids, g.Players[i].ID)
		}
	}
	return ids
}

// IsActive reports whether id names a seated, non-eliminated player.
func (g *Game) IsActive(id string) bool {
	p := g.Player(id)
	return p != nil && !p.IsEliminated()
}

// nextActive returns the seat after from that still holds influence.
func (g *Game) nextActive(from int) int {
	n := len(g.Players)
	for step := 1; step <= n; step++ {
		i := (from + step) % n
		if !g.Players[i].IsEliminated() {
			return i
		}
	}
	return from
}

// Clone returns a deep copy that shares no slices or pointers with g.
func (g *Game) Clone() Game {
	c := *g
	c.Players = make([]Player, len(g.Players))
	for i, p := range g.Players {
		p.Influence = append([]Card(nil), p.Influence...)
		c.Players[i] = p
	}
	c.Deck = append(Deck(nil), g.Deck...)
	c.EliminationOrder = append([]string{}, g.EliminationOrder...)
	c.CurrentTurn = g.CurrentTurn.clone()
	c.LastTurn = g.LastTurn.clone()
	c.DeclareBy = cloneTime(g.DeclareBy)
	c.StartedAt = cloneTime(g.StartedAt)
	c.CompletedAt = cloneTime(g.CompletedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Census counts every card of each role across the deck and all hands.
func (g *Game) Census() map[Role]int {
	counts := make(map[Role]int, len(Roles))
	for _, c := range g.Deck {
		counts[c.Type]++
	}
	for i := range g.Players {
		for _, c := range g.Players[i].Influence {
			counts[c.Type]++
		}
	}
	return counts
}

// CheckInvariants returns an ErrInvariant error describing the first
// corruption found, or nil.
func (g *Game) CheckInvariants() error {
	for i := range g.Players {
		if g.Players[i].Coins < 0 {
			return fmt.Errorf("%w: player %s has %d coins", ErrInvariant, g.Players[i].ID, g.Players[i].Coins)
		}
	}
	if g.CurrentTurn != nil && g.Status != StatusInProgress {
		return fmt.Errorf("%w: turn in flight while game is %s", ErrInvariant, g.Status)
	}
	if g.Status == StatusWaiting {
		return nil
	}

	counts := g.Census()
	for _, r := range Roles {
		if counts[r] != CopiesPerRole {
			return fmt.Errorf("%w: %d copies of %s, want %d", ErrInvariant, counts[r], r, CopiesPerRole)
		}
	}
	if total := len(g.Deck) + g.cardsInHands(); total != DeckSize {
		return fmt.Errorf("%w: %d cards in play, want %d", ErrInvariant, total, DeckSize)
	}
	seen := make(map[string]bool, DeckSize)
	for _, c := range g.allCards() {
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate card id %s", ErrInvariant, c.ID)
		}
		seen[c.ID] = true
	}

	for i := range g.Players {
		p := &g.Players[i]
		want := HandSize
		if t := g.CurrentTurn; t != nil && t.Phase == PhaseAwaitingExchangeReturn && t.Action.PlayerID == p.ID {
			want += ExchangeDraw
		}
		if len(p.Influence) != want {
			return fmt.Errorf("%w: player %s holds %d cards, want %d", ErrInvariant, p.ID, len(p.Influence), want)
		}
	}

	if g.CurrentPlayer() == nil {
		return fmt.Errorf("%w: current player index %d out of range", ErrInvariant, g.CurrentPlayerIndex)
	}
	if t := g.CurrentTurn; t != nil {
		if g.Player(t.Action.PlayerID) == nil {
			return fmt.Errorf("%w: turn actor %s missing", ErrInvariant, t.Action.PlayerID)
		}
		if t.Action.TargetPlayerID != "" && g.Player(t.Action.TargetPlayerID) == nil {
			return fmt.Errorf("%w: turn target %s missing", ErrInvariant, t.Action.TargetPlayerID)
		}
		if t.Phase.Transient() {
			return fmt.Errorf("%w: turn left in transient phase %s", ErrInvariant, t.Phase)
		}
	}
	if g.Status == StatusCompleted && g.WinnerID != "" && !g.IsActive(g.WinnerID) {
		return fmt.Errorf("%w: winner %s holds no influence", ErrInvariant, g.WinnerID)
	}
	return nil
}

func (g *Game) cardsInHands() int {
	n := 0
	for i := range g.Players {
		n += len(g.Players[i].Influence)
	}
	return n
}

func (g *Game) allCards() []Card {
	cards := append([]Card(nil), g.Deck...)
	for i := range g.Players {
		cards = append(cards, g.Players[i].Influence...)
	}
	return cards
}

// ---------------------------------------------------------------------------
// Influence loss
// ---------------------------------------------------------------------------

// revealCard flips one of the player's hidden cards. A player revealed down
// to nothing joins the elimination order.
func (g *Game) revealCard(playerID, cardID string) error {
	p := g.Player(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	i := p.cardIndex(cardID)
	if i < 0 {
		return ErrUnknownCard
	}
	if p.Influence[i].IsRevealed {
		return ErrCardRevealed
	}
	p.Influence[i].IsRevealed = true
	if p.IsEliminated() {
		g.EliminationOrder = append(g.EliminationOrder, p.ID)
	}
	return nil
}

// checkWinner completes the game once at most one player holds influence.
func (g *Game) checkWinner(now time.Time) bool {
	active := g.ActivePlayers()
	if len(active) > 1 {
		return false
	}
	g.Status = StatusCompleted
	if len(active) == 1 {
		g.WinnerID = active[0]
	}
	done := now
	g.CompletedAt = &done
	g.DeclareBy = nil
	return true
}

// armDeclareDeadline sets the deadline by which the current player must
// declare. Zero ResponseTimeoutSec disables it.
func (g *Game) armDeclareDeadline(now time.Time) {
	d := g.Rules.ResponseTimeout()
	if d <= 0 || g.Status != StatusInProgress {
		g.DeclareBy = nil
		return
	}
	at := deadline(now, d)
	g.DeclareBy = &at
}

// deadline truncates to milliseconds so a deadline survives JSON round trips
// and compares equal in watch tuples.
func deadline(now time.Time, d time.Duration) time.Time {
	return now.Add(d).UTC().Truncate(time.Millisecond)
}
