// Package agent implements belief tracking and decision making for bot
// players.
//
// A bot only ever sees the projection of the game that a human in its seat
// would see. Everything it infers lives in Beliefs, which is persisted between
// decisions so that inference survives process restarts.
package agent

import (
	"fmt"
	"math/rand/v2"
	"slices"

	engine "github.com/jason-s-yu/influence/engine"
)

// Beliefs is the persisted inference state of one bot in one game.
type Beliefs struct {
	GameID string `json:"gameId"`
	BotID  string `json:"botId"`

	// Opponents maps opponent id to the estimated probability that the
	// opponent holds each role.
	Opponents map[string]map[engine.Role]float64 `json:"opponents"`
	// Revealed counts face-up copies of each role, capped at CopiesPerRole.
	Revealed map[engine.Role]int `json:"revealed"`
	// Claims counts every role claim observed from opponents.
	Claims map[engine.Role]int `json:"claims"`
	// PreClaim holds, per opponent and role, the probability from just
	// before that opponent's latest claim of the role.
	PreClaim map[string]map[engine.Role]float64 `json:"preClaim,omitempty"`
	// Hand holds the bot's own hidden roles as of the last observation.
	Hand []engine.Role `json:"hand"`

	// Marks records which turn events were already folded in, keyed by turn
	// number.
	Marks map[int][]string `json:"marks"`

	// RandState is the marshalled PCG source used for every draw.
	RandState []byte `json:"randState"`
}

// NewBeliefs creates a uniform belief state for botID. seed fixes the bot's
// random stream.
func NewBeliefs(gameID, botID string, seed uint64) *Beliefs {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	state, _ := src.MarshalBinary()
	return &Beliefs{
		GameID:    gameID,
		BotID:     botID,
		Opponents: make(map[string]map[engine.Role]float64),
		PreClaim:  make(map[string]map[engine.Role]float64),
		Revealed:  make(map[engine.Role]int),
		Claims:    make(map[engine.Role]int),
		Marks:     make(map[int][]string),
		RandState: state,
	}
}

// Clone returns a deep copy.
func (b *Beliefs) Clone() *Beliefs {
	c := *b
	c.Opponents = cloneProbs(b.Opponents)
	c.PreClaim = cloneProbs(b.PreClaim)
	c.Revealed = cloneCounts(b.Revealed)
	c.Claims = cloneCounts(b.Claims)
	c.Hand = slices.Clone(b.Hand)
	c.Marks = make(map[int][]string, len(b.Marks))
	for k, v := range b.Marks {
		c.Marks[k] = slices.Clone(v)
	}
	c.RandState = slices.Clone(b.RandState)
	return &c
}

func cloneProbs(src map[string]map[engine.Role]float64) map[string]map[engine.Role]float64 {
	c := make(map[string]map[engine.Role]float64, len(src))
	for id, probs := range src {
		m := make(map[engine.Role]float64, len(probs))
		for r, p := range probs {
			m[r] = p
		}
		c[id] = m
	}
	return c
}

func cloneCounts(m map[engine.Role]int) map[engine.Role]int {
	c := make(map[engine.Role]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Prob returns the estimated probability that opponent id holds role.
func (b *Beliefs) Prob(id string, role engine.Role) float64 {
	if probs, ok := b.Opponents[id]; ok {
		if p, ok := probs[role]; ok {
			return p
		}
	}
	return uniformProb
}

// Holds reports whether the bot itself has a hidden card of role.
func (b *Beliefs) Holds(role engine.Role) bool {
	return slices.Contains(b.Hand, role)
}

// owned counts the bot's own hidden copies of role.
func (b *Beliefs) owned(role engine.Role) int {
	n := 0
	for _, r := range b.Hand {
		if r == role {
			n++
		}
	}
	return n
}

// IsRiskyBluff reports whether claiming role without holding it is likely to
// be caught: every copy is face-up, or two are and the bot lacks the third.
func (b *Beliefs) IsRiskyBluff(role engine.Role) bool {
	seen := b.Revealed[role]
	if seen >= engine.CopiesPerRole {
		return true
	}
	return seen == engine.CopiesPerRole-1 && !b.Holds(role)
}

// ---------------------------------------------------------------------------
// Observation
// ---------------------------------------------------------------------------

// Observe folds the public events of view into the beliefs. view must be the
// bot's own projection. Observing the same committed state twice changes
// nothing.
func (b *Beliefs) Observe(view *engine.Game) {
	b.Hand = b.Hand[:0]
	if me := view.Player(b.BotID); me != nil {
		for _, c := range me.Influence {
			if !c.IsRevealed && c.Type != "" {
				b.Hand = append(b.Hand, c.Type)
			}
		}
	}

	revealed := make(map[engine.Role]int, len(engine.Roles))
	for i := range view.Players {
		p := &view.Players[i]
		if p.ID != b.BotID {
			if _, ok := b.Opponents[p.ID]; !ok {
				b.Opponents[p.ID] = uniform()
			}
		}
		for _, c := range p.Influence {
			if c.IsRevealed {
				revealed[c.Type]++
			}
		}
	}
	for _, r := range engine.Roles {
		b.Revealed[r] = min(revealed[r], engine.CopiesPerRole)
	}

	for _, t := range []*engine.TurnState{view.LastTurn, view.CurrentTurn} {
		if t != nil {
			b.observeTurn(t)
		}
	}
	b.pruneMarks(view.TurnNumber)
}

func (b *Beliefs) observeTurn(t *engine.TurnState) {
	a := t.Action
	if a.RequiredCharacter != "" && a.PlayerID != b.BotID && b.mark(t.Number, "claim") {
		b.claimed(a.PlayerID, a.RequiredCharacter)
		b.Claims[a.RequiredCharacter]++
	}
	if blk := t.OpponentResponses.Block; blk != nil && blk.PlayerID != b.BotID &&
		b.mark(t.Number, fmt.Sprintf("block/%s/%s", blk.PlayerID, blk.Role)) {
		b.claimed(blk.PlayerID, blk.Role)
		b.Claims[blk.Role]++
	}
	cr := t.ChallengeResult
	if cr == nil || cr.Outcome == engine.ChallengeUnresolved || cr.DefenderID == b.BotID {
		return
	}
	if !b.mark(t.Number, fmt.Sprintf("challenge/%s/%s/%s", cr.Claim, cr.ChallengerID, cr.DefenderID)) {
		return
	}
	switch cr.Outcome {
	case engine.ChallengeSucceeded:
		b.nudge(cr.DefenderID, cr.ChallengedRole, -claimNudge)
	case engine.ChallengeFailed:
		// The proving card went back into the deck; the replacement is unknown.
		b.probs(cr.DefenderID)[cr.ChallengedRole] = uniformProb
	}
}

// mark records key for turn and reports whether it is new.
func (b *Beliefs) mark(turn int, key string) bool {
	if slices.Contains(b.Marks[turn], key) {
		return false
	}
	b.Marks[turn] = append(b.Marks[turn], key)
	return true
}

// pruneMarks forgets marks older than the previous turn.
func (b *Beliefs) pruneMarks(turn int) {
	for k := range b.Marks {
		if k < turn-1 {
			delete(b.Marks, k)
		}
	}
}

// claimed raises the belief that id holds role and remembers the value it
// replaced.
func (b *Beliefs) claimed(id string, role engine.Role) {
	if b.PreClaim == nil {
		b.PreClaim = make(map[string]map[engine.Role]float64)
	}
	before, ok := b.PreClaim[id]
	if !ok {
		before = make(map[engine.Role]float64)
		b.PreClaim[id] = before
	}
	before[role] = b.Prob(id, role)
	b.nudge(id, role, claimNudge)
}

// priorToClaim is the belief that id holds role ignoring its latest claim of
// role.
func (b *Beliefs) priorToClaim(id string, role engine.Role) float64 {
	if p, ok := b.PreClaim[id][role]; ok {
		return p
	}
	return b.Prob(id, role)
}

func (b *Beliefs) nudge(id string, role engine.Role, delta float64) {
	probs := b.probs(id)
	probs[role] = clamp01(probs[role] + delta)
}

func (b *Beliefs) probs(id string) map[engine.Role]float64 {
	probs, ok := b.Opponents[id]
	if !ok {
		probs = uniform()
		b.Opponents[id] = probs
	}
	return probs
}

func uniform() map[engine.Role]float64 {
	m := make(map[engine.Role]float64, len(engine.Roles))
	for _, r := range engine.Roles {
		m[r] = uniformProb
	}
	return m
}

func clamp01(x float64) float64 {
	return max(0, min(1, x))
}

// ---------------------------------------------------------------------------
// Random source
// ---------------------------------------------------------------------------

// withRand runs fn with the bot's persisted random stream and saves the
// advanced stream afterwards.
func (b *Beliefs) withRand(fn func(r *rand.Rand)) error {
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(b.RandState); err != nil {
		return fmt.Errorf("restore bot random state: %w", err)
	}
	fn(rand.New(src))
	state, err := src.MarshalBinary()
	if err != nil {
		return fmt.Errorf("save bot random state: %w", err)
	}
	b.RandState = state
	return nil
}
