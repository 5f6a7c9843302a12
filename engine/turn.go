package engine

import (
	"fmt"
	"slices"
	"time"
)

// TurnState is the in-flight resolution of one declared action.
type TurnState struct {
	Number            int               `json:"number"`
	Phase             Phase             `json:"phase"`
	Action            Action            `json:"action"`
	TimeoutAt         *time.Time        `json:"timeoutAt"`
	RespondedPlayers  []string          `json:"respondedPlayers"`
	OpponentResponses OpponentResponses `json:"opponentResponses"`
	ChallengeResult   *ChallengeResult  `json:"challengeResult,omitempty"`
	BlockingPlayer    string            `json:"blockingPlayer,omitempty"`
	LosingPlayer      string            `json:"losingPlayer,omitempty"`
	ExchangeCardIDs   []string          `json:"exchangeCardIds,omitempty"`
	TargetPassedBlock bool              `json:"targetPassedBlock,omitempty"`
	TimedOut          []string          `json:"timedOut,omitempty"`
	PhaseLog          []Phase           `json:"phaseLog"`
}

// Step counts the phases entered so far. Together with Number it names one
// committed point in the turn.
func (t *TurnState) Step() int { return len(t.PhaseLog) }

// HasResponded reports whether id already answered in the current phase.
func (t *TurnState) HasResponded(id string) bool {
	return slices.Contains(t.RespondedPlayers, id)
}

func (t *TurnState) clone() *TurnState {
	if t == nil {
		return nil
	}
	c := *t
	c.Action.BlockableBy = slices.Clone(t.Action.BlockableBy)
	c.TimeoutAt = cloneTime(t.TimeoutAt)
	c.RespondedPlayers = slices.Clone(t.RespondedPlayers)
	c.ExchangeCardIDs = slices.Clone(t.ExchangeCardIDs)
	c.TimedOut = slices.Clone(t.TimedOut)
	c.PhaseLog = slices.Clone(t.PhaseLog)
	if t.OpponentResponses.Block != nil {
		b := *t.OpponentResponses.Block
		c.OpponentResponses.Block = &b
	}
	if t.OpponentResponses.Challenge != nil {
		ch := *t.OpponentResponses.Challenge
		c.OpponentResponses.Challenge = &ch
	}
	if t.ChallengeResult != nil {
		cr := *t.ChallengeResult
		c.ChallengeResult = &cr
	}
	return &c
}

// ---------------------------------------------------------------------------
// Inbound operations
// ---------------------------------------------------------------------------

// DeclareAction opens a turn for the current player. Only Type, PlayerID and
// TargetPlayerID are read from a; the rest is derived from the action type.
func (g *Game) DeclareAction(a Action, now time.Time) error {
	return g.apply(now, func(n *Game) error {
		return n.declare(a.Type, a.PlayerID, a.TargetPlayerID, now)
	})
}

// SubmitResponse records an accept, block or challenge from playerID.
func (g *Game) SubmitResponse(playerID string, r Response, now time.Time) error {
	return g.apply(now, func(n *Game) error {
		return n.respond(playerID, r, now)
	})
}

// SelectCard answers a defense, penalty or target selection phase.
func (g *Game) SelectCard(playerID, cardID string, now time.Time) error {
	return g.apply(now, func(n *Game) error {
		return n.selectCard(playerID, cardID, now)
	})
}

// SubmitExchangeReturn sends ExchangeDraw cards from the actor's hand back to
// the deck.
func (g *Game) SubmitExchangeReturn(playerID string, cardIDs []string, now time.Time) error {
	return g.apply(now, func(n *Game) error {
		return n.exchangeReturn(playerID, cardIDs, now)
	})
}

// AdvanceTurnState forces progress once the current deadline has passed.
// When expect is non-nil the game only advances if its watch tuple still
// equals expect. It reports false, with no error, when there is nothing to do.
func (g *Game) AdvanceTurnState(expect *Watch, now time.Time) (bool, error) {
	w, ok := g.Watch()
	if !ok {
		return false, nil
	}
	if expect != nil && *expect != w {
		return false, nil
	}
	if !w.Due(now) {
		return false, nil
	}
	err := g.apply(now, func(n *Game) error {
		return n.escalate(now)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// apply runs fn against a copy of g, drives the copy through any transient
// phases, checks invariants and only then replaces g. A failed fn leaves g
// untouched.
func (g *Game) apply(now time.Time, fn func(n *Game) error) error {
	if g.Status != StatusInProgress {
		return ErrGameNotInProgress
	}
	n := g.Clone()
	if err := fn(&n); err != nil {
		return err
	}
	if err := n.settle(now); err != nil {
		return err
	}
	if err := n.CheckInvariants(); err != nil {
		return err
	}
	n.UpdatedAt = now
	*g = n
	return nil
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

func (g *Game) declare(t ActionType, playerID, targetID string, now time.Time) error {
	if g.CurrentTurn != nil {
		return ErrTurnInProgress
	}
	if cur := g.CurrentPlayer(); cur == nil || cur.ID != playerID {
		return ErrNotYourTurn
	}
	a, err := NewAction(t, playerID, targetID)
	if err != nil {
		return err
	}
	if err := ValidateAction(g, a); err != nil {
		return err
	}
	g.TurnNumber++
	g.DeclareBy = nil
	g.CurrentTurn = &TurnState{
		Number:           g.TurnNumber,
		Phase:            PhaseActionDeclared,
		Action:           a,
		RespondedPlayers: []string{},
		PhaseLog:         []Phase{PhaseActionDeclared},
	}
	return nil
}

func (g *Game) respond(playerID string, r Response, now time.Time) error {
	t := g.CurrentTurn
	if t == nil {
		return ErrNoTurn
	}
	p := g.Player(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	if p.IsEliminated() {
		return ErrEliminated
	}
	if t.HasResponded(playerID) {
		return ErrAlreadyResponded
	}
	a := t.Action

	switch t.Phase {
	case PhaseAwaitingOpponentResponses:
		if playerID == a.PlayerID {
			return ErrNotEligible
		}
		switch r.Type {
		case ResponseAccept:
			t.RespondedPlayers = append(t.RespondedPlayers, playerID)
			if playerID == a.TargetPlayerID {
				t.TargetPassedBlock = true
			}
			for _, id := range g.eligibleResponders(t) {
				if !t.HasResponded(id) {
					return nil
				}
			}
			return g.enter(t, PhaseActionExecution, now)
		case ResponseChallenge:
			if !a.CanBeChallenged {
				return ErrNotChallengeable
			}
			t.RespondedPlayers = append(t.RespondedPlayers, playerID)
			return g.openChallenge(t, playerID, ClaimAction, now)
		case ResponseBlock:
			if err := checkBlock(a, playerID, r.BlockingRole); err != nil {
				return err
			}
			t.RespondedPlayers = append(t.RespondedPlayers, playerID)
			return g.recordBlock(t, playerID, r.BlockingRole, now)
		}
		return ErrUnknownResponse

	case PhaseAwaitingActiveResponseToBlock:
		if playerID != a.PlayerID {
			return ErrNotEligible
		}
		switch r.Type {
		case ResponseAccept:
			t.RespondedPlayers = append(t.RespondedPlayers, playerID)
			return g.enter(t, PhaseActionFailed, now)
		case ResponseChallenge:
			t.RespondedPlayers = append(t.RespondedPlayers, playerID)
			return g.openChallenge(t, playerID, ClaimBlock, now)
		case ResponseBlock:
			return ErrWrongPhase
		}
		return ErrUnknownResponse

	case PhaseAwaitingTargetBlockResponse:
		if playerID != a.TargetPlayerID {
			return ErrNotEligible
		}
		switch r.Type {
		case ResponseAccept:
			t.RespondedPlayers = append(t.RespondedPlayers, playerID)
			t.TargetPassedBlock = true
			return g.enter(t, PhaseActionExecution, now)
		case ResponseBlock:
			if err := checkBlock(a, playerID, r.BlockingRole); err != nil {
				return err
			}
			t.RespondedPlayers = append(t.RespondedPlayers, playerID)
			return g.recordBlock(t, playerID, r.BlockingRole, now)
		case ResponseChallenge:
			return ErrWrongPhase
		}
		return ErrUnknownResponse

	case PhaseAwaitingActorDefense, PhaseAwaitingBlockerDefense:
		if playerID != t.ChallengeResult.DefenderID {
			return ErrNotEligible
		}
		switch r.Type {
		case ResponseAccept:
			return g.concede(t, now)
		case ResponseBlock, ResponseChallenge:
			return ErrWrongPhase
		}
		return ErrUnknownResponse
	}
	return ErrWrongPhase
}

func checkBlock(a Action, playerID string, role Role) error {
	if !a.CanBeBlocked {
		return ErrNotBlockable
	}
	if a.BlockableByTargetOnly() && playerID != a.TargetPlayerID {
		return ErrNotEligible
	}
	if !a.CanBlockWith(role) {
		return fmt.Errorf("%w: %q", ErrInvalidBlockRole, role)
	}
	return nil
}

func (g *Game) recordBlock(t *TurnState, playerID string, role Role, now time.Time) error {
	t.OpponentResponses.Block = &BlockClaim{PlayerID: playerID, Role: role}
	t.BlockingPlayer = playerID
	return g.enter(t, PhaseAwaitingActiveResponseToBlock, now)
}

func (g *Game) selectCard(playerID, cardID string, now time.Time) error {
	t := g.CurrentTurn
	if t == nil {
		return ErrNoTurn
	}
	p := g.Player(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	switch t.Phase {
	case PhaseAwaitingActorDefense, PhaseAwaitingBlockerDefense:
		if playerID != t.ChallengeResult.DefenderID {
			return ErrNotEligible
		}
		return g.defend(t, cardID, now)
	case PhaseAwaitingChallengePenaltySelection:
		if playerID != t.LosingPlayer {
			return ErrNotEligible
		}
		return g.payPenalty(t, cardID, now)
	case PhaseAwaitingTargetSelection:
		if playerID != t.LosingPlayer {
			return ErrNotEligible
		}
		if err := g.revealCard(playerID, cardID); err != nil {
			return err
		}
		t.LosingPlayer = ""
		return g.enter(t, PhaseTurnComplete, now)
	}
	return ErrWrongPhase
}

func (g *Game) exchangeReturn(playerID string, cardIDs []string, now time.Time) error {
	t := g.CurrentTurn
	if t == nil {
		return ErrNoTurn
	}
	if t.Phase != PhaseAwaitingExchangeReturn {
		return ErrWrongPhase
	}
	if playerID != t.Action.PlayerID {
		return ErrNotEligible
	}
	if len(cardIDs) != ExchangeDraw {
		return ErrBadExchangeReturn
	}
	p := g.Player(playerID)
	returned := make([]Card, 0, len(cardIDs))
	for i, id := range cardIDs {
		if slices.Contains(cardIDs[:i], id) {
			return ErrBadExchangeReturn
		}
		k := p.cardIndex(id)
		if k < 0 || p.Influence[k].IsRevealed {
			return ErrBadExchangeReturn
		}
		returned = append(returned, p.Influence[k])
	}
	p.Influence = slices.DeleteFunc(p.Influence, func(c Card) bool {
		return slices.Contains(cardIDs, c.ID)
	})
	g.Deck.Return(&g.RNG, returned...)
	t.ExchangeCardIDs = nil
	return g.enter(t, PhaseTurnComplete, now)
}

// escalate answers the current waiting phase on behalf of everyone who has
// not, exactly as an explicit accept (or the first hidden card) would.
func (g *Game) escalate(now time.Time) error {
	t := g.CurrentTurn
	if t == nil {
		return g.forceDeclare(now)
	}
	switch t.Phase {
	case PhaseAwaitingOpponentResponses:
		for _, id := range g.eligibleResponders(t) {
			if t.Phase != PhaseAwaitingOpponentResponses {
				break
			}
			if t.HasResponded(id) {
				continue
			}
			t.TimedOut = append(t.TimedOut, id)
			if err := g.respond(id, Accept(), now); err != nil {
				return err
			}
		}
		return nil
	case PhaseAwaitingActiveResponseToBlock:
		return g.timeOut(t, t.Action.PlayerID, func() error { return g.respond(t.Action.PlayerID, Accept(), now) })
	case PhaseAwaitingTargetBlockResponse:
		return g.timeOut(t, t.Action.TargetPlayerID, func() error { return g.respond(t.Action.TargetPlayerID, Accept(), now) })
	case PhaseAwaitingActorDefense, PhaseAwaitingBlockerDefense:
		id := t.ChallengeResult.DefenderID
		return g.timeOut(t, id, func() error { return g.respond(id, Accept(), now) })
	case PhaseAwaitingChallengePenaltySelection, PhaseAwaitingTargetSelection:
		p := g.Player(t.LosingPlayer)
		if p == nil {
			return fmt.Errorf("%w: losing player %q missing", ErrInvariant, t.LosingPlayer)
		}
		return g.timeOut(t, p.ID, func() error { return g.selectCard(p.ID, p.firstUnrevealed(), now) })
	case PhaseAwaitingExchangeReturn:
		ids := slices.Clone(t.ExchangeCardIDs)
		return g.timeOut(t, t.Action.PlayerID, func() error { return g.exchangeReturn(t.Action.PlayerID, ids, now) })
	}
	return fmt.Errorf("%w: %s", ErrNoDeadline, t.Phase)
}

func (g *Game) timeOut(t *TurnState, playerID string, answer func() error) error {
	t.TimedOut = append(t.TimedOut, playerID)
	return answer()
}

// forceDeclare takes the turn of a player who never declared: a coup on the
// next opponent when the player is forced to, income otherwise.
func (g *Game) forceDeclare(now time.Time) error {
	cur := g.CurrentPlayer()
	if cur == nil {
		return fmt.Errorf("%w: no current player", ErrInvariant)
	}
	t, target := ActionIncome, ""
	if cur.Coins >= ForcedCoupCoins {
		t, target = ActionCoup, g.Players[g.nextActive(g.CurrentPlayerIndex)].ID
	}
	if err := g.declare(t, cur.ID, target, now); err != nil {
		return err
	}
	g.CurrentTurn.TimedOut = []string{cur.ID}
	return nil
}

// enter moves t to phase "to" along a legal edge, resets the per-phase
// responses and arms or clears the deadline.
func (g *Game) enter(t *TurnState, to Phase, now time.Time) error {
	if !CanTransition(t.Phase, to) {
		return fmt.Errorf("%w: illegal transition %s -> %s", ErrInvariant, t.Phase, to)
	}
	t.Phase = to
	t.RespondedPlayers = []string{}
	t.PhaseLog = append(t.PhaseLog, to)
	t.TimeoutAt = nil
	if to.Waiting() {
		if d := g.Rules.ResponseTimeout(); d > 0 {
			at := deadline(now, d)
			t.TimeoutAt = &at
		}
	}
	return nil
}

// settle drives the turn through transient phases until it waits on input or
// ends.
func (g *Game) settle(now time.Time) error {
	for guard := 0; g.CurrentTurn != nil && g.CurrentTurn.Phase.Transient(); guard++ {
		if guard > len(transitions) {
			return fmt.Errorf("%w: turn did not settle", ErrInvariant)
		}
		t := g.CurrentTurn
		var err error
		switch t.Phase {
		case PhaseActionDeclared:
			if t.Action.AutoResolve {
				err = g.enter(t, PhaseActionExecution, now)
			} else {
				err = g.enter(t, PhaseAwaitingOpponentResponses, now)
			}
		case PhaseActionExecution:
			err = g.execute(t, now)
		case PhaseReplacingChallengeDefenseCard:
			err = g.replaceDefenseCard(t, now)
		case PhaseActionFailed, PhaseTurnComplete:
			g.finishTurn(now)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Game) execute(t *TurnState, now time.Time) error {
	loser, err := g.applyEffects(t.Action)
	if err != nil {
		return err
	}
	if loser != "" {
		t.LosingPlayer = loser
		return g.enter(t, PhaseAwaitingTargetSelection, now)
	}
	if t.Action.Type == ActionExchange {
		drawn, err := g.Deck.Deal(ExchangeDraw)
		if err != nil {
			return err
		}
		actor := g.Player(t.Action.PlayerID)
		actor.Influence = append(actor.Influence, drawn...)
		t.ExchangeCardIDs = make([]string, 0, len(drawn))
		for _, c := range drawn {
			t.ExchangeCardIDs = append(t.ExchangeCardIDs, c.ID)
		}
		return g.enter(t, PhaseAwaitingExchangeReturn, now)
	}
	return g.enter(t, PhaseTurnComplete, now)
}

// finishTurn archives the turn, checks for a winner and passes play to the
// next player that still holds influence.
func (g *Game) finishTurn(now time.Time) {
	t := g.CurrentTurn
	t.TimeoutAt = nil
	g.LastTurn = t
	g.CurrentTurn = nil
	for i := range g.Players {
		for j := range g.Players[i].Influence {
			g.Players[i].Influence[j].IsChallengeDefenseCard = false
		}
	}
	if g.checkWinner(now) {
		return
	}
	g.CurrentPlayerIndex = g.nextActive(g.CurrentPlayerIndex)
	g.armDeclareDeadline(now)
}

// eligibleResponders returns every active player other than the actor.
func (g *Game) eligibleResponders(t *TurnState) []string {
	ids := make([]string, 0, len(g.Players))
	for _, id := range g.ActivePlayers() {
		if id != t.Action.PlayerID {
			ids = append(ids, id)
		}
	}
	return ids
}

// ---------------------------------------------------------------------------
// Deadlines
// ---------------------------------------------------------------------------

// Watch names one deadline: the game, the committed point of the turn, the
// phase, the actor and the deadline itself. Escalation only acts when the
// tuple it was armed with still matches.
type Watch struct {
	GameID     string `json:"gameId"`
	TurnNumber int    `json:"turnNumber"`
	Step       int    `json:"step"`
	Phase      Phase  `json:"phase"`
	ActorID    string `json:"actorId"`
	TimeoutAt  int64  `json:"timeoutAt"` // unix millis
}

// Deadline returns TimeoutAt as a time.
func (w Watch) Deadline() time.Time { return time.UnixMilli(w.TimeoutAt).UTC() }

// Due reports whether the deadline has passed at now.
func (w Watch) Due(now time.Time) bool { return now.UnixMilli() >= w.TimeoutAt }

// Watch returns the tuple of the deadline currently armed, if any.
func (g *Game) Watch() (Watch, bool) {
	if g.Status != StatusInProgress {
		return Watch{}, false
	}
	t := g.CurrentTurn
	if t == nil {
		cur := g.CurrentPlayer()
		if g.DeclareBy == nil || cur == nil {
			return Watch{}, false
		}
		return Watch{
			GameID:     g.ID,
			TurnNumber: g.TurnNumber,
			Phase:      PhaseNone,
			ActorID:    cur.ID,
			TimeoutAt:  g.DeclareBy.UnixMilli(),
		}, true
	}
	if t.TimeoutAt == nil {
		return Watch{}, false
	}
	return Watch{
		GameID:     g.ID,
		TurnNumber: t.Number,
		Step:       t.Step(),
		Phase:      t.Phase,
		ActorID:    t.Action.PlayerID,
		TimeoutAt:  t.TimeoutAt.UnixMilli(),
	}, true
}

// AwaitingInput returns the ids of the players whose input the game is
// waiting on.
func (g *Game) AwaitingInput() []string {
	if g.Status != StatusInProgress {
		return nil
	}
	t := g.CurrentTurn
	if t == nil {
		if cur := g.CurrentPlayer(); cur != nil {
			return []string{cur.ID}
		}
		return nil
	}
	switch t.Phase {
	case PhaseAwaitingOpponentResponses:
		var ids []string
		for _, id := range g.eligibleResponders(t) {
			if !t.HasResponded(id) {
				ids = append(ids, id)
			}
		}
		return ids
	case PhaseAwaitingActiveResponseToBlock, PhaseAwaitingExchangeReturn:
		return []string{t.Action.PlayerID}
	case PhaseAwaitingTargetBlockResponse:
		return []string{t.Action.TargetPlayerID}
	case PhaseAwaitingActorDefense, PhaseAwaitingBlockerDefense:
		return []string{t.ChallengeResult.DefenderID}
	case PhaseAwaitingChallengePenaltySelection, PhaseAwaitingTargetSelection:
		return []string{t.LosingPlayer}
	}
	return nil
}
