package engine

import (
	"fmt"
	"time"
)

// openChallenge records a challenge against the claimant and moves the turn
// into the matching defense phase.
func (g *Game) openChallenge(t *TurnState, challengerID string, claim ClaimKind, now time.Time) error {
	cr := &ChallengeResult{
		ChallengerID: challengerID,
		Claim:        claim,
		Outcome:      ChallengeUnresolved,
	}
	next := PhaseAwaitingActorDefense
	switch claim {
	case ClaimAction:
		cr.DefenderID = t.Action.PlayerID
		cr.ChallengedRole = t.Action.RequiredCharacter
	case ClaimBlock:
		if t.OpponentResponses.Block == nil {
			return fmt.Errorf("%w: challenging a block that was never made", ErrInvariant)
		}
		cr.DefenderID = t.OpponentResponses.Block.PlayerID
		cr.ChallengedRole = t.OpponentResponses.Block.Role
		next = PhaseAwaitingBlockerDefense
	}
	t.OpponentResponses.Challenge = &ChallengeClaim{PlayerID: challengerID}
	t.ChallengeResult = cr
	return g.enter(t, next, now)
}

// defend resolves the defender's answer to a challenge. A card matching the
// challenged role proves the claim; the card is flagged for replacement and
// the challenger pays. Any other card is revealed as the defender's loss.
func (g *Game) defend(t *TurnState, cardID string, now time.Time) error {
	cr := t.ChallengeResult
	p := g.Player(cr.DefenderID)
	i := p.cardIndex(cardID)
	if i < 0 {
		return ErrUnknownCard
	}
	if p.Influence[i].IsRevealed {
		return ErrCardRevealed
	}
	cr.DefenseCardID = cardID
	if p.Influence[i].Type == cr.ChallengedRole {
		p.Influence[i].IsChallengeDefenseCard = true
		cr.Outcome = ChallengeFailed
		return g.enter(t, PhaseReplacingChallengeDefenseCard, now)
	}
	cr.Outcome = ChallengeSucceeded
	if err := g.revealCard(p.ID, cardID); err != nil {
		return err
	}
	cr.LostCardID = cardID
	return g.afterChallenge(t, now)
}

// concede resolves a challenge whose defender declined, or never answered.
// The defender must then pick the card to lose.
func (g *Game) concede(t *TurnState, now time.Time) error {
	cr := t.ChallengeResult
	cr.Outcome = ChallengeSucceeded
	t.LosingPlayer = cr.DefenderID
	return g.enter(t, PhaseAwaitingChallengePenaltySelection, now)
}

// replaceDefenseCard runs after a successful defense: the proving card goes
// back into the deck and the defender draws a fresh one. The challenger is
// then owed an influence loss.
func (g *Game) replaceDefenseCard(t *TurnState, now time.Time) error {
	cr := t.ChallengeResult
	if _, err := g.returnAndReplace(cr.DefenderID, cr.DefenseCardID); err != nil {
		return err
	}
	t.LosingPlayer = cr.ChallengerID
	return g.enter(t, PhaseAwaitingChallengePenaltySelection, now)
}

// payPenalty reveals the card chosen by the loser of a challenge.
func (g *Game) payPenalty(t *TurnState, cardID string, now time.Time) error {
	if err := g.revealCard(t.LosingPlayer, cardID); err != nil {
		return err
	}
	t.ChallengeResult.LostCardID = cardID
	t.LosingPlayer = ""
	return g.afterChallenge(t, now)
}

// afterChallenge routes the turn once a challenge has cost someone a card.
// A refuted action fails. A challenged block fails the action either way: a
// proven block stops it, and an exposed bluff still spends the actor's turn.
// An upheld action gives its target a chance to block unless they already
// passed on it.
func (g *Game) afterChallenge(t *TurnState, now time.Time) error {
	cr := t.ChallengeResult
	if cr.Claim == ClaimBlock || cr.Outcome == ChallengeSucceeded {
		return g.enter(t, PhaseActionFailed, now)
	}
	a := t.Action
	if a.BlockableByTargetOnly() && !t.TargetPassedBlock && t.OpponentResponses.Block == nil && g.IsActive(a.TargetPlayerID) {
		return g.enter(t, PhaseAwaitingTargetBlockResponse, now)
	}
	return g.enter(t, PhaseActionExecution, now)
}
