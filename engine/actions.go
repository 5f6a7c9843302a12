package engine

import "fmt"

// actionSpec is the static metadata of one action type.
type actionSpec struct {
	cost        int
	claim       Role
	blockableBy []Role
	challenge   bool
	targeted    bool
}

var actionSpecs = map[ActionType]actionSpec{
	ActionIncome:      {},
	ActionForeignAid:  {blockableBy: []Role{RoleDuke}},
	ActionTax:         {claim: RoleDuke, challenge: true},
	ActionSteal:       {claim: RoleCaptain, challenge: true, targeted: true, blockableBy: []Role{RoleCaptain, RoleAmbassador}},
	ActionAssassinate: {cost: 3, claim: RoleAssassin, challenge: true, targeted: true, blockableBy: []Role{RoleContessa}},
	ActionCoup:        {cost: 7, targeted: true},
	ActionExchange:    {claim: RoleAmbassador, challenge: true},
}

// NewAction builds an action of type t with its metadata filled in.
func NewAction(t ActionType, playerID, targetID string) (Action, error) {
	spec, ok := actionSpecs[t]
	if !ok {
		return Action{}, fmt.Errorf("%w %q", ErrUnknownAction, t)
	}
	a := Action{
		Type:              t,
		PlayerID:          playerID,
		TargetPlayerID:    targetID,
		CoinCost:          spec.cost,
		RequiredCharacter: spec.claim,
		CanBeBlocked:      len(spec.blockableBy) > 0,
		CanBeChallenged:   spec.challenge,
		BlockableBy:       append([]Role(nil), spec.blockableBy...),
	}
	a.AutoResolve = !a.CanBeBlocked && !a.CanBeChallenged
	return a, nil
}

// ValidateAction checks a against the current state of g. It returns nil when
// the action may be declared, otherwise an error wrapping ErrValidation.
func ValidateAction(g *Game, a Action) error {
	if _, ok := actionSpecs[a.Type]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownAction, a.Type)
	}
	actor := g.Player(a.PlayerID)
	if actor == nil {
		return fmt.Errorf("%w: actor %s", ErrUnknownPlayer, a.PlayerID)
	}
	if actor.IsEliminated() {
		return ErrEliminated
	}
	if actor.Coins < a.CoinCost {
		return fmt.Errorf("%w: %s costs %d, have %d", ErrInsufficientCoins, a.Type, a.CoinCost, actor.Coins)
	}
	if actor.Coins >= ForcedCoupCoins && a.Type != ActionCoup {
		return ErrMustCoup
	}

	if !a.IsTargeted() {
		if a.TargetPlayerID != "" {
			return fmt.Errorf("%w: %s", ErrTargetForbidden, a.Type)
		}
		return nil
	}
	if a.TargetPlayerID == "" {
		return fmt.Errorf("%w: %s", ErrTargetRequired, a.Type)
	}
	if a.TargetPlayerID == a.PlayerID {
		return fmt.Errorf("%w: cannot target yourself", ErrInvalidTarget)
	}
	target := g.Player(a.TargetPlayerID)
	if target == nil || target.IsEliminated() {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, a.TargetPlayerID)
	}
	if a.Type == ActionSteal && target.Coins == 0 {
		return ErrNothingToSteal
	}
	return nil
}

// applyEffects applies the coin effects of a and returns the id of the player
// who must now lose an influence, if any. Eliminated players are left
// untouched and coins never drop below zero.
func (g *Game) applyEffects(a Action) (loser string, err error) {
	actor := g.Player(a.PlayerID)
	if actor == nil {
		return "", fmt.Errorf("%w: actor %s missing at execution", ErrInvariant, a.PlayerID)
	}
	var target *Player
	if a.TargetPlayerID != "" {
		target = g.Player(a.TargetPlayerID)
		if target == nil {
			return "", fmt.Errorf("%w: target %s missing at execution", ErrInvariant, a.TargetPlayerID)
		}
		if target.IsEliminated() {
			target = nil
		}
	}

	switch a.Type {
	case ActionIncome:
		addCoins(actor, 1)
	case ActionForeignAid:
		addCoins(actor, 2)
	case ActionTax:
		addCoins(actor, 3)
	case ActionSteal:
		if target != nil {
			amt := min(StealAmount, target.Coins)
			addCoins(target, -amt)
			addCoins(actor, amt)
		}
	case ActionAssassinate, ActionCoup:
		addCoins(actor, -a.CoinCost)
		if target != nil {
			loser = target.ID
		}
	case ActionExchange:
	default:
		return "", fmt.Errorf("%w: unhandled action %s", ErrInvariant, a.Type)
	}
	return loser, nil
}

func addCoins(p *Player, delta int) {
	if p.IsEliminated() {
		return
	}
	p.Coins = max(0, p.Coins+delta)
}
