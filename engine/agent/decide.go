package agent

import (
	"math/rand/v2"
	"slices"

	engine "github.com/jason-s-yu/influence/engine"
)

// DecisionKind says which inbound operation a Decision maps to.
type DecisionKind string

const (
	DecideDeclare        DecisionKind = "declare"
	DecideRespond        DecisionKind = "respond"
	DecideSelectCard     DecisionKind = "selectCard"
	DecideExchangeReturn DecisionKind = "exchangeReturn"
)

// Decision is one input a bot wants to submit. Exactly the fields for Kind
// are set.
type Decision struct {
	Kind     DecisionKind    `json:"kind"`
	Action   engine.Action   `json:"action,omitzero"`
	Response engine.Response `json:"response,omitzero"`
	CardID   string          `json:"cardId,omitempty"`
	CardIDs  []string        `json:"cardIds,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// Decide observes view and returns the input the bot should submit, if the
// game is waiting on it. The bot's random stream advances and must be
// persisted together with the rest of the beliefs.
func (b *Beliefs) Decide(view *engine.Game) (Decision, bool, error) {
	b.Observe(view)
	var (
		d  Decision
		ok bool
	)
	err := b.withRand(func(r *rand.Rand) {
		d, ok = b.decide(view, r)
	})
	if err != nil {
		return Decision{}, false, err
	}
	return d, ok, nil
}

func (b *Beliefs) decide(view *engine.Game, r *rand.Rand) (Decision, bool) {
	if view.Status != engine.StatusInProgress {
		return Decision{}, false
	}
	me := view.Player(b.BotID)
	if me == nil || me.IsEliminated() {
		return Decision{}, false
	}
	t := view.CurrentTurn
	if t == nil {
		if cur := view.CurrentPlayer(); cur == nil || cur.ID != b.BotID {
			return Decision{}, false
		}
		a, ok := b.ChooseAction(view, r)
		if !ok {
			return Decision{}, false
		}
		return Decision{Kind: DecideDeclare, Action: a, Reason: "weighted draw"}, true
	}

	switch {
	case t.Phase == engine.PhaseAwaitingExchangeReturn && t.Action.PlayerID == b.BotID:
		return Decision{Kind: DecideExchangeReturn, CardIDs: b.ChooseExchangeReturn(me), Reason: "keep best pair"}, true
	case view.MustSelectCard(b.BotID) && t.ChallengeResult != nil && t.ChallengeResult.DefenderID == b.BotID &&
		(t.Phase == engine.PhaseAwaitingActorDefense || t.Phase == engine.PhaseAwaitingBlockerDefense):
		role := t.ChallengeResult.ChallengedRole
		for _, c := range me.Influence {
			if !c.IsRevealed && c.Type == role {
				return Decision{Kind: DecideSelectCard, CardID: c.ID, Reason: "prove " + string(role)}, true
			}
		}
		return Decision{Kind: DecideSelectCard, CardID: b.ChooseCardToLose(me), Reason: "caught bluffing"}, true
	case view.MustSelectCard(b.BotID):
		return Decision{Kind: DecideSelectCard, CardID: b.ChooseCardToLose(me), Reason: "lose influence"}, true
	}

	legal := view.LegalResponses(b.BotID)
	if len(legal) == 0 {
		return Decision{}, false
	}
	resp, why := b.ChooseResponse(view, legal, r)
	return Decision{Kind: DecideRespond, Response: resp, Reason: why}, true
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// ChooseAction samples an action type proportionally to its weight, then
// picks a target for it.
func (b *Beliefs) ChooseAction(view *engine.Game, r *rand.Rand) (engine.Action, bool) {
	legal := view.LegalActions(b.BotID)
	if len(legal) == 0 {
		return engine.Action{}, false
	}
	me := view.Player(b.BotID)

	byType := make(map[engine.ActionType][]engine.Action)
	var types []engine.ActionType
	for _, a := range legal {
		if _, ok := byType[a.Type]; !ok {
			types = append(types, a.Type)
		}
		byType[a.Type] = append(byType[a.Type], a)
	}

	weights := make([]float64, len(types))
	total := 0.0
	for i, at := range types {
		weights[i] = b.actionWeight(view, me, byType[at][0])
		total += weights[i]
	}
	pick := types[len(types)-1]
	if total > 0 {
		x := r.Float64() * total
		for i, at := range types {
			if x < weights[i] {
				pick = at
				break
			}
			x -= weights[i]
		}
	}

	options := byType[pick]
	if len(options) == 1 {
		return options[0], true
	}
	return b.chooseTarget(view, options), true
}

func (b *Beliefs) actionWeight(view *engine.Game, me *engine.Player, a engine.Action) float64 {
	w := baseWeight[a.Type]
	if role := a.RequiredCharacter; role != "" {
		switch {
		case b.Holds(role):
			w *= heldBonus
		case b.IsRiskyBluff(role):
			w *= riskyPenalty
		default:
			w *= bluffDiscount
		}
	}
	switch a.Type {
	case engine.ActionIncome, engine.ActionForeignAid, engine.ActionTax, engine.ActionSteal:
		if me.Coins < lowCoins {
			w *= lowCoinBonus
		}
	case engine.ActionAssassinate, engine.ActionCoup:
		if len(view.ActivePlayers()) == 2 {
			w *= lateGameBonus
		}
	}
	if a.Type == engine.ActionForeignAid {
		for id := range b.Opponents {
			if view.IsActive(id) && b.Prob(id, engine.RoleDuke) >= likelyHolds {
				w *= dukeWary
				break
			}
		}
	}
	return w
}

// chooseTarget scores every candidate target. Ties go to the earlier seat.
func (b *Beliefs) chooseTarget(view *engine.Game, options []engine.Action) engine.Action {
	score := func(a engine.Action) float64 {
		p := view.Player(a.TargetPlayerID)
		switch a.Type {
		case engine.ActionSteal:
			guard := max(b.Prob(p.ID, engine.RoleCaptain), b.Prob(p.ID, engine.RoleAmbassador))
			return float64(min(p.Coins, engine.StealAmount)) * (1 - guard)
		case engine.ActionAssassinate:
			return (1 - b.Prob(p.ID, engine.RoleContessa)) * (1 + float64(p.Coins)/engine.ForcedCoupCoins)
		default:
			return float64(p.Unrevealed()*engine.ForcedCoupCoins + p.Coins)
		}
	}
	best, bestScore := options[0], score(options[0])
	for _, a := range options[1:] {
		if s := score(a); s > bestScore {
			best, bestScore = a, s
		}
	}
	return best
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// ChooseResponse picks among legal. A genuine block comes first, then a bluff
// block, then a challenge. Otherwise the bot accepts.
func (b *Beliefs) ChooseResponse(view *engine.Game, legal []engine.Response, r *rand.Rand) (engine.Response, string) {
	t := view.CurrentTurn

	var blockRoles []engine.Role
	canChallenge := false
	for _, resp := range legal {
		switch resp.Type {
		case engine.ResponseBlock:
			blockRoles = append(blockRoles, resp.BlockingRole)
		case engine.ResponseChallenge:
			canChallenge = true
		}
	}

	for _, role := range blockRoles {
		if b.Holds(role) {
			return engine.Block(role), "block with " + string(role)
		}
	}
	for _, role := range blockRoles {
		if !b.IsRiskyBluff(role) {
			if r.Float64() < bluffBlockRate {
				return engine.Block(role), "bluff " + string(role)
			}
			break
		}
	}

	if canChallenge {
		claimant, role := t.Action.PlayerID, t.Action.RequiredCharacter
		if t.Phase == engine.PhaseAwaitingActiveResponseToBlock && t.OpponentResponses.Block != nil {
			claimant, role = t.OpponentResponses.Block.PlayerID, t.OpponentResponses.Block.Role
		}
		if role != "" && b.shouldChallenge(view, claimant, role, r) {
			return engine.Challenge(), "doubt " + string(role)
		}
	}
	return engine.Accept(), "accept"
}

// shouldChallenge is certain when every copy of role is accounted for, and
// otherwise takes a chance when the claim looks unlikely.
func (b *Beliefs) shouldChallenge(view *engine.Game, claimant string, role engine.Role, r *rand.Rand) bool {
	if b.Revealed[role]+b.owned(role) >= engine.CopiesPerRole {
		return true
	}
	if b.estimate(view, claimant, role) < challengeBelow {
		return r.Float64() < challengeRate
	}
	return false
}

// estimate is the chance that claimant's hidden cards include role. The
// counting prior over unseen cards is scaled by what the bot believed before
// the current claim.
func (b *Beliefs) estimate(view *engine.Game, claimant string, role engine.Role) float64 {
	p := view.Player(claimant)
	if p == nil {
		return 0
	}
	hidden := p.Unrevealed()
	seen := len(b.Hand)
	for _, n := range b.Revealed {
		seen += n
	}
	pool := engine.DeckSize - seen
	copies := engine.CopiesPerRole - b.Revealed[role] - b.owned(role)
	if copies <= 0 || pool <= 0 || hidden <= 0 {
		return 0
	}

	// Probability that none of the claimant's hidden cards is role.
	none := 1.0
	for i := 0; i < hidden; i++ {
		none *= float64(pool-copies-i) / float64(pool-i)
	}
	prior := b.priorToClaim(claimant, role)
	return clamp01((1 - max(none, 0)) * prior / uniformProb)
}

// ---------------------------------------------------------------------------
// Cards
// ---------------------------------------------------------------------------

// keepScore is how much the bot wants to keep a card of role.
func (b *Beliefs) keepScore(me *engine.Player, role engine.Role) float64 {
	s := keepPriority[role]
	switch role {
	case engine.RoleContessa:
		if b.Claims[engine.RoleAssassin]+b.Revealed[engine.RoleAssassin] >= assassinThreat {
			s += contessaThreat
		}
	case engine.RoleDuke, engine.RoleCaptain:
		if me.Coins < lowCoins {
			s += lowCoinKeep
		}
	}
	return s
}

// ChooseCardToLose returns the id of the hidden card the bot values least.
func (b *Beliefs) ChooseCardToLose(me *engine.Player) string {
	var (
		pick  string
		score float64
	)
	for _, c := range me.Influence {
		if c.IsRevealed {
			continue
		}
		if s := b.keepScore(me, c.Type); pick == "" || s < score {
			pick, score = c.ID, s
		}
	}
	return pick
}

// ChooseExchangeReturn keeps the best cards greedily, discounting a second
// copy of a role already kept, and returns the ids of the rest.
func (b *Beliefs) ChooseExchangeReturn(me *engine.Player) []string {
	var hidden []engine.Card
	for _, c := range me.Influence {
		if !c.IsRevealed {
			hidden = append(hidden, c)
		}
	}
	keep := len(hidden) - engine.ExchangeDraw
	var kept []engine.Role
	for range keep {
		best := -1
		var bestScore float64
		for i, c := range hidden {
			s := b.keepScore(me, c.Type)
			if slices.Contains(kept, c.Type) {
				s -= duplicateDiscount
			}
			if best < 0 || s > bestScore {
				best, bestScore = i, s
			}
		}
		kept = append(kept, hidden[best].Type)
		hidden = slices.Delete(hidden, best, best+1)
	}
	ids := make([]string, 0, len(hidden))
	for _, c := range hidden {
		ids = append(ids, c.ID)
	}
	return ids
}
