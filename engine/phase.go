package engine

// Phase is a step in the resolution of one turn.
type Phase string

const (
	// PhaseNone is reported when no turn is in flight and the current player
	// has yet to declare.
	PhaseNone Phase = ""

	PhaseActionDeclared                    Phase = "ACTION_DECLARED"
	PhaseAwaitingOpponentResponses         Phase = "AWAITING_OPPONENT_RESPONSES"
	PhaseAwaitingActiveResponseToBlock     Phase = "AWAITING_ACTIVE_RESPONSE_TO_BLOCK"
	PhaseAwaitingTargetBlockResponse       Phase = "AWAITING_TARGET_BLOCK_RESPONSE"
	PhaseActionExecution                   Phase = "ACTION_EXECUTION"
	PhaseAwaitingActorDefense              Phase = "AWAITING_ACTOR_DEFENSE"
	PhaseAwaitingBlockerDefense            Phase = "AWAITING_BLOCKER_DEFENSE"
	PhaseReplacingChallengeDefenseCard     Phase = "REPLACING_CHALLENGE_DEFENSE_CARD"
	PhaseAwaitingChallengePenaltySelection Phase = "AWAITING_CHALLENGE_PENALTY_SELECTION"
	PhaseAwaitingTargetSelection           Phase = "AWAITING_TARGET_SELECTION"
	PhaseAwaitingExchangeReturn            Phase = "AWAITING_EXCHANGE_RETURN"
	PhaseActionFailed                      Phase = "ACTION_FAILED"
	PhaseTurnComplete                      Phase = "TURN_COMPLETE"
)

// transitions is the single table of legal phase edges. Anything not listed
// here is an invariant violation.
var transitions = map[Phase][]Phase{
	PhaseActionDeclared: {
		PhaseAwaitingOpponentResponses,
		PhaseActionExecution,
	},
	PhaseAwaitingOpponentResponses: {
		PhaseAwaitingActiveResponseToBlock,
		PhaseAwaitingActorDefense,
		PhaseActionExecution,
	},
	PhaseAwaitingActiveResponseToBlock: {
		PhaseAwaitingBlockerDefense,
		PhaseActionFailed,
	},
	PhaseAwaitingTargetBlockResponse: {
		PhaseAwaitingActiveResponseToBlock,
		PhaseActionExecution,
	},
	PhaseAwaitingActorDefense: {
		PhaseReplacingChallengeDefenseCard,
		PhaseAwaitingChallengePenaltySelection,
		PhaseActionFailed,
	},
	PhaseAwaitingBlockerDefense: {
		PhaseReplacingChallengeDefenseCard,
		PhaseAwaitingChallengePenaltySelection,
		PhaseActionFailed,
	},
	PhaseReplacingChallengeDefenseCard: {
		PhaseAwaitingChallengePenaltySelection,
	},
	PhaseAwaitingChallengePenaltySelection: {
		PhaseAwaitingTargetBlockResponse,
		PhaseActionExecution,
		PhaseActionFailed,
	},
	PhaseActionExecution: {
		PhaseAwaitingTargetSelection,
		PhaseAwaitingExchangeReturn,
		PhaseTurnComplete,
	},
	PhaseAwaitingTargetSelection: {PhaseTurnComplete},
	PhaseAwaitingExchangeReturn:  {PhaseTurnComplete},
	PhaseActionFailed:            nil,
	PhaseTurnComplete:            nil,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Transient reports whether the phase is computed and left within the same
// update that enters it. Transient phases are never committed.
func (p Phase) Transient() bool {
	switch p {
	case PhaseActionDeclared, PhaseActionExecution, PhaseReplacingChallengeDefenseCard,
		PhaseActionFailed, PhaseTurnComplete:
		return true
	}
	return false
}

// Terminal reports whether the phase ends the turn.
func (p Phase) Terminal() bool {
	return p == PhaseActionFailed || p == PhaseTurnComplete
}

// Waiting reports whether the phase waits on player input and so carries a
// deadline.
func (p Phase) Waiting() bool {
	_, ok := transitions[p]
	return ok && !p.Transient()
}

// SelectsCard reports whether the phase is answered with selectCard.
func (p Phase) SelectsCard() bool {
	switch p {
	case PhaseAwaitingActorDefense, PhaseAwaitingBlockerDefense,
		PhaseAwaitingChallengePenaltySelection, PhaseAwaitingTargetSelection:
		return true
	}
	return false
}
