package engine

import "testing"

func TestTransitionTableClosed(t *testing.T) {
	for from, tos := range transitions {
		for _, to := range tos {
			if _, ok := transitions[to]; !ok {
				t.Errorf("%s -> %s leads to an unknown phase", from, to)
			}
		}
		if from.Terminal() && len(tos) != 0 {
			t.Errorf("terminal phase %s has outgoing edges", from)
		}
		if !from.Terminal() && len(tos) == 0 {
			t.Errorf("phase %s is a dead end", from)
		}
	}
}

func TestPhaseKinds(t *testing.T) {
	waiting := []Phase{
		PhaseAwaitingOpponentResponses, PhaseAwaitingActiveResponseToBlock,
		PhaseAwaitingTargetBlockResponse, PhaseAwaitingActorDefense,
		PhaseAwaitingBlockerDefense, PhaseAwaitingChallengePenaltySelection,
		PhaseAwaitingTargetSelection, PhaseAwaitingExchangeReturn,
	}
	for _, p := range waiting {
		if !p.Waiting() || p.Transient() {
			t.Errorf("%s should wait on input", p)
		}
	}
	for _, p := range []Phase{PhaseActionDeclared, PhaseActionExecution, PhaseReplacingChallengeDefenseCard, PhaseActionFailed, PhaseTurnComplete} {
		if p.Waiting() || !p.Transient() {
			t.Errorf("%s should be transient", p)
		}
	}
	if PhaseNone.Waiting() {
		t.Error("PhaseNone is not a turn phase")
	}
	if !CanTransition(PhaseAwaitingActiveResponseToBlock, PhaseActionFailed) {
		t.Error("accepting a block must fail the action")
	}
	if CanTransition(PhaseTurnComplete, PhaseActionDeclared) {
		t.Error("turn complete has no successor")
	}
}
