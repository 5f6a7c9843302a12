package engine

import (
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"
)

func late(g *Game) time.Time {
	w, _ := g.Watch()
	return w.Deadline().Add(time.Millisecond)
}

// TestEscalateOpponentWindowMatchesAccepts: timing out the window gives the
// same result as every remaining player accepting.
func TestEscalateOpponentWindowMatchesAccepts(t *testing.T) {
	explicit := newTestGame(t, 4)
	mustDeclare(t, explicit, ActionTax, "p0", "")
	mustRespond(t, explicit, "p1", Accept())

	timed := explicit.Clone()

	mustRespond(t, explicit, "p2", Accept())
	mustRespond(t, explicit, "p3", Accept())

	w, ok := timed.Watch()
	if !ok {
		t.Fatal("no watch on an open window")
	}
	at := late(&timed)
	advanced, err := timed.AdvanceTurnState(&w, at)
	if err != nil || !advanced {
		t.Fatalf("AdvanceTurnState = %v, %v", advanced, err)
	}
	if timed.CurrentTurn != nil {
		t.Fatalf("turn still in %s", timed.CurrentTurn.Phase)
	}
	if timed.Player("p0").Coins != explicit.Player("p0").Coins {
		t.Errorf("coins %d vs %d", timed.Player("p0").Coins, explicit.Player("p0").Coins)
	}
	if !slices.Equal(timed.LastTurn.PhaseLog, explicit.LastTurn.PhaseLog) {
		t.Errorf("phase log %v vs %v", timed.LastTurn.PhaseLog, explicit.LastTurn.PhaseLog)
	}
	if !slices.Equal(timed.LastTurn.TimedOut, []string{"p2", "p3"}) {
		t.Errorf("timed out = %v, want [p2 p3]", timed.LastTurn.TimedOut)
	}

	// The same watch fired again is a no-op.
	before := timed.Clone()
	advanced, err = timed.AdvanceTurnState(&w, at)
	if err != nil || advanced {
		t.Fatalf("second AdvanceTurnState = %v, %v", advanced, err)
	}
	if !reflect.DeepEqual(timed, before) {
		t.Fatal("stale watch changed the game")
	}
}

func TestEscalateNotDue(t *testing.T) {
	g := newTestGame(t, 3)
	mustDeclare(t, g, ActionTax, "p0", "")
	w, _ := g.Watch()
	advanced, err := g.AdvanceTurnState(&w, w.Deadline().Add(-time.Second))
	if err != nil || advanced {
		t.Fatalf("early AdvanceTurnState = %v, %v", advanced, err)
	}
	wantPhase(t, g, PhaseAwaitingOpponentResponses)
}

// TestEscalateStaleTuple: a real response that moved the phase makes the
// pending escalation a no-op.
func TestEscalateStaleTuple(t *testing.T) {
	g := newTestGame(t, 3)
	mustDeclare(t, g, ActionTax, "p0", "")
	w, _ := g.Watch()
	mustRespond(t, g, "p1", Challenge())
	before := g.Clone()
	advanced, err := g.AdvanceTurnState(&w, w.Deadline().Add(time.Hour))
	if err != nil || advanced {
		t.Fatalf("AdvanceTurnState = %v, %v", advanced, err)
	}
	if !reflect.DeepEqual(*g, before) {
		t.Fatal("stale escalation changed the game")
	}
}

func TestEscalateEachPhase(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, g *Game)
		check func(t *testing.T, g *Game)
	}{
		{
			name: "block window accepts the block",
			setup: func(t *testing.T, g *Game) {
				mustDeclare(t, g, ActionForeignAid, "p0", "")
				mustRespond(t, g, "p1", Block(RoleDuke))
			},
			check: func(t *testing.T, g *Game) {
				if last := g.LastTurn.PhaseLog; last[len(last)-1] != PhaseActionFailed {
					t.Errorf("phase log = %v", last)
				}
				if g.Player("p0").Coins != StartingCoins {
					t.Errorf("blocked foreign aid paid out")
				}
			},
		},
		{
			name: "target block window executes",
			setup: func(t *testing.T, g *Game) {
				rig(t, g, map[string][]Role{
					"p0": {RoleCaptain, RoleDuke},
					"p1": {RoleDuke, RoleDuke},
					"p2": {RoleContessa, RoleAssassin},
				})
				mustDeclare(t, g, ActionSteal, "p0", "p1")
				mustRespond(t, g, "p2", Challenge())
				mustSelect(t, g, "p0", cardOf(t, g, "p0", RoleCaptain))
				mustSelect(t, g, "p2", cardOf(t, g, "p2", RoleContessa))
				wantPhase(t, g, PhaseAwaitingTargetBlockResponse)
			},
			check: func(t *testing.T, g *Game) {
				if g.Player("p0").Coins != 4 {
					t.Errorf("coins = %d, want 4", g.Player("p0").Coins)
				}
			},
		},
		{
			name: "silent defender loses the challenge",
			setup: func(t *testing.T, g *Game) {
				mustDeclare(t, g, ActionTax, "p0", "")
				mustRespond(t, g, "p1", Challenge())
			},
			check: func(t *testing.T, g *Game) {
				wantPhase(t, g, PhaseAwaitingChallengePenaltySelection)
				if g.CurrentTurn.LosingPlayer != "p0" || g.CurrentTurn.ChallengeResult.Outcome != ChallengeSucceeded {
					t.Errorf("turn = %+v", g.CurrentTurn)
				}
			},
		},
		{
			name: "penalty reveals the first hidden card",
			setup: func(t *testing.T, g *Game) {
				mustDeclare(t, g, ActionTax, "p0", "")
				mustRespond(t, g, "p1", Challenge())
				mustRespond(t, g, "p0", Accept())
				wantPhase(t, g, PhaseAwaitingChallengePenaltySelection)
			},
			check: func(t *testing.T, g *Game) {
				if !g.Player("p0").Influence[0].IsRevealed || g.Player("p0").Influence[1].IsRevealed {
					t.Errorf("hand = %+v", g.Player("p0").Influence)
				}
				if g.CurrentTurn != nil {
					t.Errorf("turn still in %s", g.CurrentTurn.Phase)
				}
			},
		},
		{
			name: "target selection reveals the first hidden card",
			setup: func(t *testing.T, g *Game) {
				g.Player("p0").Coins = 7
				g.Player("p1").Influence[0].IsRevealed = true
				mustDeclare(t, g, ActionCoup, "p0", "p1")
			},
			check: func(t *testing.T, g *Game) {
				if !g.Player("p1").IsEliminated() {
					t.Errorf("target kept influence")
				}
				if !slices.Equal(g.EliminationOrder, []string{"p1"}) {
					t.Errorf("elimination order = %v", g.EliminationOrder)
				}
			},
		},
		{
			name: "exchange keeps the original hand",
			setup: func(t *testing.T, g *Game) {
				mustDeclare(t, g, ActionExchange, "p0", "")
				mustRespond(t, g, "p1", Accept())
				mustRespond(t, g, "p2", Accept())
				wantPhase(t, g, PhaseAwaitingExchangeReturn)
			},
			check: func(t *testing.T, g *Game) {
				if len(g.Player("p0").Influence) != HandSize {
					t.Errorf("hand size = %d", len(g.Player("p0").Influence))
				}
				if g.CurrentTurn != nil {
					t.Errorf("turn still in %s", g.CurrentTurn.Phase)
				}
			},
		},
		{
			name:  "idle player takes income",
			setup: func(t *testing.T, g *Game) {},
			check: func(t *testing.T, g *Game) {
				if g.Player("p0").Coins != 3 || g.CurrentPlayer().ID != "p1" {
					t.Errorf("coins = %d current = %s", g.Player("p0").Coins, g.CurrentPlayer().ID)
				}
				if !slices.Equal(g.LastTurn.TimedOut, []string{"p0"}) {
					t.Errorf("timed out = %v", g.LastTurn.TimedOut)
				}
			},
		},
		{
			name:  "idle rich player coups",
			setup: func(t *testing.T, g *Game) { g.Player("p0").Coins = 11 },
			check: func(t *testing.T, g *Game) {
				wantPhase(t, g, PhaseAwaitingTargetSelection)
				if g.CurrentTurn.Action.Type != ActionCoup || g.CurrentTurn.LosingPlayer != "p1" {
					t.Errorf("forced action = %+v", g.CurrentTurn.Action)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGame(t, 3)
			tt.setup(t, g)
			w, ok := g.Watch()
			if !ok {
				t.Fatal("no deadline armed")
			}
			advanced, err := g.AdvanceTurnState(&w, late(g))
			if err != nil || !advanced {
				t.Fatalf("AdvanceTurnState = %v, %v", advanced, err)
			}
			tt.check(t, g)
			checkCensus(t, g)
		})
	}
}

func TestWatchTupleChangesPerPhase(t *testing.T) {
	g := newTestGame(t, 3)
	idle, _ := g.Watch()
	if idle.Phase != PhaseNone || idle.ActorID != "p0" {
		t.Errorf("idle watch = %+v", idle)
	}
	mustDeclare(t, g, ActionTax, "p0", "")
	a, _ := g.Watch()
	mustRespond(t, g, "p1", Accept())
	b, _ := g.Watch()
	if a != b {
		t.Errorf("an accept that keeps the phase changed the watch: %+v vs %+v", a, b)
	}
	mustRespond(t, g, "p2", Challenge())
	c, _ := g.Watch()
	if c == b || c.Phase != PhaseAwaitingActorDefense || c.Step != b.Step+1 {
		t.Errorf("watch after challenge = %+v", c)
	}
}

func TestNoDeadlineWhenDisabled(t *testing.T) {
	g := newTestGame(t, 3)
	g.Rules.ResponseTimeoutSec = 0
	g.DeclareBy = nil
	if _, ok := g.Watch(); ok {
		t.Error("idle game watched with deadlines disabled")
	}
	mustDeclare(t, g, ActionTax, "p0", "")
	if g.CurrentTurn.TimeoutAt != nil {
		t.Error("window armed with deadlines disabled")
	}
	advanced, err := g.AdvanceTurnState(nil, t0.Add(time.Hour))
	if err != nil || advanced {
		t.Errorf("AdvanceTurnState = %v, %v", advanced, err)
	}
}

func TestAdvanceWithoutExpectedTuple(t *testing.T) {
	g := newTestGame(t, 3)
	mustDeclare(t, g, ActionTax, "p0", "")
	advanced, err := g.AdvanceTurnState(nil, late(g))
	if err != nil || !advanced {
		t.Fatalf("AdvanceTurnState = %v, %v", advanced, err)
	}
	if g.Player("p0").Coins != 5 {
		t.Errorf("coins = %d, want 5", g.Player("p0").Coins)
	}
	if err := g.SubmitResponse("p1", Accept(), t0); !errors.Is(err, ErrNoTurn) {
		t.Errorf("late accept err = %v", err)
	}
}
