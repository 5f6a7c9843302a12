package agent

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	engine "github.com/jason-s-yu/influence/engine"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newGame starts an n-player game with p0 to move.
func newGame(t *testing.T, n int, seed uint64) *engine.Game {
	t.Helper()
	g := engine.NewGame("g1", "123456", engine.Player{ID: "p0"}, engine.DefaultRules(), seed, t0)
	for i := 1; i < n; i++ {
		if err := g.AddPlayer(engine.Player{ID: fmt.Sprintf("p%d", i), IsBot: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.Start("p0", t0); err != nil {
		t.Fatal(err)
	}
	g.CurrentPlayerIndex = 0
	return &g
}

func declare(t *testing.T, g *engine.Game, at engine.ActionType, actor, target string) {
	t.Helper()
	a, err := engine.NewAction(at, actor, target)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.DeclareAction(a, t0); err != nil {
		t.Fatalf("declare %s: %v", at, err)
	}
}

// applyDecision submits d to g on behalf of botID.
func applyDecision(g *engine.Game, botID string, d Decision, now time.Time) error {
	switch d.Kind {
	case DecideDeclare:
		return g.DeclareAction(d.Action, now)
	case DecideRespond:
		return g.SubmitResponse(botID, d.Response, now)
	case DecideSelectCard:
		return g.SelectCard(botID, d.CardID, now)
	case DecideExchangeReturn:
		return g.SubmitExchangeReturn(botID, d.CardIDs, now)
	}
	return fmt.Errorf("unknown decision kind %q", d.Kind)
}

// setHand overwrites the hidden card types of id in a projection.
func setHand(view *engine.Game, id string, roles ...engine.Role) {
	p := view.Player(id)
	for i, r := range roles {
		p.Influence[i].Type = r
		p.Influence[i].IsRevealed = false
	}
}

func TestNewBeliefsUniform(t *testing.T) {
	b := NewBeliefs("g1", "p1", 7)
	for _, r := range engine.Roles {
		if got := b.Prob("p0", r); got != uniformProb {
			t.Errorf("Prob(%s) = %v, want %v", r, got, uniformProb)
		}
	}
	if len(b.RandState) == 0 {
		t.Error("random state not initialised")
	}
}

func TestObserveClaimOnce(t *testing.T) {
	g := newGame(t, 3, 1)
	declare(t, g, engine.ActionTax, "p0", "")
	b := NewBeliefs("g1", "p1", 1)
	view := g.ViewFor("p1")
	b.Observe(&view)
	b.Observe(&view)
	if got, want := b.Prob("p0", engine.RoleDuke), uniformProb+claimNudge; got != want {
		t.Errorf("Prob(p0, DUKE) = %v, want %v", got, want)
	}
	if b.Claims[engine.RoleDuke] != 1 {
		t.Errorf("claims = %v", b.Claims)
	}
	if len(b.Hand) != engine.HandSize {
		t.Errorf("own hand = %v", b.Hand)
	}
	if _, ok := b.Opponents["p2"]; !ok {
		t.Error("bystander not tracked")
	}
	if _, ok := b.Opponents["p1"]; ok {
		t.Error("bot tracks itself")
	}
}

func TestObserveRefutedClaim(t *testing.T) {
	g := newGame(t, 3, 1)
	declare(t, g, engine.ActionTax, "p0", "")
	if err := g.SubmitResponse("p1", engine.Challenge(), t0); err != nil {
		t.Fatal(err)
	}
	b := NewBeliefs("g1", "p1", 1)
	view := g.ViewFor("p1")
	b.Observe(&view)
	before := b.Prob("p0", engine.RoleDuke)

	// Defend with whatever p0 has; the outcome decides the nudge.
	p0 := g.Player("p0")
	if err := g.SelectCard("p0", p0.Influence[0].ID, t0); err != nil {
		t.Fatal(err)
	}
	view = g.ViewFor("p1")
	b.Observe(&view)
	after := b.Prob("p0", engine.RoleDuke)
	turn := g.CurrentTurn
	if turn == nil {
		turn = g.LastTurn
	}
	switch turn.ChallengeResult.Outcome {
	case engine.ChallengeSucceeded:
		if after >= before {
			t.Errorf("caught bluff: belief %v -> %v", before, after)
		}
	case engine.ChallengeFailed:
		if after != uniformProb {
			t.Errorf("replaced proof: belief %v, want uniform", after)
		}
	default:
		t.Fatalf("challenge unresolved")
	}
}

func TestEstimateUsesBeliefBeforeClaim(t *testing.T) {
	g := newGame(t, 3, 1)
	declare(t, g, engine.ActionTax, "p0", "")
	b := NewBeliefs("g1", "p1", 1)
	b.probs("p0")[engine.RoleDuke] = 0.8
	view := g.ViewFor("p1")
	b.Observe(&view)
	if got := b.Prob("p0", engine.RoleDuke); got != 1 {
		t.Fatalf("Prob(p0, DUKE) = %v, want clamped 1", got)
	}
	if got := b.priorToClaim("p0", engine.RoleDuke); got != 0.8 {
		t.Fatalf("priorToClaim = %v, want 0.8", got)
	}

	unclaimed := b.Clone()
	unclaimed.PreClaim = nil
	unclaimed.Opponents["p0"][engine.RoleDuke] = 0.8
	want := unclaimed.estimate(&view, "p0", engine.RoleDuke)
	if want == 0 {
		t.Fatal("estimate degenerate")
	}
	if got := b.estimate(&view, "p0", engine.RoleDuke); got != want {
		t.Errorf("estimate = %v, want %v from the pre-claim belief", got, want)
	}
}

func TestIsRiskyBluff(t *testing.T) {
	tests := []struct {
		name     string
		revealed int
		hand     []engine.Role
		want     bool
	}{
		{"none seen", 0, nil, false},
		{"one seen", 1, nil, false},
		{"two seen, third missing", 2, nil, true},
		{"two seen, third held", 2, []engine.Role{engine.RoleDuke}, false},
		{"all seen", 3, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBeliefs("g", "bot", 1)
			b.Revealed[engine.RoleDuke] = tt.revealed
			b.Hand = tt.hand
			if got := b.IsRiskyBluff(engine.RoleDuke); got != tt.want {
				t.Errorf("IsRiskyBluff = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChooseCardToLose(t *testing.T) {
	hand := func(coins int, roles ...engine.Role) *engine.Player {
		p := &engine.Player{ID: "bot", Coins: coins}
		for i, r := range roles {
			p.Influence = append(p.Influence, engine.Card{ID: fmt.Sprintf("c%d", i), Type: r})
		}
		return p
	}
	tests := []struct {
		name     string
		me       *engine.Player
		assassin int
		want     string
	}{
		{"duke over ambassador", hand(5, engine.RoleDuke, engine.RoleAmbassador), 0, "c1"},
		{"captain over contessa", hand(5, engine.RoleContessa, engine.RoleCaptain), 0, "c0"},
		{"assassins seen keep contessa", hand(5, engine.RoleContessa, engine.RoleCaptain), 2, "c1"},
		{"low coins keep captain", hand(1, engine.RoleAssassin, engine.RoleCaptain), 0, "c0"},
		{"last card", hand(5, engine.RoleDuke), 0, "c0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBeliefs("g", "bot", 1)
			b.Claims[engine.RoleAssassin] = tt.assassin
			if got := b.ChooseCardToLose(tt.me); got != tt.want {
				t.Errorf("lose %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChooseCardToLoseSkipsRevealed(t *testing.T) {
	me := &engine.Player{ID: "bot", Coins: 5, Influence: []engine.Card{
		{ID: "a", Type: engine.RoleAmbassador, IsRevealed: true},
		{ID: "d", Type: engine.RoleDuke},
	}}
	if got := NewBeliefs("g", "bot", 1).ChooseCardToLose(me); got != "d" {
		t.Errorf("lose %s, want the hidden duke", got)
	}
}

func TestChooseExchangeReturn(t *testing.T) {
	me := &engine.Player{ID: "bot", Coins: 4, Influence: []engine.Card{
		{ID: "d1", Type: engine.RoleDuke},
		{ID: "a1", Type: engine.RoleAmbassador},
		{ID: "d2", Type: engine.RoleDuke},
		{ID: "c1", Type: engine.RoleCaptain},
	}}
	got := NewBeliefs("g", "bot", 1).ChooseExchangeReturn(me)
	if want := []string{"a1", "d2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("returned %v, want %v", got, want)
	}

	me.Influence[0].IsRevealed = true
	got = NewBeliefs("g", "bot", 1).ChooseExchangeReturn(me)
	if want := []string{"a1", "c1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("one influence: returned %v, want %v", got, want)
	}
}

func TestDecideBlocksWithHeldCard(t *testing.T) {
	g := newGame(t, 3, 3)
	declare(t, g, engine.ActionSteal, "p0", "p1")
	view := g.ViewFor("p1")
	setHand(&view, "p1", engine.RoleAmbassador, engine.RoleDuke)
	d, ok, err := NewBeliefs("g1", "p1", 3).Decide(&view)
	if err != nil || !ok {
		t.Fatalf("Decide = %v, %v", ok, err)
	}
	if d.Kind != DecideRespond || d.Response != engine.Block(engine.RoleAmbassador) {
		t.Errorf("decision = %+v, want ambassador block", d)
	}
}

func TestDecideChallengesImpossibleClaim(t *testing.T) {
	g := newGame(t, 3, 5)
	declare(t, g, engine.ActionTax, "p0", "")
	view := g.ViewFor("p1")
	setHand(&view, "p1", engine.RoleDuke, engine.RoleDuke)
	p2 := view.Player("p2")
	p2.Influence[0] = engine.Card{ID: p2.Influence[0].ID, Type: engine.RoleDuke, IsRevealed: true}
	d, ok, err := NewBeliefs("g1", "p1", 5).Decide(&view)
	if err != nil || !ok {
		t.Fatalf("Decide = %v, %v", ok, err)
	}
	if d.Kind != DecideRespond || d.Response.Type != engine.ResponseChallenge {
		t.Errorf("decision = %+v, want challenge", d)
	}
}

func TestDecideDefendsWithMatchingCard(t *testing.T) {
	g := newGame(t, 3, 9)
	declare(t, g, engine.ActionTax, "p0", "")
	if err := g.SubmitResponse("p2", engine.Challenge(), t0); err != nil {
		t.Fatal(err)
	}
	view := g.ViewFor("p0")
	setHand(&view, "p0", engine.RoleCaptain, engine.RoleDuke)
	d, ok, err := NewBeliefs("g1", "p0", 9).Decide(&view)
	if err != nil || !ok {
		t.Fatalf("Decide = %v, %v", ok, err)
	}
	if want := view.Player("p0").Influence[1].ID; d.Kind != DecideSelectCard || d.CardID != want {
		t.Errorf("decision = %+v, want select %s", d, want)
	}
}

func TestDecideIdle(t *testing.T) {
	g := newGame(t, 3, 2)
	view := g.ViewFor("p1")
	if _, ok, err := NewBeliefs("g1", "p1", 1).Decide(&view); ok || err != nil {
		t.Errorf("off-turn bot decided: ok=%v err=%v", ok, err)
	}
	declare(t, g, engine.ActionIncome, "p0", "")
	view = g.ViewFor("p2")
	if _, ok, _ := NewBeliefs("g1", "p2", 1).Decide(&view); ok {
		t.Error("bot decided out of turn")
	}
	view = g.ViewFor("p1")
	if d, ok, _ := NewBeliefs("g1", "p1", 1).Decide(&view); !ok || d.Kind != DecideDeclare {
		t.Errorf("next player decision = %+v, %v", d, ok)
	}
}

// TestDecideSurvivesRestart: a bot restored from its persisted beliefs makes
// the same decision as one that never stopped.
func TestDecideSurvivesRestart(t *testing.T) {
	g := newGame(t, 4, 11)
	view := g.ViewFor("p0")
	live := NewBeliefs("g1", "p0", 11)
	live.Observe(&view)

	raw, err := json.Marshal(live)
	if err != nil {
		t.Fatal(err)
	}
	var restored Beliefs
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatal(err)
	}

	d1, ok1, err1 := live.Decide(&view)
	d2, ok2, err2 := restored.Decide(&view)
	if err1 != nil || err2 != nil || !ok1 || !ok2 {
		t.Fatalf("Decide: %v %v %v %v", ok1, err1, ok2, err2)
	}
	if !reflect.DeepEqual(d1, d2) {
		t.Errorf("decisions differ: %+v vs %+v", d1, d2)
	}
	if !reflect.DeepEqual(live.RandState, restored.RandState) {
		t.Error("random streams diverged")
	}
	if reflect.DeepEqual(live.RandState, NewBeliefs("g1", "p0", 11).RandState) {
		t.Error("random stream did not advance")
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := NewBeliefs("g", "bot", 1)
	b.nudge("p0", engine.RoleDuke, 0.4)
	b.mark(1, "claim")
	c := b.Clone()
	c.nudge("p0", engine.RoleDuke, -0.4)
	c.Marks[1][0] = "changed"
	c.RandState[0] ^= 0xff
	if b.Prob("p0", engine.RoleDuke) != uniformProb+0.4 || b.Marks[1][0] != "claim" {
		t.Error("clone shares belief maps")
	}
	if reflect.DeepEqual(b.RandState, c.RandState) {
		t.Error("clone shares random state")
	}
}

// TestBotsPlayToCompletion seats only bots and lets them play whole games,
// checking that every decision is accepted and the record stays consistent.
func TestBotsPlayToCompletion(t *testing.T) {
	for seed := uint64(1); seed <= 40; seed++ {
		n := 2 + int(seed%5)
		g := newGame(t, n, seed)
		bots := make(map[string]*Beliefs, n)
		for _, p := range g.Players {
			bots[p.ID] = NewBeliefs(g.ID, p.ID, seed*100+uint64(len(bots)))
		}
		now := t0
		for steps := 0; g.Status == engine.StatusInProgress; steps++ {
			if steps > 5000 {
				t.Fatalf("seed %d: game did not finish", seed)
			}
			waiting := g.AwaitingInput()
			if len(waiting) == 0 {
				t.Fatalf("seed %d: nobody to move", seed)
			}
			id := waiting[0]
			view := g.ViewFor(id)
			d, ok, err := bots[id].Decide(&view)
			if err != nil || !ok {
				t.Fatalf("seed %d: %s did not decide in %+v: %v", seed, id, g.CurrentTurn, err)
			}
			now = now.Add(time.Second)
			if err := applyDecision(g, id, d, now); err != nil {
				t.Fatalf("seed %d: %s decision %+v rejected: %v", seed, id, d, err)
			}
			if err := g.CheckInvariants(); err != nil {
				t.Fatalf("seed %d: %v", seed, err)
			}
		}
		if !g.IsActive(g.WinnerID) {
			t.Fatalf("seed %d: winner %q", seed, g.WinnerID)
		}
	}
}
