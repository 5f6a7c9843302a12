package engine

import (
	"fmt"
	"maps"
	"slices"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

// newTestGame starts an n-player game with seats p0..p(n-1) and p0 to move.
func newTestGame(t *testing.T, n int) *Game {
	t.Helper()
	g := NewGame("g1", "123456", Player{ID: "p0", Username: "p0"}, DefaultRules(), 42, t0)
	for i := 1; i < n; i++ {
		id := fmt.Sprintf("p%d", i)
		if err := g.AddPlayer(Player{ID: id, Username: id}); err != nil {
			t.Fatalf("AddPlayer(%s): %v", id, err)
		}
	}
	if err := g.Start("p0", t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	g.CurrentPlayerIndex = 0
	g.armDeclareDeadline(t0)
	return &g
}

// rig deals the given roles to the named players, moving cards between hands
// and the deck so the census is preserved.
func rig(t *testing.T, g *Game, hands map[string][]Role) {
	t.Helper()
	pool := g.allCards()
	take := func(role Role) Card {
		for i, c := range pool {
			if c.Type == role {
				pool = append(pool[:i], pool[i+1:]...)
				return c
			}
		}
		t.Fatalf("rig: no %s left", role)
		return Card{}
	}
	for i := range g.Players {
		g.Players[i].Influence = nil
	}
	for _, id := range slices.Sorted(maps.Keys(hands)) {
		roles := hands[id]
		p := g.Player(id)
		if p == nil {
			t.Fatalf("rig: unknown player %s", id)
		}
		for _, r := range roles {
			p.Influence = append(p.Influence, take(r))
		}
	}
	for i := range g.Players {
		for len(g.Players[i].Influence) < HandSize {
			g.Players[i].Influence = append(g.Players[i].Influence, pool[0])
			pool = pool[1:]
		}
	}
	g.Deck = Deck(pool)
	if err := g.CheckInvariants(); err != nil {
		t.Fatalf("rig: %v", err)
	}
}

func mustDeclare(t *testing.T, g *Game, typ ActionType, actor, target string) {
	t.Helper()
	if err := g.DeclareAction(Action{Type: typ, PlayerID: actor, TargetPlayerID: target}, t0); err != nil {
		t.Fatalf("DeclareAction(%s by %s): %v", typ, actor, err)
	}
}

func mustRespond(t *testing.T, g *Game, player string, r Response) {
	t.Helper()
	if err := g.SubmitResponse(player, r, t0); err != nil {
		t.Fatalf("SubmitResponse(%s, %s): %v", player, r.Type, err)
	}
}

func mustSelect(t *testing.T, g *Game, player, cardID string) {
	t.Helper()
	if err := g.SelectCard(player, cardID, t0); err != nil {
		t.Fatalf("SelectCard(%s, %s): %v", player, cardID, err)
	}
}

func wantPhase(t *testing.T, g *Game, want Phase) {
	t.Helper()
	if g.CurrentTurn == nil {
		t.Fatalf("no turn in flight, want phase %s", want)
	}
	if g.CurrentTurn.Phase != want {
		t.Fatalf("phase = %s, want %s", g.CurrentTurn.Phase, want)
	}
}

// cardOf returns the id of p's first unrevealed card of role.
func cardOf(t *testing.T, g *Game, player string, role Role) string {
	t.Helper()
	p := g.Player(player)
	i, ok := p.cardFor(role)
	if !ok {
		t.Fatalf("%s holds no unrevealed %s", player, role)
	}
	return p.Influence[i].ID
}

func checkCensus(t *testing.T, g *Game) {
	t.Helper()
	counts := g.Census()
	for _, r := range Roles {
		if counts[r] != CopiesPerRole {
			t.Fatalf("census[%s] = %d, want %d", r, counts[r], CopiesPerRole)
		}
	}
}
