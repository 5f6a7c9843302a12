package engine

import (
	"errors"
	"testing"
)

func TestNewActionMetadata(t *testing.T) {
	tests := []struct {
		typ        ActionType
		cost       int
		claim      Role
		block      bool
		challenge  bool
		auto       bool
		targeted   bool
		blockRoles []Role
	}{
		{ActionIncome, 0, "", false, false, true, false, nil},
		{ActionForeignAid, 0, "", true, false, false, false, []Role{RoleDuke}},
		{ActionTax, 0, RoleDuke, false, true, false, false, nil},
		{ActionSteal, 0, RoleCaptain, true, true, false, true, []Role{RoleCaptain, RoleAmbassador}},
		{ActionAssassinate, 3, RoleAssassin, true, true, false, true, []Role{RoleContessa}},
		{ActionCoup, 7, "", false, false, true, true, nil},
		{ActionExchange, 0, RoleAmbassador, false, true, false, false, nil},
	}
	for _, tt := range tests {
		a, err := NewAction(tt.typ, "p0", "")
		if err != nil {
			t.Fatalf("NewAction(%s): %v", tt.typ, err)
		}
		if a.CoinCost != tt.cost || a.RequiredCharacter != tt.claim || a.CanBeBlocked != tt.block ||
			a.CanBeChallenged != tt.challenge || a.AutoResolve != tt.auto || a.IsTargeted() != tt.targeted {
			t.Errorf("%s metadata = %+v", tt.typ, a)
		}
		if len(a.BlockableBy) != len(tt.blockRoles) {
			t.Errorf("%s blockableBy = %v, want %v", tt.typ, a.BlockableBy, tt.blockRoles)
		}
		for _, r := range tt.blockRoles {
			if !a.CanBlockWith(r) {
				t.Errorf("%s should be blockable by %s", tt.typ, r)
			}
		}
	}
	if _, err := NewAction("DANCE", "p0", ""); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown action err = %v", err)
	}
}

func TestValidateAction(t *testing.T) {
	g := newTestGame(t, 3)
	g.Player("p2").Coins = 0
	for i := range g.Player("p1").Influence {
		g.Player("p1").Influence[i].IsRevealed = true
	}

	tests := []struct {
		name    string
		coins   int
		typ     ActionType
		target  string
		wantErr error
	}{
		{"income", 2, ActionIncome, "", nil},
		{"income with target", 2, ActionIncome, "p2", ErrTargetForbidden},
		{"steal needs target", 2, ActionSteal, "", ErrTargetRequired},
		{"steal from broke player", 2, ActionSteal, "p2", ErrNothingToSteal},
		{"target eliminated", 7, ActionCoup, "p1", ErrInvalidTarget},
		{"target self", 7, ActionCoup, "p0", ErrInvalidTarget},
		{"target unknown", 7, ActionCoup, "zz", ErrInvalidTarget},
		{"assassinate short", 2, ActionAssassinate, "p2", ErrInsufficientCoins},
		{"assassinate", 3, ActionAssassinate, "p2", nil},
		{"coup short", 6, ActionCoup, "p2", ErrInsufficientCoins},
		{"coup", 7, ActionCoup, "p2", nil},
		{"forced coup tax", 10, ActionTax, "", ErrMustCoup},
		{"forced coup income", 12, ActionIncome, "", ErrMustCoup},
		{"forced coup ok", 10, ActionCoup, "p2", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.Player("p0").Coins = tt.coins
			a, err := NewAction(tt.typ, "p0", tt.target)
			if err != nil {
				t.Fatalf("NewAction: %v", err)
			}
			err = ValidateAction(g, a)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateAction: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) || !IsValidation(err) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateActionEliminatedActor(t *testing.T) {
	g := newTestGame(t, 2)
	for i := range g.Player("p0").Influence {
		g.Player("p0").Influence[i].IsRevealed = true
	}
	a, _ := NewAction(ActionIncome, "p0", "")
	if err := ValidateAction(g, a); !errors.Is(err, ErrEliminated) {
		t.Errorf("err = %v, want ErrEliminated", err)
	}
}

func TestApplyEffects(t *testing.T) {
	tests := []struct {
		typ         ActionType
		actorCoins  int
		targetCoins int
		wantActor   int
		wantTarget  int
		wantLoser   bool
	}{
		{ActionIncome, 2, 2, 3, 2, false},
		{ActionForeignAid, 2, 2, 4, 2, false},
		{ActionTax, 2, 2, 5, 2, false},
		{ActionSteal, 2, 5, 4, 3, false},
		{ActionSteal, 2, 1, 3, 0, false},
		{ActionAssassinate, 3, 2, 0, 2, true},
		{ActionCoup, 9, 2, 2, 2, true},
		{ActionExchange, 2, 2, 2, 2, false},
	}
	for _, tt := range tests {
		g := newTestGame(t, 2)
		g.Player("p0").Coins = tt.actorCoins
		g.Player("p1").Coins = tt.targetCoins
		target := ""
		if actionSpecs[tt.typ].targeted {
			target = "p1"
		}
		a, _ := NewAction(tt.typ, "p0", target)
		loser, err := g.applyEffects(a)
		if err != nil {
			t.Fatalf("%s: %v", tt.typ, err)
		}
		if got := g.Player("p0").Coins; got != tt.wantActor {
			t.Errorf("%s: actor coins = %d, want %d", tt.typ, got, tt.wantActor)
		}
		if got := g.Player("p1").Coins; got != tt.wantTarget {
			t.Errorf("%s: target coins = %d, want %d", tt.typ, got, tt.wantTarget)
		}
		if (loser == "p1") != tt.wantLoser {
			t.Errorf("%s: loser = %q", tt.typ, loser)
		}
	}
}

// TestApplyEffectsFloorsAtZero covers a cost larger than the purse.
func TestApplyEffectsFloorsAtZero(t *testing.T) {
	g := newTestGame(t, 2)
	g.Player("p0").Coins = 1
	a, _ := NewAction(ActionCoup, "p0", "p1")
	if _, err := g.applyEffects(a); err != nil {
		t.Fatal(err)
	}
	if c := g.Player("p0").Coins; c != 0 {
		t.Errorf("coins = %d, want 0", c)
	}
}

func TestApplyEffectsEliminatedTarget(t *testing.T) {
	g := newTestGame(t, 3)
	g.Player("p1").Coins = 4
	for i := range g.Player("p1").Influence {
		g.Player("p1").Influence[i].IsRevealed = true
	}
	a, _ := NewAction(ActionSteal, "p0", "p1")
	if _, err := g.applyEffects(a); err != nil {
		t.Fatal(err)
	}
	if g.Player("p1").Coins != 4 || g.Player("p0").Coins != StartingCoins {
		t.Errorf("eliminated target was stolen from")
	}
	a, _ = NewAction(ActionAssassinate, "p0", "p1")
	g.Player("p0").Coins = 3
	if loser, _ := g.applyEffects(a); loser != "" {
		t.Errorf("eliminated target must not lose again, loser = %q", loser)
	}
}
