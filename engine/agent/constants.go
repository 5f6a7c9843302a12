package agent

import engine "github.com/jason-s-yu/influence/engine"

const (
	uniformProb = 1.0 / float64(len(engine.Roles))
	claimNudge  = 0.4

	heldBonus     = 3.0 // bot holds the claimed role
	riskyPenalty  = 0.1 // bluffing a role whose copies are mostly face-up
	bluffDiscount = 0.6 // any other bluff
	lowCoinBonus  = 1.5 // under three coins: favour income-type actions
	lateGameBonus = 1.6 // two players left: favour removing influence
	dukeWary      = 0.5 // foreign aid when an opponent probably holds Duke

	lowCoins          = 3
	likelyHolds       = 0.6
	bluffBlockRate    = 0.6
	challengeBelow    = 0.3
	challengeRate     = 0.7
	assassinThreat    = 2
	contessaThreat    = 2.5
	lowCoinKeep       = 1.0
	duplicateDiscount = 1.5
)

// baseWeight is the starting preference for each action type before any
// adjustment.
var baseWeight = map[engine.ActionType]float64{
	engine.ActionIncome:      1.0,
	engine.ActionForeignAid:  1.0,
	engine.ActionTax:         1.6,
	engine.ActionSteal:       1.2,
	engine.ActionAssassinate: 1.4,
	engine.ActionCoup:        2.5,
	engine.ActionExchange:    0.6,
}

// keepPriority ranks roles by how much the bot wants to keep them. The card
// with the lowest adjusted score is the one given up.
var keepPriority = map[engine.Role]float64{
	engine.RoleDuke:       5,
	engine.RoleAssassin:   4,
	engine.RoleCaptain:    4,
	engine.RoleContessa:   3,
	engine.RoleAmbassador: 3,
}
