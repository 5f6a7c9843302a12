package engine

// Role is one of the five characters a card can carry.
type Role string

const (
	RoleDuke       Role = "DUKE"
	RoleAssassin   Role = "ASSASSIN"
	RoleCaptain    Role = "CAPTAIN"
	RoleContessa   Role = "CONTESSA"
	RoleAmbassador Role = "AMBASSADOR"
)

// Roles lists every role in canonical order.
var Roles = [...]Role{RoleDuke, RoleAssassin, RoleCaptain, RoleContessa, RoleAmbassador}

// Valid reports whether r names one of the five roles.
func (r Role) Valid() bool {
	for _, x := range Roles {
		if x == r {
			return true
		}
	}
	return false
}

const (
	CopiesPerRole   = 3
	DeckSize        = len(Roles) * CopiesPerRole // 15
	HandSize        = 2
	StartingCoins   = 2
	ForcedCoupCoins = 10
	ExchangeDraw    = 2
	StealAmount     = 2
	MinPlayers      = 2
	MaxPlayers      = 6
)

// Card is a single influence card. Type is empty in projections where the
// viewer is not allowed to see it.
type Card struct {
	ID                     string `json:"id"`
	Type                   Role   `json:"type,omitempty"`
	IsRevealed             bool   `json:"isRevealed"`
	IsChallengeDefenseCard bool   `json:"isChallengeDefenseCard,omitempty"`
}

// ActionType identifies a turn move.
type ActionType string

const (
	ActionIncome      ActionType = "INCOME"
	ActionForeignAid  ActionType = "FOREIGN_AID"
	ActionTax         ActionType = "TAX"
	ActionSteal       ActionType = "STEAL"
	ActionAssassinate ActionType = "ASSASSINATE"
	ActionCoup        ActionType = "COUP"
	ActionExchange    ActionType = "EXCHANGE"
)

// ActionTypes lists every action type in canonical order.
var ActionTypes = [...]ActionType{
	ActionIncome, ActionForeignAid, ActionTax, ActionSteal,
	ActionAssassinate, ActionCoup, ActionExchange,
}

// Action is a declared move together with its cost and contestability
// metadata. Build one with NewAction so the metadata matches the type.
type Action struct {
	Type              ActionType `json:"type"`
	PlayerID          string     `json:"playerId"`
	TargetPlayerID    string     `json:"targetPlayerId,omitempty"`
	CoinCost          int        `json:"coinCost"`
	RequiredCharacter Role       `json:"requiredCharacter,omitempty"`
	CanBeBlocked      bool       `json:"canBeBlocked"`
	CanBeChallenged   bool       `json:"canBeChallenged"`
	BlockableBy       []Role     `json:"blockableBy,omitempty"`
	AutoResolve       bool       `json:"autoResolve"`
}

// IsTargeted reports whether the action names a target player.
func (a Action) IsTargeted() bool {
	spec, ok := actionSpecs[a.Type]
	return ok && spec.targeted
}

// BlockableByTargetOnly reports whether only the target may block.
func (a Action) BlockableByTargetOnly() bool {
	return a.CanBeBlocked && a.IsTargeted()
}

// CanBlockWith reports whether role is one of the roles that block a.
func (a Action) CanBlockWith(role Role) bool {
	for _, r := range a.BlockableBy {
		if r == role {
			return true
		}
	}
	return false
}

// ResponseType is the kind of answer a player gives in a response window.
type ResponseType string

const (
	ResponseAccept    ResponseType = "accept"
	ResponseBlock     ResponseType = "block"
	ResponseChallenge ResponseType = "challenge"
)

// Response is an answer to a pending action or block. BlockingRole is only
// meaningful for ResponseBlock.
type Response struct {
	Type         ResponseType `json:"type"`
	BlockingRole Role         `json:"blockingRole,omitempty"`
}

// Accept, Challenge and Block build responses.
func Accept() Response { return Response{Type: ResponseAccept} }
func Challenge() Response { return Response{Type: ResponseChallenge} }
func Block(role Role) Response { return Response{Type: ResponseBlock, BlockingRole: role} }

// GameStatus is the lifecycle state of a game.
type GameStatus string

const (
	StatusWaiting    GameStatus = "WAITING"
	StatusInProgress GameStatus = "IN_PROGRESS"
	StatusCompleted  GameStatus = "COMPLETED"
)

// ClaimKind says whether a challenge disputes the actor's claim or a block.
type ClaimKind string

const (
	ClaimAction ClaimKind = "ACTION"
	ClaimBlock  ClaimKind = "BLOCK"
)

// ChallengeOutcome is the result of a challenge from the challenger's side.
type ChallengeOutcome string

const (
	ChallengeUnresolved ChallengeOutcome = "UNRESOLVED"
	// ChallengeSucceeded: the claimant could not prove the role.
	ChallengeSucceeded ChallengeOutcome = "SUCCEEDED"
	// ChallengeFailed: the claimant proved the role; the challenger pays.
	ChallengeFailed ChallengeOutcome = "FAILED"
)

// BlockClaim records a block response.
type BlockClaim struct {
	PlayerID string `json:"playerId"`
	Role     Role   `json:"role"`
}

// ChallengeClaim records a challenge response.
type ChallengeClaim struct {
	PlayerID string `json:"playerId"`
}

// OpponentResponses holds the state-changing responses received this turn.
type OpponentResponses struct {
	Block     *BlockClaim     `json:"block,omitempty"`
	Challenge *ChallengeClaim `json:"challenge,omitempty"`
}

// ChallengeResult is embedded in the committed turn so that every retry of the
// same transition sees the same outcome.
type ChallengeResult struct {
	ChallengerID   string           `json:"challengerId"`
	DefenderID     string           `json:"defenderId"`
	ChallengedRole Role             `json:"challengedRole"`
	Claim          ClaimKind        `json:"claim"`
	Outcome        ChallengeOutcome `json:"outcome"`
	DefenseCardID  string           `json:"defenseCardId,omitempty"`
	LostCardID     string           `json:"lostCardId,omitempty"`
}

// loserID returns whoever was wrong once the challenge is resolved.
func (c *ChallengeResult) loserID() string {
	if c.Outcome == ChallengeFailed {
		return c.ChallengerID
	}
	return c.DefenderID
}
