package engine

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every rejection of an illegal input. A rejected
// input never changes the game.
var ErrValidation = errors.New("invalid move")

// ErrInvariant is wrapped by every detected corruption of the game record.
var ErrInvariant = errors.New("invariant violated")

var (
	ErrGameNotWaiting    = fmt.Errorf("%w: game has already started", ErrValidation)
	ErrGameNotInProgress = fmt.Errorf("%w: game is not in progress", ErrValidation)
	ErrGameFull          = fmt.Errorf("%w: game is full", ErrValidation)
	ErrTooFewPlayers     = fmt.Errorf("%w: not enough players", ErrValidation)
	ErrNotHost           = fmt.Errorf("%w: only the host may do that", ErrValidation)
	ErrAlreadyJoined     = fmt.Errorf("%w: player already joined", ErrValidation)
	ErrUnknownPlayer     = fmt.Errorf("%w: unknown player", ErrValidation)
	ErrTurnInProgress    = fmt.Errorf("%w: a turn is already in progress", ErrValidation)
	ErrNoTurn            = fmt.Errorf("%w: no turn in progress", ErrValidation)
	ErrNotYourTurn       = fmt.Errorf("%w: not your turn", ErrValidation)
	ErrEliminated        = fmt.Errorf("%w: player is eliminated", ErrValidation)
	ErrUnknownAction     = fmt.Errorf("%w: unknown action type", ErrValidation)
	ErrInsufficientCoins = fmt.Errorf("%w: not enough coins", ErrValidation)
	ErrMustCoup          = fmt.Errorf("%w: ten or more coins forces a coup", ErrValidation)
	ErrTargetRequired    = fmt.Errorf("%w: action requires a target", ErrValidation)
	ErrTargetForbidden   = fmt.Errorf("%w: action does not take a target", ErrValidation)
	ErrInvalidTarget     = fmt.Errorf("%w: invalid target", ErrValidation)
	ErrNothingToSteal    = fmt.Errorf("%w: target has no coins", ErrValidation)
	ErrWrongPhase        = fmt.Errorf("%w: input is not valid for the current phase", ErrValidation)
	ErrNotEligible       = fmt.Errorf("%w: player may not answer it", ErrWrongPhase)
	ErrAlreadyResponded  = fmt.Errorf("%w: player already responded in this phase", ErrValidation)
	ErrUnknownResponse   = fmt.Errorf("%w: unknown response type", ErrValidation)
	ErrNotChallengeable  = fmt.Errorf("%w: action cannot be challenged", ErrValidation)
	ErrNotBlockable      = fmt.Errorf("%w: action cannot be blocked", ErrValidation)
	ErrInvalidBlockRole  = fmt.Errorf("%w: role cannot block this action", ErrValidation)
	ErrUnknownCard       = fmt.Errorf("%w: card is not in the player's hand", ErrValidation)
	ErrCardRevealed      = fmt.Errorf("%w: card is already revealed", ErrValidation)
	ErrBadExchangeReturn = fmt.Errorf("%w: exchange must return exactly two distinct unrevealed cards", ErrValidation)
	ErrNoDeadline        = fmt.Errorf("%w: phase has no deadline to escalate", ErrValidation)
	ErrDeckExhausted     = fmt.Errorf("%w: deck has too few cards", ErrInvariant)
)

// IsValidation reports whether err is a rejected input.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsInvariant reports whether err is a detected corruption.
func IsInvariant(err error) bool { return errors.Is(err, ErrInvariant) }
