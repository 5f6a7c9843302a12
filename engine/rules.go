package engine

import "time"

// Rules holds configurable per-game settings.
type Rules struct {
	MaxPlayers         int `json:"maxPlayers"`
	ResponseTimeoutSec int `json:"responseTimeoutSec"` // 0 disables deadlines
}

// DefaultRules returns the standard settings.
func DefaultRules() Rules {
	return Rules{
		MaxPlayers:         MaxPlayers,
		ResponseTimeoutSec: 30,
	}
}

// ResponseTimeout returns the response window length.
func (r Rules) ResponseTimeout() time.Duration {
	return time.Duration(r.ResponseTimeoutSec) * time.Second
}

// maxPlayers returns the effective seat limit, treating 0 as MaxPlayers.
func (r Rules) maxPlayers() int {
	if r.MaxPlayers <= 0 || r.MaxPlayers > MaxPlayers {
		return MaxPlayers
	}
	return r.MaxPlayers
}
