package engine

// LegalActions returns every action playerID may declare right now, one entry
// per (type, target) pair, in canonical action order then seat order.
func (g *Game) LegalActions(playerID string) []Action {
	if g.Status != StatusInProgress || g.CurrentTurn != nil {
		return nil
	}
	if cur := g.CurrentPlayer(); cur == nil || cur.ID != playerID {
		return nil
	}
	var out []Action
	for _, t := range ActionTypes {
		targets := []string{""}
		if actionSpecs[t].targeted {
			targets = targets[:0]
			for _, id := range g.ActivePlayers() {
				if id != playerID {
					targets = append(targets, id)
				}
			}
		}
		for _, target := range targets {
			a, err := NewAction(t, playerID, target)
			if err != nil {
				continue
			}
			if ValidateAction(g, a) == nil {
				out = append(out, a)
			}
		}
	}
	return out
}

// LegalResponses returns the responses playerID may submit in the current
// phase. Blocks are listed once per blocking role.
func (g *Game) LegalResponses(playerID string) []Response {
	t := g.CurrentTurn
	if t == nil || !g.IsActive(playerID) || t.HasResponded(playerID) {
		return nil
	}
	a := t.Action
	blocks := func() []Response {
		var out []Response
		for _, r := range a.BlockableBy {
			if checkBlock(a, playerID, r) == nil {
				out = append(out, Block(r))
			}
		}
		return out
	}

	switch t.Phase {
	case PhaseAwaitingOpponentResponses:
		if playerID == a.PlayerID {
			return nil
		}
		out := []Response{Accept()}
		if a.CanBeChallenged {
			out = append(out, Challenge())
		}
		return append(out, blocks()...)
	case PhaseAwaitingActiveResponseToBlock:
		if playerID != a.PlayerID {
			return nil
		}
		return []Response{Accept(), Challenge()}
	case PhaseAwaitingTargetBlockResponse:
		if playerID != a.TargetPlayerID {
			return nil
		}
		return append([]Response{Accept()}, blocks()...)
	case PhaseAwaitingActorDefense, PhaseAwaitingBlockerDefense:
		if playerID != t.ChallengeResult.DefenderID {
			return nil
		}
		return []Response{Accept()}
	}
	return nil
}

// MustSelectCard reports whether playerID is the one player expected to
// answer the current phase with selectCard.
func (g *Game) MustSelectCard(playerID string) bool {
	t := g.CurrentTurn
	if t == nil || !t.Phase.SelectsCard() {
		return false
	}
	switch t.Phase {
	case PhaseAwaitingActorDefense, PhaseAwaitingBlockerDefense:
		return t.ChallengeResult.DefenderID == playerID
	}
	return t.LosingPlayer == playerID
}
