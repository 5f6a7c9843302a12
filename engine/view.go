package engine

// ViewFor returns a copy of the game as viewerID may see it. A card keeps its
// type only if it is revealed or sits in the viewer's own hand; deck cards are
// always hidden and the RNG word is withheld so future shuffles cannot be
// predicted. Every per-viewer read goes through here.
func (g *Game) ViewFor(viewerID string) Game {
	v := g.Clone()
	v.RNG = 0
	for i := range v.Deck {
		v.Deck[i].Type = ""
	}
	for i := range v.Players {
		p := &v.Players[i]
		if p.ID == viewerID {
			continue
		}
		for j := range p.Influence {
			if !p.Influence[j].IsRevealed {
				p.Influence[j].Type = ""
			}
		}
	}
	return v
}
