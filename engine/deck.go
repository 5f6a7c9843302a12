package engine

import "fmt"

// Deck is the face-down draw pile. The top of the deck is the last element.
type Deck []Card

// NewDeck creates CopiesPerRole cards of every role with opaque ids and
// shuffles them. Ids come from the RNG so that the same record always yields
// the same deck.
func NewDeck(rng *RNG) Deck {
	d := make(Deck, 0, DeckSize)
	for _, role := range Roles {
		for i := 0; i < CopiesPerRole; i++ {
			d = append(d, Card{ID: fmt.Sprintf("c%016x", rng.Next()), Type: role})
		}
	}
	d.Shuffle(rng)
	return d
}

// Shuffle is an in-place Fisher-Yates shuffle.
func (d Deck) Shuffle(rng *RNG) {
	for i := len(d) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		d[i], d[j] = d[j], d[i]
	}
}

// Deal removes and returns the top n cards.
func (d *Deck) Deal(n int) ([]Card, error) {
	if n > len(*d) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrDeckExhausted, n, len(*d))
	}
	cut := len(*d) - n
	hand := append([]Card(nil), (*d)[cut:]...)
	*d = (*d)[:cut]
	return hand, nil
}

// Return puts cards back face-down and reshuffles. Card ids are kept.
func (d *Deck) Return(rng *RNG, cards ...Card) {
	for _, c := range cards {
		c.IsRevealed = false
		c.IsChallengeDefenseCard = false
		*d = append(*d, c)
	}
	d.Shuffle(rng)
}

// returnAndReplace sends one of the player's cards back into the deck and
// deals a replacement into the same hand slot. It is only used after a
// successful challenge defense.
func (g *Game) returnAndReplace(playerID, cardID string) (Card, error) {
	p := g.Player(playerID)
	if p == nil {
		return Card{}, fmt.Errorf("%w: replacing card for missing player %s", ErrInvariant, playerID)
	}
	i := p.cardIndex(cardID)
	if i < 0 {
		return Card{}, fmt.Errorf("%w: card %s not in hand of %s", ErrInvariant, cardID, playerID)
	}
	old := p.Influence[i]
	g.Deck.Return(&g.RNG, old)
	drawn, err := g.Deck.Deal(1)
	if err != nil {
		return Card{}, err
	}
	p.Influence[i] = drawn[0]
	return drawn[0], nil
}
