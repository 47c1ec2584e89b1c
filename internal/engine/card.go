package engine

import (
	"fmt"
	"sort"
	"strconv"
)

// Suit is one of the four French suits, identified by its wire letter.
type Suit byte

const (
	Spades   Suit = 'S'
	Hearts   Suit = 'H'
	Diamonds Suit = 'D'
	Clubs    Suit = 'C'
)

// suitOrder is the canonical suit order used for deck construction and
// for the stable hand sort.
var suitOrder = [4]Suit{Spades, Hearts, Diamonds, Clubs}

// Rank constants. Numeric ranks 6..10 are their face value.
const (
	RankJack  = 11
	RankQueen = 12
	RankKing  = 13
	RankAce   = 14
)

// Card is a (suit, rank) pair. Rank is within [6..14] for a 36-card deck
// and [9..14] for a 24-card deck. Cards have no identity beyond their value.
type Card struct {
	Suit Suit
	Rank int
}

// IsTrump reports whether the card's suit is the given trump suit.
func (c Card) IsTrump(trump Suit) bool { return c.Suit == trump }

// Beats reports whether d covers a under the given trump suit: same suit
// and higher rank, or trump over non-trump.
func (d Card) Beats(a Card, trump Suit) bool {
	if d.Suit == a.Suit {
		return d.Rank > a.Rank
	}
	return d.Suit == trump && a.Suit != trump
}

// String renders the 2-3 character wire token, e.g. "S6", "H10", "DK".
func (c Card) String() string {
	switch c.Rank {
	case RankJack:
		return string(c.Suit) + "J"
	case RankQueen:
		return string(c.Suit) + "Q"
	case RankKing:
		return string(c.Suit) + "K"
	case RankAce:
		return string(c.Suit) + "A"
	default:
		return string(c.Suit) + strconv.Itoa(c.Rank)
	}
}

// ParseCard decodes a wire token. Both letter ranks ("SK") and numeric
// ranks ("S13") are accepted; the canonical encoding uses letters.
func ParseCard(token string) (Card, error) {
	if len(token) < 2 || len(token) > 3 {
		return Card{}, fmt.Errorf("bad card token %q", token)
	}
	suit := Suit(token[0])
	switch suit {
	case Spades, Hearts, Diamonds, Clubs:
	default:
		return Card{}, fmt.Errorf("bad card suit %q", token)
	}
	var rank int
	switch token[1:] {
	case "J":
		rank = RankJack
	case "Q":
		rank = RankQueen
	case "K":
		rank = RankKing
	case "A":
		rank = RankAce
	default:
		n, err := strconv.Atoi(token[1:])
		if err != nil || n < 6 || n > RankAce {
			return Card{}, fmt.Errorf("bad card rank %q", token)
		}
		rank = n
	}
	return Card{Suit: suit, Rank: rank}, nil
}

// MarshalText encodes the card as its wire token for JSON.
func (c Card) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a wire token.
func (c *Card) UnmarshalText(b []byte) error {
	parsed, err := ParseCard(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// suitIndex returns the canonical position of a suit, used only for sorting.
func suitIndex(s Suit) int {
	for i, v := range suitOrder {
		if v == s {
			return i
		}
	}
	return len(suitOrder)
}

// SortHand orders cards by (suit, rank) in place for stable display.
func SortHand(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		si, sj := suitIndex(cards[i].Suit), suitIndex(cards[j].Suit)
		if si != sj {
			return si < sj
		}
		return cards[i].Rank < cards[j].Rank
	})
}
