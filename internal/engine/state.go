// Package engine implements the Durak rules state machine for the
// podkidnoy and perevodnoy variants with 24- and 36-card decks.
//
// The package is pure: no I/O, no clocks, no goroutines. The room actor
// owns a GameState value, feeds it one validated event at a time and
// persists the result. All mutating methods either complete fully or
// return a *RuleError leaving the state untouched.
package engine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Mode selects the game variant.
type Mode string

const (
	ModePodkidnoy  Mode = "podkidnoy"
	ModePerevodnoy Mode = "perevodnoy"
)

// Phase is the engine lifecycle phase.
type Phase string

const (
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// MaxTableSize is the hard cap on attack slots per round.
const MaxTableSize = 6

// HandSize is the refill target.
const HandSize = 6

// TablePair is one attack slot and its optional covering card.
type TablePair struct {
	Attack  Card  `json:"attack"`
	Defense *Card `json:"defense,omitempty"`
}

// Defended reports whether the slot is covered.
func (p TablePair) Defended() bool { return p.Defense != nil }

// GameState is the complete authoritative state of one game. The deck is
// ordered bottom-first: Deck[0] is the face-up trump card, draws pop from
// the far end (the stock end).
type GameState struct {
	Mode     Mode `json:"mode"`
	DeckSize int  `json:"deckSize"`

	Order  []string        `json:"order"`
	Active map[string]bool `json:"active"`

	Deck      []Card            `json:"deck"`
	TrumpSuit Suit              `json:"trumpSuit"`
	TrumpCard Card              `json:"trumpCard"`
	Hands     map[string][]Card `json:"hands"`
	Table     []TablePair       `json:"table"`
	Discard   []Card            `json:"discard"`

	AttackerID   string          `json:"attackerId"`
	DefenderID   string          `json:"defenderId"`
	RoundLimit   int             `json:"roundLimit"`
	Passed       map[string]bool `json:"passed"`
	TakeDeclared bool            `json:"takeDeclared"`

	Phase Phase  `json:"phase"`
	Loser string `json:"loser,omitempty"`

	// TakerSkipsRefill excludes the taking defender from the post-round
	// refill. Classical rules vary here; default is to refill the taker last.
	TakerSkipsRefill bool `json:"takerSkipsRefill,omitempty"`
}

// xorshift64 keeps the deal deterministic under a caller-supplied seed.
type xorshift64 struct{ s uint64 }

func (r *xorshift64) next() uint64 {
	x := r.s
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	r.s = x
	return x
}

func (r *xorshift64) intn(n int) int { return int(r.next() % uint64(n)) }

// CryptoSeed returns a seed drawn from the OS entropy source. Each game
// gets its own seed; the engine itself never reads entropy.
func CryptoSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("engine: crypto seed: %v", err))
	}
	return binary.LittleEndian.Uint64(b[:])
}

// BuildDeck returns the unshuffled deck for the given size in canonical
// suit-then-rank order. Size 36 uses ranks 6..14, size 24 uses 9..14.
func BuildDeck(deckSize int) []Card {
	lowest := 6
	if deckSize == 24 {
		lowest = 9
	}
	deck := make([]Card, 0, deckSize)
	for _, s := range suitOrder {
		for r := lowest; r <= RankAce; r++ {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// NewGame builds, shuffles and deals a game for the given players in seat
// order. The players slice becomes the fixed turn order.
func NewGame(mode Mode, deckSize int, players []string, seed uint64) (*GameState, error) {
	if deckSize != 24 && deckSize != 36 {
		return nil, fmt.Errorf("engine: deck size %d not in {24,36}", deckSize)
	}
	if n := len(players); n < 2 || n > 4 {
		return nil, fmt.Errorf("engine: player count %d not in [2..4]", n)
	}
	if mode != ModePodkidnoy && mode != ModePerevodnoy {
		return nil, fmt.Errorf("engine: unknown mode %q", mode)
	}

	g := &GameState{
		Mode:     mode,
		DeckSize: deckSize,
		Order:    append([]string(nil), players...),
		Active:   make(map[string]bool, len(players)),
		Hands:    make(map[string][]Card, len(players)),
		Passed:   make(map[string]bool),
		Phase:    PhasePlaying,
	}
	for _, id := range players {
		g.Active[id] = true
		g.Hands[id] = nil
	}

	g.Deck = BuildDeck(deckSize)
	rng := xorshift64{s: seed}
	if rng.s == 0 {
		rng.s = 1 // xorshift cannot start at zero
	}
	for i := len(g.Deck) - 1; i > 0; i-- {
		j := rng.intn(i + 1)
		g.Deck[i], g.Deck[j] = g.Deck[j], g.Deck[i]
	}

	// The bottom card fixes the trump. With 24 cards and 4 players the
	// deal consumes the whole stock, trump card included, so it has to be
	// recorded before dealing.
	g.TrumpCard = g.Deck[0]
	g.TrumpSuit = g.TrumpCard.Suit

	// Deal by rounds: one card each per round, six rounds. Draws pop from
	// the stock end; Deck[0] stays at the bottom as the trump card.
	for round := 0; round < HandSize; round++ {
		for _, id := range g.Order {
			g.Hands[id] = append(g.Hands[id], g.drawOne())
		}
	}
	for _, id := range g.Order {
		SortHand(g.Hands[id])
	}

	g.AttackerID = g.firstAttacker()
	g.DefenderID = g.nextActive(g.AttackerID)
	g.resetRound()
	return g, nil
}

// drawOne pops a card from the stock end. Caller must ensure the deck is
// non-empty.
func (g *GameState) drawOne() Card {
	c := g.Deck[len(g.Deck)-1]
	g.Deck = g.Deck[:len(g.Deck)-1]
	return c
}

// firstAttacker is the holder of the lowest trump; ties break by seat
// order, and with no trumps anywhere the first seat starts.
func (g *GameState) firstAttacker() string {
	best := ""
	bestRank := RankAce + 1
	for _, id := range g.Order {
		for _, c := range g.Hands[id] {
			if c.Suit == g.TrumpSuit && c.Rank < bestRank {
				best = id
				bestRank = c.Rank
			}
		}
	}
	if best == "" {
		return g.Order[0]
	}
	return best
}

// nextActive returns the next active player strictly after from in seat
// order, wrapping around. Returns "" when no other player is active.
func (g *GameState) nextActive(from string) string {
	start := g.seatOf(from)
	n := len(g.Order)
	for step := 1; step <= n; step++ {
		id := g.Order[(start+step)%n]
		if id != from && g.Active[id] {
			return id
		}
	}
	return ""
}

func (g *GameState) seatOf(id string) int {
	for i, v := range g.Order {
		if v == id {
			return i
		}
	}
	return 0
}

// resetRound clears the per-round variables for the current defender.
func (g *GameState) resetRound() {
	g.Passed = make(map[string]bool)
	g.TakeDeclared = false
	limit := len(g.Hands[g.DefenderID])
	if limit > MaxTableSize {
		limit = MaxTableSize
	}
	g.RoundLimit = limit
}

// handIndex returns the position of card in the player's hand, or -1.
func (g *GameState) handIndex(playerID string, card Card) int {
	for i, c := range g.Hands[playerID] {
		if c == card {
			return i
		}
	}
	return -1
}

// removeFromHand removes one instance of card from the player's hand.
func (g *GameState) removeFromHand(playerID string, idx int) {
	h := g.Hands[playerID]
	g.Hands[playerID] = append(h[:idx:idx], h[idx+1:]...)
}

// countActive returns the number of players still in the round-robin.
func (g *GameState) countActive() int {
	n := 0
	for _, id := range g.Order {
		if g.Active[id] {
			n++
		}
	}
	return n
}

// Clone returns a deep copy, used by the room actor as a rollback snapshot
// around persistence.
func (g *GameState) Clone() *GameState {
	c := *g
	c.Order = append([]string(nil), g.Order...)
	c.Deck = append([]Card(nil), g.Deck...)
	c.Discard = append([]Card(nil), g.Discard...)
	c.Active = make(map[string]bool, len(g.Active))
	for k, v := range g.Active {
		c.Active[k] = v
	}
	c.Passed = make(map[string]bool, len(g.Passed))
	for k, v := range g.Passed {
		c.Passed[k] = v
	}
	c.Hands = make(map[string][]Card, len(g.Hands))
	for k, v := range g.Hands {
		c.Hands[k] = append([]Card(nil), v...)
	}
	c.Table = make([]TablePair, len(g.Table))
	for i, p := range g.Table {
		c.Table[i] = p
		if p.Defense != nil {
			d := *p.Defense
			c.Table[i].Defense = &d
		}
	}
	return &c
}

// CheckInvariants verifies the global invariants after a persisted
// transition. A non-nil return means the state is corrupt and the room
// must be poisoned.
func (g *GameState) CheckInvariants() error {
	// Card conservation against the initial deck.
	want := make(map[Card]int, g.DeckSize)
	for _, c := range BuildDeck(g.DeckSize) {
		want[c]++
	}
	got := make(map[Card]int, g.DeckSize)
	for _, c := range g.Deck {
		got[c]++
	}
	for _, c := range g.Discard {
		got[c]++
	}
	for _, h := range g.Hands {
		for _, c := range h {
			got[c]++
		}
	}
	for _, p := range g.Table {
		got[p.Attack]++
		if p.Defense != nil {
			got[*p.Defense]++
		}
	}
	if len(got) != len(want) {
		return fmt.Errorf("engine: card conservation violated: %d distinct cards, want %d", len(got), len(want))
	}
	for c, n := range want {
		if got[c] != n {
			return fmt.Errorf("engine: card conservation violated at %s: %d copies", c, got[c])
		}
	}

	if len(g.Table) > g.RoundLimit || g.RoundLimit > MaxTableSize {
		return fmt.Errorf("engine: table size %d exceeds round limit %d", len(g.Table), g.RoundLimit)
	}
	for i, p := range g.Table {
		if p.Defense != nil && !p.Defense.Beats(p.Attack, g.TrumpSuit) {
			return fmt.Errorf("engine: pair %d: %s does not beat %s", i, p.Defense, p.Attack)
		}
	}
	if g.Phase == PhasePlaying && g.countActive() >= 2 && g.AttackerID == g.DefenderID {
		return fmt.Errorf("engine: attacker and defender are both %s", g.AttackerID)
	}
	return nil
}
