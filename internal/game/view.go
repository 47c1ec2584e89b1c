package game

import "github.com/ke2zo/durak6/internal/engine"

// ViewPlayer is one room member as every client sees them.
type ViewPlayer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Connected   bool   `json:"connected"`
	Ready       bool   `json:"ready"`
	HandCount   int    `json:"handCount,omitempty"`
	Active      bool   `json:"active,omitempty"`
}

// GameView is the in-game slice of a view. Other players' hands appear
// only as counts and the stock only as a count; the face-up trump card
// is public.
type GameView struct {
	TrumpSuit    engine.Suit        `json:"trumpSuit"`
	TrumpCard    engine.Card        `json:"trumpCard"`
	DeckCount    int                `json:"deckCount"`
	DiscardCount int                `json:"discardCount"`
	Table        []engine.TablePair `json:"table"`
	AttackerID   string             `json:"attackerId"`
	DefenderID   string             `json:"defenderId"`
	RoundLimit   int                `json:"roundLimit"`
	Passed       []string           `json:"passed"`
	TakeDeclared bool               `json:"takeDeclared"`
	Phase        engine.Phase       `json:"phase"`
	Loser        string             `json:"loser,omitempty"`

	YourHand []engine.Card  `json:"yourHand"`
	Allowed  engine.Allowed `json:"allowed"`
}

// View is the full per-player room state carried by STATE frames.
type View struct {
	RoomID  string       `json:"roomId"`
	Phase   RoomPhase    `json:"phase"`
	HostID  string       `json:"hostId"`
	Config  RoomConfig   `json:"config"`
	You     string       `json:"you"`
	Players []ViewPlayer `json:"players"`
	Game    *GameView    `json:"game,omitempty"`
}

// BuildView projects the authoritative room state down to what playerID
// is entitled to see. Pure; the actor calls it once per attached socket
// on every broadcast.
func BuildView(meta RoomMeta, lobby []LobbyPlayer, phase RoomPhase, g *engine.GameState, playerID string) View {
	v := View{
		RoomID:  meta.RoomID,
		Phase:   phase,
		HostID:  meta.HostID,
		Config:  meta.Config,
		You:     playerID,
		Players: make([]ViewPlayer, 0, len(lobby)),
	}
	for _, p := range lobby {
		vp := ViewPlayer{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Connected:   p.Connected,
			Ready:       p.Ready,
		}
		if g != nil {
			vp.HandCount = len(g.Hands[p.ID])
			vp.Active = g.Active[p.ID]
		}
		v.Players = append(v.Players, vp)
	}
	if g == nil {
		return v
	}

	gv := &GameView{
		TrumpSuit:    g.TrumpSuit,
		TrumpCard:    g.TrumpCard,
		DeckCount:    len(g.Deck),
		DiscardCount: len(g.Discard),
		Table:        make([]engine.TablePair, len(g.Table)),
		AttackerID:   g.AttackerID,
		DefenderID:   g.DefenderID,
		RoundLimit:   g.RoundLimit,
		Passed:       make([]string, 0, len(g.Passed)),
		TakeDeclared: g.TakeDeclared,
		Phase:        g.Phase,
		Loser:        g.Loser,
		Allowed:      g.AllowedActions(playerID),
	}
	copy(gv.Table, g.Table)
	for _, id := range g.Order {
		if g.Passed[id] {
			gv.Passed = append(gv.Passed, id)
		}
	}
	gv.YourHand = append([]engine.Card{}, g.Hands[playerID]...)
	v.Game = gv
	return v
}
