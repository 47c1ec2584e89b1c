// Package game hosts the room actors. Each live room is one goroutine
// that owns the room state outright: transport handlers push events onto
// its channel, the actor validates them against the rules engine,
// persists the outcome and fans tailored views back out to the attached
// sockets. Nothing else mutates a room.
package game

import (
	"fmt"
	"time"

	"github.com/ke2zo/durak6/internal/engine"
)

// RoomConfig fixes a room's variant at creation time.
type RoomConfig struct {
	Mode       engine.Mode `json:"mode"`
	DeckSize   int         `json:"deckSize"`
	MaxPlayers int         `json:"maxPlayers"`

	// TakerSkipsRefill selects the house variant where the taking
	// defender does not draw back up after a take.
	TakerSkipsRefill bool `json:"takerSkipsRefill,omitempty"`
}

// Validate rejects configurations outside the supported matrix.
func (c RoomConfig) Validate() error {
	if c.Mode != engine.ModePodkidnoy && c.Mode != engine.ModePerevodnoy {
		return fmt.Errorf("game: unknown mode %q", c.Mode)
	}
	if c.DeckSize != 24 && c.DeckSize != 36 {
		return fmt.Errorf("game: deck size %d not in {24,36}", c.DeckSize)
	}
	if c.MaxPlayers < 2 || c.MaxPlayers > 4 {
		return fmt.Errorf("game: max players %d not in [2..4]", c.MaxPlayers)
	}
	return nil
}

// Key is the matchmaking bucket: players queue per exact configuration.
func (c RoomConfig) Key() string {
	return fmt.Sprintf("%s/%d/%d", c.Mode, c.DeckSize, c.MaxPlayers)
}

// LobbyPlayer is one room member before and during the game.
type LobbyPlayer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Connected   bool   `json:"connected"`
	Ready       bool   `json:"ready"`
}

// RoomPhase is the room lifecycle phase, a superset of the engine phase.
type RoomPhase string

const (
	PhaseLobby    RoomPhase = "lobby"
	PhasePlaying  RoomPhase = "playing"
	PhaseFinished RoomPhase = "finished"
)

// RoomMeta is the immutable part of a room snapshot.
type RoomMeta struct {
	RoomID    string     `json:"roomId"`
	HostID    string     `json:"hostId"`
	Config    RoomConfig `json:"config"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Snapshot is the persisted layout under room/{roomId}: atomic whole
// value replace on every mutation.
type Snapshot struct {
	Meta         RoomMeta          `json:"meta"`
	LobbyPlayers []LobbyPlayer     `json:"lobbyPlayers"`
	Phase        RoomPhase         `json:"phase"`
	Game         *engine.GameState `json:"game,omitempty"`
}
