// Package protocol defines the WebSocket wire format: the closed set of
// client frames, server frames and error codes. Frames are decoded once
// into a typed variant set at the boundary; nothing downstream dispatches
// on raw type strings.
package protocol

import (
	"encoding/json"

	"github.com/ke2zo/durak6/internal/engine"
)

// ClientMessage is the closed variant set of inbound frames.
type ClientMessage interface{ clientMessage() }

// Join authenticates the socket against a room.
type Join struct {
	SessionToken string
}

// Ready toggles the lobby ready flag.
type Ready struct {
	Ready bool
}

// Start begins the game; host only.
type Start struct{}

// Attack places a card as a new attack slot.
type Attack struct {
	Card engine.Card
}

// Defend covers the attack slot at AttackIndex.
type Defend struct {
	AttackIndex int
	Card        engine.Card
}

// Transfer re-assigns the defender role (perevodnoy).
type Transfer struct {
	Card engine.Card
}

// Take commits the defender to picking up the table.
type Take struct{}

// Beat ends a fully defended round.
type Beat struct{}

// Pass declares the attacker done adding.
type Pass struct{}

func (Join) clientMessage()     {}
func (Ready) clientMessage()    {}
func (Start) clientMessage()    {}
func (Attack) clientMessage()   {}
func (Defend) clientMessage()   {}
func (Transfer) clientMessage() {}
func (Take) clientMessage()     {}
func (Beat) clientMessage()     {}
func (Pass) clientMessage()     {}

// rawClientFrame is the transport shape before variant conversion.
type rawClientFrame struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken"`
	Ready        bool   `json:"ready"`
	Card         string `json:"card"`
	AttackIndex  int    `json:"attackIndex"`
}

// DecodeClient parses one inbound text frame. The returned code is empty
// on success; otherwise it is one of BAD_JSON, BAD_CARD, UNKNOWN_MSG.
func DecodeClient(data []byte) (ClientMessage, ErrorCode) {
	var raw rawClientFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, CodeBadJSON
	}
	switch raw.Type {
	case "JOIN":
		return Join{SessionToken: raw.SessionToken}, ""
	case "READY":
		return Ready{Ready: raw.Ready}, ""
	case "START":
		return Start{}, ""
	case "ATTACK":
		c, err := engine.ParseCard(raw.Card)
		if err != nil {
			return nil, CodeBadCard
		}
		return Attack{Card: c}, ""
	case "DEFEND":
		c, err := engine.ParseCard(raw.Card)
		if err != nil {
			return nil, CodeBadCard
		}
		return Defend{AttackIndex: raw.AttackIndex, Card: c}, ""
	case "TRANSFER":
		c, err := engine.ParseCard(raw.Card)
		if err != nil {
			return nil, CodeBadCard
		}
		return Transfer{Card: c}, ""
	case "TAKE":
		return Take{}, ""
	case "BEAT":
		return Beat{}, ""
	case "PASS":
		return Pass{}, ""
	default:
		return nil, CodeUnknownMsg
	}
}

// ServerFrame is one outbound frame. Exactly one payload field is set
// depending on Type.
type ServerFrame struct {
	Type string `json:"type"`

	State   any    `json:"state,omitempty"`   // STATE
	Message string `json:"message,omitempty"` // INFO

	Code   ErrorCode `json:"code,omitempty"`   // ERROR
	Detail string    `json:"detail,omitempty"` // ERROR, optional
}

// StateFrame wraps a per-player view.
func StateFrame(view any) ServerFrame {
	return ServerFrame{Type: "STATE", State: view}
}

// InfoFrame carries a human-readable notice.
func InfoFrame(message string) ServerFrame {
	return ServerFrame{Type: "INFO", Message: message}
}

// ErrorFrame carries a stable code and optional free-form detail.
func ErrorFrame(code ErrorCode, detail string) ServerFrame {
	return ServerFrame{Type: "ERROR", Code: code, Detail: detail}
}

// Encode renders the frame as a single JSON text message.
func (f ServerFrame) Encode() []byte {
	b, err := json.Marshal(f)
	if err != nil {
		// Frames are built from plain data types; a marshal failure is a
		// programming error.
		panic(err)
	}
	return b
}
