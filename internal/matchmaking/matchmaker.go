// Package matchmaking pools players per exact room configuration and
// binds full groups into freshly created rooms.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ke2zo/durak6/internal/game"
)

// bindingTTL is how long a matched player is pointed at their room
// before the binding lapses and they may queue again.
const bindingTTL = 5 * time.Minute

// ErrMatchFailed means a full group was found but the room could not be
// created; the group is back at the head of its queue.
var ErrMatchFailed = errors.New("matchmaking: room creation failed")

// RoomCreator is the slice of the room manager the matchmaker needs.
type RoomCreator interface {
	CreateRoomWithID(ctx context.Context, roomID string, cfg game.RoomConfig, members []game.LobbyPlayer) error
}

// Status of one enqueue call.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusMatched Status = "matched"
)

// Result is the outcome of an enqueue: either the player waits, or a
// room id they are bound to.
type Result struct {
	Status Status `json:"status"`
	RoomID string `json:"roomId,omitempty"`
}

type entry struct {
	playerID    string
	displayName string
}

type binding struct {
	roomID  string
	expires time.Time
}

// Matchmaker holds FIFO queues keyed by room configuration. All methods
// are safe for concurrent use.
type Matchmaker struct {
	rooms RoomCreator
	log   *logrus.Entry
	now   func() time.Time

	mu       sync.Mutex
	queues   map[string][]entry
	bindings map[string]binding
}

// New wires a matchmaker over the room manager.
func New(rooms RoomCreator, log *logrus.Entry) *Matchmaker {
	return &Matchmaker{
		rooms:    rooms,
		log:      log,
		now:      time.Now,
		queues:   make(map[string][]entry),
		bindings: make(map[string]binding),
	}
}

// Enqueue adds the player to the queue for cfg. When the queue reaches
// the configured player count, the whole group is moved into a new room
// and each member is bound to it for five minutes. Re-enqueueing while
// queued is idempotent; re-enqueueing while bound returns the existing
// binding.
func (m *Matchmaker) Enqueue(ctx context.Context, playerID, displayName string, cfg game.RoomConfig) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.bindings[playerID]; ok {
		if m.now().Before(b.expires) {
			return Result{Status: StatusMatched, RoomID: b.roomID}, nil
		}
		delete(m.bindings, playerID)
	}

	key := cfg.Key()
	q := m.queues[key]
	for _, e := range q {
		if e.playerID == playerID {
			return Result{Status: StatusQueued}, nil
		}
	}
	q = append(q, entry{playerID: playerID, displayName: displayName})

	if len(q) < cfg.MaxPlayers {
		m.queues[key] = q
		return Result{Status: StatusQueued}, nil
	}

	group := q[:cfg.MaxPlayers]
	m.queues[key] = append([]entry(nil), q[cfg.MaxPlayers:]...)

	roomID := uuid.NewString()
	members := make([]game.LobbyPlayer, len(group))
	for i, e := range group {
		members[i] = game.LobbyPlayer{ID: e.playerID, DisplayName: e.displayName}
	}
	if err := m.rooms.CreateRoomWithID(ctx, roomID, cfg, members); err != nil {
		// Put the group back ahead of any later arrivals, in order.
		m.queues[key] = append(append([]entry(nil), group...), m.queues[key]...)
		m.log.WithError(err).Error("match found but room creation failed")
		return Result{}, fmt.Errorf("%w: %v", ErrMatchFailed, err)
	}

	expires := m.now().Add(bindingTTL)
	matched := false
	for _, e := range group {
		m.bindings[e.playerID] = binding{roomID: roomID, expires: expires}
		if e.playerID == playerID {
			matched = true
		}
	}
	m.log.WithFields(logrus.Fields{
		"roomId":  roomID,
		"players": len(group),
		"bucket":  key,
	}).Info("matched group into room")

	// After a failed match the restored group sits ahead of the caller,
	// so the group that just left may not include them.
	if !matched {
		return Result{Status: StatusQueued}, nil
	}
	return Result{Status: StatusMatched, RoomID: roomID}, nil
}

// Leave removes the player from their queue, if queued. Bindings are
// untouched; they lapse on their own.
func (m *Matchmaker) Leave(playerID string, cfg game.RoomConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cfg.Key()
	q := m.queues[key]
	for i, e := range q {
		if e.playerID == playerID {
			m.queues[key] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}
