package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrRoomNotFound means no live actor and no persisted snapshot exist.
var ErrRoomNotFound = errors.New("game: room not found")

// ErrRoomExists rejects a second initialisation under the same id.
var ErrRoomExists = errors.New("game: room already exists")

const (
	evictInterval = time.Minute
	maxIdle       = 30 * time.Minute
)

// Manager is the registry of live room actors. Rooms not in memory are
// rehydrated from the snapshot store on demand; rooms idle for half an
// hour are stopped and fall back to their persisted form.
type Manager struct {
	store SnapshotStore
	log   *logrus.Entry

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewManager wires a registry over the snapshot store.
func NewManager(store SnapshotStore, log *logrus.Entry) *Manager {
	return &Manager{
		store: store,
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// CreateRoom makes a fresh room with a generated id and the host as the
// only member.
func (m *Manager) CreateRoom(ctx context.Context, cfg RoomConfig, host LobbyPlayer) (*Room, error) {
	id := uuid.NewString()
	if err := m.CreateRoomWithID(ctx, id, cfg, []LobbyPlayer{host}); err != nil {
		return nil, err
	}
	return m.Get(ctx, id)
}

// CreateRoomWithID initialises a room under a caller-chosen id with the
// members pre-seated; the matchmaker uses it to bind matched groups.
func (m *Manager) CreateRoomWithID(ctx context.Context, roomID string, cfg RoomConfig, members []LobbyPlayer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; ok {
		return ErrRoomExists
	}
	if _, err := m.store.LoadRoom(ctx, roomID); err == nil {
		return ErrRoomExists
	}
	room, err := NewRoom(ctx, roomID, cfg, members, m.store, m.log)
	if err != nil {
		return err
	}
	m.rooms[roomID] = room
	return nil
}

// Get returns the live actor for roomID, rehydrating it from the store
// when necessary.
func (m *Manager) Get(ctx context.Context, roomID string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[roomID]; ok {
		return room, nil
	}
	data, err := m.store.LoadRoom(ctx, roomID)
	if err != nil {
		return nil, ErrRoomNotFound
	}
	room, err := Rehydrate(data, m.store, m.log)
	if err != nil {
		return nil, err
	}
	m.rooms[roomID] = room
	return room, nil
}

// Run drives the idle eviction loop until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.evictIdle(maxIdle)
		}
	}
}

func (m *Manager) evictIdle(idle time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, room := range m.rooms {
		if !room.IdleFor(idle) {
			continue
		}
		// Every mutation was persisted synchronously, so the snapshot is
		// already current. Stopping without a final write, while the id is
		// still registered, keeps the dying actor from racing a
		// rehydrated successor on the same key.
		room.Stop(false)
		delete(m.rooms, id)
		m.log.WithField("roomId", id).Info("evicted idle room")
	}
}

// Shutdown stops every live actor, persisting final snapshots.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for id, room := range m.rooms {
		rooms = append(rooms, room)
		delete(m.rooms, id)
	}
	m.mu.Unlock()
	for _, room := range rooms {
		room.Stop(true)
	}
}
