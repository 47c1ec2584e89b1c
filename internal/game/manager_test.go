package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreateAndGet(t *testing.T) {
	m := NewManager(newFakeStore(), testLog())
	defer m.Shutdown()

	room, err := m.CreateRoom(context.Background(), lobbyConfig(), LobbyPlayer{ID: "host", DisplayName: "A"})
	require.NoError(t, err)

	got, err := m.Get(context.Background(), room.ID())
	require.NoError(t, err)
	assert.Same(t, room, got)

	_, err = m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestManagerRejectsDuplicateID(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, testLog())
	defer m.Shutdown()

	members := []LobbyPlayer{{ID: "a", DisplayName: "A"}, {ID: "b", DisplayName: "B"}}
	require.NoError(t, m.CreateRoomWithID(context.Background(), "r1", lobbyConfig(), members))
	err := m.CreateRoomWithID(context.Background(), "r1", lobbyConfig(), members)
	assert.ErrorIs(t, err, ErrRoomExists)
}

func TestManagerDuplicateAcrossRestart(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, testLog())
	members := []LobbyPlayer{{ID: "a", DisplayName: "A"}}
	require.NoError(t, m.CreateRoomWithID(context.Background(), "r1", lobbyConfig(), members))
	m.Shutdown()

	// A fresh registry still sees the persisted snapshot.
	m2 := NewManager(store, testLog())
	defer m2.Shutdown()
	err := m2.CreateRoomWithID(context.Background(), "r1", lobbyConfig(), members)
	assert.ErrorIs(t, err, ErrRoomExists)
}

func TestManagerEvictsIdleAndRehydrates(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, testLog())
	defer m.Shutdown()

	room, err := m.CreateRoom(context.Background(), lobbyConfig(), LobbyPlayer{ID: "host", DisplayName: "A"})
	require.NoError(t, err)

	m.evictIdle(0)

	// The evicted actor is stopped for good.
	err = room.Attach(context.Background(), "host", "A", newFakeSocket())
	assert.ErrorIs(t, err, ErrRoomClosed)

	// Get brings a fresh actor back from the snapshot.
	got, err := m.Get(context.Background(), room.ID())
	require.NoError(t, err)
	assert.NotSame(t, room, got)

	sock := newFakeSocket()
	require.NoError(t, got.Attach(context.Background(), "host", "A", sock))
	v := recvView(t, sock)
	assert.Equal(t, room.ID(), v.RoomID)
}

func TestEvictionNeverOverwritesSuccessor(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, testLog())
	defer m.Shutdown()

	require.NoError(t, m.CreateRoomWithID(context.Background(), "r1", lobbyConfig(),
		[]LobbyPlayer{{ID: "a", DisplayName: "A"}}))

	// Eviction writes nothing: the snapshot was kept current on every
	// mutation, so there is no final write to race a successor with.
	before := store.saveCount()
	m.evictIdle(0)
	assert.Equal(t, before, store.saveCount())

	got, err := m.Get(context.Background(), "r1")
	require.NoError(t, err)

	sock := newFakeSocket()
	require.NoError(t, got.Attach(context.Background(), "a", "A", sock))
	recvView(t, sock)
	send(got, "a", sock, `{"type":"READY","ready":true}`)
	recvViewWhere(t, sock, func(v View) bool { return v.Players[0].Ready })

	// The successor's write is the durable state.
	assert.True(t, store.snapshot(t, "r1").LobbyPlayers[0].Ready)
}

func TestManagerKeepsBusyRooms(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, testLog())
	defer m.Shutdown()

	room, err := m.CreateRoom(context.Background(), lobbyConfig(), LobbyPlayer{ID: "host", DisplayName: "A"})
	require.NoError(t, err)

	sock := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), "host", "A", sock))
	recvView(t, sock)

	// A room with an attached socket never counts as idle.
	m.evictIdle(0)
	got, err := m.Get(context.Background(), room.ID())
	require.NoError(t, err)
	assert.Same(t, room, got)
}
