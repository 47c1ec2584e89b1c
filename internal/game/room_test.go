package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ke2zo/durak6/internal/engine"
)

type fakeStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  bool
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) SaveRoom(_ context.Context, roomID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("store down")
	}
	s.saves++
	s.data[roomID] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStore) LoadRoom(_ context.Context, roomID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[roomID]
	if !ok {
		return nil, fmt.Errorf("no snapshot")
	}
	return data, nil
}

func (s *fakeStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, roomID)
	return nil
}

func (s *fakeStore) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *fakeStore) snapshot(t *testing.T, roomID string) Snapshot {
	t.Helper()
	data, err := s.LoadRoom(context.Background(), roomID)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

type fakeSocket struct {
	frames chan []byte

	mu          sync.Mutex
	closed      bool
	closeReason string
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{frames: make(chan []byte, 64)}
}

func (s *fakeSocket) Send(_ context.Context, data []byte) error {
	s.frames <- append([]byte(nil), data...)
	return nil
}

func (s *fakeSocket) Close(_ websocket.StatusCode, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeReason = reason
}

func (s *fakeSocket) closedWith() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeReason
}

type testFrame struct {
	Type    string          `json:"type"`
	State   json.RawMessage `json:"state"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Detail  string          `json:"detail"`
}

// recvFrame reads frames off the socket until one of the wanted type
// arrives.
func recvFrame(t *testing.T, s *fakeSocket, wantType string) testFrame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-s.frames:
			var f testFrame
			require.NoError(t, json.Unmarshal(data, &f))
			if f.Type == wantType {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s frame within deadline", wantType)
		}
	}
}

func recvView(t *testing.T, s *fakeSocket) View {
	t.Helper()
	f := recvFrame(t, s, "STATE")
	var v View
	require.NoError(t, json.Unmarshal(f.State, &v))
	return v
}

// recvViewWhere skips stale broadcasts until a view matching pred
// arrives.
func recvViewWhere(t *testing.T, s *fakeSocket, pred func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.False(t, time.Now().After(deadline), "no matching STATE frame within deadline")
		v := recvView(t, s)
		if pred(v) {
			return v
		}
	}
}

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func lobbyConfig() RoomConfig {
	return RoomConfig{Mode: engine.ModePodkidnoy, DeckSize: 24, MaxPlayers: 2}
}

func send(r *Room, playerID string, s *fakeSocket, raw string) {
	r.HandleFrame(playerID, s, []byte(raw))
}

func TestRoomConfigValidate(t *testing.T) {
	assert.NoError(t, lobbyConfig().Validate())
	assert.Error(t, RoomConfig{Mode: "poker", DeckSize: 24, MaxPlayers: 2}.Validate())
	assert.Error(t, RoomConfig{Mode: engine.ModePodkidnoy, DeckSize: 52, MaxPlayers: 2}.Validate())
	assert.Error(t, RoomConfig{Mode: engine.ModePodkidnoy, DeckSize: 36, MaxPlayers: 5}.Validate())
}

func TestLobbyReadyAndStart(t *testing.T) {
	store := newFakeStore()
	room, err := NewRoom(context.Background(), "r1", lobbyConfig(),
		[]LobbyPlayer{{ID: "host", DisplayName: "Анна"}}, store, testLog())
	require.NoError(t, err)
	defer room.Stop(false)

	hostSock := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), "host", "Анна", hostSock))
	v := recvView(t, hostSock)
	assert.Equal(t, PhaseLobby, v.Phase)
	assert.Equal(t, "host", v.HostID)
	require.Len(t, v.Players, 1)
	assert.True(t, v.Players[0].Connected)

	guestSock := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), "guest", "Борис", guestSock))
	v = recvView(t, guestSock)
	require.Len(t, v.Players, 2)

	// Start refused until everyone is ready, and only for the host.
	send(room, "host", hostSock, `{"type":"START"}`)
	f := recvFrame(t, hostSock, "ERROR")
	assert.Equal(t, "ROOM_NOT_READY", f.Code)

	send(room, "host", hostSock, `{"type":"READY","ready":true}`)
	recvViewWhere(t, hostSock, func(v View) bool { return v.Players[0].Ready })
	send(room, "guest", guestSock, `{"type":"READY","ready":true}`)
	recvViewWhere(t, guestSock, func(v View) bool { return v.Players[1].Ready })

	send(room, "guest", guestSock, `{"type":"START"}`)
	f = recvFrame(t, guestSock, "ERROR")
	assert.Equal(t, "ROOM_NOT_READY", f.Code)

	send(room, "host", hostSock, `{"type":"START"}`)
	v = recvViewWhere(t, hostSock, func(v View) bool { return v.Game != nil })
	assert.Equal(t, PhasePlaying, v.Phase)
	assert.Len(t, v.Game.YourHand, 6)
	assert.Equal(t, "host", v.You)

	gv := recvViewWhere(t, guestSock, func(v View) bool { return v.Game != nil })
	assert.Len(t, gv.Game.YourHand, 6)
	assert.NotEqual(t, v.Game.YourHand, gv.Game.YourHand)
	for _, p := range gv.Players {
		assert.Equal(t, 6, p.HandCount)
	}
}

func TestAttachNewMemberRollsBackOnPersistFailure(t *testing.T) {
	store := newFakeStore()
	room, err := NewRoom(context.Background(), "r1", lobbyConfig(),
		[]LobbyPlayer{{ID: "host", DisplayName: "A"}}, store, testLog())
	require.NoError(t, err)
	defer room.Stop(false)

	hostSock := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), "host", "A", hostSock))
	recvView(t, hostSock)

	// A seat the store never recorded must not exist in memory either.
	store.setFail(true)
	err = room.Attach(context.Background(), "guest", "B", newFakeSocket())
	assert.ErrorIs(t, err, ErrPersistFailed)

	store.setFail(false)
	send(room, "host", hostSock, `{"type":"JOIN"}`)
	v := recvView(t, hostSock)
	assert.Len(t, v.Players, 1)
	assert.Len(t, store.snapshot(t, "r1").LobbyPlayers, 1)

	// Once the store recovers the same player joins cleanly.
	guestSock := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), "guest", "B", guestSock))
	v = recvView(t, guestSock)
	assert.Len(t, v.Players, 2)
	assert.Len(t, store.snapshot(t, "r1").LobbyPlayers, 2)
}

func TestRoomFullAndLateJoin(t *testing.T) {
	store := newFakeStore()
	room, err := NewRoom(context.Background(), "r1", lobbyConfig(),
		[]LobbyPlayer{{ID: "a", DisplayName: "A"}, {ID: "b", DisplayName: "B"}}, store, testLog())
	require.NoError(t, err)
	defer room.Stop(false)

	sockA := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), "a", "A", sockA))
	err = room.Attach(context.Background(), "c", "C", newFakeSocket())
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestAttachReplacesSocket(t *testing.T) {
	store := newFakeStore()
	room, err := NewRoom(context.Background(), "r1", lobbyConfig(),
		[]LobbyPlayer{{ID: "a", DisplayName: "A"}}, store, testLog())
	require.NoError(t, err)
	defer room.Stop(false)

	first := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), "a", "A", first))
	recvView(t, first)

	second := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), "a", "A", second))
	recvView(t, second)

	closed, reason := first.closedWith()
	assert.True(t, closed)
	assert.Equal(t, "replaced", reason)

	// Frames from the replaced socket bounce without touching state.
	send(room, "a", first, `{"type":"READY","ready":true}`)
	f := recvFrame(t, first, "ERROR")
	assert.Equal(t, "NOT_JOINED", f.Code)

	send(room, "a", second, `{"type":"JOIN"}`)
	v := recvView(t, second)
	assert.False(t, v.Players[0].Ready)
}

// playingRoom rehydrates a deterministic two-player game in progress.
func playingRoom(t *testing.T, store *fakeStore, takerSkips bool) (*Room, *engine.GameState) {
	t.Helper()
	g, err := engine.NewGame(engine.ModePodkidnoy, 24, []string{"a", "b"}, 7)
	require.NoError(t, err)
	g.TakerSkipsRefill = takerSkips
	snap := Snapshot{
		Meta: RoomMeta{
			RoomID: "r1",
			HostID: "a",
			Config: RoomConfig{Mode: engine.ModePodkidnoy, DeckSize: 24, MaxPlayers: 2, TakerSkipsRefill: takerSkips},
		},
		LobbyPlayers: []LobbyPlayer{
			{ID: "a", DisplayName: "A", Ready: true},
			{ID: "b", DisplayName: "B", Ready: true},
		},
		Phase: PhasePlaying,
		Game:  g,
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	room, err := Rehydrate(data, store, testLog())
	require.NoError(t, err)
	return room, g
}

func TestGameRoundOverRoom(t *testing.T) {
	store := newFakeStore()
	room, g := playingRoom(t, store, false)
	defer room.Stop(false)

	socks := map[string]*fakeSocket{"a": newFakeSocket(), "b": newFakeSocket()}
	for id, s := range socks {
		require.NoError(t, room.Attach(context.Background(), id, id, s))
		recvView(t, s)
	}

	attacker, defender := g.AttackerID, g.DefenderID
	card := g.Hands[attacker][0]

	send(room, attacker, socks[attacker], fmt.Sprintf(`{"type":"ATTACK","card":"%s"}`, card))
	v := recvViewWhere(t, socks[defender], func(v View) bool { return len(v.Game.Table) == 1 })
	assert.Equal(t, card, v.Game.Table[0].Attack)
	assert.True(t, v.Game.Allowed.Take)

	send(room, defender, socks[defender], `{"type":"TAKE"}`)
	v = recvViewWhere(t, socks[attacker], func(v View) bool { return v.Game.TakeDeclared })

	send(room, attacker, socks[attacker], `{"type":"PASS"}`)
	v = recvViewWhere(t, socks[attacker], func(v View) bool { return len(v.Game.Table) == 0 && !v.Game.TakeDeclared })
	// The taker is skipped for the next round in a two-player game.
	assert.Equal(t, attacker, v.Game.AttackerID)
	assert.Equal(t, defender, v.Game.DefenderID)
	assert.Equal(t, 7, v.Players[indexOf(v.Players, defender)].HandCount)
}

func indexOf(players []ViewPlayer, id string) int {
	for i, p := range players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func TestRuleRejectionKeepsState(t *testing.T) {
	store := newFakeStore()
	room, g := playingRoom(t, store, false)
	defer room.Stop(false)

	sock := newFakeSocket()
	defenderSock := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), g.AttackerID, "A", sock))
	require.NoError(t, room.Attach(context.Background(), g.DefenderID, "B", defenderSock))
	recvView(t, sock)

	// Defender opening the round is illegal.
	card := g.Hands[g.DefenderID][0]
	send(room, g.DefenderID, defenderSock, fmt.Sprintf(`{"type":"ATTACK","card":"%s"}`, card))
	f := recvFrame(t, defenderSock, "ERROR")
	assert.Equal(t, "DEFENDER_CANNOT_ATTACK", f.Code)

	send(room, g.AttackerID, sock, `{"type":"JOIN"}`)
	v := recvView(t, sock)
	assert.Empty(t, v.Game.Table)
}

func TestPersistFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	room, g := playingRoom(t, store, false)
	defer room.Stop(false)

	sock := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), g.AttackerID, "A", sock))
	recvView(t, sock)

	store.setFail(true)
	card := g.Hands[g.AttackerID][0]
	send(room, g.AttackerID, sock, fmt.Sprintf(`{"type":"ATTACK","card":"%s"}`, card))
	f := recvFrame(t, sock, "ERROR")
	assert.Equal(t, "PERSIST_FAILED", f.Code)

	store.setFail(false)
	send(room, g.AttackerID, sock, `{"type":"JOIN"}`)
	v := recvView(t, sock)
	assert.Empty(t, v.Game.Table)
	assert.Len(t, v.Game.YourHand, 6)

	// The action is still legal after the store recovers.
	send(room, g.AttackerID, sock, fmt.Sprintf(`{"type":"ATTACK","card":"%s"}`, card))
	v = recvView(t, sock)
	require.Len(t, v.Game.Table, 1)
}

func TestBadFramesGetCodes(t *testing.T) {
	store := newFakeStore()
	room, g := playingRoom(t, store, false)
	defer room.Stop(false)

	sock := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), g.AttackerID, "A", sock))
	recvView(t, sock)

	send(room, g.AttackerID, sock, `{not json`)
	assert.Equal(t, "BAD_JSON", recvFrame(t, sock, "ERROR").Code)

	send(room, g.AttackerID, sock, `{"type":"ATTACK","card":"Z9"}`)
	assert.Equal(t, "BAD_CARD", recvFrame(t, sock, "ERROR").Code)

	send(room, g.AttackerID, sock, `{"type":"DANCE"}`)
	assert.Equal(t, "UNKNOWN_MSG", recvFrame(t, sock, "ERROR").Code)

	send(room, g.AttackerID, sock, `{"type":"READY","ready":true}`)
	assert.Equal(t, "ROOM_NOT_READY", recvFrame(t, sock, "ERROR").Code)
}

func TestFinishedRoomRejectsActions(t *testing.T) {
	store := newFakeStore()
	room, g := playingRoom(t, store, false)
	defer room.Stop(false)

	sock := newFakeSocket()
	require.NoError(t, room.Attach(context.Background(), g.AttackerID, "A", sock))
	recvView(t, sock)

	// Force the room into the finished phase through a rehydrated snapshot
	// instead of playing a whole game out.
	room.Stop(true)

	data, err := store.LoadRoom(context.Background(), "r1")
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	snap.Phase = PhaseFinished
	snap.Game.Phase = engine.PhaseFinished
	snap.Game.Loser = g.DefenderID
	data, err = json.Marshal(snap)
	require.NoError(t, err)

	room2, err := Rehydrate(data, store, testLog())
	require.NoError(t, err)
	defer room2.Stop(false)

	sock2 := newFakeSocket()
	require.NoError(t, room2.Attach(context.Background(), g.AttackerID, "A", sock2))
	v := recvView(t, sock2)
	assert.Equal(t, PhaseFinished, v.Phase)
	assert.Equal(t, g.DefenderID, v.Game.Loser)

	send(room2, g.AttackerID, sock2, `{"type":"TAKE"}`)
	assert.Equal(t, "GAME_FINISHED", recvFrame(t, sock2, "ERROR").Code)
}

func TestRehydrateMembersDisconnected(t *testing.T) {
	store := newFakeStore()
	room, _ := playingRoom(t, store, false)
	room.Stop(true)

	data, err := store.LoadRoom(context.Background(), "r1")
	require.NoError(t, err)
	room2, err := Rehydrate(data, store, testLog())
	require.NoError(t, err)
	defer room2.Stop(false)

	sock := newFakeSocket()
	require.NoError(t, room2.Attach(context.Background(), "a", "A", sock))
	v := recvView(t, sock)
	require.Len(t, v.Players, 2)
	assert.True(t, v.Players[indexOf(v.Players, "a")].Connected)
	assert.False(t, v.Players[indexOf(v.Players, "b")].Connected)
	assert.Equal(t, PhasePlaying, v.Phase)
}

func TestAttachUnknownPlayerMidGame(t *testing.T) {
	store := newFakeStore()
	room, _ := playingRoom(t, store, false)
	defer room.Stop(false)

	err := room.Attach(context.Background(), "stranger", "X", newFakeSocket())
	assert.ErrorIs(t, err, ErrNotInGame)
}

func TestStoppedRoomRefusesAttach(t *testing.T) {
	store := newFakeStore()
	room, err := NewRoom(context.Background(), "r1", lobbyConfig(),
		[]LobbyPlayer{{ID: "a", DisplayName: "A"}}, store, testLog())
	require.NoError(t, err)
	room.Stop(true)

	err = room.Attach(context.Background(), "a", "A", newFakeSocket())
	assert.ErrorIs(t, err, ErrRoomClosed)
}
