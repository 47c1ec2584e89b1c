package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ke2zo/durak6/internal/engine"
	"github.com/ke2zo/durak6/internal/protocol"
)

// SnapshotStore persists room snapshots. The redis store satisfies it in
// production; tests plug in fakes.
type SnapshotStore interface {
	SaveRoom(ctx context.Context, roomID string, data []byte) error
	LoadRoom(ctx context.Context, roomID string) ([]byte, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// Socket is one attached client connection. The actor is the only writer;
// the transport layer only reads from the underlying connection.
type Socket interface {
	Send(ctx context.Context, data []byte) error
	Close(code websocket.StatusCode, reason string)
}

// Attach errors, mapped to wire codes by the transport layer.
var (
	ErrRoomFull      = errors.New("game: room full")
	ErrNotInGame     = errors.New("game: not a player in this game")
	ErrRoomClosed    = errors.New("game: room closed")
	ErrRoomPoisoned  = errors.New("game: room poisoned")
	ErrPersistFailed = errors.New("game: snapshot write failed")
)

// sendTimeout bounds one outbound socket write.
const sendTimeout = 5 * time.Second

type cmdKind int

const (
	cmdAttach cmdKind = iota
	cmdDetach
	cmdFrame
	cmdStop
)

type command struct {
	kind     cmdKind
	playerID string
	name     string
	sock     Socket
	data     []byte
	persist  bool
	reply    chan error
}

// Room is one live room actor. All fields below the channel are owned by
// the run loop; external access goes through commands.
type Room struct {
	store SnapshotStore
	log   *logrus.Entry

	events chan command
	done   chan struct{}

	meta     RoomMeta
	lobby    []LobbyPlayer
	phase    RoomPhase
	game     *engine.GameState
	sockets  map[string]Socket
	poisoned bool

	idleMu     sync.Mutex
	lastActive time.Time
	attached   int
}

// NewRoom creates a room actor in the lobby phase with the given members
// already seated; the first member is the host. It persists the initial
// snapshot before starting the loop.
func NewRoom(ctx context.Context, id string, cfg RoomConfig, members []LobbyPlayer, store SnapshotStore, log *logrus.Entry) (*Room, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(members) == 0 || len(members) > cfg.MaxPlayers {
		return nil, fmt.Errorf("game: %d members for a %d-player room", len(members), cfg.MaxPlayers)
	}
	r := &Room{
		store: store,
		log:   log.WithField("roomId", id),
		meta: RoomMeta{
			RoomID:    id,
			HostID:    members[0].ID,
			Config:    cfg,
			CreatedAt: time.Now().UTC(),
		},
		lobby:      append([]LobbyPlayer(nil), members...),
		phase:      PhaseLobby,
		events:     make(chan command, 32),
		done:       make(chan struct{}),
		sockets:    make(map[string]Socket),
		lastActive: time.Now(),
	}
	for i := range r.lobby {
		r.lobby[i].Connected = false
	}
	if err := store.SaveRoom(ctx, id, r.snapshotBytes()); err != nil {
		return nil, err
	}
	go r.run()
	return r, nil
}

// Rehydrate rebuilds a room actor from a persisted snapshot. All members
// come back disconnected; sockets re-attach as players rejoin.
func Rehydrate(data []byte, store SnapshotStore, log *logrus.Entry) (*Room, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("game: decode snapshot: %w", err)
	}
	r := &Room{
		store:      store,
		log:        log.WithField("roomId", snap.Meta.RoomID),
		meta:       snap.Meta,
		lobby:      snap.LobbyPlayers,
		phase:      snap.Phase,
		game:       snap.Game,
		events:     make(chan command, 32),
		done:       make(chan struct{}),
		sockets:    make(map[string]Socket),
		lastActive: time.Now(),
	}
	for i := range r.lobby {
		r.lobby[i].Connected = false
	}
	go r.run()
	return r, nil
}

// ID returns the room id.
func (r *Room) ID() string { return r.meta.RoomID }

// Attach registers a socket for playerID, replacing any previous one. In
// the lobby phase unknown players join as new members while space lasts;
// once the game has started only seated players may attach.
func (r *Room) Attach(ctx context.Context, playerID, displayName string, sock Socket) error {
	return r.send(ctx, command{
		kind:     cmdAttach,
		playerID: playerID,
		name:     displayName,
		sock:     sock,
		reply:    make(chan error, 1),
	})
}

// Detach drops the socket if it is still the current one for playerID.
// Called by the transport layer when the read side ends.
func (r *Room) Detach(playerID string, sock Socket) {
	_ = r.trySend(command{kind: cmdDetach, playerID: playerID, sock: sock})
}

// HandleFrame enqueues one raw inbound frame. Decoding and all error
// replies happen inside the actor so per-socket ordering holds.
func (r *Room) HandleFrame(playerID string, sock Socket, data []byte) {
	_ = r.trySend(command{kind: cmdFrame, playerID: playerID, sock: sock, data: data})
}

// Stop shuts the actor down, optionally persisting a final snapshot, and
// closes every attached socket. Safe to call more than once.
func (r *Room) Stop(persist bool) {
	_ = r.trySend(command{kind: cmdStop, persist: persist})
	<-r.done
}

// IdleFor reports whether the room has had no attached sockets and no
// traffic for at least d. The manager uses it to evict stale actors.
func (r *Room) IdleFor(d time.Duration) bool {
	r.idleMu.Lock()
	defer r.idleMu.Unlock()
	return r.attached == 0 && time.Since(r.lastActive) >= d
}

func (r *Room) send(ctx context.Context, cmd command) error {
	select {
	case r.events <- cmd:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) trySend(cmd command) error {
	select {
	case r.events <- cmd:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

func (r *Room) run() {
	for {
		select {
		case cmd := <-r.events:
			r.touch()
			switch cmd.kind {
			case cmdAttach:
				cmd.reply <- r.handleAttach(cmd)
			case cmdDetach:
				r.handleDetach(cmd)
			case cmdFrame:
				r.handleFrame(cmd)
			case cmdStop:
				r.shutdown(cmd.persist)
				return
			}
		case <-r.done:
			return
		}
	}
}

func (r *Room) touch() {
	r.idleMu.Lock()
	r.lastActive = time.Now()
	r.attached = len(r.sockets)
	r.idleMu.Unlock()
}

func (r *Room) memberIndex(playerID string) int {
	for i, p := range r.lobby {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (r *Room) handleAttach(cmd command) error {
	if r.poisoned {
		return ErrRoomPoisoned
	}
	idx := r.memberIndex(cmd.playerID)
	if idx < 0 {
		if r.phase != PhaseLobby {
			return ErrNotInGame
		}
		if len(r.lobby) >= r.meta.Config.MaxPlayers {
			return ErrRoomFull
		}
		r.lobby = append(r.lobby, LobbyPlayer{ID: cmd.playerID, DisplayName: cmd.name})
		idx = len(r.lobby) - 1
		// Membership is durable state: the seat exists only once the
		// store has it.
		if err := r.persist(); err != nil {
			r.lobby = r.lobby[:idx]
			return ErrPersistFailed
		}
		r.broadcastInfo(fmt.Sprintf("%s joined", cmd.name))
	}

	if old, ok := r.sockets[cmd.playerID]; ok {
		old.Close(websocket.StatusPolicyViolation, "replaced")
	}
	r.sockets[cmd.playerID] = cmd.sock
	r.lobby[idx].Connected = true
	r.touch()

	// Connectivity flags are transient; a reconnect of an existing member
	// is not refused because the store hiccuped.
	r.persistQuiet()
	r.broadcast()
	return nil
}

func (r *Room) handleDetach(cmd command) {
	cur, ok := r.sockets[cmd.playerID]
	if !ok || cur != cmd.sock {
		return
	}
	delete(r.sockets, cmd.playerID)
	if idx := r.memberIndex(cmd.playerID); idx >= 0 {
		r.lobby[idx].Connected = false
		r.broadcastInfo(fmt.Sprintf("%s disconnected", r.lobby[idx].DisplayName))
	}
	r.touch()
	r.persistQuiet()
	r.broadcast()
}

func (r *Room) handleFrame(cmd command) {
	sock := cmd.sock
	if cur, ok := r.sockets[cmd.playerID]; !ok || cur != sock {
		// A frame from a replaced or never-attached socket.
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeNotJoined, ""))
		return
	}
	if r.poisoned {
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeRoomNotReady, "room is out of service"))
		return
	}

	msg, code := protocol.DecodeClient(cmd.data)
	if code != "" {
		r.sendFrame(sock, protocol.ErrorFrame(code, ""))
		return
	}

	switch m := msg.(type) {
	case protocol.Join:
		// Already attached; treat a repeat JOIN as a state refresh.
		r.sendFrame(sock, protocol.StateFrame(r.viewFor(cmd.playerID)))
	case protocol.Ready:
		r.handleReady(cmd.playerID, sock, m.Ready)
	case protocol.Start:
		r.handleStart(cmd.playerID, sock)
	default:
		r.handleAction(cmd.playerID, sock, msg)
	}
}

func (r *Room) handleReady(playerID string, sock Socket, ready bool) {
	if r.phase != PhaseLobby {
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeRoomNotReady, "game already started"))
		return
	}
	idx := r.memberIndex(playerID)
	prev := r.lobby[idx].Ready
	if prev == ready {
		r.broadcast()
		return
	}
	r.lobby[idx].Ready = ready
	if err := r.persist(); err != nil {
		r.lobby[idx].Ready = prev
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodePersistFailed, ""))
		return
	}
	r.broadcast()
}

func (r *Room) handleStart(playerID string, sock Socket) {
	if r.phase != PhaseLobby {
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeRoomNotReady, "game already started"))
		return
	}
	if playerID != r.meta.HostID {
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeRoomNotReady, "only the host can start"))
		return
	}
	if len(r.lobby) < 2 {
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeRoomNotReady, "need at least 2 players"))
		return
	}
	for _, p := range r.lobby {
		if !p.Ready {
			r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeRoomNotReady, "not all players are ready"))
			return
		}
	}

	order := make([]string, len(r.lobby))
	for i, p := range r.lobby {
		order[i] = p.ID
	}
	g, err := engine.NewGame(r.meta.Config.Mode, r.meta.Config.DeckSize, order, engine.CryptoSeed())
	if err != nil {
		// Config and member count were validated up front.
		r.log.WithError(err).Error("start rejected by engine")
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeRoomNotReady, ""))
		return
	}
	g.TakerSkipsRefill = r.meta.Config.TakerSkipsRefill

	r.game = g
	r.phase = PhasePlaying
	if err := r.persist(); err != nil {
		r.game = nil
		r.phase = PhaseLobby
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodePersistFailed, ""))
		return
	}
	r.log.WithFields(logrus.Fields{
		"players": len(order),
		"mode":    r.meta.Config.Mode,
	}).Info("game started")
	r.broadcast()
}

// handleAction routes one in-game action through the engine with a
// rollback snapshot around persistence.
func (r *Room) handleAction(playerID string, sock Socket, msg protocol.ClientMessage) {
	switch r.phase {
	case PhaseLobby:
		r.sendFrame(sock, protocol.ErrorFrame(protocol.FromRule(engine.CodeGameNotPlaying), ""))
		return
	case PhaseFinished:
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeGameFinished, ""))
		return
	}
	if !contains(r.game.Order, playerID) {
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeNotInGame, ""))
		return
	}

	rollback := r.game.Clone()

	var err error
	switch m := msg.(type) {
	case protocol.Attack:
		err = r.game.Attack(playerID, m.Card)
	case protocol.Defend:
		err = r.game.Defend(playerID, m.AttackIndex, m.Card)
	case protocol.Transfer:
		err = r.game.Transfer(playerID, m.Card)
	case protocol.Take:
		err = r.game.Take(playerID)
	case protocol.Beat:
		err = r.game.Beat(playerID)
	case protocol.Pass:
		err = r.game.Pass(playerID)
	default:
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeUnknownMsg, ""))
		return
	}
	if err != nil {
		var rule *engine.RuleError
		if errors.As(err, &rule) {
			r.sendFrame(sock, protocol.ErrorFrame(protocol.FromRule(rule.Code), ""))
			return
		}
		r.log.WithError(err).Error("engine rejected action")
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeUnknownMsg, ""))
		return
	}

	if err := r.game.CheckInvariants(); err != nil {
		r.poison(err)
		return
	}

	prevPhase := r.phase
	if r.game.Phase == engine.PhaseFinished {
		r.phase = PhaseFinished
	}
	if err := r.persist(); err != nil {
		r.game = rollback
		r.phase = prevPhase
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodePersistFailed, ""))
		return
	}
	r.broadcast()
	if r.phase == PhaseFinished {
		if r.game.Loser == "" {
			r.broadcastInfo("game over: draw")
		} else {
			r.broadcastInfo(fmt.Sprintf("game over: %s is the durak", r.displayName(r.game.Loser)))
		}
	}
}

// poison takes the room out of service after a post-mutation invariant
// failure. The persisted snapshot keeps the last good state.
func (r *Room) poison(cause error) {
	r.poisoned = true
	r.log.WithError(cause).Error("state invariant violated, room poisoned")
	for _, sock := range r.sockets {
		r.sendFrame(sock, protocol.ErrorFrame(protocol.CodeRoomNotReady, "room is out of service"))
	}
}

func (r *Room) displayName(playerID string) string {
	if idx := r.memberIndex(playerID); idx >= 0 {
		return r.lobby[idx].DisplayName
	}
	return playerID
}

func (r *Room) viewFor(playerID string) View {
	return BuildView(r.meta, r.lobby, r.phase, r.game, playerID)
}

func (r *Room) snapshotBytes() []byte {
	b, err := json.Marshal(Snapshot{
		Meta:         r.meta,
		LobbyPlayers: r.lobby,
		Phase:        r.phase,
		Game:         r.game,
	})
	if err != nil {
		panic(err)
	}
	return b
}

func (r *Room) persist() error {
	err := r.store.SaveRoom(context.Background(), r.meta.RoomID, r.snapshotBytes())
	if err != nil {
		r.log.WithError(err).Error("persist failed")
	}
	return err
}

func (r *Room) persistQuiet() {
	_ = r.persist()
}

// broadcast sends each attached player their tailored view.
func (r *Room) broadcast() {
	for id, sock := range r.sockets {
		r.sendFrame(sock, protocol.StateFrame(r.viewFor(id)))
	}
}

func (r *Room) broadcastInfo(message string) {
	frame := protocol.InfoFrame(message)
	for _, sock := range r.sockets {
		r.sendFrame(sock, frame)
	}
}

// sendFrame writes one frame with a deadline, retrying once on failure.
// A socket that fails twice is left to its read pump to detach.
func (r *Room) sendFrame(sock Socket, frame protocol.ServerFrame) {
	data := frame.Encode()
	for attempt := 0; attempt < 2; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := sock.Send(ctx, data)
		cancel()
		if err == nil {
			return
		}
		if attempt == 1 {
			r.log.WithError(err).Warn("dropping undeliverable frame")
		}
	}
}

func (r *Room) shutdown(persist bool) {
	if persist && !r.poisoned {
		r.persistQuiet()
	}
	for _, sock := range r.sockets {
		sock.Close(websocket.StatusGoingAway, "room closed")
	}
	r.sockets = map[string]Socket{}
	r.touch()
	close(r.done)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
