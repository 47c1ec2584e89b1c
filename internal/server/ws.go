package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ke2zo/durak6/internal/auth"
	"github.com/ke2zo/durak6/internal/game"
	"github.com/ke2zo/durak6/internal/protocol"
)

// joinDeadline bounds the wait for the authenticating JOIN frame.
const joinDeadline = 15 * time.Second

// wsSocket adapts a websocket connection to the room actor's socket
// contract. After attach the actor is the only writer.
type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) Send(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsSocket) Close(code websocket.StatusCode, reason string) {
	_ = s.conn.Close(code, reason)
}

// handleWS upgrades the connection, authenticates the first JOIN frame
// and hands the socket to the room actor, then pumps inbound frames
// until the peer goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		writeError(w, http.StatusUpgradeRequired, "websocket upgrade required")
		return
	}
	roomID := r.PathValue("roomId")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("ws accept failed")
		return
	}
	sock := &wsSocket{conn: conn}

	joinCtx, cancel := context.WithTimeout(r.Context(), joinDeadline)
	defer cancel()
	_, data, err := conn.Read(joinCtx)
	if err != nil {
		sock.Close(websocket.StatusPolicyViolation, "join required")
		return
	}
	msg, code := protocol.DecodeClient(data)
	if code != "" {
		s.refuse(sock, code, "")
		return
	}
	join, ok := msg.(protocol.Join)
	if !ok {
		s.refuse(sock, protocol.CodeNotJoined, "first frame must be JOIN")
		return
	}

	claims, err := s.sessions.Verify(join.SessionToken, time.Now())
	if err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			s.refuse(sock, protocol.CodeSessionExpired, "")
		} else {
			s.refuse(sock, protocol.CodeBadSession, "")
		}
		return
	}
	playerID := claims.PlayerID

	room, err := s.rooms.Get(r.Context(), roomID)
	if err != nil {
		s.refuse(sock, protocol.CodeRoomNotFound, "")
		return
	}

	if err := room.Attach(r.Context(), playerID, s.displayName(r.Context(), playerID), sock); err != nil {
		switch {
		case errors.Is(err, game.ErrRoomFull):
			s.refuse(sock, protocol.CodeRoomFull, "")
		case errors.Is(err, game.ErrNotInGame):
			s.refuse(sock, protocol.CodeNotInGame, "")
		case errors.Is(err, game.ErrRoomClosed):
			s.refuse(sock, protocol.CodeRoomNotFound, "")
		case errors.Is(err, game.ErrPersistFailed):
			s.refuse(sock, protocol.CodePersistFailed, "")
		default:
			s.refuse(sock, protocol.CodeRoomNotReady, "")
		}
		return
	}

	// Read pump. Frames are raw bytes; the actor decodes and replies so
	// per-player ordering holds.
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			room.Detach(playerID, sock)
			sock.Close(websocket.StatusNormalClosure, "")
			return
		}
		room.HandleFrame(playerID, sock, data)
	}
}

// refuse sends one error frame and closes the socket; used only before
// the actor owns the connection.
func (s *Server) refuse(sock *wsSocket, code protocol.ErrorCode, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = sock.Send(ctx, protocol.ErrorFrame(code, detail).Encode())
	status := websocket.StatusPolicyViolation
	if code == protocol.CodeRoomNotFound {
		status = websocket.StatusNormalClosure
	}
	sock.Close(status, closeReason(code))
}

// closeReason renders a code as the human-readable close reason, e.g.
// SESSION_EXPIRED becomes "session expired".
func closeReason(code protocol.ErrorCode) string {
	return strings.ToLower(strings.ReplaceAll(string(code), "_", " "))
}

// displayName resolves the player's first name for lobby listings.
func (s *Server) displayName(ctx context.Context, playerID string) string {
	id, err := uuid.Parse(playerID)
	if err != nil {
		return playerID
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return playerID
	}
	return user.FirstName
}
