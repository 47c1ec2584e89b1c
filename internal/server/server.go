// Package server is the HTTP front controller: the Telegram auth
// exchange, matchmaking and room creation endpoints, and the WebSocket
// upgrade that hands sockets over to room actors.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ke2zo/durak6/internal/auth"
	"github.com/ke2zo/durak6/internal/database"
	"github.com/ke2zo/durak6/internal/engine"
	"github.com/ke2zo/durak6/internal/game"
	"github.com/ke2zo/durak6/internal/matchmaking"
	"github.com/ke2zo/durak6/internal/models"
)

// Server wires the HTTP surface over the domain components.
type Server struct {
	botToken string
	sessions *auth.Sessions
	users    database.UserStore
	rooms    *game.Manager
	mm       *matchmaking.Matchmaker
	log      *logrus.Entry
}

// New builds the front controller.
func New(botToken string, sessions *auth.Sessions, users database.UserStore,
	rooms *game.Manager, mm *matchmaking.Matchmaker, log *logrus.Entry) *Server {
	return &Server{
		botToken: botToken,
		sessions: sessions,
		users:    users,
		rooms:    rooms,
		mm:       mm,
		log:      log,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/telegram", s.handleAuthTelegram)
	mux.HandleFunc("POST /api/matchmaking", s.withSession(s.handleMatchmaking))
	mux.HandleFunc("POST /api/room/create", s.withSession(s.handleRoomCreate))
	mux.HandleFunc("GET /ws/{roomId}", s.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

type authRequest struct {
	InitData string `json:"initData"`
}

type authResponse struct {
	SessionToken string      `json:"sessionToken"`
	User         userPayload `json:"user"`
}

type userPayload struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	Username  string `json:"username,omitempty"`
}

// handleAuthTelegram exchanges a signed Telegram initData blob for a
// session token, upserting the user on the way.
func (s *Server) handleAuthTelegram(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InitData == "" {
		writeError(w, http.StatusBadRequest, "initData is required")
		return
	}
	tgUser, err := auth.ValidateInitData(req.InitData, s.botToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid init data")
		return
	}
	user, err := s.users.UpsertUser(r.Context(), &models.User{
		ExternalID:   tgUser.ID,
		FirstName:    tgUser.FirstName,
		Username:     tgUser.Username,
		LanguageCode: tgUser.LanguageCode,
	})
	if err != nil {
		s.log.WithError(err).Error("user upsert failed")
		writeError(w, http.StatusInternalServerError, "user store unavailable")
		return
	}
	token := s.sessions.Mint(user.ID.String(), time.Now())
	writeJSON(w, http.StatusOK, authResponse{
		SessionToken: token,
		User: userPayload{
			ID:        user.ID.String(),
			FirstName: user.FirstName,
			Username:  user.Username,
		},
	})
}

// withSession authenticates the bearer token and resolves the player's
// directory record before calling next.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *models.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.sessions.Verify(header[len(prefix):], time.Now())
		if err != nil {
			status := http.StatusUnauthorized
			msg := "invalid session"
			if errors.Is(err, auth.ErrSessionExpired) {
				msg = "session expired"
			}
			writeError(w, status, msg)
			return
		}
		id, err := uuid.Parse(claims.PlayerID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		user, err := s.users.GetUser(r.Context(), id)
		if err != nil {
			if errors.Is(err, database.ErrUserNotFound) {
				writeError(w, http.StatusUnauthorized, "unknown user")
				return
			}
			s.log.WithError(err).Error("user lookup failed")
			writeError(w, http.StatusInternalServerError, "user store unavailable")
			return
		}
		next(w, r, user)
	}
}

type roomConfigRequest struct {
	Mode             string `json:"mode"`
	DeckSize         int    `json:"deckSize"`
	MaxPlayers       int    `json:"maxPlayers"`
	TakerSkipsRefill bool   `json:"takerSkipsRefill"`
}

func (req roomConfigRequest) toConfig() game.RoomConfig {
	return game.RoomConfig{
		Mode:             engine.Mode(req.Mode),
		DeckSize:         req.DeckSize,
		MaxPlayers:       req.MaxPlayers,
		TakerSkipsRefill: req.TakerSkipsRefill,
	}
}

// handleMatchmaking enqueues the player for their chosen configuration.
func (s *Server) handleMatchmaking(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req roomConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	cfg := req.toConfig()
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.mm.Enqueue(r.Context(), user.ID.String(), user.FirstName, cfg)
	if err != nil {
		if errors.Is(err, matchmaking.ErrMatchFailed) {
			writeError(w, http.StatusServiceUnavailable, "matched but room creation failed, still queued")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := matchResponse{Status: res.Status, RoomID: res.RoomID}
	if res.RoomID != "" {
		out.WsURL = wsPath(res.RoomID)
	}
	writeJSON(w, http.StatusOK, out)
}

type matchResponse struct {
	Status matchmaking.Status `json:"status"`
	RoomID string             `json:"roomId,omitempty"`
	WsURL  string             `json:"wsUrl,omitempty"`
}

func wsPath(roomID string) string { return "/ws/" + roomID }

type createRoomResponse struct {
	RoomID string          `json:"roomId"`
	WsURL  string          `json:"wsUrl"`
	Config game.RoomConfig `json:"config"`
}

// handleRoomCreate makes a private room with the caller as host.
func (s *Server) handleRoomCreate(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req roomConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	cfg := req.toConfig()
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	room, err := s.rooms.CreateRoom(r.Context(), cfg, game.LobbyPlayer{
		ID:          user.ID.String(),
		DisplayName: user.FirstName,
	})
	if err != nil {
		s.log.WithError(err).Error("room creation failed")
		writeError(w, http.StatusInternalServerError, "room creation failed")
		return
	}
	writeJSON(w, http.StatusOK, createRoomResponse{RoomID: room.ID(), WsURL: wsPath(room.ID()), Config: cfg})
}
