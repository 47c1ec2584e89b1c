package protocol

import "github.com/ke2zo/durak6/internal/engine"

// ErrorCode is the closed set of codes carried by ERROR frames. Rule
// codes originate in the engine; the rest are transport and room-state
// conditions.
type ErrorCode string

const (
	CodeBadJSON        ErrorCode = "BAD_JSON"
	CodeBadSession     ErrorCode = "BAD_SESSION"
	CodeSessionExpired ErrorCode = "SESSION_EXPIRED"
	CodeRoomNotReady   ErrorCode = "ROOM_NOT_READY"
	CodeRoomNotFound   ErrorCode = "ROOM_NOT_FOUND"
	CodeRoomFull       ErrorCode = "ROOM_FULL"
	CodeNotInRoom      ErrorCode = "NOT_IN_ROOM"
	CodeNotInGame      ErrorCode = "NOT_IN_GAME"
	CodeNotJoined      ErrorCode = "NOT_JOINED"
	CodeBadCard        ErrorCode = "BAD_CARD"
	CodeGameFinished   ErrorCode = "GAME_FINISHED"
	CodeUnknownMsg     ErrorCode = "UNKNOWN_MSG"
	CodePersistFailed  ErrorCode = "PERSIST_FAILED"
)

// FromRule converts an engine rule code. The two sets share spelling by
// construction.
func FromRule(code engine.Code) ErrorCode { return ErrorCode(code) }
