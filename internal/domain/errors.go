package domain

import "errors"

// Registry and room state-conflict errors. All of these are recoverable and
// reported back to the requesting player only.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomClosed     = errors.New("room closed")
	ErrGameStarted    = errors.New("game already started")
	ErrAlreadyInRoom  = errors.New("already in a room")
	ErrRoomFull       = errors.New("room is full")
	ErrAtCapacity     = errors.New("room limit reached")
	ErrNotInRoom      = errors.New("not in a room")
	ErrNotHost        = errors.New("only the host can do that")
	ErrAlreadyPaused  = errors.New("room already paused")
	ErrNotPaused      = errors.New("room is not paused")
	ErrRoomPaused     = errors.New("room is paused")
	ErrNotActivePhase = errors.New("game is not running")
	ErrAlreadyActed   = errors.New("already acted this round")
	ErrNotMember      = errors.New("not an active player")
	ErrNotEnough      = errors.New("need at least one player")
	ErrWrongPhase     = errors.New("not allowed in this phase")
)
