package core

import (
	"sync"

	"github.com/dkeye/textworld/internal/domain"
)

// RoomHandle pairs a room with the mutex that serializes every mutation of
// it. All state changes inside one room go through its handle, so two
// near-simultaneous events (last player acts vs. round timer fires) cannot
// both drive resolution.
//
// Lock ordering: the registry mutex may be held while acquiring a room lock,
// never the reverse. Code must release the room lock before any call that
// blocks (generation backend, file download) and re-validate phase after
// re-acquiring.
type RoomHandle struct {
	mu   sync.Mutex
	Room *domain.Room
}

func NewRoomHandle(room *domain.Room) *RoomHandle {
	return &RoomHandle{Room: room}
}

func (h *RoomHandle) Lock()   { h.mu.Lock() }
func (h *RoomHandle) Unlock() { h.mu.Unlock() }
