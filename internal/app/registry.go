// Package app wires the session engine: room registry, timeout scheduler,
// creation wizard and command dispatch.
package app

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/core"
	"github.com/dkeye/textworld/internal/domain"
)

// Registry owns every room and the player->room reverse index. Its mutex
// guards only the two maps; each room serializes its own state through its
// handle, so unrelated rooms never contend here for long.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*core.RoomHandle
	byPlayer map[domain.PlayerID]domain.RoomID
	maxRooms int
}

func NewRegistry(maxRooms int) *Registry {
	return &Registry{
		rooms:    make(map[domain.RoomID]*core.RoomHandle),
		byPlayer: make(map[domain.PlayerID]domain.RoomID),
		maxRooms: maxRooms,
	}
}

// RoomParams carries everything CreateRoom needs beyond the host identity.
type RoomParams struct {
	Name          string
	World         string
	OriginalWorld string
	RoundTimeout  int
	CharTimeout   int
}

// CreateRoom allocates a fresh room in the waiting phase with the host as
// its sole active player.
func (r *Registry) CreateRoom(hostID domain.PlayerID, hostName string, hostAddr domain.Address, p RoomParams) (*core.RoomHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rooms) >= r.maxRooms {
		return nil, domain.ErrAtCapacity
	}
	if _, ok := r.byPlayer[hostID]; ok {
		return nil, domain.ErrAlreadyInRoom
	}

	host, err := domain.NewPlayer(hostID, hostName, hostAddr)
	if err != nil {
		return nil, err
	}

	id := domain.RoomID(uuid.NewString()[:8])
	room := &domain.Room{
		ID:            id,
		Name:          p.Name,
		HostID:        hostID,
		HostAddr:      hostAddr,
		World:         p.World,
		OriginalWorld: p.OriginalWorld,
		Phase:         domain.PhaseWaiting,
		Active:        map[domain.PlayerID]*domain.Player{hostID: host},
		Pending:       make(map[domain.PlayerID]*domain.Player),
		RoundTimeout:  p.RoundTimeout,
		CharTimeout:   p.CharTimeout,
		CreatedAt:     host.JoinedAt,
	}

	h := core.NewRoomHandle(room)
	r.rooms[id] = h
	r.byPlayer[hostID] = id
	log.Info().Str("module", "app.registry").Str("room", string(id)).Str("host", string(hostID)).Msg("room created")
	return h, nil
}

func (r *Registry) Handle(id domain.RoomID) (*core.RoomHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.rooms[id]
	return h, ok
}

func (r *Registry) HandleByPlayer(id domain.PlayerID) (*core.RoomHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byPlayer[id]
	if !ok {
		return nil, false
	}
	h, ok := r.rooms[roomID]
	return h, ok
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// JoinRoom admits a player while the room is waiting, or stages them into
// the pending set while it is paused. Capacity counts active plus pending.
func (r *Registry) JoinRoom(roomID domain.RoomID, playerID domain.PlayerID, name string, addr domain.Address, maxPerRoom int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if _, ok := r.byPlayer[playerID]; ok {
		return domain.ErrAlreadyInRoom
	}

	h.Lock()
	defer h.Unlock()
	room := h.Room

	switch room.Phase {
	case domain.PhaseClosed:
		return domain.ErrRoomClosed
	case domain.PhaseCharCreation, domain.PhaseActive:
		return domain.ErrGameStarted
	}
	if len(room.Active)+len(room.Pending) >= maxPerRoom {
		return domain.ErrRoomFull
	}

	p, err := domain.NewPlayer(playerID, name, addr)
	if err != nil {
		return err
	}

	if room.Paused {
		p.Status = domain.PlayerPending
		room.Pending[playerID] = p
	} else {
		room.Active[playerID] = p
	}
	r.byPlayer[playerID] = roomID
	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("player", string(playerID)).Bool("pending", room.Paused).Msg("player joined")
	return nil
}

// LeaveRoom removes the player from whichever set holds them. A departing
// host always closes the room.
func (r *Registry) LeaveRoom(playerID domain.PlayerID) (*core.RoomHandle, bool, error) {
	r.mu.Lock()

	roomID, ok := r.byPlayer[playerID]
	if !ok {
		r.mu.Unlock()
		return nil, false, domain.ErrNotInRoom
	}
	h := r.rooms[roomID]

	h.Lock()
	delete(h.Room.Active, playerID)
	delete(h.Room.Pending, playerID)
	delete(r.byPlayer, playerID)
	isHost := h.Room.IsHost(playerID)
	h.Unlock()
	r.mu.Unlock()

	if isHost {
		r.CloseRoom(roomID)
		return h, true, nil
	}
	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("player", string(playerID)).Msg("player left")
	return h, false, nil
}

// CloseRoom marks the room closed, frees every member from the reverse index
// and drops the room. Safe to call for an already-removed room.
func (r *Registry) CloseRoom(roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.rooms[roomID]
	if !ok {
		return false
	}

	h.Lock()
	h.Room.Phase = domain.PhaseClosed
	for _, p := range h.Room.AllPlayers() {
		delete(r.byPlayer, p.ID)
	}
	h.Unlock()

	delete(r.rooms, roomID)
	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room closed")
	return true
}

func (r *Registry) PauseRoom(roomID domain.RoomID, requester domain.PlayerID) error {
	h, ok := r.Handle(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	h.Lock()
	defer h.Unlock()
	room := h.Room
	if !room.IsHost(requester) {
		return domain.ErrNotHost
	}
	if room.Paused {
		return domain.ErrAlreadyPaused
	}
	// Only a running game can pause; resume restores the active phase, so
	// letting a waiting room in here would skip character creation.
	if room.Phase != domain.PhaseActive {
		return domain.ErrWrongPhase
	}
	room.Paused = true
	room.Phase = domain.PhasePaused
	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room paused")
	return nil
}

// ResumeRoom applies the staged configuration and admits pending players
// atomically before the phase returns to active.
func (r *Registry) ResumeRoom(roomID domain.RoomID, requester domain.PlayerID) error {
	h, ok := r.Handle(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	h.Lock()
	defer h.Unlock()
	room := h.Room
	if !room.IsHost(requester) {
		return domain.ErrNotHost
	}
	if !room.Paused {
		return domain.ErrNotPaused
	}
	room.ApplyPendingConfig()
	room.ActivatePending()
	room.Paused = false
	room.Phase = domain.PhaseActive
	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room resumed")
	return nil
}

// List snapshots basic info about every room, for the list commands.
func (r *Registry) List() []RoomInfo {
	r.mu.RLock()
	handles := make([]*core.RoomHandle, 0, len(r.rooms))
	for _, h := range r.rooms {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(handles))
	for _, h := range handles {
		h.Lock()
		room := h.Room
		hostName := "?"
		if host, ok := room.Active[room.HostID]; ok {
			hostName = host.Name
		}
		out = append(out, RoomInfo{
			ID:          room.ID,
			Name:        room.Name,
			HostName:    hostName,
			Phase:       room.Phase,
			PlayerCount: room.ActiveCount(),
			Round:       room.Round,
		})
		h.Unlock()
	}
	return out
}

type RoomInfo struct {
	ID          domain.RoomID
	Name        string
	HostName    string
	Phase       domain.RoomPhase
	PlayerCount int
	Round       int
}
