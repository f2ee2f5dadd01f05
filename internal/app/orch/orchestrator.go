// Package orch drives rooms through their phase lifecycle: character
// creation, round collection and resolution, pause/resume and closure.
package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/app"
	"github.com/dkeye/textworld/internal/config"
	"github.com/dkeye/textworld/internal/core"
	"github.com/dkeye/textworld/internal/domain"
)

// Orchestrator coordinates the registry, the timeout scheduler, the
// generation backend and the outbound transport. All room mutation happens
// under the room's handle lock; the lock is never held across a Generate
// call — state is snapshotted, the call awaited, and the room re-validated
// before results are applied.
type Orchestrator struct {
	Registry *app.Registry
	Sched    *app.Scheduler
	Gen      core.Generator
	Cast     core.Broadcaster
	Cfg      config.Game
}

func New(reg *app.Registry, sched *app.Scheduler, gen core.Generator, cast core.Broadcaster, cfg config.Game) *Orchestrator {
	return &Orchestrator{Registry: reg, Sched: sched, Gen: gen, Cast: cast, Cfg: cfg}
}

// Begin moves a waiting room into the character-creation phase and arms the
// character-creation timer. Host only.
func (o *Orchestrator) Begin(playerID domain.PlayerID) (string, error) {
	h, ok := o.Registry.HandleByPlayer(playerID)
	if !ok {
		return "", domain.ErrNotInRoom
	}

	h.Lock()
	room := h.Room
	if !room.IsHost(playerID) {
		h.Unlock()
		return "", domain.ErrNotHost
	}
	if room.Phase != domain.PhaseWaiting {
		h.Unlock()
		return "", domain.ErrGameStarted
	}
	if room.ActiveCount() < 1 {
		h.Unlock()
		return "", domain.ErrNotEnough
	}

	room.StartCharacterCreation()

	preview := domain.Truncate(room.World, 300)
	if preview != room.World {
		preview += "..."
	}
	msg := fmt.Sprintf(
		"%s - character creation\n\nWorld preview:\n%s\n\nYou have %d seconds.\nDescribe your character as: name: background, personality, skills\nExample: Ellen: elven archer, calm, expert tracker",
		room.Name, preview, room.CharTimeout)
	addrs := room.Addresses()
	roomID := room.ID
	charTimeout := room.CharTimeout
	h.Unlock()

	o.Cast.Broadcast(addrs, msg)
	o.Sched.Start(app.CharTimerKey(roomID), time.Duration(charTimeout)*time.Second, func() {
		o.onCharTimeout(roomID)
	})
	log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("character creation started")
	return "Character creation has begun.", nil
}

// Pause suspends the room and stops the round timer. Pending joiners and
// staged configuration accumulate until resume.
func (o *Orchestrator) Pause(playerID domain.PlayerID) (string, error) {
	h, ok := o.Registry.HandleByPlayer(playerID)
	if !ok {
		return "", domain.ErrNotInRoom
	}
	h.Lock()
	roomID := h.Room.ID
	h.Unlock()

	if err := o.Registry.PauseRoom(roomID, playerID); err != nil {
		return "", err
	}
	o.Sched.Cancel(app.RoundTimerKey(roomID))

	h.Lock()
	addrs := h.Room.Addresses()
	h.Unlock()
	o.Cast.Broadcast(addrs, "Room paused. The host can /tw resume to continue.")
	return "Paused.", nil
}

// Resume applies staged configuration, admits pending players and restarts
// the round timer for the round that was interrupted.
func (o *Orchestrator) Resume(playerID domain.PlayerID) (string, error) {
	h, ok := o.Registry.HandleByPlayer(playerID)
	if !ok {
		return "", domain.ErrNotInRoom
	}
	h.Lock()
	roomID := h.Room.ID
	h.Unlock()

	if err := o.Registry.ResumeRoom(roomID, playerID); err != nil {
		return "", err
	}

	h.Lock()
	room := h.Room
	addrs := room.Addresses()
	round := room.Round
	timeout := room.RoundTimeout
	h.Unlock()

	o.Cast.Broadcast(addrs, fmt.Sprintf("Resuming round %d.", round))
	o.startRoundTimer(roomID, timeout, round)
	return "Resumed.", nil
}

// StageTimeout stages a round-timeout override while the room is paused; it
// takes effect on resume. Host only.
func (o *Orchestrator) StageTimeout(playerID domain.PlayerID, seconds int) (string, error) {
	h, ok := o.Registry.HandleByPlayer(playerID)
	if !ok {
		return "", domain.ErrNotInRoom
	}
	h.Lock()
	defer h.Unlock()
	room := h.Room
	if !room.IsHost(playerID) {
		return "", domain.ErrNotHost
	}
	if !room.Paused {
		return "", domain.ErrNotPaused
	}
	if seconds < 30 || seconds > 600 {
		return "", fmt.Errorf("timeout must be between 30 and 600 seconds")
	}
	room.PendingCfg.RoundTimeout = seconds
	return fmt.Sprintf("Round timeout will change to %ds on resume.", seconds), nil
}

// StageCorrection stages a host note injected into the next narration
// context. One-shot; cleared after the next resolved round.
func (o *Orchestrator) StageCorrection(playerID domain.PlayerID, note string) (string, error) {
	h, ok := o.Registry.HandleByPlayer(playerID)
	if !ok {
		return "", domain.ErrNotInRoom
	}
	h.Lock()
	defer h.Unlock()
	room := h.Room
	if !room.IsHost(playerID) {
		return "", domain.ErrNotHost
	}
	if !room.Paused {
		return "", domain.ErrNotPaused
	}
	room.PendingCfg.Correction = note
	return "Note staged; the DM will take it into account next round.", nil
}

// Close shuts the player's room down. Host only.
func (o *Orchestrator) Close(playerID domain.PlayerID) (string, error) {
	h, ok := o.Registry.HandleByPlayer(playerID)
	if !ok {
		return "", domain.ErrNotInRoom
	}
	h.Lock()
	room := h.Room
	if !room.IsHost(playerID) {
		h.Unlock()
		return "", domain.ErrNotHost
	}
	roomID := room.ID
	name := room.Name
	addrs := room.Addresses()
	h.Unlock()

	o.Cast.Broadcast(addrs, fmt.Sprintf("Room [%s] has been closed.", name))
	o.teardown(roomID)
	return "Closed.", nil
}

// CloseRoom force-closes any room by id. Used by admins.
func (o *Orchestrator) CloseRoom(roomID domain.RoomID) (string, error) {
	h, ok := o.Registry.Handle(roomID)
	if !ok {
		return "", domain.ErrRoomNotFound
	}
	h.Lock()
	name := h.Room.Name
	addrs := h.Room.Addresses()
	h.Unlock()

	o.Cast.Broadcast(addrs, fmt.Sprintf("Room [%s] was closed by an administrator.", name))
	o.teardown(roomID)
	return fmt.Sprintf("Closed [%s].", name), nil
}

// Leave removes the player; a departing host closes the room for everyone.
func (o *Orchestrator) Leave(playerID domain.PlayerID, playerName string) (string, error) {
	h, wasHost, err := o.Registry.LeaveRoom(playerID)
	if err != nil {
		return "", err
	}

	if wasHost {
		// Registry already closed the room; stop its timers and tell the
		// remaining members from the final snapshot.
		h.Lock()
		roomID := h.Room.ID
		name := h.Room.Name
		addrs := h.Room.Addresses()
		h.Unlock()
		o.Sched.Cancel(app.RoundTimerKey(roomID))
		o.Sched.Cancel(app.CharTimerKey(roomID))
		o.Cast.Broadcast(addrs, fmt.Sprintf("The host left; room [%s] is closed.", name))
		return "You left; the room has been closed.", nil
	}

	h.Lock()
	addrs := h.Room.Addresses()
	h.Unlock()
	o.Cast.Broadcast(addrs, fmt.Sprintf("%s left the room.", playerName))
	return "You left the room.", nil
}

// teardown cancels both timers and removes the room from the registry.
func (o *Orchestrator) teardown(roomID domain.RoomID) {
	o.Sched.Cancel(app.RoundTimerKey(roomID))
	o.Sched.Cancel(app.CharTimerKey(roomID))
	o.Registry.CloseRoom(roomID)
}

// Shutdown cancels every outstanding timer. In-flight rounds are abandoned.
func (o *Orchestrator) Shutdown() {
	o.Sched.CancelAll()
}

func (o *Orchestrator) generate(ctx context.Context, prompt, fallback string) string {
	if o.Gen == nil {
		return fallback
	}
	out, ok := o.Gen.Generate(ctx, prompt)
	if !ok || out == "" {
		return fallback
	}
	return out
}
