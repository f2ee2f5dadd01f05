package domain

import (
	"fmt"
	"strings"
	"time"
)

type RoomID string

type RoomPhase int

const (
	PhaseWaiting RoomPhase = iota
	PhaseCharCreation
	PhaseActive
	PhasePaused
	PhaseClosed
)

func (p RoomPhase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseCharCreation:
		return "creating"
	case PhaseActive:
		return "active"
	case PhasePaused:
		return "paused"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// PendingConfig holds changes requested while the room is paused. It is
// applied exactly once, on resume.
type PendingConfig struct {
	// RoundTimeout overrides the room's round timeout when > 0.
	RoundTimeout int
	// Correction is a one-shot host note injected into the next narration
	// context and cleared once consumed.
	Correction string
}

// Room is one adventure session: its players, phase, timers and history.
// Room itself is not goroutine-safe; core.RoomHandle serializes access.
type Room struct {
	ID       RoomID
	Name     string
	HostID   PlayerID
	HostAddr Address

	World         string
	OriginalWorld string

	Phase  RoomPhase
	Paused bool

	Active  map[PlayerID]*Player
	Pending map[PlayerID]*Player

	// Timeouts are in seconds, matching the user-facing commands.
	RoundTimeout int
	CharTimeout  int
	PendingCfg   PendingConfig

	Round          int
	RoundStartedAt time.Time
	CharStartedAt  time.Time
	History        []GameRound

	CreatedAt time.Time
}

func (r *Room) AllPlayers() []*Player {
	out := make([]*Player, 0, len(r.Active)+len(r.Pending))
	for _, p := range r.Active {
		out = append(out, p)
	}
	for _, p := range r.Pending {
		out = append(out, p)
	}
	return out
}

// Addresses returns the deduplicated reply destinations of every member.
func (r *Room) Addresses() []Address {
	seen := make(map[Address]struct{}, len(r.Active)+len(r.Pending))
	out := make([]Address, 0, len(r.Active)+len(r.Pending))
	for _, p := range r.AllPlayers() {
		if _, ok := seen[p.Addr]; ok {
			continue
		}
		seen[p.Addr] = struct{}{}
		out = append(out, p.Addr)
	}
	return out
}

func (r *Room) ActiveCount() int { return len(r.Active) }

func (r *Room) IsHost(id PlayerID) bool { return id == r.HostID }

// ActivatePending admits every player staged during a pause into the active
// set. Pending is empty afterwards.
func (r *Room) ActivatePending() {
	for id, p := range r.Pending {
		p.Status = PlayerActive
		r.Active[id] = p
	}
	r.Pending = make(map[PlayerID]*Player)
}

// ApplyPendingConfig applies a staged timeout override, if any. The override
// slot is cleared so a second resume cannot re-apply it.
func (r *Room) ApplyPendingConfig() {
	if r.PendingCfg.RoundTimeout > 0 {
		r.RoundTimeout = r.PendingCfg.RoundTimeout
		r.PendingCfg.RoundTimeout = 0
	}
}

func (r *Room) StartCharacterCreation() {
	r.Phase = PhaseCharCreation
	r.CharStartedAt = time.Now()
	for _, p := range r.Active {
		p.Status = PlayerCreatingChar
	}
}

func (r *Room) AllCharactersDone() bool {
	for _, p := range r.Active {
		if p.Status != PlayerCharDone {
			return false
		}
	}
	return true
}

// StartNewRound advances the round counter and resets every active player.
// The counter is strictly monotonic; nothing else mutates it.
func (r *Room) StartNewRound() {
	r.Round++
	r.RoundStartedAt = time.Now()
	for _, p := range r.Active {
		p.ResetForRound()
	}
}

// AllActed reports whether no active player is still free to act this round.
func (r *Room) AllActed() bool {
	for _, p := range r.Active {
		if p.Status == PlayerActive {
			return false
		}
	}
	return true
}

func (r *Room) AllTimedOut() bool {
	for _, p := range r.Active {
		if p.Status != PlayerTimedOut {
			return false
		}
	}
	return true
}

// RoundActions collects display-name -> action for every player that acted.
// Players that timed out without acting contribute nothing.
func (r *Room) RoundActions() map[string]string {
	out := make(map[string]string)
	for _, p := range r.Active {
		if p.Action != "" {
			out[p.DisplayName()] = p.Action
		}
	}
	return out
}

// CharacterRoster renders the characters of every active player, one block
// per character, for prompt building and the chars command.
func (r *Room) CharacterRoster() string {
	var blocks []string
	for _, p := range r.Active {
		if p.HasCharacter() {
			blocks = append(blocks, fmt.Sprintf("[%s]\n%s", p.CharacterName, p.CharacterSetting))
		}
	}
	return strings.Join(blocks, "\n\n")
}

// BuildContext assembles the narration context: world setting, roster, the
// staged host correction and a bounded window of the most recent rounds.
func (r *Room) BuildContext(historyRounds int) string {
	var b strings.Builder
	b.WriteString("[World Setting]\n")
	b.WriteString(r.World)

	if roster := r.CharacterRoster(); roster != "" {
		b.WriteString("\n\n[Characters]\n")
		b.WriteString(roster)
	}

	if r.PendingCfg.Correction != "" {
		b.WriteString("\n\n[Host Note]\n")
		b.WriteString(r.PendingCfg.Correction)
	}

	if len(r.History) > 0 {
		b.WriteString("\n\n[Recent Rounds]")
		start := len(r.History) - historyRounds
		if start < 0 {
			start = 0
		}
		for _, h := range r.History[start:] {
			b.WriteString(fmt.Sprintf("\nRound %d:", h.Number))
			for name, action := range h.Actions {
				b.WriteString(fmt.Sprintf("\n  - %s: %s", name, action))
			}
			preview := Truncate(h.Response, RoundPreviewLen)
			if preview != h.Response {
				preview += "..."
			}
			b.WriteString("\n  DM: " + preview)
		}
	}
	return b.String()
}
