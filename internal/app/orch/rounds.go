package orch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/app"
	"github.com/dkeye/textworld/internal/domain"
)

const placeholderResponse = "(the DM is silent for a moment; the world holds its breath)"

// SubmitAction records one player's action for the current round. When the
// last free player acts, resolution runs immediately and the round timer is
// cancelled so it cannot drive a second resolution.
func (o *Orchestrator) SubmitAction(ctx context.Context, playerID domain.PlayerID, action string) (string, error) {
	h, ok := o.Registry.HandleByPlayer(playerID)
	if !ok {
		return "", domain.ErrNotInRoom
	}

	h.Lock()
	room := h.Room
	if room.Paused {
		h.Unlock()
		return "", domain.ErrRoomPaused
	}
	if room.Phase != domain.PhaseActive {
		h.Unlock()
		return "", domain.ErrNotActivePhase
	}
	p, ok := room.Active[playerID]
	if !ok {
		h.Unlock()
		return "", domain.ErrNotMember
	}
	if p.Status == domain.PlayerActed {
		h.Unlock()
		return "", domain.ErrAlreadyActed
	}

	p.Action = action
	p.Status = domain.PlayerActed
	p.LastActionAt = time.Now()
	name := p.DisplayName()
	allActed := room.AllActed()
	roomID := room.ID
	h.Unlock()

	if allActed {
		o.resolveRound(ctx, roomID)
	}
	return fmt.Sprintf("[%s] action recorded.", name), nil
}

// resolveRound resolves the current round: cancel the timer, snapshot the
// narration inputs, release the lock for the backend call, then re-validate
// and apply. Strictly serialized per room by the round-number check — a
// stale timer fire or a concurrent trigger finds the round advanced and
// becomes a no-op.
func (o *Orchestrator) resolveRound(ctx context.Context, roomID domain.RoomID) {
	h, ok := o.Registry.Handle(roomID)
	if !ok {
		return
	}

	h.Lock()
	room := h.Room
	if room.Phase != domain.PhaseActive || room.Paused {
		h.Unlock()
		return
	}

	// The timer must not also fire a resolution for this round.
	o.Sched.Cancel(app.RoundTimerKey(roomID))

	actions := room.RoundActions()
	round := room.Round
	timeout := room.RoundTimeout
	addrs := room.Addresses()

	if len(actions) == 0 {
		// Timer fired with nothing recorded. Keep the room alive: notify
		// and rearm the timer instead of stalling.
		h.Unlock()
		log.Warn().Str("module", "orch").Str("room", string(roomID)).Int("round", round).Msg("round had no actions, restarting timer")
		o.Cast.Broadcast(addrs, "No actions were recorded this round. The round continues.")
		o.startRoundTimer(roomID, timeout, round)
		return
	}

	prompt := roundPrompt(o.Cfg, room.BuildContext(o.Cfg.HistoryRounds), round, actions)
	h.Unlock()

	response := o.generate(ctx, prompt, placeholderResponse)

	// Re-acquire and re-validate: the room may have been paused, closed or
	// otherwise advanced while the backend ran.
	h, ok = o.Registry.Handle(roomID)
	if !ok {
		return
	}
	h.Lock()
	room = h.Room
	if room.Phase != domain.PhaseActive || room.Paused || room.Round != round {
		h.Unlock()
		log.Info().Str("module", "orch").Str("room", string(roomID)).Int("round", round).Msg("room changed during generation, dropping resolution")
		return
	}

	room.History = append(room.History, domain.NewGameRound(round, actions, response))
	room.PendingCfg.Correction = ""
	room.StartNewRound()
	next := room.Round
	timeout = room.RoundTimeout
	addrs = room.Addresses()
	h.Unlock()

	o.Cast.Broadcast(addrs, roundResultMessage(round, next, timeout, actions, response))
	o.startRoundTimer(roomID, timeout, next)
	log.Info().Str("module", "orch").Str("room", string(roomID)).Int("round", round).Int("actions", len(actions)).Msg("round resolved")
}

func (o *Orchestrator) startRoundTimer(roomID domain.RoomID, seconds, round int) {
	o.Sched.Start(app.RoundTimerKey(roomID), time.Duration(seconds)*time.Second, func() {
		o.onRoundTimeout(roomID, round)
	})
}

// onRoundTimeout marks every player that never acted as timed out. If nobody
// acted at all the room closes; otherwise the round resolves with whatever
// actions exist.
func (o *Orchestrator) onRoundTimeout(roomID domain.RoomID, round int) {
	h, ok := o.Registry.Handle(roomID)
	if !ok {
		return
	}

	h.Lock()
	room := h.Room
	if room.Phase != domain.PhaseActive || room.Paused || room.Round != round {
		// Stale fire: the room moved on between scheduling and firing.
		h.Unlock()
		return
	}

	var late []string
	for _, p := range room.Active {
		if p.Status == domain.PlayerActive {
			p.Status = domain.PlayerTimedOut
			late = append(late, p.DisplayName())
		}
	}
	allTimedOut := room.AllTimedOut()
	addrs := room.Addresses()
	name := room.Name
	h.Unlock()

	if len(late) > 0 {
		sort.Strings(late)
		o.Cast.Broadcast(addrs, fmt.Sprintf("Timed out: %s", strings.Join(late, ", ")))
	}

	if allTimedOut {
		o.Cast.Broadcast(addrs, fmt.Sprintf("Everyone timed out; room [%s] is closed.", name))
		o.teardown(roomID)
		return
	}
	o.resolveRound(context.Background(), roomID)
}

func roundResultMessage(round, next, timeout int, actions map[string]string, response string) string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "==== Round %d ====\n\nActions:\n", round)
	for _, name := range names {
		fmt.Fprintf(&b, "  - %s: %s\n", name, actions[name])
	}
	fmt.Fprintf(&b, "\nDM:\n%s\n\nRound %d begins. Timeout: %ds.\nUse /tw act <description> to play.", response, next, timeout)
	return b.String()
}
