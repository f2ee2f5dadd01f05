package orch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/app"
	"github.com/dkeye/textworld/internal/domain"
)

const (
	defaultCharSetting = "a mysterious adventurer"
	openingFallback    = "The adventure begins..."
)

// HandleCharacterText consumes one free-text message from a player who is
// mid character creation. handled is false when the player is not in that
// state, letting the dispatcher fall through.
func (o *Orchestrator) HandleCharacterText(ctx context.Context, playerID domain.PlayerID, text string) (reply string, handled bool) {
	h, ok := o.Registry.HandleByPlayer(playerID)
	if !ok {
		return "", false
	}

	h.Lock()
	room := h.Room
	if room.Phase != domain.PhaseCharCreation {
		h.Unlock()
		return "", false
	}
	p, ok := room.Active[playerID]
	if !ok || p.Status != domain.PlayerCreatingChar {
		h.Unlock()
		return "", false
	}

	name, setting, err := splitCharacterInput(text)
	if err != nil {
		h.Unlock()
		return err.Error(), true
	}
	if n := len([]rune(name)); n < 1 || n > domain.MaxCharacterName {
		h.Unlock()
		return "Character name must be 1-20 characters.", true
	}
	if len([]rune(setting)) < domain.MinCharacterBio {
		h.Unlock()
		return "Character description needs at least 5 characters.", true
	}
	if len([]rune(setting)) > o.Cfg.CharSettingMaxLen {
		setting = domain.Truncate(setting, o.Cfg.CharSettingMaxLen) + "..."
	}

	p.CharacterName = name
	p.CharacterSetting = setting
	p.Status = domain.PlayerCharDone

	playerName := p.Name
	addrs := room.Addresses()
	done := room.AllCharactersDone()
	roomID := room.ID
	h.Unlock()

	o.Cast.Broadcast(addrs, fmt.Sprintf("%s will play [%s]", playerName, name))

	if done {
		o.Sched.Cancel(app.CharTimerKey(roomID))
		o.startGameAfterCharacters(ctx, roomID)
	}

	preview := domain.Truncate(setting, 80)
	if preview != setting {
		preview += "..."
	}
	return fmt.Sprintf("Character ready.\n%s\n%s", name, preview), true
}

func splitCharacterInput(text string) (name, setting string, err error) {
	var parts []string
	switch {
	case strings.Contains(text, "："):
		parts = strings.SplitN(text, "：", 2)
	case strings.Contains(text, ":"):
		parts = strings.SplitN(text, ":", 2)
	case strings.Contains(text, "\n"):
		parts = strings.SplitN(text, "\n", 2)
	default:
		return "", "", fmt.Errorf("use the format: name: background, personality, skills")
	}
	name = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		setting = strings.TrimSpace(parts[1])
	}
	return name, setting, nil
}

// onCharTimeout assigns a default character to everyone still creating and
// starts the game unconditionally.
func (o *Orchestrator) onCharTimeout(roomID domain.RoomID) {
	h, ok := o.Registry.Handle(roomID)
	if !ok {
		return
	}

	h.Lock()
	room := h.Room
	if room.Phase != domain.PhaseCharCreation {
		h.Unlock()
		return
	}

	var defaulted []string
	for _, p := range room.Active {
		if p.Status == domain.PlayerCreatingChar {
			p.CharacterName = p.Name
			p.CharacterSetting = defaultCharSetting
			p.Status = domain.PlayerCharDone
			defaulted = append(defaulted, p.Name)
		}
	}
	addrs := room.Addresses()
	h.Unlock()

	if len(defaulted) > 0 {
		sort.Strings(defaulted)
		o.Cast.Broadcast(addrs, fmt.Sprintf("Time is up for: %s. Default characters assigned.", strings.Join(defaulted, ", ")))
	}
	o.startGameAfterCharacters(context.Background(), roomID)
}

// startGameAfterCharacters transitions the room into the active phase,
// requests an opening narration and arms the first round timer.
func (o *Orchestrator) startGameAfterCharacters(ctx context.Context, roomID domain.RoomID) {
	h, ok := o.Registry.Handle(roomID)
	if !ok {
		return
	}

	h.Lock()
	room := h.Room
	if room.Phase != domain.PhaseCharCreation {
		h.Unlock()
		return
	}
	room.Phase = domain.PhaseActive
	room.StartNewRound()

	prompt := openingPrompt(o.Cfg, room.World, room.CharacterRoster())
	round := room.Round
	h.Unlock()

	opening := o.generate(ctx, prompt, openingFallback)

	h, ok = o.Registry.Handle(roomID)
	if !ok {
		return
	}
	h.Lock()
	room = h.Room
	if room.Phase != domain.PhaseActive || room.Round != round {
		h.Unlock()
		return
	}

	var roster []string
	for _, p := range room.Active {
		roster = append(roster, fmt.Sprintf("  - %s (%s)", p.CharacterName, p.Name))
	}
	sort.Strings(roster)

	msg := fmt.Sprintf(
		"==== %s begins ====\n\nCast:\n%s\n\nOpening:\n%s\n\nRound 1 | %ds per round.\nUse /tw act <description> to play.",
		room.Name, strings.Join(roster, "\n"), opening, room.RoundTimeout)
	addrs := room.Addresses()
	timeout := room.RoundTimeout
	h.Unlock()

	o.Cast.Broadcast(addrs, msg)
	o.startRoundTimer(roomID, timeout, round)
	log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("game started")
}
