package orch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dkeye/textworld/internal/config"
	"github.com/dkeye/textworld/internal/domain"
)

// worldPromptLen bounds how much world text goes into the opening prompt.
const worldPromptLen = 1500

func openingPrompt(cfg config.Game, world, roster string) string {
	if roster == "" {
		roster = "(no character sheets)"
	}
	return fmt.Sprintf(
		"You are the DM of a text adventure. Narration style: %s\n\n[World Setting]\n%s\n\n[Cast]\n%s\n\nIn at most %d characters, vividly set the opening scene, introduce the atmosphere and let each character appear naturally. Do not decide anything on the players' behalf.",
		cfg.DMStyle, domain.Truncate(world, worldPromptLen), roster, cfg.OpeningMaxLen)
}

func roundPrompt(cfg config.Game, gameContext string, round int, actions map[string]string) string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)

	var acted strings.Builder
	for _, name := range names {
		fmt.Fprintf(&acted, "- %s: %s\n", name, actions[name])
	}

	return fmt.Sprintf(
		"You are the DM of a text adventure. Narration style: %s\n\n%s\n\n[Round %d Player Actions]\n%s\nDescribe what happens as a result of these actions in at most %d characters, keeping the story coherent. Do not decide anything on the players' behalf.",
		cfg.DMStyle, gameContext, round, acted.String(), cfg.ResponseMaxLen)
}
