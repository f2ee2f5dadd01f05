package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/config"
	"github.com/dkeye/textworld/internal/core"
	"github.com/dkeye/textworld/internal/domain"
)

const (
	minRoomName = 1
	maxRoomName = 30
	minTimeout  = 30
	maxTimeout  = 600
	minWorldLen = 10
)

// Wizard runs the per-player room-creation form. Each player's form is
// evaluated synchronously against one input at a time; the map mutex is
// never held across a generation call.
type Wizard struct {
	mu      sync.Mutex
	pending map[domain.PlayerID]*domain.PendingCreation

	reg *Registry
	gen core.Generator
	cfg config.Game

	// now is swappable for staleness tests.
	now func() time.Time
}

func NewWizard(reg *Registry, gen core.Generator, cfg config.Game) *Wizard {
	return &Wizard{
		pending: make(map[domain.PlayerID]*domain.PendingCreation),
		reg:     reg,
		gen:     gen,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Begin opens a new form for the player. The caller has already verified the
// player is not in a room.
func (w *Wizard) Begin(id domain.PlayerID, name string, addr domain.Address) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[id]; ok {
		return "", fmt.Errorf("creation already in progress")
	}
	w.pending[id] = domain.NewPendingCreation(id, name, addr)
	log.Info().Str("module", "app.wizard").Str("player", string(id)).Msg("wizard started")
	return "Creating an adventure room.\nEnter a room name (1-30 characters).\nUse /tw cancel to abort.", nil
}

// InProgress reports whether the player has an open form.
func (w *Wizard) InProgress(id domain.PlayerID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.pending[id]
	return ok
}

// Cancel discards the player's form if one exists.
func (w *Wizard) Cancel(id domain.PlayerID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[id]; !ok {
		return false
	}
	delete(w.pending, id)
	log.Info().Str("module", "app.wizard").Str("player", string(id)).Msg("wizard cancelled")
	return true
}

// HandleInput advances the player's form with one unit of input. handled is
// false when the player has no open form. The wizard timeout is checked
// lazily here rather than by a background timer; an abandoned form simply
// sits until the player's next contact reclaims it.
func (w *Wizard) HandleInput(ctx context.Context, id domain.PlayerID, text string) (replies []string, handled bool) {
	w.mu.Lock()
	pc, ok := w.pending[id]
	if !ok {
		w.mu.Unlock()
		return nil, false
	}

	if w.now().Sub(pc.StartedAt) > time.Duration(w.cfg.WizardTimeout)*time.Second {
		delete(w.pending, id)
		w.mu.Unlock()
		return []string{"Room creation timed out. Start over with /tw create."}, true
	}

	switch pc.Step {
	case domain.StepSummarizing:
		w.mu.Unlock()
		return []string{"Summarizing, please wait..."}, true
	case domain.StepRoomName:
		replies = w.stepRoomName(pc, text)
	case domain.StepTimeout:
		replies = w.stepTimeout(pc, text)
	case domain.StepWorldSetting:
		replies = w.stepWorld(pc, text)
	case domain.StepWorldTooLong:
		// May call the generation backend; releases the lock itself.
		return w.stepWorldTooLong(ctx, pc, text), true
	case domain.StepConfirm:
		replies = w.stepConfirm(pc, text)
	}
	w.mu.Unlock()
	return replies, true
}

func (w *Wizard) stepRoomName(pc *domain.PendingCreation, text string) []string {
	n := len([]rune(text))
	if n < minRoomName || n > maxRoomName {
		return []string{"Room name must be 1-30 characters."}
	}
	pc.RoomName = text
	pc.Step = domain.StepTimeout
	return []string{fmt.Sprintf(
		"Name: %s\nEnter the round timeout in seconds (30-600), or 'default' for %d.",
		text, w.cfg.DefaultTimeout)}
}

func (w *Wizard) stepTimeout(pc *domain.PendingCreation, text string) []string {
	if strings.EqualFold(text, "default") {
		pc.RoundTimeout = w.cfg.DefaultTimeout
	} else {
		t, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return []string{"Enter a number or 'default'."}
		}
		if t < minTimeout || t > maxTimeout {
			return []string{"Timeout must be between 30 and 600 seconds."}
		}
		pc.RoundTimeout = t
	}
	pc.Step = domain.StepWorldSetting
	return []string{fmt.Sprintf(
		"Timeout: %ds\nNow enter the world setting, or upload a .txt/.docx file.\nRecommended length: up to %d characters. Type 'default' to use the template.",
		pc.RoundTimeout, w.cfg.WorldMaxLen)}
}

func (w *Wizard) stepWorld(pc *domain.PendingCreation, text string) []string {
	if strings.EqualFold(text, "default") && w.cfg.WorldTemplate != "" {
		pc.World = w.cfg.WorldTemplate
		pc.Step = domain.StepConfirm
		return []string{w.confirmPrompt(pc)}
	}

	n := len([]rune(text))
	if n < minWorldLen {
		return []string{"World setting needs at least 10 characters."}
	}
	if n > w.cfg.WorldMaxLen {
		pc.OriginalWorld = text
		pc.Step = domain.StepWorldTooLong
		return []string{fmt.Sprintf(
			"World setting is too long: %d characters (recommended max %d).\nChoose how to proceed:\n- 'summarize': compress it with the AI to ~%d characters\n- 'truncate': keep the first %d characters\n- 'keep': use the full text as-is\n- or paste a shorter setting",
			n, w.cfg.WorldMaxLen, w.cfg.WorldSummaryLen, w.cfg.WorldMaxLen)}
	}

	pc.World = text
	pc.Step = domain.StepConfirm
	return []string{w.confirmPrompt(pc)}
}

// stepWorldTooLong is entered with the wizard mutex held and returns with it
// released. The summarize branch runs the backend without the lock and then
// re-validates the form still exists.
func (w *Wizard) stepWorldTooLong(ctx context.Context, pc *domain.PendingCreation, text string) []string {
	choice := strings.ToLower(strings.TrimSpace(text))
	original := pc.OriginalWorld

	switch choice {
	case "summarize":
		pc.Step = domain.StepSummarizing
		id := pc.PlayerID
		w.mu.Unlock()

		summary, ok := w.summarize(ctx, original)

		w.mu.Lock()
		defer w.mu.Unlock()
		pc, still := w.pending[id]
		if !still || pc.Step != domain.StepSummarizing {
			return nil
		}
		if !ok {
			pc.Step = domain.StepWorldTooLong
			return []string{"Summarization failed. Choose again: summarize / truncate / keep, or paste a shorter setting."}
		}
		pc.World = summary
		pc.Step = domain.StepConfirm
		return []string{
			fmt.Sprintf("Summarized %d -> %d characters.", len([]rune(original)), len([]rune(summary))),
			w.confirmPrompt(pc),
		}

	case "truncate":
		defer w.mu.Unlock()
		pc.World = domain.Truncate(original, w.cfg.WorldMaxLen)
		pc.Step = domain.StepConfirm
		return []string{
			fmt.Sprintf("Kept the first %d characters.", w.cfg.WorldMaxLen),
			w.confirmPrompt(pc),
		}

	case "keep":
		defer w.mu.Unlock()
		pc.World = original
		pc.Step = domain.StepConfirm
		return []string{
			fmt.Sprintf("Keeping the full %d characters.", len([]rune(original))),
			w.confirmPrompt(pc),
		}
	}

	defer w.mu.Unlock()
	n := len([]rune(text))
	if n >= minWorldLen {
		if n <= w.cfg.WorldMaxLen {
			pc.World = text
			pc.OriginalWorld = ""
			pc.Step = domain.StepConfirm
			return []string{
				fmt.Sprintf("New world setting saved (%d characters).", n),
				w.confirmPrompt(pc),
			}
		}
		pc.OriginalWorld = text
		return []string{fmt.Sprintf("Still too long (%d characters). Choose: summarize / truncate / keep.", n)}
	}
	return []string{"Choose: summarize / truncate / keep, or paste a new setting of at least 10 characters."}
}

func (w *Wizard) stepConfirm(pc *domain.PendingCreation, text string) []string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "view", "full":
		return []string{LongMessage(pc.World, fmt.Sprintf("World setting (%d characters)", len([]rune(pc.World))), w.cfg.ChunkSize)}

	case "confirm", "y", "yes", "ok":
		id := pc.PlayerID
		delete(w.pending, id)
		h, err := w.reg.CreateRoom(id, pc.PlayerName, pc.Addr, RoomParams{
			Name:          pc.RoomName,
			World:         pc.World,
			OriginalWorld: pc.OriginalWorld,
			RoundTimeout:  pc.RoundTimeout,
			CharTimeout:   w.cfg.CharTimeout,
		})
		if err != nil {
			return []string{fmt.Sprintf("Could not create the room: %v", err)}
		}
		room := h.Room
		return []string{fmt.Sprintf(
			"Room created.\nName: %s\nID: %s\nRound timeout: %ds\nInvite others with /tw join %s, then /tw begin to start.",
			room.Name, room.ID, room.RoundTimeout, room.ID)}

	case "cancel", "n", "no":
		delete(w.pending, pc.PlayerID)
		return []string{"Room creation cancelled."}

	case "restart", "reset":
		pc.Reset()
		return []string{"Starting over.\nEnter a room name (1-30 characters)."}
	}
	return []string{"Reply with: confirm | cancel | restart | view"}
}

func (w *Wizard) confirmPrompt(pc *domain.PendingCreation) string {
	world := pc.World
	preview := domain.Truncate(world, 200)
	if preview != world {
		preview += "..."
	}

	sizeNote := ""
	if pc.OriginalWorld != "" && len([]rune(pc.OriginalWorld)) != len([]rune(world)) {
		sizeNote = fmt.Sprintf(" (original %d)", len([]rune(pc.OriginalWorld)))
	}

	return fmt.Sprintf(
		"Confirm the room setup:\nName: %s\nRound timeout: %ds\nWorld setting: %d characters%s\n\n%s\n\nReply with: confirm | cancel | restart | view",
		pc.RoomName, pc.RoundTimeout, len([]rune(world)), sizeNote, preview)
}

func (w *Wizard) summarize(ctx context.Context, text string) (string, bool) {
	prompt := fmt.Sprintf(
		"Condense the following world setting to at most %d characters, keeping its core premises:\n\n%s",
		w.cfg.WorldSummaryLen, text)
	out, ok := w.gen.Generate(ctx, prompt)
	out = strings.TrimSpace(out)
	if !ok || len([]rune(out)) < 50 {
		return "", false
	}
	return out, true
}
