package orch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/textworld/internal/app"
	"github.com/dkeye/textworld/internal/config"
	"github.com/dkeye/textworld/internal/core"
	"github.com/dkeye/textworld/internal/domain"
)

type fakeGen struct {
	mu    sync.Mutex
	fn    func(prompt string) (string, bool)
	calls int
}

func (g *fakeGen) Generate(_ context.Context, prompt string) (string, bool) {
	g.mu.Lock()
	g.calls++
	fn := g.fn
	g.mu.Unlock()
	if fn == nil {
		return "The DM narrates.", true
	}
	return fn(prompt)
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeCast struct {
	mu   sync.Mutex
	msgs []string
}

func (c *fakeCast) Broadcast(_ []domain.Address, text string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
}

func (c *fakeCast) contains(sub string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func orchCfg() config.Game {
	return config.Game{
		MaxRooms:          10,
		MaxPlayersPerRoom: 8,
		DefaultTimeout:    300,
		CharTimeout:       180,
		WizardTimeout:     300,
		WorldMaxLen:       4000,
		WorldSummaryLen:   2000,
		CharSettingMaxLen: 500,
		HistoryRounds:     5,
		ChunkSize:         1000,
		OpeningMaxLen:     400,
		ResponseMaxLen:    500,
		DMStyle:           "terse",
	}
}

func newTestOrch(t *testing.T, gen core.Generator) (*Orchestrator, *fakeCast) {
	t.Helper()
	cast := &fakeCast{}
	o := New(app.NewRegistry(10), app.NewScheduler(), gen, cast, orchCfg())
	t.Cleanup(o.Shutdown)
	return o, cast
}

// newActiveRoom creates a room with the given players, runs character
// creation to completion and leaves it in round 1 of the active phase.
func newActiveRoom(t *testing.T, o *Orchestrator, players ...domain.PlayerID) domain.RoomID {
	t.Helper()
	ctx := context.Background()

	host := players[0]
	h, err := o.Registry.CreateRoom(host, "Host_"+string(host), domain.Address("addr_"+host), app.RoomParams{
		Name:         "Quest",
		World:        "A land of dragons and ancient ruins.",
		RoundTimeout: 300,
		CharTimeout:  180,
	})
	require.NoError(t, err)
	roomID := h.Room.ID

	for _, p := range players[1:] {
		require.NoError(t, o.Registry.JoinRoom(roomID, p, "Player_"+string(p), domain.Address("addr_"+p), 8))
	}

	_, err = o.Begin(host)
	require.NoError(t, err)

	for _, p := range players {
		reply, handled := o.HandleCharacterText(ctx, p, string(p)+"_hero: a brave wanderer of the wastes")
		require.True(t, handled)
		require.Contains(t, reply, "Character ready")
	}

	h.Lock()
	defer h.Unlock()
	require.Equal(t, domain.PhaseActive, h.Room.Phase)
	require.Equal(t, 1, h.Room.Round)
	return roomID
}

func TestBeginRequiresHostAndWaitingPhase(t *testing.T) {
	o, _ := newTestOrch(t, &fakeGen{})
	h, err := o.Registry.CreateRoom("h1", "Alice", "a1", app.RoomParams{Name: "Q", World: "w", RoundTimeout: 300, CharTimeout: 180})
	require.NoError(t, err)
	require.NoError(t, o.Registry.JoinRoom(h.Room.ID, "p2", "Bob", "a2", 8))

	_, err = o.Begin("p2")
	assert.ErrorIs(t, err, domain.ErrNotHost)

	_, err = o.Begin("ghost")
	assert.ErrorIs(t, err, domain.ErrNotInRoom)

	_, err = o.Begin("h1")
	require.NoError(t, err)
	_, err = o.Begin("h1")
	assert.ErrorIs(t, err, domain.ErrGameStarted)

	assert.True(t, o.Sched.Active(app.CharTimerKey(h.Room.ID)))
}

func TestCharacterInputValidation(t *testing.T) {
	o, _ := newTestOrch(t, &fakeGen{})
	h, err := o.Registry.CreateRoom("h1", "Alice", "a1", app.RoomParams{Name: "Q", World: "w", RoundTimeout: 300, CharTimeout: 180})
	require.NoError(t, err)
	_, err = o.Begin("h1")
	require.NoError(t, err)

	ctx := context.Background()

	reply, handled := o.HandleCharacterText(ctx, "h1", "no separator at all")
	require.True(t, handled)
	assert.Contains(t, reply, "format")

	reply, _ = o.HandleCharacterText(ctx, "h1", ": missing name")
	assert.Contains(t, reply, "1-20 characters")

	reply, _ = o.HandleCharacterText(ctx, "h1", "Ellen: ok")
	assert.Contains(t, reply, "at least 5 characters")

	reply, _ = o.HandleCharacterText(ctx, "h1", "Ellen: elven archer, calm")
	assert.Contains(t, reply, "Character ready")

	h.Lock()
	defer h.Unlock()
	assert.Equal(t, domain.PhaseActive, h.Room.Phase, "last character completes the phase")
}

func TestCharTimeoutAssignsDefaultsAndStartsGame(t *testing.T) {
	gen := &fakeGen{fn: func(string) (string, bool) { return "", false }}
	o, cast := newTestOrch(t, gen)
	h, err := o.Registry.CreateRoom("h1", "Alice", "a1", app.RoomParams{Name: "Q", World: "w", RoundTimeout: 300, CharTimeout: 180})
	require.NoError(t, err)
	require.NoError(t, o.Registry.JoinRoom(h.Room.ID, "p2", "Bob", "a2", 8))
	_, err = o.Begin("h1")
	require.NoError(t, err)

	// Only Bob finishes; the timer expires for Alice.
	_, handled := o.HandleCharacterText(context.Background(), "p2", "Rogar: dwarven smith, stubborn")
	require.True(t, handled)

	o.onCharTimeout(h.Room.ID)

	h.Lock()
	room := h.Room
	assert.Equal(t, domain.PhaseActive, room.Phase)
	assert.Equal(t, 1, room.Round)
	alice := room.Active["h1"]
	assert.Equal(t, "Alice", alice.CharacterName)
	assert.Equal(t, defaultCharSetting, alice.CharacterSetting)
	h.Unlock()

	assert.True(t, cast.contains("Default characters assigned"))
	assert.True(t, cast.contains(openingFallback), "failed opening generation falls back")
	assert.True(t, o.Sched.Active(app.RoundTimerKey(h.Room.ID)))
}

func TestSubmitActionRejections(t *testing.T) {
	o, _ := newTestOrch(t, &fakeGen{})
	ctx := context.Background()

	_, err := o.SubmitAction(ctx, "ghost", "wander")
	assert.ErrorIs(t, err, domain.ErrNotInRoom)

	_, err = o.Registry.CreateRoom("h1", "Alice", "a1", app.RoomParams{Name: "Q", World: "w", RoundTimeout: 300, CharTimeout: 180})
	require.NoError(t, err)

	_, err = o.SubmitAction(ctx, "h1", "wander")
	assert.ErrorIs(t, err, domain.ErrNotActivePhase)

	newActiveRoom(t, o, "h2", "p2")
	_, err = o.SubmitAction(ctx, "h2", "scout ahead")
	require.NoError(t, err)
	_, err = o.SubmitAction(ctx, "h2", "scout again")
	assert.ErrorIs(t, err, domain.ErrAlreadyActed)

	_, err = o.Pause("h2")
	require.NoError(t, err)
	_, err = o.SubmitAction(ctx, "p2", "wander")
	assert.ErrorIs(t, err, domain.ErrRoomPaused)
}

func TestAllActedResolvesImmediately(t *testing.T) {
	gen := &fakeGen{fn: func(string) (string, bool) { return "Fire rains from the sky.", true }}
	o, cast := newTestOrch(t, gen)
	roomID := newActiveRoom(t, o, "h1", "p2")
	ctx := context.Background()

	_, err := o.SubmitAction(ctx, "h1", "climb the tower")
	require.NoError(t, err)
	_, err = o.SubmitAction(ctx, "p2", "guard the door")
	require.NoError(t, err)

	h, ok := o.Registry.Handle(roomID)
	require.True(t, ok)
	h.Lock()
	room := h.Room
	require.Len(t, room.History, 1)
	rec := room.History[0]
	assert.Equal(t, 1, rec.Number)
	assert.Equal(t, "Fire rains from the sky.", rec.Response)
	assert.Len(t, rec.Actions, 2)
	assert.Equal(t, 2, room.Round)
	for _, p := range room.Active {
		assert.Equal(t, domain.PlayerActive, p.Status)
		assert.Empty(t, p.Action)
	}
	h.Unlock()

	assert.True(t, cast.contains("Fire rains from the sky."))
	assert.True(t, o.Sched.Active(app.RoundTimerKey(roomID)), "next round timer armed")
}

func TestRoundTimeoutResolvesWithPartialActions(t *testing.T) {
	o, cast := newTestOrch(t, &fakeGen{})
	roomID := newActiveRoom(t, o, "h1", "p2")
	ctx := context.Background()

	_, err := o.SubmitAction(ctx, "h1", "light a torch")
	require.NoError(t, err)

	o.onRoundTimeout(roomID, 1)

	h, ok := o.Registry.Handle(roomID)
	require.True(t, ok)
	h.Lock()
	room := h.Room
	require.Len(t, room.History, 1)
	assert.Len(t, room.History[0].Actions, 1, "only the acting player contributes")
	assert.Equal(t, 2, room.Round)
	h.Unlock()

	assert.True(t, cast.contains("Timed out: p2_hero"))
}

func TestRoundTimeoutEveryoneClosesRoom(t *testing.T) {
	o, cast := newTestOrch(t, &fakeGen{})
	roomID := newActiveRoom(t, o, "h1", "p2")

	o.onRoundTimeout(roomID, 1)

	_, ok := o.Registry.Handle(roomID)
	assert.False(t, ok)
	_, ok = o.Registry.HandleByPlayer("h1")
	assert.False(t, ok)
	assert.True(t, cast.contains("Everyone timed out"))
	assert.False(t, o.Sched.Active(app.RoundTimerKey(roomID)))
	assert.False(t, o.Sched.Active(app.CharTimerKey(roomID)))
}

func TestStaleRoundTimerFireIsNoop(t *testing.T) {
	o, _ := newTestOrch(t, &fakeGen{})
	roomID := newActiveRoom(t, o, "h1")

	// Fire for a round that is long gone.
	o.onRoundTimeout(roomID, 99)

	h, ok := o.Registry.Handle(roomID)
	require.True(t, ok)
	h.Lock()
	defer h.Unlock()
	assert.Empty(t, h.Room.History)
	assert.Equal(t, 1, h.Room.Round)
}

// Exactly one resolution when the last action and the round timer race.
func TestResolutionRaceSingleWinner(t *testing.T) {
	gen := &fakeGen{fn: func(string) (string, bool) {
		time.Sleep(30 * time.Millisecond)
		return "The dust settles.", true
	}}
	o, _ := newTestOrch(t, gen)
	roomID := newActiveRoom(t, o, "h1", "p2")
	ctx := context.Background()

	_, err := o.SubmitAction(ctx, "h1", "hold the line")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = o.SubmitAction(ctx, "p2", "flank them")
	}()
	go func() {
		defer wg.Done()
		o.onRoundTimeout(roomID, 1)
	}()
	wg.Wait()

	h, ok := o.Registry.Handle(roomID)
	require.True(t, ok)
	h.Lock()
	defer h.Unlock()
	assert.Len(t, h.Room.History, 1, "exactly one resolution, not two, not zero")
	assert.Equal(t, 2, h.Room.Round)
}

func TestResolveRoundWithoutActionsRestartsTimer(t *testing.T) {
	o, cast := newTestOrch(t, &fakeGen{})
	roomID := newActiveRoom(t, o, "h1", "p2")

	o.resolveRound(context.Background(), roomID)

	h, ok := o.Registry.Handle(roomID)
	require.True(t, ok)
	h.Lock()
	assert.Equal(t, 1, h.Room.Round, "round does not advance on an empty resolution")
	assert.Empty(t, h.Room.History)
	h.Unlock()

	assert.True(t, cast.contains("No actions were recorded"))
	assert.True(t, o.Sched.Active(app.RoundTimerKey(roomID)))
}

func TestGenerationFailureUsesPlaceholder(t *testing.T) {
	gen := &fakeGen{fn: func(string) (string, bool) { return "", false }}
	o, _ := newTestOrch(t, gen)
	roomID := newActiveRoom(t, o, "h1")

	_, err := o.SubmitAction(context.Background(), "h1", "shout into the void")
	require.NoError(t, err)

	h, ok := o.Registry.Handle(roomID)
	require.True(t, ok)
	h.Lock()
	defer h.Unlock()
	require.Len(t, h.Room.History, 1)
	assert.Equal(t, placeholderResponse, h.Room.History[0].Response)
}

func TestCorrectionNoteConsumedByResolution(t *testing.T) {
	var sawNote bool
	gen := &fakeGen{fn: func(prompt string) (string, bool) {
		if strings.Contains(prompt, "go easier on them") {
			sawNote = true
		}
		return "Mercy prevails.", true
	}}
	o, _ := newTestOrch(t, gen)
	roomID := newActiveRoom(t, o, "h1")

	_, err := o.Pause("h1")
	require.NoError(t, err)
	_, err = o.StageCorrection("h1", "go easier on them")
	require.NoError(t, err)
	_, err = o.Resume("h1")
	require.NoError(t, err)

	_, err = o.SubmitAction(context.Background(), "h1", "beg for mercy")
	require.NoError(t, err)

	assert.True(t, sawNote, "staged note reaches the prompt")

	h, ok := o.Registry.Handle(roomID)
	require.True(t, ok)
	h.Lock()
	defer h.Unlock()
	assert.Empty(t, h.Room.PendingCfg.Correction, "note is one-shot")
}

func TestPauseStopsTimerResumeRearms(t *testing.T) {
	o, _ := newTestOrch(t, &fakeGen{})
	roomID := newActiveRoom(t, o, "h1", "p2")

	require.True(t, o.Sched.Active(app.RoundTimerKey(roomID)))

	_, err := o.Pause("h1")
	require.NoError(t, err)
	assert.False(t, o.Sched.Active(app.RoundTimerKey(roomID)))

	_, err = o.StageTimeout("h1", 90)
	require.NoError(t, err)

	// A join during pause stages the player as pending.
	require.NoError(t, o.Registry.JoinRoom(roomID, "p3", "Cleo", "a3", 8))

	_, err = o.Resume("h1")
	require.NoError(t, err)
	assert.True(t, o.Sched.Active(app.RoundTimerKey(roomID)))

	h, ok := o.Registry.Handle(roomID)
	require.True(t, ok)
	h.Lock()
	defer h.Unlock()
	assert.Equal(t, 90, h.Room.RoundTimeout)
	assert.Contains(t, h.Room.Active, domain.PlayerID("p3"))
	assert.Empty(t, h.Room.Pending)
}

func TestStageTimeoutRequiresPause(t *testing.T) {
	o, _ := newTestOrch(t, &fakeGen{})
	newActiveRoom(t, o, "h1")

	_, err := o.StageTimeout("h1", 90)
	assert.ErrorIs(t, err, domain.ErrNotPaused)
}

func TestHostLeaveClosesAndCancelsTimers(t *testing.T) {
	o, cast := newTestOrch(t, &fakeGen{})
	roomID := newActiveRoom(t, o, "h1", "p2")

	reply, err := o.Leave("h1", "Host_h1")
	require.NoError(t, err)
	assert.Contains(t, reply, "closed")

	_, ok := o.Registry.Handle(roomID)
	assert.False(t, ok)
	assert.False(t, o.Sched.Active(app.RoundTimerKey(roomID)))
	assert.True(t, cast.contains("The host left"))
}

func TestCloseRoomByAdmin(t *testing.T) {
	o, cast := newTestOrch(t, &fakeGen{})
	roomID := newActiveRoom(t, o, "h1")

	reply, err := o.CloseRoom(roomID)
	require.NoError(t, err)
	assert.Contains(t, reply, "Closed")

	_, ok := o.Registry.Handle(roomID)
	assert.False(t, ok)
	assert.True(t, cast.contains("closed by an administrator"))

	_, err = o.CloseRoom(roomID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoundTimerFiresEndToEnd(t *testing.T) {
	o, cast := newTestOrch(t, &fakeGen{})
	h, err := o.Registry.CreateRoom("h1", "Alice", "a1", app.RoomParams{Name: "Q", World: "wide world here", RoundTimeout: 1, CharTimeout: 180})
	require.NoError(t, err)
	require.NoError(t, o.Registry.JoinRoom(h.Room.ID, "p2", "Bob", "a2", 8))
	_, err = o.Begin("h1")
	require.NoError(t, err)
	ctx := context.Background()
	o.HandleCharacterText(ctx, "h1", "Ellen: elven archer, calm")
	o.HandleCharacterText(ctx, "p2", "Rogar: dwarven smith, stubborn")

	_, err = o.SubmitAction(ctx, "h1", "light a torch")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		hh, ok := o.Registry.Handle(h.Room.ID)
		if !ok {
			return false
		}
		hh.Lock()
		defer hh.Unlock()
		return len(hh.Room.History) == 1 && hh.Room.Round == 2
	}, 3*time.Second, 20*time.Millisecond)

	assert.True(t, cast.contains("Timed out: Rogar"))
}
