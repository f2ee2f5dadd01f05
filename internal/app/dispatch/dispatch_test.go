package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/textworld/internal/app"
	"github.com/dkeye/textworld/internal/app/orch"
	"github.com/dkeye/textworld/internal/config"
	"github.com/dkeye/textworld/internal/core"
	"github.com/dkeye/textworld/internal/domain"
)

type nullGen struct{}

func (nullGen) Generate(context.Context, string) (string, bool) { return "The DM narrates.", true }

type nullCast struct{}

func (nullCast) Broadcast([]domain.Address, string) {}

type stubParser struct {
	text string
	err  error
}

func (p stubParser) ParseFile(context.Context, string, string) (string, error) {
	return p.text, p.err
}

func dispCfg() config.Game {
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
	}
}

func newDispatcher(t *testing.T, parser core.FileParser) (*Dispatcher, *app.Registry) {
	t.Helper()
	cfg := dispCfg()
	reg := app.NewRegistry(cfg.MaxRooms)
	sched := app.NewScheduler()
	t.Cleanup(sched.CancelAll)
	o := orch.New(reg, sched, nullGen{}, nullCast{}, cfg)
	wiz := app.NewWizard(reg, nullGen{}, cfg)
	return New(reg, wiz, o, parser, cfg, []string{"admin1"}), reg
}

func msg(id, text string) core.Inbound {
	return core.Inbound{
		PlayerID: domain.PlayerID(id),
		Name:     "Player_" + id,
		Addr:     domain.Address("addr_" + id),
		Text:     text,
	}
}

func one(t *testing.T, replies []string) string {
	t.Helper()
	require.Len(t, replies, 1)
	return replies[0]
}

func TestHelpAndUnknownCommand(t *testing.T) {
	d, _ := newDispatcher(t, stubParser{})
	ctx := context.Background()

	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw help"))), "/tw create")
	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw"))), "/tw create")
	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw frobnicate"))), "Unknown command")
}

func TestCreateWizardFlowThroughDispatcher(t *testing.T) {
	d, reg := newDispatcher(t, stubParser{})
	ctx := context.Background()

	reply := one(t, d.Handle(ctx, msg("p1", "/tw create")))
	assert.Contains(t, reply, "room name")

	d.Handle(ctx, msg("p1", "Dragon Hunt"))
	d.Handle(ctx, msg("p1", "default"))
	replies := d.Handle(ctx, msg("p1", "A land of dragons and ancient ruins."))
	require.NotEmpty(t, replies)
	assert.Contains(t, replies[0], "Confirm")

	replies = d.Handle(ctx, msg("p1", "confirm"))
	assert.Contains(t, replies[0], "Room created")

	h, ok := reg.HandleByPlayer("p1")
	require.True(t, ok)
	assert.Equal(t, "Dragon Hunt", h.Room.Name)

	// A second create while already in a room is refused.
	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw create"))), "already in a room")
}

func TestCreateCancel(t *testing.T) {
	d, _ := newDispatcher(t, stubParser{})
	ctx := context.Background()

	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw cancel"))), "No room creation")
	d.Handle(ctx, msg("p1", "/tw create"))
	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw cancel"))), "cancelled")
}

func TestWizardFileAttachment(t *testing.T) {
	d, _ := newDispatcher(t, stubParser{text: "A world parsed from an uploaded document."})
	ctx := context.Background()

	d.Handle(ctx, msg("p1", "/tw create"))
	d.Handle(ctx, msg("p1", "Dragon Hunt"))
	d.Handle(ctx, msg("p1", "default"))

	in := msg("p1", "")
	in.File = &core.FileAttachment{URL: "http://example/file.txt", Filename: "file.txt"}
	replies := d.Handle(ctx, in)
	require.GreaterOrEqual(t, len(replies), 2)
	assert.Contains(t, replies[0], "File parsed")
	assert.Contains(t, replies[1], "Confirm")
}

func TestWizardFileAttachmentError(t *testing.T) {
	d, _ := newDispatcher(t, stubParser{err: errors.New("bad download")})
	ctx := context.Background()

	d.Handle(ctx, msg("p1", "/tw create"))
	in := msg("p1", "")
	in.File = &core.FileAttachment{URL: "http://example/file.txt", Filename: "file.txt"}
	assert.Contains(t, one(t, d.Handle(ctx, in)), "Could not read the file")
}

func TestQuickCreateAndJoin(t *testing.T) {
	d, reg := newDispatcher(t, stubParser{})
	ctx := context.Background()

	reply := one(t, d.Handle(ctx, msg("h1", "/tw quickcreate Sudden Quest")))
	assert.Contains(t, reply, "Quick room created")
	assert.Contains(t, reply, "Sudden Quest")

	h, ok := reg.HandleByPlayer("h1")
	require.True(t, ok)
	assert.Equal(t, quickWorldFallback, h.Room.World)
	assert.Equal(t, 300, h.Room.RoundTimeout)

	assert.Contains(t, one(t, d.Handle(ctx, msg("p2", "/tw join"))), "Usage")
	assert.Contains(t, one(t, d.Handle(ctx, msg("p2", "/tw join nope"))), "not found")
	assert.Equal(t, "Joined the room.", one(t, d.Handle(ctx, msg("p2", "/tw join "+string(h.Room.ID)))))
}

func TestActPath(t *testing.T) {
	d, reg := newDispatcher(t, stubParser{})
	ctx := context.Background()

	d.Handle(ctx, msg("h1", "/tw quickcreate"))
	h, _ := reg.HandleByPlayer("h1")

	assert.Contains(t, one(t, d.Handle(ctx, msg("h1", "/tw act"))), "Usage")

	reply := one(t, d.Handle(ctx, msg("h1", "/tw act swing the sword")))
	assert.Contains(t, reply, "not running", "cannot act before the game begins")

	d.Handle(ctx, msg("h1", "/tw begin"))
	// Free text routes to character creation once the wizard is idle.
	reply = one(t, d.Handle(ctx, msg("h1", "Ellen: elven archer, calm")))
	assert.Contains(t, reply, "Character ready")

	reply = one(t, d.Handle(ctx, msg("h1", "/tw act swing the sword")))
	assert.Contains(t, reply, "action recorded")

	h.Lock()
	defer h.Unlock()
	assert.Len(t, h.Room.History, 1, "sole player acting resolves the round")
}

func TestSetTimeoutParsing(t *testing.T) {
	d, _ := newDispatcher(t, stubParser{})
	ctx := context.Background()
	d.Handle(ctx, msg("h1", "/tw quickcreate"))

	assert.Contains(t, one(t, d.Handle(ctx, msg("h1", "/tw set volume 9"))), "Usage")
	assert.Contains(t, one(t, d.Handle(ctx, msg("h1", "/tw set timeout soon"))), "seconds")

	// Staging needs a paused game; a waiting room cannot pause at all.
	assert.Contains(t, one(t, d.Handle(ctx, msg("h1", "/tw pause"))), "phase")

	d.Handle(ctx, msg("h1", "/tw begin"))
	d.Handle(ctx, msg("h1", "Ellen: elven archer, calm"))
	d.Handle(ctx, msg("h1", "/tw pause"))
	assert.Contains(t, one(t, d.Handle(ctx, msg("h1", "/tw set timeout 90"))), "90")
}

func TestNoteRequiresText(t *testing.T) {
	d, _ := newDispatcher(t, stubParser{})
	ctx := context.Background()
	assert.Contains(t, one(t, d.Handle(ctx, msg("h1", "/tw note"))), "Usage")
}

func TestStatusWorldCharsList(t *testing.T) {
	d, reg := newDispatcher(t, stubParser{})
	ctx := context.Background()

	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw list"))), "No rooms")
	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw world"))), "not in a room")

	d.Handle(ctx, msg("h1", "/tw quickcreate Sudden Quest"))
	h, _ := reg.HandleByPlayer("h1")

	status := one(t, d.Handle(ctx, msg("h1", "/tw status")))
	assert.Contains(t, status, "Sudden Quest")
	assert.Contains(t, status, "Phase: waiting")

	byID := one(t, d.Handle(ctx, msg("p9", "/tw status "+string(h.Room.ID))))
	assert.Contains(t, byID, "Sudden Quest")

	assert.Contains(t, one(t, d.Handle(ctx, msg("h1", "/tw world"))), "World setting")
	assert.Contains(t, one(t, d.Handle(ctx, msg("h1", "/tw chars"))), "No characters yet")

	list := one(t, d.Handle(ctx, msg("p1", "/tw list")))
	assert.Contains(t, list, "Sudden Quest")
	assert.Contains(t, list, string(h.Room.ID))
}

func TestAdminGating(t *testing.T) {
	d, reg := newDispatcher(t, stubParser{})
	ctx := context.Background()

	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw admin list"))), "not an administrator")

	d.Handle(ctx, msg("h1", "/tw quickcreate"))
	h, _ := reg.HandleByPlayer("h1")

	view := one(t, d.Handle(ctx, msg("admin1", "/tw admin list")))
	assert.Contains(t, view, "Admin view")
	assert.Contains(t, view, string(h.Room.ID))

	assert.Contains(t, one(t, d.Handle(ctx, msg("admin1", "/tw admin close"))), "Usage")
	assert.Contains(t, one(t, d.Handle(ctx, msg("admin1", "/tw admin close "+string(h.Room.ID)))), "Closed")
	_, ok := reg.HandleByPlayer("h1")
	assert.False(t, ok)

	assert.Contains(t, one(t, d.Handle(ctx, msg("admin1", "/tw admin"))), "Admin commands")
}

func TestFreeTextWithoutDestinationIgnored(t *testing.T) {
	d, _ := newDispatcher(t, stubParser{})
	assert.Nil(t, d.Handle(context.Background(), msg("p1", "just chatting")))
}

func TestLeaveAndClose(t *testing.T) {
	d, reg := newDispatcher(t, stubParser{})
	ctx := context.Background()

	assert.Contains(t, one(t, d.Handle(ctx, msg("p1", "/tw leave"))), "not in")

	d.Handle(ctx, msg("h1", "/tw quickcreate"))
	h, _ := reg.HandleByPlayer("h1")
	d.Handle(ctx, msg("p2", "/tw join "+string(h.Room.ID)))

	assert.Contains(t, one(t, d.Handle(ctx, msg("p2", "/tw leave"))), "You left")
	assert.Contains(t, one(t, d.Handle(ctx, msg("h1", "/tw close"))), "Closed")
	_, ok := reg.HandleByPlayer("h1")
	assert.False(t, ok)

	assert.Contains(t, strings.ToLower(one(t, d.Handle(ctx, msg("h1", "/tw close")))), "not in")
}
