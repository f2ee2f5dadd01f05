// Package dispatch maps inbound chat traffic onto engine operations: slash
// commands to registry/orchestrator calls, free text to the active wizard or
// character-creation step of the sender.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/app"
	"github.com/dkeye/textworld/internal/app/orch"
	"github.com/dkeye/textworld/internal/config"
	"github.com/dkeye/textworld/internal/core"
	"github.com/dkeye/textworld/internal/domain"
)

const quickWorldFallback = "A world of fantasy and adventure where magic and swordplay coexist, and danger walks hand in hand with opportunity."

type Dispatcher struct {
	Registry *app.Registry
	Wizard   *app.Wizard
	Orch     *orch.Orchestrator
	Parser   core.FileParser
	Cfg      config.Game
	Admins   map[domain.PlayerID]struct{}
}

func New(reg *app.Registry, wiz *app.Wizard, o *orch.Orchestrator, parser core.FileParser, cfg config.Game, admins []string) *Dispatcher {
	set := make(map[domain.PlayerID]struct{}, len(admins))
	for _, id := range admins {
		set[domain.PlayerID(id)] = struct{}{}
	}
	return &Dispatcher{Registry: reg, Wizard: wiz, Orch: o, Parser: parser, Cfg: cfg, Admins: set}
}

func (d *Dispatcher) isAdmin(id domain.PlayerID) bool {
	_, ok := d.Admins[id]
	return ok
}

// Handle processes one inbound message and returns the direct replies for
// the sender. Broadcasts to other members happen inside the engine.
func (d *Dispatcher) Handle(ctx context.Context, in core.Inbound) []string {
	text := strings.TrimSpace(in.Text)

	if strings.HasPrefix(text, "/tw") {
		return d.command(ctx, in, strings.TrimSpace(strings.TrimPrefix(text, "/tw")))
	}
	return d.freeText(ctx, in, text)
}

// freeText routes non-command input to the sender's wizard step or, failing
// that, their character-creation step. Input with neither destination is
// silently ignored, as chat noise.
func (d *Dispatcher) freeText(ctx context.Context, in core.Inbound, text string) []string {
	if d.Wizard.InProgress(in.PlayerID) {
		if in.File != nil {
			parsed, err := d.Parser.ParseFile(ctx, in.File.URL, in.File.Filename)
			if err != nil {
				return []string{fmt.Sprintf("Could not read the file: %v", err)}
			}
			pre := fmt.Sprintf("File parsed: %d characters.", len([]rune(parsed)))
			replies, _ := d.Wizard.HandleInput(ctx, in.PlayerID, parsed)
			return append([]string{pre}, replies...)
		}
		replies, _ := d.Wizard.HandleInput(ctx, in.PlayerID, text)
		return replies
	}

	if reply, handled := d.Orch.HandleCharacterText(ctx, in.PlayerID, text); handled {
		return []string{reply}
	}
	return nil
}

func (d *Dispatcher) command(ctx context.Context, in core.Inbound, rest string) []string {
	verb, arg, _ := strings.Cut(rest, " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "create", "start":
		return d.cmdCreate(in)
	case "quickcreate", "quickstart":
		return d.cmdQuickCreate(in, arg)
	case "cancel":
		if d.Wizard.Cancel(in.PlayerID) {
			return []string{"Room creation cancelled."}
		}
		return []string{"No room creation in progress."}
	case "join":
		return d.cmdJoin(in, arg)
	case "leave":
		return reply1(d.Orch.Leave(in.PlayerID, in.Name))
	case "begin":
		return reply1(d.Orch.Begin(in.PlayerID))
	case "act":
		if arg == "" {
			return []string{"Usage: /tw act <action description>"}
		}
		return reply1(d.Orch.SubmitAction(ctx, in.PlayerID, arg))
	case "pause":
		return reply1(d.Orch.Pause(in.PlayerID))
	case "resume":
		return reply1(d.Orch.Resume(in.PlayerID))
	case "set":
		return d.cmdSet(in, arg)
	case "note":
		if arg == "" {
			return []string{"Usage: /tw note <text for the DM>"}
		}
		return reply1(d.Orch.StageCorrection(in.PlayerID, arg))
	case "status":
		return d.cmdStatus(in, arg)
	case "world":
		return d.cmdWorld(in)
	case "chars":
		return d.cmdChars(in)
	case "list":
		return d.cmdList()
	case "close":
		return reply1(d.Orch.Close(in.PlayerID))
	case "admin":
		return d.cmdAdmin(in, arg)
	case "help", "":
		return []string{helpText}
	}
	return []string{fmt.Sprintf("Unknown command %q. Try /tw help.", verb)}
}

func (d *Dispatcher) cmdCreate(in core.Inbound) []string {
	if _, ok := d.Registry.HandleByPlayer(in.PlayerID); ok {
		return []string{"You are already in a room. /tw leave first."}
	}
	if d.Wizard.InProgress(in.PlayerID) {
		return []string{"Creation already in progress. /tw cancel to abort."}
	}
	if d.Registry.RoomCount() >= d.Cfg.MaxRooms {
		return []string{"Room limit reached, try again later."}
	}
	reply, err := d.Wizard.Begin(in.PlayerID, in.Name, in.Addr)
	if err != nil {
		return []string{err.Error()}
	}
	return []string{reply}
}

func (d *Dispatcher) cmdQuickCreate(in core.Inbound, name string) []string {
	if _, ok := d.Registry.HandleByPlayer(in.PlayerID); ok {
		return []string{"You are already in a room."}
	}
	d.Wizard.Cancel(in.PlayerID)

	if name == "" {
		name = "Quick adventure"
	}
	world := d.Cfg.WorldTemplate
	if world == "" {
		world = quickWorldFallback
	}

	h, err := d.Registry.CreateRoom(in.PlayerID, in.Name, in.Addr, app.RoomParams{
		Name:         name,
		World:        world,
		RoundTimeout: d.Cfg.DefaultTimeout,
		CharTimeout:  d.Cfg.CharTimeout,
	})
	if err != nil {
		return []string{fmt.Sprintf("Could not create the room: %v", err)}
	}
	room := h.Room
	return []string{fmt.Sprintf(
		"Quick room created.\n%s | ID: %s\nJoin: /tw join %s\nStart: /tw begin",
		room.Name, room.ID, room.ID)}
}

func (d *Dispatcher) cmdJoin(in core.Inbound, roomID string) []string {
	if roomID == "" {
		return []string{"Usage: /tw join <room id>"}
	}
	d.Wizard.Cancel(in.PlayerID)

	err := d.Registry.JoinRoom(domain.RoomID(roomID), in.PlayerID, in.Name, in.Addr, d.Cfg.MaxPlayersPerRoom)
	if err != nil {
		return []string{err.Error()}
	}

	if h, ok := d.Registry.Handle(domain.RoomID(roomID)); ok {
		h.Lock()
		addrs := h.Room.Addresses()
		count := h.Room.ActiveCount()
		h.Unlock()
		d.Orch.Cast.Broadcast(addrs, fmt.Sprintf("%s joined! (%d players)", in.Name, count))
	}
	return []string{"Joined the room."}
}

func (d *Dispatcher) cmdSet(in core.Inbound, arg string) []string {
	key, val, _ := strings.Cut(arg, " ")
	if key != "timeout" {
		return []string{"Usage: /tw set timeout <seconds> (while paused)"}
	}
	secs, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return []string{"Enter the timeout in seconds."}
	}
	return reply1(d.Orch.StageTimeout(in.PlayerID, secs))
}

func (d *Dispatcher) cmdStatus(in core.Inbound, roomID string) []string {
	var h *core.RoomHandle
	var ok bool
	if roomID != "" {
		h, ok = d.Registry.Handle(domain.RoomID(roomID))
	} else {
		h, ok = d.Registry.HandleByPlayer(in.PlayerID)
	}
	if !ok {
		return []string{"Room not found."}
	}

	h.Lock()
	defer h.Unlock()
	room := h.Room

	hostName := "?"
	if host, ok := room.Active[room.HostID]; ok {
		hostName = host.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nID: %s\nHost: %s\nPhase: %s\nRound %d | timeout %ds\nPlayers (%d):\n",
		room.Name, room.ID, hostName, room.Phase, room.Round, room.RoundTimeout, room.ActiveCount())
	for _, p := range room.Active {
		char := ""
		if p.CharacterName != "" {
			char = fmt.Sprintf(" [%s]", p.CharacterName)
		}
		fmt.Fprintf(&b, "  %s%s - %s\n", p.Name, char, p.Status)
	}
	for _, p := range room.Pending {
		fmt.Fprintf(&b, "  %s - pending\n", p.Name)
	}
	return []string{strings.TrimSpace(b.String())}
}

func (d *Dispatcher) cmdWorld(in core.Inbound) []string {
	h, ok := d.Registry.HandleByPlayer(in.PlayerID)
	if !ok {
		return []string{"You are not in a room."}
	}
	h.Lock()
	world := h.Room.World
	h.Unlock()
	return []string{app.LongMessage(world, fmt.Sprintf("World setting (%d characters)", len([]rune(world))), d.Cfg.ChunkSize)}
}

func (d *Dispatcher) cmdChars(in core.Inbound) []string {
	h, ok := d.Registry.HandleByPlayer(in.PlayerID)
	if !ok {
		return []string{"You are not in a room."}
	}
	h.Lock()
	roster := h.Room.CharacterRoster()
	h.Unlock()
	if roster == "" {
		return []string{"No characters yet."}
	}
	return []string{app.LongMessage(roster, "Characters", d.Cfg.ChunkSize)}
}

func (d *Dispatcher) cmdList() []string {
	rooms := d.Registry.List()
	if len(rooms) == 0 {
		return []string{"No rooms right now. /tw create to start one."}
	}
	var b strings.Builder
	b.WriteString("Rooms:\n")
	for _, r := range rooms {
		fmt.Fprintf(&b, "  [%s] %s - %s, %d players\n", r.ID, r.Name, r.Phase, r.PlayerCount)
	}
	return []string{strings.TrimSpace(b.String())}
}

func (d *Dispatcher) cmdAdmin(in core.Inbound, arg string) []string {
	if !d.isAdmin(in.PlayerID) {
		return []string{"You are not an administrator."}
	}
	verb, target, _ := strings.Cut(arg, " ")
	target = strings.TrimSpace(target)

	switch verb {
	case "close":
		if target == "" {
			return []string{"Usage: /tw admin close <room id>"}
		}
		log.Info().Str("module", "dispatch").Str("admin", string(in.PlayerID)).Str("room", target).Msg("admin close")
		return reply1(d.Orch.CloseRoom(domain.RoomID(target)))
	case "list":
		rooms := d.Registry.List()
		if len(rooms) == 0 {
			return []string{"No rooms."}
		}
		var b strings.Builder
		b.WriteString("Admin view:\n")
		for _, r := range rooms {
			fmt.Fprintf(&b, "  %s\n    ID: %s\n    Host: %s\n    Phase: %s\n    Players: %d\n    Round: %d\n",
				r.Name, r.ID, r.HostName, r.Phase, r.PlayerCount, r.Round)
		}
		return []string{strings.TrimSpace(b.String())}
	}
	return []string{"Admin commands:\n/tw admin close <room id>\n/tw admin list"}
}

func reply1(reply string, err error) []string {
	if err != nil {
		return []string{err.Error()}
	}
	return []string{reply}
}

const helpText = `Textworld adventure
Create:
  /tw create - guided setup
  /tw quickcreate [name] - instant room
  /tw cancel - abort setup
Join:
  /tw join <id> | /tw leave | /tw list
Play:
  /tw begin | /tw act <action> | /tw status [id]
  /tw world | /tw chars
Host:
  /tw pause | /tw resume | /tw close
  /tw set timeout <s> | /tw note <text> (while paused)`
