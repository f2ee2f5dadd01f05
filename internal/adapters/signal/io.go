package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/core"
	"github.com/dkeye/textworld/internal/domain"
)

// inboundEnvelope is one unit of client input. "command" carries a slash
// command; "say" carries free text routed to the sender's wizard or
// character step. A file attachment may ride along with either.
type inboundEnvelope struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Text string `json:"text"`
	File *struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
	} `json:"file"`
}

type outboundEnvelope struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func marshalFrame(typ, text string) []byte {
	data, _ := json.Marshal(outboundEnvelope{Type: typ, Text: text})
	return data
}

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, addr domain.Address, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("addr", string(addr)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("addr", string(addr)).Msg("readPump read error")
				return
			}
			ctl.handleFrame(ctx, addr, c, data)
		}
	}
}

func (ctl *Controller) handleFrame(ctx context.Context, addr domain.Address, c *WsConn, data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "ping":
		_ = c.TrySend(marshalFrame("pong", ""))
		return
	case "command", "say":
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown envelope type")
		return
	}

	name := env.Name
	if name == "" {
		name = "guest"
	}
	in := core.Inbound{
		// The client token doubles as the player identity and reply address.
		PlayerID: domain.PlayerID(addr),
		Name:     name,
		Addr:     addr,
		Text:     env.Text,
	}
	if env.File != nil && env.File.URL != "" {
		in.File = &core.FileAttachment{URL: env.File.URL, Filename: env.File.Filename}
	}

	for _, reply := range ctl.Dispatch.Handle(ctx, in) {
		if err := c.TrySend(marshalFrame("reply", reply)); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("addr", string(addr)).Msg("reply drop")
		}
	}
}
