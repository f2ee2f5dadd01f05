// Package signal is the chat transport: one websocket session per client,
// JSON envelopes in, replies and room broadcasts out. Delivery is best
// effort; a slow client drops frames rather than stalling a room.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/app/dispatch"
	"github.com/dkeye/textworld/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Dispatch   *dispatch.Dispatcher
	ReadLimit  int64
	PingPeriod time.Duration

	mu    sync.RWMutex
	conns map[domain.Address]*WsConn
}

func NewController(d *dispatch.Dispatcher, readLimit int64, pingPeriod time.Duration) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Controller{
		Dispatch:   d,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
		conns:      make(map[domain.Address]*WsConn),
	}
}

type WsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and binds it to the client token so room
// broadcasts can reach this player.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	addr := domain.Address(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("addr", string(addr)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
	ctl.bind(addr, conn)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(ctx, conn)
		cancel()
	}()
	go func() {
		ctl.readPump(ctx, addr, conn)
		ctl.unbind(addr, conn)
		cancel()
	}()
}

func (ctl *Controller) bind(addr domain.Address, conn *WsConn) {
	ctl.mu.Lock()
	if old, ok := ctl.conns[addr]; ok {
		old.Close()
	}
	ctl.conns[addr] = conn
	ctl.mu.Unlock()
}

func (ctl *Controller) unbind(addr domain.Address, conn *WsConn) {
	ctl.mu.Lock()
	if cur, ok := ctl.conns[addr]; ok && cur == conn {
		delete(ctl.conns, addr)
	}
	ctl.mu.Unlock()
}

// Broadcast implements core.Broadcaster. Recipients without a live
// connection, and connections over their send budget, are skipped.
func (ctl *Controller) Broadcast(addrs []domain.Address, text string) {
	frame := marshalFrame("broadcast", text)

	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	sent := 0
	for _, addr := range addrs {
		conn, ok := ctl.conns[addr]
		if !ok {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("addr", string(addr)).Msg("broadcast drop")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "signal").Int("recipients", len(addrs)).Int("sent", sent).Msg("broadcast")
}
