// Package events streams the note taker's event bus to websocket clients.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
)

// ErrBackpressure means a client's send queue was full; the event is
// dropped for that client rather than stalling the emitter.
var ErrBackpressure = errors.New("client send queue full")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const sendQueueSize = 64

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsConn) TrySend(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// Controller subscribes each websocket client to the emitter and relays
// events as JSON. A ?room= query narrows the stream to one room.
type Controller struct {
	emitter *core.EventEmitter
}

func NewController(emitter *core.EventEmitter) *Controller {
	return &Controller{emitter: emitter}
}

func (ctl *Controller) HandleStream(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.events").Msg("ws upgrade failed")
		return
	}

	conn := &wsConn{conn: ws, send: make(chan []byte, sendQueueSize)}
	room := domain.RoomID(c.Query("room"))

	handler := func(_ context.Context, ev core.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := conn.TrySend(data); err != nil {
			log.Warn().Str("module", "adapters.events").Str("event", string(ev.Type)).Msg("dropping event for slow client")
		}
		return nil
	}

	var sub core.Subscription
	if room != "" {
		sub = ctl.emitter.OnRoom(room, handler)
	} else {
		sub = ctl.emitter.OnAll(handler)
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn, func() {
		ctl.emitter.Remove(sub)
		cancel()
	})

	log.Info().Str("module", "adapters.events").Str("room", string(room)).
		Str("sid", c.GetString("client_token")).Msg("event stream opened")
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "adapters.events").Msg("event write failed")
				return
			}
		}
	}
}

// readPump exists to detect the client going away; inbound payloads are
// ignored.
func (ctl *Controller) readPump(ctx context.Context, c *wsConn, onClose func()) {
	defer func() {
		onClose()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := c.conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
