// Package ingest accepts meeting audio over websocket connections and
// feeds it to whoever is recording the room.
//
// Wire protocol, one connection per room:
//   - text messages are JSON control frames: {"type":"join","participant":id,"name":...},
//     {"type":"leave","participant":id}, {"type":"ping"}
//   - binary messages carry audio: one length-prefixed participant id
//     followed by raw PCM16LE samples.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub routes inbound audio to the sink registered per room. It implements
// core.AudioSource: the recording controller opens a room, websocket
// clients stream into it.
type Hub struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]core.FrameSink
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[domain.RoomID]core.FrameSink)}
}

// Open registers the sink for a room. Closing the returned handle detaches
// it; frames arriving without a sink are dropped.
func (h *Hub) Open(_ context.Context, room domain.RoomID, sink core.FrameSink) (io.Closer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; ok {
		return nil, errors.New("room already open: " + string(room))
	}
	h.rooms[room] = sink
	log.Info().Str("module", "adapters.ingest").Str("room", string(room)).Msg("room opened for ingest")
	return closerFunc(func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.rooms, room)
		log.Info().Str("module", "adapters.ingest").Str("room", string(room)).Msg("room ingest closed")
		return nil
	}), nil
}

func (h *Hub) sink(room domain.RoomID) (core.FrameSink, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sink, ok := h.rooms[room]
	return sink, ok
}

// HandleConn upgrades the request and pumps messages until the client goes
// away or the context ends.
func (h *Hub) HandleConn(ctx context.Context, c *gin.Context) {
	room := domain.RoomID(c.Param("room"))
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ingest").Msg("ws upgrade failed")
		return
	}
	defer ws.Close()

	log.Info().Str("module", "adapters.ingest").Str("room", string(room)).
		Str("sid", c.GetString("client_token")).Msg("ingest connection opened")

	h.readPump(ctx, room, ws)
}

func (h *Hub) readPump(ctx context.Context, room domain.RoomID, ws *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, data, err := ws.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.ingest").Str("room", string(room)).Msg("ingest read ended")
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			h.handleAudio(room, data)
		case websocket.TextMessage:
			h.handleControl(room, ws, data)
		}
	}
}

// handleAudio decodes [len][participant-id][pcm...] and forwards the PCM.
func (h *Hub) handleAudio(room domain.RoomID, data []byte) {
	if len(data) < 2 {
		return
	}
	idLen := int(data[0])
	if len(data) < 1+idLen {
		return
	}
	participant := domain.ParticipantID(data[1 : 1+idLen])
	pcm := data[1+idLen:]
	if len(pcm) == 0 {
		return
	}

	sink, ok := h.sink(room)
	if !ok || sink.OnFrame == nil {
		return
	}
	sink.OnFrame(participant, core.Frame(pcm))
}

func (h *Hub) handleControl(room domain.RoomID, ws *websocket.Conn, data []byte) {
	var msg struct {
		Type        string `json:"type"`
		Participant string `json:"participant"`
		Name        string `json:"name,omitempty"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ingest").Msg("bad control frame")
		return
	}

	switch msg.Type {
	case "ping":
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
	case "join":
		if sink, ok := h.sink(room); ok && sink.OnParticipantJoined != nil {
			sink.OnParticipantJoined(domain.ParticipantID(msg.Participant), msg.Name)
		}
	case "leave":
		if sink, ok := h.sink(room); ok && sink.OnParticipantLeft != nil {
			sink.OnParticipantLeft(domain.ParticipantID(msg.Participant))
		}
	default:
		log.Warn().Str("module", "adapters.ingest").Str("type", msg.Type).Msg("unknown control frame")
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
