package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/domain"
)

// EventType names a lifecycle notification emitted by the note taker.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventSessionEnded   EventType = "session_ended"

	EventRecordingStarted EventType = "recording_started"
	EventRecordingStopped EventType = "recording_stopped"

	EventTranscriptionBatch   EventType = "transcription_batch"
	EventTranscriptionPartial EventType = "transcription_partial"
	EventTranscriptionFinal   EventType = "transcription_final"

	EventSummaryGenerated     EventType = "summary_generated"
	EventActionItemsGenerated EventType = "action_items_generated"
	EventNoteUpdated          EventType = "note_updated"

	EventBatchProcessingStarted   EventType = "batch_processing_started"
	EventBatchProcessingCompleted EventType = "batch_processing_completed"
	EventBatchProcessingFailed    EventType = "batch_processing_failed"

	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"

	EventExportStarted   EventType = "export_started"
	EventExportCompleted EventType = "export_completed"
	EventExportFailed    EventType = "export_failed"

	EventError   EventType = "error"
	EventWarning EventType = "warning"
)

// Event is immutable once constructed; handlers must not mutate Data.
type Event struct {
	Type      EventType      `json:"type"`
	RoomID    domain.RoomID  `json:"room_id"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps the event with the current time.
func NewEvent(t EventType, room domain.RoomID, sessionID string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{Type: t, RoomID: room, SessionID: sessionID, Data: data, Timestamp: time.Now().UTC()}
}

// EventHandler processes one event. A returned error is logged by the
// emitter and never propagated to the publisher.
type EventHandler func(ctx context.Context, ev Event) error

// Subscription identifies one registered handler so it can be removed.
type Subscription struct {
	id    uint64
	typ   EventType
	room  domain.RoomID
	scope handlerScope
}

type handlerScope int

const (
	scopeType handlerScope = iota
	scopeRoom
	scopeGlobal
)

// EventEmitter is a typed pub/sub bus with three handler scopes: per event
// type, per room, and global. Delivery is best-effort, at most once per
// registered handler, with no ordering guarantee across handler groups.
type EventEmitter struct {
	mu     sync.RWMutex
	nextID uint64
	byType map[EventType]map[uint64]EventHandler
	byRoom map[domain.RoomID]map[uint64]EventHandler
	global map[uint64]EventHandler
}

func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		byType: make(map[EventType]map[uint64]EventHandler),
		byRoom: make(map[domain.RoomID]map[uint64]EventHandler),
		global: make(map[uint64]EventHandler),
	}
}

// On registers a handler for one event type.
func (e *EventEmitter) On(t EventType, h EventHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	m, ok := e.byType[t]
	if !ok {
		m = make(map[uint64]EventHandler)
		e.byType[t] = m
	}
	m[e.nextID] = h
	log.Debug().Str("module", "core.events").Str("type", string(t)).Msg("registered type handler")
	return Subscription{id: e.nextID, typ: t, scope: scopeType}
}

// OnRoom registers a handler for every event in one room.
func (e *EventEmitter) OnRoom(room domain.RoomID, h EventHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	m, ok := e.byRoom[room]
	if !ok {
		m = make(map[uint64]EventHandler)
		e.byRoom[room] = m
	}
	m[e.nextID] = h
	log.Debug().Str("module", "core.events").Str("room", string(room)).Msg("registered room handler")
	return Subscription{id: e.nextID, room: room, scope: scopeRoom}
}

// OnAll registers a handler that receives every event.
func (e *EventEmitter) OnAll(h EventHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.global[e.nextID] = h
	log.Debug().Str("module", "core.events").Msg("registered global handler")
	return Subscription{id: e.nextID, scope: scopeGlobal}
}

// Remove unregisters a single handler. Removing an unknown subscription is
// a no-op.
func (e *EventEmitter) Remove(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch sub.scope {
	case scopeType:
		delete(e.byType[sub.typ], sub.id)
	case scopeRoom:
		delete(e.byRoom[sub.room], sub.id)
	case scopeGlobal:
		delete(e.global, sub.id)
	}
}

// RemoveRoomHandlers drops every handler registered for one room.
func (e *EventEmitter) RemoveRoomHandlers(room domain.RoomID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byRoom, room)
}

// ClearAllHandlers drops every registered handler in all scopes.
func (e *EventEmitter) ClearAllHandlers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byType = make(map[EventType]map[uint64]EventHandler)
	e.byRoom = make(map[domain.RoomID]map[uint64]EventHandler)
	e.global = make(map[uint64]EventHandler)
}

// Emit fans the event out to every matching handler concurrently and waits
// for all of them. One handler failing or panicking never stops the others
// and never reaches the publisher.
func (e *EventEmitter) Emit(ctx context.Context, ev Event) {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.global))
	for _, h := range e.byType[ev.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range e.byRoom[ev.RoomID] {
		handlers = append(handlers, h)
	}
	for _, h := range e.global {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h EventHandler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("module", "core.events").Str("type", string(ev.Type)).
						Str("room", string(ev.RoomID)).Interface("panic", r).Msg("event handler panicked")
				}
			}()
			if err := h(ctx, ev); err != nil {
				log.Error().Err(err).Str("module", "core.events").Str("type", string(ev.Type)).
					Str("room", string(ev.RoomID)).Msg("event handler failed")
			}
		}(h)
	}
	wg.Wait()
}

// EmitToRoom is a convenience wrapper constructing and emitting an event.
func (e *EventEmitter) EmitToRoom(ctx context.Context, room domain.RoomID, t EventType, data map[string]any) {
	e.Emit(ctx, NewEvent(t, room, "", data))
}

func (e *EventEmitter) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("EventEmitter(types=%d, rooms=%d, global=%d)", len(e.byType), len(e.byRoom), len(e.global))
}
