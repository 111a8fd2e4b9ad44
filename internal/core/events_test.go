package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/NoteTaker/internal/domain"
)

func TestEmitReachesAllScopes(t *testing.T) {
	e := NewEventEmitter()
	var byType, byRoom, global int32

	e.On(EventSessionStarted, func(context.Context, Event) error {
		atomic.AddInt32(&byType, 1)
		return nil
	})
	e.OnRoom("room-1", func(context.Context, Event) error {
		atomic.AddInt32(&byRoom, 1)
		return nil
	})
	e.OnAll(func(context.Context, Event) error {
		atomic.AddInt32(&global, 1)
		return nil
	})

	e.Emit(context.Background(), NewEvent(EventSessionStarted, "room-1", "s1", nil))

	assert.Equal(t, int32(1), atomic.LoadInt32(&byType))
	assert.Equal(t, int32(1), atomic.LoadInt32(&byRoom))
	assert.Equal(t, int32(1), atomic.LoadInt32(&global))
}

func TestEmitSkipsOtherRoomsAndTypes(t *testing.T) {
	e := NewEventEmitter()
	var calls int32

	e.On(EventSessionEnded, func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	e.OnRoom("room-2", func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	e.Emit(context.Background(), NewEvent(EventSessionStarted, "room-1", "s1", nil))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestFailingHandlerDoesNotStopOthers(t *testing.T) {
	e := NewEventEmitter()
	var ok int32

	e.On(EventSessionStarted, func(context.Context, Event) error {
		return errors.New("broken handler")
	})
	e.On(EventSessionStarted, func(context.Context, Event) error {
		atomic.AddInt32(&ok, 1)
		return nil
	})

	// Must not panic and must still run the healthy handler.
	e.Emit(context.Background(), NewEvent(EventSessionStarted, "room-1", "s1", nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ok))
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	e := NewEventEmitter()
	var ok int32

	e.OnAll(func(context.Context, Event) error {
		panic("handler bug")
	})
	e.OnAll(func(context.Context, Event) error {
		atomic.AddInt32(&ok, 1)
		return nil
	})

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), NewEvent(EventWarning, "room-1", "", nil))
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&ok))
}

func TestRemoveSubscription(t *testing.T) {
	e := NewEventEmitter()
	var calls int32

	sub := e.On(EventSessionStarted, func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	e.Emit(context.Background(), NewEvent(EventSessionStarted, "room-1", "", nil))
	e.Remove(sub)
	e.Emit(context.Background(), NewEvent(EventSessionStarted, "room-1", "", nil))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRemoveRoomHandlers(t *testing.T) {
	e := NewEventEmitter()
	var calls int32

	e.OnRoom("room-1", func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	e.RemoveRoomHandlers("room-1")

	e.Emit(context.Background(), NewEvent(EventSessionStarted, "room-1", "", nil))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClearAllHandlers(t *testing.T) {
	e := NewEventEmitter()
	var calls int32
	count := func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	e.On(EventSessionStarted, count)
	e.OnRoom("room-1", count)
	e.OnAll(count)
	e.ClearAllHandlers()

	e.Emit(context.Background(), NewEvent(EventSessionStarted, "room-1", "", nil))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestNewEventFillsDefaults(t *testing.T) {
	ev := NewEvent(EventSummaryGenerated, domain.RoomID("room-1"), "s1", nil)
	assert.NotNil(t, ev.Data)
	assert.False(t, ev.Timestamp.IsZero())
}
