package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
	"github.com/dkeye/NoteTaker/internal/metrics"
)

// DefaultFlushInterval is how often the flush loop re-checks the batch
// trigger. Deliberately short next to the buffer/silence thresholds so
// those are observed with little extra latency.
const DefaultFlushInterval = 30 * time.Second

// RecorderOptions tune a Recorder at construction time.
type RecorderOptions struct {
	SampleRate       int
	Channels         int
	BufferDuration   time.Duration
	SilenceThreshold time.Duration
	FlushInterval    time.Duration
}

type roomRecording struct {
	sessionID string
	buffer    *Buffer
	conn      io.Closer
	cancel    context.CancelFunc
	done      chan struct{}
}

// Recorder owns one Buffer per actively recorded room, wires an audio
// source's frames into it and runs the periodic flush loop. It implements
// core.Recorder.
type Recorder struct {
	source core.AudioSource
	opts   RecorderOptions

	mu      sync.Mutex
	rooms   map[domain.RoomID]*roomRecording
	onBatch core.BatchFunc
}

// NewRecorder builds a Recorder over the given source. A nil source is
// allowed: recording then runs without a live connection, which transcript
// only and test setups rely on.
func NewRecorder(source core.AudioSource, opts RecorderOptions) *Recorder {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = DefaultChannels
	}
	if opts.BufferDuration <= 0 {
		opts.BufferDuration = DefaultBufferDuration
	}
	if opts.SilenceThreshold <= 0 {
		opts.SilenceThreshold = DefaultSilenceThreshold
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	return &Recorder{
		source: source,
		opts:   opts,
		rooms:  make(map[domain.RoomID]*roomRecording),
	}
}

// OnBatch registers the consumer of mixed batch audio. Must be set before
// the first recording starts.
func (r *Recorder) OnBatch(fn core.BatchFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onBatch = fn
}

func (r *Recorder) batchFunc() core.BatchFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onBatch
}

// StartRecording creates a fresh buffer for the room, attaches the audio
// source and launches the flush loop. Fails when a recording is already
// active for the room.
func (r *Recorder) StartRecording(ctx context.Context, room domain.RoomID, sessionID string, cfg core.RecordConfig) (*core.RecordingStatus, error) {
	r.mu.Lock()
	if _, ok := r.rooms[room]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("recording already active for room %q: %w", room, core.ErrInvalidState)
	}

	bufDur := cfg.BufferDuration
	if bufDur <= 0 {
		bufDur = r.opts.BufferDuration
	}
	silence := cfg.SilenceThreshold
	if silence <= 0 {
		silence = r.opts.SilenceThreshold
	}
	buf := NewBuffer(r.opts.SampleRate, r.opts.Channels, bufDur, silence)

	loopCtx, cancel := context.WithCancel(context.Background())
	rec := &roomRecording{
		sessionID: sessionID,
		buffer:    buf,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.rooms[room] = rec
	r.mu.Unlock()

	hasConn := false
	if r.source != nil {
		conn, err := r.source.Open(ctx, room, core.FrameSink{
			OnFrame: func(participant domain.ParticipantID, pcm core.Frame) {
				buf.AddFrame(participant, pcm)
				metrics.FramesIngested.WithLabelValues(string(room)).Inc()
			},
		})
		if err != nil {
			cancel()
			close(rec.done)
			r.mu.Lock()
			delete(r.rooms, room)
			r.mu.Unlock()
			return nil, fmt.Errorf("open audio source for room %q: %w", room, err)
		}
		// Status may already see this record; conn is guarded by r.mu.
		r.mu.Lock()
		rec.conn = conn
		r.mu.Unlock()
		hasConn = true
	}

	go r.flushLoop(loopCtx, room, rec)

	log.Info().Str("module", "audio.recorder").Str("room", string(room)).
		Str("session_id", sessionID).Dur("buffer_duration", bufDur).Msg("recording started")

	return &core.RecordingStatus{
		RoomID:        room,
		SessionID:     sessionID,
		IsRecording:   true,
		HasConnection: hasConn,
		BufferInfo:    buf.Info(),
	}, nil
}

// flushLoop wakes on a fixed interval, and when the buffer's trigger fires
// it hands the mixed waveform to the batch callback and clears the buffer
// for the next window. Exits cleanly on cancellation.
func (r *Recorder) flushLoop(ctx context.Context, room domain.RoomID, rec *roomRecording) {
	defer close(rec.done)
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "audio.recorder").Str("room", string(room)).Msg("flush loop cancelled")
			return
		case <-ticker.C:
			if !rec.buffer.ShouldFlush() {
				continue
			}
			log.Info().Str("module", "audio.recorder").Str("room", string(room)).Msg("flushing audio batch")
			mixed := rec.buffer.Mix()
			if mixed != nil {
				if fn := r.batchFunc(); fn != nil {
					fn(ctx, room, mixed)
					metrics.BatchesFlushed.WithLabelValues(string(room)).Inc()
				}
			}
			rec.buffer.Clear()
		}
	}
}

// StopRecording flushes whatever is still buffered through the batch
// callback (best effort), cancels the flush loop and waits for it to
// actually stop, tears down the source connection, then clears the buffer.
func (r *Recorder) StopRecording(ctx context.Context, room domain.RoomID) error {
	r.mu.Lock()
	rec, ok := r.rooms[room]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("no active recording for room %q: %w", room, core.ErrInvalidState)
	}
	delete(r.rooms, room)
	r.mu.Unlock()

	// Final batch may be empty; that is fine.
	if mixed := rec.buffer.Mix(); mixed != nil {
		if fn := r.batchFunc(); fn != nil {
			fn(ctx, room, mixed)
			metrics.BatchesFlushed.WithLabelValues(string(room)).Inc()
		}
	}

	// Cancel and wait; tearing down the connection or clearing the buffer
	// while the loop still runs is the race to avoid here.
	rec.cancel()
	<-rec.done

	r.mu.Lock()
	conn := rec.conn
	r.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Str("module", "audio.recorder").Str("room", string(room)).Msg("audio source close failed")
		}
	}
	rec.buffer.Clear()

	log.Info().Str("module", "audio.recorder").Str("room", string(room)).Msg("recording stopped")
	return nil
}

// Status reports the room's recording state and buffer diagnostics.
func (r *Recorder) Status(room domain.RoomID) *core.RecordingStatus {
	r.mu.Lock()
	rec, ok := r.rooms[room]
	if !ok {
		r.mu.Unlock()
		return &core.RecordingStatus{RoomID: room}
	}
	sessionID := rec.sessionID
	hasConn := rec.conn != nil
	buf := rec.buffer
	r.mu.Unlock()

	return &core.RecordingStatus{
		RoomID:        room,
		SessionID:     sessionID,
		IsRecording:   true,
		HasConnection: hasConn,
		BufferInfo:    buf.Info(),
	}
}

// Cleanup stops every active recording. Individual failures are logged and
// do not block the remaining rooms.
func (r *Recorder) Cleanup(ctx context.Context) {
	r.mu.Lock()
	rooms := make([]domain.RoomID, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	for _, room := range rooms {
		if err := r.StopRecording(ctx, room); err != nil {
			log.Error().Err(err).Str("module", "audio.recorder").Str("room", string(room)).Msg("cleanup: stop failed")
		}
	}
	log.Info().Str("module", "audio.recorder").Int("rooms", len(rooms)).Msg("recorder cleanup complete")
}
