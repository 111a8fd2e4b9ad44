package core

import (
	"context"
	"io"
	"time"

	"github.com/dkeye/NoteTaker/internal/domain"
)

// Frame is a raw chunk of PCM16LE mono audio from one participant.
type Frame []byte

// FrameSink receives audio and membership callbacks from an audio source.
// Callbacks may be nil; sources must check before calling.
type FrameSink struct {
	OnFrame             func(participant domain.ParticipantID, pcm Frame)
	OnParticipantJoined func(participant domain.ParticipantID, name string)
	OnParticipantLeft   func(participant domain.ParticipantID)
}

// AudioSource supplies per-participant PCM frames for one room. The wire
// protocol behind it (WebRTC, SDK, websocket ingest) is the source's own
// concern. Closing the returned handle detaches the sink.
type AudioSource interface {
	Open(ctx context.Context, room domain.RoomID, sink FrameSink) (io.Closer, error)
}

// RecordConfig sizes one recording's buffering window.
type RecordConfig struct {
	Language         string
	BufferDuration   time.Duration
	SilenceThreshold time.Duration
}

// RecordingStatus describes one room's recording to API callers.
type RecordingStatus struct {
	RoomID        domain.RoomID  `json:"room_id"`
	SessionID     string         `json:"session_id,omitempty"`
	IsRecording   bool           `json:"is_recording"`
	HasConnection bool           `json:"has_connection"`
	BufferInfo    map[string]any `json:"buffer_info,omitempty"`
}

// BatchFunc is invoked with the mixed waveform each time a buffering window
// flushes.
type BatchFunc func(ctx context.Context, room domain.RoomID, mixed []byte)

// Recorder owns live audio capture per room: buffer, flush loop, source
// connection. Implemented by audio.Recorder; nil in transcript-only setups.
type Recorder interface {
	StartRecording(ctx context.Context, room domain.RoomID, sessionID string, cfg RecordConfig) (*RecordingStatus, error)
	StopRecording(ctx context.Context, room domain.RoomID) error
	Status(room domain.RoomID) *RecordingStatus
	OnBatch(fn BatchFunc)
	Cleanup(ctx context.Context)
}

// Transcriber converts raw PCM into transcript segments. Stream yields
// segments incrementally over a channel and closes it when the input
// channel closes or the context ends.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, language string, sampleRate int) ([]domain.TranscriptSegment, error)
	Stream(ctx context.Context, pcm <-chan []byte, language string, sampleRate int) (<-chan domain.TranscriptSegment, error)
	Close() error
}

// Summarizer produces meeting summaries and action items from transcript
// segments. Interval and final summaries are independently invocable.
type Summarizer interface {
	GenerateSummary(ctx context.Context, segments []domain.TranscriptSegment, isFinal bool) (*domain.SummaryResult, error)
	ExtractActionItems(ctx context.Context, segments []domain.TranscriptSegment) ([]domain.ActionItem, error)
	Close() error
}

// Storage persists sessions, transcripts and notes, keyed by session id.
type Storage interface {
	SaveSession(ctx context.Context, snap SessionSnapshot) error
	GetSession(ctx context.Context, sessionID string) (*SessionSnapshot, error)
	SaveTranscript(ctx context.Context, sessionID string, seg domain.TranscriptSegment) error
	GetTranscripts(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptSegment, error)
	SaveNote(ctx context.Context, sessionID string, note domain.Note) error
	GetNotes(ctx context.Context, sessionID string, noteType domain.NoteType) ([]domain.Note, error)
	Close() error
}

// ExportBundle is everything an export writer needs for one document.
type ExportBundle struct {
	Session     SessionSnapshot
	Notes       []domain.Note
	ActionItems []domain.ActionItem
	Transcript  domain.Transcript
}

// ExportService renders a session bundle into a file and returns its path.
type ExportService interface {
	Export(ctx context.Context, bundle ExportBundle, format domain.ExportFormat, opts domain.ExportOptions) (string, error)
	Close() error
}
