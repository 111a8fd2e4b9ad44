// Package app wires the session store, recording controller, event emitter
// and external collaborators behind one façade.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/audio"
	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
	"github.com/dkeye/NoteTaker/internal/metrics"
)

// Config tunes the manager's buffering and summarization behavior.
type Config struct {
	AutoSummarize    bool
	SummaryInterval  time.Duration
	BufferDuration   time.Duration
	SilenceThreshold time.Duration
	Language         string
	SampleRate       int

	// SaveAudioDir, when set, keeps a WAV copy of every mixed batch for
	// debugging transcription quality.
	SaveAudioDir string
}

// DefaultConfig mirrors the buffering defaults of the audio package.
func DefaultConfig() Config {
	return Config{
		AutoSummarize:    true,
		SummaryInterval:  15 * time.Minute,
		BufferDuration:   15 * time.Minute,
		SilenceThreshold: 2 * time.Minute,
		Language:         "en-US",
		SampleRate:       16000,
	}
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager coordinates sessions, recording, events and the pluggable
// transcription/AI/storage/export collaborators. Any collaborator may be
// nil; the corresponding behavior is skipped.
type Manager struct {
	recorder    core.Recorder
	transcriber core.Transcriber
	summarizer  core.Summarizer
	storage     core.Storage
	exporter    core.ExportService
	emitter     *core.EventEmitter
	cfg         Config

	mu       sync.Mutex
	sessions map[domain.RoomID]*core.MeetingSession
	tasks    map[domain.RoomID][]*task
}

// Deps carries the manager's collaborators.
type Deps struct {
	Recorder    core.Recorder
	Transcriber core.Transcriber
	Summarizer  core.Summarizer
	Storage     core.Storage
	Exporter    core.ExportService
	Emitter     *core.EventEmitter
}

func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Emitter == nil {
		deps.Emitter = core.NewEventEmitter()
	}
	if cfg.SummaryInterval <= 0 {
		cfg.SummaryInterval = DefaultConfig().SummaryInterval
	}
	if cfg.Language == "" {
		cfg.Language = DefaultConfig().Language
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}
	m := &Manager{
		recorder:    deps.Recorder,
		transcriber: deps.Transcriber,
		summarizer:  deps.Summarizer,
		storage:     deps.Storage,
		exporter:    deps.Exporter,
		emitter:     deps.Emitter,
		cfg:         cfg,
		sessions:    make(map[domain.RoomID]*core.MeetingSession),
		tasks:       make(map[domain.RoomID][]*task),
	}
	if m.recorder != nil {
		m.recorder.OnBatch(m.handleBatch)
	}
	log.Info().Str("module", "app.manager").Msg("manager initialized")
	return m
}

// Emitter exposes the event bus for external subscribers.
func (m *Manager) Emitter() *core.EventEmitter { return m.emitter }

// StartSession starts (or reuses) the session for a room. An unfinished
// session is returned as-is with a warning; a completed one is reactivated.
func (m *Manager) StartSession(ctx context.Context, room domain.RoomID, title, description string) (*core.MeetingSession, error) {
	m.mu.Lock()
	if s, ok := m.sessions[room]; ok {
		if s.Status() == core.StatusCompleted {
			s.Reactivate()
			m.mu.Unlock()
			metrics.SessionsActive.Inc()
			log.Info().Str("module", "app.manager").Str("room", string(room)).Msg("reactivated completed session")
			return s, nil
		}
		m.mu.Unlock()
		log.Warn().Str("module", "app.manager").Str("room", string(room)).Msg("session already active for room")
		return s, nil
	}

	s := core.NewMeetingSession(room, title, description, "")
	s.Start()
	m.sessions[room] = s
	m.tasks[room] = nil

	if m.cfg.AutoSummarize {
		t := m.spawn(func(ctx context.Context) { m.autoSummaryLoop(ctx, room, s.ID()) })
		m.tasks[room] = append(m.tasks[room], t)
	}
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	log.Info().Str("module", "app.manager").Str("room", string(room)).Str("session_id", s.ID()).Msg("session started")

	m.emitter.Emit(ctx, core.NewEvent(core.EventSessionStarted, room, s.ID(), map[string]any{
		"session_id": s.ID(),
		"title":      title,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}))

	m.persistSession(ctx, s)
	return s, nil
}

// EndSession stops recording if needed, cancels the room's background
// tasks (and waits for them), completes the session, best-effort generates
// a final summary and returns the full snapshot.
func (m *Manager) EndSession(ctx context.Context, sessionID string) (core.SessionSnapshot, error) {
	s := m.sessionByID(sessionID)
	if s == nil {
		return core.SessionSnapshot{}, fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}

	if s.IsRecording() {
		if _, err := m.StopRecording(ctx, sessionID); err != nil {
			log.Error().Err(err).Str("module", "app.manager").Str("session_id", sessionID).Msg("stop recording during end failed")
		}
	}

	m.mu.Lock()
	tasks := m.tasks[s.RoomID()]
	delete(m.tasks, s.RoomID())
	m.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
		<-t.done
	}

	// The gauge moves only on a real transition, so ending twice or ending
	// after a reactivation cycle keeps it balanced.
	if s.End() {
		metrics.SessionsActive.Dec()
	}

	// Final summary is best effort; its failure never blocks session end.
	if m.summarizer != nil && s.TranscriptCount() > 0 {
		if note, err := m.generateFinalSummary(ctx, s); err != nil {
			log.Error().Err(err).Str("module", "app.manager").Str("session_id", sessionID).Msg("final summary failed")
		} else if note != nil && m.storage != nil {
			if err := m.storage.SaveNote(ctx, sessionID, *note); err != nil {
				log.Error().Err(err).Str("module", "app.manager").Str("session_id", sessionID).Msg("save final note failed")
			}
		}
	}

	m.persistSession(ctx, s)

	snap := s.Snapshot()
	m.emitter.Emit(ctx, core.NewEvent(core.EventSessionEnded, s.RoomID(), sessionID, map[string]any{
		"session_id":       sessionID,
		"duration_seconds": snap.DurationSeconds,
		"stats":            snap.Stats,
		"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
	}))

	log.Info().Str("module", "app.manager").Str("session_id", sessionID).Str("room", string(s.RoomID())).Msg("session ended")
	return snap, nil
}

// StartRecording guards against double starts and delegates to the
// recording controller when one is configured. Without a recorder the
// session still enters the recording state (transcript-only mode).
func (m *Manager) StartRecording(ctx context.Context, sessionID, startedBy string) (*core.RecordingStatus, error) {
	s := m.sessionByID(sessionID)
	if s == nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}
	if s.IsRecording() {
		return nil, fmt.Errorf("recording already in progress for session %q: %w", sessionID, core.ErrInvalidState)
	}

	var status *core.RecordingStatus
	if m.recorder != nil {
		var err error
		status, err = m.recorder.StartRecording(ctx, s.RoomID(), sessionID, core.RecordConfig{
			Language:         m.cfg.Language,
			BufferDuration:   m.cfg.BufferDuration,
			SilenceThreshold: m.cfg.SilenceThreshold,
		})
		if err != nil {
			return nil, err
		}
	} else {
		status = &core.RecordingStatus{RoomID: s.RoomID(), SessionID: sessionID, IsRecording: true}
	}

	s.StartRecording(startedBy)
	log.Info().Str("module", "app.manager").Str("session_id", sessionID).Str("started_by", startedBy).Msg("recording started")

	m.emitter.Emit(ctx, core.NewEvent(core.EventRecordingStarted, s.RoomID(), sessionID, map[string]any{
		"started_by": startedBy,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}))
	return status, nil
}

// StopRecording guards against stopping an inactive recording, tears down
// the controller's capture for the room and returns the recording state.
func (m *Manager) StopRecording(ctx context.Context, sessionID string) (*core.RecordingState, error) {
	s := m.sessionByID(sessionID)
	if s == nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}
	if !s.IsRecording() {
		return nil, fmt.Errorf("recording not active for session %q: %w", sessionID, core.ErrInvalidState)
	}

	if m.recorder != nil {
		// The session must still reach a stopped state even if capture
		// teardown fails.
		if err := m.recorder.StopRecording(ctx, s.RoomID()); err != nil {
			log.Error().Err(err).Str("module", "app.manager").Str("session_id", sessionID).Msg("recorder stop failed")
		}
	}

	s.StopRecording()
	rec := s.Recording()
	log.Info().Str("module", "app.manager").Str("session_id", sessionID).
		Float64("duration_seconds", rec.DurationSeconds).Msg("recording stopped")

	m.emitter.Emit(ctx, core.NewEvent(core.EventRecordingStopped, s.RoomID(), sessionID, map[string]any{
		"duration_seconds": rec.DurationSeconds,
		"total_batches":    rec.BatchesProcessed,
		"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
	}))
	return &rec, nil
}

// AddParticipant registers a participant with the session and emits the
// join event.
func (m *Manager) AddParticipant(ctx context.Context, sessionID string, id domain.ParticipantID, name string) (*domain.Participant, error) {
	s := m.sessionByID(sessionID)
	if s == nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}
	p, err := domain.NewParticipant(id, name)
	if err != nil {
		return nil, err
	}
	s.AddParticipant(p)

	m.emitter.Emit(ctx, core.NewEvent(core.EventParticipantJoined, s.RoomID(), sessionID, map[string]any{
		"participant_id":   string(id),
		"participant_name": name,
		"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
	}))
	return p, nil
}

// RemoveParticipant marks the participant as having left.
func (m *Manager) RemoveParticipant(ctx context.Context, sessionID string, id domain.ParticipantID) error {
	s := m.sessionByID(sessionID)
	if s == nil {
		return fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}
	s.RemoveParticipant(id)

	m.emitter.Emit(ctx, core.NewEvent(core.EventParticipantLeft, s.RoomID(), sessionID, map[string]any{
		"participant_id": string(id),
		"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
	}))
	return nil
}

// AddTranscript feeds one transcript segment into the session buffer, for
// callers that bypass audio capture (transcript-only workflows).
func (m *Manager) AddTranscript(ctx context.Context, sessionID string, seg domain.TranscriptSegment) error {
	s := m.sessionByID(sessionID)
	if s == nil {
		return fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}
	s.AddTranscript(seg)
	if m.storage != nil {
		if err := m.storage.SaveTranscript(ctx, sessionID, seg); err != nil {
			log.Error().Err(err).Str("module", "app.manager").Str("session_id", sessionID).Msg("save transcript failed")
		}
	}
	return nil
}

// Session returns the active session for a room, if any.
func (m *Manager) Session(room domain.RoomID) *core.MeetingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[room]
}

// SessionByID looks a session up by its id.
func (m *Manager) SessionByID(sessionID string) (*core.MeetingSession, error) {
	if s := m.sessionByID(sessionID); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
}

// Sessions lists every tracked session.
func (m *Manager) Sessions() []*core.MeetingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.MeetingSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// RecordingStatus reports the controller's view of a room.
func (m *Manager) RecordingStatus(room domain.RoomID) *core.RecordingStatus {
	if m.recorder == nil {
		return &core.RecordingStatus{RoomID: room}
	}
	return m.recorder.Status(room)
}

// ExportSession renders a stored session to a file in the given format.
func (m *Manager) ExportSession(ctx context.Context, sessionID string, format domain.ExportFormat, opts domain.ExportOptions) (string, error) {
	if m.exporter == nil {
		return "", fmt.Errorf("no export service configured: %w", core.ErrInvalidState)
	}
	s := m.sessionByID(sessionID)
	if s == nil {
		return "", fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}

	bundle := core.ExportBundle{Session: s.Snapshot()}
	bundle.Transcript = domain.Transcript{SessionID: sessionID, Language: m.cfg.Language, CreatedAt: time.Now().UTC()}
	if m.storage != nil {
		if notes, err := m.storage.GetNotes(ctx, sessionID, ""); err == nil {
			bundle.Notes = notes
		} else {
			log.Error().Err(err).Str("module", "app.manager").Str("session_id", sessionID).Msg("load notes for export failed")
		}
		if segs, err := m.storage.GetTranscripts(ctx, sessionID, 0); err == nil {
			bundle.Transcript.Segments = segs
		} else {
			log.Error().Err(err).Str("module", "app.manager").Str("session_id", sessionID).Msg("load transcripts for export failed")
		}
	}

	m.emitter.Emit(ctx, core.NewEvent(core.EventExportStarted, s.RoomID(), sessionID, map[string]any{"format": string(format)}))

	path, err := m.exporter.Export(ctx, bundle, format, opts)
	if err != nil {
		m.emitter.Emit(ctx, core.NewEvent(core.EventExportFailed, s.RoomID(), sessionID, map[string]any{
			"format": string(format),
			"error":  err.Error(),
		}))
		return "", fmt.Errorf("export session %q: %w", sessionID, err)
	}

	m.emitter.Emit(ctx, core.NewEvent(core.EventExportCompleted, s.RoomID(), sessionID, map[string]any{
		"format": string(format),
		"path":   path,
	}))
	return path, nil
}

// Cleanup ends every still-active session, continuing past individual
// failures, then tears down the recording controller.
func (m *Manager) Cleanup(ctx context.Context) {
	log.Info().Str("module", "app.manager").Msg("cleaning up")

	m.mu.Lock()
	sessions := make([]*core.MeetingSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if s.Status() == core.StatusCompleted {
			continue
		}
		if _, err := m.EndSession(ctx, s.ID()); err != nil {
			log.Error().Err(err).Str("module", "app.manager").Str("session_id", s.ID()).Msg("cleanup: end session failed")
		}
	}

	if m.recorder != nil {
		m.recorder.Cleanup(ctx)
	}
	log.Info().Str("module", "app.manager").Msg("cleanup complete")
}

// handleBatch consumes one mixed audio batch from the recording controller:
// transcribe, buffer the segments on the session, persist, notify. Runs on
// the flush loop; all failures here are logged, never propagated.
func (m *Manager) handleBatch(ctx context.Context, room domain.RoomID, mixed []byte) {
	s := m.Session(room)
	if s == nil {
		log.Warn().Str("module", "app.manager").Str("room", string(room)).Msg("audio batch for unknown session")
		return
	}

	m.emitter.Emit(ctx, core.NewEvent(core.EventBatchProcessingStarted, room, s.ID(), map[string]any{
		"bytes": len(mixed),
	}))

	if m.cfg.SaveAudioDir != "" {
		if _, err := audio.SaveWAV(m.cfg.SaveAudioDir, room, mixed, m.cfg.SampleRate, 1); err != nil {
			log.Error().Err(err).Str("module", "app.manager").Str("room", string(room)).Msg("save batch audio failed")
		}
	}

	if m.transcriber == nil {
		s.IncrementBatchCount()
		return
	}

	segments, err := m.transcriber.Transcribe(ctx, mixed, m.cfg.Language, m.cfg.SampleRate)
	if err != nil {
		log.Error().Err(err).Str("module", "app.manager").Str("room", string(room)).Msg("batch transcription failed")
		m.emitter.Emit(ctx, core.NewEvent(core.EventBatchProcessingFailed, room, s.ID(), map[string]any{
			"error": err.Error(),
		}))
		return
	}

	for _, seg := range segments {
		s.AddTranscript(seg)
		if m.storage != nil {
			if err := m.storage.SaveTranscript(ctx, s.ID(), seg); err != nil {
				log.Error().Err(err).Str("module", "app.manager").Str("session_id", s.ID()).Msg("save transcript failed")
			}
		}
	}
	s.IncrementBatchCount()

	m.emitter.Emit(ctx, core.NewEvent(core.EventTranscriptionBatch, room, s.ID(), map[string]any{
		"segments": len(segments),
	}))
	m.emitter.Emit(ctx, core.NewEvent(core.EventBatchProcessingCompleted, room, s.ID(), nil))
}

// autoSummaryLoop periodically drains the transcript buffer into an
// interval summary while recording is ongoing. Per-iteration failures are
// swallowed so the loop only dies on cancellation or session end.
func (m *Manager) autoSummaryLoop(ctx context.Context, room domain.RoomID, sessionID string) {
	ticker := time.NewTicker(m.cfg.SummaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.manager").Str("session_id", sessionID).Msg("auto-summary loop cancelled")
			return
		case <-ticker.C:
			s := m.sessionByID(sessionID)
			if s == nil || s.Status() == core.StatusCompleted {
				return
			}
			if !s.IsRecording() || m.summarizer == nil {
				continue
			}
			if err := m.generateIntervalSummary(ctx, s); err != nil {
				log.Error().Err(err).Str("module", "app.manager").Str("session_id", sessionID).Msg("interval summary failed")
			}
		}
	}
}

func (m *Manager) generateIntervalSummary(ctx context.Context, s *core.MeetingSession) error {
	segments := s.DrainTranscripts()
	if len(segments) == 0 {
		return nil
	}

	result, err := m.summarizer.GenerateSummary(ctx, segments, false)
	if err != nil {
		return fmt.Errorf("generate interval summary: %w", err)
	}

	note := summaryNote(s.ID(), result)
	if m.storage != nil {
		if err := m.storage.SaveNote(ctx, s.ID(), note); err != nil {
			log.Error().Err(err).Str("module", "app.manager").Str("session_id", s.ID()).Msg("save interval note failed")
		}
	}
	s.NoteStored(len(result.ActionItems))
	metrics.SummariesGenerated.WithLabelValues("interval").Inc()

	m.emitter.Emit(ctx, core.NewEvent(core.EventSummaryGenerated, s.RoomID(), s.ID(), map[string]any{
		"summary":  result.Summary,
		"is_final": false,
	}))
	log.Info().Str("module", "app.manager").Str("session_id", s.ID()).Msg("interval summary generated")
	return nil
}

func (m *Manager) generateFinalSummary(ctx context.Context, s *core.MeetingSession) (*domain.Note, error) {
	// Prefer the full persisted history; fall back to whatever is still
	// buffered on the session.
	var segments []domain.TranscriptSegment
	if m.storage != nil {
		stored, err := m.storage.GetTranscripts(ctx, s.ID(), 0)
		if err != nil {
			log.Error().Err(err).Str("module", "app.manager").Str("session_id", s.ID()).Msg("load transcripts for final summary failed")
		} else {
			segments = stored
		}
	}
	if len(segments) == 0 {
		segments = s.DrainTranscripts()
	}
	if len(segments) == 0 {
		return nil, nil
	}

	result, err := m.summarizer.GenerateSummary(ctx, segments, true)
	if err != nil {
		return nil, fmt.Errorf("generate final summary: %w", err)
	}
	s.NoteStored(len(result.ActionItems))
	metrics.SummariesGenerated.WithLabelValues("final").Inc()

	m.emitter.Emit(ctx, core.NewEvent(core.EventSummaryGenerated, s.RoomID(), s.ID(), map[string]any{
		"summary":  result.Summary,
		"is_final": true,
	}))
	note := summaryNote(s.ID(), result)
	return &note, nil
}

func summaryNote(sessionID string, result *domain.SummaryResult) domain.Note {
	now := time.Now().UTC()
	return domain.Note{
		SessionID:   sessionID,
		Type:        domain.NoteSummary,
		Content:     result.Summary,
		AIGenerated: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (m *Manager) sessionByID(sessionID string) *core.MeetingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID() == sessionID {
			return s
		}
	}
	return nil
}

func (m *Manager) persistSession(ctx context.Context, s *core.MeetingSession) {
	if m.storage == nil {
		return
	}
	if err := m.storage.SaveSession(ctx, s.Snapshot()); err != nil {
		log.Error().Err(err).Str("module", "app.manager").Str("session_id", s.ID()).Msg("persist session failed")
	}
}

func (m *Manager) spawn(fn func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		fn(ctx)
	}()
	return t
}
