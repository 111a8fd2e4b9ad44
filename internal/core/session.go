package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/domain"
)

type SessionID string

// SessionStatus is the session state machine:
// pending -> active -> recording <-> active -> completed.
// Archived is terminal and only ever set by an external archival step.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusRecording SessionStatus = "recording"
	StatusCompleted SessionStatus = "completed"
	StatusArchived  SessionStatus = "archived"
)

// RecordingState tracks one session's recording lifecycle.
type RecordingState struct {
	IsRecording      bool       `json:"is_recording"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	StoppedAt        *time.Time `json:"stopped_at,omitempty"`
	StartedBy        string     `json:"started_by,omitempty"`
	BatchesProcessed int        `json:"total_batches_processed"`
	DurationSeconds  float64    `json:"duration_seconds"`
}

func (r *RecordingState) start(by string, now time.Time) {
	r.IsRecording = true
	r.StartedAt = &now
	r.StartedBy = by
}

func (r *RecordingState) stop(now time.Time) {
	r.IsRecording = false
	r.StoppedAt = &now
	if r.StartedAt != nil {
		r.DurationSeconds = now.Sub(*r.StartedAt).Seconds()
	}
}

// SessionStats are monotonic counters for one session.
type SessionStats struct {
	TotalParticipants int `json:"total_participants"`
	TotalTranscripts  int `json:"total_transcripts"`
	TotalNotes        int `json:"total_notes"`
	TotalActionItems  int `json:"total_action_items"`
}

// SessionSnapshot is a read-only serializable view of a session.
type SessionSnapshot struct {
	SessionID        string               `json:"session_id"`
	RoomID           domain.RoomID        `json:"room_id"`
	Title            string               `json:"title"`
	Description      string               `json:"description,omitempty"`
	Status           SessionStatus        `json:"status"`
	CreatedAt        time.Time            `json:"created_at"`
	StartedAt        *time.Time           `json:"started_at,omitempty"`
	EndedAt          *time.Time           `json:"ended_at,omitempty"`
	DurationSeconds  *float64             `json:"duration_seconds,omitempty"`
	Participants     []domain.Participant `json:"participants"`
	ActiveCount      int                  `json:"active_participant_count"`
	Recording        RecordingState       `json:"recording"`
	Stats            SessionStats         `json:"stats"`
}

// MeetingSession is the aggregate root for one meeting: participants,
// recording state, a transient transcript buffer and stats counters.
// All state is guarded by one coarse mutex; the frame-ingestion and
// summary paths mutate it from background goroutines.
type MeetingSession struct {
	mu sync.Mutex

	sessionID   string
	roomID      domain.RoomID
	title       string
	description string

	status    SessionStatus
	createdAt time.Time
	startedAt *time.Time
	endedAt   *time.Time

	participants map[domain.ParticipantID]*domain.Participant
	recording    RecordingState
	transcripts  []domain.TranscriptSegment
	stats        SessionStats

	now func() time.Time
}

// NewMeetingSession creates a pending session. An empty sessionID gets a
// generated UUID; an empty title falls back to "Meeting <room>".
func NewMeetingSession(room domain.RoomID, title, description, sessionID string) *MeetingSession {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if title == "" {
		title = "Meeting " + string(room)
	}
	s := &MeetingSession{
		sessionID:    sessionID,
		roomID:       room,
		title:        title,
		description:  description,
		status:       StatusPending,
		participants: make(map[domain.ParticipantID]*domain.Participant),
		now:          func() time.Time { return time.Now().UTC() },
	}
	s.createdAt = s.now()
	return s
}

func (s *MeetingSession) ID() string            { return s.sessionID }
func (s *MeetingSession) RoomID() domain.RoomID { return s.roomID }

func (s *MeetingSession) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start moves pending -> active. Calling it in any other state is a no-op.
func (s *MeetingSession) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPending {
		return
	}
	now := s.now()
	s.status = StatusActive
	s.startedAt = &now
	log.Info().Str("module", "core.session").Str("session_id", s.sessionID).Str("room", string(s.roomID)).Msg("session started")
}

// End moves the session to completed exactly once and stops recording if it
// is still running. Repeat calls keep the first ended_at. Reports whether
// this call performed the transition.
func (s *MeetingSession) End() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusCompleted {
		return false
	}
	now := s.now()
	s.status = StatusCompleted
	s.endedAt = &now
	if s.recording.IsRecording {
		s.recording.stop(now)
	}
	log.Info().Str("module", "core.session").Str("session_id", s.sessionID).Msg("session ended")
	return true
}

// Reactivate returns a completed session to active. Used when a new meeting
// starts in a room whose previous session already ended.
func (s *MeetingSession) Reactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusCompleted {
		return
	}
	s.status = StatusActive
	s.endedAt = nil
}

// AddParticipant inserts or replaces by participant id.
func (s *MeetingSession) AddParticipant(p *domain.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
	s.stats.TotalParticipants = len(s.participants)
	log.Info().Str("module", "core.session").Str("session_id", s.sessionID).Str("participant", string(p.ID)).Msg("participant added")
}

// RemoveParticipant marks the participant inactive. Unknown ids are a no-op;
// participants are never deleted so history survives the session.
func (s *MeetingSession) RemoveParticipant(id domain.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[id]; ok {
		p.Leave()
		log.Info().Str("module", "core.session").Str("session_id", s.sessionID).Str("participant", string(id)).Msg("participant left")
	}
}

func (s *MeetingSession) Participant(id domain.ParticipantID) (*domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	return p, ok
}

// ActiveParticipants returns copies of all participants still in the session.
func (s *MeetingSession) ActiveParticipants() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out
}

// StartRecording flips the recording state and the status transition
// active -> recording. Double-start guards live in the manager.
func (s *MeetingSession) StartRecording(by string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording.start(by, s.now())
	if s.status == StatusActive {
		s.status = StatusRecording
	}
}

// StopRecording computes the duration and returns status to active.
func (s *MeetingSession) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording.stop(s.now())
	if s.status == StatusRecording {
		s.status = StatusActive
	}
}

func (s *MeetingSession) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording.IsRecording
}

// Recording returns a copy of the current recording state.
func (s *MeetingSession) Recording() RecordingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// IncrementBatchCount bumps the processed-batch counter.
func (s *MeetingSession) IncrementBatchCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording.BatchesProcessed++
}

// AddTranscript appends one segment to the transient buffer.
func (s *MeetingSession) AddTranscript(seg domain.TranscriptSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, seg)
	s.stats.TotalTranscripts++
}

// DrainTranscripts atomically moves the buffered segments out. The buffer
// is empty the moment this returns.
func (s *MeetingSession) DrainTranscripts() []domain.TranscriptSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.transcripts
	s.transcripts = nil
	return out
}

// TranscriptCount reports the number of currently buffered segments.
func (s *MeetingSession) TranscriptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcripts)
}

// NoteStored bumps the stats counters for a persisted note.
func (s *MeetingSession) NoteStored(actionItems int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalNotes++
	s.stats.TotalActionItems += actionItems
}

// Duration reports seconds since start, frozen at ended_at once completed.
// Nil before the session has started.
func (s *MeetingSession) Duration() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationLocked()
}

func (s *MeetingSession) durationLocked() *float64 {
	if s.startedAt == nil {
		return nil
	}
	end := s.now()
	if s.endedAt != nil {
		end = *s.endedAt
	}
	d := end.Sub(*s.startedAt).Seconds()
	return &d
}

func (s *MeetingSession) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Snapshot returns a consistent serializable copy of the session.
func (s *MeetingSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]domain.Participant, 0, len(s.participants))
	active := 0
	for _, p := range s.participants {
		parts = append(parts, *p)
		if p.IsActive {
			active++
		}
	}
	return SessionSnapshot{
		SessionID:       s.sessionID,
		RoomID:          s.roomID,
		Title:           s.title,
		Description:     s.description,
		Status:          s.status,
		CreatedAt:       s.createdAt,
		StartedAt:       s.startedAt,
		EndedAt:         s.endedAt,
		DurationSeconds: s.durationLocked(),
		Participants:    parts,
		ActiveCount:     active,
		Recording:       s.recording,
		Stats:           s.stats,
	}
}
