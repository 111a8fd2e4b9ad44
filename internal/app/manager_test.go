package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
	"github.com/dkeye/NoteTaker/internal/metrics"
	"github.com/dkeye/NoteTaker/internal/storage"
)

type fakeRecorder struct {
	mu      sync.Mutex
	onBatch core.BatchFunc
	active  map[domain.RoomID]string
	stopErr error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{active: make(map[domain.RoomID]string)}
}

func (r *fakeRecorder) StartRecording(_ context.Context, room domain.RoomID, sessionID string, _ core.RecordConfig) (*core.RecordingStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[room] = sessionID
	return &core.RecordingStatus{RoomID: room, SessionID: sessionID, IsRecording: true}, nil
}

func (r *fakeRecorder) StopRecording(_ context.Context, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, room)
	return r.stopErr
}

func (r *fakeRecorder) Status(room domain.RoomID) *core.RecordingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID, ok := r.active[room]
	return &core.RecordingStatus{RoomID: room, SessionID: sessionID, IsRecording: ok}
}

func (r *fakeRecorder) OnBatch(fn core.BatchFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onBatch = fn
}

func (r *fakeRecorder) Cleanup(ctx context.Context) {
	r.mu.Lock()
	rooms := make([]domain.RoomID, 0, len(r.active))
	for room := range r.active {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()
	for _, room := range rooms {
		_ = r.StopRecording(ctx, room)
	}
}

func (r *fakeRecorder) emitBatch(room domain.RoomID, mixed []byte) {
	r.mu.Lock()
	fn := r.onBatch
	r.mu.Unlock()
	if fn != nil {
		fn(context.Background(), room, mixed)
	}
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, pcm []byte, language string, _ int) ([]domain.TranscriptSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return []domain.TranscriptSegment{{
		Text:      "segment",
		Language:  language,
		Timestamp: time.Now().UTC(),
		IsFinal:   true,
	}}, nil
}

func (f *fakeTranscriber) Stream(context.Context, <-chan []byte, string, int) (<-chan domain.TranscriptSegment, error) {
	ch := make(chan domain.TranscriptSegment)
	close(ch)
	return ch, nil
}

func (f *fakeTranscriber) Close() error { return nil }

type fakeSummarizer struct {
	mu         sync.Mutex
	finalCalls int
	intervals  int
	err        error
}

func (f *fakeSummarizer) GenerateSummary(_ context.Context, segments []domain.TranscriptSegment, isFinal bool) (*domain.SummaryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if isFinal {
		f.finalCalls++
	} else {
		f.intervals++
	}
	return &domain.SummaryResult{
		Summary:     "meeting summary",
		KeyPoints:   []string{"point"},
		ActionItems: []domain.ActionItem{{Title: "follow up", Status: domain.ActionOpen}},
		IsFinal:     isFinal,
	}, nil
}

func (f *fakeSummarizer) ExtractActionItems(context.Context, []domain.TranscriptSegment) ([]domain.ActionItem, error) {
	return nil, nil
}

func (f *fakeSummarizer) Close() error { return nil }

func newTestManager(t *testing.T, deps Deps, cfg Config) *Manager {
	t.Helper()
	if deps.Storage == nil {
		deps.Storage = storage.NewMemory()
	}
	if cfg.SummaryInterval == 0 {
		cfg.SummaryInterval = time.Hour
	}
	return NewManager(deps, cfg)
}

func TestStartSessionReturnsExistingActive(t *testing.T) {
	m := newTestManager(t, Deps{}, Config{})
	ctx := context.Background()

	s1, err := m.StartSession(ctx, "room-1", "Standup", "")
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, s1.Status())

	s2, err := m.StartSession(ctx, "room-1", "Other title", "")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestStartSessionReactivatesCompleted(t *testing.T) {
	m := newTestManager(t, Deps{}, Config{})
	ctx := context.Background()

	s1, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	_, err = m.EndSession(ctx, s1.ID())
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, s1.Status())

	s2, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, core.StatusActive, s2.Status())
}

// The gauge is global, so everything is asserted relative to its value at
// test start.
func TestActiveSessionsGaugeBalancedAcrossReactivation(t *testing.T) {
	m := newTestManager(t, Deps{}, Config{})
	ctx := context.Background()
	base := testutil.ToFloat64(metrics.SessionsActive)

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, base+1, testutil.ToFloat64(metrics.SessionsActive))

	_, err = m.EndSession(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, base, testutil.ToFloat64(metrics.SessionsActive))

	// Ending an already-completed session must not drive the gauge down.
	_, err = m.EndSession(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, base, testutil.ToFloat64(metrics.SessionsActive))

	// Reactivation counts as a new active session.
	_, err = m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, base+1, testutil.ToFloat64(metrics.SessionsActive))

	_, err = m.EndSession(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, base, testutil.ToFloat64(metrics.SessionsActive))
}

func TestEndSessionUnknownID(t *testing.T) {
	m := newTestManager(t, Deps{}, Config{})
	_, err := m.EndSession(context.Background(), "no-such-session")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRecordingGuards(t *testing.T) {
	rec := newFakeRecorder()
	m := newTestManager(t, Deps{Recorder: rec}, Config{})
	ctx := context.Background()

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)

	_, err = m.StopRecording(ctx, s.ID())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	_, err = m.StartRecording(ctx, s.ID(), "alice")
	require.NoError(t, err)
	assert.Equal(t, core.StatusRecording, s.Status())

	_, err = m.StartRecording(ctx, s.ID(), "bob")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	state, err := m.StopRecording(ctx, s.ID())
	require.NoError(t, err)
	assert.False(t, state.IsRecording)
	assert.Equal(t, core.StatusActive, s.Status())
}

func TestRecordingWithoutRecorder(t *testing.T) {
	m := newTestManager(t, Deps{}, Config{})
	ctx := context.Background()

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)

	status, err := m.StartRecording(ctx, s.ID(), "alice")
	require.NoError(t, err)
	assert.True(t, status.IsRecording)
	assert.True(t, s.IsRecording())

	_, err = m.StopRecording(ctx, s.ID())
	require.NoError(t, err)
}

func TestBatchFlowBuffersTranscripts(t *testing.T) {
	rec := newFakeRecorder()
	tr := &fakeTranscriber{}
	store := storage.NewMemory()
	m := newTestManager(t, Deps{Recorder: rec, Transcriber: tr, Storage: store}, Config{})
	ctx := context.Background()

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	_, err = m.StartRecording(ctx, s.ID(), "alice")
	require.NoError(t, err)

	rec.emitBatch("room-1", []byte{1, 2, 3, 4})
	rec.emitBatch("room-1", []byte{5, 6, 7, 8})

	assert.Equal(t, 2, s.TranscriptCount())
	assert.Equal(t, 2, s.Recording().BatchesProcessed)

	stored, err := store.GetTranscripts(ctx, s.ID(), 0)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestBatchTranscriptionFailureIsIsolated(t *testing.T) {
	rec := newFakeRecorder()
	tr := &fakeTranscriber{err: errors.New("backend down")}
	m := newTestManager(t, Deps{Recorder: rec, Transcriber: tr}, Config{})
	ctx := context.Background()

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	_, err = m.StartRecording(ctx, s.ID(), "alice")
	require.NoError(t, err)

	rec.emitBatch("room-1", []byte{1, 2, 3, 4})

	assert.Equal(t, 0, s.TranscriptCount())
	assert.Equal(t, 0, s.Recording().BatchesProcessed)
	// The session is still healthy after the failure.
	assert.Equal(t, core.StatusRecording, s.Status())
}

func TestEndSessionGeneratesFinalSummary(t *testing.T) {
	sum := &fakeSummarizer{}
	store := storage.NewMemory()
	m := newTestManager(t, Deps{Summarizer: sum, Storage: store}, Config{})
	ctx := context.Background()

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	require.NoError(t, m.AddTranscript(ctx, s.ID(), domain.TranscriptSegment{Text: "we decided things"}))

	snap, err := m.EndSession(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, snap.Status)
	assert.Equal(t, 1, sum.finalCalls)
	assert.Equal(t, 1, snap.Stats.TotalNotes)

	notes, err := store.GetNotes(ctx, s.ID(), domain.NoteSummary)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "meeting summary", notes[0].Content)
	assert.True(t, notes[0].AIGenerated)
}

func TestEndSessionSurvivesSummaryFailure(t *testing.T) {
	sum := &fakeSummarizer{err: errors.New("model offline")}
	m := newTestManager(t, Deps{Summarizer: sum}, Config{})
	ctx := context.Background()

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	require.NoError(t, m.AddTranscript(ctx, s.ID(), domain.TranscriptSegment{Text: "hello"}))

	snap, err := m.EndSession(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, snap.Status)
}

func TestEndSessionStopsActiveRecording(t *testing.T) {
	rec := newFakeRecorder()
	m := newTestManager(t, Deps{Recorder: rec}, Config{})
	ctx := context.Background()

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	_, err = m.StartRecording(ctx, s.ID(), "alice")
	require.NoError(t, err)

	snap, err := m.EndSession(ctx, s.ID())
	require.NoError(t, err)
	assert.False(t, snap.Recording.IsRecording)
	assert.False(t, rec.Status("room-1").IsRecording)
}

func TestAutoSummaryLoop(t *testing.T) {
	sum := &fakeSummarizer{}
	store := storage.NewMemory()
	m := newTestManager(t, Deps{Summarizer: sum, Storage: store}, Config{
		AutoSummarize:   true,
		SummaryInterval: 20 * time.Millisecond,
	})
	ctx := context.Background()

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	_, err = m.StartRecording(ctx, s.ID(), "alice")
	require.NoError(t, err)
	require.NoError(t, m.AddTranscript(ctx, s.ID(), domain.TranscriptSegment{Text: "progress update"}))

	assert.Eventually(t, func() bool {
		sum.mu.Lock()
		defer sum.mu.Unlock()
		return sum.intervals >= 1
	}, time.Second, 10*time.Millisecond)

	// Drained by the interval summary; nothing left to summarize twice.
	assert.Equal(t, 0, s.TranscriptCount())

	_, err = m.EndSession(ctx, s.ID())
	require.NoError(t, err)
}

func TestParticipantLifecycle(t *testing.T) {
	m := newTestManager(t, Deps{}, Config{})
	ctx := context.Background()

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)

	p, err := m.AddParticipant(ctx, s.ID(), "alice", "Alice")
	require.NoError(t, err)
	assert.True(t, p.IsActive)

	_, err = m.AddParticipant(ctx, s.ID(), "", "Nameless")
	require.Error(t, err)

	require.NoError(t, m.RemoveParticipant(ctx, s.ID(), "alice"))
	assert.Empty(t, s.ActiveParticipants())
}

func TestCleanupEndsEverything(t *testing.T) {
	rec := newFakeRecorder()
	m := newTestManager(t, Deps{Recorder: rec}, Config{})
	ctx := context.Background()

	s1, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	s2, err := m.StartSession(ctx, "room-2", "", "")
	require.NoError(t, err)
	_, err = m.StartRecording(ctx, s1.ID(), "alice")
	require.NoError(t, err)

	m.Cleanup(ctx)

	assert.Equal(t, core.StatusCompleted, s1.Status())
	assert.Equal(t, core.StatusCompleted, s2.Status())
	assert.False(t, rec.Status("room-1").IsRecording)
}

func TestEventsEmittedOnLifecycle(t *testing.T) {
	m := newTestManager(t, Deps{}, Config{})
	ctx := context.Background()

	var mu sync.Mutex
	seen := map[core.EventType]int{}
	m.Emitter().OnAll(func(_ context.Context, ev core.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[ev.Type]++
		return nil
	})

	s, err := m.StartSession(ctx, "room-1", "", "")
	require.NoError(t, err)
	_, err = m.StartRecording(ctx, s.ID(), "alice")
	require.NoError(t, err)
	_, err = m.StopRecording(ctx, s.ID())
	require.NoError(t, err)
	_, err = m.EndSession(ctx, s.ID())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[core.EventSessionStarted])
	assert.Equal(t, 1, seen[core.EventRecordingStarted])
	assert.Equal(t, 1, seen[core.EventRecordingStopped])
	assert.Equal(t, 1, seen[core.EventSessionEnded])
}
