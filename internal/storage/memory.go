// Package storage persists sessions, transcripts and notes. Two backends:
// an in-memory store for single-process setups and tests, and a Redis store
// for deployments that must survive restarts.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
)

// Memory keeps everything in process memory. It implements core.Storage.
type Memory struct {
	mu          sync.RWMutex
	sessions    map[string]core.SessionSnapshot
	transcripts map[string][]domain.TranscriptSegment
	notes       map[string][]domain.Note
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]core.SessionSnapshot),
		transcripts: make(map[string][]domain.TranscriptSegment),
		notes:       make(map[string][]domain.Note),
	}
}

func (m *Memory) SaveSession(_ context.Context, snap core.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[snap.SessionID] = snap
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (*core.SessionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}
	return &snap, nil
}

func (m *Memory) SaveTranscript(_ context.Context, sessionID string, seg domain.TranscriptSegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts[sessionID] = append(m.transcripts[sessionID], seg)
	return nil
}

// GetTranscripts returns segments in insertion order; limit > 0 caps the
// result to the most recent segments.
func (m *Memory) GetTranscripts(_ context.Context, sessionID string, limit int) ([]domain.TranscriptSegment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	segs := m.transcripts[sessionID]
	if limit > 0 && len(segs) > limit {
		segs = segs[len(segs)-limit:]
	}
	out := make([]domain.TranscriptSegment, len(segs))
	copy(out, segs)
	return out, nil
}

func (m *Memory) SaveNote(_ context.Context, sessionID string, note domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[sessionID] = append(m.notes[sessionID], note)
	return nil
}

// GetNotes filters by type when noteType is non-empty.
func (m *Memory) GetNotes(_ context.Context, sessionID string, noteType domain.NoteType) ([]domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Note, 0, len(m.notes[sessionID]))
	for _, n := range m.notes[sessionID] {
		if noteType != "" && n.Type != noteType {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
