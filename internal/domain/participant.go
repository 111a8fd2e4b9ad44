// Package domain contains entities without behavior beyond their own
// state transitions, just meta-data.
package domain

import (
	"errors"
	"time"
)

const (
	MaxParticipantIDLen   = 64
	MaxParticipantNameLen = 64
)

var (
	ErrParticipantIDEmpty     = errors.New("participant id empty")
	ErrParticipantIDTooLong   = errors.New("participant id too long")
	ErrParticipantNameTooLong = errors.New("participant name too long")
)

type (
	RoomID        string
	ParticipantID string
)

// Participant is one attendee of a meeting session. Participants are never
// deleted; leaving only marks them inactive so the session keeps history.
type Participant struct {
	ID       ParticipantID     `json:"id"`
	Name     string            `json:"name"`
	Identity string            `json:"identity,omitempty"`
	JoinedAt time.Time         `json:"joined_at"`
	LeftAt   *time.Time        `json:"left_at,omitempty"`
	IsActive bool              `json:"is_active"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id ParticipantID, name string) (*Participant, error) {
	if len(id) == 0 {
		return nil, ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return nil, ErrParticipantIDTooLong
	}
	if len(name) > MaxParticipantNameLen {
		return nil, ErrParticipantNameTooLong
	}
	return &Participant{
		ID:       id,
		Name:     name,
		JoinedAt: time.Now().UTC(),
		IsActive: true,
	}, nil
}

// Leave marks the participant as having left the session.
func (p *Participant) Leave() {
	now := time.Now().UTC()
	p.IsActive = false
	p.LeftAt = &now
}
