package domain

import "time"

// NoteType classifies a stored meeting note.
type NoteType string

const (
	NoteSummary        NoteType = "summary"
	NoteActionItems    NoteType = "action_items"
	NoteKeyPoints      NoteType = "key_points"
	NoteDecisions      NoteType = "decisions"
	NoteQuestions      NoteType = "questions"
	NoteFullTranscript NoteType = "full_transcript"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type ActionItemStatus string

const (
	ActionOpen       ActionItemStatus = "open"
	ActionInProgress ActionItemStatus = "in_progress"
	ActionCompleted  ActionItemStatus = "completed"
	ActionCancelled  ActionItemStatus = "cancelled"
)

// Note is a single meeting note (summary, key points, decisions, ...).
type Note struct {
	SessionID   string    `json:"session_id"`
	Type        NoteType  `json:"type"`
	Title       string    `json:"title,omitempty"`
	Content     string    `json:"content"`
	AIGenerated bool      `json:"ai_generated"`
	Confidence  float64   `json:"confidence,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActionItem is a follow-up task extracted from a meeting.
type ActionItem struct {
	SessionID   string           `json:"session_id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	AssignedTo  string           `json:"assigned_to,omitempty"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	Priority    Priority         `json:"priority"`
	Status      ActionItemStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (a *ActionItem) MarkCompleted() {
	a.Status = ActionCompleted
	a.UpdatedAt = time.Now().UTC()
}

func (a *ActionItem) MarkInProgress() {
	a.Status = ActionInProgress
	a.UpdatedAt = time.Now().UTC()
}

// IsOverdue reports whether the due date passed while the item is still open.
func (a *ActionItem) IsOverdue() bool {
	if a.DueDate == nil {
		return false
	}
	if a.Status == ActionCompleted || a.Status == ActionCancelled {
		return false
	}
	return time.Now().UTC().After(*a.DueDate)
}

// SummaryResult is what an AI provider returns for one summarization request.
type SummaryResult struct {
	Summary     string       `json:"summary"`
	KeyPoints   []string     `json:"key_points,omitempty"`
	ActionItems []ActionItem `json:"action_items,omitempty"`
	IsFinal     bool         `json:"is_final"`
	Model       string       `json:"model,omitempty"`
}
