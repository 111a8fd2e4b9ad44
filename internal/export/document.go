package export

import (
	"time"

	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
)

// document is the format-independent shape every renderer consumes. Fields
// excluded by the export options are left empty and omitted on output.
type document struct {
	Title       string                     `json:"title" yaml:"title"`
	Author      string                     `json:"author,omitempty" yaml:"author,omitempty"`
	GeneratedAt time.Time                  `json:"generated_at" yaml:"generated_at"`
	Session     *core.SessionSnapshot      `json:"session,omitempty" yaml:"session,omitempty"`
	Summaries   []domain.Note              `json:"summaries,omitempty" yaml:"summaries,omitempty"`
	ActionItems []domain.ActionItem        `json:"action_items,omitempty" yaml:"action_items,omitempty"`
	Transcript  []domain.TranscriptSegment `json:"transcript,omitempty" yaml:"transcript,omitempty"`
}

func buildDocument(bundle core.ExportBundle, opts domain.ExportOptions) document {
	title := opts.Title
	if title == "" {
		title = bundle.Session.Title
	}
	doc := document{
		Title:       title,
		Author:      opts.Author,
		GeneratedAt: time.Now().UTC(),
	}
	if opts.IncludeMetadata {
		snap := bundle.Session
		doc.Session = &snap
	}
	if opts.IncludeSummary {
		doc.Summaries = bundle.Notes
	}
	if opts.IncludeActionItems {
		doc.ActionItems = bundle.ActionItems
	}
	if opts.IncludeTranscripts {
		doc.Transcript = bundle.Transcript.Segments
	}
	return doc
}
