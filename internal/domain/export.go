package domain

import "errors"

// ExportFormat names a supported note export format.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
	ExportText     ExportFormat = "txt"
	ExportYAML     ExportFormat = "yaml"
	ExportHTML     ExportFormat = "html"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseExportFormat validates a format name from an API boundary.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case ExportJSON, ExportMarkdown, ExportText, ExportYAML, ExportHTML:
		return f, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// ExportOptions selects what goes into an exported document.
type ExportOptions struct {
	IncludeTranscripts bool   `json:"include_transcripts"`
	IncludeSummary     bool   `json:"include_summary"`
	IncludeActionItems bool   `json:"include_action_items"`
	IncludeMetadata    bool   `json:"include_metadata"`
	Title              string `json:"title,omitempty"`
	Author             string `json:"author,omitempty"`
}

// DefaultExportOptions includes everything.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		IncludeTranscripts: true,
		IncludeSummary:     true,
		IncludeActionItems: true,
		IncludeMetadata:    true,
	}
}
