package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

func renderJSON(doc document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

func renderYAML(doc document) ([]byte, error) {
	return yaml.Marshal(doc)
}

func renderMarkdown(doc document) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	if doc.Author != "" {
		fmt.Fprintf(&b, "*Exported by %s*\n\n", doc.Author)
	}
	fmt.Fprintf(&b, "*Generated %s*\n", doc.GeneratedAt.Format("2006-01-02 15:04 MST"))

	if doc.Session != nil {
		b.WriteString("\n## Meeting\n\n")
		fmt.Fprintf(&b, "- Room: %s\n", doc.Session.RoomID)
		fmt.Fprintf(&b, "- Status: %s\n", doc.Session.Status)
		if doc.Session.DurationSeconds != nil {
			fmt.Fprintf(&b, "- Duration: %.0f seconds\n", *doc.Session.DurationSeconds)
		}
		if len(doc.Session.Participants) > 0 {
			b.WriteString("- Participants:\n")
			for _, p := range doc.Session.Participants {
				fmt.Fprintf(&b, "  - %s\n", p.Name)
			}
		}
	}

	if len(doc.Summaries) > 0 {
		b.WriteString("\n## Summary\n")
		for _, n := range doc.Summaries {
			fmt.Fprintf(&b, "\n%s\n", n.Content)
		}
	}

	if len(doc.ActionItems) > 0 {
		b.WriteString("\n## Action Items\n\n")
		for _, a := range doc.ActionItems {
			line := fmt.Sprintf("- [ ] %s", a.Title)
			if a.Status == "completed" {
				line = fmt.Sprintf("- [x] %s", a.Title)
			}
			if a.AssignedTo != "" {
				line += fmt.Sprintf(" (%s)", a.AssignedTo)
			}
			b.WriteString(line + "\n")
		}
	}

	if len(doc.Transcript) > 0 {
		b.WriteString("\n## Transcript\n\n")
		for _, seg := range doc.Transcript {
			speaker := seg.SpeakerName
			if speaker == "" {
				speaker = string(seg.Speaker)
			}
			if speaker == "" {
				speaker = "unknown"
			}
			fmt.Fprintf(&b, "**%s** (%s): %s\n\n", speaker, seg.Timestamp.Format("15:04:05"), seg.Text)
		}
	}
	return []byte(b.String()), nil
}

func renderText(doc document) ([]byte, error) {
	var b strings.Builder
	b.WriteString(doc.Title + "\n")
	b.WriteString(strings.Repeat("=", len(doc.Title)) + "\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", doc.GeneratedAt.Format("2006-01-02 15:04 MST"))

	if doc.Session != nil {
		fmt.Fprintf(&b, "Room: %s\nStatus: %s\n", doc.Session.RoomID, doc.Session.Status)
		if doc.Session.DurationSeconds != nil {
			fmt.Fprintf(&b, "Duration: %.0f seconds\n", *doc.Session.DurationSeconds)
		}
	}

	if len(doc.Summaries) > 0 {
		b.WriteString("\nSUMMARY\n-------\n")
		for _, n := range doc.Summaries {
			b.WriteString(n.Content + "\n")
		}
	}

	if len(doc.ActionItems) > 0 {
		b.WriteString("\nACTION ITEMS\n------------\n")
		for _, a := range doc.ActionItems {
			fmt.Fprintf(&b, "* %s", a.Title)
			if a.AssignedTo != "" {
				fmt.Fprintf(&b, " (%s)", a.AssignedTo)
			}
			b.WriteString("\n")
		}
	}

	if len(doc.Transcript) > 0 {
		b.WriteString("\nTRANSCRIPT\n----------\n")
		for _, seg := range doc.Transcript {
			speaker := seg.SpeakerName
			if speaker == "" {
				speaker = string(seg.Speaker)
			}
			if speaker == "" {
				speaker = "unknown"
			}
			fmt.Fprintf(&b, "[%s] %s: %s\n", seg.Timestamp.Format("15:04:05"), speaker, seg.Text)
		}
	}
	return []byte(b.String()), nil
}
