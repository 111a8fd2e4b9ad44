package domain

import "time"

// TranscriptSegment is a single piece of transcribed speech as returned by a
// transcription provider.
type TranscriptSegment struct {
	Text        string        `json:"text"`
	Speaker     ParticipantID `json:"speaker,omitempty"`
	SpeakerName string        `json:"speaker_name,omitempty"`
	Confidence  float64       `json:"confidence"`
	StartTime   float64       `json:"start_time,omitempty"`
	EndTime     float64       `json:"end_time,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Language    string        `json:"language,omitempty"`
	IsFinal     bool          `json:"is_final"`
}

// Duration reports the spoken length of the segment in seconds, zero when
// the provider supplied no word timings.
func (s TranscriptSegment) Duration() float64 {
	if s.EndTime <= s.StartTime {
		return 0
	}
	return s.EndTime - s.StartTime
}

// Transcript is the ordered list of segments for one session.
type Transcript struct {
	SessionID string              `json:"session_id"`
	Segments  []TranscriptSegment `json:"segments"`
	Language  string              `json:"language,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func (t *Transcript) AddSegment(seg TranscriptSegment) {
	t.Segments = append(t.Segments, seg)
}

// FullText joins all segment texts with newlines.
func (t *Transcript) FullText() string {
	out := ""
	for i, seg := range t.Segments {
		if i > 0 {
			out += "\n"
		}
		out += seg.Text
	}
	return out
}

// TotalDuration sums the durations of all segments that carry timings.
func (t *Transcript) TotalDuration() float64 {
	var total float64
	for _, seg := range t.Segments {
		total += seg.Duration()
	}
	return total
}
