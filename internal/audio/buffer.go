// Package audio buffers and mixes raw PCM from meeting participants and
// decides when a batch is ready for transcription.
package audio

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/domain"
)

const (
	DefaultSampleRate       = 16000
	DefaultChannels         = 1
	DefaultBufferDuration   = 15 * time.Minute
	DefaultSilenceThreshold = 2 * time.Minute
)

type frame struct {
	samples []int16
	at      time.Time
}

// Buffer accumulates PCM16LE audio per participant inside a sliding window
// and produces a single mixed waveform on demand. Every operation that
// touches participant state holds the buffer's one mutex, so mixing while
// frames arrive always sees a consistent snapshot.
type Buffer struct {
	sampleRate       int
	channels         int
	bufferDuration   time.Duration
	silenceThreshold time.Duration

	mu           sync.Mutex
	participants map[domain.ParticipantID][]frame
	startTime    time.Time
	lastActivity time.Time

	now func() time.Time
}

// NewBuffer builds a buffer; zero durations fall back to the defaults.
func NewBuffer(sampleRate, channels int, bufferDuration, silenceThreshold time.Duration) *Buffer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	if bufferDuration <= 0 {
		bufferDuration = DefaultBufferDuration
	}
	if silenceThreshold <= 0 {
		silenceThreshold = DefaultSilenceThreshold
	}
	return &Buffer{
		sampleRate:       sampleRate,
		channels:         channels,
		bufferDuration:   bufferDuration,
		silenceThreshold: silenceThreshold,
		participants:     make(map[domain.ParticipantID][]frame),
		now:              time.Now,
	}
}

// AddFrame appends one PCM16LE chunk to the participant's track, creating
// the track on first contact, and evicts frames older than the buffering
// window from the front. Payloads are assumed to be well-formed PCM16; a
// trailing odd byte is ignored.
func (b *Buffer) AddFrame(participant domain.ParticipantID, pcm []byte) {
	samples := decodePCM16(pcm)
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.startTime.IsZero() {
		b.startTime = now
	}
	b.lastActivity = now

	frames := append(b.participants[participant], frame{samples: samples, at: now})

	// Sliding window: drop frames that fell out of the buffer duration.
	cutoff := now.Add(-b.bufferDuration)
	evict := 0
	for evict < len(frames) && frames[evict].at.Before(cutoff) {
		evict++
	}
	b.participants[participant] = frames[evict:]
}

// ShouldFlush reports whether the batch trigger fired: the window filled up
// since the first frame, or the silence threshold elapsed since the last
// one. False before any frame arrives. Purely time based, no voice
// activity detection.
func (b *Buffer) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shouldFlushLocked()
}

func (b *Buffer) shouldFlushLocked() bool {
	if b.startTime.IsZero() {
		return false
	}
	now := b.now()
	if now.Sub(b.startTime) >= b.bufferDuration {
		return true
	}
	if !b.lastActivity.IsZero() && now.Sub(b.lastActivity) >= b.silenceThreshold {
		return true
	}
	return false
}

// Mix down-mixes every participant track into one waveform: tracks are
// truncated to the shortest one, normalized to [-1,1], averaged across
// participants to avoid clipping, and re-quantized to int16. Nil when no
// participant has audio.
func (b *Buffer) Mix() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	tracks := make([][]int16, 0, len(b.participants))
	minLen := -1
	for _, frames := range b.participants {
		total := 0
		for _, f := range frames {
			total += len(f.samples)
		}
		if total == 0 {
			continue
		}
		track := make([]int16, 0, total)
		for _, f := range frames {
			track = append(track, f.samples...)
		}
		tracks = append(tracks, track)
		if minLen < 0 || total < minLen {
			minLen = total
		}
	}
	if len(tracks) == 0 || minLen <= 0 {
		return nil
	}

	mixed := make([]float32, minLen)
	count := float32(len(tracks))
	for _, track := range tracks {
		for i := 0; i < minLen; i++ {
			mixed[i] += float32(track[i]) / 32768.0 / count
		}
	}

	out := make([]byte, minLen*2)
	for i, v := range mixed {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}

// ParticipantAudio returns the raw unmixed concatenation for one
// participant, or nil if the participant has no buffered audio.
func (b *Buffer) ParticipantAudio(participant domain.ParticipantID) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	frames, ok := b.participants[participant]
	if !ok || len(frames) == 0 {
		return nil
	}
	total := 0
	for _, f := range frames {
		total += len(f.samples)
	}
	out := make([]byte, 0, total*2)
	buf := make([]byte, 2)
	for _, f := range frames {
		for _, s := range f.samples {
			binary.LittleEndian.PutUint16(buf, uint16(s))
			out = append(out, buf...)
		}
	}
	return out
}

// Clear releases every participant track and resets the trigger state.
// Safe to call on an empty buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.participants = make(map[domain.ParticipantID][]frame)
	b.startTime = time.Time{}
	b.lastActivity = time.Time{}
	log.Debug().Str("module", "audio.buffer").Msg("buffer cleared")
}

// ParticipantCount reports how many participants currently hold audio.
func (b *Buffer) ParticipantCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.participants)
}

// Info is a read-only diagnostic snapshot of the buffer state.
func (b *Buffer) Info() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	info := map[string]any{
		"participant_count":       len(b.participants),
		"should_process":          b.shouldFlushLocked(),
		"sample_rate":             b.sampleRate,
		"channels":                b.channels,
		"buffer_duration_seconds": b.bufferDuration.Seconds(),
	}
	if !b.startTime.IsZero() {
		info["start_time"] = b.startTime.UTC().Format(time.RFC3339Nano)
		info["current_duration_seconds"] = b.now().Sub(b.startTime).Seconds()
	}
	if !b.lastActivity.IsZero() {
		info["last_activity_time"] = b.lastActivity.UTC().Format(time.RFC3339Nano)
	}

	total := 0
	for _, frames := range b.participants {
		for _, f := range frames {
			total += len(f.samples)
		}
	}
	info["total_samples"] = total
	if total > 0 {
		info["total_duration_seconds"] = float64(total) / float64(b.sampleRate)
	} else {
		info["total_duration_seconds"] = 0.0
	}
	return info
}

func decodePCM16(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
