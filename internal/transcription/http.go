// Package transcription turns mixed batch audio into transcript segments
// via a whisper-compatible HTTP backend.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/audio"
	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
)

// Options configure the HTTP transcription client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	BeamSize   int
	Translate  bool
}

// Client POSTs WAV-wrapped batches to the backend's /transcribe endpoint and
// retries transient failures with exponential backoff. It implements
// core.Transcriber.
type Client struct {
	opts Options
	http *http.Client
}

type wireSegment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker"`
}

type wireResponse struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Segments []wireSegment `json:"segments"`
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("transcription: base url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
	}, nil
}

// Transcribe wraps the PCM in a WAV container and sends it off. 5xx and
// network errors are retried; deadline expiry maps onto core.ErrTimeout so
// callers can distinguish a slow backend from a broken one.
func (c *Client) Transcribe(ctx context.Context, pcm []byte, language string, sampleRate int) ([]domain.TranscriptSegment, error) {
	if len(pcm) == 0 {
		return nil, nil
	}

	endpoint := c.endpoint(language)
	wav := audio.BuildWAV(pcm, sampleRate, 1, 16)

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, fmt.Errorf("transcribe: %w", core.ErrTimeout)
				}
				return nil, fmt.Errorf("transcribe: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		segments, retry, err := c.send(ctx, endpoint, wav, language)
		if err == nil {
			return segments, nil
		}
		lastErr = err
		if !retry {
			break
		}
		log.Warn().Err(err).Str("module", "transcription.http").Int("attempt", attempt).Msg("transcription attempt failed")
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, endpoint string, wav []byte, language string) ([]domain.TranscriptSegment, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wav))
	if err != nil {
		return nil, false, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, false, fmt.Errorf("transcribe: %w", core.ErrTimeout)
		}
		return nil, true, fmt.Errorf("send audio batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("transcription backend status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("transcription backend status %d", resp.StatusCode)
	}

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode transcription response: %w", err)
	}

	log.Debug().Str("module", "transcription.http").
		Int("bytes", len(wav)).Int("segments", len(out.Segments)).
		Dur("latency", time.Since(start)).Msg("transcription response received")

	return c.toSegments(out, language), false, nil
}

func (c *Client) toSegments(out wireResponse, language string) []domain.TranscriptSegment {
	lang := out.Language
	if lang == "" {
		lang = language
	}
	now := time.Now().UTC()

	if len(out.Segments) == 0 {
		text := strings.TrimSpace(out.Text)
		if text == "" {
			return nil
		}
		return []domain.TranscriptSegment{{
			Text:      text,
			Timestamp: now,
			Language:  lang,
			IsFinal:   true,
		}}
	}

	segments := make([]domain.TranscriptSegment, 0, len(out.Segments))
	for _, s := range out.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segments = append(segments, domain.TranscriptSegment{
			Text:       text,
			Speaker:    domain.ParticipantID(s.Speaker),
			Confidence: s.Confidence,
			StartTime:  s.Start,
			EndTime:    s.End,
			Timestamp:  now,
			Language:   lang,
			IsFinal:    true,
		})
	}
	return segments
}

// Stream transcribes chunks as they arrive on the input channel and feeds
// the resulting segments to the returned channel, which closes once the
// input closes or the context ends. Chunk failures are logged and skipped.
func (c *Client) Stream(ctx context.Context, pcm <-chan []byte, language string, sampleRate int) (<-chan domain.TranscriptSegment, error) {
	out := make(chan domain.TranscriptSegment)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-pcm:
				if !ok {
					return
				}
				segments, err := c.Transcribe(ctx, chunk, language, sampleRate)
				if err != nil {
					log.Error().Err(err).Str("module", "transcription.http").Msg("stream chunk failed")
					continue
				}
				for _, seg := range segments {
					select {
					case <-ctx.Done():
						return
					case out <- seg:
					}
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(language string) string {
	endpoint := c.opts.BaseURL + "/transcribe"
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	if language != "" {
		q.Set("language", language)
	}
	if c.opts.BeamSize > 0 {
		q.Set("beam_size", fmt.Sprintf("%d", c.opts.BeamSize))
	}
	if c.opts.Translate {
		q.Set("task", "translate")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
