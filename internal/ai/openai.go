// Package ai generates meeting summaries and action items through an
// OpenAI-compatible chat completions backend.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/domain"
)

// Options configure the summarization client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client implements core.Summarizer over the /chat/completions endpoint.
type Client struct {
	opts Options
	http *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// structured is the JSON shape the prompts ask the model for.
type structured struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []struct {
		Title      string `json:"title"`
		AssignedTo string `json:"assigned_to"`
		Priority   string `json:"priority"`
	} `json:"action_items"`
}

const systemPrompt = "You are a meeting assistant. You receive a meeting transcript " +
	"and respond with JSON only: {\"summary\": string, \"key_points\": [string], " +
	"\"action_items\": [{\"title\": string, \"assigned_to\": string, \"priority\": \"low\"|\"medium\"|\"high\"}]}."

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("ai: base url is required")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
	}, nil
}

// GenerateSummary summarizes the given transcript window. Final summaries
// get a prompt asking for the whole-meeting wrap-up; interval ones for the
// recent discussion only.
func (c *Client) GenerateSummary(ctx context.Context, segments []domain.TranscriptSegment, isFinal bool) (*domain.SummaryResult, error) {
	if len(segments) == 0 {
		return nil, errors.New("ai: no transcript segments to summarize")
	}

	var instruction string
	if isFinal {
		instruction = "Summarize this complete meeting. Cover outcomes, decisions and all action items."
	} else {
		instruction = "Summarize the recent discussion below. Keep it short; list open action items."
	}

	content, model, err := c.chat(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: instruction + "\n\nTranscript:\n" + renderTranscript(segments)},
	})
	if err != nil {
		return nil, err
	}

	result := parseStructured(content)
	result.IsFinal = isFinal
	result.Model = model
	log.Info().Str("module", "ai.openai").Bool("is_final", isFinal).
		Int("segments", len(segments)).Int("action_items", len(result.ActionItems)).Msg("summary generated")
	return result, nil
}

// ExtractActionItems asks only for the follow-up tasks in the transcript.
func (c *Client) ExtractActionItems(ctx context.Context, segments []domain.TranscriptSegment) ([]domain.ActionItem, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	content, _, err := c.chat(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "List every action item agreed in this transcript.\n\nTranscript:\n" + renderTranscript(segments)},
	})
	if err != nil {
		return nil, err
	}
	return parseStructured(content).ActionItems, nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) chat(ctx context.Context, messages []chatMessage) (content, model string, err error) {
	payload := map[string]any{
		"model":       c.opts.Model,
		"messages":    messages,
		"max_tokens":  c.opts.MaxTokens,
		"temperature": c.opts.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("encode chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("chat completion status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", "", errors.New("ai: empty chat response")
	}
	model = out.Model
	if model == "" {
		model = c.opts.Model
	}
	return out.Choices[0].Message.Content, model, nil
}

// parseStructured reads the model's JSON reply. A reply that is not valid
// JSON (or is wrapped in a code fence) degrades to a plain-text summary.
func parseStructured(content string) *domain.SummaryResult {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var s structured
	if err := json.Unmarshal([]byte(trimmed), &s); err != nil || s.Summary == "" {
		return &domain.SummaryResult{Summary: strings.TrimSpace(content)}
	}

	now := time.Now().UTC()
	items := make([]domain.ActionItem, 0, len(s.ActionItems))
	for _, a := range s.ActionItems {
		if strings.TrimSpace(a.Title) == "" {
			continue
		}
		priority := domain.PriorityMedium
		switch strings.ToLower(a.Priority) {
		case string(domain.PriorityLow):
			priority = domain.PriorityLow
		case string(domain.PriorityHigh):
			priority = domain.PriorityHigh
		case string(domain.PriorityUrgent):
			priority = domain.PriorityUrgent
		}
		items = append(items, domain.ActionItem{
			Title:      strings.TrimSpace(a.Title),
			AssignedTo: strings.TrimSpace(a.AssignedTo),
			Priority:   priority,
			Status:     domain.ActionOpen,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return &domain.SummaryResult{
		Summary:     s.Summary,
		KeyPoints:   s.KeyPoints,
		ActionItems: items,
	}
}

func renderTranscript(segments []domain.TranscriptSegment) string {
	var b strings.Builder
	for _, seg := range segments {
		speaker := seg.SpeakerName
		if speaker == "" {
			speaker = string(seg.Speaker)
		}
		if speaker == "" {
			speaker = "unknown"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", seg.Timestamp.UTC().Format("15:04:05"), speaker, seg.Text)
	}
	return b.String()
}
