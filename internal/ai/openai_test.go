package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/NoteTaker/internal/domain"
)

func chatServer(t *testing.T, reply string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		resp := map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]any{"content": reply}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testSegments() []domain.TranscriptSegment {
	return []domain.TranscriptSegment{
		{Text: "Let's ship on Friday", SpeakerName: "Alice", Timestamp: time.Now().UTC()},
		{Text: "I'll write the docs", Speaker: "bob", Timestamp: time.Now().UTC()},
	}
}

func TestGenerateSummaryParsesStructuredReply(t *testing.T) {
	reply := `{"summary":"Release planned.","key_points":["ship friday"],` +
		`"action_items":[{"title":"Write docs","assigned_to":"bob","priority":"high"}]}`
	var payload map[string]any
	srv := chatServer(t, reply, &payload)
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	result, err := c.GenerateSummary(context.Background(), testSegments(), true)
	require.NoError(t, err)

	assert.Equal(t, "Release planned.", result.Summary)
	assert.Equal(t, []string{"ship friday"}, result.KeyPoints)
	require.Len(t, result.ActionItems, 1)
	assert.Equal(t, "Write docs", result.ActionItems[0].Title)
	assert.Equal(t, "bob", result.ActionItems[0].AssignedTo)
	assert.Equal(t, domain.PriorityHigh, result.ActionItems[0].Priority)
	assert.Equal(t, domain.ActionOpen, result.ActionItems[0].Status)
	assert.True(t, result.IsFinal)
	assert.Equal(t, "test-model", result.Model)

	// The transcript must reach the model with speaker names.
	messages := payload["messages"].([]any)
	user := messages[1].(map[string]any)["content"].(string)
	assert.Contains(t, user, "Alice: Let's ship on Friday")
	assert.Contains(t, user, "bob: I'll write the docs")
}

func TestGenerateSummaryCodeFencedReply(t *testing.T) {
	reply := "```json\n{\"summary\":\"Fenced.\",\"key_points\":[]}\n```"
	srv := chatServer(t, reply, nil)
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	result, err := c.GenerateSummary(context.Background(), testSegments(), false)
	require.NoError(t, err)
	assert.Equal(t, "Fenced.", result.Summary)
	assert.False(t, result.IsFinal)
}

func TestGenerateSummaryPlainTextFallback(t *testing.T) {
	srv := chatServer(t, "The meeting went fine.", nil)
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	result, err := c.GenerateSummary(context.Background(), testSegments(), false)
	require.NoError(t, err)
	assert.Equal(t, "The meeting went fine.", result.Summary)
	assert.Empty(t, result.ActionItems)
}

func TestGenerateSummaryEmptySegments(t *testing.T) {
	c, err := NewClient(Options{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = c.GenerateSummary(context.Background(), nil, false)
	require.Error(t, err)
}

func TestGenerateSummaryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.GenerateSummary(context.Background(), testSegments(), false)
	require.Error(t, err)
}

func TestExtractActionItems(t *testing.T) {
	reply := `{"summary":"x","action_items":[{"title":"Book room"},{"title":"  "}]}`
	srv := chatServer(t, reply, nil)
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	items, err := c.ExtractActionItems(context.Background(), testSegments())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Book room", items[0].Title)
	assert.Equal(t, domain.PriorityMedium, items[0].Priority)
}
