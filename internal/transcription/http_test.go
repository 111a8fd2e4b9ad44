package transcription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/NoteTaker/internal/core"
)

func TestTranscribeParsesSegments(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		assert.Equal(t, "en-US", r.URL.Query().Get("language"))
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		gotBody = make([]byte, 4)
		_, _ = r.Body.Read(gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"text": "hello world",
			"language": "en",
			"segments": [
				{"text": " hello ", "start": 0.0, "end": 1.2, "confidence": 0.9, "speaker": "alice"},
				{"text": "", "start": 1.2, "end": 1.3},
				{"text": "world", "start": 1.3, "end": 2.0, "confidence": 0.8}
			]
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	segs, err := c.Transcribe(context.Background(), []byte{1, 2, 3, 4}, "en-US", 16000)
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, "hello", segs[0].Text)
	assert.Equal(t, "alice", string(segs[0].Speaker))
	assert.InDelta(t, 0.9, segs[0].Confidence, 0.001)
	assert.Equal(t, "en", segs[0].Language)
	assert.True(t, segs[0].IsFinal)
	assert.Equal(t, "world", segs[1].Text)

	// Payload must be WAV-wrapped.
	assert.Equal(t, "RIFF", string(gotBody))
}

func TestTranscribeFallsBackToPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text": "  just text  "}`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	segs, err := c.Transcribe(context.Background(), []byte{1, 2}, "en-US", 16000)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "just text", segs[0].Text)
}

func TestTranscribeEmptyInput(t *testing.T) {
	c, err := NewClient(Options{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	segs, err := c.Transcribe(context.Background(), nil, "en-US", 16000)
	require.NoError(t, err)
	assert.Nil(t, segs)
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"text": "recovered"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, MaxRetries: 2})
	require.NoError(t, err)

	segs, err := c.Transcribe(context.Background(), []byte{1, 2}, "en-US", 16000)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "recovered", segs[0].Text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTranscribeClientErrorDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)

	_, err = c.Transcribe(context.Background(), []byte{1, 2}, "en-US", 16000)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// Cancellation during retry backoff surfaces as context.Canceled, not as a
// backend timeout.
func TestTranscribeCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = c.Transcribe(ctx, []byte{1, 2}, "en-US", 16000)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrTimeout)
}

func TestStreamTranscribesChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text": "chunk"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	in := make(chan []byte, 2)
	in <- []byte{1, 2}
	in <- []byte{3, 4}
	close(in)

	out, err := c.Stream(context.Background(), in, "en-US", 16000)
	require.NoError(t, err)

	var texts []string
	for seg := range out {
		texts = append(texts, seg.Text)
	}
	assert.Equal(t, []string{"chunk", "chunk"}, texts)
}
