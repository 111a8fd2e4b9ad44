package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
)

// Redis key layout. Sessions are plain JSON values; transcripts and notes
// are append-only lists in arrival order.
const (
	keyPrefixSession    = "notetaker:session:"
	keyPrefixTranscript = "notetaker:transcripts:"
	keyPrefixNotes      = "notetaker:notes:"
)

// Redis implements core.Storage on a Redis backend.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. ttl <= 0 keeps data forever.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis at %s: %w", addr, err)
	}
	log.Info().Str("module", "storage.redis").Str("addr", addr).Msg("redis connected")
	return NewRedis(client, ttl), nil
}

func (r *Redis) SaveSession(ctx context.Context, snap core.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %q: %w", snap.SessionID, err)
	}
	if err := r.client.Set(ctx, keyPrefixSession+snap.SessionID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %q: %w", snap.SessionID, err)
	}
	return nil
}

func (r *Redis) GetSession(ctx context.Context, sessionID string) (*core.SessionSnapshot, error) {
	data, err := r.client.Get(ctx, keyPrefixSession+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %q: %w", sessionID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %q: %w", sessionID, err)
	}
	var snap core.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", sessionID, err)
	}
	return &snap, nil
}

func (r *Redis) SaveTranscript(ctx context.Context, sessionID string, seg domain.TranscriptSegment) error {
	data, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("marshal transcript segment: %w", err)
	}
	key := keyPrefixTranscript + sessionID
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save transcript for session %q: %w", sessionID, err)
	}
	return nil
}

// GetTranscripts returns segments in arrival order; limit > 0 returns only
// the most recent ones.
func (r *Redis) GetTranscripts(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptSegment, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	rows, err := r.client.LRange(ctx, keyPrefixTranscript+sessionID, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get transcripts for session %q: %w", sessionID, err)
	}
	segs := make([]domain.TranscriptSegment, 0, len(rows))
	for _, row := range rows {
		var seg domain.TranscriptSegment
		if err := json.Unmarshal([]byte(row), &seg); err != nil {
			log.Warn().Err(err).Str("module", "storage.redis").Str("session_id", sessionID).Msg("skipping malformed transcript row")
			continue
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func (r *Redis) SaveNote(ctx context.Context, sessionID string, note domain.Note) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal note: %w", err)
	}
	key := keyPrefixNotes + sessionID
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save note for session %q: %w", sessionID, err)
	}
	return nil
}

func (r *Redis) GetNotes(ctx context.Context, sessionID string, noteType domain.NoteType) ([]domain.Note, error) {
	rows, err := r.client.LRange(ctx, keyPrefixNotes+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get notes for session %q: %w", sessionID, err)
	}
	notes := make([]domain.Note, 0, len(rows))
	for _, row := range rows {
		var note domain.Note
		if err := json.Unmarshal([]byte(row), &note); err != nil {
			log.Warn().Err(err).Str("module", "storage.redis").Str("session_id", sessionID).Msg("skipping malformed note row")
			continue
		}
		if noteType != "" && note.Type != noteType {
			continue
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
