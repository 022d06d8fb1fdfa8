// Package session keeps authenticated-user state server-side in redis, keyed
// by an opaque cookie value. A session holds the account id plus any flash
// messages queued for the next page load.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

type Flash struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type Data struct {
	UserID uint    `json:"user_id"`
	Flash  []Flash `json:"flash,omitempty"`
}

type Store struct {
	client     *redisv9.Client
	defaultTTL time.Duration
}

func NewStore(client *redisv9.Client, defaultTTL time.Duration) *Store {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Store{client: client, defaultTTL: defaultTTL}
}

// Create opens a new session and returns its id. A zero userID carries an
// anonymous session (flash messages only). ttl <= 0 falls back to the
// default cookie lifetime.
func (s *Store) Create(ctx context.Context, userID uint, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	sid := uuid.NewString()
	if err := s.write(ctx, sid, &Data{UserID: userID}, ttl); err != nil {
		return "", err
	}
	return sid, nil
}

// Get returns the session data, or nil when the session does not exist or
// has expired.
func (s *Store) Get(ctx context.Context, sid string) (*Data, error) {
	raw, err := s.client.Get(ctx, s.key(sid)).Result()
	if err == redisv9.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session failed: %w", err)
	}

	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &data, nil
}

// AddFlash queues a message on the session without disturbing its TTL.
func (s *Store) AddFlash(ctx context.Context, sid, kind, text string) error {
	data, err := s.Get(ctx, sid)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	data.Flash = append(data.Flash, Flash{Kind: kind, Text: text})
	return s.write(ctx, sid, data, redisv9.KeepTTL)
}

// PopFlashes drains and returns the queued messages.
func (s *Store) PopFlashes(ctx context.Context, sid string) ([]Flash, error) {
	data, err := s.Get(ctx, sid)
	if err != nil || data == nil {
		return nil, err
	}
	flashes := data.Flash
	if len(flashes) == 0 {
		return nil, nil
	}
	data.Flash = nil
	if err := s.write(ctx, sid, data, redisv9.KeepTTL); err != nil {
		return nil, err
	}
	return flashes, nil
}

func (s *Store) Destroy(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, s.key(sid)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, sid string, data *Data, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sid), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session failed: %w", err)
	}
	return nil
}

func (s *Store) key(sid string) string {
	return "session:" + sid
}
