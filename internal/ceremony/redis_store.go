// Copyright (c) 2025 Justin Cranford
//
//

package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mpoauthn/internal/apperr"
)

// RedisStore backs the Ceremony Store (C1) with a remote keyed cache with
// server-side expiration, per the production implementation option of
// §4.1. Enriches the stack beyond the teacher's own in-memory-only
// ceremony analog, the way other pack repos use redis/go-redis for
// ephemeral, TTL-bound state.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore over an already-configured client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisRecord struct {
	Kind      Kind      `json:"kind"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *RedisStore) Put(ctx context.Context, kind Kind, payload []byte, ttl time.Duration) (string, error) {
	requestID, err := NewRequestID()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()

	encoded, err := json.Marshal(redisRecord{Kind: kind, Payload: payload, CreatedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return "", fmt.Errorf("failed to encode ceremony record: %w", err)
	}

	// SETNX gives us the collision-rejecting Put the contract requires,
	// even though a 128-bit id collision is practically unreachable.
	ok, err := s.client.SetNX(ctx, redisKey(requestID), encoded, ttl).Result()
	if err != nil {
		return "", apperr.WrapError(apperr.ErrStorageUnavailable, err)
	}

	if !ok {
		return "", apperr.ErrCeremonyConflict
	}

	return requestID, nil
}

func (s *RedisStore) Take(ctx context.Context, requestID string) (*Record, error) {
	raw, err := s.client.GetDel(ctx, redisKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, apperr.WrapError(apperr.ErrStorageUnavailable, err)
	}

	var decoded redisRecord
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apperr.WrapError(apperr.ErrStorageUnavailable, fmt.Errorf("malformed ceremony record: %w", err))
	}

	return &Record{
		RequestID: requestID,
		Kind:      decoded.Kind,
		Payload:   decoded.Payload,
		CreatedAt: decoded.CreatedAt,
		ExpiresAt: decoded.ExpiresAt,
	}, nil
}

func redisKey(requestID string) string {
	return "mpoauthn:ceremony:" + requestID
}
