// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redisslots stores server-side session slots in Redis hashes.
package redisslots

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/transport"
)

// DefaultPrefix namespaces slot keys.
const DefaultPrefix = "gatekeep:slots"

// Store implements transport.SlotStore. Each slot ID maps to one hash whose
// fields are the slot keys.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// New creates a Store. An empty prefix uses DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

// Load implements transport.SlotStore.
func (s *Store) Load(ctx context.Context, id string) (map[string]string, error) {
	values, err := s.rdb.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]string{}, nil
		}
		return nil, oops.Code("SLOTS_UNAVAILABLE").With("operation", "load").Wrap(err)
	}
	return values, nil
}

// Save implements transport.SlotStore. The hash is replaced atomically.
func (s *Store) Save(ctx context.Context, id string, values map[string]string, ttl time.Duration) error {
	key := s.key(id)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return oops.Code("SLOTS_UNAVAILABLE").With("operation", "save").Wrap(err)
	}
	return nil
}

// Delete implements transport.SlotStore.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return oops.Code("SLOTS_UNAVAILABLE").With("operation", "delete").Wrap(err)
	}
	return nil
}

// Ping checks connectivity; used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return oops.Code("SLOTS_UNAVAILABLE").With("operation", "ping").Wrap(err)
	}
	return nil
}

var _ transport.SlotStore = (*Store)(nil)
