// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import (
	"context"
	"maps"
	"sync"
	"time"
)

// SlotStore persists server-side session slots between requests, keyed by
// the slot ID carried in the slot cookie.
type SlotStore interface {
	// Load returns the slots for id. A missing or expired id yields an
	// empty map and no error.
	Load(ctx context.Context, id string) (map[string]string, error)

	// Save replaces the slots for id and refreshes its TTL.
	Save(ctx context.Context, id string, values map[string]string, ttl time.Duration) error

	// Delete removes id.
	Delete(ctx context.Context, id string) error
}

// MemorySlots is a process-local SlotStore.
type MemorySlots struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	values    map[string]string
	expiresAt time.Time
}

// NewMemorySlots creates an empty MemorySlots.
func NewMemorySlots() *MemorySlots {
	return &MemorySlots{entries: make(map[string]memoryEntry), now: time.Now}
}

// Load implements SlotStore.
func (m *MemorySlots) Load(_ context.Context, id string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return map[string]string{}, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, id)
		return map[string]string{}, nil
	}
	return maps.Clone(entry.values), nil
}

// Save implements SlotStore.
func (m *MemorySlots) Save(_ context.Context, id string, values map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[id] = memoryEntry{values: maps.Clone(values), expiresAt: m.now().Add(ttl)}
	return nil
}

// Delete implements SlotStore.
func (m *MemorySlots) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)
	return nil
}

// Len returns the number of live entries.
func (m *MemorySlots) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ SlotStore = (*MemorySlots)(nil)
