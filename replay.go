// replay.go: Nonce replay detection with a rotating ring of bloom filters.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"fmt"
	"hash/fnv"
	"sync"

	goerrors "github.com/agilira/go-errors"
	"github.com/riobard/go-bloom"
)

// Default replay filter parameters.
const (
	DefaultReplaySlots             = 10
	DefaultReplayCapacity          = 1e6
	DefaultReplayFalsePositiveRate = 1e-6
)

// ErrCodeReplayConfig is the go-errors code for invalid filter configuration.
const ErrCodeReplayConfig = "CRYPTO_REPLAY_CONFIG"

// ReplayFilterConfig configures a ReplayFilter.
type ReplayFilterConfig struct {
	// Slots is the number of bloom filters in the ring. When the current
	// filter is full the oldest one is cleared and reused, so roughly
	// Capacity*(Slots-1)/Slots of the most recent nonces are remembered.
	Slots int

	// Capacity is the total number of nonces the ring is sized for.
	Capacity int

	// FalsePositiveRate is the per-filter false positive probability.
	// A false positive rejects a fresh nonce as replayed.
	FalsePositiveRate float64
}

// DefaultReplayFilterConfig returns the default configuration.
func DefaultReplayFilterConfig() ReplayFilterConfig {
	return ReplayFilterConfig{
		Slots:             DefaultReplaySlots,
		Capacity:          DefaultReplayCapacity,
		FalsePositiveRate: DefaultReplayFalsePositiveRate,
	}
}

// ReplayFilter remembers recently seen nonces so that a receiver can reject
// messages sealed under a nonce it has already accepted. It is safe for
// concurrent use.
//
// The filter is probabilistic: it never misses a nonce still inside its
// window but may occasionally report a fresh nonce as seen.
type ReplayFilter struct {
	mu           sync.RWMutex
	slotCapacity int
	slotPosition int
	entryCounter int
	slots        []bloom.Filter
}

// doubleFNV provides the two independent hashes the bloom filter needs
func doubleFNV(b []byte) (uint64, uint64) {
	hx := fnv.New64()
	_, _ = hx.Write(b)
	x := hx.Sum64()
	hy := fnv.New64a()
	_, _ = hy.Write(b)
	y := hy.Sum64()
	return x, y
}

// NewReplayFilter creates a replay filter.
func NewReplayFilter(config ReplayFilterConfig) (*ReplayFilter, error) {
	if config.Slots <= 0 || config.Capacity < config.Slots {
		richErr := goerrors.New(ErrCodeReplayConfig, fmt.Sprintf("capacity (%d) must be at least the number of slots (%d) and slots must be positive", config.Capacity, config.Slots))
		return nil, fmt.Errorf("invalid replay filter configuration: %w", richErr)
	}
	if config.FalsePositiveRate <= 0 || config.FalsePositiveRate >= 1 {
		richErr := goerrors.New(ErrCodeReplayConfig, fmt.Sprintf("false positive rate must be in (0, 1) (got %g)", config.FalsePositiveRate))
		return nil, fmt.Errorf("invalid replay filter configuration: %w", richErr)
	}

	f := &ReplayFilter{
		slotCapacity: config.Capacity / config.Slots,
		slots:        make([]bloom.Filter, config.Slots),
	}
	for i := range f.slots {
		f.slots[i] = bloom.New(f.slotCapacity, config.FalsePositiveRate, doubleFNV)
	}
	return f, nil
}

// Add records nonce as seen.
func (f *ReplayFilter) Add(nonce Nonce) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addLocked(nonce)
}

// Test reports whether nonce has probably been seen.
func (f *ReplayFilter) Test(nonce Nonce) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.testLocked(nonce)
}

// CheckAndAdd atomically tests and records nonce. It returns true if the
// nonce had already been seen, in which case the message must be rejected.
func (f *ReplayFilter) CheckAndAdd(nonce Nonce) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.testLocked(nonce) {
		return true
	}
	f.addLocked(nonce)
	return false
}

// Nonces are keyed by their exported bytes: the same IV under a different
// field split is still the same IV.
func (f *ReplayFilter) addLocked(nonce Nonce) {
	slot := f.slots[f.slotPosition]
	if f.entryCounter >= f.slotCapacity {
		// Move to next slot and reset
		f.slotPosition = (f.slotPosition + 1) % len(f.slots)
		slot = f.slots[f.slotPosition]
		slot.Reset()
		f.entryCounter = 0
	}
	f.entryCounter++
	slot.Add(nonce.bytes[:nonce.Size()])
}

func (f *ReplayFilter) testLocked(nonce Nonce) bool {
	key := nonce.bytes[:nonce.Size()]
	for _, s := range f.slots {
		if s.Test(key) {
			return true
		}
	}
	return false
}
