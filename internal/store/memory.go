// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store provides run repository implementations: an in-memory store
// for tests and embedding, and a SQLite store for persistence.
package store

import (
	"context"
	"sync"

	"github.com/tombee/cascade/pkg/engine"
	"github.com/tombee/cascade/pkg/errors"
)

// MemoryStore is an in-memory RunRepository. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]*engine.Run
	outcomes map[string]*engine.RunOutcome
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:     make(map[string]*engine.Run),
		outcomes: make(map[string]*engine.RunOutcome),
	}
}

// Create implements engine.RunRepository.
func (s *MemoryStore) Create(ctx context.Context, run *engine.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

// Update implements engine.RunRepository.
func (s *MemoryStore) Update(ctx context.Context, runID string, outcome *engine.RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runID]; ok {
		run.Status = outcome.Status
	}
	s.outcomes[runID] = outcome
	return nil
}

// Get returns a stored run and its outcome (outcome may be nil while the run
// is in flight).
func (s *MemoryStore) Get(runID string) (*engine.Run, *engine.RunOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	copied := *run
	return &copied, s.outcomes[runID], nil
}

// Len returns the number of stored runs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
