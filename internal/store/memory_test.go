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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/cascade/pkg/engine"
	"github.com/tombee/cascade/pkg/errors"
)

func TestMemoryStore_CreateAndUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	run := &engine.Run{ID: "run-1", Flow: "pipeline", Status: engine.StatusRunning, StartedAt: time.Now()}
	require.NoError(t, s.Create(ctx, run))
	assert.Equal(t, 1, s.Len())

	outcome := &engine.RunOutcome{
		RunID:  "run-1",
		Flow:   "pipeline",
		Status: engine.StatusCompleted,
		State:  map[string]interface{}{"summary": "done"},
	}
	require.NoError(t, s.Update(ctx, "run-1", outcome))

	got, gotOutcome, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, got.Status)
	assert.Equal(t, outcome, gotOutcome)
}

func TestMemoryStore_GetBeforeUpdate(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Create(context.Background(), &engine.Run{ID: "run-1", Flow: "pipeline", Status: engine.StatusRunning}))

	run, outcome, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRunning, run.Status)
	assert.Nil(t, outcome)
}

func TestMemoryStore_GetUnknownRun(t *testing.T) {
	s := NewMemoryStore()

	_, _, err := s.Get("missing")
	require.Error(t, err)

	var nfe *errors.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "run", nfe.Resource)
}

func TestMemoryStore_CreateCopiesRun(t *testing.T) {
	s := NewMemoryStore()
	run := &engine.Run{ID: "run-1", Flow: "pipeline", Status: engine.StatusRunning}
	require.NoError(t, s.Create(context.Background(), run))

	// Mutating the caller's struct must not reach the stored copy.
	run.Status = engine.StatusFailed

	got, _, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRunning, got.Status)
}
