// Package store implements core.StateStore on PostgreSQL and in memory.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/tableio/internal/core"
)

// MaxMemoryRuns bounds the in-memory run history; older records are dropped.
const MaxMemoryRuns = 1000

// Memory is a process-local StateStore. Snapshots do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	states map[stateKey]core.NodeState
	runs   []core.RunRecord
}

type stateKey struct {
	kind core.NodeKind
	id   string
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{states: make(map[stateKey]core.NodeState)}
}

func (m *Memory) SaveState(_ context.Context, s core.NodeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.State = append([]byte(nil), s.State...)
	m.states[stateKey{s.Kind, s.ID}] = s
	return nil
}

func (m *Memory) LoadState(_ context.Context, kind core.NodeKind, id string) (core.NodeState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[stateKey{kind, id}]
	if !ok {
		return core.NodeState{}, fmt.Errorf("%w: %s %s", core.ErrStateNotFound, kind, id)
	}
	return s, nil
}

func (m *Memory) DeleteState(_ context.Context, kind core.NodeKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := stateKey{kind, id}
	if _, ok := m.states[k]; !ok {
		return fmt.Errorf("%w: %s %s", core.ErrStateNotFound, kind, id)
	}
	delete(m.states, k)
	return nil
}

// ListStates returns snapshots ordered by id, then kind.
func (m *Memory) ListStates(_ context.Context) ([]core.NodeState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.NodeState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func (m *Memory) RecordRun(_ context.Context, r core.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	if over := len(m.runs) - MaxMemoryRuns; over > 0 {
		m.runs = append([]core.RunRecord(nil), m.runs[over:]...)
	}
	return nil
}

// ListRuns returns matching runs, newest first.
func (m *Memory) ListRuns(_ context.Context, f core.RunFilter) ([]core.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit := f.Limit
	if limit <= 0 {
		limit = core.DefaultRunLimit
	}
	out := make([]core.RunRecord, 0)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.runs[i]
		if f.NodeID != "" && r.NodeID != f.NodeID {
			continue
		}
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
