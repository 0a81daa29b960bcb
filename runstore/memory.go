// Copyright 2025 Google LLC
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

package runstore

import (
	"context"
	"sync"

	"rsc.io/omap"
	"rsc.io/ordered"

	"github.com/memfin/adviseval/metrics"
	"github.com/memfin/adviseval/trace"
	"github.com/memfin/adviseval/turneval"
)

// MemoryStore keeps run artifacts in ordered in-memory maps. It is the
// backend for tests and dry runs. Keys are order-preserving encodings, so
// scanning a run's traces yields them in dataset order without sorting.
type MemoryStore struct {
	mu        sync.Mutex
	manifests omap.Map[string, *Manifest]
	traces    omap.Map[string, *trace.DialogTrace]
	rows      omap.Map[string, *turneval.Row]
	summaries omap.Map[string, *metrics.EvalSummary]
	reports   omap.Map[string, string]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

type traceKey struct {
	RunID        string
	DatasetIndex int64
	DialogID     string
}

func (k traceKey) Encode() string {
	return string(ordered.Encode(k.RunID, k.DatasetIndex, k.DialogID))
}

type rowKey struct {
	RunID      string
	DialogID   string
	TurnPairID int64
}

func (k rowKey) Encode() string {
	return string(ordered.Encode(k.RunID, k.DialogID, k.TurnPairID))
}

// runRange bounds every key of a run: Encode(runID) is a strict prefix of
// all composite keys for that run, and Inf orders after them.
func runRange(runID string) (lo, hi string) {
	return string(ordered.Encode(runID)), string(ordered.Encode(runID, ordered.Inf))
}

func (s *MemoryStore) SaveManifest(_ context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.manifests.Set(string(ordered.Encode(m.RunID)), &cp)
	return nil
}

func (s *MemoryStore) SaveDialogTraces(_ context.Context, runID string, traces []trace.DialogTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := runRange(runID)
	deleteRange(&s.traces, lo, hi)
	for i := range traces {
		t := traces[i]
		key := traceKey{RunID: runID, DatasetIndex: int64(t.DatasetIndex), DialogID: t.DialogID}
		s.traces.Set(key.Encode(), &t)
	}
	return nil
}

func (s *MemoryStore) SaveTurnRows(_ context.Context, runID string, rows []turneval.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := runRange(runID)
	deleteRange(&s.rows, lo, hi)
	for i := range rows {
		r := rows[i]
		key := rowKey{RunID: runID, DialogID: r.DialogID, TurnPairID: int64(r.TurnPairID)}
		s.rows.Set(key.Encode(), &r)
	}
	return nil
}

func (s *MemoryStore) SaveSummary(_ context.Context, summary *metrics.EvalSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *summary
	s.summaries.Set(string(ordered.Encode(summary.RunID)), &cp)
	return nil
}

func (s *MemoryStore) SaveReport(_ context.Context, runID, markdown string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports.Set(string(ordered.Encode(runID)), markdown)
	return nil
}

func (s *MemoryStore) LoadDialogTraces(_ context.Context, runID string) ([]trace.DialogTrace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := runRange(runID)
	var traces []trace.DialogTrace
	for _, t := range s.traces.Scan(lo, hi) {
		traces = append(traces, *t)
	}
	if len(traces) == 0 {
		return nil, ErrNotFound
	}
	return traces, nil
}

func (s *MemoryStore) LoadSummary(_ context.Context, runID string) (*metrics.EvalSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.summaries.Get(string(ordered.Encode(runID)))
	if !ok {
		return nil, ErrNotFound
	}
	cp := *summary
	return &cp, nil
}

// Manifest returns the saved manifest for runID, if any.
func (s *MemoryStore) Manifest(runID string) (*Manifest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.manifests.Get(string(ordered.Encode(runID)))
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// Report returns the saved report markdown for runID, if any.
func (s *MemoryStore) Report(runID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports.Get(string(ordered.Encode(runID)))
}

// TurnRows returns the saved rows for runID in (dialog_id, turn_pair_id)
// order, if any.
func (s *MemoryStore) TurnRows(runID string) ([]turneval.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := runRange(runID)
	var rows []turneval.Row
	for _, r := range s.rows.Scan(lo, hi) {
		rows = append(rows, *r)
	}
	return rows, len(rows) > 0
}

// deleteRange removes all keys in lo ≤ key ≤ hi. Keys are collected before
// deleting so the scan never observes its own mutations.
func deleteRange[V any](m *omap.Map[string, V], lo, hi string) {
	var keys []string
	for k := range m.Scan(lo, hi) {
		keys = append(keys, k)
	}
	for _, k := range keys {
		m.Delete(k)
	}
}
