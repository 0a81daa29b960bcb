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

// Package metrics reduces turn rows and profile evaluations into the five
// run-level metrics. Engines are pure functions registered by name; every
// engine returns zero-valued stats on zero denominators instead of failing.
package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/memfin/adviseval/trace"
	"github.com/memfin/adviseval/turneval"
)

// Metric names, in report order.
const (
	M1ContextContinuity = "m1_context_continuity"
	M2ProfileAccuracy   = "m2_profile_accuracy"
	M3RiskCoverage      = "m3_risk_coverage"
	M4Compliance        = "m4_compliance"
	M5Explainability    = "m5_explainability"
)

// Order is the fixed metric order summaries and reports use.
var Order = []string{
	M1ContextContinuity,
	M2ProfileAccuracy,
	M3RiskCoverage,
	M4Compliance,
	M5Explainability,
}

// MetricResult is one engine's output: micro scores over turns, macro scores
// as the unweighted mean of per-dialogue scores, and the raw counts behind
// both.
type MetricResult struct {
	MetricName string                        `json:"metric_name"`
	Micro      map[string]float64            `json:"micro"`
	Macro      map[string]float64            `json:"macro"`
	Counts     map[string]int                `json:"counts"`
	ByDialog   map[string]map[string]float64 `json:"by_dialog"`
}

// Counters summarize what the run saw at dialogue granularity.
type Counters struct {
	TotalDialogs   int `json:"total_dialogs"`
	ValidDialogs   int `json:"valid_dialogs"`
	SkippedDialogs int `json:"skipped_dialogs"`
	FailedDialogs  int `json:"failed_dialogs"`
	TotalTurnPairs int `json:"total_turn_pairs"`
}

// EvalSummary is the persisted run-level result.
type EvalSummary struct {
	RunID        string                   `json:"run_id"`
	TraceVersion string                   `json:"trace_version"`
	DatasetPath  string                   `json:"dataset_path"`
	Metrics      map[string]*MetricResult `json:"metrics"`
	Counters     Counters                 `json:"counters"`
}

// Inputs is everything the engines consume. Engines never mutate it, so one
// Inputs value may be shared across concurrently running engines.
type Inputs struct {
	Rows     []turneval.Row
	Profiles []turneval.ProfileEval

	// TraceCount is the number of dialogue traces in the run and
	// InvalidTraceCount how many of those are invalid; profile accuracy
	// reports its skip and failure counts against them.
	TraceCount        int
	InvalidTraceCount int
}

// ComputeFunc computes one metric.
type ComputeFunc func(in Inputs) *MetricResult

// Registry manages metric engines by name.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]ComputeFunc
}

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]ComputeFunc)}
}

// Register registers an engine under a name.
func (r *Registry) Register(name string, fn ComputeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[name]; exists {
		return fmt.Errorf("metric engine already registered: %s", name)
	}
	r.engines[name] = fn
	return nil
}

// Compute runs the named engine.
func (r *Registry) Compute(name string, in Inputs) (*MetricResult, error) {
	r.mu.RLock()
	fn, exists := r.engines[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("no metric engine registered: %s", name)
	}
	return fn(in), nil
}

// Names returns all registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the registry the engines of this package register into.
var DefaultRegistry = NewRegistry()

// Register registers an engine in the default registry, panicking on a
// duplicate name. Intended for use from init functions.
func Register(name string, fn ComputeFunc) {
	if err := DefaultRegistry.Register(name, fn); err != nil {
		panic(err)
	}
}

// ComputeAll runs every metric in Order and returns the results keyed by
// metric name. Engines run concurrently; they are pure reducers over shared
// read-only inputs.
func ComputeAll(in Inputs) map[string]*MetricResult {
	results := make([]*MetricResult, len(Order))
	var g errgroup.Group
	for i, name := range Order {
		g.Go(func() error {
			res, err := DefaultRegistry.Compute(name, in)
			if err != nil {
				log.Warn().Str("metric", name).Err(err).Msg("skipping unregistered metric")
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*MetricResult, len(Order))
	for i, name := range Order {
		if results[i] != nil {
			out[name] = results[i]
		}
	}
	return out
}

// NewSummary assembles the run-level summary.
func NewSummary(runID, datasetPath string, results map[string]*MetricResult, counters Counters) *EvalSummary {
	return &EvalSummary{
		RunID:        runID,
		TraceVersion: trace.Version,
		DatasetPath:  datasetPath,
		Metrics:      results,
		Counters:     counters,
	}
}

// CountTraces derives the run counters from the collected traces.
func CountTraces(traces []trace.DialogTrace) Counters {
	c := Counters{TotalDialogs: len(traces)}
	for _, t := range traces {
		if t.ValidDialog {
			c.ValidDialogs++
		}
		switch t.DialogStatus {
		case trace.DialogSkipped:
			c.SkippedDialogs++
		case trace.DialogFailed:
			c.FailedDialogs++
		}
		c.TotalTurnPairs += len(t.Turns)
	}
	return c
}

// groupRows buckets rows by dialogue, preserving first-seen dialogue order so
// float accumulation order, and with it every reported mean, is identical
// from run to run.
func groupRows(rows []turneval.Row) ([]string, map[string][]turneval.Row) {
	var order []string
	grouped := make(map[string][]turneval.Row)
	for _, r := range rows {
		if _, seen := grouped[r.DialogID]; !seen {
			order = append(order, r.DialogID)
		}
		grouped[r.DialogID] = append(grouped[r.DialogID], r)
	}
	return order, grouped
}

// macroMean averages per-dialogue sub-scores in dialogue order. Every key is
// present in the result even when no dialogue scored.
func macroMean(order []string, byDialog map[string]map[string]float64, keys []string) map[string]float64 {
	macro := make(map[string]float64, len(keys))
	n := 0
	for _, id := range order {
		scores, ok := byDialog[id]
		if !ok {
			continue
		}
		n++
		for _, k := range keys {
			macro[k] += scores[k]
		}
	}
	for _, k := range keys {
		if n > 0 {
			macro[k] /= float64(n)
		} else {
			macro[k] = 0.0
		}
	}
	return macro
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0.0
	}
	return float64(num) / float64(den)
}
