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

package metrics

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/memfin/adviseval/trace"
	"github.com/memfin/adviseval/turneval"
)

// approx absorbs the float error of summing per-dialogue scores in a
// different order than a hand calculation.
var approx = cmpopts.EquateApprox(0, 1e-9)

func fptr(v float64) *float64 { return &v }

func TestComputeAllCoversEveryMetric(t *testing.T) {
	results := ComputeAll(Inputs{})

	if len(results) != len(Order) {
		t.Fatalf("ComputeAll returned %d metrics, want %d", len(results), len(Order))
	}
	for _, name := range Order {
		res, ok := results[name]
		if !ok {
			t.Errorf("ComputeAll missing %q", name)
			continue
		}
		if res.MetricName != name {
			t.Errorf("result under key %q names itself %q", name, res.MetricName)
		}
		if res.Micro == nil || res.Macro == nil || res.Counts == nil || res.ByDialog == nil {
			t.Errorf("%s has nil sections: %+v", name, res)
		}
		for _, key := range []string{"eligible_count", "skipped_count", "failed_count"} {
			if _, ok := res.Counts[key]; !ok {
				t.Errorf("%s counts missing %q", name, key)
			}
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	fn := func(Inputs) *MetricResult { return &MetricResult{} }
	if err := r.Register("m_test", fn); err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}
	if err := r.Register("m_test", fn); err == nil {
		t.Fatal("second Register returned nil error")
	}
}

func TestRegistryComputeUnknownMetric(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Compute("m_missing", Inputs{}); err == nil {
		t.Fatal("Compute of unregistered metric returned nil error")
	}
}

func TestCountTraces(t *testing.T) {
	traces := []trace.DialogTrace{
		{ValidDialog: true, DialogStatus: trace.DialogOK, Turns: make([]trace.TurnTrace, 2)},
		{ValidDialog: false, DialogStatus: trace.DialogSkipped},
		{ValidDialog: true, DialogStatus: trace.DialogFailed, Turns: make([]trace.TurnTrace, 1)},
		{ValidDialog: true, DialogStatus: trace.DialogPartial, Turns: make([]trace.TurnTrace, 3)},
	}

	got := CountTraces(traces)
	want := Counters{
		TotalDialogs:   4,
		ValidDialogs:   3,
		SkippedDialogs: 1,
		FailedDialogs:  1,
		TotalTurnPairs: 6,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountTraces mismatch (-want +got):\n%s", diff)
	}
}

func TestNewSummary(t *testing.T) {
	results := ComputeAll(Inputs{})
	summary := NewSummary("run_1", "data/eval.jsonl", results, Counters{TotalDialogs: 2})

	if summary.RunID != "run_1" {
		t.Errorf("run id = %q", summary.RunID)
	}
	if summary.TraceVersion != trace.Version {
		t.Errorf("trace version = %q, want %q", summary.TraceVersion, trace.Version)
	}
	if summary.DatasetPath != "data/eval.jsonl" {
		t.Errorf("dataset path = %q", summary.DatasetPath)
	}
	if len(summary.Metrics) != len(Order) {
		t.Errorf("summary has %d metrics, want %d", len(summary.Metrics), len(Order))
	}
	if summary.Counters.TotalDialogs != 2 {
		t.Errorf("counters = %+v", summary.Counters)
	}
}

// TestEligibleCountsAreConsistent checks that per-dialogue eligible rows sum
// to the global eligible count for every turn-level metric.
func TestEligibleCountsAreConsistent(t *testing.T) {
	rows := []turneval.Row{
		{DialogID: "d1", EligibleM1: true, EligibleM4: true, KeyHitFlags: []bool{true}},
		{DialogID: "d1", EligibleM3: true, EligibleM4: true, RiskRequiredTags: []string{"volatility_risk"}},
		{DialogID: "d2", EligibleM1: true, EligibleM5: true, KeyHitFlags: []bool{false, true}, RubricRequired: []string{"信息依据"}},
		{DialogID: "d2", EligibleM4: true},
		{DialogID: "d3"},
	}
	in := Inputs{Rows: rows}

	eligibleFns := map[string]func(turneval.Row) bool{
		M1ContextContinuity: func(r turneval.Row) bool { return r.EligibleM1 },
		M3RiskCoverage:      func(r turneval.Row) bool { return r.EligibleM3 },
		M4Compliance:        func(r turneval.Row) bool { return r.EligibleM4 },
		M5Explainability:    func(r turneval.Row) bool { return r.EligibleM5 },
	}
	results := ComputeAll(in)

	for name, isEligible := range eligibleFns {
		perDialog := map[string]int{}
		for _, r := range rows {
			if isEligible(r) {
				perDialog[r.DialogID]++
			}
		}
		sum := 0
		for _, n := range perDialog {
			sum += n
		}
		if got := results[name].Counts["eligible_count"]; got != sum {
			t.Errorf("%s eligible_count = %d, per-dialogue sum = %d", name, got, sum)
		}
	}
}

func TestGroupRowsPreservesFirstSeenOrder(t *testing.T) {
	rows := []turneval.Row{
		{DialogID: "d2", TurnPairID: 1},
		{DialogID: "d1", TurnPairID: 1},
		{DialogID: "d2", TurnPairID: 2},
	}

	order, grouped := groupRows(rows)
	if diff := cmp.Diff([]string{"d2", "d1"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if len(grouped["d2"]) != 2 || len(grouped["d1"]) != 1 {
		t.Errorf("grouped sizes wrong: d2=%d d1=%d", len(grouped["d2"]), len(grouped["d1"]))
	}
}
