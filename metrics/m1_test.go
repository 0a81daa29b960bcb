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

	"github.com/memfin/adviseval/turneval"
)

func TestComputeM1(t *testing.T) {
	rows := []turneval.Row{
		{
			DialogID:     "d_a",
			EligibleM1:   true,
			KeyHitFlags:  []bool{true, true},
			M1SourceHits: turneval.SourceHits{ShortTerm: 1, LongTerm: 1},
		},
		{
			DialogID:                "d_a",
			EligibleM1:              true,
			KeyHitFlags:             []bool{true, false},
			ConstraintContradiction: true,
			M1SourceHits:            turneval.SourceHits{Profile: 1},
		},
		{
			DialogID:    "d_b",
			EligibleM1:  true,
			KeyHitFlags: []bool{false},
		},
		// Ineligible rows only contribute to skipped_count.
		{DialogID: "d_a", EligibleM1: false},
	}

	got := computeM1(Inputs{Rows: rows})

	wantMicro := map[string]float64{
		"key_coverage":        3.0 / 5.0,
		"strict_key_hit_rate": 1.0 / 3.0,
		"contradiction_rate":  1.0 / 3.0,
		"short_term_hit_rate": 1.0 / 5.0,
		"long_term_hit_rate":  1.0 / 5.0,
		"profile_hit_rate":    1.0 / 5.0,
	}
	if diff := cmp.Diff(wantMicro, got.Micro, approx); diff != "" {
		t.Errorf("micro mismatch (-want +got):\n%s", diff)
	}

	wantMacro := map[string]float64{
		"key_coverage":        (0.75 + 0.0) / 2.0,
		"strict_key_hit_rate": (0.5 + 0.0) / 2.0,
		"contradiction_rate":  (0.5 + 0.0) / 2.0,
	}
	if diff := cmp.Diff(wantMacro, got.Macro, approx); diff != "" {
		t.Errorf("macro mismatch (-want +got):\n%s", diff)
	}

	wantCounts := map[string]int{
		"eligible_count":         3,
		"skipped_count":          1,
		"failed_count":           0,
		"required_key_total":     5,
		"required_key_hit_total": 3,
		"short_term_hit_total":   1,
		"long_term_hit_total":    1,
		"profile_hit_total":      1,
	}
	if diff := cmp.Diff(wantCounts, got.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	wantByDialog := map[string]map[string]float64{
		"d_a": {"key_coverage": 0.75, "strict_key_hit_rate": 0.5, "contradiction_rate": 0.5},
		"d_b": {"key_coverage": 0.0, "strict_key_hit_rate": 0.0, "contradiction_rate": 0.0},
	}
	if diff := cmp.Diff(wantByDialog, got.ByDialog, approx); diff != "" {
		t.Errorf("by_dialog mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeM1ZeroDenominators(t *testing.T) {
	got := computeM1(Inputs{})

	for key, v := range got.Micro {
		if v != 0.0 {
			t.Errorf("micro[%s] = %v, want 0", key, v)
		}
	}
	for key, v := range got.Macro {
		if v != 0.0 {
			t.Errorf("macro[%s] = %v, want 0", key, v)
		}
	}
	if got.Counts["eligible_count"] != 0 || got.Counts["skipped_count"] != 0 {
		t.Errorf("counts = %v", got.Counts)
	}
	if len(got.ByDialog) != 0 {
		t.Errorf("by_dialog = %v, want empty", got.ByDialog)
	}
}
