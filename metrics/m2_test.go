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

func TestComputeM2(t *testing.T) {
	profiles := []turneval.ProfileEval{
		{
			DialogID:        "d_a",
			GTRisk:          "medium",
			GTHorizon:       "long",
			GTLiquidity:     "medium",
			GTConstraints:   map[string]bool{},
			GTPreferences:   map[string]bool{"偏好债券基金": true, "偏好指数基金": true},
			PredRisk:        "medium",
			PredHorizon:     "long",
			PredLiquidity:   "medium",
			PredConstraints: map[string]bool{},
			PredPreferences: map[string]bool{"偏好债券基金": true},
		},
		{
			DialogID:        "d_b",
			GTRisk:          "unknown",
			GTHorizon:       "short",
			GTLiquidity:     "high",
			GTConstraints:   map[string]bool{"不使用杠杆": true},
			GTPreferences:   map[string]bool{},
			PredRisk:        "unknown",
			PredHorizon:     "long",
			PredLiquidity:   "high",
			PredConstraints: map[string]bool{},
			PredPreferences: map[string]bool{"偏好黄金": true},
		},
	}

	got := computeM2(Inputs{Profiles: profiles, TraceCount: 4, InvalidTraceCount: 1})

	// d_a: exact scalars, empty-vs-empty constraints 1.0, preferences
	// F1(1 of 2 predicted right) = 2/3. d_b: unknown GT risk scores 0 even
	// on agreement, horizon miss, liquidity hit, both F1 edge cases 0.
	pF1 := 2.0 * 1.0 * 0.5 / 1.5
	wantByDialog := map[string]map[string]float64{
		"d_a": {
			"risk_level_acc": 1.0,
			"horizon_acc":    1.0,
			"liquidity_acc":  1.0,
			"constraints_f1": 1.0,
			"preferences_f1": pF1,
			"profile_score":  (1.0 + 1.0 + 1.0 + 1.0 + pF1) / 5.0,
		},
		"d_b": {
			"risk_level_acc": 0.0,
			"horizon_acc":    0.0,
			"liquidity_acc":  1.0,
			"constraints_f1": 0.0,
			"preferences_f1": 0.0,
			"profile_score":  1.0 / 5.0,
		},
	}
	if diff := cmp.Diff(wantByDialog, got.ByDialog, approx); diff != "" {
		t.Errorf("by_dialog mismatch (-want +got):\n%s", diff)
	}

	wantMicro := map[string]float64{
		"risk_level_acc": 0.5,
		"horizon_acc":    0.5,
		"liquidity_acc":  1.0,
		"constraints_f1": 0.5,
		"preferences_f1": pF1 / 2.0,
		"profile_score":  (1.0 + 1.0 + 2.0 + 1.0 + pF1) / 2.0 / 5.0,
	}
	if diff := cmp.Diff(wantMicro, got.Micro, approx); diff != "" {
		t.Errorf("micro mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got.Micro, got.Macro); diff != "" {
		t.Errorf("macro differs from micro (-micro +macro):\n%s", diff)
	}

	wantCounts := map[string]int{
		"eligible_count": 2,
		"skipped_count":  2,
		"failed_count":   1,
	}
	if diff := cmp.Diff(wantCounts, got.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeM2NoProfiles(t *testing.T) {
	got := computeM2(Inputs{TraceCount: 3, InvalidTraceCount: 2})

	for key, v := range got.Micro {
		if v != 0.0 {
			t.Errorf("micro[%s] = %v, want 0", key, v)
		}
	}
	wantCounts := map[string]int{
		"eligible_count": 0,
		"skipped_count":  3,
		"failed_count":   2,
	}
	if diff := cmp.Diff(wantCounts, got.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestSetF1Conventions(t *testing.T) {
	tests := []struct {
		name string
		pred map[string]bool
		gt   map[string]bool
		want float64
	}{
		{name: "both empty", pred: map[string]bool{}, gt: map[string]bool{}, want: 1.0},
		{name: "gt empty pred not", pred: map[string]bool{"a": true}, gt: map[string]bool{}, want: 0.0},
		{name: "pred empty gt not", pred: map[string]bool{}, gt: map[string]bool{"a": true}, want: 0.0},
		{name: "no overlap", pred: map[string]bool{"a": true}, gt: map[string]bool{"b": true}, want: 0.0},
		{name: "exact match", pred: map[string]bool{"a": true, "b": true}, gt: map[string]bool{"a": true, "b": true}, want: 1.0},
		{name: "partial overlap", pred: map[string]bool{"a": true, "c": true}, gt: map[string]bool{"a": true, "b": true}, want: 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := setF1(tc.pred, tc.gt); got != tc.want {
				t.Errorf("setF1 = %v, want %v", got, tc.want)
			}
		})
	}
}
