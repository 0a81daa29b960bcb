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

func TestComputeM5(t *testing.T) {
	rows := []turneval.Row{
		{
			DialogID:       "d_a",
			EligibleM5:     true,
			RubricRequired: []string{"信息依据", "边界声明"},
			RubricHitItems: []string{"信息依据"},
			JudgeScore:     fptr(4.0),
		},
		{
			DialogID:       "d_a",
			EligibleM5:     true,
			RubricRequired: []string{"信息依据"},
			RubricHitItems: []string{"信息依据"},
		},
		{
			DialogID:       "d_b",
			EligibleM5:     true,
			RubricRequired: []string{"信息依据", "边界声明", "可执行步骤", "方案比较维度"},
			RubricHitItems: []string{},
		},
		{DialogID: "d_b", EligibleM5: false},
	}

	got := computeM5(Inputs{Rows: rows})

	wantMicro := map[string]float64{
		"rubric_hit_rate":  2.0 / 7.0,
		"judge_score_mean": 4.0,
	}
	if diff := cmp.Diff(wantMicro, got.Micro, approx); diff != "" {
		t.Errorf("micro mismatch (-want +got):\n%s", diff)
	}

	// d_b never got a judge score; its dialogue mean is zero, not absent.
	wantMacro := map[string]float64{
		"rubric_hit_rate":  (2.0/3.0 + 0.0) / 2.0,
		"judge_score_mean": (4.0 + 0.0) / 2.0,
	}
	if diff := cmp.Diff(wantMacro, got.Macro, approx); diff != "" {
		t.Errorf("macro mismatch (-want +got):\n%s", diff)
	}

	wantCounts := map[string]int{
		"eligible_count":        3,
		"skipped_count":         1,
		"failed_count":          0,
		"rubric_required_total": 7,
		"rubric_hit_total":      2,
		"judge_scored_turns":    1,
	}
	if diff := cmp.Diff(wantCounts, got.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	wantByDialog := map[string]map[string]float64{
		"d_a": {"rubric_hit_rate": 2.0 / 3.0, "judge_score_mean": 4.0},
		"d_b": {"rubric_hit_rate": 0.0, "judge_score_mean": 0.0},
	}
	if diff := cmp.Diff(wantByDialog, got.ByDialog, approx); diff != "" {
		t.Errorf("by_dialog mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeM5ZeroDenominators(t *testing.T) {
	got := computeM5(Inputs{})
	want := map[string]float64{"rubric_hit_rate": 0.0, "judge_score_mean": 0.0}
	if diff := cmp.Diff(want, got.Micro); diff != "" {
		t.Errorf("micro mismatch (-want +got):\n%s", diff)
	}
	if got.Counts["judge_scored_turns"] != 0 {
		t.Errorf("judge_scored_turns = %d", got.Counts["judge_scored_turns"])
	}
}
