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

func TestComputeM3(t *testing.T) {
	rows := []turneval.Row{
		// Over-disclosure: three hits against two required tags caps at two
		// for coverage but still counts as strict.
		{
			DialogID:         "d_a",
			EligibleM3:       true,
			RiskRequiredTags: []string{"volatility_risk", "credit_risk"},
			RiskTagHits:      3,
		},
		{
			DialogID:         "d_a",
			EligibleM3:       true,
			RiskRequiredTags: []string{"volatility_risk"},
			RiskTagHits:      0,
		},
		{
			DialogID:         "d_b",
			EligibleM3:       true,
			RiskRequiredTags: []string{"volatility_risk", "credit_risk", "liquidity_risk"},
			RiskTagHits:      2,
		},
		{DialogID: "d_b", EligibleM3: false},
	}

	got := computeM3(Inputs{Rows: rows})

	wantMicro := map[string]float64{
		"risk_coverage":             4.0 / 6.0,
		"strict_risk_coverage_rate": 1.0 / 3.0,
	}
	if diff := cmp.Diff(wantMicro, got.Micro, approx); diff != "" {
		t.Errorf("micro mismatch (-want +got):\n%s", diff)
	}

	wantMacro := map[string]float64{
		"risk_coverage":             (2.0/3.0 + 2.0/3.0) / 2.0,
		"strict_risk_coverage_rate": (0.5 + 0.0) / 2.0,
	}
	if diff := cmp.Diff(wantMacro, got.Macro, approx); diff != "" {
		t.Errorf("macro mismatch (-want +got):\n%s", diff)
	}

	wantCounts := map[string]int{
		"eligible_count":      3,
		"skipped_count":       1,
		"failed_count":        0,
		"risk_required_total": 6,
		"risk_hit_total":      4,
	}
	if diff := cmp.Diff(wantCounts, got.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeM3ZeroDenominators(t *testing.T) {
	got := computeM3(Inputs{})
	want := map[string]float64{"risk_coverage": 0.0, "strict_risk_coverage_rate": 0.0}
	if diff := cmp.Diff(want, got.Micro); diff != "" {
		t.Errorf("micro mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, got.Macro); diff != "" {
		t.Errorf("macro mismatch (-want +got):\n%s", diff)
	}
}
