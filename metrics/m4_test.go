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

func TestComputeM4(t *testing.T) {
	rows := []turneval.Row{
		// Empty labels on both sides default to compliant and agree.
		{DialogID: "d_a", EligibleM4: true},
		{
			DialogID:            "d_a",
			EligibleM4:          true,
			PredComplianceLabel: turneval.LabelSevereViolation,
			GTComplianceLabel:   turneval.LabelMinorViolation,
		},
		{
			DialogID:            "d_a",
			EligibleM4:          true,
			PredComplianceLabel: turneval.LabelMinorViolation,
			GTComplianceLabel:   turneval.LabelMinorViolation,
			ForbiddenHits:       []string{"保证收益"},
		},
		{
			DialogID:            "d_b",
			EligibleM4:          true,
			PredComplianceLabel: turneval.LabelCompliant,
			GTComplianceLabel:   turneval.LabelSevereViolation,
		},
	}

	got := computeM4(Inputs{Rows: rows})

	wantMicro := map[string]float64{
		"compliance_label_acc":  2.0 / 4.0,
		"severe_violation_rate": 1.0 / 4.0,
		"forbidden_hit_rate":    1.0 / 4.0,
	}
	if diff := cmp.Diff(wantMicro, got.Micro, approx); diff != "" {
		t.Errorf("micro mismatch (-want +got):\n%s", diff)
	}

	wantMacro := map[string]float64{
		"compliance_label_acc":  (2.0/3.0 + 0.0) / 2.0,
		"severe_violation_rate": (1.0/3.0 + 0.0) / 2.0,
		"forbidden_hit_rate":    (1.0/3.0 + 0.0) / 2.0,
	}
	if diff := cmp.Diff(wantMacro, got.Macro, approx); diff != "" {
		t.Errorf("macro mismatch (-want +got):\n%s", diff)
	}

	wantCounts := map[string]int{
		"eligible_count": 4,
		"skipped_count":  0,
		"failed_count":   0,
		"severe_count":   1,
	}
	if diff := cmp.Diff(wantCounts, got.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeM4ZeroDenominators(t *testing.T) {
	got := computeM4(Inputs{Rows: []turneval.Row{{DialogID: "d_a", EligibleM4: false}}})

	for key, v := range got.Micro {
		if v != 0.0 {
			t.Errorf("micro[%s] = %v, want 0", key, v)
		}
	}
	if got.Counts["skipped_count"] != 1 {
		t.Errorf("skipped_count = %d, want 1", got.Counts["skipped_count"])
	}
}
