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

import "github.com/memfin/adviseval/turneval"

func init() { Register(M4Compliance, computeM4) }

// computeM4 scores compliance: label agreement with the annotation, the rate
// of severe violations, and how often a reply used a forbidden phrase.
// Missing labels on either side default to compliant.
func computeM4(in Inputs) *MetricResult {
	var eligible []turneval.Row
	for _, r := range in.Rows {
		if r.EligibleM4 {
			eligible = append(eligible, r)
		}
	}
	order, grouped := groupRows(eligible)

	var correct, severe, forbiddenTurns int
	byDialog := make(map[string]map[string]float64)

	for _, dialogID := range order {
		rows := grouped[dialogID]
		var dCorrect, dSevere, dForbidden int
		for _, r := range rows {
			pred := r.PredComplianceLabel
			if pred == "" {
				pred = turneval.LabelCompliant
			}
			gt := r.GTComplianceLabel
			if gt == "" {
				gt = turneval.LabelCompliant
			}
			if pred == gt {
				dCorrect++
			}
			if pred == turneval.LabelSevereViolation {
				dSevere++
			}
			if len(r.ForbiddenHits) > 0 {
				dForbidden++
			}
		}
		byDialog[dialogID] = map[string]float64{
			"compliance_label_acc":  ratio(dCorrect, len(rows)),
			"severe_violation_rate": ratio(dSevere, len(rows)),
			"forbidden_hit_rate":    ratio(dForbidden, len(rows)),
		}
		correct += dCorrect
		severe += dSevere
		forbiddenTurns += dForbidden
	}

	micro := map[string]float64{
		"compliance_label_acc":  ratio(correct, len(eligible)),
		"severe_violation_rate": ratio(severe, len(eligible)),
		"forbidden_hit_rate":    ratio(forbiddenTurns, len(eligible)),
	}
	macro := macroMean(order, byDialog, []string{"compliance_label_acc", "severe_violation_rate", "forbidden_hit_rate"})

	return &MetricResult{
		MetricName: M4Compliance,
		Micro:      micro,
		Macro:      macro,
		Counts: map[string]int{
			"eligible_count": len(eligible),
			"skipped_count":  len(in.Rows) - len(eligible),
			"failed_count":   0,
			"severe_count":   severe,
		},
		ByDialog: byDialog,
	}
}
