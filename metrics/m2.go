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

func init() { Register(M2ProfileAccuracy, computeM2) }

// unknownProfileValue is what normalization yields for absent or unmappable
// profile fields. An unknown ground truth can never be matched.
const unknownProfileValue = "unknown"

// computeM2 scores profile extraction at dialogue granularity. Micro and
// macro coincide: each dialogue contributes exactly one sample.
func computeM2(in Inputs) *MetricResult {
	byDialog := make(map[string]map[string]float64)
	var riskSum, horizonSum, liquiditySum, constraintsSum, preferencesSum float64

	for _, p := range in.Profiles {
		riskAcc := fieldAccuracy(p.PredRisk, p.GTRisk)
		horizonAcc := fieldAccuracy(p.PredHorizon, p.GTHorizon)
		liquidityAcc := fieldAccuracy(p.PredLiquidity, p.GTLiquidity)
		cF1 := setF1(p.PredConstraints, p.GTConstraints)
		pF1 := setF1(p.PredPreferences, p.GTPreferences)

		byDialog[p.DialogID] = map[string]float64{
			"risk_level_acc": riskAcc,
			"horizon_acc":    horizonAcc,
			"liquidity_acc":  liquidityAcc,
			"constraints_f1": cF1,
			"preferences_f1": pF1,
			"profile_score":  (riskAcc + horizonAcc + liquidityAcc + cF1 + pF1) / 5.0,
		}

		riskSum += riskAcc
		horizonSum += horizonAcc
		liquiditySum += liquidityAcc
		constraintsSum += cF1
		preferencesSum += pF1
	}

	eligible := len(in.Profiles)
	micro := map[string]float64{
		"risk_level_acc": 0.0,
		"horizon_acc":    0.0,
		"liquidity_acc":  0.0,
		"constraints_f1": 0.0,
		"preferences_f1": 0.0,
		"profile_score":  0.0,
	}
	if eligible > 0 {
		n := float64(eligible)
		micro["risk_level_acc"] = riskSum / n
		micro["horizon_acc"] = horizonSum / n
		micro["liquidity_acc"] = liquiditySum / n
		micro["constraints_f1"] = constraintsSum / n
		micro["preferences_f1"] = preferencesSum / n
		micro["profile_score"] = (riskSum + horizonSum + liquiditySum + constraintsSum + preferencesSum) / n / 5.0
	}

	macro := make(map[string]float64, len(micro))
	for k, v := range micro {
		macro[k] = v
	}

	return &MetricResult{
		MetricName: M2ProfileAccuracy,
		Micro:      micro,
		Macro:      macro,
		Counts: map[string]int{
			"eligible_count": eligible,
			"skipped_count":  in.TraceCount - eligible,
			"failed_count":   in.InvalidTraceCount,
		},
		ByDialog: byDialog,
	}
}

// fieldAccuracy is exact-match accuracy for one normalized profile field.
func fieldAccuracy(pred, gt string) float64 {
	if gt != unknownProfileValue && pred == gt {
		return 1.0
	}
	return 0.0
}

// setF1 scores a predicted set against the ground truth. Both sides empty is
// a perfect score: predicting nothing when nothing was stated is correct.
func setF1(pred, gt map[string]bool) float64 {
	if len(gt) == 0 && len(pred) == 0 {
		return 1.0
	}
	if len(gt) == 0 {
		return 0.0
	}
	inter := 0
	for k := range pred {
		if gt[k] {
			inter++
		}
	}
	var p float64
	if len(pred) > 0 {
		p = float64(inter) / float64(len(pred))
	}
	r := float64(inter) / float64(len(gt))
	if p+r == 0 {
		return 0.0
	}
	return 2 * p * r / (p + r)
}
