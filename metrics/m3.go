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

func init() { Register(M3RiskCoverage, computeM3) }

// computeM3 scores risk disclosure coverage: of the risk tags each turn was
// required to disclose, how many the reply actually carried. Hits are capped
// at the required count so over-disclosure cannot inflate coverage.
func computeM3(in Inputs) *MetricResult {
	var eligible []turneval.Row
	for _, r := range in.Rows {
		if r.EligibleM3 {
			eligible = append(eligible, r)
		}
	}
	order, grouped := groupRows(eligible)

	var reqTotal, hitTotal, strictTotal int
	byDialog := make(map[string]map[string]float64)

	for _, dialogID := range order {
		rows := grouped[dialogID]
		var dReq, dHit, dStrict int
		for _, r := range rows {
			req := len(r.RiskRequiredTags)
			if req == 0 {
				continue
			}
			hit := r.RiskTagHits
			if hit > req {
				hit = req
			}
			dReq += req
			dHit += hit
			if r.RiskTagHits >= req {
				dStrict++
			}
		}
		if dReq == 0 {
			continue
		}
		byDialog[dialogID] = map[string]float64{
			"risk_coverage":             float64(dHit) / float64(dReq),
			"strict_risk_coverage_rate": ratio(dStrict, len(rows)),
		}
		reqTotal += dReq
		hitTotal += dHit
		strictTotal += dStrict
	}

	micro := map[string]float64{
		"risk_coverage":             ratio(hitTotal, reqTotal),
		"strict_risk_coverage_rate": ratio(strictTotal, len(eligible)),
	}
	macro := macroMean(order, byDialog, []string{"risk_coverage", "strict_risk_coverage_rate"})

	return &MetricResult{
		MetricName: M3RiskCoverage,
		Micro:      micro,
		Macro:      macro,
		Counts: map[string]int{
			"eligible_count":      len(eligible),
			"skipped_count":       len(in.Rows) - len(eligible),
			"failed_count":        0,
			"risk_required_total": reqTotal,
			"risk_hit_total":      hitTotal,
		},
		ByDialog: byDialog,
	}
}
