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

func init() { Register(M5Explainability, computeM5) }

// computeM5 scores explainability: coverage of the turn's required rubric
// items plus the mean 1-5 judge score over the turns that were scored.
// Dialogues where no turn was scored report a judge mean of zero rather than
// dropping out of the macro average.
func computeM5(in Inputs) *MetricResult {
	var eligible []turneval.Row
	for _, r := range in.Rows {
		if r.EligibleM5 {
			eligible = append(eligible, r)
		}
	}
	order, grouped := groupRows(eligible)

	var (
		reqTotal, hitTotal int
		scoredTurns        int
		scoreSum           float64
	)
	byDialog := make(map[string]map[string]float64)

	for _, dialogID := range order {
		rows := grouped[dialogID]
		var dReq, dHit, dScored int
		var dScoreSum float64
		for _, r := range rows {
			req := len(r.RubricRequired)
			if req == 0 {
				continue
			}
			hit := len(r.RubricHitItems)
			if hit > req {
				hit = req
			}
			dReq += req
			dHit += hit
			if r.JudgeScore != nil {
				dScored++
				dScoreSum += *r.JudgeScore
				scoredTurns++
				scoreSum += *r.JudgeScore
			}
		}
		if dReq == 0 {
			continue
		}
		judgeMean := 0.0
		if dScored > 0 {
			judgeMean = dScoreSum / float64(dScored)
		}
		byDialog[dialogID] = map[string]float64{
			"rubric_hit_rate":  float64(dHit) / float64(dReq),
			"judge_score_mean": judgeMean,
		}
		reqTotal += dReq
		hitTotal += dHit
	}

	judgeMean := 0.0
	if scoredTurns > 0 {
		judgeMean = scoreSum / float64(scoredTurns)
	}
	micro := map[string]float64{
		"rubric_hit_rate":  ratio(hitTotal, reqTotal),
		"judge_score_mean": judgeMean,
	}
	macro := macroMean(order, byDialog, []string{"rubric_hit_rate", "judge_score_mean"})

	return &MetricResult{
		MetricName: M5Explainability,
		Micro:      micro,
		Macro:      macro,
		Counts: map[string]int{
			"eligible_count":        len(eligible),
			"skipped_count":         len(in.Rows) - len(eligible),
			"failed_count":          0,
			"rubric_required_total": reqTotal,
			"rubric_hit_total":      hitTotal,
			"judge_scored_turns":    scoredTurns,
		},
		ByDialog: byDialog,
	}
}
