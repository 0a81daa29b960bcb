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

func init() { Register(M1ContextContinuity, computeM1) }

// computeM1 scores context continuity: how many resolvable required memory
// keys each reply actually used, which memory channel served them, and how
// often a reply contradicted a stated user constraint.
func computeM1(in Inputs) *MetricResult {
	var eligible []turneval.Row
	for _, r := range in.Rows {
		if r.EligibleM1 {
			eligible = append(eligible, r)
		}
	}
	order, grouped := groupRows(eligible)

	var (
		totalRequired, totalHits      int
		strictRows, contraRows        int
		shortHits, longHits, profHits int
	)
	byDialog := make(map[string]map[string]float64)

	for _, dialogID := range order {
		rows := grouped[dialogID]
		var dRequired, dHits, dStrict, dContra int
		for _, r := range rows {
			required := len(r.KeyHitFlags)
			if required == 0 {
				continue
			}
			hits := 0
			for _, hit := range r.KeyHitFlags {
				if hit {
					hits++
				}
			}
			dRequired += required
			dHits += hits
			if hits == required {
				dStrict++
			}
			if r.ConstraintContradiction {
				dContra++
			}
			shortHits += r.M1SourceHits.ShortTerm
			longHits += r.M1SourceHits.LongTerm
			profHits += r.M1SourceHits.Profile
		}
		if dRequired == 0 {
			continue
		}
		byDialog[dialogID] = map[string]float64{
			"key_coverage":        float64(dHits) / float64(dRequired),
			"strict_key_hit_rate": ratio(dStrict, len(rows)),
			"contradiction_rate":  ratio(dContra, len(rows)),
		}
		totalRequired += dRequired
		totalHits += dHits
		strictRows += dStrict
		contraRows += dContra
	}

	micro := map[string]float64{
		"key_coverage":        ratio(totalHits, totalRequired),
		"strict_key_hit_rate": ratio(strictRows, len(eligible)),
		"contradiction_rate":  ratio(contraRows, len(eligible)),
		"short_term_hit_rate": ratio(shortHits, totalRequired),
		"long_term_hit_rate":  ratio(longHits, totalRequired),
		"profile_hit_rate":    ratio(profHits, totalRequired),
	}
	macro := macroMean(order, byDialog, []string{"key_coverage", "strict_key_hit_rate", "contradiction_rate"})

	return &MetricResult{
		MetricName: M1ContextContinuity,
		Micro:      micro,
		Macro:      macro,
		Counts: map[string]int{
			"eligible_count":         len(eligible),
			"skipped_count":          len(in.Rows) - len(eligible),
			"failed_count":           0,
			"required_key_total":     totalRequired,
			"required_key_hit_total": totalHits,
			"short_term_hit_total":   shortHits,
			"long_term_hit_total":    longHits,
			"profile_hit_total":      profHits,
		},
		ByDialog: byDialog,
	}
}
