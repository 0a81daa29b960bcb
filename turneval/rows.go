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

package turneval

import (
	"strings"

	"github.com/memfin/adviseval/dataset"
	"github.com/memfin/adviseval/keyref"
	"github.com/memfin/adviseval/trace"
)

// BuildRows flattens replay traces into evaluation rows, one per replayed
// turn pair of every valid dialogue. Skipped dialogues contribute no rows;
// failed turns contribute rows whose eligibility flags gate them out of
// turn-level scoring.
func BuildRows(traces []trace.DialogTrace) []Row {
	rows := []Row{}
	for i := range traces {
		d := &traces[i]
		if !d.ValidDialog {
			continue
		}
		var constraints []string
		if d.ProfileGT != nil {
			constraints = d.ProfileGT.Constraints
		}
		forbidden := d.Blueprint.ForbiddenList()
		kctx := keyref.NewContext(d.ProfileGT, d.RawTurns)
		for j := range d.Turns {
			rows = append(rows, buildRow(d, &d.Turns[j], kctx, constraints, forbidden))
		}
	}
	return rows
}

func buildRow(d *trace.DialogTrace, t *trace.TurnTrace, kctx keyref.Context, constraints, forbidden []string) Row {
	predText := t.PredAssistantText
	ok := t.TurnStatus == trace.TurnOK

	row := Row{
		TraceVersion: d.TraceVersion,
		RunID:        d.RunID,
		DialogID:     d.DialogID,
		TurnPairID:   t.TurnPairID,
	}

	// M1: memory key continuity over the agent's recall record.
	required := []string{}
	if t.GTTags != nil {
		required = append(required, t.GTTags.MemoryRequiredKeys...)
	}
	resolvedKeys := keyref.ResolveAll(required, kctx)
	if resolvedKeys == nil {
		resolvedKeys = []keyref.Resolved{}
	}
	row.RequiredKeysRaw = required
	row.ResolvedKeys = resolvedKeys
	row.KeyHitFlags = []bool{}
	row.KeyHitSources = [][]string{}
	for _, rk := range resolvedKeys {
		if !rk.Resolvable {
			continue
		}
		sources := DetectKeySources(rk.TargetText, t)
		row.KeyHitFlags = append(row.KeyHitFlags, len(sources) > 0)
		row.KeyHitSources = append(row.KeyHitSources, sources)
		for _, s := range sources {
			switch s {
			case trace.SourceShortTerm:
				row.M1SourceHits.ShortTerm++
			case trace.SourceLongTerm:
				row.M1SourceHits.LongTerm++
			case trace.SourceProfile:
				row.M1SourceHits.Profile++
			}
		}
	}
	row.ConstraintContradiction = DetectConstraintContradiction(predText, constraints)
	row.EligibleM1 = ok && len(row.KeyHitFlags) > 0

	// M2 is scored per dialogue; the turn-level flag records whether this
	// dialogue enters that denominator.
	row.EligibleM2 = dataset.HasCompleteProfileGT(d.ProfileGT)

	// M3: required risk disclosures versus tags detected in the reply.
	row.RiskRequiredTags = []string{}
	if t.GTTags != nil {
		for _, raw := range t.GTTags.RiskDisclosureRequired {
			if tag := NormalizeRiskTag(raw); tag != "" {
				row.RiskRequiredTags = append(row.RiskRequiredTags, tag)
			}
		}
	}
	row.RiskPredTags = ExtractPredRiskTags(predText)
	row.RiskTagHits = countRiskTagHits(row.RiskRequiredTags, row.RiskPredTags)
	row.EligibleM3 = ok && len(row.RiskRequiredTags) > 0

	// M4: every successfully replayed turn is checkable for compliance.
	row.ForbiddenHits = ForbiddenHits(predText, forbidden)
	row.PredComplianceLabel = InferComplianceLabel(t.Compliance, row.ForbiddenHits)
	gtLabel := ""
	if t.GTTags != nil {
		gtLabel = t.GTTags.ComplianceLabel
	}
	row.GTComplianceLabel = NormalizeComplianceLabel(gtLabel)
	row.EligibleM4 = ok

	// M5: rubric coverage plus a heuristic 1-5 score the judge stage may
	// later overwrite.
	row.RubricRequired = []string{}
	if t.GTTags != nil {
		row.RubricRequired = append(row.RubricRequired, t.GTTags.ExplainabilityRubric...)
	}
	row.RubricHitItems = RubricHitItems(predText, row.RubricRequired)
	row.JudgeScore = HeuristicScore(row.RubricRequired, row.RubricHitItems)
	row.EligibleM5 = ok && len(row.RubricRequired) > 0

	return row
}

// DetectKeySources reports which memory surfaces of the turn's recall record
// contain the target text verbatim, in short_term, long_term, profile order.
func DetectKeySources(target string, t *trace.TurnTrace) []string {
	sources := []string{}
	if target == "" || t.Recall == nil {
		return sources
	}
	if strings.Contains(t.Recall.ShortTermContext, target) {
		sources = append(sources, trace.SourceShortTerm)
	}
	if len(t.Recall.Items) > 0 {
		contents := make([]string, 0, len(t.Recall.Items))
		for _, item := range t.Recall.Items {
			contents = append(contents, item.Content)
		}
		if strings.Contains(strings.Join(contents, "\n"), target) {
			sources = append(sources, trace.SourceLongTerm)
		}
	}
	if strings.Contains(t.Recall.ProfileContext, target) {
		sources = append(sources, trace.SourceProfile)
	}
	return sources
}
