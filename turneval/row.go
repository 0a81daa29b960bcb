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

// Package turneval turns replay traces into flat per-turn evaluation rows.
// Each row carries the detector outputs every metric needs: resolved memory
// keys and their hit sources, constraint contradiction, risk-tag coverage,
// compliance labels, and rubric hits. Detection is rule-based and pure; an
// optional judge stage re-scores rubric rows through an external judge
// afterwards.
package turneval

import "github.com/memfin/adviseval/keyref"

// SourceHits counts key hits per memory channel within one turn.
type SourceHits struct {
	ShortTerm int `json:"short_term"`
	LongTerm  int `json:"long_term"`
	Profile   int `json:"profile"`
}

// Row is one turn's evaluation record. Rows exist only for turns of valid
// dialogues; eligibility flags gate which metrics may consume the row.
type Row struct {
	TraceVersion string `json:"trace_version"`
	RunID        string `json:"run_id"`
	DialogID     string `json:"dialog_id"`
	TurnPairID   int    `json:"turn_pair_id"`

	EligibleM1 bool `json:"eligible_m1"`
	EligibleM2 bool `json:"eligible_m2"`
	EligibleM3 bool `json:"eligible_m3"`
	EligibleM4 bool `json:"eligible_m4"`
	EligibleM5 bool `json:"eligible_m5"`

	// Context continuity. KeyHitFlags and KeyHitSources hold one entry per
	// resolvable key; unresolvable keys stay visible in ResolvedKeys only.
	RequiredKeysRaw []string          `json:"required_keys_raw"`
	ResolvedKeys    []keyref.Resolved `json:"resolved_keys"`
	KeyHitFlags     []bool            `json:"key_hit_flags"`
	KeyHitSources   [][]string        `json:"key_hit_sources"`
	M1SourceHits    SourceHits        `json:"m1_source_hits"`

	ConstraintContradiction bool `json:"constraint_contradiction"`

	// Risk disclosure coverage.
	RiskRequiredTags []string `json:"risk_required_tags"`
	RiskPredTags     []string `json:"risk_pred_tags"`
	RiskTagHits      int      `json:"risk_tag_hits"`

	// Compliance.
	ForbiddenHits       []string `json:"forbidden_hits"`
	PredComplianceLabel string   `json:"pred_compliance_label"`
	GTComplianceLabel   string   `json:"gt_compliance_label"`

	// Explainability. JudgeScore starts as the deterministic heuristic and
	// may be replaced by an external judge; nil when nothing was gradeable.
	RubricRequired []string `json:"rubric_required"`
	RubricHitItems []string `json:"rubric_hit_items"`
	JudgeScore     *float64 `json:"judge_score_1_5"`
}
