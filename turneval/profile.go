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

	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/dataset"
	"github.com/memfin/adviseval/trace"
)

// unknownValue marks a profile field neither the snapshot nor the reply text
// pinned down. An unknown never counts as correct, even against an unknown
// ground truth.
const unknownValue = "unknown"

// Ground-truth placeholders meaning "the user stated none".
const (
	sentinelNoConstraints = "无明确约束"
	sentinelNoPreferences = "无明确偏好"
)

var riskMap = map[string]string{
	"保守":     "low",
	"稳健":     "medium",
	"进取":     "high",
	"low":    "low",
	"medium": "medium",
	"high":   "high",
}

var horizonMap = map[string]string{
	"<=6月":   "short",
	"6-24月":  "medium",
	"2年以上":   "long",
	"短期":     "short",
	"中期":     "medium",
	"长期":     "long",
	"short":  "short",
	"medium": "medium",
	"long":   "long",
}

var liquidityMap = map[string]string{
	"高":      "high",
	"中":      "medium",
	"低":      "low",
	"high":   "high",
	"medium": "medium",
	"low":    "low",
}

// ProfileEval is the dialogue-level comparison material for profile
// accuracy: normalized scalars plus constraint and preference sets for both
// sides.
type ProfileEval struct {
	DialogID string

	GTRisk        string
	GTHorizon     string
	GTLiquidity   string
	GTConstraints map[string]bool
	GTPreferences map[string]bool

	PredRisk        string
	PredHorizon     string
	PredLiquidity   string
	PredConstraints map[string]bool
	PredPreferences map[string]bool
}

// BuildProfiles extracts one ProfileEval per dialogue whose ground-truth
// profile is complete. Replay validity is not required: profile accuracy is
// judged at dialogue granularity and survives dialogues that align to zero
// turn pairs.
func BuildProfiles(traces []trace.DialogTrace, sentinelPolicy string) []ProfileEval {
	profiles := []ProfileEval{}
	for i := range traces {
		d := &traces[i]
		if !dataset.HasCompleteProfileGT(d.ProfileGT) {
			continue
		}
		profiles = append(profiles, buildProfile(d, sentinelPolicy))
	}
	return profiles
}

func buildProfile(d *trace.DialogTrace, policy string) ProfileEval {
	gt := d.ProfileGT
	p := ProfileEval{
		DialogID:        d.DialogID,
		GTRisk:          normalizeValue(gt.RiskLevel, riskMap),
		GTHorizon:       normalizeValue(gt.Horizon, horizonMap),
		GTLiquidity:     normalizeValue(gt.LiquidityNeed, liquidityMap),
		GTConstraints:   toSet(gt.Constraints, policy),
		GTPreferences:   toSet(gt.Preferences, policy),
		PredRisk:        unknownValue,
		PredHorizon:     unknownValue,
		PredLiquidity:   unknownValue,
		PredConstraints: map[string]bool{},
		PredPreferences: map[string]bool{},
	}

	if snap := lastProfileSnapshot(d); snap != nil {
		p.PredRisk = normalizeValue(snap.RiskLevel, riskMap)
		p.PredHorizon = normalizeValue(snap.InvestmentHorizon, horizonMap)
		p.PredLiquidity = normalizeValue(snap.LiquidityNeed, liquidityMap)
		for topic, ok := range toSet(snap.PreferredTopics, policy) {
			p.PredPreferences[topic] = ok
		}
		for asset, ok := range toSet(snap.ForbiddenAssets, policy) {
			p.PredConstraints[asset] = ok
		}
	}

	// Replies are the fallback evidence when the snapshot left a field open,
	// and the only evidence for set membership beyond the snapshot.
	allPred := joinPredText(d)
	if p.PredRisk == unknownValue || p.PredHorizon == unknownValue || p.PredLiquidity == unknownValue {
		risk, horizon, liquidity := inferProfileFromText(allPred)
		if p.PredRisk == unknownValue {
			p.PredRisk = risk
		}
		if p.PredHorizon == unknownValue {
			p.PredHorizon = horizon
		}
		if p.PredLiquidity == unknownValue {
			p.PredLiquidity = liquidity
		}
	}
	for c := range p.GTConstraints {
		if strings.Contains(allPred, c) {
			p.PredConstraints[c] = true
		}
	}
	for pref := range p.GTPreferences {
		if strings.Contains(allPred, pref) {
			p.PredPreferences[pref] = true
		}
	}
	return p
}

// lastProfileSnapshot returns the final snapshot the agent emitted across the
// dialogue, the agent's settled belief after all turns.
func lastProfileSnapshot(d *trace.DialogTrace) *trace.ProfileSnapshot {
	var snap *trace.ProfileSnapshot
	for i := range d.Turns {
		if s := d.Turns[i].ProfileSnapshot; s != nil {
			snap = s
		}
	}
	return snap
}

func joinPredText(d *trace.DialogTrace) string {
	texts := make([]string, 0, len(d.Turns))
	for i := range d.Turns {
		texts = append(texts, d.Turns[i].PredAssistantText)
	}
	return strings.Join(texts, "\n")
}

// inferProfileFromText mines reply text for profile cues. Tiers are checked
// most-specific first within each field; no cue leaves the field unknown.
func inferProfileFromText(text string) (risk, horizon, liquidity string) {
	risk, horizon, liquidity = unknownValue, unknownValue, unknownValue

	switch {
	case containsAny(text, []string{"保守", "低风险"}):
		risk = "low"
	case containsAny(text, []string{"稳健", "中风险"}):
		risk = "medium"
	case containsAny(text, []string{"进取", "高风险", "激进"}):
		risk = "high"
	}

	switch {
	case containsAny(text, []string{"6月", "短期"}):
		horizon = "short"
	case containsAny(text, []string{"6-24月", "1年", "2年内"}):
		horizon = "medium"
	case containsAny(text, []string{"2年以上", "长期"}):
		horizon = "long"
	}

	switch {
	case containsAny(text, []string{"高流动性", "随时需要用钱", "保留现金"}):
		liquidity = "high"
	case containsAny(text, []string{"流动性中等"}):
		liquidity = "medium"
	case containsAny(text, []string{"低流动性"}):
		liquidity = "low"
	}
	return risk, horizon, liquidity
}

func normalizeValue(v string, mapping map[string]string) string {
	if mapped, ok := mapping[strings.TrimSpace(v)]; ok {
		return mapped
	}
	return unknownValue
}

// toSet builds a membership set from a ground-truth list. Under the empty
// policy the no-constraints and no-preferences placeholders are dropped so a
// dialogue that states none compares as an empty set.
func toSet(values []string, policy string) map[string]bool {
	set := map[string]bool{}
	for _, v := range values {
		if policy != config.SentinelLiteral && isSentinel(v) {
			continue
		}
		set[v] = true
	}
	return set
}

func isSentinel(v string) bool {
	return v == sentinelNoConstraints || v == sentinelNoPreferences
}
