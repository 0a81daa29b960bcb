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

// Package dataset loads labeled advisory dialogues from line-delimited JSON,
// classifies their validity, and aligns raw turns into user/assistant pairs.
package dataset

// Roles recognized by the turn aligner. Turns with any other role never form
// a pair and never fail a dialogue.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnTags carries the per-turn ground-truth annotation groups attached to an
// assistant turn. All groups are optional.
type TurnTags struct {
	MemoryRequiredKeys     []string `json:"memory_required_keys_gt,omitempty"`
	RiskDisclosureRequired []string `json:"risk_disclosure_required_gt,omitempty"`
	ComplianceLabel        string   `json:"compliance_label_gt,omitempty"`
	ExplainabilityRubric   []string `json:"explainability_rubric_gt,omitempty"`
}

// Turn is one utterance of the recorded dialogue.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
	// TurnTags is non-nil when the dataset annotated this turn, even if the
	// annotation object is empty.
	TurnTags *TurnTags `json:"turn_tags,omitempty"`
}

// ProfileGT is the ground-truth investor profile of a dialogue.
type ProfileGT struct {
	RiskLevel     string   `json:"risk_level_gt,omitempty"`
	Horizon       string   `json:"horizon_gt,omitempty"`
	LiquidityNeed string   `json:"liquidity_need_gt,omitempty"`
	Constraints   []string `json:"constraints_gt,omitempty"`
	Preferences   []string `json:"preferences_gt,omitempty"`
}

// Blueprint is the scenario blueprint a dialogue was generated from. Only a
// few fields are interpreted; the rest ride along untouched.
type Blueprint map[string]any

// ForbiddenList returns the blueprint's forbidden phrase list, if any.
func (b Blueprint) ForbiddenList() []string {
	if b == nil {
		return nil
	}
	raw, ok := b["forbidden_list"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Dialogue is one record of the evaluation corpus. Immutable once loaded.
type Dialogue struct {
	ID           string           `json:"dialog_id"`
	ScenarioType string           `json:"scenario_type,omitempty"`
	Difficulty   string           `json:"difficulty,omitempty"`
	ProfileGT    *ProfileGT       `json:"profile_gt,omitempty"`
	Turns        []Turn           `json:"turns,omitempty"`
	Blueprint    Blueprint        `json:"blueprint,omitempty"`
	Events       []map[string]any `json:"events,omitempty"`

	// DatasetIndex is the 1-based line number assigned by the loader.
	DatasetIndex int `json:"-"`
	// ParseError holds the JSON decode error for structurally malformed lines.
	ParseError string `json:"-"`
}

// TurnPair is one aligned user->assistant exchange. PairID is 1-based and
// monotonically increasing within a dialogue; UserTurnAbsIdx is always below
// GTAssistantAbsIdx.
type TurnPair struct {
	PairID            int       `json:"turn_pair_id"`
	UserTurnAbsIdx    int       `json:"user_turn_abs_idx"`
	GTAssistantAbsIdx int       `json:"gt_assistant_abs_idx"`
	UserText          string    `json:"user_text"`
	GTAssistantText   string    `json:"gt_assistant_text"`
	GTTags            *TurnTags `json:"gt_turn_tags,omitempty"`
}

// Align walks turns in original order and pairs every user turn with the next
// assistant turn after it. Other roles are skipped, a user turn with no
// following assistant turn ends the scan, and correspondence is purely
// positional: turns are never reordered or deduplicated.
func Align(turns []Turn) []TurnPair {
	var pairs []TurnPair
	pairID := 0
	i := 0
	for i < len(turns) {
		if turns[i].Role != RoleUser {
			i++
			continue
		}
		j := i + 1
		for j < len(turns) && turns[j].Role != RoleAssistant {
			j++
		}
		if j >= len(turns) {
			break
		}
		pairID++
		pairs = append(pairs, TurnPair{
			PairID:            pairID,
			UserTurnAbsIdx:    i,
			GTAssistantAbsIdx: j,
			UserText:          turns[i].Text,
			GTAssistantText:   turns[j].Text,
			GTTags:            turns[j].TurnTags,
		})
		i = j + 1
	}
	return pairs
}

// UserTexts returns the user-side texts of the aligned pairs, in pair order.
func UserTexts(pairs []TurnPair) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.UserText
	}
	return out
}
