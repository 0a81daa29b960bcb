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

package dataset

// Validity is the three-way usability classification of a dialogue.
type Validity string

const (
	// ValidityValid marks a fully usable dialogue: non-empty turns, a profile
	// ground truth, at least one aligned pair, and at least one annotated pair.
	ValidityValid Validity = "valid"
	// ValidityPartial marks a parseable dialogue missing something the replay
	// and turn metrics need. It is excluded from turn-level denominators but
	// still counted, and may still be usable at dialogue granularity.
	ValidityPartial Validity = "partial"
	// ValidityInvalid marks a structurally malformed record.
	ValidityInvalid Validity = "invalid"
)

// SkipReason explains a non-valid classification. Every non-valid dialogue
// gets exactly one reason.
type SkipReason string

const (
	SkipNone                SkipReason = ""
	SkipInvalidRecord       SkipReason = "invalid_record"
	SkipMissingTurns        SkipReason = "missing_turns"
	SkipMissingProfileGT    SkipReason = "missing_profile_gt"
	SkipInvalidTurnSequence SkipReason = "invalid_turn_sequence"
	SkipMissingGTTags       SkipReason = "missing_gt_tags"
)

// Classify determines the validity of a dialogue. It is deterministic and
// total: every dialogue receives exactly one classification, and every
// non-valid dialogue exactly one skip reason.
func Classify(d *Dialogue) (Validity, SkipReason) {
	if d == nil || d.ParseError != "" {
		return ValidityInvalid, SkipInvalidRecord
	}
	if len(d.Turns) == 0 {
		return ValidityPartial, SkipMissingTurns
	}
	if d.ProfileGT == nil {
		return ValidityPartial, SkipMissingProfileGT
	}
	pairs := Align(d.Turns)
	if len(pairs) == 0 {
		return ValidityPartial, SkipInvalidTurnSequence
	}
	annotated := false
	for _, p := range pairs {
		if p.GTTags != nil {
			annotated = true
			break
		}
	}
	if !annotated {
		return ValidityPartial, SkipMissingGTTags
	}
	return ValidityValid, SkipNone
}

// Valid reports whether the dialogue classifies as fully usable.
func Valid(d *Dialogue) bool {
	v, _ := Classify(d)
	return v == ValidityValid
}

// HasCompleteProfileGT reports whether all three scalar profile fields carry
// a value. Profile accuracy is evaluable at dialogue granularity whenever this
// holds, even for dialogues that align to zero turn pairs.
func HasCompleteProfileGT(p *ProfileGT) bool {
	return p != nil && p.RiskLevel != "" && p.Horizon != "" && p.LiquidityNeed != ""
}
