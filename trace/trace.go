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

// Package trace defines the persisted replay contracts: the per-dialogue
// trace envelope, the per-turn observation records inside it, and the
// Recorder that aggregates agent events into those records.
//
// Every persisted record carries Version so readers can reject traces written
// under a different schema.
package trace

import (
	"fmt"

	"github.com/memfin/adviseval/dataset"
)

// Version is stamped on every persisted trace, eval row, summary, and
// manifest.
const Version = "v1"

// TurnStatus is the outcome of replaying one turn pair.
type TurnStatus string

const (
	TurnOK      TurnStatus = "ok"
	TurnTimeout TurnStatus = "timeout"
	TurnError   TurnStatus = "error"
)

// DialogStatus is the outcome of replaying one dialogue.
type DialogStatus string

const (
	DialogOK      DialogStatus = "ok"
	DialogPartial DialogStatus = "partial"
	DialogFailed  DialogStatus = "failed"
	DialogSkipped DialogStatus = "skipped"
)

// Memory sources a recalled item can be credited to.
const (
	SourceShortTerm = "short_term"
	SourceLongTerm  = "long_term"
	SourceProfile   = "profile"
)

// RecallItem is one memory item the agent surfaced while answering a turn.
type RecallItem struct {
	Rank      int     `json:"rank"`
	ItemID    string  `json:"item_id"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
	TurnIndex int     `json:"turn_index"`
	SessionID string  `json:"session_id"`
}

// ShortTermTurn is one rolling-window history entry inside a recall record.
type ShortTermTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Recall captures what the agent retrieved before composing a reply.
type Recall struct {
	Query            string          `json:"query"`
	ShortTermContext string          `json:"short_term_context"`
	ShortTermTurns   []ShortTermTurn `json:"short_term_turns,omitempty"`
	ProfileContext   string          `json:"profile_context"`
	PackedContext    string          `json:"packed_context"`
	TokenCount       int             `json:"token_count"`
	Items            []RecallItem    `json:"items,omitempty"`
}

// ToolCall records one tool invocation made while answering a turn.
type ToolCall struct {
	ToolName      string         `json:"tool_name"`
	Args          map[string]any `json:"args,omitempty"`
	ResultExcerpt string         `json:"result_excerpt"`
	LatencyMS     float64        `json:"latency_ms"`
	Error         string         `json:"error,omitempty"`
}

// Violation is one compliance rule the agent's draft reply tripped.
type Violation struct {
	Type     string `json:"type"`
	Severity string `json:"severity,omitempty"`
	Phrase   string `json:"phrase,omitempty"`
	Match    string `json:"match,omitempty"`
}

// Compliance records the agent's own compliance pass over its draft reply.
type Compliance struct {
	NeedsModification   bool        `json:"needs_modification"`
	IsCompliant         bool        `json:"is_compliant"`
	Violations          []Violation `json:"violations,omitempty"`
	RiskDisclaimerAdded bool        `json:"risk_disclaimer_added"`
	SuitabilityWarning  string      `json:"suitability_warning,omitempty"`
}

// ProfileSnapshot is the agent's current belief about the user profile.
type ProfileSnapshot struct {
	RiskLevel         string   `json:"risk_level,omitempty"`
	InvestmentHorizon string   `json:"investment_horizon,omitempty"`
	LiquidityNeed     string   `json:"liquidity_need,omitempty"`
	PreferredTopics   []string `json:"preferred_topics,omitempty"`
	ForbiddenAssets   []string `json:"forbidden_assets,omitempty"`
}

// TurnTrace is the persisted record of one replayed turn pair. The aligned
// ground truth travels with the observation so eval rows can be rebuilt from
// the trace alone.
type TurnTrace struct {
	TurnPairID        int               `json:"turn_pair_id"`
	UserTurnAbsIdx    int               `json:"user_turn_abs_idx"`
	GTAssistantAbsIdx int               `json:"gt_assistant_abs_idx"`
	UserText          string            `json:"user_text"`
	GTAssistantText   string            `json:"gt_assistant_text"`
	GTTags            *dataset.TurnTags `json:"gt_turn_tags,omitempty"`
	PredAssistantText string            `json:"pred_assistant_text"`
	LatencyMS         float64           `json:"latency_ms"`
	TurnStatus        TurnStatus        `json:"turn_status"`
	Error             string            `json:"error,omitempty"`
	Recall            *Recall           `json:"recall,omitempty"`
	Tools             []ToolCall        `json:"tools"`
	Compliance        *Compliance       `json:"compliance,omitempty"`
	ProfileSnapshot   *ProfileSnapshot  `json:"profile_snapshot,omitempty"`
}

// DialogTrace is the persisted record of one dialogue's replay. Invalid and
// partial dialogues still produce a trace: a skeleton with no turns, so every
// dataset record is accounted for in the output.
type DialogTrace struct {
	TraceVersion string             `json:"trace_version"`
	RunID        string             `json:"run_id"`
	DialogID     string             `json:"dialog_id"`
	DatasetIndex int                `json:"dataset_index"`
	ScenarioType string             `json:"scenario_type,omitempty"`
	Difficulty   string             `json:"difficulty,omitempty"`
	DialogStatus DialogStatus       `json:"dialog_status"`
	ValidDialog  bool               `json:"valid_dialog"`
	SkipReason   dataset.SkipReason `json:"skip_reason,omitempty"`
	WorkerID     int                `json:"worker_id,omitempty"`
	SessionID    string             `json:"session_id"`
	UserID       string             `json:"user_id"`
	Turns        []TurnTrace        `json:"turns"`
	DialogError  string             `json:"dialog_error,omitempty"`
	ProfileGT    *dataset.ProfileGT `json:"profile_gt,omitempty"`
	Blueprint    dataset.Blueprint  `json:"blueprint,omitempty"`
	RawTurns     []dataset.Turn     `json:"raw_turns,omitempty"`
}

// NewDialogTrace builds the trace skeleton for a dialogue before any turn
// runs. Session and user identifiers are derived from the dialogue id so
// reruns of the same dialogue land in the same agent-side scope.
func NewDialogTrace(runID string, d *dataset.Dialogue) *DialogTrace {
	validity, reason := dataset.Classify(d)
	status := DialogOK
	if validity != dataset.ValidityValid {
		status = DialogSkipped
	}
	return &DialogTrace{
		TraceVersion: Version,
		RunID:        runID,
		DialogID:     d.ID,
		DatasetIndex: d.DatasetIndex,
		ScenarioType: d.ScenarioType,
		Difficulty:   d.Difficulty,
		DialogStatus: status,
		ValidDialog:  validity == dataset.ValidityValid,
		SkipReason:   reason,
		SessionID:    fmt.Sprintf("eval_session_%s", d.ID),
		UserID:       fmt.Sprintf("eval_user_%s", d.ID),
		Turns:        []TurnTrace{},
		ProfileGT:    d.ProfileGT,
		Blueprint:    d.Blueprint,
		RawTurns:     d.Turns,
	}
}

// Observation is what the replay loop saw for one turn: the reply (or
// failure) plus whatever the recorder captured from the agent's events.
type Observation struct {
	PredText        string
	LatencyMS       float64
	Status          TurnStatus
	Error           string
	Recall          *Recall
	Tools           []ToolCall
	Compliance      *Compliance
	ProfileSnapshot *ProfileSnapshot
}

// BuildTurnTrace joins an aligned pair with its replay observation. Pure
// assembly: nothing is inferred or recomputed here.
func BuildTurnTrace(pair dataset.TurnPair, obs Observation) TurnTrace {
	tools := obs.Tools
	if tools == nil {
		tools = []ToolCall{}
	}
	return TurnTrace{
		TurnPairID:        pair.PairID,
		UserTurnAbsIdx:    pair.UserTurnAbsIdx,
		GTAssistantAbsIdx: pair.GTAssistantAbsIdx,
		UserText:          pair.UserText,
		GTAssistantText:   pair.GTAssistantText,
		GTTags:            pair.GTTags,
		PredAssistantText: obs.PredText,
		LatencyMS:         obs.LatencyMS,
		TurnStatus:        obs.Status,
		Error:             obs.Error,
		Recall:            obs.Recall,
		Tools:             tools,
		Compliance:        obs.Compliance,
		ProfileSnapshot:   obs.ProfileSnapshot,
	}
}
