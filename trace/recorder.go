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

package trace

import (
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
)

// Event names agents emit while answering a turn.
const (
	EventTurnStart       = "turn_start"
	EventRecallDone      = "recall_done"
	EventToolCalled      = "tool_called"
	EventComplianceDone  = "compliance_done"
	EventProfileSnapshot = "profile_snapshot"
	EventTurnEnd         = "turn_end"
)

// Recorder aggregates agent events into per-turn payloads. It is safe for
// concurrent use: a session may emit events from its own goroutines while the
// replay loop reads completed turns.
//
// Events carrying a positive turn_pair_id in their payload attribute to that
// turn; events without one attribute to the turn most recently announced via
// StartTurn. Within a turn, repeated events overwrite their slot except tool
// calls, which accumulate, so a retried attempt replaces the observation but
// keeps every tool invocation that actually happened.
type Recorder struct {
	mu      sync.Mutex
	current int
	turns   map[int]*turnBucket
}

type turnBucket struct {
	query        string
	recall       *Recall
	tools        []ToolCall
	compliance   *Compliance
	snapshot     *ProfileSnapshot
	finalContent string
	latencyMS    float64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{turns: make(map[int]*turnBucket)}
}

// StartTurn marks pairID as the attribution target for subsequent events
// whose payload carries no turn_pair_id of its own.
func (r *Recorder) StartTurn(pairID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = pairID
}

// OnEvent ingests one agent event. Unknown events, unattributable events, and
// malformed payloads are dropped: a broken observation never fails the turn
// that produced it.
func (r *Recorder) OnEvent(event string, payload map[string]any) {
	var attr struct {
		TurnPairID int `json:"turn_pair_id"`
	}
	_ = decodePayload(payload, &attr)

	r.mu.Lock()
	defer r.mu.Unlock()
	id := attr.TurnPairID
	if id <= 0 {
		id = r.current
	}
	if id <= 0 {
		return
	}
	b := r.turns[id]
	if b == nil {
		b = &turnBucket{tools: []ToolCall{}}
		r.turns[id] = b
	}

	var err error
	switch event {
	case EventTurnStart:
		err = r.onTurnStart(b, payload)
	case EventRecallDone:
		err = r.onRecallDone(b, payload)
	case EventToolCalled:
		err = r.onToolCalled(b, payload)
	case EventComplianceDone:
		err = r.onComplianceDone(b, payload)
	case EventProfileSnapshot:
		err = r.onProfileSnapshot(b, payload)
	case EventTurnEnd:
		err = r.onTurnEnd(b, payload)
	}
	if err != nil {
		log.Debug().Str("event", event).Int("turn_pair_id", id).Err(err).Msg("dropping malformed agent event")
	}
}

// TurnPayload is everything the Recorder captured for one turn.
type TurnPayload struct {
	Query           string
	Recall          *Recall
	Tools           []ToolCall
	Compliance      *Compliance
	ProfileSnapshot *ProfileSnapshot
	FinalContent    string
	LatencyMS       float64
}

// TurnPayload returns a deep copy of the turn's captured payload, so later
// agent activity cannot mutate a trace already under assembly.
func (r *Recorder) TurnPayload(pairID int) TurnPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.turns[pairID]
	if b == nil {
		return TurnPayload{Tools: []ToolCall{}}
	}
	return TurnPayload{
		Query:           b.query,
		Recall:          b.recall.clone(),
		Tools:           cloneTools(b.tools),
		Compliance:      b.compliance.clone(),
		ProfileSnapshot: b.snapshot.clone(),
		FinalContent:    b.finalContent,
		LatencyMS:       b.latencyMS,
	}
}

func (r *Recorder) onTurnStart(b *turnBucket, payload map[string]any) error {
	var p struct {
		Query string `json:"query"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	b.query = p.Query
	return nil
}

func (r *Recorder) onRecallDone(b *turnBucket, payload map[string]any) error {
	var p struct {
		Query            string          `json:"query"`
		ShortTermContext string          `json:"short_term_context"`
		ShortTermTurns   []ShortTermTurn `json:"short_term_turns"`
		ProfileContext   string          `json:"profile_context"`
		PackedContext    string          `json:"packed_context"`
		TokenCount       int             `json:"token_count"`
		RecalledItems    []struct {
			ID        string  `json:"id"`
			Content   string  `json:"content"`
			Score     float64 `json:"score"`
			Source    string  `json:"source"`
			TurnIndex int     `json:"turn_index"`
			SessionID string  `json:"session_id"`
		} `json:"recalled_items"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	rec := &Recall{
		Query:            p.Query,
		ShortTermContext: p.ShortTermContext,
		ShortTermTurns:   p.ShortTermTurns,
		ProfileContext:   p.ProfileContext,
		PackedContext:    p.PackedContext,
		TokenCount:       p.TokenCount,
	}
	for i, it := range p.RecalledItems {
		rec.Items = append(rec.Items, RecallItem{
			Rank:      i + 1,
			ItemID:    it.ID,
			Content:   it.Content,
			Score:     it.Score,
			Source:    it.Source,
			TurnIndex: it.TurnIndex,
			SessionID: it.SessionID,
		})
	}
	b.recall = rec
	return nil
}

func (r *Recorder) onToolCalled(b *turnBucket, payload map[string]any) error {
	var p struct {
		ToolName   string         `json:"tool_name"`
		ToolArgs   map[string]any `json:"tool_args"`
		ToolResult string         `json:"tool_result"`
		LatencyMS  float64        `json:"latency_ms"`
		Error      string         `json:"error"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	b.tools = append(b.tools, ToolCall{
		ToolName:      p.ToolName,
		Args:          p.ToolArgs,
		ResultExcerpt: p.ToolResult,
		LatencyMS:     p.LatencyMS,
		Error:         p.Error,
	})
	return nil
}

func (r *Recorder) onComplianceDone(b *turnBucket, payload map[string]any) error {
	var p struct {
		NeedsModification   bool        `json:"needs_modification"`
		IsCompliant         *bool       `json:"is_compliant"`
		Violations          []Violation `json:"violations"`
		RiskDisclaimerAdded bool        `json:"risk_disclaimer_added"`
		SuitabilityWarning  string      `json:"suitability_warning"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	compliant := true
	if p.IsCompliant != nil {
		compliant = *p.IsCompliant
	}
	b.compliance = &Compliance{
		NeedsModification:   p.NeedsModification,
		IsCompliant:         compliant,
		Violations:          p.Violations,
		RiskDisclaimerAdded: p.RiskDisclaimerAdded,
		SuitabilityWarning:  p.SuitabilityWarning,
	}
	return nil
}

func (r *Recorder) onProfileSnapshot(b *turnBucket, payload map[string]any) error {
	var p struct {
		Profile *ProfileSnapshot `json:"profile"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	if p.Profile == nil {
		p.Profile = &ProfileSnapshot{}
	}
	b.snapshot = p.Profile
	return nil
}

func (r *Recorder) onTurnEnd(b *turnBucket, payload map[string]any) error {
	var p struct {
		LatencyMS    float64 `json:"latency_ms"`
		FinalContent string  `json:"final_content"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	b.latencyMS = p.LatencyMS
	b.finalContent = p.FinalContent
	return nil
}

// decodePayload maps a loosely typed event payload onto a typed struct using
// the struct's json tags. Inputs are weakly typed: numbers arriving as
// float64 or string still land in int fields.
func decodePayload(payload map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(payload)
}

func (r *Recall) clone() *Recall {
	if r == nil {
		return nil
	}
	out := *r
	out.ShortTermTurns = append([]ShortTermTurn(nil), r.ShortTermTurns...)
	out.Items = append([]RecallItem(nil), r.Items...)
	return &out
}

func (c *Compliance) clone() *Compliance {
	if c == nil {
		return nil
	}
	out := *c
	out.Violations = append([]Violation(nil), c.Violations...)
	return &out
}

func (p *ProfileSnapshot) clone() *ProfileSnapshot {
	if p == nil {
		return nil
	}
	out := *p
	out.PreferredTopics = append([]string(nil), p.PreferredTopics...)
	out.ForbiddenAssets = append([]string(nil), p.ForbiddenAssets...)
	return &out
}

func cloneTools(ts []ToolCall) []ToolCall {
	out := make([]ToolCall, len(ts))
	for i, t := range ts {
		out[i] = t
		out[i].Args = cloneAnyMap(t.Args)
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneAnyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}
