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

// Package scripted implements a deterministic offline advisory agent. It
// keeps a rolling short-term window, re-surfaces older turns by text overlap,
// extracts the user profile with keyword rules, and runs a compliance pass
// over every reply. Given the same dialogue it produces the same replies and
// the same event stream, which makes it the reference agent for hermetic
// evaluation runs.
package scripted

import (
	"context"
	"strings"
	"time"

	"github.com/memfin/adviseval/agent"
	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/trace"
)

func init() {
	agent.Register(config.AgentScripted, func(cfg config.AgentConfig) (agent.Provider, error) {
		return New(cfg)
	})
}

// Provider opens scripted sessions.
type Provider struct {
	window int
}

// New builds a scripted provider from the agent configuration block.
func New(cfg config.AgentConfig) (*Provider, error) {
	window := cfg.ShortTermWindow
	if window <= 0 {
		window = 8
	}
	return &Provider{window: window}, nil
}

// NewSession opens one isolated dialogue session.
func (p *Provider) NewSession(ctx context.Context, params agent.SessionParams) (agent.Session, error) {
	return &session{
		id:     params.SessionID,
		rec:    params.Recorder,
		window: p.window,
	}, nil
}

type session struct {
	id      string
	rec     *trace.Recorder
	window  int
	turnNo  int
	history []historyEntry
	profile profileState
}

// Advance answers one user turn. The event sequence per turn is fixed:
// turn_start, recall_done, optionally tool_called, compliance_done,
// profile_snapshot, turn_end.
func (s *session) Advance(ctx context.Context, userText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()
	s.turnNo++
	s.emit(trace.EventTurnStart, map[string]any{"query": userText})

	rec := recall(userText, s.history, s.window, &s.profile, s.id)
	s.emit(trace.EventRecallDone, map[string]any{
		"query":              userText,
		"short_term_context": rec.shortTermContext,
		"short_term_turns":   shortTurnPayload(rec.shortTermTurns),
		"profile_context":    rec.profileContext,
		"packed_context":     rec.packedContext,
		"token_count":        rec.tokenCount,
		"recalled_items":     itemPayload(rec.items),
	})

	s.profile.update(userText)

	toolResult := ""
	if wantsProducts(userText) {
		toolStart := time.Now()
		toolResult = lookupProducts(s.profile.riskLevel)
		s.emit(trace.EventToolCalled, map[string]any{
			"tool_name":   "product_lookup",
			"tool_args":   map[string]any{"query": userText},
			"tool_result": toolResult,
			"latency_ms":  millisSince(toolStart),
		})
	}

	draft := s.compose(toolResult)
	g := applyGuard(draft)
	s.emit(trace.EventComplianceDone, map[string]any{
		"needs_modification":    g.content != draft,
		"is_compliant":          len(g.violations) == 0,
		"violations":            violationPayload(g.violations),
		"risk_disclaimer_added": g.riskDisclaimerAdded,
	})
	s.emit(trace.EventProfileSnapshot, map[string]any{"profile": snapshotPayload(s.profile.snapshot())})

	s.history = append(s.history,
		historyEntry{role: "user", text: userText, turnNo: s.turnNo},
		historyEntry{role: "assistant", text: g.content, turnNo: s.turnNo},
	)

	s.emit(trace.EventTurnEnd, map[string]any{
		"latency_ms":    millisSince(start),
		"final_content": g.content,
	})
	return g.content, nil
}

func (s *session) Close() error { return nil }

func (s *session) emit(event string, payload map[string]any) {
	if s.rec == nil {
		return
	}
	s.rec.OnEvent(event, payload)
}

// compose drafts the reply from the current profile belief and tool output.
func (s *session) compose(toolResult string) string {
	p := &s.profile
	var b strings.Builder

	var facts []string
	if p.riskLevel != "" {
		facts = append(facts, "风险承受能力: "+p.riskLevel)
	}
	if p.horizon != "" {
		facts = append(facts, "投资期限: "+p.horizon)
	}
	if p.liquidityNeed != "" {
		facts = append(facts, "流动性需求: "+p.liquidityNeed)
	}
	if len(facts) > 0 {
		b.WriteString("结合您的情况（" + strings.Join(facts, "；") + "），")
	}
	b.WriteString(adviceFor(p.riskLevel))
	b.WriteString("\n")

	if toolResult != "" {
		b.WriteString("可比较的方案包括：" + toolResult + "。比较时关注费率、回撤与流动性等维度。\n")
	}
	b.WriteString("依据公开数据与产品指标，该方案的风险与收益较为平衡，回撤相对可控。\n")
	if len(p.constraints) > 0 {
		b.WriteString("已按您的约束（" + strings.Join(p.constraints, "、") + "）排除相关品种。\n")
	}
	b.WriteString("可执行步骤：先明确资金的使用期限，然后分批配置并定期复盘。\n")
	b.WriteString("以上内容不构成投资建议，仅供参考。")
	return b.String()
}

func adviceFor(risk string) string {
	switch risk {
	case "保守":
		return "建议以货币基金与短债基金为主，控制波动。"
	case "进取":
		return "建议在均衡配置的基础上适度提高权益类基金的比例。"
	default:
		return "建议以债券型基金为主，辅以少量宽基指数基金。"
	}
}

var productTriggers = []string{"基金", "产品", "组合", "配置"}

func wantsProducts(userText string) bool {
	for _, t := range productTriggers {
		if strings.Contains(userText, t) {
			return true
		}
	}
	return false
}

func lookupProducts(risk string) string {
	switch risk {
	case "保守":
		return "货币基金C（低风险）、短债基金S（中低风险）"
	case "进取":
		return "偏股混合基金G（中高风险）、宽基指数基金I（中风险）"
	default:
		return "债券型基金B（中低风险）、二级债基D（中低风险）"
	}
}

func millisSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

func shortTurnPayload(turns []trace.ShortTermTurn) []any {
	out := make([]any, 0, len(turns))
	for _, t := range turns {
		out = append(out, map[string]any{"role": t.Role, "text": t.Text})
	}
	return out
}

func itemPayload(items []trace.RecallItem) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"id":         it.ItemID,
			"content":    it.Content,
			"score":      it.Score,
			"source":     it.Source,
			"turn_index": it.TurnIndex,
			"session_id": it.SessionID,
		})
	}
	return out
}

func violationPayload(vs []trace.Violation) []any {
	out := make([]any, 0, len(vs))
	for _, v := range vs {
		out = append(out, map[string]any{"type": v.Type, "severity": v.Severity, "match": v.Match})
	}
	return out
}

func snapshotPayload(p *trace.ProfileSnapshot) map[string]any {
	return map[string]any{
		"risk_level":         p.RiskLevel,
		"investment_horizon": p.InvestmentHorizon,
		"liquidity_need":     p.LiquidityNeed,
		"preferred_topics":   p.PreferredTopics,
		"forbidden_assets":   p.ForbiddenAssets,
	}
}
