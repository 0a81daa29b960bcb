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

package scripted

import (
	"context"
	"strings"
	"testing"

	"github.com/memfin/adviseval/agent"
	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/trace"
)

func newTestSession(t *testing.T, rec *trace.Recorder) agent.Session {
	t.Helper()
	p, err := New(config.AgentConfig{ShortTermWindow: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := p.NewSession(context.Background(), agent.SessionParams{
		SessionID: "eval_session_fin_0001",
		UserID:    "eval_user_fin_0001",
		Recorder:  rec,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestAdvanceEmitsFullEventSequence(t *testing.T) {
	rec := trace.NewRecorder()
	s := newTestSession(t, rec)

	rec.StartTurn(1)
	reply, err := s.Advance(context.Background(), "我风险偏好稳健，想了解债券基金")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got := rec.TurnPayload(1)
	if got.Query != "我风险偏好稳健，想了解债券基金" {
		t.Errorf("query = %q", got.Query)
	}
	if got.Recall == nil {
		t.Fatalf("recall not recorded")
	}
	if got.Compliance == nil {
		t.Fatalf("compliance not recorded")
	}
	if got.ProfileSnapshot == nil {
		t.Fatalf("profile snapshot not recorded")
	}
	if len(got.Tools) != 1 || got.Tools[0].ToolName != "product_lookup" {
		t.Errorf("tools = %+v, want one product_lookup call", got.Tools)
	}
	if got.FinalContent != reply {
		t.Errorf("final content %q != returned reply %q", got.FinalContent, reply)
	}
	if !strings.Contains(reply, "风险提示") {
		t.Errorf("reply lacks appended disclaimer: %q", reply)
	}
	if !got.Compliance.RiskDisclaimerAdded {
		t.Errorf("risk_disclaimer_added = false")
	}
}

func TestAdvanceDeterministic(t *testing.T) {
	turns := []string{
		"我风险偏好稳健，投资期限2年以上，不使用杠杆",
		"最近有哪些适合的基金产品",
		"还记得我说过不使用杠杆吗",
	}
	run := func() []string {
		rec := trace.NewRecorder()
		s := newTestSession(t, rec)
		var replies []string
		for i, u := range turns {
			rec.StartTurn(i + 1)
			reply, err := s.Advance(context.Background(), u)
			if err != nil {
				t.Fatalf("Advance(%d): %v", i+1, err)
			}
			replies = append(replies, reply)
		}
		return replies
	}
	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("turn %d not deterministic:\n%q\n%q", i+1, first[i], second[i])
		}
	}
}

func TestProfileExtraction(t *testing.T) {
	rec := trace.NewRecorder()
	s := newTestSession(t, rec)

	rec.StartTurn(1)
	if _, err := s.Advance(context.Background(), "我风险偏好稳健，投资期限2年以上，流动性中等，不使用杠杆，偏好债券基金"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	snap := rec.TurnPayload(1).ProfileSnapshot
	if snap.RiskLevel != "稳健" {
		t.Errorf("risk = %q, want 稳健", snap.RiskLevel)
	}
	if snap.InvestmentHorizon != "2年以上" {
		t.Errorf("horizon = %q, want 2年以上", snap.InvestmentHorizon)
	}
	if snap.LiquidityNeed != "中" {
		t.Errorf("liquidity = %q, want 中", snap.LiquidityNeed)
	}
	if len(snap.PreferredTopics) == 0 || snap.PreferredTopics[0] != "债券基金" {
		t.Errorf("topics = %v", snap.PreferredTopics)
	}
	if len(snap.ForbiddenAssets) == 0 || snap.ForbiddenAssets[0] != "不使用杠杆" {
		t.Errorf("constraints = %v", snap.ForbiddenAssets)
	}
}

func TestLongTermRecallAfterWindowRollover(t *testing.T) {
	rec := trace.NewRecorder()
	p, err := New(config.AgentConfig{ShortTermWindow: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := p.NewSession(context.Background(), agent.SessionParams{SessionID: "s", Recorder: rec})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	turns := []string{
		"我不使用杠杆，偏好债券基金",
		"近期市场怎么看",
		"还记得我说过不使用杠杆吗",
	}
	for i, u := range turns {
		rec.StartTurn(i + 1)
		if _, err := s.Advance(context.Background(), u); err != nil {
			t.Fatalf("Advance(%d): %v", i+1, err)
		}
	}

	recall := rec.TurnPayload(3).Recall
	if recall == nil {
		t.Fatalf("recall not recorded")
	}
	found := false
	for _, it := range recall.Items {
		if it.Source == trace.SourceLongTerm && strings.Contains(it.Content, "不使用杠杆") {
			found = true
		}
	}
	if !found {
		t.Errorf("rolled-out turn not re-surfaced as long_term item: %+v", recall.Items)
	}
	if strings.Contains(recall.ShortTermContext, "我不使用杠杆，偏好债券基金") {
		t.Errorf("short-term window still contains the rolled-out turn")
	}
	if !strings.Contains(recall.ProfileContext, "不使用杠杆") {
		t.Errorf("profile context lacks extracted constraint: %q", recall.ProfileContext)
	}
}

func TestAdvanceHonorsCanceledContext(t *testing.T) {
	rec := trace.NewRecorder()
	s := newTestSession(t, rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Advance(ctx, "你好"); err == nil {
		t.Errorf("Advance with canceled context succeeded")
	}
}
