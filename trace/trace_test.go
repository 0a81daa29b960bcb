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
	"encoding/json"
	"testing"

	"github.com/memfin/adviseval/dataset"
)

func TestNewDialogTraceValid(t *testing.T) {
	d := &dataset.Dialogue{
		ID:           "fin_0001",
		DatasetIndex: 4,
		ScenarioType: "portfolio_advice",
		Difficulty:   "medium",
		ProfileGT:    &dataset.ProfileGT{RiskLevel: "稳健", Horizon: "2年以上", LiquidityNeed: "中"},
		Turns: []dataset.Turn{
			{Role: dataset.RoleUser, Text: "推荐基金"},
			{Role: dataset.RoleAssistant, Text: "建议债券基金", TurnTags: &dataset.TurnTags{ComplianceLabel: "compliant"}},
		},
	}
	tr := NewDialogTrace("run_1", d)
	if tr.TraceVersion != Version {
		t.Errorf("trace version = %q, want %q", tr.TraceVersion, Version)
	}
	if tr.DialogStatus != DialogOK || !tr.ValidDialog {
		t.Errorf("status = %q valid=%v, want ok/true", tr.DialogStatus, tr.ValidDialog)
	}
	if tr.SessionID != "eval_session_fin_0001" || tr.UserID != "eval_user_fin_0001" {
		t.Errorf("ids = %q / %q", tr.SessionID, tr.UserID)
	}
	if tr.Turns == nil || len(tr.Turns) != 0 {
		t.Errorf("skeleton turns = %#v, want empty non-nil", tr.Turns)
	}
}

func TestNewDialogTraceInvalidRecord(t *testing.T) {
	d := &dataset.Dialogue{ID: "invalid_json_line_3", DatasetIndex: 2, ParseError: "unexpected end of JSON input"}
	tr := NewDialogTrace("run_1", d)
	if tr.DialogStatus != DialogSkipped || tr.ValidDialog {
		t.Errorf("status = %q valid=%v, want skipped/false", tr.DialogStatus, tr.ValidDialog)
	}
	if tr.SkipReason != dataset.SkipInvalidRecord {
		t.Errorf("skip reason = %q, want %q", tr.SkipReason, dataset.SkipInvalidRecord)
	}
}

func TestBuildTurnTraceDefaults(t *testing.T) {
	pair := dataset.TurnPair{PairID: 2, UserTurnAbsIdx: 2, GTAssistantAbsIdx: 3, UserText: "有何风险", GTAssistantText: "存在波动风险"}
	tt := BuildTurnTrace(pair, Observation{PredText: "注意波动风险", LatencyMS: 88, Status: TurnOK})
	if tt.Tools == nil {
		t.Errorf("tools = nil, want empty list")
	}
	raw, err := json.Marshal(tt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["tools"]; !ok {
		t.Errorf("serialized turn lacks tools field: %s", raw)
	}
	if _, ok := decoded["error"]; ok {
		t.Errorf("ok turn serialized an error field: %s", raw)
	}
}

func TestBuildTurnTraceTimeout(t *testing.T) {
	pair := dataset.TurnPair{PairID: 1, UserText: "q"}
	tt := BuildTurnTrace(pair, Observation{Status: TurnTimeout, Error: "turn_timeout: exceeded 120s"})
	if tt.TurnStatus != TurnTimeout {
		t.Errorf("status = %q, want timeout", tt.TurnStatus)
	}
	if tt.PredAssistantText != "" {
		t.Errorf("timeout kept a reply: %q", tt.PredAssistantText)
	}
}
