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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeRiskTag(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want string
	}{
		{name: "canonical passes through", tag: "volatility_risk", want: "volatility_risk"},
		{name: "volatility alias", tag: "波动风险", want: "volatility_risk"},
		{name: "short volatility alias", tag: "波动", want: "volatility_risk"},
		{name: "no guarantee alias", tag: "不保本", want: "no_guaranteed_return"},
		{name: "uncertainty alias", tag: "市场存在不确定性", want: "market_uncertainty"},
		{name: "past performance alias", tag: "历史业绩不代表未来", want: "past_performance_not_future"},
		{name: "disclosure meta alias", tag: "无明确风险提示", want: "risk_disclosure_present"},
		{name: "surrounding whitespace", tag: "  适当性  ", want: "suitability_match"},
		{name: "unmapped tag lower-cased", tag: "Custom-Tag", want: "custom-tag"},
		{name: "empty stays empty", tag: "", want: ""},
		{name: "whitespace only stays empty", tag: "   ", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeRiskTag(tc.tag); got != tc.want {
				t.Errorf("NormalizeRiskTag(%q) = %q, want %q", tc.tag, got, tc.want)
			}
		})
	}
}

func TestExtractPredRiskTags(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "multiple tags sorted",
			text: "该基金净值可能波动，且存在信用风险，不保证收益。",
			want: []string{"credit_risk", "no_guaranteed_return", "volatility_risk"},
		},
		{
			name: "loose keyword matches",
			text: "历史最大回撤约15%，请结合自身风险承受能力判断。",
			want: []string{"suitability_match", "volatility_risk"},
		},
		{
			name: "disclaimer phrases",
			text: "以上内容仅供参考，不构成买卖建议。",
			want: []string{"not_buy_sell_advice", "not_investment_advice"},
		},
		{
			name: "no risk language",
			text: "您好，请问有什么可以帮您？",
			want: []string{},
		},
		{
			name: "empty text",
			text: "",
			want: []string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractPredRiskTags(tc.text)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ExtractPredRiskTags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCountRiskTagHits(t *testing.T) {
	tests := []struct {
		name      string
		required  []string
		predicted []string
		want      int
	}{
		{
			name:      "exact membership",
			required:  []string{"volatility_risk", "credit_risk"},
			predicted: []string{"volatility_risk"},
			want:      1,
		},
		{
			name:      "disclosure meta tag hits on any prediction",
			required:  []string{"risk_disclosure_present"},
			predicted: []string{"liquidity_risk"},
			want:      1,
		},
		{
			name:      "disclosure meta tag misses on empty prediction",
			required:  []string{"risk_disclosure_present"},
			predicted: []string{},
			want:      0,
		},
		{
			name:      "no requirements",
			required:  []string{},
			predicted: []string{"volatility_risk"},
			want:      0,
		},
		{
			name:      "duplicate requirements each count",
			required:  []string{"volatility_risk", "volatility_risk"},
			predicted: []string{"volatility_risk"},
			want:      2,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := countRiskTagHits(tc.required, tc.predicted); got != tc.want {
				t.Errorf("countRiskTagHits(%v, %v) = %d, want %d", tc.required, tc.predicted, got, tc.want)
			}
		})
	}
}
