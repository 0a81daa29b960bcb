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
	"regexp"
	"strings"

	"github.com/memfin/adviseval/trace"
)

// profileState is the agent's running belief about the user, built by keyword
// extraction over user turns. Values keep the user's own vocabulary so that
// downstream checks against ground truth compare like with like.
type profileState struct {
	riskLevel     string
	horizon       string
	liquidityNeed string
	topics        []string
	constraints   []string
}

var riskTokens = []string{"保守", "稳健", "进取", "激进", "低风险", "中风险", "高风险"}

var riskCanonical = map[string]string{
	"激进":  "进取",
	"低风险": "保守",
	"中风险": "稳健",
	"高风险": "进取",
}

var horizonTokens = []string{"<=6月", "6-24月", "2年以上", "短期", "中期", "长期"}

var liquidityTokens = []struct {
	token string
	level string
}{
	{"高流动性", "高"},
	{"流动性要求高", "高"},
	{"随时需要用钱", "高"},
	{"随时用钱", "高"},
	{"流动性中等", "中"},
	{"流动性一般", "中"},
	{"低流动性", "低"},
	{"长期不用", "低"},
}

var topicTokens = []string{
	"债券基金", "货币基金", "指数基金", "混合基金", "股票", "黄金", "可转债", "银行理财", "REITs",
}

var constraintTokens = []string{
	"不使用杠杆", "不做短线交易", "不投分级基金", "不投海外市场", "不参与题材炒作",
}

var drawdownConstraintRe = regexp.MustCompile(`最大回撤<\s*\d+%`)

// update folds one user turn into the profile.
func (p *profileState) update(userText string) {
	for _, tok := range riskTokens {
		if strings.Contains(userText, tok) {
			if c, ok := riskCanonical[tok]; ok {
				tok = c
			}
			p.riskLevel = tok
			break
		}
	}
	for _, tok := range horizonTokens {
		if strings.Contains(userText, tok) {
			p.horizon = tok
			break
		}
	}
	for _, lt := range liquidityTokens {
		if strings.Contains(userText, lt.token) {
			p.liquidityNeed = lt.level
			break
		}
	}
	for _, tok := range topicTokens {
		if strings.Contains(userText, tok) {
			p.topics = appendUnique(p.topics, tok)
		}
	}
	for _, tok := range constraintTokens {
		if strings.Contains(userText, tok) {
			p.constraints = appendUnique(p.constraints, tok)
		}
	}
	if m := drawdownConstraintRe.FindString(userText); m != "" {
		p.constraints = appendUnique(p.constraints, strings.ReplaceAll(m, " ", ""))
	}
}

// render formats the profile the way it is packed into recall context. An
// empty profile renders to an empty string.
func (p *profileState) render() string {
	var lines []string
	if p.riskLevel != "" {
		lines = append(lines, "- 风险承受能力: "+p.riskLevel)
	}
	if p.horizon != "" {
		lines = append(lines, "- 投资期限: "+p.horizon)
	}
	if p.liquidityNeed != "" {
		lines = append(lines, "- 流动性需求: "+p.liquidityNeed)
	}
	if len(p.topics) > 0 {
		lines = append(lines, "- 关注主题: "+strings.Join(p.topics, ", "))
	}
	if len(p.constraints) > 0 {
		lines = append(lines, "- 约束与回避: "+strings.Join(p.constraints, ", "))
	}
	return strings.Join(lines, "\n")
}

func (p *profileState) snapshot() *trace.ProfileSnapshot {
	return &trace.ProfileSnapshot{
		RiskLevel:         p.riskLevel,
		InvestmentHorizon: p.horizon,
		LiquidityNeed:     p.liquidityNeed,
		PreferredTopics:   append([]string(nil), p.topics...),
		ForbiddenAssets:   append([]string(nil), p.constraints...),
	}
}

func (p *profileState) empty() bool {
	return p.riskLevel == "" && p.horizon == "" && p.liquidityNeed == "" &&
		len(p.topics) == 0 && len(p.constraints) == 0
}

func appendUnique(items []string, v string) []string {
	for _, it := range items {
		if it == v {
			return items
		}
	}
	return append(items, v)
}
