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

// forbiddenRule pairs a phrasing the agent must never emit with the corrective
// text substituted in its place.
type forbiddenRule struct {
	pattern     *regexp.Regexp
	vtype       string
	replacement string
}

var forbiddenRules = []forbiddenRule{
	{regexp.MustCompile(`保证.*?收益`), "promise_return", "投资收益不确定，无法保证"},
	{regexp.MustCompile(`稳赚|必涨|必赚`), "guarantee", "投资存在风险，不能保证盈利"},
	{regexp.MustCompile(`内幕|小道消息`), "insider", "请以公开信息为依据"},
	{regexp.MustCompile(`荐股|推荐.*?(买入|卖出)`), "recommendation", "以上仅供参考，不构成投资建议"},
	{regexp.MustCompile(`(买入|卖出|建仓|加仓|减仓|清仓).*?(点位|价格)`), "trading_advice", "具体交易决策请您自行判断"},
	{regexp.MustCompile(`一定(会|能|涨|跌)`), "certainty", "市场存在不确定性"},
	{regexp.MustCompile(`绝对(安全|没问题)`), "absolute", "任何投资都存在风险"},
}

var disclaimerKeywords = []string{"风险提示", "投资有风险", "入市需谨慎"}

const riskDisclaimer = "\n\n【风险提示】以上内容仅供参考，不构成投资建议。" +
	"投资有风险，入市需谨慎。请根据自身风险承受能力谨慎决策。"

type guardResult struct {
	content             string
	violations          []trace.Violation
	riskDisclaimerAdded bool
}

// applyGuard runs the compliance pass over a draft reply: forbidden phrasings
// are substituted with corrective text and a closing risk disclaimer is
// appended when the draft carries none.
func applyGuard(draft string) guardResult {
	res := guardResult{content: draft}

	for _, rule := range forbiddenRules {
		matches := rule.pattern.FindAllString(res.content, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			res.violations = append(res.violations, trace.Violation{
				Type:     rule.vtype,
				Severity: "medium",
				Match:    m,
			})
		}
		res.content = rule.pattern.ReplaceAllString(res.content, "（"+rule.replacement+"）")
	}

	if !hasDisclaimer(res.content) {
		res.content = strings.TrimRight(res.content, " \n") + riskDisclaimer
		res.riskDisclaimerAdded = true
	}
	return res
}

func hasDisclaimer(content string) bool {
	for _, kw := range disclaimerKeywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}
