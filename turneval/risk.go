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
	"slices"
	"sort"
	"strings"
)

// riskDisclosurePresent is a meta tag: it requires any risk language at all
// rather than one specific disclosure.
const riskDisclosurePresent = "risk_disclosure_present"

// riskTagAliases maps canonical risk tags to the dataset phrasings that
// normalize onto them.
var riskTagAliases = map[string][]string{
	"volatility_risk":             {"波动风险", "波动", "价格波动"},
	"no_guaranteed_return":        {"不保证收益", "不保证本金", "不保本"},
	"market_uncertainty":          {"市场不确定性", "市场存在不确定性", "不确定性"},
	"suitability_match":           {"适当性匹配", "风险匹配", "适当性"},
	"not_buy_sell_advice":         {"不构成个股买卖建议", "不构成买卖建议"},
	"not_investment_advice":       {"不构成投资建议", "仅供参考"},
	"credit_risk":                 {"信用风险"},
	"liquidity_risk":              {"流动性风险"},
	"interest_rate_risk":          {"利率风险"},
	"past_performance_not_future": {"过往业绩不代表未来表现", "过往业绩不预示未来", "历史业绩不代表未来"},
	riskDisclosurePresent:         {"无明确风险提示"},
}

// riskPredKeywords is the reply-side keyword table. It is deliberately
// looser than the alias table and has no entry for risk_disclosure_present:
// that tag hits whenever anything else was predicted.
var riskPredKeywords = map[string][]string{
	"volatility_risk":             {"波动风险", "波动", "回撤"},
	"no_guaranteed_return":        {"不保证收益", "不保证本金", "不保本"},
	"market_uncertainty":          {"市场不确定性", "不确定性", "市场有风险"},
	"suitability_match":           {"适当性匹配", "风险承受能力", "匹配"},
	"not_buy_sell_advice":         {"不构成个股买卖建议", "不构成买卖建议"},
	"not_investment_advice":       {"不构成投资建议", "仅供参考"},
	"credit_risk":                 {"信用风险", "违约风险"},
	"liquidity_risk":              {"流动性风险", "变现"},
	"interest_rate_risk":          {"利率风险", "利率上升"},
	"past_performance_not_future": {"过往业绩不代表未来", "历史业绩不代表未来", "过往业绩不预示未来"},
}

// NormalizeRiskTag maps a required tag onto its canonical name. Unmapped
// non-empty tags are kept lower-cased so they stay visible in the row
// instead of silently vanishing.
func NormalizeRiskTag(tag string) string {
	t := strings.TrimSpace(tag)
	if t == "" {
		return ""
	}
	for canonical, aliases := range riskTagAliases {
		if t == canonical || slices.Contains(aliases, t) {
			return canonical
		}
	}
	return strings.ToLower(t)
}

// ExtractPredRiskTags scans a reply for canonical risk-tag keywords and
// returns the matched tags, deduplicated and sorted.
func ExtractPredRiskTags(text string) []string {
	tags := []string{}
	for canonical, kws := range riskPredKeywords {
		if containsAny(text, kws) {
			tags = append(tags, canonical)
		}
	}
	sort.Strings(tags)
	return tags
}

// countRiskTagHits counts required tags present in the predicted set.
func countRiskTagHits(required, predicted []string) int {
	hits := 0
	for _, req := range required {
		if req == riskDisclosurePresent {
			if len(predicted) > 0 {
				hits++
			}
			continue
		}
		if slices.Contains(predicted, req) {
			hits++
		}
	}
	return hits
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
