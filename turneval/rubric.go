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

import "math"

// rubricKeywords maps a rubric item to the surface cues that count as
// covering it. Items absent from the table match on their own text.
var rubricKeywords = map[string][]string{
	"信息依据":   {"依据", "数据", "指标", "财报", "根据"},
	"风险收益平衡": {"风险", "收益", "回撤", "平衡"},
	"与画像匹配":  {"风险偏好", "稳健", "保守", "进取", "约束", "您的"},
	"方案比较维度": {"对比", "比较", "优劣", "方案", "维度"},
	"可执行步骤":  {"步骤", "建议", "先", "然后", "1.", "2."},
	"边界声明":   {"不构成", "仅供参考", "投资有风险", "不保证收益"},
}

// RubricHitItems returns the required rubric items the reply covers,
// preserving the required order.
func RubricHitItems(predText string, required []string) []string {
	hits := []string{}
	if predText == "" {
		return hits
	}
	for _, item := range required {
		keywords, ok := rubricKeywords[item]
		if !ok {
			keywords = []string{item}
		}
		if containsAny(predText, keywords) {
			hits = append(hits, item)
		}
	}
	return hits
}

// HeuristicScore maps rubric coverage onto the judge's 1-5 scale. A turn
// with no rubric has nothing to grade and scores nil.
func HeuristicScore(required, hits []string) *float64 {
	if len(required) == 0 {
		return nil
	}
	rate := float64(len(hits)) / float64(len(required))
	score := math.Round((1+4*rate)*100) / 100
	return &score
}
