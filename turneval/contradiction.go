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
	"regexp"
	"strconv"
	"strings"
)

// constraintKeywords maps a literal user constraint to reply keywords that
// indicate the reply acts against it.
var constraintKeywords = map[string][]string{
	"不使用杠杆":   {"杠杆", "融资融券", "加杠杆"},
	"不做短线交易":  {"短线", "日内", "频繁交易"},
	"不投分级基金":  {"分级基金"},
	"不投海外市场":  {"海外市场", "美股", "港股"},
	"不参与题材炒作": {"题材炒作", "追热点"},
}

// negationGuards suppress keyword matches when the reply clearly advises
// against the behavior instead of recommending it.
var negationGuards = []string{"不建议", "避免", "不要", "不应", "不宜", "谨慎"}

var (
	drawdownConstraintPattern = regexp.MustCompile(`最大回撤<\s*(\d+)%`)
	percentPattern            = regexp.MustCompile(`(\d+)\s*%`)
)

// DetectConstraintContradiction reports whether the reply acts against any
// of the user's stated constraints. One verdict per turn, not per
// constraint.
func DetectConstraintContradiction(predText string, constraints []string) bool {
	if predText == "" || len(constraints) == 0 {
		return false
	}
	guarded := hasNegationGuard(predText)

	for _, c := range constraints {
		if strings.HasPrefix(c, "最大回撤<") {
			if exceedsDrawdownLimit(predText, c) {
				return true
			}
		}
		if guarded {
			continue
		}
		if kws, ok := constraintKeywords[c]; ok && containsAny(predText, kws) {
			return true
		}
	}
	return false
}

// exceedsDrawdownLimit checks a "最大回撤<N%" constraint: the reply must
// discuss drawdown and quote a percentage above the limit to contradict it.
func exceedsDrawdownLimit(predText, constraint string) bool {
	m := drawdownConstraintPattern.FindStringSubmatch(constraint)
	if m == nil || !strings.Contains(predText, "回撤") {
		return false
	}
	threshold, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	for _, pm := range percentPattern.FindAllStringSubmatch(predText, -1) {
		if v, err := strconv.Atoi(pm[1]); err == nil && v > threshold {
			return true
		}
	}
	return false
}

func hasNegationGuard(text string) bool {
	return containsAny(text, negationGuards)
}
