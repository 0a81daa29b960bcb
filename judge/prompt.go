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

package judge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// defaultInstruction is used when a request carries no explicit instruction.
const defaultInstruction = "请评估助手回复对上述评分要求的覆盖程度：5分表示完全覆盖且表述清晰，3分表示部分覆盖，1分表示基本未覆盖。"

// BuildScorePrompt renders one scoring request as an evaluation prompt. The
// answer format is fixed so ParseScore can extract the number afterwards.
func BuildScorePrompt(req Request) string {
	var reqs strings.Builder
	for _, r := range req.Requirements {
		fmt.Fprintf(&reqs, "- %s\n", r)
	}

	instruction := req.Instruction
	if instruction == "" {
		instruction = defaultInstruction
	}

	return fmt.Sprintf(`你是一位严格的金融投顾质量评审专家。

**评分要求：**
%s
**助手回复：**
%s

%s

请按如下格式作答，第一行必须是评分：
评分: <1到5的数字>
理由: <一句话说明>`, reqs.String(), req.ReplyText, instruction)
}

var (
	// Matches "评分: 4.5", "Score: 3", "得分：5".
	labeledScorePattern = regexp.MustCompile(`(?i)(?:score|rating|评分|得分)\s*[:：=]?\s*([0-9]+(?:\.[0-9]+)?)`)
	bareScorePattern    = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)$`)
)

// ParseScore extracts the numeric score from a judge response. It accepts
// labeled forms like "评分: 4" or "Score: 3.5" anywhere in the text, and a
// bare number on the first line.
func ParseScore(response string) (float64, error) {
	if m := labeledScorePattern.FindStringSubmatch(response); len(m) == 2 {
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("parse score %q: %w", m[1], err)
		}
		return score, nil
	}

	first := strings.TrimSpace(response)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = strings.TrimSpace(first[:i])
	}
	if m := bareScorePattern.FindStringSubmatch(first); len(m) == 2 {
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("parse score %q: %w", m[1], err)
		}
		return score, nil
	}

	return 0, fmt.Errorf("no score found in judge response: %q", excerpt(response, 120))
}

func excerpt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
