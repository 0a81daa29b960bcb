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
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/memfin/adviseval/trace"
)

const (
	maxLongTermItems  = 3
	longTermThreshold = 0.1
	charsPerToken     = 2
)

type historyEntry struct {
	role   string
	text   string
	turnNo int
}

type recallResult struct {
	shortTermContext string
	shortTermTurns   []trace.ShortTermTurn
	profileContext   string
	packedContext    string
	tokenCount       int
	items            []trace.RecallItem
}

// recall assembles the context the agent answers from: the rolling short-term
// window verbatim, older history re-surfaced by overlap with the query, and
// the rendered profile. Scoring is pure rune overlap, so the same session
// history always recalls the same items.
func recall(query string, history []historyEntry, window int, profile *profileState, sessionID string) recallResult {
	var res recallResult

	shortStart := len(history) - window
	if shortStart < 0 {
		shortStart = 0
	}
	var shortLines []string
	for _, h := range history[shortStart:] {
		shortLines = append(shortLines, h.role+": "+h.text)
		res.shortTermTurns = append(res.shortTermTurns, trace.ShortTermTurn{Role: h.role, Text: h.text})
	}
	res.shortTermContext = strings.Join(shortLines, "\n")
	res.profileContext = profile.render()

	type scored struct {
		idx   int
		score float64
	}
	var candidates []scored
	for i, h := range history[:shortStart] {
		s := runeOverlap(query, h.text)
		if s >= longTermThreshold {
			candidates = append(candidates, scored{idx: i, score: s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].idx < candidates[j].idx
	})
	if len(candidates) > maxLongTermItems {
		candidates = candidates[:maxLongTermItems]
	}
	for rank, c := range candidates {
		h := history[c.idx]
		res.items = append(res.items, trace.RecallItem{
			Rank:      rank + 1,
			ItemID:    fmt.Sprintf("mem_%03d", c.idx),
			Content:   h.text,
			Score:     math.Round(c.score*100) / 100,
			Source:    trace.SourceLongTerm,
			TurnIndex: h.turnNo,
			SessionID: sessionID,
		})
	}

	var parts []string
	if res.profileContext != "" {
		parts = append(parts, "[用户画像]\n"+res.profileContext)
	}
	for _, it := range res.items {
		parts = append(parts, fmt.Sprintf("[相关记忆 | 来源:%s | 相关度:%.2f]\n%s", it.Source, it.Score, it.Content))
	}
	if res.shortTermContext != "" {
		parts = append(parts, "[近期对话]\n"+res.shortTermContext)
	}
	res.packedContext = strings.Join(parts, "\n\n")
	res.tokenCount = len([]rune(res.packedContext)) / charsPerToken
	return res
}

// runeOverlap is the Jaccard similarity of the distinct rune sets of a and b.
func runeOverlap(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	setA := make(map[rune]bool)
	for _, r := range a {
		setA[r] = true
	}
	setB := make(map[rune]bool)
	for _, r := range b {
		setB[r] = true
	}
	inter := 0
	for r := range setB {
		if setA[r] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
