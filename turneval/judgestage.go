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
	"context"

	"github.com/rs/zerolog/log"

	"github.com/memfin/adviseval/judge"
	"github.com/memfin/adviseval/trace"
)

// constraintInstruction swaps the rubric grading question for a
// constraint-adherence one when the judge double-checks contradictions.
const constraintInstruction = "请评估助手回复是否遵守上述用户约束：5分表示完全遵守，3分表示部分遵守，1分表示明显违反。"

// JudgeStage re-scores rubric rows through an external judge and, when
// enabled, asks the judge to second-guess turns the keyword detector left
// uncontradicted. Rows are mutated in place; any row the judge fails on
// keeps its heuristic values.
type JudgeStage struct {
	Pool                   *judge.Pool
	JudgeContradictions    bool
	ContradictionThreshold float64
}

type rowKey struct {
	dialogID string
	pairID   int
}

// Apply runs both judge passes. Reply texts are not part of the row
// contract, so they are recovered from the traces the rows were built from.
func (s *JudgeStage) Apply(ctx context.Context, rows []Row, traces []trace.DialogTrace) {
	if s == nil || s.Pool == nil || len(rows) == 0 {
		return
	}
	predTexts, constraints := indexTraces(traces)
	s.scoreRubrics(ctx, rows, predTexts)
	if s.JudgeContradictions {
		s.scoreContradictions(ctx, rows, predTexts, constraints)
	}
}

func (s *JudgeStage) scoreRubrics(ctx context.Context, rows []Row, predTexts map[rowKey]string) {
	var idxs []int
	var reqs []judge.Request
	for i := range rows {
		if !rows[i].EligibleM5 {
			continue
		}
		text := predTexts[rowKey{rows[i].DialogID, rows[i].TurnPairID}]
		if text == "" {
			continue
		}
		idxs = append(idxs, i)
		reqs = append(reqs, judge.Request{ReplyText: text, Requirements: rows[i].RubricRequired})
	}
	if len(reqs) == 0 {
		return
	}
	for _, res := range s.Pool.ScoreAll(ctx, reqs) {
		row := &rows[idxs[res.Index]]
		if res.Err != nil {
			log.Debug().
				Str("dialog_id", row.DialogID).
				Int("turn_pair_id", row.TurnPairID).
				Err(res.Err).
				Msg("judge scoring failed, keeping heuristic score")
			continue
		}
		score := res.Score
		row.JudgeScore = &score
	}
}

func (s *JudgeStage) scoreContradictions(ctx context.Context, rows []Row, predTexts map[rowKey]string, constraints map[string][]string) {
	var idxs []int
	var reqs []judge.Request
	for i := range rows {
		row := &rows[i]
		if row.ConstraintContradiction {
			continue
		}
		cs := constraints[row.DialogID]
		if len(cs) == 0 {
			continue
		}
		text := predTexts[rowKey{row.DialogID, row.TurnPairID}]
		if text == "" {
			continue
		}
		idxs = append(idxs, i)
		reqs = append(reqs, judge.Request{ReplyText: text, Requirements: cs, Instruction: constraintInstruction})
	}
	if len(reqs) == 0 {
		return
	}
	for _, res := range s.Pool.ScoreAll(ctx, reqs) {
		row := &rows[idxs[res.Index]]
		if res.Err != nil {
			log.Debug().
				Str("dialog_id", row.DialogID).
				Int("turn_pair_id", row.TurnPairID).
				Err(res.Err).
				Msg("contradiction judge failed, keeping detector verdict")
			continue
		}
		if res.Score <= s.ContradictionThreshold {
			row.ConstraintContradiction = true
		}
	}
}

// indexTraces maps each replayed turn to its reply text and each dialogue to
// its judgeable constraints. Placeholder constraints state that none exist,
// so they are never sent to the judge.
func indexTraces(traces []trace.DialogTrace) (map[rowKey]string, map[string][]string) {
	predTexts := map[rowKey]string{}
	constraints := map[string][]string{}
	for i := range traces {
		d := &traces[i]
		for j := range d.Turns {
			t := &d.Turns[j]
			predTexts[rowKey{d.DialogID, t.TurnPairID}] = t.PredAssistantText
		}
		if d.ProfileGT == nil {
			continue
		}
		var cs []string
		for _, c := range d.ProfileGT.Constraints {
			if c != "" && !isSentinel(c) {
				cs = append(cs, c)
			}
		}
		if len(cs) > 0 {
			constraints[d.DialogID] = cs
		}
	}
	return predTexts, constraints
}
