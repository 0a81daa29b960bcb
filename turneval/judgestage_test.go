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
	"errors"
	"strings"
	"testing"

	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/judge"
	"github.com/memfin/adviseval/trace"
)

type stubScorer struct {
	score func(req judge.Request) (float64, error)
}

func (s *stubScorer) Score(ctx context.Context, req judge.Request) (float64, error) {
	return s.score(req)
}

func newStagePool(t *testing.T, score func(req judge.Request) (float64, error)) *judge.Pool {
	t.Helper()
	return judge.NewPool(&stubScorer{score: score}, config.JudgeConfig{MaxConcurrent: 2, TimeoutSec: 5})
}

func TestJudgeStageRescoresRubricRows(t *testing.T) {
	traces := []trace.DialogTrace{sampleTrace()}
	rows := BuildRows(traces)
	if rows[0].JudgeScore == nil || *rows[0].JudgeScore != 5.0 {
		t.Fatalf("heuristic precondition failed: %v", rows[0].JudgeScore)
	}

	stage := &JudgeStage{Pool: newStagePool(t, func(req judge.Request) (float64, error) {
		if len(req.Requirements) == 0 {
			t.Errorf("judge received no requirements")
		}
		return 4.0, nil
	})}
	stage.Apply(context.Background(), rows, traces)

	if rows[0].JudgeScore == nil || *rows[0].JudgeScore != 4.0 {
		t.Errorf("eligible row JudgeScore = %v, want judge's 4.0", rows[0].JudgeScore)
	}
	// The timed-out second turn is not eligible and keeps its heuristic.
	if rows[1].JudgeScore == nil || *rows[1].JudgeScore != 1.0 {
		t.Errorf("ineligible row JudgeScore = %v, want untouched 1.0", rows[1].JudgeScore)
	}
}

func TestJudgeStageKeepsHeuristicOnError(t *testing.T) {
	traces := []trace.DialogTrace{sampleTrace()}
	rows := BuildRows(traces)

	stage := &JudgeStage{Pool: newStagePool(t, func(req judge.Request) (float64, error) {
		return 0, errors.New("judge unavailable")
	})}
	stage.Apply(context.Background(), rows, traces)

	if rows[0].JudgeScore == nil || *rows[0].JudgeScore != 5.0 {
		t.Errorf("JudgeScore after judge failure = %v, want heuristic 5.0", rows[0].JudgeScore)
	}
}

func TestJudgeStageFlagsContradictionsAtThreshold(t *testing.T) {
	traces := []trace.DialogTrace{sampleTrace()}
	rows := BuildRows(traces)
	if rows[0].ConstraintContradiction {
		t.Fatalf("detector precondition failed: contradiction already set")
	}

	stage := &JudgeStage{
		Pool: newStagePool(t, func(req judge.Request) (float64, error) {
			if strings.Contains(req.Instruction, "用户约束") {
				return 2.0, nil
			}
			return 4.0, nil
		}),
		JudgeContradictions:    true,
		ContradictionThreshold: 2.0,
	}
	stage.Apply(context.Background(), rows, traces)

	if !rows[0].ConstraintContradiction {
		t.Errorf("ConstraintContradiction = false, want true at the threshold score")
	}
}

func TestJudgeStageLeavesContradictionAboveThreshold(t *testing.T) {
	traces := []trace.DialogTrace{sampleTrace()}
	rows := BuildRows(traces)

	stage := &JudgeStage{
		Pool: newStagePool(t, func(req judge.Request) (float64, error) {
			return 4.5, nil
		}),
		JudgeContradictions:    true,
		ContradictionThreshold: 2.0,
	}
	stage.Apply(context.Background(), rows, traces)

	if rows[0].ConstraintContradiction {
		t.Errorf("ConstraintContradiction = true, want false for a passing score")
	}
}

func TestJudgeStageNoPoolIsNoOp(t *testing.T) {
	traces := []trace.DialogTrace{sampleTrace()}
	rows := BuildRows(traces)
	want := *rows[0].JudgeScore

	var stage *JudgeStage
	stage.Apply(context.Background(), rows, traces)
	(&JudgeStage{}).Apply(context.Background(), rows, traces)

	if *rows[0].JudgeScore != want {
		t.Errorf("JudgeScore changed without a pool: %v", *rows[0].JudgeScore)
	}
}
