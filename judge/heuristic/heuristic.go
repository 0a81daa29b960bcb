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

// Package heuristic provides the keyword-coverage judge. It needs no
// network, no key, and no model: it grades exactly the way rows are graded
// before any judge runs, which makes it the zero-setup default and a stable
// baseline to compare model judges against.
package heuristic

import (
	"context"
	"errors"

	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/judge"
	"github.com/memfin/adviseval/turneval"
)

func init() {
	judge.Register(config.JudgeHeuristic, func(cfg config.JudgeConfig) (judge.Scorer, error) {
		return Scorer{}, nil
	})
}

// Scorer grades requirement coverage with the rubric keyword tables.
type Scorer struct{}

// Score maps the covered fraction of the requirements onto [1,5].
func (Scorer) Score(ctx context.Context, req judge.Request) (float64, error) {
	if len(req.Requirements) == 0 {
		return 0, errors.New("heuristic judge: no requirements to grade")
	}
	hits := turneval.RubricHitItems(req.ReplyText, req.Requirements)
	return *turneval.HeuristicScore(req.Requirements, hits), nil
}
