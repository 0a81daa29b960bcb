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
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/memfin/adviseval/config"
)

// retryDelay is the fixed wait between judge attempts.
const retryDelay = time.Second

// Result carries one scored request back to the caller. Err is set when all
// attempts failed; the caller decides what a missing score means.
type Result struct {
	Index int
	Score float64
	Err   error
}

// Pool fans scoring requests out to a bounded worker group. A semaphore caps
// in-flight provider calls across every pass that shares this pool, so the
// rubric pass and the contradiction pass together never exceed the configured
// ceiling.
type Pool struct {
	scorer  Scorer
	workers int
	sem     *semaphore.Weighted
	timeout time.Duration
	retries int
}

// NewPool builds a pool around scorer using the judge configuration block.
func NewPool(scorer Scorer, cfg config.JudgeConfig) *Pool {
	workers := cfg.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Pool{
		scorer:  scorer,
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		retries: retries,
	}
}

// ScoreAll scores every request and returns results in input order. Scoring
// failures become data in the result slice; ScoreAll itself never fails.
func (p *Pool) ScoreAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, req := range reqs {
		g.Go(func() error {
			score, err := p.scoreOne(ctx, req)
			results[i] = Result{Index: i, Score: score, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

// scoreOne runs one request with per-attempt timeout and fixed-delay retries.
// The returned score is clamped to [1,5].
func (p *Pool) scoreOne(ctx context.Context, req Request) (float64, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			log.Debug().Int("attempt", attempt+1).Err(lastErr).Msg("retrying judge request")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return 0, err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		score, err := p.scorer.Score(attemptCtx, req)
		cancel()
		p.sem.Release(1)

		if err == nil {
			return clampScore(score), nil
		}
		lastErr = err
	}
	return 0, lastErr
}

func clampScore(score float64) float64 {
	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}
