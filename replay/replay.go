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

// Package replay drives the agent under evaluation through every dialogue of
// the dataset and captures one DialogTrace per dialogue. Dialogues run
// concurrently; the turns inside a dialogue run strictly in order.
package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/memfin/adviseval/agent"
	"github.com/memfin/adviseval/dataset"
	"github.com/memfin/adviseval/progress"
	"github.com/memfin/adviseval/telemetry"
	"github.com/memfin/adviseval/trace"
)

// retryableErrorParts are matched case-insensitively against a failed turn's
// error text. Only transient transport failures are worth a second attempt.
var retryableErrorParts = []string{
	"request timed out.",
	"connection error.",
	"incomplete chunked read",
}

// retryBackoff is the fixed delay between turn attempts.
var retryBackoff = time.Second

// Params configures one replay pass.
type Params struct {
	RunID     string
	Provider  agent.Provider
	Dialogues []*dataset.Dialogue

	// WorkersDialog caps how many dialogues replay concurrently.
	WorkersDialog int

	// TurnTimeout bounds a single Advance call; zero means no deadline.
	TurnTimeout time.Duration

	// HeartbeatInterval is how often an in-flight turn reports progress;
	// zero disables heartbeats.
	HeartbeatInterval time.Duration

	// TurnRetries is the number of extra attempts for retryable turn errors.
	TurnRetries int

	// StateRoot is the directory agent sessions keep per-dialogue state
	// under; each dialogue gets its own subdirectory.
	StateRoot string

	Progress *progress.Logger
}

// Run replays every dialogue and returns one trace per dataset record,
// sorted by dataset index. Turn and dialogue failures are recorded in the
// traces, never returned: a broken dialogue must not take the run down.
func Run(ctx context.Context, p Params) []trace.DialogTrace {
	workers := p.WorkersDialog
	if workers < 1 {
		workers = 1
	}

	traces := make([]trace.DialogTrace, len(p.Dialogues))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, d := range p.Dialogues {
		g.Go(func() error {
			traces[i] = *runDialog(gctx, p, d)
			return nil
		})
	}
	// Tasks report failures through their trace, so Wait cannot error.
	_ = g.Wait()

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].DatasetIndex < traces[j].DatasetIndex
	})
	return traces
}

// runDialog replays one dialogue in isolation: its own session, state
// directory, and recorder. Invalid dialogues keep their skeleton trace and
// are never handed to the agent.
func runDialog(ctx context.Context, p Params, d *dataset.Dialogue) *trace.DialogTrace {
	t := trace.NewDialogTrace(p.RunID, d)

	ctx, span := telemetry.Tracer().Start(ctx, "replay.dialog", oteltrace.WithAttributes(
		attribute.String("run_id", p.RunID),
		attribute.String("dialog_id", t.DialogID),
	))
	defer span.End()

	p.Progress.Log(progress.EventDialogStarted, map[string]any{
		"dialog_id":     t.DialogID,
		"dataset_index": t.DatasetIndex,
	})
	defer func() {
		span.SetAttributes(attribute.String("dialog_status", string(t.DialogStatus)))
		p.Progress.Log(progress.EventDialogDone, map[string]any{
			"dialog_id": t.DialogID,
			"status":    string(t.DialogStatus),
			"turns":     len(t.Turns),
		})
	}()

	if !t.ValidDialog {
		log.Debug().Str("dialog_id", t.DialogID).Str("skip_reason", string(t.SkipReason)).
			Msg("skipping invalid dialogue")
		return t
	}

	rec := trace.NewRecorder()
	sess, err := p.Provider.NewSession(ctx, agent.SessionParams{
		SessionID: t.SessionID,
		UserID:    t.UserID,
		StateDir:  filepath.Join(p.StateRoot, t.DialogID),
		Recorder:  rec,
	})
	if err != nil {
		t.DialogStatus = trace.DialogFailed
		t.DialogError = fmt.Sprintf("create_agent_failed: %v", err)
		log.Error().Str("dialog_id", t.DialogID).Err(err).Msg("agent session creation failed")
		return t
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn().Str("dialog_id", t.DialogID).Err(cerr).Msg("session close failed")
		}
	}()

	for _, pair := range dataset.Align(d.Turns) {
		if ctx.Err() != nil {
			break
		}
		t.Turns = append(t.Turns, runTurn(ctx, p, sess, rec, t.DialogID, pair))
	}

	t.DialogStatus = dialogStatus(t.Turns)
	return t
}

// dialogStatus derives the dialogue outcome from its turns: failed when every
// turn failed, partial when some did, ok otherwise.
func dialogStatus(turns []trace.TurnTrace) trace.DialogStatus {
	if len(turns) == 0 {
		return trace.DialogOK
	}
	failed := 0
	for _, tt := range turns {
		if tt.TurnStatus != trace.TurnOK {
			failed++
		}
	}
	switch failed {
	case 0:
		return trace.DialogOK
	case len(turns):
		return trace.DialogFailed
	default:
		return trace.DialogPartial
	}
}

// attemptResult is the outcome of a single Advance attempt.
type attemptResult struct {
	text      string
	status    trace.TurnStatus
	err       error
	latencyMS float64
}

// runTurn replays one aligned pair, retrying transient errors, and joins the
// final attempt with whatever the recorder captured along the way.
func runTurn(ctx context.Context, p Params, sess agent.Session, rec *trace.Recorder, dialogID string, pair dataset.TurnPair) trace.TurnTrace {
	ctx, span := telemetry.Tracer().Start(ctx, "replay.turn", oteltrace.WithAttributes(
		attribute.Int("turn_pair_id", pair.PairID),
	))
	defer span.End()

	maxAttempts := p.TurnRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		res          attemptResult
		attemptsUsed int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptsUsed = attempt
		rec.StartTurn(pair.PairID)
		p.Progress.Log(progress.EventTurnStarted, map[string]any{
			"dialog_id":    dialogID,
			"turn_pair_id": pair.PairID,
			"attempt":      attempt,
		})

		res = attemptTurn(ctx, p, sess, dialogID, pair.PairID, pair.UserText, attempt)
		if res.status != trace.TurnError || attempt == maxAttempts || !isRetryable(res.err) {
			break
		}

		p.Progress.Log(progress.EventTurnRetry, map[string]any{
			"dialog_id":    dialogID,
			"turn_pair_id": pair.PairID,
			"attempt":      attempt,
			"next_attempt": attempt + 1,
			"max_attempts": maxAttempts,
			"error":        res.err.Error(),
		})
		time.Sleep(retryBackoff)
	}

	errText := ""
	if res.err != nil {
		errText = res.err.Error()
		log.Warn().Str("dialog_id", dialogID).Int("turn_pair_id", pair.PairID).
			Str("turn_status", string(res.status)).Err(res.err).Msg("turn failed")
	}

	// The recorder's latency, reported by the agent's own turn_end event,
	// wins over wall clock when present.
	payload := rec.TurnPayload(pair.PairID)
	latency := res.latencyMS
	if payload.LatencyMS > 0 {
		latency = payload.LatencyMS
	}

	tt := trace.BuildTurnTrace(pair, trace.Observation{
		PredText:        res.text,
		LatencyMS:       latency,
		Status:          res.status,
		Error:           errText,
		Recall:          payload.Recall,
		Tools:           payload.Tools,
		Compliance:      payload.Compliance,
		ProfileSnapshot: payload.ProfileSnapshot,
	})

	var errField any
	if errText != "" {
		errField = errText
	}
	p.Progress.Log(progress.EventTurnDone, map[string]any{
		"dialog_id":     dialogID,
		"turn_pair_id":  pair.PairID,
		"attempts_used": attemptsUsed,
		"turn_status":   string(res.status),
		"latency_ms":    round3(latency),
		"error":         errField,
	})
	span.SetAttributes(attribute.String("turn_status", string(res.status)))
	return tt
}

// attemptTurn runs one Advance call under the turn deadline, emitting
// heartbeats while the call is in flight. A timed-out call is abandoned: its
// goroutine drains into a buffered channel once the agent notices the
// canceled context.
func attemptTurn(ctx context.Context, p Params, sess agent.Session, dialogID string, pairID int, userText string, attempt int) attemptResult {
	start := time.Now()

	turnCtx := ctx
	cancel := context.CancelFunc(func() {})
	if p.TurnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, p.TurnTimeout)
	}
	defer cancel()

	type advanceResult struct {
		text string
		err  error
	}
	resCh := make(chan advanceResult, 1)
	go func() {
		text, err := sess.Advance(turnCtx, userText)
		resCh <- advanceResult{text: text, err: err}
	}()

	var heartbeat <-chan time.Time
	if p.HeartbeatInterval > 0 {
		ticker := time.NewTicker(p.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case res := <-resCh:
			latency := msSince(start)
			if res.err != nil {
				return attemptResult{status: trace.TurnError, err: res.err, latencyMS: latency}
			}
			return attemptResult{text: res.text, status: trace.TurnOK, latencyMS: latency}

		case <-turnCtx.Done():
			latency := msSince(start)
			if errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
				timeoutSec := int(p.TurnTimeout / time.Second)
				p.Progress.Log(progress.EventTurnTimeout, map[string]any{
					"dialog_id":    dialogID,
					"turn_pair_id": pairID,
					"attempt":      attempt,
					"elapsed_sec":  round3(time.Since(start).Seconds()),
					"timeout_sec":  timeoutSec,
				})
				err := fmt.Errorf("turn_timeout: exceeded %ds", timeoutSec)
				return attemptResult{status: trace.TurnTimeout, err: err, latencyMS: latency}
			}
			return attemptResult{status: trace.TurnError, err: turnCtx.Err(), latencyMS: latency}

		case <-heartbeat:
			p.Progress.Log(progress.EventTurnHeartbeat, map[string]any{
				"dialog_id":    dialogID,
				"turn_pair_id": pairID,
				"attempt":      attempt,
				"elapsed_sec":  round3(time.Since(start).Seconds()),
			})
		}
	}
}

// isRetryable reports whether a failed turn is worth another attempt.
// Timeouts are classified before this is consulted and never retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, part := range retryableErrorParts {
		if strings.Contains(msg, part) {
			return true
		}
	}
	return false
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
