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

// Package runner orchestrates a full evaluation run: dataset load, dialogue
// replay, row building, judge re-scoring, metric aggregation, and artifact
// persistence. Dialogue and turn failures become trace data; the only fatal
// errors are an unreadable input and an unwritable run directory.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/memfin/adviseval/agent"
	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/dataset"
	"github.com/memfin/adviseval/judge"
	"github.com/memfin/adviseval/metrics"
	"github.com/memfin/adviseval/progress"
	"github.com/memfin/adviseval/replay"
	"github.com/memfin/adviseval/report"
	"github.com/memfin/adviseval/runstore"
	"github.com/memfin/adviseval/telemetry"
	"github.com/memfin/adviseval/trace"
	"github.com/memfin/adviseval/turneval"
)

// Result is what a finished run leaves behind.
type Result struct {
	RunID   string
	RunDir  string
	Summary *metrics.EvalSummary
	Report  string
}

// NewRunID derives a run identifier from the wall clock plus a short random
// suffix, so runs started within the same second stay distinct.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

// storeSet fans artifact saves out to every configured backend. The run
// directory is the canonical artifact, so its failures are fatal; archive
// backends only log.
type storeSet struct {
	primary  *runstore.FileStore
	archives []runstore.Store
}

func (s storeSet) save(what string, fn func(runstore.Store) error) error {
	if err := fn(s.primary); err != nil {
		return fmt.Errorf("runner: save %s: %w", what, err)
	}
	for _, st := range s.archives {
		if err := fn(st); err != nil {
			log.Warn().Str("artifact", what).Err(err).Msg("archive store save failed")
		}
	}
	return nil
}

// Run executes the evaluation pipeline described by cfg and returns the
// summary of the finished run. The agent provider named by cfg must have
// been registered, usually by importing its package for side effects.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("runner: invalid config: %w", err)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = NewRunID(time.Now())
	}
	runDir := filepath.Join(cfg.OutputRoot, runID)

	fileStore, err := runstore.NewFileStore(runDir)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	stores := storeSet{primary: fileStore}
	if cfg.Store.SQLitePath != "" {
		sqlStore, err := runstore.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		defer func() {
			if err := sqlStore.Close(); err != nil {
				log.Warn().Err(err).Msg("closing sqlite store")
			}
		}()
		stores.archives = append(stores.archives, sqlStore)
	}

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("shutting down trace exporter")
		}
	}()

	ctx, span := telemetry.Tracer().Start(ctx, "runner.run",
		oteltrace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	prog, err := progress.Open(filepath.Join(runDir, runstore.ProgressFile))
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	defer prog.Close()

	manifest := &runstore.Manifest{
		TraceVersion:     trace.Version,
		RunID:            runID,
		DatasetPath:      cfg.Dataset,
		StartedAt:        time.Now().UTC(),
		ModelName:        cfg.Agent.Model,
		AgentProvider:    cfg.Agent.Provider,
		JudgeProvider:    cfg.Judge.Provider,
		WorkersDialog:    cfg.WorkersDialog,
		WorkersJudge:     cfg.WorkersJudge,
		TurnTimeoutSec:   cfg.TurnTimeoutSec,
		TurnHeartbeatSec: cfg.TurnHeartbeatSec,
		TurnRetries:      cfg.TurnRetries,
		ResumedFrom:      cfg.ResumeFrom,
	}
	if err := stores.save("manifest", func(st runstore.Store) error {
		return st.SaveManifest(ctx, manifest)
	}); err != nil {
		return nil, err
	}

	dialogues, err := dataset.Load(cfg.Dataset)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	// Traces recovered from a prior run count as completed; their dialogues
	// are not replayed again. They are restamped with the new run id so the
	// merged artifact set stays internally consistent; the manifest records
	// where they came from.
	completed := make(map[string]trace.DialogTrace)
	if cfg.ResumeFrom != "" {
		resumed, err := loadResumeTraces(ctx, cfg.ResumeFrom)
		if err != nil {
			return nil, err
		}
		for _, t := range resumed {
			t.RunID = runID
			completed[t.DialogID] = t
		}
		log.Info().Str("resume_from", cfg.ResumeFrom).Int("completed", len(completed)).
			Msg("resuming from prior run")
	}

	prog.Log(progress.EventRunStarted, map[string]any{
		"run_id":                    runID,
		"dataset_path":              cfg.Dataset,
		"dialogs":                   len(dialogues),
		"resumed_completed_dialogs": len(completed),
	})

	provider, err := agent.New(cfg.Agent.Provider, cfg.Agent)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	pending := make([]*dataset.Dialogue, 0, len(dialogues))
	for _, d := range dialogues {
		if _, done := completed[d.ID]; done {
			log.Debug().Str("dialog_id", d.ID).Int("dataset_index", d.DatasetIndex).
				Msg("dialogue already replayed in resumed run")
			continue
		}
		pending = append(pending, d)
	}

	newTraces := replay.Run(ctx, replay.Params{
		RunID:             runID,
		Provider:          provider,
		Dialogues:         pending,
		WorkersDialog:     cfg.WorkersDialog,
		TurnTimeout:       time.Duration(cfg.TurnTimeoutSec) * time.Second,
		HeartbeatInterval: time.Duration(cfg.TurnHeartbeatSec) * time.Second,
		TurnRetries:       cfg.TurnRetries,
		StateRoot:         filepath.Join(runDir, "memstore"),
		Progress:          prog,
	})

	traces := make([]trace.DialogTrace, 0, len(completed)+len(newTraces))
	for _, t := range completed {
		traces = append(traces, t)
	}
	traces = append(traces, newTraces...)
	sort.Slice(traces, func(i, j int) bool {
		if traces[i].DatasetIndex != traces[j].DatasetIndex {
			return traces[i].DatasetIndex < traces[j].DatasetIndex
		}
		return traces[i].DialogID < traces[j].DialogID
	})

	if err := stores.save("dialog traces", func(st runstore.Store) error {
		return st.SaveDialogTraces(ctx, runID, traces)
	}); err != nil {
		return nil, err
	}

	rows := turneval.BuildRows(traces)
	profiles := turneval.BuildProfiles(traces, cfg.Eval.SentinelPolicy)

	if cfg.Judge.Provider != "" {
		stage, err := newJudgeStage(cfg)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		stage.Apply(ctx, rows, traces)
	}

	if err := stores.save("turn rows", func(st runstore.Store) error {
		return st.SaveTurnRows(ctx, runID, rows)
	}); err != nil {
		return nil, err
	}

	counters := metrics.CountTraces(traces)
	results := metrics.ComputeAll(metrics.Inputs{
		Rows:              rows,
		Profiles:          profiles,
		TraceCount:        len(traces),
		InvalidTraceCount: counters.SkippedDialogs,
	})
	summary := metrics.NewSummary(runID, cfg.Dataset, results, counters)

	prog.Log(progress.EventMetricsDone, map[string]any{
		"run_id":    runID,
		"turn_rows": len(rows),
	})

	if err := stores.save("summary", func(st runstore.Store) error {
		return st.SaveSummary(ctx, summary)
	}); err != nil {
		return nil, err
	}

	markdown := report.Render(summary)
	if err := stores.save("report", func(st runstore.Store) error {
		return st.SaveReport(ctx, runID, markdown)
	}); err != nil {
		return nil, err
	}

	endedAt := time.Now().UTC()
	manifest.EndedAt = &endedAt
	manifest.Counters = counters
	if err := stores.save("manifest", func(st runstore.Store) error {
		return st.SaveManifest(ctx, manifest)
	}); err != nil {
		return nil, err
	}

	prog.Log(progress.EventRunFinished, map[string]any{
		"run_id":           runID,
		"total_dialogs":    counters.TotalDialogs,
		"valid_dialogs":    counters.ValidDialogs,
		"skipped_dialogs":  counters.SkippedDialogs,
		"failed_dialogs":   counters.FailedDialogs,
		"total_turn_pairs": counters.TotalTurnPairs,
	})
	log.Info().Str("run_id", runID).Str("run_dir", runDir).
		Int("total_dialogs", counters.TotalDialogs).Int("turn_rows", len(rows)).
		Msg("run finished")

	return &Result{RunID: runID, RunDir: runDir, Summary: summary, Report: markdown}, nil
}

// loadResumeTraces reads the dialog trace file of a prior run directory. A
// missing directory is fatal, an empty or absent trace file is not.
func loadResumeTraces(ctx context.Context, dir string) ([]trace.DialogTrace, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("runner: resume directory: %w", err)
	}
	prior, err := runstore.NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	traces, err := prior.LoadDialogTraces(ctx, "")
	if errors.Is(err, runstore.ErrNotFound) {
		log.Warn().Str("dir", dir).Msg("resume directory has no dialog traces")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	return traces, nil
}

// newJudgeStage wires the configured judge behind the cache and the shared
// concurrency pool. workers_judge lowers the pool bound when it is stricter
// than the judge's own ceiling.
func newJudgeStage(cfg *config.Config) (*turneval.JudgeStage, error) {
	scorer, err := judge.New(cfg.Judge.Provider, cfg.Judge)
	if err != nil {
		return nil, err
	}
	cached, err := judge.NewCached(scorer, cfg.Judge.CacheSize)
	if err != nil {
		return nil, err
	}
	judgeCfg := cfg.Judge
	if cfg.WorkersJudge > 0 && cfg.WorkersJudge < judgeCfg.MaxConcurrent {
		judgeCfg.MaxConcurrent = cfg.WorkersJudge
	}
	return &turneval.JudgeStage{
		Pool:                   judge.NewPool(cached, judgeCfg),
		JudgeContradictions:    cfg.Eval.ContradictionJudge,
		ContradictionThreshold: cfg.Eval.ContradictionThreshold,
	}, nil
}
