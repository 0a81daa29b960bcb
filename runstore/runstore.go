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

// Package runstore persists evaluation run artifacts: the run manifest,
// dialogue traces, per-turn evaluation rows, the metrics summary, and the
// rendered report. Three backends share one interface: a file store that
// lays a run out as a directory of JSON and JSONL files, an in-memory store
// for tests and dry runs, and a SQLite store for querying across runs.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/memfin/adviseval/metrics"
	"github.com/memfin/adviseval/trace"
	"github.com/memfin/adviseval/turneval"
)

// Artifact file names inside a run directory.
const (
	ManifestFile    = "run_manifest.json"
	DialogTraceFile = "dialog_trace.jsonl"
	TurnEvalFile    = "turn_eval.jsonl"
	SummaryFile     = "metrics_summary.json"
	ReportFile      = "report.md"
	ProgressFile    = "progress.jsonl"
)

// ErrNotFound reports that the requested artifact has not been saved.
var ErrNotFound = errors.New("runstore: not found")

// Manifest records what a run was asked to do and how it ended. It is
// written once when the run starts and rewritten with counters and the end
// timestamp when the run finishes, so a crashed run leaves a manifest
// without ended_at behind.
type Manifest struct {
	TraceVersion     string     `json:"trace_version"`
	RunID            string     `json:"run_id"`
	DatasetPath      string     `json:"dataset_path"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	ModelName        string     `json:"model_name,omitempty"`
	AgentProvider    string     `json:"agent_provider"`
	JudgeProvider    string     `json:"judge_provider,omitempty"`
	WorkersDialog    int        `json:"workers_dialog"`
	WorkersJudge     int        `json:"workers_judge"`
	TurnTimeoutSec   int        `json:"turn_timeout_sec"`
	TurnHeartbeatSec int        `json:"turn_heartbeat_sec"`
	TurnRetries      int        `json:"turn_retries"`
	ResumedFrom      string     `json:"resumed_from,omitempty"`

	Counters metrics.Counters `json:"counters"`
}

// Store persists and recalls the artifacts of evaluation runs. Save calls
// replace any artifact previously saved for the same run, so a run can
// write its manifest twice and a resumed run can rewrite the full trace
// set. Load calls return ErrNotFound when nothing was saved.
type Store interface {
	SaveManifest(ctx context.Context, m *Manifest) error
	SaveDialogTraces(ctx context.Context, runID string, traces []trace.DialogTrace) error
	SaveTurnRows(ctx context.Context, runID string, rows []turneval.Row) error
	SaveSummary(ctx context.Context, summary *metrics.EvalSummary) error
	SaveReport(ctx context.Context, runID, markdown string) error

	LoadDialogTraces(ctx context.Context, runID string) ([]trace.DialogTrace, error)
	LoadSummary(ctx context.Context, runID string) (*metrics.EvalSummary, error)
}
