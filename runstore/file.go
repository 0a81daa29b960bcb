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

package runstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/memfin/adviseval/metrics"
	"github.com/memfin/adviseval/trace"
	"github.com/memfin/adviseval/turneval"
)

// maxLineSize bounds a single trace line when reloading. Matches the
// dataset loader's bound.
const maxLineSize = 16 << 20

// FileStore lays one run out as a directory of files. It is bound to a
// single run directory, so the runID arguments of the Store interface are
// ignored: callers resolve the directory from the run ID before opening
// the store.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the run directory if needed and returns a store
// writing into it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runstore: create run directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the run directory the store writes into.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) SaveManifest(_ context.Context, m *Manifest) error {
	return writeJSONFile(filepath.Join(s.dir, ManifestFile), m)
}

func (s *FileStore) SaveDialogTraces(_ context.Context, _ string, traces []trace.DialogTrace) error {
	return writeJSONLinesFile(filepath.Join(s.dir, DialogTraceFile), traces)
}

func (s *FileStore) SaveTurnRows(_ context.Context, _ string, rows []turneval.Row) error {
	return writeJSONLinesFile(filepath.Join(s.dir, TurnEvalFile), rows)
}

func (s *FileStore) SaveSummary(_ context.Context, summary *metrics.EvalSummary) error {
	return writeJSONFile(filepath.Join(s.dir, SummaryFile), summary)
}

func (s *FileStore) SaveReport(_ context.Context, _ string, markdown string) error {
	path := filepath.Join(s.dir, ReportFile)
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("runstore: write report: %w", err)
	}
	return nil
}

// LoadDialogTraces reads the trace file back. A line that fails to decode
// is logged and skipped rather than failing the load: a resumed run should
// recover every trace the previous run managed to write.
func (s *FileStore) LoadDialogTraces(_ context.Context, _ string) ([]trace.DialogTrace, error) {
	path := filepath.Join(s.dir, DialogTraceFile)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("runstore: open dialog traces: %w", err)
	}
	defer f.Close()

	var traces []trace.DialogTrace
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var t trace.DialogTrace
		if err := json.Unmarshal(line, &t); err != nil {
			log.Warn().Str("path", path).Int("line", lineNo).Err(err).Msg("skipping undecodable dialog trace line")
			continue
		}
		traces = append(traces, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("runstore: read dialog traces: %w", err)
	}
	if len(traces) == 0 {
		return nil, ErrNotFound
	}
	return traces, nil
}

func (s *FileStore) LoadSummary(_ context.Context, _ string) (*metrics.EvalSummary, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, SummaryFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("runstore: read summary: %w", err)
	}
	var summary metrics.EvalSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("runstore: decode summary: %w", err)
	}
	return &summary, nil
}

// writeJSONFile writes v as indented JSON. HTML escaping is off so Chinese
// dialogue text and comparison operators stay readable in the artifact.
func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("runstore: create %s: %w", filepath.Base(path), err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("runstore: encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// writeJSONLinesFile writes one JSON object per line.
func writeJSONLinesFile[T any](path string, items []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("runstore: create %s: %w", filepath.Base(path), err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			f.Close()
			return fmt.Errorf("runstore: encode %s: %w", filepath.Base(path), err)
		}
	}
	return f.Close()
}
