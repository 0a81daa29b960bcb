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

// Package progress writes the append-only run progress log: one JSON object
// per line, one line per event, so a long replay can be tailed live and
// reconstructed afterwards. Logging never fails the run; write errors go to
// the debug log and the event is dropped.
package progress

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event vocabulary. Every line in progress.jsonl carries exactly one of
// these names.
const (
	EventRunStarted    = "run_started"
	EventDialogStarted = "dialog_started"
	EventTurnStarted   = "turn_started"
	EventTurnHeartbeat = "turn_heartbeat"
	EventTurnTimeout   = "turn_timeout"
	EventTurnRetry     = "turn_retry"
	EventTurnDone      = "turn_done"
	EventDialogDone    = "dialog_done"
	EventMetricsDone   = "metrics_done"
	EventRunFinished   = "run_finished"
)

// Logger serializes progress events onto one writer. All replay workers
// share a single Logger; the mutex is the only point of serialization.
type Logger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// NewLogger writes events to w. The caller keeps ownership of w.
func NewLogger(w io.Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// Open appends to the progress log at path, creating it if needed.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{w: f, closer: f, now: time.Now}, nil
}

// Log appends one event line. Payload fields ride alongside ts and event;
// payload keys named ts or event are overwritten. Safe on a nil Logger so
// call sites never need a guard.
func (l *Logger) Log(event string, payload map[string]any) {
	if l == nil {
		return
	}
	entry := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		entry[k] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entry["ts"] = l.now().UTC().Format(time.RFC3339Nano)
	entry["event"] = event

	enc := json.NewEncoder(l.w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		log.Debug().Str("event", event).Err(err).Msg("progress event dropped")
		return
	}
	log.Debug().Str("event", event).Fields(payload).Msg("progress")
}

// Close releases the underlying file when the Logger owns one.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
