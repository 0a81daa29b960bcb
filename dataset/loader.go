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

package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// maxLineSize bounds a single dataset line. Dialogues are text transcripts;
// 16 MiB leaves generous headroom.
const maxLineSize = 16 << 20

// Load reads a line-delimited dialogue corpus from path. Blank lines are
// skipped. A line that fails to decode yields an invalid placeholder dialogue
// rather than an error: only an unreadable stream is fatal.
func Load(path string) ([]*Dialogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()

	dialogues, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return dialogues, nil
}

// Parse decodes dialogues from r, one JSON object per line.
func Parse(r io.Reader) ([]*Dialogue, error) {
	var dialogues []*Dialogue
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	idx := 0
	for sc.Scan() {
		idx++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		dialogues = append(dialogues, decodeLine(idx, line))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return dialogues, nil
}

// decodeLine parses one dataset line. Structural damage never escapes as an
// error: a malformed line becomes an invalid placeholder, and mistyped fields
// are dropped so that classification assigns the matching skip reason.
func decodeLine(idx int, line []byte) *Dialogue {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		log.Debug().Int("dataset_index", idx).Err(err).Msg("dataset line failed to parse")
		return &Dialogue{
			ID:           fmt.Sprintf("invalid_json_line_%d", idx),
			DatasetIndex: idx,
			ParseError:   err.Error(),
		}
	}

	d := &Dialogue{DatasetIndex: idx}
	d.ID = stringField(raw, "dialog_id")
	if d.ID == "" {
		d.ID = fmt.Sprintf("dialog_%d", idx)
	}
	d.ScenarioType = stringField(raw, "scenario_type")
	d.Difficulty = stringField(raw, "difficulty")

	if v, ok := raw["turns"]; ok && validateTurns(v) == nil {
		if err := reencode(v, &d.Turns); err != nil {
			d.Turns = nil
		}
	}
	if v, ok := raw["profile_gt"]; ok && validateProfileGT(v) == nil {
		var p ProfileGT
		if err := reencode(v, &p); err == nil {
			d.ProfileGT = &p
		}
	}
	if v, ok := raw["blueprint"].(map[string]any); ok {
		d.Blueprint = Blueprint(v)
	}
	if v, ok := raw["events"]; ok {
		var events []map[string]any
		if err := reencode(v, &events); err == nil {
			d.Events = events
		}
	}
	return d
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// reencode round-trips a loosely decoded value into a typed target.
func reencode(v any, target any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}
