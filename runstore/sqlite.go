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
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/memfin/adviseval/metrics"
	"github.com/memfin/adviseval/trace"
	"github.com/memfin/adviseval/turneval"
)

// jsonText stores a JSON payload in a text column. It implements
// driver.Valuer and sql.Scanner so gorm reads and writes it as a string.
type jsonText json.RawMessage

func (jsonText) GormDataType() string { return "text" }

func (jsonText) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "LONGTEXT"
	}
	return ""
}

// Value implements driver.Valuer. Empty payloads become NULL.
func (j jsonText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *jsonText) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = jsonText(append([]byte(nil), v...))
	case string:
		*j = jsonText(v)
	default:
		return fmt.Errorf("failed to scan JSON column value: %T", value)
	}
	return nil
}

func marshalJSONText(v any) (jsonText, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonText(b), nil
}

type runRecord struct {
	RunID       string    `gorm:"primaryKey;column:run_id"`
	DatasetPath string    `gorm:"column:dataset_path"`
	StartedAt   time.Time `gorm:"column:started_at"`
	Manifest    jsonText  `gorm:"column:manifest"`
}

func (runRecord) TableName() string { return "runs" }

type dialogTraceRecord struct {
	RunID        string   `gorm:"primaryKey;column:run_id"`
	DialogID     string   `gorm:"primaryKey;column:dialog_id"`
	DatasetIndex int      `gorm:"column:dataset_index"`
	DialogStatus string   `gorm:"column:dialog_status"`
	Trace        jsonText `gorm:"column:trace"`
}

func (dialogTraceRecord) TableName() string { return "dialog_traces" }

type turnRowRecord struct {
	RunID      string   `gorm:"primaryKey;column:run_id"`
	DialogID   string   `gorm:"primaryKey;column:dialog_id"`
	TurnPairID int      `gorm:"primaryKey;column:turn_pair_id"`
	Row        jsonText `gorm:"column:row"`
}

func (turnRowRecord) TableName() string { return "turn_rows" }

type summaryRecord struct {
	RunID   string   `gorm:"primaryKey;column:run_id"`
	Summary jsonText `gorm:"column:summary"`
	Report  string   `gorm:"column:report"`
}

func (summaryRecord) TableName() string { return "summaries" }

// SQLiteStore keeps run artifacts in a SQLite database so results can be
// queried across runs. Payloads are stored as JSON text next to the few
// columns worth filtering on.
type SQLiteStore struct {
	db *gorm.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path and migrates the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("runstore: open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&runRecord{}, &dialogTraceRecord{}, &turnRowRecord{}, &summaryRecord{}); err != nil {
		return nil, fmt.Errorf("runstore: migrate sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) SaveManifest(ctx context.Context, m *Manifest) error {
	payload, err := marshalJSONText(m)
	if err != nil {
		return fmt.Errorf("runstore: encode manifest: %w", err)
	}
	rec := runRecord{
		RunID:       m.RunID,
		DatasetPath: m.DatasetPath,
		StartedAt:   m.StartedAt,
		Manifest:    payload,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("runstore: save manifest: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveDialogTraces(ctx context.Context, runID string, traces []trace.DialogTrace) error {
	recs := make([]dialogTraceRecord, 0, len(traces))
	for i := range traces {
		payload, err := marshalJSONText(&traces[i])
		if err != nil {
			return fmt.Errorf("runstore: encode dialog trace %s: %w", traces[i].DialogID, err)
		}
		recs = append(recs, dialogTraceRecord{
			RunID:        runID,
			DialogID:     traces[i].DialogID,
			DatasetIndex: traces[i].DatasetIndex,
			DialogStatus: string(traces[i].DialogStatus),
			Trace:        payload,
		})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&dialogTraceRecord{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.CreateInBatches(recs, 200).Error
	})
	if err != nil {
		return fmt.Errorf("runstore: save dialog traces: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveTurnRows(ctx context.Context, runID string, rows []turneval.Row) error {
	recs := make([]turnRowRecord, 0, len(rows))
	for i := range rows {
		payload, err := marshalJSONText(&rows[i])
		if err != nil {
			return fmt.Errorf("runstore: encode turn row %s/%d: %w", rows[i].DialogID, rows[i].TurnPairID, err)
		}
		recs = append(recs, turnRowRecord{
			RunID:      runID,
			DialogID:   rows[i].DialogID,
			TurnPairID: rows[i].TurnPairID,
			Row:        payload,
		})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&turnRowRecord{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.CreateInBatches(recs, 200).Error
	})
	if err != nil {
		return fmt.Errorf("runstore: save turn rows: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, summary *metrics.EvalSummary) error {
	payload, err := marshalJSONText(summary)
	if err != nil {
		return fmt.Errorf("runstore: encode summary: %w", err)
	}
	rec := summaryRecord{RunID: summary.RunID, Summary: payload}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"summary"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("runstore: save summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveReport(ctx context.Context, runID, markdown string) error {
	rec := summaryRecord{RunID: runID, Report: markdown}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"report"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("runstore: save report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadDialogTraces(ctx context.Context, runID string) ([]trace.DialogTrace, error) {
	var recs []dialogTraceRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("dataset_index, dialog_id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("runstore: load dialog traces: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	traces := make([]trace.DialogTrace, 0, len(recs))
	for _, rec := range recs {
		var t trace.DialogTrace
		if err := json.Unmarshal([]byte(rec.Trace), &t); err != nil {
			log.Warn().Str("run_id", runID).Str("dialog_id", rec.DialogID).Err(err).
				Msg("skipping undecodable dialog trace record")
			continue
		}
		traces = append(traces, t)
	}
	return traces, nil
}

func (s *SQLiteStore) LoadSummary(ctx context.Context, runID string) (*metrics.EvalSummary, error) {
	var rec summaryRecord
	err := s.db.WithContext(ctx).First(&rec, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("runstore: load summary: %w", err)
	}
	if len(rec.Summary) == 0 {
		return nil, ErrNotFound
	}
	var summary metrics.EvalSummary
	if err := json.Unmarshal([]byte(rec.Summary), &summary); err != nil {
		return nil, fmt.Errorf("runstore: decode summary: %w", err)
	}
	return &summary, nil
}
