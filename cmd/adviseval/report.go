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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memfin/adviseval/metrics"
	"github.com/memfin/adviseval/report"
)

var reportFlags struct {
	summaryPath string
	outPath     string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Re-render the markdown report from a stored metrics summary",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportFlags.summaryPath, "summary", "", "path to a metrics_summary.json")
	reportCmd.Flags().StringVar(&reportFlags.outPath, "out", "", "write the report here instead of stdout")
	_ = reportCmd.MarkFlagRequired("summary")
}

func runReport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(reportFlags.summaryPath)
	if err != nil {
		return fmt.Errorf("read summary: %w", err)
	}
	var summary metrics.EvalSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return fmt.Errorf("decode summary %s: %w", reportFlags.summaryPath, err)
	}

	markdown := report.Render(&summary)
	if reportFlags.outPath == "" {
		fmt.Fprint(cmd.OutOrStdout(), markdown)
		return nil
	}
	if err := os.WriteFile(reportFlags.outPath, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
