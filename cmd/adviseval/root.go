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
	"github.com/spf13/cobra"

	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/telemetry"

	// Agent and judge providers register themselves on import.
	_ "github.com/memfin/adviseval/agent/openaichat"
	_ "github.com/memfin/adviseval/agent/scripted"
	_ "github.com/memfin/adviseval/judge/geminijudge"
	_ "github.com/memfin/adviseval/judge/heuristic"
	_ "github.com/memfin/adviseval/judge/openaijudge"
)

var rootFlags struct {
	logLevel string
	logJSON  bool
}

var rootCmd = &cobra.Command{
	Use:   "adviseval",
	Short: "Evaluation harness for financial advisory dialogue agents",
	Long: `adviseval replays advisory dialogues against an agent, captures turn
traces, and scores context continuity, profile accuracy, risk disclosure,
compliance, and explainability.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return telemetry.SetupLogging(config.TelemetryConfig{
			LogLevel: rootFlags.logLevel,
			LogJSON:  rootFlags.logJSON,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.logJSON, "log-json", false, "emit JSON logs instead of console output")
}
