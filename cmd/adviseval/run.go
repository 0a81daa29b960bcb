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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/runner"
	"github.com/memfin/adviseval/telemetry"
)

var runFlags struct {
	configPath    string
	dataset       string
	outputRoot    string
	workersDialog int
	workersJudge  int
	resumeFrom    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay the dataset against the configured agent and score it",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runFlags.configPath, "config", "", "run configuration YAML")
	runCmd.Flags().StringVar(&runFlags.dataset, "dataset", "", "dataset JSONL path (overrides config)")
	runCmd.Flags().StringVar(&runFlags.outputRoot, "output-root", "", "directory run artifacts are written under (overrides config)")
	runCmd.Flags().IntVar(&runFlags.workersDialog, "workers-dialog", 0, "concurrent dialogue workers (overrides config)")
	runCmd.Flags().IntVar(&runFlags.workersJudge, "workers-judge", 0, "concurrent judge workers (overrides config)")
	runCmd.Flags().StringVar(&runFlags.resumeFrom, "resume-from", "", "prior run directory whose traces are reused (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	applyRunOverrides(cmd, cfg)
	if err := telemetry.SetupLogging(cfg.Telemetry); err != nil {
		return err
	}

	// Ctrl-C stops replay between turns; everything already traced is still
	// scored and persisted before the process exits.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.RunDir)
	return nil
}

func loadRunConfig() (*config.Config, error) {
	if runFlags.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(runFlags.configPath)
}

// applyRunOverrides lets explicitly set flags win over the config file.
func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("dataset") {
		cfg.Dataset = runFlags.dataset
	}
	if flags.Changed("output-root") {
		cfg.OutputRoot = runFlags.outputRoot
	}
	if flags.Changed("workers-dialog") {
		cfg.WorkersDialog = runFlags.workersDialog
	}
	if flags.Changed("workers-judge") {
		cfg.WorkersJudge = runFlags.workersJudge
	}
	if flags.Changed("resume-from") {
		cfg.ResumeFrom = runFlags.resumeFrom
	}
	persistent := rootCmd.PersistentFlags()
	if persistent.Changed("log-level") {
		cfg.Telemetry.LogLevel = rootFlags.logLevel
	}
	if persistent.Changed("log-json") {
		cfg.Telemetry.LogJSON = rootFlags.logJSON
	}
}
