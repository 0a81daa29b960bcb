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
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/memfin/adviseval/dataset"
)

var validateFlags struct {
	dataset string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Classify the dataset without replaying anything",
	Long: `validate loads the dataset, classifies every record, and prints how
many dialogues each skip reason would exclude from a run.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateFlags.dataset, "dataset", "", "dataset JSONL path")
	_ = validateCmd.MarkFlagRequired("dataset")
}

func runValidate(cmd *cobra.Command, args []string) error {
	dialogues, err := dataset.Load(validateFlags.dataset)
	if err != nil {
		return err
	}

	valid := 0
	byReason := make(map[dataset.SkipReason]int)
	for _, d := range dialogues {
		validity, reason := dataset.Classify(d)
		if validity == dataset.ValidityValid {
			valid++
			continue
		}
		byReason[reason]++
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "total: %d\n", len(dialogues))
	fmt.Fprintf(out, "valid: %d\n", valid)
	reasons := slices.Collect(maps.Keys(byReason))
	slices.Sort(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(out, "%s: %d\n", reason, byReason[reason])
	}
	return nil
}
