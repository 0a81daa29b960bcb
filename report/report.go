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

// Package report renders an evaluation summary as deterministic markdown:
// fixed metric order, sorted keys, fixed float formatting. Rendering the same
// summary twice yields byte-identical output.
package report

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/memfin/adviseval/metrics"
)

// Render produces the markdown report for one run. Every metric section is
// always present: a metric with nothing to score still reports its zeroed
// counts instead of disappearing.
func Render(summary *metrics.EvalSummary) string {
	var b strings.Builder

	b.WriteString("# Advisory Agent Eval Report\n\n")
	fmt.Fprintf(&b, "- run_id: `%s`\n", summary.RunID)
	fmt.Fprintf(&b, "- dataset: `%s`\n", summary.DatasetPath)
	c := summary.Counters
	fmt.Fprintf(&b, "- counters: total=%d, valid=%d, skipped=%d, failed=%d, turn_pairs=%d\n",
		c.TotalDialogs, c.ValidDialogs, c.SkippedDialogs, c.FailedDialogs, c.TotalTurnPairs)
	b.WriteString("\n")

	for _, name := range metrics.Order {
		result := summary.Metrics[name]
		if result == nil {
			result = &metrics.MetricResult{
				MetricName: name,
				Counts:     map[string]int{"eligible_count": 0, "skipped_count": 0, "failed_count": 0},
			}
		}

		fmt.Fprintf(&b, "## %s\n\n", name)

		b.WriteString("### Micro\n")
		writeFloats(&b, result.Micro)
		b.WriteString("\n### Macro\n")
		writeFloats(&b, result.Macro)
		b.WriteString("\n### Counts\n")
		writeCounts(&b, result.Counts)
		b.WriteString("\n")
	}

	return b.String()
}

func writeFloats(b *strings.Builder, values map[string]float64) {
	keys := slices.Collect(maps.Keys(values))
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: `%.6f`\n", k, values[k])
	}
}

func writeCounts(b *strings.Builder, counts map[string]int) {
	keys := slices.Collect(maps.Keys(counts))
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: `%d`\n", k, counts[k])
	}
}
