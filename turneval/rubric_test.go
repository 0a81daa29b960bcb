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

package turneval

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRubricHitItems(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		required []string
		want     []string
	}{
		{
			name:     "keyword table items",
			text:     "根据最新财报数据，以上内容仅供参考。",
			required: []string{"信息依据", "边界声明"},
			want:     []string{"信息依据", "边界声明"},
		},
		{
			name:     "partial coverage keeps required order",
			text:     "建议分三个步骤执行：先观察，然后定投。",
			required: []string{"可执行步骤", "风险收益平衡", "边界声明"},
			want:     []string{"可执行步骤"},
		},
		{
			name:     "unlisted item matches on its own text",
			text:     "依照监管新规说明如下。",
			required: []string{"监管新规"},
			want:     []string{"监管新规"},
		},
		{
			name:     "unlisted item absent",
			text:     "以下为资产配置建议。",
			required: []string{"监管新规"},
			want:     []string{},
		},
		{
			name:     "empty reply hits nothing",
			text:     "",
			required: []string{"信息依据"},
			want:     []string{},
		},
		{
			name:     "no requirements",
			text:     "根据数据判断。",
			required: nil,
			want:     []string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RubricHitItems(tc.text, tc.required)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("RubricHitItems mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeuristicScore(t *testing.T) {
	tests := []struct {
		name     string
		required []string
		hits     []string
		want     float64
	}{
		{name: "full coverage", required: []string{"a", "b"}, hits: []string{"a", "b"}, want: 5.0},
		{name: "half coverage", required: []string{"a", "b"}, hits: []string{"a"}, want: 3.0},
		{name: "no coverage", required: []string{"a", "b"}, hits: []string{}, want: 1.0},
		{name: "third rounds to cents", required: []string{"a", "b", "c"}, hits: []string{"a"}, want: 2.33},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := HeuristicScore(tc.required, tc.hits)
			if got == nil {
				t.Fatalf("HeuristicScore = nil, want %v", tc.want)
			}
			if *got != tc.want {
				t.Errorf("HeuristicScore = %v, want %v", *got, tc.want)
			}
		})
	}
	if got := HeuristicScore(nil, nil); got != nil {
		t.Errorf("HeuristicScore with no rubric = %v, want nil", *got)
	}
}
