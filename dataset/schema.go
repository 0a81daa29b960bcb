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
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Structural schemas for the loosely typed record fields. A field that fails
// its schema is treated as absent, so classification stays total and assigns
// the corresponding skip reason instead of failing the record outright.
const (
	turnsSchemaJSON = `{
		"type": "array",
		"items": {
			"type": "object",
			"properties": {
				"role": {"type": "string"},
				"text": {"type": "string"}
			}
		}
	}`

	profileGTSchemaJSON = `{
		"type": "object",
		"properties": {
			"risk_level_gt": {"type": "string"},
			"horizon_gt": {"type": "string"},
			"liquidity_need_gt": {"type": "string"},
			"constraints_gt": {"type": "array", "items": {"type": "string"}},
			"preferences_gt": {"type": "array", "items": {"type": "string"}}
		}
	}`
)

var (
	turnsSchema     = mustResolveSchema(turnsSchemaJSON)
	profileGTSchema = mustResolveSchema(profileGTSchemaJSON)
)

func mustResolveSchema(src string) *jsonschema.Resolved {
	var js jsonschema.Schema
	if err := json.Unmarshal([]byte(src), &js); err != nil {
		panic(fmt.Sprintf("dataset: bad schema literal: %v", err))
	}
	resolved, err := js.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("dataset: failed to resolve schema: %v", err))
	}
	return resolved
}

func validateTurns(v any) error {
	return turnsSchema.Validate(v)
}

func validateProfileGT(v any) error {
	return profileGTSchema.Validate(v)
}
