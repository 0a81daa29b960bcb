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

// Package keyref resolves memory key references from dialogue annotations
// into the ground-truth text they point at. A key is a small path expression
// over the dialogue's profile ground truth or its turn history; resolution is
// pure and deterministic, so the same key against the same dialogue always
// yields the same target.
package keyref

import (
	"regexp"
	"strconv"

	"github.com/memfin/adviseval/dataset"
)

// Resolver names identify which rule of the key grammar produced a target.
// They are persisted with each resolved key so metric rows stay auditable.
const (
	ResolverProfileField    = "profile_field"
	ResolverConstraints     = "constraints_gt"
	ResolverPreferences     = "preferences_gt"
	ResolverHistoryUserTurn = "history_user_turn"
	ResolverHistoryAbsTurn  = "history_abs_turn"
	ResolverUnresolved      = "unresolved"
)

var (
	indexedKeyRe = regexp.MustCompile(`^profile_gt\.(constraints_gt|preferences_gt)\[(\d+)\]$`)
	historyKeyRe = regexp.MustCompile(`^history_turn_index:(\d+)$`)
)

// Resolved is the outcome of resolving a single key. Unresolvable keys keep
// their raw key text and an empty target so downstream consumers can count
// them without re-running resolution.
type Resolved struct {
	Key        string `json:"key"`
	Resolvable bool   `json:"resolvable"`
	TargetText string `json:"target_text,omitempty"`
	Resolver   string `json:"resolver"`
}

// Context is the dialogue-scoped material keys resolve against. Build it with
// NewContext so history references see the same user-turn numbering the turn
// aligner produces.
type Context struct {
	Profile   *dataset.ProfileGT
	Turns     []dataset.Turn
	UserTexts []string
}

// NewContext derives a resolution context from a dialogue's ground truth.
func NewContext(profile *dataset.ProfileGT, turns []dataset.Turn) Context {
	return Context{
		Profile:   profile,
		Turns:     turns,
		UserTexts: dataset.UserTexts(dataset.Align(turns)),
	}
}

// Resolve maps one key to its ground-truth target text.
//
// The grammar has three families: the scalar profile fields
// (profile_gt.risk_level_gt, profile_gt.horizon_gt,
// profile_gt.liquidity_need_gt), the zero-based indexed list fields
// (profile_gt.constraints_gt[i], profile_gt.preferences_gt[i]), and one-based
// history references (history_turn_index:n). History references prefer the
// n-th aligned user turn and fall back to the n-th raw turn when the aligned
// view is too short. Keys outside the grammar, indexes out of range, and
// targets with empty text all resolve to unresolvable rather than an error.
func Resolve(key string, rc Context) Resolved {
	if text, ok := scalarField(key, rc.Profile); ok {
		return resolved(key, text, ResolverProfileField)
	}
	if m := indexedKeyRe.FindStringSubmatch(key); m != nil {
		return resolveIndexed(key, m, rc.Profile)
	}
	if m := historyKeyRe.FindStringSubmatch(key); m != nil {
		return resolveHistory(key, m, rc)
	}
	return unresolvedKey(key)
}

// ResolveAll resolves keys in order, one Resolved per input key.
func ResolveAll(keys []string, rc Context) []Resolved {
	if len(keys) == 0 {
		return nil
	}
	out := make([]Resolved, 0, len(keys))
	for _, k := range keys {
		out = append(out, Resolve(k, rc))
	}
	return out
}

// CountResolvable reports how many of the resolved keys found a target.
func CountResolvable(rs []Resolved) int {
	n := 0
	for _, r := range rs {
		if r.Resolvable {
			n++
		}
	}
	return n
}

func scalarField(key string, p *dataset.ProfileGT) (string, bool) {
	if p == nil {
		switch key {
		case "profile_gt.risk_level_gt", "profile_gt.horizon_gt", "profile_gt.liquidity_need_gt":
			return "", true
		}
		return "", false
	}
	switch key {
	case "profile_gt.risk_level_gt":
		return p.RiskLevel, true
	case "profile_gt.horizon_gt":
		return p.Horizon, true
	case "profile_gt.liquidity_need_gt":
		return p.LiquidityNeed, true
	}
	return "", false
}

func resolveIndexed(key string, m []string, p *dataset.ProfileGT) Resolved {
	if p == nil {
		return unresolvedKey(key)
	}
	field, items := m[1], p.Constraints
	if field == "preferences_gt" {
		items = p.Preferences
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil || idx < 0 || idx >= len(items) {
		return unresolvedKey(key)
	}
	return resolved(key, items[idx], field)
}

func resolveHistory(key string, m []string, rc Context) Resolved {
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return unresolvedKey(key)
	}
	if n <= len(rc.UserTexts) {
		return resolved(key, rc.UserTexts[n-1], ResolverHistoryUserTurn)
	}
	// The annotation may count raw turns rather than aligned user turns.
	if n <= len(rc.Turns) {
		return resolved(key, rc.Turns[n-1].Text, ResolverHistoryAbsTurn)
	}
	return unresolvedKey(key)
}

func resolved(key, text, resolver string) Resolved {
	if text == "" {
		return unresolvedKey(key)
	}
	return Resolved{Key: key, Resolvable: true, TargetText: text, Resolver: resolver}
}

func unresolvedKey(key string) Resolved {
	return Resolved{Key: key, Resolver: ResolverUnresolved}
}
