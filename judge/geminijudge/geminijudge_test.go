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

package geminijudge

import (
	"context"
	"strings"
	"testing"

	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/judge"
)

func TestNewRequiresModel(t *testing.T) {
	if _, err := New(context.Background(), config.JudgeConfig{Provider: config.JudgeGemini}); err == nil {
		t.Fatal("New with empty model should fail")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("ADVISEVAL_UNSET_KEY", "")
	_, err := New(context.Background(), config.JudgeConfig{
		Provider:  config.JudgeGemini,
		Model:     "gemini-2.5-flash",
		APIKeyEnv: "ADVISEVAL_UNSET_KEY",
	})
	if err == nil {
		t.Fatal("New with missing API key should fail")
	}
	if !strings.Contains(err.Error(), "ADVISEVAL_UNSET_KEY") {
		t.Errorf("error %q does not name the missing variable", err)
	}
}

func TestNewBuildsClient(t *testing.T) {
	t.Setenv("ADVISEVAL_TEST_KEY", "test-key")
	s, err := New(context.Background(), config.JudgeConfig{
		Provider:   config.JudgeGemini,
		Model:      "gemini-2.5-flash",
		APIKeyEnv:  "ADVISEVAL_TEST_KEY",
		TimeoutSec: 30,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.client == nil || s.model != "gemini-2.5-flash" {
		t.Errorf("scorer not initialized: client=%v model=%q", s.client, s.model)
	}
}

func TestRegistered(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	s, err := judge.New(config.JudgeGemini, config.JudgeConfig{Model: "gemini-2.5-flash"})
	if err != nil {
		t.Fatalf("judge.New(%q): %v", config.JudgeGemini, err)
	}
	if _, ok := s.(*Scorer); !ok {
		t.Errorf("registered scorer has type %T, want *geminijudge.Scorer", s)
	}
}
