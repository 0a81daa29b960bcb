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

// Package geminijudge scores replies with a Gemini model through the genai
// SDK. Requests are single-shot: one user content carrying the rendered
// scoring prompt, answered in the fixed 评分/理由 format.
package geminijudge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/judge"
)

func init() {
	judge.Register(config.JudgeGemini, func(cfg config.JudgeConfig) (judge.Scorer, error) {
		return New(context.Background(), cfg)
	})
}

// defaultAPIKeyEnv is consulted when the configuration names no variable.
const defaultAPIKeyEnv = "GEMINI_API_KEY"

// Scorer sends scoring prompts to one Gemini model.
type Scorer struct {
	client      *genai.Client
	model       string
	temperature float64
	seed        int
}

// New builds the scorer from the judge configuration block. The context is
// used for client construction only; scoring calls carry their own.
func New(ctx context.Context, cfg config.JudgeConfig) (*Scorer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("geminijudge: model must not be empty")
	}

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("geminijudge: missing API key: set env %s", keyEnv)
	}

	clientCfg := &genai.ClientConfig{APIKey: apiKey}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.TimeoutSec > 0 {
		clientCfg.HTTPClient = &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("geminijudge: create client: %w", err)
	}

	return &Scorer{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		seed:        cfg.Seed,
	}, nil
}

// Score renders the request as a prompt, asks the model once, and parses the
// 评分 line out of the answer.
func (s *Scorer) Score(ctx context.Context, req judge.Request) (float64, error) {
	genCfg := &genai.GenerateContentConfig{}
	if s.temperature != 0 {
		t := float32(s.temperature)
		genCfg.Temperature = &t
	}
	if s.seed != 0 {
		seed := int32(s.seed)
		genCfg.Seed = &seed
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(judge.BuildScorePrompt(req)), genCfg)
	if err != nil {
		return 0, fmt.Errorf("geminijudge: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return 0, fmt.Errorf("geminijudge: empty response")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return judge.ParseScore(text.String())
}
