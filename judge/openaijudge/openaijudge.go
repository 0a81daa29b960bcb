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

// Package openaijudge scores replies through any OpenAI-compatible chat
// completions endpoint. Requests are single-shot: one user message carrying
// the rendered scoring prompt, answered in the fixed 评分/理由 format.
package openaijudge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/judge"
)

func init() {
	judge.Register(config.JudgeOpenAI, func(cfg config.JudgeConfig) (judge.Scorer, error) {
		return New(cfg)
	})
}

// defaultAPIKeyEnv is consulted when the configuration names no variable.
const defaultAPIKeyEnv = "DASHSCOPE_API_KEY"

// Scorer sends scoring prompts to one chat completions endpoint.
type Scorer struct {
	client      oai.Client
	model       string
	temperature float64
	seed        int
}

// New builds the scorer from the judge configuration block. The API key is
// read from the environment variable named in the configuration.
func New(cfg config.JudgeConfig) (*Scorer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openaijudge: model must not be empty")
	}

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("openaijudge: missing API key: set env %s", keyEnv)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSec > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		}))
	}

	return &Scorer{
		client:      oai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		seed:        cfg.Seed,
	}, nil
}

// Score renders the request as a prompt, asks the model once, and parses the
// 评分 line out of the answer.
func (s *Scorer) Score(ctx context.Context, req judge.Request) (float64, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(judge.BuildScorePrompt(req)),
		},
	}
	if s.temperature != 0 {
		params.Temperature = param.NewOpt(s.temperature)
	}
	if s.seed != 0 {
		params.Seed = param.NewOpt(int64(s.seed))
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("openaijudge: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("openaijudge: empty choices in response")
	}
	return judge.ParseScore(resp.Choices[0].Message.Content)
}
