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

// Package openaichat implements an advisory agent backed by any
// OpenAI-compatible chat completions endpoint. A base URL override makes it
// work against DashScope-style gateways as well as api.openai.com. The
// provider carries no memory layer of its own: each session keeps the running
// message history and the recorder sees empty recall slots.
package openaichat

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

	"github.com/memfin/adviseval/agent"
	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/trace"
)

func init() {
	agent.Register(config.AgentOpenAIChat, func(cfg config.AgentConfig) (agent.Provider, error) {
		return New(cfg)
	})
}

// defaultAPIKeyEnv is consulted when the configuration names no variable.
const defaultAPIKeyEnv = "DASHSCOPE_API_KEY"

// systemPrompt frames the model as a compliance-aware advisory copilot so
// that replayed answers stay comparable with the recorded ground truth.
const systemPrompt = `你是一个专业的智能理财顾问助手，为用户提供证券投资（基金/股票/债券等）的陪伴式咨询服务。

## 核心原则
1. 决策辅助：你是决策辅助工具,不是投资决策者，不做具体的买卖指令建议。
2. 风险提示：始终提供风险提示，不承诺收益。
3. 个性化服务：基于用户画像和历史对话提供个性化建议。
4. 信息透明：说明信息来源和时效性，承认不确定性。

## 服务范围
- 行情信息查询与解读
- 产品（基金/股票/债券）信息介绍
- 风险识别与提示
- 资产配置思路讨论
- 投资教育与知识普及

## 禁止行为
- 给出具体买卖点位或指令
- 承诺投资收益
- 声称有内幕消息
- 做出确定性的市场预测

## 回复要求
1. 回复要专业、客观、有理有据
2. 涉及产品或建议时，必须附带风险提示
3. 当用户画像不完整时，适时询问以完善画像
4. 引用历史对话时说明来源`

// Provider opens sessions against one chat completions endpoint.
type Provider struct {
	client      oai.Client
	model       string
	temperature float64
	maxTokens   int
}

// New builds the provider from the agent configuration block. The API key is
// read from the environment variable named in the configuration.
func New(cfg config.AgentConfig) (*Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openaichat: model must not be empty")
	}

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("openaichat: missing API key: set env %s", keyEnv)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeoutSec > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		}))
	}

	return &Provider{
		client:      oai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// NewSession opens one isolated dialogue session seeded with the system
// prompt.
func (p *Provider) NewSession(ctx context.Context, params agent.SessionParams) (agent.Session, error) {
	return &session{
		p:   p,
		rec: params.Recorder,
		messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
		},
	}, nil
}

type session struct {
	p        *Provider
	rec      *trace.Recorder
	messages []oai.ChatCompletionMessageParamUnion
}

// Advance sends the running conversation plus the new user turn to the
// endpoint and returns the assistant reply. The recorder sees the same event
// sequence as the offline agent; the recall slots stay empty because no
// memory layer sits in front of the model.
func (s *session) Advance(ctx context.Context, userText string) (string, error) {
	start := time.Now()
	s.emit(trace.EventTurnStart, map[string]any{"query": userText})
	s.emit(trace.EventRecallDone, map[string]any{
		"query":              userText,
		"short_term_context": "",
		"short_term_turns":   []any{},
		"profile_context":    "",
		"packed_context":     "",
		"token_count":        0,
		"recalled_items":     []any{},
	})

	reply, err := s.chatOnce(ctx, userText)
	if err != nil {
		return "", err
	}
	s.messages = append(s.messages, oai.UserMessage(userText), oai.AssistantMessage(reply))

	s.emit(trace.EventProfileSnapshot, map[string]any{"profile": map[string]any{}})
	s.emit(trace.EventComplianceDone, map[string]any{
		"needs_modification":    false,
		"is_compliant":          true,
		"violations":            []any{},
		"risk_disclaimer_added": false,
	})
	s.emit(trace.EventTurnEnd, map[string]any{
		"latency_ms":    millisSince(start),
		"final_content": reply,
	})
	return reply, nil
}

func (s *session) chatOnce(ctx context.Context, userText string) (string, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(s.messages)+1)
	messages = append(messages, s.messages...)
	messages = append(messages, oai.UserMessage(userText))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(s.p.model),
		Messages: messages,
	}
	if s.p.temperature > 0 {
		params.Temperature = param.NewOpt(s.p.temperature)
	}
	if s.p.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(s.p.maxTokens))
	}

	resp, err := s.p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openaichat: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openaichat: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *session) Close() error { return nil }

func (s *session) emit(event string, payload map[string]any) {
	if s.rec == nil {
		return
	}
	s.rec.OnEvent(event, payload)
}

func millisSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
