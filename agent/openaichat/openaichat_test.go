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

package openaichat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/memfin/adviseval/agent"
	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/trace"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// chatStub is a minimal OpenAI-compatible completions endpoint that records
// every request body and replies with a canned assistant message.
type chatStub struct {
	mu       sync.Mutex
	requests []capturedRequest
	replies  []string
}

func (c *chatStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()

		var req capturedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.requests = append(c.requests, req)

		reply := "默认回复"
		if len(c.replies) > 0 {
			reply = c.replies[0]
			c.replies = c.replies[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "chatcmpl-test",
			"object": "chat.completion",
			"created": 0,
			"model": %q,
			"choices": [
				{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}
			]
		}`, req.Model, reply)
	})
}

func newTestSession(t *testing.T, stub *chatStub, rec *trace.Recorder) agent.Session {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	t.Setenv("ADVISEVAL_TEST_KEY", "sk-test")

	p, err := New(config.AgentConfig{
		Provider:  config.AgentOpenAIChat,
		Model:     "qwen-plus",
		BaseURL:   srv.URL,
		APIKeyEnv: "ADVISEVAL_TEST_KEY",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess, err := p.NewSession(context.Background(), agent.SessionParams{
		SessionID: "eval_session_test",
		UserID:    "eval_user_test",
		Recorder:  rec,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New(config.AgentConfig{Provider: config.AgentOpenAIChat})
	if err == nil {
		t.Fatal("New with empty model should fail")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("ADVISEVAL_UNSET_KEY", "")
	_, err := New(config.AgentConfig{
		Provider:  config.AgentOpenAIChat,
		Model:     "qwen-plus",
		APIKeyEnv: "ADVISEVAL_UNSET_KEY",
	})
	if err == nil {
		t.Fatal("New with missing API key should fail")
	}
	if !strings.Contains(err.Error(), "ADVISEVAL_UNSET_KEY") {
		t.Errorf("error should name the env var, got: %v", err)
	}
}

func TestAdvanceSendsSystemPromptAndUserTurn(t *testing.T) {
	stub := &chatStub{replies: []string{"建议关注稳健型基金，投资有风险。"}}
	sess := newTestSession(t, stub, nil)

	got, err := sess.Advance(context.Background(), "我想了解基金定投")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got != "建议关注稳健型基金，投资有风险。" {
		t.Errorf("Advance reply = %q", got)
	}

	if len(stub.requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(stub.requests))
	}
	req := stub.requests[0]
	if req.Model != "qwen-plus" {
		t.Errorf("model = %q, want qwen-plus", req.Model)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("got %d messages, want system+user", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[0].Content, "风险提示") {
		t.Errorf("first message should be the advisory system prompt, got role=%q", req.Messages[0].Role)
	}
	if req.Messages[1].Role != "user" || req.Messages[1].Content != "我想了解基金定投" {
		t.Errorf("second message = %+v, want the user turn", req.Messages[1])
	}
}

func TestAdvanceKeepsHistoryAcrossTurns(t *testing.T) {
	stub := &chatStub{replies: []string{"第一轮回复。", "第二轮回复。"}}
	sess := newTestSession(t, stub, nil)

	if _, err := sess.Advance(context.Background(), "我风险偏好保守"); err != nil {
		t.Fatalf("Advance 1: %v", err)
	}
	if _, err := sess.Advance(context.Background(), "那买什么合适"); err != nil {
		t.Fatalf("Advance 2: %v", err)
	}

	if len(stub.requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(stub.requests))
	}
	second := stub.requests[1]
	// system, user1, assistant1, user2
	if len(second.Messages) != 4 {
		t.Fatalf("second request has %d messages, want 4", len(second.Messages))
	}
	if second.Messages[2].Role != "assistant" || second.Messages[2].Content != "第一轮回复。" {
		t.Errorf("history should carry the first reply, got %+v", second.Messages[2])
	}
	if second.Messages[3].Content != "那买什么合适" {
		t.Errorf("last message = %+v, want the new user turn", second.Messages[3])
	}
}

func TestAdvanceEmitsEmptyRecallEvents(t *testing.T) {
	stub := &chatStub{replies: []string{"回复内容。"}}
	rec := trace.NewRecorder()
	sess := newTestSession(t, stub, rec)

	rec.StartTurn(1)
	if _, err := sess.Advance(context.Background(), "你好"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got := rec.TurnPayload(1)
	if got.Recall == nil {
		t.Fatal("recall_done should be recorded")
	}
	if got.Recall.PackedContext != "" || got.Recall.TokenCount != 0 || len(got.Recall.Items) != 0 {
		t.Errorf("recall should be empty, got %+v", got.Recall)
	}
	if got.Compliance == nil || !got.Compliance.IsCompliant {
		t.Errorf("compliance should default to compliant, got %+v", got.Compliance)
	}
	if got.ProfileSnapshot == nil {
		t.Error("profile_snapshot should be recorded even when empty")
	}
	if got.FinalContent != "回复内容。" {
		t.Errorf("final content = %q", got.FinalContent)
	}
}

func TestAdvanceSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 400 is not retried by the SDK, so the test fails fast.
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("ADVISEVAL_TEST_KEY", "sk-test")

	p, err := New(config.AgentConfig{
		Provider:  config.AgentOpenAIChat,
		Model:     "qwen-plus",
		BaseURL:   srv.URL,
		APIKeyEnv: "ADVISEVAL_TEST_KEY",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess, err := p.NewSession(context.Background(), agent.SessionParams{SessionID: "s", UserID: "u"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := sess.Advance(context.Background(), "你好"); err == nil {
		t.Fatal("Advance should surface the endpoint error")
	}
}
