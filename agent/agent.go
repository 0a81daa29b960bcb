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

// Package agent defines the collaborator the replay engine drives: an
// advisory agent provider that opens isolated per-dialogue sessions, answers
// user turns, and reports its internal steps through a trace recorder.
package agent

import (
	"context"

	"github.com/memfin/adviseval/config"
	"github.com/memfin/adviseval/trace"
)

// SessionParams carries everything a provider needs to open one dialogue
// session. Replay derives SessionID and UserID from the dialogue id, and
// StateDir points at a per-dialogue directory no other session shares.
type SessionParams struct {
	SessionID string
	UserID    string
	StateDir  string
	Recorder  *trace.Recorder
}

// Session is one isolated conversation with the agent under evaluation.
// Sessions are driven serially: Advance is never called concurrently on the
// same session.
type Session interface {
	// Advance feeds one user turn and returns the agent's reply.
	// Implementations must honor ctx cancellation; the replay engine
	// abandons the call once its turn deadline passes.
	Advance(ctx context.Context, userText string) (string, error)

	// Close releases per-session resources. Called once after the last turn.
	Close() error
}

// Provider opens sessions against one agent implementation.
type Provider interface {
	NewSession(ctx context.Context, params SessionParams) (Session, error)
}

// Factory builds a Provider from the agent configuration block.
type Factory func(cfg config.AgentConfig) (Provider, error)
