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

// Package config loads and validates the evaluation run configuration from
// YAML. Decoding is strict: unknown fields are an error, so a typo in a knob
// name fails fast instead of silently running with defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Agent provider names accepted by the agent block.
const (
	AgentScripted   = "scripted"
	AgentOpenAIChat = "openai_chat"
)

// Judge provider names accepted by the judge block. An empty provider keeps
// the built-in heuristic scores untouched.
const (
	JudgeHeuristic = "heuristic"
	JudgeOpenAI    = "openai"
	JudgeGemini    = "gemini"
)

// Sentinel policies for the ground-truth placeholders 无明确约束 and 无明确偏好.
const (
	SentinelEmpty   = "empty"
	SentinelLiteral = "literal"
)

var validAgentProviders = map[string]bool{
	AgentScripted:   true,
	AgentOpenAIChat: true,
}

var validJudgeProviders = map[string]bool{
	"":             true,
	JudgeHeuristic: true,
	JudgeOpenAI:    true,
	JudgeGemini:    true,
}

var validSentinelPolicies = map[string]bool{
	SentinelEmpty:   true,
	SentinelLiteral: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Config is the root of an evaluation run configuration.
type Config struct {
	Dataset    string `yaml:"dataset"`
	OutputRoot string `yaml:"output_root"`
	RunID      string `yaml:"run_id"`
	ResumeFrom string `yaml:"resume_from"`

	WorkersDialog    int `yaml:"workers_dialog"`
	WorkersJudge     int `yaml:"workers_judge"`
	TurnTimeoutSec   int `yaml:"turn_timeout_sec"`
	TurnHeartbeatSec int `yaml:"turn_heartbeat_sec"`
	TurnRetries      int `yaml:"turn_retries"`

	Agent     AgentConfig     `yaml:"agent"`
	Judge     JudgeConfig     `yaml:"judge"`
	Eval      EvalConfig      `yaml:"eval"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AgentConfig selects and parameterizes the agent under evaluation.
type AgentConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestTimeoutSec int     `yaml:"request_timeout_sec"`
	ShortTermWindow   int     `yaml:"short_term_window"`
}

// JudgeConfig selects and parameterizes the external judge used to re-score
// explainability and, optionally, constraint contradictions.
type JudgeConfig struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	BaseURL       string  `yaml:"base_url"`
	APIKeyEnv     string  `yaml:"api_key_env"`
	Temperature   float64 `yaml:"temperature"`
	Seed          int     `yaml:"seed"`
	TimeoutSec    int     `yaml:"timeout_sec"`
	Retries       int     `yaml:"retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	CacheSize     int     `yaml:"cache_size"`
}

// EvalConfig holds scoring knobs that change row semantics.
type EvalConfig struct {
	SentinelPolicy         string  `yaml:"sentinel_policy"`
	ContradictionJudge     bool    `yaml:"contradiction_judge"`
	ContradictionThreshold float64 `yaml:"contradiction_threshold"`
}

// StoreConfig configures run artifact persistence beyond the run directory.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// TelemetryConfig configures logging and trace export.
type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogJSON      bool   `yaml:"log_json"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns a runnable configuration: offline scripted agent, heuristic
// judging only, file store only. Only the dataset path is missing.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults, and validates a YAML config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a config from r, applies defaults, and validates.
func LoadFromReader(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			cfg = &Config{}
		} else {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OutputRoot == "" {
		c.OutputRoot = "eval/runs"
	}
	if c.WorkersDialog == 0 {
		c.WorkersDialog = 4
	}
	if c.WorkersJudge == 0 {
		c.WorkersJudge = 1
	}
	if c.TurnTimeoutSec == 0 {
		c.TurnTimeoutSec = 120
	}
	if c.TurnHeartbeatSec == 0 {
		c.TurnHeartbeatSec = 20
	}

	if c.Agent.Provider == "" {
		c.Agent.Provider = AgentScripted
	}
	if c.Agent.Temperature == 0 {
		c.Agent.Temperature = 0.7
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = 2048
	}
	if c.Agent.RequestTimeoutSec == 0 {
		c.Agent.RequestTimeoutSec = 120
	}
	if c.Agent.ShortTermWindow == 0 {
		c.Agent.ShortTermWindow = 8
	}

	if c.Judge.TimeoutSec == 0 {
		c.Judge.TimeoutSec = 60
	}
	if c.Judge.Retries == 0 {
		c.Judge.Retries = 1
	}
	if c.Judge.MaxConcurrent == 0 {
		c.Judge.MaxConcurrent = 4
	}
	if c.Judge.CacheSize == 0 {
		c.Judge.CacheSize = 1024
	}
	if c.Judge.Seed == 0 {
		c.Judge.Seed = 7
	}

	if c.Eval.SentinelPolicy == "" {
		c.Eval.SentinelPolicy = SentinelEmpty
	}
	if c.Eval.ContradictionThreshold == 0 {
		c.Eval.ContradictionThreshold = 2.0
	}

	if c.Telemetry.LogLevel == "" {
		c.Telemetry.LogLevel = "info"
	}
}

// Validate reports every problem in the configuration, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Dataset == "" {
		errs = append(errs, errors.New("dataset: path is required"))
	}
	if c.WorkersDialog < 1 {
		errs = append(errs, fmt.Errorf("workers_dialog: must be >= 1, got %d", c.WorkersDialog))
	}
	if c.WorkersJudge < 1 {
		errs = append(errs, fmt.Errorf("workers_judge: must be >= 1, got %d", c.WorkersJudge))
	}
	if c.TurnTimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("turn_timeout_sec: must be >= 0, got %d", c.TurnTimeoutSec))
	}
	if c.TurnHeartbeatSec < 0 {
		errs = append(errs, fmt.Errorf("turn_heartbeat_sec: must be >= 0, got %d", c.TurnHeartbeatSec))
	}
	if c.TurnRetries < 0 {
		errs = append(errs, fmt.Errorf("turn_retries: must be >= 0, got %d", c.TurnRetries))
	}

	if !validAgentProviders[c.Agent.Provider] {
		errs = append(errs, fmt.Errorf("agent.provider: unknown provider %q", c.Agent.Provider))
	}
	if c.Agent.Provider == AgentOpenAIChat && c.Agent.Model == "" {
		errs = append(errs, errors.New("agent.model: required for the openai_chat provider"))
	}

	if !validJudgeProviders[c.Judge.Provider] {
		errs = append(errs, fmt.Errorf("judge.provider: unknown provider %q", c.Judge.Provider))
	}
	if (c.Judge.Provider == JudgeOpenAI || c.Judge.Provider == JudgeGemini) && c.Judge.Model == "" {
		errs = append(errs, fmt.Errorf("judge.model: required for the %s provider", c.Judge.Provider))
	}

	if !validSentinelPolicies[c.Eval.SentinelPolicy] {
		errs = append(errs, fmt.Errorf("eval.sentinel_policy: must be %q or %q, got %q", SentinelEmpty, SentinelLiteral, c.Eval.SentinelPolicy))
	}
	if c.Eval.ContradictionJudge && c.Judge.Provider == "" {
		errs = append(errs, errors.New("eval.contradiction_judge: requires a judge provider"))
	}
	if c.Eval.ContradictionThreshold < 1 || c.Eval.ContradictionThreshold > 5 {
		errs = append(errs, fmt.Errorf("eval.contradiction_threshold: must be in [1, 5], got %v", c.Eval.ContradictionThreshold))
	}

	if !validLogLevels[c.Telemetry.LogLevel] {
		errs = append(errs, fmt.Errorf("telemetry.log_level: unknown level %q", c.Telemetry.LogLevel))
	}

	return errors.Join(errs...)
}
