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

// Package judge scores assistant replies against requirement lists on a
// 1 to 5 scale. It defines the Scorer interface, a provider registry, an
// LRU-cached wrapper so reruns and retries never pay twice for the same
// request, and a bounded scoring pool that fans requests out to workers
// while a shared semaphore caps in-flight provider calls.
package judge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/memfin/adviseval/config"
)

// Request is one scoring job: a reply judged against a requirement list.
// Instruction optionally refines what the score should express, for example
// constraint adherence instead of requirement coverage.
type Request struct {
	ReplyText    string
	Requirements []string
	Instruction  string
}

// Scorer produces a score in [1,5] for one request.
type Scorer interface {
	Score(ctx context.Context, req Request) (float64, error)
}

// Factory builds a Scorer from the judge configuration block.
type Factory func(cfg config.JudgeConfig) (Scorer, error)

// Registry manages available judge providers by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty judge registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a judge factory under a name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("judge provider already registered: %s", name)
	}
	r.factories[name] = factory
	return nil
}

// New builds the named judge from the judge configuration block.
func (r *Registry) New(name string, cfg config.JudgeConfig) (Scorer, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("no judge provider registered: %s", name)
	}
	return factory(cfg)
}

// Names returns all registered judge names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the registry judge packages register into on import.
var DefaultRegistry = NewRegistry()

// Register registers a judge factory in the default registry, panicking on a
// duplicate name. Intended for use from provider package init functions.
func Register(name string, factory Factory) {
	if err := DefaultRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}

// New builds the named judge from the default registry.
func New(name string, cfg config.JudgeConfig) (Scorer, error) {
	return DefaultRegistry.New(name, cfg)
}
