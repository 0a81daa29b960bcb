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

package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/memfin/adviseval/config"
)

// Registry manages available agent providers by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a provider factory under a name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("agent provider already registered: %s", name)
	}
	r.factories[name] = factory
	return nil
}

// New builds the named provider from the agent configuration block.
func (r *Registry) New(name string, cfg config.AgentConfig) (Provider, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("no agent provider registered: %s", name)
	}
	return factory(cfg)
}

// Names returns all registered provider names, sorted.
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

// DefaultRegistry is the registry provider packages register into on import.
var DefaultRegistry = NewRegistry()

// Register registers a provider factory in the default registry, panicking on
// a duplicate name. Intended for use from provider package init functions.
func Register(name string, factory Factory) {
	if err := DefaultRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}

// New builds the named provider from the default registry.
func New(name string, cfg config.AgentConfig) (Provider, error) {
	return DefaultRegistry.New(name, cfg)
}
