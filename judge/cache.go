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

package judge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached wraps a Scorer with an LRU keyed by the request content hash.
// Identical requests hit the cache instead of the provider, which makes
// reruns and retried turns idempotent and cheap.
type Cached struct {
	inner Scorer
	lru   *lru.Cache[string, float64]
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner Scorer, size int) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, float64](size)
	if err != nil {
		return nil, fmt.Errorf("judge cache: %w", err)
	}
	return &Cached{inner: inner, lru: c}, nil
}

// Score returns the cached score when the request was seen before, otherwise
// delegates to the wrapped scorer. Errors are never cached.
func (c *Cached) Score(ctx context.Context, req Request) (float64, error) {
	key := cacheKey(req)
	if score, ok := c.lru.Get(key); ok {
		return score, nil
	}
	score, err := c.inner.Score(ctx, req)
	if err != nil {
		return 0, err
	}
	c.lru.Add(key, score)
	return score, nil
}

// cacheKey hashes all request content. A separator byte keeps adjacent
// fields from colliding ("ab"+"c" vs "a"+"bc").
func cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.ReplyText))
	h.Write([]byte{0})
	for _, r := range req.Requirements {
		h.Write([]byte(r))
		h.Write([]byte{0})
	}
	h.Write([]byte(req.Instruction))
	return hex.EncodeToString(h.Sum(nil))
}
