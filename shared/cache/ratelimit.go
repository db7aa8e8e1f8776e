// Copyright 2025 AxonFlow
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

package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter enforces a per-key request budget over a sliding one minute
// window. With a Redis client the window is shared across replicas; without
// one it is kept in memory.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *log.Logger
	now    func() time.Time

	seq atomic.Uint64

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewRateLimiter allows limitPerMinute requests per key; limitPerMinute <= 0
// disables limiting. client may be nil.
func NewRateLimiter(client *redis.Client, limitPerMinute int, logger *log.Logger) *RateLimiter {
	if logger == nil {
		logger = log.New(os.Stderr, "[RateLimit] ", log.LstdFlags)
	}
	return &RateLimiter{
		client: client,
		limit:  limitPerMinute,
		window: time.Minute,
		logger: logger,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it is within budget
// along with the count in the current window. A limit <= 0 disables limiting.
// Redis errors fail open.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, int) {
	if l.limit <= 0 {
		return true, 0
	}
	if l.client == nil {
		return l.allowMemory(key)
	}

	now := l.now()
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", now.Add(-l.window).UnixNano()))
	pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%d", now.UnixNano(), l.seq.Add(1)),
	})
	pipe.Expire(ctx, redisKey, 2*l.window)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		l.logger.Printf("Redis rate limit check failed for %s: %v (failing open)", key, err)
		return true, 0
	}

	// ZCARD ran before ZADD, so include this request
	count := int(cmds[1].(*redis.IntCmd).Val()) + 1
	return count <= l.limit, count
}

func (l *RateLimiter) allowMemory(key string) (bool, int) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[key][:0]
	for _, ts := range l.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	l.events[key] = kept

	return len(kept) <= l.limit, len(kept)
}

// Limit returns the configured requests per minute
func (l *RateLimiter) Limit() int {
	return l.limit
}
