// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package syncutil holds small generic concurrency helpers shared
// across the codebase, grown on demand rather than as a catch-all.
package syncutil

import (
	"context"
	"sync"
)

// AsyncTaskNotifier coordinates a background goroutine's lifecycle with
// its owner: Context is canceled to ask the goroutine to stop, and
// Finish/BlockUntilFinish let the owner wait for it to actually exit.
// pkg/log's async write core is this type's only consumer.
type AsyncTaskNotifier[T any] struct {
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
	finishCh chan T
}

// NewAsyncTaskNotifier creates a notifier in the running state.
func NewAsyncTaskNotifier[T any]() *AsyncTaskNotifier[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncTaskNotifier[T]{
		ctx:      ctx,
		cancel:   cancel,
		finishCh: make(chan T, 1),
	}
}

// Context is canceled once Cancel is called; the background goroutine
// should select on Context().Done() to know when to wind down.
func (n *AsyncTaskNotifier[T]) Context() context.Context {
	return n.ctx
}

// Cancel signals the background goroutine to stop.
func (n *AsyncTaskNotifier[T]) Cancel() {
	n.cancel()
}

// Finish records the goroutine's final result and unblocks any
// BlockUntilFinish caller. Safe to call at most meaningfully once; later
// calls are no-ops.
func (n *AsyncTaskNotifier[T]) Finish(result T) {
	n.once.Do(func() {
		n.finishCh <- result
		close(n.finishCh)
	})
}

// BlockUntilFinish waits for Finish and returns its result.
func (n *AsyncTaskNotifier[T]) BlockUntilFinish() T {
	return <-n.finishCh
}
