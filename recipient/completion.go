// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package recipient

import (
	"context"
	"sync"
)

// completion is a write-once terminal result. The first resolve latches;
// any number of concurrent observers see the same value forever after.
type completion struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
}

func newCompletion() *completion {
	return &completion{done: make(chan struct{})}
}

// resolve records the outcome. Only the first call has any effect; it
// reports whether this call was the one that latched.
func (c *completion) resolve(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return false
	default:
	}
	c.err = err
	close(c.done)
	return true
}

// ch is closed once the result is latched.
func (c *completion) ch() <-chan struct{} {
	return c.done
}

// result returns the latched outcome. Only meaningful after ch is closed.
func (c *completion) result() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// await blocks until the result is latched or ctx is done.
func (c *completion) await(ctx context.Context) error {
	select {
	case <-c.done:
		return c.result()
	case <-ctx.Done():
		return ctx.Err()
	}
}
