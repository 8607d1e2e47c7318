// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package recipient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mongodb/tenant-migration/common/testtype"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionFirstResolveWins(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	c := newCompletion()
	first := errors.New("first")

	assert.True(t, c.resolve(first))
	assert.False(t, c.resolve(errors.New("second")))
	assert.False(t, c.resolve(nil))
	assert.Equal(t, first, c.result())
}

func TestCompletionConcurrentObservers(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	c := newCompletion()
	want := errors.New("outcome")

	var wg sync.WaitGroup
	results := make([]error, 8)
	for n := range results {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = c.await(context.Background())
		}(n)
	}

	c.resolve(want)
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestCompletionAwaitHonorsContext(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	c := newCompletion()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.await(ctx)
	require.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, err)

	select {
	case <-c.ch():
		t.Fatal("an abandoned wait must not resolve the completion")
	default:
	}
}
