// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package recipient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/testtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	h := newHarness(t)
	h.checkpoints.Enable(PauseAfterPersistingStateDoc)

	doc := h.newDoc("primary")
	first, err := h.registry.GetOrCreate(doc)
	require.NoError(t, err)

	second, err := h.registry.GetOrCreate(doc)
	require.NoError(t, err)
	assert.Same(t, first, second, "same identifier must yield the same instance")

	found, ok := h.registry.Lookup(doc.ID)
	require.True(t, ok)
	assert.Same(t, first, found)

	h.checkpoints.Disable(PauseAfterPersistingStateDoc)
}

func TestGetOrCreateConflict(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	h := newHarness(t)
	h.checkpoints.Enable(PauseAfterPersistingStateDoc)

	doc := h.newDoc("primary")
	_, err := h.registry.GetOrCreate(doc)
	require.NoError(t, err)

	other := doc.Clone()
	other.TenantID = "tenantB"
	_, err = h.registry.GetOrCreate(other)
	assert.True(t, errors.Is(err, ErrConflictingMigration), "got %v", err)

	other = doc.Clone()
	other.ReadPreference = ReadPrefSpec{Mode: "secondary"}
	_, err = h.registry.GetOrCreate(other)
	assert.True(t, errors.Is(err, ErrConflictingMigration), "got %v", err)

	h.checkpoints.Disable(PauseAfterPersistingStateDoc)
}

func TestGetOrCreateNotPrimary(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	h := newHarness(t)
	h.registry.OnStepDown()

	_, err := h.registry.GetOrCreate(h.newDoc("primary"))
	assert.True(t, errors.Is(err, ErrNotWritablePrimary), "got %v", err)
}

func TestCompletedInstanceStaysQueryable(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	h := newHarness(t)

	doc := h.newDoc("primary")
	inst, err := h.registry.GetOrCreate(doc)
	require.NoError(t, err)
	require.NoError(t, awaitOutcome(t, inst))

	// Completion does not remove the instance; Release does.
	found, ok := h.registry.Lookup(doc.ID)
	require.True(t, ok)
	assert.Same(t, inst, found)
	assert.NoError(t, found.Err())

	h.registry.Release(doc.ID)
	_, ok = h.registry.Lookup(doc.ID)
	assert.False(t, ok)
}

func TestReleaseInterruptsRunningInstance(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	h := newHarness(t)
	h.checkpoints.Enable(PauseAfterConnecting)

	doc := h.newDoc("primary")
	inst, err := h.registry.GetOrCreate(doc)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.checkpoints.WaitForTimesEntered(ctx, PauseAfterConnecting, 1))

	h.registry.Release(doc.ID)
	_, ok := h.registry.Lookup(doc.ID)
	assert.False(t, ok)

	// Release waited for the drive to exit; the outcome is latched.
	select {
	case <-inst.Done():
	default:
		t.Fatal("released instance did not resolve")
	}
	assert.Error(t, inst.Err())
}

func TestStepCycleResumesInterruptedInstance(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	h := newHarness(t)
	h.checkpoints.Enable(PauseAfterConnecting)

	doc := h.newDoc("primary")
	inst, err := h.registry.GetOrCreate(doc)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.checkpoints.WaitForTimesEntered(ctx, PauseAfterConnecting, 1))

	h.registry.OnStepDown()
	assert.True(t, errors.Is(inst.Err(), ErrNotWritablePrimary), "got %v", inst.Err())

	// The interrupted instance is gone from the registry; only its durable
	// record survives the step cycle.
	_, ok := h.registry.Lookup(doc.ID)
	assert.False(t, ok)
	stored, err := h.store.FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StateStarted, stored.State)

	h.checkpoints.Disable(PauseAfterConnecting)
	require.NoError(t, h.registry.OnStepUpComplete(context.Background(), 2))

	resumed, ok := h.registry.Lookup(doc.ID)
	require.True(t, ok)
	assert.NotSame(t, inst, resumed, "step-up must rebuild the instance from its record")
	require.NoError(t, awaitOutcome(t, resumed))

	stored, err = h.store.FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDone, stored.State)
}

func TestStepUpResumesNonTerminalRecords(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	h := newHarness(t)
	h.registry.OnStepDown()

	// A record past the optime computation: resumption must not touch the
	// donor's oplog or transaction table again.
	fetching := makeOpTime(90, 1, 1)
	applying := makeOpTime(100, 1, 1)
	copying := h.newDoc("primary")
	copying.State = StateCopying
	copying.StartFetchingOpTime = &fetching
	copying.StartApplyingOpTime = &applying
	h.store.seed(copying)

	// A record that only got through its initial persist: the optimes are
	// recomputed from the donor's current state.
	started := h.newDoc("primary")
	started.State = StateStarted
	h.store.seed(started)

	// A finished record: never resumed.
	finished := h.newDoc("primary")
	finished.State = StateDone
	h.store.seed(finished)

	require.NoError(t, h.registry.OnStepUpComplete(context.Background(), 2))
	assert.Equal(t, int64(2), h.registry.Term())

	copyingInst, ok := h.registry.Lookup(copying.ID)
	require.True(t, ok)
	startedInst, ok := h.registry.Lookup(started.ID)
	require.True(t, ok)
	_, ok = h.registry.Lookup(finished.ID)
	assert.False(t, ok, "terminal record must not be resumed")

	require.NoError(t, awaitOutcome(t, copyingInst))
	require.NoError(t, awaitOutcome(t, startedInst))

	// The copying record's durable optimes survived the resumption.
	doc := copyingInst.Document()
	assert.Equal(t, StateDone, doc.State)
	require.NotNil(t, doc.StartFetchingOpTime)
	assert.True(t, db.OpTimeEquals(*doc.StartFetchingOpTime, fetching))
	assert.True(t, db.OpTimeEquals(*doc.StartApplyingOpTime, applying))

	// The started record recomputed optimes from the donor's current top.
	doc = startedInst.Document()
	assert.Equal(t, StateDone, doc.State)
	require.NotNil(t, doc.StartFetchingOpTime)
	assert.True(t, db.OpTimeEquals(*doc.StartFetchingOpTime, makeOpTime(100, 1, 1)))
}

func TestStepUpSkipsRepeatedOptimeReads(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	h := newHarness(t)
	h.registry.OnStepDown()

	fetching := makeOpTime(90, 1, 1)
	applying := makeOpTime(100, 1, 1)
	doc := h.newDoc("primary")
	doc.State = StateCopying
	doc.StartFetchingOpTime = &fetching
	doc.StartApplyingOpTime = &applying
	h.store.seed(doc)

	require.NoError(t, h.registry.OnStepUpComplete(context.Background(), 2))
	inst, ok := h.registry.Lookup(doc.ID)
	require.True(t, ok)
	require.NoError(t, awaitOutcome(t, inst))

	assert.Equal(t, 0, h.donor.readCount(),
		"durable optimes must not be recomputed on resumption")
}

func TestShutdownResolvesEverything(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	h := newHarness(t)
	h.checkpoints.Enable(PauseAfterConnecting)

	var insts []*Instance
	for range [3]struct{}{} {
		inst, err := h.registry.GetOrCreate(h.newDoc("primary"))
		require.NoError(t, err)
		insts = append(insts, inst)
	}

	h.registry.Shutdown()

	for _, inst := range insts {
		select {
		case <-inst.Done():
		default:
			t.Fatal("instance still unresolved after shutdown")
		}
		assert.True(t, errors.Is(inst.Err(), ErrNotWritablePrimary), "got %v", inst.Err())
	}
}

func TestDocumentClone(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	term := int64(1)
	ot := db.OpTime{Term: &term}
	doc := NewDocument(db.NewUUID(), "donor/a:27017", "tenantA",
		ReadPrefSpec{Mode: "nearest", TagSets: []map[string]string{{"dc": "east"}}})
	doc.StartFetchingOpTime = &ot

	clone := doc.Clone()
	clone.StartFetchingOpTime.Timestamp.T = 42
	*clone.StartFetchingOpTime.Term = 9
	clone.ReadPreference.TagSets[0]["dc"] = "west"

	assert.Equal(t, uint32(0), doc.StartFetchingOpTime.Timestamp.T)
	assert.Equal(t, int64(1), *doc.StartFetchingOpTime.Term)
	assert.Equal(t, "east", doc.ReadPreference.TagSets[0]["dc"])
}
