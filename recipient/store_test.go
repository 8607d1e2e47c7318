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

	"github.com/google/go-cmp/cmp"
	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/testtype"
	"github.com/mongodb/tenant-migration/common/testutil"
	"github.com/mongodb/tenant-migration/common/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against the replica set named by TENANT_MIGRATION_TESTING_MONGOD.
func TestMongoStoreRoundTrip(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.IntegrationTestType)

	ctx := context.Background()
	client, err := testutil.GetBareSession()
	require.NoError(t, err)

	var written []Document
	store := NewMongoStore(client, func(doc Document) {
		written = append(written, doc)
	})

	database, collection := util.SplitNamespace(db.MigrationRecipientNamespace)
	defer func() {
		_ = client.Database(database).Collection(collection).Drop(ctx)
	}()

	term := int64(3)
	doc := NewDocument(db.NewUUID(), "donor/a.test:27017,b.test:27017", "tenantA",
		ReadPrefSpec{Mode: "primaryPreferred", TagSets: []map[string]string{{"dc": "east"}}})
	doc.State = StateStarted

	require.NoError(t, store.Insert(ctx, doc))

	err = store.Insert(ctx, doc)
	assert.True(t, errors.Is(err, ErrConflictingMigration), "got %v", err)

	got, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("record did not round-trip (-want +got):\n%s", diff)
	}

	next := doc.Clone()
	next.State = StateCopying
	fetching := makeOpTime(100, 1, term)
	next.StartFetchingOpTime = &fetching
	next.StartApplyingOpTime = &fetching
	require.NoError(t, store.Replace(ctx, next))

	got, err = store.FindByID(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCopying, got.State)
	require.NotNil(t, got.StartFetchingOpTime)
	assert.True(t, db.OpTimeEquals(*got.StartFetchingOpTime, *next.StartFetchingOpTime))

	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	missing := db.NewUUID()
	_, err = store.FindByID(ctx, missing)
	assert.True(t, errors.Is(err, ErrNoSuchMigration), "got %v", err)

	orphan := NewDocument(missing, "donor/c.test:27017", "tenantB", ReadPrefSpec{})
	err = store.Replace(ctx, orphan)
	assert.True(t, errors.Is(err, ErrNoSuchMigration), "got %v", err)

	require.Len(t, written, 2, "observer sees every acked write")
	assert.Equal(t, StateStarted, written[0].State)
	assert.Equal(t, StateCopying, written[1].State)
}
