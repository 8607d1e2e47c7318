// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package recipient

import (
	"context"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/topology"
)

// StartOpTimes are the donor oplog positions the delegated phase starts
// from. StartFetching is never greater than StartApplying.
type StartOpTimes struct {
	StartFetching db.OpTime
	StartApplying db.OpTime
}

// Syncer is the delegated cloning/applying phase: it bulk-copies the
// tenant's data and applies donor oplog entries from the start optimes
// onward. Its error becomes the migration's terminal outcome.
type Syncer interface {
	Run(ctx context.Context, times StartOpTimes, conns *topology.ConnectionPair) error
}

// SyncerFunc adapts a function to the Syncer interface.
type SyncerFunc func(ctx context.Context, times StartOpTimes, conns *topology.ConnectionPair) error

func (f SyncerFunc) Run(
	ctx context.Context,
	times StartOpTimes,
	conns *topology.ConnectionPair,
) error {
	return f(ctx, times, conns)
}

// NoopSyncer completes immediately. It stands in until a cloner/applier
// is wired up, and serves tests that only exercise the state machine.
type NoopSyncer struct{}

func (NoopSyncer) Run(context.Context, StartOpTimes, *topology.ConnectionPair) error {
	return nil
}
