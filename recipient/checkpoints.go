// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package recipient

import (
	"context"

	"github.com/mongodb/tenant-migration/common/failpoint"
	"github.com/pkg/errors"
)

// Named checkpoints the Instance consults at its state boundaries.
//
// Stop-class checkpoints end the run early at the boundary; the truncated
// run is reported as a success, since everything durable up to that point
// is valid. Pause-class checkpoints block the Instance at the boundary
// until cleared, then execution resumes from exactly the suspended state.
// The fail-class checkpoint injects a role error during the initial
// persist.
const (
	StopAfterPersistingStateDoc     = "stopAfterPersistingStateDoc"
	StopAfterConnecting             = "stopAfterConnecting"
	StopAfterRetrievingStartOpTimes = "stopAfterRetrievingStartOpTimes"

	PauseAfterPersistingStateDoc     = "pauseAfterPersistingStateDoc"
	PauseAfterConnecting             = "pauseAfterConnecting"
	PauseAfterRetrievingStartOpTimes = "pauseAfterRetrievingStartOpTimes"

	// PauseAfterRetrievingLastTxn sits between the transaction-table
	// lookup and the second oplog read, so tests can advance the donor's
	// oplog in the window where startApplyingOpTime may outrun the first
	// top-of-oplog read.
	PauseAfterRetrievingLastTxn = "pauseAfterRetrievingLastTxn"

	FailWhilePersistingStateDoc = "failWhilePersistingStateDoc"
)

// errStoppedAtCheckpoint ends a run early at a stop-class checkpoint. It
// never escapes the Instance; the run is reported as a success.
var errStoppedAtCheckpoint = errors.New("stopped at checkpoint")

// Checkpoints gates the Instance's progress at its named checkpoints. The
// production default is the process-wide failpoint registry; tests inject
// their own registry for deterministic control.
type Checkpoints interface {
	// Enabled evaluates the named point, counting an entry when it fires.
	Enabled(name string) bool

	// PauseWhileSet blocks while the named point is enabled, returning
	// the context error if interrupted.
	PauseWhileSet(ctx context.Context, name string) error
}

var _ Checkpoints = (*failpoint.Registry)(nil)
