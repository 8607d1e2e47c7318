// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package recipient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/failpoint"
	"github.com/mongodb/tenant-migration/common/log"
	"github.com/mongodb/tenant-migration/common/topology"
	"github.com/mongodb/tenant-migration/common/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"gopkg.in/tomb.v2"
)

// DefaultFindHostTimeout bounds how long a migration waits for a donor
// host satisfying its read preference.
const DefaultFindHostTimeout = 30 * time.Second

// HostResolver picks a donor host matching a read preference within a
// timeout, absorbing failovers by rescanning topology.
type HostResolver interface {
	FindHost(ctx context.Context, rp *readpref.ReadPref, timeout time.Duration) (string, error)
}

// Connector opens the two donor connections to a resolved host.
type Connector interface {
	Connect(ctx context.Context, host string) (*topology.ConnectionPair, error)
}

// Env is the set of collaborators an Instance runs against.
type Env struct {
	Store           Store
	Resolver        HostResolver
	Connector       Connector
	Syncer          Syncer
	Checkpoints     Checkpoints
	FindHostTimeout time.Duration
}

func (e Env) withDefaults() Env {
	if e.Connector == nil {
		e.Connector = topology.DirectConnector{}
	}
	if e.Syncer == nil {
		e.Syncer = NoopSyncer{}
	}
	if e.Checkpoints == nil {
		e.Checkpoints = failpoint.Default()
	}
	if e.FindHostTimeout <= 0 {
		e.FindHostTimeout = DefaultFindHostTimeout
	}
	return e
}

// Instance drives one migration through its states:
//
//	Created → InitialPersist → Connecting → ComputingStartOpTimes →
//	Delegated → Done
//
// The sequence is linear; there are no cycles and no internal retries
// beyond the resolver's bounded rescans. Every durable write strictly
// precedes the step that depends on it, so a fresh primary can rebuild
// the Instance from its record and continue without repeating decisions.
type Instance struct {
	env  Env
	tomb tomb.Tomb

	// mu guards doc and conns. doc is only ever replaced together with a
	// successful durable write, so the store and memory never disagree.
	mu    sync.Mutex
	doc   Document
	conns *topology.ConnectionPair

	completion *completion
}

func newInstance(doc Document, env Env) *Instance {
	return &Instance{
		env:        env,
		doc:        doc.Clone(),
		completion: newCompletion(),
	}
}

// start launches the asynchronous drive. Called exactly once, by the
// Registry.
func (i *Instance) start() {
	i.tomb.Go(i.run)
}

// ID returns the migration identifier.
func (i *Instance) ID() db.UUID {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.doc.ID
}

// Document returns a copy of the current in-memory record.
func (i *Instance) Document() Document {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.doc.Clone()
}

// Connections returns the donor connection pair, or nil before Connecting
// has succeeded.
func (i *Instance) Connections() *topology.ConnectionPair {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.conns
}

// Done is closed once the migration has a terminal outcome. The Instance
// stays queryable after completion; only the Registry tears it down.
func (i *Instance) Done() <-chan struct{} {
	return i.completion.ch()
}

// Err returns the latched terminal outcome; nil means success. Only
// meaningful once Done is closed.
func (i *Instance) Err() error {
	return i.completion.result()
}

// Await blocks until the migration resolves or ctx is done, and returns
// the terminal outcome. Safe to call from any number of goroutines; all
// observe the same value.
func (i *Instance) Await(ctx context.Context) error {
	return i.completion.await(ctx)
}

// interrupt kills the drive with reason; any blocked network wait
// unblocks promptly and no further durable writes are made.
func (i *Instance) interrupt(reason error) {
	i.tomb.Kill(reason)
}

// wait blocks until the drive goroutine has exited.
func (i *Instance) wait() {
	_ = i.tomb.Wait()
}

func (i *Instance) setDoc(doc Document) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.doc = doc
}

func (i *Instance) setConns(conns *topology.ConnectionPair) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.conns = conns
}

func (i *Instance) run() error {
	ctx := i.tomb.Context(nil)

	err := i.drive(ctx)
	switch {
	case errors.Is(err, errStoppedAtCheckpoint):
		// A truncated run is a successful run; everything durable up to
		// the checkpoint is valid.
		err = nil
	case err != nil:
		// When the drive was interrupted, the kill reason is the
		// outcome, not whatever context error the blocked step surfaced.
		if reason := i.tomb.Err(); reason != tomb.ErrStillAlive && reason != nil {
			err = reason
		}
	}

	if conns := i.Connections(); conns != nil {
		if cerr := conns.Close(context.Background()); cerr != nil {
			log.Logvf(log.DebugLow, "closing donor connections: %v", cerr)
		}
	}

	if resolved := i.completion.resolve(err); resolved {
		if err != nil {
			log.Logvf(log.Info, "tenant migration %v failed: %v", i.Document().ID, err)
		} else {
			log.Logvf(log.Info, "tenant migration %v completed", i.Document().ID)
		}
	}
	return err
}

// drive runs the state machine from the record's current state to a
// terminal outcome. Steps already durable in the record are skipped, which
// is what makes step-up resumption free of repeated work.
func (i *Instance) drive(ctx context.Context) error {
	doc := i.Document()

	// InitialPersist. Skipped when the Instance was reconstructed from a
	// durable record.
	if doc.State == StateUninitialized {
		if i.env.Checkpoints.Enabled(FailWhilePersistingStateDoc) {
			return ErrNotWritablePrimary
		}

		next := doc.Clone()
		next.State = StateStarted
		if err := i.env.Store.Insert(ctx, next); err != nil {
			return err
		}
		i.setDoc(next)
		doc = next
		log.Logvf(log.DebugLow, "migration %v: initial record persisted", doc.ID)
	}
	if err := i.boundary(ctx, StopAfterPersistingStateDoc, PauseAfterPersistingStateDoc); err != nil {
		return err
	}

	// Connecting. The donor string must name a replica set; anything else
	// fails before any network I/O, with both connection slots left empty.
	seedlist, setName, err := ParseDonorConnectionString(doc.DonorConnectionString)
	if err != nil {
		return err
	}
	rp, err := doc.ReadPreference.Resolve()
	if err != nil {
		return errors.Wrapf(ErrFailedToParse, "invalid read preference: %v", err)
	}

	host, err := i.env.Resolver.FindHost(ctx, rp, i.env.FindHostTimeout)
	if err != nil {
		return err
	}
	conns, err := i.env.Connector.Connect(ctx, host)
	if err != nil {
		return err
	}
	i.setConns(conns)
	log.Logvf(log.DebugLow, "migration %v: connected to donor %v of set %v (seedlist %v)",
		doc.ID, host, setName, strings.Join(seedlist, ","))

	if err := i.boundary(ctx, StopAfterConnecting, PauseAfterConnecting); err != nil {
		return err
	}

	// ComputingStartOpTimes. Skipped when both optimes are already
	// durable from a previous primary's run.
	if doc.StartFetchingOpTime == nil || doc.StartApplyingOpTime == nil {
		next, err := i.computeStartOpTimes(ctx, doc, conns.General)
		if err != nil {
			return err
		}
		if err := i.env.Store.Replace(ctx, next); err != nil {
			return err
		}
		i.setDoc(next)
		doc = next
	}
	if err := i.boundary(ctx, StopAfterRetrievingStartOpTimes, PauseAfterRetrievingStartOpTimes); err != nil {
		return err
	}

	// Delegated. The cloner/applier's outcome maps directly onto ours.
	times := StartOpTimes{
		StartFetching: *doc.StartFetchingOpTime,
		StartApplying: *doc.StartApplyingOpTime,
	}
	if err := i.env.Syncer.Run(ctx, times, conns); err != nil {
		return err
	}

	// Terminal success is durable too, so a later step-up never
	// resurrects a finished migration.
	next := doc.Clone()
	next.State = StateDone
	if err := i.env.Store.Replace(ctx, next); err != nil {
		return err
	}
	i.setDoc(next)
	return nil
}

// computeStartOpTimes picks the oplog positions the delegated phase must
// start from and returns the record staged with them.
//
// The donor's end-of-log is read twice, with the transaction-table lookup
// in between. The second read becomes startApplyingOpTime and may be
// greater than the first if the donor's log advanced in the window; that
// is expected, not an inconsistency, and deliberately not closed with a
// snapshot read.
func (i *Instance) computeStartOpTimes(
	ctx context.Context,
	doc Document,
	reader topology.OplogReader,
) (Document, error) {
	topOfOplog, err := reader.LastOplogEntry(ctx)
	if err != nil {
		return Document{}, err
	}

	oldestTxn, err := reader.EarliestOpenTransaction(ctx)
	if err != nil {
		return Document{}, err
	}

	if err := i.env.Checkpoints.PauseWhileSet(ctx, PauseAfterRetrievingLastTxn); err != nil {
		return Document{}, err
	}

	startApplying, err := reader.LastOplogEntry(ctx)
	if err != nil {
		return Document{}, err
	}

	// Fetching must begin at the open transaction's first oplog entry, if
	// one predates the top of the log; otherwise at the top itself.
	startFetching := topOfOplog
	if oldestTxn != nil && oldestTxn.StartOpTime != nil &&
		db.OpTimeLessThan(*oldestTxn.StartOpTime, topOfOplog) {
		startFetching = *oldestTxn.StartOpTime
	}

	log.Logvf(log.DebugLow, "migration %v: startFetching %v, startApplying %v",
		doc.ID, startFetching, startApplying)

	next := doc.Clone()
	next.State = StateCopying
	next.StartFetchingOpTime = &startFetching
	next.StartApplyingOpTime = &startApplying
	return next, nil
}

// boundary gates progress at a state boundary: a stop-class checkpoint
// ends the run early (reported as success), a pause-class one blocks
// until cleared.
func (i *Instance) boundary(ctx context.Context, stopName, pauseName string) error {
	if i.env.Checkpoints.Enabled(stopName) {
		return errStoppedAtCheckpoint
	}
	return i.env.Checkpoints.PauseWhileSet(ctx, pauseName)
}

// ParseDonorConnectionString splits a donor connection string into its
// seedlist and replica set name. It accepts either the legacy
// "setName/host1,host2" form or a mongodb:// URI with replicaSet set;
// anything else is a parse failure.
func ParseDonorConnectionString(s string) ([]string, string, error) {
	if strings.Contains(s, "://") {
		cs, err := connstring.Parse(s)
		if err != nil {
			return nil, "", errors.Wrapf(ErrFailedToParse, "donor connection string: %v", err)
		}
		if cs.ReplicaSet == "" {
			return nil, "", errors.Wrapf(ErrFailedToParse,
				"donor connection string %q does not name a replica set", s)
		}
		return cs.Hosts, cs.ReplicaSet, nil
	}

	seedlist, setName := util.SplitHostArg(s)
	if setName == "" {
		return nil, "", errors.Wrapf(ErrFailedToParse,
			"donor connection string %q names a standalone host, not a replica set", s)
	}
	for _, host := range seedlist {
		if host == "" {
			return nil, "", errors.Wrapf(ErrFailedToParse,
				"donor connection string %q has an empty host", s)
		}
	}
	return seedlist, setName, nil
}
