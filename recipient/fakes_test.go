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

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/failpoint"
	"github.com/mongodb/tenant-migration/common/topology"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

//// In-memory store with per-operation error injection.

type fakeStore struct {
	mu         sync.Mutex
	docs       map[db.UUID]Document
	insertErr  error
	replaceErr error
	writes     int
	observer   WriteObserver
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[db.UUID]Document)}
}

func (s *fakeStore) Insert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.docs[doc.ID]; ok {
		return errors.Wrapf(ErrConflictingMigration, "record %v already exists", doc.ID)
	}
	s.docs[doc.ID] = doc.Clone()
	s.writes++
	if s.observer != nil {
		s.observer(doc.Clone())
	}
	return nil
}

func (s *fakeStore) FindByID(ctx context.Context, id db.UUID) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, errors.Wrapf(ErrNoSuchMigration, "%v", id)
	}
	return doc.Clone(), nil
}

func (s *fakeStore) Replace(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	if _, ok := s.docs[doc.ID]; !ok {
		return errors.Wrapf(ErrNoSuchMigration, "%v", doc.ID)
	}
	s.docs[doc.ID] = doc.Clone()
	s.writes++
	if s.observer != nil {
		s.observer(doc.Clone())
	}
	return nil
}

func (s *fakeStore) FindAll(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc.Clone())
	}
	return docs, nil
}

func (s *fakeStore) seed(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc.Clone()
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

//// Fake donor: one shared oplog/transaction-table state, any number of
//// connections onto it.

type fakeDonor struct {
	mu         sync.Mutex
	top        db.OpTime
	txn        *db.SessionTxnRecord
	readErr    error
	oplogReads int
	txnReads   int
}

func newFakeDonor(top db.OpTime) *fakeDonor {
	return &fakeDonor{top: top}
}

func (d *fakeDonor) setTop(top db.OpTime) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.top = top
}

func (d *fakeDonor) setOpenTxn(txn *db.SessionTxnRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txn = txn
}

func (d *fakeDonor) failReads(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

func (d *fakeDonor) readCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.oplogReads + d.txnReads
}

type fakeConn struct {
	donor *fakeDonor
	addr  string
}

var _ topology.OplogReader = (*fakeConn)(nil)

func (c *fakeConn) LastOplogEntry(ctx context.Context) (db.OpTime, error) {
	if err := ctx.Err(); err != nil {
		return db.OpTime{}, err
	}
	c.donor.mu.Lock()
	defer c.donor.mu.Unlock()
	c.donor.oplogReads++
	if c.donor.readErr != nil {
		return db.OpTime{}, c.donor.readErr
	}
	return c.donor.top, nil
}

func (c *fakeConn) EarliestOpenTransaction(ctx context.Context) (*db.SessionTxnRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.donor.mu.Lock()
	defer c.donor.mu.Unlock()
	c.donor.txnReads++
	if c.donor.readErr != nil {
		return nil, c.donor.readErr
	}
	return c.donor.txn, nil
}

func (c *fakeConn) Address() string { return c.addr }

func (c *fakeConn) Close(context.Context) error { return nil }

type fakeConnector struct {
	donor *fakeDonor

	mu       sync.Mutex
	hosts    []string
	dialErr  error
	attempts int
}

var _ Connector = (*fakeConnector)(nil)

func (c *fakeConnector) Connect(ctx context.Context, host string) (*topology.ConnectionPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.dialErr != nil {
		return nil, c.dialErr
	}
	c.hosts = append(c.hosts, host)
	return &topology.ConnectionPair{
		General:      &fakeConn{donor: c.donor, addr: host},
		OplogFetcher: &fakeConn{donor: c.donor, addr: host},
	}, nil
}

func (c *fakeConnector) connectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

//// Harness wiring a registry to a simulated donor set.

type harness struct {
	set         *topology.SimulatedReplicaSet
	store       *fakeStore
	donor       *fakeDonor
	connector   *fakeConnector
	checkpoints *failpoint.Registry
	registry    *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		set:         topology.NewSimulatedReplicaSet("donor", 3),
		store:       newFakeStore(),
		donor:       newFakeDonor(makeOpTime(100, 1, 1)),
		checkpoints: failpoint.NewRegistry(),
	}
	h.connector = &fakeConnector{donor: h.donor}
	h.registry = NewRegistry(Env{
		Store:           h.store,
		Resolver:        topology.NewResolver(h.set).WithScanInterval(time.Millisecond),
		Connector:       h.connector,
		Checkpoints:     h.checkpoints,
		FindHostTimeout: time.Second,
	})

	if err := h.registry.OnStepUpComplete(context.Background(), 1); err != nil {
		t.Fatalf("step-up failed: %v", err)
	}
	t.Cleanup(h.registry.Shutdown)
	return h
}

func (h *harness) newDoc(mode string) Document {
	return NewDocument(
		db.NewUUID(),
		h.set.ConnectionString(),
		"tenantA",
		ReadPrefSpec{Mode: mode},
	)
}

func makeOpTime(t uint32, i uint32, term int64) db.OpTime {
	return db.OpTime{
		Timestamp: primitive.Timestamp{T: t, I: i},
		Term:      &term,
	}
}

func awaitOutcome(t *testing.T, inst *Instance) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := inst.Await(ctx)
	if ctx.Err() != nil {
		t.Fatal("timed out waiting for migration outcome")
	}
	return err
}
