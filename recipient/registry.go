// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package recipient

import (
	"context"
	"sync"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/log"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"
)

// Registry is the process-wide authority over running migrations: it owns
// the identifier→Instance mapping and this node's primary/secondary role.
// Role transitions are explicit calls, never inferred.
type Registry struct {
	env Env

	mu        sync.Mutex
	instances map[db.UUID]*Instance
	primary   bool
	term      int64
}

// errReleased interrupts an Instance that an operator removed from the
// registry while it was still running.
var errReleased = errors.New("migration released from registry")

// NewRegistry returns a Registry over env. The node starts as a
// secondary; nothing runs until OnStepUpComplete.
func NewRegistry(env Env) *Registry {
	return &Registry{
		env:       env.withDefaults(),
		instances: make(map[db.UUID]*Instance),
	}
}

// Term returns the term of the last step-up.
func (r *Registry) Term() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.term
}

// GetOrCreate returns the running Instance for doc's identifier, creating
// and starting one from doc if none exists. It is idempotent by
// identifier: an existing Instance is returned unchanged and doc is
// ignored, unless doc disagrees on an immutable field, which is a
// conflict. Fails with a role error when this node is not primary.
func (r *Registry) GetOrCreate(doc Document) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.primary {
		return nil, errors.Wrap(ErrNotWritablePrimary, "cannot start tenant migration")
	}

	if existing, ok := r.instances[doc.ID]; ok {
		if !existing.Document().SameImmutableFields(doc) {
			return nil, errors.Wrapf(ErrConflictingMigration,
				"migration %v is already running with different options", doc.ID)
		}
		return existing, nil
	}

	inst := newInstance(doc, r.env)
	r.instances[doc.ID] = inst
	inst.start()
	log.Logvf(log.Info, "started tenant migration %v for tenant %q from donor %q",
		doc.ID, doc.TenantID, doc.DonorConnectionString)
	return inst, nil
}

// Lookup returns the running Instance for id, if any.
func (r *Registry) Lookup(id db.UUID) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Release tears down the Instance for id. Completion alone never removes
// an Instance; its result stays queryable until this call.
func (r *Registry) Release(id db.UUID) {
	r.mu.Lock()
	inst, ok := r.instances[id]
	delete(r.instances, id)
	r.mu.Unlock()

	if ok {
		inst.interrupt(errReleased)
		inst.wait()
	}
}

// OnStepDown marks the node secondary, signals every running Instance to
// stop with a role error, and waits for them to wind down. Blocked
// network waits unblock promptly; no further durable writes are
// attempted. Instances cut short are dropped from the registry so the
// next step-up reconstructs them from their durable records; finished
// migrations stay queryable.
func (r *Registry) OnStepDown() {
	r.mu.Lock()
	r.primary = false
	running := maps.Values(r.instances)
	r.mu.Unlock()

	log.Logvf(log.Info, "stepping down; interrupting %d running migration(s)", len(running))
	for _, inst := range running {
		inst.interrupt(ErrNotWritablePrimary)
	}
	for _, inst := range running {
		inst.wait()
	}

	r.mu.Lock()
	for id, inst := range r.instances {
		if !inst.Document().State.Terminal() {
			delete(r.instances, id)
		}
	}
	r.mu.Unlock()
}

// OnStepUpComplete marks the node primary for term and resumes an
// Instance for every persisted record whose state is non-terminal, in
// parallel. Resumption never repeats durable decisions: records past
// the initial insert skip it, and records with both start optimes skip
// their recomputation.
func (r *Registry) OnStepUpComplete(ctx context.Context, term int64) error {
	r.mu.Lock()
	r.primary = true
	r.term = term
	r.mu.Unlock()

	docs, err := r.env.Store.FindAll(ctx)
	if err != nil {
		return errors.Wrap(err, "scanning migration records on step-up")
	}

	var g errgroup.Group
	for _, doc := range docs {
		if doc.State.Terminal() || doc.State == StateUninitialized {
			continue
		}
		doc := doc
		g.Go(func() error {
			_, err := r.GetOrCreate(doc)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Logvf(log.Info, "step-up complete for term %d", term)
	return nil
}

// Shutdown interrupts everything and waits for all Instances to finish.
// The registry is not usable afterward.
func (r *Registry) Shutdown() {
	r.OnStepDown()

	r.mu.Lock()
	running := maps.Values(r.instances)
	r.instances = make(map[db.UUID]*Instance)
	r.mu.Unlock()

	for _, inst := range running {
		inst.wait()
	}
}
