// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongorecipient drives a tenant migration from the recipient
// side: it persists the migration's record on the recipient replica set,
// connects to the donor under the requested read preference, and runs the
// migration state machine to completion.
package mongorecipient

import (
	"context"
	"time"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/log"
	"github.com/mongodb/tenant-migration/common/topology"
	"github.com/mongodb/tenant-migration/recipient"
	"github.com/pkg/errors"
)

// MongoRecipient is the top-level tool state.
type MongoRecipient struct {
	Options         Options
	SessionProvider *db.SessionProvider

	monitor *topology.DriverMonitor
}

// Run executes one migration to a terminal outcome. A record persisted by
// an earlier, interrupted run of the same migration identifier is resumed
// rather than restarted.
func (r *MongoRecipient) Run(ctx context.Context) error {
	session, err := r.SessionProvider.GetSession()
	if err != nil {
		return errors.Wrap(err, "connecting to recipient")
	}

	id, err := r.migrationID()
	if err != nil {
		return err
	}
	rpSpec, err := parseReadPrefSpec(r.Options.DonorReadPreference)
	if err != nil {
		return err
	}

	seedlist, setName, err := recipient.ParseDonorConnectionString(r.Options.Donor)
	if err != nil {
		return err
	}
	r.monitor, err = topology.NewDriverMonitor(seedlist, setName)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.monitor.Close(context.Background()); err != nil {
			log.Logvf(log.DebugLow, "closing donor topology monitor: %v", err)
		}
	}()

	registry := recipient.NewRegistry(recipient.Env{
		Store:           recipient.NewMongoStore(session, nil),
		Resolver:        topology.NewResolver(r.monitor),
		Connector:       topology.DirectConnector{},
		FindHostTimeout: time.Duration(r.Options.FindHostTimeoutSecs) * time.Second,
	})
	defer registry.Shutdown()

	// A single-run tool is primary for its whole lifetime.
	if err := registry.OnStepUpComplete(ctx, 1); err != nil {
		return err
	}

	doc := recipient.NewDocument(id, r.Options.Donor, r.Options.TenantID, rpSpec)
	inst, err := registry.GetOrCreate(doc)
	if err != nil {
		return err
	}

	log.Logvf(log.Always, "migrating tenant %q from donor %q (migration %v)",
		r.Options.TenantID, r.Options.Donor, id)

	if err := inst.Await(ctx); err != nil {
		if ctx.Err() != nil {
			registry.OnStepDown()
		}
		return err
	}

	log.Logvf(log.Always, "migration %v finished in state %q", id, inst.Document().State)
	return nil
}

func (r *MongoRecipient) migrationID() (db.UUID, error) {
	if r.Options.MigrationID == "" {
		return db.NewUUID(), nil
	}
	id, err := db.ParseUUID(r.Options.MigrationID)
	if err != nil {
		return db.UUID{}, errors.Wrapf(err, "invalid --id %#q", r.Options.MigrationID)
	}
	return id, nil
}
