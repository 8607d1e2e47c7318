// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

// App names let the donor tell the migration's two connections apart in
// currentOp and the profiler.
const (
	generalAppName      = "tenantMigration-general"
	oplogFetcherAppName = "tenantMigration-oplogFetcher"
)

// ConnectionPair holds the two independent donor connections a migration
// uses: a general-purpose one and one dedicated to tailing the oplog, so
// long-running fetches never starve other donor commands.
type ConnectionPair struct {
	General      OplogReader
	OplogFetcher OplogReader
}

// Close closes both connections. Safe to call more than once.
func (p *ConnectionPair) Close(ctx context.Context) error {
	var firstErr error
	for _, conn := range []OplogReader{p.General, p.OplogFetcher} {
		if conn == nil {
			continue
		}
		if err := conn.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DirectConnector opens direct (non-discovering) connections to a resolved
// donor host. A direct connection does not follow failovers; detecting one
// requires a fresh topology scan and a new pair.
type DirectConnector struct{}

// Connect opens the general and oplog-fetcher connections to host. The two
// are always distinct clients, even though they address the same host.
func (DirectConnector) Connect(ctx context.Context, host string) (*ConnectionPair, error) {
	general, err := dialDonor(ctx, host, generalAppName)
	if err != nil {
		return nil, err
	}

	oplogFetcher, err := dialDonor(ctx, host, oplogFetcherAppName)
	if err != nil {
		_ = general.Close(ctx)
		return nil, err
	}

	return &ConnectionPair{General: general, OplogFetcher: oplogFetcher}, nil
}

func dialDonor(ctx context.Context, host string, appName string) (*DonorConn, error) {
	client, err := mongo.NewClient(db.ConfigureDonorClientOptions(host, appName))
	if err != nil {
		return nil, errors.Wrapf(err, "configuring donor connection to %v", host)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, errors.Wrapf(err, "connecting to donor %v", host)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrapf(err, "pinging donor %v", host)
	}

	return &DonorConn{client: client, addr: host}, nil
}
