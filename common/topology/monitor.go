// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package topology resolves donor hosts from replica-set topology under a
// read preference and opens the donor connections a migration needs.
package topology

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo/description"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	drivertopology "go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Monitor is a view of the donor replica set's topology. The scanning
// algorithm behind it is not this package's concern; the resolver only
// needs a point-in-time description and a way to request a fresh scan.
type Monitor interface {
	// Describe returns the most recent topology description.
	Describe() description.Topology

	// RequestScan asks the monitor to refresh its view as soon as
	// possible. It does not block waiting for the scan to finish.
	RequestScan()
}

// DriverMonitor is a Monitor backed by the mongo driver's own topology
// machinery, which handles heartbeats and server discovery.
type DriverMonitor struct {
	topo *drivertopology.Topology
}

var _ Monitor = (*DriverMonitor)(nil)

// NewDriverMonitor starts monitoring the replica set named setName through
// the given seedlist.
func NewDriverMonitor(seedlist []string, setName string) (*DriverMonitor, error) {
	seeds := mapset.NewSet(seedlist...).ToSlice()

	co := mopt.Client().SetHosts(seeds).SetReplicaSet(setName)
	cfg, err := drivertopology.NewConfig(co, nil)
	if err != nil {
		return nil, errors.Wrap(err, "configuring donor topology monitor")
	}
	topo, err := drivertopology.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating donor topology monitor")
	}
	if err := topo.Connect(); err != nil {
		return nil, errors.Wrap(err, "starting donor topology monitor")
	}

	return &DriverMonitor{topo: topo}, nil
}

// Describe returns the driver's current topology description.
func (m *DriverMonitor) Describe() description.Topology {
	return m.topo.Description()
}

// RequestScan asks the driver to re-check all servers immediately.
func (m *DriverMonitor) RequestScan() {
	m.topo.RequestImmediateCheck()
}

// Close stops the monitor.
func (m *DriverMonitor) Close(ctx context.Context) error {
	return m.topo.Disconnect(ctx)
}
