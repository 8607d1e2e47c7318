// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"fmt"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"go.mongodb.org/mongo-driver/mongo/address"
	"go.mongodb.org/mongo-driver/mongo/description"
)

// SimulatedReplicaSet is an in-memory Monitor over a fake replica set whose
// membership and primary can be changed at any time, so tests can inject
// failovers without real networking.
type SimulatedReplicaSet struct {
	mu      sync.Mutex
	setName string
	hosts   []string
	primary string
	down    mapset.Set[string]
	scans   int64
}

var _ Monitor = (*SimulatedReplicaSet)(nil)

// NewSimulatedReplicaSet returns a simulated set of numNodes reachable
// members, the first of which is primary.
func NewSimulatedReplicaSet(setName string, numNodes int) *SimulatedReplicaSet {
	hosts := make([]string, numNodes)
	for i := range hosts {
		hosts[i] = fmt.Sprintf("node%d.%s.test:27017", i, setName)
	}
	s := &SimulatedReplicaSet{
		setName: setName,
		hosts:   hosts,
		down:    mapset.NewSet[string](),
	}
	if numNodes > 0 {
		s.primary = hosts[0]
	}
	return s
}

// SetName returns the replica set name.
func (s *SimulatedReplicaSet) SetName() string {
	return s.setName
}

// Hosts returns all members, reachable or not.
func (s *SimulatedReplicaSet) Hosts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hosts...)
}

// PrimaryHost returns the current primary, or "" when the set has none.
func (s *SimulatedReplicaSet) PrimaryHost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down.Contains(s.primary) {
		return ""
	}
	return s.primary
}

// ConnectionString returns the legacy "setName/host1,host2" form naming
// this set.
func (s *SimulatedReplicaSet) ConnectionString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s/%s", s.setName, strings.Join(s.hosts, ","))
}

// KillHost makes the given member unreachable.
func (s *SimulatedReplicaSet) KillHost(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down.Add(host)
}

// KillPrimary makes the current primary unreachable and returns its
// address, leaving the set with no primary until StepUp is called.
func (s *SimulatedReplicaSet) KillPrimary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	killed := s.primary
	s.down.Add(killed)
	return killed
}

// RestoreHost makes the given member reachable again.
func (s *SimulatedReplicaSet) RestoreHost(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down.Remove(host)
}

// StepUp elects the given member primary. The member is made reachable if
// it was not.
func (s *SimulatedReplicaSet) StepUp(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down.Remove(host)
	s.primary = host
}

// ScanCount returns how many scans have been requested.
func (s *SimulatedReplicaSet) ScanCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}

// RequestScan records the request. The simulated view is always current,
// so there is nothing to refresh.
func (s *SimulatedReplicaSet) RequestScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
}

// Describe builds a topology description of the reachable members.
func (s *SimulatedReplicaSet) Describe() description.Topology {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := description.ReplicaSetNoPrimary
	servers := make([]description.Server, 0, len(s.hosts))
	for _, host := range s.hosts {
		if s.down.Contains(host) {
			continue
		}
		serverKind := description.RSSecondary
		if host == s.primary {
			serverKind = description.RSPrimary
			kind = description.ReplicaSetWithPrimary
		}
		servers = append(servers, description.Server{
			Addr:    address.Address(host),
			Kind:    serverKind,
			SetName: s.setName,
		})
	}

	return description.Topology{
		Servers: servers,
		SetName: s.setName,
		Kind:    kind,
	}
}
