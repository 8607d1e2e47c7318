// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/mongodb/tenant-migration/common/log"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo/description"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ErrNoEligibleHost is returned when no donor host satisfying the read
// preference became available within the caller's timeout.
var ErrNoEligibleHost = errors.New("no donor host satisfies the read preference")

// DefaultScanInterval is how long the resolver waits between topology
// rescans.
const DefaultScanInterval = 250 * time.Millisecond

// Resolver picks a donor host matching a read preference, rescanning the
// topology until one appears or a timeout elapses. A failover in the middle
// of resolution is absorbed by the rescan loop rather than surfaced.
type Resolver struct {
	monitor      Monitor
	scanInterval time.Duration
	clock        clock.Clock
}

// NewResolver returns a Resolver over the given monitor with the default
// scan interval and wall clock.
func NewResolver(monitor Monitor) *Resolver {
	return &Resolver{
		monitor:      monitor,
		scanInterval: DefaultScanInterval,
		clock:        clock.WallClock,
	}
}

// WithScanInterval overrides the rescan interval. Tests use a short
// interval so timeouts stay fast.
func (r *Resolver) WithScanInterval(interval time.Duration) *Resolver {
	r.scanInterval = interval
	return r
}

// WithClock overrides the clock used for retry scheduling.
func (r *Resolver) WithClock(c clock.Clock) *Resolver {
	r.clock = c
	return r
}

// FindHost returns the address of a donor host satisfying rp, rescanning
// at the resolver's interval for at most timeout. Cancelling ctx stops the
// wait early with the context's error.
func (r *Resolver) FindHost(
	ctx context.Context,
	rp *readpref.ReadPref,
	timeout time.Duration,
) (string, error) {
	var host string

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			r.monitor.RequestScan()

			topo := r.monitor.Describe()
			selected, err := description.ReadPrefSelector(rp).SelectServer(topo, topo.Servers)
			if err != nil {
				return err
			}
			for _, server := range selected {
				if server.Kind != description.Unknown {
					host = server.Addr.String()
					return nil
				}
			}
			return ErrNoEligibleHost
		},
		NotifyFunc: func(err error, attempt int) {
			log.Logvf(log.DebugHigh, "donor host resolution attempt %d: %v", attempt, err)
		},
		Attempts:    retry.UnlimitedAttempts,
		Delay:       r.scanInterval,
		MaxDuration: timeout,
		Clock:       r.clock,
		Stop:        ctx.Done(),
	})

	switch {
	case err == nil:
		log.Logvf(log.DebugLow, "resolved donor host %v for read preference %v", host, rp.Mode())
		return host, nil
	case retry.IsRetryStopped(err):
		return "", ctx.Err()
	case retry.IsDurationExceeded(err), retry.IsAttemptsExceeded(err):
		return "", errors.Wrapf(ErrNoEligibleHost, "timed out after %v", timeout)
	default:
		return "", err
	}
}
