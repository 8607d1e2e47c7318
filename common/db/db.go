// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package db implements connections to the recipient replica set and to
// donor hosts, along with the document schemas shared by both sides of a
// tenant migration.
package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mongodb/tenant-migration/common/options"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoDB enforced limits.
const (
	MaxBSONSize = 16 * 1024 * 1024 // 16MB - maximum BSON document size
)

// Default port for integration tests
const (
	DefaultTestPort = "33333"
)

const (
	ErrLostConnection     = "lost connection to server"
	ErrNoReachableServers = "no reachable servers"
	// replication errors list the replset name if we are talking to a mongos,
	// so we can only check for this universal prefix
	ErrReplTimeoutPrefix            = "waiting for replication timed out"
	ErrCouldNotContactPrimaryPrefix = "could not contact primary for replica set"
	ErrCouldNotFindPrimaryPrefix    = `could not find host matching read preference { mode: "primary"`
	ErrNotMaster                    = "not master"
	ErrConnectionRefusedSuffix      = "Connection refused"

	ErrDuplicateKeyCode = 11000
)

// Used to manage database sessions
type SessionProvider struct {
	sync.Mutex

	// the master client used for operations
	client *mongo.Client
}

// Returns a mongo.Client connected to the database server for which the
// session provider is configured.
func (sp *SessionProvider) GetSession() (*mongo.Client, error) {
	sp.Lock()
	defer sp.Unlock()

	if sp.client == nil {
		return nil, errors.New("SessionProvider already closed")
	}

	return sp.client, nil
}

// Close closes the master session in the connection pool
func (sp *SessionProvider) Close() {
	sp.Lock()
	defer sp.Unlock()
	if sp.client != nil {
		_ = sp.client.Disconnect(context.Background())
		sp.client = nil
	}
}

// DB provides a database with the default read preference
func (sp *SessionProvider) DB(name string) *mongo.Database {
	return sp.client.Database(name)
}

// NewSessionProvider constructs a session provider, including a connected client.
func NewSessionProvider(opts options.ToolOptions) (*SessionProvider, error) {
	client, err := configureClient(opts)
	if err != nil {
		return nil, fmt.Errorf("error configuring the connector: %v", err)
	}
	err = client.Connect(context.Background())
	if err != nil {
		return nil, err
	}
	err = client.Ping(context.Background(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not connect to server: %v", err)
	}

	// create the provider
	return &SessionProvider{client: client}, nil
}

// configure the client according to the options set in the uri and in the
// provided ToolOptions, with ToolOptions having precedence.
func configureClient(opts options.ToolOptions) (*mongo.Client, error) {
	if opts.URI == nil || opts.URI.ConnectionString == "" {
		// Normal operations shouldn't ever reach here because a URI should
		// be created in options parsing, but tests still manually construct
		// options and generally don't construct a URI, so we invoke the URI
		// normalization routine here to correct for that.
		if err := opts.NormalizeOptionsAndURI(); err != nil {
			return nil, err
		}
	}

	clientopt := mopt.Client()
	cs := opts.URI.ParsedConnString()

	clientopt.Hosts = cs.Hosts

	clientopt.SetConnectTimeout(time.Duration(opts.Timeout) * time.Second)
	if opts.Connection.ServerSelectionTimeout > 0 {
		clientopt.SetServerSelectionTimeout(
			time.Duration(opts.Connection.ServerSelectionTimeout) * time.Second,
		)
	}
	if cs.ReplicaSet != "" {
		clientopt.SetReplicaSet(cs.ReplicaSet)
	}

	clientopt.SetAppName(opts.AppName)
	if cs.DirectConnection && len(clientopt.Hosts) == 1 {
		clientopt.SetDirect(true)
	}

	if opts.ReadPreference != nil {
		clientopt.SetReadPreference(opts.ReadPreference)
	}

	// The migration state collection is the ground truth for resumption, so
	// its writes always use majority write concern.
	clientopt.SetWriteConcern(writeconcern.New(writeconcern.WMajority()))
	clientopt.SetReadConcern(readconcern.Majority())

	return mongo.NewClient(clientopt)
}

// ConfigureDonorClientOptions returns client options for a direct
// connection to a single donor host. Direct connections deliberately do
// not follow a failover; a new host must be resolved from topology instead.
func ConfigureDonorClientOptions(host string, appName string) *mopt.ClientOptions {
	clientopt := mopt.Client()
	clientopt.SetHosts([]string{host})
	clientopt.SetDirect(true)
	clientopt.SetAppName(appName)
	// Oplog and transaction-table reads must only observe majority-committed
	// donor state; anything weaker could pick a start optime that rolls back.
	clientopt.SetReadConcern(readconcern.Majority())
	return clientopt
}
