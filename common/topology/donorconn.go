// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// OplogReader is the donor-read surface a migration consumes: the end of
// the donor's oplog and the transaction table, nothing more.
type OplogReader interface {
	// LastOplogEntry returns the optime of the donor's most recent oplog
	// entry. An unreadable or empty oplog is an error.
	LastOplogEntry(ctx context.Context) (db.OpTime, error)

	// EarliestOpenTransaction returns the open (prepared or in-progress)
	// transaction with the lowest startOpTime across all tracked sessions,
	// or nil when no transaction is open.
	EarliestOpenTransaction(ctx context.Context) (*db.SessionTxnRecord, error)

	// Address returns the donor host this reader is connected to.
	Address() string

	// Close releases the underlying connection. Idempotent.
	Close(ctx context.Context) error
}

// DonorConn is an OplogReader over a direct mongo connection.
type DonorConn struct {
	client *mongo.Client
	addr   string

	mu     sync.Mutex
	closed bool
}

var _ OplogReader = (*DonorConn)(nil)

// Address returns the donor host address.
func (c *DonorConn) Address() string {
	return c.addr
}

// Client exposes the underlying client for the delegated cloning and
// applying phases.
func (c *DonorConn) Client() *mongo.Client {
	return c.client
}

// LastOplogEntry reads the top of the donor's oplog with majority read
// concern, so the returned optime cannot roll back.
func (c *DonorConn) LastOplogEntry(ctx context.Context) (db.OpTime, error) {
	database, collection := util.SplitNamespace(db.OplogNamespace)

	res := c.client.Database(database).Collection(collection).FindOne(
		ctx,
		bson.D{},
		mopt.FindOne().
			SetSort(bson.D{{Key: "$natural", Value: -1}}).
			SetProjection(bson.D{{Key: "ts", Value: 1}, {Key: "t", Value: 1}}),
	)
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return db.OpTime{}, errors.Errorf("donor %v has an empty oplog", c.addr)
		}
		return db.OpTime{}, errors.Wrapf(err, "reading last oplog entry from donor %v", c.addr)
	}

	var optime db.OpTime
	if err := res.Decode(&optime); err != nil {
		return db.OpTime{}, errors.Wrapf(err, "decoding last oplog entry from donor %v", c.addr)
	}
	return optime, nil
}

// EarliestOpenTransaction scans config.transactions for the open
// transaction with the lowest startOpTime.
func (c *DonorConn) EarliestOpenTransaction(ctx context.Context) (*db.SessionTxnRecord, error) {
	database, collection := util.SplitNamespace(db.TransactionsNamespace)

	filter := bson.D{{Key: "state", Value: bson.D{{
		Key: "$in", Value: bson.A{db.TxnStatePrepared, db.TxnStateInProgress},
	}}}}

	res := c.client.Database(database).Collection(collection).FindOne(
		ctx,
		filter,
		mopt.FindOne().SetSort(bson.D{{Key: "startOpTime", Value: 1}}),
	)
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading transaction table of donor %v", c.addr)
	}

	var record db.SessionTxnRecord
	if err := res.Decode(&record); err != nil {
		return nil, errors.Wrapf(err, "decoding transaction record from donor %v", c.addr)
	}
	return &record, nil
}

// Close disconnects from the donor. Safe to call more than once.
func (c *DonorConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Disconnect(ctx)
}
