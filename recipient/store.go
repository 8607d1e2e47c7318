// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package recipient

import (
	"context"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Store persists migration records, one per migration identifier. Every
// write replaces the whole record; there are no partial updates.
type Store interface {
	// Insert adds a new record. A record with the same identifier already
	// present is a conflict.
	Insert(ctx context.Context, doc Document) error

	// FindByID returns the record for id, or ErrNoSuchMigration.
	FindByID(ctx context.Context, id db.UUID) (Document, error)

	// Replace overwrites the record with doc's identifier, or returns
	// ErrNoSuchMigration when none exists.
	Replace(ctx context.Context, doc Document) error

	// FindAll returns every persisted record.
	FindAll(ctx context.Context) ([]Document, error)
}

// WriteObserver is invoked after every acknowledged insert or replace with
// the record as written. Tests use it to audit the persisted history; the
// default is none.
type WriteObserver func(Document)

// MongoStore is the production Store, backed by the recipient replica
// set's config.tenantMigrationRecipients collection with majority write
// and read concern.
type MongoStore struct {
	coll     *mongo.Collection
	observer WriteObserver
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore returns a Store over the given recipient client. observer
// may be nil.
func NewMongoStore(client *mongo.Client, observer WriteObserver) *MongoStore {
	database, collection := util.SplitNamespace(db.MigrationRecipientNamespace)
	coll := client.
		Database(database).
		Collection(collection, mopt.Collection().
			SetWriteConcern(writeconcern.New(writeconcern.WMajority())).
			SetReadConcern(readconcern.Majority()))
	return &MongoStore{coll: coll, observer: observer}
}

func (s *MongoStore) Insert(ctx context.Context, doc Document) error {
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.Wrapf(ErrConflictingMigration, "record %v already exists", doc.ID)
		}
		return errors.Wrapf(err, "inserting migration record %v", doc.ID)
	}
	s.observe(doc)
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id db.UUID) (Document, error) {
	res := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, errors.Wrapf(ErrNoSuchMigration, "%v", id)
		}
		return Document{}, errors.Wrapf(err, "finding migration record %v", id)
	}

	var doc Document
	if err := res.Decode(&doc); err != nil {
		return Document{}, errors.Wrapf(err, "decoding migration record %v", id)
	}
	return doc, nil
}

func (s *MongoStore) Replace(ctx context.Context, doc Document) error {
	res, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, doc)
	if err != nil {
		return errors.Wrapf(err, "replacing migration record %v", doc.ID)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrNoSuchMigration, "%v", doc.ID)
	}
	s.observe(doc)
	return nil
}

func (s *MongoStore) FindAll(ctx context.Context) ([]Document, error) {
	cursor, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "scanning migration records")
	}

	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding migration records")
	}
	return docs, nil
}

func (s *MongoStore) observe(doc Document) {
	if s.observer != nil {
		s.observer(doc.Clone())
	}
}
