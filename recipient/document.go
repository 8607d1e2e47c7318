// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package recipient implements the recipient side of a tenant migration:
// a resumable state machine that checkpoints every durable decision so a
// newly elected primary can pick up an in-flight migration where the old
// one left off.
package recipient

import (
	"reflect"

	"github.com/mongodb/tenant-migration/common/db"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/tag"
)

// State is the lifecycle state of a migration, persisted in its record.
type State string

const (
	// StateUninitialized is the in-memory state of a record that has never
	// been persisted. It is never written to the store.
	StateUninitialized State = "uninitialized"

	// StateStarted means the initial record insert is durable.
	StateStarted State = "started"

	// StateCopying means the start optimes are durable and the cloning and
	// applying phase is (or may be) running.
	StateCopying State = "copying"

	// StateDone means the migration finished successfully.
	StateDone State = "done"
)

// Terminal reports whether a persisted record in this state must not be
// resumed on step-up.
func (s State) Terminal() bool {
	return s == StateDone
}

// ReadPrefSpec is the persisted form of a read preference: a mode name
// plus optional tag sets.
type ReadPrefSpec struct {
	Mode    string              `bson:"mode"`
	TagSets []map[string]string `bson:"tags,omitempty"`
}

// Resolve builds the driver read preference this describes.
func (r ReadPrefSpec) Resolve() (*readpref.ReadPref, error) {
	modeStr := r.Mode
	if modeStr == "" {
		modeStr = "primary"
	}
	mode, err := readpref.ModeFromString(modeStr)
	if err != nil {
		return nil, err
	}

	var opts []readpref.Option
	if sets := tag.NewTagSetsFromMaps(r.TagSets); len(sets) > 0 {
		opts = append(opts, readpref.WithTagSets(sets...))
	}
	return readpref.New(mode, opts...)
}

// Document is the durable per-migration record. The identifier is
// immutable once created; every durable update replaces the whole record.
type Document struct {
	ID                    db.UUID      `bson:"_id"`
	DonorConnectionString string       `bson:"donorConnectionString"`
	TenantID              string       `bson:"tenantId"`
	ReadPreference        ReadPrefSpec `bson:"readPreference"`
	State                 State        `bson:"state"`
	StartFetchingOpTime   *db.OpTime   `bson:"startFetchingOpTime,omitempty"`
	StartApplyingOpTime   *db.OpTime   `bson:"startApplyingOpTime,omitempty"`
}

// NewDocument returns the initial, not-yet-persisted record of a migration.
func NewDocument(id db.UUID, donorConnectionString, tenantID string, rp ReadPrefSpec) Document {
	return Document{
		ID:                    id,
		DonorConnectionString: donorConnectionString,
		TenantID:              tenantID,
		ReadPreference:        rp,
		State:                 StateUninitialized,
	}
}

// Clone returns a deep copy, so a caller can stage changes without
// touching the in-memory record before they are durable.
func (d Document) Clone() Document {
	out := d
	out.StartFetchingOpTime = cloneOpTime(d.StartFetchingOpTime)
	out.StartApplyingOpTime = cloneOpTime(d.StartApplyingOpTime)
	if d.ReadPreference.TagSets != nil {
		sets := make([]map[string]string, len(d.ReadPreference.TagSets))
		for i, set := range d.ReadPreference.TagSets {
			sets[i] = make(map[string]string, len(set))
			for k, v := range set {
				sets[i][k] = v
			}
		}
		out.ReadPreference.TagSets = sets
	}
	return out
}

// SameImmutableFields reports whether other agrees with d on every field
// that is fixed at creation time.
func (d Document) SameImmutableFields(other Document) bool {
	return d.ID == other.ID &&
		d.DonorConnectionString == other.DonorConnectionString &&
		d.TenantID == other.TenantID &&
		reflect.DeepEqual(d.ReadPreference, other.ReadPreference)
}

func cloneOpTime(ot *db.OpTime) *db.OpTime {
	if ot == nil {
		return nil
	}
	out := *ot
	if ot.Term != nil {
		term := *ot.Term
		out.Term = &term
	}
	return &out
}
