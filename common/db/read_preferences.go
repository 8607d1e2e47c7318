// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/mongodb/tenant-migration/common/json"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/tag"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// readPrefDoc is the relaxed extended-JSON form accepted on the command
// line, with or without quoted keys, e.g.
// {mode: "secondary", tagSets: [{use: "reporting"}], maxStalenessSeconds: 90}.
type readPrefDoc struct {
	Mode                string              `bson:"mode"`
	TagSets             []map[string]string `bson:"tagSets"`
	MaxStalenessSeconds int64               `bson:"maxStalenessSeconds"`
}

// NewReadPreference takes a string (from the command line or a config
// file) and a parsed connection string and returns a *readpref.ReadPref.
// The string may be a bare mode name or an extended-JSON document; when
// both the string and the connection string specify a read preference, the
// string wins. An empty string with no URI read preference defaults to
// primary.
func NewReadPreference(rp string, cs *connstring.ConnString) (*readpref.ReadPref, error) {
	if rp == "" {
		if cs == nil || (cs.ReadPreference == "" && len(cs.ReadPreferenceTagSets) == 0 && !cs.MaxStalenessSet) {
			return readpref.Primary(), nil
		}
		return newReadPref(cs.ReadPreference, cs.ReadPreferenceTagSets, cs.MaxStaleness)
	}

	if !strings.HasPrefix(strings.TrimSpace(rp), "{") {
		return newReadPref(rp, nil, 0)
	}

	var doc readPrefDoc
	if err := json.Unmarshal([]byte(rp), &doc); err != nil {
		return nil, fmt.Errorf("invalid --readPreference json object: %v", err)
	}
	if doc.Mode == "" {
		return nil, fmt.Errorf("invalid --readPreference json object: mode string is required")
	}

	return newReadPref(doc.Mode, doc.TagSets, time.Duration(doc.MaxStalenessSeconds)*time.Second)
}

func newReadPref(
	modeStr string,
	tagSets []map[string]string,
	maxStaleness time.Duration,
) (*readpref.ReadPref, error) {
	mode, err := readpref.ModeFromString(modeStr)
	if err != nil {
		return nil, err
	}

	opts := make([]readpref.Option, 0, 2)
	if sets := tag.NewTagSetsFromMaps(tagSets); len(sets) > 0 {
		opts = append(opts, readpref.WithTagSets(sets...))
	}
	if maxStaleness != 0 {
		opts = append(opts, readpref.WithMaxStaleness(maxStaleness))
	}

	return readpref.New(mode, opts...)
}
