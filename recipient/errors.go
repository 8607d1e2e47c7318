// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package recipient

import "github.com/pkg/errors"

// Sentinel outcomes of a migration, comparable with errors.Is. Donor I/O
// failures are not translated; they pass through wrapped.
var (
	// ErrFailedToParse means the migration's configuration was rejected
	// before any network I/O: a malformed donor connection string, one
	// naming a standalone host instead of a replica set, or an invalid
	// read preference.
	ErrFailedToParse = errors.New("failed to parse")

	// ErrNotWritablePrimary means this node lost (or never had) primary
	// status while driving the migration.
	ErrNotWritablePrimary = errors.New("node is not a writable primary")

	// ErrConflictingMigration means a migration with the same identifier
	// but different immutable fields is already running or recorded.
	ErrConflictingMigration = errors.New("conflicting tenant migration")

	// ErrNoSuchMigration means no record exists for the identifier.
	ErrNoSuchMigration = errors.New("no such tenant migration")
)
