// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorecipient

import (
	"fmt"
	"strings"

	"github.com/mongodb/tenant-migration/common/json"
	"github.com/mongodb/tenant-migration/common/options"
	"github.com/mongodb/tenant-migration/recipient"
)

var Usage = `<options> <connection-string>

Run a tenant migration on the recipient replica set named by the connection string.

Connection strings must begin with mongodb:// or mongodb+srv://.`

type Options struct {
	*options.ToolOptions
	*Migration
}

// Migration defines the options describing the migration to run.
type Migration struct {
	Donor               string `long:"donor" value-name:"<setname/host1,host2>" description:"donor replica set, as 'setname/host1,host2' or a mongodb:// URI with replicaSet"`
	TenantID            string `long:"tenant" value-name:"<tenant-id>" description:"identifier of the tenant to migrate"`
	MigrationID         string `long:"id" value-name:"<uuid>" description:"migration identifier; omit to start a new migration with a random one"`
	DonorReadPreference string `long:"donorReadPreference" value-name:"<string|document>" default:"primary" description:"read preference for selecting the donor host to sync from; a mode name or an extended JSON document like '{mode: \"secondary\", tags: [{dc: \"east\"}]}'"`

	FindHostTimeoutSecs int `long:"findHostTimeoutSecs" value-name:"<seconds>" default:"30" description:"seconds to wait for a donor host matching the read preference"`
}

// Name returns a human-readable group name for migration options.
func (*Migration) Name() string {
	return "migration"
}

func ParseOptions(rawArgs []string, versionStr, gitCommit string) (Options, error) {
	opts := options.New("mongorecipient", versionStr, gitCommit, Usage, true,
		options.EnabledOptions{Connection: true, URI: true})

	migrationOpts := &Migration{}
	opts.AddOptions(migrationOpts)

	extraArgs, err := opts.ParseArgs(rawArgs)
	if err != nil {
		return Options{}, err
	}
	if len(extraArgs) > 0 {
		return Options{}, fmt.Errorf("error parsing positional arguments: " +
			"provide only one MongoDB connection string. " +
			"Connection strings must begin with mongodb:// or mongodb+srv:// schemes",
		)
	}

	return Options{opts, migrationOpts}, nil
}

// Validate checks that the migration options describe a runnable migration.
func (o Options) Validate() error {
	if o.Donor == "" {
		return fmt.Errorf("--donor is required")
	}
	if _, _, err := recipient.ParseDonorConnectionString(o.Donor); err != nil {
		return err
	}
	if o.TenantID == "" {
		return fmt.Errorf("--tenant is required")
	}
	if _, err := parseReadPrefSpec(o.DonorReadPreference); err != nil {
		return err
	}
	return nil
}

// parseReadPrefSpec turns the --donorReadPreference argument into a spec:
// either a bare mode name or a relaxed extended JSON document with mode
// and tags.
func parseReadPrefSpec(rp string) (recipient.ReadPrefSpec, error) {
	var spec recipient.ReadPrefSpec
	if rp == "" {
		spec.Mode = "primary"
		return spec, nil
	}
	if strings.HasPrefix(rp, "{") {
		if err := json.Unmarshal([]byte(rp), &spec); err != nil {
			return spec, fmt.Errorf("invalid --donorReadPreference %#q: %w", rp, err)
		}
		if spec.Mode == "" {
			return spec, fmt.Errorf("--donorReadPreference document must specify a mode")
		}
		return spec, nil
	}
	spec.Mode = rp
	return spec, nil
}
