// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testutil implements functions for configuring integration tests.
package testutil

import (
	"fmt"
	"os"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/options"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// uriEnvVar names the connection string of the replica set that
// integration tests run against.
const uriEnvVar = "TENANT_MIGRATION_TESTING_MONGOD"

// GetBareSession returns a client from the environment or from a default
// host and port.
func GetBareSession() (*mongo.Client, error) {
	sessionProvider, _, err := GetBareSessionProvider()
	if err != nil {
		return nil, err
	}
	session, err := sessionProvider.GetSession()
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetBareSessionProvider returns a session provider from the environment or
// from a default host and port.
func GetBareSessionProvider() (*db.SessionProvider, *options.ToolOptions, error) {
	toolOptions, err := GetToolOptions()
	if err != nil {
		return nil, nil, fmt.Errorf(
			"error getting tool options to create a bare session provider: %w",
			err,
		)
	}

	sessionProvider, err := db.NewSessionProvider(*toolOptions)
	if err != nil {
		return nil, nil, err
	}

	return sessionProvider, toolOptions, nil
}

// GetToolOptions builds ToolOptions from the environment or defaults.
func GetToolOptions() (*options.ToolOptions, error) {
	var toolOptions *options.ToolOptions
	if uri := os.Getenv(uriEnvVar); uri != "" {
		_, err := connstring.ParseAndValidate(uri)
		if err != nil {
			return nil, fmt.Errorf(
				"%#q from the %#q env var is not a valid connection string: %w",
				uri,
				uriEnvVar,
				err,
			)
		}

		toolOptions = options.New(
			"tenant-migration", "", "", "", true,
			options.EnabledOptions{Connection: true, URI: true},
		)
		if _, err := toolOptions.ParseArgs([]string{"--uri=" + uri}); err != nil {
			return nil, fmt.Errorf(
				"could not create toolOptions with %#q from the %#q env var: %w",
				uri,
				uriEnvVar,
				err,
			)
		}
	} else {
		toolOptions = &options.ToolOptions{
			Connection: &options.Connection{
				Host: "localhost",
				Port: db.DefaultTestPort,
			},
			Verbosity: &options.Verbosity{},
			URI:       &options.URI{},
		}
	}

	if err := toolOptions.NormalizeOptionsAndURI(); err != nil {
		return nil, err
	}

	return toolOptions, nil
}
