// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testtype controls which kinds of tests run.
package testtype

import (
	"os"
	"strconv"
	"testing"
)

// Each test type names the environment variable that opts its tests in.
const (
	UnitTestType        = "TENANT_MIGRATION_TESTING_UNIT"
	IntegrationTestType = "TENANT_MIGRATION_TESTING_INTEGRATION"
)

// HasTestType returns whether tests of the given type should run. Unit tests
// always run; integration tests require a live replica set and are opted in
// through the environment.
func HasTestType(testType string) bool {
	if testType == UnitTestType {
		return true
	}
	if val, ok := os.LookupEnv(testType); ok {
		enabled, err := strconv.ParseBool(val)
		return err == nil && enabled
	}
	return false
}

// SkipUnlessTestType skips the test unless the given test type is enabled.
func SkipUnlessTestType(t *testing.T, testType string) {
	if !HasTestType(testType) {
		t.Skipf("skipping test; %v is not enabled", testType)
	}
}
