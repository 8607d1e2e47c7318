// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import "fmt"

// Tool exit statuses.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// ShortUsage returns a one-line pointer to a tool's full help output.
func ShortUsage(tool string) string {
	return fmt.Sprintf("try '%s --help' for more information", tool)
}
