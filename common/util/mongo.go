// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import (
	"fmt"
	"strings"
)

// SplitNamespace splits a namespace path into a database and collection,
// returned in that order. The collection may contain dots.
func SplitNamespace(namespace string) (string, string) {
	// find the first instance of "." in the namespace
	firstDotIndex := strings.Index(namespace, ".")

	// split the namespace, if applicable
	var database string
	var collection string
	if firstDotIndex != -1 {
		database = namespace[:firstDotIndex]
		collection = namespace[firstDotIndex+1:]
	} else {
		database = namespace
	}

	return database, collection
}

// SplitHostArg returns the hosts and the replica set name out of a --host
// style argument, which may be of the form "setName/host1,host2" for replica
// set targets.
func SplitHostArg(host string) ([]string, string) {
	// strip off the replica set name from the beginning
	slashIndex := strings.Index(host, "/")
	setName := ""
	if slashIndex != -1 {
		setName = host[:slashIndex]
		if slashIndex == len(host)-1 {
			host = ""
		} else {
			host = host[slashIndex+1:]
		}
	}

	return strings.Split(host, ","), setName
}

// CreateConnectionAddrs returns a slice of connection addresses for the
// given comma-separated host list and optional port.
func CreateConnectionAddrs(host, port string) []string {
	hostAddrs := strings.Split(host, ",")

	// if a port is specified, append it to all the host addresses
	if port != "" {
		for idx, addr := range hostAddrs {
			hostAddrs[idx] = fmt.Sprintf("%v:%v", addr, port)
		}
	}

	return hostAddrs
}

// hostHasPort returns whether the host already carries an explicit port.
// The last colon must fall outside any IPv6 bracket section.
func hostHasPort(host string) bool {
	colonIndex := strings.LastIndex(host, ":")
	if colonIndex == -1 {
		return false
	}
	return colonIndex > strings.LastIndex(host, "]")
}

// BuildURI assembles a connection string from a --host style argument
// (possibly of the legacy "setName/host1,host2" form) and an optional port.
// Hosts that already carry a port keep it; portless hosts get the given one.
func BuildURI(host, port string) string {
	seedlist, setName := SplitHostArg(host)

	for idx, h := range seedlist {
		if h == "" {
			h = "localhost"
		}
		if port != "" && !hostHasPort(h) {
			h = fmt.Sprintf("%v:%v", h, port)
		}
		seedlist[idx] = h
	}

	uri := fmt.Sprintf("mongodb://%v/", strings.Join(seedlist, ","))
	if setName != "" {
		uri = fmt.Sprintf("%v?replicaSet=%v", uri, setName)
	}

	return uri
}

// ValidateDBName validates that the provided database name is allowed by the
// server.
func ValidateDBName(database string) error {
	// must be less than 64 characters
	if len([]byte(database)) > 63 {
		return fmt.Errorf("database name '%v' is longer than 63 characters", database)
	}

	// check for illegal characters
	for _, illegalRune := range "/\\. \"\x00$" {
		if strings.ContainsRune(database, illegalRune) {
			return fmt.Errorf(
				"illegal character '%c' found in database name '%v'",
				illegalRune,
				database,
			)
		}
	}

	return nil
}

// ValidateCollectionName validates that the provided collection name is
// allowed by the server.
func ValidateCollectionName(collection string) error {
	// collection names cannot be empty
	if len(collection) == 0 {
		return fmt.Errorf("collection name cannot be an empty string")
	}

	// collection names cannot contain $ or the null character
	for _, illegalRune := range "$\x00" {
		if strings.ContainsRune(collection, illegalRune) {
			return fmt.Errorf(
				"illegal character '%c' found in collection name '%v'",
				illegalRune,
				collection,
			)
		}
	}

	return nil
}

// ValidateFullNamespace validates a full "database.collection" namespace.
func ValidateFullNamespace(namespace string) error {
	database, collection := SplitNamespace(namespace)
	if collection == "" && !strings.Contains(namespace, ".") {
		return fmt.Errorf("namespace '%v' is missing a '.' after the database name", namespace)
	}
	if err := ValidateDBName(database); err != nil {
		return err
	}
	return ValidateCollectionName(collection)
}
