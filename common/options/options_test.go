// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mongodb/tenant-migration/common/testtype"
	. "github.com/smartystreets/goconvey/convey"
)

func TestVerbosityFlag(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	Convey("With a new ToolOptions", t, func() {
		enabled := EnabledOptions{}
		optPtr := New("", "", "", "", true, enabled)
		So(optPtr, ShouldNotBeNil)
		So(optPtr.parser, ShouldNotBeNil)

		Convey("no verbosity flags, Level should be 0", func() {
			_, err := optPtr.CallArgParser([]string{})
			So(err, ShouldBeNil)
			So(optPtr.Level(), ShouldEqual, 0)
		})

		Convey("one short verbosity flag, Level should be 1", func() {
			_, err := optPtr.CallArgParser([]string{"-v"})
			So(err, ShouldBeNil)
			So(optPtr.Level(), ShouldEqual, 1)
		})

		Convey("three short verbosity flags (stacked), Level should be 3", func() {
			_, err := optPtr.CallArgParser([]string{"-vvv"})
			So(err, ShouldBeNil)
			So(optPtr.Level(), ShouldEqual, 3)
		})

		Convey("flag counted with a numeric value, Level should be the value", func() {
			_, err := optPtr.CallArgParser([]string{"--verbose=4"})
			So(err, ShouldBeNil)
			So(optPtr.Level(), ShouldEqual, 4)
		})
	})
}

func TestNormalizeOptionsAndURI(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	Convey("With a ToolOptions", t, func() {
		opts := New("", "", "", "", true, EnabledOptions{Connection: true, URI: true})

		Convey("a legacy host arg with a set name builds a replica set URI", func() {
			opts.Host = "rs0/donor1:27017,donor2:27017"
			So(opts.NormalizeOptionsAndURI(), ShouldBeNil)
			So(opts.ReplicaSetName, ShouldEqual, "rs0")
			So(opts.Direct, ShouldBeFalse)
			So(opts.URI.GetConnectionAddrs(), ShouldResemble,
				[]string{"donor1:27017", "donor2:27017"})
		})

		Convey("a bare host arg produces a direct connection", func() {
			opts.Host = "localhost"
			opts.Port = "27017"
			So(opts.NormalizeOptionsAndURI(), ShouldBeNil)
			So(opts.ReplicaSetName, ShouldEqual, "")
			So(opts.Direct, ShouldBeTrue)
		})

		Convey("a URI with replicaSet sets the replica set name", func() {
			opts.URI.ConnectionString = "mongodb://donor1:27017,donor2:27017/?replicaSet=rs0"
			So(opts.NormalizeOptionsAndURI(), ShouldBeNil)
			So(opts.ReplicaSetName, ShouldEqual, "rs0")
		})

		Convey("conflicting --port and URI ports are rejected", func() {
			opts.URI.ConnectionString = "mongodb://donor1:27017/"
			opts.Port = "33333"
			So(opts.NormalizeOptionsAndURI(), ShouldNotBeNil)
		})

		Convey("a host absent from the URI seedlist is rejected", func() {
			opts.URI.ConnectionString = "mongodb://donor1:27017/"
			opts.Host = "otherhost:27017"
			So(opts.NormalizeOptionsAndURI(), ShouldNotBeNil)
		})
	})
}

func TestParsePositionalArgsAsURI(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	Convey("With a ToolOptions that accepts positional URIs", t, func() {
		opts := New("", "", "", "", true, EnabledOptions{Connection: true, URI: true})

		Convey("a single positional URI is consumed", func() {
			extra, err := opts.ParseArgs([]string{"mongodb://localhost:27017/"})
			So(err, ShouldBeNil)
			So(extra, ShouldBeEmpty)
			So(opts.ConnectionString, ShouldEqual, "mongodb://localhost:27017/")
		})

		Convey("two positional URIs are rejected", func() {
			_, err := opts.ParseArgs(
				[]string{"mongodb://a:27017/", "mongodb://b:27017/"},
			)
			So(err, ShouldNotBeNil)
		})

		Convey("a positional URI plus --uri is rejected", func() {
			_, err := opts.ParseArgs(
				[]string{"--uri", "mongodb://a:27017/", "mongodb://b:27017/"},
			)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseConfigFile(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	Convey("With a config file holding a uri", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		err := os.WriteFile(path, []byte("uri: mongodb://localhost:27017/\n"), 0o600)
		So(err, ShouldBeNil)

		Convey("--config merges the uri into the options", func() {
			opts := New("", "", "", "", false, EnabledOptions{URI: true})
			_, err := opts.ParseArgs([]string{"--config", path})
			So(err, ShouldBeNil)
			So(opts.ConnectionString, ShouldEqual, "mongodb://localhost:27017/")
		})

		Convey("an unknown key fails strict parsing", func() {
			err := os.WriteFile(path, []byte("nope: 1\n"), 0o600)
			So(err, ShouldBeNil)
			opts := New("", "", "", "", false, EnabledOptions{URI: true})
			_, err = opts.ParseArgs([]string{"--config", path})
			So(err, ShouldNotBeNil)
		})
	})
}
