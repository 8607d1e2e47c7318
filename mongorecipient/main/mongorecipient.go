// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Main package for the mongorecipient tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mongodb/tenant-migration/common/db"
	"github.com/mongodb/tenant-migration/common/log"
	"github.com/mongodb/tenant-migration/common/util"
	"github.com/mongodb/tenant-migration/mongorecipient"
)

var (
	VersionStr = "built-without-version-string"
	GitCommit  = "build-without-git-commit"
)

func main() {
	opts, err := mongorecipient.ParseOptions(os.Args[1:], VersionStr, GitCommit)
	if err != nil {
		log.Logvf(log.Always, "error parsing command line options: %s", err.Error())
		log.Logvf(log.Always, util.ShortUsage("mongorecipient"))
		os.Exit(util.ExitFailure)
	}

	if opts.PrintHelp(false) {
		return
	}
	if opts.PrintVersion() {
		return
	}

	log.SetVerbosity(*opts.Verbosity)

	if err := opts.Validate(); err != nil {
		log.Logvf(log.Always, "invalid options: %v", err)
		log.Logvf(log.Always, util.ShortUsage("mongorecipient"))
		os.Exit(util.ExitFailure)
	}

	// The recipient connection honors a readPreference from the URI, though
	// the migration's own writes always go to the primary.
	if cs := opts.URI.ParsedConnString(); cs != nil && cs.ReadPreference != "" {
		opts.ReadPreference, err = db.NewReadPreference(cs.ReadPreference, cs)
		if err != nil {
			log.Logvf(log.Always, "error parsing --uri readPreference: %v", err)
			os.Exit(util.ExitFailure)
		}
	}

	sessionProvider, err := db.NewSessionProvider(*opts.ToolOptions)
	if err != nil {
		log.Logvf(log.Always, "error connecting to host: %v", err)
		os.Exit(util.ExitFailure)
	}
	defer sessionProvider.Close()

	// An interrupt steps the migration down cleanly rather than killing
	// the process mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recipientTool := &mongorecipient.MongoRecipient{
		Options:         opts,
		SessionProvider: sessionProvider,
	}
	if err := recipientTool.Run(ctx); err != nil {
		log.Logvf(log.Always, "Failed: %v", err)
		os.Exit(util.ExitFailure)
	}
}
