// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Namespaces read on the donor and written on the recipient.
const (
	OplogNamespace              = "local.oplog.rs"
	TransactionsNamespace       = "config.transactions"
	MigrationRecipientNamespace = "config.tenantMigrationRecipients"
)

// Durable transaction states as recorded in config.transactions. A
// transaction in the prepared or in-progress state has not yet committed
// or aborted, so its oplog entries are still needed in full.
const (
	TxnStatePrepared   = "prepared"
	TxnStateInProgress = "inProgress"
	TxnStateCommitted  = "committed"
	TxnStateAborted    = "aborted"
)

// Oplog represents a MongoDB oplog document.
type Oplog struct {
	Timestamp  primitive.Timestamp `bson:"ts"`
	Term       *int64              `bson:"t"`
	Version    int                 `bson:"v"`
	Operation  string              `bson:"op"`
	Namespace  string              `bson:"ns"`
	Object     bson.D              `bson:"o"`
	Query      bson.D              `bson:"o2,omitempty"`
	UI         *primitive.Binary   `bson:"ui,omitempty"`
	LSID       bson.Raw            `bson:"lsid,omitempty"`
	TxnNumber  *int64              `bson:"txnNumber,omitempty"`
	PrevOpTime bson.Raw            `bson:"prevOpTime,omitempty"`
	WallTime   *primitive.DateTime `bson:"wall,omitempty"`
}

// GetOpTimeFromRawOplogEntry decodes only the optime fields of a raw oplog
// document.
func GetOpTimeFromRawOplogEntry(raw bson.Raw) (OpTime, error) {
	var optime OpTime
	if err := bson.Unmarshal(raw, &optime); err != nil {
		return OpTime{}, err
	}
	return optime, nil
}

// SessionTxnRecord is a document of config.transactions: the most recent
// retryable write or multi-statement transaction of one logical session.
// StartOpTime is only set while a multi-statement transaction is open; it
// is the position of the transaction's first oplog entry.
type SessionTxnRecord struct {
	SessionID       bson.Raw            `bson:"_id"`
	TxnNum          int64               `bson:"txnNum"`
	LastWriteOpTime OpTime              `bson:"lastWriteOpTime"`
	LastWriteDate   *primitive.DateTime `bson:"lastWriteDate,omitempty"`
	State           string              `bson:"state,omitempty"`
	StartOpTime     *OpTime             `bson:"startOpTime,omitempty"`
}

// Open returns whether the record's transaction is still in flight, i.e.
// neither committed nor aborted.
func (r *SessionTxnRecord) Open() bool {
	return r.State == TxnStatePrepared || r.State == TxnStateInProgress
}
