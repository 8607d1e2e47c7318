// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UUID wraps a uuid.UUID so it marshals to and from the server's BSON
// representation, binary subtype 4.
type UUID struct {
	uuid.UUID
}

// NewUUID returns a new random UUID.
func NewUUID() UUID {
	return UUID{uuid.New()}
}

// ParseUUID parses a UUID from its canonical string form.
func ParseUUID(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, err
	}
	return UUID{u}, nil
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (u UUID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(primitive.Binary{
		Subtype: 0x04,
		Data:    u.UUID[:],
	})
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (u *UUID) UnmarshalBSONValue(t bsontype.Type, raw []byte) error {
	var bin primitive.Binary
	rv := bson.RawValue{Type: t, Value: raw}
	if err := rv.Unmarshal(&bin); err != nil {
		return err
	}
	if bin.Subtype != 0x04 {
		return fmt.Errorf("expected BSON binary subtype 4, got %d", bin.Subtype)
	}
	parsed, err := uuid.FromBytes(bin.Data)
	if err != nil {
		return err
	}
	u.UUID = parsed
	return nil
}
