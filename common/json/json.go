// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package json decodes the relaxed JSON accepted on tool command lines,
// where object keys may be bare identifiers instead of quoted strings.
package json

import (
	"bytes"

	"go.mongodb.org/mongo-driver/bson"
)

// Unmarshal parses data into v. Object keys may be unquoted identifiers
// (including $- and _-prefixed ones); values follow extended JSON.
func Unmarshal(data []byte, v interface{}) error {
	return bson.UnmarshalExtJSON(quoteBareKeys(data), false, v)
}

// quoteBareKeys rewrites data with every unquoted object key wrapped in
// double quotes. An identifier counts as a key when the next non-space
// byte after it is a colon; quoted strings pass through untouched, so a
// colon inside a string value never triggers a rewrite.
func quoteBareKeys(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data) + 16)

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '"':
			j := i + 1
			for j < len(data) {
				if data[j] == '\\' && j+1 < len(data) {
					j += 2
					continue
				}
				if data[j] == '"' {
					j++
					break
				}
				j++
			}
			out.Write(data[i:j])
			i = j
		case isIdentByte(c):
			j := i
			for j < len(data) && isIdentByte(data[j]) {
				j++
			}
			k := j
			for k < len(data) && isSpaceByte(data[k]) {
				k++
			}
			if k < len(data) && data[k] == ':' {
				out.WriteByte('"')
				out.Write(data[i:j])
				out.WriteByte('"')
			} else {
				out.Write(data[i:j])
			}
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.Bytes()
}

func isIdentByte(c byte) bool {
	return c == '$' || c == '_' ||
		'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
