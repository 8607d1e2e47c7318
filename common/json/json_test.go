// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package json

import (
	"testing"

	"github.com/mongodb/tenant-migration/common/testtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteBareKeys(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"all keys bare",
			`{mode: "secondary", maxStalenessSeconds: 123}`,
			`{"mode": "secondary", "maxStalenessSeconds": 123}`,
		},
		{
			"mixed quoting",
			`{"mode": "secondary", tagSets: [{foo: "bar"}]}`,
			`{"mode": "secondary", "tagSets": [{"foo": "bar"}]}`,
		},
		{
			"colon inside a string value",
			`{uri: "mongodb://h:27017"}`,
			`{"uri": "mongodb://h:27017"}`,
		},
		{
			"escaped quote inside a string",
			`{note: "a \"b\": c"}`,
			`{"note": "a \"b\": c"}`,
		},
		{
			"dollar and underscore keys",
			`{$gte: 1, _id: 2}`,
			`{"$gte": 1, "_id": 2}`,
		},
		{
			"bare words as values stay bare",
			`{"a": true, "b": null, "c": 42}`,
			`{"a": true, "b": null, "c": 42}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(quoteBareKeys([]byte(tc.in))))
		})
	}
}

func TestUnmarshalRelaxedKeys(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	var doc struct {
		Mode                string              `bson:"mode"`
		TagSets             []map[string]string `bson:"tagSets"`
		MaxStalenessSeconds int64               `bson:"maxStalenessSeconds"`
	}
	err := Unmarshal(
		[]byte(`{mode: "secondary", tagSets: [{use: "reporting"}], maxStalenessSeconds: 90}`),
		&doc,
	)
	require.NoError(t, err)
	assert.Equal(t, "secondary", doc.Mode)
	require.Len(t, doc.TagSets, 1)
	assert.Equal(t, "reporting", doc.TagSets[0]["use"])
	assert.EqualValues(t, 90, doc.MaxStalenessSeconds)

	err = Unmarshal([]byte(`{mode: }`), &doc)
	assert.Error(t, err)
}
