// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ikmak/docwire/bson"
	"github.com/ikmak/docwire/x/mongo/driver/wiremessage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captured(t *testing.T) []byte {
	t.Helper()
	docs := []interface{}{
		bson.D{{Key: "_id", Value: int32(1)}, {Key: "name", Value: "ada"}},
		bson.D{{Key: "_id", Value: int32(2)}, {Key: "name", Value: "grace"}},
	}

	enc := wiremessage.NewInsertCommand("shop", "people", true)
	msg, err := enc.Encode(10, wiremessage.NewBatchProgress(docs, false))
	require.NoError(t, err)

	legacy := &wiremessage.InsertEncoder{FullCollectionName: "shop.people"}
	ins, err := legacy.Encode(11, wiremessage.NewBatchProgress(docs[:1], false))
	require.NoError(t, err)

	compressed, err := wiremessage.CompressWireMessage(msg.Message, wiremessage.CompressionOpts{
		Compressor: wiremessage.CompressorSnappy,
	}, nil)
	require.NoError(t, err)
	require.NotEqual(t, msg.Message, compressed)

	var stream []byte
	stream = append(stream, msg.Message...)
	stream = append(stream, ins.Message...)
	stream = append(stream, compressed...)
	return stream
}

func TestDump(t *testing.T) {
	stream := captured(t)

	testCases := []struct {
		name     string
		cfg      dumpConfig
		contains []string
	}{
		{
			"summary",
			dumpConfig{},
			[]string{"#0 OP_MSG", "#1 OP_INSERT", "#2 OP_MSG", "shop.people"},
		},
		{
			"documents",
			dumpConfig{Documents: true},
			[]string{"body:", "documents[0]:", "documents[1]:", `"name": "grace"`, `"$db": "shop"`},
		},
		{
			"verbose",
			dumpConfig{Verbose: true},
			[]string{"wiremessage.Msg{", "wiremessage.Insert{"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			n, err := dump(&out, bytes.NewReader(stream), tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			for _, s := range tc.contains {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestDumpErrors(t *testing.T) {
	stream := captured(t)

	t.Run("truncated", func(t *testing.T) {
		var out bytes.Buffer
		n, err := dump(&out, bytes.NewReader(stream[:len(stream)-3]), dumpConfig{})
		assert.Error(t, err)
		assert.Equal(t, 2, n)
		assert.True(t, strings.HasPrefix(out.String(), "#0"))
	})
	t.Run("too large", func(t *testing.T) {
		var out bytes.Buffer
		n, err := dump(&out, bytes.NewReader(stream), dumpConfig{MaxSize: 20})
		assert.Error(t, err)
		assert.Equal(t, 0, n)
	})
	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		n, err := dump(&out, bytes.NewReader(nil), dumpConfig{})
		assert.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Empty(t, out.String())
	})
}
