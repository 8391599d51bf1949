// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"strings"
	"testing"

	"github.com/ikmak/docwire/bson"
	"github.com/ikmak/docwire/internal/logger"
	"github.com/ikmak/docwire/x/mongo/driver/wiremessage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeWireOptions(t *testing.T) {
	lo := Logger().SetComponentLevel(LogComponentWireMessage, LogLevelDebug)
	merged := MergeWireOptions(
		Wire().SetMaxBatchCount(10).SetCompressors([]string{"zlib"}),
		nil,
		Wire().SetMaxBatchCount(20).SetZlibLevel(9).SetLogger(lo),
	)

	require.NotNil(t, merged.MaxBatchCount)
	assert.Equal(t, int32(20), *merged.MaxBatchCount)
	assert.Equal(t, []string{"zlib"}, merged.Compressors)
	assert.Equal(t, 9, *merged.ZlibLevel)
	assert.Nil(t, merged.MaxMessageSize)
	assert.Same(t, lo, merged.Logger)
}

func TestWireOptionsValidate(t *testing.T) {
	testCases := []struct {
		name string
		opts *WireOptions
		ok   bool
	}{
		{"empty", Wire(), true},
		{"all set", Wire().SetMaxBatchCount(1).SetMaxMessageSize(1024).SetMaxDocumentSize(512).
			SetCompressors([]string{"zstd", "snappy", "noop"}).SetZlibLevel(-1).SetZstdLevel(20), true},
		{"zero batch count", Wire().SetMaxBatchCount(0), false},
		{"negative message size", Wire().SetMaxMessageSize(-5), false},
		{"zlib level too high", Wire().SetZlibLevel(10), false},
		{"zstd level too low", Wire().SetZstdLevel(0), false},
		{"unknown compressor", Wire().SetCompressors([]string{"lz4"}), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWireOptionsBatchLimits(t *testing.T) {
	assert.Equal(t, wiremessage.DefaultBatchLimits, Wire().BatchLimits())

	limits := Wire().SetMaxBatchCount(2).SetMaxDocumentSize(100).BatchLimits()
	assert.Equal(t, wiremessage.BatchLimits{
		MaxBatchCount:   2,
		MaxMessageSize:  wiremessage.DefaultBatchLimits.MaxMessageSize,
		MaxDocumentSize: 100,
	}, limits)
}

func TestWireOptionsCompressionOpts(t *testing.T) {
	opts, err := Wire().CompressionOpts()
	require.NoError(t, err)
	assert.Equal(t, wiremessage.CompressorNoOp, opts.Compressor)
	assert.Equal(t, wiremessage.DefaultZlibLevel, opts.ZlibLevel)

	opts, err = Wire().SetCompressors([]string{"ZSTD", "zlib"}).SetZstdLevel(3).CompressionOpts()
	require.NoError(t, err)
	assert.Equal(t, wiremessage.CompressorZstd, opts.Compressor)
	assert.Equal(t, 3, opts.ZstdLevel)

	_, err = Wire().SetCompressors([]string{"brotli"}).CompressionOpts()
	assert.True(t, errors.Is(err, wiremessage.ErrUnknownCompressor))
}

func TestBSONOptionsContexts(t *testing.T) {
	bo := MergeBSONOptions(
		BSON().SetMinSize(true).SetDefaultDocumentM(true),
		BSON().SetDefaultDocumentM(false).SetNilSliceAsEmpty(true).SetAllowTruncatingDoubles(true),
	)

	ec := bo.EncodeContext(nil)
	assert.Same(t, bson.DefaultRegistry, ec.Registry)
	assert.True(t, ec.MinSize)
	assert.True(t, ec.NilSliceAsEmpty)
	assert.False(t, ec.NilMapAsEmpty)

	r := bson.NewRegistry()
	dc := bo.DecodeContext(r)
	assert.Same(t, r, dc.Registry)
	assert.True(t, dc.Truncate)
	assert.False(t, dc.DefaultDocumentM)
	assert.False(t, dc.AllowOverflow)

	b, err := bson.MarshalWithContext(ec, struct{ N int64 }{N: 5})
	require.NoError(t, err)
	assert.Equal(t, bson.TypeInt32, bson.Raw(b).Lookup("N").Type)
}

type countingSink struct {
	infos int
}

func (s *countingSink) Info(int, string, ...interface{}) { s.infos++ }
func (s *countingSink) Error(error, string, ...interface{}) {}

func TestLoggerOptionsNewLogger(t *testing.T) {
	sink := &countingSink{}
	l := Logger().
		SetSink(sink).
		SetComponentLevel(LogComponentCompression, LogLevelDebug).
		NewLogger()

	assert.True(t, l.LevelComponentEnabled(logger.DebugLevel, logger.ComponentCompression))
	assert.False(t, l.LevelComponentEnabled(logger.DebugLevel, logger.ComponentSerialization))

	l.Print(logger.DebugLevel, logger.ComponentCompression, "compressed")
	l.Print(logger.DebugLevel, logger.ComponentWireMessage, "dropped")
	assert.Equal(t, 1, sink.infos)

	var nilOpts *LoggerOptions
	assert.NotNil(t, nilOpts.NewLogger())
}

func TestLoadWireOptions(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		doc := `
max_batch_count = 500
max_message_size = 1048576
compressors = ["zstd", "snappy"]
zstd_level = 3

[log]
serialization = "debug"
wire = "info"
`
		wo, err := LoadWireOptions(strings.NewReader(doc))
		require.NoError(t, err)
		assert.Equal(t, int32(500), *wo.MaxBatchCount)
		assert.Equal(t, int32(1048576), *wo.MaxMessageSize)
		assert.Nil(t, wo.MaxDocumentSize)
		assert.Equal(t, []string{"zstd", "snappy"}, wo.Compressors)
		assert.Nil(t, wo.ZlibLevel)
		assert.Equal(t, 3, *wo.ZstdLevel)
		require.NotNil(t, wo.Logger)
		assert.Equal(t, map[LogComponent]LogLevel{
			LogComponentSerialization: LogLevelDebug,
			LogComponentWireMessage:   LogLevelInfo,
		}, wo.Logger.ComponentLevels)

		merged := MergeWireOptions(Wire().SetMaxDocumentSize(1024), wo)
		assert.Equal(t, 1024, merged.BatchLimits().MaxDocumentSize)
		assert.Equal(t, 500, merged.BatchLimits().MaxBatchCount)
	})
	t.Run("empty", func(t *testing.T) {
		wo, err := LoadWireOptions(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, Wire(), wo)
	})

	errCases := []struct {
		name string
		doc  string
	}{
		{"malformed", "max_batch_count = ["},
		{"invalid level", "zlib_level = 12"},
		{"unknown compressor", `compressors = ["lz4"]`},
		{"unknown component", "[log]\nnetwork = \"debug\""},
		{"wrong type", `max_batch_count = "ten"`},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadWireOptions(strings.NewReader(tc.doc))
			assert.Error(t, err)
		})
	}
}
