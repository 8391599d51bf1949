// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"bytes"
	"testing"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompression(t *testing.T) {
	compressors := []CompressorID{
		CompressorNoOp,
		CompressorSnappy,
		CompressorZLib,
		CompressorZstd,
	}

	for _, compressor := range compressors {
		t.Run(compressor.String(), func(t *testing.T) {
			payload := []byte("test payload " + compressor.String() + " " + string(bytes.Repeat([]byte{'a'}, 1024)))
			opts := CompressionOpts{
				Compressor:       compressor,
				ZlibLevel:        DefaultZlibLevel,
				ZstdLevel:        DefaultZstdLevel,
				UncompressedSize: int32(len(payload)),
			}
			compressed, err := CompressPayload(payload, opts)
			require.NoError(t, err)
			if compressor != CompressorNoOp {
				assert.Less(t, len(compressed), len(payload))
			}

			decompressed, err := DecompressPayload(compressed, opts)
			require.NoError(t, err)
			assert.Equal(t, payload, decompressed)
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	payload := bytes.Repeat([]byte{'b'}, 256)
	for _, id := range []CompressorID{CompressorSnappy, CompressorZLib, CompressorZstd} {
		opts := CompressionOpts{Compressor: id, ZlibLevel: DefaultZlibLevel, ZstdLevel: DefaultZstdLevel}
		compressed, err := CompressPayload(payload, opts)
		require.NoError(t, err)

		opts.UncompressedSize = int32(len(payload) + 1)
		_, err = DecompressPayload(compressed, opts)
		assert.Error(t, err, "%v accepted a wrong uncompressed size", id)
	}
}

func TestUnknownCompressor(t *testing.T) {
	_, err := CompressPayload([]byte{1}, CompressionOpts{Compressor: 9})
	assert.True(t, errors.Is(err, ErrUnknownCompressor))
	_, err = DecompressPayload([]byte{1}, CompressionOpts{Compressor: 9})
	assert.True(t, errors.Is(err, ErrUnknownCompressor))
	_, err = CompressorFromName("lz4")
	assert.True(t, errors.Is(err, ErrUnknownCompressor))

	id, err := CompressorFromName("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressorZstd, id)
}

func TestCompressedMessage(t *testing.T) {
	idx, b := bsoncore.AppendDocumentStart(nil)
	b = bsoncore.AppendStringElement(b, "insert", "coll")
	b = bsoncore.AppendStringElement(b, "filler", string(bytes.Repeat([]byte{'z'}, 512)))
	body, err := bsoncore.AppendDocumentEnd(b, idx)
	require.NoError(t, err)

	orig, err := Msg{MsgHeader: Header{RequestID: 11, ResponseTo: 3}, Sections: []Section{SectionBody{Document: body}}}.MarshalWireMessage()
	require.NoError(t, err)

	for _, id := range []CompressorID{CompressorSnappy, CompressorZLib, CompressorZstd} {
		t.Run(id.String(), func(t *testing.T) {
			out, err := CompressWireMessage(orig, CompressionOpts{Compressor: id, ZlibLevel: DefaultZlibLevel, ZstdLevel: DefaultZstdLevel}, nil)
			require.NoError(t, err)

			hdr, err := ReadHeader(out, 0)
			require.NoError(t, err)
			assert.Equal(t, OpCompressed, hdr.OpCode)
			assert.Equal(t, int32(11), hdr.RequestID)
			assert.Equal(t, int32(3), hdr.ResponseTo)
			assert.Less(t, len(out), len(orig))

			wm, err := DecodeDecompressed(out)
			require.NoError(t, err)
			msg, ok := wm.(Msg)
			require.True(t, ok, "expected Msg, got %T", wm)
			assert.Equal(t, bsoncore.Document(body), msg.Body())

			c, err := Decode(out)
			require.NoError(t, err)
			raw, err := c.(Compressed).Decompress()
			require.NoError(t, err)
			assert.Equal(t, orig, raw)
		})
	}
}

func TestCompressWireMessageSkipsHandshake(t *testing.T) {
	for _, name := range []string{"hello", "isMaster", "saslStart", "saslContinue", "authenticate", "createUser"} {
		t.Run(name, func(t *testing.T) {
			idx, b := bsoncore.AppendDocumentStart(nil)
			b = bsoncore.AppendInt32Element(b, name, 1)
			body, err := bsoncore.AppendDocumentEnd(b, idx)
			require.NoError(t, err)

			orig, err := Msg{Sections: []Section{SectionBody{Document: body}}}.MarshalWireMessage()
			require.NoError(t, err)
			out, err := CompressWireMessage(orig, CompressionOpts{Compressor: CompressorSnappy}, nil)
			require.NoError(t, err)
			assert.Equal(t, orig, out)
		})
	}

	assert.True(t, CanCompress("insert"))
	assert.False(t, CanCompress("ISMASTER"))
}

func TestCalcZstdWindowSize(t *testing.T) {
	assert.Equal(t, zstd.MinWindowSize, calcZstdWindowSize(10, zstd.SpeedDefault))
	assert.Equal(t, 8<<20, calcZstdWindowSize(64<<20, zstd.SpeedDefault))
	assert.Equal(t, 1<<20, calcZstdWindowSize(1<<20-1, zstd.SpeedBestCompression))
	assert.Equal(t, 2<<20, calcZstdWindowSize(1<<20, zstd.SpeedBestCompression))
}

func TestDecompressBounds(t *testing.T) {
	payload := bytes.Repeat([]byte{'q'}, 100)

	for _, id := range []CompressorID{CompressorSnappy, CompressorZLib, CompressorZstd} {
		t.Run(id.String(), func(t *testing.T) {
			in, err := CompressPayload(payload, CompressionOpts{Compressor: id, ZlibLevel: DefaultZlibLevel, ZstdLevel: DefaultZstdLevel})
			require.NoError(t, err)

			_, err = DecompressPayload(in, CompressionOpts{Compressor: id, UncompressedSize: 10})
			assert.Error(t, err, "inflating past the declared size must fail")

			_, err = DecompressPayload(in, CompressionOpts{Compressor: id, UncompressedSize: 1 << 30})
			assert.Error(t, err, "inflating short of the declared size must fail")

			out, err := DecompressPayload(in, CompressionOpts{Compressor: id, UncompressedSize: 100})
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}
}

func TestReaderRejectsOversizeDecompression(t *testing.T) {
	in, err := CompressPayload([]byte{1, 2, 3}, CompressionOpts{Compressor: CompressorZLib, ZlibLevel: DefaultZlibLevel})
	require.NoError(t, err)
	frame, err := Compressed{
		MsgHeader:         Header{RequestID: 1},
		OriginalOpCode:    OpMsg,
		UncompressedSize:  1 << 30,
		CompressorID:      CompressorZLib,
		CompressedMessage: in,
	}.MarshalWireMessage()
	require.NoError(t, err)
	require.Less(t, len(frame), 1024)

	_, err = NewReader(bytes.NewReader(frame), 1024, nil).Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the maximum message size")

	_, err = DecodeDecompressedMax(frame, 1024)
	assert.Error(t, err)
}
