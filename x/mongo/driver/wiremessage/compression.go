// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// ErrUnknownCompressor is returned for a compressor id or name that is not supported.
var ErrUnknownCompressor = errors.New("unknown compressor")

// CompressorID is the ID for each type of Compressor.
type CompressorID uint8

// These constants represent the individual compressor IDs for an OP_COMPRESSED.
const (
	CompressorNoOp CompressorID = iota
	CompressorSnappy
	CompressorZLib
	CompressorZstd
)

// String implements the fmt.Stringer interface.
func (id CompressorID) String() string {
	switch id {
	case CompressorNoOp:
		return "CompressorNoOp"
	case CompressorSnappy:
		return "CompressorSnappy"
	case CompressorZLib:
		return "CompressorZLib"
	case CompressorZstd:
		return "CompressorZstd"
	default:
		return "CompressorInvalid"
	}
}

// CompressorFromName returns the id of the compressor with the given name. Names are "noop",
// "snappy", "zlib" and "zstd".
func CompressorFromName(name string) (CompressorID, error) {
	switch strings.ToLower(name) {
	case "noop":
		return CompressorNoOp, nil
	case "snappy":
		return CompressorSnappy, nil
	case "zlib":
		return CompressorZLib, nil
	case "zstd":
		return CompressorZstd, nil
	default:
		return 0, errors.Wrapf(ErrUnknownCompressor, "%q", name)
	}
}

const (
	// DefaultZlibLevel is the default level for zlib compression
	DefaultZlibLevel = 6
	// DefaultZstdLevel is the default level for zstd compression.
	// Matches https://github.com/wiredtiger/wiredtiger/blob/f08bc4b18612ef95a39b12166abcccf207f91596/ext/compressors/zstd/zstd_compress.c#L299
	DefaultZstdLevel = 6
)

// CompressionOpts holds settings for how to compress a payload
type CompressionOpts struct {
	Compressor       CompressorID
	ZlibLevel        int
	ZstdLevel        int
	UncompressedSize int32
}

// uncompressibleCommands are never sent compressed since they carry credentials or take part in
// the connection handshake.
var uncompressibleCommands = map[string]struct{}{
	"hello":           {},
	"ismaster":        {},
	"saslstart":       {},
	"saslcontinue":    {},
	"getnonce":        {},
	"authenticate":    {},
	"createuser":      {},
	"updateuser":      {},
	"copydbsaslstart": {},
	"copydbgetnonce":  {},
	"copydb":          {},
}

// CanCompress reports whether a message running the named command may be compressed.
func CanCompress(commandName string) bool {
	_, ok := uncompressibleCommands[strings.ToLower(commandName)]
	return !ok
}

type zstdEncoderKey struct {
	level      zstd.EncoderLevel
	windowSize int
}

var zstdEncoders sync.Map // map[zstdEncoderKey]*zstd.Encoder

func getZstdEncoder(level zstd.EncoderLevel, windowSize int) (*zstd.Encoder, error) {
	key := zstdEncoderKey{level: level, windowSize: windowSize}
	if v, ok := zstdEncoders.Load(key); ok {
		return v.(*zstd.Encoder), nil
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithWindowSize(windowSize))
	if err != nil {
		return nil, err
	}
	v, _ := zstdEncoders.LoadOrStore(key, encoder)
	return v.(*zstd.Encoder), nil
}

func calcZstdWindowSize(n int, l zstd.EncoderLevel) int {
	if n <= zstd.MinWindowSize {
		return zstd.MinWindowSize
	}
	windowSize := zstd.MinWindowSize
	// Map the window size with compression levels as the zstd package does.
	switch l {
	case zstd.SpeedFastest:
		windowSize = 4 << 20
	case zstd.SpeedDefault:
		windowSize = 8 << 20
	case zstd.SpeedBetterCompression:
		windowSize = 16 << 20
	case zstd.SpeedBestCompression:
		windowSize = 32 << 20
	}
	if windowSize > zstd.MaxWindowSize {
		windowSize = zstd.MaxWindowSize
	}
	// Reduce the window size to the closest power of 2 that can hold the input size.
	for windowSize/2 > n {
		windowSize /= 2
	}
	return windowSize
}

// CompressPayload takes a byte slice and compresses it according to the options passed
func CompressPayload(in []byte, opts CompressionOpts) ([]byte, error) {
	switch opts.Compressor {
	case CompressorNoOp:
		return in, nil
	case CompressorSnappy:
		return snappy.Encode(nil, in), nil
	case CompressorZLib:
		var b bytes.Buffer
		w, err := zlib.NewWriterLevel(&b, opts.ZlibLevel)
		if err != nil {
			return nil, err
		}
		if _, err = w.Write(in); err != nil {
			_ = w.Close()
			return nil, err
		}
		if err = w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	case CompressorZstd:
		level := zstd.EncoderLevelFromZstd(opts.ZstdLevel)
		encoder, err := getZstdEncoder(level, calcZstdWindowSize(len(in), level))
		if err != nil {
			return nil, err
		}
		return encoder.EncodeAll(in, nil), nil
	default:
		return nil, errors.Wrapf(ErrUnknownCompressor, "id %d", opts.Compressor)
	}
}

// DecompressPayload takes a byte slice that has been compressed and undoes it according to the
// options passed. The result must be exactly UncompressedSize bytes long. Streams that inflate
// past UncompressedSize are cut off after one extra byte, so a corrupt size cannot force a large
// allocation.
func DecompressPayload(in []byte, opts CompressionOpts) ([]byte, error) {
	if opts.UncompressedSize < 0 {
		return nil, errors.Errorf("negative uncompressed size %d", opts.UncompressedSize)
	}
	var out []byte
	var err error
	switch opts.Compressor {
	case CompressorNoOp:
		out = in
	case CompressorSnappy:
		var n int
		if n, err = snappy.DecodedLen(in); err != nil {
			return nil, err
		}
		if n != int(opts.UncompressedSize) {
			return nil, errors.Errorf("snappy payload decodes to %d bytes, expected %d", n, opts.UncompressedSize)
		}
		out, err = snappy.Decode(make([]byte, n), in)
	case CompressorZLib:
		var r io.ReadCloser
		if r, err = zlib.NewReader(bytes.NewReader(in)); err != nil {
			return nil, err
		}
		defer r.Close()
		out, err = readAtMost(r, opts.UncompressedSize)
	case CompressorZstd:
		var dec *zstd.Decoder
		if dec, err = zstd.NewReader(bytes.NewReader(in), zstd.WithDecoderConcurrency(1)); err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err = readAtMost(dec, opts.UncompressedSize)
	default:
		return nil, errors.Wrapf(ErrUnknownCompressor, "id %d", opts.Compressor)
	}
	if err != nil {
		return nil, err
	}
	if len(out) != int(opts.UncompressedSize) {
		return nil, errors.Errorf("payload decompressed to %d bytes, expected %d", len(out), opts.UncompressedSize)
	}
	return out, nil
}

// readAtMost reads r to the end, stopping one byte past n.
func readAtMost(r io.Reader, n int32) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, int64(n)+1))
}
