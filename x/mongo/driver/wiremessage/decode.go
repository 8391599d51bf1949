// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"bufio"
	"io"

	"github.com/ikmak/docwire/internal/logger"
	"github.com/pkg/errors"
)

// Decode decodes the wire message in b. The returned message is one of Query, Reply, Insert,
// Update, Delete, GetMore, KillCursors, Msg or Compressed; it does not alias b.
func Decode(b []byte) (WireMessage, error) {
	hdr, err := ReadHeader(b, 0)
	if err != nil {
		return nil, err
	}

	switch hdr.OpCode {
	case OpQuery:
		var m Query
		err = m.UnmarshalWireMessage(b)
		return m, err
	case OpReply:
		var m Reply
		err = m.UnmarshalWireMessage(b)
		return m, err
	case OpInsert:
		var m Insert
		err = m.UnmarshalWireMessage(b)
		return m, err
	case OpUpdate:
		var m Update
		err = m.UnmarshalWireMessage(b)
		return m, err
	case OpDelete:
		var m Delete
		err = m.UnmarshalWireMessage(b)
		return m, err
	case OpGetMore:
		var m GetMore
		err = m.UnmarshalWireMessage(b)
		return m, err
	case OpKillCursors:
		var m KillCursors
		err = m.UnmarshalWireMessage(b)
		return m, err
	case OpMsg:
		var m Msg
		err = m.UnmarshalWireMessage(b)
		return m, err
	case OpCompressed:
		var m Compressed
		err = m.UnmarshalWireMessage(b)
		return m, err
	default:
		return nil, errors.Wrapf(ErrUnknownOpCode, "%d", int32(hdr.OpCode))
	}
}

// DecodeDecompressed decodes b like Decode, first decompressing an OP_COMPRESSED message.
func DecodeDecompressed(b []byte) (WireMessage, error) {
	return DecodeDecompressedMax(b, 0)
}

// DecodeDecompressedMax is DecodeDecompressed with a bound on the size of the original message.
// When maxSize is positive an OP_COMPRESSED message that declares a larger original is rejected
// before anything is decompressed.
func DecodeDecompressedMax(b []byte, maxSize int32) (WireMessage, error) {
	wm, err := Decode(b)
	if err != nil {
		return nil, err
	}
	c, ok := wm.(Compressed)
	if !ok {
		return wm, nil
	}
	if c.OriginalOpCode == OpCompressed {
		return nil, newError(OpCompressed, 16, "original opcode cannot be OP_COMPRESSED")
	}
	if maxSize > 0 && 16+int64(c.UncompressedSize) > int64(maxSize) {
		return nil, newError(OpCompressed, 20, "uncompressed size %d exceeds the maximum message size of %d",
			c.UncompressedSize, maxSize)
	}
	orig, err := c.Decompress()
	if err != nil {
		return nil, err
	}
	return Decode(orig)
}

// ReadWireMessage reads exactly one wire message from r. A message whose declared length is
// smaller than a header, or larger than maxSize when maxSize is positive, is rejected before its
// body is read.
func ReadWireMessage(r io.Reader, maxSize int32) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := readInt32(sizeBuf[:], 0)
	if size < 16 {
		return nil, ErrInvalidMessageLength
	}
	if maxSize > 0 && size > maxSize {
		return nil, errors.Errorf("message length %d exceeds the maximum of %d", size, maxSize)
	}

	msg := make([]byte, size)
	copy(msg, sizeBuf[:])
	if _, err := io.ReadFull(r, msg[4:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrapf(err, "reading %d byte message", size)
	}
	return msg, nil
}

// Reader reads a stream of wire messages, unwrapping compressed messages.
type Reader struct {
	r       *bufio.Reader
	maxSize int32
	log     *logger.Logger
}

// NewReader returns a Reader reading from r. A positive maxSize bounds the size of every message.
func NewReader(r io.Reader, maxSize int32, log *logger.Logger) *Reader {
	return &Reader{r: bufio.NewReader(r), maxSize: maxSize, log: log}
}

// Next returns the next message. It returns io.EOF once the stream ends between messages.
func (rd *Reader) Next() (WireMessage, error) {
	b, err := ReadWireMessage(rd.r, rd.maxSize)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			rd.log.Error(logger.ComponentWireMessage, err, "failed to read frame")
		}
		return nil, err
	}
	wm, err := DecodeDecompressedMax(b, rd.maxSize)
	if err != nil {
		rd.log.Error(logger.ComponentWireMessage, err, "failed to decode frame",
			"length", len(b), "opcode", OpCode(readInt32(b, 12)).String())
		return nil, err
	}
	return wm, nil
}
