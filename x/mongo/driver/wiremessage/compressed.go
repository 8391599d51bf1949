// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"

	"github.com/ikmak/docwire/internal/logger"
	"github.com/pkg/errors"
)

// Compressed represents the OP_COMPRESSED message of the wire protocol. Only the body of the
// original message is compressed; its header is rebuilt from OriginalOpCode and UncompressedSize.
type Compressed struct {
	MsgHeader         Header
	OriginalOpCode    OpCode
	UncompressedSize  int32
	CompressorID      CompressorID
	CompressedMessage []byte
}

var _ WireMessage = Compressed{}

// NewCompressed compresses the body of the encoded wire message wm. The returned message keeps
// the request id and response-to of wm.
func NewCompressed(wm []byte, opts CompressionOpts) (Compressed, error) {
	hdr, err := ReadHeader(wm, 0)
	if err != nil {
		return Compressed{}, err
	}
	if int(hdr.MessageLength) != len(wm) {
		return Compressed{}, errors.Wrapf(ErrInvalidHeader, "message length is %d but %d bytes were provided", hdr.MessageLength, len(wm))
	}
	if hdr.OpCode == OpCompressed {
		return Compressed{}, errors.New("cannot compress an OP_COMPRESSED message")
	}
	body, err := CompressPayload(wm[16:], opts)
	if err != nil {
		return Compressed{}, err
	}
	return Compressed{
		MsgHeader:         Header{RequestID: hdr.RequestID, ResponseTo: hdr.ResponseTo},
		OriginalOpCode:    hdr.OpCode,
		UncompressedSize:  int32(len(wm) - 16),
		CompressorID:      opts.Compressor,
		CompressedMessage: body,
	}, nil
}

// CompressWireMessage returns wm compressed as an OP_COMPRESSED message. Messages running a
// command that must not be compressed are returned unchanged.
func CompressWireMessage(wm []byte, opts CompressionOpts, log *logger.Logger) ([]byte, error) {
	if opts.Compressor == CompressorNoOp {
		return wm, nil
	}
	decoded, err := Decode(wm)
	if err != nil {
		return nil, err
	}
	if name := commandName(decoded); name != "" && !CanCompress(name) {
		log.Print(logger.DebugLevel, logger.ComponentCompression, "compression skipped",
			"command", name, "compressor", opts.Compressor.String())
		return wm, nil
	}

	c, err := NewCompressed(wm, opts)
	if err != nil {
		log.Error(logger.ComponentCompression, err, "compression failed", "compressor", opts.Compressor.String())
		return nil, err
	}
	out, err := c.MarshalWireMessage()
	if err != nil {
		return nil, err
	}
	log.Print(logger.DebugLevel, logger.ComponentCompression, "message compressed",
		"compressor", opts.Compressor.String(), "opcode", c.OriginalOpCode.String(),
		"uncompressedBytes", len(wm), "compressedBytes", len(out))
	return out, nil
}

func commandName(wm WireMessage) string {
	switch m := wm.(type) {
	case Msg:
		return m.CommandName()
	case Query:
		return m.CommandName()
	default:
		return ""
	}
}

// OpCode implements the WireMessage interface.
func (c Compressed) OpCode() OpCode { return OpCompressed }

// MarshalWireMessage implements the Marshaler and WireMessage interfaces.
func (c Compressed) MarshalWireMessage() ([]byte, error) {
	b := make([]byte, 0, c.Len())
	return c.AppendWireMessage(b)
}

// ValidateWireMessage implements the Validator and WireMessage interfaces.
func (c Compressed) ValidateWireMessage() error {
	if int(c.MsgHeader.MessageLength) != c.Len() {
		return newError(OpCompressed, 0, "incorrect header: message length is not correct")
	}
	if c.MsgHeader.OpCode != OpCompressed {
		return newError(OpCompressed, 12, "incorrect header: op code is not OpCompressed")
	}
	if c.OriginalOpCode == OpCompressed {
		return newError(OpCompressed, 16, "original opcode cannot be OP_COMPRESSED")
	}
	if c.CompressorID > CompressorZstd {
		return newError(OpCompressed, 24, "%v: id %d", ErrUnknownCompressor, c.CompressorID)
	}
	return nil
}

// AppendWireMessage implements the Appender and WireMessage interfaces.
//
// AppendWireMessage will set the MessageLength property of the MsgHeader if it is zero. It will
// also set the OpCode to OpCompressed if the OpCode is zero.
func (c Compressed) AppendWireMessage(b []byte) ([]byte, error) {
	err := c.MsgHeader.SetDefaults(c.Len(), OpCompressed)

	b = c.MsgHeader.AppendHeader(b)
	b = appendInt32(b, int32(c.OriginalOpCode))
	b = appendInt32(b, c.UncompressedSize)
	b = append(b, byte(c.CompressorID))
	b = append(b, c.CompressedMessage...)
	return b, err
}

// String implements the fmt.Stringer interface.
func (c Compressed) String() string {
	return fmt.Sprintf(
		`OP_COMPRESSED{MsgHeader: %s, OriginalOpCode: %s, UncompressedSize: %d, CompressorID: %s, CompressedMessage: %d bytes}`,
		c.MsgHeader, c.OriginalOpCode, c.UncompressedSize, c.CompressorID, len(c.CompressedMessage),
	)
}

// Len implements the WireMessage interface.
func (c Compressed) Len() int {
	// Header + OpCode + UncompressedSize + CompressorId + CompressedMessage
	return 16 + 4 + 4 + 1 + len(c.CompressedMessage)
}

// UnmarshalWireMessage implements the Unmarshaler interface.
func (c *Compressed) UnmarshalWireMessage(b []byte) error {
	hdr, err := checkLength(b, OpCompressed)
	if err != nil {
		return err
	}
	if len(b) < 25 {
		return newError(OpCompressed, len(b), "message too short")
	}
	c.MsgHeader = hdr
	c.OriginalOpCode = OpCode(readInt32(b, 16))
	c.UncompressedSize = readInt32(b, 20)
	c.CompressorID = CompressorID(b[24])
	if c.UncompressedSize < 0 {
		return newError(OpCompressed, 20, "negative uncompressed size %d", c.UncompressedSize)
	}
	c.CompressedMessage = make([]byte, len(b)-25)
	copy(c.CompressedMessage, b[25:])
	return nil
}

// Decompress returns the original wire message, header included.
func (c Compressed) Decompress() ([]byte, error) {
	body, err := DecompressPayload(c.CompressedMessage, CompressionOpts{
		Compressor:       c.CompressorID,
		UncompressedSize: c.UncompressedSize,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing %v payload", c.OriginalOpCode)
	}
	hdr := Header{
		MessageLength: 16 + c.UncompressedSize,
		RequestID:     c.MsgHeader.RequestID,
		ResponseTo:    c.MsgHeader.ResponseTo,
		OpCode:        c.OriginalOpCode,
	}
	out := make([]byte, 0, hdr.MessageLength)
	out = hdr.AppendHeader(out)
	return append(out, body...), nil
}
