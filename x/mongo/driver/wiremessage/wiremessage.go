// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wiremessage contains the message types of the wire protocol, their binary encoders and
// decoders, payload compression and the batch-splitting encoders used for bulk writes.
package wiremessage

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrInvalidHeader is returned when a header does not describe the message it precedes.
var ErrInvalidHeader = errors.New("invalid header")

// ErrHeaderTooSmall is returned when fewer than 16 bytes are available for a header.
var ErrHeaderTooSmall = errors.New("the header is too small to be valid")

// ErrInvalidMessageLength is returned when the message length is smaller than a header.
var ErrInvalidMessageLength = errors.New("the message length is too small, it must be at least 16")

// ErrUnknownOpCode is returned when decoding a message with an unsupported opcode.
var ErrUnknownOpCode = errors.New("unknown opcode")

var globalRequestID int32

// CurrentRequestID returns the current request ID.
func CurrentRequestID() int32 { return atomic.LoadInt32(&globalRequestID) }

// NextRequestID returns the next request ID.
func NextRequestID() int32 { return atomic.AddInt32(&globalRequestID, 1) }

// WireMessage represents a message of the wire protocol.
type WireMessage interface {
	Marshaler
	Validator
	Appender
	fmt.Stringer

	// OpCode returns the opcode of the message.
	OpCode() OpCode

	// Len returns the length in bytes of this WireMessage.
	Len() int
}

// Validator is the interface implemented by types that can validate themselves as a
// WireMessage.
type Validator interface {
	ValidateWireMessage() error
}

// Marshaler is the interface implemented by types that can marshal themselves into a valid
// WireMessage.
type Marshaler interface {
	MarshalWireMessage() ([]byte, error)
}

// Appender is the interface implemented by types that can append themselves, as a
// WireMessage, onto a byte slice.
type Appender interface {
	AppendWireMessage([]byte) ([]byte, error)
}

// Unmarshaler is the interface implemented by types that can unmarshal a WireMessage
// representation of themselves. The data is copied when it must be retained.
type Unmarshaler interface {
	UnmarshalWireMessage([]byte) error
}

// OpCode represents a wire protocol opcode.
type OpCode int32

// These constants are the opcodes of the wire protocol. The skipped values are historical opcodes
// that are no longer used.
const (
	OpReply        OpCode = 1
	_              OpCode = 1001
	OpUpdate       OpCode = 2001
	OpInsert       OpCode = 2002
	_              OpCode = 2003
	OpQuery        OpCode = 2004
	OpGetMore      OpCode = 2005
	OpDelete       OpCode = 2006
	OpKillCursors  OpCode = 2007
	OpCommand      OpCode = 2010
	OpCommandReply OpCode = 2011
	OpCompressed   OpCode = 2012
	OpMsg          OpCode = 2013
)

// String implements the fmt.Stringer interface.
func (oc OpCode) String() string {
	switch oc {
	case OpReply:
		return "OP_REPLY"
	case OpUpdate:
		return "OP_UPDATE"
	case OpInsert:
		return "OP_INSERT"
	case OpQuery:
		return "OP_QUERY"
	case OpGetMore:
		return "OP_GET_MORE"
	case OpDelete:
		return "OP_DELETE"
	case OpKillCursors:
		return "OP_KILL_CURSORS"
	case OpCommand:
		return "OP_COMMAND"
	case OpCommandReply:
		return "OP_COMMANDREPLY"
	case OpCompressed:
		return "OP_COMPRESSED"
	case OpMsg:
		return "OP_MSG"
	default:
		return "<invalid opcode>"
	}
}

// QueryFlag represents the flags on an OP_QUERY message.
type QueryFlag int32

// These constants represent the individual flags on an OP_QUERY message.
const (
	_ QueryFlag = 1 << iota
	TailableCursor
	SecondaryOK
	OplogReplay
	NoCursorTimeout
	AwaitData
	Exhaust
	Partial
)

// String implements the fmt.Stringer interface.
func (qf QueryFlag) String() string {
	return flagString(int64(qf), []flagName{
		{int64(TailableCursor), "TailableCursor"},
		{int64(SecondaryOK), "SecondaryOK"},
		{int64(OplogReplay), "OplogReplay"},
		{int64(NoCursorTimeout), "NoCursorTimeout"},
		{int64(AwaitData), "AwaitData"},
		{int64(Exhaust), "Exhaust"},
		{int64(Partial), "Partial"},
	})
}

// ReplyFlag represents the flags of an OP_REPLY message.
type ReplyFlag int32

// These constants represent the individual flags of an OP_REPLY message.
const (
	CursorNotFound ReplyFlag = 1 << iota
	QueryFailure
	ShardConfigStale
	AwaitCapable
)

// String implements the fmt.Stringer interface.
func (rf ReplyFlag) String() string {
	return flagString(int64(rf), []flagName{
		{int64(CursorNotFound), "CursorNotFound"},
		{int64(QueryFailure), "QueryFailure"},
		{int64(ShardConfigStale), "ShardConfigStale"},
		{int64(AwaitCapable), "AwaitCapable"},
	})
}

// UpdateFlag represents the flags on an OP_UPDATE message.
type UpdateFlag int32

// These constants represent the individual flags on an OP_UPDATE message.
const (
	Upsert UpdateFlag = 1 << iota
	MultiUpdate
)

// String implements the fmt.Stringer interface.
func (uf UpdateFlag) String() string {
	return flagString(int64(uf), []flagName{
		{int64(Upsert), "Upsert"},
		{int64(MultiUpdate), "MultiUpdate"},
	})
}

// InsertFlag represents the flags on an OP_INSERT message.
type InsertFlag int32

// These constants represent the individual flags on an OP_INSERT message.
const (
	ContinueOnError InsertFlag = 1 << iota
)

// String implements the fmt.Stringer interface.
func (inf InsertFlag) String() string {
	return flagString(int64(inf), []flagName{{int64(ContinueOnError), "ContinueOnError"}})
}

// DeleteFlag represents the flags on an OP_DELETE message.
type DeleteFlag int32

// These constants represent the individual flags on an OP_DELETE message.
const (
	SingleRemove DeleteFlag = 1 << iota
)

// String implements the fmt.Stringer interface.
func (df DeleteFlag) String() string {
	return flagString(int64(df), []flagName{{int64(SingleRemove), "SingleRemove"}})
}

// MsgFlag represents the flags on an OP_MSG message.
type MsgFlag uint32

// These constants represent the individual flags on an OP_MSG message.
const (
	ChecksumPresent MsgFlag = 1 << iota
	MoreToCome

	ExhaustAllowed MsgFlag = 1 << 16
)

// String implements the fmt.Stringer interface.
func (mf MsgFlag) String() string {
	return flagString(int64(mf), []flagName{
		{int64(ChecksumPresent), "ChecksumPresent"},
		{int64(MoreToCome), "MoreToCome"},
		{int64(ExhaustAllowed), "ExhaustAllowed"},
	})
}

type flagName struct {
	bit  int64
	name string
}

func flagString(v int64, names []flagName) string {
	strs := make([]string, 0, len(names))
	for _, fn := range names {
		if v&fn.bit == fn.bit {
			strs = append(strs, fn.name)
		}
	}
	return "[" + strings.Join(strs, ", ") + "]"
}

// SectionType represents the type for 1 section in an OP_MSG
type SectionType uint8

// These constants represent the individual section types for a section in an OP_MSG
const (
	SingleDocument SectionType = iota
	DocumentSequence
)

// Header represents the header shared by every wire message.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        OpCode
}

// String implements the fmt.Stringer interface.
func (h Header) String() string {
	return fmt.Sprintf(
		`Header{MessageLength: %d, RequestID: %d, ResponseTo: %d, OpCode: %v}`,
		h.MessageLength, h.RequestID, h.ResponseTo, h.OpCode,
	)
}

// AppendHeader appends the header to b.
func (h Header) AppendHeader(b []byte) []byte {
	b = appendInt32(b, h.MessageLength)
	b = appendInt32(b, h.RequestID)
	b = appendInt32(b, h.ResponseTo)
	b = appendInt32(b, int32(h.OpCode))
	return b
}

// SetDefaults sets the length and opcode of the header when they are zero. It returns
// ErrInvalidHeader if either is set to a different value.
func (h *Header) SetDefaults(length int, opcode OpCode) error {
	switch h.MessageLength {
	case int32(length):
	case 0:
		h.MessageLength = int32(length)
	default:
		return errors.Wrapf(ErrInvalidHeader, "message length is %d, expected %d", h.MessageLength, length)
	}
	switch h.OpCode {
	case opcode:
	case 0:
		h.OpCode = opcode
	default:
		return errors.Wrapf(ErrInvalidHeader, "opcode is %v, expected %v", h.OpCode, opcode)
	}
	return nil
}

// ReadHeader reads a header from b starting at pos.
func ReadHeader(b []byte, pos int32) (Header, error) {
	if len(b) < int(pos)+16 {
		return Header{}, ErrHeaderTooSmall
	}
	hdr := Header{
		MessageLength: readInt32(b, pos),
		RequestID:     readInt32(b, pos+4),
		ResponseTo:    readInt32(b, pos+8),
		OpCode:        OpCode(readInt32(b, pos+12)),
	}
	if hdr.MessageLength < 16 {
		return Header{}, ErrInvalidMessageLength
	}
	return hdr, nil
}

// AppendHeaderStart appends a header with a length placeholder to dst and returns the index of
// the placeholder. The length is set with UpdateLength once the message is complete.
func AppendHeaderStart(dst []byte, reqid, respto int32, opcode OpCode) (index int32, b []byte) {
	index = int32(len(dst))
	dst = appendInt32(dst, 0)
	dst = appendInt32(dst, reqid)
	dst = appendInt32(dst, respto)
	dst = appendInt32(dst, int32(opcode))
	return index, dst
}

// UpdateLength writes the length of the message that starts at index into its header.
func UpdateLength(dst []byte, index int32) []byte {
	length := int32(len(dst)) - index
	dst[index] = byte(length)
	dst[index+1] = byte(length >> 8)
	dst[index+2] = byte(length >> 16)
	dst[index+3] = byte(length >> 24)
	return dst
}

// Error is returned when a wire message cannot be decoded.
type Error struct {
	OpCode  OpCode
	Offset  int
	Message string
}

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("%v: %s (offset %d)", e.OpCode, e.Message, e.Offset)
}

func newError(op OpCode, offset int, format string, args ...interface{}) Error {
	return Error{OpCode: op, Offset: offset, Message: fmt.Sprintf(format, args...)}
}
