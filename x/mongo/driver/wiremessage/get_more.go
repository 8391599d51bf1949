// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"
)

// GetMore represents the OP_GET_MORE message of the wire protocol.
type GetMore struct {
	MsgHeader          Header
	FullCollectionName string
	NumberToReturn     int32
	CursorID           int64
}

var _ WireMessage = GetMore{}

// OpCode implements the WireMessage interface.
func (gm GetMore) OpCode() OpCode { return OpGetMore }

// MarshalWireMessage implements the Marshaler and WireMessage interfaces.
func (gm GetMore) MarshalWireMessage() ([]byte, error) {
	b := make([]byte, 0, gm.Len())
	return gm.AppendWireMessage(b)
}

// ValidateWireMessage implements the Validator and WireMessage interfaces.
func (gm GetMore) ValidateWireMessage() error {
	if int(gm.MsgHeader.MessageLength) != gm.Len() {
		return newError(OpGetMore, 0, "incorrect header: message length is not correct")
	}
	if gm.MsgHeader.OpCode != OpGetMore {
		return newError(OpGetMore, 12, "incorrect header: op code is not OpGetMore")
	}
	if err := validateNamespace(gm.FullCollectionName); err != nil {
		return newError(OpGetMore, 20, "%v", err)
	}
	return nil
}

// AppendWireMessage implements the Appender and WireMessage interfaces.
//
// AppendWireMessage will set the MessageLength property of the MsgHeader if it is zero. It will
// also set the OpCode to OpGetMore if the OpCode is zero.
func (gm GetMore) AppendWireMessage(b []byte) ([]byte, error) {
	err := gm.MsgHeader.SetDefaults(gm.Len(), OpGetMore)

	b = gm.MsgHeader.AppendHeader(b)
	b = appendInt32(b, 0) // ZERO
	b = appendCString(b, gm.FullCollectionName)
	b = appendInt32(b, gm.NumberToReturn)
	b = appendInt64(b, gm.CursorID)
	return b, err
}

// String implements the fmt.Stringer interface.
func (gm GetMore) String() string {
	return fmt.Sprintf(
		`OP_GET_MORE{MsgHeader: %s, FullCollectionName: %s, NumberToReturn: %d, CursorID: %d}`,
		gm.MsgHeader, gm.FullCollectionName, gm.NumberToReturn, gm.CursorID,
	)
}

// Len implements the WireMessage interface.
func (gm GetMore) Len() int {
	// Header + ZERO + CollectionName + Null Terminator + Return + CursorID
	return 16 + 4 + len(gm.FullCollectionName) + 1 + 4 + 8
}

// UnmarshalWireMessage implements the Unmarshaler interface.
func (gm *GetMore) UnmarshalWireMessage(b []byte) error {
	hdr, err := checkLength(b, OpGetMore)
	if err != nil {
		return err
	}
	if len(b) < 20 {
		return newError(OpGetMore, len(b), "message too short")
	}
	gm.MsgHeader = hdr

	var ok bool
	var pos int32
	gm.FullCollectionName, pos, ok = readCString(b, 20)
	if !ok {
		return newError(OpGetMore, 20, "collection name is not null terminated")
	}
	if int(pos)+12 != len(b) {
		return newError(OpGetMore, int(pos), "expected 12 bytes after the collection name, found %d", len(b)-int(pos))
	}
	gm.NumberToReturn = readInt32(b, pos)
	gm.CursorID = readInt64(b, pos+4)
	return nil
}
