// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
)

// Delete represents the OP_DELETE message of the wire protocol.
type Delete struct {
	MsgHeader          Header
	FullCollectionName string
	Flags              DeleteFlag
	Selector           bsoncore.Document
}

var _ WireMessage = Delete{}

// OpCode implements the WireMessage interface.
func (d Delete) OpCode() OpCode { return OpDelete }

// MarshalWireMessage implements the Marshaler and WireMessage interfaces.
func (d Delete) MarshalWireMessage() ([]byte, error) {
	b := make([]byte, 0, d.Len())
	return d.AppendWireMessage(b)
}

// ValidateWireMessage implements the Validator and WireMessage interfaces.
func (d Delete) ValidateWireMessage() error {
	if int(d.MsgHeader.MessageLength) != d.Len() {
		return newError(OpDelete, 0, "incorrect header: message length is not correct")
	}
	if d.MsgHeader.OpCode != OpDelete {
		return newError(OpDelete, 12, "incorrect header: op code is not OpDelete")
	}
	if err := validateNamespace(d.FullCollectionName); err != nil {
		return newError(OpDelete, 20, "%v", err)
	}
	if err := validateDocument("selector", d.Selector); err != nil {
		return newError(OpDelete, 20+len(d.FullCollectionName)+1+4, "%v", err)
	}
	return nil
}

// AppendWireMessage implements the Appender and WireMessage interfaces.
//
// AppendWireMessage will set the MessageLength property of the MsgHeader if it is zero. It will
// also set the OpCode to OpDelete if the OpCode is zero.
func (d Delete) AppendWireMessage(b []byte) ([]byte, error) {
	err := d.MsgHeader.SetDefaults(d.Len(), OpDelete)

	b = d.MsgHeader.AppendHeader(b)
	b = appendInt32(b, 0) // ZERO
	b = appendCString(b, d.FullCollectionName)
	b = appendInt32(b, int32(d.Flags))
	b = append(b, d.Selector...)
	return b, err
}

// String implements the fmt.Stringer interface.
func (d Delete) String() string {
	return fmt.Sprintf(
		`OP_DELETE{MsgHeader: %s, FullCollectionName: %s, Flags: %s, Selector: %s}`,
		d.MsgHeader, d.FullCollectionName, d.Flags, d.Selector,
	)
}

// Len implements the WireMessage interface.
func (d Delete) Len() int {
	// Header + ZERO + CollectionName + Null Terminator + Flags + Selector
	return 16 + 4 + len(d.FullCollectionName) + 1 + 4 + len(d.Selector)
}

// UnmarshalWireMessage implements the Unmarshaler interface.
func (d *Delete) UnmarshalWireMessage(b []byte) error {
	hdr, err := checkLength(b, OpDelete)
	if err != nil {
		return err
	}
	if len(b) < 20 {
		return newError(OpDelete, len(b), "message too short")
	}
	d.MsgHeader = hdr

	var ok bool
	var pos int32
	d.FullCollectionName, pos, ok = readCString(b, 20)
	if !ok {
		return newError(OpDelete, 20, "collection name is not null terminated")
	}
	if int(pos)+4 > len(b) {
		return newError(OpDelete, int(pos), "message too short")
	}
	d.Flags = DeleteFlag(readInt32(b, pos))
	pos += 4

	if d.Selector, pos, err = readDocument(b, pos); err != nil {
		return newError(OpDelete, int(pos), "%v", err)
	}
	if int(pos) != len(b) {
		return newError(OpDelete, int(pos), "%d trailing bytes", len(b)-int(pos))
	}
	return nil
}
