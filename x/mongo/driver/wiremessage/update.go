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

// Update represents the OP_UPDATE message of the wire protocol.
type Update struct {
	MsgHeader          Header
	FullCollectionName string
	Flags              UpdateFlag
	Selector           bsoncore.Document
	Update             bsoncore.Document
}

var _ WireMessage = Update{}

// OpCode implements the WireMessage interface.
func (u Update) OpCode() OpCode { return OpUpdate }

// MarshalWireMessage implements the Marshaler and WireMessage interfaces.
func (u Update) MarshalWireMessage() ([]byte, error) {
	b := make([]byte, 0, u.Len())
	return u.AppendWireMessage(b)
}

// ValidateWireMessage implements the Validator and WireMessage interfaces.
func (u Update) ValidateWireMessage() error {
	if int(u.MsgHeader.MessageLength) != u.Len() {
		return newError(OpUpdate, 0, "incorrect header: message length is not correct")
	}
	if u.MsgHeader.OpCode != OpUpdate {
		return newError(OpUpdate, 12, "incorrect header: op code is not OpUpdate")
	}
	if err := validateNamespace(u.FullCollectionName); err != nil {
		return newError(OpUpdate, 20, "%v", err)
	}
	pos := 20 + len(u.FullCollectionName) + 1 + 4
	if err := validateDocument("selector", u.Selector); err != nil {
		return newError(OpUpdate, pos, "%v", err)
	}
	if err := validateDocument("update", u.Update); err != nil {
		return newError(OpUpdate, pos+len(u.Selector), "%v", err)
	}
	return nil
}

// AppendWireMessage implements the Appender and WireMessage interfaces.
//
// AppendWireMessage will set the MessageLength property of the MsgHeader if it is zero. It will
// also set the OpCode to OpUpdate if the OpCode is zero.
func (u Update) AppendWireMessage(b []byte) ([]byte, error) {
	err := u.MsgHeader.SetDefaults(u.Len(), OpUpdate)

	b = u.MsgHeader.AppendHeader(b)
	b = appendInt32(b, 0) // ZERO
	b = appendCString(b, u.FullCollectionName)
	b = appendInt32(b, int32(u.Flags))
	b = append(b, u.Selector...)
	b = append(b, u.Update...)
	return b, err
}

// String implements the fmt.Stringer interface.
func (u Update) String() string {
	return fmt.Sprintf(
		`OP_UPDATE{MsgHeader: %s, FullCollectionName: %s, Flags: %s, Selector: %s, Update: %s}`,
		u.MsgHeader, u.FullCollectionName, u.Flags, u.Selector, u.Update,
	)
}

// Len implements the WireMessage interface.
func (u Update) Len() int {
	// Header + ZERO + CollectionName + Null Terminator + Flags + Selector + Update
	return 16 + 4 + len(u.FullCollectionName) + 1 + 4 + len(u.Selector) + len(u.Update)
}

// UnmarshalWireMessage implements the Unmarshaler interface.
func (u *Update) UnmarshalWireMessage(b []byte) error {
	hdr, err := checkLength(b, OpUpdate)
	if err != nil {
		return err
	}
	if len(b) < 20 {
		return newError(OpUpdate, len(b), "message too short")
	}
	u.MsgHeader = hdr

	var ok bool
	var pos int32
	u.FullCollectionName, pos, ok = readCString(b, 20)
	if !ok {
		return newError(OpUpdate, 20, "collection name is not null terminated")
	}
	if int(pos)+4 > len(b) {
		return newError(OpUpdate, int(pos), "message too short")
	}
	u.Flags = UpdateFlag(readInt32(b, pos))
	pos += 4

	if u.Selector, pos, err = readDocument(b, pos); err != nil {
		return newError(OpUpdate, int(pos), "%v", err)
	}
	if u.Update, pos, err = readDocument(b, pos); err != nil {
		return newError(OpUpdate, int(pos), "%v", err)
	}
	if int(pos) != len(b) {
		return newError(OpUpdate, int(pos), "%d trailing bytes", len(b)-int(pos))
	}
	return nil
}
