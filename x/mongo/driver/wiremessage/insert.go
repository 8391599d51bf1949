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

// Insert represents the OP_INSERT message of the wire protocol.
type Insert struct {
	MsgHeader          Header
	Flags              InsertFlag
	FullCollectionName string
	Documents          []bsoncore.Document
}

var _ WireMessage = Insert{}

// OpCode implements the WireMessage interface.
func (i Insert) OpCode() OpCode { return OpInsert }

// MarshalWireMessage implements the Marshaler and WireMessage interfaces.
func (i Insert) MarshalWireMessage() ([]byte, error) {
	b := make([]byte, 0, i.Len())
	return i.AppendWireMessage(b)
}

// ValidateWireMessage implements the Validator and WireMessage interfaces.
func (i Insert) ValidateWireMessage() error {
	if int(i.MsgHeader.MessageLength) != i.Len() {
		return newError(OpInsert, 0, "incorrect header: message length is not correct")
	}
	if i.MsgHeader.OpCode != OpInsert {
		return newError(OpInsert, 12, "incorrect header: op code is not OpInsert")
	}
	if err := validateNamespace(i.FullCollectionName); err != nil {
		return newError(OpInsert, 20, "%v", err)
	}
	if len(i.Documents) == 0 {
		return newError(OpInsert, 20+len(i.FullCollectionName)+1, "at least one document is required")
	}
	for idx, doc := range i.Documents {
		if err := validateDocument("insert", doc); err != nil {
			return newError(OpInsert, 20+len(i.FullCollectionName)+1, "document %d: %v", idx, err)
		}
	}
	return nil
}

// AppendWireMessage implements the Appender and WireMessage interfaces.
//
// AppendWireMessage will set the MessageLength property of the MsgHeader if it is zero. It will
// also set the OpCode to OpInsert if the OpCode is zero.
func (i Insert) AppendWireMessage(b []byte) ([]byte, error) {
	err := i.MsgHeader.SetDefaults(i.Len(), OpInsert)

	b = i.MsgHeader.AppendHeader(b)
	b = appendInt32(b, int32(i.Flags))
	b = appendCString(b, i.FullCollectionName)
	for _, doc := range i.Documents {
		b = append(b, doc...)
	}
	return b, err
}

// String implements the fmt.Stringer interface.
func (i Insert) String() string {
	return fmt.Sprintf(
		`OP_INSERT{MsgHeader: %s, Flags: %s, FullCollectionName: %s, Documents: %s}`,
		i.MsgHeader, i.Flags, i.FullCollectionName, documentsString(i.Documents),
	)
}

// Len implements the WireMessage interface.
func (i Insert) Len() int {
	// Header + Flags + CollectionName + Null Terminator + Documents
	l := 16 + 4 + len(i.FullCollectionName) + 1
	for _, doc := range i.Documents {
		l += len(doc)
	}
	return l
}

// UnmarshalWireMessage implements the Unmarshaler interface.
func (i *Insert) UnmarshalWireMessage(b []byte) error {
	hdr, err := checkLength(b, OpInsert)
	if err != nil {
		return err
	}
	if len(b) < 20 {
		return newError(OpInsert, len(b), "message too short")
	}
	i.MsgHeader = hdr
	i.Flags = InsertFlag(readInt32(b, 16))

	var ok bool
	var pos int32
	i.FullCollectionName, pos, ok = readCString(b, 20)
	if !ok {
		return newError(OpInsert, 20, "collection name is not null terminated")
	}
	i.Documents, err = readDocuments(b, pos, int32(len(b)))
	if err != nil {
		return newError(OpInsert, int(pos), "%v", err)
	}
	return nil
}
