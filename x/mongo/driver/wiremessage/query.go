// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"
	"strings"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
)

// Query represents the OP_QUERY message of the wire protocol.
type Query struct {
	MsgHeader            Header
	Flags                QueryFlag
	FullCollectionName   string
	NumberToSkip         int32
	NumberToReturn       int32
	Query                bsoncore.Document
	ReturnFieldsSelector bsoncore.Document
}

var _ WireMessage = Query{}

// OpCode implements the WireMessage interface.
func (q Query) OpCode() OpCode { return OpQuery }

// MarshalWireMessage implements the Marshaler and WireMessage interfaces.
//
// See AppendWireMessage for a description of the rules this method follows.
func (q Query) MarshalWireMessage() ([]byte, error) {
	b := make([]byte, 0, q.Len())
	return q.AppendWireMessage(b)
}

// ValidateWireMessage implements the Validator and WireMessage interfaces.
func (q Query) ValidateWireMessage() error {
	if int(q.MsgHeader.MessageLength) != q.Len() {
		return newError(OpQuery, 0, "incorrect header: message length is not correct")
	}
	if q.MsgHeader.OpCode != OpQuery {
		return newError(OpQuery, 12, "incorrect header: op code is not OpQuery")
	}
	if err := validateNamespace(q.FullCollectionName); err != nil {
		return newError(OpQuery, 20, "%v", err)
	}
	if err := validateDocument("query", q.Query); err != nil {
		return newError(OpQuery, 28+len(q.FullCollectionName)+1, "%v", err)
	}
	if len(q.ReturnFieldsSelector) > 0 {
		if err := q.ReturnFieldsSelector.Validate(); err != nil {
			return newError(OpQuery, 28+len(q.FullCollectionName)+1+len(q.Query), "%v", err)
		}
	}
	return nil
}

// AppendWireMessage implements the Appender and WireMessage interfaces.
//
// AppendWireMessage will set the MessageLength property of the MsgHeader if it is zero. It will
// also set the OpCode to OpQuery if the OpCode is zero. If either of these properties are non-zero
// and not correct, this method will return both the []byte with the wire message appended to it
// and an invalid header error.
func (q Query) AppendWireMessage(b []byte) ([]byte, error) {
	err := q.MsgHeader.SetDefaults(q.Len(), OpQuery)

	b = q.MsgHeader.AppendHeader(b)
	b = appendInt32(b, int32(q.Flags))
	b = appendCString(b, q.FullCollectionName)
	b = appendInt32(b, q.NumberToSkip)
	b = appendInt32(b, q.NumberToReturn)
	b = append(b, q.Query...)
	b = append(b, q.ReturnFieldsSelector...)
	return b, err
}

// String implements the fmt.Stringer interface.
func (q Query) String() string {
	return fmt.Sprintf(
		`OP_QUERY{MsgHeader: %s, Flags: %s, FullCollectionName: %s, NumberToSkip: %d, NumberToReturn: %d, Query: %s, ReturnFieldsSelector: %s}`,
		q.MsgHeader, q.Flags, q.FullCollectionName, q.NumberToSkip, q.NumberToReturn, q.Query, q.ReturnFieldsSelector,
	)
}

// Len implements the WireMessage interface.
func (q Query) Len() int {
	// Header + Flags + CollectionName + Null Byte + Skip + Return + Query + ReturnFieldsSelector
	return 16 + 4 + len(q.FullCollectionName) + 1 + 4 + 4 + len(q.Query) + len(q.ReturnFieldsSelector)
}

// UnmarshalWireMessage implements the Unmarshaler interface.
func (q *Query) UnmarshalWireMessage(b []byte) error {
	hdr, err := checkLength(b, OpQuery)
	if err != nil {
		return err
	}
	if len(b) < 20 {
		return newError(OpQuery, len(b), "message too short")
	}
	q.MsgHeader = hdr
	q.Flags = QueryFlag(readInt32(b, 16))

	var ok bool
	var pos int32
	q.FullCollectionName, pos, ok = readCString(b, 20)
	if !ok {
		return newError(OpQuery, 20, "collection name is not null terminated")
	}
	if int(pos)+8 > len(b) {
		return newError(OpQuery, int(pos), "message too short")
	}
	q.NumberToSkip = readInt32(b, pos)
	q.NumberToReturn = readInt32(b, pos+4)
	pos += 8

	q.Query, pos, err = readDocument(b, pos)
	if err != nil {
		return newError(OpQuery, int(pos), "%v", err)
	}
	q.ReturnFieldsSelector = nil
	if int(pos) < len(b) {
		q.ReturnFieldsSelector, pos, err = readDocument(b, pos)
		if err != nil {
			return newError(OpQuery, int(pos), "%v", err)
		}
	}
	if int(pos) != len(b) {
		return newError(OpQuery, int(pos), "%d trailing bytes", len(b)-int(pos))
	}
	return nil
}

// CommandName returns the name of the command this query runs, or the empty string when the
// query does not target a "$cmd" namespace.
func (q Query) CommandName() string {
	if !strings.HasSuffix(q.FullCollectionName, ".$cmd") {
		return ""
	}
	return firstKey(q.Query)
}

func firstKey(doc bsoncore.Document) string {
	elem, err := doc.IndexErr(0)
	if err != nil {
		return ""
	}
	return elem.Key()
}
