// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
)

// Reply represents the OP_REPLY message of the wire protocol.
type Reply struct {
	MsgHeader      Header
	ResponseFlags  ReplyFlag
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Documents      []bsoncore.Document
}

var _ WireMessage = Reply{}

// OpCode implements the WireMessage interface.
func (r Reply) OpCode() OpCode { return OpReply }

// MarshalWireMessage implements the Marshaler and WireMessage interfaces.
//
// See AppendWireMessage for a description of the rules this method follows.
func (r Reply) MarshalWireMessage() ([]byte, error) {
	b := make([]byte, 0, r.Len())
	return r.AppendWireMessage(b)
}

// ValidateWireMessage implements the Validator and WireMessage interfaces. A reply carries
// NumberReturned documents, or a single error document when QueryFailure is set.
func (r Reply) ValidateWireMessage() error {
	if int(r.MsgHeader.MessageLength) != r.Len() {
		return newError(OpReply, 0, "incorrect header: message length is not correct")
	}
	if r.MsgHeader.OpCode != OpReply {
		return newError(OpReply, 12, "incorrect header: op code is not OpReply")
	}
	if r.ResponseFlags&QueryFailure == QueryFailure {
		if len(r.Documents) != 1 {
			return newError(OpReply, 36, "a query failure reply must carry exactly one document, found %d", len(r.Documents))
		}
	} else if int(r.NumberReturned) != len(r.Documents) {
		return newError(OpReply, 32, "NumberReturned is %d but %d documents are present", r.NumberReturned, len(r.Documents))
	}
	for i, doc := range r.Documents {
		if err := doc.Validate(); err != nil {
			return newError(OpReply, 36, "document %d: %v", i, err)
		}
	}
	return nil
}

// AppendWireMessage implements the Appender and WireMessage interfaces.
//
// AppendWireMessage will set the MessageLength property of the MsgHeader if it is zero. It will
// also set the OpCode to OpReply if the OpCode is zero. If either of these properties are
// non-zero and not correct, this method will return both the []byte with the wire message
// appended to it and an invalid header error.
func (r Reply) AppendWireMessage(b []byte) ([]byte, error) {
	err := r.MsgHeader.SetDefaults(r.Len(), OpReply)

	b = r.MsgHeader.AppendHeader(b)
	b = appendInt32(b, int32(r.ResponseFlags))
	b = appendInt64(b, r.CursorID)
	b = appendInt32(b, r.StartingFrom)
	b = appendInt32(b, r.NumberReturned)
	for _, d := range r.Documents {
		b = append(b, d...)
	}
	return b, err
}

// String implements the fmt.Stringer interface.
func (r Reply) String() string {
	return fmt.Sprintf(
		`OP_REPLY{MsgHeader: %s, ResponseFlags: %s, CursorID: %d, StartingFrom: %d, NumberReturned: %d, Documents: %s}`,
		r.MsgHeader, r.ResponseFlags, r.CursorID, r.StartingFrom, r.NumberReturned, documentsString(r.Documents),
	)
}

// Len implements the WireMessage interface.
func (r Reply) Len() int {
	// Header + Flags + CursorID + StartingFrom + NumberReturned + Length of Length of Documents
	docsLen := 0
	for _, d := range r.Documents {
		docsLen += len(d)
	}
	return 16 + 4 + 8 + 4 + 4 + docsLen
}

// UnmarshalWireMessage implements the Unmarshaler interface.
func (r *Reply) UnmarshalWireMessage(b []byte) error {
	hdr, err := checkLength(b, OpReply)
	if err != nil {
		return err
	}
	if len(b) < 36 {
		return newError(OpReply, len(b), "message too short")
	}
	r.MsgHeader = hdr
	r.ResponseFlags = ReplyFlag(readInt32(b, 16))
	r.CursorID = readInt64(b, 20)
	r.StartingFrom = readInt32(b, 28)
	r.NumberReturned = readInt32(b, 32)

	r.Documents, err = readDocuments(b, 36, int32(len(b)))
	if err != nil {
		return newError(OpReply, 36, "%v", err)
	}
	if r.ResponseFlags&QueryFailure != QueryFailure && int(r.NumberReturned) != len(r.Documents) {
		return newError(OpReply, 32, "NumberReturned is %d but %d documents are present", r.NumberReturned, len(r.Documents))
	}
	return nil
}

// QueryFailureError is returned when a reply has the QueryFailure flag set.
type QueryFailureError struct {
	Message  string
	Response bsoncore.Document
}

// Error implements the error interface.
func (e QueryFailureError) Error() string {
	return fmt.Sprintf("query failure: %s", e.Message)
}

// Err returns a QueryFailureError if the reply reports a query failure, and nil otherwise.
func (r Reply) Err() error {
	if r.ResponseFlags&QueryFailure != QueryFailure {
		return nil
	}
	if len(r.Documents) == 0 {
		return QueryFailureError{Message: "no error document"}
	}
	qfe := QueryFailureError{Message: "unknown error", Response: r.Documents[0]}
	if elem, err := r.Documents[0].Lookup("$err"); err == nil && elem.Type() == bsoncore.TypeString {
		if s, _, ok := bsoncore.ReadString(elem.Value()); ok {
			qfe.Message = s
		}
	}
	return qfe
}

var errNoDocuments = errors.New("the reply does not contain any documents")
