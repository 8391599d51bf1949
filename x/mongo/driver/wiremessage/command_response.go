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

// CommandResponse is the reply to a command. It is read from an OP_MSG, or from an OP_REPLY for
// commands sent as an OP_QUERY against a "$cmd" namespace.
type CommandResponse struct {
	MsgHeader Header
	FlagBits  MsgFlag
	Body      bsoncore.Document
	Sequences []SectionDocumentSequence
}

// NewCommandResponse builds a CommandResponse from a decoded reply message.
func NewCommandResponse(wm WireMessage) (*CommandResponse, error) {
	switch m := wm.(type) {
	case Msg:
		return commandResponseFromMsg(m), nil
	case *Msg:
		return commandResponseFromMsg(*m), nil
	case Reply:
		return commandResponseFromReply(m)
	case *Reply:
		return commandResponseFromReply(*m)
	default:
		return nil, errors.Errorf("cannot read a command response from %v", wm.OpCode())
	}
}

func commandResponseFromMsg(m Msg) *CommandResponse {
	cr := &CommandResponse{MsgHeader: m.MsgHeader, FlagBits: m.FlagBits, Body: m.Body()}
	for _, s := range m.Sections {
		if sds, ok := s.(SectionDocumentSequence); ok {
			cr.Sequences = append(cr.Sequences, sds)
		}
	}
	return cr
}

func commandResponseFromReply(r Reply) (*CommandResponse, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(r.Documents) == 0 {
		return nil, errNoDocuments
	}
	if len(r.Documents) > 1 {
		return nil, errors.Errorf("a command reply must contain one document, found %d", len(r.Documents))
	}
	return &CommandResponse{MsgHeader: r.MsgHeader, Body: r.Documents[0]}, nil
}

// ReadCommandResponse decodes b, unwrapping compression, and returns the command response it
// carries.
func ReadCommandResponse(b []byte) (*CommandResponse, error) {
	wm, err := DecodeDecompressed(b)
	if err != nil {
		return nil, err
	}
	return NewCommandResponse(wm)
}

// Document returns the response document.
func (cr *CommandResponse) Document() bsoncore.Document { return cr.Body }

// MoreToCome reports whether the server will send further replies without a new request.
func (cr *CommandResponse) MoreToCome() bool { return cr.FlagBits&MoreToCome == MoreToCome }

// OK reports whether the response document has a truthy "ok" field.
func (cr *CommandResponse) OK() bool {
	elem, err := cr.Body.Lookup("ok")
	if err != nil {
		return false
	}
	v := elem.Value()
	switch elem.Type() {
	case bsoncore.TypeDouble:
		f, _, ok := bsoncore.ReadDouble(v)
		return ok && f == 1
	case bsoncore.TypeInt32:
		i, _, ok := bsoncore.ReadInt32(v)
		return ok && i == 1
	case bsoncore.TypeInt64:
		i, _, ok := bsoncore.ReadInt64(v)
		return ok && i == 1
	case bsoncore.TypeBoolean:
		b, _, ok := bsoncore.ReadBoolean(v)
		return ok && b
	default:
		return false
	}
}

// String implements the fmt.Stringer interface.
func (cr *CommandResponse) String() string {
	return fmt.Sprintf(`CommandResponse{MsgHeader: %s, FlagBits: %s, Body: %s, Sequences: %d}`,
		cr.MsgHeader, cr.FlagBits, cr.Body, len(cr.Sequences))
}
