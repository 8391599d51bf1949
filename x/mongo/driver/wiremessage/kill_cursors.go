// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"
)

// KillCursors represents the OP_KILL_CURSORS message of the wire protocol.
type KillCursors struct {
	MsgHeader Header
	CursorIDs []int64
}

var _ WireMessage = KillCursors{}

// OpCode implements the WireMessage interface.
func (kc KillCursors) OpCode() OpCode { return OpKillCursors }

// MarshalWireMessage implements the Marshaler and WireMessage interfaces.
func (kc KillCursors) MarshalWireMessage() ([]byte, error) {
	b := make([]byte, 0, kc.Len())
	return kc.AppendWireMessage(b)
}

// ValidateWireMessage implements the Validator and WireMessage interfaces.
func (kc KillCursors) ValidateWireMessage() error {
	if int(kc.MsgHeader.MessageLength) != kc.Len() {
		return newError(OpKillCursors, 0, "incorrect header: message length is not correct")
	}
	if kc.MsgHeader.OpCode != OpKillCursors {
		return newError(OpKillCursors, 12, "incorrect header: op code is not OpKillCursors")
	}
	if len(kc.CursorIDs) == 0 {
		return newError(OpKillCursors, 20, "at least one cursor id is required")
	}
	return nil
}

// AppendWireMessage implements the Appender and WireMessage interfaces.
//
// AppendWireMessage will set the MessageLength property of the MsgHeader if it is zero. It will
// also set the OpCode to OpKillCursors if the OpCode is zero. The number of cursor ids is
// computed from CursorIDs.
func (kc KillCursors) AppendWireMessage(b []byte) ([]byte, error) {
	err := kc.MsgHeader.SetDefaults(kc.Len(), OpKillCursors)

	b = kc.MsgHeader.AppendHeader(b)
	b = appendInt32(b, 0) // ZERO
	b = appendInt32(b, int32(len(kc.CursorIDs)))
	for _, id := range kc.CursorIDs {
		b = appendInt64(b, id)
	}
	return b, err
}

// String implements the fmt.Stringer interface.
func (kc KillCursors) String() string {
	return fmt.Sprintf(
		`OP_KILL_CURSORS{MsgHeader: %s, NumberOfCursorIDs: %d, CursorIDs: %v}`,
		kc.MsgHeader, len(kc.CursorIDs), kc.CursorIDs,
	)
}

// Len implements the WireMessage interface.
func (kc KillCursors) Len() int {
	// Header + ZERO + Number IDs + 8 * Number IDs
	return 16 + 4 + 4 + 8*len(kc.CursorIDs)
}

// UnmarshalWireMessage implements the Unmarshaler interface.
func (kc *KillCursors) UnmarshalWireMessage(b []byte) error {
	hdr, err := checkLength(b, OpKillCursors)
	if err != nil {
		return err
	}
	if len(b) < 24 {
		return newError(OpKillCursors, len(b), "message too short")
	}
	kc.MsgHeader = hdr

	n := readInt32(b, 20)
	if n < 0 || 24+8*int(n) != len(b) {
		return newError(OpKillCursors, 20, "%d cursor ids do not fit the %d byte message", n, len(b))
	}
	kc.CursorIDs = make([]int64, n)
	for i := int32(0); i < n; i++ {
		kc.CursorIDs[i] = readInt64(b, 24+8*i)
	}
	return nil
}
