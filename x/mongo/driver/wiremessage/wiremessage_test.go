// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32Doc(t *testing.T, key string, v int32) bsoncore.Document {
	t.Helper()
	idx, b := bsoncore.AppendDocumentStart(nil)
	b = bsoncore.AppendInt32Element(b, key, v)
	b, err := bsoncore.AppendDocumentEnd(b, idx)
	require.NoError(t, err)
	return b
}

func stringDoc(t *testing.T, key, v string) bsoncore.Document {
	t.Helper()
	idx, b := bsoncore.AppendDocumentStart(nil)
	b = bsoncore.AppendStringElement(b, key, v)
	b, err := bsoncore.AppendDocumentEnd(b, idx)
	require.NoError(t, err)
	return b
}

func TestAppendHeaderStart(t *testing.T) {
	testCases := []struct {
		desc      string
		dst       []byte
		reqid     int32
		respto    int32
		opcode    OpCode
		wantIdx   int32
		wantBytes []byte
	}{
		{
			desc:      "OP_MSG",
			reqid:     2,
			respto:    1,
			opcode:    OpMsg,
			wantIdx:   0,
			wantBytes: []byte{0, 0, 0, 0, 2, 0, 0, 0, 1, 0, 0, 0, 221, 7, 0, 0},
		},
		{
			desc:      "OP_QUERY",
			reqid:     2,
			respto:    1,
			opcode:    OpQuery,
			wantIdx:   0,
			wantBytes: []byte{0, 0, 0, 0, 2, 0, 0, 0, 1, 0, 0, 0, 212, 7, 0, 0},
		},
		{
			desc:      "non-empty buffer",
			dst:       []byte{0, 99},
			reqid:     2,
			respto:    1,
			opcode:    OpMsg,
			wantIdx:   2,
			wantBytes: []byte{0, 99, 0, 0, 0, 0, 2, 0, 0, 0, 1, 0, 0, 0, 221, 7, 0, 0},
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			idx, b := AppendHeaderStart(tc.dst, tc.reqid, tc.respto, tc.opcode)
			assert.Equal(t, tc.wantIdx, idx, "appended slice index does not match")
			assert.Equal(t, tc.wantBytes, b, "appended bytes do not match")
		})
	}
}

func TestReadHeader(t *testing.T) {
	_, err := ReadHeader([]byte{1, 2, 3}, 0)
	assert.Equal(t, ErrHeaderTooSmall, err)

	_, b := AppendHeaderStart(nil, 7, 3, OpReply)
	_, err = ReadHeader(b, 0)
	assert.Equal(t, ErrInvalidMessageLength, err)

	b = UpdateLength(b, 0)
	hdr, err := ReadHeader(b, 0)
	require.NoError(t, err)
	assert.Equal(t, Header{MessageLength: 16, RequestID: 7, ResponseTo: 3, OpCode: OpReply}, hdr)
}

func TestMessageRoundTrip(t *testing.T) {
	query := int32Doc(t, "find", 1)
	fields := int32Doc(t, "a", 1)
	docs := []bsoncore.Document{int32Doc(t, "x", 1), int32Doc(t, "x", 2)}

	testCases := []struct {
		name string
		wm   WireMessage
		out  Unmarshaler
	}{
		{"query", Query{
			MsgHeader: Header{RequestID: 1}, Flags: SecondaryOK, FullCollectionName: "db.coll",
			NumberToSkip: 2, NumberToReturn: -1, Query: query, ReturnFieldsSelector: fields,
		}, &Query{}},
		{"query without selector", Query{
			MsgHeader: Header{RequestID: 1}, FullCollectionName: "db.$cmd", Query: query,
		}, &Query{}},
		{"reply", Reply{
			MsgHeader: Header{RequestID: 2, ResponseTo: 1}, ResponseFlags: AwaitCapable, CursorID: 1234567890123,
			StartingFrom: 4, NumberReturned: 2, Documents: docs,
		}, &Reply{}},
		{"insert", Insert{
			MsgHeader: Header{RequestID: 3}, Flags: ContinueOnError, FullCollectionName: "db.coll", Documents: docs,
		}, &Insert{}},
		{"update", Update{
			MsgHeader: Header{RequestID: 4}, FullCollectionName: "db.coll", Flags: Upsert | MultiUpdate,
			Selector: docs[0], Update: docs[1],
		}, &Update{}},
		{"delete", Delete{
			MsgHeader: Header{RequestID: 5}, FullCollectionName: "db.coll", Flags: SingleRemove, Selector: docs[0],
		}, &Delete{}},
		{"get more", GetMore{
			MsgHeader: Header{RequestID: 6}, FullCollectionName: "db.coll", NumberToReturn: 10, CursorID: -42,
		}, &GetMore{}},
		{"kill cursors", KillCursors{
			MsgHeader: Header{RequestID: 7}, CursorIDs: []int64{1, 2, 3},
		}, &KillCursors{}},
		{"msg", Msg{
			MsgHeader: Header{RequestID: 8},
			Sections: []Section{
				SectionBody{Document: query},
				SectionDocumentSequence{Identifier: "documents", Documents: docs},
			},
		}, &Msg{}},
		{"msg with checksum", Msg{
			MsgHeader: Header{RequestID: 9},
			FlagBits:  ChecksumPresent,
			Sections:  []Section{SectionBody{Document: query}},
		}, &Msg{}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.wm.MarshalWireMessage()
			require.NoError(t, err)
			require.Len(t, b, tc.wm.Len())

			require.NoError(t, tc.out.UnmarshalWireMessage(b))
			got := tc.out.(WireMessage)
			require.NoError(t, got.ValidateWireMessage())
			assert.Equal(t, tc.wm.OpCode(), got.OpCode())

			again, err := got.MarshalWireMessage()
			require.NoError(t, err)
			if diff := cmp.Diff(b, again); diff != "" {
				t.Errorf("re-encoded message differs (-want +got):\n%s", diff)
			}

			decoded, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, tc.wm.OpCode(), decoded.OpCode())
			assert.NotEmpty(t, decoded.String())
		})
	}
}

func TestMsgValidation(t *testing.T) {
	body := int32Doc(t, "ping", 1)

	t.Run("no body", func(t *testing.T) {
		m := Msg{Sections: []Section{SectionDocumentSequence{Identifier: "documents"}}}
		b, err := m.MarshalWireMessage()
		require.NoError(t, err)
		var out Msg
		err = out.UnmarshalWireMessage(b)
		var wmErr Error
		require.True(t, errors.As(err, &wmErr), "expected wiremessage.Error, got %v", err)
		assert.Equal(t, OpMsg, wmErr.OpCode)
	})
	t.Run("two bodies", func(t *testing.T) {
		m := Msg{Sections: []Section{SectionBody{Document: body}, SectionBody{Document: body}}}
		m.MsgHeader.MessageLength = int32(m.Len())
		m.MsgHeader.OpCode = OpMsg
		assert.Error(t, m.ValidateWireMessage())
	})
	t.Run("checksum mismatch", func(t *testing.T) {
		m := Msg{FlagBits: ChecksumPresent, Sections: []Section{SectionBody{Document: body}}}
		b, err := m.MarshalWireMessage()
		require.NoError(t, err)
		b[len(b)-1] ^= 0xFF
		var out Msg
		assert.Error(t, out.UnmarshalWireMessage(b))
	})
	t.Run("body and sequence lookups", func(t *testing.T) {
		docs := []bsoncore.Document{int32Doc(t, "x", 1)}
		m := Msg{Sections: []Section{SectionBody{Document: body}, SectionDocumentSequence{Identifier: "documents", Documents: docs}}}
		assert.Equal(t, body, m.Body())
		assert.Equal(t, "ping", m.CommandName())
		got, ok := m.DocumentSequence("documents")
		require.True(t, ok)
		assert.Equal(t, docs, got)
		_, ok = m.DocumentSequence("updates")
		assert.False(t, ok)
	})
}

func TestNamespaceValidation(t *testing.T) {
	q := Query{FullCollectionName: "nodot", Query: int32Doc(t, "a", 1)}
	q.MsgHeader.MessageLength = int32(q.Len())
	q.MsgHeader.OpCode = OpQuery
	assert.Error(t, q.ValidateWireMessage())

	q.FullCollectionName = "db.coll"
	q.MsgHeader.MessageLength = int32(q.Len())
	assert.NoError(t, q.ValidateWireMessage())
}

func TestReplyDocumentCount(t *testing.T) {
	r := Reply{NumberReturned: 2, Documents: []bsoncore.Document{int32Doc(t, "a", 1)}}
	b, err := r.MarshalWireMessage()
	require.NoError(t, err)

	var out Reply
	assert.Error(t, out.UnmarshalWireMessage(b), "NumberReturned disagrees with the documents")

	failure := Reply{
		ResponseFlags: QueryFailure,
		Documents:     []bsoncore.Document{stringDoc(t, "$err", "bad query")},
	}
	b, err = failure.MarshalWireMessage()
	require.NoError(t, err)
	require.NoError(t, out.UnmarshalWireMessage(b))

	var qfe QueryFailureError
	require.True(t, errors.As(out.Err(), &qfe))
	assert.Equal(t, "bad query", qfe.Message)
}

func TestHeaderSetDefaults(t *testing.T) {
	q := Query{MsgHeader: Header{OpCode: OpReply}, FullCollectionName: "db.coll", Query: int32Doc(t, "a", 1)}
	_, err := q.MarshalWireMessage()
	assert.True(t, errors.Is(err, ErrInvalidHeader), "expected ErrInvalidHeader, got %v", err)
}

func TestDecodeUnknownOpCode(t *testing.T) {
	idx, b := AppendHeaderStart(nil, 1, 0, OpCommand)
	b = UpdateLength(b, idx)
	_, err := Decode(b)
	assert.True(t, errors.Is(err, ErrUnknownOpCode))
}

func TestCommandResponse(t *testing.T) {
	body := int32Doc(t, "ok", 1)

	t.Run("from msg", func(t *testing.T) {
		m := Msg{MsgHeader: Header{ResponseTo: 4}, Sections: []Section{SectionBody{Document: body}}}
		b, err := m.MarshalWireMessage()
		require.NoError(t, err)
		cr, err := ReadCommandResponse(b)
		require.NoError(t, err)
		assert.Equal(t, body, cr.Document())
		assert.True(t, cr.OK())
		assert.False(t, cr.MoreToCome())
	})
	t.Run("from reply", func(t *testing.T) {
		r := Reply{NumberReturned: 1, Documents: []bsoncore.Document{body}}
		b, err := r.MarshalWireMessage()
		require.NoError(t, err)
		cr, err := ReadCommandResponse(b)
		require.NoError(t, err)
		assert.Equal(t, body, cr.Document())
	})
	t.Run("not ok", func(t *testing.T) {
		cr := &CommandResponse{Body: int32Doc(t, "ok", 0)}
		assert.False(t, cr.OK())
	})
	t.Run("wrong opcode", func(t *testing.T) {
		_, err := NewCommandResponse(Insert{})
		assert.Error(t, err)
	})
}

func TestReadWireMessage(t *testing.T) {
	m1, err := Msg{MsgHeader: Header{RequestID: 1}, Sections: []Section{SectionBody{Document: int32Doc(t, "ping", 1)}}}.MarshalWireMessage()
	require.NoError(t, err)
	m2, err := KillCursors{MsgHeader: Header{RequestID: 2}, CursorIDs: []int64{9}}.MarshalWireMessage()
	require.NoError(t, err)

	r := bytes.NewReader(append(append([]byte{}, m1...), m2...))
	got, err := ReadWireMessage(r, 0)
	require.NoError(t, err)
	assert.Equal(t, m1, got)
	got, err = ReadWireMessage(r, 0)
	require.NoError(t, err)
	assert.Equal(t, m2, got)
	_, err = ReadWireMessage(r, 0)
	assert.Equal(t, io.EOF, err)

	t.Run("too large", func(t *testing.T) {
		_, err := ReadWireMessage(bytes.NewReader(m1), 16)
		assert.Error(t, err)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := ReadWireMessage(bytes.NewReader(m1[:len(m1)-1]), 0)
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})
	t.Run("reader", func(t *testing.T) {
		rd := NewReader(bytes.NewReader(append(append([]byte{}, m1...), m2...)), 0, nil)
		wm, err := rd.Next()
		require.NoError(t, err)
		assert.Equal(t, OpMsg, wm.OpCode())
		wm, err = rd.Next()
		require.NoError(t, err)
		assert.Equal(t, KillCursors{MsgHeader: Header{MessageLength: int32(len(m2)), RequestID: 2, OpCode: OpKillCursors}, CursorIDs: []int64{9}}, wm)
		_, err = rd.Next()
		assert.Equal(t, io.EOF, err)
	})
}
