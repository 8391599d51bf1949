// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	bits := math.Float64bits(3.14159)
	pi := make([]byte, 8)
	binary.LittleEndian.PutUint64(pi, bits)

	testCases := []struct {
		name     string
		got      []byte
		expected []byte
	}{
		{"AppendType", AppendType(nil, TypeNull), []byte{byte(TypeNull)}},
		{"AppendKey", AppendKey(nil, "foobar"), []byte{'f', 'o', 'o', 'b', 'a', 'r', 0x00}},
		{"AppendHeader", AppendHeader(nil, TypeNull, "foobar"), []byte{byte(TypeNull), 'f', 'o', 'o', 'b', 'a', 'r', 0x00}},
		{"AppendDouble", AppendDouble(nil, 3.14159), pi},
		{"AppendString", AppendString(nil, "foobar"), []byte{0x07, 0x00, 0x00, 0x00, 'f', 'o', 'o', 'b', 'a', 'r', 0x00}},
		{
			"AppendBinary Subtype2",
			AppendBinary(nil, 0x02, []byte{0x01, 0x02, 0x03}),
			[]byte{0x07, 0x00, 0x00, 0x00, 0x02, 0x03, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03},
		},
		{
			"AppendBinary",
			AppendBinary(nil, 0xFF, []byte{0x01, 0x02, 0x03}),
			[]byte{0x03, 0x00, 0x00, 0x00, 0xFF, 0x01, 0x02, 0x03},
		},
		{
			"AppendObjectID",
			AppendObjectID(nil, [12]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C}),
			[]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C},
		},
		{"AppendBoolean (true)", AppendBoolean(nil, true), []byte{0x01}},
		{"AppendBoolean (false)", AppendBoolean(nil, false), []byte{0x00}},
		{"AppendDateTime", AppendDateTime(nil, 256), []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"AppendRegex", AppendRegex(nil, "bar", "baz"), []byte{'b', 'a', 'r', 0x00, 'b', 'a', 'z', 0x00}},
		{"AppendInt32", AppendInt32(nil, 256), []byte{0x00, 0x01, 0x00, 0x00}},
		{"AppendInt64", AppendInt64(nil, 4294967296), []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}},
		{
			"AppendTimestamp",
			AppendTimestamp(nil, 65536, 256),
			[]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00},
		},
		{
			"AppendDecimal128",
			AppendDecimal128(nil, 4294967296, 65536),
			[]byte{
				0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
			},
		},
		{
			"AppendCodeWithScope",
			AppendCodeWithScope(nil, "foobar", []byte{0x05, 0x00, 0x00, 0x00, 0x00}),
			[]byte{
				0x14, 0x00, 0x00, 0x00,
				0x07, 0x00, 0x00, 0x00, 'f', 'o', 'o', 'b', 'a', 'r', 0x00,
				0x05, 0x00, 0x00, 0x00, 0x00,
			},
		},
		{"AppendArrayKey", AppendArrayKey(nil, TypeInt32, 12), []byte{byte(TypeInt32), '1', '2', 0x00}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.expected, tc.got); diff != "" {
				t.Errorf("bytes do not match (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRead(t *testing.T) {
	t.Run("ReadString", func(t *testing.T) {
		s, rem, ok := ReadString([]byte{0x04, 0x00, 0x00, 0x00, 'f', 'o', 'o', 0x00, 0xFF})
		require.True(t, ok)
		assert.Equal(t, "foo", s)
		assert.Equal(t, []byte{0xFF}, rem)
	})
	t.Run("ReadString length and terminator disagree", func(t *testing.T) {
		_, _, ok := ReadString([]byte{0x03, 0x00, 0x00, 0x00, 'f', 'o', 'o', 0x00})
		assert.False(t, ok)
	})
	t.Run("ReadString truncated", func(t *testing.T) {
		_, _, ok := ReadString([]byte{0x0A, 0x00, 0x00, 0x00, 'f', 0x00})
		assert.False(t, ok)
	})
	t.Run("ReadBoolean rejects other bytes", func(t *testing.T) {
		_, _, ok := ReadBoolean([]byte{0x02})
		assert.False(t, ok)
	})
	t.Run("ReadTimestamp", func(t *testing.T) {
		ts, i, rem, ok := ReadTimestamp(AppendTimestamp(nil, 12345, 67))
		require.True(t, ok)
		assert.Equal(t, uint32(12345), ts)
		assert.Equal(t, uint32(67), i)
		assert.Empty(t, rem)
	})
	t.Run("ReadDecimal128", func(t *testing.T) {
		h, l, _, ok := ReadDecimal128(AppendDecimal128(nil, 0x3040000000000000, 42))
		require.True(t, ok)
		assert.Equal(t, uint64(0x3040000000000000), h)
		assert.Equal(t, uint64(42), l)
	})
	t.Run("ReadBinary old subtype", func(t *testing.T) {
		st, bin, rem, ok := ReadBinary(AppendBinary(nil, 0x02, []byte{0xAA, 0xBB}))
		require.True(t, ok)
		assert.Equal(t, byte(0x02), st)
		assert.Equal(t, []byte{0xAA, 0xBB}, bin)
		assert.Empty(t, rem)
	})
	t.Run("ReadCodeWithScope", func(t *testing.T) {
		scope := []byte{0x05, 0x00, 0x00, 0x00, 0x00}
		code, sc, _, ok := ReadCodeWithScope(AppendCodeWithScope(nil, "x()", scope))
		require.True(t, ok)
		assert.Equal(t, "x()", code)
		assert.Equal(t, Document(scope), sc)
	})
	t.Run("ReadDocument too short", func(t *testing.T) {
		_, _, ok := ReadDocument([]byte{0x0A, 0x00, 0x00, 0x00, 0x00})
		assert.False(t, ok)
	})
}

func TestDocumentBuild(t *testing.T) {
	t.Run("empty document", func(t *testing.T) {
		idx, doc := AppendDocumentStart(nil)
		doc, err := AppendDocumentEnd(doc, idx)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x05, 0x00, 0x00, 0x00, 0x00}, doc)
		assert.NoError(t, Document(doc).Validate())
	})
	t.Run("nested", func(t *testing.T) {
		idx, doc := AppendDocumentStart(nil)
		doc = AppendStringElement(doc, "a", "b")
		var sidx int32
		sidx, doc = AppendArrayElementStart(doc, "arr")
		doc = AppendInt32Element(doc, "0", 1)
		doc = AppendInt64Element(doc, "1", 2)
		doc, err := AppendArrayEnd(doc, sidx)
		require.NoError(t, err)
		doc, err = AppendDocumentEnd(doc, idx)
		require.NoError(t, err)

		require.NoError(t, Document(doc).Validate())
		length, _, _ := ReadLength(doc)
		assert.Equal(t, int32(len(doc)), length)

		elem, err := Document(doc).Lookup("arr", "1")
		require.NoError(t, err)
		assert.Equal(t, TypeInt64, elem.Type())
		i64, _, ok := ReadInt64(elem.Value())
		require.True(t, ok)
		assert.Equal(t, int64(2), i64)

		assert.Equal(t, "a", Document(doc).Index(0).Key())
		_, err = Document(doc).IndexErr(2)
		assert.Equal(t, ErrOutOfBounds, err)
	})
	t.Run("end before reserve", func(t *testing.T) {
		_, err := AppendDocumentEnd([]byte{0x00}, 0)
		assert.Error(t, err)
	})
}

func TestDocumentValidate(t *testing.T) {
	valid := AppendStringElement([]byte{0x00, 0x00, 0x00, 0x00}, "x", "y")
	valid = append(valid, 0x00)
	valid = UpdateLength(valid, 0, int32(len(valid)))

	testCases := []struct {
		name string
		doc  []byte
		ok   bool
	}{
		{"valid", valid, true},
		{"length too long", append(bytes.Clone(valid[:len(valid):len(valid)]), 0x00), false},
		{"missing terminator", func() []byte {
			b := bytes.Clone(valid)
			b[len(b)-1] = 0x01
			return b
		}(), false},
		{"truncated", valid[:len(valid)-2], false},
		{"unknown type tag", []byte{0x08, 0x00, 0x00, 0x00, 0x42, 'a', 0x00, 0x00}, false},
		{"bad boolean", []byte{0x09, 0x00, 0x00, 0x00, 0x08, 'a', 0x00, 0x07, 0x00}, false},
		{"invalid utf8 string", func() []byte {
			b := AppendStringElement([]byte{0x00, 0x00, 0x00, 0x00}, "x", "\xff\xfe")
			b = append(b, 0x00)
			return UpdateLength(b, 0, int32(len(b)))
		}(), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Document(tc.doc).Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
		})
	}
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "128-bit decimal", TypeDecimal128.String())
	assert.Equal(t, "invalid", Type(0x42).String())
	assert.True(t, TypeMinKey.IsValid())
	assert.False(t, Type(0x00).IsValid())
}
