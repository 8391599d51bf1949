// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainReader hides BytesReader so copies go value by value.
type plainReader struct {
	ValueReader
}

func TestCopyDocument(t *testing.T) {
	src, err := Marshal(samplePrimitives())
	require.NoError(t, err)

	t.Run("to writer", func(t *testing.T) {
		var buf bytes.Buffer
		vw := NewDocumentWriter(&buf)
		require.NoError(t, CopyDocument(vw, NewBSONDocumentReader(src)))
		require.NoError(t, vw.Flush())
		assert.Equal(t, src, buf.Bytes())
	})
	t.Run("to bytes", func(t *testing.T) {
		got, err := CopyDocumentToBytes(NewBSONDocumentReader(src))
		require.NoError(t, err)
		assert.Equal(t, src, got)
	})
	t.Run("to bytes value by value", func(t *testing.T) {
		got, err := CopyDocumentToBytes(plainReader{NewBSONDocumentReader(src)})
		require.NoError(t, err)
		assert.Equal(t, src, got)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := CopyDocumentToBytes(plainReader{NewBSONDocumentReader(src[:len(src)-4])})
		assert.Error(t, err)
	})
}

func TestCopyValueToBytes(t *testing.T) {
	payload := []byte{0x2a, 0, 0, 0}

	for _, vr := range []ValueReader{
		NewBSONValueReader(TypeInt32, payload),
		plainReader{NewBSONValueReader(TypeInt32, payload)},
	} {
		typ, b, err := CopyValueToBytes(vr)
		require.NoError(t, err)
		assert.Equal(t, TypeInt32, typ)
		assert.Equal(t, payload, b)
	}
}

func TestCopyBytesToDocumentWriterErrors(t *testing.T) {
	testCases := []struct {
		name string
		doc  []byte
	}{
		{"short", []byte{5, 0}},
		{"length beyond input", []byte{9, 0, 0, 0, 0}},
		{"missing terminator", []byte{5, 0, 0, 0, 0x0a}},
		{"value overruns", []byte{10, 0, 0, 0, 0x10, 'a', 0, 1, 0, 0}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dw, err := getValueWriter(nil).WriteDocument()
			require.NoError(t, err)
			err = copyBytesToDocumentWriter(dw, tc.doc)
			var fe *FormatError
			assert.ErrorAs(t, err, &fe)
		})
	}
}

func TestTransitionError(t *testing.T) {
	vw := getValueWriter(nil)
	defer putValueWriter(vw)

	_, err := vw.WriteArrayElement()
	var te TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t,
		"WriteArrayElement can only write a ValueMode while positioned on a ArrayMode but is positioned on a TopLevel",
		err.Error())

	vr := NewBSONValueReader(TypeInt32, []byte{1, 0, 0, 0})
	_, _, err = vr.(DocumentReader).ReadElement()
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "TopLevel, DocumentMode, or CodeWithScopeMode")
}
