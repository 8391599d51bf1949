// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"bytes"
	"strings"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
)

func appendInt32(b []byte, i int32) []byte {
	return append(b, byte(i), byte(i>>8), byte(i>>16), byte(i>>24))
}

func appendUint32(b []byte, u uint32) []byte {
	return append(b, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
}

func appendInt64(b []byte, i int64) []byte {
	return append(b,
		byte(i), byte(i>>8), byte(i>>16), byte(i>>24),
		byte(i>>32), byte(i>>40), byte(i>>48), byte(i>>56))
}

func appendCString(b []byte, str string) []byte {
	b = append(b, str...)
	return append(b, 0x00)
}

func readInt32(b []byte, pos int32) int32 {
	return int32(b[pos]) | int32(b[pos+1])<<8 | int32(b[pos+2])<<16 | int32(b[pos+3])<<24
}

func readUint32(b []byte, pos int32) uint32 {
	return uint32(b[pos]) | uint32(b[pos+1])<<8 | uint32(b[pos+2])<<16 | uint32(b[pos+3])<<24
}

func readInt64(b []byte, pos int32) int64 {
	return int64(b[pos]) | int64(b[pos+1])<<8 | int64(b[pos+2])<<16 | int64(b[pos+3])<<24 |
		int64(b[pos+4])<<32 | int64(b[pos+5])<<40 | int64(b[pos+6])<<48 | int64(b[pos+7])<<56
}

// readCString reads a null-terminated string starting at pos and returns the string and the
// position after the terminator.
func readCString(b []byte, pos int32) (string, int32, bool) {
	if int(pos) > len(b) {
		return "", pos, false
	}
	idx := bytes.IndexByte(b[pos:], 0x00)
	if idx < 0 {
		return "", pos, false
	}
	end := pos + int32(idx)
	return string(b[pos:end]), end + 1, true
}

// readDocument reads a length-prefixed document starting at pos. The returned document is a
// copy so messages never alias the buffer they were decoded from.
func readDocument(b []byte, pos int32) (bsoncore.Document, int32, error) {
	length, _, ok := bsoncore.ReadLength(b[pos:])
	if !ok {
		return nil, pos, errors.New("not enough bytes for a document length")
	}
	if length < 5 || int(pos)+int(length) > len(b) {
		return nil, pos, errors.Errorf("document length %d exceeds the %d remaining bytes", length, len(b)-int(pos))
	}
	doc := make(bsoncore.Document, length)
	copy(doc, b[pos:pos+length])
	if err := doc.Validate(); err != nil {
		return nil, pos, err
	}
	return doc, pos + length, nil
}

// readDocuments reads documents until end.
func readDocuments(b []byte, pos, end int32) ([]bsoncore.Document, error) {
	var docs []bsoncore.Document
	for pos < end {
		doc, next, err := readDocument(b[:end], pos)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		pos = next
	}
	return docs, nil
}

// validateNamespace checks that ns is a valid cstring of the form "<db>.<collection>".
func validateNamespace(ns string) error {
	if strings.IndexByte(ns, 0x00) >= 0 {
		return errors.Errorf("namespace %q contains a null byte", ns)
	}
	if !strings.Contains(ns, ".") {
		return errors.Errorf("namespace %q must contain a '.'", ns)
	}
	return nil
}

// validateDocument checks that doc is a well formed document.
func validateDocument(name string, doc bsoncore.Document) error {
	if len(doc) == 0 {
		return errors.Errorf("%s document must not be empty", name)
	}
	if err := doc.Validate(); err != nil {
		return errors.Wrapf(err, "invalid %s document", name)
	}
	return nil
}

// checkLength verifies that b holds exactly the message its header describes.
func checkLength(b []byte, op OpCode) (Header, error) {
	hdr, err := ReadHeader(b, 0)
	if err != nil {
		return Header{}, err
	}
	if hdr.OpCode != op {
		return Header{}, errors.Wrapf(ErrInvalidHeader, "opcode is %v, expected %v", hdr.OpCode, op)
	}
	if int(hdr.MessageLength) != len(b) {
		return Header{}, errors.Wrapf(ErrInvalidHeader, "message length is %d but %d bytes were provided", hdr.MessageLength, len(b))
	}
	return hdr, nil
}

func documentsString(docs []bsoncore.Document) string {
	strs := make([]string, 0, len(docs))
	for _, d := range docs {
		strs = append(strs, d.String())
	}
	return "[" + strings.Join(strs, ", ") + "]"
}
