// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
)

var _ ValueReader = (*valueReader)(nil)
var _ BookmarkReader = (*valueReader)(nil)
var _ BytesReader = (*valueReader)(nil)

// readFrame is one level of nesting. Containers record the offset one past their last byte;
// element and array value frames record the type of the value under the reader.
type readFrame struct {
	mode  mode
	vType Type
	end   int64
}

// valueReader reads BSON values out of a byte slice. Every read is bounded by the innermost
// container, so a corrupt length cannot make the reader run past its parent.
type valueReader struct {
	offset int64
	d      []byte
	frames []readFrame
}

// NewBSONDocumentReader returns a ValueReader using b for the underlying BSON
// representation. Parameter b must be a BSON Document.
func NewBSONDocumentReader(b []byte) ValueReader {
	return newValueReader(b)
}

// NewBSONValueReader returns a ValueReader positioned on a single value of type t whose bytes
// are val.
func NewBSONValueReader(t Type, val []byte) ValueReader {
	frames := make([]readFrame, 1, 8)
	frames[0] = readFrame{mode: mValue, vType: t, end: int64(len(val))}
	return &valueReader{d: val, frames: frames}
}

// NewDocumentReaderFrom reads exactly one length-prefixed BSON document from r and returns a
// ValueReader positioned at its start.
func NewDocumentReaderFrom(r io.Reader) (ValueReader, error) {
	doc, err := ReadDocumentFrom(r)
	if err != nil {
		return nil, err
	}
	return newValueReader(doc), nil
}

// ReadDocumentFrom reads exactly one length-prefixed BSON document from r.
func ReadDocumentFrom(r io.Reader) ([]byte, error) {
	var lengthBytes [4]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return nil, wrapFormatError(0, err, "cannot read document length")
	}

	length := int32(binary.LittleEndian.Uint32(lengthBytes[:]))
	if length < 5 {
		return nil, newFormatError(0, "invalid document length %d", length)
	}
	doc := make([]byte, length)
	copy(doc, lengthBytes[:])
	if _, err := io.ReadFull(r, doc[4:]); err != nil {
		return nil, wrapFormatError(4, err, "document declared %d bytes", length)
	}
	return doc, nil
}

func newValueReader(b []byte) *valueReader {
	frames := make([]readFrame, 1, 8)
	frames[0] = readFrame{mode: mTopLevel, vType: TypeEmbeddedDocument}
	return &valueReader{d: b, frames: frames}
}

// Bookmark saves the current position of the reader.
func (vr *valueReader) Bookmark() Bookmark {
	frames := make([]readFrame, len(vr.frames))
	copy(frames, vr.frames)
	return Bookmark{offset: vr.offset, frames: frames}
}

// ReturnToBookmark restores the position saved by Bookmark. The bookmark must have been taken
// from this reader.
func (vr *valueReader) ReturnToBookmark(b Bookmark) {
	vr.offset = b.offset
	vr.frames = append(vr.frames[:0], b.frames...)
}

func (vr *valueReader) top() *readFrame { return &vr.frames[len(vr.frames)-1] }

func (vr *valueReader) push(f readFrame) { vr.frames = append(vr.frames, f) }

// finishValue drops the element or value frame once its value has been consumed. The bottom
// frame is never removed.
func (vr *valueReader) finishValue() {
	if len(vr.frames) < 2 {
		return
	}
	switch vr.top().mode {
	case mElement, mValue:
		vr.frames = vr.frames[:len(vr.frames)-1]
	}
}

// finishContainer drops a completed container frame and the element or value frame that held
// it. A top level document stays on the stack.
func (vr *valueReader) finishContainer() {
	if vr.top().mode == mTopLevel || len(vr.frames) < 2 {
		return
	}
	vr.frames = vr.frames[:len(vr.frames)-1]
	vr.finishValue()
}

// limit returns the end offset of the innermost container enclosing the reader.
func (vr *valueReader) limit() int64 {
	for i := len(vr.frames) - 1; i >= 0; i-- {
		if vr.frames[i].end > 0 {
			return vr.frames[i].end
		}
	}
	return int64(len(vr.d))
}

// pushContainer reads the length prefix of a container and enters it.
func (vr *valueReader) pushContainer(m mode) (int32, error) {
	start := vr.offset
	limit := vr.limit()
	size, err := vr.readi32()
	if err != nil {
		return 0, err
	}
	if size < 5 {
		return 0, newFormatError(start, "invalid %s length %d", m, size)
	}
	end := start + int64(size)
	if end > limit || end > int64(len(vr.d)) {
		return 0, newFormatError(start, "%s length %d exceeds the enclosing bytes", m, size)
	}
	vr.push(readFrame{mode: m, end: end})
	return size, nil
}

func (vr *valueReader) transitionError(destination mode, name string, modes []mode) error {
	te := TransitionError{
		name:        name,
		current:     vr.top().mode,
		destination: destination,
		modes:       modes,
		action:      "read",
	}
	if n := len(vr.frames); n > 1 {
		te.parent = vr.frames[n-2].mode
	}
	return te
}

// expect checks that the reader is positioned on a value of type t.
func (vr *valueReader) expect(t Type, destination mode, caller string) error {
	f := vr.top()
	switch f.mode {
	case mElement, mValue:
		if f.vType != t {
			return errors.Errorf("positioned on %s, but attempted to read %s", f.vType, t)
		}
		return nil
	}
	return vr.transitionError(destination, caller, []mode{mElement, mValue})
}

// fixed reads the n byte payload of a value of type t.
func (vr *valueReader) fixed(t Type, caller string, n int32) ([]byte, error) {
	if err := vr.expect(t, 0, caller); err != nil {
		return nil, err
	}
	b, err := vr.readBytes(n)
	if err != nil {
		return nil, err
	}
	vr.finishValue()
	return b, nil
}

// empty consumes a value of type t that has no payload.
func (vr *valueReader) empty(t Type, caller string) error {
	_, err := vr.fixed(t, caller, 0)
	return err
}

// stringValue consumes a value of type t whose payload is a length prefixed string.
func (vr *valueReader) stringValue(t Type, caller string) (string, error) {
	if err := vr.expect(t, 0, caller); err != nil {
		return "", err
	}
	s, err := vr.readString()
	if err != nil {
		return "", err
	}
	vr.finishValue()
	return s, nil
}

func (vr *valueReader) Type() Type {
	return vr.top().vType
}

func (vr *valueReader) valueLength() (int32, error) {
	t := vr.top().vType
	if vr.offset > int64(len(vr.d)) {
		return 0, vr.truncated(0)
	}
	length, ok := bsoncore.ValueLength(bsoncore.Type(t), vr.d[vr.offset:])
	if !ok {
		if !t.IsValid() {
			return 0, newFormatError(vr.offset, "attempted to read bytes of unknown BSON type %v", t)
		}
		return 0, vr.truncated(0)
	}
	return length, nil
}

func (vr *valueReader) ReadValueBytes(dst []byte) (Type, []byte, error) {
	switch vr.top().mode {
	case mTopLevel:
		length, err := vr.peekLength()
		if err != nil {
			return Type(0), nil, err
		}
		b, err := vr.readBytes(length)
		if err != nil {
			return Type(0), nil, err
		}
		return TypeEmbeddedDocument, append(dst, b...), nil
	case mElement, mValue:
		length, err := vr.valueLength()
		if err != nil {
			return Type(0), dst, err
		}
		t := vr.top().vType
		b, err := vr.readBytes(length)
		vr.finishValue()
		if err != nil {
			return t, nil, err
		}
		return t, append(dst, b...), nil
	}
	return Type(0), nil, vr.transitionError(0, "ReadValueBytes", []mode{mElement, mValue})
}

func (vr *valueReader) Skip() error {
	switch vr.top().mode {
	case mElement, mValue:
	default:
		return vr.transitionError(0, "Skip", []mode{mElement, mValue})
	}

	length, err := vr.valueLength()
	if err != nil {
		return err
	}
	_, err = vr.readBytes(length)
	vr.finishValue()
	return err
}

func (vr *valueReader) ReadArray() (ArrayReader, error) {
	if err := vr.expect(TypeArray, mArray, "ReadArray"); err != nil {
		return nil, err
	}
	if _, err := vr.pushContainer(mArray); err != nil {
		return nil, err
	}
	return vr, nil
}

// ReadBinary returns a copy of the binary payload. Subtype 2 carries a second, inner length
// which must agree with the outer one.
func (vr *valueReader) ReadBinary() ([]byte, byte, error) {
	if err := vr.expect(TypeBinary, 0, "ReadBinary"); err != nil {
		return nil, 0, err
	}

	start := vr.offset
	length, err := vr.readi32()
	if err != nil {
		return nil, 0, err
	}
	btype, err := vr.readByte()
	if err != nil {
		return nil, 0, err
	}
	if btype == TypeBinaryBinaryOld && length > 4 {
		inner, err := vr.readi32()
		if err != nil {
			return nil, 0, err
		}
		if inner != length-4 {
			return nil, 0, newFormatError(start, "binary subtype 2 inner length %d disagrees with %d", inner, length)
		}
		length = inner
	}

	b, err := vr.readBytes(length)
	if err != nil {
		return nil, 0, err
	}
	vr.finishValue()
	return append([]byte(nil), b...), btype, nil
}

func (vr *valueReader) ReadBoolean() (bool, error) {
	b, err := vr.fixed(TypeBoolean, "ReadBoolean", 1)
	if err != nil {
		return false, err
	}
	if b[0] > 1 {
		return false, newFormatError(vr.offset-1, "invalid byte for boolean, %b", b[0])
	}
	return b[0] == 1, nil
}

func (vr *valueReader) ReadDocument() (DocumentReader, error) {
	f := vr.top()
	switch f.mode {
	case mTopLevel:
		length, err := vr.readi32()
		if err != nil {
			return nil, err
		}
		if length < 5 {
			return nil, newFormatError(0, "invalid document length: %d", length)
		}
		if int64(length) > int64(len(vr.d)) {
			return nil, newFormatError(0, "document declares %d bytes but only %d are available", length, len(vr.d))
		}
		f.end = int64(length)
		return vr, nil
	case mElement, mValue:
		if f.vType != TypeEmbeddedDocument {
			return nil, errors.Errorf("positioned on %s, but attempted to read %s", f.vType, TypeEmbeddedDocument)
		}
	default:
		return nil, vr.transitionError(mDocument, "ReadDocument", []mode{mTopLevel, mElement, mValue})
	}

	if _, err := vr.pushContainer(mDocument); err != nil {
		return nil, err
	}
	return vr, nil
}

// ReadCodeWithScope returns the code and a reader for the scope document. The total length of
// the value must equal the sum of its parts.
func (vr *valueReader) ReadCodeWithScope() (string, DocumentReader, error) {
	if err := vr.expect(TypeCodeWithScope, 0, "ReadCodeWithScope"); err != nil {
		return "", nil, err
	}

	start := vr.offset
	total, err := vr.readi32()
	if err != nil {
		return "", nil, err
	}
	code, err := vr.readString()
	if err != nil {
		return "", nil, err
	}
	scope, err := vr.pushContainer(mCodeWithScope)
	if err != nil {
		return "", nil, err
	}

	parts := 4 + 4 + int64(len(code)) + 1 + int64(scope)
	if int64(total) != parts {
		return "", nil, newFormatError(start,
			"length of CodeWithScope does not match lengths of components; total: %d; components: %d",
			total, parts,
		)
	}
	return code, vr, nil
}

func (vr *valueReader) ReadDBPointer() (string, ObjectID, error) {
	var oid ObjectID
	if err := vr.expect(TypeDBPointer, 0, "ReadDBPointer"); err != nil {
		return "", oid, err
	}
	ns, err := vr.readString()
	if err != nil {
		return "", oid, err
	}
	b, err := vr.readBytes(int32(len(oid)))
	if err != nil {
		return "", oid, err
	}
	copy(oid[:], b)
	vr.finishValue()
	return ns, oid, nil
}

func (vr *valueReader) ReadDateTime() (int64, error) {
	b, err := vr.fixed(TypeDateTime, "ReadDateTime", 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (vr *valueReader) ReadDecimal128() (Decimal128, error) {
	b, err := vr.fixed(TypeDecimal128, "ReadDecimal128", 16)
	if err != nil {
		return Decimal128{}, err
	}
	return NewDecimal128(binary.LittleEndian.Uint64(b[8:16]), binary.LittleEndian.Uint64(b[0:8])), nil
}

func (vr *valueReader) ReadDouble() (float64, error) {
	b, err := vr.fixed(TypeDouble, "ReadDouble", 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (vr *valueReader) ReadInt32() (int32, error) {
	b, err := vr.fixed(TypeInt32, "ReadInt32", 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (vr *valueReader) ReadInt64() (int64, error) {
	b, err := vr.fixed(TypeInt64, "ReadInt64", 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (vr *valueReader) ReadJavascript() (string, error) {
	return vr.stringValue(TypeJavaScript, "ReadJavascript")
}

func (vr *valueReader) ReadMaxKey() error    { return vr.empty(TypeMaxKey, "ReadMaxKey") }
func (vr *valueReader) ReadMinKey() error    { return vr.empty(TypeMinKey, "ReadMinKey") }
func (vr *valueReader) ReadNull() error      { return vr.empty(TypeNull, "ReadNull") }
func (vr *valueReader) ReadUndefined() error { return vr.empty(TypeUndefined, "ReadUndefined") }

func (vr *valueReader) ReadObjectID() (ObjectID, error) {
	var oid ObjectID
	b, err := vr.fixed(TypeObjectID, "ReadObjectID", int32(len(oid)))
	if err != nil {
		return oid, err
	}
	copy(oid[:], b)
	return oid, nil
}

func (vr *valueReader) ReadRegex() (string, string, error) {
	if err := vr.expect(TypeRegex, 0, "ReadRegex"); err != nil {
		return "", "", err
	}
	pattern, err := vr.readCString()
	if err != nil {
		return "", "", err
	}
	options, err := vr.readCString()
	if err != nil {
		return "", "", err
	}
	vr.finishValue()
	return pattern, options, nil
}

func (vr *valueReader) ReadString() (string, error) {
	return vr.stringValue(TypeString, "ReadString")
}

func (vr *valueReader) ReadSymbol() (string, error) {
	return vr.stringValue(TypeSymbol, "ReadSymbol")
}

// ReadTimestamp returns the timestamp's seconds and increment. On the wire the increment comes
// first.
func (vr *valueReader) ReadTimestamp() (uint32, uint32, error) {
	b, err := vr.fixed(TypeTimestamp, "ReadTimestamp", 8)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(b[4:8]), binary.LittleEndian.Uint32(b[0:4]), nil
}

// nextTag reads the type tag of the next element of the current container. At the terminator
// it checks that the container ends exactly there and leaves it.
func (vr *valueReader) nextTag(what string) (Type, bool, error) {
	end := vr.top().end
	if vr.offset >= end {
		return 0, false, newFormatError(vr.offset, "%s is missing its null terminator", what)
	}
	t, err := vr.readByte()
	if err != nil {
		return 0, false, err
	}
	if t == 0 {
		if vr.offset != end {
			return 0, false, newFormatError(vr.offset,
				"document is invalid, end byte is at %d, but null byte found at %d", end, vr.offset)
		}
		vr.finishContainer()
		return 0, false, nil
	}
	if !Type(t).IsValid() {
		return 0, false, newFormatError(vr.offset-1, "unknown BSON type tag %#x", t)
	}
	return Type(t), true, nil
}

func (vr *valueReader) ReadElement() (string, ValueReader, error) {
	switch vr.top().mode {
	case mTopLevel, mDocument, mCodeWithScope:
	default:
		return "", nil, vr.transitionError(mElement, "ReadElement", []mode{mTopLevel, mDocument, mCodeWithScope})
	}

	t, ok, err := vr.nextTag("document")
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrEOD
	}
	name, err := vr.readCString()
	if err != nil {
		return "", nil, err
	}
	vr.push(readFrame{mode: mElement, vType: t})
	return name, vr, nil
}

func (vr *valueReader) ReadValue() (ValueReader, error) {
	if vr.top().mode != mArray {
		return nil, vr.transitionError(mValue, "ReadValue", []mode{mArray})
	}

	t, ok, err := vr.nextTag("array")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEOA
	}
	// array keys are positional; their content is not interpreted
	if err := vr.skipCString(); err != nil {
		return nil, err
	}
	vr.push(readFrame{mode: mValue, vType: t})
	return vr, nil
}

func (vr *valueReader) truncated(need int64) error {
	return wrapFormatError(vr.offset, io.ErrUnexpectedEOF, "need %d bytes, %d available", need, int64(len(vr.d))-vr.offset)
}

// readBytes returns the next length bytes without copying them.
func (vr *valueReader) readBytes(length int32) ([]byte, error) {
	if length < 0 {
		return nil, newFormatError(vr.offset, "invalid length: %d", length)
	}
	if vr.offset+int64(length) > int64(len(vr.d)) {
		return nil, vr.truncated(int64(length))
	}
	start := vr.offset
	vr.offset += int64(length)
	return vr.d[start:vr.offset], nil
}

func (vr *valueReader) readByte() (byte, error) {
	b, err := vr.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (vr *valueReader) cstringEnd() (int64, error) {
	if vr.offset > int64(len(vr.d)) {
		return 0, vr.truncated(1)
	}
	idx := bytes.IndexByte(vr.d[vr.offset:], 0x00)
	if idx < 0 {
		return 0, newFormatError(vr.offset, "C string is missing its null terminator")
	}
	return vr.offset + int64(idx), nil
}

func (vr *valueReader) skipCString() error {
	end, err := vr.cstringEnd()
	if err != nil {
		return err
	}
	vr.offset = end + 1
	return nil
}

func (vr *valueReader) readCString() (string, error) {
	end, err := vr.cstringEnd()
	if err != nil {
		return "", err
	}
	start := vr.offset
	vr.offset = end + 1
	s := vr.d[start:end]
	if !utf8.Valid(s) {
		return "", newFormatError(start, "C string is not valid UTF-8")
	}
	return string(s), nil
}

// readString reads a length prefixed, null terminated UTF-8 string. Only the terminator is
// checked; the payload may hold zero bytes.
func (vr *valueReader) readString() (string, error) {
	start := vr.offset
	length, err := vr.readi32()
	if err != nil {
		return "", err
	}
	if length <= 0 {
		return "", newFormatError(start, "invalid string length: %d", length)
	}
	b, err := vr.readBytes(length)
	if err != nil {
		return "", err
	}
	if b[length-1] != 0x00 {
		return "", newFormatError(start, "string does not end with null byte, but with %v", b[length-1])
	}
	s := b[:length-1]
	if !utf8.Valid(s) {
		return "", newFormatError(start, "string is not valid UTF-8")
	}
	return string(s), nil
}

func (vr *valueReader) peekLength() (int32, error) {
	if vr.offset+4 > int64(len(vr.d)) {
		return 0, vr.truncated(4)
	}
	return int32(binary.LittleEndian.Uint32(vr.d[vr.offset:])), nil
}

func (vr *valueReader) readi32() (int32, error) {
	b, err := vr.readBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (vr *valueReader) String() string {
	return fmt.Sprintf("valueReader{offset: %d, depth: %d, mode: %s}", vr.offset, len(vr.frames)-1, vr.top().mode)
}
