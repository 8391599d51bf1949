// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
)

var _ ValueWriter = &valueWriter{}
var _ BytesWriter = &valueWriter{}

var vwPool = sync.Pool{
	New: func() interface{} {
		return newValueWriterFromSlice(nil)
	},
}

func getValueWriter(buf []byte) *valueWriter {
	vw := vwPool.Get().(*valueWriter)
	vw.reset(buf)
	return vw
}

func putValueWriter(vw *valueWriter) {
	if vw != nil {
		vw.w = nil
		vw.buf = nil
		vwPool.Put(vw)
	}
}

// maxSize is the largest document the writer produces. Tests lower it.
var maxSize = math.MaxInt32

// writeFrame is one level of nesting. Containers remember the offset of their length prefix so
// it can be patched when they end.
type writeFrame struct {
	mode  mode
	key   string
	index int
	start int
}

// valueWriter appends BSON to buf. Element and array value frames sit between a container and
// the value written into it; finishing the value removes them again.
type valueWriter struct {
	w      io.Writer
	buf    []byte
	frames []writeFrame
}

// NewDocumentWriter creates a ValueWriter that writes BSON to w.
//
// Only complete top level documents are written to w; they are buffered while being built.
func NewDocumentWriter(w io.Writer) ValueWriterFlusher {
	vw := newValueWriterFromSlice(nil)
	vw.w = w
	return vw
}

func newValueWriterFromSlice(buf []byte) *valueWriter {
	vw := &valueWriter{frames: make([]writeFrame, 1, 8)}
	vw.reset(buf)
	return vw
}

func (vw *valueWriter) reset(buf []byte) {
	if vw.frames == nil {
		vw.frames = make([]writeFrame, 1, 8)
	}
	vw.frames = vw.frames[:1]
	vw.frames[0] = writeFrame{mode: mTopLevel}
	vw.buf = buf
	vw.w = nil
}

func (vw *valueWriter) top() *writeFrame { return &vw.frames[len(vw.frames)-1] }

func (vw *valueWriter) push(m mode) *writeFrame {
	f := writeFrame{mode: m}
	switch m {
	case mDocument, mArray, mCodeWithScope:
		f.start = len(vw.buf)
		vw.buf = append(vw.buf, 0x00, 0x00, 0x00, 0x00)
	}
	vw.frames = append(vw.frames, f)
	return vw.top()
}

func (vw *valueWriter) pop() { vw.frames = vw.frames[:len(vw.frames)-1] }

// finishValue drops the element or array value frame a value was written into.
func (vw *valueWriter) finishValue() {
	switch vw.top().mode {
	case mElement, mValue:
		vw.pop()
	}
}

func (vw *valueWriter) transitionError(destination mode, name string, modes []mode) error {
	te := TransitionError{
		name:        name,
		current:     vw.top().mode,
		destination: destination,
		modes:       modes,
		action:      "write",
	}
	if n := len(vw.frames); n > 1 {
		te.parent = vw.frames[n-2].mode
	}
	return te
}

// beginValue writes the type byte and element name for a value of type t. The current frame
// must be a document element or an array value, or one of extra.
func (vw *valueWriter) beginValue(t Type, destination mode, caller string, extra ...mode) error {
	f := vw.top()
	switch f.mode {
	case mElement:
		if !isValidCString(f.key) {
			return newEncodingError(f.key, "BSON element key cannot contain null bytes")
		}
		if !utf8.ValidString(f.key) {
			return newEncodingError(f.key, "BSON element key is not valid UTF-8")
		}
		vw.buf = bsoncore.AppendType(vw.buf, bsoncore.Type(t))
		vw.buf = append(vw.buf, f.key...)
		vw.buf = append(vw.buf, 0x00)
		return nil
	case mValue:
		vw.buf = bsoncore.AppendArrayKey(vw.buf, bsoncore.Type(t), f.index)
		return nil
	}
	return vw.transitionError(destination, caller, append([]mode{mElement, mValue}, extra...))
}

// scalar writes a complete value of type t whose payload is produced by appendPayload. A nil
// appendPayload writes a value without payload.
func (vw *valueWriter) scalar(t Type, caller string, appendPayload func([]byte) []byte) error {
	if err := vw.beginValue(t, mode(0), caller); err != nil {
		return err
	}
	if appendPayload != nil {
		vw.buf = appendPayload(vw.buf)
	}
	vw.finishValue()
	return nil
}

// requireUTF8 reports the first of ss that is not valid UTF-8. Writer errors carry no key; the
// codecs add the path.
func requireUTF8(what string, ss ...string) error {
	for _, s := range ss {
		if !utf8.ValidString(s) {
			return newEncodingError("", "%s value is not valid UTF-8", what)
		}
	}
	return nil
}

func (vw *valueWriter) WriteValueBytes(t Type, b []byte) error {
	return vw.scalar(t, "WriteValueBytes", func(dst []byte) []byte { return append(dst, b...) })
}

func (vw *valueWriter) WriteBinary(b []byte) error {
	return vw.WriteBinaryWithSubtype(b, 0x00)
}

func (vw *valueWriter) WriteBinaryWithSubtype(b []byte, btype byte) error {
	return vw.scalar(TypeBinary, "WriteBinaryWithSubtype", func(dst []byte) []byte {
		return bsoncore.AppendBinary(dst, btype, b)
	})
}

func (vw *valueWriter) WriteBoolean(b bool) error {
	return vw.scalar(TypeBoolean, "WriteBoolean", func(dst []byte) []byte {
		return bsoncore.AppendBoolean(dst, b)
	})
}

func (vw *valueWriter) WriteDBPointer(ns string, oid ObjectID) error {
	if err := requireUTF8("dbpointer namespace", ns); err != nil {
		return err
	}
	return vw.scalar(TypeDBPointer, "WriteDBPointer", func(dst []byte) []byte {
		return bsoncore.AppendDBPointer(dst, ns, oid)
	})
}

func (vw *valueWriter) WriteDateTime(dt int64) error {
	return vw.scalar(TypeDateTime, "WriteDateTime", func(dst []byte) []byte {
		return bsoncore.AppendDateTime(dst, dt)
	})
}

func (vw *valueWriter) WriteDecimal128(d128 Decimal128) error {
	h, l := d128.GetBytes()
	return vw.scalar(TypeDecimal128, "WriteDecimal128", func(dst []byte) []byte {
		return bsoncore.AppendDecimal128(dst, h, l)
	})
}

func (vw *valueWriter) WriteDouble(f float64) error {
	return vw.scalar(TypeDouble, "WriteDouble", func(dst []byte) []byte {
		return bsoncore.AppendDouble(dst, f)
	})
}

func (vw *valueWriter) WriteInt32(i32 int32) error {
	return vw.scalar(TypeInt32, "WriteInt32", func(dst []byte) []byte {
		return bsoncore.AppendInt32(dst, i32)
	})
}

func (vw *valueWriter) WriteInt64(i64 int64) error {
	return vw.scalar(TypeInt64, "WriteInt64", func(dst []byte) []byte {
		return bsoncore.AppendInt64(dst, i64)
	})
}

func (vw *valueWriter) WriteJavascript(code string) error {
	if err := requireUTF8("javascript", code); err != nil {
		return err
	}
	return vw.scalar(TypeJavaScript, "WriteJavascript", func(dst []byte) []byte {
		return bsoncore.AppendJavaScript(dst, code)
	})
}

func (vw *valueWriter) WriteMaxKey() error    { return vw.scalar(TypeMaxKey, "WriteMaxKey", nil) }
func (vw *valueWriter) WriteMinKey() error    { return vw.scalar(TypeMinKey, "WriteMinKey", nil) }
func (vw *valueWriter) WriteNull() error      { return vw.scalar(TypeNull, "WriteNull", nil) }
func (vw *valueWriter) WriteUndefined() error { return vw.scalar(TypeUndefined, "WriteUndefined", nil) }

func (vw *valueWriter) WriteObjectID(oid ObjectID) error {
	return vw.scalar(TypeObjectID, "WriteObjectID", func(dst []byte) []byte {
		return bsoncore.AppendObjectID(dst, oid)
	})
}

// WriteRegex writes a regular expression. The options are stored sorted.
func (vw *valueWriter) WriteRegex(pattern string, options string) error {
	if !isValidCString(pattern) || !isValidCString(options) {
		return newEncodingError("", "BSON regex values cannot contain null bytes")
	}
	if err := requireUTF8("regex", pattern, options); err != nil {
		return err
	}
	options = sortRegexOptions(options)
	return vw.scalar(TypeRegex, "WriteRegex", func(dst []byte) []byte {
		return bsoncore.AppendRegex(dst, pattern, options)
	})
}

func (vw *valueWriter) WriteString(s string) error {
	if err := requireUTF8("string", s); err != nil {
		return err
	}
	return vw.scalar(TypeString, "WriteString", func(dst []byte) []byte {
		return bsoncore.AppendString(dst, s)
	})
}

func (vw *valueWriter) WriteSymbol(symbol string) error {
	if err := requireUTF8("symbol", symbol); err != nil {
		return err
	}
	return vw.scalar(TypeSymbol, "WriteSymbol", func(dst []byte) []byte {
		return bsoncore.AppendSymbol(dst, symbol)
	})
}

func (vw *valueWriter) WriteTimestamp(t uint32, i uint32) error {
	return vw.scalar(TypeTimestamp, "WriteTimestamp", func(dst []byte) []byte {
		return bsoncore.AppendTimestamp(dst, t, i)
	})
}

func (vw *valueWriter) WriteArray() (ArrayWriter, error) {
	if err := vw.beginValue(TypeArray, mArray, "WriteArray"); err != nil {
		return nil, err
	}
	vw.push(mArray)
	return vw, nil
}

// WriteDocument starts a document. At the top level it starts the document being built;
// anywhere else it starts an embedded document.
func (vw *valueWriter) WriteDocument() (DocumentWriter, error) {
	if f := vw.top(); f.mode == mTopLevel {
		f.start = len(vw.buf)
		vw.buf = append(vw.buf, 0x00, 0x00, 0x00, 0x00)
		return vw, nil
	}
	if err := vw.beginValue(TypeEmbeddedDocument, mDocument, "WriteDocument", mTopLevel); err != nil {
		return nil, err
	}
	vw.push(mDocument)
	return vw, nil
}

// WriteCodeWithScope writes the code and starts the scope document. Ending the scope also
// patches the length of the whole code with scope value.
func (vw *valueWriter) WriteCodeWithScope(code string) (DocumentWriter, error) {
	if err := requireUTF8("javascript", code); err != nil {
		return nil, err
	}
	if err := vw.beginValue(TypeCodeWithScope, mCodeWithScope, "WriteCodeWithScope"); err != nil {
		return nil, err
	}
	vw.push(mCodeWithScope)
	vw.buf = bsoncore.AppendString(vw.buf, code)
	vw.push(mDocument)
	return vw, nil
}

func (vw *valueWriter) WriteDocumentElement(key string) (ValueWriter, error) {
	switch vw.top().mode {
	case mTopLevel, mDocument:
	default:
		return nil, vw.transitionError(mElement, "WriteDocumentElement", []mode{mTopLevel, mDocument})
	}
	vw.push(mElement).key = key
	return vw, nil
}

func (vw *valueWriter) WriteDocumentEnd() error {
	f := vw.top()
	switch f.mode {
	case mTopLevel, mDocument:
	default:
		return errors.Errorf("incorrect mode to end document: %s", f.mode)
	}

	vw.buf = append(vw.buf, 0x00)
	if err := vw.patchLength(f.start); err != nil {
		return err
	}
	if f.mode == mTopLevel {
		return vw.Flush()
	}

	vw.pop()
	if vw.top().mode == mCodeWithScope {
		if err := vw.patchLength(vw.top().start); err != nil {
			return err
		}
		vw.pop()
	}
	vw.finishValue()
	return nil
}

// Flush writes any buffered bytes to the underlying io.Writer. It is a no-op for slice
// backed writers.
func (vw *valueWriter) Flush() error {
	if vw.w == nil {
		return nil
	}
	if _, err := vw.w.Write(vw.buf); err != nil {
		return err
	}
	vw.buf = vw.buf[:0]
	return nil
}

func (vw *valueWriter) WriteArrayElement() (ValueWriter, error) {
	f := vw.top()
	if f.mode != mArray {
		return nil, vw.transitionError(mValue, "WriteArrayElement", []mode{mArray})
	}
	index := f.index
	f.index++
	vw.push(mValue).index = index
	return vw, nil
}

func (vw *valueWriter) WriteArrayEnd() error {
	f := vw.top()
	if f.mode != mArray {
		return errors.Errorf("incorrect mode to end array: %s", f.mode)
	}

	vw.buf = append(vw.buf, 0x00)
	if err := vw.patchLength(f.start); err != nil {
		return err
	}
	vw.pop()
	vw.finishValue()
	return nil
}

// patchLength writes the length of everything from start to the end of buf at start.
func (vw *valueWriter) patchLength(start int) error {
	if len(vw.buf) > maxSize {
		return newEncodingError("", "document size (%d) is larger than the max int32", len(vw.buf))
	}
	length := int32(len(vw.buf) - start)
	_ = vw.buf[start+3]
	vw.buf[start+0] = byte(length)
	vw.buf[start+1] = byte(length >> 8)
	vw.buf[start+2] = byte(length >> 16)
	vw.buf[start+3] = byte(length >> 24)
	return nil
}

// isValidCString reports whether cs can be written as a cstring. A zero byte never occurs inside
// a multibyte UTF-8 sequence, so checking bytes is enough.
func isValidCString(cs string) bool {
	return strings.IndexByte(cs, 0) == -1
}

func sortRegexOptions(options string) string {
	b := []byte(options)
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	return string(b)
}
