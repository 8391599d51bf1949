// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

// ValueReader reads one BSON value. Type reports the type of the value under the reader and
// exactly one Read method, or Skip, consumes it. Reading with a method that does not match the
// type is an error.
type ValueReader interface {
	Type() Type
	Skip() error

	ReadArray() (ArrayReader, error)
	ReadBinary() (b []byte, btype byte, err error)
	ReadBoolean() (bool, error)
	ReadDocument() (DocumentReader, error)
	ReadCodeWithScope() (code string, dr DocumentReader, err error)
	ReadDBPointer() (ns string, oid ObjectID, err error)
	ReadDateTime() (int64, error)
	ReadDecimal128() (Decimal128, error)
	ReadDouble() (float64, error)
	ReadInt32() (int32, error)
	ReadInt64() (int64, error)
	ReadJavascript() (code string, err error)
	ReadMaxKey() error
	ReadMinKey() error
	ReadNull() error
	ReadObjectID() (ObjectID, error)
	ReadRegex() (pattern, options string, err error)
	ReadString() (string, error)
	ReadSymbol() (symbol string, err error)
	ReadTimestamp() (t, i uint32, err error)
	ReadUndefined() error
}

// DocumentReader yields the elements of a document in order. It returns ErrEOD after the last
// element; the returned ValueReader must be consumed before the next call.
type DocumentReader interface {
	ReadElement() (string, ValueReader, error)
}

// ArrayReader yields the values of an array in order and returns ErrEOA after the last one.
type ArrayReader interface {
	ReadValue() (ValueReader, error)
}

// BytesReader copies the raw bytes of the current value.
type BytesReader interface {
	ReadValueBytes(dst []byte) (Type, []byte, error)
}

// Bookmark is an opaque saved position of a ValueReader. It captures the byte offset and the
// reader's mode stack so that a caller can inspect a value and resume at exactly the same
// place.
type Bookmark struct {
	offset int64
	frames []readFrame
}

// BookmarkReader is implemented by ValueReaders that support peek-and-rewind.
type BookmarkReader interface {
	ValueReader
	Bookmark() Bookmark
	ReturnToBookmark(Bookmark)
}

// ValueWriter writes one BSON value. Container methods return a writer for the contents; the
// value is complete once the matching end method has been called.
type ValueWriter interface {
	WriteArray() (ArrayWriter, error)
	WriteBinary(b []byte) error
	WriteBinaryWithSubtype(b []byte, btype byte) error
	WriteBoolean(bool) error
	WriteCodeWithScope(code string) (DocumentWriter, error)
	WriteDBPointer(ns string, oid ObjectID) error
	WriteDateTime(dt int64) error
	WriteDecimal128(Decimal128) error
	WriteDouble(float64) error
	WriteInt32(int32) error
	WriteInt64(int64) error
	WriteJavascript(code string) error
	WriteMaxKey() error
	WriteMinKey() error
	WriteNull() error
	WriteObjectID(ObjectID) error
	WriteRegex(pattern, options string) error
	WriteString(string) error
	WriteDocument() (DocumentWriter, error)
	WriteSymbol(symbol string) error
	WriteTimestamp(t, i uint32) error
	WriteUndefined() error
}

// DocumentWriter writes the elements of a document. Each element's value must be written before
// the next element is started, and WriteDocumentEnd closes the document.
type DocumentWriter interface {
	WriteDocumentElement(string) (ValueWriter, error)
	WriteDocumentEnd() error
}

// ArrayWriter writes the values of an array; indexes are assigned in order.
type ArrayWriter interface {
	WriteArrayElement() (ValueWriter, error)
	WriteArrayEnd() error
}

// ValueWriterFlusher is a ValueWriter backed by an io.Writer.
type ValueWriterFlusher interface {
	ValueWriter
	Flush() error
}

// BytesWriter writes an already encoded value of type t.
type BytesWriter interface {
	WriteValueBytes(t Type, b []byte) error
}
