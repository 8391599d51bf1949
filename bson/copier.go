// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"github.com/pkg/errors"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
)

// CopyDocument streams the document under src into dst without decoding it into Go values.
func CopyDocument(dst ValueWriter, src ValueReader) error {
	dr, err := src.ReadDocument()
	if err != nil {
		return err
	}
	dw, err := dst.WriteDocument()
	if err != nil {
		return err
	}
	return copyElements(dw, dr)
}

// CopyDocumentToBytes returns the encoded bytes of the document under src.
func CopyDocumentToBytes(src ValueReader) ([]byte, error) {
	return appendDocumentBytes(nil, src)
}

// CopyValueToBytes returns the type and encoded payload of the value under src.
func CopyValueToBytes(src ValueReader) (Type, []byte, error) {
	return copyValueToBytes(src)
}

func copyDocumentFromBytes(dst ValueWriter, src []byte) error {
	dw, err := dst.WriteDocument()
	if err != nil {
		return err
	}
	if err := copyBytesToDocumentWriter(dw, src); err != nil {
		return err
	}
	return dw.WriteDocumentEnd()
}

// copyBytesToDocumentWriter writes each element of the encoded document src to dst. It does not
// close dst.
func copyBytesToDocumentWriter(dst DocumentWriter, src []byte) error {
	length, rem, ok := bsoncore.ReadLength(src)
	if !ok {
		return newFormatError(0, "cannot read document length, only %d bytes available", len(src))
	}
	if length < 5 || len(src) < int(length) {
		return newFormatError(0, "declared length %d does not match %d available bytes", length, len(src))
	}
	rem = rem[:length-4]

	for {
		offset := int64(length) - int64(len(rem))
		var t bsoncore.Type
		if t, rem, ok = bsoncore.ReadType(rem); !ok {
			return newFormatError(offset, "document is missing its terminator")
		}
		if t == 0 {
			if len(rem) != 0 {
				return newFormatError(offset, "terminator found with %d bytes remaining", len(rem))
			}
			return nil
		}

		var key string
		if key, rem, ok = bsoncore.ReadKey(rem); !ok {
			return newFormatError(offset, "invalid element name")
		}
		vlen, ok := bsoncore.ValueLength(t, rem)
		if !ok || int(vlen) > len(rem) {
			return newFormatError(offset, "not enough bytes to read %s value for key %q", t, key)
		}

		vw, err := dst.WriteDocumentElement(key)
		if err != nil {
			return err
		}
		if err := copyValueFromBytes(vw, Type(t), rem[:vlen]); err != nil {
			return err
		}
		rem = rem[vlen:]
	}
}

// appendDocumentBytes appends the document under src to dst. Byte-backed readers are copied
// without re-encoding.
func appendDocumentBytes(dst []byte, src ValueReader) ([]byte, error) {
	if br, ok := src.(BytesReader); ok {
		_, out, err := br.ReadValueBytes(dst)
		return out, err
	}

	vw := getValueWriter(dst)
	defer putValueWriter(vw)
	err := CopyDocument(vw, src)
	return vw.buf, err
}

func copyValueFromBytes(dst ValueWriter, t Type, src []byte) error {
	if bw, ok := dst.(BytesWriter); ok {
		return bw.WriteValueBytes(t, src)
	}
	return copyValue(dst, NewBSONValueReader(t, src))
}

func copyValueToBytes(src ValueReader) (Type, []byte, error) {
	if br, ok := src.(BytesReader); ok {
		return br.ReadValueBytes(nil)
	}

	vw := getValueWriter(nil)
	defer putValueWriter(vw)

	vw.push(mElement)
	if err := copyValue(vw, src); err != nil {
		return 0, nil, err
	}

	// Skip the type byte and the empty key.
	return Type(vw.buf[0]), append([]byte(nil), vw.buf[2:]...), nil
}

// copyValue moves one value of any type from src to dst.
func copyValue(dst ValueWriter, src ValueReader) error {
	switch t := src.Type(); t {
	case TypeEmbeddedDocument:
		return CopyDocument(dst, src)
	case TypeArray:
		ar, err := src.ReadArray()
		if err != nil {
			return err
		}
		aw, err := dst.WriteArray()
		if err != nil {
			return err
		}
		return copyArrayValues(aw, ar)
	case TypeCodeWithScope:
		code, scope, err := src.ReadCodeWithScope()
		if err != nil {
			return err
		}
		dw, err := dst.WriteCodeWithScope(code)
		if err != nil {
			return err
		}
		return copyElements(dw, scope)
	default:
		return copyScalar(dst, src, t)
	}
}

func copyScalar(dst ValueWriter, src ValueReader, t Type) error {
	switch t {
	case TypeDouble:
		f, err := src.ReadDouble()
		if err != nil {
			return err
		}
		return dst.WriteDouble(f)
	case TypeString:
		s, err := src.ReadString()
		if err != nil {
			return err
		}
		return dst.WriteString(s)
	case TypeBinary:
		data, subtype, err := src.ReadBinary()
		if err != nil {
			return err
		}
		return dst.WriteBinaryWithSubtype(data, subtype)
	case TypeObjectID:
		oid, err := src.ReadObjectID()
		if err != nil {
			return err
		}
		return dst.WriteObjectID(oid)
	case TypeBoolean:
		b, err := src.ReadBoolean()
		if err != nil {
			return err
		}
		return dst.WriteBoolean(b)
	case TypeDateTime:
		dt, err := src.ReadDateTime()
		if err != nil {
			return err
		}
		return dst.WriteDateTime(dt)
	case TypeRegex:
		pattern, opts, err := src.ReadRegex()
		if err != nil {
			return err
		}
		return dst.WriteRegex(pattern, opts)
	case TypeDBPointer:
		ns, oid, err := src.ReadDBPointer()
		if err != nil {
			return err
		}
		return dst.WriteDBPointer(ns, oid)
	case TypeJavaScript:
		code, err := src.ReadJavascript()
		if err != nil {
			return err
		}
		return dst.WriteJavascript(code)
	case TypeSymbol:
		sym, err := src.ReadSymbol()
		if err != nil {
			return err
		}
		return dst.WriteSymbol(sym)
	case TypeInt32:
		n, err := src.ReadInt32()
		if err != nil {
			return err
		}
		return dst.WriteInt32(n)
	case TypeTimestamp:
		ts, inc, err := src.ReadTimestamp()
		if err != nil {
			return err
		}
		return dst.WriteTimestamp(ts, inc)
	case TypeInt64:
		n, err := src.ReadInt64()
		if err != nil {
			return err
		}
		return dst.WriteInt64(n)
	case TypeDecimal128:
		d, err := src.ReadDecimal128()
		if err != nil {
			return err
		}
		return dst.WriteDecimal128(d)
	}

	// The remaining types carry no payload.
	var read func() error
	var write func() error
	switch t {
	case TypeUndefined:
		read, write = src.ReadUndefined, dst.WriteUndefined
	case TypeNull:
		read, write = src.ReadNull, dst.WriteNull
	case TypeMinKey:
		read, write = src.ReadMinKey, dst.WriteMinKey
	case TypeMaxKey:
		read, write = src.ReadMaxKey, dst.WriteMaxKey
	default:
		return errors.Errorf("cannot copy unknown BSON type %s", t)
	}
	if err := read(); err != nil {
		return err
	}
	return write()
}

func copyArrayValues(aw ArrayWriter, ar ArrayReader) error {
	for {
		vr, err := ar.ReadValue()
		if errors.Is(err, ErrEOA) {
			return aw.WriteArrayEnd()
		}
		if err != nil {
			return err
		}
		vw, err := aw.WriteArrayElement()
		if err != nil {
			return err
		}
		if err := copyValue(vw, vr); err != nil {
			return err
		}
	}
}

func copyElements(dw DocumentWriter, dr DocumentReader) error {
	for {
		key, vr, err := dr.ReadElement()
		if errors.Is(err, ErrEOD) {
			return dw.WriteDocumentEnd()
		}
		if err != nil {
			return err
		}
		vw, err := dw.WriteDocumentElement(key)
		if err != nil {
			return err
		}
		if err := copyValue(vw, vr); err != nil {
			return err
		}
	}
}
