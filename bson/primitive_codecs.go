// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
)

// registerPrimitiveCodecs adds the codecs for the undecoded value types RawValue and Raw.
func registerPrimitiveCodecs(rb *RegistryBuilder) {
	rb.
		RegisterTypeEncoder(tRawValue, ValueEncoderFunc(rawValueEncodeValue)).
		RegisterTypeEncoder(tRaw, ValueEncoderFunc(rawEncodeValue)).
		RegisterTypeDecoder(tRawValue, ValueDecoderFunc(rawValueDecodeValue)).
		RegisterTypeDecoder(tRaw, ValueDecoderFunc(rawDecodeValue))
}

// rawValueEncodeValue writes the bytes of a RawValue unchanged. The type tag must be valid.
func rawValueEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tRawValue {
		return ValueEncoderError{Name: "RawValueEncodeValue", Types: []reflect.Type{tRawValue}, Received: val}
	}
	rv := val.Interface().(RawValue)
	if !rv.Type.IsValid() {
		return newEncodingError("", "the RawValue Type specifies an invalid BSON type: %#x", byte(rv.Type))
	}
	return copyValueFromBytes(vw, rv.Type, rv.Value)
}

func rawValueDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tRawValue {
		return ValueDecoderError{Name: "RawValueDecodeValue", Types: []reflect.Type{tRawValue}, Received: val}
	}
	t, b, err := copyValueToBytes(vr)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(RawValue{Type: t, Value: b}))
	return nil
}

// rawEncodeValue validates a Raw document before copying it into vw.
func rawEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tRaw {
		return ValueEncoderError{Name: "RawEncodeValue", Types: []reflect.Type{tRaw}, Received: val}
	}
	raw := val.Interface().(Raw)
	if err := bsoncore.Document(raw).Validate(); err != nil {
		return &EncodingError{Err: errors.Wrap(err, "invalid Raw document")}
	}
	return copyDocumentFromBytes(vw, raw)
}

// rawDecodeValue reuses the backing array of the destination Raw. A null value decodes to nil.
func rawDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tRaw {
		return ValueDecoderError{Name: "RawDecodeValue", Types: []reflect.Type{tRaw}, Received: val}
	}
	if vr.Type() == TypeNull {
		val.Set(reflect.Zero(tRaw))
		return vr.ReadNull()
	}

	dst := val.Interface().(Raw)[:0]
	b, err := appendDocumentBytes(dst, vr)
	val.Set(reflect.ValueOf(Raw(b)))
	return err
}
