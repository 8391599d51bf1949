// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
)

// Unmarshal parses the BSON document data and stores the result in the value pointed to by val
// using the DefaultRegistry. If val is nil or not a pointer, Unmarshal returns an error.
//
// A document whose declared length differs from len(data) fails with a *FormatError.
func Unmarshal(data []byte, val interface{}) error {
	return UnmarshalWithRegistry(DefaultRegistry, data, val)
}

// UnmarshalWithRegistry parses the BSON document data using r and stores the result in the value
// pointed to by val.
func UnmarshalWithRegistry(r *Registry, data []byte, val interface{}) error {
	if r == nil {
		return ErrNilRegistry
	}
	return UnmarshalWithContext(DecodeContext{Registry: r}, data, val)
}

// UnmarshalWithContext parses the BSON document data using dc and stores the result in the value
// pointed to by val.
func UnmarshalWithContext(dc DecodeContext, data []byte, val interface{}) error {
	if dc.Registry == nil {
		return ErrNilRegistry
	}
	length, _, ok := bsoncore.ReadLength(data)
	if !ok {
		return newFormatError(0, "document needs at least 4 bytes for its length, got %d", len(data))
	}
	if int(length) != len(data) {
		return newFormatError(0, "document declares %d bytes but %d were provided", length, len(data))
	}
	return unmarshalFromReader(dc, NewBSONDocumentReader(data), val)
}

// UnmarshalValue parses a single BSON value of type t and stores the result in the value pointed
// to by val using the DefaultRegistry.
func UnmarshalValue(t Type, data []byte, val interface{}) error {
	return unmarshalValue(DecodeContext{Registry: DefaultRegistry}, t, data, val)
}

func unmarshalValue(dc DecodeContext, t Type, data []byte, val interface{}) error {
	return unmarshalFromReader(dc, NewBSONValueReader(t, data), val)
}

func unmarshalFromReader(dc DecodeContext, vr ValueReader, val interface{}) error {
	rval := reflect.ValueOf(val)
	if rval.Kind() != reflect.Ptr || rval.IsNil() {
		return ValueDecoderError{Name: "Unmarshal", Kinds: []reflect.Kind{reflect.Ptr}, Received: rval}
	}

	elem := rval.Elem()
	dec, err := dc.LookupDecoder(elem.Type())
	if err != nil {
		return err
	}
	dc.nominal = elem.Type()
	return dec.DecodeValue(dc, vr, elem)
}
