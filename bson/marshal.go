// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"io"
	"reflect"

	"github.com/pkg/errors"
)

// Marshal returns the BSON encoding of val as a document using the DefaultRegistry.
//
// Marshal accepts structs, maps with string-like keys, D, Raw and any type with a registered
// encoder that writes a document. Struct layout is controlled by the class map of the type; see
// ClassMap and the bson struct tag:
//
//	type T struct {
//	    ID    ObjectID          `bson:"_id"`
//	    Name  string            `bson:"name,omitempty"`
//	    Count int64             `bson:",minsize"`
//	    Attrs map[string]string `bson:",omitnull"`
//	}
func Marshal(val interface{}) ([]byte, error) {
	return MarshalWithRegistry(DefaultRegistry, val)
}

// MarshalWithRegistry returns the BSON encoding of val as a document using r.
func MarshalWithRegistry(r *Registry, val interface{}) ([]byte, error) {
	if r == nil {
		return nil, ErrNilRegistry
	}
	return MarshalWithContext(EncodeContext{Registry: r}, val)
}

// MarshalWithContext returns the BSON encoding of val as a document using ec.
func MarshalWithContext(ec EncodeContext, val interface{}) ([]byte, error) {
	return MarshalAppendWithContext(ec, nil, val)
}

// MarshalAppend appends the BSON encoding of val to dst using the DefaultRegistry.
func MarshalAppend(dst []byte, val interface{}) ([]byte, error) {
	return MarshalAppendWithContext(EncodeContext{Registry: DefaultRegistry}, dst, val)
}

// MarshalAppendWithContext appends the BSON encoding of val to dst using ec. If an error is
// returned, dst is returned unchanged.
func MarshalAppendWithContext(ec EncodeContext, dst []byte, val interface{}) ([]byte, error) {
	if ec.Registry == nil {
		return dst, ErrNilRegistry
	}

	vw := getValueWriter(dst)
	defer putValueWriter(vw)

	if err := encodeTopLevel(ec, vw, val); err != nil {
		return dst, err
	}
	return vw.buf, nil
}

// MarshalToWriter writes the BSON encoding of val to w using ec.
func MarshalToWriter(ec EncodeContext, w io.Writer, val interface{}) error {
	if ec.Registry == nil {
		return ErrNilRegistry
	}
	vw := NewDocumentWriter(w)
	if err := encodeTopLevel(ec, vw, val); err != nil {
		return err
	}
	return vw.Flush()
}

func encodeTopLevel(ec EncodeContext, vw ValueWriter, val interface{}) error {
	if val == nil {
		return newEncodingError("", "cannot marshal a nil value as a document")
	}
	if raw, ok := val.(Raw); ok {
		return copyDocumentFromBytes(vw, raw)
	}

	rv := reflect.ValueOf(val)
	enc, err := ec.LookupEncoder(rv.Type())
	if err != nil {
		return &EncodingError{Err: err}
	}
	ec.nominal = rv.Type()
	return enc.EncodeValue(ec, vw, rv)
}

// MarshalValue returns the BSON type and encoding of a single value using the DefaultRegistry.
func MarshalValue(val interface{}) (Type, []byte, error) {
	return MarshalValueWithContext(EncodeContext{Registry: DefaultRegistry}, val)
}

// MarshalValueWithContext returns the BSON type and encoding of a single value using ec.
func MarshalValueWithContext(ec EncodeContext, val interface{}) (Type, []byte, error) {
	if ec.Registry == nil {
		return 0, nil, ErrNilRegistry
	}

	vw := getValueWriter(nil)
	defer putValueWriter(vw)

	vw.push(mElement)
	if err := encodeInterfaceValue(ec, vw, val); err != nil {
		return 0, nil, err
	}
	if len(vw.buf) < 2 {
		return 0, nil, errors.New("encoder did not write a value")
	}

	out := make([]byte, len(vw.buf)-2)
	copy(out, vw.buf[2:])
	return Type(vw.buf[0]), out, nil
}
