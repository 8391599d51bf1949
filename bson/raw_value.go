// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
)

// ErrNilReader indicates that an operation was attempted on a nil io.Reader.
var ErrNilReader = errors.New("nil reader")

// RawValue is a raw encoded BSON value. It can be used to delay BSON value decoding or
// precompute BSON encoded value.
//
// A RawValue must be an individual BSON value and cannot be a BSON document.
type RawValue struct {
	Type  Type
	Value []byte
}

// IsZero reports whether the RawValue is zero, i.e. no data is present on the RawValue.
func (rv RawValue) IsZero() bool {
	return rv.Type == 0x00 && len(rv.Value) == 0
}

// Equal compares rv and rv2 and returns true if they are equal.
func (rv RawValue) Equal(rv2 RawValue) bool {
	return rv.Type == rv2.Type && bytes.Equal(rv.Value, rv2.Value)
}

// Validate ensures the value is a valid BSON value.
func (rv RawValue) Validate() error {
	if !rv.Type.IsValid() {
		return newFormatError(0, "invalid type %#x", byte(rv.Type))
	}
	n, ok := bsoncore.ValueLength(bsoncore.Type(rv.Type), rv.Value)
	if !ok || int(n) != len(rv.Value) {
		return newFormatError(0, "value of type %s has invalid length", rv.Type)
	}
	switch rv.Type {
	case TypeEmbeddedDocument, TypeArray:
		return bsoncore.Document(rv.Value).Validate()
	}
	return nil
}

// Unmarshal deserializes BSON into the provided val. If RawValue cannot be unmarshaled into val,
// an error is returned. This method will use the registry used to create the RawValue, if the
// RawValue was created from partial BSON processing, or it will use the default registry.
func (rv RawValue) Unmarshal(val interface{}) error {
	return rv.UnmarshalWithRegistry(DefaultRegistry, val)
}

// UnmarshalWithRegistry performs the same unmarshalling as Unmarshal but uses the provided
// registry instead of the one attached or the default registry.
func (rv RawValue) UnmarshalWithRegistry(r *Registry, val interface{}) error {
	if r == nil {
		return ErrNilRegistry
	}

	return unmarshalValue(DecodeContext{Registry: r}, rv.Type, rv.Value, val)
}

// Document returns the BSON document the RawValue represents. It panics if the value is not a
// document or an array.
func (rv RawValue) Document() Raw {
	if rv.Type != TypeEmbeddedDocument && rv.Type != TypeArray {
		panic(fmt.Sprintf("RawValue of type %s is not a document", rv.Type))
	}
	return Raw(rv.Value)
}

// String implements the fmt.Stringer interface.
func (rv RawValue) String() string {
	switch rv.Type {
	case TypeEmbeddedDocument, TypeArray:
		return bsoncore.Document(rv.Value).String()
	case TypeString, TypeJavaScript, TypeSymbol:
		s, _, ok := bsoncore.ReadString(rv.Value)
		if !ok {
			return "<malformed>"
		}
		return fmt.Sprintf("%q", s)
	default:
		return fmt.Sprintf("%s(%x)", rv.Type, rv.Value)
	}
}

// Raw is a raw encoded BSON document. It can be used to delay BSON document decoding or
// precompute a BSON encoded document.
type Raw []byte

// ReadRaw reads a document from the io.Reader and returns it as a Raw.
func ReadRaw(r io.Reader) (Raw, error) {
	if r == nil {
		return nil, ErrNilReader
	}
	doc, err := ReadDocumentFrom(r)
	return Raw(doc), err
}

// Validate validates the document. This method only validates the first document in the slice;
// the length prefix must equal the slice length.
func (r Raw) Validate() error { return bsoncore.Document(r).Validate() }

// Lookup search the document, potentially recursively, for the given key. If there are multiple
// keys provided, this method will recurse down, as long as the top and intermediate nodes are
// either documents or arrays. If an error occurs or if the value doesn't exist, an empty
// RawValue is returned.
func (r Raw) Lookup(key ...string) RawValue {
	rv, _ := r.LookupErr(key...)
	return rv
}

// LookupErr searches the document and potentially subdocuments or arrays for the provided key.
func (r Raw) LookupErr(key ...string) (RawValue, error) {
	elem, err := bsoncore.Document(r).Lookup(key...)
	if err != nil {
		return RawValue{}, err
	}
	return RawValue{Type: Type(elem.Type()), Value: elem.Value()}, nil
}

// Elements returns the elements of the document as key and raw value pairs.
func (r Raw) Elements() ([]E, error) {
	elems, err := bsoncore.Document(r).Elements()
	if err != nil {
		return nil, err
	}
	out := make([]E, 0, len(elems))
	for _, elem := range elems {
		out = append(out, E{Key: elem.Key(), Value: RawValue{Type: Type(elem.Type()), Value: elem.Value()}})
	}
	return out, nil
}

// String implements the fmt.Stringer interface.
func (r Raw) String() string { return bsoncore.Document(r).String() }
