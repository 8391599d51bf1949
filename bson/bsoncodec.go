// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"
	"strings"
)

var emptyValue = reflect.Value{}

// Marshaler is an interface implemented by types that can marshal themselves into a BSON
// document represented as bytes. The bytes returned must be a valid BSON document if the error
// is nil.
type Marshaler interface {
	MarshalBSON() ([]byte, error)
}

// ValueMarshaler is an interface implemented by types that can marshal themselves into a BSON
// value as bytes. The type must be the valid type for the bytes returned.
type ValueMarshaler interface {
	MarshalBSONValue() (Type, []byte, error)
}

// Unmarshaler is an interface implemented by types that can unmarshal a BSON document
// representation of themselves. The input can be assumed to be a valid encoding of a BSON
// document. UnmarshalBSON must copy the data if it wishes to retain it after returning.
type Unmarshaler interface {
	UnmarshalBSON([]byte) error
}

// ValueUnmarshaler is an interface implemented by types that can unmarshal a BSON value
// representation of themselves. UnmarshalBSONValue must copy the data if it wishes to retain it
// after returning.
type ValueUnmarshaler interface {
	UnmarshalBSONValue(Type, []byte) error
}

// DictionaryRepresentation selects how a map is laid out in BSON.
type DictionaryRepresentation int

const (
	// DictionaryDocument writes a map as a sub-document keyed by the map keys.
	DictionaryDocument DictionaryRepresentation = iota + 1

	// DictionaryArrayOfArrays writes a map as an array of two element [key, value] arrays.
	DictionaryArrayOfArrays

	// DictionaryArrayOfDocuments writes a map as an array of {k: key, v: value} documents.
	DictionaryArrayOfDocuments

	// DictionaryDynamic writes a sub-document unless some key is not a valid element name, in
	// which case the map is written as an array of arrays.
	DictionaryDynamic
)

func (dr DictionaryRepresentation) String() string {
	switch dr {
	case DictionaryDocument:
		return "document"
	case DictionaryArrayOfArrays:
		return "arrayOfArrays"
	case DictionaryArrayOfDocuments:
		return "arrayOfDocuments"
	case DictionaryDynamic:
		return "dynamic"
	default:
		return "default"
	}
}

// EncodeContext is the contextual information required for a Codec to encode a value.
//
// MinSize, NilMapAsEmpty, NilSliceAsEmpty and OmitZeroStruct apply to an entire encode
// operation. Representation, DictionaryRepresentation, AllowOverflow and AllowTruncation are
// member-level hints; the struct codec sets them from the member map for a single member.
type EncodeContext struct {
	*Registry

	// MinSize causes the int, int64 and uint kinds to be written as int32 when the value fits.
	MinSize bool

	NilMapAsEmpty   bool
	NilSliceAsEmpty bool
	OmitZeroStruct  bool

	// Representation is the BSON type a value should be written as. The zero value selects the
	// natural representation for the Go type.
	Representation Type

	DictionaryRepresentation DictionaryRepresentation

	AllowOverflow   bool
	AllowTruncation bool

	// nominal is the declared type of the slot being written. It is used to decide whether a
	// discriminator must be emitted.
	nominal reflect.Type
}

// memberless returns a copy of ec with the member-level hints cleared.
func (ec EncodeContext) memberless() EncodeContext {
	ec.Representation = 0
	ec.DictionaryRepresentation = 0
	ec.AllowOverflow = false
	ec.AllowTruncation = false
	ec.nominal = nil
	return ec
}

// DecodeContext is the contextual information required for a Codec to decode a value.
type DecodeContext struct {
	*Registry

	// Truncate allows a double to be decoded into an integer or float32 slot when the conversion
	// loses precision.
	Truncate bool

	// AllowOverflow allows an integer to be decoded into a slot that is too narrow for it; the
	// value wraps.
	AllowOverflow bool

	// DefaultDocumentM causes embedded documents decoded into an empty interface to become M
	// rather than D.
	DefaultDocumentM bool

	nominal reflect.Type
}

func (dc DecodeContext) memberless() DecodeContext {
	dc.AllowOverflow = false
	dc.nominal = nil
	return dc
}

func (dc DecodeContext) defaultDocumentType() reflect.Type {
	if dc.DefaultDocumentM {
		return tM
	}
	return tD
}

// ValueCodec is the interface that groups the methods to encode and decode values.
type ValueCodec interface {
	ValueEncoder
	ValueDecoder
}

// ValueEncoder is the interface implemented by types that can handle the encoding of a value.
type ValueEncoder interface {
	EncodeValue(EncodeContext, ValueWriter, reflect.Value) error
}

// ValueEncoderFunc is an adapter function that allows a function with the correct signature to be
// used as a ValueEncoder.
type ValueEncoderFunc func(EncodeContext, ValueWriter, reflect.Value) error

// EncodeValue implements the ValueEncoder interface.
func (fn ValueEncoderFunc) EncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	return fn(ec, vw, val)
}

// ValueDecoder is the interface implemented by types that can handle the decoding of a value.
type ValueDecoder interface {
	DecodeValue(DecodeContext, ValueReader, reflect.Value) error
}

// ValueDecoderFunc is an adapter function that allows a function with the correct signature to be
// used as a ValueDecoder.
type ValueDecoderFunc func(DecodeContext, ValueReader, reflect.Value) error

// DecodeValue implements the ValueDecoder interface.
func (fn ValueDecoderFunc) DecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	return fn(dc, vr, val)
}

// DecodeError represents an error that occurs when unmarshalling BSON bytes into a native Go type.
type DecodeError struct {
	keys    []string
	wrapped error
}

// Unwrap returns the underlying error
func (de *DecodeError) Unwrap() error {
	return de.wrapped
}

// Error implements the error interface.
func (de *DecodeError) Error() string {
	// The keys are stored in reverse order because the de.keys slice is builtup while propagating
	// the error up the stack of BSON documents.
	var keyPath strings.Builder
	for i := len(de.keys) - 1; i >= 0; i-- {
		keyPath.WriteString(de.keys[i])
		if i > 0 {
			keyPath.WriteByte('.')
		}
	}
	if keyPath.Len() == 0 {
		return de.wrapped.Error()
	}
	return "error decoding key " + keyPath.String() + ": " + de.wrapped.Error()
}

// Keys returns the BSON key path that caused an error as a slice of strings. The keys in the
// slice are in top-down order.
func (de *DecodeError) Keys() []string {
	reversedKeys := make([]string, 0, len(de.keys))
	for idx := len(de.keys) - 1; idx >= 0; idx-- {
		reversedKeys = append(reversedKeys, de.keys[idx])
	}

	return reversedKeys
}

func newDecodeError(key string, original error) error {
	de, ok := original.(*DecodeError)
	if !ok {
		return &DecodeError{
			keys:    []string{key},
			wrapped: original,
		}
	}

	de.keys = append(de.keys, key)
	return de
}

// wrapEncodeError attaches key to err unless err already carries a key.
func wrapEncodeError(key string, err error) error {
	if ee, ok := err.(*EncodingError); ok {
		if ee.Key == "" {
			ee.Key = key
		} else {
			ee.Key = key + "." + ee.Key
		}
		return ee
	}
	switch err.(type) {
	case ErrNoEncoder, *MappingError:
		return &EncodingError{Key: key, Err: err}
	}
	return err
}
