// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-stack/stack"
	"github.com/pkg/errors"
)

// ErrEOA is the error returned when the end of a BSON array has been reached.
var ErrEOA = errors.New("end of array")

// ErrEOD is the error returned when the end of a BSON document has been reached.
var ErrEOD = errors.New("end of document")

// ErrNilRegistry is returned when the provided registry is nil.
var ErrNilRegistry = errors.New("Registry cannot be nil")

// ErrNilType is returned when nil is passed to either LookupEncoder or LookupDecoder.
var ErrNilType = errors.New("cannot perform an encoder or decoder lookup on <nil>")

// ErrNoEncoder is returned when there wasn't an encoder available for a type.
type ErrNoEncoder struct {
	Type reflect.Type
}

func (ene ErrNoEncoder) Error() string {
	if ene.Type == nil {
		return "no encoder found for <nil>"
	}
	return "no encoder found for " + ene.Type.String()
}

// ErrNoDecoder is returned when there wasn't a decoder available for a type.
type ErrNoDecoder struct {
	Type reflect.Type
}

func (end ErrNoDecoder) Error() string {
	if end.Type == nil {
		return "no decoder found for <nil>"
	}
	return "no decoder found for " + end.Type.String()
}

// EncodingError is returned when an in-memory value cannot be represented in BSON: invalid
// UTF-8, an embedded null byte in a field that is written as a C string, a value with no
// registered encoder or a number that does not fit its chosen representation.
type EncodingError struct {
	Key string
	Err error
}

func (e *EncodingError) Error() string {
	if e.Key == "" {
		return "bson encoding error: " + e.Err.Error()
	}
	return fmt.Sprintf("bson encoding error for key %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *EncodingError) Unwrap() error { return e.Err }

func newEncodingError(key string, format string, args ...interface{}) error {
	return &EncodingError{Key: key, Err: errors.Errorf(format, args...)}
}

// FormatError is returned when bytes being decoded do not match the BSON layout: a length
// mismatch, a truncated buffer, an unknown type tag or a missing terminator. The call stack at
// the point of detection is recorded to help locate corrupt streams.
type FormatError struct {
	Offset int64
	Msg    string
	Err    error
	Stack  stack.CallStack
}

func newFormatError(offset int64, format string, args ...interface{}) *FormatError {
	return &FormatError{
		Offset: offset,
		Msg:    fmt.Sprintf(format, args...),
		Stack:  stack.Trace().TrimRuntime(),
	}
}

func wrapFormatError(offset int64, err error, format string, args ...interface{}) *FormatError {
	fe := newFormatError(offset, format, args...)
	fe.Err = err
	return fe
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("invalid BSON at offset %d: %s", e.Offset, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error { return e.Err }

// MappingError is returned when the member-to-element mapping of a type is invalid. It is
// raised while a class map is built and frozen, never during steady-state encoding.
type MappingError struct {
	Type   reflect.Type
	Member string
	Reason string
}

func (e *MappingError) Error() string {
	var b strings.Builder
	b.WriteString("invalid class map")
	if e.Type != nil {
		b.WriteString(" for ")
		b.WriteString(e.Type.String())
	}
	if e.Member != "" {
		fmt.Fprintf(&b, " member %s", e.Member)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// DiscriminatorResolutionError is returned when a discriminator read from a document does not
// correspond to any known type assignable to the nominal type.
type DiscriminatorResolutionError struct {
	Nominal       reflect.Type
	Discriminator interface{}
}

func (e *DiscriminatorResolutionError) Error() string {
	return fmt.Sprintf("unknown discriminator value %v for nominal type %s", e.Discriminator, e.Nominal)
}

// ValueEncoderError is returned by a ValueEncoder handed a value it does not encode.
type ValueEncoderError struct {
	Name     string
	Types    []reflect.Type
	Kinds    []reflect.Kind
	Received reflect.Value
}

func (vee ValueEncoderError) Error() string {
	return fmt.Sprintf("%s can only encode valid %s, but got %s",
		vee.Name, expectedTypes(vee.Types, vee.Kinds), receivedType(vee.Received))
}

// ValueDecoderError is returned by a ValueDecoder handed a destination it cannot fill.
type ValueDecoderError struct {
	Name     string
	Types    []reflect.Type
	Kinds    []reflect.Kind
	Received reflect.Value
}

func (vde ValueDecoderError) Error() string {
	received := receivedType(vde.Received)
	if !vde.Received.CanSet() {
		received = "unsettable " + received
	}
	return fmt.Sprintf("%s can only decode valid and settable %s, but got %s",
		vde.Name, expectedTypes(vde.Types, vde.Kinds), received)
}

func expectedTypes(types []reflect.Type, kinds []reflect.Kind) string {
	names := make([]string, 0, len(types)+len(kinds))
	for _, t := range types {
		names = append(names, t.String())
	}
	for _, k := range kinds {
		if k == reflect.Map {
			names = append(names, "map[string]*")
		} else {
			names = append(names, k.String())
		}
	}
	return strings.Join(names, ", ")
}

func receivedType(v reflect.Value) string {
	if v.IsValid() {
		return v.Type().String()
	}
	return v.Kind().String()
}
