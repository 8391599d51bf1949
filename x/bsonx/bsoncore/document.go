// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// ErrMissingNull is returned when a document or array's last byte is not null.
var ErrMissingNull = errors.New("document or array end is missing null byte")

// ErrInvalidLength indicates that a length in a binary representation of a BSON document or array
// is invalid.
var ErrInvalidLength = errors.New("document or array length is invalid")

// ErrElementNotFound indicates that an Element matching a certain condition does not exist.
var ErrElementNotFound = errors.New("element not found")

// ErrOutOfBounds indicates that an index provided to access something was invalid.
var ErrOutOfBounds = errors.New("out of bounds")

// InsufficientBytesError indicates that there were not enough bytes to read the next component.
type InsufficientBytesError struct {
	Source    []byte
	Remaining []byte
}

// NewInsufficientBytesError creates a new InsufficientBytesError with the given Document and
// remaining bytes.
func NewInsufficientBytesError(src, rem []byte) InsufficientBytesError {
	return InsufficientBytesError{Source: src, Remaining: rem}
}

// Error implements the error interface.
func (ibe InsufficientBytesError) Error() string {
	return "too few bytes to read next component"
}

// Equal checks that err2 also is an ErrTooSmall.
func (ibe InsufficientBytesError) Equal(err2 error) bool {
	switch err2.(type) {
	case InsufficientBytesError:
		return true
	default:
		return false
	}
}

// Element is a raw bytes representation of a BSON element: type tag, key and payload.
type Element []byte

// Key returns the key for this element. If the element is not valid, this method returns an empty
// string.
func (e Element) Key() string {
	if len(e) < 2 {
		return ""
	}
	key, _, ok := ReadKey(e[1:])
	if !ok {
		return ""
	}
	return key
}

// Type returns the type tag of the element.
func (e Element) Type() Type {
	if len(e) < 1 {
		return 0
	}
	return Type(e[0])
}

// Value returns the raw payload bytes of the element.
func (e Element) Value() []byte {
	if len(e) < 2 {
		return nil
	}
	_, rem, ok := ReadKey(e[1:])
	if !ok {
		return nil
	}
	return rem
}

// Validate ensures the element is a valid BSON element.
func (e Element) Validate() error {
	if len(e) < 1 {
		return NewInsufficientBytesError(e, e)
	}
	t := Type(e[0])
	if !t.IsValid() {
		return fmt.Errorf("invalid BSON type %#x", byte(t))
	}
	key, rem, ok := ReadKey(e[1:])
	if !ok {
		return NewInsufficientBytesError(e, rem)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("element key %q is not valid UTF-8", key)
	}
	length, ok := ValueLength(t, rem)
	if !ok || int(length) != len(rem) {
		return NewInsufficientBytesError(e, rem)
	}
	return validateValue(t, rem)
}

// Document is a raw bytes representation of a BSON document.
type Document []byte

// Validate validates the document and ensures the elements contained within are valid. The
// declared length must equal the length of the slice and the final byte must be 0x00.
func (d Document) Validate() error {
	length, rem, ok := ReadLength(d)
	if !ok {
		return NewInsufficientBytesError(d, rem)
	}
	if int(length) != len(d) {
		return ErrInvalidLength
	}
	if length < 5 {
		return ErrInvalidLength
	}
	if d[length-1] != 0x00 {
		return ErrMissingNull
	}

	rem = rem[:len(rem)-1]
	for len(rem) > 0 {
		elem, next, err := nextElement(rem)
		if err != nil {
			return err
		}
		if err := elem.Validate(); err != nil {
			return err
		}
		rem = next
	}
	return nil
}

// Elements returns this document as a slice of elements. The returned slice will contain valid
// elements. If the document is not valid, the elements up to the invalid point will be returned
// along with an error.
func (d Document) Elements() ([]Element, error) {
	length, rem, ok := ReadLength(d)
	if !ok {
		return nil, NewInsufficientBytesError(d, rem)
	}
	if int(length) > len(d) || length < 5 {
		return nil, ErrInvalidLength
	}

	length -= 4
	var elems []Element
	for length > 1 {
		elem, next, err := nextElement(rem)
		if err != nil {
			return elems, err
		}
		length -= int32(len(elem))
		elems = append(elems, elem)
		rem = next
	}
	return elems, nil
}

// Lookup searches the document and potentially subdocuments or arrays for the
// provided key. Each key provided to this method represents a layer of depth.
func (d Document) Lookup(key ...string) (Element, error) {
	if len(key) < 1 {
		return nil, ErrElementNotFound
	}
	elems, err := d.Elements()
	if err != nil {
		return nil, err
	}
	for _, elem := range elems {
		if elem.Key() != key[0] {
			continue
		}
		if len(key) == 1 {
			return elem, nil
		}
		switch elem.Type() {
		case TypeEmbeddedDocument, TypeArray:
			return Document(elem.Value()).Lookup(key[1:]...)
		default:
			return nil, fmt.Errorf("cannot traverse into %s at key %q", elem.Type(), key[0])
		}
	}
	return nil, ErrElementNotFound
}

// Index searches for and retrieves the element at the given index. This method will panic if
// the document is invalid or if the index is out of bounds.
func (d Document) Index(index uint) Element {
	elem, err := d.IndexErr(index)
	if err != nil {
		panic(err)
	}
	return elem
}

// IndexErr searches for and retrieves the element at the given index.
func (d Document) IndexErr(index uint) (Element, error) {
	elems, err := d.Elements()
	if err != nil {
		return nil, err
	}
	if index >= uint(len(elems)) {
		return nil, ErrOutOfBounds
	}
	return elems[index], nil
}

// String implements the fmt.Stringer interface with a compact debug form.
func (d Document) String() string {
	elems, err := d.Elements()
	if err != nil {
		return "<malformed>"
	}
	buf := []byte{'{'}
	for i, elem := range elems {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, elem.Key())
		buf = append(buf, ':')
		buf = append(buf, elem.Type().String()...)
	}
	return string(append(buf, '}'))
}

func nextElement(src []byte) (Element, []byte, error) {
	if len(src) < 1 {
		return nil, src, NewInsufficientBytesError(src, src)
	}
	t := Type(src[0])
	_, rem, ok := ReadKey(src[1:])
	if !ok {
		return nil, src, NewInsufficientBytesError(src, rem)
	}
	length, ok := ValueLength(t, rem)
	if !ok {
		if !t.IsValid() {
			return nil, src, fmt.Errorf("invalid BSON type %#x", byte(t))
		}
		return nil, src, NewInsufficientBytesError(src, rem)
	}
	size := len(src) - len(rem) + int(length)
	return Element(src[:size]), src[size:], nil
}

func validateValue(t Type, val []byte) error {
	var ok bool
	switch t {
	case TypeEmbeddedDocument, TypeArray:
		return Document(val).Validate()
	case TypeString, TypeJavaScript, TypeSymbol:
		var s string
		s, _, ok = readstring(val)
		if ok && !utf8.ValidString(s) {
			return fmt.Errorf("%s value is not valid UTF-8", t)
		}
	case TypeBoolean:
		_, _, ok = ReadBoolean(val)
	case TypeRegex:
		var pattern, options string
		pattern, options, _, ok = ReadRegex(val)
		if ok && (!utf8.ValidString(pattern) || !utf8.ValidString(options)) {
			return errors.New("regex value is not valid UTF-8")
		}
	case TypeDBPointer:
		_, _, _, ok = ReadDBPointer(val)
	case TypeCodeWithScope:
		var scope Document
		_, scope, _, ok = ReadCodeWithScope(val)
		if ok {
			return scope.Validate()
		}
	case TypeBinary:
		_, _, _, ok = ReadBinary(val)
	default:
		ok = true
	}
	if !ok {
		return NewInsufficientBytesError(val, val)
	}
	return nil
}
