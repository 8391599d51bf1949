// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsonx

import (
	"github.com/ikmak/docwire/bson"
	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
	"github.com/tidwall/pretty"
)

// ErrNilDocument indicates that an operation was attempted on a nil Doc.
var ErrNilDocument = errors.New("document is nil")

// ErrElementNotFound indicates that a key path did not resolve to an element.
var ErrElementNotFound = bsoncore.ErrElementNotFound

// Elem represents a BSON element.
type Elem struct {
	Key   string
	Value Val
}

// Equal compares e and e2 and returns true if they are equal.
func (e Elem) Equal(e2 Elem) bool {
	return e.Key == e2.Key && e.Value.Equal(e2.Value)
}

// String implements the fmt.Stringer interface.
func (e Elem) String() string {
	return string(appendJSONString(nil, e.Key)) + ": " + e.Value.String()
}

// Doc is an ordered BSON document. Duplicate keys are allowed and preserved.
type Doc []Elem

// ReadDoc decodes a BSON document from b. The declared length of the document must equal len(b).
func ReadDoc(b []byte) (Doc, error) {
	length, _, ok := bsoncore.ReadLength(b)
	if !ok {
		return nil, &bson.FormatError{Msg: "document is too short to contain a length"}
	}
	if int(length) != len(b) {
		return nil, &bson.FormatError{Msg: "document length does not match the data provided"}
	}
	dr, err := bson.NewBSONDocumentReader(b).ReadDocument()
	if err != nil {
		return nil, err
	}
	return decodeDoc(dr)
}

// Len returns the number of elements in d.
func (d Doc) Len() int { return len(d) }

// Copy returns a deep copy of d.
func (d Doc) Copy() Doc {
	if d == nil {
		return nil
	}
	doc := make(Doc, 0, len(d))
	for _, elem := range d {
		doc = append(doc, Elem{Key: elem.Key, Value: elem.Value.Copy()})
	}
	return doc
}

// Append adds an element to the end of d.
func (d Doc) Append(key string, val Val) Doc {
	return append(d, Elem{Key: key, Value: val})
}

// Prepend adds an element to the beginning of d.
func (d Doc) Prepend(key string, val Val) Doc {
	doc := make(Doc, 0, len(d)+1)
	doc = append(doc, Elem{Key: key, Value: val})
	return append(doc, d...)
}

// Set replaces the value of the first element with key, or appends a new element if there is
// none.
func (d Doc) Set(key string, val Val) Doc {
	if idx := d.IndexOf(key); idx != -1 {
		d[idx].Value = val
		return d
	}
	return d.Append(key, val)
}

// IndexOf returns the index of the first element with key, or -1 if there is none.
func (d Doc) IndexOf(key string) int {
	for i, e := range d {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// Delete removes the first element with key from d.
func (d Doc) Delete(key string) Doc {
	idx := d.IndexOf(key)
	if idx == -1 {
		return d
	}
	return append(d[:idx], d[idx+1:]...)
}

// Lookup searches the document and potentially subdocuments or arrays for the provided key. Each
// key provided to this method represents a layer of depth. Lookup returns the zero Val if the key
// path does not resolve.
func (d Doc) Lookup(key ...string) Val {
	val, _ := d.LookupErr(key...)
	return val
}

// LookupErr is the same as Lookup, except it returns an error in addition to the zero Val.
func (d Doc) LookupErr(key ...string) (Val, error) {
	elem, err := d.LookupElementErr(key...)
	return elem.Value, err
}

// LookupElement is the same as Lookup, except it returns the Elem.
func (d Doc) LookupElement(key ...string) Elem {
	elem, _ := d.LookupElementErr(key...)
	return elem
}

// LookupElementErr is the same as LookupElement, except it returns an error if the key path does
// not resolve. Arrays along the path are indexed by decimal position.
func (d Doc) LookupElementErr(key ...string) (Elem, error) {
	if len(key) == 0 {
		return Elem{}, ErrElementNotFound
	}

	idx := d.IndexOf(key[0])
	if idx == -1 {
		return Elem{}, ErrElementNotFound
	}
	elem := d[idx]
	if len(key) == 1 {
		return elem, nil
	}

	switch elem.Value.Type() {
	case bson.TypeEmbeddedDocument:
		return elem.Value.Document().LookupElementErr(key[1:]...)
	case bson.TypeArray:
		return elem.Value.Array().lookupElementErr(key[1:]...)
	default:
		return Elem{}, ErrElementNotFound
	}
}

// Equal compares d and d2 element by element, in order.
func (d Doc) Equal(d2 Doc) bool {
	if len(d) != len(d2) {
		return false
	}
	for i := range d {
		if !d[i].Equal(d2[i]) {
			return false
		}
	}
	return true
}

// MarshalBSON implements the bson.Marshaler interface. A nil Doc is an error.
func (d Doc) MarshalBSON() ([]byte, error) { return d.AppendMarshalBSON(nil) }

// AppendMarshalBSON marshals d to BSON bytes and appends them to dst.
func (d Doc) AppendMarshalBSON(dst []byte) ([]byte, error) {
	if d == nil {
		return dst, ErrNilDocument
	}
	sw := sliceWriter(dst)
	vw := bson.NewDocumentWriter(&sw)
	dw, err := vw.WriteDocument()
	if err != nil {
		return dst, err
	}
	if err = encodeDoc(dw, d); err != nil {
		return dst, err
	}
	return sw, nil
}

// UnmarshalBSON implements the bson.Unmarshaler interface.
func (d *Doc) UnmarshalBSON(b []byte) error {
	if d == nil {
		return ErrNilDocument
	}
	doc, err := ReadDoc(b)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// String implements the fmt.Stringer interface. The output is valid JSON using relaxed extended
// JSON for types JSON cannot represent.
func (d Doc) String() string {
	return string(appendDocJSON(nil, d))
}

// Pretty returns an indented rendering of d.
func (d Doc) Pretty() string {
	return string(pretty.Pretty(appendDocJSON(nil, d)))
}

// Arr is a BSON array.
type Arr []Val

// Equal compares a and a2 value by value.
func (a Arr) Equal(a2 Arr) bool {
	if len(a) != len(a2) {
		return false
	}
	for i := range a {
		if !a[i].Equal(a2[i]) {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of a.
func (a Arr) Copy() Arr {
	if a == nil {
		return nil
	}
	arr := make(Arr, 0, len(a))
	for _, v := range a {
		arr = append(arr, v.Copy())
	}
	return arr
}

// String implements the fmt.Stringer interface.
func (a Arr) String() string {
	return string(appendArrJSON(nil, a))
}

func (a Arr) lookupElementErr(key ...string) (Elem, error) {
	idx, ok := parseIndex(key[0])
	if !ok || idx >= len(a) {
		return Elem{}, ErrElementNotFound
	}
	val := a[idx]
	if len(key) == 1 {
		return Elem{Key: key[0], Value: val}, nil
	}
	switch val.Type() {
	case bson.TypeEmbeddedDocument:
		return val.Document().LookupElementErr(key[1:]...)
	case bson.TypeArray:
		return val.Array().lookupElementErr(key[1:]...)
	default:
		return Elem{}, ErrElementNotFound
	}
}

func parseIndex(s string) (int, bool) {
	if s == "" || len(s) > 9 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

// MarshalBSONValue implements the bson.ValueMarshaler interface.
func (v Val) MarshalBSONValue() (bson.Type, []byte, error) {
	if v.IsZero() {
		return 0, nil, errors.New("cannot marshal the zero Val")
	}
	doc, err := Doc{{Key: "", Value: v}}.MarshalBSON()
	if err != nil {
		return 0, nil, err
	}
	// length(4) type(1) empty key(1) ... terminator(1)
	return v.t, doc[6 : len(doc)-1], nil
}

// UnmarshalBSONValue implements the bson.ValueUnmarshaler interface.
func (v *Val) UnmarshalBSONValue(t bson.Type, data []byte) error {
	val, err := decodeVal(bson.NewBSONValueReader(t, data))
	if err != nil {
		return err
	}
	*v = val
	return nil
}
