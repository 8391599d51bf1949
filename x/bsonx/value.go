// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsonx

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/ikmak/docwire/bson"
)

// Val represents a BSON value. The zero Val has no type and is not valid inside a document.
type Val struct {
	t         bson.Type
	primitive interface{}
}

// ElementTypeError is the panic value of a Val accessor called on a value of another type.
type ElementTypeError struct {
	Method string
	Type   bson.Type
}

// Error implements the error interface.
func (ete ElementTypeError) Error() string {
	return "Call of " + ete.Method + " on " + ete.Type.String() + " type"
}

type dbPointer struct {
	ns  string
	oid bson.ObjectID
}

type regex struct {
	pattern, options string
}

type codeWithScope struct {
	code  string
	scope Doc
}

type timestamp struct {
	t, i uint32
}

type binary struct {
	subtype byte
	data    []byte
}

// Double constructs a BSON double Value.
func Double(f64 float64) Val { return Val{t: bson.TypeDouble, primitive: f64} }

// String constructs a BSON string Value.
func String(str string) Val { return Val{t: bson.TypeString, primitive: str} }

// Document constructs a Value from the given Doc. A nil Doc is stored as an empty one.
func Document(doc Doc) Val {
	if doc == nil {
		doc = Doc{}
	}
	return Val{t: bson.TypeEmbeddedDocument, primitive: doc}
}

// Array constructs a Value from the given Arr.
func Array(arr Arr) Val {
	if arr == nil {
		arr = Arr{}
	}
	return Val{t: bson.TypeArray, primitive: arr}
}

// Binary constructs a BSON binary Value.
func Binary(subtype byte, data []byte) Val {
	return Val{t: bson.TypeBinary, primitive: binary{subtype: subtype, data: data}}
}

// Undefined constructs a BSON undefined Value.
func Undefined() Val { return Val{t: bson.TypeUndefined} }

// ObjectID constructs a BSON objectid Value.
func ObjectID(oid bson.ObjectID) Val { return Val{t: bson.TypeObjectID, primitive: oid} }

// Boolean constructs a BSON boolean Value.
func Boolean(b bool) Val { return Val{t: bson.TypeBoolean, primitive: b} }

// DateTime constructs a BSON datetime Value from milliseconds since the Unix epoch.
func DateTime(dt int64) Val { return Val{t: bson.TypeDateTime, primitive: dt} }

// Time constructs a BSON datetime Value from t, truncated to millisecond precision.
func Time(t time.Time) Val {
	return DateTime(t.Unix()*1e3 + int64(t.Nanosecond()/1e6))
}

// Null constructs a BSON null Value.
func Null() Val { return Val{t: bson.TypeNull} }

// Regex constructs a BSON regex Value.
func Regex(pattern, options string) Val {
	return Val{t: bson.TypeRegex, primitive: regex{pattern: pattern, options: options}}
}

// DBPointer constructs a BSON dbpointer Value.
func DBPointer(ns string, ptr bson.ObjectID) Val {
	return Val{t: bson.TypeDBPointer, primitive: dbPointer{ns: ns, oid: ptr}}
}

// JavaScript constructs a BSON javascript Value.
func JavaScript(js string) Val { return Val{t: bson.TypeJavaScript, primitive: js} }

// Symbol constructs a BSON symbol Value.
func Symbol(symbol string) Val { return Val{t: bson.TypeSymbol, primitive: symbol} }

// CodeWithScope constructs a BSON code with scope Value.
func CodeWithScope(code string, scope Doc) Val {
	if scope == nil {
		scope = Doc{}
	}
	return Val{t: bson.TypeCodeWithScope, primitive: codeWithScope{code: code, scope: scope}}
}

// Int32 constructs a BSON int32 Value.
func Int32(i32 int32) Val { return Val{t: bson.TypeInt32, primitive: i32} }

// Timestamp constructs a BSON timestamp Value.
func Timestamp(t, i uint32) Val {
	return Val{t: bson.TypeTimestamp, primitive: timestamp{t: t, i: i}}
}

// Int64 constructs a BSON int64 Value.
func Int64(i64 int64) Val { return Val{t: bson.TypeInt64, primitive: i64} }

// Decimal128 constructs a BSON decimal128 Value.
func Decimal128(d128 bson.Decimal128) Val { return Val{t: bson.TypeDecimal128, primitive: d128} }

// MinKey constructs a BSON minkey Value.
func MinKey() Val { return Val{t: bson.TypeMinKey} }

// MaxKey constructs a BSON maxkey Value.
func MaxKey() Val { return Val{t: bson.TypeMaxKey} }

// Type returns the BSON type of this value.
func (v Val) Type() bson.Type { return v.t }

// IsZero reports whether v is the zero Val.
func (v Val) IsZero() bool { return v.t == bson.Type(0) }

// Interface returns the Go value of v: float64, string, Doc, Arr, bson.Binary, bson.Undefined,
// bson.ObjectID, bool, bson.DateTime, bson.Null, bson.Regex, bson.DBPointer, bson.JavaScript,
// bson.Symbol, bson.CodeWithScope, int32, bson.Timestamp, int64, bson.Decimal128, bson.MinKey or
// bson.MaxKey.
func (v Val) Interface() interface{} {
	switch v.t {
	case bson.TypeDouble, bson.TypeString, bson.TypeEmbeddedDocument, bson.TypeArray,
		bson.TypeObjectID, bson.TypeBoolean, bson.TypeInt32, bson.TypeInt64, bson.TypeDecimal128:
		return v.primitive
	case bson.TypeBinary:
		b := v.primitive.(binary)
		return bson.Binary{Subtype: b.subtype, Data: b.data}
	case bson.TypeUndefined:
		return bson.Undefined{}
	case bson.TypeDateTime:
		return bson.DateTime(v.primitive.(int64))
	case bson.TypeNull:
		return bson.Null{}
	case bson.TypeRegex:
		r := v.primitive.(regex)
		return bson.Regex{Pattern: r.pattern, Options: r.options}
	case bson.TypeDBPointer:
		p := v.primitive.(dbPointer)
		return bson.DBPointer{DB: p.ns, Pointer: p.oid}
	case bson.TypeJavaScript:
		return bson.JavaScript(v.primitive.(string))
	case bson.TypeSymbol:
		return bson.Symbol(v.primitive.(string))
	case bson.TypeCodeWithScope:
		c := v.primitive.(codeWithScope)
		return bson.CodeWithScope{Code: bson.JavaScript(c.code), Scope: c.scope}
	case bson.TypeTimestamp:
		ts := v.primitive.(timestamp)
		return bson.Timestamp{T: ts.t, I: ts.i}
	case bson.TypeMinKey:
		return bson.MinKey{}
	case bson.TypeMaxKey:
		return bson.MaxKey{}
	default:
		return nil
	}
}

func (v Val) check(method string, t bson.Type) {
	if v.t != t {
		panic(ElementTypeError{Method: method, Type: v.t})
	}
}

// Double returns the float64 value of v. It panics if v is not a double.
func (v Val) Double() float64 {
	v.check("bsonx.Value.Double", bson.TypeDouble)
	return v.primitive.(float64)
}

// DoubleOK is the same as Double, except that it returns a boolean instead of panicking.
func (v Val) DoubleOK() (float64, bool) {
	if v.t != bson.TypeDouble {
		return 0, false
	}
	return v.primitive.(float64), true
}

// StringValue returns the string value of v. It panics if v is not a string.
func (v Val) StringValue() string {
	v.check("bsonx.Value.StringValue", bson.TypeString)
	return v.primitive.(string)
}

// StringValueOK is the same as StringValue, except that it returns a boolean instead of
// panicking.
func (v Val) StringValueOK() (string, bool) {
	if v.t != bson.TypeString {
		return "", false
	}
	return v.primitive.(string), true
}

// Document returns the Doc of v. It panics if v is not an embedded document.
func (v Val) Document() Doc {
	v.check("bsonx.Value.Document", bson.TypeEmbeddedDocument)
	return v.primitive.(Doc)
}

// DocumentOK is the same as Document, except that it returns a boolean instead of panicking.
func (v Val) DocumentOK() (Doc, bool) {
	if v.t != bson.TypeEmbeddedDocument {
		return nil, false
	}
	return v.primitive.(Doc), true
}

// Array returns the Arr of v. It panics if v is not an array.
func (v Val) Array() Arr {
	v.check("bsonx.Value.Array", bson.TypeArray)
	return v.primitive.(Arr)
}

// ArrayOK is the same as Array, except that it returns a boolean instead of panicking.
func (v Val) ArrayOK() (Arr, bool) {
	if v.t != bson.TypeArray {
		return nil, false
	}
	return v.primitive.(Arr), true
}

// Binary returns the subtype and data of v. It panics if v is not binary.
func (v Val) Binary() (byte, []byte) {
	v.check("bsonx.Value.Binary", bson.TypeBinary)
	b := v.primitive.(binary)
	return b.subtype, b.data
}

// BinaryOK is the same as Binary, except that it returns a boolean instead of panicking.
func (v Val) BinaryOK() (byte, []byte, bool) {
	if v.t != bson.TypeBinary {
		return 0, nil, false
	}
	b := v.primitive.(binary)
	return b.subtype, b.data, true
}

// ObjectID returns the ObjectID of v. It panics if v is not an objectid.
func (v Val) ObjectID() bson.ObjectID {
	v.check("bsonx.Value.ObjectID", bson.TypeObjectID)
	return v.primitive.(bson.ObjectID)
}

// ObjectIDOK is the same as ObjectID, except that it returns a boolean instead of panicking.
func (v Val) ObjectIDOK() (bson.ObjectID, bool) {
	if v.t != bson.TypeObjectID {
		return bson.ObjectID{}, false
	}
	return v.primitive.(bson.ObjectID), true
}

// Boolean returns the bool of v. It panics if v is not a boolean.
func (v Val) Boolean() bool {
	v.check("bsonx.Value.Boolean", bson.TypeBoolean)
	return v.primitive.(bool)
}

// BooleanOK is the same as Boolean, except that it returns a boolean instead of panicking.
func (v Val) BooleanOK() (bool, bool) {
	if v.t != bson.TypeBoolean {
		return false, false
	}
	return v.primitive.(bool), true
}

// DateTime returns the milliseconds since the Unix epoch of v. It panics if v is not a datetime.
func (v Val) DateTime() int64 {
	v.check("bsonx.Value.DateTime", bson.TypeDateTime)
	return v.primitive.(int64)
}

// DateTimeOK is the same as DateTime, except that it returns a boolean instead of panicking.
func (v Val) DateTimeOK() (int64, bool) {
	if v.t != bson.TypeDateTime {
		return 0, false
	}
	return v.primitive.(int64), true
}

// Time returns the datetime of v as a UTC time.Time. It panics if v is not a datetime.
func (v Val) Time() time.Time {
	v.check("bsonx.Value.Time", bson.TypeDateTime)
	return bson.DateTime(v.primitive.(int64)).Time().UTC()
}

// TimeOK is the same as Time, except that it returns a boolean instead of panicking.
func (v Val) TimeOK() (time.Time, bool) {
	if v.t != bson.TypeDateTime {
		return time.Time{}, false
	}
	return bson.DateTime(v.primitive.(int64)).Time().UTC(), true
}

// Regex returns the pattern and options of v. It panics if v is not a regex.
func (v Val) Regex() (pattern, options string) {
	v.check("bsonx.Value.Regex", bson.TypeRegex)
	r := v.primitive.(regex)
	return r.pattern, r.options
}

// RegexOK is the same as Regex, except that it returns a boolean instead of panicking.
func (v Val) RegexOK() (pattern, options string, ok bool) {
	if v.t != bson.TypeRegex {
		return "", "", false
	}
	r := v.primitive.(regex)
	return r.pattern, r.options, true
}

// DBPointer returns the namespace and pointer of v. It panics if v is not a dbpointer.
func (v Val) DBPointer() (string, bson.ObjectID) {
	v.check("bsonx.Value.DBPointer", bson.TypeDBPointer)
	p := v.primitive.(dbPointer)
	return p.ns, p.oid
}

// DBPointerOK is the same as DBPointer, except that it returns a boolean instead of panicking.
func (v Val) DBPointerOK() (string, bson.ObjectID, bool) {
	if v.t != bson.TypeDBPointer {
		return "", bson.ObjectID{}, false
	}
	p := v.primitive.(dbPointer)
	return p.ns, p.oid, true
}

// JavaScript returns the code of v. It panics if v is not javascript.
func (v Val) JavaScript() string {
	v.check("bsonx.Value.JavaScript", bson.TypeJavaScript)
	return v.primitive.(string)
}

// JavaScriptOK is the same as JavaScript, except that it returns a boolean instead of panicking.
func (v Val) JavaScriptOK() (string, bool) {
	if v.t != bson.TypeJavaScript {
		return "", false
	}
	return v.primitive.(string), true
}

// Symbol returns the symbol of v. It panics if v is not a symbol.
func (v Val) Symbol() string {
	v.check("bsonx.Value.Symbol", bson.TypeSymbol)
	return v.primitive.(string)
}

// SymbolOK is the same as Symbol, except that it returns a boolean instead of panicking.
func (v Val) SymbolOK() (string, bool) {
	if v.t != bson.TypeSymbol {
		return "", false
	}
	return v.primitive.(string), true
}

// CodeWithScope returns the code and scope of v. It panics if v is not code with scope.
func (v Val) CodeWithScope() (string, Doc) {
	v.check("bsonx.Value.CodeWithScope", bson.TypeCodeWithScope)
	c := v.primitive.(codeWithScope)
	return c.code, c.scope
}

// CodeWithScopeOK is the same as CodeWithScope, except that it returns a boolean instead of
// panicking.
func (v Val) CodeWithScopeOK() (string, Doc, bool) {
	if v.t != bson.TypeCodeWithScope {
		return "", nil, false
	}
	c := v.primitive.(codeWithScope)
	return c.code, c.scope, true
}

// Int32 returns the int32 of v. It panics if v is not an int32.
func (v Val) Int32() int32 {
	v.check("bsonx.Value.Int32", bson.TypeInt32)
	return v.primitive.(int32)
}

// Int32OK is the same as Int32, except that it returns a boolean instead of panicking.
func (v Val) Int32OK() (int32, bool) {
	if v.t != bson.TypeInt32 {
		return 0, false
	}
	return v.primitive.(int32), true
}

// Timestamp returns the timestamp of v. It panics if v is not a timestamp.
func (v Val) Timestamp() (t, i uint32) {
	v.check("bsonx.Value.Timestamp", bson.TypeTimestamp)
	ts := v.primitive.(timestamp)
	return ts.t, ts.i
}

// TimestampOK is the same as Timestamp, except that it returns a boolean instead of panicking.
func (v Val) TimestampOK() (t, i uint32, ok bool) {
	if v.t != bson.TypeTimestamp {
		return 0, 0, false
	}
	ts := v.primitive.(timestamp)
	return ts.t, ts.i, true
}

// Int64 returns the int64 of v. It panics if v is not an int64.
func (v Val) Int64() int64 {
	v.check("bsonx.Value.Int64", bson.TypeInt64)
	return v.primitive.(int64)
}

// Int64OK is the same as Int64, except that it returns a boolean instead of panicking.
func (v Val) Int64OK() (int64, bool) {
	if v.t != bson.TypeInt64 {
		return 0, false
	}
	return v.primitive.(int64), true
}

// Decimal128 returns the decimal of v. It panics if v is not a decimal128.
func (v Val) Decimal128() bson.Decimal128 {
	v.check("bsonx.Value.Decimal128", bson.TypeDecimal128)
	return v.primitive.(bson.Decimal128)
}

// Decimal128OK is the same as Decimal128, except that it returns a boolean instead of
// panicking.
func (v Val) Decimal128OK() (bson.Decimal128, bool) {
	if v.t != bson.TypeDecimal128 {
		return bson.Decimal128{}, false
	}
	return v.primitive.(bson.Decimal128), true
}

// Equal compares v to v2 and returns true if they are equal. Doubles are compared by bit
// pattern, so a NaN equals the same NaN.
func (v Val) Equal(v2 Val) bool {
	if v.t != v2.t {
		return false
	}
	switch v.t {
	case bson.TypeDouble:
		return math.Float64bits(v.primitive.(float64)) == math.Float64bits(v2.primitive.(float64))
	case bson.TypeEmbeddedDocument:
		return v.primitive.(Doc).Equal(v2.primitive.(Doc))
	case bson.TypeArray:
		return v.primitive.(Arr).Equal(v2.primitive.(Arr))
	case bson.TypeBinary:
		b1, b2 := v.primitive.(binary), v2.primitive.(binary)
		return b1.subtype == b2.subtype && bytes.Equal(b1.data, b2.data)
	case bson.TypeCodeWithScope:
		c1, c2 := v.primitive.(codeWithScope), v2.primitive.(codeWithScope)
		return c1.code == c2.code && c1.scope.Equal(c2.scope)
	default:
		return v.primitive == v2.primitive
	}
}

// Copy returns a deep copy of v.
func (v Val) Copy() Val {
	switch v.t {
	case bson.TypeEmbeddedDocument:
		return Document(v.primitive.(Doc).Copy())
	case bson.TypeArray:
		return Array(v.primitive.(Arr).Copy())
	case bson.TypeBinary:
		b := v.primitive.(binary)
		return Binary(b.subtype, append([]byte(nil), b.data...))
	case bson.TypeCodeWithScope:
		c := v.primitive.(codeWithScope)
		return CodeWithScope(c.code, c.scope.Copy())
	default:
		return v
	}
}

// String implements the fmt.Stringer interface. The output uses relaxed extended JSON
// conventions.
func (v Val) String() string {
	return string(v.appendJSON(nil))
}

// GoString implements the fmt.GoStringer interface.
func (v Val) GoString() string {
	return fmt.Sprintf("bsonx.Val{%s: %s}", v.t, v)
}
