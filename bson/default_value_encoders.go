// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
)

var errInvalidValue = errors.New("cannot encode invalid element")

var builtinHookEncoders = []interfaceValueEncoder{
	{i: tValueMarshaler, ve: ValueEncoderFunc(valueMarshalerEncodeValue)},
	{i: tMarshaler, ve: ValueEncoderFunc(marshalerEncodeValue)},
}

func registerDefaultEncoders(rb *RegistryBuilder) {
	rb.RegisterTypeEncoder(tByteSlice, ValueEncoderFunc(byteSliceEncodeValue))
	rb.RegisterTypeEncoder(tTime, ValueEncoderFunc(timeEncodeValue))
	rb.RegisterTypeEncoder(tUUID, ValueEncoderFunc(uuidEncodeValue))
	rb.RegisterTypeEncoder(tEmpty, defaultInterfaceCodec)
	rb.RegisterTypeEncoder(tOID, ValueEncoderFunc(objectIDEncodeValue))
	rb.RegisterTypeEncoder(tDecimal, ValueEncoderFunc(decimal128EncodeValue))
	rb.RegisterTypeEncoder(tJavaScript, ValueEncoderFunc(javaScriptEncodeValue))
	rb.RegisterTypeEncoder(tSymbol, ValueEncoderFunc(symbolEncodeValue))
	rb.RegisterTypeEncoder(tBinary, ValueEncoderFunc(binaryEncodeValue))
	rb.RegisterTypeEncoder(tUndefined, ValueEncoderFunc(undefinedEncodeValue))
	rb.RegisterTypeEncoder(tDateTime, ValueEncoderFunc(dateTimeEncodeValue))
	rb.RegisterTypeEncoder(tNull, ValueEncoderFunc(nullEncodeValue))
	rb.RegisterTypeEncoder(tRegex, ValueEncoderFunc(regexEncodeValue))
	rb.RegisterTypeEncoder(tDBPointer, ValueEncoderFunc(dbPointerEncodeValue))
	rb.RegisterTypeEncoder(tTimestamp, ValueEncoderFunc(timestampEncodeValue))
	rb.RegisterTypeEncoder(tMinKey, ValueEncoderFunc(minKeyEncodeValue))
	rb.RegisterTypeEncoder(tMaxKey, ValueEncoderFunc(maxKeyEncodeValue))
	rb.RegisterTypeEncoder(tCodeWithScope, ValueEncoderFunc(codeWithScopeEncodeValue))
	rb.RegisterTypeEncoder(tD, ValueEncoderFunc(dEncodeValue))
	rb.RegisterKindEncoder(reflect.Bool, ValueEncoderFunc(booleanEncodeValue))
	rb.RegisterKindEncoder(reflect.Int, ValueEncoderFunc(intEncodeValue))
	rb.RegisterKindEncoder(reflect.Int8, ValueEncoderFunc(intEncodeValue))
	rb.RegisterKindEncoder(reflect.Int16, ValueEncoderFunc(intEncodeValue))
	rb.RegisterKindEncoder(reflect.Int32, ValueEncoderFunc(intEncodeValue))
	rb.RegisterKindEncoder(reflect.Int64, ValueEncoderFunc(intEncodeValue))
	rb.RegisterKindEncoder(reflect.Uint, ValueEncoderFunc(uintEncodeValue))
	rb.RegisterKindEncoder(reflect.Uint8, ValueEncoderFunc(uintEncodeValue))
	rb.RegisterKindEncoder(reflect.Uint16, ValueEncoderFunc(uintEncodeValue))
	rb.RegisterKindEncoder(reflect.Uint32, ValueEncoderFunc(uintEncodeValue))
	rb.RegisterKindEncoder(reflect.Uint64, ValueEncoderFunc(uintEncodeValue))
	rb.RegisterKindEncoder(reflect.Float32, ValueEncoderFunc(floatEncodeValue))
	rb.RegisterKindEncoder(reflect.Float64, ValueEncoderFunc(floatEncodeValue))
	rb.RegisterKindEncoder(reflect.Array, defaultSliceCodec)
	rb.RegisterKindEncoder(reflect.Map, defaultMapCodec)
	rb.RegisterKindEncoder(reflect.Slice, defaultSliceCodec)
	rb.RegisterKindEncoder(reflect.String, ValueEncoderFunc(stringEncodeValue))
	rb.RegisterKindEncoder(reflect.Struct, defaultStructCodec)
	rb.RegisterKindEncoder(reflect.Ptr, defaultPointerCodec)
	rb.RegisterKindEncoder(reflect.Interface, defaultInterfaceCodec)
}

func unsupportedRepresentation(val reflect.Value, rep Type) error {
	return newEncodingError("", "%s cannot be represented as %s", val.Type(), rep)
}

func booleanEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Kind() != reflect.Bool {
		return ValueEncoderError{Name: "BooleanEncodeValue", Kinds: []reflect.Kind{reflect.Bool}, Received: val}
	}
	switch ec.Representation {
	case 0, TypeBoolean:
		return vw.WriteBoolean(val.Bool())
	case TypeInt32:
		if val.Bool() {
			return vw.WriteInt32(1)
		}
		return vw.WriteInt32(0)
	case TypeString:
		return vw.WriteString(strconv.FormatBool(val.Bool()))
	}
	return unsupportedRepresentation(val, ec.Representation)
}

func fitsIn32Bits(i int64) bool {
	return math.MinInt32 <= i && i <= math.MaxInt32
}

func intEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	switch val.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return writeInteger(ec, vw, val.Int(), true)
	case reflect.Int:
		i64 := val.Int()
		return writeInteger(ec, vw, i64, fitsIn32Bits(i64))
	case reflect.Int64:
		return writeInteger(ec, vw, val.Int(), false)
	}

	return ValueEncoderError{
		Name:     "IntEncodeValue",
		Kinds:    []reflect.Kind{reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int},
		Received: val,
	}
}

func uintEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	switch val.Kind() {
	case reflect.Uint8, reflect.Uint16:
		return writeInteger(ec, vw, int64(val.Uint()), true)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		u64 := val.Uint()
		if u64 > math.MaxInt64 {
			switch ec.Representation {
			case TypeString:
				return vw.WriteString(strconv.FormatUint(u64, 10))
			case TypeDouble:
				if !ec.AllowTruncation {
					return newEncodingError("", "%d cannot be represented exactly as a double", u64)
				}
				return vw.WriteDouble(float64(u64))
			}
			if !ec.AllowOverflow {
				return newEncodingError("", "%d overflows int64", u64)
			}
		}
		return writeInteger(ec, vw, int64(u64), false)
	}

	return ValueEncoderError{
		Name:     "UintEncodeValue",
		Kinds:    []reflect.Kind{reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint},
		Received: val,
	}
}

// writeInteger writes i64 in the representation selected by ec. narrow marks values whose Go type
// always fits in an int32. A value is never silently truncated: a representation that cannot hold
// it is an EncodingError unless the member allows overflow or truncation.
func writeInteger(ec EncodeContext, vw ValueWriter, i64 int64, narrow bool) error {
	switch ec.Representation {
	case 0:
		if narrow || (ec.MinSize && fitsIn32Bits(i64)) {
			return vw.WriteInt32(int32(i64))
		}
		return vw.WriteInt64(i64)
	case TypeInt32:
		if !fitsIn32Bits(i64) && !ec.AllowOverflow {
			return newEncodingError("", "%d overflows int32", i64)
		}
		return vw.WriteInt32(int32(i64))
	case TypeInt64:
		return vw.WriteInt64(i64)
	case TypeDouble:
		f := float64(i64)
		if (f >= math.MaxInt64 || int64(f) != i64) && !ec.AllowTruncation {
			return newEncodingError("", "%d cannot be represented exactly as a double", i64)
		}
		return vw.WriteDouble(f)
	case TypeString:
		return vw.WriteString(strconv.FormatInt(i64, 10))
	}
	return newEncodingError("", "integer cannot be represented as %s", ec.Representation)
}

func floatEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	var bitSize int
	switch val.Kind() {
	case reflect.Float32:
		bitSize = 32
	case reflect.Float64:
		bitSize = 64
	default:
		return ValueEncoderError{Name: "FloatEncodeValue", Kinds: []reflect.Kind{reflect.Float32, reflect.Float64}, Received: val}
	}

	f := val.Float()
	switch ec.Representation {
	case 0, TypeDouble:
		return vw.WriteDouble(f)
	case TypeInt32, TypeInt64:
		if math.Trunc(f) != f && !ec.AllowTruncation {
			return newEncodingError("", "%v would be truncated when written as %s", f, ec.Representation)
		}
		lo, hi := float64(math.MinInt64), float64(math.MaxInt64)
		if ec.Representation == TypeInt32 {
			lo, hi = math.MinInt32, math.MaxInt32
		}
		if (f < lo || f > hi) && !ec.AllowOverflow {
			return newEncodingError("", "%v overflows %s", f, ec.Representation)
		}
		if ec.Representation == TypeInt32 {
			return vw.WriteInt32(int32(f))
		}
		return vw.WriteInt64(int64(f))
	case TypeString:
		return vw.WriteString(strconv.FormatFloat(f, 'g', -1, bitSize))
	}
	return unsupportedRepresentation(val, ec.Representation)
}

func stringEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if val.Kind() != reflect.String {
		return ValueEncoderError{Name: "StringEncodeValue", Kinds: []reflect.Kind{reflect.String}, Received: val}
	}
	switch ec.Representation {
	case 0, TypeString:
		return vw.WriteString(val.String())
	case TypeSymbol:
		return vw.WriteSymbol(val.String())
	case TypeObjectID:
		oid, err := ObjectIDFromHex(val.String())
		if err != nil {
			return &EncodingError{Err: err}
		}
		return vw.WriteObjectID(oid)
	}
	return unsupportedRepresentation(val, ec.Representation)
}

func objectIDEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tOID {
		return ValueEncoderError{Name: "ObjectIDEncodeValue", Types: []reflect.Type{tOID}, Received: val}
	}
	oid := val.Interface().(ObjectID)
	switch ec.Representation {
	case 0, TypeObjectID:
		return vw.WriteObjectID(oid)
	case TypeString:
		return vw.WriteString(oid.Hex())
	}
	return unsupportedRepresentation(val, ec.Representation)
}

func decimal128EncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tDecimal {
		return ValueEncoderError{Name: "Decimal128EncodeValue", Types: []reflect.Type{tDecimal}, Received: val}
	}
	d128 := val.Interface().(Decimal128)
	switch ec.Representation {
	case 0, TypeDecimal128:
		return vw.WriteDecimal128(d128)
	case TypeString:
		return vw.WriteString(d128.String())
	case TypeDouble:
		f, err := d128.Float64()
		if err != nil {
			return &EncodingError{Err: err}
		}
		return vw.WriteDouble(f)
	case TypeArray:
		aw, err := vw.WriteArray()
		if err != nil {
			return err
		}
		for _, w := range d128.Words() {
			evw, err := aw.WriteArrayElement()
			if err != nil {
				return err
			}
			if err = evw.WriteInt32(w); err != nil {
				return err
			}
		}
		return aw.WriteArrayEnd()
	}
	return unsupportedRepresentation(val, ec.Representation)
}

func timeEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tTime {
		return ValueEncoderError{Name: "TimeEncodeValue", Types: []reflect.Type{tTime}, Received: val}
	}
	tt := val.Interface().(time.Time)
	switch ec.Representation {
	case 0, TypeDateTime:
		return vw.WriteDateTime(int64(NewDateTimeFromTime(tt)))
	case TypeInt64:
		return vw.WriteInt64(int64(NewDateTimeFromTime(tt)))
	case TypeString:
		return vw.WriteString(tt.UTC().Format(time.RFC3339Nano))
	}
	return unsupportedRepresentation(val, ec.Representation)
}

func uuidEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tUUID {
		return ValueEncoderError{Name: "UUIDEncodeValue", Types: []reflect.Type{tUUID}, Received: val}
	}
	u := val.Interface().(uuid.UUID)
	switch ec.Representation {
	case 0, TypeBinary:
		return vw.WriteBinaryWithSubtype(u[:], TypeBinaryUUID)
	case TypeString:
		return vw.WriteString(u.String())
	}
	return unsupportedRepresentation(val, ec.Representation)
}

func byteSliceEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tByteSlice {
		return ValueEncoderError{Name: "ByteSliceEncodeValue", Types: []reflect.Type{tByteSlice}, Received: val}
	}
	if val.IsNil() && !ec.NilSliceAsEmpty {
		return vw.WriteNull()
	}
	return vw.WriteBinary(val.Interface().([]byte))
}

func javaScriptEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tJavaScript {
		return ValueEncoderError{Name: "JavaScriptEncodeValue", Types: []reflect.Type{tJavaScript}, Received: val}
	}

	return vw.WriteJavascript(val.String())
}

func symbolEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tSymbol {
		return ValueEncoderError{Name: "SymbolEncodeValue", Types: []reflect.Type{tSymbol}, Received: val}
	}

	return vw.WriteSymbol(val.String())
}

func binaryEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tBinary {
		return ValueEncoderError{Name: "BinaryEncodeValue", Types: []reflect.Type{tBinary}, Received: val}
	}
	b := val.Interface().(Binary)

	return vw.WriteBinaryWithSubtype(b.Data, b.Subtype)
}

func undefinedEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tUndefined {
		return ValueEncoderError{Name: "UndefinedEncodeValue", Types: []reflect.Type{tUndefined}, Received: val}
	}

	return vw.WriteUndefined()
}

func dateTimeEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tDateTime {
		return ValueEncoderError{Name: "DateTimeEncodeValue", Types: []reflect.Type{tDateTime}, Received: val}
	}

	return vw.WriteDateTime(val.Int())
}

func nullEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tNull {
		return ValueEncoderError{Name: "NullEncodeValue", Types: []reflect.Type{tNull}, Received: val}
	}

	return vw.WriteNull()
}

func regexEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tRegex {
		return ValueEncoderError{Name: "RegexEncodeValue", Types: []reflect.Type{tRegex}, Received: val}
	}

	regex := val.Interface().(Regex)

	return vw.WriteRegex(regex.Pattern, regex.Options)
}

func dbPointerEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tDBPointer {
		return ValueEncoderError{Name: "DBPointerEncodeValue", Types: []reflect.Type{tDBPointer}, Received: val}
	}

	dbp := val.Interface().(DBPointer)

	return vw.WriteDBPointer(dbp.DB, dbp.Pointer)
}

func timestampEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tTimestamp {
		return ValueEncoderError{Name: "TimestampEncodeValue", Types: []reflect.Type{tTimestamp}, Received: val}
	}

	ts := val.Interface().(Timestamp)

	return vw.WriteTimestamp(ts.T, ts.I)
}

func minKeyEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tMinKey {
		return ValueEncoderError{Name: "MinKeyEncodeValue", Types: []reflect.Type{tMinKey}, Received: val}
	}

	return vw.WriteMinKey()
}

func maxKeyEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tMaxKey {
		return ValueEncoderError{Name: "MaxKeyEncodeValue", Types: []reflect.Type{tMaxKey}, Received: val}
	}

	return vw.WriteMaxKey()
}

func codeWithScopeEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tCodeWithScope {
		return ValueEncoderError{Name: "CodeWithScopeEncodeValue", Types: []reflect.Type{tCodeWithScope}, Received: val}
	}

	cws := val.Interface().(CodeWithScope)

	dw, err := vw.WriteCodeWithScope(string(cws.Code))
	if err != nil {
		return err
	}

	scope, err := MarshalWithContext(ec.memberless(), cws.Scope)
	if err != nil {
		return err
	}

	if err := copyBytesToDocumentWriter(dw, scope); err != nil {
		return err
	}
	return dw.WriteDocumentEnd()
}

// dEncodeValue writes a D as a document, preserving element order.
func dEncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tD {
		return ValueEncoderError{Name: "DEncodeValue", Types: []reflect.Type{tD}, Received: val}
	}
	if val.IsNil() && !ec.NilSliceAsEmpty {
		return vw.WriteNull()
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return err
	}
	ec = ec.memberless()
	for _, e := range val.Interface().(D) {
		if err := encodeElement(ec, dw, e); err != nil {
			return wrapEncodeError(e.Key, err)
		}
	}
	return dw.WriteDocumentEnd()
}

func encodeElement(ec EncodeContext, dw DocumentWriter, e E) error {
	vw, err := dw.WriteDocumentElement(e.Key)
	if err != nil {
		return err
	}

	if e.Value == nil {
		return vw.WriteNull()
	}
	encoder, err := ec.LookupEncoder(reflect.TypeOf(e.Value))
	if err != nil {
		return err
	}

	ec.nominal = tEmpty
	return encoder.EncodeValue(ec, vw, reflect.ValueOf(e.Value))
}

// valueMarshalerEncodeValue is the ValueEncoderFunc for ValueMarshaler implementations.
func valueMarshalerEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	// Either val or a pointer to val must implement ValueMarshaler
	switch {
	case !val.IsValid():
		return ValueEncoderError{Name: "ValueMarshalerEncodeValue", Types: []reflect.Type{tValueMarshaler}, Received: val}
	case val.Type().Implements(tValueMarshaler):
		// If ValueMarshaler is implemented on a concrete type, make sure that val isn't a nil pointer
		if isImplementationNil(val, tValueMarshaler) {
			return vw.WriteNull()
		}
	case reflect.PtrTo(val.Type()).Implements(tValueMarshaler) && val.CanAddr():
		val = val.Addr()
	default:
		return ValueEncoderError{Name: "ValueMarshalerEncodeValue", Types: []reflect.Type{tValueMarshaler}, Received: val}
	}

	m, ok := val.Interface().(ValueMarshaler)
	if !ok {
		return vw.WriteNull()
	}
	t, data, err := m.MarshalBSONValue()
	if err != nil {
		return err
	}
	return copyValueFromBytes(vw, t, data)
}

// marshalerEncodeValue is the ValueEncoderFunc for Marshaler implementations.
func marshalerEncodeValue(_ EncodeContext, vw ValueWriter, val reflect.Value) error {
	// Either val or a pointer to val must implement Marshaler
	switch {
	case !val.IsValid():
		return ValueEncoderError{Name: "MarshalerEncodeValue", Types: []reflect.Type{tMarshaler}, Received: val}
	case val.Type().Implements(tMarshaler):
		// If Marshaler is implemented on a concrete type, make sure that val isn't a nil pointer
		if isImplementationNil(val, tMarshaler) {
			return vw.WriteNull()
		}
	case reflect.PtrTo(val.Type()).Implements(tMarshaler) && val.CanAddr():
		val = val.Addr()
	default:
		return ValueEncoderError{Name: "MarshalerEncodeValue", Types: []reflect.Type{tMarshaler}, Received: val}
	}

	m, ok := val.Interface().(Marshaler)
	if !ok {
		return vw.WriteNull()
	}
	data, err := m.MarshalBSON()
	if err != nil {
		return err
	}
	if err := bsoncore.Document(data).Validate(); err != nil {
		return newEncodingError("", "MarshalBSON of %s returned an invalid document: %v", val.Type(), err)
	}
	return copyValueFromBytes(vw, TypeEmbeddedDocument, data)
}

// isImplementationNil reports whether val is a nil pointer or interface.
func isImplementationNil(val reflect.Value, _ reflect.Type) bool {
	return (val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface) && val.IsNil()
}
