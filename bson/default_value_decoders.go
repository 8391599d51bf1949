// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var builtinHookDecoders = []interfaceValueDecoder{
	{i: tValueUnmarshaler, vd: ValueDecoderFunc(valueUnmarshalerDecodeValue)},
	{i: tUnmarshaler, vd: ValueDecoderFunc(unmarshalerDecodeValue)},
}

func registerDefaultDecoders(rb *RegistryBuilder) {
	rb.RegisterTypeDecoder(tByteSlice, ValueDecoderFunc(byteSliceDecodeValue))
	rb.RegisterTypeDecoder(tTime, ValueDecoderFunc(timeDecodeValue))
	rb.RegisterTypeDecoder(tUUID, ValueDecoderFunc(uuidDecodeValue))
	rb.RegisterTypeDecoder(tEmpty, defaultInterfaceCodec)
	rb.RegisterTypeDecoder(tOID, ValueDecoderFunc(objectIDDecodeValue))
	rb.RegisterTypeDecoder(tDecimal, ValueDecoderFunc(decimal128DecodeValue))
	rb.RegisterTypeDecoder(tJavaScript, ValueDecoderFunc(javaScriptDecodeValue))
	rb.RegisterTypeDecoder(tSymbol, ValueDecoderFunc(symbolDecodeValue))
	rb.RegisterTypeDecoder(tBinary, ValueDecoderFunc(binaryDecodeValue))
	rb.RegisterTypeDecoder(tUndefined, ValueDecoderFunc(undefinedDecodeValue))
	rb.RegisterTypeDecoder(tDateTime, ValueDecoderFunc(dateTimeDecodeValue))
	rb.RegisterTypeDecoder(tNull, ValueDecoderFunc(nullDecodeValue))
	rb.RegisterTypeDecoder(tRegex, ValueDecoderFunc(regexDecodeValue))
	rb.RegisterTypeDecoder(tDBPointer, ValueDecoderFunc(dbPointerDecodeValue))
	rb.RegisterTypeDecoder(tTimestamp, ValueDecoderFunc(timestampDecodeValue))
	rb.RegisterTypeDecoder(tMinKey, ValueDecoderFunc(minKeyDecodeValue))
	rb.RegisterTypeDecoder(tMaxKey, ValueDecoderFunc(maxKeyDecodeValue))
	rb.RegisterTypeDecoder(tCodeWithScope, ValueDecoderFunc(codeWithScopeDecodeValue))
	rb.RegisterTypeDecoder(tD, ValueDecoderFunc(dDecodeValue))
	rb.RegisterKindDecoder(reflect.Bool, ValueDecoderFunc(booleanDecodeValue))
	rb.RegisterKindDecoder(reflect.Int, ValueDecoderFunc(intDecodeValue))
	rb.RegisterKindDecoder(reflect.Int8, ValueDecoderFunc(intDecodeValue))
	rb.RegisterKindDecoder(reflect.Int16, ValueDecoderFunc(intDecodeValue))
	rb.RegisterKindDecoder(reflect.Int32, ValueDecoderFunc(intDecodeValue))
	rb.RegisterKindDecoder(reflect.Int64, ValueDecoderFunc(intDecodeValue))
	rb.RegisterKindDecoder(reflect.Uint, ValueDecoderFunc(uintDecodeValue))
	rb.RegisterKindDecoder(reflect.Uint8, ValueDecoderFunc(uintDecodeValue))
	rb.RegisterKindDecoder(reflect.Uint16, ValueDecoderFunc(uintDecodeValue))
	rb.RegisterKindDecoder(reflect.Uint32, ValueDecoderFunc(uintDecodeValue))
	rb.RegisterKindDecoder(reflect.Uint64, ValueDecoderFunc(uintDecodeValue))
	rb.RegisterKindDecoder(reflect.Float32, ValueDecoderFunc(floatDecodeValue))
	rb.RegisterKindDecoder(reflect.Float64, ValueDecoderFunc(floatDecodeValue))
	rb.RegisterKindDecoder(reflect.Array, defaultSliceCodec)
	rb.RegisterKindDecoder(reflect.Map, defaultMapCodec)
	rb.RegisterKindDecoder(reflect.Slice, defaultSliceCodec)
	rb.RegisterKindDecoder(reflect.String, ValueDecoderFunc(stringDecodeValue))
	rb.RegisterKindDecoder(reflect.Struct, defaultStructCodec)
	rb.RegisterKindDecoder(reflect.Ptr, defaultPointerCodec)
	rb.RegisterKindDecoder(reflect.Interface, defaultInterfaceCodec)

	rb.RegisterTypeMapEntry(TypeDouble, tFloat64).
		RegisterTypeMapEntry(TypeString, tString).
		RegisterTypeMapEntry(TypeArray, tA).
		RegisterTypeMapEntry(TypeBinary, tBinary).
		RegisterTypeMapEntry(TypeUndefined, tUndefined).
		RegisterTypeMapEntry(TypeObjectID, tOID).
		RegisterTypeMapEntry(TypeBoolean, tBool).
		RegisterTypeMapEntry(TypeDateTime, tDateTime).
		RegisterTypeMapEntry(TypeRegex, tRegex).
		RegisterTypeMapEntry(TypeDBPointer, tDBPointer).
		RegisterTypeMapEntry(TypeJavaScript, tJavaScript).
		RegisterTypeMapEntry(TypeSymbol, tSymbol).
		RegisterTypeMapEntry(TypeCodeWithScope, tCodeWithScope).
		RegisterTypeMapEntry(TypeInt32, tInt32).
		RegisterTypeMapEntry(TypeInt64, tInt64).
		RegisterTypeMapEntry(TypeTimestamp, tTimestamp).
		RegisterTypeMapEntry(TypeDecimal128, tDecimal).
		RegisterTypeMapEntry(TypeMinKey, tMinKey).
		RegisterTypeMapEntry(TypeMaxKey, tMaxKey).
		RegisterTypeMapEntry(TypeNull, nil)
}

func cannotDecode(vr ValueReader, into string) error {
	return errors.Errorf("cannot decode %v into %s", vr.Type(), into)
}

// readNullish consumes a null or undefined value. It reports whether one was consumed.
func readNullish(vr ValueReader) (bool, error) {
	switch vr.Type() {
	case TypeNull:
		return true, vr.ReadNull()
	case TypeUndefined:
		return true, vr.ReadUndefined()
	}
	return false, nil
}

func booleanDecodeValue(dctx DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.IsValid() || !val.CanSet() || val.Kind() != reflect.Bool {
		return ValueDecoderError{Name: "BooleanDecodeValue", Kinds: []reflect.Kind{reflect.Bool}, Received: val}
	}

	var b bool
	var err error
	switch vr.Type() {
	case TypeInt32:
		var i32 int32
		i32, err = vr.ReadInt32()
		b = i32 != 0
	case TypeInt64:
		var i64 int64
		i64, err = vr.ReadInt64()
		b = i64 != 0
	case TypeDouble:
		var f64 float64
		f64, err = vr.ReadDouble()
		b = f64 != 0
	case TypeBoolean:
		b, err = vr.ReadBoolean()
	case TypeString:
		var s string
		if s, err = vr.ReadString(); err == nil {
			b, err = strconv.ParseBool(s)
		}
	case TypeNull:
		err = vr.ReadNull()
	case TypeUndefined:
		err = vr.ReadUndefined()
	default:
		return cannotDecode(vr, "a boolean")
	}
	if err != nil {
		return err
	}

	val.SetBool(b)
	return nil
}

// readInteger reads any BSON value that can be interpreted as an integer.
func readInteger(dc DecodeContext, vr ValueReader) (int64, error) {
	switch vr.Type() {
	case TypeInt32:
		i32, err := vr.ReadInt32()
		return int64(i32), err
	case TypeInt64:
		return vr.ReadInt64()
	case TypeDouble:
		f64, err := vr.ReadDouble()
		if err != nil {
			return 0, err
		}
		if !dc.Truncate && math.Floor(f64) != f64 {
			return 0, errors.New("IntDecodeValue can only truncate float64 to an integer type when truncation is enabled")
		}
		if (f64 > math.MaxInt64 || f64 < math.MinInt64) && !dc.AllowOverflow {
			return 0, errors.Errorf("%g overflows int64", f64)
		}
		return int64(f64), nil
	case TypeBoolean:
		b, err := vr.ReadBoolean()
		if b {
			return 1, err
		}
		return 0, err
	case TypeString:
		s, err := vr.ReadString()
		if err != nil {
			return 0, err
		}
		return strconv.ParseInt(s, 10, 64)
	case TypeNull:
		return 0, vr.ReadNull()
	case TypeUndefined:
		return 0, vr.ReadUndefined()
	}
	return 0, cannotDecode(vr, "an integer type")
}

func intDecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() {
		return ValueDecoderError{
			Name:     "IntDecodeValue",
			Kinds:    []reflect.Kind{reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int},
			Received: val,
		}
	}

	var i64 int64
	var err error
	switch val.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		i64, err = readInteger(dc, vr)
	default:
		return ValueDecoderError{
			Name:     "IntDecodeValue",
			Kinds:    []reflect.Kind{reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int},
			Received: val,
		}
	}
	if err != nil {
		return err
	}

	if val.OverflowInt(i64) && !dc.AllowOverflow {
		return errors.Errorf("%d overflows %s", i64, val.Type())
	}

	val.SetInt(i64)
	return nil
}

func uintDecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	switch val.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
	default:
		return ValueDecoderError{
			Name:     "UintDecodeValue",
			Kinds:    []reflect.Kind{reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint},
			Received: val,
		}
	}
	if !val.CanSet() {
		return ValueDecoderError{Name: "UintDecodeValue", Kinds: []reflect.Kind{val.Kind()}, Received: val}
	}

	var u64 uint64
	if vr.Type() == TypeString {
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		if u64, err = strconv.ParseUint(s, 10, 64); err != nil {
			return err
		}
	} else {
		i64, err := readInteger(dc, vr)
		if err != nil {
			return err
		}
		if i64 < 0 && !dc.AllowOverflow {
			return errors.Errorf("%d overflows %s", i64, val.Type())
		}
		u64 = uint64(i64)
	}

	if val.OverflowUint(u64) && !dc.AllowOverflow {
		return errors.Errorf("%d overflows %s", u64, val.Type())
	}

	val.SetUint(u64)
	return nil
}

func floatDecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || (val.Kind() != reflect.Float32 && val.Kind() != reflect.Float64) {
		return ValueDecoderError{
			Name:     "FloatDecodeValue",
			Kinds:    []reflect.Kind{reflect.Float32, reflect.Float64},
			Received: val,
		}
	}

	var f float64
	var err error
	switch vr.Type() {
	case TypeInt32:
		var i32 int32
		i32, err = vr.ReadInt32()
		f = float64(i32)
	case TypeInt64:
		var i64 int64
		i64, err = vr.ReadInt64()
		f = float64(i64)
		if err == nil && int64(f) != i64 && !dc.Truncate {
			return errors.Errorf("%d cannot be decoded into a float without losing precision", i64)
		}
	case TypeDouble:
		f, err = vr.ReadDouble()
	case TypeBoolean:
		var b bool
		b, err = vr.ReadBoolean()
		if b {
			f = 1
		}
	case TypeString:
		var s string
		if s, err = vr.ReadString(); err == nil {
			f, err = strconv.ParseFloat(s, 64)
		}
	case TypeDecimal128:
		var d Decimal128
		if d, err = vr.ReadDecimal128(); err == nil {
			f, err = d.Float64()
		}
	case TypeNull:
		err = vr.ReadNull()
	case TypeUndefined:
		err = vr.ReadUndefined()
	default:
		return cannotDecode(vr, "a float type")
	}
	if err != nil {
		return err
	}

	if val.Kind() == reflect.Float32 && !dc.Truncate && float64(float32(f)) != f && !math.IsNaN(f) {
		return errors.New("FloatDecodeValue can only convert float64 to float32 when truncation is allowed")
	}

	val.SetFloat(f)
	return nil
}

func stringDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Kind() != reflect.String {
		return ValueDecoderError{Name: "StringDecodeValue", Kinds: []reflect.Kind{reflect.String}, Received: val}
	}

	var str string
	var err error
	switch vr.Type() {
	case TypeString:
		str, err = vr.ReadString()
	case TypeSymbol:
		str, err = vr.ReadSymbol()
	case TypeJavaScript:
		str, err = vr.ReadJavascript()
	case TypeObjectID:
		var oid ObjectID
		oid, err = vr.ReadObjectID()
		str = oid.Hex()
	case TypeNull:
		err = vr.ReadNull()
	case TypeUndefined:
		err = vr.ReadUndefined()
	default:
		return cannotDecode(vr, "a string type")
	}
	if err != nil {
		return err
	}

	val.SetString(str)
	return nil
}

func javaScriptDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tJavaScript {
		return ValueDecoderError{Name: "JavaScriptDecodeValue", Types: []reflect.Type{tJavaScript}, Received: val}
	}

	var js string
	var err error
	switch vr.Type() {
	case TypeJavaScript:
		js, err = vr.ReadJavascript()
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a JavaScript")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.SetString(js)
	return nil
}

func symbolDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tSymbol {
		return ValueDecoderError{Name: "SymbolDecodeValue", Types: []reflect.Type{tSymbol}, Received: val}
	}

	var symbol string
	var err error
	switch vr.Type() {
	case TypeString:
		symbol, err = vr.ReadString()
	case TypeSymbol:
		symbol, err = vr.ReadSymbol()
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a Symbol")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.SetString(symbol)
	return nil
}

func binaryDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tBinary {
		return ValueDecoderError{Name: "BinaryDecodeValue", Types: []reflect.Type{tBinary}, Received: val}
	}

	var data []byte
	var subtype byte
	var err error
	switch vr.Type() {
	case TypeBinary:
		data, subtype, err = vr.ReadBinary()
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a Binary")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(Binary{Subtype: subtype, Data: data}))
	return nil
}

func byteSliceDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tByteSlice {
		return ValueDecoderError{Name: "ByteSliceDecodeValue", Types: []reflect.Type{tByteSlice}, Received: val}
	}

	var data []byte
	var err error
	switch vr.Type() {
	case TypeString:
		var str string
		str, err = vr.ReadString()
		data = []byte(str)
	case TypeSymbol:
		var str string
		str, err = vr.ReadSymbol()
		data = []byte(str)
	case TypeBinary:
		var subtype byte
		data, subtype, err = vr.ReadBinary()
		if err == nil && subtype != TypeBinaryGeneric && subtype != TypeBinaryBinaryOld {
			return errors.Errorf("ByteSliceDecodeValue can only be used to decode subtype 0x00 or 0x02 for %s, got %v", TypeBinary, subtype)
		}
	case TypeNull:
		val.Set(reflect.Zero(val.Type()))
		return vr.ReadNull()
	case TypeUndefined:
		val.Set(reflect.Zero(val.Type()))
		return vr.ReadUndefined()
	default:
		return cannotDecode(vr, "a []byte")
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(data))
	return nil
}

func undefinedDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tUndefined {
		return ValueDecoderError{Name: "UndefinedDecodeValue", Types: []reflect.Type{tUndefined}, Received: val}
	}

	var err error
	switch vr.Type() {
	case TypeUndefined:
		err = vr.ReadUndefined()
	case TypeNull:
		err = vr.ReadNull()
	default:
		return cannotDecode(vr, "an Undefined")
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(Undefined{}))
	return nil
}

func objectIDDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tOID {
		return ValueDecoderError{Name: "ObjectIDDecodeValue", Types: []reflect.Type{tOID}, Received: val}
	}

	var oid ObjectID
	var err error
	switch vr.Type() {
	case TypeObjectID:
		oid, err = vr.ReadObjectID()
	case TypeString:
		var str string
		if str, err = vr.ReadString(); err == nil {
			oid, err = ObjectIDFromHex(str)
		}
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "an ObjectID")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(oid))
	return nil
}

func dateTimeDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tDateTime {
		return ValueDecoderError{Name: "DateTimeDecodeValue", Types: []reflect.Type{tDateTime}, Received: val}
	}

	var dt int64
	var err error
	switch vr.Type() {
	case TypeDateTime:
		dt, err = vr.ReadDateTime()
	case TypeInt64:
		dt, err = vr.ReadInt64()
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a DateTime")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.SetInt(dt)
	return nil
}

func nullDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tNull {
		return ValueDecoderError{Name: "NullDecodeValue", Types: []reflect.Type{tNull}, Received: val}
	}

	if ok, err := readNullish(vr); !ok {
		return cannotDecode(vr, "a Null")
	} else if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(Null{}))
	return nil
}

func regexDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tRegex {
		return ValueDecoderError{Name: "RegexDecodeValue", Types: []reflect.Type{tRegex}, Received: val}
	}

	var pattern, options string
	var err error
	switch vr.Type() {
	case TypeRegex:
		pattern, options, err = vr.ReadRegex()
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a Regex")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(Regex{Pattern: pattern, Options: options}))
	return nil
}

func dbPointerDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tDBPointer {
		return ValueDecoderError{Name: "DBPointerDecodeValue", Types: []reflect.Type{tDBPointer}, Received: val}
	}

	var ns string
	var pointer ObjectID
	var err error
	switch vr.Type() {
	case TypeDBPointer:
		ns, pointer, err = vr.ReadDBPointer()
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a DBPointer")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(DBPointer{DB: ns, Pointer: pointer}))
	return nil
}

func timestampDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tTimestamp {
		return ValueDecoderError{Name: "TimestampDecodeValue", Types: []reflect.Type{tTimestamp}, Received: val}
	}

	var t, incr uint32
	var err error
	switch vr.Type() {
	case TypeTimestamp:
		t, incr, err = vr.ReadTimestamp()
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a Timestamp")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(Timestamp{T: t, I: incr}))
	return nil
}

func minKeyDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tMinKey {
		return ValueDecoderError{Name: "MinKeyDecodeValue", Types: []reflect.Type{tMinKey}, Received: val}
	}

	var err error
	switch vr.Type() {
	case TypeMinKey:
		err = vr.ReadMinKey()
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a MinKey")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(MinKey{}))
	return nil
}

func maxKeyDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tMaxKey {
		return ValueDecoderError{Name: "MaxKeyDecodeValue", Types: []reflect.Type{tMaxKey}, Received: val}
	}

	var err error
	switch vr.Type() {
	case TypeMaxKey:
		err = vr.ReadMaxKey()
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a MaxKey")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(MaxKey{}))
	return nil
}

func decimal128DecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tDecimal {
		return ValueDecoderError{Name: "Decimal128DecodeValue", Types: []reflect.Type{tDecimal}, Received: val}
	}

	var d128 Decimal128
	var err error
	switch vr.Type() {
	case TypeDecimal128:
		d128, err = vr.ReadDecimal128()
	case TypeString:
		var s string
		if s, err = vr.ReadString(); err == nil {
			d128, err = ParseDecimal128(s)
		}
	case TypeDouble:
		var f float64
		if f, err = vr.ReadDouble(); err == nil {
			d128, err = ParseDecimal128(strconv.FormatFloat(f, 'g', -1, 64))
		}
	case TypeInt32:
		var i32 int32
		if i32, err = vr.ReadInt32(); err == nil {
			d128, err = ParseDecimal128(strconv.FormatInt(int64(i32), 10))
		}
	case TypeInt64:
		var i64 int64
		if i64, err = vr.ReadInt64(); err == nil {
			d128, err = ParseDecimal128(strconv.FormatInt(i64, 10))
		}
	case TypeArray:
		d128, err = readDecimal128Words(vr)
	default:
		if ok, nerr := readNullish(vr); !ok {
			return cannotDecode(vr, "a Decimal128")
		} else if nerr != nil {
			return nerr
		}
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(d128))
	return nil
}

// readDecimal128Words reads the four int32 word array representation of a Decimal128.
func readDecimal128Words(vr ValueReader) (Decimal128, error) {
	ar, err := vr.ReadArray()
	if err != nil {
		return Decimal128{}, err
	}
	var words [4]int32
	for i := 0; ; i++ {
		evr, err := ar.ReadValue()
		if errors.Is(err, ErrEOA) {
			if i != len(words) {
				return Decimal128{}, errors.Errorf("decimal128 word array has %d elements, expected 4", i)
			}
			return Decimal128FromWords(words), nil
		}
		if err != nil {
			return Decimal128{}, err
		}
		if i >= len(words) || evr.Type() != TypeInt32 {
			return Decimal128{}, errors.New("decimal128 word array must contain exactly four int32 values")
		}
		if words[i], err = evr.ReadInt32(); err != nil {
			return Decimal128{}, err
		}
	}
}

func timeDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tTime {
		return ValueDecoderError{Name: "TimeDecodeValue", Types: []reflect.Type{tTime}, Received: val}
	}

	var tt time.Time
	switch vr.Type() {
	case TypeDateTime:
		dt, err := vr.ReadDateTime()
		if err != nil {
			return err
		}
		tt = DateTime(dt).Time()
	case TypeInt64:
		i64, err := vr.ReadInt64()
		if err != nil {
			return err
		}
		tt = DateTime(i64).Time()
	case TypeTimestamp:
		t, _, err := vr.ReadTimestamp()
		if err != nil {
			return err
		}
		tt = time.Unix(int64(t), 0)
	case TypeString:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		if tt, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return err
		}
	default:
		if ok, err := readNullish(vr); !ok {
			return cannotDecode(vr, "a time.Time")
		} else if err != nil {
			return err
		}
	}

	val.Set(reflect.ValueOf(tt.UTC()))
	return nil
}

func uuidDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tUUID {
		return ValueDecoderError{Name: "UUIDDecodeValue", Types: []reflect.Type{tUUID}, Received: val}
	}

	var u uuid.UUID
	switch vr.Type() {
	case TypeBinary:
		data, subtype, err := vr.ReadBinary()
		if err != nil {
			return err
		}
		if subtype != TypeBinaryUUID && subtype != TypeBinaryUUIDOld {
			return errors.Errorf("cannot decode binary subtype %#x into a UUID", subtype)
		}
		if u, err = uuid.FromBytes(data); err != nil {
			return err
		}
	case TypeString:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		if u, err = uuid.Parse(s); err != nil {
			return err
		}
	default:
		if ok, err := readNullish(vr); !ok {
			return cannotDecode(vr, "a UUID")
		} else if err != nil {
			return err
		}
	}

	val.Set(reflect.ValueOf(u))
	return nil
}

func codeWithScopeDecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tCodeWithScope {
		return ValueDecoderError{Name: "CodeWithScopeDecodeValue", Types: []reflect.Type{tCodeWithScope}, Received: val}
	}

	var cws CodeWithScope
	switch vr.Type() {
	case TypeCodeWithScope:
		code, dr, err := vr.ReadCodeWithScope()
		if err != nil {
			return err
		}
		scope := reflect.New(dc.defaultDocumentType()).Elem()
		if err := decodeDocumentInto(dc, dr, scope); err != nil {
			return err
		}
		cws = CodeWithScope{Code: JavaScript(code), Scope: scope.Interface()}
	default:
		if ok, err := readNullish(vr); !ok {
			return cannotDecode(vr, "a CodeWithScope")
		} else if err != nil {
			return err
		}
	}

	val.Set(reflect.ValueOf(cws))
	return nil
}

// dDecodeValue decodes a document into a D, preserving element order.
func dDecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.IsValid() || !val.CanSet() || val.Type() != tD {
		return ValueDecoderError{Name: "DDecodeValue", Types: []reflect.Type{tD}, Received: val}
	}

	switch vr.Type() {
	case Type(0), TypeEmbeddedDocument:
	case TypeNull:
		val.Set(reflect.Zero(val.Type()))
		return vr.ReadNull()
	case TypeUndefined:
		val.Set(reflect.Zero(val.Type()))
		return vr.ReadUndefined()
	default:
		return fmt.Errorf("cannot decode %v into a D", vr.Type())
	}

	dr, err := vr.ReadDocument()
	if err != nil {
		return err
	}
	return decodeDocumentInto(dc, dr, val)
}

// decodeDocumentInto reads every element of dr into val, which must be a D or an M.
func decodeDocumentInto(dc DecodeContext, dr DocumentReader, val reflect.Value) error {
	dc = dc.memberless()
	dc.nominal = tEmpty
	isD := val.Type() == tD
	var elems D
	if isD {
		elems = make(D, 0)
	} else if val.IsNil() {
		val.Set(reflect.MakeMap(val.Type()))
	}

	for {
		key, elemVr, err := dr.ReadElement()
		if errors.Is(err, ErrEOD) {
			break
		}
		if err != nil {
			return err
		}

		elem := reflect.New(tEmpty).Elem()
		if err := defaultInterfaceCodec.DecodeValue(dc, elemVr, elem); err != nil {
			return newDecodeError(key, err)
		}

		if isD {
			elems = append(elems, E{Key: key, Value: elem.Interface()})
			continue
		}
		if elem.IsNil() {
			val.SetMapIndex(reflect.ValueOf(key), reflect.Zero(tEmpty))
			continue
		}
		val.SetMapIndex(reflect.ValueOf(key), elem)
	}

	if isD {
		val.Set(reflect.ValueOf(elems))
	}
	return nil
}

// valueUnmarshalerDecodeValue is the ValueDecoderFunc for ValueUnmarshaler implementations.
func valueUnmarshalerDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.IsValid() || (!val.Type().Implements(tValueUnmarshaler) && !reflect.PtrTo(val.Type()).Implements(tValueUnmarshaler)) {
		return ValueDecoderError{Name: "ValueUnmarshalerDecodeValue", Types: []reflect.Type{tValueUnmarshaler}, Received: val}
	}

	if val.Kind() == reflect.Ptr && val.IsNil() {
		if !val.CanSet() {
			return ValueDecoderError{Name: "ValueUnmarshalerDecodeValue", Types: []reflect.Type{tValueUnmarshaler}, Received: val}
		}
		val.Set(reflect.New(val.Type().Elem()))
	}

	if !val.Type().Implements(tValueUnmarshaler) {
		if !val.CanAddr() {
			return ValueDecoderError{Name: "ValueUnmarshalerDecodeValue", Types: []reflect.Type{tValueUnmarshaler}, Received: val}
		}
		val = val.Addr() // If the type doesn't implement the interface, a pointer to it must.
	}

	t, src, err := copyValueToBytes(vr)
	if err != nil {
		return err
	}

	m, ok := val.Interface().(ValueUnmarshaler)
	if !ok {
		// NB: this error should be unreachable due to the above checks
		return ValueDecoderError{Name: "ValueUnmarshalerDecodeValue", Types: []reflect.Type{tValueUnmarshaler}, Received: val}
	}
	return m.UnmarshalBSONValue(t, src)
}

// unmarshalerDecodeValue is the ValueDecoderFunc for Unmarshaler implementations.
func unmarshalerDecodeValue(_ DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.IsValid() || (!val.Type().Implements(tUnmarshaler) && !reflect.PtrTo(val.Type()).Implements(tUnmarshaler)) {
		return ValueDecoderError{Name: "UnmarshalerDecodeValue", Types: []reflect.Type{tUnmarshaler}, Received: val}
	}

	if val.Kind() == reflect.Ptr && val.IsNil() {
		if !val.CanSet() {
			return ValueDecoderError{Name: "UnmarshalerDecodeValue", Types: []reflect.Type{tUnmarshaler}, Received: val}
		}
		val.Set(reflect.New(val.Type().Elem()))
	}

	_, src, err := copyValueToBytes(vr)
	if err != nil {
		return err
	}

	// If the target Go value is a pointer and the BSON field value is empty, set the value to the
	// zero value of the pointer (nil) and don't call UnmarshalBSON.
	if val.Kind() == reflect.Ptr && len(src) == 0 {
		val.Set(reflect.Zero(val.Type()))
		return nil
	}

	if !val.Type().Implements(tUnmarshaler) {
		if !val.CanAddr() {
			return ValueDecoderError{Name: "UnmarshalerDecodeValue", Types: []reflect.Type{tUnmarshaler}, Received: val}
		}
		val = val.Addr() // If the type doesn't implement the interface, a pointer to it must.
	}

	m, ok := val.Interface().(Unmarshaler)
	if !ok {
		// NB: this error should be unreachable due to the above checks
		return ValueDecoderError{Name: "UnmarshalerDecodeValue", Types: []reflect.Type{tUnmarshaler}, Received: val}
	}
	return m.UnmarshalBSON(src)
}
