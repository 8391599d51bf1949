// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsonx

import (
	"reflect"
	"strconv"

	"github.com/ikmak/docwire/bson"
	"github.com/pkg/errors"
)

var (
	tDoc = reflect.TypeOf(Doc(nil))
	tArr = reflect.TypeOf(Arr(nil))
	tVal = reflect.TypeOf(Val{})
)

// sliceWriter is an io.Writer that appends to a byte slice.
type sliceWriter []byte

func (sw *sliceWriter) Write(p []byte) (int, error) {
	*sw = append(*sw, p...)
	return len(p), nil
}

// RegisterCodecs registers encoders and decoders for Doc, Arr and Val with rb. Without them the
// registry still handles these types through their Marshaler and Unmarshaler hooks, at the cost
// of an intermediate copy of every nested value.
func RegisterCodecs(rb *bson.RegistryBuilder) *bson.RegistryBuilder {
	return rb.
		RegisterTypeEncoder(tDoc, bson.ValueEncoderFunc(DocEncodeValue)).
		RegisterTypeDecoder(tDoc, bson.ValueDecoderFunc(DocDecodeValue)).
		RegisterTypeEncoder(tArr, bson.ValueEncoderFunc(ArrEncodeValue)).
		RegisterTypeDecoder(tArr, bson.ValueDecoderFunc(ArrDecodeValue)).
		RegisterTypeEncoder(tVal, bson.ValueEncoderFunc(ValEncodeValue)).
		RegisterTypeDecoder(tVal, bson.ValueDecoderFunc(ValDecodeValue))
}

// DocEncodeValue is the ValueEncoderFunc for Doc. A nil Doc is written as BSON null.
func DocEncodeValue(_ bson.EncodeContext, vw bson.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tDoc {
		return bson.ValueEncoderError{Name: "DocEncodeValue", Types: []reflect.Type{tDoc}, Received: val}
	}
	if val.IsNil() {
		return vw.WriteNull()
	}
	dw, err := vw.WriteDocument()
	if err != nil {
		return err
	}
	return encodeDoc(dw, val.Interface().(Doc))
}

// DocDecodeValue is the ValueDecoderFunc for Doc.
func DocDecodeValue(_ bson.DecodeContext, vr bson.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tDoc {
		return bson.ValueDecoderError{Name: "DocDecodeValue", Types: []reflect.Type{tDoc}, Received: val}
	}
	if vr.Type() == bson.TypeNull {
		val.Set(reflect.Zero(tDoc))
		return vr.ReadNull()
	}
	dr, err := vr.ReadDocument()
	if err != nil {
		return err
	}
	doc, err := decodeDoc(dr)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(doc))
	return nil
}

// ArrEncodeValue is the ValueEncoderFunc for Arr. A nil Arr is written as BSON null.
func ArrEncodeValue(_ bson.EncodeContext, vw bson.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tArr {
		return bson.ValueEncoderError{Name: "ArrEncodeValue", Types: []reflect.Type{tArr}, Received: val}
	}
	if val.IsNil() {
		return vw.WriteNull()
	}
	return encodeArr(vw, val.Interface().(Arr))
}

// ArrDecodeValue is the ValueDecoderFunc for Arr.
func ArrDecodeValue(_ bson.DecodeContext, vr bson.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tArr {
		return bson.ValueDecoderError{Name: "ArrDecodeValue", Types: []reflect.Type{tArr}, Received: val}
	}
	if vr.Type() == bson.TypeNull {
		val.Set(reflect.Zero(tArr))
		return vr.ReadNull()
	}
	arr, err := decodeArr(vr)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(arr))
	return nil
}

// ValEncodeValue is the ValueEncoderFunc for Val.
func ValEncodeValue(_ bson.EncodeContext, vw bson.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tVal {
		return bson.ValueEncoderError{Name: "ValEncodeValue", Types: []reflect.Type{tVal}, Received: val}
	}
	return encodeVal(vw, val.Interface().(Val))
}

// ValDecodeValue is the ValueDecoderFunc for Val.
func ValDecodeValue(_ bson.DecodeContext, vr bson.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tVal {
		return bson.ValueDecoderError{Name: "ValDecodeValue", Types: []reflect.Type{tVal}, Received: val}
	}
	v, err := decodeVal(vr)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(v))
	return nil
}

// encodeDoc is shared by documents and code with scope, which hands back a DocumentWriter
// rather than a ValueWriter.
func encodeDoc(dw bson.DocumentWriter, doc Doc) error {
	for _, elem := range doc {
		vw, err := dw.WriteDocumentElement(elem.Key)
		if err != nil {
			return err
		}
		if err = encodeVal(vw, elem.Value); err != nil {
			return keyedError(elem.Key, err)
		}
	}
	return dw.WriteDocumentEnd()
}

// keyedError records the path of the element that failed to encode.
func keyedError(key string, err error) error {
	if ee, ok := err.(*bson.EncodingError); ok {
		if ee.Key == "" {
			ee.Key = key
		} else {
			ee.Key = key + "." + ee.Key
		}
		return ee
	}
	return &bson.EncodingError{Key: key, Err: err}
}

func encodeArr(vw bson.ValueWriter, arr Arr) error {
	aw, err := vw.WriteArray()
	if err != nil {
		return err
	}
	for i, v := range arr {
		evw, err := aw.WriteArrayElement()
		if err != nil {
			return err
		}
		if err = encodeVal(evw, v); err != nil {
			return keyedError(strconv.Itoa(i), err)
		}
	}
	return aw.WriteArrayEnd()
}

func encodeVal(vw bson.ValueWriter, v Val) error {
	switch v.t {
	case bson.TypeDouble:
		return vw.WriteDouble(v.primitive.(float64))
	case bson.TypeString:
		return vw.WriteString(v.primitive.(string))
	case bson.TypeEmbeddedDocument:
		dw, err := vw.WriteDocument()
		if err != nil {
			return err
		}
		return encodeDoc(dw, v.primitive.(Doc))
	case bson.TypeArray:
		return encodeArr(vw, v.primitive.(Arr))
	case bson.TypeBinary:
		b := v.primitive.(binary)
		return vw.WriteBinaryWithSubtype(b.data, b.subtype)
	case bson.TypeUndefined:
		return vw.WriteUndefined()
	case bson.TypeObjectID:
		return vw.WriteObjectID(v.primitive.(bson.ObjectID))
	case bson.TypeBoolean:
		return vw.WriteBoolean(v.primitive.(bool))
	case bson.TypeDateTime:
		return vw.WriteDateTime(v.primitive.(int64))
	case bson.TypeNull:
		return vw.WriteNull()
	case bson.TypeRegex:
		r := v.primitive.(regex)
		return vw.WriteRegex(r.pattern, r.options)
	case bson.TypeDBPointer:
		p := v.primitive.(dbPointer)
		return vw.WriteDBPointer(p.ns, p.oid)
	case bson.TypeJavaScript:
		return vw.WriteJavascript(v.primitive.(string))
	case bson.TypeSymbol:
		return vw.WriteSymbol(v.primitive.(string))
	case bson.TypeCodeWithScope:
		c := v.primitive.(codeWithScope)
		dw, err := vw.WriteCodeWithScope(c.code)
		if err != nil {
			return err
		}
		return encodeDoc(dw, c.scope)
	case bson.TypeInt32:
		return vw.WriteInt32(v.primitive.(int32))
	case bson.TypeTimestamp:
		ts := v.primitive.(timestamp)
		return vw.WriteTimestamp(ts.t, ts.i)
	case bson.TypeInt64:
		return vw.WriteInt64(v.primitive.(int64))
	case bson.TypeDecimal128:
		return vw.WriteDecimal128(v.primitive.(bson.Decimal128))
	case bson.TypeMinKey:
		return vw.WriteMinKey()
	case bson.TypeMaxKey:
		return vw.WriteMaxKey()
	default:
		return errors.Errorf("invalid BSON type %s", v.t)
	}
}

func decodeDoc(dr bson.DocumentReader) (Doc, error) {
	doc := make(Doc, 0)
	for {
		key, vr, err := dr.ReadElement()
		if err == bson.ErrEOD {
			return doc, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := decodeVal(vr)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot decode element %q", key)
		}
		doc = append(doc, Elem{Key: key, Value: v})
	}
}

func decodeArr(vr bson.ValueReader) (Arr, error) {
	ar, err := vr.ReadArray()
	if err != nil {
		return nil, err
	}
	arr := make(Arr, 0)
	for {
		evr, err := ar.ReadValue()
		if err == bson.ErrEOA {
			return arr, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := decodeVal(evr)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot decode array index %d", len(arr))
		}
		arr = append(arr, v)
	}
}

func decodeVal(vr bson.ValueReader) (Val, error) {
	switch vr.Type() {
	case bson.TypeDouble:
		f64, err := vr.ReadDouble()
		return Double(f64), err
	case bson.TypeString:
		str, err := vr.ReadString()
		return String(str), err
	case bson.TypeEmbeddedDocument:
		dr, err := vr.ReadDocument()
		if err != nil {
			return Val{}, err
		}
		doc, err := decodeDoc(dr)
		return Document(doc), err
	case bson.TypeArray:
		arr, err := decodeArr(vr)
		return Array(arr), err
	case bson.TypeBinary:
		data, subtype, err := vr.ReadBinary()
		if err != nil {
			return Val{}, err
		}
		return Binary(subtype, append([]byte(nil), data...)), nil
	case bson.TypeUndefined:
		return Undefined(), vr.ReadUndefined()
	case bson.TypeObjectID:
		oid, err := vr.ReadObjectID()
		return ObjectID(oid), err
	case bson.TypeBoolean:
		b, err := vr.ReadBoolean()
		return Boolean(b), err
	case bson.TypeDateTime:
		dt, err := vr.ReadDateTime()
		return DateTime(dt), err
	case bson.TypeNull:
		return Null(), vr.ReadNull()
	case bson.TypeRegex:
		pattern, options, err := vr.ReadRegex()
		return Regex(pattern, options), err
	case bson.TypeDBPointer:
		ns, ptr, err := vr.ReadDBPointer()
		return DBPointer(ns, ptr), err
	case bson.TypeJavaScript:
		js, err := vr.ReadJavascript()
		return JavaScript(js), err
	case bson.TypeSymbol:
		sym, err := vr.ReadSymbol()
		return Symbol(sym), err
	case bson.TypeCodeWithScope:
		code, dr, err := vr.ReadCodeWithScope()
		if err != nil {
			return Val{}, err
		}
		scope, err := decodeDoc(dr)
		return CodeWithScope(code, scope), err
	case bson.TypeInt32:
		i32, err := vr.ReadInt32()
		return Int32(i32), err
	case bson.TypeTimestamp:
		t, i, err := vr.ReadTimestamp()
		return Timestamp(t, i), err
	case bson.TypeInt64:
		i64, err := vr.ReadInt64()
		return Int64(i64), err
	case bson.TypeDecimal128:
		d128, err := vr.ReadDecimal128()
		return Decimal128(d128), err
	case bson.TypeMinKey:
		return MinKey(), vr.ReadMinKey()
	case bson.TypeMaxKey:
		return MaxKey(), vr.ReadMaxKey()
	default:
		return Val{}, errors.Errorf("invalid BSON type %s", vr.Type())
	}
}
