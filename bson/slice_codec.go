// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

var defaultSliceCodec = &sliceCodec{}

var _ ValueCodec = (*sliceCodec)(nil)

// sliceCodec is the Codec used for slice and array values. Byte slices and byte arrays are
// written as binary; slices of E are written as documents.
type sliceCodec struct{}

// EncodeValue implements the ValueEncoder interface.
func (sc *sliceCodec) EncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	switch val.Kind() {
	case reflect.Array:
	case reflect.Slice:
		if val.IsNil() && !ec.NilSliceAsEmpty {
			return vw.WriteNull()
		}
	default:
		return ValueEncoderError{Name: "SliceEncodeValue", Kinds: []reflect.Kind{reflect.Array, reflect.Slice}, Received: val}
	}

	elemType := val.Type().Elem()

	if elemType.Kind() == reflect.Uint8 {
		var data []byte
		if val.Kind() == reflect.Slice {
			data = val.Bytes()
		} else {
			data = make([]byte, val.Len())
			reflect.Copy(reflect.ValueOf(data), val)
		}
		if data == nil {
			data = []byte{}
		}
		return vw.WriteBinary(data)
	}

	if elemType == tE {
		d := make(D, val.Len())
		for i := range d {
			d[i] = val.Index(i).Interface().(E)
		}
		return dEncodeValue(ec, vw, reflect.ValueOf(d))
	}

	encoder, err := ec.LookupEncoder(elemType)
	if err != nil {
		return err
	}

	aw, err := vw.WriteArray()
	if err != nil {
		return err
	}

	ec.nominal = elemType
	for idx := 0; idx < val.Len(); idx++ {
		vw, err := aw.WriteArrayElement()
		if err != nil {
			return err
		}

		if err := encoder.EncodeValue(ec, vw, val.Index(idx)); err != nil {
			return wrapEncodeError(strconv.Itoa(idx), err)
		}
	}
	return aw.WriteArrayEnd()
}

// DecodeValue implements the ValueDecoder interface.
func (sc *sliceCodec) DecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || (val.Kind() != reflect.Slice && val.Kind() != reflect.Array) {
		return ValueDecoderError{Name: "SliceDecodeValue", Kinds: []reflect.Kind{reflect.Slice, reflect.Array}, Received: val}
	}

	elemType := val.Type().Elem()

	switch vr.Type() {
	case TypeArray:
	case TypeNull, TypeUndefined:
		val.Set(reflect.Zero(val.Type()))
		if vr.Type() == TypeNull {
			return vr.ReadNull()
		}
		return vr.ReadUndefined()
	case TypeBinary:
		if elemType.Kind() != reflect.Uint8 {
			return errors.Errorf("cannot decode %v into %s", vr.Type(), val.Type())
		}
		return decodeBinaryInto(vr, val)
	case TypeEmbeddedDocument:
		if elemType != tE {
			return errors.Errorf("cannot decode %v into %s", vr.Type(), val.Type())
		}
		d := reflect.New(tD).Elem()
		if err := dDecodeValue(dc, vr, d); err != nil {
			return err
		}
		return setElems(val, d)
	default:
		return errors.Errorf("cannot decode %v into %s", vr.Type(), val.Type())
	}

	ar, err := vr.ReadArray()
	if err != nil {
		return err
	}

	decoder, err := dc.LookupDecoder(elemType)
	if err != nil {
		return err
	}

	dc.nominal = elemType
	elems := make([]reflect.Value, 0)
	for idx := 0; ; idx++ {
		evr, err := ar.ReadValue()
		if errors.Is(err, ErrEOA) {
			break
		}
		if err != nil {
			return err
		}

		elem := reflect.New(elemType).Elem()
		if err := decoder.DecodeValue(dc, evr, elem); err != nil {
			return newDecodeError(strconv.Itoa(idx), err)
		}
		elems = append(elems, elem)
	}

	switch val.Kind() {
	case reflect.Slice:
		slc := reflect.MakeSlice(val.Type(), len(elems), len(elems))
		for idx, elem := range elems {
			slc.Index(idx).Set(elem)
		}
		val.Set(slc)
	case reflect.Array:
		if len(elems) > val.Len() {
			return errors.Errorf("more elements returned in array than can fit inside %s, got %v elements", val.Type(), len(elems))
		}
		val.Set(reflect.Zero(val.Type()))
		for idx, elem := range elems {
			val.Index(idx).Set(elem)
		}
	}
	return nil
}

func decodeBinaryInto(vr ValueReader, val reflect.Value) error {
	data, subtype, err := vr.ReadBinary()
	if err != nil {
		return err
	}
	if subtype != TypeBinaryGeneric && subtype != TypeBinaryBinaryOld {
		return errors.Errorf("cannot decode binary subtype %#x into %s", subtype, val.Type())
	}

	if val.Kind() == reflect.Slice {
		slc := reflect.MakeSlice(val.Type(), len(data), len(data))
		reflect.Copy(slc, reflect.ValueOf(data))
		val.Set(slc)
		return nil
	}

	if len(data) != val.Len() {
		return errors.Errorf("cannot decode binary of length %d into %s", len(data), val.Type())
	}
	reflect.Copy(val, reflect.ValueOf(data))
	return nil
}

// setElems copies the elements of d into the slice or array val.
func setElems(val reflect.Value, d reflect.Value) error {
	if val.Kind() == reflect.Array {
		if d.Len() > val.Len() {
			return errors.Errorf("more elements returned in array than can fit inside %s, got %v elements", val.Type(), d.Len())
		}
		for i := 0; i < d.Len(); i++ {
			val.Index(i).Set(d.Index(i))
		}
		return nil
	}
	val.Set(d.Convert(val.Type()))
	return nil
}
