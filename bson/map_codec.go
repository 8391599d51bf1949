// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"encoding"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var defaultMapCodec = &mapCodec{}

var _ ValueCodec = (*mapCodec)(nil)

// Element names used by the array-of-documents dictionary representation.
const (
	dictionaryKeyElement   = "k"
	dictionaryValueElement = "v"
)

var tTextMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
var tTextUnmarshaler = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// mapCodec is the Codec used for map values. A map is written as a sub-document by default and
// can be written as an array of [key, value] arrays or an array of {k, v} documents. Decoding
// accepts any of the three shapes.
type mapCodec struct{}

type mapEntry struct {
	key    reflect.Value
	keyStr string
	value  reflect.Value
}

// EncodeValue implements the ValueEncoder interface.
func (mc *mapCodec) EncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Kind() != reflect.Map {
		return ValueEncoderError{Name: "MapEncodeValue", Kinds: []reflect.Kind{reflect.Map}, Received: val}
	}

	if val.IsNil() && !ec.NilMapAsEmpty {
		return vw.WriteNull()
	}

	entries, validNames, err := mapEntries(val)
	if err != nil {
		return err
	}

	rep := ec.DictionaryRepresentation
	switch rep {
	case 0:
		rep = DictionaryDocument
	case DictionaryDynamic:
		rep = DictionaryDocument
		if !validNames {
			rep = DictionaryArrayOfArrays
		}
	}

	valueEnc, err := ec.LookupEncoder(val.Type().Elem())
	if err != nil {
		return err
	}

	ec = ec.memberless()
	ec.nominal = val.Type().Elem()

	switch rep {
	case DictionaryDocument:
		dw, err := vw.WriteDocument()
		if err != nil {
			return err
		}
		for _, e := range entries {
			evw, err := dw.WriteDocumentElement(e.keyStr)
			if err != nil {
				return err
			}
			if err := valueEnc.EncodeValue(ec, evw, e.value); err != nil {
				return wrapEncodeError(e.keyStr, err)
			}
		}
		return dw.WriteDocumentEnd()
	case DictionaryArrayOfArrays, DictionaryArrayOfDocuments:
		return mc.encodeArray(ec, vw, val.Type(), entries, valueEnc, rep)
	default:
		return newEncodingError("", "unsupported dictionary representation %v", rep)
	}
}

func (mc *mapCodec) encodeArray(ec EncodeContext, vw ValueWriter, mt reflect.Type, entries []mapEntry, valueEnc ValueEncoder, rep DictionaryRepresentation) error {
	keyEnc, err := ec.LookupEncoder(mt.Key())
	if err != nil {
		return err
	}
	keyCtx := ec
	keyCtx.nominal = mt.Key()

	aw, err := vw.WriteArray()
	if err != nil {
		return err
	}
	for i, e := range entries {
		evw, err := aw.WriteArrayElement()
		if err != nil {
			return err
		}

		var kvw, vvw ValueWriter
		var end func() error
		if rep == DictionaryArrayOfArrays {
			pair, err := evw.WriteArray()
			if err != nil {
				return err
			}
			if kvw, err = pair.WriteArrayElement(); err != nil {
				return err
			}
			if err := keyEnc.EncodeValue(keyCtx, kvw, e.key); err != nil {
				return wrapEncodeError(strconv.Itoa(i), err)
			}
			if vvw, err = pair.WriteArrayElement(); err != nil {
				return err
			}
			end = pair.WriteArrayEnd
		} else {
			pair, err := evw.WriteDocument()
			if err != nil {
				return err
			}
			if kvw, err = pair.WriteDocumentElement(dictionaryKeyElement); err != nil {
				return err
			}
			if err := keyEnc.EncodeValue(keyCtx, kvw, e.key); err != nil {
				return wrapEncodeError(strconv.Itoa(i), err)
			}
			if vvw, err = pair.WriteDocumentElement(dictionaryValueElement); err != nil {
				return err
			}
			end = pair.WriteDocumentEnd
		}

		if err := valueEnc.EncodeValue(ec, vvw, e.value); err != nil {
			return wrapEncodeError(strconv.Itoa(i), err)
		}
		if err := end(); err != nil {
			return err
		}
	}
	return aw.WriteArrayEnd()
}

// mapEntries returns the entries of val sorted by their string form. It also reports whether every
// key is usable as an element name.
func mapEntries(val reflect.Value) ([]mapEntry, bool, error) {
	entries := make([]mapEntry, 0, val.Len())
	valid := true
	iter := val.MapRange()
	for iter.Next() {
		k := iter.Key()
		ks, err := mapKeyString(k)
		if err != nil {
			return nil, false, err
		}
		if k.Kind() != reflect.String || !isValidElementName(ks) {
			valid = false
		}
		entries = append(entries, mapEntry{key: k, keyStr: ks, value: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].keyStr < entries[j].keyStr })
	return entries, valid, nil
}

// isValidElementName reports whether s can be stored as a field name without ambiguity for a
// server: it must not contain a dot or a NUL and must not start with a dollar sign.
func isValidElementName(s string) bool {
	return !strings.HasPrefix(s, "$") && !strings.ContainsAny(s, ".\x00")
}

func mapKeyString(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if k.Type().Implements(tTextMarshaler) {
		if k.Kind() == reflect.Ptr && k.IsNil() {
			return "", nil
		}
		b, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		return string(b), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Bool:
		return strconv.FormatBool(k.Bool()), nil
	}
	return "", &EncodingError{Err: errors.Errorf("unsupported map key type %s", k.Type())}
}

func mapKeyFromString(kt reflect.Type, s string) (reflect.Value, error) {
	if kt.Kind() == reflect.String {
		return reflect.ValueOf(s).Convert(kt), nil
	}
	if reflect.PtrTo(kt).Implements(tTextUnmarshaler) {
		k := reflect.New(kt)
		if err := k.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return emptyValue, err
		}
		return k.Elem(), nil
	}
	k := reflect.New(kt).Elem()
	switch kt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || k.OverflowInt(n) {
			return emptyValue, errors.Errorf("failed to unmarshal number key %q into %s", s, kt)
		}
		k.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || k.OverflowUint(n) {
			return emptyValue, errors.Errorf("failed to unmarshal number key %q into %s", s, kt)
		}
		k.SetUint(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return emptyValue, err
		}
		k.SetBool(b)
	default:
		return emptyValue, errors.Errorf("unsupported map key type %s", kt)
	}
	return k, nil
}

// DecodeValue implements the ValueDecoder interface.
func (mc *mapCodec) DecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	if val.Kind() != reflect.Map || (!val.CanSet() && val.IsNil()) {
		return ValueDecoderError{Name: "MapDecodeValue", Kinds: []reflect.Kind{reflect.Map}, Received: val}
	}

	switch vr.Type() {
	case Type(0), TypeEmbeddedDocument, TypeArray:
	case TypeNull:
		val.Set(reflect.Zero(val.Type()))
		return vr.ReadNull()
	case TypeUndefined:
		val.Set(reflect.Zero(val.Type()))
		return vr.ReadUndefined()
	default:
		return errors.Errorf("cannot decode %v into a %s", vr.Type(), val.Type())
	}

	if val.IsNil() {
		val.Set(reflect.MakeMap(val.Type()))
	}

	mt := val.Type()
	valueDec, err := dc.LookupDecoder(mt.Elem())
	if err != nil {
		return err
	}
	dc = dc.memberless()
	dc.nominal = mt.Elem()

	if vr.Type() != TypeArray {
		dr, err := vr.ReadDocument()
		if err != nil {
			return err
		}
		for {
			key, evr, err := dr.ReadElement()
			if errors.Is(err, ErrEOD) {
				return nil
			}
			if err != nil {
				return err
			}

			k, err := mapKeyFromString(mt.Key(), key)
			if err != nil {
				return newDecodeError(key, err)
			}
			elem := reflect.New(mt.Elem()).Elem()
			if err := valueDec.DecodeValue(dc, evr, elem); err != nil {
				return newDecodeError(key, err)
			}
			val.SetMapIndex(k, elem)
		}
	}

	keyDec, err := dc.LookupDecoder(mt.Key())
	if err != nil {
		return err
	}
	keyCtx := dc
	keyCtx.nominal = mt.Key()

	ar, err := vr.ReadArray()
	if err != nil {
		return err
	}
	for idx := 0; ; idx++ {
		evr, err := ar.ReadValue()
		if errors.Is(err, ErrEOA) {
			return nil
		}
		if err != nil {
			return err
		}

		k := reflect.New(mt.Key()).Elem()
		elem := reflect.New(mt.Elem()).Elem()
		if err := mc.decodeEntry(keyCtx, dc, keyDec, valueDec, evr, k, elem); err != nil {
			return newDecodeError(strconv.Itoa(idx), err)
		}
		val.SetMapIndex(k, elem)
	}
}

// decodeEntry reads one entry of an array-of-arrays or array-of-documents map.
func (mc *mapCodec) decodeEntry(keyCtx, dc DecodeContext, keyDec, valueDec ValueDecoder, vr ValueReader, k, elem reflect.Value) error {
	switch vr.Type() {
	case TypeArray:
		ar, err := vr.ReadArray()
		if err != nil {
			return err
		}
		n := 0
		for ; ; n++ {
			evr, err := ar.ReadValue()
			if errors.Is(err, ErrEOA) {
				break
			}
			if err != nil {
				return err
			}
			switch n {
			case 0:
				err = keyDec.DecodeValue(keyCtx, evr, k)
			case 1:
				err = valueDec.DecodeValue(dc, evr, elem)
			default:
				err = evr.Skip()
			}
			if err != nil {
				return err
			}
		}
		if n != 2 {
			return errors.Errorf("map entry array must have 2 elements, got %d", n)
		}
		return nil
	case TypeEmbeddedDocument:
		dr, err := vr.ReadDocument()
		if err != nil {
			return err
		}
		var sawKey, sawValue bool
		for {
			name, evr, err := dr.ReadElement()
			if errors.Is(err, ErrEOD) {
				break
			}
			if err != nil {
				return err
			}
			switch name {
			case dictionaryKeyElement:
				sawKey = true
				err = keyDec.DecodeValue(keyCtx, evr, k)
			case dictionaryValueElement:
				sawValue = true
				err = valueDec.DecodeValue(dc, evr, elem)
			default:
				return errors.Errorf("unexpected element %q in map entry document", name)
			}
			if err != nil {
				return newDecodeError(name, err)
			}
		}
		if !sawKey || !sawValue {
			return errors.New("map entry document must contain both k and v elements")
		}
		return nil
	}
	return errors.Errorf("cannot decode %v into a map entry", vr.Type())
}
