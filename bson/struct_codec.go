// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"
	"sort"

	"github.com/pkg/errors"
)

var defaultStructCodec = &structCodec{}

var _ ValueCodec = (*structCodec)(nil)

// structCodec is the Codec used for struct values. The layout of a struct comes from its frozen
// ClassMap.
type structCodec struct{}

// EncodeValue implements the ValueEncoder interface. Elements are written in class map order:
// the id member, the discriminator, the remaining members and finally the extra elements.
func (sc *structCodec) EncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Kind() != reflect.Struct {
		return ValueEncoderError{Name: "StructEncodeValue", Kinds: []reflect.Kind{reflect.Struct}, Received: val}
	}

	cm, err := ec.LookupClassMap(val.Type())
	if err != nil {
		return err
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return err
	}

	if cm.idMember != nil {
		if err := sc.encodeMember(ec, dw, val, cm.idMember); err != nil {
			return err
		}
	}

	if ec.writesDiscriminator(cm, ec.nominal) {
		conv := ec.discriminatorConventionFor(cm.t, ec.nominal)
		d, err := conv.Discriminator(ec.Registry, ec.nominal, cm.t)
		if err != nil {
			return err
		}
		evw, err := dw.WriteDocumentElement(conv.ElementName())
		if err != nil {
			return err
		}
		if err := encodeInterfaceValue(ec.memberless(), evw, d); err != nil {
			return wrapEncodeError(conv.ElementName(), err)
		}
	}

	for _, mm := range cm.members {
		if mm == cm.idMember {
			continue
		}
		if err := sc.encodeMember(ec, dw, val, mm); err != nil {
			return err
		}
	}

	if cm.extraMember != nil {
		if err := sc.encodeExtraElements(ec.memberless(), dw, cm.extraMember.fieldOf(val)); err != nil {
			return err
		}
	}

	return dw.WriteDocumentEnd()
}

func (sc *structCodec) encodeMember(ec EncodeContext, dw DocumentWriter, val reflect.Value, mm *MemberMap) error {
	fv := mm.fieldOf(val)
	if mm.ignoreIfNull && isNullValue(fv) {
		return nil
	}
	if mm.ignoreIfDefault && mm.isDefault(fv, ec.OmitZeroStruct) {
		return nil
	}

	enc := mm.encoder
	if enc == nil {
		var err error
		enc, err = ec.LookupEncoder(fv.Type())
		if err != nil {
			return wrapEncodeError(mm.elementName, err)
		}
	}

	mec := ec.memberless()
	mec.MinSize = ec.MinSize || mm.minSize
	mec.Representation = mm.representation
	mec.DictionaryRepresentation = mm.dictionary
	mec.AllowOverflow = mm.allowOverflow
	mec.AllowTruncation = mm.allowTruncation
	mec.nominal = fv.Type()

	evw, err := dw.WriteDocumentElement(mm.elementName)
	if err != nil {
		return err
	}
	if err := enc.EncodeValue(mec, evw, fv); err != nil {
		return wrapEncodeError(mm.elementName, err)
	}
	return nil
}

func (sc *structCodec) encodeExtraElements(ec EncodeContext, dw DocumentWriter, fv reflect.Value) error {
	if fv.Type() == tD {
		for _, e := range fv.Interface().(D) {
			if err := encodeElement(ec, dw, e); err != nil {
				return wrapEncodeError(e.Key, err)
			}
		}
		return nil
	}

	if fv.Len() == 0 {
		return nil
	}
	keys := make([]string, 0, fv.Len())
	iter := fv.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key().String())
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fv.MapIndex(reflect.ValueOf(k).Convert(fv.Type().Key()))
		if err := encodeElement(ec, dw, E{Key: k, Value: v.Interface()}); err != nil {
			return wrapEncodeError(k, err)
		}
	}
	return nil
}

// encodeInterfaceValue encodes v as if it were held by an interface{}.
func encodeInterfaceValue(ec EncodeContext, vw ValueWriter, v interface{}) error {
	if v == nil {
		return vw.WriteNull()
	}
	enc, err := ec.LookupEncoder(reflect.TypeOf(v))
	if err != nil {
		return err
	}
	ec.nominal = tEmpty
	return enc.EncodeValue(ec, vw, reflect.ValueOf(v))
}

// DecodeValue implements the ValueDecoder interface. Members missing from the document keep their
// current value unless the member has a default value; a missing required member fails.
func (sc *structCodec) DecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Kind() != reflect.Struct {
		return ValueDecoderError{Name: "StructDecodeValue", Kinds: []reflect.Kind{reflect.Struct}, Received: val}
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
		return errors.Errorf("cannot decode %v into %s", vr.Type(), val.Type())
	}

	cm, err := dc.LookupClassMap(val.Type())
	if err != nil {
		return err
	}

	discName := dc.discriminatorConventionFor(cm.t, dc.nominal).ElementName()
	_, discIsMember := cm.byElement[discName]

	dr, err := vr.ReadDocument()
	if err != nil {
		return err
	}

	seen := make(map[*MemberMap]bool, len(cm.members))
	var extra D
	for {
		name, evr, err := dr.ReadElement()
		if errors.Is(err, ErrEOD) {
			break
		}
		if err != nil {
			return err
		}

		if name == discName && !discIsMember {
			if err := evr.Skip(); err != nil {
				return err
			}
			continue
		}

		mm, ok := cm.byElement[name]
		if !ok {
			switch {
			case cm.extraMember != nil:
				elem := reflect.New(tEmpty).Elem()
				edc := dc.memberless()
				edc.nominal = tEmpty
				if err := defaultInterfaceCodec.DecodeValue(edc, evr, elem); err != nil {
					return newDecodeError(name, err)
				}
				extra = append(extra, E{Key: name, Value: elem.Interface()})
			case cm.ignoreExtraElements:
				if err := evr.Skip(); err != nil {
					return err
				}
			default:
				return newDecodeError(name, errors.Errorf("element does not match any member of %s", cm.t))
			}
			continue
		}

		if err := sc.decodeMember(dc, evr, val, mm); err != nil {
			return newDecodeError(name, err)
		}
		seen[mm] = true
	}

	for _, mm := range cm.members {
		if seen[mm] {
			continue
		}
		if mm.required {
			return newDecodeError(mm.elementName, errors.Errorf("missing required element for member %s", mm.field.Name))
		}
		if mm.defaultValue.IsValid() {
			mm.fieldOf(val).Set(mm.defaultValue)
		}
	}

	if cm.extraMember != nil && len(extra) > 0 {
		setExtraElements(cm.extraMember.fieldOf(val), extra)
	}
	return nil
}

func (sc *structCodec) decodeMember(dc DecodeContext, vr ValueReader, val reflect.Value, mm *MemberMap) error {
	field := mm.fieldOf(val)

	dec := mm.decoder
	if dec == nil {
		var err error
		dec, err = dc.LookupDecoder(field.Type())
		if err != nil {
			return err
		}
	}

	mdc := dc.memberless()
	mdc.AllowOverflow = mm.allowOverflow
	mdc.Truncate = dc.Truncate || mm.allowTruncation
	mdc.nominal = field.Type()
	return dec.DecodeValue(mdc, vr, field)
}

func setExtraElements(field reflect.Value, extra D) {
	if field.Type() == tD {
		field.Set(reflect.ValueOf(extra))
		return
	}
	if field.IsNil() {
		field.Set(reflect.MakeMapWithSize(field.Type(), len(extra)))
	}
	kt := field.Type().Key()
	for _, e := range extra {
		v := reflect.ValueOf(e.Value)
		if e.Value == nil {
			v = reflect.Zero(tEmpty)
		}
		field.SetMapIndex(reflect.ValueOf(e.Key).Convert(kt), v)
	}
}
