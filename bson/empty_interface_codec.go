// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var defaultInterfaceCodec = &interfaceCodec{}

var _ ValueCodec = (*interfaceCodec)(nil)

// interfaceCodec is the Codec used for interface values, including interface{}. Documents
// decoded into an interface are resolved through the discriminator subsystem.
type interfaceCodec struct{}

// EncodeValue implements the ValueEncoder interface. The dynamic value is encoded with the
// interface type as its nominal type.
func (ic *interfaceCodec) EncodeValue(ec EncodeContext, vw ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Kind() != reflect.Interface {
		return ValueEncoderError{Name: "InterfaceEncodeValue", Kinds: []reflect.Kind{reflect.Interface}, Received: val}
	}

	if val.IsNil() {
		return vw.WriteNull()
	}
	elem := val.Elem()
	encoder, err := ec.LookupEncoder(elem.Type())
	if err != nil {
		return err
	}

	ec.nominal = val.Type()
	return encoder.EncodeValue(ec, vw, elem)
}

// DecodeValue implements the ValueDecoder interface.
func (ic *interfaceCodec) DecodeValue(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Kind() != reflect.Interface {
		return ValueDecoderError{Name: "InterfaceDecodeValue", Kinds: []reflect.Kind{reflect.Interface}, Received: val}
	}

	nominal := val.Type()
	switch vr.Type() {
	case TypeNull:
		val.Set(reflect.Zero(nominal))
		return vr.ReadNull()
	case TypeUndefined:
		if nominal != tEmpty {
			val.Set(reflect.Zero(nominal))
			return vr.ReadUndefined()
		}
	}

	if nominal == tEmpty {
		return ic.decodeEmpty(dc, vr, val)
	}

	if vr.Type() == TypeEmbeddedDocument || vr.Type() == Type(0) {
		return ic.decodeDiscriminated(dc, vr, val)
	}
	return ic.decodePrimitive(dc, vr, val)
}

func (ic *interfaceCodec) decodeEmpty(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	bt := vr.Type()
	isDocument := bt == TypeEmbeddedDocument || bt == Type(0)

	if isDocument && dc.discrim.needsDiscriminator(dc.Registry, tEmpty) {
		br, err := rewindable(vr)
		if err != nil {
			return err
		}
		vr = br
		conv := dc.LookupDiscriminatorConvention(tEmpty)
		actual, err := conv.ActualType(dc.Registry, br, tEmpty)
		var dre *DiscriminatorResolutionError
		switch {
		case errors.As(err, &dre):
			// Untyped documents may carry a foreign discriminator.
		case err != nil:
			return err
		case actual != nil:
			return ic.decodeInto(dc, vr, val, actual)
		}
	}

	var rtype reflect.Type
	if isDocument {
		rtype = dc.defaultDocumentType()
		if !dc.DefaultDocumentM {
			if t, err := dc.LookupTypeMapEntry(TypeEmbeddedDocument); err == nil {
				rtype = t
			}
		}
	} else {
		t, err := dc.LookupTypeMapEntry(bt)
		if err != nil {
			return err
		}
		rtype = t
	}
	if rtype == nil {
		val.Set(reflect.Zero(tEmpty))
		return vr.Skip()
	}
	return ic.decodeInto(dc, vr, val, rtype)
}

func (ic *interfaceCodec) decodeDiscriminated(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	nominal := val.Type()
	if !dc.discrim.needsDiscriminator(dc.Registry, nominal) {
		return &DiscriminatorResolutionError{Nominal: nominal}
	}

	br, err := rewindable(vr)
	if err != nil {
		return err
	}
	actual, err := dc.LookupDiscriminatorConvention(nominal).ActualType(dc.Registry, br, nominal)
	if err != nil {
		return err
	}
	if actual == nil {
		return &DiscriminatorResolutionError{Nominal: nominal}
	}
	return ic.decodeInto(dc, br, val, actual)
}

// primitiveShape returns the Go type a non-document BSON value is decoded into when the slot is a
// non-empty interface.
func primitiveShape(bt Type) (reflect.Type, bool) {
	switch bt {
	case TypeBoolean:
		return tBool, true
	case TypeDateTime:
		return tTime, true
	case TypeDouble:
		return tFloat64, true
	case TypeInt32:
		return tInt32, true
	case TypeInt64:
		return tInt64, true
	case TypeObjectID:
		return tOID, true
	case TypeString:
		return tString, true
	}
	return nil, false
}

func (ic *interfaceCodec) decodePrimitive(dc DecodeContext, vr ValueReader, val reflect.Value) error {
	nominal := val.Type()

	if vr.Type() == TypeBinary {
		data, subtype, err := vr.ReadBinary()
		if err != nil {
			return err
		}
		var v reflect.Value
		if (subtype == TypeBinaryUUID || subtype == TypeBinaryUUIDOld) && len(data) == 16 {
			var u uuid.UUID
			copy(u[:], data)
			v = reflect.ValueOf(u)
		} else {
			v = reflect.ValueOf(Binary{Subtype: subtype, Data: append([]byte(nil), data...)})
		}
		if !v.Type().Implements(nominal) {
			return errors.Errorf("cannot decode binary subtype %#x into %s", subtype, nominal)
		}
		val.Set(v)
		return nil
	}

	rtype, ok := primitiveShape(vr.Type())
	if !ok || !rtype.Implements(nominal) {
		t, err := dc.LookupTypeMapEntry(vr.Type())
		if err != nil || t == nil || !t.Implements(nominal) {
			return errors.Errorf("cannot decode %v into %s", vr.Type(), nominal)
		}
		rtype = t
	}
	return ic.decodeInto(dc, vr, val, rtype)
}

// decodeInto decodes vr as rtype and stores the result in the interface val. A struct type that
// only implements the interface through its pointer is stored as a pointer.
func (ic *interfaceCodec) decodeInto(dc DecodeContext, vr ValueReader, val reflect.Value, rtype reflect.Type) error {
	decoder, err := dc.LookupDecoder(rtype)
	if err != nil {
		return err
	}

	ptr := reflect.New(rtype)
	dc.nominal = rtype
	if err := decoder.DecodeValue(dc, vr, ptr.Elem()); err != nil {
		return err
	}

	elem := ptr.Elem()
	if !rtype.AssignableTo(val.Type()) {
		if !ptr.Type().AssignableTo(val.Type()) {
			return errors.Errorf("decoded %s is not assignable to %s", rtype, val.Type())
		}
		elem = ptr
	}
	val.Set(elem)
	return nil
}
