// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/ikmak/docwire/internal/logger"
	"github.com/pkg/errors"
)

// ErrNotInterface is returned when a provided type is not an interface.
var ErrNotInterface = errors.New("The provided type is not an interface")

// ErrNoTypeMapEntry is returned when there wasn't a type available for the provided BSON type.
type ErrNoTypeMapEntry struct {
	Type Type
}

func (entme ErrNoTypeMapEntry) Error() string {
	return "no type map entry found for " + entme.Type.String()
}

// DefaultRegistry is the default Registry. It contains the default codecs and the default class
// map conventions.
var DefaultRegistry = NewRegistryBuilder().Build()

type interfaceValueEncoder struct {
	i  reflect.Type
	ve ValueEncoder
}

type interfaceValueDecoder struct {
	i  reflect.Type
	vd ValueDecoder
}

// A RegistryBuilder is used to build a Registry. This type is not goroutine safe.
type RegistryBuilder struct {
	registry *Registry
}

// NewRegistryBuilder creates a new RegistryBuilder with the default encoders and decoders
// registered.
func NewRegistryBuilder() *RegistryBuilder {
	rb := NewEmptyRegistryBuilder()
	registerDefaultEncoders(rb)
	registerDefaultDecoders(rb)
	registerPrimitiveCodecs(rb)
	return rb
}

// NewEmptyRegistryBuilder creates a new RegistryBuilder with no codecs registered.
func NewEmptyRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{registry: newRegistry()}
}

// RegisterCodec registers the provided ValueCodec for the exact type t.
func (rb *RegistryBuilder) RegisterCodec(t reflect.Type, codec ValueCodec) *RegistryBuilder {
	rb.RegisterTypeEncoder(t, codec)
	rb.RegisterTypeDecoder(t, codec)
	return rb
}

// RegisterTypeEncoder will register the provided ValueEncoder for the provided type.
//
// The type will be used directly, so an encoder can be registered for a type and a different
// encoder can be registered for a pointer to that type.
//
// If the given type is an interface, the encoder will be called when marshaling a type that is
// that interface. It will not be called when marshaling a non-interface type that implements the
// interface. To get the latter behavior, call RegisterHookEncoder instead.
func (rb *RegistryBuilder) RegisterTypeEncoder(t reflect.Type, enc ValueEncoder) *RegistryBuilder {
	rb.registry.RegisterTypeEncoder(t, enc)
	return rb
}

// RegisterTypeDecoder will register the provided ValueDecoder for the provided type.
func (rb *RegistryBuilder) RegisterTypeDecoder(t reflect.Type, dec ValueDecoder) *RegistryBuilder {
	rb.registry.RegisterTypeDecoder(t, dec)
	return rb
}

// RegisterHookEncoder will register an encoder for the provided interface type t. This encoder
// will be called when marshaling a type if the type implements t or a pointer to the type
// implements t. If the provided type is not an interface (i.e. t.Kind() != reflect.Interface),
// this method will panic.
func (rb *RegistryBuilder) RegisterHookEncoder(t reflect.Type, enc ValueEncoder) *RegistryBuilder {
	rb.registry.RegisterHookEncoder(t, enc)
	return rb
}

// RegisterHookDecoder will register an decoder for the provided interface type t.
func (rb *RegistryBuilder) RegisterHookDecoder(t reflect.Type, dec ValueDecoder) *RegistryBuilder {
	rb.registry.RegisterHookDecoder(t, dec)
	return rb
}

// RegisterKindEncoder will register the provided ValueEncoder for the provided kind. It is used
// when no type or hook encoder applies.
func (rb *RegistryBuilder) RegisterKindEncoder(kind reflect.Kind, enc ValueEncoder) *RegistryBuilder {
	rb.registry.RegisterKindEncoder(kind, enc)
	return rb
}

// RegisterKindDecoder will register the provided ValueDecoder for the provided kind.
func (rb *RegistryBuilder) RegisterKindDecoder(kind reflect.Kind, dec ValueDecoder) *RegistryBuilder {
	rb.registry.RegisterKindDecoder(kind, dec)
	return rb
}

// RegisterTypeMapEntry will register the provided type to the BSON type. The primary usage for
// this mapping is decoding situations where an empty interface is used and a default type needs
// to be created and decoded into.
func (rb *RegistryBuilder) RegisterTypeMapEntry(bt Type, rt reflect.Type) *RegistryBuilder {
	rb.registry.RegisterTypeMapEntry(bt, rt)
	return rb
}

// Build creates a Registry from the current state of this RegistryBuilder. Later changes to the
// builder do not affect the returned Registry.
func (rb *RegistryBuilder) Build() *Registry {
	return rb.registry.clone()
}

// A Registry is used to store and retrieve codecs for types and encoders for kinds. A Registry
// also owns the class maps, convention profiles and known types used by the struct and interface
// codecs.
//
// Read operations on a Registry are safe to use concurrently with each other and with
// registrations. Lookups are memoised; a registration that could change an earlier result clears
// the affected memo.
type Registry struct {
	mu                sync.RWMutex
	typeEncoders      map[reflect.Type]ValueEncoder
	typeDecoders      map[reflect.Type]ValueDecoder
	interfaceEncoders []interfaceValueEncoder
	interfaceDecoders []interfaceValueDecoder
	typeMap           map[Type]reflect.Type

	kindEncoders *kindEncoderCache
	kindDecoders *kindDecoderCache

	encoderCache *typeEncoderCache
	decoderCache *typeDecoderCache

	classMaps   sync.Map // map[reflect.Type]*ClassMap
	conventions *conventionRegistry
	discrim     *discriminatorRegistry

	logger *logger.Logger
}

func newRegistry() *Registry {
	return &Registry{
		typeEncoders: make(map[reflect.Type]ValueEncoder),
		typeDecoders: make(map[reflect.Type]ValueDecoder),
		typeMap:      make(map[Type]reflect.Type),
		kindEncoders: new(kindEncoderCache),
		kindDecoders: new(kindDecoderCache),
		encoderCache: new(typeEncoderCache),
		decoderCache: new(typeDecoderCache),
		conventions:  newConventionRegistry(),
		discrim:      newDiscriminatorRegistry(),
	}
}

// NewRegistry creates a Registry with the default codecs registered.
func NewRegistry() *Registry {
	return NewRegistryBuilder().Build()
}

func (r *Registry) clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := newRegistry()
	for t, enc := range r.typeEncoders {
		c.typeEncoders[t] = enc
	}
	for t, dec := range r.typeDecoders {
		c.typeDecoders[t] = dec
	}
	c.interfaceEncoders = append(c.interfaceEncoders, r.interfaceEncoders...)
	c.interfaceDecoders = append(c.interfaceDecoders, r.interfaceDecoders...)
	for bt, rt := range r.typeMap {
		c.typeMap[bt] = rt
	}
	for k := reflect.Invalid; k <= reflect.UnsafePointer; k++ {
		if enc, ok := r.kindEncoders.Load(k); ok {
			c.kindEncoders.Store(k, enc)
		}
		if dec, ok := r.kindDecoders.Load(k); ok {
			c.kindDecoders.Store(k, dec)
		}
	}
	c.conventions = r.conventions.clone()
	c.discrim = r.discrim.clone()
	r.classMaps.Range(func(k, v interface{}) bool {
		if cm := v.(*ClassMap); cm.registered {
			c.classMaps.Store(k, cm)
		}
		return true
	})
	c.logger = r.logger
	return c
}

// SetLogger sets the logger used for class map and known type events. A nil logger disables
// logging.
func (r *Registry) SetLogger(l *logger.Logger) {
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
}

func (r *Registry) log() *logger.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// invalidate clears the memoised lookups. It must be called with r.mu held.
func (r *Registry) invalidate() {
	r.encoderCache.Clear()
	r.decoderCache.Clear()
}

// RegisterTypeEncoder registers enc for the exact type t. Type registrations win over every other
// lookup strategy.
func (r *Registry) RegisterTypeEncoder(t reflect.Type, enc ValueEncoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeEncoders[t] = enc
	r.invalidate()
}

// RegisterTypeDecoder registers dec for the exact type t.
func (r *Registry) RegisterTypeDecoder(t reflect.Type, dec ValueDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeDecoders[t] = dec
	r.invalidate()
}

// RegisterHookEncoder registers enc for every type that implements the interface type t.
func (r *Registry) RegisterHookEncoder(t reflect.Type, enc ValueEncoder) {
	if t.Kind() != reflect.Interface {
		panicStr := fmt.Errorf("RegisterHookEncoder expects a type with kind reflect.Interface, "+
			"got type %s with kind %s", t, t.Kind())
		panic(panicStr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.invalidate()
	for idx, encoder := range r.interfaceEncoders {
		if encoder.i == t {
			r.interfaceEncoders[idx].ve = enc
			return
		}
	}

	r.interfaceEncoders = append(r.interfaceEncoders, interfaceValueEncoder{i: t, ve: enc})
}

// RegisterHookDecoder registers dec for every type that implements the interface type t.
func (r *Registry) RegisterHookDecoder(t reflect.Type, dec ValueDecoder) {
	if t.Kind() != reflect.Interface {
		panicStr := fmt.Errorf("RegisterHookDecoder expects a type with kind reflect.Interface, "+
			"got type %s with kind %s", t, t.Kind())
		panic(panicStr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.invalidate()
	for idx, decoder := range r.interfaceDecoders {
		if decoder.i == t {
			r.interfaceDecoders[idx].vd = dec
			return
		}
	}

	r.interfaceDecoders = append(r.interfaceDecoders, interfaceValueDecoder{i: t, vd: dec})
}

// RegisterKindEncoder registers enc for every type of the given kind without a more specific
// encoder.
func (r *Registry) RegisterKindEncoder(kind reflect.Kind, enc ValueEncoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kindEncoders.Store(kind, enc)
	r.invalidate()
}

// RegisterKindDecoder registers dec for every type of the given kind without a more specific
// decoder.
func (r *Registry) RegisterKindDecoder(kind reflect.Kind, dec ValueDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kindDecoders.Store(kind, dec)
	r.invalidate()
}

// RegisterTypeMapEntry maps the BSON type bt onto the Go type rt for empty interface decoding.
// Mapping TypeEmbeddedDocument to M or D controls how untyped documents are decoded.
func (r *Registry) RegisterTypeMapEntry(bt Type, rt reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeMap[bt] = rt
}

// LookupTypeMapEntry inspects the registry's type map for a Go type for the corresponding BSON
// type. If no type is found, ErrNoTypeMapEntry is returned.
func (r *Registry) LookupTypeMapEntry(bt Type) (reflect.Type, error) {
	r.mu.RLock()
	t, ok := r.typeMap[bt]
	r.mu.RUnlock()
	if !ok || (t == nil && bt != TypeNull) {
		return nil, ErrNoTypeMapEntry{Type: bt}
	}
	return t, nil
}

// LookupEncoder returns the first matching encoder in the Registry. It uses the following lookup
// order:
//
// 1. An encoder registered for the exact type.
//
// 2. The built-in hooks for ValueMarshaler and Marshaler, then any hook encoder registered for an
// interface the type (or a pointer to it) implements, in registration order.
//
// 3. An encoder registered for the reflect.Kind of the value. Structs fall through to the class
// map codec.
//
// If no encoder is found, an error of type ErrNoEncoder is returned. The result, positive or
// negative, is memoised.
func (r *Registry) LookupEncoder(valueType reflect.Type) (ValueEncoder, error) {
	if valueType == nil {
		return nil, ErrNilType
	}
	if enc, found := r.encoderCache.Load(valueType); found {
		if _, none := enc.(noEncoder); none {
			return nil, ErrNoEncoder{Type: valueType}
		}
		return enc, nil
	}

	r.mu.RLock()
	enc, found := r.lookupEncoder(valueType)
	r.mu.RUnlock()
	if !found {
		r.encoderCache.Store(valueType, noEncoder{})
		return nil, ErrNoEncoder{Type: valueType}
	}
	return r.encoderCache.LoadOrStore(valueType, enc), nil
}

func (r *Registry) lookupEncoder(t reflect.Type) (ValueEncoder, bool) {
	if enc, ok := r.typeEncoders[t]; ok && enc != nil {
		return enc, true
	}
	if enc, ok := r.lookupInterfaceEncoder(t, true); ok {
		return enc, true
	}
	return r.kindEncoders.Load(t.Kind())
}

func (r *Registry) lookupInterfaceEncoder(valueType reflect.Type, allowAddr bool) (ValueEncoder, bool) {
	for _, ienc := range builtinHookEncoders {
		if enc, ok := r.matchHookEncoder(valueType, ienc, allowAddr); ok {
			return enc, true
		}
	}
	for _, ienc := range r.interfaceEncoders {
		if enc, ok := r.matchHookEncoder(valueType, ienc, allowAddr); ok {
			return enc, true
		}
	}
	return nil, false
}

func (r *Registry) matchHookEncoder(valueType reflect.Type, ienc interfaceValueEncoder, allowAddr bool) (ValueEncoder, bool) {
	if valueType.Implements(ienc.i) {
		return ienc.ve, true
	}
	if allowAddr && valueType.Kind() != reflect.Ptr && reflect.PtrTo(valueType).Implements(ienc.i) {
		// A pointer to this type implements the hook: use it when the value is addressable,
		// otherwise fall back to what the type would get without the pointer method set.
		defaultEnc, found := r.lookupInterfaceEncoder(valueType, false)
		if !found {
			defaultEnc, _ = r.kindEncoders.Load(valueType.Kind())
		}
		return newCondAddrEncoder(ienc.ve, defaultEnc), true
	}
	return nil, false
}

// LookupDecoder returns the first matching decoder in the Registry. It uses the same lookup order
// as LookupEncoder with the Unmarshaler and ValueUnmarshaler hooks.
func (r *Registry) LookupDecoder(valueType reflect.Type) (ValueDecoder, error) {
	if valueType == nil {
		return nil, ErrNilType
	}
	if dec, found := r.decoderCache.Load(valueType); found {
		if _, none := dec.(noDecoder); none {
			return nil, ErrNoDecoder{Type: valueType}
		}
		return dec, nil
	}

	r.mu.RLock()
	dec, found := r.lookupDecoder(valueType)
	r.mu.RUnlock()
	if !found {
		r.decoderCache.Store(valueType, noDecoder{})
		return nil, ErrNoDecoder{Type: valueType}
	}
	return r.decoderCache.LoadOrStore(valueType, dec), nil
}

func (r *Registry) lookupDecoder(t reflect.Type) (ValueDecoder, bool) {
	if dec, ok := r.typeDecoders[t]; ok && dec != nil {
		return dec, true
	}
	if dec, ok := r.lookupInterfaceDecoder(t, true); ok {
		return dec, true
	}
	return r.kindDecoders.Load(t.Kind())
}

func (r *Registry) lookupInterfaceDecoder(valueType reflect.Type, allowAddr bool) (ValueDecoder, bool) {
	for _, idec := range builtinHookDecoders {
		if dec, ok := r.matchHookDecoder(valueType, idec, allowAddr); ok {
			return dec, true
		}
	}
	for _, idec := range r.interfaceDecoders {
		if dec, ok := r.matchHookDecoder(valueType, idec, allowAddr); ok {
			return dec, true
		}
	}
	return nil, false
}

func (r *Registry) matchHookDecoder(valueType reflect.Type, idec interfaceValueDecoder, allowAddr bool) (ValueDecoder, bool) {
	if valueType.Implements(idec.i) {
		return idec.vd, true
	}
	if allowAddr && valueType.Kind() != reflect.Ptr && reflect.PtrTo(valueType).Implements(idec.i) {
		defaultDec, found := r.lookupInterfaceDecoder(valueType, false)
		if !found {
			defaultDec, _ = r.kindDecoders.Load(valueType.Kind())
		}
		return newCondAddrDecoder(idec.vd, defaultDec), true
	}
	return nil, false
}
