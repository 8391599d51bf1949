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

// DefaultDiscriminatorElement is the element name used by the default discriminator conventions.
const DefaultDiscriminatorElement = "_t"

// DiscriminatorConvention decides how the actual type of a polymorphic value is recorded in a
// document and recovered from it.
type DiscriminatorConvention interface {
	// ElementName returns the name of the discriminator element.
	ElementName() string

	// Discriminator returns the discriminator value written for a value of type actual held in a
	// slot of type nominal.
	Discriminator(r *Registry, nominal, actual reflect.Type) (interface{}, error)

	// ActualType reads the discriminator of the document at vr and returns the type to decode
	// into. The reader is left at the position it had on entry. A nil type and nil error means
	// the document carries no discriminator.
	ActualType(r *Registry, vr BookmarkReader, nominal reflect.Type) (reflect.Type, error)
}

// ScalarDiscriminatorConvention writes the discriminator of the actual type as a single string.
type ScalarDiscriminatorConvention struct {
	Element string
}

// ElementName implements the DiscriminatorConvention interface.
func (c ScalarDiscriminatorConvention) ElementName() string {
	if c.Element == "" {
		return DefaultDiscriminatorElement
	}
	return c.Element
}

// Discriminator implements the DiscriminatorConvention interface.
func (c ScalarDiscriminatorConvention) Discriminator(r *Registry, _, actual reflect.Type) (interface{}, error) {
	cm, err := r.LookupClassMap(actual)
	if err != nil {
		return nil, err
	}
	return cm.Discriminator(), nil
}

// ActualType implements the DiscriminatorConvention interface.
func (c ScalarDiscriminatorConvention) ActualType(r *Registry, vr BookmarkReader, nominal reflect.Type) (reflect.Type, error) {
	return resolveDiscriminator(r, vr, c.ElementName(), nominal)
}

// HierarchicalDiscriminatorConvention writes an array of discriminators from the root class down
// to the actual type when the actual type derives from a root class, and a single string
// otherwise. On decode the most derived resolvable value wins.
type HierarchicalDiscriminatorConvention struct {
	Element string
}

// ElementName implements the DiscriminatorConvention interface.
func (c HierarchicalDiscriminatorConvention) ElementName() string {
	if c.Element == "" {
		return DefaultDiscriminatorElement
	}
	return c.Element
}

// Discriminator implements the DiscriminatorConvention interface.
func (c HierarchicalDiscriminatorConvention) Discriminator(r *Registry, _, actual reflect.Type) (interface{}, error) {
	cm, err := r.LookupClassMap(actual)
	if err != nil {
		return nil, err
	}
	if !cm.hasRootClass() || cm.rootClass {
		return cm.Discriminator(), nil
	}
	chain := cm.hierarchy()
	a := make(A, 0, len(chain))
	for _, c := range chain {
		a = append(a, c.Discriminator())
	}
	return a, nil
}

// ActualType implements the DiscriminatorConvention interface.
func (c HierarchicalDiscriminatorConvention) ActualType(r *Registry, vr BookmarkReader, nominal reflect.Type) (reflect.Type, error) {
	return resolveDiscriminator(r, vr, c.ElementName(), nominal)
}

// resolveDiscriminator peeks at the discriminator element and maps its value to a known type
// assignable to nominal. Array values are tried from the last entry to the first.
func resolveDiscriminator(r *Registry, vr BookmarkReader, name string, nominal reflect.Type) (reflect.Type, error) {
	rv, found, err := peekElement(vr, name)
	if err != nil || !found {
		return nil, err
	}

	values, err := discriminatorValues(rv)
	if err != nil {
		return nil, err
	}
	for i := len(values) - 1; i >= 0; i-- {
		if t, ok := r.discrim.resolve(r, values[i], nominal); ok {
			return t, nil
		}
	}

	var d interface{} = values
	if rv.Type == TypeString && len(values) == 1 {
		d = values[0]
	}
	return nil, &DiscriminatorResolutionError{Nominal: nominal, Discriminator: d}
}

func discriminatorValues(rv RawValue) ([]string, error) {
	vr := NewBSONValueReader(rv.Type, rv.Value)
	switch rv.Type {
	case TypeString:
		s, err := vr.ReadString()
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	case TypeArray:
		ar, err := vr.ReadArray()
		if err != nil {
			return nil, err
		}
		var values []string
		for {
			evr, err := ar.ReadValue()
			if errors.Is(err, ErrEOA) {
				return values, nil
			}
			if err != nil {
				return nil, err
			}
			if evr.Type() != TypeString {
				return nil, errors.Errorf("discriminator array entries must be strings, got %v", evr.Type())
			}
			s, err := evr.ReadString()
			if err != nil {
				return nil, err
			}
			values = append(values, s)
		}
	default:
		return nil, errors.Errorf("discriminator must be a string or an array of strings, got %v", rv.Type)
	}
}

// peekElement returns the value of the named element of the document at vr and restores the
// reader's position.
func peekElement(vr BookmarkReader, name string) (RawValue, bool, error) {
	bm := vr.Bookmark()
	defer vr.ReturnToBookmark(bm)

	dr, err := vr.ReadDocument()
	if err != nil {
		return RawValue{}, false, err
	}
	for {
		key, evr, err := dr.ReadElement()
		if errors.Is(err, ErrEOD) {
			return RawValue{}, false, nil
		}
		if err != nil {
			return RawValue{}, false, err
		}
		if key != name {
			if err := evr.Skip(); err != nil {
				return RawValue{}, false, err
			}
			continue
		}
		t, b, err := copyValueToBytes(evr)
		if err != nil {
			return RawValue{}, false, err
		}
		return RawValue{Type: t, Value: b}, true, nil
	}
}

// rewindable returns a reader over the same value that supports bookmarks, copying the value when
// vr does not.
func rewindable(vr ValueReader) (BookmarkReader, error) {
	if br, ok := vr.(BookmarkReader); ok {
		return br, nil
	}
	t, b, err := copyValueToBytes(vr)
	if err != nil {
		return nil, err
	}
	return NewBSONValueReader(t, b).(BookmarkReader), nil
}

// discriminatorRegistry is the known-type registry of a Registry.
type discriminatorRegistry struct {
	mu          sync.RWMutex
	known       map[reflect.Type][]reflect.Type
	knownActual map[reflect.Type]bool
	byValue     map[string][]reflect.Type
	conventions map[reflect.Type]DiscriminatorConvention

	// needs caches, per nominal type, whether values of that type carry a discriminator.
	needs sync.Map // map[reflect.Type]bool
}

func newDiscriminatorRegistry() *discriminatorRegistry {
	return &discriminatorRegistry{
		known:       make(map[reflect.Type][]reflect.Type),
		knownActual: make(map[reflect.Type]bool),
		byValue:     make(map[string][]reflect.Type),
		conventions: make(map[reflect.Type]DiscriminatorConvention),
	}
}

func (dr *discriminatorRegistry) clone() *discriminatorRegistry {
	dr.mu.RLock()
	defer dr.mu.RUnlock()

	c := newDiscriminatorRegistry()
	for k, v := range dr.known {
		c.known[k] = append([]reflect.Type(nil), v...)
	}
	for k := range dr.knownActual {
		c.knownActual[k] = true
	}
	for k, v := range dr.byValue {
		c.byValue[k] = append([]reflect.Type(nil), v...)
	}
	for k, v := range dr.conventions {
		c.conventions[k] = v
	}
	return c
}

// addValueLocked maps the discriminator of cm and of its base classes to their types.
func (dr *discriminatorRegistry) addValueLocked(cm *ClassMap) {
	for c := cm; c != nil; c = c.base {
		d := c.Discriminator()
		dup := false
		for _, t := range dr.byValue[d] {
			if t == c.t {
				dup = true
				break
			}
		}
		if !dup {
			dr.byValue[d] = append(dr.byValue[d], c.t)
		}
	}
}

func (dr *discriminatorRegistry) registerClassMap(cm *ClassMap) {
	dr.mu.Lock()
	dr.addValueLocked(cm)
	dr.mu.Unlock()

	for c := cm; c != nil; c = c.base {
		dr.needs.Delete(c.t)
	}
	dr.needs.Delete(tEmpty)
}

// resolve returns the first type registered for the discriminator value d that can be held by a
// slot of type nominal.
func (dr *discriminatorRegistry) resolve(r *Registry, d string, nominal reflect.Type) (reflect.Type, bool) {
	dr.mu.RLock()
	candidates := dr.byValue[d]
	dr.mu.RUnlock()

	for _, t := range candidates {
		if assignableToNominal(r, t, nominal) {
			return t, true
		}
	}
	return nil, false
}

// assignableToNominal reports whether a value of the struct type actual, or a pointer to it, can
// be held by a slot of type nominal.
func assignableToNominal(r *Registry, actual, nominal reflect.Type) bool {
	switch {
	case nominal == tEmpty:
		return true
	case nominal.Kind() == reflect.Interface:
		return actual.Implements(nominal) || reflect.PtrTo(actual).Implements(nominal)
	case nominal.Kind() == reflect.Struct:
		if actual == nominal {
			return true
		}
		cm, err := r.LookupClassMap(actual)
		return err == nil && cm.embeds(nominal)
	}
	return false
}

// needsDiscriminator reports whether values held by a slot of type nominal carry a discriminator.
// The result is computed once per nominal type.
func (dr *discriminatorRegistry) needsDiscriminator(r *Registry, nominal reflect.Type) bool {
	if v, ok := dr.needs.Load(nominal); ok {
		return v.(bool)
	}
	needs := dr.computeNeeds(r, nominal)
	v, _ := dr.needs.LoadOrStore(nominal, needs)
	return v.(bool)
}

func (dr *discriminatorRegistry) computeNeeds(r *Registry, nominal reflect.Type) bool {
	switch nominal.Kind() {
	case reflect.Interface:
		dr.mu.RLock()
		defer dr.mu.RUnlock()
		if nominal == tEmpty {
			return len(dr.knownActual) > 0
		}
		for t := range dr.knownActual {
			if t.Implements(nominal) || reflect.PtrTo(t).Implements(nominal) {
				return true
			}
		}
		return false
	case reflect.Struct:
		dr.mu.RLock()
		n := len(dr.known[nominal])
		dr.mu.RUnlock()
		if n > 0 {
			return true
		}
		cm, err := r.LookupClassMap(nominal)
		return err == nil && (cm.discriminatorRequired || cm.hasRootClass())
	}
	return false
}

func (dr *discriminatorRegistry) isKnown(t reflect.Type) bool {
	dr.mu.RLock()
	defer dr.mu.RUnlock()
	return dr.knownActual[t]
}

// RegisterKnownType registers actual as a type that may be held by slots of type nominal.
// nominal is an interface implemented by actual or by a pointer to actual, or a struct type that
// actual embeds. Registering a known type only clears the cached discriminator decisions of
// nominal, of the interfaces actual implements and of the base classes of actual.
func (r *Registry) RegisterKnownType(nominal, actual reflect.Type) error {
	if nominal == nil || actual == nil {
		return ErrNilType
	}
	if actual.Kind() == reflect.Ptr {
		actual = actual.Elem()
	}
	if nominal.Kind() == reflect.Ptr {
		nominal = nominal.Elem()
	}
	if actual.Kind() != reflect.Struct {
		return &MappingError{Type: actual, Reason: "known types must be structs"}
	}
	cm, err := r.LookupClassMap(actual)
	if err != nil {
		return err
	}
	if nominal.Kind() != reflect.Interface && nominal.Kind() != reflect.Struct {
		return &MappingError{Type: actual, Reason: fmt.Sprintf("%s is not an interface or a struct", nominal)}
	}
	if !assignableToNominal(r, actual, nominal) {
		return &MappingError{Type: actual, Reason: fmt.Sprintf("not assignable to %s", nominal)}
	}

	dr := r.discrim
	dr.mu.Lock()
	dup := false
	for _, t := range dr.known[nominal] {
		if t == actual {
			dup = true
			break
		}
	}
	if !dup {
		dr.known[nominal] = append(dr.known[nominal], actual)
	}
	dr.knownActual[actual] = true
	dr.addValueLocked(cm)
	dr.mu.Unlock()

	dr.needs.Delete(nominal)
	dr.needs.Delete(tEmpty)
	dr.needs.Range(func(k, _ interface{}) bool {
		if t := k.(reflect.Type); t.Kind() == reflect.Interface &&
			(actual.Implements(t) || reflect.PtrTo(actual).Implements(t)) {
			dr.needs.Delete(t)
		}
		return true
	})
	for c := cm.base; c != nil; c = c.base {
		dr.needs.Delete(c.t)
	}

	r.log().Print(logger.DebugLevel, logger.ComponentSerialization, "known type registered",
		"nominal", nominal.String(),
		"actual", actual.String(),
		"discriminator", cm.Discriminator(),
	)
	return nil
}

// KnownTypes returns the types registered as known types of nominal. For an interface type this
// includes every known type that implements it.
func (r *Registry) KnownTypes(nominal reflect.Type) []reflect.Type {
	dr := r.discrim
	dr.mu.RLock()
	defer dr.mu.RUnlock()

	out := append([]reflect.Type(nil), dr.known[nominal]...)
	if nominal.Kind() != reflect.Interface {
		return out
	}
	seen := make(map[reflect.Type]bool, len(out))
	for _, t := range out {
		seen[t] = true
	}
	for t := range dr.knownActual {
		if !seen[t] && (nominal == tEmpty || t.Implements(nominal) || reflect.PtrTo(t).Implements(nominal)) {
			out = append(out, t)
		}
	}
	return out
}

// RegisterDiscriminatorConvention sets the discriminator convention of t and of the types that
// embed it. The default is a HierarchicalDiscriminatorConvention using "_t".
func (r *Registry) RegisterDiscriminatorConvention(t reflect.Type, conv DiscriminatorConvention) {
	r.discrim.mu.Lock()
	r.discrim.conventions[t] = conv
	r.discrim.mu.Unlock()
}

// LookupDiscriminatorConvention returns the discriminator convention that applies to t.
func (r *Registry) LookupDiscriminatorConvention(t reflect.Type) DiscriminatorConvention {
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.discrim.mu.RLock()
	conv, ok := r.discrim.conventions[t]
	r.discrim.mu.RUnlock()
	if ok {
		return conv
	}
	if t != nil && t.Kind() == reflect.Struct {
		if cm, err := r.LookupClassMap(t); err == nil && cm.base != nil {
			return r.LookupDiscriminatorConvention(cm.base.t)
		}
	}
	return HierarchicalDiscriminatorConvention{}
}

// writesDiscriminator reports whether a value of the struct type actual held by a slot of type
// nominal is written with a discriminator.
func (r *Registry) writesDiscriminator(cm *ClassMap, nominal reflect.Type) bool {
	switch {
	case nominal == nil || nominal == cm.t:
		return cm.discriminatorRequired || cm.hasRootClass()
	case nominal == tEmpty:
		return cm.discriminatorRequired || cm.hasRootClass() || r.discrim.isKnown(cm.t)
	case nominal.Kind() == reflect.Interface:
		return true
	}
	return cm.discriminatorRequired || cm.hasRootClass()
}

// discriminatorConventionFor returns the convention registered for actual or one of its base
// classes, then the one registered for nominal, then the default.
func (r *Registry) discriminatorConventionFor(actual, nominal reflect.Type) DiscriminatorConvention {
	r.discrim.mu.RLock()
	_, forNominal := r.discrim.conventions[nominal]
	r.discrim.mu.RUnlock()

	for t := actual; t != nil; {
		r.discrim.mu.RLock()
		conv, ok := r.discrim.conventions[t]
		r.discrim.mu.RUnlock()
		if ok {
			return conv
		}
		cm, err := r.LookupClassMap(t)
		if err != nil || cm.base == nil {
			break
		}
		t = cm.base.t
	}
	if forNominal {
		return r.LookupDiscriminatorConvention(nominal)
	}
	return HierarchicalDiscriminatorConvention{}
}
