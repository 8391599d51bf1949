// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// ElementNameConvention chooses the element name of an automatically mapped member.
type ElementNameConvention interface {
	ElementName(sf reflect.StructField) string
}

// IDMemberConvention chooses the Go field that maps to the _id element of t. It returns false if
// t has no id member.
type IDMemberConvention interface {
	IDMember(t reflect.Type) (string, bool)
}

// DefaultValueConvention chooses the default value of a member. The default value is applied
// when the element is missing and is the value compared against when the member ignores
// defaults.
type DefaultValueConvention interface {
	DefaultValue(sf reflect.StructField) (interface{}, bool)
}

// IgnoreIfNullConvention reports whether a nil member is left out of the document.
type IgnoreIfNullConvention interface {
	IgnoreIfNull(sf reflect.StructField) bool
}

// IgnoreIfDefaultConvention reports whether a member holding its default value is left out of the
// document.
type IgnoreIfDefaultConvention interface {
	IgnoreIfDefault(sf reflect.StructField) bool
}

// ExtraElementsMemberConvention chooses the Go field of t that collects elements which do not
// match any member.
type ExtraElementsMemberConvention interface {
	ExtraElementsMember(t reflect.Type) (string, bool)
}

// SerializationOptionsConvention adjusts the serialization options of a mapped member, such as
// its representation.
type SerializationOptionsConvention interface {
	Apply(mm *MemberMap)
}

// ConventionProfile is a set of conventions. A nil field is unset and is filled from a profile
// with lower priority.
type ConventionProfile struct {
	ElementName          ElementNameConvention
	IDMember             IDMemberConvention
	DefaultValue         DefaultValueConvention
	IgnoreIfNull         IgnoreIfNullConvention
	IgnoreIfDefault      IgnoreIfDefaultConvention
	ExtraElements        ExtraElementsMemberConvention
	SerializationOptions SerializationOptionsConvention
}

// DefaultConventionProfile returns the profile used when no registered profile sets a concern.
func DefaultConventionProfile() *ConventionProfile {
	return &ConventionProfile{
		ElementName:          MemberNameElementNameConvention{},
		IDMember:             NamedIDMemberConvention{Names: []string{"ID", "Id"}},
		DefaultValue:         ZeroDefaultValueConvention{},
		IgnoreIfNull:         NeverIgnoreIfNullConvention{},
		IgnoreIfDefault:      NeverIgnoreIfDefaultConvention{},
		ExtraElements:        NamedExtraElementsMemberConvention{Names: []string{"ExtraElements"}},
		SerializationOptions: noSerializationOptionsConvention{},
	}
}

// Merge returns a copy of p in which each unset concern is taken from other. A concern already
// set in p is never replaced.
func (p *ConventionProfile) Merge(other *ConventionProfile) *ConventionProfile {
	merged := *p
	if other == nil {
		return &merged
	}
	if merged.ElementName == nil {
		merged.ElementName = other.ElementName
	}
	if merged.IDMember == nil {
		merged.IDMember = other.IDMember
	}
	if merged.DefaultValue == nil {
		merged.DefaultValue = other.DefaultValue
	}
	if merged.IgnoreIfNull == nil {
		merged.IgnoreIfNull = other.IgnoreIfNull
	}
	if merged.IgnoreIfDefault == nil {
		merged.IgnoreIfDefault = other.IgnoreIfDefault
	}
	if merged.ExtraElements == nil {
		merged.ExtraElements = other.ExtraElements
	}
	if merged.SerializationOptions == nil {
		merged.SerializationOptions = other.SerializationOptions
	}
	return &merged
}

// MemberNameElementNameConvention uses the Go field name as the element name.
type MemberNameElementNameConvention struct{}

// ElementName implements the ElementNameConvention interface.
func (MemberNameElementNameConvention) ElementName(sf reflect.StructField) string { return sf.Name }

// CamelCaseElementNameConvention lowercases the first rune of the Go field name.
type CamelCaseElementNameConvention struct{}

// ElementName implements the ElementNameConvention interface.
func (CamelCaseElementNameConvention) ElementName(sf reflect.StructField) string {
	r, size := utf8.DecodeRuneInString(sf.Name)
	return string(unicode.ToLower(r)) + sf.Name[size:]
}

// LowerCaseElementNameConvention lowercases the whole Go field name.
type LowerCaseElementNameConvention struct{}

// ElementName implements the ElementNameConvention interface.
func (LowerCaseElementNameConvention) ElementName(sf reflect.StructField) string {
	return strings.ToLower(sf.Name)
}

// NamedIDMemberConvention picks the first exported field whose name is in Names.
type NamedIDMemberConvention struct {
	Names []string
}

// IDMember implements the IDMemberConvention interface.
func (c NamedIDMemberConvention) IDMember(t reflect.Type) (string, bool) {
	return firstNamedField(t, c.Names)
}

// NamedExtraElementsMemberConvention picks the first exported field whose name is in Names.
type NamedExtraElementsMemberConvention struct {
	Names []string
}

// ExtraElementsMember implements the ExtraElementsMemberConvention interface.
func (c NamedExtraElementsMemberConvention) ExtraElementsMember(t reflect.Type) (string, bool) {
	return firstNamedField(t, c.Names)
}

func firstNamedField(t reflect.Type, names []string) (string, bool) {
	for _, name := range names {
		if sf, ok := t.FieldByName(name); ok && sf.IsExported() && len(sf.Index) == 1 {
			return name, true
		}
	}
	return "", false
}

// NeverIgnoreIfNullConvention always writes nil members as null.
type NeverIgnoreIfNullConvention struct{}

// IgnoreIfNull implements the IgnoreIfNullConvention interface.
func (NeverIgnoreIfNullConvention) IgnoreIfNull(reflect.StructField) bool { return false }

// AlwaysIgnoreIfNullConvention leaves nil members out of the document.
type AlwaysIgnoreIfNullConvention struct{}

// IgnoreIfNull implements the IgnoreIfNullConvention interface.
func (AlwaysIgnoreIfNullConvention) IgnoreIfNull(reflect.StructField) bool { return true }

// NeverIgnoreIfDefaultConvention always writes members that hold their default value.
type NeverIgnoreIfDefaultConvention struct{}

// IgnoreIfDefault implements the IgnoreIfDefaultConvention interface.
func (NeverIgnoreIfDefaultConvention) IgnoreIfDefault(reflect.StructField) bool { return false }

// AlwaysIgnoreIfDefaultConvention leaves members that hold their default value out of the
// document.
type AlwaysIgnoreIfDefaultConvention struct{}

// IgnoreIfDefault implements the IgnoreIfDefaultConvention interface.
func (AlwaysIgnoreIfDefaultConvention) IgnoreIfDefault(reflect.StructField) bool { return true }

// ZeroDefaultValueConvention leaves the default value of every member unset, so the zero value of
// the member's type is its default.
type ZeroDefaultValueConvention struct{}

// DefaultValue implements the DefaultValueConvention interface.
func (ZeroDefaultValueConvention) DefaultValue(reflect.StructField) (interface{}, bool) {
	return nil, false
}

// TypeRepresentationConvention sets the representation of members by their Go type or kind. An
// exact type entry wins over a kind entry. A non-zero Dictionary is applied to every map member.
//
// For example, to write every Decimal128 as a string and every map as an array of documents:
//
//	TypeRepresentationConvention{
//	    Types:      map[reflect.Type]Type{reflect.TypeOf(Decimal128{}): TypeString},
//	    Dictionary: DictionaryArrayOfDocuments,
//	}
type TypeRepresentationConvention struct {
	Types      map[reflect.Type]Type
	Kinds      map[reflect.Kind]Type
	Dictionary DictionaryRepresentation
}

// Apply implements the SerializationOptionsConvention interface.
func (c TypeRepresentationConvention) Apply(mm *MemberMap) {
	t := mm.Type()
	if rep, ok := c.Types[t]; ok {
		mm.representation = rep
	} else if rep, ok := c.Kinds[t.Kind()]; ok {
		mm.representation = rep
	}
	if c.Dictionary != 0 && t.Kind() == reflect.Map {
		mm.dictionary = c.Dictionary
	}
}

type noSerializationOptionsConvention struct{}

func (noSerializationOptionsConvention) Apply(*MemberMap) {}

type conventionEntry struct {
	name    string
	profile *ConventionProfile
	filter  func(reflect.Type) bool
}

// conventionRegistry holds the named convention profiles of a Registry.
type conventionRegistry struct {
	mu      sync.RWMutex
	entries []conventionEntry
}

func newConventionRegistry() *conventionRegistry {
	return &conventionRegistry{}
}

func (cr *conventionRegistry) clone() *conventionRegistry {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return &conventionRegistry{entries: append([]conventionEntry(nil), cr.entries...)}
}

func (cr *conventionRegistry) register(name string, profile *ConventionProfile, filter func(reflect.Type) bool) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.entries = append(cr.entries, conventionEntry{name: name, profile: profile, filter: filter})
}

func (cr *conventionRegistry) remove(name string) bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	kept := cr.entries[:0]
	removed := false
	for _, e := range cr.entries {
		if e.name == name {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	cr.entries = kept
	return removed
}

// lookup merges the profiles that apply to t. Later registrations take priority and the default
// profile fills whatever remains unset.
func (cr *conventionRegistry) lookup(t reflect.Type) *ConventionProfile {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	merged := &ConventionProfile{}
	for i := len(cr.entries) - 1; i >= 0; i-- {
		e := cr.entries[i]
		if e.filter != nil && !e.filter(t) {
			continue
		}
		merged = merged.Merge(e.profile)
	}
	return merged.Merge(DefaultConventionProfile())
}

// RegisterConventions registers a named convention profile for the struct types accepted by
// filter. A nil filter accepts every type. Profiles registered later take priority. Class maps
// that were built automatically are discarded so that they are rebuilt under the new
// conventions; explicitly registered class maps are kept.
func (r *Registry) RegisterConventions(name string, profile *ConventionProfile, filter func(reflect.Type) bool) {
	r.conventions.register(name, profile, filter)
	r.dropAutomaticClassMaps()
}

// RemoveConventions removes every profile registered under name. It reports whether any profile
// was removed.
func (r *Registry) RemoveConventions(name string) bool {
	removed := r.conventions.remove(name)
	if removed {
		r.dropAutomaticClassMaps()
	}
	return removed
}

// LookupConventions returns the merged convention profile that applies to t.
func (r *Registry) LookupConventions(t reflect.Type) *ConventionProfile {
	return r.conventions.lookup(t)
}
