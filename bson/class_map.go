// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/ikmak/docwire/internal/logger"
)

// IDElementName is the element name of the id member.
const IDElementName = "_id"

type memberSetting uint16

const (
	setElementName memberSetting = 1 << iota
	setIgnoreIfNull
	setIgnoreIfDefault
	setDefaultValue
	setRequired
	setRepresentation
	setDictionary
	setAllowOverflow
	setAllowTruncation
	setMinSize
)

// MemberMap describes how one struct field maps to a document element.
type MemberMap struct {
	cm    *ClassMap
	field reflect.StructField
	index []int

	elementName     string
	ignoreIfNull    bool
	ignoreIfDefault bool
	required        bool
	defaultValue    reflect.Value
	representation  Type
	dictionary      DictionaryRepresentation
	allowOverflow   bool
	allowTruncation bool
	minSize         bool
	encoder         ValueEncoder
	decoder         ValueDecoder

	set      memberSetting
	explicit bool
}

func (mm *MemberMap) checkMutable() {
	if mm.cm != nil && mm.cm.isFrozen() {
		panic(fmt.Sprintf("class map for %s is frozen", mm.cm.t))
	}
}

// Name returns the Go field name of the member.
func (mm *MemberMap) Name() string { return mm.field.Name }

// Type returns the Go type of the member.
func (mm *MemberMap) Type() reflect.Type { return mm.field.Type }

// ElementName returns the document element name of the member.
func (mm *MemberMap) ElementName() string { return mm.elementName }

// IgnoreIfNull reports whether a nil member is left out of the document.
func (mm *MemberMap) IgnoreIfNull() bool { return mm.ignoreIfNull }

// IgnoreIfDefault reports whether a member holding its default value is left out of the
// document.
func (mm *MemberMap) IgnoreIfDefault() bool { return mm.ignoreIfDefault }

// Required reports whether decoding fails when the element is missing.
func (mm *MemberMap) Required() bool { return mm.required }

// DefaultValue returns the explicit default value of the member, if one is set.
func (mm *MemberMap) DefaultValue() (interface{}, bool) {
	if !mm.defaultValue.IsValid() {
		return nil, false
	}
	return mm.defaultValue.Interface(), true
}

// Representation returns the BSON type the member is written as. Zero means the natural type.
func (mm *MemberMap) Representation() Type { return mm.representation }

// DictionaryRepresentation returns the map layout of the member.
func (mm *MemberMap) DictionaryRepresentation() DictionaryRepresentation { return mm.dictionary }

// SetElementName sets the document element name of the member.
func (mm *MemberMap) SetElementName(name string) *MemberMap {
	mm.checkMutable()
	mm.elementName = name
	mm.set |= setElementName
	return mm
}

// SetIgnoreIfNull sets whether a nil member is left out of the document.
func (mm *MemberMap) SetIgnoreIfNull(b bool) *MemberMap {
	mm.checkMutable()
	mm.ignoreIfNull = b
	mm.set |= setIgnoreIfNull
	return mm
}

// SetIgnoreIfDefault sets whether a member holding its default value is left out of the
// document.
func (mm *MemberMap) SetIgnoreIfDefault(b bool) *MemberMap {
	mm.checkMutable()
	mm.ignoreIfDefault = b
	mm.set |= setIgnoreIfDefault
	return mm
}

// SetDefaultValue sets the value assigned when the element is missing. v must be convertible to
// the member's type.
func (mm *MemberMap) SetDefaultValue(v interface{}) *MemberMap {
	mm.checkMutable()
	mm.defaultValue = reflect.ValueOf(v)
	mm.set |= setDefaultValue
	return mm
}

// SetRequired sets whether decoding fails when the element is missing.
func (mm *MemberMap) SetRequired(b bool) *MemberMap {
	mm.checkMutable()
	mm.required = b
	mm.set |= setRequired
	return mm
}

// SetRepresentation sets the BSON type the member is written as.
func (mm *MemberMap) SetRepresentation(t Type) *MemberMap {
	mm.checkMutable()
	mm.representation = t
	mm.set |= setRepresentation
	return mm
}

// SetDictionaryRepresentation sets the layout used for a map member.
func (mm *MemberMap) SetDictionaryRepresentation(dr DictionaryRepresentation) *MemberMap {
	mm.checkMutable()
	mm.dictionary = dr
	mm.set |= setDictionary
	return mm
}

// SetAllowOverflow sets whether numeric conversions of the member may overflow.
func (mm *MemberMap) SetAllowOverflow(b bool) *MemberMap {
	mm.checkMutable()
	mm.allowOverflow = b
	mm.set |= setAllowOverflow
	return mm
}

// SetAllowTruncation sets whether numeric conversions of the member may lose precision.
func (mm *MemberMap) SetAllowTruncation(b bool) *MemberMap {
	mm.checkMutable()
	mm.allowTruncation = b
	mm.set |= setAllowTruncation
	return mm
}

// SetMinSize sets whether an integer member is written as int32 when it fits.
func (mm *MemberMap) SetMinSize(b bool) *MemberMap {
	mm.checkMutable()
	mm.minSize = b
	mm.set |= setMinSize
	return mm
}

// SetEncoder sets a custom encoder for the member.
func (mm *MemberMap) SetEncoder(enc ValueEncoder) *MemberMap {
	mm.checkMutable()
	mm.encoder = enc
	return mm
}

// SetDecoder sets a custom decoder for the member.
func (mm *MemberMap) SetDecoder(dec ValueDecoder) *MemberMap {
	mm.checkMutable()
	mm.decoder = dec
	return mm
}

// SetCodec sets a custom encoder and decoder for the member.
func (mm *MemberMap) SetCodec(codec ValueCodec) *MemberMap {
	return mm.SetEncoder(codec).SetDecoder(codec)
}

// fieldOf returns the member's field of the struct value v.
func (mm *MemberMap) fieldOf(v reflect.Value) reflect.Value {
	return v.FieldByIndex(mm.index)
}

// withPrefix returns a copy of mm whose index is relative to an outer struct.
func (mm *MemberMap) withPrefix(cm *ClassMap, prefix []int) *MemberMap {
	c := *mm
	c.cm = cm
	c.index = append(append(make([]int, 0, len(prefix)+len(mm.index)), prefix...), mm.index...)
	return &c
}

// resolve fills every setting that was not set explicitly from the conventions and then the struct
// tags.
func (mm *MemberMap) resolve(profile *ConventionProfile) {
	explicit := *mm

	mm.elementName = profile.ElementName.ElementName(mm.field)
	mm.ignoreIfNull = profile.IgnoreIfNull.IgnoreIfNull(mm.field)
	mm.ignoreIfDefault = profile.IgnoreIfDefault.IgnoreIfDefault(mm.field)
	mm.defaultValue = emptyValue
	if v, ok := profile.DefaultValue.DefaultValue(mm.field); ok {
		mm.defaultValue = reflect.ValueOf(v)
	}
	mm.representation = 0
	mm.dictionary = 0
	profile.SerializationOptions.Apply(mm)

	tags := parseStructTags(mm.field)
	if tags.Name != "" {
		mm.elementName = tags.Name
	}
	if tags.OmitEmpty {
		mm.ignoreIfDefault = true
	}
	if tags.OmitNull {
		mm.ignoreIfNull = true
	}
	if tags.Required {
		mm.required = true
	}
	if tags.MinSize {
		mm.minSize = true
	}
	if tags.Truncate {
		mm.allowTruncation = true
	}

	if explicit.set&setElementName != 0 {
		mm.elementName = explicit.elementName
	}
	if explicit.set&setIgnoreIfNull != 0 {
		mm.ignoreIfNull = explicit.ignoreIfNull
	}
	if explicit.set&setIgnoreIfDefault != 0 {
		mm.ignoreIfDefault = explicit.ignoreIfDefault
	}
	if explicit.set&setDefaultValue != 0 {
		mm.defaultValue = explicit.defaultValue
	}
	if explicit.set&setRequired != 0 {
		mm.required = explicit.required
	}
	if explicit.set&setRepresentation != 0 {
		mm.representation = explicit.representation
	}
	if explicit.set&setDictionary != 0 {
		mm.dictionary = explicit.dictionary
	}
	if explicit.set&setAllowOverflow != 0 {
		mm.allowOverflow = explicit.allowOverflow
	}
	if explicit.set&setAllowTruncation != 0 {
		mm.allowTruncation = explicit.allowTruncation
	}
	if explicit.set&setMinSize != 0 {
		mm.minSize = explicit.minSize
	}
}

// validate checks the settings of a resolved member.
func (mm *MemberMap) validate() error {
	fail := func(format string, args ...interface{}) error {
		return &MappingError{Type: mm.cm.t, Member: mm.field.Name, Reason: fmt.Sprintf(format, args...)}
	}

	if !mm.field.IsExported() {
		return fail("member is not exported and cannot be set")
	}
	if mm.encoder == nil || mm.decoder == nil {
		switch mm.field.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
			return fail("members of kind %s cannot be mapped", mm.field.Type.Kind())
		}
	}
	if strings.IndexByte(mm.elementName, 0x00) >= 0 {
		return fail("element name %q contains a null byte", mm.elementName)
	}
	if mm.defaultValue.IsValid() {
		dv := mm.defaultValue
		switch {
		case dv.Type().AssignableTo(mm.field.Type):
		case dv.Type().ConvertibleTo(mm.field.Type):
			mm.defaultValue = dv.Convert(mm.field.Type)
		default:
			return fail("default value of type %s is not assignable to %s", dv.Type(), mm.field.Type)
		}
	}
	return nil
}

// isDefault reports whether v holds the member's default value.
func (mm *MemberMap) isDefault(v reflect.Value, omitZeroStruct bool) bool {
	if mm.defaultValue.IsValid() {
		return reflect.DeepEqual(v.Interface(), mm.defaultValue.Interface())
	}
	return isEmptyValue(v, omitZeroStruct)
}

func isNullValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func isEmptyValue(v reflect.Value, omitZeroStruct bool) bool {
	if z, ok := v.Interface().(Zeroer); ok && (v.Kind() != reflect.Ptr || !v.IsNil()) {
		return z.IsZero()
	}
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	case reflect.Struct:
		if omitZeroStruct {
			return v.IsZero()
		}
		return false
	}
	return false
}

// ClassMap describes how a struct type maps to a document. A ClassMap is configured, then frozen
// into an immutable ordered member map the first time it is registered or used. Configuration
// methods panic on a frozen ClassMap.
type ClassMap struct {
	t reflect.Type

	mu       sync.Mutex
	autoMap  bool
	declared []*MemberMap
	unmapped map[string]bool
	errs     []error

	idName                string
	extraName             string
	discriminator         string
	discriminatorSet      bool
	discriminatorRequired bool
	rootClass             bool
	ignoreExtraElements   bool
	knownTypes            []reflect.Type

	frozen      bool
	err         error
	registered  bool
	base        *ClassMap
	members     []*MemberMap
	idMember    *MemberMap
	extraMember *MemberMap
	byElement   map[string]*MemberMap
}

// NewClassMap returns an unfrozen ClassMap for the struct type t. A pointer to a struct type is
// accepted and dereferenced.
func NewClassMap(t reflect.Type) *ClassMap {
	cm := &ClassMap{t: t, unmapped: make(map[string]bool), ignoreExtraElements: true}
	if t != nil && t.Kind() == reflect.Ptr {
		cm.t = t.Elem()
	}
	if cm.t == nil || cm.t.Kind() != reflect.Struct {
		cm.errs = append(cm.errs, &MappingError{Type: t, Reason: "class maps can only be built for struct types"})
	}
	return cm
}

func (cm *ClassMap) isFrozen() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.frozen
}

func (cm *ClassMap) checkMutable() {
	if cm.isFrozen() {
		panic(fmt.Sprintf("class map for %s is frozen", cm.t))
	}
}

// Type returns the struct type described by cm.
func (cm *ClassMap) Type() reflect.Type { return cm.t }

// AutoMap maps every exported field of the struct under the active conventions when cm is frozen.
// Members mapped explicitly keep their explicit settings.
func (cm *ClassMap) AutoMap() *ClassMap {
	cm.checkMutable()
	cm.autoMap = true
	return cm
}

// MapMember maps the Go field name and returns its MemberMap for configuration.
func (cm *ClassMap) MapMember(name string) *MemberMap {
	cm.checkMutable()
	for _, mm := range cm.declared {
		if mm.field.Name == name {
			return mm
		}
	}

	mm := &MemberMap{cm: cm, explicit: true}
	sf, ok := cm.fieldByName(name)
	if !ok {
		cm.errs = append(cm.errs, &MappingError{Type: cm.t, Member: name, Reason: "no such field"})
		mm.field = reflect.StructField{Name: name, Type: tEmpty}
		return mm
	}
	mm.field = sf
	mm.index = sf.Index
	cm.declared = append(cm.declared, mm)
	delete(cm.unmapped, name)
	return mm
}

// UnmapMember removes the Go field name from the mapping.
func (cm *ClassMap) UnmapMember(name string) *ClassMap {
	cm.checkMutable()
	cm.unmapped[name] = true
	for i, mm := range cm.declared {
		if mm.field.Name == name {
			cm.declared = append(cm.declared[:i], cm.declared[i+1:]...)
			break
		}
	}
	return cm
}

// MapIDMember maps the Go field name as the id member, written as the _id element.
func (cm *ClassMap) MapIDMember(name string) *MemberMap {
	mm := cm.MapMember(name)
	cm.idName = name
	return mm
}

// MapExtraElementsMember maps the Go field name as the member that collects the elements which do
// not match any other member. Its type must be D, M or map[string]interface{}.
func (cm *ClassMap) MapExtraElementsMember(name string) *MemberMap {
	mm := cm.MapMember(name)
	cm.extraName = name
	return mm
}

// SetDiscriminator sets the discriminator value of the type. The default is the type's name.
func (cm *ClassMap) SetDiscriminator(d string) *ClassMap {
	cm.checkMutable()
	cm.discriminator = d
	cm.discriminatorSet = true
	return cm
}

// SetDiscriminatorRequired sets whether the discriminator is written even when the actual type
// equals the nominal type.
func (cm *ClassMap) SetDiscriminatorRequired(b bool) *ClassMap {
	cm.checkMutable()
	cm.discriminatorRequired = b
	return cm
}

// SetIsRootClass marks the type as the root of a hierarchy. Hierarchical discriminators list the
// discriminators from the root class down to the actual type.
func (cm *ClassMap) SetIsRootClass(b bool) *ClassMap {
	cm.checkMutable()
	cm.rootClass = b
	return cm
}

// SetIgnoreExtraElements sets whether elements that match no member are ignored. When false and
// there is no extra elements member, decoding such a document fails.
func (cm *ClassMap) SetIgnoreExtraElements(b bool) *ClassMap {
	cm.checkMutable()
	cm.ignoreExtraElements = b
	return cm
}

// AddKnownType registers t as a known type of the hierarchy when cm is registered.
func (cm *ClassMap) AddKnownType(t reflect.Type) *ClassMap {
	cm.checkMutable()
	cm.knownTypes = append(cm.knownTypes, t)
	return cm
}

// Discriminator returns the discriminator value of the type.
func (cm *ClassMap) Discriminator() string {
	if cm.discriminatorSet {
		return cm.discriminator
	}
	return cm.t.Name()
}

// DiscriminatorRequired reports whether the discriminator is always written.
func (cm *ClassMap) DiscriminatorRequired() bool { return cm.discriminatorRequired }

// IsRootClass reports whether the type is the root of a hierarchy.
func (cm *ClassMap) IsRootClass() bool { return cm.rootClass }

// IgnoreExtraElements reports whether unmatched elements are ignored.
func (cm *ClassMap) IgnoreExtraElements() bool { return cm.ignoreExtraElements }

// KnownTypes returns the known types added with AddKnownType.
func (cm *ClassMap) KnownTypes() []reflect.Type {
	return append([]reflect.Type(nil), cm.knownTypes...)
}

// BaseClassMap returns the class map of the embedded base type, or nil.
func (cm *ClassMap) BaseClassMap() *ClassMap { return cm.base }

// Members returns the mapped members in document order, base class members first. The id and
// extra elements members are included only in IDMember and ExtraElementsMember.
func (cm *ClassMap) Members() []*MemberMap {
	out := make([]*MemberMap, 0, len(cm.members))
	for _, mm := range cm.members {
		if mm != cm.idMember {
			out = append(out, mm)
		}
	}
	return out
}

// IDMember returns the id member, or nil.
func (cm *ClassMap) IDMember() *MemberMap { return cm.idMember }

// ExtraElementsMember returns the extra elements member, or nil.
func (cm *ClassMap) ExtraElementsMember() *MemberMap { return cm.extraMember }

// LookupMember returns the member mapped to the element name.
func (cm *ClassMap) LookupMember(elementName string) (*MemberMap, bool) {
	mm, ok := cm.byElement[elementName]
	return mm, ok
}

// hasRootClass reports whether cm or one of its base classes is a root class.
func (cm *ClassMap) hasRootClass() bool {
	for c := cm; c != nil; c = c.base {
		if c.rootClass {
			return true
		}
	}
	return false
}

// hierarchy returns the class maps from the root class down to cm. Without a root class it only
// contains cm.
func (cm *ClassMap) hierarchy() []*ClassMap {
	chain := []*ClassMap{cm}
	if !cm.hasRootClass() {
		return chain
	}
	for c := cm; !c.rootClass && c.base != nil; c = c.base {
		chain = append(chain, c.base)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// embeds reports whether base is cm's type or one of its base classes.
func (cm *ClassMap) embeds(base reflect.Type) bool {
	for c := cm; c != nil; c = c.base {
		if c.t == base {
			return true
		}
	}
	return false
}

func (cm *ClassMap) fieldByName(name string) (reflect.StructField, bool) {
	if cm.t == nil || cm.t.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	for i := 0; i < cm.t.NumField(); i++ {
		if sf := cm.t.Field(i); sf.Name == name {
			return sf, true
		}
	}
	return reflect.StructField{}, false
}

// freeze builds the immutable member map. It is idempotent and returns the same error on every
// call.
func (cm *ClassMap) freeze(r *Registry) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.frozen {
		return cm.err
	}
	cm.err = cm.build(r)
	cm.frozen = true

	if cm.err == nil {
		r.log().Print(logger.DebugLevel, logger.ComponentSerialization, "class map frozen",
			"type", cm.t.String(),
			"members", len(cm.members),
			"discriminator", cm.Discriminator(),
		)
	} else {
		r.log().Error(logger.ComponentSerialization, cm.err, "class map rejected", "type", fmt.Sprint(cm.t))
	}
	return cm.err
}

func (cm *ClassMap) build(r *Registry) error {
	if len(cm.errs) > 0 {
		return cm.errs[0]
	}

	profile := r.conventions.lookup(cm.t)

	baseField, hasBase := cm.baseField(r)
	if hasBase {
		base, err := r.LookupClassMap(baseField.Type)
		if err != nil {
			return &MappingError{Type: cm.t, Member: baseField.Name, Reason: "invalid base class: " + err.Error()}
		}
		cm.base = base
	}

	var declared []*MemberMap
	var inlineMap *MemberMap
	if cm.autoMap {
		byName := make(map[string]*MemberMap, len(cm.declared))
		for _, mm := range cm.declared {
			byName[mm.field.Name] = mm
		}
		for i := 0; i < cm.t.NumField(); i++ {
			sf := cm.t.Field(i)
			if (hasBase && i == baseField.Index[0]) || cm.unmapped[sf.Name] || sf.Name == "_" {
				continue
			}
			if mm, ok := byName[sf.Name]; ok {
				declared = append(declared, mm)
				continue
			}
			tags := parseStructTags(sf)
			if tags.Skip || !sf.IsExported() {
				continue
			}
			if tags.Inline {
				switch sf.Type.Kind() {
				case reflect.Struct:
					inlined, err := r.LookupClassMap(sf.Type)
					if err != nil {
						return &MappingError{Type: cm.t, Member: sf.Name, Reason: "invalid inline struct: " + err.Error()}
					}
					for _, imm := range inlined.members {
						declared = append(declared, imm.withPrefix(cm, sf.Index))
					}
					if inlined.extraMember != nil {
						inlineMap = inlined.extraMember.withPrefix(cm, sf.Index)
					}
					continue
				case reflect.Map:
					mm := &MemberMap{cm: cm, field: sf, index: sf.Index}
					inlineMap = mm
					declared = append(declared, mm)
					continue
				default:
					return &MappingError{Type: cm.t, Member: sf.Name, Reason: "inline members must be structs or maps"}
				}
			}
			declared = append(declared, &MemberMap{cm: cm, field: sf, index: sf.Index})
		}
	} else {
		declared = append(declared, cm.declared...)
	}

	for _, mm := range declared {
		if mm.cm == cm && len(mm.index) == 1 {
			mm.resolve(profile)
		}
		if err := mm.validate(); err != nil {
			return err
		}
	}

	// extra elements member
	switch {
	case cm.extraName != "":
		cm.extraMember = findMember(declared, cm.extraName)
	case inlineMap != nil:
		cm.extraMember = inlineMap
	case cm.base != nil && cm.base.extraMember != nil:
		cm.extraMember = cm.base.extraMember.withPrefix(cm, baseField.Index)
	default:
		if name, ok := profile.ExtraElements.ExtraElementsMember(cm.t); ok && !cm.unmapped[name] {
			cm.extraMember = findMember(declared, name)
		}
	}
	if em := cm.extraMember; em != nil {
		if !isExtraElementsType(em.field.Type) {
			return &MappingError{Type: cm.t, Member: em.field.Name,
				Reason: fmt.Sprintf("extra elements member must be D, M or map[string]interface{}, not %s", em.field.Type)}
		}
		declared = removeMember(declared, em)
	}

	members := make([]*MemberMap, 0, len(declared))
	var baseID *MemberMap
	if cm.base != nil {
		for _, bmm := range cm.base.members {
			c := bmm.withPrefix(cm, baseField.Index)
			if bmm == cm.base.idMember {
				baseID = c
			}
			members = append(members, c)
		}
	}
	members = append(members, declared...)

	// id member
	switch {
	case cm.idName != "":
		cm.idMember = findMember(declared, cm.idName)
	default:
		for _, mm := range declared {
			if mm.elementName == IDElementName {
				cm.idMember = mm
				break
			}
		}
		if cm.idMember == nil {
			cm.idMember = baseID
		}
		if cm.idMember == nil {
			if name, ok := profile.IDMember.IDMember(cm.t); ok {
				cm.idMember = findMember(declared, name)
			}
		}
	}
	if cm.idMember != nil {
		cm.idMember.elementName = IDElementName
	}

	cm.byElement = make(map[string]*MemberMap, len(members))
	for _, mm := range members {
		if prev, dup := cm.byElement[mm.elementName]; dup {
			return &MappingError{Type: cm.t, Member: mm.field.Name,
				Reason: fmt.Sprintf("element name %q is already used by member %s", mm.elementName, prev.field.Name)}
		}
		cm.byElement[mm.elementName] = mm
	}
	cm.members = members
	return nil
}

// baseField returns the first exported embedded struct that is not handled by its own codec.
func (cm *ClassMap) baseField(r *Registry) (reflect.StructField, bool) {
	for i := 0; i < cm.t.NumField(); i++ {
		sf := cm.t.Field(i)
		if !sf.Anonymous || !sf.IsExported() || sf.Type.Kind() != reflect.Struct || cm.unmapped[sf.Name] {
			continue
		}
		if tags := parseStructTags(sf); tags.Skip || tags.Name != "" {
			continue
		}
		if r.hasOwnCodec(sf.Type) {
			continue
		}
		return sf, true
	}
	return reflect.StructField{}, false
}

func findMember(members []*MemberMap, name string) *MemberMap {
	for _, mm := range members {
		if mm.field.Name == name {
			return mm
		}
	}
	return nil
}

func removeMember(members []*MemberMap, target *MemberMap) []*MemberMap {
	out := members[:0:0]
	for _, mm := range members {
		if mm != target {
			out = append(out, mm)
		}
	}
	return out
}

func isExtraElementsType(t reflect.Type) bool {
	if t == tD || t == tM {
		return true
	}
	return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String && t.Elem() == tEmpty
}

// hasOwnCodec reports whether values of t are handled by something other than the struct codec.
func (r *Registry) hasOwnCodec(t reflect.Type) bool {
	r.mu.RLock()
	_, ok := r.typeEncoders[t]
	r.mu.RUnlock()
	if ok {
		return true
	}
	for _, hook := range []reflect.Type{tMarshaler, tValueMarshaler} {
		if t.Implements(hook) || reflect.PtrTo(t).Implements(hook) {
			return true
		}
	}
	return false
}

// RegisterClassMap freezes cm and registers it for its type. A type can be registered once.
// Registering a class map also registers its discriminator and known types.
func (r *Registry) RegisterClassMap(cm *ClassMap) error {
	if err := cm.freeze(r); err != nil {
		return err
	}

	if prev, loaded := r.classMaps.Load(cm.t); loaded && prev.(*ClassMap).registered {
		return &MappingError{Type: cm.t, Reason: "a class map is already registered for this type"}
	}
	cm.registered = true
	r.classMaps.Store(cm.t, cm)
	r.dropAutomaticClassMaps()
	r.discrim.registerClassMap(cm)

	for _, kt := range cm.knownTypes {
		if err := r.RegisterKnownType(cm.t, kt); err != nil {
			return err
		}
	}
	return nil
}

// LookupClassMap returns the frozen class map of the struct type t, building one with AutoMap on
// first use. The result, including a MappingError, is cached.
func (r *Registry) LookupClassMap(t reflect.Type) (*ClassMap, error) {
	if t == nil {
		return nil, ErrNilType
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if v, ok := r.classMaps.Load(t); ok {
		cm := v.(*ClassMap)
		return cm, cm.err
	}

	cm := NewClassMap(t).AutoMap()
	_ = cm.freeze(r)
	v, _ := r.classMaps.LoadOrStore(t, cm)
	cm = v.(*ClassMap)
	return cm, cm.err
}

// IsClassMapRegistered reports whether a class map was registered for t with RegisterClassMap.
func (r *Registry) IsClassMapRegistered(t reflect.Type) bool {
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	v, ok := r.classMaps.Load(t)
	return ok && v.(*ClassMap).registered
}

// dropAutomaticClassMaps discards class maps that were built on first use so that they are
// rebuilt against the current conventions and registered bases.
func (r *Registry) dropAutomaticClassMaps() {
	r.classMaps.Range(func(k, v interface{}) bool {
		if !v.(*ClassMap).registered {
			r.classMaps.Delete(k)
		}
		return true
	})
}
