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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shape interface {
	Area() float64
}

type Circle struct {
	R float64
}

func (c Circle) Area() float64 { return math.Pi * c.R * c.R }

type Square struct {
	S float64
}

func (s *Square) Area() float64 { return s.S * s.S }

type drawing struct {
	Main   shape
	Layers []shape
}

type anyHolder struct {
	V interface{}
}

var tShape = reflect.TypeOf((*shape)(nil)).Elem()

func shapeRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.RegisterKnownType(tShape, reflect.TypeOf(Circle{})))
	require.NoError(t, r.RegisterKnownType(tShape, reflect.TypeOf(Square{})))
	return r
}

func TestInterfaceDiscriminatorRoundTrip(t *testing.T) {
	r := shapeRegistry(t)
	in := drawing{
		Main:   Circle{R: 2},
		Layers: []shape{&Square{S: 3}, Circle{R: 1}},
	}
	b, err := MarshalWithRegistry(r, in)
	require.NoError(t, err)

	main := Raw(b).Lookup("Main").Document()
	assert.Equal(t, []string{"_t", "R"}, elementKeys(t, main))
	var disc string
	require.NoError(t, main.Lookup("_t").Unmarshal(&disc))
	assert.Equal(t, "Circle", disc)

	var out drawing
	require.NoError(t, UnmarshalWithRegistry(r, b, &out))
	assert.Equal(t, Circle{R: 2}, out.Main)
	require.Len(t, out.Layers, 2)
	assert.Equal(t, &Square{S: 3}, out.Layers[0], "types implementing the interface through a pointer decode as pointers")
	assert.Equal(t, Circle{R: 1}, out.Layers[1])

	assert.ElementsMatch(t, []reflect.Type{reflect.TypeOf(Circle{}), reflect.TypeOf(Square{})}, r.KnownTypes(tShape))
}

func TestInterfaceDiscriminatorErrors(t *testing.T) {
	r := shapeRegistry(t)

	testCases := []struct {
		name string
		main interface{}
		disc interface{}
	}{
		{"unknown discriminator", D{{"_t", "Triangle"}, {"B", 1.0}}, "Triangle"},
		{"missing discriminator", D{{"R", 1.0}}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Marshal(D{{"Main", tc.main}})
			require.NoError(t, err)

			var out drawing
			err = UnmarshalWithRegistry(r, b, &out)
			var dre *DiscriminatorResolutionError
			require.True(t, errors.As(err, &dre), "expected *DiscriminatorResolutionError, got %v", err)
			assert.Equal(t, tShape, dre.Nominal)
			assert.Equal(t, tc.disc, dre.Discriminator)
		})
	}

	t.Run("no known types", func(t *testing.T) {
		b, err := Marshal(D{{"Main", D{{"_t", "Circle"}, {"R", 1.0}}}})
		require.NoError(t, err)
		var out drawing
		err = UnmarshalWithRegistry(NewRegistry(), b, &out)
		var dre *DiscriminatorResolutionError
		assert.True(t, errors.As(err, &dre), "expected *DiscriminatorResolutionError, got %v", err)
	})
}

func TestEmptyInterfaceDiscriminator(t *testing.T) {
	r := shapeRegistry(t)

	b, err := MarshalWithRegistry(r, anyHolder{V: Circle{R: 5}})
	require.NoError(t, err)
	assert.Equal(t, []string{"_t", "R"}, elementKeys(t, Raw(b).Lookup("V").Document()),
		"known types held by interface{} carry a discriminator")

	var out anyHolder
	require.NoError(t, UnmarshalWithRegistry(r, b, &out))
	assert.Equal(t, Circle{R: 5}, out.V)

	foreign, err := Marshal(D{{"V", D{{"_t", "SomethingElse"}, {"x", int32(1)}}}})
	require.NoError(t, err)
	require.NoError(t, UnmarshalWithRegistry(r, foreign, &out))
	assert.Equal(t, D{{"_t", "SomethingElse"}, {"x", int32(1)}}, out.V, "unresolvable discriminators fall back to a generic document")

	dc := DecodeContext{Registry: r, DefaultDocumentM: true}
	require.NoError(t, UnmarshalWithContext(dc, foreign, &out))
	assert.Equal(t, M{"_t": "SomethingElse", "x": int32(1)}, out.V)
}

func TestKnownTypeRegistrationInvalidatesCache(t *testing.T) {
	r := NewRegistry()

	b, err := MarshalWithRegistry(r, anyHolder{V: Circle{R: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"R"}, elementKeys(t, Raw(b).Lookup("V").Document()))

	var out anyHolder
	require.NoError(t, UnmarshalWithRegistry(r, b, &out))
	assert.Equal(t, D{{"R", 1.0}}, out.V)

	tagged, err := Marshal(D{{"Main", D{{"_t", "Circle"}, {"R", 1.0}}}})
	require.NoError(t, err)
	var d drawing
	assert.Error(t, UnmarshalWithRegistry(r, tagged, &d), "no known types are registered yet")

	require.NoError(t, r.RegisterKnownType(tShape, reflect.TypeOf(Circle{})))

	b, err = MarshalWithRegistry(r, anyHolder{V: Circle{R: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"_t", "R"}, elementKeys(t, Raw(b).Lookup("V").Document()))
	require.NoError(t, UnmarshalWithRegistry(r, b, &out))
	assert.Equal(t, Circle{R: 1}, out.V)

	require.NoError(t, UnmarshalWithRegistry(r, tagged, &d))
	assert.Equal(t, Circle{R: 1}, d.Main)
}

type Animal struct {
	Name string
}

type Cat struct {
	Animal
	Lives int32
}

type Lion struct {
	Cat
	Pride string
}

func animalRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.RegisterClassMap(NewClassMap(reflect.TypeOf(Animal{})).AutoMap().SetIsRootClass(true)))
	require.NoError(t, r.RegisterKnownType(reflect.TypeOf(Animal{}), reflect.TypeOf(Cat{})))
	require.NoError(t, r.RegisterKnownType(reflect.TypeOf(Animal{}), reflect.TypeOf(Lion{})))
	return r
}

func TestHierarchicalDiscriminator(t *testing.T) {
	r := animalRegistry(t)

	b, err := MarshalWithRegistry(r, Lion{Cat: Cat{Animal: Animal{Name: "Leo"}, Lives: 9}, Pride: "east"})
	require.NoError(t, err)
	assert.Equal(t, []string{"_t", "Name", "Lives", "Pride"}, elementKeys(t, b))

	var chain A
	require.NoError(t, Raw(b).Lookup("_t").Unmarshal(&chain))
	assert.Equal(t, A{"Animal", "Cat", "Lion"}, chain)

	var anyVal interface{}
	require.NoError(t, UnmarshalWithRegistry(r, b, &anyVal))
	assert.Equal(t, Lion{Cat: Cat{Animal: Animal{Name: "Leo"}, Lives: 9}, Pride: "east"}, anyVal,
		"the most derived discriminator wins")

	b, err = MarshalWithRegistry(r, Animal{Name: "generic"})
	require.NoError(t, err)
	var rootDisc string
	require.NoError(t, Raw(b).Lookup("_t").Unmarshal(&rootDisc))
	assert.Equal(t, "Animal", rootDisc, "the root class alone is written as a single value")

	var lion Lion
	require.NoError(t, UnmarshalWithRegistry(r, b, &lion))
	assert.Equal(t, "generic", lion.Name)

	type unrelated struct {
		Animal
		Extra int32
	}
	err = r.RegisterKnownType(reflect.TypeOf(Cat{}), reflect.TypeOf(unrelated{}))
	var me *MappingError
	assert.True(t, errors.As(err, &me), "types that do not embed the nominal struct are rejected")
}

func TestScalarDiscriminatorConvention(t *testing.T) {
	r := NewRegistry()
	r.RegisterDiscriminatorConvention(tShape, ScalarDiscriminatorConvention{Element: "kind"})
	require.NoError(t, r.RegisterClassMap(NewClassMap(reflect.TypeOf(Circle{})).AutoMap().SetDiscriminator("circle")))
	require.NoError(t, r.RegisterKnownType(tShape, reflect.TypeOf(Circle{})))

	b, err := MarshalWithRegistry(r, drawing{Main: Circle{R: 4}})
	require.NoError(t, err)
	main := Raw(b).Lookup("Main").Document()
	assert.Equal(t, []string{"kind", "R"}, elementKeys(t, main))

	var kind string
	require.NoError(t, main.Lookup("kind").Unmarshal(&kind))
	assert.Equal(t, "circle", kind)

	var out drawing
	require.NoError(t, UnmarshalWithRegistry(r, b, &out))
	assert.Equal(t, Circle{R: 4}, out.Main)

	assert.Equal(t, ScalarDiscriminatorConvention{Element: "kind"}, r.LookupDiscriminatorConvention(tShape))
	assert.Equal(t, HierarchicalDiscriminatorConvention{}, r.LookupDiscriminatorConvention(reflect.TypeOf(Square{})))
	assert.Equal(t, DefaultDiscriminatorElement, r.LookupDiscriminatorConvention(reflect.TypeOf(Square{})).ElementName())
}

func TestDiscriminatorRequired(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterClassMap(NewClassMap(reflect.TypeOf(Square{})).AutoMap().SetDiscriminatorRequired(true)))

	b, err := MarshalWithRegistry(r, Square{S: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"_t", "S"}, elementKeys(t, b))

	var out Square
	require.NoError(t, UnmarshalWithRegistry(r, b, &out))
	assert.Equal(t, Square{S: 1}, out)
}

func TestRegisterKnownTypeValidation(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterKnownType(tShape, reflect.TypeOf(0))
	var me *MappingError
	assert.True(t, errors.As(err, &me), "non-struct known types are rejected")

	err = r.RegisterKnownType(tShape, reflect.TypeOf(Animal{}))
	assert.True(t, errors.As(err, &me), "known types must implement the nominal interface")

	assert.Equal(t, ErrNilType, r.RegisterKnownType(nil, reflect.TypeOf(Circle{})))
	require.NoError(t, r.RegisterKnownType(tShape, reflect.TypeOf(&Circle{})), "pointer types are dereferenced")
	assert.Equal(t, []reflect.Type{reflect.TypeOf(Circle{})}, r.KnownTypes(tShape))
}

func TestPrimitiveIntoNonEmptyInterface(t *testing.T) {
	type labelled struct {
		Label fmt.Stringer
	}
	oid := ObjectID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	b, err := Marshal(labelled{Label: oid})
	require.NoError(t, err)
	assert.Equal(t, TypeObjectID, Raw(b).Lookup("Label").Type)

	var out labelled
	require.NoError(t, Unmarshal(b, &out))
	assert.Equal(t, oid, out.Label)

	b, err = Marshal(D{{"Label", int32(3)}})
	require.NoError(t, err)
	assert.Error(t, Unmarshal(b, &out), "int32 does not implement fmt.Stringer")

	b, err = Marshal(D{{"Label", nil}})
	require.NoError(t, err)
	out.Label = oid
	require.NoError(t, Unmarshal(b, &out))
	assert.Nil(t, out.Label)
}
