// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inventory struct {
	Stock map[string]int32
}

func inventoryRegistry(t *testing.T, rep DictionaryRepresentation) *Registry {
	t.Helper()
	r := NewRegistry()
	cm := NewClassMap(reflect.TypeOf(inventory{})).AutoMap()
	cm.MapMember("Stock").SetDictionaryRepresentation(rep)
	require.NoError(t, r.RegisterClassMap(cm))
	return r
}

func TestMapRepresentations(t *testing.T) {
	plain := map[string]int32{"b": 2, "a": 1}
	dollar := map[string]int32{"$set": 1, "a.b": 2}

	testCases := []struct {
		name  string
		rep   DictionaryRepresentation
		stock map[string]int32
		want  interface{}
	}{
		{"document", DictionaryDocument, plain, D{{"a", int32(1)}, {"b", int32(2)}}},
		{"array of arrays", DictionaryArrayOfArrays, plain, A{A{"a", int32(1)}, A{"b", int32(2)}}},
		{"array of documents", DictionaryArrayOfDocuments, plain, A{
			D{{"k", "a"}, {"v", int32(1)}},
			D{{"k", "b"}, {"v", int32(2)}},
		}},
		{"dynamic with valid names", DictionaryDynamic, plain, D{{"a", int32(1)}, {"b", int32(2)}}},
		{"dynamic with operator names", DictionaryDynamic, dollar, A{A{"$set", int32(1)}, A{"a.b", int32(2)}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := inventoryRegistry(t, tc.rep)
			b, err := MarshalWithRegistry(r, inventory{Stock: tc.stock})
			require.NoError(t, err)

			var shape struct {
				Stock interface{}
			}
			require.NoError(t, Unmarshal(b, &shape))
			if diff := cmp.Diff(tc.want, shape.Stock); diff != "" {
				t.Errorf("encoded shape mismatch (-want +got):\n%s", diff)
			}

			// every shape decodes regardless of the configured representation
			for _, decodeRep := range []DictionaryRepresentation{DictionaryDocument, DictionaryArrayOfArrays, DictionaryArrayOfDocuments} {
				var out inventory
				require.NoError(t, UnmarshalWithRegistry(inventoryRegistry(t, decodeRep), b, &out))
				assert.Equal(t, tc.stock, out.Stock)
			}
		})
	}
}

func TestMapDocumentWithInvalidNames(t *testing.T) {
	_, err := Marshal(inventory{Stock: map[string]int32{"a\x00b": 1}})
	assert.Error(t, err)
}

func TestMapKeyTypes(t *testing.T) {
	t.Run("int", func(t *testing.T) {
		in := map[int]string{10: "ten", 2: "two"}
		b, err := Marshal(struct{ M map[int]string }{M: in})
		require.NoError(t, err)
		assert.Equal(t, []string{"10", "2"}, elementKeys(t, Raw(b).Lookup("M").Value))

		var out struct{ M map[int]string }
		require.NoError(t, Unmarshal(b, &out))
		assert.Equal(t, in, out.M)
	})
	t.Run("bool", func(t *testing.T) {
		in := map[bool]int32{true: 1, false: 0}
		b, err := Marshal(struct{ M map[bool]int32 }{M: in})
		require.NoError(t, err)

		var out struct{ M map[bool]int32 }
		require.NoError(t, Unmarshal(b, &out))
		assert.Equal(t, in, out.M)
	})
	t.Run("text marshaler", func(t *testing.T) {
		oid := ObjectID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
		in := map[ObjectID]string{oid: "x"}
		b, err := Marshal(struct{ M map[ObjectID]string }{M: in})
		require.NoError(t, err)
		assert.Equal(t, []string{oid.Hex()}, elementKeys(t, Raw(b).Lookup("M").Value))

		var out struct{ M map[ObjectID]string }
		require.NoError(t, Unmarshal(b, &out))
		assert.Equal(t, in, out.M)
	})
	t.Run("unsupported", func(t *testing.T) {
		_, err := Marshal(struct{ M map[float64]string }{M: map[float64]string{1.5: "x"}})
		assert.Error(t, err)
	})
}

func TestMapDecodeMalformedEntries(t *testing.T) {
	testCases := []struct {
		name  string
		stock interface{}
	}{
		{"three element entry", A{A{"a", int32(1), int32(2)}}},
		{"one element entry", A{A{"a"}}},
		{"document entry without v", A{D{{"k", "a"}}}},
		{"scalar entry", A{int32(1)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Marshal(D{{"Stock", tc.stock}})
			require.NoError(t, err)
			var out inventory
			assert.Error(t, Unmarshal(b, &out))
		})
	}
}

func TestNilMap(t *testing.T) {
	b, err := Marshal(inventory{})
	require.NoError(t, err)
	assert.Equal(t, TypeNull, Raw(b).Lookup("Stock").Type)

	b, err = MarshalWithContext(EncodeContext{Registry: DefaultRegistry, NilMapAsEmpty: true}, inventory{})
	require.NoError(t, err)
	assert.Equal(t, TypeEmbeddedDocument, Raw(b).Lookup("Stock").Type)

	out := inventory{Stock: map[string]int32{"stale": 1}}
	nullDoc, err := Marshal(D{{"Stock", nil}})
	require.NoError(t, err)
	require.NoError(t, Unmarshal(nullDoc, &out))
	assert.Nil(t, out.Stock)
}
