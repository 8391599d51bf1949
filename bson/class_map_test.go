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
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customer struct {
	ID            ObjectID
	FirstName     string
	LastName      string
	Email         *string
	ExtraElements M
}

type withNullable struct {
	S *string
}

type withTaggedNullable struct {
	S *string `bson:",omitnull"`
}

type unexportedMember struct {
	Exported int32
	hidden   int32
}

type funcMember struct {
	F func()
}

type clashingNames struct {
	A int32 `bson:"x"`
	B int32 `bson:"x"`
}

type badExtra struct {
	ExtraElements []string
}

type orderLine struct {
	SKU      string  `bson:"sku,required"`
	Quantity int32   `bson:"qty"`
	Price    float64 `bson:"price"`
}

func elementKeys(t *testing.T, b []byte) []string {
	t.Helper()
	elems, err := Raw(b).Elements()
	require.NoError(t, err)
	keys := make([]string, 0, len(elems))
	for _, e := range elems {
		keys = append(keys, e.Key)
	}
	return keys
}

func TestAutoMappedClassMap(t *testing.T) {
	r := NewRegistry()
	cm, err := r.LookupClassMap(reflect.TypeOf(customer{}))
	require.NoError(t, err)

	require.NotNil(t, cm.IDMember())
	assert.Equal(t, "ID", cm.IDMember().Name())
	assert.Equal(t, IDElementName, cm.IDMember().ElementName())
	require.NotNil(t, cm.ExtraElementsMember())
	assert.Equal(t, "ExtraElements", cm.ExtraElementsMember().Name())
	assert.Equal(t, "customer", cm.Discriminator())
	assert.True(t, cm.IgnoreExtraElements())

	names := make([]string, 0)
	for _, mm := range cm.Members() {
		names = append(names, mm.ElementName())
	}
	assert.Equal(t, []string{"FirstName", "LastName", "Email"}, names)

	mm, ok := cm.LookupMember("LastName")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(""), mm.Type())

	assert.False(t, r.IsClassMapRegistered(reflect.TypeOf(customer{})))
}

func TestDefaultIDMemberNames(t *testing.T) {
	type upper struct {
		Name string
		ID   int32
	}
	type mixed struct {
		Id   int32
		Name string
	}
	type tagged struct {
		Key  int32 `bson:"_id"`
		Name string
	}
	type none struct {
		Ident int32
		Name  string
	}
	testCases := []struct {
		name string
		val  interface{}
		id   string
	}{
		{"ID", upper{}, "ID"},
		{"Id", mixed{}, "Id"},
		{"_id tag", tagged{}, "Key"},
		{"no id member", none{}, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cm, err := NewRegistry().LookupClassMap(reflect.TypeOf(tc.val))
			require.NoError(t, err)
			if tc.id == "" {
				assert.Nil(t, cm.IDMember())
				return
			}
			require.NotNil(t, cm.IDMember())
			assert.Equal(t, tc.id, cm.IDMember().Name())
			assert.Equal(t, IDElementName, cm.IDMember().ElementName())

			b, err := Marshal(tc.val)
			require.NoError(t, err)
			assert.Equal(t, IDElementName, elementKeys(t, b)[0])
		})
	}
}

func TestStructEncodingOrder(t *testing.T) {
	email := "a@example.com"
	in := customer{
		ID:            NewObjectID(),
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Email:         &email,
		ExtraElements: M{"zeta": int32(1), "alpha": "x"},
	}
	b, err := Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "FirstName", "LastName", "Email", "alpha", "zeta"}, elementKeys(t, b))

	var out customer
	require.NoError(t, Unmarshal(b, &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestIgnoreIfNull(t *testing.T) {
	nullDoc := []byte{0x08, 0x00, 0x00, 0x00, 0x0a, 'S', 0x00, 0x00}

	t.Run("written as null by default", func(t *testing.T) {
		b, err := Marshal(withNullable{})
		require.NoError(t, err)
		assert.Equal(t, nullDoc, b)
	})
	t.Run("tag", func(t *testing.T) {
		b, err := Marshal(withTaggedNullable{})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x05, 0x00, 0x00, 0x00, 0x00}, b)
	})
	t.Run("explicit member setting", func(t *testing.T) {
		r := NewRegistry()
		cm := NewClassMap(reflect.TypeOf(withNullable{})).AutoMap()
		cm.MapMember("S").SetIgnoreIfNull(true)
		require.NoError(t, r.RegisterClassMap(cm))

		b, err := MarshalWithRegistry(r, withNullable{})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x05, 0x00, 0x00, 0x00, 0x00}, b)

		s := "set"
		b, err = MarshalWithRegistry(r, withNullable{S: &s})
		require.NoError(t, err)
		assert.Equal(t, []string{"S"}, elementKeys(t, b))
	})
	t.Run("convention", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterConventions("ignore nulls", &ConventionProfile{IgnoreIfNull: AlwaysIgnoreIfNullConvention{}}, nil)

		b, err := MarshalWithRegistry(r, withNullable{})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x05, 0x00, 0x00, 0x00, 0x00}, b)

		require.True(t, r.RemoveConventions("ignore nulls"))
		b, err = MarshalWithRegistry(r, withNullable{})
		require.NoError(t, err)
		assert.Equal(t, nullDoc, b)
	})
	t.Run("explicit setting overrides tag", func(t *testing.T) {
		r := NewRegistry()
		cm := NewClassMap(reflect.TypeOf(withTaggedNullable{})).AutoMap()
		cm.MapMember("S").SetIgnoreIfNull(false)
		require.NoError(t, r.RegisterClassMap(cm))

		b, err := MarshalWithRegistry(r, withTaggedNullable{})
		require.NoError(t, err)
		assert.Equal(t, nullDoc, b)
	})
	t.Run("mixed members all nil", func(t *testing.T) {
		type mixed struct {
			S *string
			I *int32
			D *float64
		}
		type mixedTagged struct {
			S *string
			I *int32   `bson:",omitnull"`
			D *float64 `bson:",omitnull"`
		}

		explicit := NewRegistry()
		cm := NewClassMap(reflect.TypeOf(mixed{})).AutoMap()
		cm.MapMember("I").SetIgnoreIfNull(true)
		cm.MapMember("D").SetIgnoreIfNull(true)
		require.NoError(t, explicit.RegisterClassMap(cm))

		testCases := []struct {
			name string
			r    *Registry
			val  interface{}
		}{
			{"explicit member settings", explicit, mixed{}},
			{"tags", DefaultRegistry, mixedTagged{}},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				b, err := MarshalWithRegistry(tc.r, tc.val)
				require.NoError(t, err)
				assert.Equal(t, nullDoc, b)
				assert.Equal(t, []string{"S"}, elementKeys(t, b))
			})
		}
	})
}

func TestIgnoreIfDefault(t *testing.T) {
	type counters struct {
		Hits   int32  `bson:"hits,omitempty"`
		Label  string `bson:"label,omitempty"`
		Misses int32  `bson:"misses"`
	}
	b, err := Marshal(counters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"misses"}, elementKeys(t, b))

	r := NewRegistry()
	cm := NewClassMap(reflect.TypeOf(counters{})).AutoMap()
	cm.MapMember("Misses").SetDefaultValue(int32(10)).SetIgnoreIfDefault(true)
	require.NoError(t, r.RegisterClassMap(cm))

	b, err = MarshalWithRegistry(r, counters{Misses: 10})
	require.NoError(t, err)
	assert.Empty(t, elementKeys(t, b))

	b, err = MarshalWithRegistry(r, counters{Misses: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"misses"}, elementKeys(t, b), "only the configured default is suppressed")
}

func TestRequiredAndDefaultValues(t *testing.T) {
	r := NewRegistry()
	cm := NewClassMap(reflect.TypeOf(orderLine{})).AutoMap()
	cm.MapMember("Quantity").SetDefaultValue(1)
	require.NoError(t, r.RegisterClassMap(cm))

	b, err := Marshal(D{{"sku", "A-1"}})
	require.NoError(t, err)

	out := orderLine{Price: 9.5}
	require.NoError(t, UnmarshalWithRegistry(r, b, &out))
	assert.Equal(t, orderLine{SKU: "A-1", Quantity: 1, Price: 9.5}, out,
		"missing members take their default value or are left untouched")

	b, err = Marshal(D{{"qty", int32(3)}})
	require.NoError(t, err)
	err = UnmarshalWithRegistry(r, b, &out)
	var de *DecodeError
	require.True(t, errors.As(err, &de), "expected *DecodeError, got %v", err)
	assert.Equal(t, []string{"sku"}, de.Keys())
}

func TestExtraElements(t *testing.T) {
	b, err := Marshal(D{{"FirstName", "Grace"}, {"nickname", "amazing"}, {"born", int32(1906)}})
	require.NoError(t, err)

	t.Run("collected", func(t *testing.T) {
		var c customer
		require.NoError(t, Unmarshal(b, &c))
		assert.Equal(t, "Grace", c.FirstName)
		assert.Equal(t, M{"nickname": "amazing", "born": int32(1906)}, c.ExtraElements)
	})
	t.Run("ignored", func(t *testing.T) {
		var n withNullable
		require.NoError(t, Unmarshal(b, &n))
	})
	t.Run("rejected", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.RegisterClassMap(NewClassMap(reflect.TypeOf(withNullable{})).AutoMap().SetIgnoreExtraElements(false)))

		var n withNullable
		err := UnmarshalWithRegistry(r, b, &n)
		var de *DecodeError
		require.True(t, errors.As(err, &de), "expected *DecodeError, got %v", err)
		assert.Equal(t, []string{"FirstName"}, de.Keys())
	})
	t.Run("inline map", func(t *testing.T) {
		type inlined struct {
			FirstName string
			Rest      map[string]interface{} `bson:",inline"`
		}
		var in inlined
		require.NoError(t, Unmarshal(b, &in))
		assert.Equal(t, map[string]interface{}{"nickname": "amazing", "born": int32(1906)}, in.Rest)

		again, err := Marshal(in)
		require.NoError(t, err)
		assert.Equal(t, []string{"FirstName", "born", "nickname"}, elementKeys(t, again))
	})
}

func TestMappingErrors(t *testing.T) {
	testCases := []struct {
		name   string
		cm     func() *ClassMap
		member string
	}{
		{"unexported member", func() *ClassMap {
			cm := NewClassMap(reflect.TypeOf(unexportedMember{}))
			cm.MapMember("hidden")
			return cm
		}, "hidden"},
		{"function member", func() *ClassMap {
			return NewClassMap(reflect.TypeOf(funcMember{})).AutoMap()
		}, "F"},
		{"duplicate element names", func() *ClassMap {
			return NewClassMap(reflect.TypeOf(clashingNames{})).AutoMap()
		}, "B"},
		{"extra elements type", func() *ClassMap {
			return NewClassMap(reflect.TypeOf(badExtra{})).AutoMap()
		}, "ExtraElements"},
		{"no such field", func() *ClassMap {
			cm := NewClassMap(reflect.TypeOf(customer{}))
			cm.MapMember("Missing")
			return cm
		}, "Missing"},
		{"bad default value", func() *ClassMap {
			cm := NewClassMap(reflect.TypeOf(orderLine{})).AutoMap()
			cm.MapMember("SKU").SetDefaultValue(struct{}{})
			return cm
		}, "SKU"},
		{"NUL in element name", func() *ClassMap {
			cm := NewClassMap(reflect.TypeOf(orderLine{})).AutoMap()
			cm.MapMember("SKU").SetElementName("s\x00ku")
			return cm
		}, "SKU"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.RegisterClassMap(tc.cm())
			var me *MappingError
			require.True(t, errors.As(err, &me), "expected *MappingError, got %v", err)
			assert.Equal(t, tc.member, me.Member)
		})
	}

	t.Run("not a struct", func(t *testing.T) {
		err := NewRegistry().RegisterClassMap(NewClassMap(reflect.TypeOf(0)))
		var me *MappingError
		assert.True(t, errors.As(err, &me), "expected *MappingError, got %v", err)
	})
	t.Run("surfaces on marshal", func(t *testing.T) {
		_, err := Marshal(clashingNames{A: 1, B: 2})
		var me *MappingError
		assert.True(t, errors.As(err, &me), "expected *MappingError, got %v", err)
	})
}

func TestClassMapFrozen(t *testing.T) {
	r := NewRegistry()
	cm := NewClassMap(reflect.TypeOf(orderLine{})).AutoMap()
	require.NoError(t, r.RegisterClassMap(cm))

	assert.Panics(t, func() { cm.SetDiscriminator("other") })
	assert.Panics(t, func() { cm.MapMember("Price") })
	mm, ok := cm.LookupMember("price")
	require.True(t, ok)
	assert.Panics(t, func() { mm.SetElementName("p") })

	err := r.RegisterClassMap(NewClassMap(reflect.TypeOf(orderLine{})).AutoMap())
	var me *MappingError
	assert.True(t, errors.As(err, &me), "a second registration for the same type is rejected")
	assert.True(t, r.IsClassMapRegistered(reflect.TypeOf(&orderLine{})))
}

func TestExplicitMapping(t *testing.T) {
	r := NewRegistry()
	cm := NewClassMap(reflect.TypeOf(customer{}))
	cm.MapIDMember("Email")
	cm.MapMember("LastName").SetElementName("surname")
	require.NoError(t, r.RegisterClassMap(cm))

	email := "id@example.com"
	b, err := MarshalWithRegistry(r, customer{FirstName: "dropped", LastName: "Hopper", Email: &email})
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "surname"}, elementKeys(t, b))

	var out customer
	require.NoError(t, UnmarshalWithRegistry(r, b, &out))
	assert.Equal(t, "Hopper", out.LastName)
	require.NotNil(t, out.Email)
	assert.Equal(t, email, *out.Email)
	assert.Empty(t, out.FirstName)
}

func TestUnmapMember(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterClassMap(NewClassMap(reflect.TypeOf(orderLine{})).AutoMap().UnmapMember("Price")))

	b, err := MarshalWithRegistry(r, orderLine{SKU: "a", Quantity: 2, Price: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "qty"}, elementKeys(t, b))
}

type account struct {
	AccountNumber string
	OwnerName     string
	ID            int64 `bson:"_id"`
}

func TestElementNameConventions(t *testing.T) {
	testCases := []struct {
		name    string
		profile *ConventionProfile
		want    []string
	}{
		{"member name", &ConventionProfile{}, []string{"_id", "AccountNumber", "OwnerName"}},
		{"camel case", &ConventionProfile{ElementName: CamelCaseElementNameConvention{}}, []string{"_id", "accountNumber", "ownerName"}},
		{"lower case", &ConventionProfile{ElementName: LowerCaseElementNameConvention{}}, []string{"_id", "accountnumber", "ownername"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			r.RegisterConventions(tc.name, tc.profile, nil)
			b, err := MarshalWithRegistry(r, account{AccountNumber: "1", OwnerName: "o", ID: 7})
			require.NoError(t, err)
			assert.Equal(t, tc.want, elementKeys(t, b))

			var out account
			require.NoError(t, UnmarshalWithRegistry(r, b, &out))
			assert.Equal(t, account{AccountNumber: "1", OwnerName: "o", ID: 7}, out)
		})
	}
}

func TestConventionFilterAndPriority(t *testing.T) {
	r := NewRegistry()
	r.RegisterConventions("camel", &ConventionProfile{ElementName: CamelCaseElementNameConvention{}}, nil)
	r.RegisterConventions("lower accounts", &ConventionProfile{ElementName: LowerCaseElementNameConvention{}},
		func(t reflect.Type) bool { return t == reflect.TypeOf(account{}) })

	b, err := MarshalWithRegistry(r, account{})
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "accountnumber", "ownername"}, elementKeys(t, b), "the later profile wins")

	b, err = MarshalWithRegistry(r, orderLine{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "qty", "price"}, elementKeys(t, b), "tags win over conventions")

	type plain struct{ FieldOne int32 }
	b, err = MarshalWithRegistry(r, plain{})
	require.NoError(t, err)
	assert.Equal(t, []string{"fieldOne"}, elementKeys(t, b), "filtered profiles skip other types")

	assert.False(t, r.RemoveConventions("unknown"))
	assert.True(t, r.RemoveConventions("lower accounts"))
	b, err = MarshalWithRegistry(r, account{})
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "accountNumber", "ownerName"}, elementKeys(t, b))
}

func TestTypeRepresentationConvention(t *testing.T) {
	type invoice struct {
		Total Decimal128
		Count int64
		Lines map[string]int32
	}
	r := NewRegistry()
	r.RegisterConventions("representations", &ConventionProfile{
		SerializationOptions: TypeRepresentationConvention{
			Types:      map[reflect.Type]Type{reflect.TypeOf(Decimal128{}): TypeString},
			Kinds:      map[reflect.Kind]Type{reflect.Int64: TypeDouble},
			Dictionary: DictionaryArrayOfDocuments,
		},
	}, nil)

	total, err := ParseDecimal128("12.50")
	require.NoError(t, err)
	in := invoice{Total: total, Count: 3, Lines: map[string]int32{"a": 1}}
	b, err := MarshalWithRegistry(r, in)
	require.NoError(t, err)

	raw := Raw(b)
	assert.Equal(t, TypeString, raw.Lookup("Total").Type)
	assert.Equal(t, TypeDouble, raw.Lookup("Count").Type)
	assert.Equal(t, TypeArray, raw.Lookup("Lines").Type)

	var out invoice
	require.NoError(t, UnmarshalWithRegistry(r, b, &out))
	assert.Equal(t, "12.50", out.Total.String())
	assert.Equal(t, int64(3), out.Count)
	assert.Equal(t, in.Lines, out.Lines)
}

func TestConventionProfileMerge(t *testing.T) {
	p := &ConventionProfile{ElementName: LowerCaseElementNameConvention{}}
	merged := p.Merge(DefaultConventionProfile())
	assert.Equal(t, LowerCaseElementNameConvention{}, merged.ElementName)
	assert.Equal(t, NeverIgnoreIfNullConvention{}, merged.IgnoreIfNull)
	assert.Nil(t, p.IgnoreIfNull, "Merge does not modify its receiver")

	r := NewRegistry()
	r.RegisterConventions("nulls", &ConventionProfile{IgnoreIfNull: AlwaysIgnoreIfNullConvention{}}, nil)
	looked := r.LookupConventions(reflect.TypeOf(account{}))
	assert.Equal(t, AlwaysIgnoreIfNullConvention{}, looked.IgnoreIfNull)
	assert.Equal(t, MemberNameElementNameConvention{}, looked.ElementName)
}

type embeddedBase struct {
	ID      int32
	Created DateTime
}

type embeddingChild struct {
	embeddedBase
	Name string
}

type Audit struct {
	By string
}

type audited struct {
	Audit
	Value int32
}

func TestEmbeddedBaseMembersComeFirst(t *testing.T) {
	b, err := Marshal(audited{Audit: Audit{By: "ops"}, Value: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"By", "Value"}, elementKeys(t, b))

	var out audited
	require.NoError(t, Unmarshal(b, &out))
	assert.Equal(t, "ops", out.By)

	b, err = Marshal(embeddingChild{Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, elementKeys(t, b), "unexported embedded structs are not mapped")
}
