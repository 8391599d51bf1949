// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsonx

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ikmak/docwire/bson"
	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var valCmp = cmp.Comparer(func(a, b Val) bool { return a.Equal(b) })

func allTypesDoc() Doc {
	oid := bson.ObjectID{0x5a, 0x1b, 0x2c, 0x3d, 0x4e, 0x5f, 0x60, 0x71, 0x82, 0x93, 0xa4, 0xb5}
	return Doc{
		{"double", Double(3.14159)},
		{"nan", Double(math.NaN())},
		{"string", String("hello, world")},
		{"document", Document(Doc{{"a", Int32(1)}, {"b", Document(Doc{})}})},
		{"array", Array(Arr{Int32(1), String("two"), Array(Arr{})})},
		{"binary", Binary(bson.TypeBinaryUserDefined, []byte{0xde, 0xad, 0xbe, 0xef})},
		{"undefined", Undefined()},
		{"objectid", ObjectID(oid)},
		{"boolean", Boolean(true)},
		{"datetime", DateTime(1577836800123)},
		{"null", Null()},
		{"regex", Regex("^a.*z$", "im")},
		{"dbpointer", DBPointer("db.coll", oid)},
		{"javascript", JavaScript("function() { return 1; }")},
		{"symbol", Symbol("sym")},
		{"codewithscope", CodeWithScope("x + y", Doc{{"x", Int32(1)}, {"y", Int64(2)}})},
		{"int32", Int32(-42)},
		{"timestamp", Timestamp(1700000000, 7)},
		{"int64", Int64(math.MaxInt64)},
		{"decimal128", Decimal128(bson.NewDecimal128(0x3040000000000000, 12345))},
		{"minkey", MinKey()},
		{"maxkey", MaxKey()},
		{"dup", Int32(1)},
		{"dup", Int32(2)},
	}
}

func TestDocRoundTrip(t *testing.T) {
	doc := allTypesDoc()
	b, err := doc.MarshalBSON()
	require.NoError(t, err)
	require.NoError(t, bsoncore.Document(b).Validate())

	length, _, ok := bsoncore.ReadLength(b)
	require.True(t, ok)
	assert.Equal(t, len(b), int(length))

	got, err := ReadDoc(b)
	require.NoError(t, err)
	if diff := cmp.Diff(doc, got, valCmp); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	again, err := got.MarshalBSON()
	require.NoError(t, err)
	assert.Equal(t, b, again, "re-encoding a decoded document must reproduce the same bytes")
}

func TestDocEmpty(t *testing.T) {
	b, err := Doc{}.MarshalBSON()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x00, 0x00, 0x00, 0x00}, b)

	doc, err := ReadDoc(b)
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Len())

	_, err = Doc(nil).MarshalBSON()
	assert.Equal(t, ErrNilDocument, err)
}

func TestReadDocLengthMismatch(t *testing.T) {
	b, err := Doc{{"a", Int32(1)}}.MarshalBSON()
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{"too short", b[:3]},
		{"trailing bytes", append(append([]byte{}, b...), 0x00)},
		{"truncated", b[:len(b)-1]},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadDoc(tc.data)
			var fe *bson.FormatError
			assert.True(t, errors.As(err, &fe), "expected *bson.FormatError, got %v", err)
		})
	}
}

func TestAppendMarshalBSON(t *testing.T) {
	prefix := []byte{0xff, 0xfe}
	b, err := Doc{{"x", Boolean(false)}}.AppendMarshalBSON(prefix)
	require.NoError(t, err)
	assert.Equal(t, prefix, b[:2])
	require.NoError(t, bsoncore.Document(b[2:]).Validate())
}

func TestDocEditing(t *testing.T) {
	doc := Doc{}.Append("b", Int32(2)).Prepend("a", Int32(1)).Append("c", Int32(3))
	assert.Equal(t, []string{"a", "b", "c"}, keys(doc))

	doc = doc.Set("b", String("two"))
	assert.Equal(t, "two", doc.Lookup("b").StringValue())
	doc = doc.Set("d", Null())
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys(doc))

	doc = doc.Delete("a").Delete("missing")
	assert.Equal(t, []string{"b", "c", "d"}, keys(doc))
	assert.Equal(t, -1, doc.IndexOf("a"))
}

func keys(d Doc) []string {
	ks := make([]string, 0, len(d))
	for _, e := range d {
		ks = append(ks, e.Key)
	}
	return ks
}

func TestDocLookup(t *testing.T) {
	doc := Doc{
		{"a", Document(Doc{{"b", Array(Arr{Int32(0), Document(Doc{{"c", String("deep")}})})}})},
		{"x", Int32(1)},
	}

	testCases := []struct {
		name string
		path []string
		want Val
		err  error
	}{
		{"top level", []string{"x"}, Int32(1), nil},
		{"through array", []string{"a", "b", "1", "c"}, String("deep"), nil},
		{"array index", []string{"a", "b", "0"}, Int32(0), nil},
		{"missing", []string{"nope"}, Val{}, ErrElementNotFound},
		{"bad index", []string{"a", "b", "9"}, Val{}, ErrElementNotFound},
		{"non-container", []string{"x", "y"}, Val{}, ErrElementNotFound},
		{"empty path", nil, Val{}, ErrElementNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := doc.LookupErr(tc.path...)
			assert.Equal(t, tc.err, err)
			assert.True(t, tc.want.Equal(got), "want %v, got %v", tc.want, got)
		})
	}
	assert.Equal(t, "c", doc.LookupElement("a", "b", "1", "c").Key)
}

func TestValAccessorPanics(t *testing.T) {
	v := Int32(5)
	assert.PanicsWithValue(t, ElementTypeError{Method: "bsonx.Value.StringValue", Type: bson.TypeInt32}, func() {
		_ = v.StringValue()
	})
	_, ok := v.StringValueOK()
	assert.False(t, ok)
	i, ok := v.Int32OK()
	assert.True(t, ok)
	assert.Equal(t, int32(5), i)
}

func TestValEqual(t *testing.T) {
	assert.True(t, Double(math.NaN()).Equal(Double(math.NaN())))
	assert.False(t, Int32(1).Equal(Int64(1)))
	assert.False(t, Binary(0, []byte{1}).Equal(Binary(2, []byte{1})))
	assert.True(t, allTypesDoc().Equal(allTypesDoc()))

	orig := Document(Doc{{"bin", Binary(0, []byte{1, 2})}})
	cp := orig.Copy()
	_, data := cp.Document()[0].Value.Binary()
	data[0] = 9
	assert.False(t, orig.Equal(cp))
}

func TestValTime(t *testing.T) {
	tm := time.Date(2020, 1, 1, 0, 0, 0, 123456789, time.UTC)
	v := Time(tm)
	assert.Equal(t, int64(1577836800123), v.DateTime())
	assert.Equal(t, tm.Truncate(time.Millisecond), v.Time())
}

func TestDocString(t *testing.T) {
	s := allTypesDoc().String()
	assert.True(t, json.Valid([]byte(s)), s)

	assert.Equal(t, `{"a":1,"b":"x","c":[1.0,true,null]}`,
		Doc{{"a", Int32(1)}, {"b", String("x")}, {"c", Array(Arr{Double(1), Boolean(true), Null()})}}.String())
	assert.Equal(t, `{"$date":"2020-01-01T00:00:00.123Z"}`, DateTime(1577836800123).String())

	p := Doc{{"a", Int32(1)}}.Pretty()
	assert.Equal(t, "{\n  \"a\": 1\n}\n", p)
}

func TestValMarshalBSONValue(t *testing.T) {
	for _, elem := range allTypesDoc() {
		t.Run(elem.Key, func(t *testing.T) {
			typ, data, err := elem.Value.MarshalBSONValue()
			require.NoError(t, err)
			assert.Equal(t, elem.Value.Type(), typ)

			var got Val
			require.NoError(t, got.UnmarshalBSONValue(typ, data))
			assert.True(t, elem.Value.Equal(got), "want %v, got %v", elem.Value, got)
		})
	}

	_, _, err := Val{}.MarshalBSONValue()
	assert.Error(t, err)
}

type wrapper struct {
	Name  string `bson:"name"`
	Extra Doc    `bson:"extra"`
	Tags  Arr    `bson:"tags"`
	Any   Val    `bson:"any"`
}

func TestCodecsInStruct(t *testing.T) {
	in := wrapper{
		Name:  "w",
		Extra: Doc{{"k", String("v")}, {"n", Int64(9)}},
		Tags:  Arr{String("a"), Int32(2)},
		Any:   Regex("x", "i"),
	}

	registries := map[string]*bson.Registry{
		"hooks":  bson.DefaultRegistry,
		"codecs": RegisterCodecs(bson.NewRegistryBuilder()).Build(),
	}
	for name, reg := range registries {
		t.Run(name, func(t *testing.T) {
			b, err := bson.MarshalWithRegistry(reg, in)
			require.NoError(t, err)

			var out wrapper
			require.NoError(t, bson.UnmarshalWithRegistry(reg, b, &out))
			if diff := cmp.Diff(in, out, valCmp); diff != "" {
				t.Errorf("struct round trip mismatch (-want +got):\n%s", diff)
			}

			doc, err := ReadDoc(b)
			require.NoError(t, err)
			assert.Equal(t, "v", doc.Lookup("extra", "k").StringValue())
			assert.Equal(t, int32(2), doc.Lookup("tags", "1").Int32())
		})
	}
}

func TestEncodeErrorCarriesKeyPath(t *testing.T) {
	doc := Doc{{"outer", Document(Doc{{"inner", String("bad\xff")}})}}
	_, err := doc.MarshalBSON()
	var ee *bson.EncodingError
	require.True(t, errors.As(err, &ee), "expected *bson.EncodingError, got %v", err)
	assert.Equal(t, "outer.inner", ee.Key)
}
