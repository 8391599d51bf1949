// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/ikmak/docwire/internal/logger"
	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type celsius float64

func (c celsius) MarshalBSONValue() (Type, []byte, error) {
	return TypeString, bsoncore.AppendString(nil, fmt.Sprintf("%.1fC", float64(c))), nil
}

func (c *celsius) UnmarshalBSONValue(t Type, data []byte) error {
	if t != TypeString {
		return errors.Errorf("cannot decode %v into celsius", t)
	}
	s, _, ok := bsoncore.ReadString(data)
	if !ok {
		return errors.New("malformed string")
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%fC", &f); err != nil {
		return err
	}
	*c = celsius(f)
	return nil
}

type addrMarshaler struct {
	N int32
}

func (a *addrMarshaler) MarshalBSON() ([]byte, error) {
	return Marshal(D{{"wrapped", a.N}})
}

type reading struct {
	Temp celsius
	Addr addrMarshaler
}

func TestRegistryLookupOrder(t *testing.T) {
	b, err := Marshal(&reading{Temp: 21.5, Addr: addrMarshaler{N: 3}})
	require.NoError(t, err)

	var s string
	require.NoError(t, Raw(b).Lookup("Temp").Unmarshal(&s))
	assert.Equal(t, "21.5C", s, "ValueMarshaler hooks win over kind codecs")
	assert.Equal(t, []string{"wrapped"}, elementKeys(t, Raw(b).Lookup("Addr").Value),
		"pointer receiver hooks apply to addressable values")

	var out reading
	require.NoError(t, Unmarshal(b, &out))
	assert.Equal(t, celsius(21.5), out.Temp)

	r := NewRegistry()
	r.RegisterTypeEncoder(reflect.TypeOf(celsius(0)), ValueEncoderFunc(func(_ EncodeContext, vw ValueWriter, v reflect.Value) error {
		return vw.WriteDouble(v.Float())
	}))
	b, err = MarshalWithRegistry(r, reading{Temp: 21.5})
	require.NoError(t, err)
	assert.Equal(t, TypeDouble, Raw(b).Lookup("Temp").Type, "exact type registrations win over hooks")
}

func TestRegistryCacheInvalidation(t *testing.T) {
	r := NewRegistry()
	tInt := reflect.TypeOf(int32(0))

	b, err := MarshalWithRegistry(r, D{{"n", int32(7)}})
	require.NoError(t, err)
	assert.Equal(t, TypeInt32, Raw(b).Lookup("n").Type)

	custom := ValueEncoderFunc(func(_ EncodeContext, vw ValueWriter, v reflect.Value) error {
		return vw.WriteString(fmt.Sprint(v.Int()))
	})
	r.RegisterTypeEncoder(tInt, custom)

	b, err = MarshalWithRegistry(r, D{{"n", int32(7)}})
	require.NoError(t, err)
	assert.Equal(t, TypeString, Raw(b).Lookup("n").Type)
}

func TestRegistryBuilderClones(t *testing.T) {
	rb := NewRegistryBuilder()
	first := rb.Build()
	rb.RegisterTypeMapEntry(TypeEmbeddedDocument, reflect.TypeOf(M{}))
	second := rb.Build()

	b, err := Marshal(D{{"doc", D{{"a", int32(1)}}}})
	require.NoError(t, err)

	var v1, v2 struct{ Doc interface{} }
	require.NoError(t, UnmarshalWithRegistry(first, b, &v1))
	require.NoError(t, UnmarshalWithRegistry(second, b, &v2))
	assert.Equal(t, D{{"a", int32(1)}}, v1.Doc)
	assert.Equal(t, M{"a": int32(1)}, v2.Doc)

	rt, err := second.LookupTypeMapEntry(TypeEmbeddedDocument)
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(M{}), rt)
}

func TestEmptyRegistry(t *testing.T) {
	r := NewEmptyRegistryBuilder().Build()
	_, err := r.LookupEncoder(reflect.TypeOf(""))
	assert.IsType(t, ErrNoEncoder{}, err)
	_, err = r.LookupDecoder(reflect.TypeOf(""))
	assert.IsType(t, ErrNoDecoder{}, err)

	_, err = r.LookupEncoder(nil)
	assert.Equal(t, ErrNilType, err)

	_, err = MarshalWithRegistry(nil, D{})
	assert.Equal(t, ErrNilRegistry, err)
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordingSink) Info(_ int, msg string, _ ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSink) Error(_ error, msg string, _ ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func TestRegistryLogging(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry()
	r.SetLogger(logger.New(sink, map[logger.Component]logger.Level{
		logger.ComponentSerialization: logger.DebugLevel,
	}))

	require.NoError(t, r.RegisterKnownType(tShape, reflect.TypeOf(Circle{})))
	_ = r.RegisterClassMap(NewClassMap(reflect.TypeOf(clashingNames{})).AutoMap())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Contains(t, sink.msgs, "class map frozen")
	assert.Contains(t, sink.msgs, "known type registered")
	assert.Contains(t, sink.msgs, "class map rejected")
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry()
	email := "c@example.com"

	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < 16; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				in := customer{ID: NewObjectID(), FirstName: fmt.Sprint(i), Email: &email}
				b, err := MarshalWithRegistry(r, in)
				if err != nil {
					return err
				}
				var out customer
				if err := UnmarshalWithRegistry(r, b, &out); err != nil {
					return err
				}
				if out.FirstName != in.FirstName || out.ID != in.ID {
					return errors.Errorf("goroutine %d: got %+v", i, out)
				}

				b, err = MarshalWithRegistry(r, drawing{Main: Circle{R: float64(j)}})
				if err != nil {
					return err
				}
				var d drawing
				err = UnmarshalWithRegistry(r, b, &d)
				var dre *DiscriminatorResolutionError
				if err != nil && !errors.As(err, &dre) {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := r.RegisterKnownType(tShape, reflect.TypeOf(Circle{})); err != nil {
			return err
		}
		r.RegisterConventions("nulls", &ConventionProfile{IgnoreIfNull: AlwaysIgnoreIfNullConvention{}}, nil)
		r.RemoveConventions("nulls")
		return nil
	})
	require.NoError(t, g.Wait())

	b, err := MarshalWithRegistry(r, drawing{Main: Circle{R: 1}})
	require.NoError(t, err)
	var d drawing
	require.NoError(t, UnmarshalWithRegistry(r, b, &d))
	assert.Equal(t, Circle{R: 1}, d.Main)
}
