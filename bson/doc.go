// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bson reads and writes BSON documents and maps them onto Go values.
//
// The package has three layers. ValueWriter and ValueReader stream BSON to and from bytes: the
// writer reserves a length placeholder for every document and array and backpatches it when the
// container ends, and the reader checks every declared length, terminator and string against the
// bytes it consumes. Malformed input is reported as a *FormatError, values that cannot be written
// as a *EncodingError.
//
// On top of the streaming layer sits the serializer framework. A Registry resolves a ValueEncoder
// and ValueDecoder for a Go type in this order: an exact type registration, the Marshaler,
// ValueMarshaler, Unmarshaler and ValueUnmarshaler hooks, registered interface hooks, and finally
// the codec registered for the type's reflect.Kind. Results are memoised.
//
// Structs are described by a ClassMap. A class map is built once per type, either automatically
// from the exported fields or explicitly with NewClassMap and Registry.RegisterClassMap, and is
// frozen into an immutable member map before first use. Struct tags override conventions and
// explicit member settings override both:
//
//	type Order struct {
//		ID     ObjectID           `bson:"_id"`
//		Total  Decimal128         `bson:"total"`
//		Lines  map[string]int64   `bson:"lines,omitempty"`
//		Notes  *string            `bson:"notes,omitnull"`
//		Extra  M                  `bson:",inline"`
//	}
//
// Supported tag options are omitempty, omitnull, inline, minsize, required and truncate.
//
// Convention profiles supply the defaults that tags and explicit settings leave open: element
// names, the id member, default values, null and default suppression, the extra elements member
// and per-type representations. Profiles are registered with Registry.RegisterConventions and
// the most recently registered matching profile wins per concern.
//
// The third layer is polymorphism. When a value is held by an interface or by a struct that other
// types embed, a discriminator element (by default "_t") records the actual type. Known types
// are registered with Registry.RegisterKnownType or ClassMap.AddKnownType. A hierarchy with a
// root class writes the full chain of discriminators as an array; on decode the most derived
// known type wins. An unknown discriminator is a *DiscriminatorResolutionError.
//
// Marshal and Unmarshal use DefaultRegistry:
//
//	b, err := bson.Marshal(bson.D{{Key: "hello", Value: "world"}})
//	if err != nil {
//		return err
//	}
//	var out struct {
//		Hello string `bson:"hello"`
//	}
//	err = bson.Unmarshal(b, &out)
//
// Documents decoded into an empty interface become D unless the registry maps
// TypeEmbeddedDocument to M or DecodeContext.DefaultDocumentM is set.
package bson
