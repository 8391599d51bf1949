// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package benchmark

import (
	"context"
	"fmt"

	"github.com/ikmak/docwire/bson"
	"github.com/pkg/errors"
)

func FlatDocumentEncoding(ctx context.Context, tm TimerManager, iters int) error {
	doc := flatDocument(1)
	var buf []byte
	var err error

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		buf, err = doc.AppendMarshalBSON(buf[:0])
		if err != nil {
			return err
		}
		if len(buf) == 0 {
			return errors.New("encoding failed")
		}
	}
	return nil
}

func FlatDocumentDecoding(ctx context.Context, tm TimerManager, iters int) error {
	raw, err := flatDocument(1).MarshalBSON()
	if err != nil {
		return err
	}

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		var out bson.D
		if err := bson.Unmarshal(raw, &out); err != nil {
			return err
		}
		if len(out) == 0 {
			return errors.New("decoding failed")
		}
	}
	return nil
}

func DeepDocumentEncoding(ctx context.Context, tm TimerManager, iters int) error {
	doc := deepDocument(32)
	var buf []byte
	var err error

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		buf, err = doc.AppendMarshalBSON(buf[:0])
		if err != nil {
			return err
		}
	}
	return nil
}

func StructEncoding(ctx context.Context, tm TimerManager, iters int) error {
	rec := newFlatRecord(1)
	var buf []byte
	var err error

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		buf, err = bson.MarshalAppend(buf[:0], rec)
		if err != nil {
			return err
		}
		if len(buf) == 0 {
			return errors.New("encoding failed")
		}
	}
	return nil
}

func StructDecoding(ctx context.Context, tm TimerManager, iters int) error {
	raw, err := bson.Marshal(newFlatRecord(1))
	if err != nil {
		return err
	}

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		var out flatRecord
		if err := bson.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	return nil
}

func MapEncoding(ctx context.Context, tm TimerManager, iters int) error {
	m := make(map[string]int32, hundred)
	for i := 0; i < hundred; i++ {
		m[fmt.Sprintf("key%03d", i)] = int32(i)
	}
	doc := struct{ M map[string]int32 }{M: m}
	var buf []byte
	var err error

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		buf, err = bson.MarshalAppend(buf[:0], doc)
		if err != nil {
			return err
		}
	}
	return nil
}
