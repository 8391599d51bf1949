// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package benchmark

import (
	"context"

	"github.com/ikmak/docwire/x/mongo/driver/wiremessage"
	"github.com/pkg/errors"
)

// splitLimits force a thousand flat documents into several messages.
var splitLimits = wiremessage.BatchLimits{
	MaxBatchCount:   hundred,
	MaxMessageSize:  64 * 1024,
	MaxDocumentSize: 16 * 1024,
}

type batchEncoder interface {
	Encode(requestID int32, bp *wiremessage.BatchProgress) (*wiremessage.Batch, error)
}

func splitAll(enc batchEncoder, docs []interface{}) error {
	bp := wiremessage.NewBatchProgress(docs, true)
	for !bp.Done() {
		batch, err := enc.Encode(wiremessage.NextRequestID(), bp)
		if err != nil {
			return err
		}
		if len(batch.Documents) == 0 {
			return errors.New("empty batch")
		}
	}
	if bp.Written != len(docs) {
		return errors.Errorf("wrote %d of %d documents", bp.Written, len(docs))
	}
	return nil
}

func InsertBatchSplitting(ctx context.Context, tm TimerManager, iters int) error {
	docs := flatRecords(thousand)
	enc := &wiremessage.InsertEncoder{FullCollectionName: "bench.records", Limits: splitLimits}

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := splitAll(enc, docs); err != nil {
			return err
		}
	}
	return nil
}

func CommandBatchSplitting(ctx context.Context, tm TimerManager, iters int) error {
	docs := flatRecords(thousand)
	enc := wiremessage.NewInsertCommand("bench", "records", true)
	enc.Limits = splitLimits

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := splitAll(enc, docs); err != nil {
			return err
		}
	}
	return nil
}

func compressionCase(ctx context.Context, tm TimerManager, iters int, compressor wiremessage.CompressorID) error {
	enc := wiremessage.NewInsertCommand("bench", "records", true)
	batch, err := enc.Encode(1, wiremessage.NewBatchProgress(flatRecords(hundred), false))
	if err != nil {
		return err
	}
	opts := wiremessage.CompressionOpts{
		Compressor: compressor,
		ZlibLevel:  wiremessage.DefaultZlibLevel,
		ZstdLevel:  wiremessage.DefaultZstdLevel,
	}

	tm.ResetTimer()
	for i := 0; i < iters; i++ {
		wm, err := wiremessage.CompressWireMessage(batch.Message, opts, nil)
		if err != nil {
			return err
		}
		if _, err := wiremessage.DecodeDecompressed(wm); err != nil {
			return err
		}
	}
	return nil
}

func SnappyCompression(ctx context.Context, tm TimerManager, iters int) error {
	return compressionCase(ctx, tm, iters, wiremessage.CompressorSnappy)
}

func ZlibCompression(ctx context.Context, tm TimerManager, iters int) error {
	return compressionCase(ctx, tm, iters, wiremessage.CompressorZLib)
}

func ZstdCompression(ctx context.Context, tm TimerManager, iters int) error {
	return compressionCase(ctx, tm, iters, wiremessage.CompressorZstd)
}
