// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package benchmark measures document encoding and decoding, batch splitting and compression.
package benchmark

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	ExecutionTimeout = 5 * time.Minute
	StandardRuntime  = time.Minute
	MinimumRuntime   = 10 * time.Second
	MinIterations    = 100

	ten         = 10
	hundred     = ten * ten
	thousand    = ten * hundred
	tenThousand = ten * thousand
)

// TimerManager is the subset of *testing.B a case uses to exclude its setup from the timings.
type TimerManager interface {
	ResetTimer()
	StartTimer()
	StopTimer()
}

// BenchCase runs iters operations. Setup done before tm.ResetTimer is not measured.
type BenchCase func(ctx context.Context, tm TimerManager, iters int) error

type BenchFunction func(*testing.B)

// WrapCase adapts a BenchCase to a testing benchmark.
func WrapCase(bench BenchCase) BenchFunction {
	name := getName(bench)
	return func(b *testing.B) {
		ctx := context.Background()
		b.ReportAllocs()
		b.ResetTimer()
		err := bench(ctx, b, b.N)
		require.NoError(b, err, "case='%s'", name)
	}
}

// AllCases returns the standard case definitions. Size is the number of bytes a single run of
// Count operations processes, or -1 when no throughput in bytes applies.
func AllCases() []*CaseDefinition {
	return []*CaseDefinition{
		{
			Bench:   FlatDocumentEncoding,
			Count:   tenThousand,
			Size:    flatDocumentSize() * tenThousand,
			Runtime: StandardRuntime,
		},
		{
			Bench:   FlatDocumentDecoding,
			Count:   tenThousand,
			Size:    flatDocumentSize() * tenThousand,
			Runtime: StandardRuntime,
		},
		{
			Bench:   DeepDocumentEncoding,
			Count:   tenThousand,
			Size:    deepDocumentSize() * tenThousand,
			Runtime: StandardRuntime,
		},
		{
			Bench:   StructEncoding,
			Count:   tenThousand,
			Size:    flatDocumentSize() * tenThousand,
			Runtime: StandardRuntime,
		},
		{
			Bench:   StructDecoding,
			Count:   tenThousand,
			Size:    flatDocumentSize() * tenThousand,
			Runtime: StandardRuntime,
		},
		{
			Bench:   MapEncoding,
			Count:   tenThousand,
			Size:    -1,
			Runtime: StandardRuntime,
		},
		{
			Bench:   InsertBatchSplitting,
			Count:   hundred,
			Size:    flatDocumentSize() * thousand * hundred,
			Runtime: StandardRuntime,
		},
		{
			Bench:   CommandBatchSplitting,
			Count:   hundred,
			Size:    flatDocumentSize() * thousand * hundred,
			Runtime: StandardRuntime,
		},
		{
			Bench:   SnappyCompression,
			Count:   thousand,
			Size:    -1,
			Runtime: MinimumRuntime,
		},
		{
			Bench:   ZlibCompression,
			Count:   thousand,
			Size:    -1,
			Runtime: MinimumRuntime,
		},
		{
			Bench:   ZstdCompression,
			Count:   thousand,
			Size:    -1,
			Runtime: MinimumRuntime,
		},
	}
}
