// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package benchmark

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ikmak/docwire/bson"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func BenchmarkFlatDocumentEncoding(b *testing.B) { WrapCase(FlatDocumentEncoding)(b) }
func BenchmarkFlatDocumentDecoding(b *testing.B) { WrapCase(FlatDocumentDecoding)(b) }
func BenchmarkDeepDocumentEncoding(b *testing.B) { WrapCase(DeepDocumentEncoding)(b) }
func BenchmarkStructEncoding(b *testing.B)       { WrapCase(StructEncoding)(b) }
func BenchmarkStructDecoding(b *testing.B)       { WrapCase(StructDecoding)(b) }
func BenchmarkMapEncoding(b *testing.B)          { WrapCase(MapEncoding)(b) }
func BenchmarkInsertBatchSplitting(b *testing.B) { WrapCase(InsertBatchSplitting)(b) }
func BenchmarkCommandBatchSplitting(b *testing.B) {
	WrapCase(CommandBatchSplitting)(b)
}
func BenchmarkSnappyCompression(b *testing.B) { WrapCase(SnappyCompression)(b) }
func BenchmarkZlibCompression(b *testing.B)   { WrapCase(ZlibCompression)(b) }
func BenchmarkZstdCompression(b *testing.B)   { WrapCase(ZstdCompression)(b) }

func CanaryIncCase(ctx context.Context, tm TimerManager, iters int) error {
	var canaryCount int
	for i := 0; i < iters; i++ {
		canaryCount++
	}
	if canaryCount != iters {
		return errors.Errorf("counted %d of %d", canaryCount, iters)
	}
	return nil
}

func failingCase(ctx context.Context, tm TimerManager, iters int) error {
	return errors.New("boom")
}

func TestFixturesMatch(t *testing.T) {
	fromTree, err := flatDocument(7).MarshalBSON()
	require.NoError(t, err)
	fromStruct, err := bson.Marshal(newFlatRecord(7))
	require.NoError(t, err)
	assert.Equal(t, fromTree, fromStruct)
	assert.Equal(t, len(fromTree), flatDocumentSize())
	assert.Greater(t, deepDocumentSize(), 32*10)
}

func TestAllCasesRunOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	for _, c := range AllCases() {
		c := c
		t.Run(c.Name(), func(t *testing.T) {
			require.NoError(t, c.Bench(context.Background(), &trialTimer{}, 2))
		})
	}
}

func TestRun(t *testing.T) {
	var running, peak int32
	slow := func(ctx context.Context, tm TimerManager, iters int) error {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return nil
	}

	cases := []*CaseDefinition{
		{Bench: CanaryIncCase, Count: hundred, Size: -1},
		{Bench: failingCase, Count: 1, Size: -1},
		{Bench: slow, Count: 1, Size: 10},
		{Bench: slow, Count: 1, Size: 10},
		{Bench: slow, Count: 1, Size: 10},
	}
	results := Run(context.Background(), cases, 5, 2)
	require.Len(t, results, len(cases))

	assert.Equal(t, "CanaryIncCase", results[0].Name)
	assert.Equal(t, 5, results[0].Trials)
	assert.False(t, results[0].HasErrors())

	assert.True(t, results[1].HasErrors())
	assert.Equal(t, []string{"boom"}, results[1].Errors())
	_, err := results[1].Summary()
	assert.Error(t, err, "a case without successful trials has no summary")

	s, err := results[2].Summary()
	require.NoError(t, err)
	assert.Equal(t, 5, s.Trials)
	assert.Greater(t, s.OpsPerSecond, 0.0)
	assert.GreaterOrEqual(t, s.OpsMax, s.OpsPerSecond)
	assert.LessOrEqual(t, s.OpsMin, s.OpsPerSecond)
	assert.Greater(t, s.MBPerSecond, 0.0)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Run(ctx, []*CaseDefinition{{Bench: CanaryIncCase, Count: 1}}, 3, 1)
	require.Len(t, results, 1)
	if results[0] != nil {
		assert.Equal(t, 0, results[0].Trials)
	}
}

func TestSummaryThroughput(t *testing.T) {
	r := &BenchResult{
		Name:       "fixed",
		Operations: 100,
		DataSize:   2000000,
		Raw: []Result{
			{Duration: time.Second},
			{Duration: 2 * time.Second},
			{Duration: 4 * time.Second},
			{Error: errors.New("ignored")},
		},
	}
	s, err := r.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Trials)
	assert.InDelta(t, 50, s.OpsPerSecond, 0.001)
	assert.InDelta(t, 25, s.OpsMin, 0.001)
	assert.InDelta(t, 100, s.OpsMax, 0.001)
	assert.InDelta(t, 1, s.MBPerSecond, 0.001)
	assert.Contains(t, s.String(), "fixed: trials=3")
}

func TestTrialTimer(t *testing.T) {
	tm := &trialTimer{}
	tm.StartTimer()
	time.Sleep(5 * time.Millisecond)
	tm.ResetTimer()
	tm.StopTimer()
	assert.Less(t, tm.elapsed, 5*time.Millisecond)

	tm.StartTimer()
	time.Sleep(2 * time.Millisecond)
	tm.StopTimer()
	assert.GreaterOrEqual(t, tm.elapsed, 2*time.Millisecond)
}

func TestCaseDefinitionRun(t *testing.T) {
	c := &CaseDefinition{Bench: CanaryIncCase, Count: ten, Runtime: time.Millisecond}
	var out bytes.Buffer
	res := c.Run(context.Background(), &out)
	assert.GreaterOrEqual(t, res.Trials, MinIterations)
	assert.Contains(t, out.String(), "=== RUN CanaryIncCase")
	assert.Contains(t, out.String(), "--- PASS: CanaryIncCase")
}
