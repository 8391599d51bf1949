// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package benchmark

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type CaseDefinition struct {
	Bench   BenchCase
	Count   int
	Size    int
	Runtime time.Duration

	startAt time.Time
}

// Run repeats the case until Runtime has elapsed and at least MinIterations trials completed,
// or until ctx is done. Progress lines are written to out, which may be nil.
func (c *CaseDefinition) Run(ctx context.Context, out io.Writer) *BenchResult {
	res := &BenchResult{
		DataSize:   c.Size,
		Name:       c.Name(),
		Operations: c.Count,
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, ExecutionTimeout)
	defer cancel()

	if out == nil {
		out = io.Discard
	}
	fmt.Fprintln(out, "=== RUN", res.Name)
	c.startAt = time.Now()
	for {
		if time.Since(c.startAt) > c.Runtime {
			if res.Trials >= MinIterations {
				break
			} else if ctx.Err() != nil {
				break
			}
		}

		trial := c.trial(ctx)
		if errors.Is(trial.Error, context.Canceled) {
			break
		}
		res.Trials++
		res.Raw = append(res.Raw, trial)
	}
	res.Duration = time.Since(c.startAt)
	res.report(out)

	return res
}

// runTrials runs exactly n trials unless ctx is done first.
func (c *CaseDefinition) runTrials(ctx context.Context, n int) *BenchResult {
	res := &BenchResult{
		DataSize:   c.Size,
		Name:       c.Name(),
		Operations: c.Count,
	}
	c.startAt = time.Now()
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			res.Raw = append(res.Raw, Result{Error: ctx.Err()})
			break
		}
		res.Trials++
		res.Raw = append(res.Raw, c.trial(ctx))
	}
	res.Duration = time.Since(c.startAt)
	return res
}

func (c *CaseDefinition) trial(ctx context.Context) Result {
	tm := &trialTimer{}
	tm.StartTimer()
	err := c.Bench(ctx, tm, c.Count)
	tm.StopTimer()

	return Result{
		Iterations: c.Count,
		Duration:   tm.elapsed,
		Error:      err,
	}
}

func (c *CaseDefinition) String() string {
	return fmt.Sprintf("name=%s, count=%d, runtime=%s timeout=%s",
		c.Name(), c.Count, c.Runtime, ExecutionTimeout)
}

func (c *CaseDefinition) Name() string { return getName(c.Bench) }

func getName(i interface{}) string {
	n := runtime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
	parts := strings.Split(n, ".")
	if len(parts) > 1 {
		return parts[len(parts)-1]
	}

	return n
}

// trialTimer measures a single trial the way testing.B measures a benchmark: time spent before
// ResetTimer or between StopTimer and StartTimer is not counted.
type trialTimer struct {
	start   time.Time
	elapsed time.Duration
	running bool
}

func (t *trialTimer) ResetTimer() {
	t.elapsed = 0
	if t.running {
		t.start = time.Now()
	}
}

func (t *trialTimer) StartTimer() {
	if !t.running {
		t.start = time.Now()
		t.running = true
	}
}

func (t *trialTimer) StopTimer() {
	if t.running {
		t.elapsed += time.Since(t.start)
		t.running = false
	}
}
