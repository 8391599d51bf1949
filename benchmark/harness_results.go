// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package benchmark

import (
	"fmt"
	"io"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// BenchResult collects the trials of one case.
type BenchResult struct {
	Name       string
	Trials     int
	Duration   time.Duration
	Raw        []Result
	DataSize   int
	Operations int
}

// Result is a single trial.
type Result struct {
	Duration   time.Duration
	Iterations int
	Error      error
}

// Summary holds the throughput of a case in operations per second. The MB fields are zero when
// the case has no data size.
type Summary struct {
	Name           string
	Trials         int
	OpsPerSecond   float64
	OpsMin         float64
	OpsMax         float64
	OpsP90         float64
	MBPerSecond    float64
	MBPerSecondP90 float64
}

// Summary computes throughput from the median, fastest, slowest and 90th percentile trial
// timings. Failed trials are excluded.
func (r *BenchResult) Summary() (*Summary, error) {
	timings := r.timings()
	if len(timings) == 0 {
		return nil, errors.Errorf("%s: no successful trials", r.Name)
	}

	median, err := stats.Median(timings)
	if err != nil {
		return nil, err
	}
	min, err := stats.Min(timings)
	if err != nil {
		return nil, err
	}
	max, err := stats.Max(timings)
	if err != nil {
		return nil, err
	}
	// p90 of the timings is the slow tail
	p90, err := stats.Percentile(timings, 90)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Name:         r.Name,
		Trials:       len(timings),
		OpsPerSecond: r.getThroughput(median),
		OpsMin:       r.getThroughput(max),
		OpsMax:       r.getThroughput(min),
		OpsP90:       r.getThroughput(p90),
	}
	if r.DataSize > 0 {
		s.MBPerSecond = r.adjustResults(median)
		s.MBPerSecondP90 = r.adjustResults(p90)
	}
	return s, nil
}

func (s *Summary) String() string {
	out := fmt.Sprintf("%s: trials=%d ops/s=%.0f (min=%.0f max=%.0f p90=%.0f)",
		s.Name, s.Trials, s.OpsPerSecond, s.OpsMin, s.OpsMax, s.OpsP90)
	if s.MBPerSecond > 0 {
		out += fmt.Sprintf(" MB/s=%.2f (p90=%.2f)", s.MBPerSecond, s.MBPerSecondP90)
	}
	return out
}

func (r *BenchResult) timings() []float64 {
	out := []float64{}
	for _, res := range r.Raw {
		if res.Error != nil || res.Duration <= 0 {
			continue
		}
		out = append(out, res.Duration.Seconds())
	}
	return out
}

func (r *BenchResult) adjustResults(data float64) float64 {
	return float64(r.DataSize) / data / 1000000
}
func (r *BenchResult) getThroughput(data float64) float64 { return float64(r.Operations) / data }

func (r *BenchResult) String() string {
	return fmt.Sprintf("name=%s, trials=%d, secs=%s", r.Name, r.Trials, r.Duration)
}

// HasErrors reports whether any trial failed.
func (r *BenchResult) HasErrors() bool {
	for _, res := range r.Raw {
		if res.Error != nil {
			return true
		}
	}
	return false
}

// Errors returns the distinct error messages of failed trials.
func (r *BenchResult) Errors() []string {
	seen := map[string]bool{}
	errs := []string{}
	for _, res := range r.Raw {
		if res.Error == nil || seen[res.Error.Error()] {
			continue
		}
		seen[res.Error.Error()] = true
		errs = append(errs, res.Error.Error())
	}
	return errs
}

func (r *BenchResult) report(out io.Writer) {
	status := "PASS"
	if r.HasErrors() {
		status = "FAIL"
	}
	fmt.Fprintf(out, "--- %s: %s (%s)\n", status, r.Name, roundDurationMS(r.Duration))
	for _, e := range r.Errors() {
		fmt.Fprintf(out, "    %s\n", e)
	}
}

func roundDurationMS(d time.Duration) time.Duration {
	rounded := d.Round(time.Millisecond)
	if rounded == 1<<63-1 {
		return 0
	}
	return rounded
}
