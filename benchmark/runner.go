// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package benchmark

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run runs every case for the given number of trials, with at most parallelism cases running at
// once. Results are returned in the order of cases. A failing trial is recorded in its result and
// does not stop the other cases; cancelling ctx does.
func Run(ctx context.Context, cases []*CaseDefinition, trials, parallelism int) []*BenchResult {
	if parallelism < 1 {
		parallelism = 1
	}
	results := make([]*BenchResult, len(cases))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, c := range cases {
		i, c := i, c
		g.Go(func() error {
			results[i] = c.runTrials(ctx, trials)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
