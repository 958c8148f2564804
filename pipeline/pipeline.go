// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/fundvault/fv-ledger/ledger"
	"github.com/fundvault/fv-ledger/observability/opentelemetry"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

// Inputs carries the four reference tables and the two external feeds a run
// consumes. All tables are in-memory; loading is the data package's concern.
type Inputs struct {
	Funds         []*ledger.Fund
	Investors     []*ledger.Investor
	Announcements []*ledger.Announcement
	Prices        []*ledger.PricePoint
	Events        []*ledger.RawEvent
	Snapshots     []*ledger.RawSnapshot
}

// Options tunes a pipeline run
type Options struct {
	// BaselineNAV is the par issue price returns are measured against
	BaselineNAV float64
	// Tolerance bounds relative error in ownership and reconciliation checks
	Tolerance float64
	// Clamp controls handling of events that precede a fund's history
	Clamp ledger.ClampPolicy
	// Workers caps the per-fund allocation fan-out; 0 means NumCPU
	Workers int
}

// Result is the complete output generation of one run. Record sets are
// sorted deterministically; two runs over the same inputs produce identical
// results.
type Result struct {
	RunID        uuid.UUID
	Started      time.Time
	Finished     time.Time
	Fund         []*ledger.Record
	FundInvestor []*ledger.Record
	Investor     []*ledger.Record
	Holding      []*ledger.Record
	Global       []*ledger.Record
	Diagnostics  *ledger.Diagnostics
}

// Records returns all five ledgers concatenated
func (r *Result) Records() []*ledger.Record {
	out := make([]*ledger.Record, 0, len(r.Fund)+len(r.FundInvestor)+len(r.Investor)+len(r.Holding)+len(r.Global))
	out = append(out, r.Fund...)
	out = append(out, r.FundInvestor...)
	out = append(out, r.Investor...)
	out = append(out, r.Holding...)
	out = append(out, r.Global...)
	return out
}

func validate(inputs *Inputs) error {
	if len(inputs.Funds) == 0 {
		return fmt.Errorf("%w: funds", ledger.ErrMissingReference)
	}
	if len(inputs.Investors) == 0 {
		return fmt.Errorf("%w: investors", ledger.ErrMissingReference)
	}
	if len(inputs.Snapshots) == 0 {
		return fmt.Errorf("%w: snapshots", ledger.ErrEmptyInput)
	}
	if len(inputs.Events) == 0 {
		return fmt.Errorf("%w: events", ledger.ErrEmptyInput)
	}
	return nil
}

// Run executes the full ledger pipeline: normalize both feeds, accumulate
// running totals, sample them per time frame, allocate fund metrics across
// investors, compute returns, roll up, and reconcile. Reference-data and
// data-quality problems are accumulated in Result.Diagnostics; only empty or
// missing inputs abort the run.
func Run(ctx context.Context, inputs *Inputs, opts *Options) (*Result, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pipeline.Run")
	defer span.End()

	if err := validate(inputs); err != nil {
		log.Error().Err(err).Msg("pipeline inputs failed validation")
		return nil, err
	}

	result := &Result{
		RunID:       uuid.New(),
		Started:     time.Now(),
		Diagnostics: &ledger.Diagnostics{},
	}
	subLog := log.With().Str("RunID", result.RunID.String()).Logger()
	subLog.Info().Int("NumEvents", len(inputs.Events)).Int("NumSnapshots", len(inputs.Snapshots)).Msg("pipeline run starting")

	_, normSpan := otel.Tracer(opentelemetry.Name).Start(ctx, "pipeline.normalize")
	snaps := ledger.NewSnapshotNormalizer(inputs.Funds, inputs.Prices, inputs.Announcements).
		Normalize(inputs.Snapshots, result.Diagnostics)
	events := ledger.NewEventNormalizer(inputs.Funds, inputs.Investors, snaps, opts.Clamp).
		Normalize(inputs.Events, result.Diagnostics)
	normSpan.End()

	_, aggSpan := otel.Tracer(opentelemetry.Name).Start(ctx, "pipeline.aggregate")
	entries := ledger.NewAggregator(events).Entries(snaps)
	aggSpan.End()

	allocCtx, allocSpan := otel.Tracer(opentelemetry.Name).Start(ctx, "pipeline.allocate")
	records, err := allocate(allocCtx, snaps, entries, opts, result.Diagnostics)
	allocSpan.End()
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		switch rec.Kind {
		case ledger.KindFund:
			result.Fund = append(result.Fund, rec)
		case ledger.KindFundInvestor:
			result.FundInvestor = append(result.FundInvestor, rec)
		}
	}

	_, rollupSpan := otel.Tracer(opentelemetry.Name).Start(ctx, "pipeline.rollup")
	result.Investor = ledger.RollupInvestors(result.FundInvestor)
	result.Holding = ledger.RollupHoldings(result.Fund)
	result.Global = ledger.RollupGlobal(result.Fund)
	rollupSpan.End()

	_, returnsSpan := otel.Tracer(opentelemetry.Name).Start(ctx, "pipeline.returns")
	calc := ledger.ReturnCalculator{Baseline: opts.BaselineNAV}
	calc.Apply(result.Records(), result.Diagnostics)
	returnsSpan.End()

	ledger.Reconcile(result.Fund, result.FundInvestor, opts.Tolerance, result.Diagnostics)

	sortRecords(result.Fund)
	sortRecords(result.FundInvestor)
	sortRecords(result.Investor)
	sortRecords(result.Holding)
	sortRecords(result.Global)

	result.Finished = time.Now()
	subLog.Info().
		Int("NumFund", len(result.Fund)).
		Int("NumFundInvestor", len(result.FundInvestor)).
		Int("NumInvestor", len(result.Investor)).
		Int("NumHolding", len(result.Holding)).
		Int("NumGlobal", len(result.Global)).
		Int("NumIssues", result.Diagnostics.Len()).
		Dur("Elapsed", result.Finished.Sub(result.Started)).
		Msg("pipeline run complete")
	return result, nil
}

// allocate fans the allocation stage out per fund. Each fund's entries are
// independent, so funds run concurrently up to the worker cap.
func allocate(ctx context.Context, snaps []*ledger.Snapshot, entries []*ledger.CumulativeEntry, opts *Options, diags *ledger.Diagnostics) ([]*ledger.Record, error) {
	perFund := make(map[string][]*ledger.CumulativeEntry)
	fundIDs := make([]string, 0)
	for _, entry := range entries {
		if _, ok := perFund[entry.FundID]; !ok {
			fundIDs = append(fundIDs, entry.FundID)
		}
		perFund[entry.FundID] = append(perFund[entry.FundID], entry)
	}
	sort.Strings(fundIDs)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	allocator := ledger.NewAllocator(snaps, opts.Tolerance)
	results := make([][]*ledger.Record, len(fundIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx, fundID := range fundIDs {
		idx := idx
		fundID := fundID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[idx] = allocator.Build(perFund[fundID], diags)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*ledger.Record, 0, len(entries))
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}

// sortRecords orders a ledger for stable output: entity, frame, then date
func sortRecords(recs []*ledger.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		if a.TimeFrame != b.TimeFrame {
			return a.TimeFrame < b.TimeFrame
		}
		return a.Date.Before(b.Date)
	})
}
