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

package ledger

import (
	"sort"
	"time"

	"github.com/fundvault/fv-ledger/calendar"
	"github.com/fundvault/fv-ledger/dataframe"

	"github.com/rs/zerolog/log"
)

const (
	colCumIssuedUnits     = "CumIssuedUnits"
	colCumCancelledUnits  = "CumCancelledUnits"
	colCumIssuedAmount    = "CumIssuedAmount"
	colCumCancelledAmount = "CumCancelledAmount"
)

// entityKey identifies one running-total series. A fund-level key carries no
// investor code.
type entityKey struct {
	kind         EntityKind
	fundID       string
	investorCode string
}

// Aggregator maintains lifetime running totals of issued/cancelled units and
// amounts per entity key. Totals are prefix sums over the full event history;
// time frames enter only at sampling, where each series is read at the last
// reporting date of every bucket.
type Aggregator struct {
	frames map[entityKey]*dataframe.DataFrame
	totals map[entityKey]*CumulativeEntry
}

// NewAggregator replays the normalized event feed in (date, arrival) order
// and accumulates one running-total series per fund and per (fund, investor)
// pair. Cross-fund investor totals fall out of the rollup stage, which sums
// each fund position's latest prefix sum.
func NewAggregator(events []*Event) *Aggregator {
	agg := &Aggregator{
		frames: make(map[entityKey]*dataframe.DataFrame),
		totals: make(map[entityKey]*CumulativeEntry),
	}

	ordered := make([]*Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	for _, event := range ordered {
		agg.apply(entityKey{kind: KindFund, fundID: event.FundID}, event)
		agg.apply(entityKey{kind: KindFundInvestor, fundID: event.FundID, investorCode: event.InvestorCode}, event)
	}

	log.Info().Int("NumEvents", len(events)).Int("NumSeries", len(agg.frames)).Msg("accumulated event history")
	return agg
}

// apply folds one event into the key's running totals. Several events on the
// same date collapse into a single row holding the end-of-day totals.
func (agg *Aggregator) apply(key entityKey, event *Event) {
	total, ok := agg.totals[key]
	if !ok {
		total = &CumulativeEntry{
			Kind:         key.kind,
			FundID:       key.fundID,
			InvestorCode: key.investorCode,
		}
		agg.totals[key] = total
		agg.frames[key] = dataframe.New(colCumIssuedUnits, colCumCancelledUnits, colCumIssuedAmount, colCumCancelledAmount)
	}

	total.CumIssuedUnits += event.IssuedUnits
	total.CumCancelledUnits += event.CancelledUnits
	total.CumIssuedAmount += event.IssuedAmount
	total.CumCancelledAmount += event.CancelledAmount

	df := agg.frames[key]
	row := map[string]float64{
		colCumIssuedUnits:     total.CumIssuedUnits,
		colCumCancelledUnits:  total.CumCancelledUnits,
		colCumIssuedAmount:    total.CumIssuedAmount,
		colCumCancelledAmount: total.CumCancelledAmount,
	}

	if last := df.Len(); last > 0 && df.Dates[last-1].Equal(event.Date) {
		for colName, val := range row {
			df.Vals[df.ColIndex(colName)][last-1] = val
		}
		return
	}
	df.InsertMap(event.Date, row)
}

// sampledBucket pairs a bucket key with the last reporting date inside it
type sampledBucket struct {
	date   time.Time
	bucket calendar.BucketKey
}

// bucketEnds reduces an ascending reporting calendar to one sampling point
// per bucket of the frame: the final date of each bucket.
func bucketEnds(dates []time.Time, frame calendar.TimeFrame) []sampledBucket {
	out := make([]sampledBucket, 0, len(dates))
	for _, dt := range dates {
		bucket, err := calendar.BucketOf(dt, frame)
		if err != nil {
			log.Panic().Err(err).Time("Date", dt).Str("TimeFrame", string(frame)).Msg("cannot bucket reporting date")
		}
		if n := len(out); n > 0 && out[n-1].bucket == bucket {
			out[n-1].date = dt
			continue
		}
		out = append(out, sampledBucket{date: dt, bucket: bucket})
	}
	return out
}

// regimeEnds reduces a fund's snapshot history to one sampling point per
// corporate-action regime: the final report date of each announcement or
// contract. Reports outside any regime are skipped. A regime that lapses
// and later resumes (nested intervals allow it) keeps a single sampling
// point at its last report date.
func regimeEnds(snaps []*Snapshot, frame calendar.TimeFrame) []sampledBucket {
	out := make([]sampledBucket, 0, len(snaps))
	seen := make(map[calendar.BucketKey]int)
	for _, snap := range snaps {
		var id string
		switch frame {
		case calendar.Announcement:
			id = snap.AnnouncementID
		case calendar.Contract:
			id = snap.ContractNumber
		}
		if id == "" {
			continue
		}

		bucket := calendar.BucketKey(id)
		if idx, ok := seen[bucket]; ok {
			out[idx].date = snap.Date
			continue
		}
		seen[bucket] = len(out)
		out = append(out, sampledBucket{date: snap.Date, bucket: bucket})
	}
	return out
}

// Entries samples every running-total series on its fund's reporting
// calendar, once per bucket of every time frame. A series yields entries
// only from its first event onward.
func (agg *Aggregator) Entries(snaps []*Snapshot) []*CumulativeEntry {
	perFund := make(map[string][]*Snapshot)
	for _, snap := range snaps {
		perFund[snap.FundID] = append(perFund[snap.FundID], snap)
	}

	fundDates := make(map[string][]time.Time, len(perFund))
	for fundID, fundSnaps := range perFund {
		dates := make([]time.Time, len(fundSnaps))
		for idx, snap := range fundSnaps {
			dates[idx] = snap.Date
		}
		fundDates[fundID] = dates
	}

	out := make([]*CumulativeEntry, 0, len(agg.frames))
	for key, df := range agg.frames {
		for _, frame := range calendar.CalendarFrames() {
			out = append(out, agg.sample(key, df, bucketEnds(fundDates[key.fundID], frame), frame)...)
		}
		for _, frame := range calendar.EventFrames() {
			out = append(out, agg.sample(key, df, regimeEnds(perFund[key.fundID], frame), frame)...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.FundID != b.FundID {
			return a.FundID < b.FundID
		}
		if a.InvestorCode != b.InvestorCode {
			return a.InvestorCode < b.InvestorCode
		}
		if a.TimeFrame != b.TimeFrame {
			return a.TimeFrame < b.TimeFrame
		}
		return a.Date.Before(b.Date)
	})

	return out
}

// sample reads the series at each bucket end. LastOnOrBefore reports false
// before the series' first event, which trims pre-participation buckets.
func (agg *Aggregator) sample(key entityKey, df *dataframe.DataFrame, ends []sampledBucket, frame calendar.TimeFrame) []*CumulativeEntry {
	out := make([]*CumulativeEntry, 0, len(ends))
	for _, end := range ends {
		vals, ok := df.LastOnOrBefore(end.date)
		if !ok {
			continue
		}

		out = append(out, &CumulativeEntry{
			Kind:               key.kind,
			FundID:             key.fundID,
			InvestorCode:       key.investorCode,
			TimeFrame:          frame,
			Bucket:             end.bucket,
			Date:               end.date,
			CumIssuedUnits:     vals[colCumIssuedUnits],
			CumCancelledUnits:  vals[colCumCancelledUnits],
			CumIssuedAmount:    vals[colCumIssuedAmount],
			CumCancelledAmount: vals[colCumCancelledAmount],
		})
	}
	return out
}
