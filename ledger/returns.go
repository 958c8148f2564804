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
	"math"
	"sort"

	"github.com/fundvault/fv-ledger/calendar"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// ReturnCalculator derives period and cumulative NAV returns against the par
// issue baseline. Non-finite results of a division are coerced to zero and
// counted, matching the upstream accounting convention for freshly seeded
// funds.
type ReturnCalculator struct {
	Baseline float64

	coerced int
}

type returnSeriesKey struct {
	kind     EntityKind
	entityID string
	frame    calendar.TimeFrame
}

// Apply fills PeriodReturn and CumulativeReturn on every record, chaining
// each (entity, time frame) series in date order. The first observation of a
// series has no predecessor and is measured against the baseline instead.
func (rc *ReturnCalculator) Apply(recs []*Record, diags *Diagnostics) {
	series := make(map[returnSeriesKey][]*Record)
	for _, rec := range recs {
		key := returnSeriesKey{kind: rec.Kind, entityID: rec.EntityID, frame: rec.TimeFrame}
		series[key] = append(series[key], rec)
	}

	for _, recs := range series {
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].Date.Before(recs[j].Date)
		})

		prevNAV := math.NaN()
		for _, rec := range recs {
			nav := rec.GeneralNAV

			if math.IsNaN(prevNAV) {
				rec.PeriodReturn = rc.sanitize((nav - rc.Baseline) / rc.Baseline)
			} else {
				rec.PeriodReturn = rc.sanitize(nav/prevNAV - 1)
			}
			rec.CumulativeReturn = rc.sanitize((nav - rc.Baseline) / rc.Baseline)
			rec.CumReturn = rc.sanitize(rec.CumReturn)

			if !math.IsNaN(nav) {
				prevNAV = nav
			}
		}
	}

	if rc.coerced > 0 {
		log.Warn().Int("NumCoerced", rc.coerced).Msg("coerced non-finite return values to zero")
		diags.Quality(Issue{
			Err:    ErrZeroDenominator,
			Detail: "non-finite return values coerced to zero",
		})
	}
}

// sanitize maps NaN and +/-Inf to 0 so that a missing or zero NAV never
// poisons a chained return series
func (rc *ReturnCalculator) sanitize(val float64) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		rc.coerced++
		return 0
	}
	return val
}

// Coerced reports how many non-finite return values were zeroed
func (rc *ReturnCalculator) Coerced() int {
	return rc.coerced
}

// ReturnSummary describes the distribution of period returns in a ledger
type ReturnSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes period-return distribution statistics over the valid
// records of a ledger
func Summarize(recs []*Record) ReturnSummary {
	returns := make([]float64, 0, len(recs))
	for _, rec := range recs {
		if rec.Valid {
			returns = append(returns, rec.PeriodReturn)
		}
	}

	if len(returns) == 0 {
		return ReturnSummary{}
	}

	summary := ReturnSummary{
		Count:  len(returns),
		Mean:   stat.Mean(returns, nil),
		StdDev: stat.StdDev(returns, nil),
		Min:    returns[0],
		Max:    returns[0],
	}
	for _, val := range returns[1:] {
		summary.Min = math.Min(summary.Min, val)
		summary.Max = math.Max(summary.Max, val)
	}
	return summary
}
