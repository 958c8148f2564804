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
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fundvault/fv-ledger/calendar"

	"github.com/rs/zerolog/log"
)

// recordSeries is one member's date-ordered record history within a rollup
// group; sampling reads the latest record at or before a date so that
// staggered reporting calendars do not drop a member's position.
type recordSeries struct {
	dates []time.Time
	recs  []*Record
}

func (s *recordSeries) add(rec *Record) {
	s.dates = append(s.dates, rec.Date)
	s.recs = append(s.recs, rec)
}

func (s *recordSeries) lastOnOrBefore(dt time.Time) *Record {
	idx := sort.Search(len(s.dates), func(i int) bool {
		return s.dates[i].After(dt)
	})
	if idx == 0 {
		return nil
	}
	return s.recs[idx-1]
}

// rollupGroup aggregates member series onto the union of their reporting
// dates, summing every additive column and recomputing the derived ones.
type rollupGroup struct {
	kind     EntityKind
	entityID string
	frame    calendar.TimeFrame
	members  map[string]*recordSeries
}

func (g *rollupGroup) add(memberID string, rec *Record) {
	series, ok := g.members[memberID]
	if !ok {
		series = &recordSeries{}
		g.members[memberID] = series
	}
	series.add(rec)
}

// build emits one summed record per union reporting date. A date's record is
// valid when at least one member contributed a valid position.
func (g *rollupGroup) build() []*Record {
	dateSet := make(map[time.Time]bool)
	for _, series := range g.members {
		for _, dt := range series.dates {
			dateSet[dt] = true
		}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for dt := range dateSet {
		dates = append(dates, dt)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})

	out := make([]*Record, 0, len(dates))
	for _, dt := range dates {
		rec := &Record{
			Kind:      g.kind,
			EntityID:  g.entityID,
			TimeFrame: g.frame,
			Date:      dt,
		}

		bucket, err := calendar.BucketOf(dt, g.frame)
		if err != nil {
			log.Panic().Err(err).Time("Date", dt).Str("TimeFrame", string(g.frame)).Msg("cannot bucket rollup date")
		}
		rec.Bucket = bucket

		validUnits := 0.0
		for _, series := range g.members {
			member := series.lastOnOrBefore(dt)
			if member == nil {
				continue
			}

			rec.CumIssuedUnits += member.CumIssuedUnits
			rec.CumCancelledUnits += member.CumCancelledUnits
			rec.CumIssuedAmount += member.CumIssuedAmount
			rec.CumCancelledAmount += member.CumCancelledAmount
			rec.NetUnits += member.NetUnits

			if !member.Valid {
				continue
			}
			rec.Valid = true
			validUnits += member.NetUnits
			rec.TotalUnits += member.TotalUnits
			rec.NetSalesValue += member.NetSalesValue
			rec.CashCurrentBrokerage += member.CashCurrentBrokerage
			rec.CashBankDeposit += member.CashBankDeposit
			rec.Cash += member.Cash
			rec.FundsFixedIncome += member.FundsFixedIncome
			rec.BondsFixedIncome += member.BondsFixedIncome
			rec.FixedIncome += member.FixedIncome
			rec.BoughtPower += member.BoughtPower
			rec.AssetsValue += member.AssetsValue
			rec.NetAssetsValue += member.NetAssetsValue
			rec.CreditValue += member.CreditValue
			rec.CommitmentAmount += member.CommitmentAmount
		}

		rec.FractionalOwnership = math.NaN() // not meaningful above fund level
		deriveMoneyFlow(rec)
		// monetary sums cover valid members only, so the unit base of the
		// per-unit NAV must match that membership
		rec.GeneralNAV = math.NaN()
		if validUnits > 0 {
			rec.GeneralNAV = rec.NetAssetsValue / validUnits
		}

		out = append(out, rec)
	}
	return out
}

type groupKey struct {
	entityID string
	frame    calendar.TimeFrame
}

func rollup(kind EntityKind, groups map[groupKey]*rollupGroup) []*Record {
	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entityID != keys[j].entityID {
			return keys[i].entityID < keys[j].entityID
		}
		return keys[i].frame < keys[j].frame
	})

	out := make([]*Record, 0, len(groups))
	for _, key := range keys {
		out = append(out, groups[key].build()...)
	}

	log.Info().Str("Kind", string(kind)).Int("NumGroups", len(groups)).Int("NumRecords", len(out)).Msg("rolled up ledger")
	return out
}

// calendarGroups buckets records by (group entity, calendar frame). Regime
// frames are fund specific and have no aggregate above fund level, so only
// calendar frames roll up.
func calendarGroups(kind EntityKind, recs []*Record, entityOf func(*Record) string) map[groupKey]*rollupGroup {
	groups := make(map[groupKey]*rollupGroup)
	for _, rec := range recs {
		if rec.TimeFrame == calendar.Announcement || rec.TimeFrame == calendar.Contract {
			continue
		}

		entityID := entityOf(rec)
		key := groupKey{entityID: entityID, frame: rec.TimeFrame}
		group, ok := groups[key]
		if !ok {
			group = &rollupGroup{
				kind:     kind,
				entityID: entityID,
				frame:    rec.TimeFrame,
				members:  make(map[string]*recordSeries),
			}
			groups[key] = group
		}
		group.add(rec.EntityID, rec)
	}
	return groups
}

// RollupInvestors aggregates each investor's per-fund positions into a
// cross-fund investor ledger
func RollupInvestors(fundInvestorRecs []*Record) []*Record {
	groups := calendarGroups(KindInvestor, fundInvestorRecs, func(rec *Record) string {
		return rec.InvestorCode
	})

	out := rollup(KindInvestor, groups)
	for _, rec := range out {
		rec.InvestorCode = rec.EntityID
		// an investor does not own the funds' total units; the summed
		// column would misstate their base
		rec.TotalUnits = math.NaN()
	}
	return out
}

// RollupHoldings aggregates fund ledgers by the holding company that manages
// each fund
func RollupHoldings(fundRecs []*Record) []*Record {
	return rollup(KindHolding, calendarGroups(KindHolding, fundRecs, func(rec *Record) string {
		return rec.Holding
	}))
}

// RollupGlobal aggregates all fund ledgers into a single market-wide series
func RollupGlobal(fundRecs []*Record) []*Record {
	recs := rollup(KindGlobal, calendarGroups(KindGlobal, fundRecs, func(*Record) string {
		return "global"
	}))
	return recs
}

// Reconcile checks, for every fund report date, that the investor positions
// sum back to the fund's own cumulative position within a relative tolerance.
// Violations are recorded as consistency diagnostics; the run continues.
func Reconcile(fundRecs, fundInvestorRecs []*Record, tolerance float64, diags *Diagnostics) {
	investorNet := make(map[string]float64)
	for _, rec := range fundInvestorRecs {
		if rec.TimeFrame != calendar.Daily {
			continue
		}
		investorNet[ReportKey(rec.FundID, rec.Date)] += rec.NetUnits
	}

	for _, rec := range fundRecs {
		if rec.TimeFrame != calendar.Daily {
			continue
		}

		fundNet := rec.NetUnits
		sumNet := investorNet[ReportKey(rec.FundID, rec.Date)]
		diff := math.Abs(fundNet - sumNet)
		scale := math.Max(math.Abs(fundNet), math.Abs(sumNet))
		if scale > 0 && diff/scale > tolerance {
			diags.Consistency(Issue{
				Err:    ErrReconciliation,
				FundID: rec.FundID,
				Date:   rec.Date,
				Detail: fmt.Sprintf("fund net units %f, investor sum %f", fundNet, sumNet),
			})
		}
	}
}
