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

	"github.com/rs/zerolog/log"
)

// Allocator distributes fund-level balance-sheet metrics across investors in
// proportion to their fractional ownership of units outstanding, and derives
// the per-entity money-flow columns.
type Allocator struct {
	snapshots map[string]*Snapshot // keyed by ReportKey
	tolerance float64
}

// NewAllocator indexes normalized snapshots by report key. tolerance bounds
// the acceptable overshoot of fractional ownership past 1.0 before a
// data-quality warning is raised.
func NewAllocator(snaps []*Snapshot, tolerance float64) *Allocator {
	a := &Allocator{
		snapshots: make(map[string]*Snapshot, len(snaps)),
		tolerance: tolerance,
	}
	for _, snap := range snaps {
		a.snapshots[ReportKey(snap.FundID, snap.Date)] = snap
	}
	return a
}

// Build converts fund and fund-investor cumulative entries into ledger
// records. Fund entries own the whole fund; fund-investor entries are scaled
// by fractional ownership. Entries of other kinds are aggregated downstream
// by rollups and are skipped here.
func (a *Allocator) Build(entries []*CumulativeEntry, diags *Diagnostics) []*Record {
	out := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		switch entry.Kind {
		case KindFund:
			if rec := a.buildFund(entry, diags); rec != nil {
				out = append(out, rec)
			}
		case KindFundInvestor:
			if rec := a.buildInvestorPosition(entry, diags); rec != nil {
				out = append(out, rec)
			}
		}
	}

	log.Info().Int("NumRecords", len(out)).Msg("allocated ledger records")
	return out
}

// snapshotFor returns the fund report the entry was sampled on. Sampling
// dates are drawn from the reporting calendar, so a miss is a programmer
// error, not a data problem.
func (a *Allocator) snapshotFor(entry *CumulativeEntry) *Snapshot {
	snap, ok := a.snapshots[ReportKey(entry.FundID, entry.Date)]
	if !ok {
		log.Panic().Str("FundID", entry.FundID).Time("Date", entry.Date).Msg("cumulative entry sampled off the reporting calendar")
	}
	return snap
}

func (a *Allocator) buildFund(entry *CumulativeEntry, diags *Diagnostics) *Record {
	snap := a.snapshotFor(entry)

	rec := newRecord(entry, snap)
	rec.EntityID = entry.FundID
	rec.TotalUnits = snap.TotalUnits
	rec.FractionalOwnership = 1.0

	rec.NetSalesValue = snap.NetSalesValue
	rec.CashCurrentBrokerage = snap.CashCurrentBrokerage
	rec.CashBankDeposit = snap.CashBankDeposit
	rec.Cash = snap.Cash
	rec.FundsFixedIncome = snap.FundsFixedIncome
	rec.BondsFixedIncome = snap.BondsFixedIncome
	rec.FixedIncome = snap.FixedIncome
	rec.BoughtPower = snap.BoughtPower
	rec.AssetsValue = snap.AssetsValue
	rec.NetAssetsValue = snap.NetAssetsValue
	rec.CreditValue = snap.CreditValue
	rec.CommitmentAmount = snap.CommitmentAmount

	deriveMoneyFlow(rec)
	rec.GeneralNAV = perUnitNAV(snap)
	rec.Valid = true
	return rec
}

func (a *Allocator) buildInvestorPosition(entry *CumulativeEntry, diags *Diagnostics) *Record {
	snap := a.snapshotFor(entry)

	rec := newRecord(entry, snap)
	rec.EntityID = fmt.Sprintf("%s:%s", entry.FundID, entry.InvestorCode)
	rec.InvestorCode = entry.InvestorCode
	rec.TotalUnits = snap.TotalUnits

	if snap.TotalUnits <= 0 || math.IsNaN(snap.TotalUnits) {
		diags.Quality(Issue{
			Err:          ErrMissingTotalUnits,
			FundID:       entry.FundID,
			InvestorCode: entry.InvestorCode,
			Date:         entry.Date,
		})
		markInvalid(rec)
		deriveMoneyFlow(rec)
		return rec
	}

	fraction := rec.NetUnits / snap.TotalUnits
	rec.FractionalOwnership = fraction
	rec.Valid = true

	if rec.NetUnits < 0 {
		diags.Quality(Issue{
			Err:          ErrNegativeNetPosition,
			FundID:       entry.FundID,
			InvestorCode: entry.InvestorCode,
			Date:         entry.Date,
			Detail:       fmt.Sprintf("net units %f", rec.NetUnits),
		})
	} else if fraction > 1+a.tolerance {
		diags.Quality(Issue{
			Err:          ErrOwnershipOutOfRange,
			FundID:       entry.FundID,
			InvestorCode: entry.InvestorCode,
			Date:         entry.Date,
			Detail:       fmt.Sprintf("fraction %f", fraction),
		})
	}

	rec.NetSalesValue = fraction * snap.NetSalesValue
	rec.CashCurrentBrokerage = fraction * snap.CashCurrentBrokerage
	rec.CashBankDeposit = fraction * snap.CashBankDeposit
	rec.Cash = fraction * snap.Cash
	rec.FundsFixedIncome = fraction * snap.FundsFixedIncome
	rec.BondsFixedIncome = fraction * snap.BondsFixedIncome
	rec.FixedIncome = fraction * snap.FixedIncome
	rec.BoughtPower = fraction * snap.BoughtPower
	rec.AssetsValue = fraction * snap.AssetsValue
	rec.NetAssetsValue = fraction * snap.NetAssetsValue
	rec.CreditValue = fraction * snap.CreditValue
	rec.CommitmentAmount = fraction * snap.CommitmentAmount

	deriveMoneyFlow(rec)
	rec.GeneralNAV = perUnitNAV(snap)
	return rec
}

// newRecord copies the shared entry fields into a fresh record
func newRecord(entry *CumulativeEntry, snap *Snapshot) *Record {
	return &Record{
		Kind:               entry.Kind,
		FundID:             entry.FundID,
		Holding:            snap.Fund.Holding,
		TimeFrame:          entry.TimeFrame,
		Bucket:             entry.Bucket,
		Date:               entry.Date,
		CumIssuedUnits:     entry.CumIssuedUnits,
		CumCancelledUnits:  entry.CumCancelledUnits,
		CumIssuedAmount:    entry.CumIssuedAmount,
		CumCancelledAmount: entry.CumCancelledAmount,
		NetUnits:           entry.NetUnits(),
	}
}

// deriveMoneyFlow computes the columns that depend only on cumulative sums
// and the (possibly already allocated) net asset value
func deriveMoneyFlow(rec *Record) {
	rec.CumNetInputMoney = rec.CumIssuedAmount - rec.CumCancelledAmount
	rec.CumProfitLoss = rec.NetAssetsValue + rec.CumCancelledAmount - rec.CumIssuedAmount

	rec.AverageIssuePrice = math.NaN()
	if rec.CumIssuedUnits != 0 {
		rec.AverageIssuePrice = rec.CumIssuedAmount / rec.CumIssuedUnits
	}
	rec.AverageCancelPrice = math.NaN()
	if rec.CumCancelledUnits != 0 {
		rec.AverageCancelPrice = rec.CumCancelledAmount / rec.CumCancelledUnits
	}

	rec.CumReturn = math.NaN()
	if rec.CumIssuedAmount != 0 {
		rec.CumReturn = rec.CumProfitLoss / rec.CumIssuedAmount
	}
}

// markInvalid flags a record whose ownership could not be derived; ownership
// and the allocated metrics are marked missing rather than zeroed so the
// record cannot silently participate in sums
func markInvalid(rec *Record) {
	rec.Valid = false
	rec.FractionalOwnership = math.NaN()
	rec.NetSalesValue = math.NaN()
	rec.CashCurrentBrokerage = math.NaN()
	rec.CashBankDeposit = math.NaN()
	rec.Cash = math.NaN()
	rec.FundsFixedIncome = math.NaN()
	rec.BondsFixedIncome = math.NaN()
	rec.FixedIncome = math.NaN()
	rec.BoughtPower = math.NaN()
	rec.AssetsValue = math.NaN()
	rec.NetAssetsValue = math.NaN()
	rec.CreditValue = math.NaN()
	rec.CommitmentAmount = math.NaN()
	rec.GeneralNAV = math.NaN()
}

// perUnitNAV is the fund's net asset value per unit outstanding
func perUnitNAV(snap *Snapshot) float64 {
	if snap.TotalUnits <= 0 || math.IsNaN(snap.TotalUnits) {
		return math.NaN()
	}
	return snap.NetAssetsValue / snap.TotalUnits
}
