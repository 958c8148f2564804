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
	"github.com/fundvault/fv-ledger/dataframe"

	"github.com/rs/zerolog/log"
)

const (
	colClose    = "Close"
	colAdjClose = "AdjClose"
	colVolume   = "Volume"
	colFactor   = "AdjFactor"
	colAdjFinal = "AdjFinalPrice"
	colAdjBEP   = "AdjBreakEvenPoint"
)

// SnapshotNormalizer resolves raw fund reports against the reference tables,
// computes price-adjusted columns and tags each report with the
// market-making regime in force on its date.
type SnapshotNormalizer struct {
	funds         map[string]*Fund
	prices        map[string]*PricePoint     // instrumentID + date
	announcements map[string][]*Announcement // per fund, sorted by Start
}

func priceKey(instrumentID string, date time.Time) string {
	return fmt.Sprintf("%s|%s", instrumentID, date.Format(calendar.DateFormat))
}

func NewSnapshotNormalizer(funds []*Fund, prices []*PricePoint, announcements []*Announcement) *SnapshotNormalizer {
	n := &SnapshotNormalizer{
		funds:         make(map[string]*Fund, len(funds)),
		prices:        make(map[string]*PricePoint, len(prices)),
		announcements: make(map[string][]*Announcement),
	}

	for _, fund := range funds {
		n.funds[fund.FundID] = fund
	}

	for _, price := range prices {
		n.prices[priceKey(price.InstrumentID, calendar.MidnightUTC(price.Date))] = price
	}

	for _, ann := range announcements {
		n.announcements[ann.FundID] = append(n.announcements[ann.FundID], ann)
	}
	for _, anns := range n.announcements {
		sort.SliceStable(anns, func(i, j int) bool {
			return anns[i].Start.Before(anns[j].Start)
		})
	}

	return n
}

// Normalize converts raw snapshots into one normalized row per (fund, date).
// Records referencing an unknown fund are dropped and counted. Price-series
// gaps are forward-filled within the fund's own history, never across funds.
func (n *SnapshotNormalizer) Normalize(raws []*RawSnapshot, diags *Diagnostics) []*Snapshot {
	perFund := make(map[string][]*Snapshot)
	for _, raw := range raws {
		fund, ok := n.funds[raw.FundID]
		if !ok {
			diags.Resolution(Issue{Err: ErrUnknownFund, FundID: raw.FundID, Date: raw.Date})
			continue
		}

		snap := &Snapshot{RawSnapshot: *raw, Fund: fund}
		snap.Date = calendar.MidnightUTC(raw.Date)
		perFund[fund.FundID] = append(perFund[fund.FundID], snap)
	}

	out := make([]*Snapshot, 0, len(raws))
	for _, snaps := range perFund {
		sort.SliceStable(snaps, func(i, j int) bool {
			return snaps[i].Date.Before(snaps[j].Date)
		})
		snaps = dedupeByDate(snaps, diags)

		n.adjustPrices(snaps)
		chainAdjReturns(snaps)
		for _, snap := range snaps {
			n.tagAnnouncement(snap)
			n.deriveColumns(snap, diags)
		}

		out = append(out, snaps...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FundID != out[j].FundID {
			return out[i].FundID < out[j].FundID
		}
		return out[i].Date.Before(out[j].Date)
	})

	log.Info().Int("NumSnapshots", len(out)).Int("NumFunds", len(perFund)).Msg("normalized snapshot feed")
	return out
}

// a report identifier is unique per fund per date; later duplicates are
// dropped as resolution failures
func dedupeByDate(snaps []*Snapshot, diags *Diagnostics) []*Snapshot {
	out := snaps[:0]
	var last time.Time
	for idx, snap := range snaps {
		if idx > 0 && snap.Date.Equal(last) {
			diags.Resolution(Issue{
				Err:    ErrDuplicateReport,
				FundID: snap.FundID,
				Date:   snap.Date,
			})
			continue
		}
		last = snap.Date
		out = append(out, snap)
	}
	return out
}

// adjustPrices joins the instrument's adjusted price series and computes the
// adjustment factor columns, forward-filling gaps within the fund group
func (n *SnapshotNormalizer) adjustPrices(snaps []*Snapshot) {
	if len(snaps) == 0 {
		return
	}

	df := dataframe.New(colClose, colAdjClose, colVolume, colFactor, colAdjFinal, colAdjBEP)
	instrumentID := snaps[0].Fund.InstrumentID

	for _, snap := range snaps {
		vals := map[string]float64{
			colClose:    math.NaN(),
			colAdjClose: math.NaN(),
			colVolume:   math.NaN(),
			colFactor:   math.NaN(),
			colAdjFinal: math.NaN(),
			colAdjBEP:   math.NaN(),
		}

		if price, ok := n.prices[priceKey(instrumentID, snap.Date)]; ok && price.Close != 0 {
			factor := price.AdjClose / price.Close
			vals[colClose] = price.Close
			vals[colAdjClose] = price.AdjClose
			vals[colVolume] = price.Volume
			vals[colFactor] = factor
			vals[colAdjFinal] = factor * snap.FinalPrice
			vals[colAdjBEP] = factor * snap.BreakEvenPoint
		}

		df.InsertMap(snap.Date, vals)
	}

	df.ForwardFill(colClose, colAdjClose, colFactor, colAdjFinal, colAdjBEP)
	df.FillValue(0, colVolume)

	df.ForEach(func(rowIdx int, _ time.Time, vals map[string]float64) map[string]float64 {
		snap := snaps[rowIdx]
		snap.Close = vals[colClose]
		snap.AdjClose = vals[colAdjClose]
		snap.Volume = vals[colVolume]
		snap.AdjFactor = vals[colFactor]
		snap.AdjFinalPrice = vals[colAdjFinal]
		snap.AdjBreakEvenPoint = vals[colAdjBEP]
		return nil
	})
}

// chainAdjReturns fills the adjusted-price return chain for one fund, in
// date order. The first report has no predecessor and measures against its
// own adjusted break-even point. Non-finite ratios are zeroed.
func chainAdjReturns(snaps []*Snapshot) {
	prev := math.NaN()
	for _, snap := range snaps {
		var ret float64
		if math.IsNaN(prev) {
			ret = snap.AdjFinalPrice/snap.AdjBreakEvenPoint - 1
		} else {
			ret = snap.AdjFinalPrice/prev - 1
		}
		if math.IsNaN(ret) || math.IsInf(ret, 0) {
			ret = 0
		}
		snap.AdjFinalReturn = ret

		if !math.IsNaN(snap.AdjFinalPrice) {
			prev = snap.AdjFinalPrice
		}
	}
}

// deriveColumns computes the balance-sheet aggregates that downstream
// allocation distributes across investors
func (n *SnapshotNormalizer) deriveColumns(snap *Snapshot, diags *Diagnostics) {
	snap.Cash = snap.CashCurrentBrokerage + snap.CashBankDeposit
	snap.FixedIncome = snap.FundsFixedIncome + snap.BondsFixedIncome
	snap.AssetsValue = snap.NetSalesValue + snap.Cash + snap.FixedIncome
	snap.NetAssetsValue = snap.TotalUnits * snap.CancellationPrice
	snap.CreditValue = snap.NetAssetsValue - snap.AssetsValue
	snap.CommitmentAmount = snap.Commitment * snap.FinalPrice

	if snap.CommitmentAmount != 0 {
		snap.ToleranceSQPower = snap.BoughtPower / snap.CommitmentAmount
		snap.ToleranceSQCash = snap.Cash / snap.CommitmentAmount
	} else {
		snap.ToleranceSQPower = math.NaN()
		snap.ToleranceSQCash = math.NaN()
		if snap.Commitment != 0 {
			// a regime is in force but its commitment values out to zero
			diags.Quality(Issue{
				Err:    ErrZeroDenominator,
				FundID: snap.FundID,
				Date:   snap.Date,
				Detail: "commitment amount is zero; liquidity ratios marked missing",
			})
		}
	}
}

// tagAnnouncement finds the regime whose [Start, Finish) interval contains
// the snapshot date. An unset Finish is carried forward to the next regime's
// Start (or indefinitely for the final regime), so linkage stays stable
// across reporting gaps.
func (n *SnapshotNormalizer) tagAnnouncement(snap *Snapshot) {
	anns := n.announcements[snap.FundID]
	for idx := len(anns) - 1; idx >= 0; idx-- {
		ann := anns[idx]
		if snap.Date.Before(ann.Start) {
			continue
		}

		finish := ann.Finish
		if finish.IsZero() && idx+1 < len(anns) {
			finish = anns[idx+1].Start
		}
		if !finish.IsZero() && !snap.Date.Before(finish) {
			continue
		}

		snap.AnnouncementID = ann.ID
		snap.ContractNumber = ann.ContractNumber
		snap.Commitment = ann.Commitment
		snap.QuoteDomain = ann.QuoteDomain
		return
	}
}
