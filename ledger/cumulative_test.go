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

package ledger_test

import (
	"github.com/fundvault/fv-ledger/calendar"
	"github.com/fundvault/fv-ledger/ledger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func issue(fundID, investor string, d int, seq int, units, amount float64) *ledger.Event {
	return &ledger.Event{
		FundID: fundID, InvestorCode: investor, Operation: ledger.OperationIssue,
		Date: day(d), Seq: seq, IssuedUnits: units, IssuedAmount: amount,
	}
}

func redeem(fundID, investor string, d int, seq int, units, amount float64) *ledger.Event {
	return &ledger.Event{
		FundID: fundID, InvestorCode: investor, Operation: ledger.OperationRedeem,
		Date: day(d), Seq: seq, CancelledUnits: units, CancelledAmount: amount,
	}
}

func entriesFor(entries []*ledger.CumulativeEntry, kind ledger.EntityKind, investor string, frame calendar.TimeFrame) []*ledger.CumulativeEntry {
	out := make([]*ledger.CumulativeEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Kind == kind && entry.InvestorCode == investor && entry.TimeFrame == frame {
			out = append(out, entry)
		}
	}
	return out
}

var _ = Describe("Cumulative aggregation", func() {
	var snaps []*ledger.Snapshot

	BeforeEach(func() {
		fund := testFunds()[0]
		snaps = []*ledger.Snapshot{
			testSnapshot(fund, day(2), 1000, 1_000_000),
			testSnapshot(fund, day(4), 1000, 1_000_000),
			testSnapshot(fund, day(9), 1000, 1_000_000),  // next ISO week
			testSnapshot(fund, day(11), 1000, 1_000_000), // same ISO week as day 9
		}
	})

	It("accumulates lifetime prefix sums per investor", func() {
		agg := ledger.NewAggregator([]*ledger.Event{
			issue("F1", "A", 2, 0, 10, 100),
			issue("F1", "A", 4, 1, 5, 60),
			redeem("F1", "A", 9, 2, 3, 40),
		})
		entries := entriesFor(agg.Entries(snaps), ledger.KindFundInvestor, "A", calendar.Daily)
		Expect(entries).To(HaveLen(4))
		Expect(entries[0].CumIssuedUnits).To(BeNumerically("==", 10))
		Expect(entries[1].CumIssuedUnits).To(BeNumerically("==", 15))
		Expect(entries[2].CumIssuedUnits).To(BeNumerically("==", 15))
		Expect(entries[2].CumCancelledUnits).To(BeNumerically("==", 3))
		Expect(entries[3].CumCancelledUnits).To(BeNumerically("==", 3), "totals persist past the last event")
		Expect(entries[3].NetUnits()).To(BeNumerically("==", 12))
	})

	It("never decreases cumulative totals along a series", func() {
		agg := ledger.NewAggregator([]*ledger.Event{
			issue("F1", "A", 2, 0, 10, 100),
			redeem("F1", "A", 4, 1, 10, 100),
			redeem("F1", "A", 9, 2, 10, 100),
		})
		entries := entriesFor(agg.Entries(snaps), ledger.KindFundInvestor, "A", calendar.Daily)
		for idx := 1; idx < len(entries); idx++ {
			Expect(entries[idx].CumIssuedUnits).To(BeNumerically(">=", entries[idx-1].CumIssuedUnits))
			Expect(entries[idx].CumCancelledUnits).To(BeNumerically(">=", entries[idx-1].CumCancelledUnits))
		}
	})

	It("collapses same-day events into end-of-day totals", func() {
		agg := ledger.NewAggregator([]*ledger.Event{
			issue("F1", "A", 2, 0, 10, 100),
			redeem("F1", "A", 2, 1, 4, 40),
		})
		entries := entriesFor(agg.Entries(snaps), ledger.KindFundInvestor, "A", calendar.Daily)
		Expect(entries[0].CumIssuedUnits).To(BeNumerically("==", 10))
		Expect(entries[0].CumCancelledUnits).To(BeNumerically("==", 4))
	})

	It("orders same-day events by arrival", func() {
		// arrival order is the tie break; the end-of-day total is the same
		// but replay must not panic on equal dates delivered out of order
		agg := ledger.NewAggregator([]*ledger.Event{
			redeem("F1", "A", 2, 1, 4, 40),
			issue("F1", "A", 2, 0, 10, 100),
		})
		entries := entriesFor(agg.Entries(snaps), ledger.KindFundInvestor, "A", calendar.Daily)
		Expect(entries[0].NetUnits()).To(BeNumerically("==", 6))
	})

	It("yields no entries before an investor's first event", func() {
		agg := ledger.NewAggregator([]*ledger.Event{
			issue("F1", "B", 9, 0, 10, 100),
		})
		entries := entriesFor(agg.Entries(snaps), ledger.KindFundInvestor, "B", calendar.Daily)
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Date).To(Equal(day(9)))
	})

	It("samples each weekly bucket at its final report date", func() {
		agg := ledger.NewAggregator([]*ledger.Event{
			issue("F1", "A", 2, 0, 10, 100),
			issue("F1", "A", 9, 1, 5, 50),
		})
		entries := entriesFor(agg.Entries(snaps), ledger.KindFundInvestor, "A", calendar.Weekly)
		// days 2 and 4 share a week; days 9 and 11 share the next
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Date).To(Equal(day(4)))
		Expect(string(entries[0].Bucket)).To(Equal("2024-W01"))
		Expect(entries[0].CumIssuedUnits).To(BeNumerically("==", 10))
		Expect(entries[1].Date).To(Equal(day(11)))
		Expect(string(entries[1].Bucket)).To(Equal("2024-W02"))
		Expect(entries[1].CumIssuedUnits).To(BeNumerically("==", 15))
	})

	It("aggregates the fund series across investors", func() {
		agg := ledger.NewAggregator([]*ledger.Event{
			issue("F1", "A", 2, 0, 10, 100),
			issue("F1", "B", 4, 1, 20, 200),
		})
		entries := entriesFor(agg.Entries(snaps), ledger.KindFund, "", calendar.Daily)
		Expect(entries[1].CumIssuedUnits).To(BeNumerically("==", 30))
	})

	It("samples regime frames per announcement", func() {
		fund := testFunds()[0]
		tagged := []*ledger.Snapshot{
			testSnapshot(fund, day(2), 1000, 1_000_000),
			testSnapshot(fund, day(4), 1000, 1_000_000),
			testSnapshot(fund, day(9), 1000, 1_000_000),
		}
		tagged[0].AnnouncementID = "ANN1"
		tagged[1].AnnouncementID = "ANN1"
		tagged[2].AnnouncementID = "ANN2"

		agg := ledger.NewAggregator([]*ledger.Event{
			issue("F1", "A", 2, 0, 10, 100),
			issue("F1", "A", 9, 1, 5, 50),
		})
		entries := entriesFor(agg.Entries(tagged), ledger.KindFundInvestor, "A", calendar.Announcement)
		Expect(entries).To(HaveLen(2))
		Expect(string(entries[0].Bucket)).To(Equal("ANN1"))
		Expect(entries[0].Date).To(Equal(day(4)))
		Expect(string(entries[1].Bucket)).To(Equal("ANN2"))
		Expect(entries[1].CumIssuedUnits).To(BeNumerically("==", 15))
	})

	It("keeps one sampling point for a regime that resumes", func() {
		// a nested announcement interval makes the outer regime reappear
		// after the inner one ends
		fund := testFunds()[0]
		tagged := []*ledger.Snapshot{
			testSnapshot(fund, day(2), 1000, 1_000_000),
			testSnapshot(fund, day(4), 1000, 1_000_000),
			testSnapshot(fund, day(9), 1000, 1_000_000),
		}
		tagged[0].AnnouncementID = "ANN1"
		tagged[1].AnnouncementID = "ANN2"
		tagged[2].AnnouncementID = "ANN1"

		agg := ledger.NewAggregator([]*ledger.Event{
			issue("F1", "A", 2, 0, 10, 100),
			issue("F1", "A", 9, 1, 5, 50),
		})
		entries := entriesFor(agg.Entries(tagged), ledger.KindFundInvestor, "A", calendar.Announcement)
		Expect(entries).To(HaveLen(2))
		Expect(string(entries[0].Bucket)).To(Equal("ANN2"))
		Expect(entries[0].Date).To(Equal(day(4)))
		Expect(string(entries[1].Bucket)).To(Equal("ANN1"))
		Expect(entries[1].Date).To(Equal(day(9)), "the regime's last report wins")
		Expect(entries[1].CumIssuedUnits).To(BeNumerically("==", 15))
	})
})
