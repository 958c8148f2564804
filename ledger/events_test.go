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
	"github.com/fundvault/fv-ledger/ledger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Event normalization", func() {
	var (
		normalizer *ledger.EventNormalizer
		diags      *ledger.Diagnostics
	)

	BeforeEach(func() {
		funds := testFunds()
		snaps := []*ledger.Snapshot{
			testSnapshot(funds[0], day(5), 1000, 1_000_000),
			testSnapshot(funds[0], day(10), 1000, 1_000_000),
		}
		normalizer = ledger.NewEventNormalizer(funds, testInvestors(), snaps, ledger.ClampToFirstSnapshot)
		diags = &ledger.Diagnostics{}
	})

	DescribeTable("classifies operation labels",
		func(label string, expected ledger.OperationType) {
			events := normalizer.Normalize([]*ledger.RawEvent{
				{FundID: "F1", InvestorCode: "A", OperationLabel: label, Units: 10, Amount: 100, Date: day(6)},
			}, diags)
			Expect(events).To(HaveLen(1))
			Expect(events[0].Operation).To(Equal(expected))
		},
		Entry("issue", "issue", ledger.OperationIssue),
		Entry("issuance", "Issuance", ledger.OperationIssue),
		Entry("subscription", "SUBSCRIPTION", ledger.OperationIssue),
		Entry("capital deposit", "Capital Deposit", ledger.OperationIssue),
		Entry("redeem", "redeem", ledger.OperationRedeem),
		Entry("redemption", "Redemption", ledger.OperationRedeem),
		Entry("cancellation", "cancellation", ledger.OperationRedeem),
		Entry("withdrawal", " withdrawal ", ledger.OperationRedeem),
	)

	It("splits units and amounts by operation", func() {
		events := normalizer.Normalize([]*ledger.RawEvent{
			{FundID: "F1", InvestorCode: "A", OperationLabel: "issue", Units: 10, Amount: 100, Date: day(6)},
			{FundID: "F1", InvestorCode: "A", OperationLabel: "redeem", Units: 4, Amount: 44, Date: day(7)},
		}, diags)
		Expect(events).To(HaveLen(2))
		Expect(events[0].IssuedUnits).To(BeNumerically("==", 10))
		Expect(events[0].CancelledUnits).To(BeNumerically("==", 0))
		Expect(events[1].CancelledUnits).To(BeNumerically("==", 4))
		Expect(events[1].CancelledAmount).To(BeNumerically("==", 44))
	})

	It("derives unit price from amount when absent", func() {
		events := normalizer.Normalize([]*ledger.RawEvent{
			{FundID: "F1", InvestorCode: "A", OperationLabel: "issue", Units: 10, Amount: 120, Date: day(6)},
			{FundID: "F1", InvestorCode: "A", OperationLabel: "issue", Units: 10, Amount: 120, UnitPrice: 11, Date: day(6)},
		}, diags)
		Expect(events[0].UnitPrice).To(BeNumerically("==", 12))
		Expect(events[1].UnitPrice).To(BeNumerically("==", 11), "feed price wins when present")
	})

	It("preserves arrival order in Seq", func() {
		events := normalizer.Normalize([]*ledger.RawEvent{
			{FundID: "F1", InvestorCode: "A", OperationLabel: "issue", Units: 1, Amount: 1, Date: day(7)},
			{FundID: "F1", InvestorCode: "A", OperationLabel: "issue", Units: 1, Amount: 1, Date: day(6)},
		}, diags)
		Expect(events[0].Seq).To(Equal(0))
		Expect(events[1].Seq).To(Equal(1))
	})

	Context("with unresolvable records", func() {
		It("drops an unknown fund and counts it", func() {
			events := normalizer.Normalize([]*ledger.RawEvent{
				{FundID: "NOPE", InvestorCode: "A", OperationLabel: "issue", Units: 1, Amount: 1, Date: day(6)},
			}, diags)
			Expect(events).To(BeEmpty())
			Expect(diags.Count(ledger.IssueResolution)).To(Equal(1))
		})

		It("drops an unknown investor and counts it", func() {
			events := normalizer.Normalize([]*ledger.RawEvent{
				{FundID: "F1", InvestorCode: "NOPE", OperationLabel: "issue", Units: 1, Amount: 1, Date: day(6)},
			}, diags)
			Expect(events).To(BeEmpty())
			Expect(diags.Count(ledger.IssueResolution)).To(Equal(1))
		})

		It("drops an unclassifiable operation and counts it", func() {
			events := normalizer.Normalize([]*ledger.RawEvent{
				{FundID: "F1", InvestorCode: "A", OperationLabel: "transmogrify", Units: 1, Amount: 1, Date: day(6)},
			}, diags)
			Expect(events).To(BeEmpty())
			Expect(diags.Count(ledger.IssueResolution)).To(Equal(1))
		})

		It("excludes zero-unit events with a quality warning", func() {
			events := normalizer.Normalize([]*ledger.RawEvent{
				{FundID: "F1", InvestorCode: "A", OperationLabel: "issue", Units: 0, Amount: 50, Date: day(6)},
			}, diags)
			Expect(events).To(BeEmpty())
			Expect(diags.Count(ledger.IssueQuality)).To(Equal(1))
		})

		It("excludes negative-unit events with a quality warning", func() {
			// a signed feed value would make a cumulative series decrease;
			// direction comes from the operation type alone
			events := normalizer.Normalize([]*ledger.RawEvent{
				{FundID: "F1", InvestorCode: "A", OperationLabel: "issue", Units: -5, Amount: -50, Date: day(6)},
				{FundID: "F1", InvestorCode: "A", OperationLabel: "redeem", Units: 5, Amount: -50, Date: day(6)},
			}, diags)
			Expect(events).To(BeEmpty())
			Expect(diags.Count(ledger.IssueQuality)).To(Equal(2))
		})
	})

	Context("with events before the fund's history", func() {
		It("clamps the date to the first report", func() {
			events := normalizer.Normalize([]*ledger.RawEvent{
				{FundID: "F1", InvestorCode: "A", OperationLabel: "issue", Units: 1, Amount: 1, Date: day(2)},
			}, diags)
			Expect(events[0].Date).To(Equal(day(5)))
			Expect(diags.Len()).To(Equal(0))
		})

		It("keeps the date and warns under the alternate policy", func() {
			keep := ledger.NewEventNormalizer(testFunds(), testInvestors(), []*ledger.Snapshot{
				testSnapshot(testFunds()[0], day(5), 1000, 1_000_000),
			}, ledger.KeepOriginalDates)

			events := keep.Normalize([]*ledger.RawEvent{
				{FundID: "F1", InvestorCode: "A", OperationLabel: "issue", Units: 1, Amount: 1, Date: day(2)},
			}, diags)
			Expect(events[0].Date).To(Equal(day(2)))
			Expect(diags.Count(ledger.IssueQuality)).To(Equal(1))
		})
	})
})
