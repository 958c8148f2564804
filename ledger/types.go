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
	"time"

	"github.com/fundvault/fv-ledger/calendar"
)

// OperationType classifies a fund-unit instruction
type OperationType string

const (
	OperationIssue  OperationType = "issue"
	OperationRedeem OperationType = "redeem"
)

// EntityKind identifies the aggregation level of a ledger record
type EntityKind string

const (
	KindFund         EntityKind = "fund"
	KindInvestor     EntityKind = "investor"
	KindFundInvestor EntityKind = "fundInvestor"
	KindHolding      EntityKind = "holding"
	KindGlobal       EntityKind = "global"
)

// Fund is one row of the fund reference table
type Fund struct {
	FundID       string `json:"fundId"`
	InstrumentID string `json:"instrumentId"`
	Name         string `json:"name"`
	Holding      string `json:"holding"`
}

// Investor is one row of the investor reference table
type Investor struct {
	Code string `json:"code"` // national / universal code
	Name string `json:"name"`
}

// Announcement is a fund-level market-making regime. A zero Finish date
// means the regime is open ended and remains in force until the next
// regime's Start (carried forward per fund).
type Announcement struct {
	ID             string    `json:"id"`
	FundID         string    `json:"fundId"`
	ContractNumber string    `json:"contractNumber"`
	EffectiveDate  time.Time `json:"effectiveDate"`
	Start          time.Time `json:"start"`
	Finish         time.Time `json:"finish"`
	Commitment     float64   `json:"commitment"`
	QuoteDomain    float64   `json:"quoteDomain"`
}

// PricePoint is one observation of an instrument's adjusted price series
type PricePoint struct {
	InstrumentID string    `json:"instrumentId"`
	Date         time.Time `json:"date"`
	Close        float64   `json:"close"`
	AdjClose     float64   `json:"adjClose"`
	Volume       float64   `json:"volume"`
}

// RawEvent is one issuance or redemption instruction as delivered by the
// external event feed, before reference resolution
type RawEvent struct {
	FundID         string    `json:"fundId"`
	InvestorCode   string    `json:"investorCode"`
	OperationLabel string    `json:"operationLabel"`
	Units          float64   `json:"units"`
	Amount         float64   `json:"amount"`
	UnitPrice      float64   `json:"unitPrice"`
	Date           time.Time `json:"date"`
}

// Event is a normalized issuance/redemption instruction. Exactly one of
// IssuedUnits / CancelledUnits is non-zero. Events are immutable once
// created; Seq preserves feed arrival order for deterministic intra-day
// ordering.
type Event struct {
	FundID          string        `json:"fundId"`
	InvestorCode    string        `json:"investorCode"`
	Operation       OperationType `json:"operation"`
	Date            time.Time     `json:"date"`
	Seq             int           `json:"seq"`
	UnitPrice       float64       `json:"unitPrice"`
	IssuedUnits     float64       `json:"issuedUnits"`
	CancelledUnits  float64       `json:"cancelledUnits"`
	IssuedAmount    float64       `json:"issuedAmount"`
	CancelledAmount float64       `json:"cancelledAmount"`
	ReportKey       string        `json:"reportKey"`
}

// RawSnapshot is one fund's end-of-period financial report as delivered by
// the external snapshot feed
type RawSnapshot struct {
	FundID               string    `json:"fundId"`
	Date                 time.Time `json:"date"`
	FinalPrice           float64   `json:"finalPrice"`
	BreakEvenPoint       float64   `json:"breakEvenPoint"`
	CashCurrentBrokerage float64   `json:"cashCurrentBrokerage"`
	CashBankDeposit      float64   `json:"cashBankDeposit"`
	FundsFixedIncome     float64   `json:"fundsFixedIncome"`
	BondsFixedIncome     float64   `json:"bondsFixedIncome"`
	NetSalesValue        float64   `json:"netSalesValue"`
	BoughtPower          float64   `json:"boughtPower"`
	TotalUnits           float64   `json:"totalUnits"`
	CancellationPrice    float64   `json:"cancellationPrice"`
	IssuePrice           float64   `json:"issuePrice"`
}

// Snapshot is a normalized fund report: reference-resolved, price adjusted
// and tagged with the market-making regime in force on its date. One row
// exists per (fund, date).
type Snapshot struct {
	RawSnapshot

	Fund *Fund `json:"fund"`

	// price adjustment, forward-filled per fund across price-series gaps
	Close             float64 `json:"close"`
	AdjClose          float64 `json:"adjClose"`
	Volume            float64 `json:"volume"`
	AdjFactor         float64 `json:"adjFactor"`
	AdjFinalPrice     float64 `json:"adjFinalPrice"`
	AdjBreakEvenPoint float64 `json:"adjBreakEvenPoint"`
	AdjFinalReturn    float64 `json:"adjFinalReturn"`

	// derived balance-sheet columns
	Cash             float64 `json:"cash"`
	FixedIncome      float64 `json:"fixedIncome"`
	AssetsValue      float64 `json:"assetsValue"`
	NetAssetsValue   float64 `json:"netAssetsValue"`
	CreditValue      float64 `json:"creditValue"`
	CommitmentAmount float64 `json:"commitmentAmount"`
	ToleranceSQPower float64 `json:"toleranceSqPower"` // BoughtPower / CommitmentAmount
	ToleranceSQCash  float64 `json:"toleranceSqCash"`  // Cash / CommitmentAmount

	// market-making regime in force on Date
	AnnouncementID string  `json:"announcementId"`
	ContractNumber string  `json:"contractNumber"`
	Commitment     float64 `json:"commitment"`
	QuoteDomain    float64 `json:"quoteDomain"`
}

// ReportKey returns the join key linking events and snapshots of a fund date
func ReportKey(fundID string, date time.Time) string {
	return fmt.Sprintf("%s-%s", fundID, date.Format(calendar.DateFormat))
}

// CumulativeEntry is a running total of signed unit/amount deltas for one
// entity key, sampled on the reporting calendar of a time frame. For a fixed
// entity key and frame the cumulative fields are monotonically
// non-decreasing in date.
type CumulativeEntry struct {
	Kind         EntityKind         `json:"kind"`
	FundID       string             `json:"fundId,omitempty"`
	InvestorCode string             `json:"investorCode,omitempty"`
	TimeFrame    calendar.TimeFrame `json:"timeFrame"`
	Bucket       calendar.BucketKey `json:"bucket"`
	Date         time.Time          `json:"date"`

	CumIssuedUnits     float64 `json:"cumIssuedUnits"`
	CumCancelledUnits  float64 `json:"cumCancelledUnits"`
	CumIssuedAmount    float64 `json:"cumIssuedAmount"`
	CumCancelledAmount float64 `json:"cumCancelledAmount"`
}

// NetUnits returns cumulative issued minus cancelled units
func (e *CumulativeEntry) NetUnits() float64 {
	return e.CumIssuedUnits - e.CumCancelledUnits
}

// Record is one output row of a ledger at any aggregation level. Rows are
// keyed by (EntityID, TimeFrame, Date); a full set of rows is produced per
// pipeline run and replaces the prior generation wholesale.
type Record struct {
	Kind         EntityKind         `json:"kind"`
	EntityID     string             `json:"entityId"`
	FundID       string             `json:"fundId,omitempty"`
	InvestorCode string             `json:"investorCode,omitempty"`
	Holding      string             `json:"holding,omitempty"`
	TimeFrame    calendar.TimeFrame `json:"timeFrame"`
	Bucket       calendar.BucketKey `json:"bucket"`
	Date         time.Time          `json:"date"`

	// cumulative unit/amount position
	CumIssuedUnits     float64 `json:"cumIssuedUnits"`
	CumCancelledUnits  float64 `json:"cumCancelledUnits"`
	CumIssuedAmount    float64 `json:"cumIssuedAmount"`
	CumCancelledAmount float64 `json:"cumCancelledAmount"`
	NetUnits           float64 `json:"netUnits"`

	// ownership; NaN when the record is invalid
	TotalUnits          float64 `json:"totalUnits"`
	FractionalOwnership float64 `json:"fractionalOwnership"`

	// allocated fund-level metrics (fund metric x fractional ownership)
	NetSalesValue        float64 `json:"netSalesValue"`
	CashCurrentBrokerage float64 `json:"cashCurrentBrokerage"`
	CashBankDeposit      float64 `json:"cashBankDeposit"`
	Cash                 float64 `json:"cash"`
	FundsFixedIncome     float64 `json:"fundsFixedIncome"`
	BondsFixedIncome     float64 `json:"bondsFixedIncome"`
	FixedIncome          float64 `json:"fixedIncome"`
	BoughtPower          float64 `json:"boughtPower"`
	AssetsValue          float64 `json:"assetsValue"`
	NetAssetsValue       float64 `json:"netAssetsValue"`
	CreditValue          float64 `json:"creditValue"`
	CommitmentAmount     float64 `json:"commitmentAmount"`

	// derived money flow and prices
	CumNetInputMoney   float64 `json:"cumNetInputMoney"`
	CumProfitLoss      float64 `json:"cumProfitLoss"`
	CumReturn          float64 `json:"cumReturn"`
	AverageIssuePrice  float64 `json:"averageIssuePrice"`
	AverageCancelPrice float64 `json:"averageCancelPrice"`
	GeneralNAV         float64 `json:"generalNav"`

	// returns against the canonical par baseline
	PeriodReturn     float64 `json:"periodReturn"`
	CumulativeReturn float64 `json:"cumulativeReturn"`

	// Valid is false when ownership could not be derived for this date
	// (zero or missing fund total units); invalid rows are excluded from
	// rollup sums but retained for diagnostics.
	Valid bool `json:"valid"`
}
