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
	"time"

	"github.com/fundvault/fv-ledger/calendar"

	json "github.com/goccy/go-json"
)

// jsonRecord mirrors Record with nullable metrics. JSON cannot carry NaN, so
// missing values marshal as null.
type jsonRecord struct {
	Kind         EntityKind         `json:"kind"`
	EntityID     string             `json:"entityId"`
	FundID       string             `json:"fundId,omitempty"`
	InvestorCode string             `json:"investorCode,omitempty"`
	Holding      string             `json:"holding,omitempty"`
	TimeFrame    calendar.TimeFrame `json:"timeFrame"`
	Bucket       calendar.BucketKey `json:"bucket"`
	Date         time.Time          `json:"date"`

	CumIssuedUnits     float64 `json:"cumIssuedUnits"`
	CumCancelledUnits  float64 `json:"cumCancelledUnits"`
	CumIssuedAmount    float64 `json:"cumIssuedAmount"`
	CumCancelledAmount float64 `json:"cumCancelledAmount"`
	NetUnits           float64 `json:"netUnits"`

	TotalUnits          *float64 `json:"totalUnits"`
	FractionalOwnership *float64 `json:"fractionalOwnership"`

	NetSalesValue        *float64 `json:"netSalesValue"`
	CashCurrentBrokerage *float64 `json:"cashCurrentBrokerage"`
	CashBankDeposit      *float64 `json:"cashBankDeposit"`
	Cash                 *float64 `json:"cash"`
	FundsFixedIncome     *float64 `json:"fundsFixedIncome"`
	BondsFixedIncome     *float64 `json:"bondsFixedIncome"`
	FixedIncome          *float64 `json:"fixedIncome"`
	BoughtPower          *float64 `json:"boughtPower"`
	AssetsValue          *float64 `json:"assetsValue"`
	NetAssetsValue       *float64 `json:"netAssetsValue"`
	CreditValue          *float64 `json:"creditValue"`
	CommitmentAmount     *float64 `json:"commitmentAmount"`

	CumNetInputMoney   float64  `json:"cumNetInputMoney"`
	CumProfitLoss      *float64 `json:"cumProfitLoss"`
	CumReturn          float64  `json:"cumReturn"`
	AverageIssuePrice  *float64 `json:"averageIssuePrice"`
	AverageCancelPrice *float64 `json:"averageCancelPrice"`
	GeneralNAV         *float64 `json:"generalNav"`

	PeriodReturn     float64 `json:"periodReturn"`
	CumulativeReturn float64 `json:"cumulativeReturn"`

	Valid bool `json:"valid"`
}

func finite(val float64) *float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return nil
	}
	return &val
}

func orNaN(val *float64) float64 {
	if val == nil {
		return math.NaN()
	}
	return *val
}

func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(&jsonRecord{
		Kind:                 r.Kind,
		EntityID:             r.EntityID,
		FundID:               r.FundID,
		InvestorCode:         r.InvestorCode,
		Holding:              r.Holding,
		TimeFrame:            r.TimeFrame,
		Bucket:               r.Bucket,
		Date:                 r.Date,
		CumIssuedUnits:       r.CumIssuedUnits,
		CumCancelledUnits:    r.CumCancelledUnits,
		CumIssuedAmount:      r.CumIssuedAmount,
		CumCancelledAmount:   r.CumCancelledAmount,
		NetUnits:             r.NetUnits,
		TotalUnits:           finite(r.TotalUnits),
		FractionalOwnership:  finite(r.FractionalOwnership),
		NetSalesValue:        finite(r.NetSalesValue),
		CashCurrentBrokerage: finite(r.CashCurrentBrokerage),
		CashBankDeposit:      finite(r.CashBankDeposit),
		Cash:                 finite(r.Cash),
		FundsFixedIncome:     finite(r.FundsFixedIncome),
		BondsFixedIncome:     finite(r.BondsFixedIncome),
		FixedIncome:          finite(r.FixedIncome),
		BoughtPower:          finite(r.BoughtPower),
		AssetsValue:          finite(r.AssetsValue),
		NetAssetsValue:       finite(r.NetAssetsValue),
		CreditValue:          finite(r.CreditValue),
		CommitmentAmount:     finite(r.CommitmentAmount),
		CumNetInputMoney:     r.CumNetInputMoney,
		CumProfitLoss:        finite(r.CumProfitLoss),
		CumReturn:            r.CumReturn,
		AverageIssuePrice:    finite(r.AverageIssuePrice),
		AverageCancelPrice:   finite(r.AverageCancelPrice),
		GeneralNAV:           finite(r.GeneralNAV),
		PeriodReturn:         r.PeriodReturn,
		CumulativeReturn:     r.CumulativeReturn,
		Valid:                r.Valid,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var jr jsonRecord
	if err := json.Unmarshal(data, &jr); err != nil {
		return err
	}

	*r = Record{
		Kind:                 jr.Kind,
		EntityID:             jr.EntityID,
		FundID:               jr.FundID,
		InvestorCode:         jr.InvestorCode,
		Holding:              jr.Holding,
		TimeFrame:            jr.TimeFrame,
		Bucket:               jr.Bucket,
		Date:                 jr.Date,
		CumIssuedUnits:       jr.CumIssuedUnits,
		CumCancelledUnits:    jr.CumCancelledUnits,
		CumIssuedAmount:      jr.CumIssuedAmount,
		CumCancelledAmount:   jr.CumCancelledAmount,
		NetUnits:             jr.NetUnits,
		TotalUnits:           orNaN(jr.TotalUnits),
		FractionalOwnership:  orNaN(jr.FractionalOwnership),
		NetSalesValue:        orNaN(jr.NetSalesValue),
		CashCurrentBrokerage: orNaN(jr.CashCurrentBrokerage),
		CashBankDeposit:      orNaN(jr.CashBankDeposit),
		Cash:                 orNaN(jr.Cash),
		FundsFixedIncome:     orNaN(jr.FundsFixedIncome),
		BondsFixedIncome:     orNaN(jr.BondsFixedIncome),
		FixedIncome:          orNaN(jr.FixedIncome),
		BoughtPower:          orNaN(jr.BoughtPower),
		AssetsValue:          orNaN(jr.AssetsValue),
		NetAssetsValue:       orNaN(jr.NetAssetsValue),
		CreditValue:          orNaN(jr.CreditValue),
		CommitmentAmount:     orNaN(jr.CommitmentAmount),
		CumNetInputMoney:     jr.CumNetInputMoney,
		CumProfitLoss:        orNaN(jr.CumProfitLoss),
		CumReturn:            jr.CumReturn,
		AverageIssuePrice:    orNaN(jr.AverageIssuePrice),
		AverageCancelPrice:   orNaN(jr.AverageCancelPrice),
		GeneralNAV:           orNaN(jr.GeneralNAV),
		PeriodReturn:         jr.PeriodReturn,
		CumulativeReturn:     jr.CumulativeReturn,
		Valid:                jr.Valid,
	}
	return nil
}

// MarshalJSON emits the accumulated issues
func (d *Diagnostics) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Issues())
}
