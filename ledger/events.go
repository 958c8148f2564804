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
	"strings"
	"time"

	"github.com/fundvault/fv-ledger/calendar"

	"github.com/rs/zerolog/log"
)

// ClampPolicy controls how events dated before a fund's first snapshot are
// handled. Attributing pre-history events to the start of tracked history is
// the upstream convention; it is kept overridable pending product
// clarification.
type ClampPolicy int

const (
	// ClampToFirstSnapshot moves pre-history event dates forward to the
	// fund's first report date
	ClampToFirstSnapshot ClampPolicy = iota
	// KeepOriginalDates leaves event dates untouched and records a
	// data-quality warning instead
	KeepOriginalDates
)

// operationSynonyms maps source-specific operation labels onto the two
// canonical operation types. Labels are matched lowercase.
var operationSynonyms = map[string]OperationType{
	"issue":           OperationIssue,
	"issuance":        OperationIssue,
	"subscription":    OperationIssue,
	"capital deposit": OperationIssue,
	"redeem":          OperationRedeem,
	"redemption":      OperationRedeem,
	"cancellation":    OperationRedeem,
	"withdrawal":      OperationRedeem,
}

// EventNormalizer resolves raw issuance/redemption records against the fund
// and investor reference tables and computes per-event signed deltas.
type EventNormalizer struct {
	funds             map[string]*Fund
	investors         map[string]*Investor
	firstSnapshotDate map[string]time.Time
	clamp             ClampPolicy
}

// NewEventNormalizer builds a normalizer. snapshots supplies each fund's
// first report date for the pre-history clamp policy.
func NewEventNormalizer(funds []*Fund, investors []*Investor, snapshots []*Snapshot, clamp ClampPolicy) *EventNormalizer {
	n := &EventNormalizer{
		funds:             make(map[string]*Fund, len(funds)),
		investors:         make(map[string]*Investor, len(investors)),
		firstSnapshotDate: make(map[string]time.Time),
		clamp:             clamp,
	}

	for _, fund := range funds {
		n.funds[fund.FundID] = fund
	}
	for _, investor := range investors {
		n.investors[investor.Code] = investor
	}
	for _, snap := range snapshots {
		if first, ok := n.firstSnapshotDate[snap.FundID]; !ok || snap.Date.Before(first) {
			n.firstSnapshotDate[snap.FundID] = snap.Date
		}
	}

	return n
}

// Normalize produces one Event per resolvable raw record, preserving feed
// arrival order in Seq. Records referencing unknown funds or investors, or
// carrying an unclassifiable operation label, are dropped and counted.
// Zero-unit events are reported and excluded: a unit price cannot be
// derived from them and they would corrupt the cumulative sums. Negative
// units or amounts are likewise excluded; the operation type determines the
// direction of a delta, never the sign of the feed values.
func (n *EventNormalizer) Normalize(raws []*RawEvent, diags *Diagnostics) []*Event {
	out := make([]*Event, 0, len(raws))

	for seq, raw := range raws {
		fund, ok := n.funds[raw.FundID]
		if !ok {
			diags.Resolution(Issue{Err: ErrUnknownFund, FundID: raw.FundID, Date: raw.Date})
			continue
		}

		if _, ok := n.investors[raw.InvestorCode]; !ok {
			diags.Resolution(Issue{
				Err:          ErrUnknownInvestor,
				FundID:       fund.FundID,
				InvestorCode: raw.InvestorCode,
				Date:         raw.Date,
			})
			continue
		}

		operation, ok := operationSynonyms[strings.ToLower(strings.TrimSpace(raw.OperationLabel))]
		if !ok {
			diags.Resolution(Issue{
				Err:          ErrUnknownOperation,
				FundID:       fund.FundID,
				InvestorCode: raw.InvestorCode,
				Date:         raw.Date,
				Detail:       raw.OperationLabel,
			})
			continue
		}

		if raw.Units == 0 {
			diags.Quality(Issue{
				Err:          ErrZeroUnitEvent,
				FundID:       fund.FundID,
				InvestorCode: raw.InvestorCode,
				Date:         raw.Date,
			})
			continue
		}

		// the operation type already carries the sign; a negative count or
		// amount would shrink a cumulative series
		if raw.Units < 0 || raw.Amount < 0 {
			diags.Quality(Issue{
				Err:          ErrNegativeUnits,
				FundID:       fund.FundID,
				InvestorCode: raw.InvestorCode,
				Date:         raw.Date,
				Detail:       fmt.Sprintf("units %f, amount %f", raw.Units, raw.Amount),
			})
			continue
		}

		event := &Event{
			FundID:       fund.FundID,
			InvestorCode: raw.InvestorCode,
			Operation:    operation,
			Date:         n.eventDate(fund.FundID, raw, diags),
			Seq:          seq,
			UnitPrice:    raw.UnitPrice,
		}

		if event.UnitPrice == 0 {
			event.UnitPrice = raw.Amount / raw.Units
		}

		switch operation {
		case OperationIssue:
			event.IssuedUnits = raw.Units
			event.IssuedAmount = raw.Amount
		case OperationRedeem:
			event.CancelledUnits = raw.Units
			event.CancelledAmount = raw.Amount
		}

		event.ReportKey = ReportKey(event.FundID, event.Date)
		out = append(out, event)
	}

	log.Info().Int("NumEvents", len(out)).Int("NumDropped", len(raws)-len(out)).Msg("normalized event feed")
	return out
}

// eventDate applies the pre-history clamp policy
func (n *EventNormalizer) eventDate(fundID string, raw *RawEvent, diags *Diagnostics) time.Time {
	date := calendar.MidnightUTC(raw.Date)
	first, ok := n.firstSnapshotDate[fundID]
	if !ok || !date.Before(first) {
		return date
	}

	if n.clamp == ClampToFirstSnapshot {
		return first
	}

	diags.Quality(Issue{
		FundID:       fundID,
		InvestorCode: raw.InvestorCode,
		Date:         date,
		Detail:       "event precedes the fund's reporting history",
	})
	return date
}
