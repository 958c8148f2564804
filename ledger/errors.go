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
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// resolution errors - record dropped and counted, run continues
	ErrUnknownFund      = errors.New("event or snapshot references an unknown fund")
	ErrUnknownInvestor  = errors.New("event references an unknown investor")
	ErrUnknownOperation = errors.New("operation label could not be classified")
	ErrDuplicateReport  = errors.New("duplicate report for fund date")

	// data-quality warnings - value marked invalid, run continues
	ErrZeroUnitEvent       = errors.New("event has zero units; unit price cannot be derived")
	ErrNegativeUnits       = errors.New("event has negative units or amount")
	ErrNegativeNetPosition = errors.New("cumulative net position is negative")
	ErrOwnershipOutOfRange = errors.New("fractional ownership outside [0, 1]")
	ErrZeroDenominator     = errors.New("division by zero in derived metric")
	ErrMissingTotalUnits   = errors.New("fund total units outstanding is zero or missing")

	// consistency errors - run-level diagnostic
	ErrReconciliation = errors.New("investor allocations diverge from fund total")

	// fatal errors - abort the run
	ErrEmptyInput       = errors.New("input table is empty")
	ErrMissingReference = errors.New("required reference table is missing")
)

// IssueKind buckets a diagnostic by the error taxonomy
type IssueKind string

const (
	IssueResolution  IssueKind = "resolution"
	IssueQuality     IssueKind = "quality"
	IssueConsistency IssueKind = "consistency"
)

// Issue is one accumulated, non-fatal problem observed during a run
type Issue struct {
	Kind         IssueKind `json:"kind"`
	Err          error     `json:"-"`
	Reason       string    `json:"reason"`
	FundID       string    `json:"fundId,omitempty"`
	InvestorCode string    `json:"investorCode,omitempty"`
	Date         time.Time `json:"date,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

// Diagnostics accumulates per-record issues across pipeline stages. Stages
// run concurrently per fund, so the recorder is mutex guarded. No issue
// halts the run; callers inspect counts after completion.
type Diagnostics struct {
	mu     sync.Mutex
	issues []Issue
}

func (d *Diagnostics) record(kind IssueKind, issue Issue) {
	issue.Kind = kind
	if issue.Err != nil {
		issue.Reason = issue.Err.Error()
	}

	d.mu.Lock()
	d.issues = append(d.issues, issue)
	d.mu.Unlock()

	log.Debug().
		Str("Kind", string(kind)).
		Str("FundID", issue.FundID).
		Str("InvestorCode", issue.InvestorCode).
		Str("Detail", issue.Detail).
		Err(issue.Err).
		Msg("ledger diagnostic")
}

// Resolution records a dropped record that referenced unknown reference data
func (d *Diagnostics) Resolution(issue Issue) {
	d.record(IssueResolution, issue)
}

// Quality records a value that was marked invalid rather than coerced
func (d *Diagnostics) Quality(issue Issue) {
	d.record(IssueQuality, issue)
}

// Consistency records a violated accounting identity
func (d *Diagnostics) Consistency(issue Issue) {
	d.record(IssueConsistency, issue)
}

// Issues returns a copy of all accumulated issues
func (d *Diagnostics) Issues() []Issue {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Issue, len(d.issues))
	copy(out, d.issues)
	return out
}

// Count returns the number of issues of the given kind
func (d *Diagnostics) Count(kind IssueKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, issue := range d.issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}

// Len returns the total number of accumulated issues
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.issues)
}
