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

package calendar

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidFrame = errors.New("time frame has no calendar bucketing")

// TimeFrame is an aggregation granularity for ledger output. The six
// calendar frames bucket by date; the event frames (Announcement, Contract)
// bucket by whichever corporate-action regime is in force and are assigned
// during snapshot normalization rather than here.
type TimeFrame string

const (
	Daily        TimeFrame = "Date"
	Weekly       TimeFrame = "Week"
	Monthly      TimeFrame = "Month"
	Seasonal     TimeFrame = "Season"
	HalfYearly   TimeFrame = "HalfYear"
	Yearly       TimeFrame = "Year"
	Announcement TimeFrame = "Announcement"
	Contract     TimeFrame = "Contract"
)

// BucketKey identifies one aggregation bucket within a time frame.
type BucketKey string

// CalendarFrames returns the date-derived time frames in coarseness order.
func CalendarFrames() []TimeFrame {
	return []TimeFrame{Daily, Weekly, Monthly, Seasonal, HalfYearly, Yearly}
}

// EventFrames returns the corporate-action derived time frames.
func EventFrames() []TimeFrame {
	return []TimeFrame{Announcement, Contract}
}

// BucketOf maps a date to its bucket key for the given calendar frame.
// Sub-year buckets embed the year so that a bucket never spans two years,
// matching the reporting convention of the upstream calendar table.
func BucketOf(dt time.Time, frame TimeFrame) (BucketKey, error) {
	attrs, err := AttributesOf(dt)
	if err != nil {
		return "", err
	}

	switch frame {
	case Daily:
		return BucketKey(dt.Format(DateFormat)), nil
	case Weekly:
		// ISO weeks at a year boundary belong to the ISO year, not the civil year
		isoYear, isoWeek := dt.ISOWeek()
		return BucketKey(fmt.Sprintf("%04d-W%02d", isoYear, isoWeek)), nil
	case Monthly:
		return BucketKey(fmt.Sprintf("%04d-M%02d", attrs.Year, attrs.Month)), nil
	case Seasonal:
		return BucketKey(fmt.Sprintf("%04d-S%d", attrs.Year, attrs.Season)), nil
	case HalfYearly:
		return BucketKey(fmt.Sprintf("%04d-H%d", attrs.Year, attrs.HalfYear)), nil
	case Yearly:
		return BucketKey(fmt.Sprintf("%04d", attrs.Year)), nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidFrame, frame)
}
