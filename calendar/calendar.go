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

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
)

// DateFormat is the canonical string form of a civil date
const DateFormat = "2006-01-02"

var ErrInvalidDate = errors.New("invalid calendar date")

// Attributes describes the calendar coordinates of a single civil date.
// Conversion between the local reporting calendar and civil dates happens
// upstream; everything in this package operates on civil dates only.
type Attributes struct {
	Year       int          `json:"year"`
	HalfYear   int          `json:"halfYear"`
	Season     int          `json:"season"`
	Month      int          `json:"month"`
	MonthName  string       `json:"monthName"`
	WeekNumber int          `json:"weekNumber"`
	DayOfMonth int          `json:"dayOfMonth"`
	DayOfWeek  time.Weekday `json:"dayOfWeek"`
}

var attrCache *lru.Cache

func init() {
	var err error
	attrCache, err = lru.New(8192)
	if err != nil {
		log.Panic().Err(err).Msg("could not create calendar attribute cache")
	}
}

func validDate(dt time.Time) bool {
	if dt.IsZero() {
		return false
	}
	year := dt.Year()
	return year >= 1 && year <= 9999
}

// AttributesOf maps a civil date to its calendar attributes. The mapping is
// pure and cached; the cache is safe for concurrent readers.
func AttributesOf(dt time.Time) (Attributes, error) {
	if !validDate(dt) {
		return Attributes{}, fmt.Errorf("%w: %s", ErrInvalidDate, dt)
	}

	key := dt.Format(DateFormat)
	if cached, ok := attrCache.Get(key); ok {
		return cached.(Attributes), nil
	}

	month := int(dt.Month())
	_, week := dt.ISOWeek()

	attrs := Attributes{
		Year:       dt.Year(),
		HalfYear:   (month-1)/6 + 1,
		Season:     (month-1)/3 + 1,
		Month:      month,
		MonthName:  dt.Month().String(),
		WeekNumber: week,
		DayOfMonth: dt.Day(),
		DayOfWeek:  dt.Weekday(),
	}

	attrCache.Add(key, attrs)
	return attrs, nil
}

// Shift returns the date n days after dt (n may be negative)
func Shift(dt time.Time, n int) time.Time {
	return dt.AddDate(0, 0, n)
}

// MidnightUTC truncates dt to its civil date at midnight UTC, the canonical
// representation used throughout the ledger
func MidnightUTC(dt time.Time) time.Time {
	return time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, time.UTC)
}
