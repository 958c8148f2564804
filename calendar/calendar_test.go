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

package calendar_test

import (
	"time"

	"github.com/fundvault/fv-ledger/calendar"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Calendar attributes", func() {
	Context("with a mid-year date", func() {
		dt := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

		It("computes year partitions", func() {
			attrs, err := calendar.AttributesOf(dt)
			Expect(err).To(BeNil())
			Expect(attrs.Year).To(Equal(2024))
			Expect(attrs.HalfYear).To(Equal(2))
			Expect(attrs.Season).To(Equal(3))
			Expect(attrs.Month).To(Equal(8))
			Expect(attrs.MonthName).To(Equal("August"))
			Expect(attrs.DayOfMonth).To(Equal(15))
			Expect(attrs.DayOfWeek).To(Equal(time.Thursday))
		})

		It("returns identical attributes from the cache", func() {
			first, err := calendar.AttributesOf(dt)
			Expect(err).To(BeNil())
			second, err := calendar.AttributesOf(dt)
			Expect(err).To(BeNil())
			Expect(second).To(Equal(first))
		})
	})

	DescribeTable("half year and season boundaries",
		func(month, expectedHalf, expectedSeason int) {
			attrs, err := calendar.AttributesOf(time.Date(2024, time.Month(month), 10, 0, 0, 0, 0, time.UTC))
			Expect(err).To(BeNil())
			Expect(attrs.HalfYear).To(Equal(expectedHalf))
			Expect(attrs.Season).To(Equal(expectedSeason))
		},
		Entry("january", 1, 1, 1),
		Entry("march", 3, 1, 1),
		Entry("april", 4, 1, 2),
		Entry("june", 6, 1, 2),
		Entry("july", 7, 2, 3),
		Entry("october", 10, 2, 4),
		Entry("december", 12, 2, 4),
	)

	Context("with an invalid date", func() {
		It("rejects the zero time", func() {
			_, err := calendar.AttributesOf(time.Time{})
			Expect(err).To(MatchError(calendar.ErrInvalidDate))
		})
	})

	Context("shifting dates", func() {
		It("crosses a month boundary", func() {
			dt := calendar.Shift(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 1)
			Expect(dt).To(Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
		})

		It("moves backward", func() {
			dt := calendar.Shift(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), -1)
			Expect(dt).To(Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
		})
	})

	Context("canonicalizing timestamps", func() {
		It("truncates to midnight UTC", func() {
			loc := time.FixedZone("UTC+3:30", 3*3600+1800)
			dt := calendar.MidnightUTC(time.Date(2024, 5, 2, 14, 31, 9, 12, loc))
			Expect(dt).To(Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)))
		})
	})
})

var _ = Describe("Time frame buckets", func() {
	DescribeTable("maps dates to bucket keys",
		func(dt time.Time, frame calendar.TimeFrame, expected string) {
			bucket, err := calendar.BucketOf(dt, frame)
			Expect(err).To(BeNil())
			Expect(string(bucket)).To(Equal(expected))
		},
		Entry("daily", time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), calendar.Daily, "2024-03-07"),
		Entry("weekly", time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), calendar.Weekly, "2024-W10"),
		Entry("monthly", time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), calendar.Monthly, "2024-M03"),
		Entry("seasonal", time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), calendar.Seasonal, "2024-S1"),
		Entry("half yearly", time.Date(2024, 9, 7, 0, 0, 0, 0, time.UTC), calendar.HalfYearly, "2024-H2"),
		Entry("yearly", time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), calendar.Yearly, "2024"),
	)

	It("assigns a new-year date to the prior ISO week year", func() {
		// 2021-01-01 falls in ISO week 53 of 2020
		bucket, err := calendar.BucketOf(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), calendar.Weekly)
		Expect(err).To(BeNil())
		Expect(string(bucket)).To(Equal("2020-W53"))
	})

	It("rejects event frames", func() {
		_, err := calendar.BucketOf(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), calendar.Announcement)
		Expect(err).To(MatchError(calendar.ErrInvalidFrame))
	})

	It("rejects invalid dates", func() {
		_, err := calendar.BucketOf(time.Time{}, calendar.Daily)
		Expect(err).To(MatchError(calendar.ErrInvalidDate))
	})
})
