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

package dataframe_test

import (
	"math"
	"time"

	"github.com/fundvault/fv-ledger/dataframe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

var _ = Describe("DataFrame", func() {
	Context("with no values", func() {
		var df *dataframe.DataFrame

		BeforeEach(func() {
			df = dataframe.New("Col1", "Col2")
		})

		It("has zero length", func() {
			Expect(df.Len()).To(Equal(0))
		})

		It("has two columns", func() {
			Expect(df.ColCount()).To(Equal(2))
		})

		It("does not error on trim", func() {
			df = df.Trim(day(1), day(31))
			Expect(df.Len()).To(Equal(0))
		})

		It("renders a placeholder table", func() {
			Expect(df.Table()).To(Equal("<NO DATA>"))
		})
	})

	Context("with a month of values", func() {
		var df *dataframe.DataFrame

		BeforeEach(func() {
			df = dataframe.New("Col1")
			for d := 1; d <= 31; d++ {
				df.InsertMap(day(d), map[string]float64{"Col1": float64(d)})
			}
		})

		It("has length", func() {
			Expect(df.Len()).To(Equal(31))
		})

		It("finds column indexes", func() {
			Expect(df.ColIndex("Col1")).To(Equal(0))
			Expect(df.ColIndex("Other")).To(Equal(-1))
		})

		It("deep copies", func() {
			df2 := df.Copy()
			df2.Vals[0][0] = 99
			Expect(df.Vals[0][0]).To(BeNumerically("==", 1))
		})

		It("fills absent columns with NaN on insert", func() {
			df2 := dataframe.New("Col1", "Col2")
			df2.InsertMap(day(1), map[string]float64{"Col1": 1})
			Expect(math.IsNaN(df2.Vals[1][0])).To(BeTrue())
		})

		It("lags values", func() {
			lagged := df.Lag(1)
			Expect(math.IsNaN(lagged.Vals[0][0])).To(BeTrue())
			Expect(lagged.Vals[0][1]).To(BeNumerically("==", 1))
			Expect(lagged.Len()).To(Equal(31))
		})

		It("keeps only the final row with last", func() {
			last := df.Last()
			Expect(last.Len()).To(Equal(1))
			Expect(last.Vals[0][0]).To(BeNumerically("==", 31))
		})

		DescribeTable("trims values by date range",
			func(a, b time.Time, expectedLen int) {
				df = df.Trim(a, b)
				Expect(df.Len()).To(Equal(expectedLen))
			},
			Entry("full range", day(1), day(31), 31),
			Entry("interior", day(10), day(20), 11),
			Entry("inverted range", day(20), day(10), 0),
			Entry("past the end", day(31), day(31), 1),
		)

		It("applies a lambda with forEach", func() {
			df.ForEach(func(_ int, _ time.Time, vals map[string]float64) map[string]float64 {
				return map[string]float64{"Col1": vals["Col1"] * 2}
			})
			Expect(df.Vals[0][9]).To(BeNumerically("==", 20))
		})
	})

	Context("with missing values", func() {
		var df *dataframe.DataFrame

		BeforeEach(func() {
			df = dataframe.New("Col1", "Col2")
			df.InsertMap(day(1), map[string]float64{"Col2": 10})
			df.InsertMap(day(2), map[string]float64{"Col1": 2, "Col2": 20})
			df.InsertMap(day(3), map[string]float64{"Col2": 30})
			df.InsertMap(day(4), map[string]float64{"Col1": 4})
			df.InsertMap(day(5), map[string]float64{})
		})

		It("drops rows containing NaN", func() {
			df.DropNA()
			Expect(df.Len()).To(Equal(1))
			Expect(df.Dates[0]).To(Equal(day(2)))
		})
	})
})

var _ = Describe("Gap filling", func() {
	var df *dataframe.DataFrame

	BeforeEach(func() {
		df = dataframe.New("Close", "Volume")
		df.InsertMap(day(1), map[string]float64{"Volume": 5})
		df.InsertMap(day(2), map[string]float64{"Close": 100, "Volume": 7})
		df.InsertMap(day(3), map[string]float64{})
		df.InsertMap(day(4), map[string]float64{"Close": 104})
		df.InsertMap(day(5), map[string]float64{})
	})

	It("carries the last observation forward", func() {
		df.ForwardFill("Close")
		Expect(math.IsNaN(df.Vals[0][0])).To(BeTrue(), "leading gap stays missing")
		Expect(df.Vals[0][1]).To(BeNumerically("==", 100))
		Expect(df.Vals[0][2]).To(BeNumerically("==", 100))
		Expect(df.Vals[0][3]).To(BeNumerically("==", 104))
		Expect(df.Vals[0][4]).To(BeNumerically("==", 104))
	})

	It("fills every column when none are named", func() {
		df.ForwardFill()
		Expect(df.Vals[1][2]).To(BeNumerically("==", 7))
		Expect(df.Vals[1][4]).To(BeNumerically("==", 7))
	})

	It("replaces gaps with a constant", func() {
		df.FillValue(0, "Volume")
		Expect(df.Vals[1][2]).To(BeNumerically("==", 0))
		Expect(df.Vals[1][0]).To(BeNumerically("==", 5))
	})

	It("never fills backward", func() {
		df.ForwardFill("Close")
		Expect(math.IsNaN(df.Vals[0][0])).To(BeTrue())
	})

	Context("point in time lookup", func() {
		BeforeEach(func() {
			df.ForwardFill("Close")
		})

		It("returns the row at the date", func() {
			vals, ok := df.LastOnOrBefore(day(4))
			Expect(ok).To(BeTrue())
			Expect(vals["Close"]).To(BeNumerically("==", 104))
		})

		It("returns the prior row between dates", func() {
			vals, ok := df.LastOnOrBefore(day(3))
			Expect(ok).To(BeTrue())
			Expect(vals["Close"]).To(BeNumerically("==", 100))
		})

		It("reports false before the first row", func() {
			_, ok := df.LastOnOrBefore(day(1).AddDate(0, 0, -1))
			Expect(ok).To(BeFalse())
		})

		It("returns the final row after the last date", func() {
			vals, ok := df.LastOnOrBefore(day(20))
			Expect(ok).To(BeTrue())
			Expect(vals["Close"]).To(BeNumerically("==", 104))
		})
	})
})
