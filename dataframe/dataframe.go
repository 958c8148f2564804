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

package dataframe

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
)

// New creates an empty dataframe with the given columns
func New(colNames ...string) *DataFrame {
	return &DataFrame{
		ColNames: colNames,
		Vals:     make([][]float64, len(colNames)),
	}
}

// Len returns the number of rows in the dataframe
func (df *DataFrame) Len() int {
	return len(df.Dates)
}

// ColCount returns the number of columns in the dataframe
func (df *DataFrame) ColCount() int {
	return len(df.ColNames)
}

// ColIndex returns the index of the named column; -1 if it doesn't exist
func (df *DataFrame) ColIndex(colName string) int {
	for idx, val := range df.ColNames {
		if colName == val {
			return idx
		}
	}

	return -1
}

// Copy creates a deep copy of the dataframe
func (df *DataFrame) Copy() *DataFrame {
	df2 := &DataFrame{
		ColNames: make([]string, len(df.ColNames)),
		Dates:    make([]time.Time, len(df.Dates)),
		Vals:     make([][]float64, len(df.Vals)),
	}

	copy(df2.ColNames, df.ColNames)
	copy(df2.Dates, df.Dates)

	for idx := range df2.Vals {
		df2.Vals[idx] = make([]float64, len(df.Vals[idx]))
		copy(df2.Vals[idx], df.Vals[idx])
	}

	return df2
}

// Insert adds a new column to the end of the dataframe
func (df *DataFrame) Insert(name string, col []float64) *DataFrame {
	df.ColNames = append(df.ColNames, name)
	df.Vals = append(df.Vals, col)
	return df
}

// InsertMap adds a new row to the dataframe. The date must be after the last
// date in the dataframe otherwise panic. Columns absent from vals are filled
// with NaN; extra keys in vals are ignored.
func (df *DataFrame) InsertMap(date time.Time, vals map[string]float64) *DataFrame {
	if len(df.Dates) != 0 {
		last := df.Dates[len(df.Dates)-1]
		if !last.Before(date) {
			log.Panic().Time("lastDate", last).Time("newDate", date).Msg("newDate must be after lastDate")
		}
	}

	df.Dates = append(df.Dates, date)
	for colIdx, colName := range df.ColNames {
		if val, ok := vals[colName]; ok {
			df.Vals[colIdx] = append(df.Vals[colIdx], val)
		} else {
			df.Vals[colIdx] = append(df.Vals[colIdx], math.NaN())
		}
	}

	return df
}

// ForEach takes a lambda of prototype func(rowIdx int, rowDate time.Time, vals map[string]float64) map[string]float64
// and updates the row with the returned values; columns not present in the
// returned map are left untouched
func (df *DataFrame) ForEach(lambda func(int, time.Time, map[string]float64) map[string]float64) {
	res := make(map[string]float64, len(df.ColNames))
	for idx, rowDate := range df.Dates {
		for colIdx, colName := range df.ColNames {
			res[colName] = df.Vals[colIdx][idx]
		}
		ret := lambda(idx, rowDate, res)
		for colName, val := range ret {
			if colIdx := df.ColIndex(colName); colIdx != -1 {
				df.Vals[colIdx][idx] = val
			}
		}
	}
}

// Lag shifts the dataframe down by the specified number of rows, replacing
// shifted values with math.NaN(), and returns a new dataframe
func (df *DataFrame) Lag(n int) *DataFrame {
	df = df.Copy()
	prepend := make([]float64, n)
	for idx := range prepend {
		prepend[idx] = math.NaN()
	}

	for idx := range df.Vals {
		l := len(df.Vals[idx])
		df.Vals[idx] = append(prepend, df.Vals[idx]...)[:l] //nolint:makezero
	}
	return df
}

// Last returns a new dataframe containing only the final row
func (df *DataFrame) Last() *DataFrame {
	if df.Len() == 0 {
		return df
	}

	lastVals := make([][]float64, len(df.ColNames))
	lastRow := len(df.Dates) - 1
	for idx, col := range df.Vals {
		lastVals[idx] = []float64{col[lastRow]}
	}

	return &DataFrame{
		ColNames: df.ColNames,
		Dates:    []time.Time{df.Dates[lastRow]},
		Vals:     lastVals,
	}
}

// Trim returns a view of the dataframe restricted to the date range
// [begin, end] (inclusive)
func (df *DataFrame) Trim(begin, end time.Time) *DataFrame {
	df2 := &DataFrame{
		ColNames: df.ColNames,
		Dates:    df.Dates,
		Vals:     df.Vals,
	}

	if end.Before(begin) || df.Len() == 0 {
		df2.Dates = []time.Time{}
		df2.Vals = make([][]float64, len(df.Vals))
		return df2
	}

	beginIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(begin)
	})

	endIdx := sort.Search(len(df.Dates), func(i int) bool {
		return df.Dates[i].After(end)
	})

	df2.Dates = df.Dates[beginIdx:endIdx]
	df2.Vals = make([][]float64, len(df.Vals))
	for colIdx, col := range df.Vals {
		df2.Vals[colIdx] = col[beginIdx:endIdx]
	}

	return df2
}

// DropNA removes rows that contain a NaN in any column
func (df *DataFrame) DropNA() *DataFrame {
	newVals := make([][]float64, len(df.Vals))
	newDates := make([]time.Time, 0, len(df.Dates))

	for idx, rowDate := range df.Dates {
		keep := true
		for _, col := range df.Vals {
			if math.IsNaN(col[idx]) {
				keep = false
				break
			}
		}

		if keep {
			newDates = append(newDates, rowDate)
			for colIdx, col := range df.Vals {
				newVals[colIdx] = append(newVals[colIdx], col[idx])
			}
		}
	}

	df.Vals = newVals
	df.Dates = newDates
	return df
}

// Table renders an ASCII formatted table; useful when debugging
func (df *DataFrame) Table() string {
	if len(df.Dates) == 0 {
		return "<NO DATA>" // nothing to do as there is no data available in the dataframe
	}

	tableCols := append([]string{"Date"}, df.ColNames...)

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader(tableCols)
	footer := make([]string, len(tableCols))
	footer[0] = "Num Rows"
	footer[1] = fmt.Sprintf("%d", df.Len())
	table.SetFooter(footer)
	table.SetBorder(false)

	for idx, rowDate := range df.Dates {
		row := make([]string, 0, len(df.Vals)+1)
		row = append(row, rowDate.Format("2006-01-02"))
		for _, col := range df.Vals {
			row = append(row, fmt.Sprintf("%.4f", col[idx]))
		}
		table.Append(row)
	}

	table.Render()
	return s.String()
}
