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
	"time"

	"github.com/rs/zerolog/log"
)

// ForwardFill replaces each NaN with the most recent non-NaN value earlier
// in the same column ("last observation carried forward"). Leading NaNs are
// left in place: the fill never moves values backward in time. If no columns
// are named, every column is filled. A frame holds rows for exactly one
// entity-key group, so a fill can never leak across groups.
func (df *DataFrame) ForwardFill(cols ...string) *DataFrame {
	colIdxs, err := df.resolveColumns(cols)
	if err != nil {
		log.Panic().Err(err).Msg("forward fill references an unknown column")
	}

	for _, colIdx := range colIdxs {
		lastValid := math.NaN()
		col := df.Vals[colIdx]
		for rowIdx, val := range col {
			if math.IsNaN(val) {
				col[rowIdx] = lastValid
			} else {
				lastValid = val
			}
		}
	}

	return df
}

// FillValue replaces NaNs in the named columns with a constant value
func (df *DataFrame) FillValue(value float64, cols ...string) *DataFrame {
	colIdxs, err := df.resolveColumns(cols)
	if err != nil {
		log.Panic().Err(err).Msg("fill value references an unknown column")
	}

	for _, colIdx := range colIdxs {
		col := df.Vals[colIdx]
		for rowIdx, val := range col {
			if math.IsNaN(val) {
				col[rowIdx] = value
			}
		}
	}

	return df
}

// LastOnOrBefore returns the values of the most recent row at or before dt
// (a point-in-time lookup). ok is false when every row is after dt.
func (df *DataFrame) LastOnOrBefore(dt time.Time) (map[string]float64, bool) {
	idx := sort.Search(len(df.Dates), func(i int) bool {
		return df.Dates[i].After(dt)
	})
	if idx == 0 {
		return nil, false
	}

	idx--
	res := make(map[string]float64, len(df.ColNames))
	for colIdx, colName := range df.ColNames {
		res[colName] = df.Vals[colIdx][idx]
	}
	return res, true
}

func (df *DataFrame) resolveColumns(cols []string) ([]int, error) {
	if len(cols) == 0 {
		colIdxs := make([]int, len(df.ColNames))
		for idx := range df.ColNames {
			colIdxs[idx] = idx
		}
		return colIdxs, nil
	}

	colIdxs := make([]int, 0, len(cols))
	for _, col := range cols {
		colIdx := df.ColIndex(col)
		if colIdx == -1 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
		}
		colIdxs = append(colIdxs, colIdx)
	}
	return colIdxs, nil
}
