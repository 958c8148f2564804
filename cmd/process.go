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

package cmd

import (
	"context"
	"os"
	"time"

	"github.com/fundvault/fv-ledger/calendar"
	"github.com/fundvault/fv-ledger/common"
	"github.com/fundvault/fv-ledger/data"
	"github.com/fundvault/fv-ledger/data/database"
	"github.com/fundvault/fv-ledger/ledger"
	"github.com/fundvault/fv-ledger/observability/opentelemetry"
	"github.com/fundvault/fv-ledger/pipeline"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	processStartDate string
	processEndDate   string
	processSave      bool
	processOutput    string
)

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processStartDate, "start", "1990-01-01", "Process events and reports starting on this date (YYYY-MM-DD)")
	processCmd.Flags().StringVar(&processEndDate, "end", time.Now().Format(calendar.DateFormat), "Process events and reports up to this date (YYYY-MM-DD)")
	processCmd.Flags().BoolVar(&processSave, "save", false, "Replace the stored ledger generation with this run's output")
	processCmd.Flags().StringVar(&processOutput, "output", "", "Write the full result to the named JSON file")
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Build a full ledger generation from the stored feeds",
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		if viper.GetString("otlp.endpoint") != "" {
			shutdown, err := opentelemetry.Setup()
			if err != nil {
				log.Fatal().Err(err).Msg("could not initialize tracing")
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("could not shutdown tracing")
				}
			}()
		}

		begin, err := time.Parse(calendar.DateFormat, processStartDate)
		if err != nil {
			log.Fatal().Err(err).Str("StartDate", processStartDate).Msg("could not parse start date")
		}
		end, err := time.Parse(calendar.DateFormat, processEndDate)
		if err != nil {
			log.Fatal().Err(err).Str("EndDate", processEndDate).Msg("could not parse end date")
		}

		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		inputs, err := data.LoadInputs(ctx, begin, end)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load pipeline inputs")
		}

		clamp := ledger.KeepOriginalDates
		if viper.GetBool("ledger.clamp_prehistory_events") {
			clamp = ledger.ClampToFirstSnapshot
		}

		result, err := pipeline.Run(ctx, inputs, &pipeline.Options{
			BaselineNAV: viper.GetFloat64("ledger.baseline_nav"),
			Tolerance:   viper.GetFloat64("ledger.tolerance"),
			Clamp:       clamp,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("pipeline run failed")
		}

		summary := ledger.Summarize(result.Fund)
		log.Info().
			Int("NumResolution", result.Diagnostics.Count(ledger.IssueResolution)).
			Int("NumQuality", result.Diagnostics.Count(ledger.IssueQuality)).
			Int("NumConsistency", result.Diagnostics.Count(ledger.IssueConsistency)).
			Float64("MeanPeriodReturn", summary.Mean).
			Float64("StdDevPeriodReturn", summary.StdDev).
			Msg("run diagnostics")

		if processOutput != "" {
			payload, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				log.Fatal().Err(err).Msg("could not marshal result")
			}
			if err := os.WriteFile(processOutput, payload, 0600); err != nil {
				log.Fatal().Err(err).Str("FileName", processOutput).Msg("could not write result file")
			}
		}

		if processSave {
			if err := data.SaveResult(ctx, result); err != nil {
				log.Fatal().Err(err).Msg("could not save ledger generation")
			}
		}
	},
}
