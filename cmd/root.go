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
	"fmt"
	"os"

	"github.com/fundvault/fv-ledger/common"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Database
	viper.BindEnv("database.url", "DATABASE_URL")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))

	// Ledger computation
	viper.BindEnv("ledger.baseline_nav", "FV_BASELINE_NAV")
	rootCmd.PersistentFlags().Float64("baseline-nav", 1_000_000, "Par issue price used as the return baseline")
	viper.BindPFlag("ledger.baseline_nav", rootCmd.PersistentFlags().Lookup("baseline-nav"))

	viper.BindEnv("ledger.tolerance", "FV_TOLERANCE")
	rootCmd.PersistentFlags().Float64("tolerance", 1e-6, "Relative tolerance for ownership and reconciliation checks")
	viper.BindPFlag("ledger.tolerance", rootCmd.PersistentFlags().Lookup("tolerance"))

	viper.BindEnv("ledger.clamp_prehistory_events", "FV_CLAMP_PREHISTORY_EVENTS")
	rootCmd.PersistentFlags().Bool("clamp-prehistory-events", true, "Move events dated before a fund's first report onto the first report date")
	viper.BindPFlag("ledger.clamp_prehistory_events", rootCmd.PersistentFlags().Lookup("clamp-prehistory-events"))

	// OpenTelemetry
	viper.BindEnv("otlp.endpoint", "OTLP_ENDPOINT")
	rootCmd.PersistentFlags().String("otlp-endpoint", "", "OTLP trace collector endpoint; traces are disabled when blank")
	viper.BindPFlag("otlp.endpoint", rootCmd.PersistentFlags().Lookup("otlp-endpoint"))

	viper.BindEnv("otlp.http", "OTLP_HTTP")
	rootCmd.PersistentFlags().Bool("otlp-http", false, "Use HTTP(s) instead of gRPC for the OTLP connection")
	viper.BindPFlag("otlp.http", rootCmd.PersistentFlags().Lookup("otlp-http"))

	// Logging configuration
	viper.BindEnv("log.level", "FV_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.BindEnv("log.report_caller", "FV_LOG_REPORT_CALLER")
	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	viper.BindPFlag("log.report_caller", rootCmd.PersistentFlags().Lookup("log-report-caller"))

	viper.BindEnv("log.output", "FV_LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stderr", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	viper.BindEnv("log.pretty", "FV_LOG_PRETTY")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "Use human friendly console log output")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

var rootCmd = &cobra.Command{
	Use:     "fvledger",
	Version: common.CurrentVersion.String(),
	Short:   "fvledger builds ownership and return attribution ledgers for managed funds",
	Long: `fvledger reconciles investor issuance and redemption events against
periodic fund reports and produces attribution ledgers at fund, investor,
holding and market level across multiple time frames.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
