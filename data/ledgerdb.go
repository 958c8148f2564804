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

package data

import (
	"context"
	"time"

	"github.com/fundvault/fv-ledger/data/database"
	"github.com/fundvault/fv-ledger/ledger"
	"github.com/fundvault/fv-ledger/pipeline"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// LoadInputs reads the reference tables and both feeds for the requested
// window. Reference tables are always read in full; only the event and
// snapshot feeds are windowed.
func LoadInputs(ctx context.Context, begin, end time.Time) (*pipeline.Inputs, error) {
	inputs := &pipeline.Inputs{}
	var err error

	if inputs.Funds, err = LoadFunds(ctx); err != nil {
		return nil, err
	}
	if inputs.Investors, err = LoadInvestors(ctx); err != nil {
		return nil, err
	}
	if inputs.Announcements, err = LoadAnnouncements(ctx); err != nil {
		return nil, err
	}
	if inputs.Prices, err = LoadPrices(ctx, begin, end); err != nil {
		return nil, err
	}
	if inputs.Events, err = LoadEvents(ctx, begin, end); err != nil {
		return nil, err
	}
	if inputs.Snapshots, err = LoadSnapshots(ctx, begin, end); err != nil {
		return nil, err
	}

	return inputs, nil
}

// LoadFunds reads the fund reference table
func LoadFunds(ctx context.Context) ([]*ledger.Fund, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	sql := `SELECT fund_id, instrument_id, name, holding FROM funds ORDER BY fund_id`
	rows, err := trx.Query(ctx, sql)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not load funds")
		rollback(ctx, trx)
		return nil, err
	}

	funds := make([]*ledger.Fund, 0, 100)
	for rows.Next() {
		fund := &ledger.Fund{}
		if err := rows.Scan(&fund.FundID, &fund.InstrumentID, &fund.Name, &fund.Holding); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan fund row")
			rollback(ctx, trx)
			return nil, err
		}
		funds = append(funds, fund)
	}
	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("fund rows ended early")
		rollback(ctx, trx)
		return nil, err
	}

	return funds, commit(ctx, trx)
}

// LoadInvestors reads the investor reference table
func LoadInvestors(ctx context.Context) ([]*ledger.Investor, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	sql := `SELECT code, name FROM investors ORDER BY code`
	rows, err := trx.Query(ctx, sql)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not load investors")
		rollback(ctx, trx)
		return nil, err
	}

	investors := make([]*ledger.Investor, 0, 1000)
	for rows.Next() {
		investor := &ledger.Investor{}
		if err := rows.Scan(&investor.Code, &investor.Name); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan investor row")
			rollback(ctx, trx)
			return nil, err
		}
		investors = append(investors, investor)
	}
	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("investor rows ended early")
		rollback(ctx, trx)
		return nil, err
	}

	return investors, commit(ctx, trx)
}

// LoadAnnouncements reads the market-making regime table
func LoadAnnouncements(ctx context.Context) ([]*ledger.Announcement, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	sql := `SELECT id, fund_id, contract_number, effective_date, start_date, finish_date, commitment, quote_domain
		FROM announcements ORDER BY fund_id, start_date`
	rows, err := trx.Query(ctx, sql)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not load announcements")
		rollback(ctx, trx)
		return nil, err
	}

	anns := make([]*ledger.Announcement, 0, 100)
	for rows.Next() {
		ann := &ledger.Announcement{}
		var finish *time.Time
		if err := rows.Scan(&ann.ID, &ann.FundID, &ann.ContractNumber, &ann.EffectiveDate,
			&ann.Start, &finish, &ann.Commitment, &ann.QuoteDomain); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan announcement row")
			rollback(ctx, trx)
			return nil, err
		}
		if finish != nil {
			ann.Finish = *finish
		}
		anns = append(anns, ann)
	}
	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("announcement rows ended early")
		rollback(ctx, trx)
		return nil, err
	}

	return anns, commit(ctx, trx)
}

// LoadPrices reads instrument end-of-day prices for the window
func LoadPrices(ctx context.Context, begin, end time.Time) ([]*ledger.PricePoint, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	sql := `SELECT instrument_id, event_date, close, adj_close, volume FROM eod_prices
		WHERE event_date BETWEEN $1 AND $2 ORDER BY instrument_id, event_date`
	rows, err := trx.Query(ctx, sql, begin, end)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not load prices")
		rollback(ctx, trx)
		return nil, err
	}

	prices := make([]*ledger.PricePoint, 0, 10000)
	for rows.Next() {
		price := &ledger.PricePoint{}
		if err := rows.Scan(&price.InstrumentID, &price.Date, &price.Close, &price.AdjClose, &price.Volume); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan price row")
			rollback(ctx, trx)
			return nil, err
		}
		prices = append(prices, price)
	}
	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("price rows ended early")
		rollback(ctx, trx)
		return nil, err
	}

	return prices, commit(ctx, trx)
}

// LoadEvents reads the issuance/redemption feed for the window, in feed
// arrival order
func LoadEvents(ctx context.Context, begin, end time.Time) ([]*ledger.RawEvent, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	sql := `SELECT fund_id, investor_code, operation, units, amount, unit_price, event_date
		FROM unit_events WHERE event_date BETWEEN $1 AND $2 ORDER BY arrival_seq`
	rows, err := trx.Query(ctx, sql, begin, end)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not load events")
		rollback(ctx, trx)
		return nil, err
	}

	events := make([]*ledger.RawEvent, 0, 10000)
	for rows.Next() {
		event := &ledger.RawEvent{}
		if err := rows.Scan(&event.FundID, &event.InvestorCode, &event.OperationLabel,
			&event.Units, &event.Amount, &event.UnitPrice, &event.Date); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan event row")
			rollback(ctx, trx)
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("event rows ended early")
		rollback(ctx, trx)
		return nil, err
	}

	return events, commit(ctx, trx)
}

// LoadSnapshots reads the fund report feed for the window
func LoadSnapshots(ctx context.Context, begin, end time.Time) ([]*ledger.RawSnapshot, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	sql := `SELECT fund_id, event_date, final_price, break_even_point, cash_current_brokerage,
		cash_bank_deposit, funds_fixed_income, bonds_fixed_income, net_sales_value, bought_power,
		total_units, cancellation_price, issue_price
		FROM fund_reports WHERE event_date BETWEEN $1 AND $2 ORDER BY fund_id, event_date`
	rows, err := trx.Query(ctx, sql, begin, end)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not load snapshots")
		rollback(ctx, trx)
		return nil, err
	}

	snaps := make([]*ledger.RawSnapshot, 0, 10000)
	for rows.Next() {
		snap := &ledger.RawSnapshot{}
		if err := rows.Scan(&snap.FundID, &snap.Date, &snap.FinalPrice, &snap.BreakEvenPoint,
			&snap.CashCurrentBrokerage, &snap.CashBankDeposit, &snap.FundsFixedIncome,
			&snap.BondsFixedIncome, &snap.NetSalesValue, &snap.BoughtPower,
			&snap.TotalUnits, &snap.CancellationPrice, &snap.IssuePrice); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan snapshot row")
			rollback(ctx, trx)
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("snapshot rows ended early")
		rollback(ctx, trx)
		return nil, err
	}

	return snaps, commit(ctx, trx)
}

// SaveResult replaces the prior output generation with this run's ledgers in
// a single transaction. Readers never observe a partially written run.
func SaveResult(ctx context.Context, result *pipeline.Result) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}

	sql := `DELETE FROM ledger_records`
	if _, err := trx.Exec(ctx, sql); err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not clear prior ledger generation")
		rollback(ctx, trx)
		return err
	}

	sql = `INSERT INTO ledger_records (
		run_id, kind, entity_id, fund_id, investor_code, time_frame, bucket, event_date, valid, record
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, rec := range result.Records() {
		payload, err := json.Marshal(rec)
		if err != nil {
			log.Error().Stack().Err(err).Msg("could not marshal ledger record")
			rollback(ctx, trx)
			return err
		}

		if _, err := trx.Exec(ctx, sql, result.RunID, string(rec.Kind), rec.EntityID, rec.FundID,
			rec.InvestorCode, string(rec.TimeFrame), string(rec.Bucket), rec.Date, rec.Valid, payload); err != nil {
			log.Error().Stack().Err(err).Str("Query", sql).Msg("could not insert ledger record")
			rollback(ctx, trx)
			return err
		}
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit ledger generation")
		return err
	}

	log.Info().Str("RunID", result.RunID.String()).Msg("saved ledger generation")
	return nil
}

func rollback(ctx context.Context, trx interface {
	Rollback(context.Context) error
}) {
	if err := trx.Rollback(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not rollback transaction")
	}
}

func commit(ctx context.Context, trx interface {
	Commit(context.Context) error
}) error {
	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return err
	}
	return nil
}
