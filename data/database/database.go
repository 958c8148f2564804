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

package database

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PgxIface is the subset of the pgx pool used by the data layer; tests swap
// in a mock connection
type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
}

var pool PgxIface

// SetPool replaces the database connection; used by tests to install a mock
func SetPool(myPool PgxIface) {
	pool = myPool
}

// Connect opens a connection pool against the configured database url
func Connect(ctx context.Context) error {
	myPool, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to pool")
		return err
	}
	if err = myPool.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database server")
		return err
	}
	SetPool(myPool)
	return nil
}

// Trx begins a new transaction on the shared pool
func Trx(ctx context.Context) (pgx.Tx, error) {
	trx, err := pool.Begin(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}
	return trx, nil
}
