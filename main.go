package main

import (
	"github.com/fundvault/fv-ledger/cmd"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func configureViper() {
	// read config file
	viper.SetConfigName("fvledger")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/etc/fv-ledger/")
	viper.AddConfigPath("$HOME/.config/fv-ledger")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		// every setting has a default or an env binding; a missing config file is not fatal
		log.Warn().Err(err).Msg("no config file found, using defaults")
	}
}

func main() {
	configureViper()
	cmd.Execute()
}
