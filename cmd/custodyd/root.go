package main

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvReplacer replaces `-` to `_`.
// This is used to map flag like `--server-url` to environment variables like `SERVER_URL`.
var envReplacer = strings.NewReplacer("-", "_")

func init() {
	viper.SetEnvPrefix("CUSTODYD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envReplacer)
}
