// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

// Package config loads the coordinator's environment configuration. The
// process exits nonzero only on configuration failure at startup, never on
// a later transient error.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config is the recognized set of environment options.
type Config struct {
	MongoURL                  string
	DBName                    string
	BindHost                  string
	BindPort                  int
	CORSOrigins               []string
	TransactionTimeoutSeconds int
}

// TransactionTimeout returns TransactionTimeoutSeconds as a time.Duration.
func (c Config) TransactionTimeout() time.Duration {
	return time.Duration(c.TransactionTimeoutSeconds) * time.Second
}

// Load reads configuration from the process environment. If a .env file is
// present in the working directory it is loaded first (local-dev
// convenience); its absence is not an error in production.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "config: loading .env")
	}

	mongoURL := os.Getenv("MONGO_URL")
	if mongoURL == "" {
		return Config{}, errors.New("config: MONGO_URL is required")
	}

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "mpc_coordinator"
	}

	bindHost := os.Getenv("BIND_HOST")
	if bindHost == "" {
		bindHost = "0.0.0.0"
	}

	bindPort := 8080
	if raw := os.Getenv("BIND_PORT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: BIND_PORT must be an integer")
		}
		bindPort = parsed
	}

	var corsOrigins []string
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				corsOrigins = append(corsOrigins, trimmed)
			}
		}
	}

	timeoutSeconds := 300
	if raw := os.Getenv("TRANSACTION_TIMEOUT_SECONDS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: TRANSACTION_TIMEOUT_SECONDS must be an integer")
		}
		timeoutSeconds = parsed
	}

	return Config{
		MongoURL:                  mongoURL,
		DBName:                    dbName,
		BindHost:                  bindHost,
		BindPort:                  bindPort,
		CORSOrigins:               corsOrigins,
		TransactionTimeoutSeconds: timeoutSeconds,
	}, nil
}
