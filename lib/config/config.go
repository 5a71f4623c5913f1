// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the beacon pulse generator's complete runtime configuration.
type Config struct {
	// LeadTimeSeconds is the number of seconds before a slot boundary
	// at which pulse assembly begins. Must be at least 1.
	LeadTimeSeconds int

	// PrivateKeyPath is the path to a PEM-encoded PKCS#8 RSA private
	// key used by the local signer. Mutually exclusive with the HSM_*
	// variables: exactly one signing backend must be configured.
	PrivateKeyPath string

	// HSMAddress is the host:port of the HSM connector, used only
	// when PrivateKeyPath is unset.
	HSMAddress string

	// HSMAuthKeyID authenticates to the HSM connector.
	HSMAuthKeyID string

	// HSMPassword authenticates to the HSM connector.
	HSMPassword string

	// HSMSigningKeyID identifies the keypair the HSM connector signs
	// with.
	HSMSigningKeyID string

	// RNGScript is the shell command invoked to collect fresh
	// randomness. It must write exactly 64 bytes to standard output
	// and exit 0 on success.
	RNGScript string

	// AuxRNGScript is the shell command invoked to collect the
	// second, independently-configured randomness blob every slot's
	// mixing step requires. It is never read from the background
	// buffer: it runs synchronously, once per slot, so it must be
	// fast and must also write exactly 64 bytes and exit 0.
	AuxRNGScript string

	// RNGStoragePath is the directory holding the durable single-slot
	// randomness buffer.
	RNGStoragePath string

	// RNGCollectIntervalSeconds is how often the background collector
	// worker attempts to refill the buffer ahead of need. Must be at
	// least 1.
	RNGCollectIntervalSeconds int

	// StrandConfigPath is the path to the strand metadata JSON file,
	// read once at bootstrap.
	StrandConfigPath string

	// StrandJSONPath is the path the genesis record is exported to
	// on first bootstrap.
	StrandJSONPath string

	// StitchConfigPath is the path to the stitch configuration YAML
	// file, re-read every cycle.
	StitchConfigPath string

	// ChainDBPath is the path to the SQLite chain store database file.
	ChainDBPath string

	// DataSyncAddress is the host:port of the external data-sync
	// worker notified on every tixel release. Empty disables
	// notification: the worker treats it as a hint, not a dependency.
	DataSyncAddress string

	// LogLevel is the minimum level written to the structured log:
	// one of "debug", "info", "warn", "error". Defaults to "info".
	LogLevel string
}

// UsesHSM reports whether the configured signing backend is the HSM
// connector rather than a local private key.
func (c *Config) UsesHSM() bool {
	return c.PrivateKeyPath == ""
}

// Load reads configuration from the process environment.
//
// All variables are enumerated in one place; there is no fallback
// discovery and no config file. A missing or invalid value fails
// eagerly with a wrapped error naming the offending variable, since a
// configuration error at startup must be fatal and diagnosable from
// the error text alone.
func Load() (*Config, error) {
	cfg := &Config{
		PrivateKeyPath:   os.Getenv("PRIVATE_KEY_PATH"),
		HSMAddress:       os.Getenv("HSM_ADDRESS"),
		HSMAuthKeyID:     os.Getenv("HSM_AUTH_KEY_ID"),
		HSMPassword:      os.Getenv("HSM_PASSWORD"),
		HSMSigningKeyID:  os.Getenv("HSM_SIGNING_KEY_ID"),
		RNGScript:        os.Getenv("RNG_SCRIPT"),
		AuxRNGScript:     os.Getenv("AUX_RNG_SCRIPT"),
		RNGStoragePath:   os.Getenv("RNG_STORAGE_PATH"),
		StrandConfigPath: os.Getenv("STRAND_CONFIG_PATH"),
		StrandJSONPath:   os.Getenv("STRAND_JSON_PATH"),
		StitchConfigPath: os.Getenv("STITCH_CONFIG_PATH"),
		ChainDBPath:      os.Getenv("CHAIN_DB_PATH"),
		DataSyncAddress:  os.Getenv("DATA_SYNC_ADDRESS"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	leadTimeRaw := os.Getenv("LEAD_TIME_SECONDS")
	if leadTimeRaw == "" {
		return nil, fmt.Errorf("config: LEAD_TIME_SECONDS: required")
	}
	leadTime, err := strconv.Atoi(leadTimeRaw)
	if err != nil {
		return nil, fmt.Errorf("config: LEAD_TIME_SECONDS: %w", err)
	}
	if leadTime < 1 {
		return nil, fmt.Errorf("config: LEAD_TIME_SECONDS: must be >= 1, got %d", leadTime)
	}
	cfg.LeadTimeSeconds = leadTime

	collectIntervalRaw := os.Getenv("RNG_COLLECT_INTERVAL_SECONDS")
	if collectIntervalRaw == "" {
		return nil, fmt.Errorf("config: RNG_COLLECT_INTERVAL_SECONDS: required")
	}
	collectInterval, err := strconv.Atoi(collectIntervalRaw)
	if err != nil {
		return nil, fmt.Errorf("config: RNG_COLLECT_INTERVAL_SECONDS: %w", err)
	}
	if collectInterval < 1 {
		return nil, fmt.Errorf("config: RNG_COLLECT_INTERVAL_SECONDS: must be >= 1, got %d", collectInterval)
	}
	cfg.RNGCollectIntervalSeconds = collectInterval

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks cross-field invariants that a single missing
// environment variable cannot express on its own.
func (c *Config) validate() error {
	hsmFields := map[string]string{
		"HSM_ADDRESS":        c.HSMAddress,
		"HSM_AUTH_KEY_ID":    c.HSMAuthKeyID,
		"HSM_PASSWORD":       c.HSMPassword,
		"HSM_SIGNING_KEY_ID": c.HSMSigningKeyID,
	}
	var hsmSet []string
	for name, value := range hsmFields {
		if value != "" {
			hsmSet = append(hsmSet, name)
		}
	}

	switch {
	case c.PrivateKeyPath != "" && len(hsmSet) > 0:
		return fmt.Errorf("config: PRIVATE_KEY_PATH is mutually exclusive with %s", strings.Join(hsmSet, ", "))
	case c.PrivateKeyPath == "" && len(hsmSet) == 0:
		return fmt.Errorf("config: exactly one of PRIVATE_KEY_PATH or HSM_* variables is required")
	case c.PrivateKeyPath == "" && len(hsmSet) != len(hsmFields):
		var missing []string
		for name, value := range hsmFields {
			if value == "" {
				missing = append(missing, name)
			}
		}
		return fmt.Errorf("config: HSM signing requires all of HSM_ADDRESS, HSM_AUTH_KEY_ID, HSM_PASSWORD, HSM_SIGNING_KEY_ID; missing %s", strings.Join(missing, ", "))
	}

	if c.RNGScript == "" {
		return fmt.Errorf("config: RNG_SCRIPT: required")
	}
	if c.AuxRNGScript == "" {
		return fmt.Errorf("config: AUX_RNG_SCRIPT: required")
	}
	if c.RNGStoragePath == "" {
		return fmt.Errorf("config: RNG_STORAGE_PATH: required")
	}
	if c.StrandConfigPath == "" {
		return fmt.Errorf("config: STRAND_CONFIG_PATH: required")
	}
	if c.StrandJSONPath == "" {
		return fmt.Errorf("config: STRAND_JSON_PATH: required")
	}
	if c.StitchConfigPath == "" {
		return fmt.Errorf("config: STITCH_CONFIG_PATH: required")
	}
	if c.ChainDBPath == "" {
		return fmt.Errorf("config: CHAIN_DB_PATH: required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: LOG_LEVEL: must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}
