// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package stitch loads the stitch configuration file and fetches the
// current tip of each configured foreign strand.
//
// A stitch is an inclusion by reference of another strand's tip CID
// inside this strand's tixel. The configuration names which foreign
// strands to stitch in, where to resolve their current tip, and
// whether fetching that strand is currently paused.
package stitch

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Entry is one configured stitch.
type Entry struct {
	// Resolver is the HTTP URL queried for the foreign strand's
	// current tip CID.
	Resolver string `yaml:"resolver"`

	// Strand is the foreign strand's own CID, as a string.
	Strand string `yaml:"strand"`

	// Stop pauses this stitch: when true, it is never fetched and
	// never appears in an assembled tixel, but remains in the
	// configuration for when an operator re-enables it.
	Stop bool `yaml:"stop"`
}

// Config is the stitch configuration file's top-level shape.
type Config struct {
	Stitches []Entry `yaml:"stitches"`
}

// Loader re-reads the stitch configuration file on demand, keeping
// the previously loaded [Config] if the file is missing or malformed.
// Safe for concurrent use: [Loader.Current] and [Loader.Reload] swap
// an immutable snapshot under a mutex rather than mutating shared
// state in place.
type Loader struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	current *Config
}

// NewLoader returns a Loader for the configuration file at path. The
// Loader starts with an empty Config; call Reload at least once
// before relying on Current.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		path:    path,
		logger:  logger,
		current: &Config{},
	}
}

// Reload re-reads the configuration file. If the file cannot be read
// or parsed, the error is logged and the previously loaded
// configuration is kept unchanged — a stitch fetch failure is never a
// reason to skip a pulse, and neither is a typo in this file.
func (l *Loader) Reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.logger.Warn("stitch configuration unreadable, keeping previous", "path", l.path, "error", err)
		return fmt.Errorf("stitch: reading %s: %w", l.path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		l.logger.Warn("stitch configuration malformed, keeping previous", "path", l.path, "error", err)
		return fmt.Errorf("stitch: parsing %s: %w", l.path, err)
	}

	l.mu.Lock()
	l.current = &parsed
	l.mu.Unlock()
	return nil
}

// Current returns the most recently successfully loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Active returns the configured entries with Stop == false, in the
// stable order given by the configuration file.
func (c *Config) Active() []Entry {
	active := make([]Entry, 0, len(c.Stitches))
	for _, entry := range c.Stitches {
		if !entry.Stop {
			active = append(active, entry)
		}
	}
	return active
}
