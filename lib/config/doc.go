// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the beacon pulse generator's configuration from
// environment variables.
//
// [Load] is the single entry point. It reads every variable in one
// pass, applies defaults (LOG_LEVEL defaults to "info"), and validates
// cross-field invariants — most importantly that exactly one of
// PRIVATE_KEY_PATH or the HSM_* group is set, never both and never
// neither. A missing or invalid variable fails eagerly with an error
// naming the variable, since configuration errors are fatal at startup
// and must never surface at runtime.
//
// There is no config file and no per-environment overlay: what is in
// the process environment is what the process runs with.
//
// This package depends on no other package in this module.
package config
