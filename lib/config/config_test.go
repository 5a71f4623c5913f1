// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package config

import "testing"

// withEnv sets environment variables for the duration of a test and
// restores the previous values on cleanup.
func withEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for key, value := range vars {
		t.Setenv(key, value)
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"LEAD_TIME_SECONDS":            "30",
		"PRIVATE_KEY_PATH":             "/etc/beacon/signing.key",
		"RNG_SCRIPT":                   "/usr/local/bin/collect-entropy",
		"AUX_RNG_SCRIPT":               "/usr/local/bin/collect-aux-entropy",
		"RNG_STORAGE_PATH":             "/var/lib/beacon/rng",
		"RNG_COLLECT_INTERVAL_SECONDS": "10",
		"STRAND_CONFIG_PATH":           "/etc/beacon/strand.json",
		"STRAND_JSON_PATH":             "/var/lib/beacon/strand-export.json",
		"STITCH_CONFIG_PATH":           "/etc/beacon/stitches.yaml",
		"CHAIN_DB_PATH":                "/var/lib/beacon/chain.db",
	}
}

func TestLoad_Minimal(t *testing.T) {
	withEnv(t, baseEnv())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LeadTimeSeconds != 30 {
		t.Errorf("LeadTimeSeconds = %d, want 30", cfg.LeadTimeSeconds)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, "info")
	}
	if cfg.UsesHSM() {
		t.Error("UsesHSM() = true, want false when PRIVATE_KEY_PATH is set")
	}
}

func TestLoad_RequiresLeadTime(t *testing.T) {
	env := baseEnv()
	delete(env, "LEAD_TIME_SECONDS")
	withEnv(t, env)
	t.Setenv("LEAD_TIME_SECONDS", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when LEAD_TIME_SECONDS is unset")
	}
}

func TestLoad_RejectsZeroLeadTime(t *testing.T) {
	env := baseEnv()
	env["LEAD_TIME_SECONDS"] = "0"
	withEnv(t, env)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for LEAD_TIME_SECONDS=0")
	}
}

func TestLoad_RejectsNonIntegerLeadTime(t *testing.T) {
	env := baseEnv()
	env["LEAD_TIME_SECONDS"] = "soon"
	withEnv(t, env)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-integer LEAD_TIME_SECONDS")
	}
}

func TestLoad_RejectsPrivateKeyAndHSMTogether(t *testing.T) {
	env := baseEnv()
	env["HSM_ADDRESS"] = "hsm.internal:9999"
	env["HSM_AUTH_KEY_ID"] = "1"
	env["HSM_PASSWORD"] = "secret"
	env["HSM_SIGNING_KEY_ID"] = "2"
	withEnv(t, env)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when PRIVATE_KEY_PATH and HSM_* are both set")
	}
}

func TestLoad_RejectsNeitherSignerConfigured(t *testing.T) {
	env := baseEnv()
	delete(env, "PRIVATE_KEY_PATH")
	withEnv(t, env)
	t.Setenv("PRIVATE_KEY_PATH", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when neither PRIVATE_KEY_PATH nor HSM_* is set")
	}
}

func TestLoad_RejectsPartialHSMConfig(t *testing.T) {
	env := baseEnv()
	delete(env, "PRIVATE_KEY_PATH")
	env["HSM_ADDRESS"] = "hsm.internal:9999"
	withEnv(t, env)
	t.Setenv("PRIVATE_KEY_PATH", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for partially configured HSM_*")
	}
}

func TestLoad_HSMOnly(t *testing.T) {
	env := baseEnv()
	delete(env, "PRIVATE_KEY_PATH")
	env["HSM_ADDRESS"] = "hsm.internal:9999"
	env["HSM_AUTH_KEY_ID"] = "1"
	env["HSM_PASSWORD"] = "secret"
	env["HSM_SIGNING_KEY_ID"] = "2"
	withEnv(t, env)
	t.Setenv("PRIVATE_KEY_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.UsesHSM() {
		t.Error("UsesHSM() = false, want true when only HSM_* is set")
	}
}

func TestLoad_RejectsInvalidLogLevel(t *testing.T) {
	env := baseEnv()
	env["LOG_LEVEL"] = "verbose"
	withEnv(t, env)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid LOG_LEVEL")
	}
}

func TestLoad_RequiresRNGScript(t *testing.T) {
	env := baseEnv()
	delete(env, "RNG_SCRIPT")
	withEnv(t, env)
	t.Setenv("RNG_SCRIPT", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when RNG_SCRIPT is unset")
	}
}

func TestLoad_RequiresAuxRNGScript(t *testing.T) {
	env := baseEnv()
	delete(env, "AUX_RNG_SCRIPT")
	withEnv(t, env)
	t.Setenv("AUX_RNG_SCRIPT", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when AUX_RNG_SCRIPT is unset")
	}
}

func TestLoad_RequiresRNGCollectInterval(t *testing.T) {
	env := baseEnv()
	delete(env, "RNG_COLLECT_INTERVAL_SECONDS")
	withEnv(t, env)
	t.Setenv("RNG_COLLECT_INTERVAL_SECONDS", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when RNG_COLLECT_INTERVAL_SECONDS is unset")
	}
}

func TestLoad_RequiresChainDBPath(t *testing.T) {
	env := baseEnv()
	delete(env, "CHAIN_DB_PATH")
	withEnv(t, env)
	t.Setenv("CHAIN_DB_PATH", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when CHAIN_DB_PATH is unset")
	}
}
