// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"

	"github.com/twine-network/beacon-pulse/lib/beaconerr"
	"github.com/twine-network/beacon-pulse/lib/netutil"
)

// HSM signs by delegating to a remote connector over HTTP: it
// authenticates with an auth key id and password, then asks the
// connector to sign with a named keypair. This mirrors the upstream
// project's YubiHSM connector client, generalized to a plain HTTP/JSON
// wire contract instead of a specific HSM vendor's SDK.
type HSM struct {
	client       *http.Client
	address      string
	authKeyID    string
	password     string
	signingKeyID string

	mu           sync.Mutex // guards cachedPublic
	cachedPublic []byte
}

// HSMConfig configures a connection to an HSM connector.
type HSMConfig struct {
	Address      string // host:port of the connector
	AuthKeyID    string
	Password     string
	SigningKeyID string
	Client       *http.Client // optional; defaults to a client with no timeout of its own (callers pass ctx)
}

// NewHSM returns an HSM signer. It does not contact the connector
// until the first Sign or PublicKey call.
func NewHSM(cfg HSMConfig) *HSM {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HSM{
		client:       client,
		address:      cfg.Address,
		authKeyID:    cfg.AuthKeyID,
		password:     cfg.Password,
		signingKeyID: cfg.SigningKeyID,
	}
}

type signRequest struct {
	AuthKeyID    string `json:"auth_key_id"`
	Password     string `json:"password"`
	SigningKeyID string `json:"signing_key_id"`
	DigestHex    string `json:"digest_hex"`
}

type signResponse struct {
	SignatureHex string `json:"signature_hex"`
}

// Sign implements [Signer]. Transport failures and non-2xx responses
// other than authentication rejection are [beaconerr.Transient];
// authentication rejection (401 or 403) is [beaconerr.SignerFatal].
func (h *HSM) Sign(ctx context.Context, hash [32]byte) ([]byte, error) {
	reqBody, err := json.Marshal(signRequest{
		AuthKeyID:    h.authKeyID,
		Password:     h.password,
		SigningKeyID: h.signingKeyID,
		DigestHex:    fmt.Sprintf("%x", hash[:]),
	})
	if err != nil {
		return nil, fmt.Errorf("signer: encoding sign request: %w", err)
	}

	url := fmt.Sprintf("http://%s/sign", h.address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, beaconerr.New(beaconerr.Transient, "signer.hsm.Sign", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, beaconerr.New(beaconerr.Transient, "signer.hsm.Sign", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, beaconerr.Newf(beaconerr.SignerFatal, "signer.hsm.Sign", "connector rejected authentication (status %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := netutil.ErrorBody(resp.Body)
		return nil, beaconerr.Newf(beaconerr.Transient, "signer.hsm.Sign", "connector returned status %d: %s", resp.StatusCode, body)
	}

	var parsed signResponse
	if err := netutil.DecodeResponse(resp.Body, &parsed); err != nil {
		return nil, beaconerr.New(beaconerr.Transient, "signer.hsm.Sign", err)
	}

	signature, err := hex.DecodeString(parsed.SignatureHex)
	if err != nil {
		return nil, beaconerr.New(beaconerr.Transient, "signer.hsm.Sign", fmt.Errorf("decoding signature_hex: %w", err))
	}
	return signature, nil
}

type publicKeyResponse struct {
	ModulusHex     string `json:"modulus_hex"`
	PublicExponent int    `json:"public_exponent"`
}

// PublicKey implements [Signer]. The result is cached after the first
// successful fetch; a transient connector failure on the first call
// returns an empty slice, which callers should treat as bootstrap
// not yet possible rather than retry internally.
func (h *HSM) PublicKey() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cachedPublic != nil {
		return h.cachedPublic
	}

	url := fmt.Sprintf("http://%s/publickey?key_id=%s", h.address, h.signingKeyID)
	resp, err := h.client.Get(url)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	var parsed publicKeyResponse
	if err := netutil.DecodeResponse(resp.Body, &parsed); err != nil {
		return nil
	}

	modulus := new(big.Int)
	if _, ok := modulus.SetString(parsed.ModulusHex, 16); !ok {
		return nil
	}

	der, err := x509.MarshalPKIXPublicKey(&rsa.PublicKey{
		N: modulus,
		E: parsed.PublicExponent,
	})
	if err != nil {
		return nil
	}

	h.cachedPublic = der
	return h.cachedPublic
}
