// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package chainstore

const schema = `
CREATE TABLE IF NOT EXISTS strand (
	id           TEXT NOT NULL PRIMARY KEY,
	public_key   BLOB NOT NULL,
	scheme       TEXT NOT NULL,
	period       INTEGER NOT NULL,
	details_json TEXT NOT NULL,
	genesis_ts   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tixel (
	strand_id      TEXT NOT NULL REFERENCES strand(id),
	idx            INTEGER NOT NULL,
	cid            TEXT NOT NULL UNIQUE,
	timestamp      INTEGER NOT NULL,
	payload_blob   BLOB NOT NULL,
	signature_blob BLOB NOT NULL,
	PRIMARY KEY (strand_id, idx)
);

CREATE INDEX IF NOT EXISTS tixel_tip_idx ON tixel(strand_id, idx DESC);
`
