package storage

// Tables are created on connect when missing. Both sinks share column names.

const clickHouseSchema = `
CREATE TABLE IF NOT EXISTS list_lookups (
	request_id     String,
	timestamp      DateTime64(3, 'UTC'),
	uri            String,
	rkey           String,
	outcome        LowCardinality(String),
	creator_did    String,
	item_count     Int64,
	has_last_added UInt8,
	latency_ms     Float32,
	user_agent     String
) ENGINE = MergeTree
ORDER BY (timestamp, request_id)
TTL toDateTime(timestamp) + INTERVAL 90 DAY`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS list_lookups (
	request_id     TEXT PRIMARY KEY,
	timestamp      TIMESTAMPTZ NOT NULL,
	uri            TEXT NOT NULL,
	rkey           TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	creator_did    TEXT NOT NULL,
	item_count     BIGINT NOT NULL,
	has_last_added BOOLEAN NOT NULL,
	latency_ms     REAL NOT NULL,
	user_agent     TEXT NOT NULL
)`
