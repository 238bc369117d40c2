package postgres

// Schema is the full DDL. The partial unique indexes on assignments are the
// source of correctness for exactly-once joins: at most one live row per
// (rider, campaign) and per (rider, zone), enforced by the database, with
// application pre-checks as optimizations only.
const Schema = `
CREATE TABLE IF NOT EXISTS zones (
	id            UUID PRIMARY KEY,
	campaign_id   UUID NOT NULL,
	name          TEXT NOT NULL,
	center_lat    DOUBLE PRECISION NOT NULL,
	center_lon    DOUBLE PRECISION NOT NULL,
	radius_meters DOUBLE PRECISION NOT NULL,
	capacity      INTEGER NOT NULL,
	occupancy     INTEGER NOT NULL DEFAULT 0,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT zones_occupancy_within_capacity CHECK (occupancy >= 0 AND occupancy <= capacity)
);

CREATE TABLE IF NOT EXISTS riders (
	id                    TEXT PRIMARY KEY,
	available             BOOLEAN NOT NULL DEFAULT TRUE,
	current_assignment_id UUID
);

CREATE TABLE IF NOT EXISTS campaign_assignments (
	id          UUID PRIMARY KEY,
	rider_id    TEXT NOT NULL,
	campaign_id UUID NOT NULL,
	status      TEXT NOT NULL,
	assigned_at TIMESTAMPTZ NOT NULL,
	started_at  TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS campaign_assignments_live_unique
	ON campaign_assignments (rider_id, campaign_id)
	WHERE status IN ('assigned', 'active');

CREATE TABLE IF NOT EXISTS zone_assignments (
	id                     UUID PRIMARY KEY,
	rider_id               TEXT NOT NULL,
	zone_id                UUID NOT NULL REFERENCES zones (id),
	campaign_assignment_id UUID NOT NULL REFERENCES campaign_assignments (id),
	status                 TEXT NOT NULL,
	assigned_at            TIMESTAMPTZ NOT NULL,
	started_at             TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS zone_assignments_live_unique
	ON zone_assignments (rider_id, zone_id)
	WHERE status IN ('assigned', 'active');

CREATE INDEX IF NOT EXISTS zone_assignments_rider_live
	ON zone_assignments (rider_id)
	WHERE status IN ('assigned', 'active');

CREATE TABLE IF NOT EXISTS verification_attempts (
	id              UUID PRIMARY KEY,
	rider_id        TEXT NOT NULL,
	zone_id         UUID,
	campaign_id     UUID,
	kind            TEXT NOT NULL,
	image_key       TEXT NOT NULL DEFAULT '',
	lat             DOUBLE PRECISION NOT NULL,
	lon             DOUBLE PRECISION NOT NULL,
	accuracy_meters DOUBLE PRECISION NOT NULL,
	captured_at     TIMESTAMPTZ NOT NULL,
	submitted_at    TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
	diagnostics     JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS verification_attempts_rider_submitted
	ON verification_attempts (rider_id, submitted_at DESC);

CREATE TABLE IF NOT EXISTS verification_cooldowns (
	rider_id        TEXT NOT NULL,
	kind            TEXT NOT NULL,
	last_attempt_at TIMESTAMPTZ NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL,
	attempt_count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (rider_id, kind)
);

CREATE TABLE IF NOT EXISTS audit_events (
	id            BIGSERIAL PRIMARY KEY,
	category      TEXT NOT NULL,
	occurred_at   TIMESTAMPTZ NOT NULL,
	rider_id      TEXT NOT NULL,
	zone_id       TEXT,
	campaign_id   TEXT,
	assignment_id TEXT,
	attempt_id    TEXT,
	action        TEXT NOT NULL,
	reason        TEXT,
	request_id    TEXT
);

CREATE INDEX IF NOT EXISTS audit_events_rider
	ON audit_events (rider_id, occurred_at);

CREATE TABLE IF NOT EXISTS queued_joins (
	id              UUID PRIMARY KEY,
	rider_id        TEXT NOT NULL,
	zone_id         UUID NOT NULL,
	lat             DOUBLE PRECISION NOT NULL,
	lon             DOUBLE PRECISION NOT NULL,
	accuracy_meters DOUBLE PRECISION NOT NULL,
	captured_at     TIMESTAMPTZ NOT NULL,
	image_key       TEXT NOT NULL,
	image_type      TEXT NOT NULL,
	status          TEXT NOT NULL,
	attempt_count   INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT,
	enqueued_at     TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS queued_joins_pending
	ON queued_joins (enqueued_at)
	WHERE status = 'queued';
`
