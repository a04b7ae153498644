package sqlitestore

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id                TEXT PRIMARY KEY,
	reporter_id       TEXT,
	reported_user_id  TEXT,
	report_type       TEXT NOT NULL,
	target_id         TEXT NOT NULL,
	reason            TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL CHECK (status IN ('pending', 'under_review', 'resolved', 'dismissed')),
	priority          INTEGER NOT NULL CHECK (priority BETWEEN 1 AND 5),
	moderator_flagged INTEGER NOT NULL DEFAULT 0,
	flagged_by        TEXT,
	internal_notes    TEXT NOT NULL DEFAULT '',
	reviewed_by       TEXT,
	reviewed_at       TEXT,
	resolution_notes  TEXT,
	action_taken      TEXT,
	version           INTEGER NOT NULL DEFAULT 1,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_queue ON reports(status, moderator_flagged DESC, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_reports_reporter ON reports(reporter_id, report_type, target_id);

CREATE TABLE IF NOT EXISTS moderation_actions (
	id                   TEXT PRIMARY KEY,
	moderator_id         TEXT NOT NULL,
	target_user_id       TEXT NOT NULL DEFAULT '',
	action_type          TEXT NOT NULL,
	target_type          TEXT,
	target_id            TEXT,
	reason               TEXT NOT NULL,
	duration_days        INTEGER,
	expires_at           TEXT,
	related_report_id    TEXT REFERENCES reports(id),
	internal_notes       TEXT,
	notification_sent    INTEGER NOT NULL DEFAULT 0,
	notification_message TEXT,
	created_at           TEXT NOT NULL,
	revoked_at           TEXT,
	revoked_by           TEXT,
	metadata             TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_actions_created ON moderation_actions(created_at);
CREATE INDEX IF NOT EXISTS idx_actions_moderator ON moderation_actions(moderator_id, created_at);
CREATE INDEX IF NOT EXISTS idx_actions_target ON moderation_actions(target_user_id, created_at);

CREATE TABLE IF NOT EXISTS user_restrictions (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	restriction_type  TEXT NOT NULL,
	expires_at        TEXT,
	is_active         INTEGER NOT NULL DEFAULT 1,
	reason            TEXT NOT NULL,
	applied_by        TEXT NOT NULL,
	related_action_id TEXT REFERENCES moderation_actions(id) DEFERRABLE INITIALLY DEFERRED,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_restrictions_one_active
	ON user_restrictions(user_id, restriction_type) WHERE is_active = 1;
CREATE INDEX IF NOT EXISTS idx_restrictions_expiry ON user_restrictions(is_active, expires_at);
CREATE INDEX IF NOT EXISTS idx_restrictions_action ON user_restrictions(related_action_id);
CREATE INDEX IF NOT EXISTS idx_restrictions_user ON user_restrictions(user_id, created_at);

CREATE TABLE IF NOT EXISTS moderation_audit_log (
	id        TEXT PRIMARY KEY,
	action    TEXT NOT NULL,
	actor_id  TEXT NOT NULL,
	target_id TEXT NOT NULL,
	reason    TEXT NOT NULL DEFAULT '',
	details   TEXT NOT NULL DEFAULT '{}',
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON moderation_audit_log(timestamp);

CREATE TABLE IF NOT EXISTS notification_outbox (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	kind           TEXT NOT NULL,
	action_id      TEXT,
	restriction_id TEXT,
	message        TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	delivered_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON notification_outbox(delivered_at, created_at);

CREATE TABLE IF NOT EXISTS rate_limit_events (
	seq    INTEGER PRIMARY KEY AUTOINCREMENT,
	bucket TEXT NOT NULL,
	hit_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_bucket ON rate_limit_events(bucket, hit_at);
`
