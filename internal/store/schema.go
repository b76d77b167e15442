package store

const initialSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL,
	inputs_json TEXT NOT NULL,
	progress_total INTEGER NOT NULL DEFAULT 0,
	progress_done INTEGER NOT NULL DEFAULT 0,
	progress_failed INTEGER NOT NULL DEFAULT 0,
	progress_skipped INTEGER NOT NULL DEFAULT 0,
	cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
	result_summary_json TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	started_at TIMESTAMP,
	finished_at TIMESTAMP,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS job_items (
	job_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	status TEXT NOT NULL,
	error_kind TEXT,
	badges_applied_json TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (job_id, item_id)
);

CREATE TABLE IF NOT EXISTS job_history (
	id BIGINT PRIMARY KEY,
	job_id TEXT NOT NULL,
	item_id TEXT,
	event TEXT NOT NULL,
	detail TEXT,
	recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE SEQUENCE IF NOT EXISTS job_history_id_seq START 1;

CREATE TABLE IF NOT EXISTS schedules (
	schedule_id TEXT PRIMARY KEY,
	cron_expr TEXT NOT NULL,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	badge_types_mask TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	next_run_at TIMESTAMP,
	last_run_job_id TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schedule_options (
	schedule_id TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (schedule_id, name)
);

CREATE TABLE IF NOT EXISTS schedule_targets (
	schedule_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	PRIMARY KEY (schedule_id, item_id)
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	type TEXT NOT NULL,
	category TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings_version (
	id INTEGER PRIMARY KEY DEFAULT 1,
	version INTEGER NOT NULL DEFAULT 0
);
INSERT INTO settings_version (id, version) VALUES (1, 0) ON CONFLICT DO NOTHING;

CREATE TABLE IF NOT EXISTS api_keys (
	service TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	"group" TEXT,
	PRIMARY KEY (service, name)
);

CREATE TABLE IF NOT EXISTS badge_settings (
	badge_type TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (badge_type, name)
);

CREATE TABLE IF NOT EXISTS review_sources (
	name TEXT PRIMARY KEY,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	priority INTEGER NOT NULL DEFAULT 0,
	conditions_json TEXT
);

CREATE TABLE IF NOT EXISTS cache_entries (
	source TEXT NOT NULL,
	key TEXT NOT NULL,
	payload TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	PRIMARY KEY (source, key)
);

CREATE TABLE IF NOT EXISTS tag_state (
	item_id TEXT PRIMARY KEY,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	badge_types_json TEXT NOT NULL DEFAULT '[]'
);
`
