package postgres

// SQL-миграции встроены в код для упрощения деплоя.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "users", migration001Users},
	{2, "catches", migration002Catches},
	{3, "info_purchases", migration003Purchases},
	{4, "karma_events", migration004KarmaEvents},
}

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    display_name TEXT,
    points_balance BIGINT NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(lower(email));
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at DESC);
`

// s2_cell: листовая ячейка S2 (int64) для префильтра геозапросов
var migration002Catches = `
CREATE TABLE IF NOT EXISTS catches (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    species TEXT,
    lat DOUBLE PRECISION,
    lng DOUBLE PRECISION,
    s2_cell BIGINT,
    video_key TEXT,
    thumbnail_key TEXT,
    base_points BIGINT NOT NULL DEFAULT 0,
    karma_points BIGINT NOT NULL DEFAULT 0,
    verification_status TEXT NOT NULL DEFAULT 'PENDING_VERIFICATION',
    alive_score DOUBLE PRECISION,
    analysis_confidence DOUBLE PRECISION,
    analysis_note TEXT,
    fish_fingerprint TEXT,
    fish_embedding DOUBLE PRECISION[],
    version BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_catches_user_created ON catches(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_catches_created_at ON catches(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_catches_s2_cell ON catches(s2_cell) WHERE s2_cell IS NOT NULL;
`

var migration003Purchases = `
CREATE TABLE IF NOT EXISTS info_purchases (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    center_lat DOUBLE PRECISION NOT NULL,
    center_lng DOUBLE PRECISION NOT NULL,
    radius_miles DOUBLE PRECISION NOT NULL,
    species_filter TEXT,
    base_cost_points BIGINT NOT NULL,
    discount_percent BIGINT NOT NULL DEFAULT 0,
    final_cost_points BIGINT NOT NULL,
    avg_age_hours DOUBLE PRECISION,
    included_catch_ids TEXT[],
    version BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_info_purchases_user_created ON info_purchases(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_info_purchases_created_at ON info_purchases(created_at DESC);
`

var migration004KarmaEvents = `
CREATE TABLE IF NOT EXISTS karma_events (
    id TEXT PRIMARY KEY,
    helper_user_id TEXT NOT NULL,
    beneficiary_user_id TEXT NOT NULL,
    source_catch_id TEXT NOT NULL,
    beneficiary_catch_id TEXT NOT NULL,
    points BIGINT NOT NULL,
    distance_miles DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    version BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_karma_events_helper_created ON karma_events(helper_user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_karma_events_created_at ON karma_events(created_at DESC);
`
