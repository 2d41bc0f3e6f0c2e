package store

const schemaSQL = `
-- Catalogs (mirrored from the server, never edited locally)
CREATE TABLE IF NOT EXISTS companies (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	code TEXT
);

CREATE TABLE IF NOT EXISTS branches (
	id         INTEGER PRIMARY KEY,
	company_id INTEGER NOT NULL,
	name       TEXT NOT NULL,
	code       TEXT
);

-- No unique (company_id, barcode): the server may send duplicates and
-- lookups resolve them by lowest id.
CREATE TABLE IF NOT EXISTS products (
	id          INTEGER PRIMARY KEY,
	company_id  INTEGER NOT NULL,
	branch_id   INTEGER,
	barcode     TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT,
	brand       TEXT,
	model       TEXT,
	color       TEXT,
	serial      TEXT
);

CREATE TABLE IF NOT EXISTS lots (
	id         INTEGER PRIMARY KEY,
	company_id INTEGER NOT NULL,
	product_id INTEGER,
	barcode    TEXT,
	code       TEXT NOT NULL,
	expiry     TEXT,
	on_hand    REAL
);

CREATE TABLE IF NOT EXISTS sessions (
	id           INTEGER NOT NULL,
	kind         TEXT NOT NULL CHECK (kind IN ('inventory', 'asset')),
	company_id   INTEGER NOT NULL,
	branch_id    INTEGER NOT NULL DEFAULT 0,
	name         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'active',
	created_at   TEXT NOT NULL,
	company_name TEXT,
	branch_name  TEXT,
	PRIMARY KEY (kind, id)
);

-- Capture records. session_id is a plain reference: sessions are replaced
-- wholesale on download and records must survive that.
CREATE TABLE IF NOT EXISTS inventory_records (
	local_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id   INTEGER,
	client_id   TEXT NOT NULL UNIQUE,
	session_id  INTEGER NOT NULL,
	barcode     TEXT NOT NULL,
	description TEXT,
	quantity    REAL NOT NULL DEFAULT 1,
	lot         TEXT,
	expiry      TEXT,
	multiplier  REAL,
	serial      TEXT,
	synced      INTEGER NOT NULL DEFAULT 0,
	revision    INTEGER NOT NULL DEFAULT 0,
	captured_at TEXT NOT NULL,
	user_id     TEXT
);

CREATE TABLE IF NOT EXISTS asset_records (
	local_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id   INTEGER,
	client_id   TEXT NOT NULL UNIQUE,
	session_id  INTEGER NOT NULL,
	barcode     TEXT NOT NULL,
	description TEXT,
	category    TEXT,
	brand       TEXT,
	model       TEXT,
	color       TEXT,
	serial      TEXT,
	status      TEXT,
	notes       TEXT,
	latitude    REAL,
	longitude   REAL,
	synced      INTEGER NOT NULL DEFAULT 0,
	revision    INTEGER NOT NULL DEFAULT 0,
	captured_at TEXT NOT NULL,
	user_id     TEXT
);

CREATE TABLE IF NOT EXISTS asset_photos (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id   INTEGER NOT NULL,
	path        TEXT NOT NULL,
	uploaded    INTEGER NOT NULL DEFAULT 0,
	uploaded_at TEXT,
	FOREIGN KEY (record_id) REFERENCES asset_records(local_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS not_found_records (
	local_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id   INTEGER,
	client_id   TEXT NOT NULL UNIQUE,
	session_id  INTEGER NOT NULL,
	barcode     TEXT NOT NULL,
	description TEXT,
	notes       TEXT,
	synced      INTEGER NOT NULL DEFAULT 0,
	revision    INTEGER NOT NULL DEFAULT 0,
	captured_at TEXT NOT NULL,
	user_id     TEXT
);

CREATE TABLE IF NOT EXISTS transfer_records (
	local_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id      INTEGER,
	client_id      TEXT NOT NULL UNIQUE,
	session_id     INTEGER NOT NULL,
	barcode        TEXT NOT NULL,
	from_branch_id INTEGER NOT NULL,
	to_branch_id   INTEGER NOT NULL,
	notes          TEXT,
	synced         INTEGER NOT NULL DEFAULT 0,
	revision       INTEGER NOT NULL DEFAULT 0,
	captured_at    TEXT NOT NULL,
	user_id        TEXT
);

CREATE TABLE IF NOT EXISTS tag_reads (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id         INTEGER NOT NULL,
	epc                TEXT NOT NULL,
	rssi               REAL NOT NULL DEFAULT 0,
	read_count         INTEGER NOT NULL DEFAULT 1,
	last_seen          TEXT NOT NULL,
	matched            INTEGER NOT NULL DEFAULT 0,
	matched_product_id INTEGER,
	UNIQUE (session_id, epc)
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

-- Indexes for lookups during capture
CREATE INDEX IF NOT EXISTS idx_branches_company ON branches(company_id);
CREATE INDEX IF NOT EXISTS idx_products_company_barcode ON products(company_id, barcode, id);
CREATE INDEX IF NOT EXISTS idx_products_barcode_nocase ON products(barcode COLLATE NOCASE, id);
CREATE INDEX IF NOT EXISTS idx_lots_company_barcode ON lots(company_id, barcode);

-- Pending queue views
CREATE INDEX IF NOT EXISTS idx_inventory_pending ON inventory_records(synced, session_id, local_id);
CREATE INDEX IF NOT EXISTS idx_asset_pending ON asset_records(synced, session_id, local_id);
CREATE INDEX IF NOT EXISTS idx_not_found_pending ON not_found_records(synced, session_id, local_id);
CREATE INDEX IF NOT EXISTS idx_transfer_pending ON transfer_records(synced, session_id, local_id);
CREATE INDEX IF NOT EXISTS idx_photos_pending ON asset_photos(uploaded, record_id);
`
