package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS sources (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  externalId TEXT NOT NULL,
  name TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, externalId)
);

CREATE TABLE IF NOT EXISTS datasets (
  id TEXT PRIMARY KEY,
  sourceId INTEGER,
  name TEXT NOT NULL,
  sheet TEXT,
  hash TEXT NOT NULL,
  rawRef TEXT NOT NULL,
  mappingRef TEXT,
  mappingSource TEXT NOT NULL,
  rowCount INTEGER NOT NULL,
  columnCount INTEGER NOT NULL,
  collisions INTEGER NOT NULL DEFAULT 0,
  reportJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(sourceId) REFERENCES sources(id)
);
CREATE INDEX IF NOT EXISTS idx_datasets_hash ON datasets(hash);

CREATE TABLE IF NOT EXISTS mapping_entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  datasetId TEXT NOT NULL,
  position INTEGER NOT NULL,
  originalHeader TEXT NOT NULL,
  technicalName TEXT NOT NULL,
  publicLabel TEXT,
  category TEXT,
  UNIQUE(datasetId, position),
  FOREIGN KEY(datasetId) REFERENCES datasets(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  datasetId TEXT,
  sourceId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

const sourceColumns = `id, provider, externalId, name, receivedAt, hash, status, rawRef`

func scanSource(scan func(dest ...any) error) (internal.SourceRow, error) {
	var row internal.SourceRow
	var name, receivedAt sql.NullString
	var status string
	err := scan(&row.ID, &row.Provider, &row.ExternalID, &name, &receivedAt, &row.Hash, &status, &row.RawRef)
	row.Name = name.String
	row.ReceivedAt = receivedAt.String
	row.Status = internal.SourceStatus(status)
	return row, err
}

// UpsertSource records a fetched workbook. Re-fetching the same content keeps
// the current status; new content for a known source resets it to status.
func (d *DB) UpsertSource(provider, externalID, name, receivedAt, hash, rawRef string, status internal.SourceStatus) (internal.SourceRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO sources (provider, externalId, name, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, externalId) DO UPDATE SET
  name=excluded.name,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  status=CASE WHEN sources.hash <> excluded.hash THEN excluded.status ELSE sources.status END,
  updatedAt=CURRENT_TIMESTAMP
`, provider, externalID, name, receivedAt, hash, string(status), rawRef)
	if err != nil {
		return internal.SourceRow{}, apperr.WithCode(apperr.CodeDatabaseError, err)
	}

	row, err := d.GetSourceByExternalID(provider, externalID)
	if err != nil {
		return internal.SourceRow{}, err
	}
	if row == nil {
		return internal.SourceRow{}, errors.New("failed to upsert source")
	}
	return *row, nil
}

func (d *DB) GetSourceByExternalID(provider, externalID string) (*internal.SourceRow, error) {
	row, err := scanSource(d.conn.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE provider = ? AND externalId = ?`, provider, externalID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetSourceByID(id int) (*internal.SourceRow, error) {
	row, err := scanSource(d.conn.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListSourcesByStatus(status internal.SourceStatus, limit int) ([]internal.SourceRow, error) {
	rows, err := d.conn.Query(`SELECT `+sourceColumns+` FROM sources WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SourceRow
	for rows.Next() {
		row, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateSourceStatus(sourceID int, status internal.SourceStatus) error {
	_, err := d.conn.Exec(`UPDATE sources SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, string(status), sourceID)
	return err
}

func (d *DB) MustSource(provider, externalID string) (internal.SourceRow, error) {
	row, err := d.GetSourceByExternalID(provider, externalID)
	if err != nil {
		return internal.SourceRow{}, err
	}
	if row == nil {
		return internal.SourceRow{}, apperr.Newf(apperr.CodeNotFound, "source not found: provider=%s externalId=%s", provider, externalID)
	}
	return *row, nil
}

// InsertDataset stores a dataset with its apply report and data dictionary.
func (d *DB) InsertDataset(row internal.DatasetRow, report any, dictionary []internal.MappingEntry) error {
	reportJSON, _ := json.Marshal(report)

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
INSERT INTO datasets (id, sourceId, name, sheet, hash, rawRef, mappingRef, mappingSource, rowCount, columnCount, collisions, reportJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, row.ID, row.SourceID, row.Name, row.Sheet, row.Hash, row.RawRef, row.MappingRef, string(row.MappingSource),
		row.Rows, row.Columns, row.Collisions, string(reportJSON)); err != nil {
		return apperr.WithCode(apperr.CodeDatabaseError, err)
	}

	stmt, err := tx.Prepare(`
INSERT INTO mapping_entries (datasetId, position, originalHeader, technicalName, publicLabel, category)
VALUES (?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range dictionary {
		if _, err := stmt.Exec(row.ID, i, e.OriginalHeader, e.TechnicalName, e.PublicLabel, e.Category); err != nil {
			return apperr.WithCode(apperr.CodeDatabaseError, err)
		}
	}

	return tx.Commit()
}

const datasetColumns = `id, sourceId, name, sheet, hash, rawRef, mappingRef, mappingSource, rowCount, columnCount, collisions, createdAt`

func scanDataset(scan func(dest ...any) error) (internal.DatasetRow, error) {
	var row internal.DatasetRow
	var sourceID sql.NullInt64
	var sheet, mappingRef sql.NullString
	var source string
	err := scan(&row.ID, &sourceID, &row.Name, &sheet, &row.Hash, &row.RawRef, &mappingRef, &source,
		&row.Rows, &row.Columns, &row.Collisions, &row.CreatedAt)
	if sourceID.Valid {
		id := int(sourceID.Int64)
		row.SourceID = &id
	}
	row.Sheet = sheet.String
	row.MappingRef = mappingRef.String
	row.MappingSource = internal.MappingSource(source)
	return row, err
}

func (d *DB) GetDataset(id string) (*internal.DatasetRow, error) {
	row, err := scanDataset(d.conn.QueryRow(`SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustDataset(id string) (internal.DatasetRow, error) {
	row, err := d.GetDataset(id)
	if err != nil {
		return internal.DatasetRow{}, err
	}
	if row == nil {
		return internal.DatasetRow{}, apperr.Newf(apperr.CodeNotFound, "dataset not found: %s", id)
	}
	return *row, nil
}

func (d *DB) ListDatasets(limit int) ([]internal.DatasetRow, error) {
	return d.queryDatasets(`SELECT `+datasetColumns+` FROM datasets ORDER BY createdAt DESC, id ASC LIMIT ?`, limit)
}

func (d *DB) DatasetsForSource(sourceID int) ([]internal.DatasetRow, error) {
	return d.queryDatasets(`SELECT `+datasetColumns+` FROM datasets WHERE sourceId = ? ORDER BY createdAt ASC`, sourceID)
}

func (d *DB) queryDatasets(query string, args ...any) ([]internal.DatasetRow, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.DatasetRow{}
	for rows.Next() {
		row, err := scanDataset(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DatasetReport decodes the stored apply report into dst.
func (d *DB) DatasetReport(id string, dst any) error {
	var reportJSON string
	err := d.conn.QueryRow(`SELECT reportJson FROM datasets WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Newf(apperr.CodeNotFound, "dataset not found: %s", id)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(reportJSON), dst)
}

func (d *DB) MappingEntries(datasetID string) ([]internal.MappingEntry, error) {
	rows, err := d.conn.Query(`
SELECT originalHeader, technicalName, publicLabel, category
FROM mapping_entries WHERE datasetId = ? ORDER BY position ASC
`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.MappingEntry{}
	for rows.Next() {
		var e internal.MappingEntry
		var label, category sql.NullString
		if err := rows.Scan(&e.OriginalHeader, &e.TechnicalName, &label, &category); err != nil {
			return nil, err
		}
		e.PublicLabel = label.String
		e.Category = category.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(traceID, datasetID string, sourceID int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	var src any
	if sourceID > 0 {
		src = sourceID
	}
	var ds any
	if datasetID != "" {
		ds = datasetID
	}
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, datasetId, sourceId, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?)`,
		traceID, ds, src, string(timingsJSON), string(countsJSON))
	return err
}

// CountRuns counts the runs of one trace id, or all runs for "".
func (d *DB) CountRuns(traceID string) (int, error) {
	var n int
	var err error
	if traceID == "" {
		err = d.conn.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	} else {
		err = d.conn.QueryRow(`SELECT COUNT(*) FROM runs WHERE traceId = ?`, traceID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
