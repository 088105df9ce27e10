// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog persists device records, the per-channel tuning catalog and
// the channels discovered by scans.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/persistence/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	adapter INTEGER NOT NULL,
	frontend INTEGER NOT NULL,
	source TEXT NOT NULL,
	updated_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
	channel_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	source TEXT NOT NULL,
	name TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	number TEXT NOT NULL,
	params TEXT NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_channels_source ON channels(kind, source);

CREATE TABLE IF NOT EXISTS discovered_channels (
	kind TEXT NOT NULL,
	source TEXT NOT NULL,
	frequency INTEGER NOT NULL,
	number INTEGER NOT NULL,
	device_id TEXT NOT NULL,
	name TEXT NOT NULL,
	provider TEXT NOT NULL,
	scrambled BOOLEAN NOT NULL DEFAULT 0,
	params TEXT NOT NULL,
	discovered_at_ms INTEGER NOT NULL,
	PRIMARY KEY (kind, source, frequency, number)
);

CREATE TABLE IF NOT EXISTS discovered_pids (
	kind TEXT NOT NULL,
	source TEXT NOT NULL,
	frequency INTEGER NOT NULL,
	number INTEGER NOT NULL,
	pid INTEGER NOT NULL,
	media_kind TEXT NOT NULL,
	PRIMARY KEY (kind, source, frequency, number, pid),
	FOREIGN KEY (kind, source, frequency, number)
		REFERENCES discovered_channels(kind, source, frequency, number) ON DELETE CASCADE
);
`

// Discovered is one persisted scan result with the tuning it was found on.
type Discovered struct {
	Snapshot     model.TuningSnapshot    `json:"tuning"`
	Channel      model.DiscoveredChannel `json:"channel"`
	DiscoveredAt time.Time               `json:"discovered_at"`
}

// Store is the SQLite-backed catalog.
type Store struct {
	DB   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (and migrates) the catalog database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, schemaVersion, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: migration failed: %w", err)
	}
	return &Store{DB: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// GetTuningRecord returns the catalog record for channelID or ErrNotFound.
func (s *Store) GetTuningRecord(ctx context.Context, channelID string) (model.TuningRecord, error) {
	query := `SELECT kind, source, name, provider, number, params FROM channels WHERE channel_id = ?`
	var (
		rec    model.TuningRecord
		params string
	)
	err := s.DB.QueryRowContext(ctx, query, channelID).Scan(
		&rec.Kind, &rec.Source, &rec.Name, &rec.Provider, &rec.Number, &params,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TuningRecord{}, fmt.Errorf("channel %q: %w", channelID, model.ErrNotFound)
	}
	if err != nil {
		return model.TuningRecord{}, fmt.Errorf("catalog: read channel %q: %w", channelID, err)
	}
	if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
		return model.TuningRecord{}, fmt.Errorf("channel %q: corrupt tuning params: %w", channelID, model.ErrInvariant)
	}
	rec.ChannelID = channelID
	return rec, nil
}

// PutTuningRecord inserts or replaces a catalog record.
func (s *Store) PutTuningRecord(ctx context.Context, rec model.TuningRecord) error {
	if rec.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", model.ErrConfiguration)
	}
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO channels (channel_id, kind, source, name, provider, number, params, updated_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(channel_id) DO UPDATE SET
		kind = excluded.kind,
		source = excluded.source,
		name = excluded.name,
		provider = excluded.provider,
		number = excluded.number,
		params = excluded.params,
		updated_at_ms = excluded.updated_at_ms
	`
	_, err = s.DB.ExecContext(ctx, query,
		rec.ChannelID, string(rec.Kind), rec.Source, rec.Name, rec.Provider, rec.Number, string(params), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("catalog: save channel %q: %w: %w", rec.ChannelID, model.ErrPersistenceFailure, err)
	}
	return nil
}

// DeleteTuningRecord removes a catalog record. Unknown ids are not an error.
func (s *Store) DeleteTuningRecord(ctx context.Context, channelID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM channels WHERE channel_id = ?`, channelID)
	return err
}

// ListTuningRecords returns every catalog record ordered by channel id.
func (s *Store) ListTuningRecords(ctx context.Context) ([]model.TuningRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT channel_id, kind, source, name, provider, number, params FROM channels ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TuningRecord
	for rows.Next() {
		var (
			rec    model.TuningRecord
			params string
		)
		if err := rows.Scan(&rec.ChannelID, &rec.Kind, &rec.Source, &rec.Name, &rec.Provider, &rec.Number, &params); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("channel %q: corrupt tuning params: %w", rec.ChannelID, model.ErrInvariant)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PutDevice inserts or replaces a device record.
func (s *Store) PutDevice(ctx context.Context, rec model.DeviceRecord) error {
	query := `
	INSERT INTO devices (id, name, kind, adapter, frontend, source, updated_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		kind = excluded.kind,
		adapter = excluded.adapter,
		frontend = excluded.frontend,
		source = excluded.source,
		updated_at_ms = excluded.updated_at_ms
	`
	_, err := s.DB.ExecContext(ctx, query,
		rec.ID, rec.Name, string(rec.Kind), rec.Adapter, rec.Frontend, rec.Source, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("catalog: save device %q: %w: %w", rec.ID, model.ErrPersistenceFailure, err)
	}
	return nil
}

// SeedDevices stores records that are not yet present; existing rows win.
func (s *Store) SeedDevices(ctx context.Context, recs []model.DeviceRecord) error {
	for _, rec := range recs {
		_, err := s.DB.ExecContext(ctx, `
		INSERT INTO devices (id, name, kind, adapter, frontend, source, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
			rec.ID, rec.Name, string(rec.Kind), rec.Adapter, rec.Frontend, rec.Source, s.now().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("catalog: seed device %q: %w: %w", rec.ID, model.ErrPersistenceFailure, err)
		}
	}
	return nil
}

// ListDevices returns the persisted device records ordered by adapter and frontend.
func (s *Store) ListDevices(ctx context.Context) ([]model.DeviceRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, kind, adapter, frontend, source FROM devices ORDER BY adapter, frontend, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeviceRecord
	for rows.Next() {
		var rec model.DeviceRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Kind, &rec.Adapter, &rec.Frontend, &rec.Source); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveDiscoveredChannel upserts one scan result and replaces its pid set.
func (s *Store) SaveDiscoveredChannel(ctx context.Context, snap model.TuningSnapshot, ch model.DiscoveredChannel) error {
	if err := s.saveDiscovered(ctx, snap, ch); err != nil {
		return fmt.Errorf("catalog: save discovered channel %d: %w: %w", ch.Number, model.ErrPersistenceFailure, err)
	}
	return nil
}

func (s *Store) saveDiscovered(ctx context.Context, snap model.TuningSnapshot, ch model.DiscoveredChannel) error {
	params, err := json.Marshal(snap.Params)
	if err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	key := []any{string(snap.Kind), snap.Source, snap.Params.Frequency, ch.Number}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO discovered_channels (kind, source, frequency, number, device_id, name, provider, scrambled, params, discovered_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(kind, source, frequency, number) DO UPDATE SET
		device_id = excluded.device_id,
		name = excluded.name,
		provider = excluded.provider,
		scrambled = excluded.scrambled,
		params = excluded.params,
		discovered_at_ms = excluded.discovered_at_ms`,
		append(key, snap.DeviceID, ch.Name, ch.Provider, ch.Scrambled, string(params), s.now().UnixMilli())...,
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
	DELETE FROM discovered_pids WHERE kind = ? AND source = ? AND frequency = ? AND number = ?`, key...); err != nil {
		return err
	}
	for _, p := range ch.PIDList() {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO discovered_pids (kind, source, frequency, number, pid, media_kind)
		VALUES (?, ?, ?, ?, ?, ?)`, append(key, p.PID, string(p.Kind))...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListDiscovered returns all persisted scan results ordered by source,
// frequency and channel number.
func (s *Store) ListDiscovered(ctx context.Context) ([]Discovered, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT kind, source, frequency, number, device_id, name, provider, scrambled, params, discovered_at_ms
	FROM discovered_channels ORDER BY kind, source, frequency, number`)
	if err != nil {
		return nil, err
	}

	var out []Discovered
	for rows.Next() {
		var (
			d      Discovered
			freq   int
			params string
			atMs   int64
		)
		if err := rows.Scan(&d.Snapshot.Kind, &d.Snapshot.Source, &freq, &d.Channel.Number,
			&d.Snapshot.DeviceID, &d.Channel.Name, &d.Channel.Provider, &d.Channel.Scrambled, &params, &atMs); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &d.Snapshot.Params); err != nil {
			rows.Close()
			return nil, fmt.Errorf("discovered channel %d: corrupt tuning params: %w", d.Channel.Number, model.ErrInvariant)
		}
		d.Snapshot.Params.Frequency = freq
		d.Channel.DeviceID = d.Snapshot.DeviceID
		d.Channel.Pids = make(map[int]model.MediaKind)
		d.DiscoveredAt = time.UnixMilli(atMs).UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// pids are read after the channel cursor is closed so a single-connection
	// pool does not deadlock
	for i := range out {
		if err := s.loadPIDs(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadPIDs(ctx context.Context, d *Discovered) error {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT pid, media_kind FROM discovered_pids
	WHERE kind = ? AND source = ? AND frequency = ? AND number = ?`,
		string(d.Snapshot.Kind), d.Snapshot.Source, d.Snapshot.Params.Frequency, d.Channel.Number)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			pid  int
			kind string
		)
		if err := rows.Scan(&pid, &kind); err != nil {
			return err
		}
		d.Channel.Pids[pid] = model.MediaKind(kind)
	}
	return rows.Err()
}
