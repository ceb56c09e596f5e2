// Package store persists thermal history, fitted model parameters and the
// savings ledger in a SQLite database.
package store

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/core/thermal"
)

// SQLiteStore is the on-disk store shared by all zones.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `
    CREATE TABLE IF NOT EXISTS thermal_samples (
        zone_id TEXT NOT NULL,
        ts INTEGER NOT NULL,
        indoor REAL NOT NULL,
        outdoor REAL NOT NULL,
        level REAL NOT NULL,
        PRIMARY KEY(zone_id, ts)
    );
    CREATE TABLE IF NOT EXISTS model_params (
        zone_id TEXT PRIMARY KEY,
        loss_per_hour REAL NOT NULL,
        gain_per_hour REAL NOT NULL,
        confidence REAL NOT NULL,
        observations INTEGER NOT NULL,
        fitted_at INTEGER NOT NULL
    );
    CREATE TABLE IF NOT EXISTS savings_ledger (
        zone_id TEXT NOT NULL,
        period_start INTEGER NOT NULL,
        period_end INTEGER NOT NULL,
        realized_cost REAL NOT NULL,
        baseline_cost REAL NOT NULL,
        realized_kwh REAL NOT NULL,
        baseline_kwh REAL NOT NULL,
        correction INTEGER NOT NULL,
        recorded_at INTEGER NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add appends a record to the savings ledger. Records are never updated;
// corrections for the same period coexist with the original row.
func (s *SQLiteStore) Add(r model.SavingsRecord) error {
	_, err := s.db.Exec(`INSERT INTO savings_ledger
        (zone_id, period_start, period_end, realized_cost, baseline_cost,
         realized_kwh, baseline_kwh, correction, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ZoneID, r.PeriodStart.Unix(), r.PeriodEnd.Unix(),
		r.RealizedCost, r.BaselineCost, r.RealizedKWh, r.BaselineKWh,
		boolToInt(r.Correction), time.Now().Unix())
	return err
}

// Query returns ledger records with period_start in [start, end).
func (s *SQLiteStore) Query(zoneID string, start, end time.Time) ([]model.SavingsRecord, error) {
	rows, err := s.db.Query(`SELECT zone_id, period_start, period_end,
        realized_cost, baseline_cost, realized_kwh, baseline_kwh, correction
        FROM savings_ledger
        WHERE zone_id = ? AND period_start >= ? AND period_start < ?
        ORDER BY period_start, recorded_at`,
		zoneID, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.SavingsRecord
	for rows.Next() {
		var r model.SavingsRecord
		var ps, pe int64
		var corr int
		if err := rows.Scan(&r.ZoneID, &ps, &pe, &r.RealizedCost, &r.BaselineCost,
			&r.RealizedKWh, &r.BaselineKWh, &corr); err != nil {
			return nil, err
		}
		r.PeriodStart = time.Unix(ps, 0).UTC()
		r.PeriodEnd = time.Unix(pe, 0).UTC()
		r.Correction = corr != 0
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// AddSample stores one thermal observation, replacing any sample at the
// same timestamp.
func (s *SQLiteStore) AddSample(zoneID string, st model.ThermalState) error {
	_, err := s.db.Exec(`INSERT INTO thermal_samples (zone_id, ts, indoor, outdoor, level)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(zone_id, ts) DO UPDATE SET
            indoor = excluded.indoor,
            outdoor = excluded.outdoor,
            level = excluded.level`,
		zoneID, st.Timestamp.Unix(), st.IndoorTemp, st.OutdoorTemp, float64(st.Level))
	return err
}

// Samples returns the zone's observations since the given time, oldest first.
func (s *SQLiteStore) Samples(zoneID string, since time.Time) ([]model.ThermalState, error) {
	rows, err := s.db.Query(`SELECT ts, indoor, outdoor, level FROM thermal_samples
        WHERE zone_id = ? AND ts >= ? ORDER BY ts`, zoneID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.ThermalState
	for rows.Next() {
		var st model.ThermalState
		var ts int64
		var lvl float64
		if err := rows.Scan(&ts, &st.IndoorTemp, &st.OutdoorTemp, &lvl); err != nil {
			return nil, err
		}
		st.Timestamp = time.Unix(ts, 0).UTC()
		st.Level = model.HeatingLevel(lvl)
		res = append(res, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// PruneSamples deletes observations older than the cutoff.
func (s *SQLiteStore) PruneSamples(zoneID string, before time.Time) error {
	_, err := s.db.Exec(`DELETE FROM thermal_samples WHERE zone_id = ? AND ts < ?`,
		zoneID, before.Unix())
	return err
}

// SaveParameters upserts the fitted parameters for a zone.
func (s *SQLiteStore) SaveParameters(zoneID string, p thermal.Parameters) error {
	_, err := s.db.Exec(`INSERT INTO model_params
        (zone_id, loss_per_hour, gain_per_hour, confidence, observations, fitted_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(zone_id) DO UPDATE SET
            loss_per_hour = excluded.loss_per_hour,
            gain_per_hour = excluded.gain_per_hour,
            confidence = excluded.confidence,
            observations = excluded.observations,
            fitted_at = excluded.fitted_at`,
		zoneID, p.LossPerHour, p.GainPerHour, p.Confidence, p.Observations, p.FittedAt.Unix())
	return err
}

// LoadParameters returns the stored parameters, false when the zone has none.
func (s *SQLiteStore) LoadParameters(zoneID string) (thermal.Parameters, bool, error) {
	row := s.db.QueryRow(`SELECT loss_per_hour, gain_per_hour, confidence, observations, fitted_at
        FROM model_params WHERE zone_id = ?`, zoneID)
	var p thermal.Parameters
	var fitted int64
	err := row.Scan(&p.LossPerHour, &p.GainPerHour, &p.Confidence, &p.Observations, &fitted)
	if err == sql.ErrNoRows {
		return thermal.Parameters{}, false, nil
	}
	if err != nil {
		return thermal.Parameters{}, false, err
	}
	p.FittedAt = time.Unix(fitted, 0).UTC()
	return p, true, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
