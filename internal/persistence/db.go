// Package persistence provides SQLite-based storage of simulation runs: five
// record streams (households, household states, plots, plot states, steps)
// that reproduce the in-memory population at any committed step.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/engine"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

// ErrNoState is returned when loading from a database without committed steps.
var ErrNoState = errors.New("no committed simulation state")

// DB wraps a SQLite connection for simulation persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		decision_model TEXT NOT NULL,
		selection_model TEXT NOT NULL,
		started_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plots (
		id INTEGER PRIMARY KEY,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		base_density REAL NOT NULL,
		max_density REAL NOT NULL,
		inverse_area REAL NOT NULL,
		amenities_index INTEGER NOT NULL,
		constructibility_index INTEGER NOT NULL,
		zone_id INTEGER NOT NULL,
		zoning TEXT NOT NULL,
		footprint TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS households (
		id INTEGER PRIMARY KEY,
		max_wealth INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS household_states (
		step INTEGER NOT NULL,
		household_id INTEGER NOT NULL,
		age INTEGER NOT NULL,
		wealth INTEGER NOT NULL,
		parcel_id INTEGER NOT NULL,
		PRIMARY KEY (step, household_id)
	);

	CREATE TABLE IF NOT EXISTS plot_states (
		step INTEGER NOT NULL,
		parcel_id INTEGER NOT NULL,
		density REAL NOT NULL,
		build_type INTEGER NOT NULL,
		population INTEGER NOT NULL,
		PRIMARY KEY (step, parcel_id)
	);

	CREATE TABLE IF NOT EXISTS steps (
		step INTEGER PRIMARY KEY,
		year INTEGER NOT NULL,
		population INTEGER NOT NULL,
		moves INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_household_states_parcel ON household_states(step, parcel_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Begin records a run and the static plot attributes.
func (db *DB) Begin(run engine.RunRecord, parcels []engine.ParcelRecord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO runs (id, decision_model, selection_model, started_at) VALUES (?, ?, ?, ?)",
		run.ID, run.Decision, run.Selection, run.StartedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareNamed(`INSERT OR REPLACE INTO plots
		(id, q, r, base_density, max_density, inverse_area, amenities_index,
		 constructibility_index, zone_id, zoning, footprint)
		VALUES (:id, :q, :r, :base_density, :max_density, :inverse_area, :amenities_index,
		 :constructibility_index, :zone_id, :zoning, :footprint)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range parcels {
		if _, err := stmt.Exec(p); err != nil {
			return fmt.Errorf("insert plot %d: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// Commit writes one step's records in a single transaction.
func (db *DB) Commit(snap *engine.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(snap.NewHouseholds) > 0 {
		stmt, err := tx.PrepareNamed(
			"INSERT OR REPLACE INTO households (id, max_wealth) VALUES (:id, :max_wealth)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, h := range snap.NewHouseholds {
			if _, err := stmt.Exec(h); err != nil {
				return fmt.Errorf("insert household %d: %w", h.ID, err)
			}
		}
	}

	hstmt, err := tx.PrepareNamed(`INSERT OR REPLACE INTO household_states
		(step, household_id, age, wealth, parcel_id)
		VALUES (:step, :household_id, :age, :wealth, :parcel_id)`)
	if err != nil {
		return err
	}
	defer hstmt.Close()
	for _, h := range snap.Households {
		if _, err := hstmt.Exec(h); err != nil {
			return fmt.Errorf("insert household state %d: %w", h.HouseholdID, err)
		}
	}

	pstmt, err := tx.PrepareNamed(`INSERT OR REPLACE INTO plot_states
		(step, parcel_id, density, build_type, population)
		VALUES (:step, :parcel_id, :density, :build_type, :population)`)
	if err != nil {
		return err
	}
	defer pstmt.Close()
	for _, p := range snap.Parcels {
		if _, err := pstmt.Exec(p); err != nil {
			return fmt.Errorf("insert plot state %d: %w", p.ParcelID, err)
		}
	}

	if _, err := tx.NamedExec(`INSERT OR REPLACE INTO steps (step, year, population, moves)
		VALUES (:step, :year, :population, :moves)`, snap.Step); err != nil {
		return fmt.Errorf("insert step %d: %w", snap.Step.Step, err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("step committed", "step", snap.Step.Step, "households", len(snap.Households))
	return nil
}

// LastStep returns the most recent committed step record.
func (db *DB) LastStep() (engine.StepRecord, error) {
	var st engine.StepRecord
	err := db.conn.Get(&st, "SELECT step, year, population, moves FROM steps ORDER BY step DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return st, ErrNoState
	}
	return st, err
}

// HasState reports whether at least one step has been committed.
func (db *DB) HasState() bool {
	_, err := db.LastStep()
	return err == nil
}

// Steps returns the most recent step records, newest first.
func (db *DB) Steps(limit int) ([]engine.StepRecord, error) {
	var steps []engine.StepRecord
	err := db.conn.Select(&steps,
		"SELECT step, year, population, moves FROM steps ORDER BY step DESC LIMIT ?",
		limit,
	)
	return steps, err
}

// LatestRun returns the most recently started run.
func (db *DB) LatestRun() (engine.RunRecord, error) {
	var row struct {
		ID        string `db:"id"`
		Decision  string `db:"decision_model"`
		Selection string `db:"selection_model"`
		StartedAt string `db:"started_at"`
	}
	if err := db.conn.Get(&row,
		"SELECT id, decision_model, selection_model, started_at FROM runs ORDER BY started_at DESC LIMIT 1",
	); err != nil {
		return engine.RunRecord{}, err
	}
	started, err := time.Parse(time.RFC3339Nano, row.StartedAt)
	if err != nil {
		return engine.RunRecord{}, fmt.Errorf("run %s started_at: %w", row.ID, err)
	}
	return engine.RunRecord{ID: row.ID, Decision: row.Decision, Selection: row.Selection, StartedAt: started}, nil
}

// LoadCensus restores the population at the last committed step. Adjacency
// is rebuilt from the stored hex coordinates.
func (db *DB) LoadCensus() (*engine.Census, error) {
	last, err := db.LastStep()
	if err != nil {
		return nil, err
	}

	var plots []engine.ParcelRecord
	if err := db.conn.Select(&plots, `SELECT id, q, r, base_density, max_density, inverse_area,
		amenities_index, constructibility_index, zone_id, zoning, footprint
		FROM plots ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load plots: %w", err)
	}

	var plotStates []engine.ParcelState
	if err := db.conn.Select(&plotStates,
		"SELECT step, parcel_id, density, build_type, population FROM plot_states WHERE step = ?",
		last.Step,
	); err != nil {
		return nil, fmt.Errorf("load plot states: %w", err)
	}
	buildTypes := make(map[world.ParcelID]world.BuildType, len(plotStates))
	for _, ps := range plotStates {
		buildTypes[ps.ParcelID] = ps.BuildType
	}

	radius := 0
	for _, rec := range plots {
		radius = max(radius, world.Distance(world.HexCoord{Q: rec.Q, R: rec.R}, world.HexCoord{}))
	}
	m := world.NewMap(radius)

	parcels := make([]*world.Parcel, 0, len(plots))
	for _, rec := range plots {
		footprint, err := world.ParseFootprint(rec.Footprint)
		if err != nil {
			return nil, fmt.Errorf("plot %d footprint: %w", rec.ID, err)
		}
		bt, ok := buildTypes[rec.ID]
		if !ok {
			return nil, fmt.Errorf("plot %d has no state at step %d: %w", rec.ID, last.Step, ErrNoState)
		}
		p := &world.Parcel{
			ID:                    rec.ID,
			Coord:                 world.HexCoord{Q: rec.Q, R: rec.R},
			BuildType:             bt,
			BaseDensity:           rec.BaseDensity,
			MaxDensity:            rec.MaxDensity,
			InverseArea:           rec.InverseArea,
			AmenitiesIndex:        rec.AmenitiesIndex,
			ConstructibilityIndex: rec.ConstructibilityIndex,
			ZoneID:                rec.ZoneID,
			Zoning:                rec.Zoning,
			Footprint:             footprint,
		}
		if err := m.Place(p); err != nil {
			return nil, err
		}
		parcels = append(parcels, p)
	}

	var rows []struct {
		ID        agents.HouseholdID `db:"id"`
		MaxWealth int                `db:"max_wealth"`
		Age       int                `db:"age"`
		ParcelID  world.ParcelID     `db:"parcel_id"`
	}
	if err := db.conn.Select(&rows, `SELECT h.id, h.max_wealth, s.age, s.parcel_id
		FROM households h JOIN household_states s ON s.household_id = h.id
		WHERE s.step = ? ORDER BY h.id`, last.Step); err != nil {
		return nil, fmt.Errorf("load households: %w", err)
	}
	households := make([]*agents.Household, 0, len(rows))
	for _, r := range rows {
		pid := r.ParcelID
		households = append(households, agents.NewHousehold(r.ID, r.Age, r.MaxWealth, &pid))
	}

	slog.Info("census restored", "step", last.Step, "year", last.Year,
		"households", len(households), "parcels", len(parcels))

	return &engine.Census{
		Parcels:    parcels,
		Households: households,
		Neighbors:  m,
		Step:       last.Step,
		Year:       last.Year,
	}, nil
}
