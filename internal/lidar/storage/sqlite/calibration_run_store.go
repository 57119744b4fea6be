package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lidarcal/internal/lidar/geometry"
)

// ErrRunNotFound is returned by Get and Delete for an unknown run ID.
var ErrRunNotFound = errors.New("calibration run not found")

// CalibrationRun is one persisted refinement: the predicted pose, the
// reference and refined extrinsics, and the projection point counts.
// CreatedAt is in unix nanoseconds.
type CalibrationRun struct {
	RunID              string             `json:"run_id"`
	SensorID           string             `json:"sensor_id"`
	CreatedAt          int64              `json:"created_at"`
	Pose               geometry.Pose      `json:"-"`
	Score              float64            `json:"score"`
	ReferenceExtrinsic geometry.Transform `json:"reference_extrinsic"`
	RefinedExtrinsic   geometry.Transform `json:"refined_extrinsic"`
	PointsTotal        int                `json:"points_total"`
	PointsReference    int                `json:"points_reference"`
	PointsRefined      int                `json:"points_refined"`
	Notes              string             `json:"notes,omitempty"`
}

// CalibrationRunStore provides persistence for calibration runs.
type CalibrationRunStore struct {
	db *sql.DB
}

// NewCalibrationRunStore creates a new CalibrationRunStore.
func NewCalibrationRunStore(db *sql.DB) *CalibrationRunStore {
	return &CalibrationRunStore{db: db}
}

const runColumns = `run_id, sensor_id, created_at,
	quat_w, quat_x, quat_y, quat_z, trans_x, trans_y, trans_z, score,
	reference_extrinsic, refined_extrinsic,
	points_total, points_reference, points_refined, notes`

// Insert persists run. If RunID is empty a UUID is generated; if CreatedAt
// is zero it is set to now.
func (s *CalibrationRunStore) Insert(run *CalibrationRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	refJSON, err := json.Marshal(run.ReferenceExtrinsic)
	if err != nil {
		return fmt.Errorf("marshal reference extrinsic: %w", err)
	}
	refinedJSON, err := json.Marshal(run.RefinedExtrinsic)
	if err != nil {
		return fmt.Errorf("marshal refined extrinsic: %w", err)
	}

	c := run.Pose.Components()
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO calibration_runs (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.SensorID, run.CreatedAt,
			c[0], c[1], c[2], c[3], c[4], c[5], c[6], run.Score,
			string(refJSON), string(refinedJSON),
			run.PointsTotal, run.PointsReference, run.PointsRefined, nullString(run.Notes),
		)
		if err != nil {
			return fmt.Errorf("insert calibration run: %w", err)
		}
		return nil
	})
}

// Get returns a single run by ID.
func (s *CalibrationRunStore) Get(runID string) (*CalibrationRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM calibration_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListBySensor returns the runs for sensorID, newest first. A limit <= 0
// returns all runs.
func (s *CalibrationRunStore) ListBySensor(sensorID string, limit int) ([]*CalibrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM calibration_runs
		WHERE sensor_id = ?
		ORDER BY created_at DESC, run_id`
	args := []any{sensorID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calibration runs: %w", err)
	}
	defer rows.Close()

	var runs []*CalibrationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Delete removes a run by ID.
func (s *CalibrationRunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM calibration_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete calibration run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*CalibrationRun, error) {
	var (
		run                CalibrationRun
		c                  [7]float64
		refStr, refinedStr string
		notes              sql.NullString
	)
	err := row.Scan(
		&run.RunID, &run.SensorID, &run.CreatedAt,
		&c[0], &c[1], &c[2], &c[3], &c[4], &c[5], &c[6], &run.Score,
		&refStr, &refinedStr,
		&run.PointsTotal, &run.PointsReference, &run.PointsRefined, &notes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan calibration run: %w", err)
	}
	run.Pose = geometry.PoseFromComponents(c)
	run.Notes = notes.String

	if err := json.Unmarshal([]byte(refStr), &run.ReferenceExtrinsic); err != nil {
		return nil, fmt.Errorf("decode reference extrinsic of %s: %w", run.RunID, err)
	}
	if err := json.Unmarshal([]byte(refinedStr), &run.RefinedExtrinsic); err != nil {
		return nil, fmt.Errorf("decode refined extrinsic of %s: %w", run.RunID, err)
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
