// Package postgresql stores execution logs and step records in PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	// registers the "postgres" driver.
	_ "github.com/lib/pq"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence/sqlbase"
	"github.com/dukex/flowrun/pkg/stats"
)

const migrationsTable = "stats_schema_migrations"

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				status VARCHAR(32) NOT NULL DEFAULT 'running',
				response JSONB,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE execution_steps (
				execution_id VARCHAR(255) NOT NULL REFERENCES execution_logs(id) ON DELETE CASCADE,
				seq BIGSERIAL,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(64) NOT NULL,
				status VARCHAR(16) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_ms BIGINT NOT NULL,
				input JSONB,
				output JSONB,
				error TEXT,
				PRIMARY KEY (execution_id, seq)
			);
		`,
	}
}

// Sink implements stats.Sink on PostgreSQL.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ stats.Sink = (*Sink)(nil)

// NewSink connects and migrates the stats tables.
func NewSink(ctx context.Context, logger *slog.Logger, databaseURL string) (*Sink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := sqlbase.NewMigrationManager(logger, db, migrationsTable, migrations()).RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run stats migrations: %w", err)
	}

	return &Sink{db: db, logger: logger}, nil
}

func (s *Sink) RecordStep(ctx context.Context, executionLogID string, step models.StepRecord) error {
	input, err := marshalNullable(step.Input)
	if err != nil {
		return err
	}

	output, err := marshalNullable(step.Output)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO execution_logs (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, executionLogID)
	if err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("failed to open execution log: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO execution_steps
			(execution_id, node_id, node_type, status, started_at, finished_at, duration_ms, input, output, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
	`, executionLogID, step.NodeID, step.NodeType, step.Status, step.StartedAt, step.FinishedAt,
		step.DurationMs, input, output, step.Error)
	if err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("failed to record step %s: %w", step.NodeID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step %s: %w", step.NodeID, err)
	}

	return nil
}

func (s *Sink) Finalize(
	ctx context.Context,
	executionLogID string,
	status models.ExecutionStatus,
	response any,
	durationMs int64,
) error {
	body, err := marshalNullable(response)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_logs (id, status, response, duration_ms, finished_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			response = EXCLUDED.response,
			duration_ms = EXCLUDED.duration_ms,
			finished_at = EXCLUDED.finished_at
	`, executionLogID, status, body, durationMs)
	if err != nil {
		return fmt.Errorf("failed to finalize execution log %s: %w", executionLogID, err)
	}

	return nil
}

// Steps returns the recorded steps of an execution in insertion order.
func (s *Sink) Steps(ctx context.Context, executionLogID string) ([]models.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, node_type, status, started_at, finished_at, duration_ms, COALESCE(error, '')
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY seq
	`, executionLogID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var steps []models.StepRecord

	for rows.Next() {
		var step models.StepRecord
		if err := rows.Scan(&step.NodeID, &step.NodeType, &step.Status, &step.StartedAt,
			&step.FinishedAt, &step.DurationMs, &step.Error); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	return steps, rows.Err()
}

func (s *Sink) Close() error {
	return s.db.Close()
}

func marshalNullable(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record payload: %w", err)
	}

	return data, nil
}
