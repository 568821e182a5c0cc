package schedule

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/breg-harvester/errors"
)

// ExecutionStore handles persistence of job execution history
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// NewExecution starts a running execution record for a scheduled job.
func NewExecution(scheduledJobID string, startedAt time.Time) *Execution {
	ts := startedAt.UTC().Format(time.RFC3339)
	return &Execution{
		ID:             uuid.NewString(),
		ScheduledJobID: scheduledJobID,
		Status:         ExecutionStatusRunning,
		StartedAt:      ts,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

func nullable[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// CreateExecution creates a new execution record
func (s *ExecutionStore) CreateExecution(exec *Execution) error {
	query := `
		INSERT INTO schedule_executions (
			id, scheduled_job_id, async_job_id, status,
			started_at, completed_at, duration_ms,
			result_summary, error_message,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		exec.ID,
		exec.ScheduledJobID,
		nullable(exec.AsyncJobID),
		exec.Status,
		exec.StartedAt,
		nullable(exec.CompletedAt),
		nullable(exec.DurationMs),
		nullable(exec.ResultSummary),
		nullable(exec.ErrorMessage),
		exec.CreatedAt,
		exec.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}

	return nil
}

// UpdateExecution updates an existing execution record
func (s *ExecutionStore) UpdateExecution(exec *Execution) error {
	query := `
		UPDATE schedule_executions
		SET async_job_id = ?,
		    status = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    result_summary = ?,
		    error_message = ?,
		    updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query,
		nullable(exec.AsyncJobID),
		exec.Status,
		nullable(exec.CompletedAt),
		nullable(exec.DurationMs),
		nullable(exec.ResultSummary),
		nullable(exec.ErrorMessage),
		exec.UpdatedAt,
		exec.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("execution %s", exec.ID)
	}

	return nil
}

const executionColumns = `id, scheduled_job_id, async_job_id, status,
		       started_at, completed_at, duration_ms,
		       result_summary, error_message,
		       created_at, updated_at`

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var asyncJobID, completedAt, resultSummary, errorMessage sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&exec.ID,
		&exec.ScheduledJobID,
		&asyncJobID,
		&exec.Status,
		&exec.StartedAt,
		&completedAt,
		&durationMs,
		&resultSummary,
		&errorMessage,
		&exec.CreatedAt,
		&exec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if asyncJobID.Valid {
		exec.AsyncJobID = &asyncJobID.String
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.String
	}
	if durationMs.Valid {
		duration := int(durationMs.Int64)
		exec.DurationMs = &duration
	}
	if resultSummary.Valid {
		exec.ResultSummary = &resultSummary.String
	}
	if errorMessage.Valid {
		exec.ErrorMessage = &errorMessage.String
	}
	return &exec, nil
}

// GetExecution retrieves an execution by ID
func (s *ExecutionStore) GetExecution(id string) (*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM schedule_executions WHERE id = ?`

	exec, err := scanExecution(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("execution %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution")
	}
	return exec, nil
}

// ListExecutions returns the newest executions of a scheduled job and
// the total number recorded.
func (s *ExecutionStore) ListExecutions(scheduledJobID string, limit, offset int) ([]*Execution, int, error) {
	var total int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM schedule_executions WHERE scheduled_job_id = ?`, scheduledJobID).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to count executions")
	}

	query := `SELECT ` + executionColumns + `
		FROM schedule_executions
		WHERE scheduled_job_id = ?
		ORDER BY started_at DESC, created_at DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.Query(query, scheduledJobID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, exec)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "error iterating executions")
	}

	return executions, total, nil
}

// CleanupOldExecutions deletes execution records started before now-retention.
// Returns the number of executions deleted.
func (s *ExecutionStore) CleanupOldExecutions(retention time.Duration) (int, error) {
	cutoffTime := formatTime(time.Now().Add(-retention))

	result, err := s.db.Exec(`DELETE FROM schedule_executions WHERE started_at < ?`, cutoffTime)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old executions")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(deleted), nil
}
