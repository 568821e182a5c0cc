package async

import (
	"database/sql"
)

// jobColumns is the column list every job SELECT uses, in scanJob order.
const jobColumns = `id, handler_name, source, description, status,
		progress_current, progress_total,
		payload, result, error, retry_count,
		created_at, started_at, completed_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanJob reads one row selected with jobColumns into job.
func scanJob(row rowScanner, job *Job) error {
	var (
		payload, result, errMsg sql.NullString
		startedAt, completedAt  sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.HandlerName, &job.Source, &job.Description, &job.Status,
		&job.Progress.Current, &job.Progress.Total,
		&payload, &result, &errMsg, &job.RetryCount,
		&job.CreatedAt, &startedAt, &completedAt, &job.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	if result.Valid {
		job.Result = []byte(result.String)
	}
	job.Error = errMsg.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return nil
}
