package storage

import (
	"database/sql"
	"time"
)

// TaskRecord is the audit row for one external agent call.
type TaskRecord struct {
	ID           string
	ServiceID    string
	SessionID    string
	TaskID       string
	ContextID    string
	State        string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
}

// InsertTaskRecord records the start of an external call.
func (db *DB) InsertTaskRecord(rec TaskRecord) error {
	_, err := db.Exec(
		`INSERT INTO task_records (id, service_id, session_id, task_id, context_id, state, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ServiceID, rec.SessionID, nullable(rec.TaskID), nullable(rec.ContextID),
		rec.State, rec.StartedAt,
	)
	return err
}

// CompleteTaskRecord updates a record with its terminal state.
func (db *DB) CompleteTaskRecord(id, taskID, contextID, state string, errorMessage *string) error {
	now := time.Now()
	result, err := db.Exec(
		`UPDATE task_records SET task_id = COALESCE(?, task_id), context_id = COALESCE(?, context_id),
		 state = ?, completed_at = ?, error_message = ? WHERE id = ?`,
		nullable(taskID), nullable(contextID), state, now, errorMessage, id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTaskRecords returns all records for a service, oldest first.
func (db *DB) ListTaskRecords(serviceID string) ([]TaskRecord, error) {
	rows, err := db.Query(
		`SELECT id, service_id, session_id, task_id, context_id, state, started_at, completed_at, error_message
		 FROM task_records WHERE service_id = ? ORDER BY started_at ASC`,
		serviceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTaskRecords(rows)
}

// ListTaskRecordsBySession returns all records for a session, oldest first.
func (db *DB) ListTaskRecordsBySession(sessionID string) ([]TaskRecord, error) {
	rows, err := db.Query(
		`SELECT id, service_id, session_id, task_id, context_id, state, started_at, completed_at, error_message
		 FROM task_records WHERE session_id = ? ORDER BY started_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTaskRecords(rows)
}

func scanTaskRecords(rows *sql.Rows) ([]TaskRecord, error) {
	var result []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var taskID, contextID, errMsg sql.NullString
		var completedAt sql.NullTime

		if err := rows.Scan(&rec.ID, &rec.ServiceID, &rec.SessionID, &taskID, &contextID,
			&rec.State, &rec.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, err
		}
		rec.TaskID = taskID.String
		rec.ContextID = contextID.String
		if completedAt.Valid {
			t := completedAt.Time
			rec.CompletedAt = &t
		}
		if errMsg.Valid {
			s := errMsg.String
			rec.ErrorMessage = &s
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// GetTaskRecord returns a single record by id.
func (db *DB) GetTaskRecord(id string) (*TaskRecord, error) {
	rows, err := db.Query(
		`SELECT id, service_id, session_id, task_id, context_id, state, started_at, completed_at, error_message
		 FROM task_records WHERE id = ?`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanTaskRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
