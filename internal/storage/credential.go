package storage

import (
	"database/sql"
	"errors"
	"time"
)

// CredentialRow is the persisted form of an auth credential.
type CredentialRow struct {
	ServiceID   string
	ServiceName string
	ServiceURL  string
	Token       string
	IssuedAt    time.Time
}

// SaveCredential upserts the credential for a service.
func (db *DB) SaveCredential(row CredentialRow) error {
	_, err := db.Exec(
		`INSERT OR REPLACE INTO credentials (service_id, service_name, service_url, token, issued_at)
		 VALUES (?, ?, ?, ?, ?)`,
		row.ServiceID, row.ServiceName, row.ServiceURL, row.Token, row.IssuedAt,
	)
	return err
}

// GetCredential returns the credential for a service.
func (db *DB) GetCredential(serviceID string) (*CredentialRow, error) {
	var row CredentialRow
	err := db.QueryRow(
		"SELECT service_id, service_name, service_url, token, issued_at FROM credentials WHERE service_id = ?",
		serviceID,
	).Scan(&row.ServiceID, &row.ServiceName, &row.ServiceURL, &row.Token, &row.IssuedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListCredentials returns all stored credentials.
func (db *DB) ListCredentials() ([]CredentialRow, error) {
	rows, err := db.Query(
		"SELECT service_id, service_name, service_url, token, issued_at FROM credentials ORDER BY service_id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CredentialRow
	for rows.Next() {
		var row CredentialRow
		if err := rows.Scan(&row.ServiceID, &row.ServiceName, &row.ServiceURL, &row.Token, &row.IssuedAt); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// DeleteCredential removes the credential for a service.
func (db *DB) DeleteCredential(serviceID string) error {
	result, err := db.Exec("DELETE FROM credentials WHERE service_id = ?", serviceID)
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
