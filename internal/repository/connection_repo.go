package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskrelay/relay/internal/model"
)

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// ConnectionRepository journals socket connections. It stores connection
// metadata only, never message payloads.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new ConnectionRepository.
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// RecordConnect inserts a record for a newly opened connection.
func (r *ConnectionRepository) RecordConnect(ctx context.Context, rec model.ConnectionRecord) error {
	query := `
		INSERT INTO connections (client_id, remote_addr, connected_at, messages_received)
		VALUES (?, ?, ?, 0)
	`

	if _, err := r.db.ExecContext(ctx, query, rec.ClientID, rec.RemoteAddr, rec.ConnectedAt.UTC()); err != nil {
		return fmt.Errorf("failed to record connection: %w", err)
	}
	return nil
}

// RecordDisconnect marks a connection closed and stores its message count.
func (r *ConnectionRepository) RecordDisconnect(ctx context.Context, clientID string, at time.Time, received int64) error {
	query := `
		UPDATE connections
		SET disconnected_at = ?, messages_received = ?
		WHERE client_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, at.UTC(), received, clientID)
	if err != nil {
		return fmt.Errorf("failed to record disconnect: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("connection %s not journaled", clientID)
	}

	return nil
}

// List returns the most recent connections, newest first.
func (r *ConnectionRepository) List(ctx context.Context, limit int) ([]model.ConnectionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT client_id, remote_addr, connected_at, disconnected_at, messages_received
		FROM connections
		ORDER BY connected_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	records := []model.ConnectionRecord{}
	for rows.Next() {
		var rec model.ConnectionRecord
		var disconnectedAt sql.NullTime

		if err := rows.Scan(
			&rec.ClientID,
			&rec.RemoteAddr,
			&rec.ConnectedAt,
			&disconnectedAt,
			&rec.MessagesReceived,
		); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		if disconnectedAt.Valid {
			t := disconnectedAt.Time
			rec.DisconnectedAt = &t
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return records, nil
}
