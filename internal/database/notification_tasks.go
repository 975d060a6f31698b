package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"boothbook/internal/models"
)

const taskColumns = `id, task_type, appointment_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateTask(ctx context.Context, task *models.NotificationTask) error {
	query := `INSERT INTO notification_tasks (task_type, appointment_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	now := time.Now().UTC()
	result, err := db.db.ExecContext(ctx, query,
		task.TaskType,
		task.AppointmentID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

func (db *DB) GetTask(ctx context.Context, id int64) (*models.NotificationTask, error) {
	row := db.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM notification_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification task %d: %w", id, err)
	}
	return t, nil
}

// GetPendingTasks returns tasks that are due, oldest first.
func (db *DB) GetPendingTasks(ctx context.Context, limit int) ([]models.NotificationTask, error) {
	query := `SELECT ` + taskColumns + `
              FROM notification_tasks
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	return db.queryTasks(ctx, query, time.Now().UTC(), limit)
}

func (db *DB) GetFailedTasks(ctx context.Context) ([]models.NotificationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM notification_tasks WHERE status = 'failed' ORDER BY created_at DESC`
	return db.queryTasks(ctx, query)
}

func (db *DB) UpdateTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE notification_tasks SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE notification_tasks SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, nullString(errMsg), nextRetryAt, &now, id}
	default:
		query = `UPDATE notification_tasks SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, nullString(errMsg), nextRetryAt, id}
	}

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update notification task status: %w", err)
	}
	return nil
}

// CountByStatus reports queue depth per status for diagnostics.
func (db *DB) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notification_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count notification tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// PurgeCompleted deletes completed tasks processed before cutoff.
func (db *DB) PurgeCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.db.ExecContext(ctx, `DELETE FROM notification_tasks WHERE status = 'completed' AND processed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge notification tasks: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...interface{}) ([]models.NotificationTask, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.NotificationTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(s scanner) (*models.NotificationTask, error) {
	var t models.NotificationTask
	var lastError sql.NullString
	var processedAt, nextRetryAt sql.NullTime
	err := s.Scan(&t.ID, &t.TaskType, &t.AppointmentID, &t.Payload, &t.Status, &t.RetryCount,
		&lastError, &t.CreatedAt, &processedAt, &nextRetryAt)
	if err != nil {
		return nil, err
	}
	if lastError.Valid {
		t.LastError = &lastError.String
	}
	if processedAt.Valid {
		t.ProcessedAt = &processedAt.Time
	}
	if nextRetryAt.Valid {
		t.NextRetryAt = &nextRetryAt.Time
	}
	return &t, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
