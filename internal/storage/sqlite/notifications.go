package sqlite

import (
	"context"
	"fmt"

	"github.com/yegors/flighttrack/internal/tracker"
)

// InsertNotification stores a user-facing notification
func (s *Store) InsertNotification(ctx context.Context, n *tracker.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, kind, message, created_at)
		VALUES (?, ?, ?, ?)`,
		n.UserID, n.Kind, n.Message, fmtTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first
func (s *Store) ListNotifications(ctx context.Context, userID int64) ([]tracker.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, kind, message, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []tracker.Notification
	for rows.Next() {
		var n tracker.Notification
		var createdAt string
		if err := rows.Scan(&n.UserID, &n.Kind, &n.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.CreatedAt = parseTime(createdAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
