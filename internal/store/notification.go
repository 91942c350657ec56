package store

import (
	"fmt"
	"time"
)

// Notification is a wallet notification as stored. Payload holds the
// notification body as JSON.
type Notification struct {
	EventID     string
	Type        string
	PaymentHash string
	Amount      int64
	ReceivedAt  time.Time
	Payload     []byte
}

// SaveNotification records n. Notifications are keyed by event id, so a
// relay delivering the same event twice stores it once.
func (s *Store) SaveNotification(n *Notification) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO notification (event_id, type, payment_hash, amount, received_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.EventID, n.Type, n.PaymentHash, n.Amount, n.ReceivedAt.UnixMilli(), n.Payload,
	)
	if err != nil {
		return fmt.Errorf("store: save notification: %w", err)
	}
	return nil
}

// RecentNotifications returns up to limit notifications, newest first.
func (s *Store) RecentNotifications(limit int) ([]*Notification, error) {
	rows, err := s.db.Query(
		`SELECT event_id, type, payment_hash, amount, received_at, payload
		FROM notification ORDER BY received_at DESC, event_id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		var ms int64
		if err := rows.Scan(&n.EventID, &n.Type, &n.PaymentHash, &n.Amount, &ms, &n.Payload); err != nil {
			return nil, fmt.Errorf("store: scan notification: %w", err)
		}
		n.ReceivedAt = time.UnixMilli(ms)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate notifications: %w", err)
	}
	return out, nil
}

// PruneNotifications deletes all but the newest keep notifications and
// returns how many were removed.
func (s *Store) PruneNotifications(keep int) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM notification WHERE event_id NOT IN (
			SELECT event_id FROM notification ORDER BY received_at DESC, event_id LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("store: prune notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
