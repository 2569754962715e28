package db

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/catedral-dev/catedral"
	"github.com/jackc/pgx/v5"
)

const notificationUpsertQuery = `INSERT INTO payment_notifications (
	gateway, event_id, topic, payment_id
) VALUES (
	$1, $2, $3, $4
) ON CONFLICT (gateway, event_id) DO UPDATE SET deliveries = payment_notifications.deliveries + 1
RETURNING id, gateway, event_id, topic, payment_id, deliveries, outcome, received_at, processed_at`

// RecordNotification logs a webhook delivery. Redeliveries of the same event bump the counter.
func (s *DB) RecordNotification(ctx context.Context, n catedral.Notification) (*catedral.PaymentNotification, error) {
	rows, _ := s.conn.Query(ctx, notificationUpsertQuery, string(n.Gateway), n.EventID, n.Topic, n.PaymentID)
	rez, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[catedral.PaymentNotification])
	if err != nil {
		return nil, fmt.Errorf("could not record notification: %w", err)
	}
	return rez, nil
}

func (s *DB) MarkNotificationProcessed(ctx context.Context, id int64, outcome string) error {
	_, err := s.conn.Exec(ctx, "UPDATE payment_notifications SET processed_at = NOW(), outcome = $2 WHERE id = $1", id, outcome)
	return err
}

func (s *DB) PaymentNotifications(ctx context.Context, limit, offset uint64) ([]*catedral.PaymentNotification, error) {
	query, args, err := limitOffset(sq.Select("id", "gateway", "event_id", "topic", "payment_id", "deliveries", "outcome", "received_at", "processed_at").
		From("payment_notifications").OrderBy("received_at DESC", "id DESC"), limit, offset).ToSql()
	if err != nil {
		return nil, err
	}
	rows, _ := s.conn.Query(ctx, query, args...)
	notifs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[catedral.PaymentNotification])
	if errors.Is(err, pgx.ErrNoRows) {
		return []*catedral.PaymentNotification{}, nil
	}
	return notifs, err
}
