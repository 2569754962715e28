package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/catedral-dev/catedral"
	"github.com/jackc/pgx/v5"
)

type gatewaySettings struct {
	Gateway           string    `db:"gateway"`
	TestPublicKey     string    `db:"test_public_key"`
	TestSecretKey     string    `db:"test_secret_key"`
	LivePublicKey     string    `db:"live_public_key"`
	LiveSecretKey     string    `db:"live_secret_key"`
	ActiveEnvironment string    `db:"active_environment"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// GatewaySettings returns nil if the gateway was never configured.
func (s *DB) GatewaySettings(ctx context.Context, gateway catedral.GatewayName) (*catedral.GatewaySettings, error) {
	query, args, err := sq.Select("*").From("gateway_settings").Where(sq.Eq{"gateway": string(gateway)}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, _ := s.conn.Query(ctx, query, args...)
	settings, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[gatewaySettings])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("could not read gateway settings: %w", err)
	}
	return &catedral.GatewaySettings{
		Gateway:           catedral.GatewayName(settings.Gateway),
		TestPublicKey:     settings.TestPublicKey,
		TestSecretKey:     catedral.Secret(settings.TestSecretKey),
		LivePublicKey:     settings.LivePublicKey,
		LiveSecretKey:     catedral.Secret(settings.LiveSecretKey),
		ActiveEnvironment: catedral.Environment(settings.ActiveEnvironment),
		UpdatedAt:         settings.UpdatedAt,
	}, nil
}

// UpdateGatewaySettings creates the row if needed and applies the non-nil fields.
func (s *DB) UpdateGatewaySettings(ctx context.Context, gateway catedral.GatewayName, upd catedral.GatewaySettingsUpdate) error {
	return pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		// Upsert defaults, just to make sure row exists
		if _, err := tx.Exec(ctx, `INSERT INTO gateway_settings (gateway) VALUES ($1) ON CONFLICT (gateway) DO NOTHING`, string(gateway)); err != nil {
			return err
		}

		query := sq.Update("gateway_settings").Where(sq.Eq{"gateway": string(gateway)}).Set("updated_at", sq.Expr("NOW()"))
		if v := upd.TestPublicKey; v != nil {
			query = query.Set("test_public_key", *v)
		}
		if v := upd.TestSecretKey; v != nil {
			query = query.Set("test_secret_key", string(*v))
		}
		if v := upd.LivePublicKey; v != nil {
			query = query.Set("live_public_key", *v)
		}
		if v := upd.LiveSecretKey; v != nil {
			query = query.Set("live_secret_key", string(*v))
		}
		if v := upd.ActiveEnvironment; v != nil {
			query = query.Set("active_environment", string(*v))
		}

		sql, args, err := query.ToSql()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sql, args...)
		return err
	})
}
