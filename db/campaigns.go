package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/catedral-dev/catedral"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type campaign struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Slug        string `db:"slug"`
	ImageURL    string `db:"image_url"`

	GoalAmount     decimal.NullDecimal `db:"goal_amount"`
	DefaultAmounts []decimal.Decimal   `db:"default_amounts"`
	MinAmount      decimal.Decimal     `db:"min_amount"`

	Active    bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

var campaignColumns = []string{
	"id", "title", "description", "slug", "image_url",
	"goal_amount", "default_amounts", "min_amount", "is_active", "created_at",
}

func (s *DB) Campaign(ctx context.Context, filter catedral.CampaignFilter) (*catedral.DonationCampaign, error) {
	filter.Limit = 1
	campaigns, err := s.Campaigns(ctx, filter)
	if err != nil || len(campaigns) == 0 {
		return nil, err
	}
	return campaigns[0], nil
}

func (s *DB) Campaigns(ctx context.Context, filter catedral.CampaignFilter) ([]*catedral.DonationCampaign, error) {
	sb := sq.Select(campaignColumns...).From("donation_campaigns")
	if v := filter.ID; v != nil {
		sb = sb.Where(sq.Eq{"id": *v})
	}
	if v := filter.Slug; v != nil {
		sb = sb.Where(sq.Eq{"slug": *v})
	}
	if v := filter.Active; v != nil {
		sb = sb.Where(sq.Eq{"is_active": *v})
	}
	query, args, err := limitOffset(sb.OrderBy("created_at DESC"), filter.Limit, 0).ToSql()
	if err != nil {
		return nil, err
	}

	rows, _ := s.conn.Query(ctx, query, args...)
	campaigns, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[campaign])
	if errors.Is(err, pgx.ErrNoRows) {
		return []*catedral.DonationCampaign{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("could not list campaigns: %w", err)
	}
	return mapper(campaigns, internalToCampaign), nil
}

func (s *DB) CreateCampaign(ctx context.Context, c *catedral.DonationCampaign) error {
	defaults := c.DefaultAmounts
	if defaults == nil {
		defaults = []decimal.Decimal{}
	}
	query, args, err := sq.Insert("donation_campaigns").
		Columns("title", "description", "slug", "image_url", "goal_amount", "default_amounts", "min_amount", "is_active").
		Values(c.Title, c.Description, c.Slug, c.ImageURL, c.GoalAmount, defaults, c.MinAmount, c.Active).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return err
	}
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("could not create campaign: %w", err)
	}
	return nil
}

func (s *DB) UpdateCampaign(ctx context.Context, id string, upd catedral.CampaignUpdate) error {
	ub := sq.Update("donation_campaigns").Where(sq.Eq{"id": id})
	if v := upd.Title; v != nil {
		ub = ub.Set("title", *v)
	}
	if v := upd.Description; v != nil {
		ub = ub.Set("description", *v)
	}
	if v := upd.Slug; v != nil {
		ub = ub.Set("slug", *v)
	}
	if v := upd.ImageURL; v != nil {
		ub = ub.Set("image_url", *v)
	}
	if v := upd.GoalAmount; v != nil {
		ub = ub.Set("goal_amount", *v)
	}
	if v := upd.DefaultAmounts; v != nil {
		ub = ub.Set("default_amounts", v)
	}
	if v := upd.MinAmount; v != nil {
		ub = ub.Set("min_amount", *v)
	}
	if v := upd.Active; v != nil {
		ub = ub.Set("is_active", *v)
	}
	query, args, err := ub.ToSql()
	if err != nil {
		// squirrel refuses an UPDATE without SET clauses
		return err
	}
	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("could not update campaign: %w", err)
	}
	return nil
}

func internalToCampaign(c *campaign) *catedral.DonationCampaign {
	return &catedral.DonationCampaign{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Slug:        c.Slug,
		ImageURL:    c.ImageURL,

		GoalAmount:     c.GoalAmount,
		DefaultAmounts: c.DefaultAmounts,
		MinAmount:      c.MinAmount,

		Active:    c.Active,
		CreatedAt: c.CreatedAt,
	}
}
