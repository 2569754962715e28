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

type donation struct {
	ID         string `db:"id"`
	CampaignID string `db:"campaign_id"`

	DonorName  string `db:"donor_name"`
	DonorEmail string `db:"donor_email"`
	DonorPhone string `db:"donor_phone"`

	Amount   decimal.Decimal `db:"amount"`
	Currency string          `db:"currency"`
	Status   string          `db:"status"`

	Gateway              string              `db:"gateway"`
	Environment          string              `db:"environment"`
	ProviderPaymentID    string              `db:"provider_payment_id"`
	ProviderStatus       string              `db:"provider_status"`
	ProviderStatusDetail string              `db:"provider_status_detail"`
	PaymentType          string              `db:"payment_type"`
	ProviderAmount       decimal.NullDecimal `db:"provider_amount"`
	ReceiptURL           string              `db:"receipt_url"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type donationView struct {
	donation
	CampaignTitle string `db:"campaign_title"`
	CampaignImage string `db:"campaign_image_url"`
}

var donationColumns = []string{
	"donations.id::text AS id", "donations.campaign_id",
	"donations.donor_name", "donations.donor_email", "donations.donor_phone",
	"donations.amount", "donations.currency", "donations.status",
	"donations.gateway", "donations.environment", "donations.provider_payment_id", "donations.provider_status", "donations.provider_status_detail",
	"donations.payment_type", "donations.provider_amount", "donations.receipt_url",
	"donations.created_at", "donations.updated_at",
}

func (s *DB) CreateDonation(ctx context.Context, d *catedral.Donation) error {
	query, args, err := sq.Insert("donations").
		Columns("id", "campaign_id", "donor_name", "donor_email", "donor_phone", "amount", "currency", "status", "gateway", "environment").
		Values(d.ID, d.CampaignID, d.DonorName, d.DonorEmail, d.DonorPhone, d.Amount, d.Currency, string(d.Status), string(d.Gateway), string(d.Environment)).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return err
	}
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("could not insert donation: %w", err)
	}
	return nil
}

// Donation returns nil if no donation has the given id.
func (s *DB) Donation(ctx context.Context, id string) (*catedral.Donation, error) {
	donations, err := s.Donations(ctx, catedral.DonationFilter{ID: &id, Limit: 1})
	if err != nil || len(donations) == 0 {
		return nil, err
	}
	return donations[0], nil
}

func (s *DB) Donations(ctx context.Context, filter catedral.DonationFilter) ([]*catedral.Donation, error) {
	sb := sq.Select(donationColumns...).From("donations")
	sb = donationFilterQuery(&filter, sb)
	sb = limitOffset(sb.OrderBy("donations.created_at DESC", "donations.id DESC"), filter.Limit, filter.Offset)
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}

	rows, _ := s.conn.Query(ctx, query, args...)
	donations, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[donation])
	if errors.Is(err, pgx.ErrNoRows) {
		return []*catedral.Donation{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("could not list donations: %w", err)
	}
	return mapper(donations, internalToDonation), nil
}

// DonationByProviderPayment finds the donation a gateway payment was made for, when the
// provider did not echo the external reference back.
func (s *DB) DonationByProviderPayment(ctx context.Context, gateway catedral.GatewayName, paymentID string) (*catedral.Donation, error) {
	donations, err := s.Donations(ctx, catedral.DonationFilter{Gateway: &gateway, ProviderPaymentID: &paymentID, Limit: 1})
	if err != nil || len(donations) == 0 {
		return nil, err
	}
	return donations[0], nil
}

// DonationView returns the donation joined with its campaign's title and image, or nil.
func (s *DB) DonationView(ctx context.Context, id string) (*catedral.DonationView, error) {
	query, args, err := sq.Select(donationColumns...).
		Columns("donation_campaigns.title AS campaign_title", "donation_campaigns.image_url AS campaign_image_url").
		From("donations").
		Join("donation_campaigns ON donation_campaigns.id = donations.campaign_id").
		Where(sq.Eq{"donations.id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, _ := s.conn.Query(ctx, query, args...)
	view, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[donationView])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("could not read donation: %w", err)
	}
	return &catedral.DonationView{
		Donation: *internalToDonation(&view.donation),
		Campaign: catedral.CampaignBrief{Title: view.CampaignTitle, ImageURL: view.CampaignImage},
	}, nil
}

// ApplyDonationUpdate writes upd only if the stored status may move to upd.Status.
// The row is locked for the duration of the check, and the UPDATE repeats the predecessor
// condition so a concurrent writer can never regress a final status.
// It returns nil if the donation does not exist.
func (s *DB) ApplyDonationUpdate(ctx context.Context, id string, upd catedral.DonationUpdate) (*catedral.StatusChange, error) {
	var change *catedral.StatusChange
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		var current string
		if err := tx.QueryRow(ctx, "SELECT status FROM donations WHERE id = $1 FOR UPDATE", id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		change = &catedral.StatusChange{Previous: catedral.DonationStatus(current), Current: catedral.DonationStatus(current)}
		if !catedral.CanTransition(change.Previous, upd.Status) {
			return nil
		}

		query, args, err := donationUpdateQuery(id, upd).ToSql()
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			change.Current = upd.Status
			change.Applied = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not update donation %s: %w", id, err)
	}
	return change, nil
}

func donationUpdateQuery(id string, upd catedral.DonationUpdate) sq.UpdateBuilder {
	allowed := catedral.AllowedPredecessors(upd.Status)
	predecessors := make([]string, 0, len(allowed))
	for _, st := range allowed {
		predecessors = append(predecessors, string(st))
	}

	ub := sq.Update("donations").
		Set("status", string(upd.Status)).
		Set("updated_at", sq.Expr("NOW()"))
	if v := upd.Gateway; v != nil {
		ub = ub.Set("gateway", string(*v))
	}
	if v := upd.Environment; v != nil {
		ub = ub.Set("environment", string(*v))
	}
	if v := upd.ProviderPaymentID; v != nil {
		ub = ub.Set("provider_payment_id", *v)
	}
	if v := upd.ProviderStatus; v != nil {
		ub = ub.Set("provider_status", *v)
	}
	if v := upd.ProviderStatusDetail; v != nil {
		ub = ub.Set("provider_status_detail", *v)
	}
	if v := upd.PaymentType; v != nil {
		ub = ub.Set("payment_type", *v)
	}
	if v := upd.ProviderAmount; v != nil {
		ub = ub.Set("provider_amount", *v)
	}
	if v := upd.ReceiptURL; v != nil {
		ub = ub.Set("receipt_url", *v)
	}
	return ub.Where(sq.Eq{"id": id}).Where(sq.Eq{"status": predecessors})
}

func donationFilterQuery(filter *catedral.DonationFilter, sb sq.SelectBuilder) sq.SelectBuilder {
	if v := filter.ID; v != nil {
		sb = sb.Where(sq.Eq{"donations.id": *v})
	}
	if v := filter.CampaignID; v != nil {
		sb = sb.Where(sq.Eq{"donations.campaign_id": *v})
	}
	if v := filter.Status; v != nil {
		sb = sb.Where(sq.Eq{"donations.status": string(*v)})
	}
	if v := filter.Gateway; v != nil {
		sb = sb.Where(sq.Eq{"donations.gateway": string(*v)})
	}
	if v := filter.ProviderPaymentID; v != nil {
		sb = sb.Where(sq.Eq{"donations.provider_payment_id": *v})
	}
	return sb
}

func internalToDonation(d *donation) *catedral.Donation {
	return &catedral.Donation{
		ID:         d.ID,
		CampaignID: d.CampaignID,

		DonorName:  d.DonorName,
		DonorEmail: d.DonorEmail,
		DonorPhone: d.DonorPhone,

		Amount:   d.Amount,
		Currency: d.Currency,
		Status:   catedral.DonationStatus(d.Status),

		Gateway:              catedral.GatewayName(d.Gateway),
		Environment:          catedral.Environment(d.Environment),
		ProviderPaymentID:    d.ProviderPaymentID,
		ProviderStatus:       d.ProviderStatus,
		ProviderStatusDetail: d.ProviderStatusDetail,
		PaymentType:          d.PaymentType,
		ProviderAmount:       d.ProviderAmount,
		ReceiptURL:           d.ReceiptURL,

		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
