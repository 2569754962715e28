package sudoapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/integrations/prometheus"
	"github.com/catedral-dev/catedral/sudoapi/flags"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DonationRequest struct {
	CampaignID string          `json:"campaignId"`
	Amount     decimal.Decimal `json:"amount"`
	DonorName  string          `json:"donorName"`
	DonorEmail string          `json:"donorEmail"`
	DonorPhone string          `json:"donorPhone"`
}

func (r *DonationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CampaignID, validation.Required),
		validation.Field(&r.DonorName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.DonorEmail, validation.Required, is.EmailFormat),
		validation.Field(&r.DonorPhone, validation.Required, validation.Length(1, 32)),
	)
}

type CreatedDonation struct {
	DonationID  string               `json:"donationId"`
	PublicKey   string               `json:"publicKey"`
	Gateway     catedral.GatewayName `json:"gateway"`
	Environment catedral.Environment `json:"environment"`
}

// CreateDonation inserts a pending donation and returns the public key the browser needs to
// tokenize a payment for it.
func (s *BaseAPI) CreateDonation(ctx context.Context, req DonationRequest) (*CreatedDonation, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	if !req.Amount.IsPositive() {
		return nil, catedral.Validationf("error.invalid_amount", "Amount must be positive")
	}

	campaign, err := s.db.Campaign(ctx, catedral.CampaignFilter{ID: &req.CampaignID})
	if err != nil {
		return nil, WrapError(err, "Couldn't read campaign")
	}
	if campaign == nil || !campaign.Active {
		return nil, catedral.Validationf("error.campaign_inactive", "Campaign not found or inactive")
	}
	if req.Amount.LessThan(campaign.MinAmount) {
		return nil, catedral.Validationf("error.below_minimum", "Amount is below the campaign minimum of %s", campaign.MinAmount.StringFixed(2))
	}

	gw, err := s.ActiveGateway()
	if err != nil {
		return nil, err
	}
	creds, err := s.credentials(ctx, gw.Name(), "")
	if err != nil {
		return nil, err
	}
	if creds.PublicKey == "" {
		return nil, catedral.Configurationf("Gateway %s has no %s public key", gw.Name(), creds.Environment)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, WrapError(err, "Couldn't generate donation id")
	}
	donation := &catedral.Donation{
		ID:         id.String(),
		CampaignID: campaign.ID,
		DonorName:  req.DonorName,
		DonorEmail: req.DonorEmail,
		DonorPhone: req.DonorPhone,
		Amount:     req.Amount,
		Currency:   flags.Currency.Value(),
		Status:     catedral.DonationPending,
		Gateway:    gw.Name(),

		Environment: creds.Environment,
	}
	if err := s.db.CreateDonation(ctx, donation); err != nil {
		return nil, catedral.Persistence(err, "Couldn't create donation")
	}
	prometheus.DonationsCreated.Inc()
	slog.InfoContext(ctx, "Donation created",
		slog.String("donation_id", donation.ID), slog.String("campaign_id", campaign.ID),
		slog.String("gateway", string(gw.Name())), slog.String("environment", string(creds.Environment)))

	return &CreatedDonation{
		DonationID:  donation.ID,
		PublicKey:   creds.PublicKey,
		Gateway:     gw.Name(),
		Environment: creds.Environment,
	}, nil
}

// Donation returns a NotFound error for unknown or malformed ids.
func (s *BaseAPI) Donation(ctx context.Context, id string) (*catedral.Donation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, catedral.NotFoundf("Donation not found")
	}
	donation, err := s.db.Donation(ctx, id)
	if err != nil {
		return nil, WrapError(err, "Couldn't read donation")
	}
	if donation == nil {
		return nil, catedral.NotFoundf("Donation not found")
	}
	return donation, nil
}

const maxDonationsPage = 200

func (s *BaseAPI) Donations(ctx context.Context, filter catedral.DonationFilter) ([]*catedral.Donation, error) {
	if filter.Limit == 0 || filter.Limit > maxDonationsPage {
		filter.Limit = maxDonationsPage
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, catedral.Validationf("error.invalid_input", "Invalid status filter")
	}
	donations, err := s.db.Donations(ctx, filter)
	if err != nil {
		return nil, WrapError(err, "Couldn't get donations")
	}
	return donations, nil
}

func (s *BaseAPI) PaymentNotifications(ctx context.Context, limit, offset uint64) ([]*catedral.PaymentNotification, error) {
	if limit == 0 || limit > maxDonationsPage {
		limit = maxDonationsPage
	}
	notifs, err := s.db.PaymentNotifications(ctx, limit, offset)
	if err != nil {
		return nil, WrapError(err, "Couldn't get payment notifications")
	}
	return notifs, nil
}

func validationError(err error) error {
	var errs validation.Errors
	if errors.As(err, &errs) {
		for _, e := range errs {
			if ve, ok := e.(validation.Error); ok && ve.Code() == validation.ErrRequired.Code() {
				return catedral.Validationf("error.missing_required", "Missing required fields: %v", err)
			}
		}
	}
	return catedral.Validationf("error.invalid_input", "Invalid input: %v", err)
}
