package sudoapi

import (
	"context"

	"github.com/catedral-dev/catedral"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

// Campaigns lists the campaigns currently accepting donations.
func (s *BaseAPI) Campaigns(ctx context.Context) ([]*catedral.DonationCampaign, error) {
	active := true
	campaigns, err := s.db.Campaigns(ctx, catedral.CampaignFilter{Active: &active})
	if err != nil {
		return nil, WrapError(err, "Couldn't get campaigns")
	}
	return campaigns, nil
}

// CampaignBySlug returns an active campaign or a NotFound error.
func (s *BaseAPI) CampaignBySlug(ctx context.Context, campaignSlug string) (*catedral.DonationCampaign, error) {
	active := true
	campaign, err := s.db.Campaign(ctx, catedral.CampaignFilter{Slug: &campaignSlug, Active: &active})
	if err != nil {
		return nil, WrapError(err, "Couldn't get campaign")
	}
	if campaign == nil {
		return nil, catedral.NotFoundf("Campaign not found")
	}
	return campaign, nil
}

func (s *BaseAPI) AllCampaigns(ctx context.Context) ([]*catedral.DonationCampaign, error) {
	campaigns, err := s.db.Campaigns(ctx, catedral.CampaignFilter{})
	if err != nil {
		return nil, WrapError(err, "Couldn't get campaigns")
	}
	return campaigns, nil
}

func (s *BaseAPI) CreateCampaign(ctx context.Context, c *catedral.DonationCampaign) error {
	if err := validation.Validate(c.Title, validation.Required, validation.Length(1, 200)); err != nil {
		return catedral.Validationf("error.invalid_input", "Invalid title: %v", err)
	}
	c.Slug = campaignSlug(c.Slug, c.Title)
	c.Description = s.rd.Sanitize(c.Description)
	if err := checkAmounts(c.MinAmount, c.DefaultAmounts, c.GoalAmount); err != nil {
		return err
	}
	if err := s.db.CreateCampaign(ctx, c); err != nil {
		return WrapError(err, "Couldn't create campaign")
	}
	return nil
}

func (s *BaseAPI) UpdateCampaign(ctx context.Context, id string, upd catedral.CampaignUpdate) error {
	current, err := s.db.Campaign(ctx, catedral.CampaignFilter{ID: &id})
	if err != nil {
		return WrapError(err, "Couldn't get campaign")
	}
	if current == nil {
		return catedral.NotFoundf("Campaign not found")
	}
	if upd.Title != nil {
		if err := validation.Validate(*upd.Title, validation.Required, validation.Length(1, 200)); err != nil {
			return catedral.Validationf("error.invalid_input", "Invalid title: %v", err)
		}
	}
	if upd.Description != nil {
		desc := s.rd.Sanitize(*upd.Description)
		upd.Description = &desc
	}
	if upd.Slug != nil {
		title := current.Title
		if upd.Title != nil {
			title = *upd.Title
		}
		newSlug := campaignSlug(*upd.Slug, title)
		upd.Slug = &newSlug
	}

	minAmount, defaults, goal := current.MinAmount, current.DefaultAmounts, current.GoalAmount
	if upd.MinAmount != nil {
		minAmount = *upd.MinAmount
	}
	if upd.DefaultAmounts != nil {
		defaults = upd.DefaultAmounts
	}
	if upd.GoalAmount != nil {
		goal = *upd.GoalAmount
	}
	if err := checkAmounts(minAmount, defaults, goal); err != nil {
		return err
	}

	if err := s.db.UpdateCampaign(ctx, id, upd); err != nil {
		return WrapError(err, "Couldn't update campaign")
	}
	return nil
}

func campaignSlug(requested, title string) string {
	if requested == "" {
		requested = title
	}
	return slug.Make(requested)
}

func checkAmounts(minAmount decimal.Decimal, defaults []decimal.Decimal, goal decimal.NullDecimal) error {
	if !minAmount.IsPositive() {
		return catedral.Validationf("error.invalid_amount", "Minimum amount must be positive")
	}
	for _, amount := range defaults {
		if amount.LessThan(minAmount) {
			return catedral.Validationf("error.below_minimum", "Default amount %s is below the minimum", amount.StringFixed(2))
		}
	}
	if goal.Valid && !goal.Decimal.IsPositive() {
		return catedral.Validationf("error.invalid_amount", "Goal must be positive")
	}
	return nil
}

func (s *BaseAPI) campaignFor(ctx context.Context, donation *catedral.Donation) (*catedral.DonationCampaign, error) {
	campaign, err := s.db.Campaign(ctx, catedral.CampaignFilter{ID: &donation.CampaignID})
	if err != nil {
		return nil, WrapError(err, "Couldn't get campaign")
	}
	if campaign == nil {
		return nil, catedral.NotFoundf("Campaign not found")
	}
	return campaign, nil
}
