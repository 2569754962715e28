// Package testutil holds in-memory stand-ins for the record store and the payment gateways.
package testutil

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/catedral-dev/catedral"
)

// MemStore keeps everything in maps and applies the same transition rules as the SQL layer.
type MemStore struct {
	mu sync.Mutex

	donations     map[string]*catedral.Donation
	campaigns     map[string]*catedral.DonationCampaign
	settings      map[catedral.GatewayName]*catedral.GatewaySettings
	notifications []*catedral.PaymentNotification

	// ApplyErr, when set, fails every ApplyDonationUpdate.
	ApplyErr error
	// SettingsReads counts GatewaySettings calls.
	SettingsReads int
}

func NewMemStore() *MemStore {
	return &MemStore{
		donations: make(map[string]*catedral.Donation),
		campaigns: make(map[string]*catedral.DonationCampaign),
		settings:  make(map[catedral.GatewayName]*catedral.GatewaySettings),
	}
}

func (m *MemStore) CreateDonation(_ context.Context, d *catedral.Donation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.donations[d.ID]; ok {
		return errors.New("duplicate donation id")
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.donations[d.ID] = &cp
	return nil
}

func (m *MemStore) Donation(_ context.Context, id string) (*catedral.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donations[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *MemStore) Donations(_ context.Context, filter catedral.DonationFilter) ([]*catedral.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rez []*catedral.Donation
	for _, d := range m.donations {
		if filter.ID != nil && d.ID != *filter.ID {
			continue
		}
		if filter.CampaignID != nil && d.CampaignID != *filter.CampaignID {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.Gateway != nil && d.Gateway != *filter.Gateway {
			continue
		}
		if filter.ProviderPaymentID != nil && d.ProviderPaymentID != *filter.ProviderPaymentID {
			continue
		}
		cp := *d
		rez = append(rez, &cp)
	}
	slices.SortFunc(rez, func(a, b *catedral.Donation) int {
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Offset >= uint64(len(rez)) {
		return []*catedral.Donation{}, nil
	}
	rez = rez[filter.Offset:]
	if filter.Limit > 0 && uint64(len(rez)) > filter.Limit {
		rez = rez[:filter.Limit]
	}
	return rez, nil
}

func (m *MemStore) DonationByProviderPayment(ctx context.Context, gateway catedral.GatewayName, paymentID string) (*catedral.Donation, error) {
	donations, err := m.Donations(ctx, catedral.DonationFilter{Gateway: &gateway, ProviderPaymentID: &paymentID, Limit: 1})
	if err != nil || len(donations) == 0 {
		return nil, err
	}
	return donations[0], nil
}

func (m *MemStore) DonationView(ctx context.Context, id string) (*catedral.DonationView, error) {
	d, err := m.Donation(ctx, id)
	if err != nil || d == nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	view := &catedral.DonationView{Donation: *d}
	if c, ok := m.campaigns[d.CampaignID]; ok {
		view.Campaign = catedral.CampaignBrief{Title: c.Title, ImageURL: c.ImageURL}
	}
	return view, nil
}

func (m *MemStore) ApplyDonationUpdate(_ context.Context, id string, upd catedral.DonationUpdate) (*catedral.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ApplyErr != nil {
		return nil, m.ApplyErr
	}
	d, ok := m.donations[id]
	if !ok {
		return nil, nil
	}
	change := &catedral.StatusChange{Previous: d.Status, Current: d.Status}
	if !catedral.CanTransition(d.Status, upd.Status) {
		return change, nil
	}
	d.Status = upd.Status
	if upd.Gateway != nil {
		d.Gateway = *upd.Gateway
	}
	if upd.Environment != nil {
		d.Environment = *upd.Environment
	}
	if upd.ProviderPaymentID != nil {
		d.ProviderPaymentID = *upd.ProviderPaymentID
	}
	if upd.ProviderStatus != nil {
		d.ProviderStatus = *upd.ProviderStatus
	}
	if upd.ProviderStatusDetail != nil {
		d.ProviderStatusDetail = *upd.ProviderStatusDetail
	}
	if upd.PaymentType != nil {
		d.PaymentType = *upd.PaymentType
	}
	if upd.ProviderAmount != nil {
		d.ProviderAmount.Decimal, d.ProviderAmount.Valid = *upd.ProviderAmount, true
	}
	if upd.ReceiptURL != nil {
		d.ReceiptURL = *upd.ReceiptURL
	}
	d.UpdatedAt = time.Now()
	change.Current, change.Applied = upd.Status, true
	return change, nil
}

func (m *MemStore) Campaign(ctx context.Context, filter catedral.CampaignFilter) (*catedral.DonationCampaign, error) {
	filter.Limit = 1
	campaigns, err := m.Campaigns(ctx, filter)
	if err != nil || len(campaigns) == 0 {
		return nil, err
	}
	return campaigns[0], nil
}

func (m *MemStore) Campaigns(_ context.Context, filter catedral.CampaignFilter) ([]*catedral.DonationCampaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rez := []*catedral.DonationCampaign{}
	for _, c := range m.campaigns {
		if filter.ID != nil && c.ID != *filter.ID {
			continue
		}
		if filter.Slug != nil && c.Slug != *filter.Slug {
			continue
		}
		if filter.Active != nil && c.Active != *filter.Active {
			continue
		}
		cp := *c
		rez = append(rez, &cp)
	}
	slices.SortFunc(rez, func(a, b *catedral.DonationCampaign) int {
		return strings.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && uint64(len(rez)) > filter.Limit {
		rez = rez[:filter.Limit]
	}
	return rez, nil
}

func (m *MemStore) CreateCampaign(_ context.Context, c *catedral.DonationCampaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.campaigns {
		if other.Slug == c.Slug {
			return errors.New("duplicate slug")
		}
	}
	if c.ID == "" {
		c.ID = c.Slug
	}
	c.CreatedAt = time.Now()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

// AddCampaign stores c as-is, bypassing validation.
func (m *MemStore) AddCampaign(c *catedral.DonationCampaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
}

func (m *MemStore) UpdateCampaign(_ context.Context, id string, upd catedral.CampaignUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil
	}
	if upd.Title != nil {
		c.Title = *upd.Title
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	if upd.Slug != nil {
		c.Slug = *upd.Slug
	}
	if upd.ImageURL != nil {
		c.ImageURL = *upd.ImageURL
	}
	if upd.GoalAmount != nil {
		c.GoalAmount = *upd.GoalAmount
	}
	if upd.DefaultAmounts != nil {
		c.DefaultAmounts = upd.DefaultAmounts
	}
	if upd.MinAmount != nil {
		c.MinAmount = *upd.MinAmount
	}
	if upd.Active != nil {
		c.Active = *upd.Active
	}
	return nil
}

func (m *MemStore) GatewaySettings(_ context.Context, gateway catedral.GatewayName) (*catedral.GatewaySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SettingsReads++
	s, ok := m.settings[gateway]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// SetSettings stores settings as-is.
func (m *MemStore) SetSettings(s *catedral.GatewaySettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.settings[s.Gateway] = &cp
}

func (m *MemStore) UpdateGatewaySettings(_ context.Context, gateway catedral.GatewayName, upd catedral.GatewaySettingsUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[gateway]
	if !ok {
		s = &catedral.GatewaySettings{Gateway: gateway, ActiveEnvironment: catedral.EnvironmentTest}
		m.settings[gateway] = s
	}
	if upd.TestPublicKey != nil {
		s.TestPublicKey = *upd.TestPublicKey
	}
	if upd.TestSecretKey != nil {
		s.TestSecretKey = *upd.TestSecretKey
	}
	if upd.LivePublicKey != nil {
		s.LivePublicKey = *upd.LivePublicKey
	}
	if upd.LiveSecretKey != nil {
		s.LiveSecretKey = *upd.LiveSecretKey
	}
	if upd.ActiveEnvironment != nil {
		s.ActiveEnvironment = *upd.ActiveEnvironment
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) RecordNotification(_ context.Context, n catedral.Notification) (*catedral.PaymentNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.notifications {
		if rec.Gateway == n.Gateway && rec.EventID == n.EventID {
			rec.Deliveries++
			cp := *rec
			return &cp, nil
		}
	}
	rec := &catedral.PaymentNotification{
		ID:         int64(len(m.notifications) + 1),
		Gateway:    n.Gateway,
		EventID:    n.EventID,
		Topic:      n.Topic,
		PaymentID:  n.PaymentID,
		Deliveries: 1,
		ReceivedAt: time.Now(),
	}
	m.notifications = append(m.notifications, rec)
	cp := *rec
	return &cp, nil
}

func (m *MemStore) MarkNotificationProcessed(_ context.Context, id int64, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.notifications {
		if rec.ID == id {
			now := time.Now()
			rec.Outcome, rec.ProcessedAt = outcome, &now
		}
	}
	return nil
}

func (m *MemStore) PaymentNotifications(_ context.Context, limit, offset uint64) ([]*catedral.PaymentNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rez := []*catedral.PaymentNotification{}
	for i := len(m.notifications) - 1; i >= 0; i-- {
		cp := *m.notifications[i]
		rez = append(rez, &cp)
	}
	if offset >= uint64(len(rez)) {
		return []*catedral.PaymentNotification{}, nil
	}
	rez = rez[offset:]
	if limit > 0 && uint64(len(rez)) > limit {
		rez = rez[:limit]
	}
	return rez, nil
}

func (m *MemStore) Ping(context.Context) error { return nil }

func (m *MemStore) Close() error { return nil }
