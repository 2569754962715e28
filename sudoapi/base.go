package sudoapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/db"
	"github.com/catedral-dev/catedral/email"
	"github.com/catedral-dev/catedral/integrations/discord"
	"github.com/catedral-dev/catedral/integrations/mercadopago"
	"github.com/catedral-dev/catedral/integrations/stripe"
	"github.com/catedral-dev/catedral/internal/config"
	"github.com/catedral-dev/catedral/sudoapi/flags"
	"github.com/catedral-dev/catedral/sudoapi/mdrenderer"
)

// Store is the record store behind the payment pipeline. *db.DB is the production implementation.
type Store interface {
	CreateDonation(ctx context.Context, d *catedral.Donation) error
	Donation(ctx context.Context, id string) (*catedral.Donation, error)
	Donations(ctx context.Context, filter catedral.DonationFilter) ([]*catedral.Donation, error)
	DonationByProviderPayment(ctx context.Context, gateway catedral.GatewayName, paymentID string) (*catedral.Donation, error)
	DonationView(ctx context.Context, id string) (*catedral.DonationView, error)
	ApplyDonationUpdate(ctx context.Context, id string, upd catedral.DonationUpdate) (*catedral.StatusChange, error)

	Campaign(ctx context.Context, filter catedral.CampaignFilter) (*catedral.DonationCampaign, error)
	Campaigns(ctx context.Context, filter catedral.CampaignFilter) ([]*catedral.DonationCampaign, error)
	CreateCampaign(ctx context.Context, c *catedral.DonationCampaign) error
	UpdateCampaign(ctx context.Context, id string, upd catedral.CampaignUpdate) error

	GatewaySettings(ctx context.Context, gateway catedral.GatewayName) (*catedral.GatewaySettings, error)
	UpdateGatewaySettings(ctx context.Context, gateway catedral.GatewayName, upd catedral.GatewaySettingsUpdate) error

	RecordNotification(ctx context.Context, n catedral.Notification) (*catedral.PaymentNotification, error)
	MarkNotificationProcessed(ctx context.Context, id int64, outcome string) error
	PaymentNotifications(ctx context.Context, limit, offset uint64) ([]*catedral.PaymentNotification, error)

	Ping(ctx context.Context) error
	Close() error
}

// AlertSender delivers operator alerts to a chat webhook.
type AlertSender interface {
	SendAlert(ctx context.Context, webhookURL string, content string) error
}

type BaseAPI struct {
	db       Store
	gateways map[catedral.GatewayName]catedral.Gateway
	mailer   catedral.Mailer
	alerter  AlertSender
	rd       *mdrenderer.Renderer

	settingsCache *theine.LoadingCache[catedral.GatewayName, *catedral.GatewaySettings]

	alertChan chan *alertEntry
}

func (s *BaseAPI) Start(ctx context.Context) {
	go s.ingestAlerts(ctx)
}

func (s *BaseAPI) Close() error {
	s.settingsCache.Close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("couldn't close DB: %w", err)
	}
	return nil
}

// Ping reports whether the record store is reachable.
func (s *BaseAPI) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return WrapError(err, "Database unreachable")
	}
	return nil
}

// GetBaseAPI wires the pipeline. mailer and alerter may be nil.
func GetBaseAPI(store Store, gateways []catedral.Gateway, mailer catedral.Mailer, alerter AlertSender) (*BaseAPI, error) {
	base := &BaseAPI{
		db:       store,
		gateways: make(map[catedral.GatewayName]catedral.Gateway, len(gateways)),
		mailer:   mailer,
		alerter:  alerter,
		rd:       mdrenderer.New(),

		alertChan: make(chan *alertEntry, 50),
	}
	for _, gw := range gateways {
		base.gateways[gw.Name()] = gw
	}

	settingsCache, err := theine.NewBuilder[catedral.GatewayName, *catedral.GatewaySettings](16).BuildWithLoader(func(ctx context.Context, gateway catedral.GatewayName) (theine.Loaded[*catedral.GatewaySettings], error) {
		settings, err := base.db.GatewaySettings(ctx, gateway)
		if err != nil {
			return theine.Loaded[*catedral.GatewaySettings]{}, err
		}
		return theine.Loaded[*catedral.GatewaySettings]{
			Value: settings,
			Cost:  1,
			TTL:   settingsTTL(),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not build gateway settings cache: %w", err)
	}
	base.settingsCache = settingsCache

	return base, nil
}

func InitializeBaseAPI(ctx context.Context) (*BaseAPI, error) {
	var mailer catedral.Mailer
	if config.Email.Enabled {
		m, err := email.NewMailer()
		if err != nil {
			slog.WarnContext(ctx, "Couldn't initialize mailer. Make sure you entered the correct information", slog.Any("err", err))
		} else {
			mailer = m
		}
	}

	notifier, err := discord.NewNotifier(flags.EmailBranding.Value())
	if err != nil {
		return nil, err
	}

	// DB Initialization
	dbClient, err := db.NewPSQL(ctx, config.Common.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("couldn't connect to DB: %w", err)
	}
	slog.InfoContext(ctx, "Connected to DB")

	if flags.MigrateOnStart.Value() {
		if err := dbClient.RunMigrations(ctx); err != nil {
			dbClient.Close()
			return nil, fmt.Errorf("couldn't run migrations: %w", err)
		}
	}

	gateways := []catedral.Gateway{
		mercadopago.New(flags.MercadoPagoAPIURL.Value()),
		stripe.New(""),
	}

	return GetBaseAPI(dbClient, gateways, mailer, notifier)
}

func settingsTTL() time.Duration {
	return time.Duration(max(flags.SettingsCacheSeconds.Value(), 1)) * time.Second
}
