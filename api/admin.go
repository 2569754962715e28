package api

import (
	"net/http"
	"strings"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *API) gatewaySettings(w http.ResponseWriter, r *http.Request) {
	view, err := s.base.GatewaySettingsView(r.Context(), catedral.GatewayName(chi.URLParam(r, "gateway")))
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, view)
}

type settingsBody struct {
	TestPublicKey     *string `json:"test_public_key"`
	TestSecretKey     *string `json:"test_secret_key"`
	LivePublicKey     *string `json:"live_public_key"`
	LiveSecretKey     *string `json:"live_secret_key"`
	ActiveEnvironment *string `json:"active_environment"`
}

// secretUpdate ignores masked values echoed back by the admin form.
func secretUpdate(val *string) *catedral.Secret {
	if val == nil || strings.Contains(*val, "*") {
		return nil
	}
	secret := catedral.Secret(strings.TrimSpace(*val))
	return &secret
}

func trimmed(val *string) *string {
	if val == nil {
		return nil
	}
	v := strings.TrimSpace(*val)
	return &v
}

func (s *API) updateGatewaySettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if err := parseJSONBody(r, &body); err != nil {
		errorData(w, r, err)
		return
	}
	upd := catedral.GatewaySettingsUpdate{
		TestPublicKey: trimmed(body.TestPublicKey),
		TestSecretKey: secretUpdate(body.TestSecretKey),
		LivePublicKey: trimmed(body.LivePublicKey),
		LiveSecretKey: secretUpdate(body.LiveSecretKey),
	}
	if body.ActiveEnvironment != nil {
		env := catedral.Environment(*body.ActiveEnvironment)
		upd.ActiveEnvironment = &env
	}
	gateway := catedral.GatewayName(chi.URLParam(r, "gateway"))
	if err := s.base.UpdateGatewaySettings(r.Context(), gateway, upd); err != nil {
		errorData(w, r, err)
		return
	}
	s.gatewaySettings(w, r)
}

type donationQuery struct {
	Status     string `json:"status"`
	CampaignID string `json:"campaign_id"`
	Limit      uint64 `json:"limit"`
	Offset     uint64 `json:"offset"`
}

func (s *API) adminDonations(w http.ResponseWriter, r *http.Request) {
	var q donationQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		errorData(w, r, catedral.Validationf("error.invalid_input", "Invalid query: %v", err))
		return
	}
	filter := catedral.DonationFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		status := catedral.DonationStatus(q.Status)
		filter.Status = &status
	}
	if q.CampaignID != "" {
		filter.CampaignID = &q.CampaignID
	}
	donations, err := s.base.Donations(r.Context(), filter)
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, donations)
}

func (s *API) paymentNotifications(w http.ResponseWriter, r *http.Request) {
	var q donationQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		errorData(w, r, catedral.Validationf("error.invalid_input", "Invalid query: %v", err))
		return
	}
	notifs, err := s.base.PaymentNotifications(r.Context(), q.Limit, q.Offset)
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, notifs)
}

func (s *API) adminFlags(w http.ResponseWriter, r *http.Request) {
	returnData(w, http.StatusOK, map[string]any{
		"string":   config.GetFlags[string](),
		"bool":     config.GetFlags[bool](),
		"int":      config.GetFlags[int](),
		"string[]": config.GetFlags[[]string](),
	})
}

func (s *API) adminCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.base.AllCampaigns(r.Context())
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, campaigns)
}

func (s *API) createCampaign(w http.ResponseWriter, r *http.Request) {
	var c catedral.DonationCampaign
	if err := parseJSONBody(r, &c); err != nil {
		errorData(w, r, err)
		return
	}
	c.ID = ""
	if err := s.base.CreateCampaign(r.Context(), &c); err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusCreated, c)
}

type campaignPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Slug        *string `json:"slug"`
	ImageURL    *string `json:"image_url"`

	GoalAmount     *decimal.NullDecimal `json:"goal_amount"`
	DefaultAmounts []decimal.Decimal    `json:"default_amounts"`
	MinAmount      *decimal.Decimal     `json:"min_amount"`
	Active         *bool                `json:"is_active"`
}

func (s *API) updateCampaign(w http.ResponseWriter, r *http.Request) {
	var p campaignPatch
	if err := parseJSONBody(r, &p); err != nil {
		errorData(w, r, err)
		return
	}
	err := s.base.UpdateCampaign(r.Context(), chi.URLParam(r, "id"), catedral.CampaignUpdate{
		Title:          p.Title,
		Description:    p.Description,
		Slug:           p.Slug,
		ImageURL:       p.ImageURL,
		GoalAmount:     p.GoalAmount,
		DefaultAmounts: p.DefaultAmounts,
		MinAmount:      p.MinAmount,
		Active:         p.Active,
	})
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, map[string]bool{"updated": true})
}
