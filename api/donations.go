package api

import (
	"net/http"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/sudoapi"
	"github.com/go-chi/chi/v5"
)

func (s *API) createDonation(w http.ResponseWriter, r *http.Request) {
	var req sudoapi.DonationRequest
	if err := parseJSONBody(r, &req); err != nil {
		errorData(w, r, err)
		return
	}
	rez, err := s.base.CreateDonation(r.Context(), req)
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusCreated, rez)
}

// paymentData is the payload produced by the Mercado Pago card form.
type paymentData struct {
	Token           string     `json:"token"`
	PaymentMethodID string     `json:"payment_method_id"`
	IssuerID        flexString `json:"issuer_id"`
	Installments    int        `json:"installments"`
	Payer           struct {
		Email          string                   `json:"email"`
		Identification *catedral.Identification `json:"identification"`
	} `json:"payer"`
}

type chargeBody struct {
	sudoapi.ChargeRequest
	PaymentData *paymentData `json:"paymentData"`
}

func (b *chargeBody) request() sudoapi.ChargeRequest {
	req := b.ChargeRequest
	if pd := b.PaymentData; pd != nil {
		if req.Token == "" {
			req.Token = pd.Token
		}
		if req.PaymentMethodID == "" {
			req.PaymentMethodID = pd.PaymentMethodID
		}
		if req.IssuerID == "" {
			req.IssuerID = string(pd.IssuerID)
		}
		if req.Installments == 0 {
			req.Installments = pd.Installments
		}
		if req.DonorEmail == "" {
			req.DonorEmail = pd.Payer.Email
		}
		if req.Identification == nil {
			req.Identification = pd.Payer.Identification
		}
	}
	return req
}

func (s *API) charge(w http.ResponseWriter, r *http.Request) {
	var body chargeBody
	if err := parseJSONBody(r, &body); err != nil {
		errorData(w, r, err)
		return
	}
	req := body.request()
	rez, err := s.base.Charge(r.Context(), req)
	if err != nil {
		donationErrorData(w, r, err, req.DonationID)
		return
	}
	returnData(w, http.StatusOK, rez)
}

func (s *API) createIntent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DonationID string `json:"donationId"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		errorData(w, r, err)
		return
	}
	rez, err := s.base.CreateIntent(r.Context(), body.DonationID)
	if err != nil {
		donationErrorData(w, r, err, body.DonationID)
		return
	}
	returnData(w, http.StatusOK, rez)
}

func (s *API) createCheckout(w http.ResponseWriter, r *http.Request) {
	rez, err := s.base.CreateCheckout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, rez)
}

func (s *API) donationStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DonationID            string     `json:"donationId"`
		ProviderTransactionID flexString `json:"providerTransactionId"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		errorData(w, r, err)
		return
	}
	view, err := s.base.ResolveStatus(r.Context(), body.DonationID, string(body.ProviderTransactionID))
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, view)
}

func (s *API) campaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.base.Campaigns(r.Context())
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, campaigns)
}

func (s *API) campaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.base.CampaignBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		errorData(w, r, err)
		return
	}
	returnData(w, http.StatusOK, campaign)
}
