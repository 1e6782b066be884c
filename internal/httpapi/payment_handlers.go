package httpapi

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"idurar.org/internal/audit"
	"idurar.org/internal/obs"
	"idurar.org/internal/payments"
)

const stripeSignatureHeader = "Stripe-Signature"

type createInvoiceRequest struct {
	Number   int            `json:"number"`
	Year     int            `json:"year"`
	ClientID string         `json:"client"`
	Currency string         `json:"currency"`
	Total    payments.Money `json:"total"`
}

type createPaymentRequest struct {
	InvoiceID   string         `json:"invoice"`
	Amount      payments.Money `json:"amount"`
	Ref         string         `json:"ref"`
	Mode        string         `json:"paymentMode"`
	Description string         `json:"description"`
}

type createIntentRequest struct {
	InvoiceID string         `json:"invoiceId"`
	Amount    payments.Money `json:"amount"`
}

func (a *API) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	inv, err := a.deps.Payments.CreateInvoice(r.Context(), payments.Invoice{
		Number:    req.Number,
		Year:      req.Year,
		ClientID:  req.ClientID,
		Currency:  req.Currency,
		Total:     req.Total,
		CreatedBy: principal(r),
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invoice.create", map[string]any{"invoiceId": inv.ID, "total": inv.Total.String()})
	writeSuccess(w, inv, "Invoice created successfully")
}

func (a *API) readInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := a.deps.Payments.Invoice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, inv, "Invoice found")
}

func (a *API) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	p, _, replayed, err := a.deps.Payments.Record(r.Context(), payments.ManualPayment{
		InvoiceID:   req.InvoiceID,
		Amount:      req.Amount,
		Ref:         req.Ref,
		Mode:        req.Mode,
		Description: req.Description,
		CreatedBy:   principal(r),
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	msg := "Payment recorded successfully"
	if replayed {
		msg = "Payment already recorded"
	}
	writeSuccess(w, p, msg)
}

func (a *API) readPayment(w http.ResponseWriter, r *http.Request) {
	p, err := a.deps.Payments.Payment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, p, "Payment found")
}

func (a *API) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	intent, err := a.deps.Payments.CreateIntent(r.Context(), req.InvoiceID, req.Amount)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "payment.intent", map[string]any{
		"invoiceId":       req.InvoiceID,
		"paymentIntentId": intent.ID,
		"amount":          req.Amount.String(),
	})
	writeSuccess(w, intent, "Payment intent created")
}

// stripeWebhook is unauthenticated; the provider signature over the raw body is the credential.
func (a *API) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	res, err := a.deps.Payments.HandleWebhook(r.Context(), payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		obs.Logger().Warn("webhook rejected",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeFailure(w, r, err)
		return
	}
	obs.Logger().Info("webhook processed",
		zap.String("request_id", audit.RequestIDFromContext(r.Context())),
		zap.String("event_type", res.EventType),
		zap.String("outcome", res.Outcome),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
