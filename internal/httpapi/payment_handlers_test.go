package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"idurar.org/internal/payments"
)

func succeededPayload(t *testing.T, eventID, intentID, invoiceID string, cents int64) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":     eventID,
		"object": "event",
		"type":   "payment_intent.succeeded",
		"data": map[string]any{
			"object": map[string]any{
				"id":       intentID,
				"object":   "payment_intent",
				"amount":   cents,
				"currency": "usd",
				"metadata": map[string]string{"invoiceId": invoiceID, "clientId": "client-9"},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func signed(payload []byte) map[string]string {
	header := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
	return map[string]string{stripeSignatureHeader: header}
}

func (c *apiClient) createInvoice(total float64) payments.Invoice {
	c.t.Helper()
	env := expectStatus(c.t, c.post("/api/invoice/create", map[string]any{
		"number":   7,
		"year":     2024,
		"client":   "client-9",
		"currency": "usd",
		"total":    total,
	}, c.owner), http.StatusOK)
	return resultAs[payments.Invoice](c.t, env)
}

func TestStripeWebhookAppliesOnce(t *testing.T) {
	api := newTestAPI(t)
	inv := api.createInvoice(990)

	payload := succeededPayload(t, "evt_http_1", "pi_http_1", inv.ID, 50000)
	for i := 0; i < 2; i++ {
		resp := api.post("/api/stripe/webhook", payload, signed(payload))
		var ack map[string]bool
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !ack["received"] {
			t.Fatalf("delivery %d: status %d ack %v", i, resp.StatusCode, ack)
		}
	}

	got := resultAs[payments.Invoice](t, expectStatus(t, api.get("/api/invoice/read/"+inv.ID, nil, api.owner), http.StatusOK))
	if got.Credit != 50000 || got.PaymentStatus != payments.StatusPartially || len(got.Payments) != 1 {
		t.Fatalf("unexpected invoice after replay: %+v", got)
	}

	p := resultAs[payments.Payment](t, expectStatus(t, api.get("/api/payment/read/"+got.Payments[0], nil, api.owner), http.StatusOK))
	if p.Ref != "pi_http_1" || p.Mode != payments.ModeStripe || p.Amount != 50000 {
		t.Fatalf("unexpected payment: %+v", p)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	api := newTestAPI(t)
	inv := api.createInvoice(100)
	payload := succeededPayload(t, "evt_bad", "pi_bad", inv.ID, 10000)

	env := expectStatus(t, api.post("/api/stripe/webhook", payload, map[string]string{
		stripeSignatureHeader: "t=1,v1=deadbeef",
	}), http.StatusBadRequest)
	if env.Success {
		t.Fatal("bad signature must fail")
	}
	expectStatus(t, api.post("/api/stripe/webhook", payload, nil), http.StatusBadRequest)

	got := resultAs[payments.Invoice](t, expectStatus(t, api.get("/api/invoice/read/"+inv.ID, nil, api.owner), http.StatusOK))
	if got.Credit != 0 || got.PaymentStatus != payments.StatusUnpaid {
		t.Fatalf("invoice must be untouched: %+v", got)
	}
}

func TestStripeWebhookAcknowledgesUnknownInvoice(t *testing.T) {
	api := newTestAPI(t)
	payload := succeededPayload(t, "evt_orphan", "pi_orphan", "missing-invoice", 10000)
	resp := api.post("/api/stripe/webhook", payload, signed(payload))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown invoice must be acknowledged, got %d", resp.StatusCode)
	}
}

func TestManualPaymentReplay(t *testing.T) {
	api := newTestAPI(t)
	inv := api.createInvoice(100)
	body := map[string]any{"invoice": inv.ID, "amount": 100, "ref": "cash-1"}

	first := expectStatus(t, api.post("/api/payment/create", body, api.owner), http.StatusOK)
	second := expectStatus(t, api.post("/api/payment/create", body, api.owner), http.StatusOK)
	if second.Message != "Payment already recorded" {
		t.Fatalf("unexpected replay message %q", second.Message)
	}
	if resultAs[payments.Payment](t, first).ID != resultAs[payments.Payment](t, second).ID {
		t.Fatal("replay must return the original payment")
	}
	got := resultAs[payments.Invoice](t, expectStatus(t, api.get("/api/invoice/read/"+inv.ID, nil, api.owner), http.StatusOK))
	if got.PaymentStatus != payments.StatusPaid || got.Credit != 10000 {
		t.Fatalf("unexpected invoice: %+v", got)
	}

	other := api.createInvoice(100)
	conflict := expectStatus(t, api.post("/api/payment/create", map[string]any{"invoice": other.ID, "amount": 100, "ref": "cash-1"}, api.owner), http.StatusBadRequest)
	if conflict.Message != "payment reference already recorded for a different invoice or amount" {
		t.Fatalf("unexpected conflict message %q", conflict.Message)
	}
	expectStatus(t, api.post("/api/payment/create", map[string]any{"invoice": inv.ID, "amount": 5e16}, api.owner), http.StatusBadRequest)

	expectStatus(t, api.post("/api/payment/create", map[string]any{"invoice": "nope", "amount": 1}, api.owner), http.StatusNotFound)
	expectStatus(t, api.post("/api/payment/create", map[string]any{"invoice": inv.ID, "amount": 0}, api.owner), http.StatusBadRequest)
}

func TestCreatePaymentIntent(t *testing.T) {
	api := newTestAPI(t)
	inv := api.createInvoice(250)

	env := expectStatus(t, api.post("/api/stripe/create-payment-intent", map[string]any{
		"invoiceId": inv.ID,
		"amount":    250,
	}, api.owner), http.StatusOK)
	intent := resultAs[payments.Intent](t, env)
	if intent.ID != "pi_stub" || intent.ClientSecret != "pi_stub_secret_usd" {
		t.Fatalf("unexpected intent: %+v", intent)
	}

	missing := expectStatus(t, api.post("/api/stripe/create-payment-intent", map[string]any{"amount": 10}, api.owner), http.StatusBadRequest)
	if missing.Message != "Invoice ID and amount are required" {
		t.Fatalf("unexpected message %q", missing.Message)
	}
	expectStatus(t, api.post("/api/stripe/create-payment-intent", map[string]any{
		"invoiceId": "unknown", "amount": 10,
	}, api.owner), http.StatusNotFound)
}

func TestPaymentStreamDeliversAppliedPayments(t *testing.T) {
	api := newTestAPI(t, WithHeartbeat(time.Hour))
	inv := api.createInvoice(100)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/api/payment/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range api.owner {
		req.Header.Set(k, v)
	}
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": stream started") {
		t.Fatalf("expected stream preamble, got %q (%v)", line, err)
	}

	// The subscription is registered before the preamble is flushed.
	expectStatus(t, api.post("/api/payment/create", map[string]any{"invoice": inv.ID, "amount": 40, "ref": "sse-1"}, api.owner), http.StatusOK)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt struct {
			InvoiceID     string `json:"invoiceId"`
			Amount        int64  `json:"amount"`
			PaymentStatus string `json:"paymentStatus"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.InvoiceID != inv.ID || evt.Amount != 4000 || evt.PaymentStatus != string(payments.StatusPartially) {
			t.Fatalf("unexpected event: %+v", evt)
		}
		return
	}
}
