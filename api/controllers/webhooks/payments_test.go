package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dkoroteev/genbot-backend/internal/webhooks/payments"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
)

type fakeChargeService struct {
	events []payments.ChargeEvent
	err    error
}

func (f *fakeChargeService) HandleCharge(ctx context.Context, event payments.ChargeEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "webhooks-test"})
}

const yookassaSucceededBody = `{
	"type": "notification",
	"event": "payment.succeeded",
	"object": {
		"id": "pay-123",
		"status": "succeeded",
		"amount": {"value": "299.00", "currency": "RUB"},
		"payment_method": {"id": "pm-1", "saved": true}
	}
}`

func TestYooKassaWebhookNormalizesAndAcks(t *testing.T) {
	svc := &fakeChargeService{}
	handler := YooKassaWebhook(svc, testLogger())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/yookassa", strings.NewReader(yookassaSucceededBody))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(svc.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(svc.events))
	}
	event := svc.events[0]
	if event.ChargeID != "pay-123" {
		t.Fatalf("unexpected charge id %q", event.ChargeID)
	}
	if event.Outcome != enums.ChargeOutcomeSucceeded {
		t.Fatalf("unexpected outcome %q", event.Outcome)
	}
	if event.MandateID != "pm-1" {
		t.Fatalf("expected saved payment method to become the mandate, got %q", event.MandateID)
	}
}

func TestYooKassaWebhookRejectsMalformedBody(t *testing.T) {
	svc := &fakeChargeService{}
	handler := YooKassaWebhook(svc, testLogger())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/yookassa", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(svc.events) != 0 {
		t.Fatalf("expected no events, got %d", len(svc.events))
	}
}

func TestYooKassaWebhookDuplicateDeliveryStillAcks(t *testing.T) {
	svc := &fakeChargeService{err: pkgerrors.New(pkgerrors.CodeIdempotency, "charge already processed")}
	handler := YooKassaWebhook(svc, testLogger())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/yookassa", strings.NewReader(yookassaSucceededBody))
	w := httptest.NewRecorder()
	handler(w, r)

	// the provider must not retry an already-processed charge
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate delivery, got %d", w.Code)
	}
}

func TestCryptomusWebhookDeclined(t *testing.T) {
	svc := &fakeChargeService{}
	handler := CryptomusWebhook(svc, testLogger())

	body := `{"uuid": "cm-1", "order_id": "o-1", "status": "fail", "amount": "10.00", "currency": "USD", "payer_amount": "", "merchant_amount": ""}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/cryptomus", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(svc.events) != 1 || svc.events[0].Outcome != enums.ChargeOutcomeDeclined {
		t.Fatalf("expected one declined event, got %+v", svc.events)
	}
}
