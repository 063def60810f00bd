package controllers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gridmirror/gridmirror/internal/pkg/gridstore"
	"github.com/gridmirror/gridmirror/internal/pkg/mirror"
	"github.com/stretchr/testify/assert"
)

const testWebhookSecret = "whsec_test"

// countingStore records how many writes each table received.
type countingStore struct {
	mu     sync.Mutex
	writes map[string]int
	seq    int
}

func newCountingStore() *countingStore {
	return &countingStore{writes: make(map[string]int)}
}

func (s *countingStore) record(tableID string) *gridstore.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[tableID]++
	s.seq++
	return &gridstore.Record{ID: fmt.Sprintf("rec%03d", s.seq), Fields: map[string]any{}}
}

func (s *countingStore) count(tableID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[tableID]
}

func (s *countingStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.writes {
		n += c
	}
	return n
}

func (s *countingStore) FindRecord(context.Context, string, string, string) (*gridstore.Record, error) {
	return nil, nil
}

func (s *countingStore) CreateRecord(_ context.Context, tableID string, _ map[string]any) (*gridstore.Record, error) {
	return s.record(tableID), nil
}

func (s *countingStore) UpdateRecord(_ context.Context, tableID, _ string, _ map[string]any) (*gridstore.Record, error) {
	return s.record(tableID), nil
}

func (s *countingStore) UpsertRecord(_ context.Context, tableID string, _ map[string]any, _ string) (*gridstore.Record, error) {
	return s.record(tableID), nil
}

func newWebhookTestApp(t *testing.T) (*fiber.App, *countingStore) {
	t.Helper()
	store := newCountingStore()
	router, err := mirror.NewRouter(mirror.NewUpserter(store, nil), nil, mirror.Tables{
		Events:           "tblEvents",
		Charges:          "tblCharges",
		PaymentIntents:   "tblPaymentIntents",
		CheckoutSessions: "tblSessions",
		Customers:        "tblCustomers",
		Payouts:          "tblPayouts",
	})
	assert.NoError(t, err)
	InitializeWebhookController(router, nil, testWebhookSecret, false)

	app := fiber.New()
	app.Post("/webhook/stripe", HandleStripeWebhook)
	return app, store
}

func signedRequest(payload, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return req
}

func signPayload(payload string) string {
	ts := time.Now().Unix()
	sig := mirror.ComputeSignature(ts, []byte(payload), testWebhookSecret)
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + sig
}

const webhookChargePayload = `{
	"id": "evt_1",
	"type": "charge.succeeded",
	"data": {"object": {
		"id": "ch_1",
		"object": "charge",
		"status": "succeeded",
		"amount": 2000,
		"currency": "eur"
	}}
}`

func TestWebhookRejectsMissingSignature(t *testing.T) {
	app, store := newWebhookTestApp(t)

	resp, err := app.Test(signedRequest(webhookChargePayload, ""))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, store.total(), "nothing written for an unsigned delivery")
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app, store := newWebhookTestApp(t)

	header := "t=" + strconv.FormatInt(time.Now().Unix(), 10) + ",v1=" + mirror.ComputeSignature(time.Now().Unix(), []byte("other body"), testWebhookSecret)
	resp, err := app.Test(signedRequest(webhookChargePayload, header))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Invalid signature", string(body))
	assert.Equal(t, 0, store.total())
}

func TestWebhookRejectsUnparseablePayload(t *testing.T) {
	app, store := newWebhookTestApp(t)

	payload := `{"type": "charge.succeeded"}` // no event id
	resp, err := app.Test(signedRequest(payload, signPayload(payload)))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, store.total())
}

func TestWebhookProcessesChargeEvent(t *testing.T) {
	app, store := newWebhookTestApp(t)

	resp, err := app.Test(signedRequest(webhookChargePayload, signPayload(webhookChargePayload)))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, store.count("tblEvents"))
	assert.Equal(t, 1, store.count("tblCharges"))
}

func TestWebhookAcceptsUnmatchedType(t *testing.T) {
	app, store := newWebhookTestApp(t)

	payload := `{"id": "evt_2", "type": "invoice.created", "data": {"object": {"id": "in_1", "object": "invoice"}}}`
	resp, err := app.Test(signedRequest(payload, signPayload(payload)))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, store.count("tblEvents"), "audited and acknowledged, no handler table written")
	assert.Equal(t, 1, store.total())
}

func TestWebhookAnswersOKOnHandlerFailure(t *testing.T) {
	app, store := newWebhookTestApp(t)

	// Charge object without an id fails the handler after the audit write.
	payload := `{"id": "evt_3", "type": "charge.succeeded", "data": {"object": {"object": "charge"}}}`
	resp, err := app.Test(signedRequest(payload, signPayload(payload)))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "processing failures never trigger redelivery storms")
	assert.Equal(t, 1, store.count("tblEvents"))
	assert.Equal(t, 0, store.count("tblCharges"))
}
