// Package mirror implements the webhook-to-record reconciliation pipeline:
// event classification, payload normalization, and idempotent upserts into
// the record store tables.
package mirror

import (
	"encoding/json"
	"errors"
	"strings"
)

// Event is the parsed webhook envelope.
type Event struct {
	ID              string        `json:"id"`
	Type            string        `json:"type"`
	APIVersion      string        `json:"api_version"`
	Account         string        `json:"account"`
	Created         int64         `json:"created"`
	Livemode        bool          `json:"livemode"`
	PendingWebhooks int           `json:"pending_webhooks"`
	Request         *EventRequest `json:"request"`
	Data            EventData     `json:"data"`

	raw []byte
}

type EventRequest struct {
	ID             string `json:"id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type EventData struct {
	Object json.RawMessage `json:"object"`
}

// ParseEvent parses a verified webhook body into an Event, keeping the raw
// payload for the audit table.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, errors.New("event payload missing id")
	}
	if strings.TrimSpace(event.Type) == "" {
		return nil, errors.New("event payload missing type")
	}
	event.raw = append([]byte(nil), payload...)
	return &event, nil
}

// RawJSON returns the original payload the event was parsed from.
func (e *Event) RawJSON() string {
	return string(e.raw)
}

// ObjectInfo peeks at the nested data object's id and object type without
// committing to a shape.
func (e *Event) ObjectInfo() (id, objectType string) {
	var obj struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	if len(e.Data.Object) > 0 && json.Unmarshal(e.Data.Object, &obj) == nil {
		return obj.ID, obj.Object
	}
	return "", ""
}

// Address is a nested postal address on billing or customer details.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
	Country    string `json:"country"`
}

// ContactDetails is the billing_details / customer_details sub-object shared
// by charges and checkout sessions.
type ContactDetails struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Address *Address `json:"address"`
}

type PaymentMethodDetails struct {
	Type string `json:"type"`
}

// Charge is the provider charge object.
type Charge struct {
	ID                            string                `json:"id"`
	Object                        string                `json:"object"`
	Created                       int64                 `json:"created"`
	Status                        string                `json:"status"`
	Amount                        int64                 `json:"amount"`
	Currency                      string                `json:"currency"`
	Customer                      string                `json:"customer"`
	BillingDetails                *ContactDetails       `json:"billing_details"`
	Description                   string                `json:"description"`
	StatementDescriptor           string                `json:"statement_descriptor"`
	CalculatedStatementDescriptor string                `json:"calculated_statement_descriptor"`
	Invoice                       string                `json:"invoice"`
	PaymentIntent                 string                `json:"payment_intent"`
	ReceiptURL                    string                `json:"receipt_url"`
	PaymentMethodDetails          *PaymentMethodDetails `json:"payment_method_details"`
	Metadata                      map[string]string     `json:"metadata"`
	Livemode                      bool                  `json:"livemode"`
}

// PaymentIntent is the provider payment_intent object. The linked charge and
// receipt URL come from the first nested charge when present.
type PaymentIntent struct {
	ID       string     `json:"id"`
	Created  int64      `json:"created"`
	Status   string     `json:"status"`
	Amount   int64      `json:"amount"`
	Currency string     `json:"currency"`
	Customer string     `json:"customer"`
	Charges  ChargeList `json:"charges"`
	Livemode bool       `json:"livemode"`
}

type ChargeList struct {
	Data []Charge `json:"data"`
}

// CheckoutSession is the provider checkout.session object.
type CheckoutSession struct {
	ID                string          `json:"id"`
	Created           int64           `json:"created"`
	Status            string          `json:"status"`
	Mode              string          `json:"mode"`
	AmountTotal       int64           `json:"amount_total"`
	Currency          string          `json:"currency"`
	Customer          string          `json:"customer"`
	CustomerDetails   *ContactDetails `json:"customer_details"`
	PaymentIntent     string          `json:"payment_intent"`
	ClientReferenceID string          `json:"client_reference_id"`
	Livemode          bool            `json:"livemode"`
}

// CustomerObject is the provider customer object from customer.* events.
type CustomerObject struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Address *Address `json:"address"`
}

// Payout is the provider payout object.
type Payout struct {
	ID          string `json:"id"`
	Created     int64  `json:"created"`
	ArrivalDate int64  `json:"arrival_date"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// Contact is the normalized customer identity derived from an event object.
// CustomerID falls back to the email address when the provider did not link
// an explicit customer.
type Contact struct {
	CustomerID string
	Name       string
	Email      string
	Phone      string
	Address    string
}
