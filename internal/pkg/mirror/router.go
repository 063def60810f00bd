package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gridmirror/gridmirror/internal/pkg/audit"
	"github.com/gridmirror/gridmirror/internal/pkg/env"
)

// Tables holds the record-store table identifiers the router writes to.
// It is injected at construction; nothing reads ambient table configuration.
type Tables struct {
	Events           string `validate:"required"`
	Charges          string `validate:"required"`
	PaymentIntents   string `validate:"required"`
	CheckoutSessions string `validate:"required"`
	Customers        string `validate:"required"`
	Payouts          string `validate:"required"`

	// ManualPayments is optional; the human-facing payments mirror is only
	// written when a table is configured.
	ManualPayments string
}

// TablesFromEnv reads the table identifiers from the environment.
func TablesFromEnv() Tables {
	return Tables{
		Events:           env.GetEnv("GRID_TABLE_EVENTS", ""),
		Charges:          env.GetEnv("GRID_TABLE_CHARGES", ""),
		PaymentIntents:   env.GetEnv("GRID_TABLE_PAYMENT_INTENTS", ""),
		CheckoutSessions: env.GetEnv("GRID_TABLE_CHECKOUT_SESSIONS", ""),
		Customers:        env.GetEnv("GRID_TABLE_CUSTOMERS", ""),
		Payouts:          env.GetEnv("GRID_TABLE_PAYOUTS", ""),
		ManualPayments:   env.GetEnv("GRID_TABLE_MANUAL_PAYMENTS", ""),
	}
}

var validate = validator.New()

// TicketIssuer derives ticket records from successful charges. Optional.
type TicketIssuer interface {
	IssueForCharge(ctx context.Context, ch *Charge)
}

// Router classifies events by type prefix and dispatches them to the handler
// that populates the dependent tables. The audit-table write always precedes
// the domain-table writes.
type Router struct {
	upserter *Upserter
	sink     audit.Sink
	tables   Tables
	tickets  TicketIssuer
}

func NewRouter(upserter *Upserter, sink audit.Sink, tables Tables) (*Router, error) {
	if err := validate.Struct(tables); err != nil {
		return nil, fmt.Errorf("mirror: incomplete table configuration: %w", err)
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Router{upserter: upserter, sink: sink, tables: tables}, nil
}

// SetTicketIssuer enables derived ticket generation for successful charges.
func (r *Router) SetTicketIssuer(t TicketIssuer) {
	r.tickets = t
}

// Route records the event into the audit table and dispatches it by type
// prefix. Unmatched types are accepted with no handler invoked.
func (r *Router) Route(ctx context.Context, event *Event) error {
	if _, err := r.upserter.Upsert(ctx, r.tables.Events, eventFields(event), "event_id", UpsertMeta{
		ObjectType: "stripe_event",
		ObjectID:   event.ID,
	}); err != nil {
		return fmt.Errorf("record event %s: %w", event.ID, err)
	}

	switch {
	case strings.HasPrefix(event.Type, "charge."):
		return r.handleCharge(ctx, event.Data.Object)
	case strings.HasPrefix(event.Type, "payment_intent."):
		return r.handlePaymentIntent(ctx, event.Data.Object)
	case strings.HasPrefix(event.Type, "checkout.session."):
		return r.handleCheckoutSession(ctx, event.Data.Object)
	case strings.HasPrefix(event.Type, "customer."):
		return r.handleCustomer(ctx, event.Data.Object)
	case strings.HasPrefix(event.Type, "payout."):
		return r.handlePayout(ctx, event.Data.Object)
	}
	return nil
}

func (r *Router) handleCharge(ctx context.Context, raw json.RawMessage) error {
	var ch Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return fmt.Errorf("parse charge object: %w", err)
	}
	if ch.ID == "" {
		return fmt.Errorf("charge object missing id")
	}

	if _, err := r.upserter.Upsert(ctx, r.tables.Charges, chargeFields(&ch), "charge_id", UpsertMeta{
		ObjectType: "charge",
		ObjectID:   ch.ID,
	}); err != nil {
		return err
	}

	r.upsertCustomer(ctx, chargeContact(&ch))
	r.upsertManualPayment(ctx, &ch)

	if r.tickets != nil && ch.Status == "succeeded" {
		r.tickets.IssueForCharge(ctx, &ch)
	}
	return nil
}

func (r *Router) handlePaymentIntent(ctx context.Context, raw json.RawMessage) error {
	var pi PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return fmt.Errorf("parse payment_intent object: %w", err)
	}
	if pi.ID == "" {
		return fmt.Errorf("payment_intent object missing id")
	}

	_, err := r.upserter.Upsert(ctx, r.tables.PaymentIntents, paymentIntentFields(&pi), "payment_intent_id", UpsertMeta{
		ObjectType: "payment_intent",
		ObjectID:   pi.ID,
	})
	return err
}

func (r *Router) handleCheckoutSession(ctx context.Context, raw json.RawMessage) error {
	var cs CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return fmt.Errorf("parse checkout.session object: %w", err)
	}
	if cs.ID == "" {
		return fmt.Errorf("checkout.session object missing id")
	}

	if _, err := r.upserter.Upsert(ctx, r.tables.CheckoutSessions, sessionFields(&cs), "session_id", UpsertMeta{
		ObjectType: "checkout_session",
		ObjectID:   cs.ID,
	}); err != nil {
		return err
	}

	r.upsertCustomer(ctx, sessionContact(&cs))
	return nil
}

func (r *Router) handleCustomer(ctx context.Context, raw json.RawMessage) error {
	var cu CustomerObject
	if err := json.Unmarshal(raw, &cu); err != nil {
		return fmt.Errorf("parse customer object: %w", err)
	}
	r.upsertCustomer(ctx, customerContact(&cu))
	return nil
}

func (r *Router) handlePayout(ctx context.Context, raw json.RawMessage) error {
	var p Payout
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("parse payout object: %w", err)
	}
	if p.ID == "" {
		return fmt.Errorf("payout object missing id")
	}

	_, err := r.upserter.Upsert(ctx, r.tables.Payouts, payoutFields(&p), "payout_id", UpsertMeta{
		ObjectType: "payout",
		ObjectID:   p.ID,
	})
	return err
}

// upsertCustomer writes the derived customer record. A customer without any
// usable key is skipped; write failures are soft and stay visible only via
// the audit sink, which the engine already feeds.
func (r *Router) upsertCustomer(ctx context.Context, c Contact) {
	if c.CustomerID == "" {
		return
	}
	_, _ = r.upserter.UpsertFillEmpty(ctx, r.tables.Customers, customerFields(c), "customer_id", UpsertMeta{
		ObjectType: "customer",
		ObjectID:   c.CustomerID,
	})
}

func (r *Router) upsertManualPayment(ctx context.Context, ch *Charge) {
	if r.tables.ManualPayments == "" {
		return
	}
	fields := manualPaymentFields(ch)
	notes, _ := fields["Observacoes"].(string)
	if notes == "" {
		return
	}
	_, _ = r.upserter.Upsert(ctx, r.tables.ManualPayments, fields, "Observacoes", UpsertMeta{
		ObjectType: "pagamento_manual",
		ObjectID:   notes,
	})
}
