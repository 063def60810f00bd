package mirror

import (
	"strconv"
	"strings"
	"time"
)

// formatTimestamp converts provider epoch seconds to an RFC3339 UTC string.
// Zero or negative timestamps normalize to empty.
func formatTimestamp(sec int64) string {
	if sec <= 0 {
		return ""
	}
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// majorUnits converts a minor-unit integer amount to major currency units.
func majorUnits(minor int64) float64 {
	return float64(minor) / 100
}

func upperCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// formatAddress joins the non-empty address components with a fixed
// separator.
func formatAddress(a *Address) string {
	if a == nil {
		return ""
	}
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.PostalCode, a.State, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// contactField resolves a contact attribute by precedence: billing details,
// then customer details, then the top-level field. First present value wins.
func contactField(billing, details *ContactDetails, pick func(*ContactDetails) string, topLevel string) string {
	if billing != nil {
		if v := pick(billing); v != "" {
			return v
		}
	}
	if details != nil {
		if v := pick(details); v != "" {
			return v
		}
	}
	return topLevel
}

func contactEmail(billing, details *ContactDetails, topLevel string) string {
	return contactField(billing, details, func(c *ContactDetails) string { return c.Email }, topLevel)
}

func contactName(billing, details *ContactDetails, topLevel string) string {
	return contactField(billing, details, func(c *ContactDetails) string { return c.Name }, topLevel)
}

func contactPhone(billing, details *ContactDetails, topLevel string) string {
	return contactField(billing, details, func(c *ContactDetails) string { return c.Phone }, topLevel)
}

func contactAddress(billing, details *ContactDetails, topLevel *Address) string {
	if billing != nil && billing.Address != nil {
		return formatAddress(billing.Address)
	}
	if details != nil && details.Address != nil {
		return formatAddress(details.Address)
	}
	return formatAddress(topLevel)
}

// chargeContact extracts the derived customer identity from a charge.
func chargeContact(ch *Charge) Contact {
	c := Contact{
		CustomerID: ch.Customer,
		Name:       contactName(ch.BillingDetails, nil, ""),
		Email:      contactEmail(ch.BillingDetails, nil, ""),
		Phone:      contactPhone(ch.BillingDetails, nil, ""),
		Address:    contactAddress(ch.BillingDetails, nil, nil),
	}
	if c.CustomerID == "" {
		c.CustomerID = c.Email
	}
	return c
}

// sessionContact extracts the derived customer identity from a checkout
// session.
func sessionContact(cs *CheckoutSession) Contact {
	c := Contact{
		CustomerID: cs.Customer,
		Name:       contactName(nil, cs.CustomerDetails, ""),
		Email:      contactEmail(nil, cs.CustomerDetails, ""),
		Phone:      contactPhone(nil, cs.CustomerDetails, ""),
		Address:    contactAddress(nil, cs.CustomerDetails, nil),
	}
	if c.CustomerID == "" {
		c.CustomerID = c.Email
	}
	return c
}

// customerContact extracts the identity from a top-level customer object.
func customerContact(cu *CustomerObject) Contact {
	c := Contact{
		CustomerID: cu.ID,
		Name:       cu.Name,
		Email:      cu.Email,
		Phone:      cu.Phone,
		Address:    formatAddress(cu.Address),
	}
	if c.CustomerID == "" {
		c.CustomerID = c.Email
	}
	return c
}

func setString(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

func setAmount(fields map[string]any, key string, minor int64) {
	if minor != 0 {
		fields[key] = majorUnits(minor)
	}
}

// eventFields builds the audit-table mapping for the envelope itself.
func eventFields(e *Event) map[string]any {
	fields := map[string]any{
		"event_id":         e.ID,
		"type":             e.Type,
		"livemode":         e.Livemode,
		"pending_webhooks": e.PendingWebhooks,
		"payload_json":     e.RawJSON(),
	}
	setString(fields, "api_version", e.APIVersion)
	setString(fields, "account", e.Account)
	setString(fields, "created_at", formatTimestamp(e.Created))
	if e.Request != nil {
		setString(fields, "request_id", e.Request.ID)
		setString(fields, "idempotency_key", e.Request.IdempotencyKey)
	}

	objID, objType := e.ObjectInfo()
	setString(fields, "data_object_id", objID)
	setString(fields, "data_object_type", objType)
	return fields
}

func chargeFields(ch *Charge) map[string]any {
	fields := map[string]any{
		"charge_id": ch.ID,
		"livemode":  ch.Livemode,
	}
	setString(fields, "created_at", formatTimestamp(ch.Created))
	setString(fields, "status", ch.Status)
	setAmount(fields, "amount", ch.Amount)
	setString(fields, "currency", upperCurrency(ch.Currency))
	setString(fields, "customer_id", ch.Customer)
	setString(fields, "customer_email", contactEmail(ch.BillingDetails, nil, ""))
	setString(fields, "billing_name", contactName(ch.BillingDetails, nil, ""))
	setString(fields, "billing_phone", contactPhone(ch.BillingDetails, nil, ""))
	setString(fields, "billing_address", contactAddress(ch.BillingDetails, nil, nil))
	setString(fields, "description", ch.Description)
	setString(fields, "statement_descriptor", ch.StatementDescriptor)
	setString(fields, "calculated_statement_descriptor", ch.CalculatedStatementDescriptor)
	setString(fields, "invoice_id", ch.Invoice)
	setString(fields, "payment_intent_id", ch.PaymentIntent)
	setString(fields, "receipt_url", ch.ReceiptURL)
	return fields
}

func paymentIntentFields(pi *PaymentIntent) map[string]any {
	fields := map[string]any{
		"payment_intent_id": pi.ID,
		"livemode":          pi.Livemode,
	}
	setString(fields, "created_at", formatTimestamp(pi.Created))
	setString(fields, "status", pi.Status)
	setAmount(fields, "amount", pi.Amount)
	setString(fields, "currency", upperCurrency(pi.Currency))
	setString(fields, "customer_id", pi.Customer)
	if len(pi.Charges.Data) > 0 {
		first := pi.Charges.Data[0]
		setString(fields, "charge_id", first.ID)
		setString(fields, "receipt_url", first.ReceiptURL)
	}
	return fields
}

func sessionFields(cs *CheckoutSession) map[string]any {
	fields := map[string]any{
		"session_id": cs.ID,
		"livemode":   cs.Livemode,
	}
	setString(fields, "created_at", formatTimestamp(cs.Created))
	setString(fields, "status", cs.Status)
	setString(fields, "mode", cs.Mode)
	setAmount(fields, "amount_total", cs.AmountTotal)
	setString(fields, "currency", upperCurrency(cs.Currency))
	setString(fields, "customer_id", sessionContact(cs).CustomerID)
	setString(fields, "customer_email", contactEmail(nil, cs.CustomerDetails, ""))
	setString(fields, "payment_intent_id", cs.PaymentIntent)
	setString(fields, "client_reference_id", cs.ClientReferenceID)
	return fields
}

func customerFields(c Contact) map[string]any {
	fields := map[string]any{
		"customer_id": c.CustomerID,
	}
	setString(fields, "name", c.Name)
	setString(fields, "email", c.Email)
	setString(fields, "phone", c.Phone)
	setString(fields, "address", c.Address)
	return fields
}

func payoutFields(p *Payout) map[string]any {
	fields := map[string]any{
		"payout_id": p.ID,
	}
	setString(fields, "status", p.Status)
	setString(fields, "currency", upperCurrency(p.Currency))
	setString(fields, "created_at", formatTimestamp(p.Created))
	setString(fields, "arrival_date", formatTimestamp(p.ArrivalDate))
	setAmount(fields, "amount", p.Amount)
	return fields
}

// manualPaymentFields builds the human-facing payments row derived from a
// charge. The notes column carries the charge id and doubles as merge key.
func manualPaymentFields(ch *Charge) map[string]any {
	fields := map[string]any{}
	name := contactName(ch.BillingDetails, nil, "")
	setString(fields, "Name", name)
	setString(fields, "Convidado", name)
	setAmount(fields, "Valor Pago", ch.Amount)
	if ch.PaymentMethodDetails != nil {
		setString(fields, "Metodo de Pagamento", ch.PaymentMethodDetails.Type)
	}
	setString(fields, "Data do Pagamento", formatTimestamp(ch.Created))
	setString(fields, "Status do Pagamento", ch.Status)
	if ch.ID != "" {
		fields["Observacoes"] = "Stripe charge_id: " + ch.ID
	}
	if qty, ok := ch.Metadata["quantity"]; ok && qty != "" {
		if n, err := strconv.Atoi(qty); err == nil {
			fields["Quantidade"] = n
		}
	}
	setString(fields, "Email", contactEmail(ch.BillingDetails, nil, ""))
	setString(fields, "Phone", contactPhone(ch.BillingDetails, nil, ""))
	return fields
}
