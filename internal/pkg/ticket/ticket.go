// Package ticket derives event tickets from successful charges: a QR code
// record, a ticket record merged on the charge id, and a rendered PDF
// attached to the ticket record.
package ticket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gridmirror/gridmirror/internal/pkg/audit"
	"github.com/gridmirror/gridmirror/internal/pkg/env"
	"github.com/gridmirror/gridmirror/internal/pkg/mirror"
)

const qrDataPrefix = "TICKET:"

// attachmentField is the ticket table column holding the rendered PDF.
const attachmentField = "pdf"

// Tables holds the ticket-related table identifiers.
type Tables struct {
	Tickets string `validate:"required"`
	QRCodes string `validate:"required"`
}

func TablesFromEnv() Tables {
	return Tables{
		Tickets: env.GetEnv("GRID_TABLE_TICKETS", ""),
		QRCodes: env.GetEnv("GRID_TABLE_QRCODES", ""),
	}
}

// Attachments uploads files into a record's attachment field.
type Attachments interface {
	UploadAttachment(ctx context.Context, recordID, fieldName, filename, contentType string, data []byte) error
}

var validate = validator.New()

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Manager issues and validates tickets. Every failure after the charge has
// been mirrored is soft: logged to the audit sink, never propagated.
type Manager struct {
	upserter    *mirror.Upserter
	attachments Attachments
	sink        audit.Sink
	tables      Tables
	now         func() string
}

func NewManager(upserter *mirror.Upserter, attachments Attachments, sink audit.Sink, tables Tables) (*Manager, error) {
	if err := validate.Struct(tables); err != nil {
		return nil, fmt.Errorf("ticket: incomplete table configuration: %w", err)
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Manager{
		upserter:    upserter,
		attachments: attachments,
		sink:        sink,
		tables:      tables,
		now:         nowRFC3339,
	}, nil
}

// QRCodeData builds the QR payload for a ticket.
func QRCodeData(ticketID, customerEmail string) string {
	if customerEmail == "" {
		customerEmail = "N/A"
	}
	return qrDataPrefix + ticketID + ":" + customerEmail
}

// ParseQRCodeData extracts the ticket id from a scanned QR payload.
func ParseQRCodeData(data string) (string, error) {
	if !strings.HasPrefix(data, qrDataPrefix) {
		return "", fmt.Errorf("ticket: invalid qr code format")
	}
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return "", fmt.Errorf("ticket: invalid qr code format")
	}
	return parts[1], nil
}

// IssueForCharge creates the QR and ticket records for a charge and attaches
// the rendered PDF. Implements mirror.TicketIssuer.
func (m *Manager) IssueForCharge(ctx context.Context, ch *mirror.Charge) {
	ticketID := uuid.NewString()
	qrcodeID := uuid.NewString()

	info := infoFromCharge(ch, ticketID)
	qrData := QRCodeData(ticketID, info.CustomerEmail)

	if _, err := m.upserter.Upsert(ctx, m.tables.QRCodes, map[string]any{
		"qrcode_id":  qrcodeID,
		"ticket_id":  ticketID,
		"data":       qrData,
		"created_at": m.now(),
		"status":     "active",
	}, "qrcode_id", mirror.UpsertMeta{ObjectType: "qrcode", ObjectID: qrcodeID}); err != nil {
		m.warn(ctx, ch.ID, "qr code record failed", err)
		return
	}

	// Merge on charge_id so redelivered charge events reuse the ticket.
	recordID, err := m.upserter.Upsert(ctx, m.tables.Tickets, map[string]any{
		"ticket_id":      ticketID,
		"qrcode_id":      qrcodeID,
		"charge_id":      ch.ID,
		"customer_email": info.CustomerEmail,
		"customer_name":  info.CustomerName,
		"ticket_type":    info.TicketType,
		"quantity":       info.Quantity,
		"price":          info.Price,
		"currency":       info.Currency,
		"created_at":     m.now(),
		"status":         "generated",
	}, "charge_id", mirror.UpsertMeta{ObjectType: "ticket", ObjectID: ticketID})
	if err != nil {
		m.warn(ctx, ch.ID, "ticket record failed", err)
		return
	}

	pdf, err := RenderPDF(info, qrData)
	if err != nil {
		m.warn(ctx, ticketID, "pdf rendering failed", err)
		return
	}
	if m.attachments == nil {
		return
	}
	filename := "ticket_" + ticketID + ".pdf"
	if err := m.attachments.UploadAttachment(ctx, recordID, attachmentField, filename, "application/pdf", pdf); err != nil {
		m.warn(ctx, ticketID, "pdf attachment upload failed", err)
		return
	}

	m.sink.Write(ctx, audit.Entry{
		Module:     "ticket",
		Action:     "issue_ticket",
		Message:    fmt.Sprintf("PDF size: %d bytes", len(pdf)),
		ObjectType: "ticket",
		ObjectID:   ticketID,
	})
}

// MarkValidated marks a ticket as validated at the door.
func (m *Manager) MarkValidated(ctx context.Context, ticketID, validatedBy string) error {
	if validatedBy == "" {
		validatedBy = "system"
	}
	_, err := m.upserter.Upsert(ctx, m.tables.Tickets, map[string]any{
		"ticket_id":    ticketID,
		"validated_at": m.now(),
		"validated_by": validatedBy,
		"status":       "validated",
	}, "ticket_id", mirror.UpsertMeta{ObjectType: "ticket", ObjectID: ticketID})
	if err != nil {
		return err
	}
	m.sink.Write(ctx, audit.Entry{
		Module:     "ticket",
		Action:     "validate_ticket",
		UserID:     validatedBy,
		ObjectType: "ticket",
		ObjectID:   ticketID,
	})
	return nil
}

func (m *Manager) warn(ctx context.Context, objectID, message string, err error) {
	m.sink.Write(ctx, audit.Entry{
		Level:        audit.LevelWarning,
		Module:       "ticket",
		Action:       "issue_ticket",
		Status:       "warning",
		Message:      message,
		ObjectType:   "ticket",
		ObjectID:     objectID,
		ErrorDetails: err.Error(),
	})
}
