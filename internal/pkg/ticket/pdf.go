package ticket

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/gridmirror/gridmirror/internal/pkg/mirror"
	qrcode "github.com/skip2/go-qrcode"
)

// Info carries the ticket attributes printed onto the PDF.
type Info struct {
	TicketID      string
	CustomerName  string
	CustomerEmail string
	TicketType    string
	Quantity      int
	Price         float64
	Currency      string
}

func infoFromCharge(ch *mirror.Charge, ticketID string) Info {
	info := Info{
		TicketID:      ticketID,
		CustomerName:  "Guest",
		CustomerEmail: "",
		TicketType:    ch.Description,
		Quantity:      1,
		Price:         float64(ch.Amount) / 100,
		Currency:      strings.ToUpper(ch.Currency),
	}
	if ch.BillingDetails != nil {
		if ch.BillingDetails.Name != "" {
			info.CustomerName = ch.BillingDetails.Name
		}
		info.CustomerEmail = ch.BillingDetails.Email
	}
	if info.TicketType == "" {
		info.TicketType = "Event Ticket"
	}
	if info.Currency == "" {
		info.Currency = "EUR"
	}
	return info
}

// RenderPDF renders an A4 ticket with the QR code embedded.
func RenderPDF(info Info, qrData string) ([]byte, error) {
	png, err := qrcode.Encode(qrData, qrcode.High, 256)
	if err != nil {
		return nil, fmt.Errorf("ticket: qr encode: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, info.TicketType, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.Ln(4)
	pdf.CellFormat(0, 8, "Name: "+info.CustomerName, "", 1, "L", false, 0, "")
	email := info.CustomerEmail
	if email == "" {
		email = "N/A"
	}
	pdf.CellFormat(0, 8, "Email: "+email, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Quantity: %d", info.Quantity), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Price: %.2f %s", info.Price, info.Currency), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, "Issued: "+time.Now().UTC().Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("qr", 75, 90, 60, 60, false, opts, 0, "")

	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetY(155)
	pdf.CellFormat(0, 6, "Ticket ID: "+info.TicketID, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("ticket: pdf output: %w", err)
	}
	return buf.Bytes(), nil
}
