package ticket

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/gridmirror/gridmirror/internal/pkg/gridstore"
	"github.com/gridmirror/gridmirror/internal/pkg/mirror"
	"github.com/stretchr/testify/assert"
)

// fakeStore emulates merge-on-key semantics over in-memory tables.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]any
	seq    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]map[string]map[string]any)}
}

func (s *fakeStore) table(tableID string) map[string]map[string]any {
	if s.tables[tableID] == nil {
		s.tables[tableID] = make(map[string]map[string]any)
	}
	return s.tables[tableID]
}

func (s *fakeStore) insert(tableID string, fields map[string]any) string {
	s.seq++
	id := fmt.Sprintf("rec%03d", s.seq)
	merged := make(map[string]any, len(fields))
	for k, v := range fields {
		merged[k] = v
	}
	s.table(tableID)[id] = merged
	return id
}

func (s *fakeStore) count(tableID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table(tableID))
}

func (s *fakeStore) only(t *testing.T, tableID string) (string, map[string]any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.table(tableID)
	assert.Len(t, table, 1)
	for id, fields := range table {
		return id, fields
	}
	return "", nil
}

func (s *fakeStore) FindRecord(_ context.Context, tableID, fieldName, value string) (*gridstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		return nil, nil
	}
	for id, fields := range s.table(tableID) {
		if fields[fieldName] == value {
			return &gridstore.Record{ID: id, Fields: fields}, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateRecord(_ context.Context, tableID string, fields map[string]any) (*gridstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.insert(tableID, fields)
	return &gridstore.Record{ID: id, Fields: s.table(tableID)[id]}, nil
}

func (s *fakeStore) UpdateRecord(_ context.Context, tableID, recordID string, fields map[string]any) (*gridstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.table(tableID)[recordID]
	if !ok {
		return nil, &gridstore.APIError{StatusCode: 404, Message: "record not found"}
	}
	for k, v := range fields {
		existing[k] = v
	}
	return &gridstore.Record{ID: recordID, Fields: existing}, nil
}

func (s *fakeStore) UpsertRecord(_ context.Context, tableID string, fields map[string]any, mergeField string) (*gridstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, _ := fields[mergeField].(string)
	for id, existing := range s.table(tableID) {
		if key != "" && existing[mergeField] == key {
			for k, v := range fields {
				existing[k] = v
			}
			return &gridstore.Record{ID: id, Fields: existing}, nil
		}
	}
	id := s.insert(tableID, fields)
	return &gridstore.Record{ID: id, Fields: s.table(tableID)[id]}, nil
}

type fakeAttachments struct {
	mu       sync.Mutex
	failWith error
	uploads  []attachmentUpload
}

type attachmentUpload struct {
	RecordID    string
	FieldName   string
	Filename    string
	ContentType string
	Size        int
}

func (f *fakeAttachments) UploadAttachment(_ context.Context, recordID, fieldName, filename, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.uploads = append(f.uploads, attachmentUpload{
		RecordID:    recordID,
		FieldName:   fieldName,
		Filename:    filename,
		ContentType: contentType,
		Size:        len(data),
	})
	return nil
}

func ticketTables() Tables {
	return Tables{Tickets: "tblTickets", QRCodes: "tblQRCodes"}
}

func newTestManager(t *testing.T, store *fakeStore, attachments Attachments) *Manager {
	t.Helper()
	m, err := NewManager(mirror.NewUpserter(store, nil), attachments, nil, ticketTables())
	assert.NoError(t, err)
	return m
}

func succeededCharge() *mirror.Charge {
	return &mirror.Charge{
		ID:          "ch_1",
		Status:      "succeeded",
		Amount:      4500,
		Currency:    "eur",
		Description: "Jantar de Gala",
		BillingDetails: &mirror.ContactDetails{
			Name:  "Ana Silva",
			Email: "ana@example.com",
		},
	}
}

func TestQRCodeData(t *testing.T) {
	assert.Equal(t, "TICKET:t-1:ana@example.com", QRCodeData("t-1", "ana@example.com"))
	assert.Equal(t, "TICKET:t-1:N/A", QRCodeData("t-1", ""))
}

func TestParseQRCodeData(t *testing.T) {
	tests := []struct {
		data    string
		want    string
		wantErr bool
	}{
		{"TICKET:t-1:ana@example.com", "t-1", false},
		{"TICKET:t-1", "t-1", false},
		{"TICKET::ana@example.com", "", true},
		{"BADGE:t-1:ana@example.com", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseQRCodeData(tt.data)
		if tt.wantErr {
			assert.Error(t, err, tt.data)
			continue
		}
		assert.NoError(t, err, tt.data)
		assert.Equal(t, tt.want, got, tt.data)
	}
}

func TestNewManagerRequiresTables(t *testing.T) {
	_, err := NewManager(mirror.NewUpserter(newFakeStore(), nil), nil, nil, Tables{Tickets: "tblTickets"})
	assert.Error(t, err)
}

func TestRenderPDF(t *testing.T) {
	pdf, err := RenderPDF(Info{
		TicketID:      "t-1",
		CustomerName:  "Ana Silva",
		CustomerEmail: "ana@example.com",
		TicketType:    "Event Ticket",
		Quantity:      1,
		Price:         45.00,
		Currency:      "EUR",
	}, "TICKET:t-1:ana@example.com")
	assert.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")), "output is a pdf document")
}

func TestInfoFromChargeDefaults(t *testing.T) {
	info := infoFromCharge(&mirror.Charge{ID: "ch_1", Amount: 4500}, "t-1")
	assert.Equal(t, "Guest", info.CustomerName)
	assert.Equal(t, "Event Ticket", info.TicketType)
	assert.Equal(t, "EUR", info.Currency)
	assert.Equal(t, 45.00, info.Price)
	assert.Equal(t, 1, info.Quantity)
}

func TestIssueForCharge(t *testing.T) {
	store := newFakeStore()
	attachments := &fakeAttachments{}
	m := newTestManager(t, store, attachments)

	m.IssueForCharge(context.Background(), succeededCharge())

	_, qr := store.only(t, "tblQRCodes")
	assert.Equal(t, "active", qr["status"])
	data, _ := qr["data"].(string)
	ticketID, err := ParseQRCodeData(data)
	assert.NoError(t, err)

	recordID, tk := store.only(t, "tblTickets")
	assert.Equal(t, ticketID, tk["ticket_id"])
	assert.Equal(t, "ch_1", tk["charge_id"])
	assert.Equal(t, "ana@example.com", tk["customer_email"])
	assert.Equal(t, "Jantar de Gala", tk["ticket_type"])
	assert.Equal(t, 45.00, tk["price"])
	assert.Equal(t, "generated", tk["status"])

	assert.Len(t, attachments.uploads, 1)
	upload := attachments.uploads[0]
	assert.Equal(t, recordID, upload.RecordID)
	assert.Equal(t, "pdf", upload.FieldName)
	assert.Equal(t, "application/pdf", upload.ContentType)
	assert.Greater(t, upload.Size, 0)
}

func TestIssueForChargeReuseOnRedelivery(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, &fakeAttachments{})
	ctx := context.Background()

	m.IssueForCharge(ctx, succeededCharge())
	m.IssueForCharge(ctx, succeededCharge())

	assert.Equal(t, 1, store.count("tblTickets"), "redelivered charge merges on charge_id")
	assert.Equal(t, 2, store.count("tblQRCodes"))
}

func TestIssueForChargeUploadFailureIsSoft(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, &fakeAttachments{failWith: fmt.Errorf("content endpoint down")})

	m.IssueForCharge(context.Background(), succeededCharge())

	assert.Equal(t, 1, store.count("tblTickets"), "ticket record survives the failed upload")
}

func TestIssueForChargeWithoutAttachments(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, nil)

	m.IssueForCharge(context.Background(), succeededCharge())
	assert.Equal(t, 1, store.count("tblTickets"))
}

func TestMarkValidated(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, nil)
	ctx := context.Background()

	m.IssueForCharge(ctx, succeededCharge())
	_, tk := store.only(t, "tblTickets")
	ticketID, _ := tk["ticket_id"].(string)

	assert.NoError(t, m.MarkValidated(ctx, ticketID, "door-staff"))

	_, tk = store.only(t, "tblTickets")
	assert.Equal(t, "validated", tk["status"])
	assert.Equal(t, "door-staff", tk["validated_by"])
	assert.NotEmpty(t, tk["validated_at"])
	assert.Equal(t, "ch_1", tk["charge_id"], "validation merges into the existing record")
}

func TestMarkValidatedDefaultsValidator(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, nil)

	assert.NoError(t, m.MarkValidated(context.Background(), "t-1", ""))
	_, tk := store.only(t, "tblTickets")
	assert.Equal(t, "system", tk["validated_by"])
}
