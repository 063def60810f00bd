// Package audit writes append-only processing outcomes into a logs table in
// the record store. Entries are never read back by this service and a failed
// write never fails the caller.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gridmirror/gridmirror/internal/pkg/gridstore"
)

const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
	LevelDebug   = "DEBUG"
)

// Entry is a single audit record. Empty fields are omitted from the stored
// record; Level, Module, Action and Status get defaults when unset.
type Entry struct {
	Level        string
	Module       string
	Action       string
	Status       string
	Message      string
	UserID       string
	ObjectType   string
	ObjectID     string
	ErrorDetails string
}

// Sink is the audit-log capability handed to every component that reports
// processing outcomes.
type Sink interface {
	Write(ctx context.Context, e Entry)
}

type storeSink struct {
	client  *gridstore.Client
	tableID string
}

// NewStoreSink creates a sink writing entries into the given logs table.
func NewStoreSink(client *gridstore.Client, tableID string) Sink {
	return &storeSink{client: client, tableID: tableID}
}

func (s *storeSink) Write(ctx context.Context, e Entry) {
	if e.Level == "" {
		e.Level = LevelInfo
	}
	if e.Module == "" {
		e.Module = "webhook"
	}
	if e.Action == "" {
		e.Action = "process"
	}
	if e.Status == "" {
		e.Status = "success"
	}

	fields := map[string]any{
		"log_id":    uuid.NewString(),
		"level":     e.Level,
		"module":    e.Module,
		"action":    e.Action,
		"status":    e.Status,
		"message":   e.Message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if e.UserID != "" {
		fields["user_id"] = e.UserID
	}
	if e.ObjectType != "" {
		fields["object_type"] = e.ObjectType
	}
	if e.ObjectID != "" {
		fields["object_id"] = e.ObjectID
	}
	if e.ErrorDetails != "" {
		fields["error_details"] = e.ErrorDetails
	}

	if _, err := s.client.CreateRecord(ctx, s.tableID, fields); err != nil {
		log.Printf("audit: log write failed: %v", err)
	}
}

// NopSink discards all entries.
type NopSink struct{}

func (NopSink) Write(context.Context, Entry) {}
