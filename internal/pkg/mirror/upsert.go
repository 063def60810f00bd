package mirror

import (
	"context"
	"fmt"

	"github.com/gridmirror/gridmirror/internal/pkg/audit"
	"github.com/gridmirror/gridmirror/internal/pkg/gridstore"
)

// Store is the record-store surface the upsert engine needs.
type Store interface {
	FindRecord(ctx context.Context, tableID, fieldName, value string) (*gridstore.Record, error)
	CreateRecord(ctx context.Context, tableID string, fields map[string]any) (*gridstore.Record, error)
	UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (*gridstore.Record, error)
	UpsertRecord(ctx context.Context, tableID string, fields map[string]any, mergeField string) (*gridstore.Record, error)
}

// UpsertMeta identifies the originating entity in audit entries.
type UpsertMeta struct {
	ObjectType string
	ObjectID   string
}

// Upserter guarantees at most one stored record per unique key value,
// creating or patching as needed. The store's native merge-on-key primitive
// is tried first; when it is rejected as unprocessable the engine falls back
// to lookup-and-patch, which is also the recovery path when concurrent
// redeliveries race.
type Upserter struct {
	store Store
	sink  audit.Sink
}

func NewUpserter(store Store, sink audit.Sink) *Upserter {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Upserter{store: store, sink: sink}
}

// Upsert writes fields into tableID keyed on mergeOn and returns the stored
// record id. An empty mergeOn means plain create.
func (u *Upserter) Upsert(ctx context.Context, tableID string, fields map[string]any, mergeOn string, meta UpsertMeta) (string, error) {
	if mergeOn == "" {
		rec, err := u.store.CreateRecord(ctx, tableID, fields)
		if err != nil {
			u.reportFailure(ctx, meta, err)
			return "", err
		}
		return rec.ID, nil
	}

	rec, err := u.store.UpsertRecord(ctx, tableID, fields, mergeOn)
	if err == nil {
		return rec.ID, nil
	}
	if !gridstore.IsUnprocessable(err) {
		u.reportFailure(ctx, meta, err)
		return "", err
	}

	id, err := u.findAndPatch(ctx, tableID, fields, mergeOn, nil)
	if err != nil {
		u.reportFailure(ctx, meta, err)
		return "", err
	}
	return id, nil
}

// UpsertFillEmpty behaves like Upsert but preserves existing non-empty field
// values, filling in only fields that are still empty. Used for the customer
// table, where data arrives from several event sources.
func (u *Upserter) UpsertFillEmpty(ctx context.Context, tableID string, fields map[string]any, mergeOn string, meta UpsertMeta) (string, error) {
	id, err := u.findAndPatch(ctx, tableID, fields, mergeOn, fillEmptyOnly)
	if err != nil {
		u.reportFailure(ctx, meta, err)
		return "", err
	}
	return id, nil
}

// merger filters the new fields against an existing record before patching.
type merger func(existing map[string]any, fields map[string]any) map[string]any

// fillEmptyOnly keeps only field values whose existing counterpart is empty.
func fillEmptyOnly(existing map[string]any, fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for key, value := range fields {
		if isEmptyValue(existing[key]) {
			filtered[key] = value
		}
	}
	return filtered
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

func (u *Upserter) findAndPatch(ctx context.Context, tableID string, fields map[string]any, mergeOn string, merge merger) (string, error) {
	keyValue, _ := fields[mergeOn].(string)
	if keyValue == "" {
		return "", fmt.Errorf("upsert: missing merge key %q", mergeOn)
	}

	existing, err := u.store.FindRecord(ctx, tableID, mergeOn, keyValue)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return u.patch(ctx, tableID, existing, fields, merge)
	}

	created, err := u.store.CreateRecord(ctx, tableID, fields)
	if err == nil {
		return created.ID, nil
	}
	if !gridstore.IsUnprocessable(err) {
		return "", err
	}

	// A concurrent redelivery created the record between lookup and create.
	// Both racers converge on the same stored record here.
	existing, findErr := u.store.FindRecord(ctx, tableID, mergeOn, keyValue)
	if findErr != nil {
		return "", findErr
	}
	if existing == nil {
		return "", err
	}
	return u.patch(ctx, tableID, existing, fields, merge)
}

func (u *Upserter) patch(ctx context.Context, tableID string, existing *gridstore.Record, fields map[string]any, merge merger) (string, error) {
	if merge != nil {
		fields = merge(existing.Fields, fields)
	}
	if len(fields) == 0 {
		return existing.ID, nil
	}
	updated, err := u.store.UpdateRecord(ctx, tableID, existing.ID, fields)
	if err != nil {
		return "", err
	}
	return updated.ID, nil
}

func (u *Upserter) reportFailure(ctx context.Context, meta UpsertMeta, err error) {
	u.sink.Write(ctx, audit.Entry{
		Level:        audit.LevelError,
		Module:       "gridstore",
		Action:       "upsert",
		Status:       "failed",
		Message:      err.Error(),
		ObjectType:   meta.ObjectType,
		ObjectID:     meta.ObjectID,
		ErrorDetails: err.Error(),
	})
}
