package store

import (
	"context"
	"errors"
)

// Header column names of the reminder sheet. Fields are always resolved by
// header name, never by position.
const (
	ColID          = "id"
	ColMessage     = "message"
	ColScheduledAt = "scheduledAt"
	ColRecipientID = "recipientId"
	ColStatus      = "status"
	ColCreatedAt   = "createdAt"
)

// Columns is the canonical header layout written when a sheet is empty.
var Columns = []string{ColID, ColMessage, ColScheduledAt, ColRecipientID, ColStatus, ColCreatedAt}

// Status tokens stored in the status column. The only legal transition is
// StatusPending -> StatusSent.
const (
	StatusPending = "未送信"
	StatusSent    = "送信済み"
)

var (
	// ErrRowNotFound is returned when an UpdateCell target no longer resolves to a row.
	ErrRowNotFound = errors.New("row not found")
	// ErrUnknownField is returned when a field name is not part of the header layout.
	ErrUnknownField = errors.New("unknown field")
)

// Record is one reminder reservation as persisted. All fields are stored as
// strings because the backing store is a plain tabular sheet.
type Record struct {
	ID          string
	Message     string
	ScheduledAt string // "2006-01-02 15:04" in the configured timezone, empty when no time phrase was found
	RecipientID string
	Status      string
	CreatedAt   string
}

// Fields returns the record keyed by header column name.
func (r Record) Fields() map[string]string {
	return map[string]string{
		ColID:          r.ID,
		ColMessage:     r.Message,
		ColScheduledAt: r.ScheduledAt,
		ColRecipientID: r.RecipientID,
		ColStatus:      r.Status,
		ColCreatedAt:   r.CreatedAt,
	}
}

// RowRef identifies one row of the store: the 1-based sheet row number for the
// Sheets adapter, the primary key for the database adapter. A ref is only
// meaningful relative to the scan that produced it.
type RowRef int64

// Row is one scanned row with its fields resolved by header name.
type Row struct {
	Ref    RowRef
	Fields map[string]string
}

// Field returns the named field, or the empty string when the cell is absent.
func (r Row) Field(name string) string {
	return r.Fields[name]
}

// Snapshot is one full point-in-time read of the store.
type Snapshot struct {
	Columns []string
	Rows    []Row
}

// RowStore is the append/update log backing the reminder engine. Append adds
// exactly one row. ScanAll returns every row. UpdateCell mutates one field of
// one existing row; it is not atomic with the scan that produced ref, which is
// why delivery is at-least-once rather than exactly-once.
type RowStore interface {
	Append(ctx context.Context, rec Record) error
	ScanAll(ctx context.Context) (Snapshot, error)
	UpdateCell(ctx context.Context, ref RowRef, field, value string) error
}
