// Package store defines the persistence contracts for the cabinet:
// enrolled identities, the medication catalog, checkout history, dosage
// warnings, inventory movements, and the audit trail.
package store

import (
	"context"
	"errors"
	"time"

	"medcab/internal/catalog"
	"medcab/internal/identity"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientStock is returned when a quantity adjustment would
	// drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Checkout records one dispensing event.
type Checkout struct {
	ID           string    `json:"id" db:"id"`
	MedicationID string    `json:"medication_id" db:"medication_id"`
	SubjectID    string    `json:"subject_id" db:"subject_id"`
	SubjectName  string    `json:"subject_name" db:"subject_name"`
	Quantity     int       `json:"quantity" db:"quantity"`
	Method       string    `json:"method" db:"method"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Warning records a dosage-safety violation raised during a checkout.
type Warning struct {
	ID           string    `json:"id" db:"id"`
	MedicationID string    `json:"medication_id" db:"medication_id"`
	SubjectID    string    `json:"subject_id" db:"subject_id"`
	Rule         string    `json:"rule" db:"rule"`
	Severity     string    `json:"severity" db:"severity"`
	Message      string    `json:"message" db:"message"`
	Acknowledged bool      `json:"acknowledged" db:"acknowledged"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// AuditEvent is one entry in the tamper-evident activity trail.
type AuditEvent struct {
	ID        string    `json:"id" db:"id"`
	Kind      string    `json:"kind" db:"kind"`
	Subject   string    `json:"subject" db:"subject"`
	Detail    string    `json:"detail" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Audit event kinds.
const (
	EventAuthSuccess = "AUTH_SUCCESS"
	EventAuthFailure = "AUTH_FAILURE"
	EventCheckout    = "CHECKOUT"
	EventBlocked     = "CHECKOUT_BLOCKED"
	EventEmergency   = "EMERGENCY_ACCESS"
	EventUnlock      = "UNLOCK"
)

// InventoryLog records one stock movement.
type InventoryLog struct {
	ID            string    `json:"id" db:"id"`
	MedicationID  string    `json:"medication_id" db:"medication_id"`
	Action        string    `json:"action" db:"action"`
	QuantityDelta int       `json:"quantity_delta" db:"quantity_delta"`
	QuantityAfter int       `json:"quantity_after" db:"quantity_after"`
	Actor         string    `json:"actor" db:"actor"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// IdentityStore persists enrolled identities and their face embeddings.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, id identity.Identity) error
	Identities(ctx context.Context) (identity.Snapshot, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// CatalogStore persists the medication catalog.
type CatalogStore interface {
	SaveEntry(ctx context.Context, entry catalog.Entry) error
	Entries(ctx context.Context) (catalog.Snapshot, error)
	EntryByID(ctx context.Context, id string) (catalog.Entry, error)
	// AdjustQuantity applies delta atomically and returns the new
	// quantity. A negative delta larger than current stock fails with
	// ErrInsufficientStock and leaves the row untouched.
	AdjustQuantity(ctx context.Context, id string, delta int) (int, error)
}

// CheckoutStore persists dispensing history.
type CheckoutStore interface {
	RecordCheckout(ctx context.Context, c Checkout) error
	// TotalForDay sums quantities already dispensed to a subject for a
	// medication on the calendar day containing at.
	TotalForDay(ctx context.Context, medicationID, subjectID string, at time.Time) (int, error)
}

// WarningStore persists dosage warnings.
type WarningStore interface {
	RecordWarning(ctx context.Context, w Warning) error
	UnacknowledgedWarnings(ctx context.Context) ([]Warning, error)
	AcknowledgeWarning(ctx context.Context, id string) error
}

// AuditStore persists the activity trail.
type AuditStore interface {
	RecordEvent(ctx context.Context, e AuditEvent) error
	RecentEvents(ctx context.Context, limit int) ([]AuditEvent, error)
}

// InventoryLogStore persists stock movements.
type InventoryLogStore interface {
	RecordMovement(ctx context.Context, l InventoryLog) error
}

// Store is the full persistence surface.
type Store interface {
	IdentityStore
	CatalogStore
	CheckoutStore
	WarningStore
	AuditStore
	InventoryLogStore
	Close() error
}
