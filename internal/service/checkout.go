package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"medcab/internal/catalog"
	"medcab/internal/store"
	"medcab/internal/threshold"
	"medcab/internal/unlock"
)

// CheckoutRequest describes one dispensing attempt.
type CheckoutRequest struct {
	MedicationID string `json:"medication_id" validate:"required"`
	SubjectID    string `json:"subject_id" validate:"required"`
	SubjectName  string `json:"subject_name"`
	Quantity     int    `json:"quantity" validate:"required,gt=0"`
	Method       string `json:"method"`
}

// CheckoutResult reports everything the operator needs after a checkout:
// the safety decision, the remaining stock, and whether the door opened.
type CheckoutResult struct {
	Checkout    store.Checkout      `json:"checkout"`
	Decision    threshold.Decision  `json:"decision"`
	Blocked     bool                `json:"blocked"`
	NewQuantity int                 `json:"new_quantity"`
	Stock       catalog.StockStatus `json:"stock"`
	Ack         unlock.Ack          `json:"ack"`
	UnlockError string              `json:"unlock_error,omitempty"`
}

// CheckoutService runs the guarded dispensing flow: stock check, dose
// safety evaluation, inventory decrement, records, and the unlock.
type CheckoutService struct {
	store         store.Store
	gateway       Unlocker
	enforceBlocks bool
	log           *logrus.Entry
	now           func() time.Time
}

// NewCheckoutService creates a CheckoutService. With enforceBlocks off, a
// BLOCK decision is recorded and surfaced but the checkout still
// proceeds; clinical staff keep the final say.
func NewCheckoutService(st store.Store, gateway Unlocker, enforceBlocks bool, log *logrus.Entry) *CheckoutService {
	return &CheckoutService{
		store:         st,
		gateway:       gateway,
		enforceBlocks: enforceBlocks,
		log:           log,
		now:           time.Now,
	}
}

// Checkout dispenses medication. The safety decision is always recorded;
// ErrCheckoutBlocked is returned only when block enforcement is on.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	entry, err := s.store.EntryByID(ctx, req.MedicationID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("failed to load medication: %w", err)
	}
	if entry.Quantity < req.Quantity {
		return CheckoutResult{}, store.ErrInsufficientStock
	}

	now := s.now()
	prior, err := s.store.TotalForDay(ctx, req.MedicationID, req.SubjectID, now)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("failed to load dispensing history: %w", err)
	}

	decision := threshold.Evaluate(entry, req.Quantity, prior)
	for _, v := range decision.Violations {
		s.recordWarning(ctx, req, v, now)
	}

	if decision.Outcome == threshold.Block {
		s.recordEvent(ctx, store.AuditEvent{
			ID:        uuid.NewString(),
			Kind:      store.EventBlocked,
			Subject:   req.SubjectID,
			Detail:    fmt.Sprintf("%s x%d: %s", entry.Name, req.Quantity, decision.Rule),
			CreatedAt: now,
		})
		if s.enforceBlocks {
			return CheckoutResult{Decision: decision, Blocked: true}, ErrCheckoutBlocked
		}
		s.log.WithFields(logrus.Fields{
			"medication": entry.Name,
			"subject":    req.SubjectID,
			"rule":       decision.Rule,
		}).Warn("dose limit exceeded, proceeding without enforcement")
	}

	newQty, err := s.store.AdjustQuantity(ctx, req.MedicationID, -req.Quantity)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("failed to decrement stock: %w", err)
	}

	checkout := store.Checkout{
		ID:           uuid.NewString(),
		MedicationID: req.MedicationID,
		SubjectID:    req.SubjectID,
		SubjectName:  req.SubjectName,
		Quantity:     req.Quantity,
		Method:       req.Method,
		CreatedAt:    now,
	}
	if err := s.store.RecordCheckout(ctx, checkout); err != nil {
		return CheckoutResult{}, fmt.Errorf("failed to record checkout: %w", err)
	}
	if err := s.store.RecordMovement(ctx, store.InventoryLog{
		ID:            uuid.NewString(),
		MedicationID:  req.MedicationID,
		Action:        "CHECKOUT",
		QuantityDelta: -req.Quantity,
		QuantityAfter: newQty,
		Actor:         req.SubjectID,
		CreatedAt:     now,
	}); err != nil {
		s.log.WithError(err).Error("failed to record inventory movement")
	}
	s.recordEvent(ctx, store.AuditEvent{
		ID:        uuid.NewString(),
		Kind:      store.EventCheckout,
		Subject:   req.SubjectID,
		Detail:    fmt.Sprintf("%s x%d", entry.Name, req.Quantity),
		CreatedAt: now,
	})

	result := CheckoutResult{
		Checkout:    checkout,
		Decision:    decision,
		NewQuantity: newQty,
	}
	entry.Quantity = newQty
	result.Stock = entry.Status()

	// Stock and records are already committed; a dead controller must
	// not fail the checkout, only report that the door stayed shut.
	ack, err := s.gateway.Unlock(ctx, req.SubjectID, "checkout "+entry.Name)
	result.Ack = ack
	if err != nil {
		result.UnlockError = err.Error()
		s.log.WithError(err).Error("unlock failed after checkout")
	} else {
		s.recordEvent(ctx, store.AuditEvent{
			ID:        uuid.NewString(),
			Kind:      store.EventUnlock,
			Subject:   req.SubjectID,
			Detail:    string(ack.Channel),
			CreatedAt: now,
		})
	}

	return result, nil
}

func (s *CheckoutService) recordWarning(ctx context.Context, req CheckoutRequest, v threshold.Violation, now time.Time) {
	w := store.Warning{
		ID:           uuid.NewString(),
		MedicationID: req.MedicationID,
		SubjectID:    req.SubjectID,
		Rule:         string(v.Rule),
		Severity:     string(v.Severity),
		Message:      v.Message,
		CreatedAt:    now,
	}
	if err := s.store.RecordWarning(ctx, w); err != nil {
		s.log.WithError(err).Error("failed to record dose warning")
	}
}

func (s *CheckoutService) recordEvent(ctx context.Context, e store.AuditEvent) {
	if err := s.store.RecordEvent(ctx, e); err != nil {
		s.log.WithError(err).Error("failed to record audit event")
	}
}
