package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"medcab/internal/store"
	"medcab/internal/unlock"
)

// EmergencyService opens the cabinet with a PIN when face authentication
// is unavailable. Only a SHA-256 digest of the PIN is held in memory.
type EmergencyService struct {
	pinHash []byte
	audit   store.AuditStore
	gateway Unlocker
	log     *logrus.Entry
	now     func() time.Time
}

// NewEmergencyService creates an EmergencyService from the hex-encoded
// SHA-256 digest of the emergency PIN.
func NewEmergencyService(pinHashHex string, audit store.AuditStore, gateway Unlocker, log *logrus.Entry) (*EmergencyService, error) {
	hash, err := hex.DecodeString(pinHashHex)
	if err != nil || len(hash) != sha256.Size {
		return nil, fmt.Errorf("invalid emergency PIN hash")
	}
	return &EmergencyService{
		pinHash: hash,
		audit:   audit,
		gateway: gateway,
		log:     log,
		now:     time.Now,
	}, nil
}

// HashPIN returns the hex-encoded SHA-256 digest of a PIN, for
// provisioning the configuration value.
func HashPIN(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// Access verifies the PIN and opens the cabinet. Every attempt lands in
// the audit trail, failed ones included.
func (s *EmergencyService) Access(ctx context.Context, pin, operator, reason string) (unlock.Ack, error) {
	sum := sha256.Sum256([]byte(pin))
	if subtle.ConstantTimeCompare(sum[:], s.pinHash) != 1 {
		s.recordEvent(ctx, store.AuditEvent{
			ID:        uuid.NewString(),
			Kind:      store.EventEmergency,
			Subject:   operator,
			Detail:    "DENIED: bad PIN",
			CreatedAt: s.now(),
		})
		return unlock.Ack{}, ErrBadPIN
	}

	s.recordEvent(ctx, store.AuditEvent{
		ID:        uuid.NewString(),
		Kind:      store.EventEmergency,
		Subject:   operator,
		Detail:    reason,
		CreatedAt: s.now(),
	})
	s.log.WithFields(logrus.Fields{
		"operator": operator,
		"reason":   reason,
	}).Warn("emergency access granted")

	return s.gateway.Unlock(ctx, operator, "emergency: "+reason)
}

func (s *EmergencyService) recordEvent(ctx context.Context, e store.AuditEvent) {
	if err := s.audit.RecordEvent(ctx, e); err != nil {
		s.log.WithError(err).Error("failed to record emergency audit event")
	}
}
