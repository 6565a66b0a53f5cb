package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"medcab/internal/face"
	"medcab/internal/store"
)

// AuthService authenticates camera frames and records every attempt in
// the audit trail.
type AuthService struct {
	identities    store.IdentityStore
	audit         store.AuditStore
	authenticator Authenticator
	log           *logrus.Entry
	now           func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(identities store.IdentityStore, audit store.AuditStore, authenticator Authenticator, log *logrus.Entry) *AuthService {
	return &AuthService{
		identities:    identities,
		audit:         audit,
		authenticator: authenticator,
		log:           log,
		now:           time.Now,
	}
}

// Authenticate matches a frame against the enrolled identities. Failed
// attempts are audited as well as successes; an audit write failure is
// logged but does not reject an otherwise valid authentication.
func (s *AuthService) Authenticate(ctx context.Context, frame gocv.Mat) (face.Outcome, error) {
	known, err := s.identities.Identities(ctx)
	if err != nil {
		return face.Outcome{}, fmt.Errorf("failed to load identities: %w", err)
	}

	outcome, err := s.authenticator.Authenticate(frame, known)
	if err != nil {
		return face.Outcome{}, err
	}

	event := store.AuditEvent{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
	}
	if outcome.Accepted() {
		event.Kind = store.EventAuthSuccess
		event.Subject = outcome.Identity.ID
		event.Detail = outcome.Detail
	} else {
		event.Kind = store.EventAuthFailure
		event.Detail = string(outcome.Reason)
		if outcome.Detail != "" {
			event.Detail = fmt.Sprintf("%s: %s", outcome.Reason, outcome.Detail)
		}
	}
	if err := s.audit.RecordEvent(ctx, event); err != nil {
		s.log.WithError(err).Error("failed to record auth audit event")
	}

	return outcome, nil
}
