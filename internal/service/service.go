// Package service wires the recognition, safety, and persistence layers
// into the operations the cabinet exposes: face authentication, guarded
// checkout, and emergency access.
package service

import (
	"context"
	"errors"

	"gocv.io/x/gocv"

	"medcab/internal/face"
	"medcab/internal/identity"
	"medcab/internal/unlock"
)

var (
	// ErrCheckoutBlocked is returned when block enforcement is on and the
	// dose evaluator refused the checkout.
	ErrCheckoutBlocked = errors.New("checkout blocked by dose safety rules")
	// ErrBadPIN is returned for a failed emergency PIN attempt.
	ErrBadPIN = errors.New("invalid emergency PIN")
)

// Authenticator matches camera frames against enrolled identities.
type Authenticator interface {
	Authenticate(frame gocv.Mat, known identity.Snapshot) (face.Outcome, error)
}

// Unlocker drives the cabinet lock.
type Unlocker interface {
	Unlock(ctx context.Context, subject, reason string) (unlock.Ack, error)
	Probe(ctx context.Context) unlock.Status
}
