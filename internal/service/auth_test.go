package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"medcab/internal/face"
	"medcab/internal/identity"
	"medcab/internal/store"
	"medcab/internal/store/memory"
)

type fakeAuthenticator struct {
	outcome face.Outcome
	seen    int
}

func (f *fakeAuthenticator) Authenticate(_ gocv.Mat, known identity.Snapshot) (face.Outcome, error) {
	f.seen = len(known)
	return f.outcome, nil
}

func TestAuthenticateSuccessAudited(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.SaveIdentity(ctx, identity.Identity{
		ID: "p1", Name: "Dana", EnrolledAt: time.Now(),
	}))

	auth := &fakeAuthenticator{outcome: face.Outcome{
		Identity:   &identity.Identity{ID: "p1", Name: "Dana"},
		Confidence: 87.5,
		Detail:     "matched Dana (distance 0.3120, margin 0.1540, confidence 87.5%)",
	}}
	svc := NewAuthService(st, st, auth, testLog())

	outcome, err := svc.Authenticate(ctx, gocv.Mat{})
	require.NoError(t, err)
	assert.True(t, outcome.Accepted())
	assert.Equal(t, 1, auth.seen)

	events, err := st.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventAuthSuccess, events[0].Kind)
	assert.Equal(t, "p1", events[0].Subject)
	assert.Contains(t, events[0].Detail, "distance 0.3120")
	assert.Contains(t, events[0].Detail, "margin 0.1540")
}

func TestAuthenticateRejectionAudited(t *testing.T) {
	st := memory.New()
	auth := &fakeAuthenticator{outcome: face.Outcome{
		Reason: face.ReasonBelowThreshold,
		Detail: "rejected Dana (best distance 0.6210, margin 0.0210)",
	}}
	svc := NewAuthService(st, st, auth, testLog())

	outcome, err := svc.Authenticate(context.Background(), gocv.Mat{})
	require.NoError(t, err)
	assert.False(t, outcome.Accepted())

	events, err := st.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventAuthFailure, events[0].Kind)
	assert.Contains(t, events[0].Detail, string(face.ReasonBelowThreshold))
	assert.Contains(t, events[0].Detail, "best distance 0.6210")
}
