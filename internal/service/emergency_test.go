package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcab/internal/store"
	"medcab/internal/store/memory"
)

func TestEmergencyAccessGranted(t *testing.T) {
	st := memory.New()
	gw := &fakeGateway{}
	svc, err := NewEmergencyService(HashPIN("4711"), st, gw, testLog())
	require.NoError(t, err)

	ack, err := svc.Access(context.Background(), "4711", "nurse-2", "power outage")
	require.NoError(t, err)
	assert.True(t, ack.Opened)
	assert.Equal(t, 1, gw.unlocks)

	events, err := st.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventEmergency, events[0].Kind)
	assert.Equal(t, "power outage", events[0].Detail)
}

func TestEmergencyAccessBadPIN(t *testing.T) {
	st := memory.New()
	gw := &fakeGateway{}
	svc, err := NewEmergencyService(HashPIN("4711"), st, gw, testLog())
	require.NoError(t, err)

	_, err = svc.Access(context.Background(), "0000", "nurse-2", "power outage")
	assert.ErrorIs(t, err, ErrBadPIN)
	assert.Equal(t, 0, gw.unlocks)

	events, err := st.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1, "failed attempts are audited too")
	assert.Contains(t, events[0].Detail, "DENIED")
}

func TestNewEmergencyServiceRejectsBadHash(t *testing.T) {
	_, err := NewEmergencyService("not-hex", memory.New(), &fakeGateway{}, testLog())
	assert.Error(t, err)

	_, err = NewEmergencyService("abcd", memory.New(), &fakeGateway{}, testLog())
	assert.Error(t, err, "truncated digest must be rejected")
}
