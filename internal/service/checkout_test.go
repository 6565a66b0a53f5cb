package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcab/internal/catalog"
	"medcab/internal/store"
	"medcab/internal/store/memory"
	"medcab/internal/threshold"
	"medcab/internal/unlock"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeGateway struct {
	unlocks int
	fail    bool
}

func (g *fakeGateway) Unlock(context.Context, string, string) (unlock.Ack, error) {
	g.unlocks++
	if g.fail {
		return unlock.Ack{Channel: unlock.ChannelNone}, unlock.ErrControllerUnreachable
	}
	return unlock.Ack{Channel: unlock.ChannelNetwork, Opened: true}, nil
}

func (g *fakeGateway) Probe(context.Context) unlock.Status {
	return unlock.Status{NetworkOK: !g.fail}
}

func seedEntry(t *testing.T, st *memory.Store, entry catalog.Entry) {
	t.Helper()
	require.NoError(t, st.SaveEntry(context.Background(), entry))
}

func guarded() catalog.Entry {
	return catalog.Entry{
		ID:       "m1",
		Name:     "Oxycodone",
		Quantity: 30,
		Threshold: &catalog.Threshold{
			SingleDoseLimit:   2,
			DailyLimit:        6,
			WarningPercentage: 80,
		},
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	st := memory.New()
	gw := &fakeGateway{}
	seedEntry(t, st, guarded())

	svc := NewCheckoutService(st, gw, false, testLog())
	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		MedicationID: "m1", SubjectID: "p1", Quantity: 1, Method: "FACE",
	})

	require.NoError(t, err)
	assert.Equal(t, threshold.Allow, res.Decision.Outcome)
	assert.False(t, res.Blocked)
	assert.Equal(t, 29, res.NewQuantity)
	assert.True(t, res.Ack.Opened)
	assert.Equal(t, 1, gw.unlocks)

	movements := st.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, -1, movements[0].QuantityDelta)
	assert.Equal(t, 29, movements[0].QuantityAfter)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	st := memory.New()
	gw := &fakeGateway{}
	seedEntry(t, st, catalog.Entry{ID: "m1", Name: "Ibuprofen", Quantity: 1})

	svc := NewCheckoutService(st, gw, false, testLog())
	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		MedicationID: "m1", SubjectID: "p1", Quantity: 2,
	})

	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 0, gw.unlocks, "door must stay shut without stock")
}

func TestCheckoutUnknownMedication(t *testing.T) {
	svc := NewCheckoutService(memory.New(), &fakeGateway{}, false, testLog())
	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		MedicationID: "missing", SubjectID: "p1", Quantity: 1,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckoutBlockWithoutEnforcementProceeds(t *testing.T) {
	st := memory.New()
	gw := &fakeGateway{}
	seedEntry(t, st, guarded())

	svc := NewCheckoutService(st, gw, false, testLog())
	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		MedicationID: "m1", SubjectID: "p1", Quantity: 3,
	})

	require.NoError(t, err)
	assert.Equal(t, threshold.Block, res.Decision.Outcome)
	assert.Equal(t, 27, res.NewQuantity)
	assert.Equal(t, 1, gw.unlocks)

	warnings, err := st.UnacknowledgedWarnings(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	assert.Equal(t, string(threshold.RuleSingleDose), warnings[0].Rule)

	events, err := st.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	assert.Contains(t, kinds, store.EventBlocked)
	assert.Contains(t, kinds, store.EventCheckout)
}

func TestCheckoutBlockWithEnforcementRefuses(t *testing.T) {
	st := memory.New()
	gw := &fakeGateway{}
	seedEntry(t, st, guarded())

	svc := NewCheckoutService(st, gw, true, testLog())
	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		MedicationID: "m1", SubjectID: "p1", Quantity: 3,
	})

	assert.ErrorIs(t, err, ErrCheckoutBlocked)
	assert.True(t, res.Blocked)
	assert.Equal(t, 0, gw.unlocks)

	entry, err := st.EntryByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 30, entry.Quantity, "blocked checkout must not touch stock")
}

func TestCheckoutDailyLimitAccumulates(t *testing.T) {
	st := memory.New()
	gw := &fakeGateway{}
	seedEntry(t, st, guarded())

	svc := NewCheckoutService(st, gw, false, testLog())
	ctx := context.Background()

	req := CheckoutRequest{MedicationID: "m1", SubjectID: "p1", Quantity: 2}

	first, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, threshold.Allow, first.Decision.Outcome)

	second, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, threshold.Allow, second.Decision.Outcome)
	assert.Equal(t, 4, second.Decision.RunningTotal)

	third, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, threshold.Warn, third.Decision.Outcome)
	assert.Equal(t, threshold.RuleDailyApproaching, third.Decision.Rule)

	fourth, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, threshold.Block, fourth.Decision.Outcome)
	assert.Equal(t, threshold.RuleDailyLimit, fourth.Decision.Rule)
	assert.Equal(t, 8, fourth.Decision.RunningTotal)
}

func TestCheckoutSurvivesDeadController(t *testing.T) {
	st := memory.New()
	gw := &fakeGateway{fail: true}
	seedEntry(t, st, guarded())

	svc := NewCheckoutService(st, gw, false, testLog())
	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		MedicationID: "m1", SubjectID: "p1", Quantity: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, 29, res.NewQuantity)
	assert.False(t, res.Ack.Opened)
	assert.NotEmpty(t, res.UnlockError)
}

func TestCheckoutDaySeparation(t *testing.T) {
	st := memory.New()
	gw := &fakeGateway{}
	seedEntry(t, st, guarded())

	svc := NewCheckoutService(st, gw, false, testLog())
	yesterday := time.Now().Add(-24 * time.Hour)
	svc.now = func() time.Time { return yesterday }

	req := CheckoutRequest{MedicationID: "m1", SubjectID: "p1", Quantity: 2}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Checkout(ctx, req)
		require.NoError(t, err)
	}

	svc.now = time.Now
	res, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, threshold.Allow, res.Decision.Outcome,
		"yesterday's doses must not count toward today")
}

func TestCheckoutStoreErrorPropagates(t *testing.T) {
	st := memory.New()
	seedEntry(t, st, guarded())
	broken := &failingStore{Store: st}

	svc := NewCheckoutService(broken, &fakeGateway{}, false, testLog())
	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		MedicationID: "m1", SubjectID: "p1", Quantity: 1,
	})
	assert.Error(t, err)
}

type failingStore struct {
	*memory.Store
}

func (f *failingStore) RecordCheckout(context.Context, store.Checkout) error {
	return errors.New("disk full")
}
