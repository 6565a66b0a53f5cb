package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcab/internal/catalog"
	"medcab/internal/identity"
	"medcab/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "medcab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIdentityRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	emb := make(identity.Embedding, identity.EmbeddingSize)
	emb[0] = 0.42
	id := identity.Identity{
		ID:         "p1",
		Code:       "EMP-001",
		Name:       "Dana",
		Embedding:  emb,
		EnrolledAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveIdentity(ctx, id))

	got, err := s.Identities(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dana", got[0].Name)
	require.Len(t, got[0].Embedding, identity.EmbeddingSize)
	assert.Equal(t, 0.42, got[0].Embedding[0])

	require.NoError(t, s.DeleteIdentity(ctx, "p1"))
	assert.ErrorIs(t, s.DeleteIdentity(ctx, "p1"), store.ErrNotFound)
}

func TestEntryRoundTripWithThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	idx := 3
	entry := catalog.Entry{
		ID:         "m1",
		Name:       "Ibuprofen",
		Quantity:   20,
		Shape:      catalog.ShapeRound,
		ClassIndex: &idx,
		Threshold:  &catalog.Threshold{SingleDoseLimit: 2, DailyLimit: 6, WarningPercentage: 80},
	}
	require.NoError(t, s.SaveEntry(ctx, entry))

	got, err := s.EntryByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, catalog.ShapeRound, got.Shape)
	require.NotNil(t, got.ClassIndex)
	assert.Equal(t, 3, *got.ClassIndex)
	require.NotNil(t, got.Threshold)
	assert.Equal(t, 6, got.Threshold.DailyLimit)

	_, err = s.EntryByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdjustQuantity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEntry(ctx, catalog.Entry{ID: "m1", Name: "Ibuprofen", Quantity: 5}))

	next, err := s.AdjustQuantity(ctx, "m1", -2)
	require.NoError(t, err)
	assert.Equal(t, 3, next)

	_, err = s.AdjustQuantity(ctx, "m1", -4)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	got, err := s.EntryByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity, "failed adjustment must not change stock")

	_, err = s.AdjustQuantity(ctx, "missing", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTotalForDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	add := func(id string, qty int, at time.Time, subject string) {
		require.NoError(t, s.RecordCheckout(ctx, store.Checkout{
			ID: id, MedicationID: "m1", SubjectID: subject,
			Quantity: qty, CreatedAt: at,
		}))
	}
	add("c1", 2, now, "p1")
	add("c2", 1, now.Add(-time.Hour), "p1")
	add("c3", 4, now.Add(-48*time.Hour), "p1")
	add("c4", 9, now, "p2")

	total, err := s.TotalForDay(ctx, "m1", "p1", now)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestWarningsAndAudit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := store.Warning{
		ID: "w1", MedicationID: "m1", SubjectID: "p1",
		Rule: "DAILY_LIMIT", Severity: "CRITICAL",
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.RecordWarning(ctx, w))

	open, err := s.UnacknowledgedWarnings(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, s.AcknowledgeWarning(ctx, "w1"))
	open, err = s.UnacknowledgedWarnings(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	for i, kind := range []string{store.EventAuthSuccess, store.EventCheckout, store.EventUnlock} {
		require.NoError(t, s.RecordEvent(ctx, store.AuditEvent{
			ID: string(rune('a' + i)), Kind: kind,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	events, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, store.EventUnlock, events[0].Kind)
}
