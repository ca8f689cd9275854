package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:")
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStore_Values(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := st.GetValue(ctx, "userId")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, st.SetValue(ctx, "userId", "d6050855"))

		got, err := st.GetValue(ctx, "userId")
		require.NoError(t, err)
		assert.Equal(t, "d6050855", got)
	})

	t.Run("Replace", func(t *testing.T) {
		require.NoError(t, st.SetValue(ctx, "userId", "second"))

		got, err := st.GetValue(ctx, "userId")
		require.NoError(t, err)
		assert.Equal(t, "second", got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, st.DeleteValue(ctx, "userId"))

		_, err := st.GetValue(ctx, "userId")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, st.DeleteValue(ctx, "userId"), ErrNotFound)
	})
}

func TestSQLiteStore_PaymentRequests(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("empty database", func(t *testing.T) {
		stats, err := st.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalRequests)
		assert.True(t, stats.Oldest.IsZero())
		assert.Empty(t, stats.ByMethod)
	})

	now := time.Now()
	records := []*PaymentRecord{
		{UserID: "u1", OfferID: "offer_a", PaymentMethod: "lightning", AmountMinor: 99, ExpiresAt: now.Add(10 * time.Minute), Cached: true, CreatedAt: now.Add(-2 * time.Minute)},
		{UserID: "u1", OfferID: "offer_b", PaymentMethod: "lightning", AmountMinor: 499, ExpiresAt: now.Add(3 * time.Minute), CreatedAt: now.Add(-1 * time.Minute)},
		{UserID: "u1", OfferID: "offer_a", PaymentMethod: "credit_card", AmountMinor: 99, ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now},
	}
	for _, rec := range records {
		require.NoError(t, st.RecordPaymentRequest(ctx, rec))
		assert.NotZero(t, rec.ID)
	}

	t.Run("List newest first", func(t *testing.T) {
		got, err := st.ListPaymentRequests(ctx, 10)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "credit_card", got[0].PaymentMethod)
		assert.Equal(t, "offer_a", got[2].OfferID)
		assert.True(t, got[2].Cached)
		assert.Equal(t, "USD", got[0].Currency)
	})

	t.Run("List limit", func(t *testing.T) {
		got, err := st.ListPaymentRequests(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := st.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalRequests)
		assert.Equal(t, int64(99+499+99), stats.TotalAmount)
		assert.Equal(t, 1, stats.CachedInvoices)
		assert.False(t, stats.Oldest.IsZero())
		assert.False(t, stats.Newest.IsZero())
		require.Len(t, stats.ByMethod, 2)
		assert.Equal(t, MethodStats{Method: "lightning", Requests: 2, Amount: 598}, stats.ByMethod[0])
	})
}
