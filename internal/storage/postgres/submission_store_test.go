package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/storage"
)

func testSubmission(sig, from string, submittedAt time.Time) *domain.SubmissionResult {
	return &domain.SubmissionResult{
		Signature:   sig,
		Status:      domain.StatusUnconfirmedSent,
		Err:         domain.Errorf(domain.CodeConfirmationUnknown, "sent, confirmation pending"),
		Network:     domain.Devnet,
		From:        from,
		To:          "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Amount:      "0.5",
		SubmittedAt: submittedAt,
		UpdatedAt:   submittedAt,
	}
}

func TestSubmissionStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSubmissionStore(pool, nil)
	owner := "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("insert and get", func(t *testing.T) {
		r := testSubmission("sig-1", owner, base)
		require.NoError(t, store.Insert(ctx, r))

		got, err := store.GetBySignature(ctx, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusUnconfirmedSent, got.Status)
		assert.Equal(t, domain.Devnet, got.Network)
		assert.Equal(t, "0.5", got.Amount)
		assert.True(t, got.SubmittedAt.Equal(base))
		assert.True(t, errors.Is(got.Err, domain.ErrConfirmationUnknown))
		assert.Equal(t, "sent, confirmation pending", domain.UserMessage(got.Err))
	})

	t.Run("duplicate signature", func(t *testing.T) {
		err := store.Insert(ctx, testSubmission("sig-1", owner, base))
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("update status clears error", func(t *testing.T) {
		later := base.Add(2 * time.Second)
		require.NoError(t, store.UpdateStatus(ctx, "sig-1", domain.StatusConfirmed, nil, later))

		got, err := store.GetBySignature(ctx, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, got.Status)
		assert.Nil(t, got.Err)
		assert.True(t, got.UpdatedAt.Equal(later))
	})

	t.Run("update missing", func(t *testing.T) {
		err := store.UpdateStatus(ctx, "nope", domain.StatusFailed, nil, base)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.GetBySignature(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, testSubmission("sig-2", owner, base.Add(time.Minute))))
		require.NoError(t, store.Insert(ctx, testSubmission("sig-3", owner, base.Add(2*time.Minute))))
		require.NoError(t, store.Insert(ctx, testSubmission("other", "someone-else", base)))

		all, err := store.ListByOwner(ctx, owner, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "sig-3", all[0].Signature)
		assert.Equal(t, "sig-1", all[2].Signature)

		limited, err := store.ListByOwner(ctx, owner, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "sig-2", limited[1].Signature)
	})

	t.Run("plain error survives", func(t *testing.T) {
		r := testSubmission("sig-plain", owner, base)
		r.Status = domain.StatusFailed
		r.Err = errors.New("boom")
		require.NoError(t, store.Insert(ctx, r))

		got, err := store.GetBySignature(ctx, "sig-plain")
		require.NoError(t, err)
		require.Error(t, got.Err)
		assert.Equal(t, "boom", got.Err.Error())
		assert.Equal(t, domain.Code(""), domain.CodeOf(got.Err))
	})
}

func TestSubmissionStore_RejectsEmptySignature(t *testing.T) {
	store := NewSubmissionStore(nil, nil)
	err := store.Insert(context.Background(), &domain.SubmissionResult{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestEncodeDecodeError(t *testing.T) {
	code, msg := encodeError(nil)
	assert.Empty(t, code)
	assert.Empty(t, msg)
	assert.Nil(t, decodeError("", ""))

	code, msg = encodeError(domain.Errorf(domain.CodeRateLimited, "slow down"))
	assert.Equal(t, "RATE_LIMITED", code)
	assert.Equal(t, "slow down", msg)
	assert.ErrorIs(t, decodeError(code, msg), domain.ErrRateLimited)
}
