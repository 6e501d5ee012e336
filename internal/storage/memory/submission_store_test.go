package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/storage"
)

func TestSubmissionStore_InsertAndGet(t *testing.T) {
	store := NewSubmissionStore()
	ctx := context.Background()

	r := &domain.SubmissionResult{
		Signature:   "sig1",
		Status:      domain.StatusUnconfirmedSent,
		Network:     domain.Devnet,
		From:        "owner1",
		To:          "dest1",
		Amount:      "1.5",
		SubmittedAt: time.Unix(1000, 0),
	}

	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetBySignature(ctx, "sig1")
	if err != nil {
		t.Fatalf("GetBySignature failed: %v", err)
	}
	if got.Amount != "1.5" || got.Status != domain.StatusUnconfirmedSent {
		t.Errorf("unexpected record: %+v", got)
	}

	// returned records are copies
	got.Amount = "999"
	again, _ := store.GetBySignature(ctx, "sig1")
	if again.Amount != "1.5" {
		t.Errorf("store mutated through returned pointer: %s", again.Amount)
	}
}

func TestSubmissionStore_DuplicateAndInvalid(t *testing.T) {
	store := NewSubmissionStore()
	ctx := context.Background()

	r := &domain.SubmissionResult{Signature: "sig1", From: "owner1"}
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, r); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.SubmissionResult{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSubmissionStore_UpdateStatus(t *testing.T) {
	store := NewSubmissionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.SubmissionResult{Signature: "sig1", Status: domain.StatusUnconfirmedSent}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	updated := time.Unix(2000, 0)
	cause := errors.New("expired")
	if err := store.UpdateStatus(ctx, "sig1", domain.StatusFailed, cause, updated); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, _ := store.GetBySignature(ctx, "sig1")
	if got.Status != domain.StatusFailed || !got.UpdatedAt.Equal(updated) || got.ErrorDetail() != "expired" {
		t.Errorf("unexpected record after update: %+v", got)
	}

	if err := store.UpdateStatus(ctx, "missing", domain.StatusConfirmed, nil, updated); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmissionStore_ListByOwner(t *testing.T) {
	store := NewSubmissionStore()
	ctx := context.Background()

	for i, sig := range []string{"a", "b", "c"} {
		r := &domain.SubmissionResult{Signature: sig, From: "owner1", SubmittedAt: time.Unix(int64(1000+i), 0)}
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := store.Insert(ctx, &domain.SubmissionResult{Signature: "x", From: "owner2"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.ListByOwner(ctx, "owner1", 2)
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Signature != "c" || got[1].Signature != "b" {
		t.Errorf("expected newest first [c b], got [%s %s]", got[0].Signature, got[1].Signature)
	}

	all, _ := store.ListByOwner(ctx, "owner1", 0)
	if len(all) != 3 {
		t.Errorf("expected 3 records without limit, got %d", len(all))
	}
}
