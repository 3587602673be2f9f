package account

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryCreateAndLookup(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	acc := &Account{Email: "Owner@Example.com", DisplayName: "Owner", PasswordHash: "x"}
	if err := s.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.ID == "" {
		t.Fatal("no id assigned")
	}
	if acc.Email != "owner@example.com" {
		t.Fatalf("email not normalized: %s", acc.Email)
	}

	got, err := s.Find(ctx, acc.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Email != "owner@example.com" {
		t.Fatalf("unexpected account: %+v", got)
	}

	got, err = s.FindByEmail(ctx, "OWNER@example.com")
	if err != nil || got.ID != acc.ID {
		t.Fatalf("find by email: %+v, %v", got, err)
	}

	ok, err := s.Exists(ctx, acc.ID)
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}
	ok, err = s.Exists(ctx, "nope")
	if err != nil || ok {
		t.Fatalf("exists for unknown = %v, %v", ok, err)
	}
}

func TestInMemoryDuplicateEmail(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if err := s.Create(ctx, &Account{Email: "a@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Create(ctx, &Account{Email: "A@Example.com", PasswordHash: "x"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	acc := &Account{Email: "a@example.com", DisplayName: "Before", PasswordHash: "x"}
	if err := s.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "After"
	got, err := s.UpdateProfile(ctx, acc.ID, ProfileUpdate{DisplayName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DisplayName != "After" {
		t.Fatalf("display name = %s", got.DisplayName)
	}

	// Nil field leaves the value alone.
	got, err = s.UpdateProfile(ctx, acc.ID, ProfileUpdate{})
	if err != nil || got.DisplayName != "After" {
		t.Fatalf("no-op update changed data: %+v, %v", got, err)
	}

	if _, err := s.UpdateProfile(ctx, "nope", ProfileUpdate{DisplayName: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
