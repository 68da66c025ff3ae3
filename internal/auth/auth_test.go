package auth

import (
	"testing"
	"time"
)

func TestSetAuthRejectedDuringTransaction(t *testing.T) {
	inTx := false
	b := NewBinder(func() bool { return inTx })

	if err := b.SetAuth(&Context{Username: "alice"}); err != nil {
		t.Fatalf("unexpected error setting initial auth: %v", err)
	}

	inTx = true
	if err := b.SetAuth(&Context{Username: "bob"}); err != ErrAuthImmutableInTx {
		t.Fatalf("expected ErrAuthImmutableInTx, got %v", err)
	}
	if b.Current().Username != "alice" {
		t.Fatalf("expected auth context to remain alice, got %s", b.Current().Username)
	}
}

func TestSetAuthAllowedOutsideTransaction(t *testing.T) {
	inTx := false
	b := NewBinder(func() bool { return inTx })

	if err := b.SetAuth(&Context{Username: "alice", AuthenticatedAt: time.Now()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.SetAuth(&Context{Username: "bob"}); err != nil {
		t.Fatalf("unexpected error replacing auth outside a transaction: %v", err)
	}
	if b.Current().Username != "bob" {
		t.Fatalf("expected bob, got %s", b.Current().Username)
	}
}

func TestContextCarriesServiceUserFlag(t *testing.T) {
	ctx := &Context{Username: "svc_reporting", ServiceUser: true}
	if !ctx.ServiceUser {
		t.Fatal("expected service user flag to be set")
	}
}
