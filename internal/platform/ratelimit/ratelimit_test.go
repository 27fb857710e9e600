package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(600)
	if !l.Allow("T1", "auth.test") {
		t.Fatal("first call should be allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(60)
	for i := 0; i < 10; i++ {
		l.Allow("T1", "chat.postMessage")
	}
	if !l.Allow("T2", "chat.postMessage") {
		t.Fatal("a saturated team must not starve another team")
	}
	if !l.Allow("T1", "auth.test") {
		t.Fatal("a saturated method must not starve another method")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// Drain the burst, then the next Wait must observe the deadline.
	_ = l.Allow("T1", "auth.test")
	if err := l.Wait(ctx, "T1", "auth.test"); err == nil {
		t.Fatal("expected context deadline error")
	}
}
