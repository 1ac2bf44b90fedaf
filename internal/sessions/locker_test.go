package sessions

import (
	"context"
	"testing"
	"time"
)

func TestSessionLockerSerializes(t *testing.T) {
	locker := NewSessionLocker(time.Second)
	ctx := context.Background()

	if err := locker.Lock(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- locker.Lock(ctx, "s1")
	}()

	select {
	case <-done:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	locker.Unlock("s1")
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second lock failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after unlock")
	}
	locker.Unlock("s1")
}

func TestSessionLockerIndependentSessions(t *testing.T) {
	locker := NewSessionLocker(time.Second)
	ctx := context.Background()

	if err := locker.Lock(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := locker.Lock(ctx, "b"); err != nil {
		t.Fatalf("different session should not block: %v", err)
	}
	locker.Unlock("a")
	locker.Unlock("b")
}

func TestSessionLockerTimeout(t *testing.T) {
	locker := NewSessionLocker(50 * time.Millisecond)
	ctx := context.Background()

	if err := locker.Lock(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := locker.Lock(ctx, "s1"); err != ErrLockTimeout {
		t.Errorf("error = %v, want ErrLockTimeout", err)
	}
	locker.Unlock("s1")
}

func TestSessionLockerContextCancel(t *testing.T) {
	locker := NewSessionLocker(time.Minute)

	if err := locker.Lock(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := locker.Lock(ctx, "s1"); err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	locker.Unlock("s1")
}
