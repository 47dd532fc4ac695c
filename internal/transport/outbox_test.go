package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOutboxDropsWhenFull(t *testing.T) {
	var o Outbox
	if o.Send(Update{Kind: UpdateReady}) {
		t.Fatal("send without a channel must not succeed")
	}

	ch := make(chan Update, 1)
	o.Set(ch)
	if !o.Send(Update{Kind: UpdateReady}) {
		t.Fatal("first send should fit")
	}
	if o.Send(Update{Kind: UpdateMessage}) {
		t.Fatal("second send should be dropped")
	}
	if got := o.Dropped(); got != 1 {
		t.Fatalf("Dropped=%d, want 1", got)
	}

	o.Set(nil)
	if o.Send(Update{Kind: UpdateReady}) {
		t.Fatal("send after Set(nil) must not succeed")
	}
}

func TestCallContext(t *testing.T) {
	if err := CallContext(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("CallContext: %v", err)
	}

	boom := errors.New("boom")
	if err := CallContext(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	release := make(chan struct{})
	defer close(release)
	err := CallContext(ctx, func() error {
		<-release
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want deadline exceeded", err)
	}
}

func TestSendErrorUnwraps(t *testing.T) {
	base := errors.New("Missing Permissions")
	err := error(&SendError{Platform: "discord", Op: "reply", Err: base})
	if !errors.Is(err, base) {
		t.Fatal("SendError must unwrap")
	}
	if err.Error() != "discord reply: Missing Permissions" {
		t.Fatalf("unexpected text %q", err.Error())
	}
}
