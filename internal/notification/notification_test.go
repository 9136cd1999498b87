package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/campus-market/campus_market/internal/logging"
)

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, Message) error { return errors.New("down") }

func TestRecorderLast(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()

	_ = rec.Send(ctx, Message{Kind: KindBalanceCredited, Body: "first"})
	_ = rec.Send(ctx, Message{Kind: KindPayoutSent, Body: "payout"})
	_ = rec.Send(ctx, Message{Kind: KindBalanceCredited, Body: "second"})

	msg, ok := rec.Last(KindBalanceCredited)
	if !ok || msg.Body != "second" {
		t.Fatalf("expected latest credit message, got %+v (ok=%v)", msg, ok)
	}
	if _, ok := rec.Last(KindMessageAppended); ok {
		t.Fatalf("expected no message_appended notification")
	}
	if got := len(rec.Messages()); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
}

func TestFanoutDeliversToAllAndReportsFirstError(t *testing.T) {
	rec := &Recorder{}
	fan := Fanout{failingNotifier{}, NewLoggerNotifier(logging.Discard()), rec, nil}

	err := fan.Send(context.Background(), Message{Kind: KindPayoutSent})
	if err == nil {
		t.Fatalf("expected failing notifier error")
	}
	if _, ok := rec.Last(KindPayoutSent); !ok {
		t.Fatalf("recorder should still receive the message")
	}
}
