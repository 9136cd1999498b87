package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/logging"
	"github.com/campus-market/campus_market/internal/notification"
)

// Service manages threads between users.
type Service struct {
	store    Store
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a messaging service. Nil notifier or logger are replaced by no-ops.
func NewService(store Store, notifier notification.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Fanout{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, notifier: notifier, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Open returns the thread between a and b, creating it on first contact.
func (s *Service) Open(ctx context.Context, a, b string) (Thread, error) {
	if a == "" || b == "" {
		return Thread{}, apperr.Validation("both participants are required")
	}
	if strings.Contains(a, keySeparator) || strings.Contains(b, keySeparator) {
		return Thread{}, apperr.Validation("participant ids must not contain %q", keySeparator)
	}
	return s.store.Open(ctx, Thread{
		Key:          KeyFor(a, b),
		Participants: participants(a, b),
		CreatedAt:    s.now(),
	})
}

// Append adds text from fromUserID to the thread identified by key.
func (s *Service) Append(ctx context.Context, key ThreadKey, fromUserID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, apperr.Validation("message text is required")
	}

	thread, err := s.store.Get(ctx, key)
	if err != nil {
		return Message{}, err
	}
	if !thread.Includes(fromUserID) {
		return Message{}, apperr.Validation("sender is not a participant of this thread")
	}

	msg := Message{FromUserID: fromUserID, Text: text, At: s.now()}
	if err := s.store.Append(ctx, key, msg); err != nil {
		return Message{}, err
	}

	for _, p := range thread.Participants {
		if p == fromUserID {
			continue
		}
		if err := s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindMessageAppended,
			Destination: p,
			Subject:     "New message",
			Body:        fmt.Sprintf("You have a new message in %s", key),
		}); err != nil {
			s.logger.WarnContext(ctx, "notification failed", slog.String("thread", string(key)), slog.Any("error", err))
		}
	}
	return msg, nil
}

// Get returns a thread with all of its messages.
func (s *Service) Get(ctx context.Context, key ThreadKey) (Thread, error) {
	return s.store.Get(ctx, key)
}

// ListFor returns every thread the user takes part in.
func (s *Service) ListFor(ctx context.Context, userID string) ([]Thread, error) {
	return s.store.ListFor(ctx, userID)
}
