package dialog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Service ties the turn reducer, the conversation working set, and the store
// together behind a single entry point for channels and the HTTP API.
type Service struct {
	controller    *Controller
	conversations *UserConversations
	turns         *semaphore.Weighted
}

func NewService(controller *Controller, conversations *UserConversations, turnLimit int) (*Service, error) {
	if controller == nil {
		return nil, errors.New("service requires a controller")
	}
	if conversations == nil {
		return nil, errors.New("service requires a conversation working set")
	}
	if turnLimit <= 0 {
		return nil, errors.Errorf("turn limit must be positive, got %d", turnLimit)
	}
	return &Service{
		controller:    controller,
		conversations: conversations,
		turns:         semaphore.NewWeighted(int64(turnLimit)),
	}, nil
}

// HandleMessage runs one user turn: checkout, reduce, persist. Persistence
// failures do not fail the turn; the response is already committed to the
// in-memory state.
func (s *Service) HandleMessage(ctx context.Context, userID, userName, message string) (*MessageOutput, error) {
	if err := s.turns.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "failed to acquire turn slot")
	}
	defer s.turns.Release(1)

	turnID := uuid.NewString()
	started := time.Now()

	lease, err := s.conversations.Checkout(ctx, userID, userName)
	if err != nil {
		turnsTotal.WithLabelValues("checkout_error").Inc()
		return nil, err
	}
	defer lease.Release()

	out, err := s.controller.Respond(ctx, lease.State, message)
	if err != nil {
		turnsTotal.WithLabelValues("error").Inc()
		slog.Warn("dialog: turn failed", "turn_id", turnID, "user_id", userID, "error", err)
		return nil, err
	}

	if err := s.conversations.Save(ctx, lease.State); err != nil {
		storeFailures.Inc()
		slog.Warn("dialog: failed to persist turn", "turn_id", turnID, "user_id", userID, "error", err)
	}

	turnsTotal.WithLabelValues("ok").Inc()
	slog.Info("dialog: turn completed",
		"turn_id", turnID,
		"user_id", userID,
		"intent", lease.State.Intent.Name,
		"duration", time.Since(started),
	)
	return out, nil
}
