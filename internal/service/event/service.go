package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/internal/repository"
)

type Service struct {
	outboxRepo repository.OutboxRepository
}

func NewService(outboxRepo repository.OutboxRepository) *Service {
	return &Service{outboxRepo: outboxRepo}
}

// NewEvent builds a pending outbox event. It is not stored; callers hand it
// to a repository that writes it in the same transaction as the change it
// describes.
func NewEvent(eventType string, payload interface{}) (*model.OutboxEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now().UTC()
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payloadJSON,
		Status:    string(model.OutboxStatusPending),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Emit stores an event on its own, outside any domain transaction.
func (s *Service) Emit(ctx context.Context, eventType string, payload interface{}) error {
	if s.outboxRepo == nil {
		return nil
	}
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// CleanupProcessedEvents removes events processed more than retention ago.
func (s *Service) CleanupProcessedEvents(ctx context.Context, retention time.Duration) (int64, error) {
	if s.outboxRepo == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)
	count, err := s.outboxRepo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup events: %w", err)
	}
	return count, nil
}
