package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/internal/repository"
	"github.com/jwalitptl/passpolicy/pkg/errors"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// LogOptions carries request metadata recorded alongside an action.
type LogOptions struct {
	IPAddress string
	UserAgent string
}

// Log records that actor performed action. data is stored as JSON.
func (s *Service) Log(ctx context.Context, actor, action string, data interface{}, opts *LogOptions) error {
	raw := json.RawMessage(`{}`)
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode audit data: %w", err)
		}
		raw = encoded
	}

	log := &model.AuditLog{
		ID:        uuid.New(),
		Actor:     actor,
		Action:    action,
		Data:      raw,
		CreatedAt: s.now().UTC(),
	}
	if opts != nil {
		log.IPAddress = opts.IPAddress
		log.UserAgent = opts.UserAgent
	}

	if err := s.repo.Create(ctx, log); err != nil {
		return errors.Persistence("failed to write audit log", err)
	}
	return nil
}

// List returns the newest entries first. A non-positive limit selects
// model.DefaultAuditLimit.
func (s *Service) List(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 {
		limit = model.DefaultAuditLimit
	}
	logs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, errors.Persistence("failed to list audit logs", err)
	}
	return logs, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, errors.Persistence("failed to count audit logs", err)
	}
	return n, nil
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Cleanup(ctx, before)
}
