// Package memory provides process-local repositories for development and
// tests. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/internal/repository"
)

const policyKey = "policy"

// DefaultAuditCapacity bounds the in-memory audit log; older entries are dropped.
const DefaultAuditCapacity = 100

type policyRepository struct {
	mu     sync.Mutex
	cache  *cache.Cache
	outbox repository.OutboxRepository
}

// NewPolicyRepository stores the policy in memory. Events passed to
// SavePolicy are handed to outbox when it is non-nil.
func NewPolicyRepository(outbox repository.OutboxRepository) repository.PolicyRepository {
	return &policyRepository{
		cache:  cache.New(cache.NoExpiration, 0),
		outbox: outbox,
	}
}

func (r *policyRepository) LoadPolicy(ctx context.Context) (*model.PolicyRecord, error) {
	v, found := r.cache.Get(policyKey)
	if !found {
		return nil, nil
	}
	record := v.(model.PolicyRecord)
	return &record, nil
}

func (r *policyRepository) SavePolicy(ctx context.Context, record *model.PolicyRecord, events ...*model.OutboxEvent) error {
	if record == nil {
		return fmt.Errorf("policy record cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	version := 1
	if v, found := r.cache.Get(policyKey); found {
		version = v.(model.PolicyRecord).Version + 1
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	record.Version = version

	if r.outbox != nil {
		for _, event := range events {
			if err := r.outbox.Create(ctx, event); err != nil {
				return err
			}
		}
	}
	r.cache.Set(policyKey, *record, cache.NoExpiration)
	return nil
}

type historyRepository struct {
	cache *cache.Cache
}

// NewHistoryRepository keeps history records for ttl after their last
// write; a zero ttl keeps them forever.
func NewHistoryRepository(ttl, cleanup time.Duration) repository.HistoryRepository {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &historyRepository{cache: cache.New(ttl, cleanup)}
}

func (r *historyRepository) LoadHistory(ctx context.Context, identityID string) (*model.PasswordHistory, error) {
	v, found := r.cache.Get(identityID)
	if !found {
		return nil, nil
	}
	return v.(*model.PasswordHistory).Clone(), nil
}

func (r *historyRepository) SaveHistory(ctx context.Context, h *model.PasswordHistory) error {
	if h == nil || h.IdentityID == "" {
		return fmt.Errorf("password history requires an identity")
	}
	r.cache.Set(h.IdentityID, h.Clone(), cache.DefaultExpiration)
	return nil
}

type auditRepository struct {
	mu       sync.RWMutex
	logs     []*model.AuditLog // oldest first
	capacity int
}

// NewAuditRepository keeps at most capacity entries.
func NewAuditRepository(capacity int) repository.AuditRepository {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &auditRepository{capacity: capacity}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := *log
	r.logs = append(r.logs, &entry)
	if len(r.logs) > r.capacity {
		r.logs = append([]*model.AuditLog(nil), r.logs[len(r.logs)-r.capacity:]...)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 {
		limit = model.DefaultAuditLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.AuditLog, 0, limit)
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := *r.logs[i]
		out = append(out, &entry)
	}
	return out, nil
}

func (r *auditRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs), nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.logs[:0]
	var removed int64
	for _, entry := range r.logs {
		if entry.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	r.logs = kept
	return removed, nil
}

type outboxRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewOutboxRepository() repository.OutboxRepository {
	return &outboxRepository{cache: cache.New(cache.NoExpiration, 0)}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	now := time.Now().UTC()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Status = string(model.OutboxStatusPending)

	stored := *event
	r.cache.Set(event.ID.String(), &stored, cache.NoExpiration)
	return nil
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []*model.OutboxEvent
	for _, item := range r.cache.Items() {
		event := item.Object.(*model.OutboxEvent)
		if event.Status == string(model.OutboxStatusPending) {
			copied := *event
			events = append(events, &copied)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, found := r.cache.Get(id.String())
	if !found {
		return fmt.Errorf("outbox event %s not found", id)
	}
	event := v.(*model.OutboxEvent)

	now := time.Now().UTC()
	event.Status = string(status)
	event.ErrorMessage = errMsg
	event.UpdatedAt = now
	switch status {
	case model.OutboxStatusProcessed:
		event.ProcessedAt = &now
	case model.OutboxStatusFailed:
		event.RetryCount++
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for key, item := range r.cache.Items() {
		event := item.Object.(*model.OutboxEvent)
		if event.Status == string(model.OutboxStatusProcessed) && event.ProcessedAt != nil && event.ProcessedAt.Before(before) {
			r.cache.Delete(key)
			removed++
		}
	}
	return removed, nil
}
