package password

import (
	"context"
	stderrors "errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/jwalitptl/passpolicy/internal/model"
	engine "github.com/jwalitptl/passpolicy/internal/password"
	"github.com/jwalitptl/passpolicy/internal/repository"
	"github.com/jwalitptl/passpolicy/pkg/errors"
	"github.com/jwalitptl/passpolicy/pkg/logger"
	"github.com/jwalitptl/passpolicy/pkg/metrics"
)

// PolicySource supplies the active policy. *policy.Store implements it.
type PolicySource interface {
	Get() model.PasswordPolicy
}

type PasswordServicer interface {
	ValidatePassword(ctx context.Context, identity model.IdentityInfo, password string) (*model.ValidationResult, error)
	GeneratePassword(ctx context.Context, length int) (string, error)
	RecordPasswordChange(ctx context.Context, identity model.IdentityInfo, password string) (*model.ValidationResult, error)
	GetExpiryStatus(ctx context.Context, identityID string) (*model.ExpiryStatus, error)
	GetPasswordInfo(ctx context.Context, identityID string) (*model.PasswordInfo, error)
	InitializeIdentity(ctx context.Context, identityID string) (*model.PasswordInfo, bool, error)
}

type Config struct {
	// DefaultLength is used when GeneratePassword is called with length 0.
	DefaultLength int
}

type Service struct {
	policies    PolicySource
	validator   *engine.Validator
	generator   *engine.Generator
	tracker     *engine.HistoryTracker
	historyRepo repository.HistoryRepository
	config      Config
	logger      *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	// locks serialises changes per identity so validate-then-record is
	// atomic. Identities share a stripe by hash.
	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

func NewService(
	policies PolicySource,
	validator *engine.Validator,
	generator *engine.Generator,
	tracker *engine.HistoryTracker,
	historyRepo repository.HistoryRepository,
	config Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		policies:    policies,
		validator:   validator,
		generator:   generator,
		tracker:     tracker,
		historyRepo: historyRepo,
		config:      config,
		logger:      log.Component("password_service"),
		metrics:     m,
		now:         time.Now,
	}
}

func (s *Service) ValidatePassword(ctx context.Context, identity model.IdentityInfo, password string) (*model.ValidationResult, error) {
	if identity.ID != "" {
		if err := s.syncHistory(ctx, identity.ID); err != nil {
			return nil, err
		}
	}

	result, err := s.validator.Validate(password, identity, s.policies.Get(), s.tracker)
	if err != nil {
		return nil, err
	}
	s.observe(result)
	return result, nil
}

// GeneratePassword produces a compliant password for the active policy. A
// zero length selects the configured default, clamped to the policy bounds.
func (s *Service) GeneratePassword(ctx context.Context, length int) (string, error) {
	policy := s.policies.Get()
	if length == 0 {
		length = clamp(s.config.DefaultLength, policy.MinLength, policy.MaxLength)
	}

	pw, attempts, err := s.generator.GenerateWithAttempts(policy, length)
	if attempts > 0 {
		s.metrics.GenerationAttempts.Observe(float64(attempts))
	}
	if err != nil {
		if !stderrors.Is(err, errors.ErrInvalidInput) {
			s.logger.Warn("password generation failed", "length", length, "attempts", attempts, "error", err.Error())
		}
		return "", err
	}
	return pw, nil
}

// RecordPasswordChange validates password for identity and records it only
// when it passes. A failing verdict is returned without an error and
// without touching history.
func (s *Service) RecordPasswordChange(ctx context.Context, identity model.IdentityInfo, password string) (*model.ValidationResult, error) {
	if identity.ID == "" {
		return nil, errors.InvalidInput("identity id is required to record a password change")
	}

	unlock := s.lock(identity.ID)
	defer unlock()

	if err := s.syncHistory(ctx, identity.ID); err != nil {
		return nil, err
	}

	policy := s.policies.Get()
	result, err := s.validator.Validate(password, identity, policy, s.tracker)
	if err != nil {
		return nil, err
	}
	s.observe(result)
	if !result.IsValid {
		return result, nil
	}

	snap, err := s.tracker.RecordChange(identity.ID, password, policy.PreventReuse)
	if err != nil {
		return nil, errors.Internal(err)
	}

	if err := s.saveHistory(ctx, snap); err != nil {
		return nil, err
	}

	s.metrics.HistoryRecords.Inc()
	s.logger.Info("password change recorded", "identity_id", identity.ID, "change_count", snap.ChangeCount)
	return result, nil
}

func (s *Service) GetExpiryStatus(ctx context.Context, identityID string) (*model.ExpiryStatus, error) {
	if identityID == "" {
		return nil, errors.InvalidInput("identity id is required")
	}
	if err := s.syncHistory(ctx, identityID); err != nil {
		return nil, err
	}

	status := s.tracker.ExpiryStatus(identityID, s.policies.Get(), s.now())
	s.metrics.ExpiryChecks.WithLabelValues(string(status.State)).Inc()
	return &status, nil
}

// GetPasswordInfo reports when the identity last changed its password and
// how many changes were recorded. Unknown identities report zero changes.
func (s *Service) GetPasswordInfo(ctx context.Context, identityID string) (*model.PasswordInfo, error) {
	if identityID == "" {
		return nil, errors.InvalidInput("identity id is required")
	}
	if err := s.syncHistory(ctx, identityID); err != nil {
		return nil, err
	}

	snap, ok := s.tracker.Snapshot(identityID)
	if !ok {
		return &model.PasswordInfo{IdentityID: identityID}, nil
	}
	return toInfo(snap), nil
}

// InitializeIdentity starts the expiry clock for an identity that has no
// history yet. It reports whether a record was created.
func (s *Service) InitializeIdentity(ctx context.Context, identityID string) (*model.PasswordInfo, bool, error) {
	if identityID == "" {
		return nil, false, errors.InvalidInput("identity id is required")
	}

	unlock := s.lock(identityID)
	defer unlock()

	if err := s.syncHistory(ctx, identityID); err != nil {
		return nil, false, err
	}

	snap, created := s.tracker.Initialize(identityID)
	if created {
		if err := s.saveHistory(ctx, snap); err != nil {
			return nil, false, err
		}
		s.logger.Info("password security initialized", "identity_id", identityID)
	}
	return toInfo(snap), created, nil
}

// syncHistory pulls the stored history into the tracker when storage holds
// a newer record than memory.
func (s *Service) syncHistory(ctx context.Context, identityID string) error {
	if s.historyRepo == nil {
		return nil
	}

	start := time.Now()
	h, err := s.historyRepo.LoadHistory(ctx, identityID)
	s.metrics.DatabaseLatency.WithLabelValues("load_history").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.DatabaseOperations.WithLabelValues("load_history", "error").Inc()
		s.logger.Error(err, "failed to load password history", "identity_id", identityID)
		return errors.Persistence("failed to load password history", err)
	}
	s.metrics.DatabaseOperations.WithLabelValues("load_history", "success").Inc()

	if h != nil {
		s.tracker.Merge(h)
	}
	return nil
}

// saveHistory persists snap. On failure the in-memory record is dropped so
// the next access reloads what storage actually holds.
func (s *Service) saveHistory(ctx context.Context, snap *model.PasswordHistory) error {
	if s.historyRepo == nil {
		return nil
	}

	start := time.Now()
	err := s.historyRepo.SaveHistory(ctx, snap)
	s.metrics.DatabaseLatency.WithLabelValues("save_history").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.DatabaseOperations.WithLabelValues("save_history", "error").Inc()
		s.tracker.Forget(snap.IdentityID)
		s.logger.Error(err, "failed to save password history", "identity_id", snap.IdentityID)
		return errors.Persistence("failed to save password history", err)
	}
	s.metrics.DatabaseOperations.WithLabelValues("save_history", "success").Inc()
	return nil
}

func (s *Service) lock(identityID string) func() {
	mu := &s.locks[stripe(identityID)]
	mu.Lock()
	return mu.Unlock
}

func stripe(identityID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(identityID))
	return h.Sum32() % lockStripes
}

func (s *Service) observe(result *model.ValidationResult) {
	s.metrics.Validations.WithLabelValues(strconv.FormatBool(result.IsValid), string(result.Strength)).Inc()
	s.metrics.ScoreDistribution.Observe(float64(result.Score))
	for _, issue := range result.Issues {
		s.metrics.ValidationIssues.WithLabelValues(string(issue)).Inc()
	}
}

func toInfo(h *model.PasswordHistory) *model.PasswordInfo {
	info := &model.PasswordInfo{IdentityID: h.IdentityID, ChangeCount: h.ChangeCount}
	if !h.LastChangedAt.IsZero() {
		last := h.LastChangedAt
		info.LastChangedAt = &last
	}
	return info
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
