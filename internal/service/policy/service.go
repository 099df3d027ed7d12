package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/passpolicy/internal/model"
	engine "github.com/jwalitptl/passpolicy/internal/password"
	policyStore "github.com/jwalitptl/passpolicy/internal/policy"
	"github.com/jwalitptl/passpolicy/internal/repository"
	"github.com/jwalitptl/passpolicy/internal/service/audit"
	"github.com/jwalitptl/passpolicy/internal/service/event"
	"github.com/jwalitptl/passpolicy/pkg/errors"
	"github.com/jwalitptl/passpolicy/pkg/logger"
	"github.com/jwalitptl/passpolicy/pkg/messaging"
	"github.com/jwalitptl/passpolicy/pkg/metrics"
)

// ProbeIdentity is the identity used by TestPassword.
var ProbeIdentity = model.IdentityInfo{
	FirstName: "Test",
	LastName:  "User",
	Email:     "test@example.com",
}

type PolicyServicer interface {
	LoadPolicy(ctx context.Context) error
	GetPolicy() model.PasswordPolicy
	SetPolicy(ctx context.Context, actor string, candidate model.PasswordPolicy, opts *audit.LogOptions) (model.PasswordPolicy, error)
	ResetPolicy(ctx context.Context, actor string, opts *audit.LogOptions) (model.PasswordPolicy, error)
	ExportPolicy(ctx context.Context, actor string, opts *audit.LogOptions) (*model.PolicyExport, error)
	ImportPolicy(ctx context.Context, actor string, document []byte, opts *audit.LogOptions) (model.PasswordPolicy, error)
	Statistics(ctx context.Context) (*model.PolicyStatistics, error)
	ListAuditLog(ctx context.Context, limit int) ([]*model.AuditLog, error)
	TestPassword(ctx context.Context, password string) (*model.ValidationResult, error)
}

type Service struct {
	store     *policyStore.Store
	repo      repository.PolicyRepository
	auditor   *audit.Service
	validator *engine.Validator
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	// writeMu keeps persisted order and in-memory order identical.
	writeMu sync.Mutex
}

func NewService(
	store *policyStore.Store,
	repo repository.PolicyRepository,
	auditor *audit.Service,
	validator *engine.Validator,
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
		store:     store,
		repo:      repo,
		auditor:   auditor,
		validator: validator,
		logger:    log.Component("policy_service"),
		metrics:   m,
		now:       time.Now,
	}
}

// LoadPolicy seeds the store from the repository. With nothing stored the
// defaults stay active. A stored policy that no longer validates is logged
// and ignored.
func (s *Service) LoadPolicy(ctx context.Context) error {
	record, err := s.repo.LoadPolicy(ctx)
	if err != nil {
		s.metrics.DatabaseOperations.WithLabelValues("load_policy", "error").Inc()
		return errors.Persistence("failed to load password policy", err)
	}
	s.metrics.DatabaseOperations.WithLabelValues("load_policy", "success").Inc()

	if record == nil {
		s.logger.Info("no stored password policy, using defaults")
		return nil
	}

	modified := record.UpdatedAt
	if err := s.store.Restore(record.PasswordPolicy, &modified); err != nil {
		s.logger.Warn("stored password policy is invalid, using defaults", "version", record.Version, "error", err.Error())
		return nil
	}
	s.logger.Info("password policy loaded", "version", record.Version, "updated_by", record.UpdatedBy)
	return nil
}

func (s *Service) GetPolicy() model.PasswordPolicy {
	return s.store.Get()
}

// SetPolicy validates candidate, persists it and then installs it. The
// active policy is unchanged when either step fails.
func (s *Service) SetPolicy(ctx context.Context, actor string, candidate model.PasswordPolicy, opts *audit.LogOptions) (model.PasswordPolicy, error) {
	return s.apply(ctx, actor, candidate, model.EventPolicyUpdated, model.AuditActionPolicyUpdated, "set", opts, s.store.Set)
}

func (s *Service) ResetPolicy(ctx context.Context, actor string, opts *audit.LogOptions) (model.PasswordPolicy, error) {
	return s.apply(ctx, actor, model.DefaultPasswordPolicy(), model.EventPolicyReset, model.AuditActionPolicyReset, "reset", opts,
		func(model.PasswordPolicy) error {
			s.store.Reset()
			return nil
		})
}

func (s *Service) ExportPolicy(ctx context.Context, actor string, opts *audit.LogOptions) (*model.PolicyExport, error) {
	export := &model.PolicyExport{
		Policies:   s.store.Get(),
		ExportDate: s.now().UTC(),
		ExportedBy: actor,
		Version:    model.PolicyExportVersion,
	}
	s.audit(ctx, actor, model.AuditActionPolicyExported, map[string]interface{}{"version": export.Version}, opts)
	return export, nil
}

type importDocument struct {
	Policies   *model.PasswordPolicy `json:"policies"`
	ExportDate *time.Time            `json:"export_date,omitempty"`
	ExportedBy string                `json:"exported_by,omitempty"`
	Version    string                `json:"version,omitempty"`
}

// ImportPolicy applies a document produced by ExportPolicy. Unknown fields
// anywhere in the document are rejected.
func (s *Service) ImportPolicy(ctx context.Context, actor string, document []byte, opts *audit.LogOptions) (model.PasswordPolicy, error) {
	dec := json.NewDecoder(bytes.NewReader(document))
	dec.DisallowUnknownFields()

	var doc importDocument
	if err := dec.Decode(&doc); err != nil {
		return model.PasswordPolicy{}, errors.InvalidInput("malformed policy document: %v", err)
	}
	if doc.Policies == nil {
		return model.PasswordPolicy{}, errors.InvalidInput("policy document has no policies")
	}
	if doc.Version != "" && doc.Version != model.PolicyExportVersion {
		return model.PasswordPolicy{}, errors.InvalidInput("unsupported policy document version %q", doc.Version)
	}

	return s.apply(ctx, actor, *doc.Policies, model.EventPolicyUpdated, model.AuditActionPolicyImported, "import", opts, s.store.Set)
}

func (s *Service) Statistics(ctx context.Context) (*model.PolicyStatistics, error) {
	total, err := s.auditor.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &model.PolicyStatistics{
		TotalPolicyChanges:   total,
		CurrentPolicyVersion: model.PolicyExportVersion,
		LastModified:         s.store.LastModified(),
		ComplianceLevel:      s.store.Get().ComplianceLevel(),
	}, nil
}

func (s *Service) ListAuditLog(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	return s.auditor.List(ctx, limit)
}

// TestPassword validates password against the active policy using
// ProbeIdentity and no history.
func (s *Service) TestPassword(ctx context.Context, password string) (*model.ValidationResult, error) {
	return s.validator.Validate(password, ProbeIdentity, s.store.Get(), nil)
}

// HandleEvent installs a policy published by another replica. Events that
// are not policy changes are ignored.
func (s *Service) HandleEvent(ctx context.Context, msg messaging.Message) error {
	if msg.Type != model.EventPolicyUpdated && msg.Type != model.EventPolicyReset {
		return nil
	}

	var payload model.PolicyChangedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", msg.Type, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if last := s.store.LastModified(); last != nil && !payload.At.After(*last) {
		return nil
	}
	at := payload.At
	if err := s.store.Restore(payload.Policy, &at); err != nil {
		return err
	}
	s.logger.Info("password policy updated by peer", "actor", payload.Actor, "event_id", msg.ID)
	return nil
}

// apply persists candidate and then hands it to install. The store stamps
// its own modification time at install.
func (s *Service) apply(ctx context.Context, actor string, candidate model.PasswordPolicy, eventType, action, metricAction string, opts *audit.LogOptions, install func(model.PasswordPolicy) error) (model.PasswordPolicy, error) {
	if err := policyStore.Validate(candidate); err != nil {
		s.metrics.PolicyUpdates.WithLabelValues(metricAction, "invalid").Inc()
		return model.PasswordPolicy{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	at := s.now().UTC()
	evt, err := event.NewEvent(eventType, model.PolicyChangedPayload{Actor: actor, Policy: candidate, At: at})
	if err != nil {
		return model.PasswordPolicy{}, errors.Internal(err)
	}

	start := time.Now()
	err = s.repo.SavePolicy(ctx, &model.PolicyRecord{PasswordPolicy: candidate, UpdatedBy: actor, UpdatedAt: at}, evt)
	s.metrics.DatabaseLatency.WithLabelValues("save_policy").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.DatabaseOperations.WithLabelValues("save_policy", "error").Inc()
		s.metrics.PolicyUpdates.WithLabelValues(metricAction, "error").Inc()
		s.logger.Error(err, "failed to persist password policy", "actor", actor)
		return model.PasswordPolicy{}, errors.Persistence("failed to save password policy", err)
	}
	s.metrics.DatabaseOperations.WithLabelValues("save_policy", "success").Inc()

	if err := install(candidate); err != nil {
		return model.PasswordPolicy{}, err
	}
	s.metrics.PolicyUpdates.WithLabelValues(metricAction, "success").Inc()
	s.logger.Info("password policy changed", "actor", actor, "action", action)

	s.audit(ctx, actor, action, map[string]interface{}{"policies": candidate}, opts)
	return candidate, nil
}

// audit failures are logged; they never undo an applied change.
func (s *Service) audit(ctx context.Context, actor, action string, data interface{}, opts *audit.LogOptions) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, actor, action, data, opts); err != nil {
		s.logger.Error(err, "failed to write audit log", "action", action)
	}
}
