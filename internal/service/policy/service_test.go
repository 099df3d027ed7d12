package policy

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/passpolicy/internal/model"
	engine "github.com/jwalitptl/passpolicy/internal/password"
	policyStore "github.com/jwalitptl/passpolicy/internal/policy"
	"github.com/jwalitptl/passpolicy/internal/repository"
	"github.com/jwalitptl/passpolicy/internal/repository/memory"
	"github.com/jwalitptl/passpolicy/internal/service/audit"
	"github.com/jwalitptl/passpolicy/pkg/errors"
	"github.com/jwalitptl/passpolicy/pkg/messaging"
)

type fixture struct {
	svc    *Service
	store  *policyStore.Store
	repo   repository.PolicyRepository
	outbox repository.OutboxRepository
	audits repository.AuditRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPolicyRepository(outbox)
	audits := memory.NewAuditRepository(0)
	store := policyStore.NewStore()
	svc := NewService(store, repo, audit.NewService(audits), engine.NewValidator(nil), nil, nil)
	return &fixture{svc: svc, store: store, repo: repo, outbox: outbox, audits: audits}
}

type brokenPolicyRepo struct{}

func (brokenPolicyRepo) LoadPolicy(ctx context.Context) (*model.PolicyRecord, error) {
	return nil, stderrors.New("connection reset")
}

func (brokenPolicyRepo) SavePolicy(ctx context.Context, record *model.PolicyRecord, events ...*model.OutboxEvent) error {
	return stderrors.New("connection reset")
}

func TestSetPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	candidate := model.DefaultPasswordPolicy()
	candidate.MinLength = 16
	applied, err := f.svc.SetPolicy(ctx, "root", candidate, &audit.LogOptions{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, candidate, applied)
	assert.Equal(t, candidate, f.svc.GetPolicy())
	require.NotNil(t, f.store.LastModified())
	assert.False(t, f.store.LastModified().Before(persistedAt(t, f)), "installed after it was persisted")

	record, err := f.repo.LoadPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, record.MinLength)
	assert.Equal(t, "root", record.UpdatedBy)

	events, err := f.outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPolicyUpdated, events[0].EventType)
	var payload model.PolicyChangedPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, candidate, payload.Policy)

	logs, err := f.svc.ListAuditLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionPolicyUpdated, logs[0].Action)
	assert.Equal(t, "root", logs[0].Actor)
	assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
}

func persistedAt(t *testing.T, f *fixture) time.Time {
	t.Helper()
	record, err := f.repo.LoadPolicy(context.Background())
	require.NoError(t, err)
	require.NotNil(t, record)
	return record.UpdatedAt
}

func TestSetPolicyRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	before := f.svc.GetPolicy()

	candidate := before
	candidate.MinLength = 6
	candidate.MaxLength = 4
	_, err := f.svc.SetPolicy(context.Background(), "root", candidate, nil)

	var pve *errors.PolicyValidationError
	require.True(t, stderrors.As(err, &pve))
	assert.Equal(t, []string{policyStore.ViolationMinAboveMax, policyStore.ViolationMinTooSmall}, pve.Violations)
	assert.Equal(t, before, f.svc.GetPolicy())

	n, err := f.audits.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSetPolicyPersistenceFailureKeepsPolicy(t *testing.T) {
	store := policyStore.NewStore()
	svc := NewService(store, brokenPolicyRepo{}, audit.NewService(memory.NewAuditRepository(0)), engine.NewValidator(nil), nil, nil)

	candidate := model.DefaultPasswordPolicy()
	candidate.MinLength = 20
	_, err := svc.SetPolicy(context.Background(), "root", candidate, nil)
	assert.True(t, stderrors.Is(err, errors.ErrPersistence))
	assert.Equal(t, model.DefaultPasswordPolicy(), svc.GetPolicy())
	assert.Nil(t, store.LastModified())

	assert.True(t, stderrors.Is(svc.LoadPolicy(context.Background()), errors.ErrPersistence))
}

func TestResetPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	candidate := model.DefaultPasswordPolicy()
	candidate.PreventReuse = 10
	_, err := f.svc.SetPolicy(ctx, "root", candidate, nil)
	require.NoError(t, err)

	before := f.store.LastModified()
	require.NotNil(t, before)

	p, err := f.svc.ResetPolicy(ctx, "root", nil)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPasswordPolicy(), p)
	assert.Equal(t, model.DefaultPasswordPolicy(), f.svc.GetPolicy())
	after := f.store.LastModified()
	require.NotNil(t, after)
	assert.False(t, after.Before(*before), "reset stamps a new modification time")

	logs, err := f.svc.ListAuditLog(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionPolicyReset, logs[0].Action)
}

func TestExportImportRoundTrip(t *testing.T) {
	source := newFixture(t)
	ctx := context.Background()

	candidate := model.DefaultPasswordPolicy()
	candidate.MinLength = 14
	candidate.RequireSpecialChars = false
	_, err := source.svc.SetPolicy(ctx, "root", candidate, nil)
	require.NoError(t, err)

	export, err := source.svc.ExportPolicy(ctx, "root", nil)
	require.NoError(t, err)
	assert.Equal(t, model.PolicyExportVersion, export.Version)
	assert.Equal(t, "root", export.ExportedBy)

	doc, err := json.Marshal(export)
	require.NoError(t, err)

	target := newFixture(t)
	applied, err := target.svc.ImportPolicy(ctx, "ops", doc, nil)
	require.NoError(t, err)
	assert.Equal(t, candidate, applied)
	assert.Equal(t, candidate, target.svc.GetPolicy())

	logs, err := target.svc.ListAuditLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionPolicyImported, logs[0].Action)
}

func TestImportPolicyRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"policies":`},
		{"unknown top-level field", `{"policies":{"min_length":12,"max_length":128},"extra":true}`},
		{"unknown policy field", `{"policies":{"min_length":12,"max_length":128,"min_entropy":3}}`},
		{"missing policies", `{"version":"1.0"}`},
		{"unsupported version", `{"policies":{"min_length":12,"max_length":128},"version":"2.0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ImportPolicy(ctx, "root", []byte(tt.doc), nil)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidInput), "got %v", err)
		})
	}

	_, err := f.svc.ImportPolicy(ctx, "root", []byte(`{"policies":{"min_length":4,"max_length":128}}`), nil)
	assert.True(t, stderrors.Is(err, errors.ErrPolicyValidation))
	assert.Equal(t, model.DefaultPasswordPolicy(), f.svc.GetPolicy())
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPolicyChanges)
	assert.Nil(t, stats.LastModified)
	assert.Equal(t, 100, stats.ComplianceLevel)
	assert.Equal(t, "1.0", stats.CurrentPolicyVersion)

	lax := model.DefaultPasswordPolicy()
	lax.MinLength = 8
	lax.RequireSpecialChars = false
	lax.MinSpecialChars = 0
	lax.PreventCommonPasswords = false
	_, err = f.svc.SetPolicy(ctx, "root", lax, nil)
	require.NoError(t, err)

	stats, err = f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPolicyChanges)
	assert.NotNil(t, stats.LastModified)
	// 10 length + 45 classes + 5 user info + 5 reuse
	assert.Equal(t, 65, stats.ComplianceLevel)
}

func TestTestPasswordUsesProbeIdentity(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.TestPassword(context.Background(), "TestUser#2024!!")
	require.NoError(t, err)
	assert.True(t, result.HasIssue(model.IssueContainsPersonalInfo))
}

func TestLoadPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.LoadPolicy(ctx))
	assert.Equal(t, model.DefaultPasswordPolicy(), f.svc.GetPolicy())

	stored := model.DefaultPasswordPolicy()
	stored.MaxAgeDays = 60
	require.NoError(t, f.repo.SavePolicy(ctx, &model.PolicyRecord{PasswordPolicy: stored, UpdatedBy: "root"}))

	fresh := NewService(policyStore.NewStore(), f.repo, audit.NewService(f.audits), engine.NewValidator(nil), nil, nil)
	require.NoError(t, fresh.LoadPolicy(ctx))
	assert.Equal(t, stored, fresh.GetPolicy())
}

func TestHandleEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Now().UTC()

	remote := model.DefaultPasswordPolicy()
	remote.MinLength = 18
	payload, err := json.Marshal(model.PolicyChangedPayload{Actor: "peer", Policy: remote, At: at})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleEvent(ctx, messaging.Message{ID: "1", Type: "something.else", Payload: payload}))
	assert.Equal(t, model.DefaultPasswordPolicy(), f.svc.GetPolicy())

	require.NoError(t, f.svc.HandleEvent(ctx, messaging.Message{ID: "2", Type: model.EventPolicyUpdated, Payload: payload}))
	assert.Equal(t, remote, f.svc.GetPolicy())

	older := model.DefaultPasswordPolicy()
	stale, err := json.Marshal(model.PolicyChangedPayload{Actor: "peer", Policy: older, At: at.Add(-time.Minute)})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleEvent(ctx, messaging.Message{ID: "3", Type: model.EventPolicyReset, Payload: stale}))
	assert.Equal(t, remote, f.svc.GetPolicy(), "stale events are ignored")

	assert.Error(t, f.svc.HandleEvent(ctx, messaging.Message{ID: "4", Type: model.EventPolicyUpdated, Payload: json.RawMessage(`"x"`)}))
}
