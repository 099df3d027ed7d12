package password

import (
	"sync"
	"time"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/pkg/security"
)

// historyRecord is one identity's history. Its mutex serialises updates to
// that identity only.
type historyRecord struct {
	mu            sync.Mutex
	entries       []string // digests, newest first
	lastChangedAt time.Time
	changeCount   int
}

// HistoryTracker keeps per-identity password history, detects reuse and
// computes expiry. Entries are digests produced by the configured hasher;
// plaintext is never retained.
type HistoryTracker struct {
	hasher  security.PasswordHasher
	now     func() time.Time
	records sync.Map // identity ID -> *historyRecord
}

// HistoryOption configures a HistoryTracker.
type HistoryOption func(*HistoryTracker)

// WithClock overrides the time source used by RecordChange and Initialize.
func WithClock(now func() time.Time) HistoryOption {
	return func(t *HistoryTracker) {
		t.now = now
	}
}

// NewHistoryTracker creates a tracker that stores digests from hasher.
func NewHistoryTracker(hasher security.PasswordHasher, opts ...HistoryOption) *HistoryTracker {
	t := &HistoryTracker{
		hasher: hasher,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HistoryTracker) lookup(identityID string) (*historyRecord, bool) {
	v, ok := t.records.Load(identityID)
	if !ok {
		return nil, false
	}
	return v.(*historyRecord), true
}

func (t *HistoryTracker) recordFor(identityID string) *historyRecord {
	v, _ := t.records.LoadOrStore(identityID, &historyRecord{})
	return v.(*historyRecord)
}

// RecordChange pushes password to the front of the identity's history,
// trims it to window entries, stamps the change time and bumps the change
// count. It returns a snapshot suitable for persisting.
func (t *HistoryTracker) RecordChange(identityID, password string, window int) (*model.PasswordHistory, error) {
	digest, err := t.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	rec := t.recordFor(identityID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if window < 0 {
		window = 0
	}
	entries := make([]string, 0, window)
	if window > 0 {
		entries = append(entries, digest)
		entries = append(entries, rec.entries...)
		if len(entries) > window {
			entries = entries[:window]
		}
	}
	rec.entries = entries
	rec.lastChangedAt = t.now().UTC()
	rec.changeCount++

	return rec.snapshot(identityID), nil
}

// IsReused reports whether password matches any stored entry.
func (t *HistoryTracker) IsReused(identityID, password string) bool {
	return t.IsReusedWithin(identityID, password, -1)
}

// IsReusedWithin reports whether password matches one of the window most
// recent entries. A negative window checks every entry.
func (t *HistoryTracker) IsReusedWithin(identityID, password string, window int) bool {
	rec, ok := t.lookup(identityID)
	if !ok {
		return false
	}

	rec.mu.Lock()
	entries := rec.entries
	if window >= 0 && len(entries) > window {
		entries = entries[:window]
	}
	entries = append([]string(nil), entries...)
	rec.mu.Unlock()

	for _, digest := range entries {
		if t.hasher.Compare(digest, password) == nil {
			return true
		}
	}
	return false
}

// Known reports whether the tracker holds a record for the identity.
func (t *HistoryTracker) Known(identityID string) bool {
	_, ok := t.lookup(identityID)
	return ok
}

// ExpiryStatus computes the expiry state of the identity's password at now.
// Identities without a recorded change are Active.
func (t *HistoryTracker) ExpiryStatus(identityID string, policy model.PasswordPolicy, now time.Time) model.ExpiryStatus {
	rec, ok := t.lookup(identityID)
	if !ok {
		return model.ExpiryStatus{State: model.ExpiryActive}
	}

	rec.mu.Lock()
	last := rec.lastChangedAt
	rec.mu.Unlock()

	if last.IsZero() {
		return model.ExpiryStatus{State: model.ExpiryActive}
	}
	return ComputeExpiry(last, policy, now)
}

// Initialize seeds a record with a change stamped now and a change count of
// one. It does nothing when the identity already has a record and reports
// whether a record was created.
func (t *HistoryTracker) Initialize(identityID string) (*model.PasswordHistory, bool) {
	fresh := &historyRecord{
		lastChangedAt: t.now().UTC(),
		changeCount:   1,
	}
	v, loaded := t.records.LoadOrStore(identityID, fresh)
	rec := v.(*historyRecord)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(identityID), !loaded
}

// Load installs a persisted history, replacing any in-memory record.
func (t *HistoryTracker) Load(h *model.PasswordHistory) {
	if h == nil {
		return
	}
	rec := t.recordFor(h.IdentityID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.entries = append([]string(nil), h.Entries...)
	rec.lastChangedAt = h.LastChangedAt
	rec.changeCount = h.ChangeCount
}

// Merge installs h when the tracker has no record for the identity or holds
// an older one, judged by change count. It reports whether h was installed.
func (t *HistoryTracker) Merge(h *model.PasswordHistory) bool {
	if h == nil || h.IdentityID == "" {
		return false
	}
	fresh := &historyRecord{
		entries:       append([]string(nil), h.Entries...),
		lastChangedAt: h.LastChangedAt,
		changeCount:   h.ChangeCount,
	}
	v, loaded := t.records.LoadOrStore(h.IdentityID, fresh)
	if !loaded {
		return true
	}

	rec := v.(*historyRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if h.ChangeCount <= rec.changeCount {
		return false
	}
	rec.entries = fresh.entries
	rec.lastChangedAt = fresh.lastChangedAt
	rec.changeCount = fresh.changeCount
	return true
}

// Snapshot returns a copy of the identity's history.
func (t *HistoryTracker) Snapshot(identityID string) (*model.PasswordHistory, bool) {
	rec, ok := t.lookup(identityID)
	if !ok {
		return nil, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(identityID), true
}

// Forget drops the in-memory record so the next access reloads it.
func (t *HistoryTracker) Forget(identityID string) {
	t.records.Delete(identityID)
}

// snapshot must be called with rec.mu held.
func (rec *historyRecord) snapshot(identityID string) *model.PasswordHistory {
	return &model.PasswordHistory{
		IdentityID:    identityID,
		Entries:       append([]string(nil), rec.entries...),
		LastChangedAt: rec.lastChangedAt,
		ChangeCount:   rec.changeCount,
	}
}
