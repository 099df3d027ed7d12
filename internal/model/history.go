package model

import "time"

// PasswordHistory is the per-identity record owned by the history tracker.
// Entries are password digests ordered most recent first.
type PasswordHistory struct {
	IdentityID    string    `json:"identity_id" db:"identity_id"`
	Entries       []string  `json:"entries" db:"-"`
	LastChangedAt time.Time `json:"last_changed_at" db:"last_changed_at"`
	ChangeCount   int       `json:"change_count" db:"change_count"`
}

// Clone returns a deep copy so callers cannot mutate tracker state.
func (h *PasswordHistory) Clone() *PasswordHistory {
	if h == nil {
		return nil
	}
	out := *h
	out.Entries = append([]string(nil), h.Entries...)
	return &out
}

// PasswordInfo is the public view of a history record; it never exposes entries.
type PasswordInfo struct {
	IdentityID    string     `json:"identity_id"`
	LastChangedAt *time.Time `json:"last_changed_at,omitempty"`
	ChangeCount   int        `json:"change_count"`
}

// ExpiryState is the lifecycle state of a password's age.
type ExpiryState string

const (
	ExpiryActive  ExpiryState = "active"
	ExpiryWarning ExpiryState = "warning"
	ExpiryExpired ExpiryState = "expired"
)

// ExpiryStatus pairs a state with the days left before expiry. DaysLeft is
// only meaningful in the warning state.
type ExpiryStatus struct {
	State    ExpiryState `json:"state"`
	DaysLeft int         `json:"days_left,omitempty"`
}
