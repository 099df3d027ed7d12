package password

import (
	"time"

	"github.com/jwalitptl/passpolicy/internal/model"
)

const day = 24 * time.Hour

// DaysSince returns the number of whole days between last and now.
func DaysSince(last, now time.Time) int {
	return int(now.Sub(last) / day)
}

// ComputeExpiry maps the age of a password changed at last onto the
// Active, Warning and Expired states.
func ComputeExpiry(last time.Time, policy model.PasswordPolicy, now time.Time) model.ExpiryStatus {
	days := DaysSince(last, now)

	switch {
	case days >= policy.MaxAgeDays:
		return model.ExpiryStatus{State: model.ExpiryExpired}
	case days >= policy.MaxAgeDays-policy.WarningDays:
		return model.ExpiryStatus{State: model.ExpiryWarning, DaysLeft: policy.MaxAgeDays - days}
	default:
		return model.ExpiryStatus{State: model.ExpiryActive}
	}
}
