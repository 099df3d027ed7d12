package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records one administrative action on the password policy.
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Actor     string          `json:"admin" db:"actor"`
	Action    string          `json:"action" db:"action"`
	Data      json.RawMessage `json:"data,omitempty" db:"data"`
	IPAddress string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string          `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt time.Time       `json:"timestamp" db:"created_at"`
}

const (
	// Action types
	AuditActionPolicyUpdated  = "password_policies_updated"
	AuditActionPolicyReset    = "password_policies_reset"
	AuditActionPolicyExported = "password_policies_exported"
	AuditActionPolicyImported = "password_policies_imported"

	// DefaultAuditLimit is how many entries a listing returns by default.
	DefaultAuditLimit = 100
)
