// Package password implements the password strength engine: pattern
// detection, policy-aware scoring, validation, remediation suggestions,
// per-identity password history with expiry tracking, and generation of
// random passwords that satisfy the active policy.
//
// Everything in this package is synchronous and free of I/O. Loading and
// persisting history is the caller's concern; see Load and Snapshot on
// HistoryTracker.
package password
