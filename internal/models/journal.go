package models

import "time"

// JournalEntry records one resolved-and-evaluated action keyed by signature.
// Entries are never mutated; a newer entry for the same signature replaces
// the older one and a failed replay removes it.
type JournalEntry struct {
	Signature       string     `json:"signature"`
	Target          string     `json:"target"`
	PageFingerprint string     `json:"page_fingerprint"`
	Point           Point      `json:"point"`
	Kind            ActionKind `json:"kind"`
	Success         bool       `json:"success"`
	RecordedAt      time.Time  `json:"recorded_at"`
	RunID           string     `json:"run_id,omitempty"`
}
