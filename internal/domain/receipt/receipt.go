// Package receipt defines the immutable outcome record of a resolved request
// and its deterministic evidence hash.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// CompletedBySystem is the sentinel principal recorded when the engine
// resolves a request through its fallback policy rather than a human.
const CompletedBySystem = "system:fallback"

// Receipt is created exactly once per request that reaches a resolved
// outcome. It is never mutated or regenerated.
type Receipt struct {
	RequestID       string    `json:"request_id"`
	Status          string    `json:"status"` // always "completed"
	Result          string    `json:"result"`
	Reason          string    `json:"reason,omitempty"`
	CompletedBy     string    `json:"completed_by"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	EvidenceHash    string    `json:"evidence_hash"`
}

// evidence is the canonical serialization input for the hash. Field order is
// fixed by the struct; timestamps are rendered in RFC 3339 UTC so identical
// instants always serialize identically.
type evidence struct {
	RequestID   string `json:"request_id"`
	Result      string `json:"result"`
	CompletedBy string `json:"completed_by"`
	CompletedAt string `json:"completed_at"`
}

// Generate builds the receipt for a resolution. It is a pure function:
// identical inputs produce identical evidence hashes, which is what makes
// audit replay possible.
func Generate(requestID, result, by, reason string, createdAt, completedAt time.Time) Receipt {
	return Receipt{
		RequestID:       requestID,
		Status:          "completed",
		Result:          result,
		Reason:          reason,
		CompletedBy:     by,
		CompletedAt:     completedAt,
		DurationSeconds: int64(completedAt.Sub(createdAt).Seconds()),
		EvidenceHash:    evidenceHash(requestID, result, by, completedAt),
	}
}

// evidenceHash computes SHA-256 over the canonical JSON of the resolution
// facts. json.Marshal of a struct emits fields in declaration order, so the
// serialization is stable.
func evidenceHash(requestID, result, by string, completedAt time.Time) string {
	b, _ := json.Marshal(evidence{
		RequestID:   requestID,
		Result:      result,
		CompletedBy: by,
		CompletedAt: completedAt.UTC().Format(time.RFC3339Nano),
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
