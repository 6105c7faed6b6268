package receipt

import (
	"testing"
	"time"
)

func TestGenerateDeterministic(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	completed := created.Add(42 * time.Second)

	a := Generate("req-1", "approved", "alice", "", created, completed)
	b := Generate("req-1", "approved", "alice", "", created, completed)

	if a.EvidenceHash != b.EvidenceHash {
		t.Fatalf("identical inputs produced different hashes: %s vs %s", a.EvidenceHash, b.EvidenceHash)
	}
	if len(a.EvidenceHash) != 64 {
		t.Errorf("expected 64-char sha256 hex, got %d chars", len(a.EvidenceHash))
	}
}

func TestGenerateHashSensitivity(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	completed := created.Add(time.Minute)

	base := Generate("req-1", "approved", "alice", "", created, completed)

	variants := []Receipt{
		Generate("req-2", "approved", "alice", "", created, completed),
		Generate("req-1", "rejected", "alice", "", created, completed),
		Generate("req-1", "approved", "bob", "", created, completed),
		Generate("req-1", "approved", "alice", "", created, completed.Add(time.Nanosecond)),
	}
	for i, v := range variants {
		if v.EvidenceHash == base.EvidenceHash {
			t.Errorf("variant %d: expected differing hash", i)
		}
	}
}

func TestGenerateHashIgnoresReason(t *testing.T) {
	created := time.Now().UTC()
	completed := created.Add(time.Second)

	with := Generate("req-1", "rejected", "alice", "too risky", created, completed)
	without := Generate("req-1", "rejected", "alice", "", created, completed)

	if with.EvidenceHash != without.EvidenceHash {
		t.Error("reason must not participate in the evidence hash")
	}
	if with.Reason != "too risky" {
		t.Errorf("reason not carried: %q", with.Reason)
	}
}

func TestGenerateFields(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	completed := created.Add(90 * time.Second)

	rc := Generate("req-9", "blue-green", CompletedBySystem, "", created, completed)

	if rc.Status != "completed" {
		t.Errorf("status = %q, want completed", rc.Status)
	}
	if rc.DurationSeconds != 90 {
		t.Errorf("duration = %d, want 90", rc.DurationSeconds)
	}
	if rc.CompletedBy != CompletedBySystem {
		t.Errorf("completed_by = %q", rc.CompletedBy)
	}
	if !rc.CompletedAt.Equal(completed) {
		t.Errorf("completed_at = %v, want %v", rc.CompletedAt, completed)
	}
}

func TestGenerateTimezoneNormalization(t *testing.T) {
	created := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	completed := time.Date(2026, 6, 1, 12, 5, 0, 0, time.UTC)
	inOslo := completed.In(time.FixedZone("CEST", 2*3600))

	utc := Generate("req-1", "approved", "alice", "", created, completed)
	oslo := Generate("req-1", "approved", "alice", "", created, inOslo)

	if utc.EvidenceHash != oslo.EvidenceHash {
		t.Error("the same instant in different zones must hash identically")
	}
}
