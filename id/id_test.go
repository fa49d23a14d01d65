package id_test

import (
	"strings"
	"testing"

	"github.com/alimaamoun/DM-Agent/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"LeaseID", id.NewLeaseID, "lease_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"JobID", id.NewJobID, id.ParseJobID},
		{"LeaseID", id.NewLeaseID, id.ParseLeaseID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed != original {
				t.Errorf("round-trip mismatch: %q != %q", parsed, original)
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseJobID(id.NewLeaseID().String()); err == nil {
		t.Error("ParseJobID accepted a lease id")
	}
	if _, err := id.ParseLeaseID(id.NewJobID().String()); err == nil {
		t.Error("ParseLeaseID accepted a job id")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "job", "job_", "JOB_01h2xcejqtf2nbrexx3vqjhp41", "job_not-a-typeid", "01h2xcejqtf2nbrexx3vqjhp41"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}

func TestUniqueness(t *testing.T) {
	seen := make(map[id.ID]bool, 1000)
	for range 1000 {
		i := id.NewJobID()
		if seen[i] {
			t.Fatalf("duplicate id %s", i)
		}
		seen[i] = true
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil ID string = %q", i.String())
	}
	v, err := i.Value()
	if err != nil || v != nil {
		t.Errorf("nil ID Value() = %v, %v", v, err)
	}
}

func TestTextAndScan(t *testing.T) {
	orig := id.NewJobID()

	b, err := orig.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var back id.ID
	if err := back.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}
	if back != orig {
		t.Errorf("text round trip: %q != %q", back, orig)
	}

	var scanned id.ID
	if err := scanned.Scan([]byte(orig.String())); err != nil {
		t.Fatal(err)
	}
	if scanned != orig {
		t.Errorf("scan: %q != %q", scanned, orig)
	}
	if err := scanned.Scan(nil); err != nil || !scanned.IsNil() {
		t.Errorf("scan nil: %v, nil=%v", err, scanned.IsNil())
	}
	if err := scanned.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}
