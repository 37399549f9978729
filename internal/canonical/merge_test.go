package canonical

import "testing"

func TestMerge_GenuineValueWins(t *testing.T) {
	existing := New()
	existing.FirstName = "Ana"
	existing.Street = "Los Leones"

	incoming := New()
	incoming.FirstName = "María"
	incoming.Number = "430"

	merged := Merge(existing, incoming)

	if merged.FirstName != "María" {
		t.Errorf("expected incoming name to win, got %q", merged.FirstName)
	}
	if merged.Street != "Los Leones" {
		t.Errorf("expected existing street to survive, got %q", merged.Street)
	}
	if merged.Number != "430" {
		t.Errorf("expected incoming number, got %q", merged.Number)
	}
}

func TestMerge_EmptyNeverOverwrites(t *testing.T) {
	existing := New()
	existing.FirstName = "Ana"
	existing.Conscious = Yes
	existing.Commune = "Providencia"

	merged := Merge(existing, New())

	if merged != existing {
		t.Errorf("merging an all-empty partial must be a no-op, got %+v", merged)
	}
}

func TestMerge_TriageDefaultIsNoInformation(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{"default over red keeps red", TriageRed, TriageGreen, TriageRed},
		{"empty over yellow keeps yellow", TriageYellow, "", TriageYellow},
		{"red over default escalates", TriageGreen, TriageRed, TriageRed},
		{"yellow over red replaces", TriageRed, TriageYellow, TriageYellow},
		{"empty over empty defaults", "", "", TriageGreen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := New()
			existing.Triage = tt.existing
			incoming := New()
			incoming.Triage = tt.incoming

			if got := Merge(existing, incoming).Triage; got != tt.want {
				t.Errorf("Merge triage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMerge_Monotonic(t *testing.T) {
	// Once populated with a genuine value, a field can only move to another
	// genuine value: alternating real and empty partials never regress.
	rec := New()

	first := New()
	first.Street = "Apoquindo"
	rec = Merge(rec, first)

	rec = Merge(rec, New())
	if rec.Street != "Apoquindo" {
		t.Fatalf("street regressed after empty merge: %q", rec.Street)
	}

	second := New()
	second.Street = "Estoril"
	rec = Merge(rec, second)
	if rec.Street != "Estoril" {
		t.Fatalf("street did not accept genuine replacement: %q", rec.Street)
	}

	rec = Merge(rec, New())
	if rec.Street != "Estoril" {
		t.Fatalf("street regressed after second empty merge: %q", rec.Street)
	}
}
