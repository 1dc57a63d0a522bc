package services

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPriorityScore(t *testing.T) {
	p := NewPriorityService()

	tests := []struct {
		name      string
		offence   string
		ageDays   int
		inCustody bool
		want      int
	}{
		{"murder base", "murder", 0, false, 100},
		{"rape base", "rape", 0, false, 100},
		{"armed robbery base", "armed_robbery", 0, false, 80},
		{"assault base", "assault", 0, false, 60},
		{"burglary base", "burglary", 0, false, 40},
		{"unknown offence scores as other", "jaywalking", 0, false, 20},
		{"age bonus per week", "burglary", 21, false, 43},
		{"age bonus capped", "burglary", 3650, false, 90},
		{"custody bonus", "assault", 0, true, 90},
		{"all bonuses", "murder", 14, true, 132},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Score(tt.offence, tt.ageDays, tt.inCustody); got != tt.want {
				t.Fatalf("Score(%q, %d, %v) = %d, want %d", tt.offence, tt.ageDays, tt.inCustody, got, tt.want)
			}
		})
	}
}

func TestLoadPriorityWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	content := "offences:\n  burglary: 70\n  cybercrime: 55\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write weights: %v", err)
	}

	p, err := LoadPriorityWeights(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := p.Score("burglary", 0, false); got != 70 {
		t.Fatalf("override not applied: burglary = %d", got)
	}
	if got := p.Score("cybercrime", 0, false); got != 55 {
		t.Fatalf("new offence not applied: cybercrime = %d", got)
	}
	// Offences absent from the file keep their built-in weight.
	if got := p.Score("murder", 0, false); got != 100 {
		t.Fatalf("default lost: murder = %d", got)
	}
}

func TestLoadPriorityWeightsRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadPriorityWeights(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("offences: {}\n"), 0o600)
	if _, err := LoadPriorityWeights(empty); err == nil {
		t.Fatal("empty offence table accepted")
	}

	negative := filepath.Join(dir, "negative.yaml")
	os.WriteFile(negative, []byte("offences:\n  burglary: -5\n"), 0o600)
	if _, err := LoadPriorityWeights(negative); err == nil {
		t.Fatal("negative weight accepted")
	}
}
