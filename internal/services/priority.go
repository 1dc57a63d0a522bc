package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default offence weights, overridable via a YAML weights file.
var defaultOffenceWeights = map[string]int{
	"murder":        100,
	"rape":          100,
	"armed_robbery": 80,
	"assault":       60,
	"burglary":      40,
	"other":         20,
}

const (
	maxAgeBonus  = 50
	custodyBonus = 30
)

// weightsFile is the on-disk shape of a priority weights override.
type weightsFile struct {
	Offences map[string]int `yaml:"offences"`
}

// PriorityService computes case priority scores from offence severity, case
// age and suspect custody status.
type PriorityService struct {
	weights map[string]int
}

// NewPriorityService returns a service with the built-in weight table.
func NewPriorityService() *PriorityService {
	return &PriorityService{weights: defaultOffenceWeights}
}

// LoadPriorityWeights reads an offence weight table from a YAML file.
// Offences missing from the file keep their built-in weight.
func LoadPriorityWeights(path string) (*PriorityService, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}

	var wf weightsFile
	if err := yaml.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}
	if len(wf.Offences) == 0 {
		return nil, fmt.Errorf("weights file %s defines no offences", path)
	}
	for offence, w := range wf.Offences {
		if w < 0 {
			return nil, fmt.Errorf("weights file %s: offence %q has negative weight", path, offence)
		}
	}

	weights := make(map[string]int, len(defaultOffenceWeights))
	for k, v := range defaultOffenceWeights {
		weights[k] = v
	}
	for k, v := range wf.Offences {
		weights[k] = v
	}
	return &PriorityService{weights: weights}, nil
}

// Score computes the priority of a case: offence base weight (unknown
// offences score as "other"), plus one point per week of age capped at 50,
// plus 30 when the suspect is in custody.
func (s *PriorityService) Score(offenceType string, ageDays int, suspectInCustody bool) int {
	base, ok := s.weights[offenceType]
	if !ok {
		base = s.weights["other"]
	}
	score := base + s.AgeBonus(ageDays)
	if suspectInCustody {
		score += custodyBonus
	}
	return score
}

// AgeBonus is the age component of a score: one point per week of case age,
// capped. The dashboard applies it on top of the stored score so long-open
// cases climb the queue without rewriting case rows.
func (s *PriorityService) AgeBonus(ageDays int) int {
	bonus := ageDays / 7
	if bonus > maxAgeBonus {
		bonus = maxAgeBonus
	}
	return bonus
}
