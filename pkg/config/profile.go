package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"eeg-backend/internal/models"
)

// Profile overrides the engagement threshold and band edges.
// Fields left out of the YAML keep their defaults.
//
//	threshold: 0.26
//	bands:
//	  theta: [4, 8]
//	  alpha: [8, 13]
//	  beta: [13, 32]
type Profile struct {
	Threshold *float64             `yaml:"threshold"`
	Bands     map[string][]float64 `yaml:"bands"`
}

// EngagementSettings is the resolved scorer configuration
type EngagementSettings struct {
	Threshold float64
	Theta     models.Band
	Alpha     models.Band
	Beta      models.Band
	Total     models.Band
}

// DefaultEngagementSettings returns the standard bands with the given threshold
func DefaultEngagementSettings(threshold float64) EngagementSettings {
	return EngagementSettings{
		Threshold: threshold,
		Theta:     models.BandTheta,
		Alpha:     models.BandAlpha,
		Beta:      models.BandBeta,
		Total:     models.BandTotal,
	}
}

// LoadProfile reads a YAML profile and applies it on top of base
func LoadProfile(path string, base EngagementSettings) (EngagementSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("profile: read file: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return base, fmt.Errorf("profile: parse yaml: %w", err)
	}

	return p.Apply(base)
}

// Apply merges the profile into base and validates the result
func (p Profile) Apply(base EngagementSettings) (EngagementSettings, error) {
	out := base
	if p.Threshold != nil {
		out.Threshold = *p.Threshold
	}

	for name, edges := range p.Bands {
		if len(edges) != 2 {
			return base, fmt.Errorf("profile: band %q needs [low, high], got %v", name, edges)
		}
		if edges[0] < 0 || edges[1] <= edges[0] {
			return base, fmt.Errorf("profile: band %q has invalid range %v", name, edges)
		}
		band := models.Band{Name: name, Low: edges[0], High: edges[1]}

		switch name {
		case "theta":
			out.Theta = band
		case "alpha":
			out.Alpha = band
		case "beta":
			out.Beta = band
		case "total":
			out.Total = band
		default:
			return base, fmt.Errorf("profile: unknown band %q", name)
		}
	}

	if out.Threshold < 0 {
		return base, fmt.Errorf("profile: threshold must not be negative, got %v", out.Threshold)
	}

	return out, nil
}
