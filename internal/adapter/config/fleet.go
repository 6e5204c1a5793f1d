package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/utilitysc/vsd-monitor/internal/domain"
)

// FleetFile represents the top-level fleet definition file: the drive
// units on the shared gateway plus the register layout they all share.
type FleetFile struct {
	Version string        `yaml:"version"`
	Units   []domain.Unit `yaml:"units"`
	Layout  domain.Layout `yaml:"layout"`
}

// LoadFleet loads, validates, and normalizes the fleet definition from
// a YAML file. Every layout error is reported here, at startup; the
// returned layout carries wire addresses ready for the field bus.
func LoadFleet(path string) (*domain.Registry, *domain.Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read fleet file: %w", err)
	}
	return ParseFleet(data)
}

// ParseFleet parses and validates raw fleet YAML.
func ParseFleet(data []byte) (*domain.Registry, *domain.Layout, error) {
	var file FleetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse fleet file: %w", err)
	}

	registry, err := domain.NewRegistry(file.Units)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid unit list: %w", err)
	}

	layout := file.Layout
	if err := layout.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid register layout: %w", err)
	}
	layout.Normalize()

	return registry, &layout, nil
}
