// Package model describes NTM cells and input sequences as YAML documents.
//
// A cell description fixes the memory geometry, the shift window, the number
// of head pairs and how reads are fused into the published output:
//
//	name: copy-task
//	memory:
//	  slots: 128
//	  width: 20
//	shift_range: 3
//	heads: 1
//	output: concat
//
// Sequences hold raw head parameters, one B×InputSize block per time step.
package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sbl8/ntm/core"
	"github.com/sbl8/ntm/runtime"
)

// MemorySpec is the memory geometry section of a Spec.
type MemorySpec struct {
	Slots int `yaml:"slots"`
	Width int `yaml:"width"`
}

// Spec is a YAML cell description.
type Spec struct {
	Name       string     `yaml:"name,omitempty"`
	Memory     MemorySpec `yaml:"memory"`
	ShiftRange int        `yaml:"shift_range"`
	Heads      int        `yaml:"heads"`
	Output     string     `yaml:"output,omitempty"`
	Seed       int64      `yaml:"seed,omitempty"`
}

// Load reads and validates a Spec from path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a Spec. Heads defaults to 1 when omitted.
func Parse(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}
	if s.Heads == 0 {
		s.Heads = 1
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Config converts the description into the cell geometry.
func (s *Spec) Config() core.Config {
	return core.Config{
		Slots:      s.Memory.Slots,
		Width:      s.Memory.Width,
		ShiftRange: s.ShiftRange,
		Heads:      s.Heads,
	}
}

// Validate checks the geometry and the output mode name.
func (s *Spec) Validate() error {
	if err := s.Config().Validate(); err != nil {
		return err
	}
	_, err := s.OutputMode()
	return err
}

// OutputMode parses the output field; an empty value means concat.
func (s *Spec) OutputMode() (runtime.OutputMode, error) {
	return runtime.ParseOutputMode(s.Output)
}

// Marshal encodes the description as YAML.
func (s *Spec) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
