package pricing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tables holds both pricing tables. Overrides loaded from YAML replace only
// the keys they mention.
type Tables struct {
	Checklist ChecklistTable `yaml:"checklist"`
	Slider    SliderTable    `yaml:"slider"`
}

func DefaultTables() Tables {
	return Tables{
		Checklist: DefaultChecklist(),
		Slider:    DefaultSlider(),
	}
}

// LoadTables reads overrides from path on top of the defaults. An empty path
// returns the defaults.
func LoadTables(path string) (Tables, error) {
	tables := DefaultTables()
	if strings.TrimSpace(path) == "" {
		return tables, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read pricing file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)
	if err := decoder.Decode(&tables); err != nil && !errors.Is(err, io.EOF) {
		return Tables{}, fmt.Errorf("decode pricing file: %w", err)
	}
	return tables, nil
}

// Compute dispatches to the named table; unknown names use the checklist.
func (t Tables) Compute(table string, in Inputs) Estimate {
	if table == TableSlider {
		return t.Slider.Compute(in)
	}
	return t.Checklist.Compute(in)
}
