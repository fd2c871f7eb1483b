// Package airports provides the static airport elevation table used for
// ground-level tests. The table is loaded once at startup and never mutated.
package airports

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Airport is a single entry in the airports JSON database
type Airport struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	ElevationFt float64 `json:"elevation_ft"`
}

// Table maps airport code -> field elevation in feet
type Table struct {
	elevations map[string]float64
}

// Load reads the airports JSON file and builds the lookup table
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read airports file: %w", err)
	}

	var entries []Airport
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse airports file: %w", err)
	}

	t := &Table{elevations: make(map[string]float64, len(entries))}
	for _, a := range entries {
		code := strings.ToUpper(strings.TrimSpace(a.Code))
		if code == "" {
			continue
		}
		t.elevations[code] = a.ElevationFt
	}
	return t, nil
}

// NewTable builds a table directly from a code->elevation map (for tests)
func NewTable(elevations map[string]float64) *Table {
	m := make(map[string]float64, len(elevations))
	for code, elev := range elevations {
		m[strings.ToUpper(code)] = elev
	}
	return &Table{elevations: m}
}

// Elevation returns the field elevation for an airport code.
// Unknown airports report 0 ft (sea level) and ok=false so callers can
// decide whether the ground-level test is trustworthy.
func (t *Table) Elevation(code string) (float64, bool) {
	elev, ok := t.elevations[strings.ToUpper(strings.TrimSpace(code))]
	return elev, ok
}

// Count returns the number of airports in the table
func (t *Table) Count() int {
	return len(t.elevations)
}
