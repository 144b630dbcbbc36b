package routetables

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTables []byte

const fallbackTravelMinutes = 30

// Tables holds the hand maintained direction vocabulary and travel time offsets for
// sources that only expose departure boards
type Tables struct {
	DefaultTravelMinutes int                 `yaml:"defaultTravelMinutes"`
	Termini              map[string][]string `yaml:"termini"`
	TravelMinutes        map[string]int      `yaml:"travelMinutes"`
}

func Default() *Tables {
	tables, err := Parse(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("embedded route tables are invalid: %v", err))
	}

	return tables
}

// Load reads tables from path, or the embedded defaults if path is empty
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route tables %s: %w", path, err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Tables, error) {
	var tables Tables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parse route tables: %w", err)
	}

	if tables.DefaultTravelMinutes <= 0 {
		tables.DefaultTravelMinutes = fallbackTravelMinutes
	}

	for key, minutes := range tables.TravelMinutes {
		if !strings.Contains(key, ">") {
			return nil, fmt.Errorf("travel time key %q is not in from>to form", key)
		}
		if minutes <= 0 {
			return nil, fmt.Errorf("travel time for %q must be positive", key)
		}
	}

	for eva, termini := range tables.Termini {
		for i, terminus := range termini {
			termini[i] = strings.ToLower(strings.TrimSpace(terminus))
		}
		tables.Termini[eva] = termini
	}

	return &tables, nil
}

func travelKey(fromEVA string, toEVA string) string {
	return fmt.Sprintf("%s>%s", fromEVA, toEVA)
}

// TravelTime returns the offset between departure and arrival. The bool reports whether
// the pair was in the table rather than the default.
func (t *Tables) TravelTime(fromEVA string, toEVA string) (time.Duration, bool) {
	if minutes, ok := t.TravelMinutes[travelKey(fromEVA, toEVA)]; ok {
		return time.Duration(minutes) * time.Minute, true
	}

	return time.Duration(t.DefaultTravelMinutes) * time.Minute, false
}

// ServesDestination reports whether terminus contains one of the known termini for destEVA
func (t *Tables) ServesDestination(destEVA string, terminus string) bool {
	terminus = strings.ToLower(terminus)
	if terminus == "" {
		return false
	}

	for _, candidate := range t.Termini[destEVA] {
		if candidate != "" && strings.Contains(terminus, candidate) {
			return true
		}
	}

	return false
}
