package lifecycle

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rulesFile is the on-disk YAML shape of a rule table.
type rulesFile struct {
	Order  []State        `yaml:"order"`
	States map[State]Rule `yaml:"states"`
}

// LoadRules reads a rule table from a YAML file and validates it with the
// same closure checks as NewRules.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses a YAML rule table.
func ParseRules(data []byte) (*Rules, error) {
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	return NewRules(rf.Order, rf.States)
}
